package apihttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/t3m14/tours-sub000/internal/domain"
	"github.com/t3m14/tours-sub000/internal/metrics"
	"github.com/t3m14/tours-sub000/internal/search"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingInterval   = 30 * time.Second
	wsMaxMessageSize = 4096
	wsSendBuffer     = 32
	wsFetchTimeout   = 20 * time.Second
)

var (
	errSessionClosed  = errors.New("websocket session closed")
	errSendBufferFull = errors.New("websocket send buffer full")
)

// wsSession is one viewer connected to one job. Only writePump writes to the
// connection. Frames delivered by the monitor before start are held back so
// the initial snapshot frames always go out first.
//
// The session never calls the registry while holding mu: the monitor reads
// Pagination under the job lock.
type wsSession struct {
	id     string
	jobID  domain.SearchJobID
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	logger *slog.Logger

	mu       sync.Mutex
	page     int
	pageSize int
	started  bool
	pending  [][]byte

	closeOnce   sync.Once
	closeCode   int
	closeReason string
}

func newWSSession(conn *websocket.Conn, jobID domain.SearchJobID, pageSize int, logger *slog.Logger) *wsSession {
	id := uuid.NewString()
	return &wsSession{
		id:       id,
		jobID:    jobID,
		conn:     conn,
		send:     make(chan []byte, wsSendBuffer),
		done:     make(chan struct{}),
		logger:   logger.With(slog.String("jobId", jobID.String()), slog.String("viewerId", id)),
		page:     1,
		pageSize: domain.ClampPageSize(pageSize),
	}
}

func (s *wsSession) ID() string {
	return s.id
}

func (s *wsSession) Pagination() (page, pageSize int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page, s.pageSize
}

func (s *wsSession) setPagination(page, pageSize int) {
	s.mu.Lock()
	s.page = page
	s.pageSize = pageSize
	s.mu.Unlock()
}

// Deliver queues a monitor update without blocking.
func (s *wsSession) Deliver(update search.Update) error {
	payload, err := frameFromUpdate(update)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		if len(s.pending) >= wsSendBuffer {
			return errSendBufferFull
		}
		s.pending = append(s.pending, payload)
		return nil
	}
	return s.enqueueLocked(payload)
}

// start queues the initial frames followed by anything the monitor delivered
// in the meantime.
func (s *wsSession) start(initial ...[]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, payload := range append(initial, s.pending...) {
		if err := s.enqueueLocked(payload); err != nil {
			return err
		}
	}
	s.pending = nil
	s.started = true
	return nil
}

func (s *wsSession) sendFrame(payload []byte, err error) error {
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enqueueLocked(payload)
}

func (s *wsSession) sendError(message string) error {
	return s.sendFrame(errorFrame(message))
}

func (s *wsSession) enqueueLocked(payload []byte) error {
	select {
	case <-s.done:
		return errSessionClosed
	default:
	}
	select {
	case s.send <- payload:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close asks writePump to flush queued frames and close the socket with code.
// Only the first call has an effect.
func (s *wsSession) Close(code int, reason string) {
	s.closeOnce.Do(func() {
		s.closeCode = code
		s.closeReason = reason
		close(s.done)
	})
}

func (s *wsSession) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case msg := <-s.send:
			if err := s.write(websocket.TextMessage, msg); err != nil {
				s.logger.Debug("ws write failed", slog.String("error", err.Error()))
				s.Close(search.CloseInternalError, "write failed")
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				s.Close(search.CloseInternalError, "ping failed")
				return
			}
		case <-s.done:
			s.flush()
			_ = s.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(s.closeCode, truncate(s.closeReason, 120)),
				time.Now().Add(wsWriteWait),
			)
			return
		}
	}
}

func (s *wsSession) write(messageType int, payload []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteMessage(messageType, payload)
}

func (s *wsSession) flush() {
	for {
		select {
		case msg := <-s.send:
			if err := s.write(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Server) handleTourSocket(w http.ResponseWriter, r *http.Request) {
	jobID, err := domain.ParseSearchJobID(r.PathValue("jobId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_job_id", err.Error())
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed",
			slog.String("jobId", jobID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	session := newWSSession(conn, jobID, s.defaultPageSize, s.logger)
	metrics.ActiveViewers.Inc()
	defer metrics.ActiveViewers.Dec()
	go session.writePump()

	snapshot := s.registry.Subscribe(jobID, session)
	defer func() {
		s.registry.Unsubscribe(jobID, session.ID())
		session.Close(search.CloseNormal, "")
		session.logger.Debug("ws viewer disconnected")
	}()
	session.logger.Debug("ws viewer connected", slog.Int("viewers", snapshot.Viewers))

	if err := session.start(initialFrames(session, snapshot)...); err != nil {
		session.logger.Warn("ws initial frames not sent", slog.String("error", err.Error()))
		return
	}
	s.readLoop(r.Context(), session)
}

// initialFrames is the last known status and, for a finished job, the
// viewer's page of results.
func initialFrames(session *wsSession, snapshot search.JobSnapshot) [][]byte {
	total := snapshot.TotalHotels()
	frames := make([][]byte, 0, 2)
	if payload, err := statusFrame(snapshot.Status, search.ViewerPagination(session, total, -1)); err == nil {
		frames = append(frames, payload)
	}
	if snapshot.Finished {
		page, size := search.ClampViewerPage(session, total)
		items := domain.PageWindow(snapshot.Hotels, page, size)
		if payload, err := pageResultsFrame(snapshot.Status, items, domain.NewPagination(page, size, total, len(items))); err == nil {
			frames = append(frames, payload)
		}
	}
	return frames
}

func (s *Server) readLoop(ctx context.Context, session *wsSession) {
	conn := session.conn
	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				session.logger.Debug("ws read failed", slog.String("error", err.Error()))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		if messageType != websocket.TextMessage {
			_ = session.sendError("only text frames are supported")
			continue
		}
		cmd, err := parseCommand(data)
		if err != nil {
			if sendErr := session.sendError(err.Error()); sendErr != nil {
				return
			}
			continue
		}
		if !s.handleCommand(ctx, session, cmd) {
			return
		}
	}
}

// handleCommand runs one client command and reports whether the session
// should keep reading.
func (s *Server) handleCommand(ctx context.Context, session *wsSession, cmd wsCommand) bool {
	snapshot := s.jobSnapshot(session.jobID)
	total := snapshot.TotalHotels()

	var err error
	switch cmd.Action {
	case actionChangePage:
		_, size := session.Pagination()
		session.setPagination(domain.ClampPage(*cmd.Page, domain.TotalPages(total, size)), size)
		err = s.sendViewerPage(ctx, session, snapshot, true)
	case actionChangePerPage:
		page, _ := session.Pagination()
		size := domain.ClampPageSize(*cmd.PerPage)
		session.setPagination(domain.ClampPage(page, domain.TotalPages(total, size)), size)
		err = s.sendViewerPage(ctx, session, snapshot, true)
	case actionGetStatus:
		err = session.sendFrame(statusFrame(snapshot.Status, search.ViewerPagination(session, total, -1)))
	case actionGetResults:
		if cmd.Page != nil {
			_, size := session.Pagination()
			session.setPagination(domain.ClampPage(*cmd.Page, domain.TotalPages(total, size)), size)
		}
		err = s.sendViewerPage(ctx, session, snapshot, false)
	case actionCloseConnection:
		_ = session.sendFrame(closingFrame(session.jobID))
		s.registry.Unsubscribe(session.jobID, session.ID())
		session.Close(search.CloseNormal, "closed by client")
		session.logger.Debug("ws viewer requested close")
		return false
	}
	if err != nil {
		session.logger.Debug("ws response not queued",
			slog.String("action", cmd.Action),
			slog.String("error", err.Error()),
		)
		return !errors.Is(err, errSessionClosed)
	}
	return true
}

func (s *Server) jobSnapshot(id domain.SearchJobID) search.JobSnapshot {
	if snapshot, ok := s.registry.Snapshot(id); ok {
		return snapshot
	}
	return search.JobSnapshot{JobID: id, Status: domain.DefaultSearchStatus()}
}

// sendViewerPage sends the viewer's current page. Pages the job has not
// collected yet are fetched from the remote when allowRemote is set.
func (s *Server) sendViewerPage(ctx context.Context, session *wsSession, snapshot search.JobSnapshot, allowRemote bool) error {
	total := snapshot.TotalHotels()
	page, size := search.ClampViewerPage(session, total)
	collected := len(snapshot.Hotels)
	if !allowRemote || collected >= page*size || collected >= total {
		items := domain.PageWindow(snapshot.Hotels, page, size)
		return session.sendFrame(pageResultsFrame(snapshot.Status, items, domain.NewPagination(page, size, total, len(items))))
	}

	fetchCtx, cancel := context.WithTimeout(ctx, wsFetchTimeout)
	defer cancel()
	result, err := s.search.FetchResultPage(fetchCtx, session.jobID, page, size)
	if err != nil {
		session.logger.Warn("ws page fetch failed",
			slog.Int("page", page),
			slog.Int("pageSize", size),
			slog.String("error", err.Error()),
		)
		return session.sendError("failed to load results page, please try again")
	}
	total = max(total, result.Status.HotelsFound)
	return session.sendFrame(pageResultsFrame(snapshot.Status, result.Hotels, domain.NewPagination(page, size, total, len(result.Hotels))))
}
