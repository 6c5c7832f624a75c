package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/t3m14/tours-sub000/internal/domain"
	"github.com/t3m14/tours-sub000/internal/metrics"
)

const broadcastConcurrency = 16

var errMonitorLifetime = errors.New("search monitoring time limit exceeded")

// startMonitorLocked launches the job's monitor. The job mutex must be held.
func (r *Registry) startMonitorLocked(j *jobState) {
	ctx, cancel := context.WithCancel(r.base)
	j.cancel = cancel
	j.done = make(chan struct{})
	done := j.done

	r.wg.Add(1)
	metrics.MonitorsStartedTotal.Inc()
	go func() {
		defer r.wg.Done()
		defer close(done)
		r.runMonitor(ctx, j)
	}()
}

// runMonitor polls the remote job until it finishes, fails, outlives
// MaxLifetime or ctx is cancelled. After every blocking call the monitor
// re-checks ctx, and every registry mutation re-checks it under the job lock,
// so a cancelled monitor never publishes.
func (r *Registry) runMonitor(ctx context.Context, j *jobState) {
	logger := r.logger.With(slog.String("jobId", j.id.String()))
	logger.Info("search monitor started")

	remoteCtx, cancelRemote := context.WithTimeout(ctx, r.cfg.MaxLifetime)
	defer cancelRemote()

	tracker := newPublishTracker(r.cfg.Policy)
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	polls := 0
	for {
		status, err := r.remote.PollStatus(remoteCtx, j.id)
		if ctx.Err() != nil {
			r.monitorCancelled(logger, polls)
			return
		}
		polls++
		if err != nil {
			r.monitorFailed(ctx, j, logger, r.failureCause(remoteCtx, err))
			return
		}
		if status.State == domain.SearchStateError {
			r.monitorFailed(ctx, j, logger, errors.New("remote search reported an error"))
			return
		}

		if !r.publishStatus(ctx, j, status) {
			r.monitorCancelled(logger, polls)
			return
		}

		window, pageSize := viewerDemand(j)
		tracker.usePageSize(pageSize)
		if tracker.shouldPublish(status) {
			hotels, err := r.fetchHotels(remoteCtx, j.id, window)
			if ctx.Err() != nil {
				r.monitorCancelled(logger, polls)
				return
			}
			if err != nil {
				r.monitorFailed(ctx, j, logger, r.failureCause(remoteCtx, err))
				return
			}
			tracker.markPublished(status.HotelsFound)
			if !r.publishResults(ctx, j, status, hotels) {
				r.monitorCancelled(logger, polls)
				return
			}
			logger.Debug("results published",
				slog.Int("hotelsFound", status.HotelsFound),
				slog.Int("hotelsFetched", len(hotels)),
			)
		}

		if status.Finished() {
			r.monitorFinished(ctx, j, logger, status, polls)
			return
		}

		select {
		case <-ctx.Done():
			r.monitorCancelled(logger, polls)
			return
		case <-remoteCtx.Done():
			r.monitorFailed(ctx, j, logger, errMonitorLifetime)
			return
		case <-ticker.C:
		}
	}
}

func (r *Registry) failureCause(remoteCtx context.Context, err error) error {
	if errors.Is(remoteCtx.Err(), context.DeadlineExceeded) {
		return errMonitorLifetime
	}
	return err
}

// viewerDemand scans the current viewers: window is the number of hotels the
// deepest page needs, pageSize the largest page size requested. pageSize is 0
// without viewers.
func viewerDemand(j *jobState) (window, pageSize int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	window = domain.DefaultPageSize
	for _, v := range j.viewers {
		page, size := v.Pagination()
		size = domain.ClampPageSize(size)
		pageSize = max(pageSize, size)
		window = max(window, max(page, 1)*size)
	}
	return window, pageSize
}

// fetchHotels collects the first window hotels of the job in chunks.
func (r *Registry) fetchHotels(ctx context.Context, id domain.SearchJobID, window int) ([]domain.OfferedHotel, error) {
	chunk := min(r.cfg.FetchChunk, window)
	hotels := make([]domain.OfferedHotel, 0, window)
	for page := 1; len(hotels) < window; page++ {
		result, err := r.remote.FetchResultPage(ctx, id, page, chunk)
		if err != nil {
			return nil, err
		}
		hotels = append(hotels, result.Hotels...)
		if len(result.Hotels) < chunk {
			break
		}
	}
	return hotels, nil
}

func (r *Registry) publishStatus(ctx context.Context, j *jobState, status domain.SearchStatus) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if ctx.Err() != nil || j.closed {
		return false
	}
	j.status = status
	total := max(status.HotelsFound, len(j.hotels))
	r.broadcastLocked(j, UpdateStatus, func(v Viewer) Update {
		return Update{Kind: UpdateStatus, Status: status, Pagination: ViewerPagination(v, total, -1)}
	})
	return !j.closed
}

func (r *Registry) publishResults(ctx context.Context, j *jobState, status domain.SearchStatus, hotels []domain.OfferedHotel) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if ctx.Err() != nil || j.closed {
		return false
	}
	j.hotels = hotels
	if status.Finished() {
		// Set together with the final page so a viewer subscribing before
		// monitorFinished still receives it.
		j.finished = true
		j.status = status
	}
	total := max(status.HotelsFound, len(hotels))
	r.broadcastLocked(j, UpdateResults, func(v Viewer) Update {
		page, size := ClampViewerPage(v, total)
		items := domain.PageWindow(hotels, page, size)
		return Update{
			Kind:       UpdateResults,
			Status:     status,
			Hotels:     items,
			Pagination: domain.NewPagination(page, size, total, len(items)),
		}
	})
	return !j.closed
}

// ClampViewerPage returns the viewer's page and page size clamped against total.
func ClampViewerPage(v Viewer, total int) (page, size int) {
	page, size = v.Pagination()
	size = domain.ClampPageSize(size)
	return domain.ClampPage(page, domain.TotalPages(total, size)), size
}

// ViewerPagination describes the viewer's page against total. hotelsOnPage < 0
// derives the count from total.
func ViewerPagination(v Viewer, total, hotelsOnPage int) domain.Pagination {
	page, size := ClampViewerPage(v, total)
	if hotelsOnPage < 0 {
		hotelsOnPage = max(0, min(size, total-(page-1)*size))
	}
	return domain.NewPagination(page, size, total, hotelsOnPage)
}

// broadcastLocked delivers one update per viewer in parallel. A viewer whose
// delivery fails is removed and closed; the others are unaffected.
func (r *Registry) broadcastLocked(j *jobState, kind UpdateKind, build func(Viewer) Update) {
	viewers := j.viewerListLocked()
	if len(viewers) == 0 {
		return
	}

	var (
		failedMu sync.Mutex
		failed   []Viewer
	)
	var g errgroup.Group
	g.SetLimit(broadcastConcurrency)
	for _, v := range viewers {
		g.Go(func() error {
			if err := v.Deliver(build(v)); err != nil {
				failedMu.Lock()
				failed = append(failed, v)
				failedMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	metrics.BroadcastsTotal.WithLabelValues(string(kind)).Inc()

	for _, v := range failed {
		j.removeViewerLocked(v.ID())
		metrics.ViewerSendFailuresTotal.Inc()
		r.logger.Warn("viewer dropped after failed send",
			slog.String("jobId", j.id.String()),
			slog.String("viewerId", v.ID()),
		)
		go v.Close(CloseInternalError, "send failed")
	}
	if len(failed) > 0 && len(j.viewers) == 0 {
		r.discardLocked(j)
	}
}

func (r *Registry) monitorFinished(ctx context.Context, j *jobState, logger *slog.Logger, status domain.SearchStatus, polls int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if ctx.Err() != nil || j.closed {
		return
	}
	j.finished = true
	j.status = status
	metrics.MonitorOutcomesTotal.WithLabelValues("finished").Inc()
	logger.Info("search monitor finished",
		slog.Int("hotelsFound", status.HotelsFound),
		slog.Int("toursFound", status.ToursFound),
		slog.Int("polls", polls),
	)
}

// monitorFailed sends one error frame to every viewer and removes the job.
// Sockets stay open unless CloseOnError is set.
func (r *Registry) monitorFailed(ctx context.Context, j *jobState, logger *slog.Logger, cause error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if ctx.Err() != nil || j.closed {
		return
	}

	message := userMessage(cause)
	status := j.status
	viewers := j.viewerListLocked()
	r.broadcastLocked(j, UpdateError, func(Viewer) Update {
		return Update{Kind: UpdateError, Status: status, Message: message}
	})
	r.discardLocked(j)
	metrics.MonitorOutcomesTotal.WithLabelValues("errored").Inc()
	logger.Warn("search monitor failed", slog.String("error", cause.Error()))

	if r.cfg.CloseOnError {
		for _, v := range viewers {
			go v.Close(CloseInternalError, message)
		}
	}
}

func (r *Registry) monitorCancelled(logger *slog.Logger, polls int) {
	metrics.MonitorOutcomesTotal.WithLabelValues("cancelled").Inc()
	logger.Debug("search monitor cancelled", slog.Int("polls", polls))
}

func userMessage(cause error) string {
	switch {
	case errors.Is(cause, errMonitorLifetime):
		return "search took too long, please start a new search"
	case errors.Is(cause, domain.ErrRemoteUnavailable):
		return "tour search service is unavailable, please start a new search"
	default:
		return fmt.Sprintf("search failed: %v", cause)
	}
}
