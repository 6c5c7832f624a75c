package search

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/t3m14/tours-sub000/internal/domain"
	"github.com/t3m14/tours-sub000/internal/metrics"
)

// WebSocket close codes used when the registry ends a viewer session.
const (
	CloseNormal        = 1000
	CloseInternalError = 1011
)

// RemoteSearch is the part of the remote client the monitor needs.
type RemoteSearch interface {
	PollStatus(ctx context.Context, id domain.SearchJobID) (domain.SearchStatus, error)
	FetchResultPage(ctx context.Context, id domain.SearchJobID, page, pageSize int) (domain.ResultPage, error)
}

type UpdateKind string

const (
	UpdateStatus  UpdateKind = "status"
	UpdateResults UpdateKind = "page_results"
	UpdateError   UpdateKind = "error"
)

// Update is one frame of monitor output already tailored to a single viewer.
type Update struct {
	Kind       UpdateKind
	Status     domain.SearchStatus
	Hotels     []domain.OfferedHotel
	Pagination domain.Pagination
	Message    string
}

// Viewer is a subscriber of one job. Deliver must not block: implementations
// queue the update or fail.
type Viewer interface {
	ID() string
	Pagination() (page, pageSize int)
	Deliver(update Update) error
	Close(code int, reason string)
}

// JobSnapshot is a copy of the registry's view of a job.
type JobSnapshot struct {
	JobID    domain.SearchJobID
	Status   domain.SearchStatus
	Hotels   []domain.OfferedHotel
	Finished bool
	Viewers  int
}

// TotalHotels is the best known result count of the job.
func (s JobSnapshot) TotalHotels() int {
	return max(s.Status.HotelsFound, len(s.Hotels))
}

type jobState struct {
	mu      sync.Mutex
	id      domain.SearchJobID
	viewers map[string]Viewer
	order   []string

	cancel context.CancelFunc
	done   chan struct{}

	status   domain.SearchStatus
	hotels   []domain.OfferedHotel
	finished bool
	// closed marks a job that has left the registry table.
	closed bool
}

func (j *jobState) snapshotLocked() JobSnapshot {
	return JobSnapshot{
		JobID:    j.id,
		Status:   j.status,
		Hotels:   j.hotels,
		Finished: j.finished,
		Viewers:  len(j.viewers),
	}
}

func (j *jobState) viewerListLocked() []Viewer {
	items := make([]Viewer, 0, len(j.order))
	for _, id := range j.order {
		if v, ok := j.viewers[id]; ok {
			items = append(items, v)
		}
	}
	return items
}

func (j *jobState) removeViewerLocked(viewerID string) bool {
	if _, ok := j.viewers[viewerID]; !ok {
		return false
	}
	delete(j.viewers, viewerID)
	for i, id := range j.order {
		if id == viewerID {
			j.order = append(j.order[:i], j.order[i+1:]...)
			break
		}
	}
	return true
}

func (j *jobState) monitorRunningLocked() bool {
	if j.done == nil {
		return false
	}
	select {
	case <-j.done:
		return false
	default:
		return true
	}
}

// MonitorConfig tunes the per-job background monitor.
type MonitorConfig struct {
	PollInterval time.Duration
	MaxLifetime  time.Duration
	Policy       PublishPolicy
	// FetchChunk is the page size used when collecting the hotels viewers need.
	FetchChunk int
	// CloseOnError closes viewer sockets with 1011 after the error frame.
	CloseOnError bool
}

func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		PollInterval: 2 * time.Second,
		MaxLifetime:  30 * time.Minute,
		Policy:       DefaultPublishPolicy(),
		FetchChunk:   domain.MaxPageSize,
	}
}

type RegistryOption func(*Registry)

func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMonitorConfig(cfg MonitorConfig) RegistryOption {
	return func(r *Registry) {
		if cfg.PollInterval > 0 {
			r.cfg.PollInterval = cfg.PollInterval
		}
		if cfg.MaxLifetime > 0 {
			r.cfg.MaxLifetime = cfg.MaxLifetime
		}
		if cfg.FetchChunk > 0 {
			r.cfg.FetchChunk = min(cfg.FetchChunk, domain.MaxPageSize)
		}
		if cfg.Policy != (PublishPolicy{}) {
			r.cfg.Policy = cfg.Policy
		}
		r.cfg.CloseOnError = cfg.CloseOnError
	}
}

// Registry owns every active job and its monitor. A job exists exactly while
// it has viewers; the monitor is started by the first viewer and cancelled by
// the last one.
//
// Lock order: the table mutex is never held while a job mutex is acquired.
type Registry struct {
	remote RemoteSearch
	cfg    MonitorConfig
	logger *slog.Logger

	mu   sync.Mutex
	jobs map[domain.SearchJobID]*jobState
	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

func NewRegistry(remote RemoteSearch, opts ...RegistryOption) *Registry {
	base, stop := context.WithCancel(context.Background())
	r := &Registry{
		remote: remote,
		cfg:    DefaultMonitorConfig(),
		logger: slog.Default(),
		jobs:   make(map[domain.SearchJobID]*jobState),
		base:   base,
		stop:   stop,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe registers a viewer under a job, creating the job and starting its
// monitor when this is the first viewer. The returned snapshot is the state
// the viewer should be shown immediately.
func (r *Registry) Subscribe(id domain.SearchJobID, viewer Viewer) JobSnapshot {
	for {
		j := r.lookupOrCreate(id)

		j.mu.Lock()
		if j.closed {
			// Lost a race with the last viewer leaving; the table no longer holds j.
			j.mu.Unlock()
			continue
		}
		if _, exists := j.viewers[viewer.ID()]; !exists {
			j.order = append(j.order, viewer.ID())
		}
		j.viewers[viewer.ID()] = viewer
		if !j.finished && !j.monitorRunningLocked() {
			r.startMonitorLocked(j)
		}
		snapshot := j.snapshotLocked()
		j.mu.Unlock()

		r.logger.Debug("viewer subscribed",
			slog.String("jobId", id.String()),
			slog.String("viewerId", viewer.ID()),
			slog.Int("viewers", snapshot.Viewers),
		)
		return snapshot
	}
}

func (r *Registry) lookupOrCreate(id domain.SearchJobID) *jobState {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.jobs[id]
	if j == nil {
		j = &jobState{
			id:      id,
			viewers: make(map[string]Viewer),
			status:  domain.DefaultSearchStatus(),
		}
		r.jobs[id] = j
		metrics.ActiveJobs.Inc()
	}
	return j
}

func (r *Registry) lookup(id domain.SearchJobID) *jobState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id]
}

// Unsubscribe removes a viewer. Removing the last viewer cancels the monitor
// and discards the job.
func (r *Registry) Unsubscribe(id domain.SearchJobID, viewerID string) {
	j := r.lookup(id)
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.removeViewerLocked(viewerID) {
		return
	}
	r.logger.Debug("viewer unsubscribed",
		slog.String("jobId", id.String()),
		slog.String("viewerId", viewerID),
		slog.Int("viewers", len(j.viewers)),
	)
	if len(j.viewers) == 0 {
		r.discardLocked(j)
	}
}

// discardLocked cancels the job's monitor and drops it from the table.
func (r *Registry) discardLocked(j *jobState) {
	if j.closed {
		return
	}
	j.closed = true
	if j.cancel != nil {
		j.cancel()
	}
	r.mu.Lock()
	if r.jobs[j.id] == j {
		delete(r.jobs, j.id)
		metrics.ActiveJobs.Dec()
	}
	r.mu.Unlock()
	r.logger.Debug("search job discarded", slog.String("jobId", j.id.String()))
}

// Snapshot returns the current state of a job.
func (r *Registry) Snapshot(id domain.SearchJobID) (JobSnapshot, bool) {
	j := r.lookup(id)
	if j == nil {
		return JobSnapshot{}, false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return JobSnapshot{}, false
	}
	return j.snapshotLocked(), true
}

// HasMonitor reports whether a live monitor is running for the job.
func (r *Registry) HasMonitor(id domain.SearchJobID) bool {
	j := r.lookup(id)
	if j == nil {
		return false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return !j.closed && j.monitorRunningLocked()
}

func (r *Registry) Stats() domain.ConnectionStats {
	r.mu.Lock()
	jobs := make([]*jobState, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.Unlock()

	stats := domain.ConnectionStats{Jobs: make(map[domain.SearchJobID]int, len(jobs))}
	for _, j := range jobs {
		j.mu.Lock()
		if !j.closed {
			stats.Jobs[j.id] = len(j.viewers)
			stats.TotalViewers += len(j.viewers)
		}
		j.mu.Unlock()
	}
	return stats
}

// CloseJob closes every viewer of a job with a normal closure and discards
// the job. It returns the number of viewers closed.
func (r *Registry) CloseJob(id domain.SearchJobID, reason string) int {
	j := r.lookup(id)
	if j == nil {
		return 0
	}
	j.mu.Lock()
	viewers := j.viewerListLocked()
	j.viewers = make(map[string]Viewer)
	j.order = nil
	r.discardLocked(j)
	j.mu.Unlock()

	for _, v := range viewers {
		v.Close(CloseNormal, reason)
	}
	r.logger.Info("search connections closed",
		slog.String("jobId", id.String()),
		slog.Int("viewers", len(viewers)),
	)
	return len(viewers)
}

// Shutdown closes every viewer, cancels all monitors and waits for them to
// exit or for ctx to expire.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	jobs := make([]*jobState, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.Unlock()

	for _, j := range jobs {
		j.mu.Lock()
		viewers := j.viewerListLocked()
		j.viewers = make(map[string]Viewer)
		j.order = nil
		r.discardLocked(j)
		j.mu.Unlock()
		for _, v := range viewers {
			v.Close(CloseNormal, "server shutting down")
		}
	}
	r.stop()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
