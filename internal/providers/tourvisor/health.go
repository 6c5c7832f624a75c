package tourvisor

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/t3m14/tours-sub000/internal/domain"
	"github.com/t3m14/tours-sub000/internal/metrics"
)

const (
	opSubmit   = "submit"
	opStatus   = "status"
	opResult   = "result"
	opContinue = "continue"
	// actualize.php and actdetail.php
	opActualize       = "actualize"
	opActualizeDetail = "actualize_detail"
)

type operationHealth struct {
	consecutiveFailures int
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastLatency         time.Duration
	lastTimeout         bool
	totalRequests       int64
	totalFailures       int64
	timeoutCount        int64
}

// healthTracker records the outcome of every remote attempt per operation.
type healthTracker struct {
	mu  sync.Mutex
	ops map[string]*operationHealth
}

func newHealthTracker() *healthTracker {
	return &healthTracker{ops: make(map[string]*operationHealth)}
}

func (h *healthTracker) record(operation string, err error, latency time.Duration, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	state := h.ops[operation]
	if state == nil {
		state = &operationHealth{}
		h.ops[operation] = state
	}
	state.totalRequests++
	if latency > 0 {
		state.lastLatency = latency
		metrics.RemoteRequestDuration.WithLabelValues(operation).Observe(latency.Seconds())
	}
	state.lastTimeout = isTimeoutLikeError(err)
	if state.lastTimeout {
		state.timeoutCount++
	}

	if err == nil {
		state.consecutiveFailures = 0
		state.lastError = ""
		state.lastSuccessAt = now
		metrics.RemoteRequestsTotal.WithLabelValues(operation, "ok").Inc()
		return
	}

	state.consecutiveFailures++
	state.totalFailures++
	state.lastFailureAt = now
	state.lastError = err.Error()

	status := "error"
	if state.lastTimeout {
		status = "timeout"
	}
	metrics.RemoteRequestsTotal.WithLabelValues(operation, status).Inc()
}

func (h *healthTracker) diagnostics() []domain.RemoteDiagnostics {
	h.mu.Lock()
	defer h.mu.Unlock()

	items := make([]domain.RemoteDiagnostics, 0, len(h.ops))
	for name, state := range h.ops {
		item := domain.RemoteDiagnostics{
			Operation:           name,
			ConsecutiveFailures: state.consecutiveFailures,
			LastError:           state.lastError,
			LastLatencyMS:       state.lastLatency.Milliseconds(),
			LastTimeout:         state.lastTimeout,
			TotalRequests:       state.totalRequests,
			TotalFailures:       state.totalFailures,
			TimeoutCount:        state.timeoutCount,
		}
		if !state.lastSuccessAt.IsZero() {
			lastSuccessAt := state.lastSuccessAt
			item.LastSuccessAt = &lastSuccessAt
		}
		if !state.lastFailureAt.IsZero() {
			lastFailureAt := state.lastFailureAt
			item.LastFailureAt = &lastFailureAt
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Operation < items[j].Operation
	})
	return items
}

func isTimeoutLikeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "timeout") || strings.Contains(value, "deadline exceeded")
}
