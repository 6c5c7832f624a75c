package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tours",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tours",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	RemoteRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tours",
		Name:      "remote_requests_total",
		Help:      "Total requests to the remote tour search API by operation and result status.",
	}, []string{"operation", "status"})

	RemoteRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tours",
		Name:      "remote_request_duration_seconds",
		Help:      "Remote tour search API request duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"operation"})

	ActiveJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tours",
		Name:      "active_search_jobs",
		Help:      "Search jobs that currently have at least one viewer.",
	})

	ActiveViewers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tours",
		Name:      "active_viewers",
		Help:      "Open WebSocket viewer sessions.",
	})

	MonitorsStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tours",
		Name:      "monitors_started_total",
		Help:      "Total search monitors started.",
	})

	MonitorOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tours",
		Name:      "monitor_outcomes_total",
		Help:      "Search monitor exits by outcome.",
	}, []string{"outcome"})

	BroadcastsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tours",
		Name:      "broadcasts_total",
		Help:      "Monitor broadcasts by update kind.",
	}, []string{"kind"})

	ViewerSendFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tours",
		Name:      "viewer_send_failures_total",
		Help:      "Viewers removed after a failed send.",
	})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tours",
		Name:      "cache_hits_total",
		Help:      "Total number of cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tours",
		Name:      "cache_misses_total",
		Help:      "Total number of cache misses.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RemoteRequestsTotal,
		RemoteRequestDuration,
		ActiveJobs,
		ActiveViewers,
		MonitorsStartedTotal,
		MonitorOutcomesTotal,
		BroadcastsTotal,
		ViewerSendFailuresTotal,
		CacheHitsTotal,
		CacheMissesTotal,
	)
}
