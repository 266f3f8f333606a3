package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsSubmitted      = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_submitted_total", Help: "Jobs accepted and published to the submissions channel"})
	JobsCompleted      = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_completed_total", Help: "Jobs that reached completed"})
	JobsFailed         = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_failed_total", Help: "Jobs that reached failed"})
	CategoriesFetched  = prometheus.NewCounter(prometheus.CounterOpts{Name: "categories_fetched_total", Help: "Per-category fetches that succeeded"})
	FetchFailures      = prometheus.NewCounter(prometheus.CounterOpts{Name: "category_fetch_failures_total", Help: "Per-category fetches that failed"})
	ContentForwarded   = prometheus.NewCounter(prometheus.CounterOpts{Name: "content_forwarded_total", Help: "Content units published on the summaries channel"})
	EventStreamsActive = prometheus.NewGauge(prometheus.GaugeOpts{Name: "event_streams_active", Help: "Open live-update event streams"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsSubmitted,
			JobsCompleted,
			JobsFailed,
			CategoriesFetched,
			FetchFailures,
			ContentForwarded,
			EventStreamsActive,
		)
	})
	return promhttp.Handler()
}
