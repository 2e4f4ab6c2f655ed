package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsCreated       = prometheus.NewCounter(prometheus.CounterOpts{Name: "itinerary_jobs_created_total", Help: "Jobs accepted by POST /generate"})
	JobsCompleted     = prometheus.NewCounter(prometheus.CounterOpts{Name: "itinerary_jobs_completed_total", Help: "Jobs that reached the completed state"})
	JobsFailed        = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "itinerary_jobs_failed_total", Help: "Jobs that reached the failed state"}, []string{"reason"})
	JobsInFlight      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "itinerary_jobs_inflight", Help: "Generation tasks currently running"})
	ValidationRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "itinerary_validation_rejects_total", Help: "Creation requests rejected as invalid"})
	RateLimitRejects  = prometheus.NewCounter(prometheus.CounterOpts{Name: "itinerary_rate_limit_rejects_total", Help: "Requests rejected by rate limiter"})
	QueueDepthGauge   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "itinerary_queue_depth", Help: "Dispatched tasks waiting for a worker"})
	ProviderLatency   = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "itinerary_provider_request_seconds",
		Help:    "Latency of generation provider calls",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"outcome"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsCreated,
			JobsCompleted,
			JobsFailed,
			JobsInFlight,
			ValidationRejects,
			RateLimitRejects,
			QueueDepthGauge,
			ProviderLatency,
		)
	})
	return promhttp.Handler()
}
