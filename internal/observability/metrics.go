package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the real Prometheus collectors exposed at /metrics.
// Besides the HTTP request series, the worker and queue fields mirror
// quantities the dispatcher's own invariants care about (I1, I2, I5),
// so scraping this endpoint gives an operator a live view of the same
// numbers /status reports synchronously.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	JobsSubmittedTotal  *prometheus.CounterVec
	JobsCompletedTotal  *prometheus.CounterVec
	WorkersActive       prometheus.Gauge
	WorkersCapacity     prometheus.Gauge
	QueueDepth          prometheus.Gauge
	PersistenceFailures *prometheus.CounterVec
}

// NewMetrics builds the dispatcher's Prometheus collectors; MustRegister
// registers them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factotum_http_requests_total",
			Help: "Total HTTP requests handled, by method/path/status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "factotum_http_request_duration_seconds",
			Help: "HTTP request latency in seconds.",
		}, []string{"method", "path", "status"}),
		JobsSubmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factotum_jobs_submitted_total",
			Help: "Total job submissions admitted to the queue.",
		}, []string{"job_name"}),
		JobsCompletedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factotum_jobs_completed_total",
			Help: "Total jobs that reached the DONE state, by outcome.",
		}, []string{"outcome"}),
		WorkersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "factotum_workers_active",
			Help: "Workers currently executing a job (invariant I1 <= capacity).",
		}),
		WorkersCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "factotum_workers_capacity",
			Help: "Configured max_workers.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "factotum_queue_depth",
			Help: "Jobs currently waiting in the dispatcher queue.",
		}),
		PersistenceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factotum_persistence_failures_total",
			Help: "Store writes that failed; advisory only, never blocks admission.",
		}, []string{"state"}),
	}
}

// MustRegister registers every collector against reg.
func (m *Metrics) MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.JobsSubmittedTotal,
		m.JobsCompletedTotal,
		m.WorkersActive,
		m.WorkersCapacity,
		m.QueueDepth,
		m.PersistenceFailures,
	)
}
