package bench

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors updated by a Runner.
type Metrics struct {
	tasks    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	final    *prometheus.HistogramVec
	failures *prometheus.CounterVec
	inflight prometheus.Gauge
}

// NewMetrics registers the runner collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// tasks counts finished tasks by status and category
		tasks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "prowrite_tasks_total",
			Help: "Finished benchmark tasks by status and category",
		}, []string{"status", "category"}),

		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prowrite_task_duration_seconds",
			Help:    "Wall time to generate and score one task",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4m
		}, []string{"category"}),

		final: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prowrite_final_score",
			Help:    "Final task scores",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		}, []string{"category"}),

		failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "prowrite_critical_failures_total",
			Help: "Critical failures detected by predicate",
		}, []string{"predicate"}),

		inflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "prowrite_tasks_in_flight",
			Help: "Tasks currently being generated or scored",
		}),
	}
}

func (m *Metrics) started() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Metrics) observe(r TaskResult, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inflight.Dec()
	category := string(r.Category)
	m.tasks.WithLabelValues(string(r.Status), category).Inc()
	m.duration.WithLabelValues(category).Observe(elapsed.Seconds())
	if r.Final != nil {
		m.final.WithLabelValues(category).Observe(*r.Final)
	}
	for _, f := range r.Failures {
		m.failures.WithLabelValues(f).Inc()
	}
}
