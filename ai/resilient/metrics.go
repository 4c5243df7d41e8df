package resilient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	calls    *prometheus.CounterVec
	retries  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	m := &metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "papermill",
			Subsystem: "collaborator",
			Name:      "calls_total",
			Help:      "Collaborator calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "papermill",
			Subsystem: "collaborator",
			Name:      "retries_total",
			Help:      "Collaborator attempts that were retried.",
		}, []string{"operation"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "papermill",
			Subsystem: "collaborator",
			Name:      "call_duration_seconds",
			Help:      "Wall time of collaborator calls including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	reg.MustRegister(m.calls, m.retries, m.duration)
	return m
}

func (m *metrics) observe(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case IsCircuitOpen(err):
		outcome = "circuit_open"
	default:
		outcome = "error"
	}
	m.calls.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func (m *metrics) retried(operation string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(operation).Inc()
}
