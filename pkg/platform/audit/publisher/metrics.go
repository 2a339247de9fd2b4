package publisher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the trail's write path.
type Metrics struct {
	appended       *prometheus.CounterVec
	appendFailures *prometheus.CounterVec
	appendLatency  prometheus.Histogram
}

// NewMetrics registers the audit metrics with reg. A nil reg builds
// unregistered collectors, which keeps tests free of global state.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		appended: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "repairhub_audit_events_appended_total",
			Help: "Audit events made durable, by resource and status",
		}, []string{"resource", "status"}),
		appendFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "repairhub_audit_append_failures_total",
			Help: "Audit appends that failed to persist, by resource",
		}, []string{"resource"}),
		appendLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "repairhub_audit_append_duration_seconds",
			Help:    "Time spent persisting one audit event",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) observeAppend(resource, status string, seconds float64) {
	if m == nil {
		return
	}
	m.appended.WithLabelValues(resource, status).Inc()
	m.appendLatency.Observe(seconds)
}

func (m *Metrics) incFailure(resource string) {
	if m == nil {
		return
	}
	m.appendFailures.WithLabelValues(resource).Inc()
}
