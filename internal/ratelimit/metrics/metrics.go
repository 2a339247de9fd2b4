package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Checks      *prometheus.CounterVec
	Exempted    prometheus.Counter
	StoreErrors *prometheus.CounterVec
}

// New registers the rate limit metrics with reg; nil leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Checks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "repairhub_ratelimit_checks_total",
			Help: "Rate limit decisions by policy and outcome",
		}, []string{"policy", "outcome"}),
		Exempted: factory.NewCounter(prometheus.CounterOpts{
			Name: "repairhub_ratelimit_exempted_total",
			Help: "Requests that bypassed the limiter through the exemption predicate",
		}),
		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "repairhub_ratelimit_store_errors_total",
			Help: "Counter store failures; the request was allowed through",
		}, []string{"policy"}),
	}
}

func (m *Metrics) ObserveCheck(policy string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	m.Checks.WithLabelValues(policy, outcome).Inc()
}

func (m *Metrics) IncExempted() {
	if m == nil {
		return
	}
	m.Exempted.Inc()
}

func (m *Metrics) IncStoreError(policy string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(policy).Inc()
}
