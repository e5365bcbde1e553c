package access

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes access-control observability: decision outcomes per
// module and the override lifecycle.
type Metrics struct {
	Decisions             *prometheus.CounterVec
	OverrideActivations   prometheus.Counter
	OverrideDeactivations prometheus.Counter
	OverrideExpiries      prometheus.Counter
	OverrideActive        prometheus.Gauge
}

// NewMetrics creates and registers access-control metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hms_access_decisions_total",
			Help: "Access gate decisions by module and outcome.",
		}, []string{"module", "outcome"}),
		OverrideActivations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hms_override_activations_total",
			Help: "Emergency override activations.",
		}),
		OverrideDeactivations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hms_override_deactivations_total",
			Help: "Emergency overrides ended manually before expiry.",
		}),
		OverrideExpiries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hms_override_expiries_total",
			Help: "Emergency overrides ended by the expiry timer.",
		}),
		OverrideActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hms_override_active",
			Help: "Whether an emergency override is currently in force.",
		}),
	}
	reg.MustRegister(
		m.Decisions,
		m.OverrideActivations,
		m.OverrideDeactivations,
		m.OverrideExpiries,
		m.OverrideActive,
	)
	return m
}
