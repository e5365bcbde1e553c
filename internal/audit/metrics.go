package audit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts audit delivery outcomes. Failed and Dropped entries are
// compliance gaps; alerting on them is the operational counterpart of
// the local warning log.
type Metrics struct {
	Emitted prometheus.Counter
	Failed  prometheus.Counter
	Dropped prometheus.Counter
}

// NewMetrics creates and registers audit delivery metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Emitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hms_audit_entries_emitted_total",
			Help: "Audit entries successfully delivered to the audit backend.",
		}),
		Failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hms_audit_entries_failed_total",
			Help: "Audit entries that exhausted delivery retries.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hms_audit_entries_dropped_total",
			Help: "Audit entries dropped because the delivery queue was full.",
		}),
	}
	reg.MustRegister(m.Emitted, m.Failed, m.Dropped)
	return m
}
