package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks audit stream delivery. A nil *Metrics is a no-op.
type Metrics struct {
	Published prometheus.Counter
	Dropped   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Published: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kairos_audit_events_published_total",
			Help: "Audit events delivered to the audit stream",
		}),
		Dropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kairos_audit_events_dropped_total",
			Help: "Audit events not delivered to the audit stream, by reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) IncPublished() {
	if m == nil {
		return
	}
	m.Published.Inc()
}

func (m *Metrics) IncDropped(reason string) {
	if m == nil {
		return
	}
	m.Dropped.WithLabelValues(reason).Inc()
}
