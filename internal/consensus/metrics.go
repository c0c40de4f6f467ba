package consensus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts approval activity.
type Metrics struct {
	ApprovalsRecorded prometheus.Counter
	EpochResets       prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		ApprovalsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kairos_consensus_approvals_total",
			Help: "New beneficiary approvals recorded",
		}),
		EpochResets: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kairos_consensus_epoch_resets_total",
			Help: "Claim epochs reset by owners",
		}),
	}
}

func (m *Metrics) IncApprovals() {
	if m == nil {
		return
	}
	m.ApprovalsRecorded.Inc()
}

func (m *Metrics) IncResets() {
	if m == nil {
		return
	}
	m.EpochResets.Inc()
}
