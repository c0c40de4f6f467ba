package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Metrics provides observability for the capsule lifecycle.
// Tracks lifecycle counts, state transitions and operation durations.
type Metrics struct {
	CapsulesCreated   prometheus.Counter
	CapsulesSealed    prometheus.Counter
	Pings             prometheus.Counter
	StateTransitions  *prometheus.CounterVec
	ClaimFailures     prometheus.Counter
	OperationDuration *prometheus.HistogramVec
}

// New creates a new Metrics instance with all capsule metrics registered.
func New() *Metrics {
	return &Metrics{
		CapsulesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kairos_capsules_created_total",
			Help: "Total number of capsule drafts created",
		}),
		CapsulesSealed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kairos_capsules_sealed_total",
			Help: "Total number of capsules sealed",
		}),
		Pings: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kairos_capsule_pings_total",
			Help: "Total number of accepted liveness pings",
		}),
		StateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kairos_capsule_state_transitions_total",
			Help: "Capsule liveness state transitions by target state",
		}, []string{"state"}),
		ClaimFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kairos_capsule_claim_failures_total",
			Help: "Claim attempts rejected by integrity checks",
		}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kairos_capsule_operation_duration_seconds",
			Help:    "Duration of capsule lifecycle operations",
			Buckets: durationBuckets,
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementCreated() {
	if m == nil {
		return
	}
	m.CapsulesCreated.Inc()
}

func (m *Metrics) IncrementSealed() {
	if m == nil {
		return
	}
	m.CapsulesSealed.Inc()
}

func (m *Metrics) IncrementPings() {
	if m == nil {
		return
	}
	m.Pings.Inc()
}

// IncrementTransition records a move into state.
func (m *Metrics) IncrementTransition(state string) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(state).Inc()
}

func (m *Metrics) IncrementClaimFailures() {
	if m == nil {
		return
	}
	m.ClaimFailures.Inc()
}

// ObserveOperation records the duration of a lifecycle operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
