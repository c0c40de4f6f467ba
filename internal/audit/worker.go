package audit

import (
	"context"
	"log/slog"

	"kairos/pkg/platform/circuit"
)

// Sink receives committed audit events, e.g. a Kafka topic.
type Sink interface {
	Publish(ctx context.Context, events ...Event) error
}

const defaultQueueSize = 1024

// Worker buffers events and delivers them to a sink in the background, so
// request paths never wait on the stream. Events are dropped when the buffer
// is full or the sink's circuit is open.
type Worker struct {
	sink    Sink
	inbox   chan Event
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *Metrics
}

type WorkerOption func(*Worker)

func WithQueueSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.inbox = make(chan Event, n)
		}
	}
}

func WithBreaker(b *circuit.Breaker) WorkerOption {
	return func(w *Worker) {
		if b != nil {
			w.breaker = b
		}
	}
}

func WithMetrics(m *Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

func NewWorker(sink Sink, logger *slog.Logger, opts ...WorkerOption) *Worker {
	w := &Worker{
		sink:    sink,
		inbox:   make(chan Event, defaultQueueSize),
		breaker: circuit.New("audit-sink"),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Enqueue implements Dispatcher without blocking.
func (w *Worker) Enqueue(ctx context.Context, events ...Event) {
	for _, e := range events {
		select {
		case w.inbox <- e:
		default:
			w.metrics.IncDropped("queue_full")
			w.logger.WarnContext(ctx, "audit stream queue full, dropping event",
				"capsule_id", e.CapsuleID.String(),
				"entry_id", e.Entry.ID.String(),
			)
		}
	}
}

// Run delivers events until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			w.deliver(ctx, event)
		}
	}
}

func (w *Worker) deliver(ctx context.Context, event Event) {
	if !w.breaker.Allow() {
		w.metrics.IncDropped("circuit_open")
		return
	}
	if err := w.sink.Publish(ctx, event); err != nil {
		_, change := w.breaker.RecordFailure()
		w.metrics.IncDropped("sink_error")
		w.logger.ErrorContext(ctx, "failed to publish audit event",
			"capsule_id", event.CapsuleID.String(),
			"entry_id", event.Entry.ID.String(),
			"error", err,
		)
		if change.Opened {
			w.logger.WarnContext(ctx, "audit sink circuit opened", "breaker", w.breaker.Name())
		}
		return
	}
	w.metrics.IncPublished()
	if _, change := w.breaker.RecordSuccess(); change.Closed {
		w.logger.InfoContext(ctx, "audit sink circuit closed", "breaker", w.breaker.Name())
	}
}
