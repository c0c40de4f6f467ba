// Package audit appends entries to a capsule's audit log and streams committed
// entries to an optional external sink.
package audit

import (
	"context"
	"log/slog"

	"kairos/internal/capsule/models"
	id "kairos/pkg/domain"
	"kairos/pkg/requestcontext"
)

// Event is one committed audit entry as streamed to sinks.
type Event struct {
	CapsuleID id.CapsuleID      `json:"capsuleId"`
	Owner     id.ActorID        `json:"owner"`
	RequestID string            `json:"requestId,omitempty"`
	Entry     models.AuditEntry `json:"entry"`
}

// Dispatcher hands committed events to background delivery.
type Dispatcher interface {
	Enqueue(ctx context.Context, events ...Event)
}

// Recorder writes entries into capsules. It holds no state of its own.
type Recorder struct {
	logger     *slog.Logger
	dispatcher Dispatcher
}

type Option func(*Recorder)

// WithDispatcher streams committed entries through d.
func WithDispatcher(d Dispatcher) Option {
	return func(r *Recorder) {
		r.dispatcher = d
	}
}

func NewRecorder(logger *slog.Logger, opts ...Option) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record prepends a new entry to c.AuditLog and returns it. The entry becomes
// durable only when the caller commits c.
func (r *Recorder) Record(ctx context.Context, c *models.Capsule, action string, actor id.ActorID, status models.AuditStatus) models.AuditEntry {
	entry := models.AuditEntry{
		ID:        id.NewAuditEntryID(),
		Timestamp: requestcontext.Now(ctx),
		Action:    action,
		Actor:     actor,
		Status:    status,
	}
	log := make([]models.AuditEntry, 0, len(c.AuditLog)+1)
	log = append(log, entry)
	c.AuditLog = append(log, c.AuditLog...)
	return entry
}

// Publish logs committed entries and hands them to the dispatcher. It never
// fails; delivery problems are the dispatcher's to report.
func (r *Recorder) Publish(ctx context.Context, c *models.Capsule, entries ...models.AuditEntry) {
	if len(entries) == 0 {
		return
	}
	requestID := requestcontext.RequestID(ctx)
	events := make([]Event, 0, len(entries))
	for _, e := range entries {
		r.logger.InfoContext(ctx, e.Action,
			"log_type", "audit",
			"capsule_id", c.ID.String(),
			"entry_id", e.ID.String(),
			"actor", e.Actor.String(),
			"status", string(e.Status),
			"request_id", requestID,
		)
		events = append(events, Event{CapsuleID: c.ID, Owner: c.Owner, RequestID: requestID, Entry: e})
	}
	if r.dispatcher != nil {
		r.dispatcher.Enqueue(ctx, events...)
	}
}
