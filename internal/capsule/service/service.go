// Package service implements the capsule lifecycle: drafting, sealing,
// liveness, unlock evaluation and claims.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kairos/internal/capsule/metrics"
	"kairos/internal/capsule/models"
	id "kairos/pkg/domain"
	dErrors "kairos/pkg/domain-errors"
	"kairos/pkg/platform/sentinel"
	"kairos/pkg/requestcontext"
)

// Store persists capsules. Update is a compare-and-swap on Version.
type Store interface {
	Create(ctx context.Context, c *models.Capsule) error
	FindByID(ctx context.Context, capsuleID id.CapsuleID) (*models.Capsule, error)
	FindByIDs(ctx context.Context, capsuleIDs []id.CapsuleID) ([]*models.Capsule, error)
	ListByOwner(ctx context.Context, owner id.ActorID) ([]*models.Capsule, error)
	Update(ctx context.Context, c *models.Capsule) error
	Delete(ctx context.Context, capsuleID id.CapsuleID) error
}

// Sealer encrypts and decrypts payloads under a passphrase.
type Sealer interface {
	Seal(plaintext []byte, passphrase string) (string, error)
	Open(blob string, passphrase string) ([]byte, error)
}

// BlobStore keeps sealed blobs.
type BlobStore interface {
	Put(ctx context.Context, blobID string, data []byte) error
	Get(ctx context.Context, blobID string) ([]byte, error)
	Delete(ctx context.Context, blobID string) error
}

// Approvals is the slice of the consensus tracker the lifecycle needs.
type Approvals interface {
	Count(ctx context.Context, capsuleID id.CapsuleID) (int, error)
	Reset(ctx context.Context, capsuleID id.CapsuleID) (int64, error)
	Delete(ctx context.Context, capsuleID id.CapsuleID) error
}

// AuditRecorder stages entries on a capsule and publishes them after commit.
type AuditRecorder interface {
	Record(ctx context.Context, c *models.Capsule, action string, actor id.ActorID, status models.AuditStatus) models.AuditEntry
	Publish(ctx context.Context, c *models.Capsule, entries ...models.AuditEntry)
}

const (
	maxTitleLength       = 120
	maxDescriptionLength = 2000
	maxBeneficiaries     = 32
	maxSecretBytes       = 256 << 10
	defaultPingBatchSize = 50
	defaultPingWorkers   = 8
)

// Service orchestrates capsules, their blobs, approvals and audit trail.
type Service struct {
	capsules     Store
	tx           CapsuleStoreTx
	sealer       Sealer
	blobs        BlobStore
	approvals    Approvals
	audit        AuditRecorder
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	pingWorkers  int
	maxPingBatch int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTx(tx CapsuleStoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithPingConcurrency bounds batch ping parallelism and size.
func WithPingConcurrency(workers, maxBatch int) Option {
	return func(s *Service) {
		if workers > 0 {
			s.pingWorkers = workers
		}
		if maxBatch > 0 {
			s.maxPingBatch = maxBatch
		}
	}
}

// New constructs a Service. Without WithTx it serialises writes in process.
func New(capsules Store, sealer Sealer, blobs BlobStore, approvals Approvals, recorder AuditRecorder, opts ...Option) *Service {
	s := &Service{
		capsules:     capsules,
		sealer:       sealer,
		blobs:        blobs,
		approvals:    approvals,
		audit:        recorder,
		logger:       slog.Default(),
		tracer:       otel.Tracer("kairos/capsule"),
		pingWorkers:  defaultPingWorkers,
		maxPingBatch: defaultPingBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = NewShardedTx(capsules, DefaultTxTimeout)
	}
	return s
}

// Capsules exposes the store for collaborators that share its transactions.
func (s *Service) Capsules() Store { return s.capsules }

// Tx exposes the transaction runner for collaborators such as consensus.
func (s *Service) Tx() CapsuleStoreTx { return s.tx }

// ComputeHealth is the pure liveness view of c at now.
func (s *Service) ComputeHealth(c *models.Capsule, now time.Time) models.Health {
	return models.ComputeHealth(c, now)
}

// load fetches a capsule inside a transaction and translates store facts.
func load(ctx context.Context, store Store, capsuleID id.CapsuleID) (*models.Capsule, error) {
	c, err := store.FindByID(ctx, capsuleID)
	if err != nil {
		return nil, translate(err, "failed to load capsule")
	}
	return c, nil
}

// translate maps store and infrastructure facts onto domain errors.
func translate(err error, msg string) error {
	if err == nil {
		return nil
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "capsule not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "capsule was modified concurrently, retry")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "storage is unavailable")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

// translateBlob maps blob store facts. Remote failures of any kind are
// reported as unavailable storage.
func translateBlob(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeIntegrity, "wrong passphrase or corrupted data")
	}
	return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "blob storage is unavailable")
}

func requireActor(ctx context.Context) (id.ActorID, error) {
	actor := requestcontext.Actor(ctx)
	if actor == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return actor, nil
}

func requireOwner(c *models.Capsule, actor id.ActorID) error {
	if c.Owner != actor {
		return dErrors.New(dErrors.CodeForbidden, "only the capsule owner may do this")
	}
	return nil
}

// requirePinger admits the owner and proxy guardians, whose only power is to
// attest that the owner is alive.
func requirePinger(c *models.Capsule, actor id.ActorID) error {
	if c.Owner == actor {
		return nil
	}
	if b, ok := beneficiaryFor(c, actor); ok && b.Role == models.RoleProxyGuardian {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "only the owner or a proxy guardian may ping")
}

func (s *Service) startSpan(ctx context.Context, name string, capsuleID id.CapsuleID) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, name)
	if !capsuleID.IsNil() {
		span.SetAttributes(attribute.String("capsule.id", capsuleID.String()))
	}
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

func (s *Service) logFailure(ctx context.Context, msg string, capsuleID id.CapsuleID, err error) {
	s.logger.ErrorContext(ctx, msg,
		"capsule_id", capsuleID.String(),
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}
