// Package consensus tracks beneficiary approvals toward THRESHOLD rules.
// Approvals live outside the capsule, grouped by claim epoch; a reset starts
// a new epoch and discards the old approvals.
package consensus

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"kairos/internal/capsule/models"
	capsulesvc "kairos/internal/capsule/service"
	"kairos/internal/consensus/store"
	"kairos/internal/unlock"
	id "kairos/pkg/domain"
	dErrors "kairos/pkg/domain-errors"
	"kairos/pkg/platform/sentinel"
	"kairos/pkg/requestcontext"
)

// Store persists consensus records.
type Store interface {
	Approve(ctx context.Context, capsuleID id.CapsuleID, beneficiaryID id.BeneficiaryID, at time.Time) (added bool, count int, err error)
	Get(ctx context.Context, capsuleID id.CapsuleID) (store.Record, error)
	Count(ctx context.Context, capsuleID id.CapsuleID) (int, error)
	Reset(ctx context.Context, capsuleID id.CapsuleID) (int64, error)
	Delete(ctx context.Context, capsuleID id.CapsuleID) error
}

// Approval is one beneficiary's approval in the current epoch.
type Approval struct {
	BeneficiaryID id.BeneficiaryID `json:"beneficiaryId"`
	ApprovedAt    time.Time        `json:"approvedAt"`
}

// State is the consensus view of a capsule.
type State struct {
	CapsuleID            id.CapsuleID `json:"capsuleId"`
	Epoch                int64        `json:"epoch"`
	ApprovalsReceived    int          `json:"approvalsReceived"`
	TotalApprovalsNeeded int          `json:"totalApprovalsNeeded"`
	Approvals            []Approval   `json:"approvals"`
}

type Service struct {
	store    Store
	capsules capsulesvc.Store
	tx       capsulesvc.CapsuleStoreTx
	audit    capsulesvc.AuditRecorder
	logger   *slog.Logger
	metrics  *Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New wires the tracker to the capsule store and its transaction runner so
// approval entries land in the capsule's audit log atomically.
func New(st Store, capsules capsulesvc.Store, tx capsulesvc.CapsuleStoreTx, recorder capsulesvc.AuditRecorder, opts ...Option) *Service {
	s := &Service{
		store:    st,
		capsules: capsules,
		tx:       tx,
		audit:    recorder,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordApproval adds the calling beneficiary's approval to the current
// epoch and returns the approval count. Approving twice in an epoch is a
// no-op.
func (s *Service) RecordApproval(ctx context.Context, capsuleID id.CapsuleID, beneficiaryID id.BeneficiaryID) (int, error) {
	actor := requestcontext.Actor(ctx)
	if actor == "" {
		return 0, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	now := requestcontext.Now(ctx)

	var (
		count   int
		capsule *models.Capsule
		entry   *models.AuditEntry
	)
	err := s.tx.RunInTx(ctx, capsuleID, func(ctx context.Context, capsules capsulesvc.Store) error {
		c, err := capsules.FindByID(ctx, capsuleID)
		if err != nil {
			return translate(err)
		}
		if c.IsDraft() {
			return dErrors.New(dErrors.CodeConflict, "approvals are only accepted on sealed capsules")
		}
		if c.State.IsTerminal() {
			return dErrors.New(dErrors.CodeConflict, "capsule is "+string(c.State)+" and no longer accepts approvals")
		}
		b, ok := c.Beneficiary(beneficiaryID)
		if !ok {
			return dErrors.New(dErrors.CodeUnknownBeneficiary, "beneficiary is not listed on this capsule")
		}
		if !strings.EqualFold(b.Contact, actor.String()) {
			return dErrors.New(dErrors.CodeForbidden, "approvals must be made by the beneficiary")
		}
		if b.Role != models.RoleHeir {
			return dErrors.New(dErrors.CodeForbidden, "only heirs may approve a release")
		}

		added, n, err := s.store.Approve(ctx, capsuleID, beneficiaryID, now)
		if err != nil {
			return translate(err)
		}
		count = n
		if !added {
			return nil
		}
		e := s.audit.Record(ctx, c, models.ActionApprovalRecorded, actor, models.AuditSuccess)
		entry, capsule = &e, c
		return capsules.Update(ctx, c)
	})
	if err != nil {
		return 0, translate(err)
	}

	if entry != nil {
		s.audit.Publish(ctx, capsule, *entry)
		s.metrics.IncApprovals()
		s.logger.InfoContext(ctx, "approval recorded",
			"capsule_id", capsuleID.String(),
			"beneficiary_id", beneficiaryID.String(),
			"approvals", count,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return count, nil
}

// Reset starts a new claim epoch. Only the owner may reset.
func (s *Service) Reset(ctx context.Context, capsuleID id.CapsuleID) (int64, error) {
	actor := requestcontext.Actor(ctx)
	if actor == "" {
		return 0, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	var (
		epoch   int64
		capsule *models.Capsule
		entry   models.AuditEntry
	)
	err := s.tx.RunInTx(ctx, capsuleID, func(ctx context.Context, capsules capsulesvc.Store) error {
		c, err := capsules.FindByID(ctx, capsuleID)
		if err != nil {
			return translate(err)
		}
		if c.Owner != actor {
			return dErrors.New(dErrors.CodeForbidden, "only the capsule owner may reset approvals")
		}
		epoch, err = s.store.Reset(ctx, capsuleID)
		if err != nil {
			return translate(err)
		}
		entry = s.audit.Record(ctx, c, models.ActionEpochReset, actor, models.AuditSuccess)
		capsule = c
		return capsules.Update(ctx, c)
	})
	if err != nil {
		return 0, translate(err)
	}

	s.audit.Publish(ctx, capsule, entry)
	s.metrics.IncResets()
	s.logger.InfoContext(ctx, "claim epoch reset",
		"capsule_id", capsuleID.String(),
		"epoch", epoch,
		"request_id", requestcontext.RequestID(ctx),
	)
	return epoch, nil
}

// State reports approvals received against the smallest THRESHOLD in the
// capsule's rules. Owners and listed beneficiaries may read it.
func (s *Service) State(ctx context.Context, capsuleID id.CapsuleID) (*State, error) {
	actor := requestcontext.Actor(ctx)
	if actor == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	c, err := s.capsules.FindByID(ctx, capsuleID)
	if err != nil {
		return nil, translate(err)
	}
	if !isParticipant(c, actor) {
		return nil, dErrors.New(dErrors.CodeForbidden, "not a participant of this capsule")
	}
	rec, err := s.store.Get(ctx, capsuleID)
	if err != nil {
		return nil, translate(err)
	}

	approvals := make([]Approval, 0, len(rec.Approvals))
	for bid, at := range rec.Approvals {
		approvals = append(approvals, Approval{BeneficiaryID: bid, ApprovedAt: at})
	}
	slices.SortFunc(approvals, func(a, b Approval) int {
		return a.ApprovedAt.Compare(b.ApprovedAt)
	})
	return &State{
		CapsuleID:            capsuleID,
		Epoch:                rec.Epoch,
		ApprovalsReceived:    len(approvals),
		TotalApprovalsNeeded: unlock.MinThreshold(c.UnlockRules),
		Approvals:            approvals,
	}, nil
}

func isParticipant(c *models.Capsule, actor id.ActorID) bool {
	if c.Owner == actor {
		return true
	}
	for _, b := range c.Beneficiaries {
		if strings.EqualFold(b.Contact, actor.String()) {
			return true
		}
	}
	return false
}

func translate(err error) error {
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
	return dErrors.Wrap(err, dErrors.CodeInternal, "consensus operation failed")
}
