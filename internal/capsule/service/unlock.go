package service

import (
	"context"
	"strings"
	"time"

	"kairos/internal/blobstore"
	"kairos/internal/capsule/models"
	"kairos/internal/unlock"
	id "kairos/pkg/domain"
	dErrors "kairos/pkg/domain-errors"
	"kairos/pkg/requestcontext"
)

// evaluation is the outcome of running the state machine over one capsule.
type evaluation struct {
	decision     unlock.Decision
	approvals    int
	entries      []models.AuditEntry
	transitioned bool
}

// advance evaluates c's rules and applies the liveness state machine. Only a
// sealed ACTIVE capsule moves; expiry wins over satisfied rules.
func (s *Service) advance(ctx context.Context, c *models.Capsule, now time.Time) (evaluation, error) {
	approvals, err := s.approvals.Count(ctx, c.ID)
	if err != nil {
		return evaluation{}, translate(err, "failed to read approvals")
	}
	decision, err := unlock.Evaluate(c.UnlockRules, unlock.Input{
		CreatedAt: c.CreatedAt,
		LastPing:  c.LastPing,
		Approvals: approvals,
		Now:       now,
	})
	if err != nil {
		return evaluation{}, err
	}
	ev := evaluation{decision: decision, approvals: approvals}
	if c.IsDraft() || c.State != models.StateActive {
		return ev, nil
	}

	switch {
	case c.IsExpired(now):
		c.State = models.StateExpired
		ev.entries = append(ev.entries, s.audit.Record(ctx, c, models.ActionExpired, id.SystemActor, models.AuditSuccess))
		ev.transitioned = true
	case decision.Satisfied:
		c.State = models.StatePendingUnlock
		ev.entries = append(ev.entries, s.audit.Record(ctx, c, models.ActionUnlockConditionsMet, id.SystemActor, models.AuditPending))
		ev.transitioned = true
	}
	return ev, nil
}

// EvaluateUnlock runs the unlock rules at request time and persists any state
// transition they cause.
func (s *Service) EvaluateUnlock(ctx context.Context, capsuleID id.CapsuleID) (_ *models.UnlockEvaluation, err error) {
	defer s.metrics.ObserveOperation("evaluate", time.Now())
	ctx, span := s.startSpan(ctx, "capsule.EvaluateUnlock", capsuleID)
	defer func() { endSpan(span, err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	var (
		result *models.Capsule
		ev     evaluation
	)
	err = s.tx.RunInTx(ctx, capsuleID, func(ctx context.Context, store Store) error {
		c, err := load(ctx, store, capsuleID)
		if err != nil {
			return err
		}
		if err := requireParticipant(c, actor); err != nil {
			return err
		}
		ev, err = s.advance(ctx, c, now)
		if err != nil {
			return err
		}
		result = c
		if !ev.transitioned {
			return nil
		}
		return store.Update(ctx, c)
	})
	if err != nil {
		return nil, translate(err, "failed to evaluate unlock")
	}

	if ev.transitioned {
		s.publishTransition(ctx, result, ev.entries)
	}
	return &models.UnlockEvaluation{
		Decision:          ev.decision,
		State:             result.State,
		Transitioned:      ev.transitioned,
		ApprovalsReceived: ev.approvals,
		Health:            models.ComputeHealth(result, now),
	}, nil
}

// DecryptCapsule releases the plaintext to an heir once the release covers
// the heir's share range. A partial staged release keeps the capsule
// PENDING_UNLOCK and records one share entry per heir; the first claim at a
// full release moves it to UNLOCKED. Retries return the same plaintext without
// new entries. A failed integrity check keeps a FAILED entry.
func (s *Service) DecryptCapsule(ctx context.Context, capsuleID id.CapsuleID, beneficiaryID id.BeneficiaryID, passphrase string) (_ *models.ClaimResult, err error) {
	defer s.metrics.ObserveOperation("claim", time.Now())
	ctx, span := s.startSpan(ctx, "capsule.DecryptCapsule", capsuleID)
	defer func() { endSpan(span, err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	var (
		result   *models.ClaimResult
		capsule  *models.Capsule
		ev       evaluation
		entries  []models.AuditEntry
		refusal  error
		unlocked bool
		movedTo  models.State
	)
	err = s.tx.RunInTx(ctx, capsuleID, func(ctx context.Context, store Store) error {
		c, err := load(ctx, store, capsuleID)
		if err != nil {
			return err
		}
		capsule = c
		ev, err = s.advance(ctx, c, now)
		if err != nil {
			return err
		}
		if ev.transitioned {
			movedTo = c.State
		}
		entries = append(entries[:0], ev.entries...)
		persist := func() error {
			if len(entries) == 0 {
				return nil
			}
			return store.Update(ctx, c)
		}

		b, ok := c.Beneficiary(beneficiaryID)
		switch {
		case !ok:
			refusal = dErrors.New(dErrors.CodeUnknownBeneficiary, "beneficiary is not listed on this capsule")
		case !strings.EqualFold(b.Contact, actor.String()):
			refusal = dErrors.New(dErrors.CodeForbidden, "claims must be made by the beneficiary")
		case b.Role != models.RoleHeir:
			refusal = dErrors.New(dErrors.CodeForbidden, "only heirs may claim a capsule")
		case c.State != models.StatePendingUnlock && c.State != models.StateUnlocked:
			refusal = dErrors.New(dErrors.CodeForbidden, "unlock conditions are not met")
		case c.State == models.StatePendingUnlock && !c.ReleasedTo(b.ID, ev.decision.ReleasePercent):
			refusal = dErrors.New(dErrors.CodeForbidden, "this beneficiary's share has not been released yet")
		}
		if refusal != nil {
			return persist()
		}

		plaintext, err := s.openBlob(ctx, c, passphrase)
		if err != nil {
			if !dErrors.HasCode(err, dErrors.CodeIntegrity) {
				return err
			}
			refusal = err
			entries = append(entries, s.audit.Record(ctx, c, models.ActionClaimFailed, actor, models.AuditFailed))
			return persist()
		}

		percent := ev.decision.ReleasePercent
		if c.State == models.StateUnlocked {
			percent = 100
		}
		switch {
		case c.State == models.StatePendingUnlock && percent >= 100:
			c.State = models.StateUnlocked
			c.UnlockedAt = &now
			entries = append(entries, s.audit.Record(ctx, c, models.ActionUnlocked, actor, models.AuditSuccess))
			unlocked = true
		case c.State == models.StatePendingUnlock &&
			!models.ClaimedSinceUnlockMet(c.AuditLog, models.ActionShareReleased, actor):
			entries = append(entries, s.audit.Record(ctx, c, models.ActionShareReleased, actor, models.AuditSuccess))
		}
		result = &models.ClaimResult{
			Plaintext:      plaintext,
			ReleasePercent: percent,
			State:          c.State,
		}
		return persist()
	})
	if err != nil {
		return nil, translate(err, "failed to claim capsule")
	}

	if movedTo != "" {
		s.metrics.IncrementTransition(string(movedTo))
	}
	s.audit.Publish(ctx, capsule, entries...)
	if refusal != nil {
		if dErrors.HasCode(refusal, dErrors.CodeIntegrity) {
			s.metrics.IncrementClaimFailures()
		}
		s.logger.WarnContext(ctx, "claim refused",
			"capsule_id", capsuleID.String(),
			"beneficiary_id", beneficiaryID.String(),
			"code", string(dErrors.CodeOf(refusal)),
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, refusal
	}
	if unlocked {
		s.metrics.IncrementTransition(string(models.StateUnlocked))
		s.logger.InfoContext(ctx, "capsule unlocked",
			"capsule_id", capsuleID.String(),
			"beneficiary_id", beneficiaryID.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return result, nil
}

// openBlob fetches, verifies and decrypts the sealed payload. A missing or
// altered blob is an integrity failure like a wrong passphrase.
func (s *Service) openBlob(ctx context.Context, c *models.Capsule, passphrase string) ([]byte, error) {
	blob, err := s.blobs.Get(ctx, c.BlobID)
	if err != nil {
		return nil, translateBlob(err)
	}
	if err := blobstore.Verify(c.BlobID, blob, c.SealProof); err != nil {
		return nil, err
	}
	return s.sealer.Open(string(blob), passphrase)
}

func (s *Service) publishTransition(ctx context.Context, c *models.Capsule, entries []models.AuditEntry) {
	s.audit.Publish(ctx, c, entries...)
	s.metrics.IncrementTransition(string(c.State))
	s.logger.InfoContext(ctx, "capsule state changed",
		"capsule_id", c.ID.String(),
		"state", string(c.State),
		"request_id", requestcontext.RequestID(ctx),
	)
}
