package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"kairos/internal/capsule/models"
	id "kairos/pkg/domain"
	dErrors "kairos/pkg/domain-errors"
	"kairos/pkg/requestcontext"
)

// Ping records proof of life from the owner or a proxy guardian. On a capsule
// awaiting unlock it cancels the pending release and starts a new approval
// epoch. The epoch reset happens inside the capsule transaction, before the
// update: if the update then fails, approvals are gone while the capsule stays
// pending, so heirs approve again rather than stale approvals surviving a
// proven-alive owner.
func (s *Service) Ping(ctx context.Context, capsuleID id.CapsuleID) (_ *models.Capsule, err error) {
	defer s.metrics.ObserveOperation("ping", time.Now())
	ctx, span := s.startSpan(ctx, "capsule.Ping", capsuleID)
	defer func() { endSpan(span, err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	var (
		result    *models.Capsule
		entries   []models.AuditEntry
		cancelled bool
	)
	err = s.tx.RunInTx(ctx, capsuleID, func(ctx context.Context, store Store) error {
		entries = entries[:0]
		c, err := load(ctx, store, capsuleID)
		if err != nil {
			return err
		}
		if err := requirePinger(c, actor); err != nil {
			return err
		}
		if err := c.CanPing(); err != nil {
			return err
		}

		entries = append(entries, s.audit.Record(ctx, c, models.ActionPing, actor, models.AuditSuccess))
		if cancelled = c.ApplyPing(now); cancelled {
			if _, err := s.approvals.Reset(ctx, c.ID); err != nil {
				return translate(err, "failed to reset approvals")
			}
			entries = append(entries, s.audit.Record(ctx, c, models.ActionEpochReset, actor, models.AuditSuccess))
		}
		result = c
		return store.Update(ctx, c)
	})
	if err != nil {
		return nil, translate(err, "failed to record ping")
	}

	s.audit.Publish(ctx, result, entries...)
	s.metrics.IncrementPings()
	if cancelled {
		s.metrics.IncrementTransition(string(models.StateActive))
		s.logger.InfoContext(ctx, "pending unlock cancelled by ping",
			"capsule_id", capsuleID.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return result, nil
}

// PingMany pings capsules in parallel with bounded concurrency. Every id gets
// a result in input order; one failure never stops the others. The batch is
// loaded in one read so unknown and foreign capsules are answered without
// opening a transaction.
func (s *Service) PingMany(ctx context.Context, capsuleIDs []id.CapsuleID) ([]models.PingResult, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if len(capsuleIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one capsule id is required")
	}
	if len(capsuleIDs) > s.maxPingBatch {
		return nil, dErrors.New(dErrors.CodeValidation, "too many capsule ids in one batch")
	}

	found, err := s.capsules.FindByIDs(ctx, capsuleIDs)
	if err != nil {
		return nil, translate(err, "failed to load capsules")
	}
	byID := make(map[id.CapsuleID]*models.Capsule, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}

	results := make([]models.PingResult, len(capsuleIDs))
	var g errgroup.Group
	g.SetLimit(s.pingWorkers)
	for i, capsuleID := range capsuleIDs {
		c, ok := byID[capsuleID]
		if !ok {
			results[i] = failedPing(capsuleID, dErrors.New(dErrors.CodeNotFound, "capsule not found"))
			continue
		}
		if err := requirePinger(c, actor); err != nil {
			results[i] = failedPing(capsuleID, err)
			continue
		}
		g.Go(func() error {
			c, err := s.Ping(ctx, capsuleID)
			results[i] = models.PingResult{CapsuleID: capsuleID, Capsule: c}
			if err != nil {
				results[i].Code = string(dErrors.CodeOf(err))
				results[i].Error = publicMessage(err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func failedPing(capsuleID id.CapsuleID, err error) models.PingResult {
	return models.PingResult{
		CapsuleID: capsuleID,
		Code:      string(dErrors.CodeOf(err)),
		Error:     publicMessage(err),
	}
}

// publicMessage hides internal causes from batch results.
func publicMessage(err error) string {
	de, ok := dErrors.As(err)
	if !ok || de.Code == dErrors.CodeInternal {
		return "internal error"
	}
	return de.Message
}
