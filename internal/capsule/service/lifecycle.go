package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"kairos/internal/blobstore"
	"kairos/internal/capsule/models"
	"kairos/internal/unlock"
	id "kairos/pkg/domain"
	dErrors "kairos/pkg/domain-errors"
	"kairos/pkg/requestcontext"
)

// Create encrypts the payload, stores the sealed blob and persists a draft.
func (s *Service) Create(ctx context.Context, req models.CreateRequest) (_ *models.Capsule, err error) {
	defer s.metrics.ObserveOperation("create", time.Now())
	ctx, span := s.startSpan(ctx, "capsule.Create", id.CapsuleID{})
	defer func() { endSpan(span, err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if req.Owner == "" {
		req.Owner = actor
	}
	if req.Owner != actor {
		return nil, dErrors.New(dErrors.CodeForbidden, "capsules can only be created for yourself")
	}

	now := requestcontext.Now(ctx)
	beneficiaries, err := validateCreate(&req, now)
	if err != nil {
		return nil, err
	}

	blobID, sealProof, err := s.storeBlob(ctx, req.SecretData, req.Password)
	if err != nil {
		return nil, err
	}

	c := &models.Capsule{
		ID:                id.NewCapsuleID(),
		Owner:             req.Owner,
		Title:             req.Title,
		Description:       req.Description,
		Category:          req.Category,
		BlobID:            blobID,
		SealProof:         sealProof,
		State:             models.StateActive,
		CreatedAt:         now,
		LastPing:          now,
		PingFrequencyDays: req.PingFrequencyDays,
		HealthScore:       100,
		UnlockRules:       unlock.Rules(req.UnlockRules),
		Beneficiaries:     beneficiaries,
		ExpiresAt:         req.ExpiresAt,
	}
	entry := s.audit.Record(ctx, c, models.ActionCreated, actor, models.AuditSuccess)

	err = s.tx.RunInTx(ctx, c.ID, func(ctx context.Context, store Store) error {
		return store.Create(ctx, c)
	})
	if err != nil {
		s.discardBlob(ctx, c.ID, blobID)
		return nil, translate(err, "failed to create capsule")
	}

	s.audit.Publish(ctx, c, entry)
	s.metrics.IncrementCreated()
	s.logger.InfoContext(ctx, "capsule created",
		"capsule_id", c.ID.String(),
		"owner", c.Owner.String(),
		"blob_id", c.BlobID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return c, nil
}

// Mutate applies patch to a draft. A sealed capsule rejects the patch and
// keeps a FAILED entry recording the attempt.
func (s *Service) Mutate(ctx context.Context, capsuleID id.CapsuleID, patch models.Patch) (_ *models.Capsule, err error) {
	defer s.metrics.ObserveOperation("mutate", time.Now())
	ctx, span := s.startSpan(ctx, "capsule.Mutate", capsuleID)
	defer func() { endSpan(span, err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeValidation, "patch changes nothing")
	}
	now := requestcontext.Now(ctx)

	var (
		result    *models.Capsule
		entry     models.AuditEntry
		rejection error
		newBlobID string
		oldBlobID string
	)
	err = s.tx.RunInTx(ctx, capsuleID, func(ctx context.Context, store Store) error {
		c, err := load(ctx, store, capsuleID)
		if err != nil {
			return err
		}
		if err := requireOwner(c, actor); err != nil {
			return err
		}
		if rejection = c.EnsureDraft(); rejection != nil {
			entry = s.audit.Record(ctx, c, models.ActionModificationRejected, actor, models.AuditFailed)
			result = c
			return store.Update(ctx, c)
		}

		if err := applyPatch(c, patch, now); err != nil {
			return err
		}
		if patch.SecretData != nil {
			blobID, sealProof, err := s.storeBlob(ctx, patch.SecretData, *patch.Password)
			if err != nil {
				return err
			}
			oldBlobID, newBlobID = c.BlobID, blobID
			c.BlobID, c.SealProof = blobID, sealProof
		}

		entry = s.audit.Record(ctx, c, models.ActionModified, actor, models.AuditSuccess)
		result = c
		return store.Update(ctx, c)
	})
	if err != nil {
		if newBlobID != "" {
			s.discardBlob(ctx, capsuleID, newBlobID)
		}
		return nil, translate(err, "failed to modify capsule")
	}

	s.audit.Publish(ctx, result, entry)
	if rejection != nil {
		s.logger.WarnContext(ctx, "modification of sealed capsule rejected",
			"capsule_id", capsuleID.String(),
			"actor", actor.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, rejection
	}
	if oldBlobID != "" && oldBlobID != newBlobID {
		s.discardBlob(ctx, capsuleID, oldBlobID)
	}
	return result, nil
}

// Seal makes a draft immutable. Sealing an already sealed capsule returns it
// unchanged.
func (s *Service) Seal(ctx context.Context, capsuleID id.CapsuleID) (_ *models.Capsule, err error) {
	defer s.metrics.ObserveOperation("seal", time.Now())
	ctx, span := s.startSpan(ctx, "capsule.Seal", capsuleID)
	defer func() { endSpan(span, err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	var (
		result *models.Capsule
		entry  *models.AuditEntry
	)
	err = s.tx.RunInTx(ctx, capsuleID, func(ctx context.Context, store Store) error {
		c, err := load(ctx, store, capsuleID)
		if err != nil {
			return err
		}
		if err := requireOwner(c, actor); err != nil {
			return err
		}
		result = c
		if c.IsActivated {
			return nil
		}
		if err := c.CanSeal(); err != nil {
			return err
		}
		c.ApplySeal(now)
		e := s.audit.Record(ctx, c, models.ActionSealed, actor, models.AuditSuccess)
		entry = &e
		return store.Update(ctx, c)
	})
	if err != nil {
		return nil, translate(err, "failed to seal capsule")
	}

	if entry != nil {
		s.audit.Publish(ctx, result, *entry)
		s.metrics.IncrementSealed()
		s.logger.InfoContext(ctx, "capsule sealed",
			"capsule_id", capsuleID.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return result, nil
}

// Get returns a capsule visible to the caller with its health at request time.
// Owners and listed beneficiaries may read it.
func (s *Service) Get(ctx context.Context, capsuleID id.CapsuleID) (_ *models.CapsuleDetails, err error) {
	defer s.metrics.ObserveOperation("get", time.Now())
	ctx, span := s.startSpan(ctx, "capsule.Get", capsuleID)
	defer func() { endSpan(span, err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	c, err := load(ctx, s.capsules, capsuleID)
	if err != nil {
		return nil, err
	}
	if err := requireParticipant(c, actor); err != nil {
		return nil, err
	}
	return details(c, requestcontext.Now(ctx)), nil
}

// ListByOwner returns the caller's capsules, newest first, health recomputed.
func (s *Service) ListByOwner(ctx context.Context) (_ []*models.CapsuleDetails, err error) {
	defer s.metrics.ObserveOperation("list", time.Now())
	ctx, span := s.startSpan(ctx, "capsule.ListByOwner", id.CapsuleID{})
	defer func() { endSpan(span, err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	capsules, err := s.capsules.ListByOwner(ctx, actor)
	if err != nil {
		return nil, translate(err, "failed to list capsules")
	}
	now := requestcontext.Now(ctx)
	out := make([]*models.CapsuleDetails, 0, len(capsules))
	for _, c := range capsules {
		out = append(out, details(c, now))
	}
	return out, nil
}

// Delete removes a draft with its blob, approvals and audit log.
func (s *Service) Delete(ctx context.Context, capsuleID id.CapsuleID) (err error) {
	defer s.metrics.ObserveOperation("delete", time.Now())
	ctx, span := s.startSpan(ctx, "capsule.Delete", capsuleID)
	defer func() { endSpan(span, err) }()

	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}

	var blobID string
	err = s.tx.RunInTx(ctx, capsuleID, func(ctx context.Context, store Store) error {
		c, err := load(ctx, store, capsuleID)
		if err != nil {
			return err
		}
		if err := requireOwner(c, actor); err != nil {
			return err
		}
		if err := c.EnsureDraft(); err != nil {
			return err
		}
		blobID = c.BlobID
		return store.Delete(ctx, capsuleID)
	})
	if err != nil {
		return translate(err, "failed to delete capsule")
	}

	s.discardBlob(ctx, capsuleID, blobID)
	if err := s.approvals.Delete(ctx, capsuleID); err != nil {
		s.logFailure(ctx, "failed to delete consensus record", capsuleID, err)
	}
	s.logger.InfoContext(ctx, "capsule deleted",
		"capsule_id", capsuleID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// storeBlob seals plaintext and writes the blob under its anchor id.
func (s *Service) storeBlob(ctx context.Context, plaintext []byte, passphrase string) (blobID, sealProof string, err error) {
	sealed, err := s.sealer.Seal(plaintext, passphrase)
	if err != nil {
		return "", "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to seal payload")
	}
	blobID, sealProof = blobstore.Anchor([]byte(sealed))
	if err := s.blobs.Put(ctx, blobID, []byte(sealed)); err != nil {
		return "", "", translateBlob(err)
	}
	return blobID, sealProof, nil
}

// discardBlob removes a blob no committed capsule references. Failures leave
// an orphan object and are only logged.
func (s *Service) discardBlob(ctx context.Context, capsuleID id.CapsuleID, blobID string) {
	if blobID == "" {
		return
	}
	if err := s.blobs.Delete(context.WithoutCancel(ctx), blobID); err != nil {
		s.logger.WarnContext(ctx, "failed to discard blob",
			"capsule_id", capsuleID.String(),
			"blob_id", blobID,
			"error", err,
		)
	}
}

func details(c *models.Capsule, now time.Time) *models.CapsuleDetails {
	health := models.ComputeHealth(c, now)
	c.HealthScore = health.Score
	return &models.CapsuleDetails{Capsule: c, Health: health}
}

func requireParticipant(c *models.Capsule, actor id.ActorID) error {
	if c.Owner == actor {
		return nil
	}
	if _, ok := beneficiaryFor(c, actor); ok {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "not a participant of this capsule")
}

// beneficiaryFor finds the beneficiary whose contact is the actor.
func beneficiaryFor(c *models.Capsule, actor id.ActorID) (models.Beneficiary, bool) {
	for _, b := range c.Beneficiaries {
		if strings.EqualFold(b.Contact, actor.String()) {
			return b, true
		}
	}
	return models.Beneficiary{}, false
}

func validateCreate(req *models.CreateRequest, now time.Time) ([]models.Beneficiary, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := validateTitle(req.Title); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(req.Description) > maxDescriptionLength {
		return nil, dErrors.New(dErrors.CodeValidation, "description is too long")
	}
	if req.Category == "" {
		req.Category = models.CategoryPersonal
	}
	if !req.Category.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown category")
	}
	if len(req.UnlockRules) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one unlock rule is required")
	}
	if err := unlock.Validate(req.UnlockRules); err != nil {
		return nil, err
	}
	if req.PingFrequencyDays == 0 {
		req.PingFrequencyDays = models.DefaultPingFrequencyDays
	}
	if err := validatePingFrequency(req.PingFrequencyDays); err != nil {
		return nil, err
	}
	if err := validatePayload(req.SecretData, req.Password); err != nil {
		return nil, err
	}
	if err := validateExpiry(req.ExpiresAt, now); err != nil {
		return nil, err
	}
	beneficiaries, err := normalizeBeneficiaries(req.Beneficiaries)
	if err != nil {
		return nil, err
	}
	if len(beneficiaries) == 0 {
		beneficiaries = []models.Beneficiary{models.DefaultBeneficiary()}
	}
	return beneficiaries, nil
}

func applyPatch(c *models.Capsule, p models.Patch, now time.Time) error {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if err := validateTitle(title); err != nil {
			return err
		}
		c.Title = title
	}
	if p.Description != nil {
		if utf8.RuneCountInString(*p.Description) > maxDescriptionLength {
			return dErrors.New(dErrors.CodeValidation, "description is too long")
		}
		c.Description = *p.Description
	}
	if p.Category != nil {
		if !p.Category.IsValid() {
			return dErrors.New(dErrors.CodeValidation, "unknown category")
		}
		c.Category = *p.Category
	}
	if p.PingFrequencyDays != nil {
		if err := validatePingFrequency(*p.PingFrequencyDays); err != nil {
			return err
		}
		c.PingFrequencyDays = *p.PingFrequencyDays
	}
	if p.UnlockRules != nil {
		if len(p.UnlockRules) == 0 {
			return dErrors.New(dErrors.CodeValidation, "at least one unlock rule is required")
		}
		if err := unlock.Validate(p.UnlockRules); err != nil {
			return err
		}
		c.UnlockRules = unlock.Rules(p.UnlockRules)
	}
	if p.Beneficiaries != nil {
		beneficiaries, err := normalizeBeneficiaries(p.Beneficiaries)
		if err != nil {
			return err
		}
		if len(beneficiaries) == 0 {
			return dErrors.New(dErrors.CodeValidation, "at least one beneficiary is required")
		}
		c.Beneficiaries = beneficiaries
	}
	switch {
	case p.ClearExpiry && p.ExpiresAt != nil:
		return dErrors.New(dErrors.CodeValidation, "expiry cannot be both set and cleared")
	case p.ClearExpiry:
		c.ExpiresAt = nil
	case p.ExpiresAt != nil:
		if err := validateExpiry(p.ExpiresAt, now); err != nil {
			return err
		}
		expiresAt := *p.ExpiresAt
		c.ExpiresAt = &expiresAt
	}
	if p.SecretData != nil || p.Password != nil {
		if p.SecretData == nil || p.Password == nil {
			return dErrors.New(dErrors.CodeValidation, "replacing the payload needs both secret data and password")
		}
		if err := validatePayload(p.SecretData, *p.Password); err != nil {
			return err
		}
	}
	return nil
}

func validateTitle(title string) error {
	if title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return dErrors.New(dErrors.CodeValidation, "title is too long")
	}
	return nil
}

func validatePingFrequency(days int) error {
	if days < 1 || days > models.MaxPingFrequencyDays {
		return dErrors.New(dErrors.CodeValidation, "ping frequency must be between 1 and 3650 days")
	}
	return nil
}

func validatePayload(secret []byte, password string) error {
	if len(secret) == 0 {
		return dErrors.New(dErrors.CodeValidation, "secret data is required")
	}
	if len(secret) > maxSecretBytes {
		return dErrors.New(dErrors.CodeValidation, "secret data is too large")
	}
	if password == "" {
		return dErrors.New(dErrors.CodeValidation, "password is required")
	}
	return nil
}

func validateExpiry(expiresAt *time.Time, now time.Time) error {
	if expiresAt != nil && !expiresAt.After(now) {
		return dErrors.New(dErrors.CodeValidation, "expiry must be in the future")
	}
	return nil
}

// normalizeBeneficiaries trims fields, defaults the role to HEIR and assigns
// ids to new entries. Contacts are identities, so two entries may not share
// one regardless of case.
func normalizeBeneficiaries(in []models.Beneficiary) ([]models.Beneficiary, error) {
	if len(in) > maxBeneficiaries {
		return nil, dErrors.New(dErrors.CodeValidation, "too many beneficiaries")
	}
	out := make([]models.Beneficiary, 0, len(in))
	seen := make(map[id.BeneficiaryID]struct{}, len(in))
	totalShare := 0
	for _, b := range in {
		b.Name = strings.TrimSpace(b.Name)
		b.Contact = strings.TrimSpace(b.Contact)
		if b.Name == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "beneficiary name is required")
		}
		if b.Contact == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "beneficiary contact is required")
		}
		for _, prev := range out {
			if strings.EqualFold(prev.Contact, b.Contact) {
				return nil, dErrors.New(dErrors.CodeValidation, "duplicate beneficiary contact")
			}
		}
		if b.Role == "" {
			b.Role = models.RoleHeir
		}
		if !b.Role.IsValid() {
			return nil, dErrors.New(dErrors.CodeValidation, "unknown beneficiary role")
		}
		if b.Share != nil {
			if *b.Share < 0 || *b.Share > 100 {
				return nil, dErrors.New(dErrors.CodeValidation, "beneficiary share must be between 0 and 100")
			}
			share := *b.Share
			b.Share = &share
			totalShare += share
		}
		if b.ID.IsNil() {
			b.ID = id.NewBeneficiaryID()
		}
		if _, dup := seen[b.ID]; dup {
			return nil, dErrors.New(dErrors.CodeValidation, "duplicate beneficiary id")
		}
		seen[b.ID] = struct{}{}
		out = append(out, b)
	}
	if totalShare > 100 {
		return nil, dErrors.New(dErrors.CodeValidation, "beneficiary shares exceed 100 percent")
	}
	return out, nil
}
