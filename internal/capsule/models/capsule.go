package models

import (
	"slices"
	"time"

	"kairos/internal/unlock"
	id "kairos/pkg/domain"
	dErrors "kairos/pkg/domain-errors"
)

type Category string

const (
	CategoryPersonal Category = "PERSONAL"
	CategoryCrypto   Category = "CRYPTO"
	CategoryLegal    Category = "LEGAL"
	CategoryBusiness Category = "BUSINESS"
)

func (c Category) IsValid() bool {
	switch c {
	case CategoryPersonal, CategoryCrypto, CategoryLegal, CategoryBusiness:
		return true
	}
	return false
}

// State is the liveness state of a capsule. Drafts stay ACTIVE.
type State string

const (
	StateActive        State = "ACTIVE"
	StatePendingUnlock State = "PENDING_UNLOCK"
	StateUnlocked      State = "UNLOCKED"
	StateExpired       State = "EXPIRED"
)

// IsTerminal reports whether no further liveness transition is possible.
func (s State) IsTerminal() bool {
	return s == StateUnlocked || s == StateExpired
}

type Role string

const (
	RoleHeir          Role = "HEIR"
	RoleExecutor      Role = "EXECUTOR"
	RoleProxyGuardian Role = "PROXY_GUARDIAN"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleHeir, RoleExecutor, RoleProxyGuardian:
		return true
	}
	return false
}

// Beneficiary is a party entitled to approve or claim a capsule.
type Beneficiary struct {
	ID      id.BeneficiaryID `json:"id"`
	Name    string           `json:"name"`
	Contact string           `json:"contact"`
	Role    Role             `json:"role"`
	Share   *int             `json:"share,omitempty"`
}

const (
	DefaultBeneficiaryName    = "Default Recipient"
	DefaultBeneficiaryContact = "recipient@kairos.io"
	DefaultPingFrequencyDays  = 365
	MaxPingFrequencyDays      = 3650
)

// DefaultBeneficiary is substituted when a capsule is created without any.
func DefaultBeneficiary() Beneficiary {
	return Beneficiary{
		ID:      id.NewBeneficiaryID(),
		Name:    DefaultBeneficiaryName,
		Contact: DefaultBeneficiaryContact,
		Role:    RoleHeir,
	}
}

// Capsule is the aggregate root for a sealed secret and its release policy.
//
// Invariants:
//   - ID, Owner and CreatedAt never change
//   - while IsActivated is false every other field may change
//   - once IsActivated is true only LastPing, HealthScore, State, the
//     timestamps and AuditLog change
//   - AuditLog is append-only and ordered newest first
//   - Version increases by one on every committed write
type Capsule struct {
	ID                id.CapsuleID  `json:"id"`
	Owner             id.ActorID    `json:"owner"`
	Title             string        `json:"title"`
	Description       string        `json:"description"`
	Category          Category      `json:"category"`
	BlobID            string        `json:"blobId"`
	SealProof         string        `json:"sealProof"`
	IsActivated       bool          `json:"isActivated"`
	State             State         `json:"state"`
	CreatedAt         time.Time     `json:"createdAt"`
	LastPing          time.Time     `json:"lastPing"`
	PingFrequencyDays int           `json:"pingFrequencyDays"`
	HealthScore       int           `json:"healthScore"`
	UnlockRules       unlock.Rules  `json:"unlockRules"`
	Beneficiaries     []Beneficiary `json:"beneficiaries"`
	AuditLog          []AuditEntry  `json:"auditLog"`
	ExpiresAt         *time.Time    `json:"expiresAt,omitempty"`
	SealedAt          *time.Time    `json:"sealedAt,omitempty"`
	UnlockedAt        *time.Time    `json:"unlockedAt,omitempty"`
	Version           int64         `json:"version"`
}

func (c *Capsule) IsDraft() bool {
	return !c.IsActivated
}

// EnsureDraft rejects configuration changes to a sealed capsule.
func (c *Capsule) EnsureDraft() error {
	if c.IsActivated {
		return dErrors.New(dErrors.CodeImmutableCapsule, "capsule is sealed and can no longer be modified")
	}
	return nil
}

// CanSeal checks the preconditions of sealing. A sealed capsule passes so
// sealing stays idempotent.
func (c *Capsule) CanSeal() error {
	if c.IsActivated {
		return nil
	}
	if len(c.Beneficiaries) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one beneficiary is required to seal")
	}
	if len(c.UnlockRules) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one unlock rule is required to seal")
	}
	if err := unlock.Validate(c.UnlockRules); err != nil {
		return err
	}
	if unlock.MaxThreshold(c.UnlockRules) > c.HeirCount() {
		return dErrors.New(dErrors.CodeValidation, "threshold exceeds the number of heirs")
	}
	return nil
}

// ApplySeal makes the capsule immutable.
func (c *Capsule) ApplySeal(now time.Time) {
	c.IsActivated = true
	c.SealedAt = &now
}

// CanPing checks whether a liveness signal is still meaningful.
func (c *Capsule) CanPing() error {
	if c.State.IsTerminal() {
		return dErrors.New(dErrors.CodeConflict, "capsule is "+string(c.State)+" and no longer accepts pings")
	}
	return nil
}

// ApplyPing records proof of life. It reports whether a pending unlock was
// cancelled.
func (c *Capsule) ApplyPing(now time.Time) (cancelledUnlock bool) {
	c.LastPing = now
	c.HealthScore = 100
	if c.State == StatePendingUnlock {
		c.State = StateActive
		return true
	}
	return false
}

// IsExpired reports whether the hard expiry has passed.
func (c *Capsule) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// Beneficiary looks up a listed beneficiary.
func (c *Capsule) Beneficiary(bid id.BeneficiaryID) (Beneficiary, bool) {
	for _, b := range c.Beneficiaries {
		if b.ID == bid {
			return b, true
		}
	}
	return Beneficiary{}, false
}

// HeirCount is the number of beneficiaries who may approve and claim.
func (c *Capsule) HeirCount() int {
	n := 0
	for _, b := range c.Beneficiaries {
		if b.Role == RoleHeir {
			n++
		}
	}
	return n
}

// ShareRange is the half-open slice [From, To) of the release an heir owns.
type ShareRange struct {
	From int
	To   int
}

// ShareRanges lays heirs' shares end to end in list order. Heirs without an
// explicit share split what the explicit shares leave of 100 evenly, the last
// of them taking the rounding remainder. Other roles own nothing.
func (c *Capsule) ShareRanges() map[id.BeneficiaryID]ShareRange {
	explicit, implicit := 0, 0
	for _, b := range c.Beneficiaries {
		if b.Role != RoleHeir {
			continue
		}
		if b.Share != nil {
			explicit += *b.Share
		} else {
			implicit++
		}
	}
	rest := max(100-explicit, 0)
	even := 0
	if implicit > 0 {
		even = rest / implicit
	}

	ranges := make(map[id.BeneficiaryID]ShareRange)
	cursor, seenImplicit := 0, 0
	for _, b := range c.Beneficiaries {
		if b.Role != RoleHeir {
			continue
		}
		width := even
		switch {
		case b.Share != nil:
			width = *b.Share
		case seenImplicit == implicit-1:
			width = rest - even*(implicit-1)
		}
		if b.Share == nil {
			seenImplicit++
		}
		ranges[b.ID] = ShareRange{From: cursor, To: min(cursor+width, 100)}
		cursor = min(cursor+width, 100)
	}
	return ranges
}

// ReleasedTo reports whether the heir's slice is fully covered by
// releasePercent. An empty slice is only released with the whole capsule.
func (c *Capsule) ReleasedTo(bid id.BeneficiaryID, releasePercent int) bool {
	if releasePercent >= 100 {
		return true
	}
	r, ok := c.ShareRanges()[bid]
	if !ok || r.To <= r.From {
		return false
	}
	return releasePercent >= r.To
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (c *Capsule) Clone() *Capsule {
	if c == nil {
		return nil
	}
	out := *c
	out.UnlockRules = unlock.Clone(c.UnlockRules)
	out.Beneficiaries = make([]Beneficiary, len(c.Beneficiaries))
	for i, b := range c.Beneficiaries {
		if b.Share != nil {
			share := *b.Share
			b.Share = &share
		}
		out.Beneficiaries[i] = b
	}
	out.AuditLog = slices.Clone(c.AuditLog)
	out.ExpiresAt = cloneTime(c.ExpiresAt)
	out.SealedAt = cloneTime(c.SealedAt)
	out.UnlockedAt = cloneTime(c.UnlockedAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
