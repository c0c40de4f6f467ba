package models

import (
	"time"

	"kairos/internal/unlock"
	id "kairos/pkg/domain"
)

// CreateRequest is the service input for a new draft.
type CreateRequest struct {
	Owner             id.ActorID
	Title             string
	Description       string
	Category          Category
	SecretData        []byte
	Password          string
	PingFrequencyDays int
	UnlockRules       []unlock.Rule
	Beneficiaries     []Beneficiary
	ExpiresAt         *time.Time
}

// Patch lists draft fields to replace. Nil means unchanged. A payload change
// needs both SecretData and Password.
type Patch struct {
	Title             *string
	Description       *string
	Category          *Category
	PingFrequencyDays *int
	UnlockRules       []unlock.Rule
	Beneficiaries     []Beneficiary
	ExpiresAt         *time.Time
	ClearExpiry       bool
	SecretData        []byte
	Password          *string
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil &&
		p.PingFrequencyDays == nil && p.UnlockRules == nil && p.Beneficiaries == nil &&
		p.ExpiresAt == nil && !p.ClearExpiry && p.SecretData == nil && p.Password == nil
}

// PingResult is the per-capsule outcome of a batch ping.
type PingResult struct {
	CapsuleID id.CapsuleID `json:"capsuleId"`
	Capsule   *Capsule     `json:"capsule,omitempty"`
	Error     string       `json:"error,omitempty"`
	Code      string       `json:"code,omitempty"`
}

// UnlockEvaluation pairs the rule decision with the resulting capsule state.
type UnlockEvaluation struct {
	Decision          unlock.Decision `json:"decision"`
	State             State           `json:"state"`
	Transitioned      bool            `json:"transitioned"`
	ApprovalsReceived int             `json:"approvalsReceived"`
	Health            Health          `json:"health"`
}

// ClaimResult is returned to a beneficiary after a successful decrypt.
type ClaimResult struct {
	Plaintext      []byte `json:"-"`
	ReleasePercent int    `json:"releasePercent"`
	State          State  `json:"state"`
}

// CapsuleDetails is a capsule with its health recomputed at read time.
type CapsuleDetails struct {
	*Capsule
	Health Health `json:"health"`
}
