// Package domain holds the vault's typed identifiers. Distinct named types keep
// a capsule id from being passed where a beneficiary id is expected.
package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "kairos/pkg/domain-errors"
)

type (
	CapsuleID     uuid.UUID
	BeneficiaryID uuid.UUID
	AuditEntryID  uuid.UUID
)

// ActorID identifies a principal (owner wallet address, beneficiary contact,
// or the system itself). It is opaque to the vault.
type ActorID string

// SystemActor is recorded for transitions no caller initiated directly.
const SystemActor ActorID = "Vault Guardian"

const maxActorLength = 256

func NewCapsuleID() CapsuleID         { return CapsuleID(uuid.New()) }
func NewBeneficiaryID() BeneficiaryID { return BeneficiaryID(uuid.New()) }
func NewAuditEntryID() AuditEntryID   { return AuditEntryID(uuid.New()) }

func (id CapsuleID) String() string     { return uuid.UUID(id).String() }
func (id BeneficiaryID) String() string { return uuid.UUID(id).String() }
func (id AuditEntryID) String() string  { return uuid.UUID(id).String() }

func (id CapsuleID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id BeneficiaryID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id CapsuleID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *CapsuleID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id BeneficiaryID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *BeneficiaryID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id AuditEntryID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *AuditEntryID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

// ParseCapsuleID validates an untrusted capsule id.
func ParseCapsuleID(s string) (CapsuleID, error) {
	u, err := parseUUID(s, "capsule id")
	return CapsuleID(u), err
}

// ParseBeneficiaryID validates an untrusted beneficiary id.
func ParseBeneficiaryID(s string) (BeneficiaryID, error) {
	u, err := parseUUID(s, "beneficiary id")
	return BeneficiaryID(u), err
}

// ParseActorID trims and validates a principal identifier.
func ParseActorID(s string) (ActorID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "actor id is required")
	}
	if len(s) > maxActorLength || !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "actor id is malformed")
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "actor id is malformed")
		}
	}
	return ActorID(s), nil
}

func (a ActorID) String() string { return string(a) }

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	if len(s) > 64 || !utf8.ValidString(s) {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" must not be nil")
	}
	return u, nil
}
