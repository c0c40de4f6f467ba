package models

import (
	"time"

	id "kairos/pkg/domain"
)

type AuditStatus string

const (
	AuditSuccess AuditStatus = "SUCCESS"
	AuditPending AuditStatus = "PENDING"
	AuditFailed  AuditStatus = "FAILED"
)

// Audit actions written by the vault.
const (
	ActionCreated              = "Capsule Created"
	ActionModified             = "Capsule Modified"
	ActionModificationRejected = "Modification Rejected"
	ActionSealed               = "Capsule Sealed"
	ActionPing                 = "Pulse Signal Received"
	ActionUnlockConditionsMet  = "Unlock Conditions Met"
	ActionExpired              = "Capsule Expired"
	ActionApprovalRecorded     = "Beneficiary Approval Recorded"
	ActionEpochReset           = "Claim Epoch Reset"
	ActionUnlocked             = "Capsule Unlocked"
	ActionShareReleased        = "Inheritance Share Released"
	ActionClaimFailed          = "Claim Attempt Failed"
)

// ClaimedSinceUnlockMet reports whether actor already has an entry for action
// in the current pending period, i.e. newer than the last
// ActionUnlockConditionsMet entry. The log is newest first.
func ClaimedSinceUnlockMet(log []AuditEntry, action string, actor id.ActorID) bool {
	for _, e := range log {
		if e.Action == ActionUnlockConditionsMet {
			return false
		}
		if e.Action == action && e.Actor == actor {
			return true
		}
	}
	return false
}

// AuditEntry is immutable once written.
type AuditEntry struct {
	ID        id.AuditEntryID `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Action    string          `json:"action"`
	Actor     id.ActorID      `json:"actor"`
	Status    AuditStatus     `json:"status"`
}
