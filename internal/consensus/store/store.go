// Package store keeps beneficiary approvals per capsule and claim epoch.
package store

import (
	"time"

	id "kairos/pkg/domain"
)

// Record is the consensus state of one capsule. A capsule nobody approved
// yet has epoch 0 and no approvals.
type Record struct {
	Epoch     int64
	Approvals map[id.BeneficiaryID]time.Time
}
