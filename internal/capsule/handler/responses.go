package handler

import (
	"kairos/internal/audit"
	"kairos/internal/capsule/models"
)

type ListCapsulesResponse struct {
	Capsules []*models.CapsuleDetails `json:"capsules"`
}

type PingBatchResponse struct {
	Results []models.PingResult `json:"results"`
}

// ClaimResponse carries the released plaintext. It is only ever written to
// the claiming beneficiary.
type ClaimResponse struct {
	SecretData     string       `json:"secretData"`
	ReleasePercent int          `json:"releasePercent"`
	State          models.State `json:"state"`
}

type AuditResponse struct {
	Items []audit.FeedItem `json:"items"`
	Stats audit.Stats      `json:"stats"`
}
