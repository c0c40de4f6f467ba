package handler

import (
	"strings"
	"time"

	"kairos/internal/capsule/models"
	"kairos/internal/unlock"
	id "kairos/pkg/domain"
	dErrors "kairos/pkg/domain-errors"
	pstrings "kairos/pkg/platform/strings"
)

type BeneficiaryRequest struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Role    string `json:"role,omitempty"`
	Share   *int   `json:"share,omitempty"`
}

func (b *BeneficiaryRequest) normalize() {
	b.ID = strings.TrimSpace(b.ID)
	b.Name = strings.TrimSpace(b.Name)
	b.Contact = strings.TrimSpace(b.Contact)
	b.Role = strings.ToUpper(strings.TrimSpace(b.Role))
}

func (b BeneficiaryRequest) toModel() (models.Beneficiary, error) {
	out := models.Beneficiary{
		Name:    b.Name,
		Contact: b.Contact,
		Role:    models.Role(b.Role),
		Share:   b.Share,
	}
	if b.ID != "" {
		bid, err := id.ParseBeneficiaryID(b.ID)
		if err != nil {
			return models.Beneficiary{}, err
		}
		out.ID = bid
	}
	if out.Name == "" || out.Contact == "" {
		return models.Beneficiary{}, dErrors.New(dErrors.CodeValidation, "beneficiary name and contact are required")
	}
	return out, nil
}

func parseBeneficiaries(in []BeneficiaryRequest) ([]models.Beneficiary, error) {
	out := make([]models.Beneficiary, 0, len(in))
	for _, b := range in {
		m, err := b.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// CreateCapsuleRequest is the body of POST /capsules.
type CreateCapsuleRequest struct {
	Title             string               `json:"title"`
	Description       string               `json:"description"`
	Category          string               `json:"category"`
	SecretData        string               `json:"secretData"`
	Password          string               `json:"password"`
	PingFrequencyDays int                  `json:"pingFrequencyDays"`
	UnlockRules       unlock.Rules         `json:"unlockRules"`
	Beneficiaries     []BeneficiaryRequest `json:"beneficiaries"`
	ExpiresAt         *time.Time           `json:"expiresAt,omitempty"`

	beneficiaries []models.Beneficiary
}

func (r *CreateCapsuleRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.Category = strings.ToUpper(strings.TrimSpace(r.Category))
	for i := range r.Beneficiaries {
		r.Beneficiaries[i].normalize()
	}
}

func (r *CreateCapsuleRequest) Validate() error {
	if r.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if r.SecretData == "" {
		return dErrors.New(dErrors.CodeValidation, "secretData is required")
	}
	if r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "password is required")
	}
	if len(r.UnlockRules) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one unlock rule is required")
	}
	beneficiaries, err := parseBeneficiaries(r.Beneficiaries)
	if err != nil {
		return err
	}
	r.beneficiaries = beneficiaries
	return nil
}

func (r *CreateCapsuleRequest) toModel() models.CreateRequest {
	return models.CreateRequest{
		Title:             r.Title,
		Description:       r.Description,
		Category:          models.Category(r.Category),
		SecretData:        []byte(r.SecretData),
		Password:          r.Password,
		PingFrequencyDays: r.PingFrequencyDays,
		UnlockRules:       r.UnlockRules,
		Beneficiaries:     r.beneficiaries,
		ExpiresAt:         r.ExpiresAt,
	}
}

// PatchCapsuleRequest is the body of PATCH /capsules/{id}. Absent fields are
// left unchanged.
type PatchCapsuleRequest struct {
	Title             *string               `json:"title,omitempty"`
	Description       *string               `json:"description,omitempty"`
	Category          *string               `json:"category,omitempty"`
	PingFrequencyDays *int                  `json:"pingFrequencyDays,omitempty"`
	UnlockRules       *unlock.Rules         `json:"unlockRules,omitempty"`
	Beneficiaries     *[]BeneficiaryRequest `json:"beneficiaries,omitempty"`
	ExpiresAt         *time.Time            `json:"expiresAt,omitempty"`
	ClearExpiry       bool                  `json:"clearExpiry,omitempty"`
	SecretData        *string               `json:"secretData,omitempty"`
	Password          *string               `json:"password,omitempty"`

	patch models.Patch
}

func (r *PatchCapsuleRequest) Normalize() {
	if r.Category != nil {
		c := strings.ToUpper(strings.TrimSpace(*r.Category))
		r.Category = &c
	}
	if r.Beneficiaries != nil {
		for i := range *r.Beneficiaries {
			(*r.Beneficiaries)[i].normalize()
		}
	}
}

func (r *PatchCapsuleRequest) Validate() error {
	p := models.Patch{
		Title:             r.Title,
		Description:       r.Description,
		PingFrequencyDays: r.PingFrequencyDays,
		ExpiresAt:         r.ExpiresAt,
		ClearExpiry:       r.ClearExpiry,
		Password:          r.Password,
	}
	if r.Category != nil {
		c := models.Category(*r.Category)
		p.Category = &c
	}
	if r.UnlockRules != nil {
		p.UnlockRules = *r.UnlockRules
		if p.UnlockRules == nil {
			p.UnlockRules = unlock.Rules{}
		}
	}
	if r.Beneficiaries != nil {
		beneficiaries, err := parseBeneficiaries(*r.Beneficiaries)
		if err != nil {
			return err
		}
		p.Beneficiaries = beneficiaries
	}
	if r.SecretData != nil {
		p.SecretData = []byte(*r.SecretData)
	}
	if p.IsEmpty() {
		return dErrors.New(dErrors.CodeValidation, "patch changes nothing")
	}
	r.patch = p
	return nil
}

// PingBatchRequest is the body of POST /capsules/ping.
type PingBatchRequest struct {
	CapsuleIDs []string `json:"capsuleIds"`

	ids []id.CapsuleID
}

// Normalize drops blank and repeated ids so a capsule is pinged once per batch.
func (r *PingBatchRequest) Normalize() {
	r.CapsuleIDs = pstrings.DedupeFold(r.CapsuleIDs)
}

func (r *PingBatchRequest) Validate() error {
	if len(r.CapsuleIDs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "capsuleIds is required")
	}
	r.ids = make([]id.CapsuleID, 0, len(r.CapsuleIDs))
	for _, raw := range r.CapsuleIDs {
		capsuleID, err := id.ParseCapsuleID(raw)
		if err != nil {
			return err
		}
		r.ids = append(r.ids, capsuleID)
	}
	return nil
}

// ClaimRequest is the body of POST /capsules/{id}/claim.
type ClaimRequest struct {
	BeneficiaryID string `json:"beneficiaryId"`
	Passphrase    string `json:"passphrase"`

	beneficiaryID id.BeneficiaryID
}

func (r *ClaimRequest) Validate() error {
	bid, err := id.ParseBeneficiaryID(strings.TrimSpace(r.BeneficiaryID))
	if err != nil {
		return err
	}
	if r.Passphrase == "" {
		return dErrors.New(dErrors.CodeValidation, "passphrase is required")
	}
	r.beneficiaryID = bid
	return nil
}
