package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"kairos/internal/consensus"
	id "kairos/pkg/domain"
	dErrors "kairos/pkg/domain-errors"
	"kairos/pkg/platform/httputil"
	"kairos/pkg/requestcontext"
)

// Service defines the consensus operations exposed over HTTP.
type Service interface {
	RecordApproval(ctx context.Context, capsuleID id.CapsuleID, beneficiaryID id.BeneficiaryID) (int, error)
	Reset(ctx context.Context, capsuleID id.CapsuleID) (int64, error)
	State(ctx context.Context, capsuleID id.CapsuleID) (*consensus.State, error)
}

// ApprovalRequest is the body of POST /capsules/{id}/approvals.
type ApprovalRequest struct {
	BeneficiaryID string `json:"beneficiaryId"`

	beneficiaryID id.BeneficiaryID
}

func (r *ApprovalRequest) Validate() error {
	bid, err := id.ParseBeneficiaryID(strings.TrimSpace(r.BeneficiaryID))
	if err != nil {
		return err
	}
	r.beneficiaryID = bid
	return nil
}

type ApprovalResponse struct {
	ApprovalsReceived int `json:"approvalsReceived"`
}

type ResetResponse struct {
	Epoch int64 `json:"epoch"`
}

// Handler handles beneficiary approval endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/capsules/{id}/approvals", h.HandleRecordApproval)
	r.Get("/capsules/{id}/approvals", h.HandleState)
	r.Delete("/capsules/{id}/approvals", h.HandleReset)
}

func (h *Handler) HandleRecordApproval(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	capsuleID, ok := h.capsuleID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ApprovalRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	count, err := h.service.RecordApproval(ctx, capsuleID, req.beneficiaryID)
	if err != nil {
		h.writeError(ctx, w, err, "failed to record approval")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ApprovalResponse{ApprovalsReceived: count})
}

func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	capsuleID, ok := h.capsuleID(w, r)
	if !ok {
		return
	}
	state, err := h.service.State(ctx, capsuleID)
	if err != nil {
		h.writeError(ctx, w, err, "failed to load consensus state")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, state)
}

func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	capsuleID, ok := h.capsuleID(w, r)
	if !ok {
		return
	}
	epoch, err := h.service.Reset(ctx, capsuleID)
	if err != nil {
		h.writeError(ctx, w, err, "failed to reset approvals")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ResetResponse{Epoch: epoch})
}

func (h *Handler) capsuleID(w http.ResponseWriter, r *http.Request) (id.CapsuleID, bool) {
	capsuleID, err := id.ParseCapsuleID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(r.Context(), w, err, "invalid capsule id")
		return id.CapsuleID{}, false
	}
	return capsuleID, true
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, "request_id", requestcontext.RequestID(ctx), "error", err)
	} else {
		h.logger.WarnContext(ctx, msg, "request_id", requestcontext.RequestID(ctx), "error", err)
	}
	httputil.WriteError(w, err)
}
