package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"kairos/internal/audit"
	"kairos/internal/capsule/models"
	id "kairos/pkg/domain"
	dErrors "kairos/pkg/domain-errors"
	"kairos/pkg/platform/httputil"
	"kairos/pkg/requestcontext"
)

// Service defines the capsule operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, req models.CreateRequest) (*models.Capsule, error)
	Mutate(ctx context.Context, capsuleID id.CapsuleID, patch models.Patch) (*models.Capsule, error)
	Seal(ctx context.Context, capsuleID id.CapsuleID) (*models.Capsule, error)
	Ping(ctx context.Context, capsuleID id.CapsuleID) (*models.Capsule, error)
	PingMany(ctx context.Context, capsuleIDs []id.CapsuleID) ([]models.PingResult, error)
	Get(ctx context.Context, capsuleID id.CapsuleID) (*models.CapsuleDetails, error)
	ListByOwner(ctx context.Context) ([]*models.CapsuleDetails, error)
	Delete(ctx context.Context, capsuleID id.CapsuleID) error
	EvaluateUnlock(ctx context.Context, capsuleID id.CapsuleID) (*models.UnlockEvaluation, error)
	DecryptCapsule(ctx context.Context, capsuleID id.CapsuleID, beneficiaryID id.BeneficiaryID, passphrase string) (*models.ClaimResult, error)
	AuditFeed(ctx context.Context, q audit.FeedQuery) ([]audit.FeedItem, error)
	AuditStats(ctx context.Context) (audit.Stats, error)
}

const maxFeedLimit = 500

// Handler handles capsule endpoints.
type Handler struct {
	service      Service
	logger       *slog.Logger
	claimLimiter func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithClaimLimiter wraps the claim route, where every call is a passphrase guess.
func WithClaimLimiter(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.claimLimiter = mw
	}
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the capsule routes. Authentication is applied by the
// caller's router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/capsules", h.HandleCreate)
	r.Get("/capsules", h.HandleList)
	r.Post("/capsules/ping", h.HandlePingMany)
	r.Get("/capsules/{id}", h.HandleGet)
	r.Patch("/capsules/{id}", h.HandleMutate)
	r.Delete("/capsules/{id}", h.HandleDelete)
	r.Post("/capsules/{id}/seal", h.HandleSeal)
	r.Post("/capsules/{id}/ping", h.HandlePing)
	r.Get("/capsules/{id}/unlock", h.HandleEvaluateUnlock)
	if h.claimLimiter != nil {
		r.With(h.claimLimiter).Post("/capsules/{id}/claim", h.HandleClaim)
	} else {
		r.Post("/capsules/{id}/claim", h.HandleClaim)
	}
	r.Get("/audit", h.HandleAudit)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateCapsuleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	c, err := h.service.Create(ctx, req.toModel())
	if err != nil {
		h.writeError(ctx, w, err, "failed to create capsule")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	capsules, err := h.service.ListByOwner(ctx)
	if err != nil {
		h.writeError(ctx, w, err, "failed to list capsules")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListCapsulesResponse{Capsules: capsules})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	capsuleID, ok := h.capsuleID(w, r)
	if !ok {
		return
	}
	c, err := h.service.Get(ctx, capsuleID)
	if err != nil {
		h.writeError(ctx, w, err, "failed to get capsule")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) HandleMutate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	capsuleID, ok := h.capsuleID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[PatchCapsuleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	c, err := h.service.Mutate(ctx, capsuleID, req.patch)
	if err != nil {
		h.writeError(ctx, w, err, "failed to modify capsule")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	capsuleID, ok := h.capsuleID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(ctx, capsuleID); err != nil {
		h.writeError(ctx, w, err, "failed to delete capsule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleSeal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	capsuleID, ok := h.capsuleID(w, r)
	if !ok {
		return
	}
	c, err := h.service.Seal(ctx, capsuleID)
	if err != nil {
		h.writeError(ctx, w, err, "failed to seal capsule")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) HandlePing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	capsuleID, ok := h.capsuleID(w, r)
	if !ok {
		return
	}
	c, err := h.service.Ping(ctx, capsuleID)
	if err != nil {
		h.writeError(ctx, w, err, "failed to record ping")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) HandlePingMany(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[PingBatchRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	results, err := h.service.PingMany(ctx, req.ids)
	if err != nil {
		h.writeError(ctx, w, err, "failed to record pings")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PingBatchResponse{Results: results})
}

func (h *Handler) HandleEvaluateUnlock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	capsuleID, ok := h.capsuleID(w, r)
	if !ok {
		return
	}
	ev, err := h.service.EvaluateUnlock(ctx, capsuleID)
	if err != nil {
		h.writeError(ctx, w, err, "failed to evaluate unlock")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ev)
}

func (h *Handler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	capsuleID, ok := h.capsuleID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ClaimRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.DecryptCapsule(ctx, capsuleID, req.beneficiaryID, req.Passphrase)
	if err != nil {
		h.writeError(ctx, w, err, "failed to claim capsule")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, ClaimResponse{
		SecretData:     string(res.Plaintext),
		ReleasePercent: res.ReleasePercent,
		State:          res.State,
	})
}

func (h *Handler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	filter, err := audit.ParseFilter(query.Get("filter"))
	if err != nil {
		h.writeError(ctx, w, err, "invalid audit filter")
		return
	}
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxFeedLimit {
			h.writeError(ctx, w, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and 500"), "invalid audit limit")
			return
		}
	}

	items, err := h.service.AuditFeed(ctx, audit.FeedQuery{Filter: filter, Search: query.Get("q"), Limit: limit})
	if err != nil {
		h.writeError(ctx, w, err, "failed to load audit feed")
		return
	}
	stats, err := h.service.AuditStats(ctx)
	if err != nil {
		h.writeError(ctx, w, err, "failed to load audit stats")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AuditResponse{Items: items, Stats: stats})
}

func (h *Handler) capsuleID(w http.ResponseWriter, r *http.Request) (id.CapsuleID, bool) {
	capsuleID, err := id.ParseCapsuleID(chi.URLParam(r, "id"))
	if err != nil {
		h.logger.WarnContext(r.Context(), "invalid capsule id",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err,
		)
		httputil.WriteError(w, err)
		return id.CapsuleID{}, false
	}
	return capsuleID, true
}

// writeError logs at a level matching the status and writes the response.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	status := httputil.StatusFor(dErrors.CodeOf(err))
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
