package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"kairos/pkg/platform/httputil"
	"kairos/pkg/requestcontext"
)

// KeyFunc derives the throttling key of a request. ok=false skips limiting.
type KeyFunc func(r *http.Request) (key string, ok bool)

// ByActor keys on the authenticated actor.
func ByActor(r *http.Request) (string, bool) {
	actor := requestcontext.Actor(r.Context())
	return actor.String(), actor != ""
}

// ByActorAndCapsule keys on the actor and the {id} route parameter.
func ByActorAndCapsule(r *http.Request) (string, bool) {
	actor := requestcontext.Actor(r.Context())
	capsuleID := chi.URLParam(r, "id")
	if actor == "" || capsuleID == "" {
		return "", false
	}
	return actor.String() + ":" + capsuleID, true
}

type exceededResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	RetryAfter       int    `json:"retry_after"`
}

type Middleware struct {
	store    Store
	logger   *slog.Logger
	metrics  *Metrics
	disabled bool
}

type Option func(*Middleware)

// WithDisabled turns every Limit into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Middleware) {
		m.metrics = metrics
	}
}

func New(store Store, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{store: store, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// Limit admits requests of class per key. Store failures fail open.
func (m *Middleware) Limit(class Class, keyFn KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil || m.disabled {
				next.ServeHTTP(w, r)
				return
			}
			key, ok := keyFn(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			result, err := m.store.AllowN(ctx, storeKey(class, key), 1, class.Limit, class.Window)
			if err != nil {
				m.metrics.IncStoreErrors()
				m.logger.ErrorContext(ctx, "failed to check rate limit",
					"class", class.Name,
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)
			if !result.Allowed {
				m.metrics.IncRejected(class.Name)
				m.logger.WarnContext(ctx, "rate limit exceeded",
					"class", class.Name,
					"actor", requestcontext.Actor(ctx).String(),
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
				httputil.WriteJSON(w, http.StatusTooManyRequests, exceededResponse{
					Error:            "rate_limit_exceeded",
					ErrorDescription: "too many requests, try again later",
					RetryAfter:       result.RetryAfter,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result *Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
