// Package httpapi assembles the public HTTP surface: the middleware chain,
// operational endpoints and the authenticated domain routes.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"kairos/internal/platform/metrics"
	"kairos/pkg/platform/httputil"
	authmw "kairos/pkg/platform/middleware/auth"
	request "kairos/pkg/platform/middleware/request"
	"kairos/pkg/platform/middleware/requesttime"
)

// Registrar mounts a module's routes on the authenticated router.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck checks one backend. Nil checks are skipped.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Logger         *slog.Logger
	Validator      authmw.JWTValidator
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
	HealthChecks   map[string]HealthCheck
	// RateLimit applies after authentication, so it can key on the actor.
	RateLimit func(http.Handler) http.Handler
	Handlers  []Registrar
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewRouter wires the middleware chain and every module's routes.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(d.Logger))
	r.Use(request.Logger(d.Logger))
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	if d.RequestTimeout > 0 {
		r.Use(request.Timeout(d.RequestTimeout))
	}
	r.Use(requesttime.Middleware)

	r.Get("/health", healthHandler(d.HealthChecks))
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(request.ContentTypeJSON)
		r.Use(authmw.RequireAuth(d.Validator, d.Logger))
		if d.RateLimit != nil {
			r.Use(d.RateLimit)
		}
		for _, h := range d.Handlers {
			h.Register(r)
		}
	})
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		for _, name := range names {
			check := checks[name]
			if check == nil {
				continue
			}
			if resp.Checks == nil {
				resp.Checks = make(map[string]string, len(names))
			}
			if err := check(r.Context()); err != nil {
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
