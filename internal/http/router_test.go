package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "kairos/internal/jwt_token"
	id "kairos/pkg/domain"
	request "kairos/pkg/platform/middleware/request"
	"kairos/pkg/requestcontext"
	"kairos/pkg/testutil"
)

type whoAmI struct{}

func (whoAmI) Register(r chi.Router) {
	r.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, requestcontext.Actor(r.Context()).String())
	})
	r.Post("/whoami", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func newTestRouter(checks map[string]HealthCheck) (http.Handler, *jwttoken.JWTService) {
	jwtSvc := jwttoken.NewJWTService("router-test-signing-key", "kairos", "kairos-vault")
	router := NewRouter(Deps{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Validator:      jwttoken.NewJWTServiceAdapter(jwtSvc),
		RequestTimeout: time.Second,
		HealthChecks:   checks,
		Handlers:       []Registrar{whoAmI{}},
	})
	return router, jwtSvc
}

func TestRouterAuthenticatesDomainRoutes(t *testing.T) {
	router, jwtSvc := newTestRouter(nil)

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/whoami"))
	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
	assert.NotEmpty(t, rr.Header().Get(request.HeaderRequestID))

	token, err := jwtSvc.GenerateAccessToken(id.ActorID("alice"), time.Hour)
	require.NoError(t, err)
	req := testutil.NewRequest(t, http.MethodGet, "/whoami")
	req.Header.Set("Authorization", "Bearer "+token)
	rr = testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, "alice", rr.Body.String())
}

func TestRouterRejectsNonJSONBodies(t *testing.T) {
	router, jwtSvc := newTestRouter(nil)
	token, err := jwtSvc.GenerateAccessToken(id.ActorID("alice"), time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/whoami", strings.NewReader("a=b"))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Authorization", "Bearer "+token)
	rr := testutil.DoRequest(router, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
}

func TestHealth(t *testing.T) {
	t.Run("all checks pass", func(t *testing.T) {
		router, _ := newTestRouter(map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
			"redis":    nil,
		})
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/health"))
		testutil.AssertStatus(t, rr, http.StatusOK)
		testutil.AssertJSONContains(t, rr, "status", "ok")
	})

	t.Run("failing check degrades", func(t *testing.T) {
		router, _ := newTestRouter(map[string]HealthCheck{
			"redis": func(context.Context) error { return errors.New("dial tcp: refused") },
		})
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/health"))
		testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
		assert.NotContains(t, rr.Body.String(), "refused")
		testutil.AssertJSONContains(t, rr, "status", "degraded")
	})
}

func TestMetricsEndpointIsPublic(t *testing.T) {
	router, _ := newTestRouter(nil)
	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))
	testutil.AssertStatus(t, rr, http.StatusOK)
}

func TestRouterRateLimitSeesActor(t *testing.T) {
	jwtSvc := jwttoken.NewJWTService("router-test-signing-key", "kairos", "kairos-vault")
	var seen []string
	router := NewRouter(Deps{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Validator:      jwttoken.NewJWTServiceAdapter(jwtSvc),
		RequestTimeout: time.Second,
		RateLimit: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = append(seen, requestcontext.Actor(r.Context()).String())
				next.ServeHTTP(w, r)
			})
		},
		Handlers: []Registrar{whoAmI{}},
	})

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/whoami"))
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	assert.Empty(t, seen)

	token, err := jwtSvc.GenerateAccessToken(id.ActorID("alice"), time.Hour)
	require.NoError(t, err)
	req := testutil.NewRequest(t, http.MethodGet, "/whoami")
	req.Header.Set("Authorization", "Bearer "+token)
	rr = testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, []string{"alice"}, seen)
}
