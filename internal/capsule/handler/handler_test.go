package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"kairos/internal/audit"
	"kairos/internal/capsule/handler/mocks"
	"kairos/internal/capsule/models"
	"kairos/internal/unlock"
	id "kairos/pkg/domain"
	dErrors "kairos/pkg/domain-errors"
	"kairos/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service
type CapsuleHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  http.Handler
}

func TestCapsuleHandlerSuite(t *testing.T) {
	suite.Run(t, new(CapsuleHandlerSuite))
}

func (s *CapsuleHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	New(s.service, logger).Register(r)
	s.router = r
}

func (s *CapsuleHandlerSuite) do(req *http.Request) *testResponse {
	rr := testutil.DoRequest(s.router, testutil.WithActor(req, "owner@example.com"))
	return &testResponse{code: rr.Code, body: rr.Body.Bytes()}
}

type testResponse struct {
	code int
	body []byte
}

func (s *CapsuleHandlerSuite) errorCode(resp *testResponse) string {
	var body map[string]string
	s.Require().NoError(json.Unmarshal(resp.body, &body))
	return body["error"]
}

func sampleCapsule() *models.Capsule {
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	return &models.Capsule{
		ID:                id.NewCapsuleID(),
		Owner:             "owner@example.com",
		Title:             "Cold wallet",
		Category:          models.CategoryCrypto,
		State:             models.StateActive,
		CreatedAt:         now,
		LastPing:          now,
		PingFrequencyDays: 30,
		HealthScore:       100,
		UnlockRules:       unlock.Rules{unlock.DeadManSwitch{Days: 30}},
		Version:           1,
	}
}

// =============================================================================
// Create
// =============================================================================

func (s *CapsuleHandlerSuite) TestCreate() {
	s.Run("decodes rules and beneficiaries", func() {
		created := sampleCapsule()
		s.service.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req models.CreateRequest) (*models.Capsule, error) {
				s.Equal("Cold wallet", req.Title)
				s.Equal(models.CategoryCrypto, req.Category)
				s.Equal([]byte("seed"), req.SecretData)
				s.Require().Len(req.UnlockRules, 1)
				s.Equal(unlock.DeadManSwitch{Days: 30}, req.UnlockRules[0])
				s.Require().Len(req.Beneficiaries, 1)
				s.Equal(models.RoleHeir, req.Beneficiaries[0].Role)
				return created, nil
			})

		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/capsules", `{
			"title": " Cold wallet ",
			"category": "crypto",
			"secretData": "seed",
			"password": "pw",
			"unlockRules": [{"type": "DEAD_MAN_SWITCH", "params": {"days": 30}}],
			"beneficiaries": [{"name": "Heir", "contact": "heir@example.com", "role": "heir"}]
		}`)
		resp := s.do(req)
		s.Equal(http.StatusCreated, resp.code)

		var body models.Capsule
		s.Require().NoError(json.Unmarshal(resp.body, &body))
		s.Equal(created.ID, body.ID)
		s.Equal(unlock.Rules{unlock.DeadManSwitch{Days: 30}}, body.UnlockRules)
	})

	s.Run("unknown rule type is rejected before the service", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/capsules", `{
			"title": "x", "secretData": "s", "password": "p",
			"unlockRules": [{"type": "MOON_PHASE", "params": {}}]
		}`)
		resp := s.do(req)
		s.Equal(http.StatusBadRequest, resp.code)
		s.Equal(string(dErrors.CodeUnsupportedRule), s.errorCode(resp))
	})

	s.Run("missing fields are validation errors", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/capsules", `{"title": "x"}`)
		resp := s.do(req)
		s.Equal(http.StatusBadRequest, resp.code)
		s.Equal(string(dErrors.CodeValidation), s.errorCode(resp))
	})

	s.Run("unknown fields are rejected", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/capsules", `{"title": "x", "owner": "someone"}`)
		resp := s.do(req)
		s.Equal(http.StatusBadRequest, resp.code)
		s.Equal(string(dErrors.CodeBadRequest), s.errorCode(resp))
	})
}

// =============================================================================
// Mutate and lifecycle
// =============================================================================

func (s *CapsuleHandlerSuite) TestMutate() {
	s.Run("passes only present fields", func() {
		c := sampleCapsule()
		s.service.EXPECT().Mutate(gomock.Any(), c.ID, gomock.Any()).DoAndReturn(
			func(_ context.Context, _ id.CapsuleID, p models.Patch) (*models.Capsule, error) {
				s.Require().NotNil(p.Title)
				s.Equal("New title", *p.Title)
				s.Nil(p.Description)
				s.Nil(p.UnlockRules)
				return c, nil
			})

		resp := s.do(testutil.NewRequestWithBody(s.T(), http.MethodPatch, "/capsules/"+c.ID.String(), `{"title": "New title"}`))
		s.Equal(http.StatusOK, resp.code)
	})

	s.Run("sealed capsules map to conflict", func() {
		c := sampleCapsule()
		s.service.EXPECT().Mutate(gomock.Any(), c.ID, gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeImmutableCapsule, "capsule is sealed and can no longer be modified"))

		resp := s.do(testutil.NewRequestWithBody(s.T(), http.MethodPatch, "/capsules/"+c.ID.String(), `{"title": "x"}`))
		s.Equal(http.StatusConflict, resp.code)
		s.Equal(string(dErrors.CodeImmutableCapsule), s.errorCode(resp))
	})

	s.Run("empty patch never reaches the service", func() {
		resp := s.do(testutil.NewRequestWithBody(s.T(), http.MethodPatch, "/capsules/"+id.NewCapsuleID().String(), `{}`))
		s.Equal(http.StatusBadRequest, resp.code)
	})
}

func (s *CapsuleHandlerSuite) TestInvalidCapsuleID() {
	resp := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/capsules/not-a-uuid/seal"))
	s.Equal(http.StatusBadRequest, resp.code)
	s.Equal(string(dErrors.CodeInvalidInput), s.errorCode(resp))
}

func (s *CapsuleHandlerSuite) TestSealPingDelete() {
	c := sampleCapsule()

	s.Run("seal", func() {
		s.service.EXPECT().Seal(gomock.Any(), c.ID).Return(c, nil)
		resp := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/capsules/"+c.ID.String()+"/seal"))
		s.Equal(http.StatusOK, resp.code)
	})

	s.Run("ping on terminal capsule", func() {
		s.service.EXPECT().Ping(gomock.Any(), c.ID).Return(nil, dErrors.New(dErrors.CodeConflict, "capsule is UNLOCKED"))
		resp := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/capsules/"+c.ID.String()+"/ping"))
		s.Equal(http.StatusConflict, resp.code)
	})

	s.Run("delete", func() {
		s.service.EXPECT().Delete(gomock.Any(), c.ID).Return(nil)
		resp := s.do(testutil.NewRequest(s.T(), http.MethodDelete, "/capsules/"+c.ID.String()))
		s.Equal(http.StatusNoContent, resp.code)
	})

	s.Run("storage outage is 503 without detail", func() {
		s.service.EXPECT().Get(gomock.Any(), c.ID).
			Return(nil, dErrors.Wrap(errors.New("dial tcp: refused"), dErrors.CodeStorageUnavailable, "storage is unavailable"))
		resp := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/capsules/"+c.ID.String()))
		s.Equal(http.StatusServiceUnavailable, resp.code)
		s.NotContains(string(resp.body), "dial tcp")
	})
}

func (s *CapsuleHandlerSuite) TestPingMany() {
	a, b := id.NewCapsuleID(), id.NewCapsuleID()
	s.service.EXPECT().PingMany(gomock.Any(), []id.CapsuleID{a, b}).Return([]models.PingResult{
		{CapsuleID: a},
		{CapsuleID: b, Code: string(dErrors.CodeNotFound), Error: "capsule not found"},
	}, nil)

	body := `{"capsuleIds": ["` + a.String() + `", "` + b.String() + `", " ` + strings.ToUpper(a.String()) + `"]}`
	resp := s.do(testutil.NewRequestWithBody(s.T(), http.MethodPost, "/capsules/ping", body))
	s.Equal(http.StatusOK, resp.code)

	var out PingBatchResponse
	s.Require().NoError(json.Unmarshal(resp.body, &out))
	s.Require().Len(out.Results, 2)
	s.Equal(string(dErrors.CodeNotFound), out.Results[1].Code)
}

// =============================================================================
// Unlock and claim
// =============================================================================

func (s *CapsuleHandlerSuite) TestClaim() {
	c := sampleCapsule()
	bid := id.NewBeneficiaryID()

	s.Run("returns plaintext and disables caching", func() {
		s.service.EXPECT().DecryptCapsule(gomock.Any(), c.ID, bid, "pw").
			Return(&models.ClaimResult{Plaintext: []byte("seed"), ReleasePercent: 100, State: models.StateUnlocked}, nil)

		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/capsules/"+c.ID.String()+"/claim",
			`{"beneficiaryId": "`+bid.String()+`", "passphrase": "pw"}`)
		rr := testutil.DoRequest(s.router, testutil.WithActor(req, "heir@example.com"))
		s.Equal(http.StatusOK, rr.Code)
		s.Equal("no-store", rr.Header().Get("Cache-Control"))

		var out ClaimResponse
		s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &out))
		s.Equal("seed", out.SecretData)
		s.Equal(models.StateUnlocked, out.State)
	})

	s.Run("integrity failure is 403", func() {
		s.service.EXPECT().DecryptCapsule(gomock.Any(), c.ID, bid, "guess").
			Return(nil, dErrors.New(dErrors.CodeIntegrity, "wrong passphrase or corrupted data"))

		resp := s.do(testutil.NewRequestWithBody(s.T(), http.MethodPost, "/capsules/"+c.ID.String()+"/claim",
			`{"beneficiaryId": "`+bid.String()+`", "passphrase": "guess"}`))
		s.Equal(http.StatusForbidden, resp.code)
		s.Equal(string(dErrors.CodeIntegrity), s.errorCode(resp))
	})

	s.Run("unknown beneficiary is 422", func() {
		s.service.EXPECT().DecryptCapsule(gomock.Any(), c.ID, bid, "pw").
			Return(nil, dErrors.New(dErrors.CodeUnknownBeneficiary, "beneficiary is not listed on this capsule"))

		resp := s.do(testutil.NewRequestWithBody(s.T(), http.MethodPost, "/capsules/"+c.ID.String()+"/claim",
			`{"beneficiaryId": "`+bid.String()+`", "passphrase": "pw"}`))
		s.Equal(http.StatusUnprocessableEntity, resp.code)
	})

	s.Run("passphrase is required", func() {
		resp := s.do(testutil.NewRequestWithBody(s.T(), http.MethodPost, "/capsules/"+c.ID.String()+"/claim",
			`{"beneficiaryId": "`+bid.String()+`"}`))
		s.Equal(http.StatusBadRequest, resp.code)
	})
}

func (s *CapsuleHandlerSuite) TestClaimLimiterWrapsOnlyClaim() {
	var limited []string
	limiter := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limited = append(limited, chi.URLParam(r, "id"))
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	r := chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)), WithClaimLimiter(limiter)).Register(r)

	c := sampleCapsule()
	req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/capsules/"+c.ID.String()+"/claim",
		`{"beneficiaryId": "`+id.NewBeneficiaryID().String()+`", "passphrase": "pw"}`)
	rr := testutil.DoRequest(r, testutil.WithActor(req, "heir@example.com"))
	s.Equal(http.StatusTooManyRequests, rr.Code)
	s.Equal([]string{c.ID.String()}, limited)

	s.service.EXPECT().Ping(gomock.Any(), c.ID).Return(c, nil)
	rr = testutil.DoRequest(r, testutil.WithActor(testutil.NewRequest(s.T(), http.MethodPost, "/capsules/"+c.ID.String()+"/ping"), "owner@example.com"))
	s.Equal(http.StatusOK, rr.Code)
	s.Len(limited, 1)
}

func (s *CapsuleHandlerSuite) TestEvaluateUnlock() {
	c := sampleCapsule()
	s.service.EXPECT().EvaluateUnlock(gomock.Any(), c.ID).Return(&models.UnlockEvaluation{
		Decision:     unlock.Decision{Satisfied: true, ReleasePercent: 100},
		State:        models.StatePendingUnlock,
		Transitioned: true,
	}, nil)

	resp := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/capsules/"+c.ID.String()+"/unlock"))
	s.Equal(http.StatusOK, resp.code)

	var out models.UnlockEvaluation
	s.Require().NoError(json.Unmarshal(resp.body, &out))
	s.True(out.Transitioned)
	s.Equal(models.StatePendingUnlock, out.State)
}

// =============================================================================
// Audit
// =============================================================================

func (s *CapsuleHandlerSuite) TestAudit() {
	s.Run("passes filter, search and limit", func() {
		s.service.EXPECT().AuditFeed(gomock.Any(), audit.FeedQuery{Filter: audit.FilterPing, Search: "wallet", Limit: 10}).
			Return([]audit.FeedItem{}, nil)
		s.service.EXPECT().AuditStats(gomock.Any()).Return(audit.Stats{Pings: 4}, nil)

		resp := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/audit?filter=ping&q=wallet&limit=10"))
		s.Equal(http.StatusOK, resp.code)

		var out AuditResponse
		s.Require().NoError(json.Unmarshal(resp.body, &out))
		s.Equal(4, out.Stats.Pings)
	})

	s.Run("unknown filter", func() {
		resp := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/audit?filter=EVERYTHING"))
		s.Equal(http.StatusBadRequest, resp.code)
	})

	s.Run("limit out of range", func() {
		resp := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/audit?limit=0"))
		s.Equal(http.StatusBadRequest, resp.code)
	})
}
