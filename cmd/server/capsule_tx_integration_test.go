//go:build integration

package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kairos/internal/capsule/models"
	capsulesvc "kairos/internal/capsule/service"
	capsulestore "kairos/internal/capsule/store"
	"kairos/internal/unlock"
	id "kairos/pkg/domain"
	"kairos/pkg/platform/sentinel"
	"kairos/pkg/testutil/containers"
)

type CapsuleTxSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *capsulestore.PostgresStore
	tx       *capsulePostgresTx
}

func TestCapsuleTxSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CapsuleTxSuite))
}

func (s *CapsuleTxSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = capsulestore.NewPostgres(s.postgres.DB)
	s.tx = newCapsulePostgresTx(s.postgres.DB, s.store, time.Second)
}

func (s *CapsuleTxSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "capsules"))
}

func (s *CapsuleTxSuite) newCapsule() *models.Capsule {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Capsule{
		ID:                id.NewCapsuleID(),
		Owner:             "owner-1",
		Title:             "Vault",
		Category:          models.CategoryPersonal,
		BlobID:            "walrus_0123456789abcdef",
		SealProof:         "0123456789abcdef",
		State:             models.StateActive,
		CreatedAt:         now,
		LastPing:          now,
		PingFrequencyDays: 30,
		HealthScore:       100,
		UnlockRules:       unlock.Rules{unlock.TimeLock{Days: 30}},
		Beneficiaries:     []models.Beneficiary{models.DefaultBeneficiary()},
		AuditLog:          []models.AuditEntry{},
	}
}

func (s *CapsuleTxSuite) TestCommitsOnSuccess() {
	ctx := context.Background()
	c := s.newCapsule()

	err := s.tx.RunInTx(ctx, c.ID, func(ctx context.Context, store capsulesvc.Store) error {
		return store.Create(ctx, c)
	})
	s.Require().NoError(err)

	got, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal("Vault", got.Title)
}

func (s *CapsuleTxSuite) TestRollsBackOnError() {
	ctx := context.Background()
	c := s.newCapsule()
	boom := errors.New("boom")

	err := s.tx.RunInTx(ctx, c.ID, func(ctx context.Context, store capsulesvc.Store) error {
		if err := store.Create(ctx, c); err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)

	_, err = s.store.FindByID(ctx, c.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *CapsuleTxSuite) TestCancelledContextIsTimeout() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.tx.RunInTx(ctx, id.NewCapsuleID(), func(context.Context, capsulesvc.Store) error {
		called = true
		return nil
	})
	s.Require().Error(err)
	s.False(called)
}
