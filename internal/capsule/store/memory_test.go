package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kairos/internal/capsule/models"
	"kairos/internal/unlock"
	id "kairos/pkg/domain"
	"kairos/pkg/platform/sentinel"
)

type CapsuleStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *CapsuleStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestCapsuleStoreSuite(t *testing.T) {
	suite.Run(t, new(CapsuleStoreSuite))
}

func (s *CapsuleStoreSuite) newCapsule(owner id.ActorID, createdAt time.Time) *models.Capsule {
	return &models.Capsule{
		ID:                id.NewCapsuleID(),
		Owner:             owner,
		Title:             "Family archive",
		Category:          models.CategoryPersonal,
		State:             models.StateActive,
		CreatedAt:         createdAt,
		LastPing:          createdAt,
		PingFrequencyDays: 90,
		HealthScore:       100,
		UnlockRules:       unlock.Rules{unlock.DeadManSwitch{Days: 90}},
		Beneficiaries:     []models.Beneficiary{models.DefaultBeneficiary()},
	}
}

// TestCreationAndLookups verifies capsules are stored and returned as copies.
func (s *CapsuleStoreSuite) TestCreationAndLookups() {
	s.Run("creates with version one", func() {
		c := s.newCapsule("owner-a", time.Now())
		s.Require().NoError(s.store.Create(s.ctx, c))
		s.Equal(int64(1), c.Version)

		found, err := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal(c.Title, found.Title)
		s.Equal(int64(1), found.Version)
	})

	s.Run("rejects duplicate ids", func() {
		c := s.newCapsule("owner-a", time.Now())
		s.Require().NoError(s.store.Create(s.ctx, c))
		s.ErrorIs(s.store.Create(s.ctx, c), sentinel.ErrConflict)
	})

	s.Run("returns ErrNotFound for unknown ID", func() {
		_, err := s.store.FindByID(s.ctx, id.NewCapsuleID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returned capsules do not alias stored state", func() {
		c := s.newCapsule("owner-a", time.Now())
		s.Require().NoError(s.store.Create(s.ctx, c))

		found, err := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(err)
		found.Title = "mutated"
		found.Beneficiaries[0].Name = "mutated"

		again, err := s.store.FindByID(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal("Family archive", again.Title)
		s.Equal(models.DefaultBeneficiaryName, again.Beneficiaries[0].Name)
	})
}

func (s *CapsuleStoreSuite) TestFindByIDs() {
	a := s.newCapsule("owner@example.com", time.Now())
	b := s.newCapsule("other@example.com", time.Now())
	s.Require().NoError(s.store.Create(s.ctx, a))
	s.Require().NoError(s.store.Create(s.ctx, b))

	found, err := s.store.FindByIDs(s.ctx, []id.CapsuleID{b.ID, id.NewCapsuleID(), a.ID})
	s.Require().NoError(err)
	s.Require().Len(found, 2)
	s.Equal(b.ID, found[0].ID)
	s.Equal(a.ID, found[1].ID)

	found[0].Title = "changed"
	stored, err := s.store.FindByID(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal("Family archive", stored.Title)
}

func (s *CapsuleStoreSuite) TestListByOwner() {
	t0 := time.Now()
	older := s.newCapsule("owner-b", t0)
	newer := s.newCapsule("owner-b", t0.Add(time.Hour))
	other := s.newCapsule("owner-c", t0)
	for _, c := range []*models.Capsule{older, newer, other} {
		s.Require().NoError(s.store.Create(s.ctx, c))
	}

	list, err := s.store.ListByOwner(s.ctx, "owner-b")
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(newer.ID, list[0].ID)
	s.Equal(older.ID, list[1].ID)

	empty, err := s.store.ListByOwner(s.ctx, "nobody")
	s.Require().NoError(err)
	s.Empty(empty)
}

// TestOptimisticVersioning verifies a stale write loses.
func (s *CapsuleStoreSuite) TestOptimisticVersioning() {
	c := s.newCapsule("owner-a", time.Now())
	s.Require().NoError(s.store.Create(s.ctx, c))

	first, _ := s.store.FindByID(s.ctx, c.ID)
	second, _ := s.store.FindByID(s.ctx, c.ID)

	first.Title = "first"
	s.Require().NoError(s.store.Update(s.ctx, first))
	s.Equal(int64(2), first.Version)

	second.Title = "second"
	s.ErrorIs(s.store.Update(s.ctx, second), sentinel.ErrConflict)

	found, _ := s.store.FindByID(s.ctx, c.ID)
	s.Equal("first", found.Title)

	s.ErrorIs(s.store.Update(s.ctx, s.newCapsule("x", time.Now())), sentinel.ErrNotFound)
}

func (s *CapsuleStoreSuite) TestDelete() {
	c := s.newCapsule("owner-a", time.Now())
	s.Require().NoError(s.store.Create(s.ctx, c))
	s.Require().NoError(s.store.Delete(s.ctx, c.ID))

	_, err := s.store.FindByID(s.ctx, c.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Delete(s.ctx, c.ID), sentinel.ErrNotFound)
}
