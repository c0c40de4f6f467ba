package store

import (
	"context"
	"slices"
	"sync"

	"kairos/internal/capsule/models"
	id "kairos/pkg/domain"
	"kairos/pkg/platform/sentinel"
)

// InMemory is a process-local capsule store. Capsules are copied on the way in
// and out, so callers never alias stored state.
type InMemory struct {
	mu       sync.RWMutex
	capsules map[id.CapsuleID]*models.Capsule
}

func NewInMemory() *InMemory {
	return &InMemory{capsules: make(map[id.CapsuleID]*models.Capsule)}
}

func (s *InMemory) Create(_ context.Context, c *models.Capsule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.capsules[c.ID]; exists {
		return sentinel.ErrConflict
	}
	c.Version = 1
	s.capsules[c.ID] = c.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, capsuleID id.CapsuleID) (*models.Capsule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.capsules[capsuleID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

// FindByIDs returns the stored capsules among ids. Missing ids are skipped.
func (s *InMemory) FindByIDs(_ context.Context, ids []id.CapsuleID) ([]*models.Capsule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Capsule, 0, len(ids))
	for _, cid := range ids {
		if c, ok := s.capsules[cid]; ok {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

func (s *InMemory) ListByOwner(_ context.Context, owner id.ActorID) ([]*models.Capsule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Capsule, 0)
	for _, c := range s.capsules {
		if c.Owner == owner {
			out = append(out, c.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Capsule) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// Update writes c if its Version still matches the stored one and bumps it.
func (s *InMemory) Update(_ context.Context, c *models.Capsule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.capsules[c.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != c.Version {
		return sentinel.ErrConflict
	}
	c.Version++
	s.capsules[c.ID] = c.Clone()
	return nil
}

func (s *InMemory) Delete(_ context.Context, capsuleID id.CapsuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.capsules[capsuleID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.capsules, capsuleID)
	return nil
}
