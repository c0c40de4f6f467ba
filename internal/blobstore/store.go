package blobstore

import (
	"context"
	"sync"

	"kairos/pkg/platform/sentinel"
)

// Store holds sealed blobs by id. Implementations return sentinel.ErrNotFound
// for unknown ids and wrap sentinel.ErrUnavailable for remote failures.
type Store interface {
	Put(ctx context.Context, blobID string, data []byte) error
	Get(ctx context.Context, blobID string) ([]byte, error)
	Delete(ctx context.Context, blobID string) error
}

// InMemory is a process-local Store.
type InMemory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewInMemory() *InMemory {
	return &InMemory{blobs: make(map[string][]byte)}
}

func (s *InMemory) Put(ctx context.Context, blobID string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[blobID] = append([]byte(nil), data...)
	return nil
}

func (s *InMemory) Get(ctx context.Context, blobID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[blobID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Delete is idempotent.
func (s *InMemory) Delete(ctx context.Context, blobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, blobID)
	return nil
}
