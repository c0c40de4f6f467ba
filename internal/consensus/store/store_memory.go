package store

import (
	"context"
	"maps"
	"sync"
	"time"

	id "kairos/pkg/domain"
)

// InMemory keeps consensus records in process.
type InMemory struct {
	mu      sync.Mutex
	records map[id.CapsuleID]*Record
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[id.CapsuleID]*Record)}
}

// Approve adds the beneficiary's approval to the current epoch. A repeated
// approval keeps the first timestamp and reports added=false.
func (s *InMemory) Approve(_ context.Context, capsuleID id.CapsuleID, beneficiaryID id.BeneficiaryID, at time.Time) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.recordLocked(capsuleID)
	if _, ok := rec.Approvals[beneficiaryID]; ok {
		return false, len(rec.Approvals), nil
	}
	rec.Approvals[beneficiaryID] = at
	return true, len(rec.Approvals), nil
}

func (s *InMemory) Get(_ context.Context, capsuleID id.CapsuleID) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[capsuleID]
	if !ok {
		return Record{Approvals: map[id.BeneficiaryID]time.Time{}}, nil
	}
	return Record{Epoch: rec.Epoch, Approvals: maps.Clone(rec.Approvals)}, nil
}

func (s *InMemory) Count(_ context.Context, capsuleID id.CapsuleID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[capsuleID]; ok {
		return len(rec.Approvals), nil
	}
	return 0, nil
}

// Reset starts a new epoch with no approvals and returns its number.
func (s *InMemory) Reset(_ context.Context, capsuleID id.CapsuleID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.recordLocked(capsuleID)
	rec.Epoch++
	rec.Approvals = make(map[id.BeneficiaryID]time.Time)
	return rec.Epoch, nil
}

func (s *InMemory) Delete(_ context.Context, capsuleID id.CapsuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, capsuleID)
	return nil
}

func (s *InMemory) recordLocked(capsuleID id.CapsuleID) *Record {
	rec, ok := s.records[capsuleID]
	if !ok {
		rec = &Record{Approvals: make(map[id.BeneficiaryID]time.Time)}
		s.records[capsuleID] = rec
	}
	return rec
}
