package ratelimit

import (
	"context"
	"sync"
	"time"
)

// InMemory is a process-local sliding-window store.
type InMemory struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
	now     func() time.Time
}

// slidingWindow keeps admission timestamps oldest first.
type slidingWindow struct {
	timestamps []time.Time
	window     time.Duration
}

type MemoryOption func(*InMemory)

// WithClock replaces time.Now (tests only).
func WithClock(now func() time.Time) MemoryOption {
	return func(s *InMemory) {
		if now != nil {
			s.now = now
		}
	}
}

func NewInMemory(opts ...MemoryOption) *InMemory {
	s := &InMemory{windows: make(map[string]*slidingWindow), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) AllowN(_ context.Context, key string, cost, limit int, window time.Duration) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sw := s.windows[key]
	if sw == nil {
		sw = &slidingWindow{window: window}
		s.windows[key] = sw
	}
	sw.cleanup(now)

	if len(sw.timestamps)+cost <= limit {
		for range cost {
			sw.timestamps = append(sw.timestamps, now)
		}
		return &Result{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit - len(sw.timestamps),
			ResetAt:   sw.timestamps[0].Add(window),
		}, nil
	}

	resetAt := now.Add(window)
	if len(sw.timestamps) > 0 {
		resetAt = sw.timestamps[0].Add(window)
	}
	return &Result{
		Allowed:    false,
		Limit:      limit,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: retryAfter(resetAt, now),
	}, nil
}

// Reset forgets key.
func (s *InMemory) Reset(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
}

func (sw *slidingWindow) cleanup(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := 0
	for ; i < len(sw.timestamps); i++ {
		if sw.timestamps[i].After(cutoff) {
			break
		}
	}
	sw.timestamps = sw.timestamps[i:]
}
