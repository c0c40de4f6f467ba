// Package ratelimit throttles requests with a sliding window per key. Claims
// get a tight per-capsule window because each attempt is a passphrase guess;
// everything else shares a per-actor quota.
package ratelimit

import (
	"context"
	"time"
)

// Result describes one admission decision.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int // seconds, set when denied
}

// Class names a limit and its window.
type Class struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Store admits cost units for key if the window still has room.
type Store interface {
	AllowN(ctx context.Context, key string, cost, limit int, window time.Duration) (*Result, error)
}

const keyPrefix = "kairos:ratelimit:"

func storeKey(class Class, key string) string {
	return keyPrefix + class.Name + ":" + key
}

func retryAfter(resetAt, now time.Time) int {
	d := resetAt.Sub(now)
	if d <= 0 {
		return 1
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
