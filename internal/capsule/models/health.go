package models

import (
	"time"

	"kairos/internal/unlock"
)

// AttentionWindow is how close to the ping deadline the owner is nudged.
const AttentionWindow = 7 * unlock.Day

// Health is the derived liveness view of a capsule at a point in time.
type Health struct {
	Score          int       `json:"score"`
	GracePeriod    bool      `json:"gracePeriod"`
	NeedsAttention bool      `json:"needsAttention"`
	NextPingDue    time.Time `json:"nextPingDue"`
}

// ComputeHealth decays linearly from 100 at the last ping to 0 at the end of
// the ping window. Past the window the capsule is in its grace period.
func ComputeHealth(c *Capsule, now time.Time) Health {
	window := time.Duration(c.PingFrequencyDays) * unlock.Day
	due := c.LastPing.Add(window)
	h := Health{NextPingDue: due}

	elapsed := now.Sub(c.LastPing)
	if elapsed < 0 {
		elapsed = 0
	}
	if window <= 0 || elapsed > window {
		h.GracePeriod = true
		h.NeedsAttention = true
		return h
	}

	// Integer arithmetic on milliseconds keeps the floor exact.
	decay := (100 * elapsed.Milliseconds()) / window.Milliseconds()
	h.Score = 100 - int(decay)
	h.NeedsAttention = due.Sub(now) <= AttentionWindow
	return h
}
