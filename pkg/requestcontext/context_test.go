package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	id "kairos/pkg/domain"
)

func TestNowFallsBackToWallClock(t *testing.T) {
	before := time.Now()
	got := Now(context.Background())
	assert.False(t, got.Before(before))
}

func TestWithTimePinsNow(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := WithTime(context.Background(), fixed)
	assert.Equal(t, fixed, Now(ctx))
}

func TestActorRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, id.ActorID(""), Actor(ctx))

	ctx = WithActor(ctx, "0x742d...f44e")
	ctx = WithRequestID(ctx, "req-1")
	assert.Equal(t, id.ActorID("0x742d...f44e"), Actor(ctx))
	assert.Equal(t, "req-1", RequestID(ctx))
}
