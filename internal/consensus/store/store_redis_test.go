package store

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "kairos/pkg/domain"
	"kairos/pkg/platform/sentinel"
)

func TestRedisKeysShareHashTag(t *testing.T) {
	capsuleID := id.NewCapsuleID()
	k := keys(capsuleID)
	require.Len(t, k, 2)
	tag := "{" + capsuleID.String() + "}"
	assert.Contains(t, k[0], tag)
	assert.Contains(t, k[1], tag)
}

func TestRedisUnreachableIsUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedis(client)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := store.Count(ctx, id.NewCapsuleID())
	require.ErrorIs(t, err, sentinel.ErrUnavailable)

	_, _, err = store.Approve(ctx, id.NewCapsuleID(), id.NewBeneficiaryID(), time.Now())
	require.ErrorIs(t, err, sentinel.ErrUnavailable)
}
