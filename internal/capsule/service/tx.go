package service

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	id "kairos/pkg/domain"
	dErrors "kairos/pkg/domain-errors"
)

// CapsuleStoreTx runs fn as one atomic unit against a single capsule.
// Implementations may wrap a database transaction or, in memory, a lock.
type CapsuleStoreTx interface {
	RunInTx(ctx context.Context, capsuleID id.CapsuleID, fn func(ctx context.Context, store Store) error) error
}

// numCapsuleShards spreads capsules over independent locks so unrelated
// capsules never contend.
const numCapsuleShards = 128

// DefaultTxTimeout bounds a capsule transaction when the caller set no deadline.
const DefaultTxTimeout = 5 * time.Second

// ShardedTx serialises writes per capsule with sharded mutexes. Combined with
// the store's version check it gives the in-memory store the same guarantees
// as a row lock.
type ShardedTx struct {
	shards  [numCapsuleShards]sync.Mutex
	store   Store
	timeout time.Duration
}

func NewShardedTx(store Store, timeout time.Duration) *ShardedTx {
	return &ShardedTx{store: store, timeout: timeout}
}

func (t *ShardedTx) RunInTx(ctx context.Context, capsuleID id.CapsuleID, fn func(ctx context.Context, store Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = DefaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := shardFor(capsuleID)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	// The wait for the lock may have used up the deadline.
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(ctx, t.store)
}

func shardFor(capsuleID id.CapsuleID) uint32 {
	h := fnv.New32a()
	_, _ = h.Write(capsuleID[:])
	return h.Sum32() % numCapsuleShards
}
