package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	id "kairos/pkg/domain"
	"kairos/pkg/platform/sentinel"
)

// Keys share the capsule id as hash tag so every script touches one slot.
//
//	kairos:consensus:{<capsule>}:epoch           current epoch counter (INCR)
//	kairos:consensus:{<capsule>}:approvals:<n>   beneficiary -> approval time (HSETNX)
const keyPrefix = "kairos:consensus:"

var (
	approveScript = redis.NewScript(`
local epoch = redis.call('GET', KEYS[1]) or '0'
local key = KEYS[2] .. epoch
local added = redis.call('HSETNX', key, ARGV[1], ARGV[2])
return {added, redis.call('HLEN', key)}
`)

	countScript = redis.NewScript(`
local epoch = redis.call('GET', KEYS[1]) or '0'
return redis.call('HLEN', KEYS[2] .. epoch)
`)

	getScript = redis.NewScript(`
local epoch = redis.call('GET', KEYS[1]) or '0'
return {epoch, redis.call('HGETALL', KEYS[2] .. epoch)}
`)

	resetScript = redis.NewScript(`
local epoch = redis.call('INCR', KEYS[1])
redis.call('DEL', KEYS[2] .. (epoch - 1))
return epoch
`)

	deleteScript = redis.NewScript(`
local epoch = redis.call('GET', KEYS[1]) or '0'
redis.call('DEL', KEYS[1], KEYS[2] .. epoch)
return 1
`)
)

// Redis stores consensus records so every instance sees the same approvals.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (s *Redis) Approve(ctx context.Context, capsuleID id.CapsuleID, beneficiaryID id.BeneficiaryID, at time.Time) (bool, int, error) {
	res, err := approveScript.Run(ctx, s.client, keys(capsuleID),
		beneficiaryID.String(), at.UTC().Format(time.RFC3339Nano)).Int64Slice()
	if err != nil {
		return false, 0, unavailable("approve", capsuleID, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("approve %s: unexpected reply %v", capsuleID, res)
	}
	return res[0] == 1, int(res[1]), nil
}

func (s *Redis) Count(ctx context.Context, capsuleID id.CapsuleID) (int, error) {
	n, err := countScript.Run(ctx, s.client, keys(capsuleID)).Int()
	if err != nil {
		return 0, unavailable("count", capsuleID, err)
	}
	return n, nil
}

func (s *Redis) Get(ctx context.Context, capsuleID id.CapsuleID) (Record, error) {
	res, err := getScript.Run(ctx, s.client, keys(capsuleID)).Slice()
	if err != nil {
		return Record{}, unavailable("get", capsuleID, err)
	}
	if len(res) != 2 {
		return Record{}, fmt.Errorf("get %s: unexpected reply %v", capsuleID, res)
	}
	epochStr, _ := res[0].(string)
	epoch, err := strconv.ParseInt(epochStr, 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("get %s: parse epoch: %w", capsuleID, err)
	}
	pairs, _ := res[1].([]interface{})
	rec := Record{Epoch: epoch, Approvals: make(map[id.BeneficiaryID]time.Time, len(pairs)/2)}
	for i := 0; i+1 < len(pairs); i += 2 {
		field, _ := pairs[i].(string)
		value, _ := pairs[i+1].(string)
		bid, err := id.ParseBeneficiaryID(field)
		if err != nil {
			return Record{}, fmt.Errorf("get %s: parse beneficiary: %w", capsuleID, err)
		}
		at, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return Record{}, fmt.Errorf("get %s: parse approval time: %w", capsuleID, err)
		}
		rec.Approvals[bid] = at
	}
	return rec, nil
}

func (s *Redis) Reset(ctx context.Context, capsuleID id.CapsuleID) (int64, error) {
	epoch, err := resetScript.Run(ctx, s.client, keys(capsuleID)).Int64()
	if err != nil {
		return 0, unavailable("reset", capsuleID, err)
	}
	return epoch, nil
}

func (s *Redis) Delete(ctx context.Context, capsuleID id.CapsuleID) error {
	if err := deleteScript.Run(ctx, s.client, keys(capsuleID)).Err(); err != nil {
		return unavailable("delete", capsuleID, err)
	}
	return nil
}

func keys(capsuleID id.CapsuleID) []string {
	base := keyPrefix + "{" + capsuleID.String() + "}:"
	return []string{base + "epoch", base + "approvals:"}
}

func unavailable(op string, capsuleID id.CapsuleID, err error) error {
	return fmt.Errorf("redis %s %s: %w: %w", op, capsuleID, sentinel.ErrUnavailable, err)
}
