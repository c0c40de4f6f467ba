package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"kairos/pkg/platform/sentinel"
)

// slidingWindowScript trims the window, admits cost members if they fit and
// returns {allowed, count, oldestMillis}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count + cost <= limit then
  for i = 1, cost do
    redis.call('ZADD', key, now, ARGV[5] .. ':' .. i)
  end
  redis.call('PEXPIRE', key, window)
  count = count + cost
  allowed = 1
end
local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
  oldest = tonumber(first[2])
end
return {allowed, count, oldest}
`)

// Redis is a sliding-window store shared by every replica.
type Redis struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, now: time.Now}
}

func (s *Redis) AllowN(ctx context.Context, key string, cost, limit int, window time.Duration) (*Result, error) {
	now := s.now()
	raw, err := slidingWindowScript.Run(ctx, s.client, []string{key},
		now.UnixMilli(), window.Milliseconds(), limit, cost, uuid.NewString()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis ratelimit %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	if len(raw) != 3 {
		return nil, fmt.Errorf("redis ratelimit %s: unexpected reply %v", key, raw)
	}

	count := int(raw[1])
	resetAt := time.UnixMilli(raw[2]).Add(window)
	res := &Result{
		Allowed:   raw[0] == 1,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   resetAt,
	}
	if !res.Allowed {
		res.Remaining = 0
		res.RetryAfter = retryAfter(resetAt, now)
	}
	return res, nil
}
