package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"ankaa/models"
)

// admitScript prunes, counts and records in one round trip so concurrent
// processes cannot both take the last slot.
//
// KEYS[1] window key; ARGV: now (ms), window (ms), limit, member.
// Returns {1, 0} when admitted, {0, waitMs} otherwise.
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local wait = tonumber(oldest[2]) + window - now
  if wait < 1 then wait = 1 end
  return {0, wait}
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, 0}
`)

// RedisLimiter is a sliding-window Limiter shared by every process using the
// same Redis, backed by one sorted set per channel.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limits map[models.Channel]int
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter returns a RedisLimiter. Channels without a positive limit are never throttled.
func NewRedisLimiter(client *redis.Client, limits map[models.Channel]int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: "ankaa:ratelimit:",
		limits: limits,
		window: window,
		now:    time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (r *RedisLimiter) WithClock(now func() time.Time) *RedisLimiter {
	r.now = now
	return r
}

func (r *RedisLimiter) key(ch models.Channel) string {
	return r.prefix + string(ch)
}

func (r *RedisLimiter) Admit(ctx context.Context, ch models.Channel) (Decision, error) {
	limit := r.limits[ch]
	if limit <= 0 {
		return Decision{Allowed: true}, nil
	}

	now := r.now().UnixMilli()
	res, err := admitScript.Run(ctx, r.client, []string{r.key(ch)},
		now, r.window.Milliseconds(), limit, strconv.FormatInt(now, 10)+"-"+uuid.NewString(),
	).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script for %s: %w", ch, err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("rate limit script for %s: unexpected reply %v", ch, res)
	}
	allowed, _ := res[0].(int64)
	wait, _ := res[1].(int64)
	if allowed == 1 {
		return Decision{Allowed: true}, nil
	}
	return Decision{Allowed: false, Wait: time.Duration(wait) * time.Millisecond}, nil
}

func (r *RedisLimiter) Usage(ctx context.Context, ch models.Channel) (Usage, error) {
	u := Usage{Channel: ch, Limit: r.limits[ch], Window: r.window}
	if u.Limit <= 0 {
		u.Limit = 0
		return u, nil
	}
	min := strconv.FormatInt(r.now().Add(-r.window).UnixMilli(), 10)
	n, err := r.client.ZCount(ctx, r.key(ch), "("+min, "+inf").Result()
	if err != nil {
		return u, fmt.Errorf("rate limit usage for %s: %w", ch, err)
	}
	u.Used = int(n)
	return u, nil
}
