package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// fixedWindowScript increments the window counter, arms its expiry on the
// first hit and returns {count, ttl_ms}.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RedisLimiter counts requests per key in fixed windows shared by every API
// instance. When Redis is unreachable it defers to Fallback.
type RedisLimiter struct {
	client   redis.UniversalClient
	limit    int
	window   time.Duration
	prefix   string
	fallback Limiter
	now      func() time.Time
}

func NewRedisLimiter(client redis.UniversalClient, limit int, window time.Duration, fallback Limiter) *RedisLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{
		client:   client,
		limit:    limit,
		window:   window,
		prefix:   "rl:",
		fallback: fallback,
		now:      time.Now,
	}
}

// NewRedisClient builds a client from a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (r *RedisLimiter) Backend() string { return "redis" }

func (r *RedisLimiter) Allow(ctx context.Context, key string) Decision {
	if r.client == nil {
		return r.fallbackAllow(ctx, key)
	}
	res, err := fixedWindowScript.Run(ctx, r.client, []string{r.prefix + key}, r.window.Milliseconds()).Int64Slice()
	if err != nil || len(res) != 2 {
		log.Warn().Err(err).Str("key", key).Msg("redis rate limiter unavailable, using fallback")
		return r.fallbackAllow(ctx, key)
	}

	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	if ttl < 0 {
		ttl = r.window
	}
	remaining := r.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= r.limit,
		Limit:     r.limit,
		Remaining: remaining,
		ResetAt:   r.now().Add(ttl),
	}
}

func (r *RedisLimiter) fallbackAllow(ctx context.Context, key string) Decision {
	if r.fallback == nil {
		return Decision{Allowed: true, Limit: r.limit, Remaining: r.limit, ResetAt: r.now().Add(r.window)}
	}
	return r.fallback.Allow(ctx, key)
}
