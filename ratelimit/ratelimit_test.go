package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemory(t *testing.T, limit int, window time.Duration, clock *time.Time) *MemoryLimiter {
	t.Helper()
	m := NewMemoryLimiter(limit, window)
	m.now = func() time.Time { return *clock }
	t.Cleanup(m.Stop)
	return m
}

func TestMemoryLimiterRefillsOverWindow(t *testing.T) {
	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	m := newMemory(t, 3, 3*time.Second, &clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d := m.Allow(ctx, "10.0.0.1")
		require.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, 3, d.Limit)
		assert.Equal(t, 2-i, d.Remaining)
	}
	denied := m.Allow(ctx, "10.0.0.1")
	assert.False(t, denied.Allowed)
	assert.Zero(t, denied.Remaining)
	assert.True(t, denied.ResetAt.After(clock))

	assert.True(t, m.Allow(ctx, "10.0.0.2").Allowed, "keys are independent")

	clock = clock.Add(time.Second)
	assert.True(t, m.Allow(ctx, "10.0.0.1").Allowed)
	assert.False(t, m.Allow(ctx, "10.0.0.1").Allowed)
}

func TestMemoryLimiterDropsIdleKeys(t *testing.T) {
	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	m := newMemory(t, 1, time.Second, &clock)
	m.Allow(context.Background(), "a")

	clock = clock.Add(time.Minute)
	m.cleanup()

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Empty(t, m.limiters)
}

func TestMemoryLimiterStopIsIdempotent(t *testing.T) {
	m := NewMemoryLimiter(5, time.Second)
	m.Stop()
	assert.NotPanics(t, m.Stop)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLimiterFixedWindow(t *testing.T) {
	mr, client := newRedis(t)
	r := NewRedisLimiter(client, 2, time.Minute, nil)
	ctx := context.Background()

	first := r.Allow(ctx, "1.2.3.4")
	assert.True(t, first.Allowed)
	assert.Equal(t, 1, first.Remaining)
	assert.True(t, r.Allow(ctx, "1.2.3.4").Allowed)

	third := r.Allow(ctx, "1.2.3.4")
	assert.False(t, third.Allowed)
	assert.Zero(t, third.Remaining)
	assert.Equal(t, "3", mustGet(t, mr, "rl:1.2.3.4"))
	assert.Greater(t, mr.TTL("rl:1.2.3.4"), time.Duration(0))

	mr.FastForward(time.Minute + time.Second)
	assert.True(t, r.Allow(ctx, "1.2.3.4").Allowed, "counter expires with the window")
}

func TestRedisLimiterFallsBackWhenUnavailable(t *testing.T) {
	mr, client := newRedis(t)
	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	fallback := newMemory(t, 1, time.Hour, &clock)
	r := NewRedisLimiter(client, 100, time.Minute, fallback)
	mr.Close()

	ctx := context.Background()
	assert.True(t, r.Allow(ctx, "k").Allowed)
	assert.False(t, r.Allow(ctx, "k").Allowed, "fallback limit applies")

	open := NewRedisLimiter(nil, 5, time.Minute, nil)
	d := open.Allow(ctx, "k")
	assert.True(t, d.Allowed)
	assert.Equal(t, 5, d.Remaining)
}

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	_, err := NewRedisClient("://nope")
	assert.Error(t, err)

	c, err := NewRedisClient("redis://localhost:6379/0")
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
