// Package ratelimit limits requests per client key, either in process or
// against a shared Redis counter.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type Limiter interface {
	Allow(ctx context.Context, key string) Decision
	// Backend names the implementation for metrics and logs.
	Backend() string
}

// MemoryLimiter is a per-key token bucket refilled at limit tokens per
// window. Idle keys are dropped by a background sweep.
type MemoryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	limit    int
	window   time.Duration
	every    rate.Limit
	idle     time.Duration
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	m := &MemoryLimiter{
		limiters: make(map[string]*entry),
		limit:    limit,
		window:   window,
		every:    rate.Limit(float64(limit) / window.Seconds()),
		idle:     2 * window,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go m.sweep(5 * time.Minute)
	return m
}

func (m *MemoryLimiter) Backend() string { return "memory" }

func (m *MemoryLimiter) Allow(_ context.Context, key string) Decision {
	now := m.now()

	m.mu.Lock()
	e, ok := m.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(m.every, m.limit)}
		m.limiters[key] = e
	}
	e.lastAccess = now
	lim := e.limiter
	m.mu.Unlock()

	allowed := lim.AllowN(now, 1)
	tokens := lim.TokensAt(now)
	remaining := int(math.Floor(tokens))
	if remaining < 0 {
		remaining = 0
	}
	// time until the bucket is full again
	missing := float64(m.limit) - tokens
	reset := now
	if missing > 0 && m.every > 0 {
		reset = now.Add(time.Duration(missing / float64(m.every) * float64(time.Second)))
	}
	return Decision{Allowed: allowed, Limit: m.limit, Remaining: remaining, ResetAt: reset}
}

func (m *MemoryLimiter) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stop:
			return
		}
	}
}

func (m *MemoryLimiter) cleanup() {
	threshold := m.now().Add(-m.idle)
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, e := range m.limiters {
		if e.lastAccess.Before(threshold) {
			delete(m.limiters, key)
		}
	}
}

// Stop ends the background sweep. It is safe to call more than once.
func (m *MemoryLimiter) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}
