// Package resilience provides per-provider throttling and failure isolation
// for the upstream clients: a token-bucket rate limiter with adaptive
// pausing on upstream throttle hints, and a three-state circuit breaker.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rate limiter defaults.
const (
	DefaultPerMinute = 100
	DefaultBurst     = 20
	DefaultMaxWait   = 30 * time.Second
)

// secondsPerMinute converts a per-minute budget into a per-second rate.
const secondsPerMinute = 60.0

// ErrRateLimitExceeded indicates a token could not be acquired within the
// configured wait budget.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// LimiterConfig holds the token-bucket parameters for one provider.
type LimiterConfig struct {
	PerMinute int
	Burst     int
	MaxWait   time.Duration
}

// withDefaults fills unset fields.
func (c LimiterConfig) withDefaults() LimiterConfig {
	if c.PerMinute <= 0 {
		c.PerMinute = DefaultPerMinute
	}

	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}

	if c.MaxWait <= 0 {
		c.MaxWait = DefaultMaxWait
	}

	return c
}

// bucket is one (provider, credential) token bucket with an adaptive pause.
type bucket struct {
	limiter     *rate.Limiter
	maxWait     time.Duration
	mu          sync.Mutex
	pausedUntil time.Time
}

// RateLimiter maintains independent token buckets per (provider, credential)
// pair. Buckets are created on first use from the provider's config.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	configs map[string]LimiterConfig
}

// NewRateLimiter creates a limiter with per-provider configs. Providers
// absent from configs use the defaults.
func NewRateLimiter(configs map[string]LimiterConfig) *RateLimiter {
	if configs == nil {
		configs = map[string]LimiterConfig{}
	}

	return &RateLimiter{
		buckets: make(map[string]*bucket),
		configs: configs,
	}
}

// bucketFor returns (creating if needed) the bucket for the pair.
func (rl *RateLimiter) bucketFor(provider, credential string) *bucket {
	key := provider + "\x00" + credential

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if ok {
		return b
	}

	cfg := rl.configs[provider].withDefaults()

	b = &bucket{
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.PerMinute)/secondsPerMinute), cfg.Burst),
		maxWait: cfg.MaxWait,
	}
	rl.buckets[key] = b

	return b
}

// Acquire takes n tokens for the (provider, credential) pair, parking the
// caller until refill. It fails with ErrRateLimitExceeded once the bucket's
// max wait elapses, and with the context error on cancellation.
func (rl *RateLimiter) Acquire(ctx context.Context, provider, credential string, n int) error {
	if n <= 0 {
		n = 1
	}

	b := rl.bucketFor(provider, credential)

	b.mu.Lock()
	pause := time.Until(b.pausedUntil)
	b.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, b.maxWait)
	defer cancel()

	if pause > 0 {
		timer := time.NewTimer(pause)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-waitCtx.Done():
			return pauseWaitError(ctx)
		}
	}

	err := b.limiter.WaitN(waitCtx, n)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return ErrRateLimitExceeded
	}

	return nil
}

// pauseWaitError distinguishes caller cancellation from wait exhaustion.
func pauseWaitError(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	return ErrRateLimitExceeded
}

// PauseUntil suspends the (provider, credential) bucket until t, honouring
// an upstream 429 / Retry-After hint. A past instant is a no-op.
func (rl *RateLimiter) PauseUntil(provider, credential string, t time.Time) {
	b := rl.bucketFor(provider, credential)

	b.mu.Lock()
	defer b.mu.Unlock()

	if t.After(b.pausedUntil) {
		b.pausedUntil = t
	}
}
