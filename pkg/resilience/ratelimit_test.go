package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_BurstThenPark(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(map[string]LimiterConfig{
		"tracker": {PerMinute: 600, Burst: 3, MaxWait: time.Second},
	})
	ctx := context.Background()

	// Burst tokens are immediately available.
	for range 3 {
		require.NoError(t, rl.Acquire(ctx, "tracker", "token-a", 1))
	}

	// The fourth acquire parks until refill (600/min = 10/s, ~100ms).
	start := time.Now()
	require.NoError(t, rl.Acquire(ctx, "tracker", "token-a", 1))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestRateLimiter_MaxWaitExceeded(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(map[string]LimiterConfig{
		"scm": {PerMinute: 1, Burst: 1, MaxWait: 50 * time.Millisecond},
	})
	ctx := context.Background()

	require.NoError(t, rl.Acquire(ctx, "scm", "t", 1))

	err := rl.Acquire(ctx, "scm", "t", 1)
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
}

func TestRateLimiter_IndependentCredentials(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(map[string]LimiterConfig{
		"scm": {PerMinute: 1, Burst: 1, MaxWait: 50 * time.Millisecond},
	})
	ctx := context.Background()

	require.NoError(t, rl.Acquire(ctx, "scm", "alice", 1))

	// A different credential has its own bucket.
	require.NoError(t, rl.Acquire(ctx, "scm", "bob", 1))
}

func TestRateLimiter_PauseUntil(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(map[string]LimiterConfig{
		"scm": {PerMinute: 600, Burst: 10, MaxWait: time.Second},
	})
	ctx := context.Background()

	rl.PauseUntil("scm", "t", time.Now().Add(100*time.Millisecond))

	start := time.Now()
	require.NoError(t, rl.Acquire(ctx, "scm", "t", 1))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestRateLimiter_CancelledContext(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(map[string]LimiterConfig{
		"scm": {PerMinute: 1, Burst: 1, MaxWait: time.Minute},
	})

	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, rl.Acquire(ctx, "scm", "t", 1))

	cancel()

	err := rl.Acquire(ctx, "scm", "t", 1)
	assert.ErrorIs(t, err, context.Canceled)
}
