package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprintforge/sprintforge/internal/config"
)

func validConfig() *config.Config {
	return &config.Config{
		Cache: config.CacheConfig{
			Memory: config.MemoryCacheConfig{
				MaxEntries:        config.DefaultCacheMaxEntries,
				DefaultTTLSeconds: config.DefaultCacheTTLSeconds,
			},
			Distributed: config.DistributedCacheConfig{
				DeadlineMs: config.DefaultDistributedDeadlineMs,
			},
		},
		Retry: config.RetryConfig{
			MaxAttempts: config.DefaultRetryMaxAttempts,
			BaseDelayMs: config.DefaultRetryBaseDelayMs,
			MaxDelayMs:  config.DefaultRetryMaxDelayMs,
		},
		Aggregator: config.AggregatorConfig{
			PREnhancementCap:       config.DefaultPREnhancementCap,
			PREnhancementBatchSize: config.DefaultPREnhancementBatchSize,
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr error
	}{
		{
			name:    "zero max entries",
			mutate:  func(c *config.Config) { c.Cache.Memory.MaxEntries = 0 },
			wantErr: config.ErrInvalidMaxEntries,
		},
		{
			name:    "zero default ttl",
			mutate:  func(c *config.Config) { c.Cache.Memory.DefaultTTLSeconds = 0 },
			wantErr: config.ErrInvalidDefaultTTL,
		},
		{
			name:    "zero distributed deadline",
			mutate:  func(c *config.Config) { c.Cache.Distributed.DeadlineMs = 0 },
			wantErr: config.ErrInvalidCacheDeadline,
		},
		{
			name: "zero per minute",
			mutate: func(c *config.Config) {
				c.RateLimit = map[string]config.RateLimitConfig{"tracker": {PerMinute: 0, Burst: 20}}
			},
			wantErr: config.ErrInvalidPerMinute,
		},
		{
			name: "negative burst",
			mutate: func(c *config.Config) {
				c.RateLimit = map[string]config.RateLimitConfig{"tracker": {PerMinute: 100, Burst: -1}}
			},
			wantErr: config.ErrInvalidBurst,
		},
		{
			name: "zero failure threshold",
			mutate: func(c *config.Config) {
				c.Circuit = map[string]config.CircuitConfig{"scm": {FailureThreshold: 0, CooldownMs: 60000}}
			},
			wantErr: config.ErrInvalidFailureThreshold,
		},
		{
			name: "zero cooldown",
			mutate: func(c *config.Config) {
				c.Circuit = map[string]config.CircuitConfig{"scm": {FailureThreshold: 5, CooldownMs: 0}}
			},
			wantErr: config.ErrInvalidCooldown,
		},
		{
			name:    "zero retry attempts",
			mutate:  func(c *config.Config) { c.Retry.MaxAttempts = 0 },
			wantErr: config.ErrInvalidRetryAttempts,
		},
		{
			name:    "zero base delay",
			mutate:  func(c *config.Config) { c.Retry.BaseDelayMs = 0 },
			wantErr: config.ErrInvalidRetryDelay,
		},
		{
			name: "max delay below base delay",
			mutate: func(c *config.Config) {
				c.Retry.BaseDelayMs = 5000
				c.Retry.MaxDelayMs = 1000
			},
			wantErr: config.ErrInvalidRetryDelayOrder,
		},
		{
			name:    "negative enhancement cap",
			mutate:  func(c *config.Config) { c.Aggregator.PREnhancementCap = -1 },
			wantErr: config.ErrInvalidEnhancementCap,
		},
		{
			name:    "zero enhancement batch",
			mutate:  func(c *config.Config) { c.Aggregator.PREnhancementBatchSize = 0 },
			wantErr: config.ErrInvalidEnhancementBatch,
		},
		{
			name: "negative tool quota",
			mutate: func(c *config.Config) {
				c.Tool = map[string]config.ToolConfig{"get_sprints": {QuotaPerMinute: -5}}
			},
			wantErr: config.ErrInvalidToolQuota,
		},
		{
			name: "tier out of range",
			mutate: func(c *config.Config) {
				c.Tiers.Labels = map[string]int{"customer-impacting": 4}
			},
			wantErr: config.ErrInvalidTier,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConfigured(t *testing.T) {
	t.Parallel()

	assert.False(t, config.TrackerConfig{}.Configured())
	assert.True(t, config.TrackerConfig{Endpoint: "https://tracker.example.com"}.Configured())
	assert.False(t, config.SCMConfig{Token: "t"}.Configured())
	assert.True(t, config.SCMConfig{Endpoint: "https://scm.example.com"}.Configured())
}

func TestToolQuotas(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	assert.Nil(t, cfg.ToolQuotas())

	cfg.Tool = map[string]config.ToolConfig{
		"generate_sprint_report": {QuotaPerMinute: 10},
		"get_sprints":            {QuotaPerMinute: 120},
	}

	quotas := cfg.ToolQuotas()
	assert.Equal(t, map[string]int{
		"generate_sprint_report": 10,
		"get_sprints":            120,
	}, quotas)
}
