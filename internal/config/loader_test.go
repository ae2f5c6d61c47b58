package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprintforge/sprintforge/internal/config"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sprintforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.LoadConfig(writeConfigFile(t, ""))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultCacheMaxEntries, cfg.Cache.Memory.MaxEntries)
	assert.Equal(t, config.DefaultCacheTTLSeconds, cfg.Cache.Memory.DefaultTTLSeconds)
	assert.Equal(t, config.DefaultDistributedDeadlineMs, cfg.Cache.Distributed.DeadlineMs)
	assert.Empty(t, cfg.Cache.Distributed.Endpoint)

	for _, provider := range []string{"tracker", "scm"} {
		assert.Equal(t, config.DefaultRateLimitPerMinute, cfg.RateLimit[provider].PerMinute)
		assert.Equal(t, config.DefaultRateLimitBurst, cfg.RateLimit[provider].Burst)
		assert.Equal(t, config.DefaultFailureThreshold, cfg.Circuit[provider].FailureThreshold)
		assert.Equal(t, config.DefaultCooldownMs, cfg.Circuit[provider].CooldownMs)
	}

	assert.Equal(t, config.DefaultRetryMaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay())
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay())

	assert.Equal(t, config.DefaultPREnhancementCap, cfg.Aggregator.PREnhancementCap)
	assert.Equal(t, config.DefaultPREnhancementBatchSize, cfg.Aggregator.PREnhancementBatchSize)

	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.LogJSON)
	assert.False(t, cfg.Tracker.Configured())
	assert.False(t, cfg.SCM.Configured())
}

func TestLoadConfig_FileOverrides(t *testing.T) {
	path := writeConfigFile(t, `
tracker:
  endpoint: https://tracker.example.com
  token: tracker-secret
scm:
  endpoint: https://api.scm.example.com
  graphqlEndpoint: https://api.scm.example.com/graphql
  token: scm-secret
  graphqlToken: scm-graphql-secret
  owner: sprintforge
  repo: sprintforge
cache:
  memory:
    maxEntries: 1000
  distributed:
    endpoint: localhost:6379
    deadlineMs: 500
rateLimit:
  scm:
    perMinute: 30
    burst: 5
circuit:
  scm:
    failureThreshold: 3
    cooldownMs: 10000
retry:
  maxAttempts: 2
aggregator:
  prEnhancementCap: 5
tool:
  generate_sprint_report:
    quotaPerMinute: 10
tiers:
  labels:
    customer-impacting: 1
  components:
    billing: 1
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.Tracker.Configured())
	assert.Equal(t, "tracker-secret", cfg.Tracker.Token)
	assert.True(t, cfg.SCM.Configured())
	assert.Equal(t, "sprintforge", cfg.SCM.Owner)

	assert.Equal(t, 1000, cfg.Cache.Memory.MaxEntries)
	assert.Equal(t, config.DefaultCacheTTLSeconds, cfg.Cache.Memory.DefaultTTLSeconds)
	assert.Equal(t, "localhost:6379", cfg.Cache.Distributed.Endpoint)
	assert.Equal(t, 500*time.Millisecond, cfg.Cache.Distributed.Deadline())

	assert.Equal(t, 30, cfg.RateLimit["scm"].PerMinute)
	assert.Equal(t, 5, cfg.RateLimit["scm"].Burst)
	assert.Equal(t, config.DefaultRateLimitPerMinute, cfg.RateLimit["tracker"].PerMinute)

	assert.Equal(t, 3, cfg.Circuit["scm"].FailureThreshold)
	assert.Equal(t, 10*time.Second, cfg.Circuit["scm"].Cooldown())

	assert.Equal(t, 2, cfg.Retry.MaxAttempts)
	assert.Equal(t, 5, cfg.Aggregator.PREnhancementCap)

	assert.Equal(t, map[string]int{"generate_sprint_report": 10}, cfg.ToolQuotas())
	assert.Equal(t, 1, cfg.Tiers.Labels["customer-impacting"])
	assert.Equal(t, 1, cfg.Tiers.Components["billing"])
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("SPRINTFORGE_TRACKER_ENDPOINT", "https://env.example.com")
	t.Setenv("SPRINTFORGE_RETRY_MAXATTEMPTS", "5")

	cfg, err := config.LoadConfig(writeConfigFile(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.Tracker.Endpoint)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
}

func TestLoadConfig_InvalidValuesRejected(t *testing.T) {
	path := writeConfigFile(t, `
retry:
  maxAttempts: 0
`)

	_, err := config.LoadConfig(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidRetryAttempts)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	cfg, loadErr := config.LoadConfig("")
	require.NoError(t, loadErr)
	assert.Equal(t, config.DefaultCacheMaxEntries, cfg.Cache.Memory.MaxEntries)
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	path := writeConfigFile(t, "cache: [not a map")

	_, err := config.LoadConfig(path)
	assert.Error(t, err)
}
