// Package config loads and validates the sprintforge configuration tree
// from file, environment, and defaults.
package config

import (
	"errors"
	"time"
)

// Defaults for unset configuration values.
const (
	// DefaultCacheMaxEntries bounds the in-memory cache tier.
	DefaultCacheMaxEntries = 50000
	// DefaultCacheTTLSeconds is the fallback TTL for entries stored
	// without an explicit lifetime.
	DefaultCacheTTLSeconds = 300
	// DefaultDistributedDeadlineMs bounds every distributed tier operation.
	DefaultDistributedDeadlineMs = 2000

	// DefaultRateLimitPerMinute is the sustained request budget per provider.
	DefaultRateLimitPerMinute = 100
	// DefaultRateLimitBurst is the token bucket burst allowance.
	DefaultRateLimitBurst = 20

	// DefaultFailureThreshold is the consecutive retriable failures that
	// open a provider circuit.
	DefaultFailureThreshold = 5
	// DefaultCooldownMs is how long an open circuit waits before probing.
	DefaultCooldownMs = 60000

	// DefaultRetryMaxAttempts caps attempts per upstream call.
	DefaultRetryMaxAttempts = 3
	// DefaultRetryBaseDelayMs is the first backoff delay.
	DefaultRetryBaseDelayMs = 1000
	// DefaultRetryMaxDelayMs caps the backoff delay.
	DefaultRetryMaxDelayMs = 30000

	// DefaultPREnhancementCap bounds per-report pull request detail fetches.
	DefaultPREnhancementCap = 15
	// DefaultPREnhancementBatchSize is the concurrent detail fetch batch.
	DefaultPREnhancementBatchSize = 5
)

// Config is the top-level configuration struct for sprintforge.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Tracker       TrackerConfig              `mapstructure:"tracker"`
	SCM           SCMConfig                  `mapstructure:"scm"`
	Cache         CacheConfig                `mapstructure:"cache"`
	RateLimit     map[string]RateLimitConfig `mapstructure:"rateLimit"`
	Circuit       map[string]CircuitConfig   `mapstructure:"circuit"`
	Retry         RetryConfig                `mapstructure:"retry"`
	Aggregator    AggregatorConfig           `mapstructure:"aggregator"`
	Tool          map[string]ToolConfig      `mapstructure:"tool"`
	Tiers         TiersConfig                `mapstructure:"tiers"`
	Observability ObservabilityConfig        `mapstructure:"observability"`
}

// TrackerConfig holds the issue tracker connection settings.
type TrackerConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Token    string `mapstructure:"token"`
}

// Configured reports whether the tracker upstream is usable.
func (c TrackerConfig) Configured() bool {
	return c.Endpoint != ""
}

// SCMConfig holds the source control connection settings. All fields are
// optional; an unconfigured SCM degrades reports to tracker-only content.
type SCMConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	GraphQLEndpoint string `mapstructure:"graphqlEndpoint"`
	Token           string `mapstructure:"token"`
	GraphQLToken    string `mapstructure:"graphqlToken"`
	Owner           string `mapstructure:"owner"`
	Repo            string `mapstructure:"repo"`
}

// Configured reports whether the SCM upstream is usable.
func (c SCMConfig) Configured() bool {
	return c.Endpoint != ""
}

// CacheConfig holds the two cache tier settings.
type CacheConfig struct {
	Memory      MemoryCacheConfig      `mapstructure:"memory"`
	Distributed DistributedCacheConfig `mapstructure:"distributed"`
}

// MemoryCacheConfig holds the in-process tier settings.
type MemoryCacheConfig struct {
	MaxEntries        int `mapstructure:"maxEntries"`
	DefaultTTLSeconds int `mapstructure:"defaultTTLSeconds"`
}

// DistributedCacheConfig holds the shared tier settings. An empty endpoint
// disables the tier.
type DistributedCacheConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	DeadlineMs int    `mapstructure:"deadlineMs"`
}

// Deadline returns the distributed tier operation deadline.
func (c DistributedCacheConfig) Deadline() time.Duration {
	return time.Duration(c.DeadlineMs) * time.Millisecond
}

// RateLimitConfig holds per-provider token bucket settings.
type RateLimitConfig struct {
	PerMinute int `mapstructure:"perMinute"`
	Burst     int `mapstructure:"burst"`
}

// CircuitConfig holds per-provider circuit breaker settings.
type CircuitConfig struct {
	FailureThreshold int `mapstructure:"failureThreshold"`
	CooldownMs       int `mapstructure:"cooldownMs"`
}

// Cooldown returns the open-state wait before the circuit probes again.
func (c CircuitConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMs) * time.Millisecond
}

// RetryConfig holds the backoff policy for retriable upstream failures.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"maxAttempts"`
	BaseDelayMs int `mapstructure:"baseDelayMs"`
	MaxDelayMs  int `mapstructure:"maxDelayMs"`
}

// BaseDelay returns the first backoff delay.
func (c RetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the backoff delay cap.
func (c RetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}

// AggregatorConfig holds report generation knobs.
type AggregatorConfig struct {
	PREnhancementCap       int `mapstructure:"prEnhancementCap"`
	PREnhancementBatchSize int `mapstructure:"prEnhancementBatchSize"`
}

// ToolConfig holds per-tool invocation settings.
type ToolConfig struct {
	QuotaPerMinute int `mapstructure:"quotaPerMinute"`
}

// TiersConfig maps issue labels and components to report tiers.
type TiersConfig struct {
	Labels     map[string]int `mapstructure:"labels"`
	Components map[string]int `mapstructure:"components"`
}

// ObservabilityConfig holds logging and telemetry settings.
type ObservabilityConfig struct {
	Environment    string  `mapstructure:"environment"`
	LogLevel       string  `mapstructure:"logLevel"`
	LogJSON        bool    `mapstructure:"logJSON"`
	MetricsEnabled bool    `mapstructure:"metricsEnabled"`
	SampleRatio    float64 `mapstructure:"sampleRatio"`

	// MetricsAddr is the listen address for the Prometheus scrape
	// endpoint, e.g. ":9464". Empty disables the endpoint.
	MetricsAddr string `mapstructure:"metricsAddr"`
}

// Tier bounds for label and component mappings.
const (
	minTier = 1
	maxTier = 3
)

// Sentinel errors for configuration validation.
var (
	// ErrInvalidMaxEntries indicates the memory cache bound is not positive.
	ErrInvalidMaxEntries = errors.New("cache.memory.maxEntries must be positive")
	// ErrInvalidDefaultTTL indicates the default TTL is not positive.
	ErrInvalidDefaultTTL = errors.New("cache.memory.defaultTTLSeconds must be positive")
	// ErrInvalidCacheDeadline indicates the distributed deadline is not positive.
	ErrInvalidCacheDeadline = errors.New("cache.distributed.deadlineMs must be positive")
	// ErrInvalidPerMinute indicates a rate limit per-minute value is not positive.
	ErrInvalidPerMinute = errors.New("rateLimit perMinute must be positive")
	// ErrInvalidBurst indicates a rate limit burst value is negative.
	ErrInvalidBurst = errors.New("rateLimit burst must be non-negative")
	// ErrInvalidFailureThreshold indicates a circuit threshold is not positive.
	ErrInvalidFailureThreshold = errors.New("circuit failureThreshold must be positive")
	// ErrInvalidCooldown indicates a circuit cooldown is not positive.
	ErrInvalidCooldown = errors.New("circuit cooldownMs must be positive")
	// ErrInvalidRetryAttempts indicates the retry attempt cap is not positive.
	ErrInvalidRetryAttempts = errors.New("retry.maxAttempts must be positive")
	// ErrInvalidRetryDelay indicates a retry delay is not positive.
	ErrInvalidRetryDelay = errors.New("retry delays must be positive")
	// ErrInvalidRetryDelayOrder indicates the delay cap is below the base delay.
	ErrInvalidRetryDelayOrder = errors.New("retry.maxDelayMs must be at least retry.baseDelayMs")
	// ErrInvalidEnhancementCap indicates the enhancement cap is negative.
	ErrInvalidEnhancementCap = errors.New("aggregator.prEnhancementCap must be non-negative")
	// ErrInvalidEnhancementBatch indicates the enhancement batch size is not positive.
	ErrInvalidEnhancementBatch = errors.New("aggregator.prEnhancementBatchSize must be positive")
	// ErrInvalidToolQuota indicates a tool quota is negative.
	ErrInvalidToolQuota = errors.New("tool quotaPerMinute must be non-negative")
	// ErrInvalidTier indicates a tier mapping is outside 1..3.
	ErrInvalidTier = errors.New("tier mappings must be between 1 and 3")
)

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	cacheErr := c.validateCache()
	if cacheErr != nil {
		return cacheErr
	}

	resilienceErr := c.validateResilience()
	if resilienceErr != nil {
		return resilienceErr
	}

	return c.validateApplication()
}

func (c *Config) validateCache() error {
	if c.Cache.Memory.MaxEntries <= 0 {
		return ErrInvalidMaxEntries
	}

	if c.Cache.Memory.DefaultTTLSeconds <= 0 {
		return ErrInvalidDefaultTTL
	}

	if c.Cache.Distributed.DeadlineMs <= 0 {
		return ErrInvalidCacheDeadline
	}

	return nil
}

func (c *Config) validateResilience() error {
	for _, limit := range c.RateLimit {
		if limit.PerMinute <= 0 {
			return ErrInvalidPerMinute
		}

		if limit.Burst < 0 {
			return ErrInvalidBurst
		}
	}

	for _, circuit := range c.Circuit {
		if circuit.FailureThreshold <= 0 {
			return ErrInvalidFailureThreshold
		}

		if circuit.CooldownMs <= 0 {
			return ErrInvalidCooldown
		}
	}

	if c.Retry.MaxAttempts <= 0 {
		return ErrInvalidRetryAttempts
	}

	if c.Retry.BaseDelayMs <= 0 || c.Retry.MaxDelayMs <= 0 {
		return ErrInvalidRetryDelay
	}

	if c.Retry.MaxDelayMs < c.Retry.BaseDelayMs {
		return ErrInvalidRetryDelayOrder
	}

	return nil
}

func (c *Config) validateApplication() error {
	if c.Aggregator.PREnhancementCap < 0 {
		return ErrInvalidEnhancementCap
	}

	if c.Aggregator.PREnhancementBatchSize <= 0 {
		return ErrInvalidEnhancementBatch
	}

	for _, tool := range c.Tool {
		if tool.QuotaPerMinute < 0 {
			return ErrInvalidToolQuota
		}
	}

	for _, tier := range c.Tiers.Labels {
		if tier < minTier || tier > maxTier {
			return ErrInvalidTier
		}
	}

	for _, tier := range c.Tiers.Components {
		if tier < minTier || tier > maxTier {
			return ErrInvalidTier
		}
	}

	return nil
}

// ToolQuotas flattens the per-tool settings into a name to quota map.
func (c *Config) ToolQuotas() map[string]int {
	if len(c.Tool) == 0 {
		return nil
	}

	quotas := make(map[string]int, len(c.Tool))
	for name, tool := range c.Tool {
		quotas[name] = tool.QuotaPerMinute
	}

	return quotas
}
