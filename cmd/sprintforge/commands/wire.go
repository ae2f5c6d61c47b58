// Package commands implements the sprintforge CLI commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sprintforge/sprintforge/internal/config"
	"github.com/sprintforge/sprintforge/internal/report"
	"github.com/sprintforge/sprintforge/internal/tools"
	"github.com/sprintforge/sprintforge/internal/upstream"
	"github.com/sprintforge/sprintforge/internal/upstream/scm"
	"github.com/sprintforge/sprintforge/internal/upstream/tracker"
	"github.com/sprintforge/sprintforge/pkg/cache"
	"github.com/sprintforge/sprintforge/pkg/observability"
	"github.com/sprintforge/sprintforge/pkg/resilience"
	"github.com/sprintforge/sprintforge/pkg/version"
)

// serviceName is the name reported in telemetry resources.
const serviceName = "sprintforge"

// ErrTrackerNotConfigured indicates tracker.endpoint is missing.
var ErrTrackerNotConfigured = errors.New("tracker.endpoint is not configured")

// app holds the wired application components shared by the commands.
type app struct {
	cfg       *config.Config
	providers observability.Providers
	logger    *slog.Logger

	cache   *cache.Manager
	breaker *resilience.Breaker
	tracker *tracker.Client
	scm     *scm.Client
	reports *report.Service

	registry *tools.Registry

	redisClient *redis.Client
}

// buildApp wires cache tiers, resilience, upstream clients, the report
// service, and the tool registry from cfg.
func buildApp(cfg *config.Config) (*app, error) {
	if !cfg.Tracker.Configured() {
		return nil, ErrTrackerNotConfigured
	}

	providers, err := observability.Init(observability.Config{
		ServiceName:    serviceName,
		ServiceVersion: version.Version,
		Environment:    cfg.Observability.Environment,
		LogLevel:       parseLogLevel(cfg.Observability.LogLevel),
		LogJSON:        cfg.Observability.LogJSON,
		MetricsEnabled: cfg.Observability.MetricsEnabled,
		SampleRatio:    cfg.Observability.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	logger := providers.Logger

	manager, redisClient := buildCache(cfg, logger)

	limiter := resilience.NewRateLimiter(limiterConfigs(cfg))
	breaker := resilience.NewBreaker(breakerConfigs(cfg))
	retry := upstream.RetryConfig{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay(),
		MaxDelay:    cfg.Retry.MaxDelay(),
	}

	trackerPipe := upstream.NewPipeline(tracker.Provider, cfg.Tracker.Token, nil, manager, limiter, breaker, logger)
	trackerPipe.Retry = retry
	trackerClient := tracker.NewClient(cfg.Tracker.Endpoint, cfg.Tracker.Token, trackerPipe, manager, logger)

	var scmClient *scm.Client

	if cfg.SCM.Configured() {
		scmPipe := upstream.NewPipeline(scm.Provider, cfg.SCM.Token, nil, manager, limiter, breaker, logger)
		scmPipe.Retry = retry
		scmClient = scm.NewClient(scm.Config{
			BaseURL:      cfg.SCM.Endpoint,
			GraphQLURL:   cfg.SCM.GraphQLEndpoint,
			Token:        cfg.SCM.Token,
			GraphQLToken: cfg.SCM.GraphQLToken,
			EnhanceBatch: cfg.Aggregator.PREnhancementBatchSize,
		}, scmPipe, manager, logger)
	}

	reports := report.NewService(report.Options{
		Tracker:    trackerClient,
		SCM:        scmClient,
		Cache:      manager,
		Logger:     logger,
		Rules:      tierRules(cfg),
		EnhanceCap: cfg.Aggregator.PREnhancementCap,
		Version:    version.Version,
	})

	registry := tools.NewRegistry(logger)

	registerErr := tools.RegisterAll(registry, tools.Deps{
		Tracker:      trackerClient,
		SCM:          scmClient,
		Reports:      reports,
		Cache:        manager,
		Breaker:      breaker,
		Logger:       logger,
		DefaultOwner: cfg.SCM.Owner,
		DefaultRepo:  cfg.SCM.Repo,
		Quotas:       cfg.ToolQuotas(),
		Version:      version.Version,
	})
	if registerErr != nil {
		return nil, fmt.Errorf("register tools: %w", registerErr)
	}

	gaugesErr := observability.RegisterCacheGauges(providers.Meter, func() observability.CacheSnapshot {
		stats := manager.Stats()

		return observability.CacheSnapshot{
			Entries: int64(stats.Entries),
			Hits:    stats.Hits,
			Misses:  stats.Misses,
		}
	})
	if gaugesErr != nil {
		logger.Warn("cache gauges disabled", "error", gaugesErr)
	}

	return &app{
		cfg:         cfg,
		providers:   providers,
		logger:      logger,
		cache:       manager,
		breaker:     breaker,
		tracker:     trackerClient,
		scm:         scmClient,
		reports:     reports,
		registry:    registry,
		redisClient: redisClient,
	}, nil
}

// close releases the app's external resources.
func (a *app) close(ctx context.Context) {
	if a.redisClient != nil {
		err := a.redisClient.Close()
		if err != nil {
			a.logger.Warn("redis close failed", "error", err)
		}
	}

	err := a.providers.Shutdown(ctx)
	if err != nil {
		a.logger.Warn("observability shutdown failed", "error", err)
	}
}

func buildCache(cfg *config.Config, logger *slog.Logger) (*cache.Manager, *redis.Client) {
	memory := cache.NewMemory(cfg.Cache.Memory.MaxEntries)

	var (
		distributed *cache.Redis
		redisClient *redis.Client
	)

	if cfg.Cache.Distributed.Endpoint != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Cache.Distributed.Endpoint})
		distributed = cache.NewRedis(redisClient, cfg.Cache.Distributed.Deadline())
	}

	manager := cache.NewManager(memory, distributed, logger)
	manager.SetDefaultTTL(time.Duration(cfg.Cache.Memory.DefaultTTLSeconds) * time.Second)

	return manager, redisClient
}

func limiterConfigs(cfg *config.Config) map[string]resilience.LimiterConfig {
	configs := make(map[string]resilience.LimiterConfig, len(cfg.RateLimit))
	for provider, limit := range cfg.RateLimit {
		configs[provider] = resilience.LimiterConfig{
			PerMinute: limit.PerMinute,
			Burst:     limit.Burst,
		}
	}

	return configs
}

func breakerConfigs(cfg *config.Config) map[string]resilience.BreakerConfig {
	configs := make(map[string]resilience.BreakerConfig, len(cfg.Circuit))
	for provider, circuit := range cfg.Circuit {
		configs[provider] = resilience.BreakerConfig{
			FailureThreshold: circuit.FailureThreshold,
			Cooldown:         circuit.Cooldown(),
		}
	}

	return configs
}

// tierRules overlays configured label and component mappings on the default
// rules. Nil means the report service uses its defaults unchanged.
func tierRules(cfg *config.Config) *report.TierRules {
	if len(cfg.Tiers.Labels) == 0 && len(cfg.Tiers.Components) == 0 {
		return nil
	}

	rules := report.DefaultTierRules()
	for label, tier := range cfg.Tiers.Labels {
		rules.LabelTiers[strings.ToLower(label)] = tier
	}

	for component, tier := range cfg.Tiers.Components {
		rules.ComponentTiers[strings.ToLower(component)] = tier
	}

	return &rules
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
