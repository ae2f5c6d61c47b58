package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".sprintforge"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for sprintforge settings.
const envPrefix = "SPRINTFORGE"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	// Connection keys default to empty so they stay visible to
	// AutomaticEnv during Unmarshal.
	viperCfg.SetDefault("tracker.endpoint", "")
	viperCfg.SetDefault("tracker.token", "")
	viperCfg.SetDefault("scm.endpoint", "")
	viperCfg.SetDefault("scm.graphqlEndpoint", "")
	viperCfg.SetDefault("scm.token", "")
	viperCfg.SetDefault("scm.graphqlToken", "")
	viperCfg.SetDefault("scm.owner", "")
	viperCfg.SetDefault("scm.repo", "")
	viperCfg.SetDefault("cache.distributed.endpoint", "")

	viperCfg.SetDefault("cache.memory.maxEntries", DefaultCacheMaxEntries)
	viperCfg.SetDefault("cache.memory.defaultTTLSeconds", DefaultCacheTTLSeconds)
	viperCfg.SetDefault("cache.distributed.deadlineMs", DefaultDistributedDeadlineMs)

	for _, provider := range []string{"tracker", "scm"} {
		viperCfg.SetDefault("rateLimit."+provider+".perMinute", DefaultRateLimitPerMinute)
		viperCfg.SetDefault("rateLimit."+provider+".burst", DefaultRateLimitBurst)
		viperCfg.SetDefault("circuit."+provider+".failureThreshold", DefaultFailureThreshold)
		viperCfg.SetDefault("circuit."+provider+".cooldownMs", DefaultCooldownMs)
	}

	viperCfg.SetDefault("retry.maxAttempts", DefaultRetryMaxAttempts)
	viperCfg.SetDefault("retry.baseDelayMs", DefaultRetryBaseDelayMs)
	viperCfg.SetDefault("retry.maxDelayMs", DefaultRetryMaxDelayMs)

	viperCfg.SetDefault("aggregator.prEnhancementCap", DefaultPREnhancementCap)
	viperCfg.SetDefault("aggregator.prEnhancementBatchSize", DefaultPREnhancementBatchSize)

	viperCfg.SetDefault("observability.logLevel", "info")
	viperCfg.SetDefault("observability.logJSON", true)
	viperCfg.SetDefault("observability.metricsEnabled", false)
	viperCfg.SetDefault("observability.sampleRatio", 1.0)
	viperCfg.SetDefault("observability.metricsAddr", "")
}
