package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load reads configuration from an optional yaml file and the environment.
// Environment variables override file values using underscore-separated
// upper-case keys, e.g. RETRY_MAX_ATTEMPTS overrides retry.max_attempts.
func Load(paths ...string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("resilience")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; defaults plus environment apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns the built-in configuration without touching files or
// the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default config unmarshal failed: %v", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "resilience-core")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", time.Second)
	v.SetDefault("retry.max_delay", 30*time.Second)
	v.SetDefault("retry.backoff_multiplier", 2.0)
	v.SetDefault("retry.jitter", 500*time.Millisecond)
	v.SetDefault("retry.timeout_budget", 2*time.Minute)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout", time.Minute)
	v.SetDefault("breaker.success_threshold_to_close", 3)

	v.SetDefault("recovery.max_retries", 3)
	v.SetDefault("recovery.base_delay", time.Second)
	v.SetDefault("recovery.max_delay", 30*time.Second)
	v.SetDefault("recovery.health_window", 5*time.Minute)

	v.SetDefault("checkpoint.max_checkpoints", 10)
	v.SetDefault("checkpoint.key_prefix", "checkpoint")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("connectivity.probe_url", "https://www.google.com/generate_204")
	v.SetDefault("connectivity.interval", 30*time.Second)
	v.SetDefault("connectivity.timeout", 5*time.Second)

	v.SetDefault("notifications.max_per_source_per_hour", 100)
	v.SetDefault("notifications.queue_size", 256)

	v.SetDefault("metrics.namespace", "resilience")
	v.SetDefault("metrics.enabled", true)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("tracing.sampling_rate", 1.0)
}
