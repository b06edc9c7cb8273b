package config

import (
	"fmt"
	"time"
)

// Config holds the full subsystem configuration
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Retry         RetryConfig         `mapstructure:"retry"`
	Breaker       BreakerConfig       `mapstructure:"breaker"`
	Recovery      RecoveryConfig      `mapstructure:"recovery"`
	Checkpoint    CheckpointConfig    `mapstructure:"checkpoint"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Connectivity  ConnectivityConfig  `mapstructure:"connectivity"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Tracing       TracingConfig       `mapstructure:"tracing"`
}

// AppConfig identifies the embedding application
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// RetryConfig contains retry engine defaults
type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	Jitter            time.Duration `mapstructure:"jitter"`
	TimeoutBudget     time.Duration `mapstructure:"timeout_budget"`
}

// BreakerConfig contains circuit breaker defaults
type BreakerConfig struct {
	FailureThreshold        int           `mapstructure:"failure_threshold"`
	ResetTimeout            time.Duration `mapstructure:"reset_timeout"`
	SuccessThresholdToClose int           `mapstructure:"success_threshold_to_close"`
}

// RecoveryConfig contains orchestrator settings
type RecoveryConfig struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	BaseDelay    time.Duration `mapstructure:"base_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	HealthWindow time.Duration `mapstructure:"health_window"`
}

// CheckpointConfig contains checkpoint manager settings
type CheckpointConfig struct {
	MaxCheckpoints int    `mapstructure:"max_checkpoints"`
	KeyPrefix      string `mapstructure:"key_prefix"`
}

// RedisConfig contains Redis connection configuration for the durable store
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the host:port address for the Redis client
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ConnectivityConfig contains connectivity probe settings
type ConnectivityConfig struct {
	ProbeURL string        `mapstructure:"probe_url"`
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// NotificationsConfig contains notification dispatch settings
type NotificationsConfig struct {
	MaxPerSourcePerHour int `mapstructure:"max_per_source_per_hour"`
	QueueSize           int `mapstructure:"queue_size"`
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
	Enabled   bool   `mapstructure:"enabled"`
}

// TracingConfig contains tracing configuration
type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.BackoffMultiplier < 1.0 {
		return fmt.Errorf("retry.backoff_multiplier must be at least 1.0")
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry delays must satisfy 0 < base_delay <= max_delay")
	}
	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("breaker.failure_threshold must be at least 1")
	}
	if c.Breaker.ResetTimeout <= 0 {
		return fmt.Errorf("breaker.reset_timeout must be positive")
	}
	if c.Breaker.SuccessThresholdToClose < 1 {
		return fmt.Errorf("breaker.success_threshold_to_close must be at least 1")
	}
	if c.Recovery.MaxRetries < 1 {
		return fmt.Errorf("recovery.max_retries must be at least 1")
	}
	if c.Recovery.HealthWindow <= 0 {
		return fmt.Errorf("recovery.health_window must be positive")
	}
	if c.Checkpoint.MaxCheckpoints < 1 {
		return fmt.Errorf("checkpoint.max_checkpoints must be at least 1")
	}
	return nil
}
