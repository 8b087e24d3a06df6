package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the taskdag orchestrator.
type Config struct {
	// Server configuration
	HTTPPort int    `env:"TASKDAG_HTTP_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Redis configuration (optional; memory adapters are used when disabled)
	Redis RedisConfig

	// Executor configuration
	Executor ExecutorConfig

	// Context snapshot configuration
	Context ContextConfig

	// Timeouts
	Timeouts TimeoutConfig

	// EventLogCap bounds the in-memory event log. Most-recent entries are
	// always preserved.
	EventLogCap int `env:"TASKDAG_EVENT_LOG_CAP" envDefault:"1000"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Enabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`

	// StateTTL is how long persisted run state is retained.
	StateTTL time.Duration `env:"REDIS_STATE_TTL" envDefault:"24h"`
}

// ExecutorConfig holds task executor configuration.
type ExecutorConfig struct {
	// MaxConcurrent bounds the number of tasks in flight at once.
	MaxConcurrent int `env:"TASKDAG_MAX_CONCURRENT" envDefault:"4"`

	// DefaultTaskTimeout applies to tasks without an explicit timeout.
	DefaultTaskTimeout time.Duration `env:"TASKDAG_TASK_TIMEOUT" envDefault:"300s"`

	// FailFast stops launching new tasks after the first failure. Tasks
	// already in flight are allowed to finish.
	FailFast bool `env:"TASKDAG_FAIL_FAST" envDefault:"false"`
}

// ContextConfig holds context snapshot configuration.
type ContextConfig struct {
	// MaxTokens is the token budget for per-task context snapshots.
	MaxTokens int `env:"TASKDAG_CONTEXT_MAX_TOKENS" envDefault:"4096"`

	// CharsPerToken is the character-based token estimation ratio.
	CharsPerToken int `env:"TASKDAG_CONTEXT_CHARS_PER_TOKEN" envDefault:"4"`
}

// TimeoutConfig holds various timeout configurations.
type TimeoutConfig struct {
	GraphExecutionTimeout time.Duration `env:"TIMEOUT_GRAPH_EXECUTION" envDefault:"3600s"` // 1 hour
	ShutdownTimeout       time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required when redis is enabled")
	}

	if c.Executor.MaxConcurrent < 1 {
		return fmt.Errorf("max concurrent tasks must be at least 1")
	}
	if c.Executor.DefaultTaskTimeout <= 0 {
		return fmt.Errorf("default task timeout must be positive")
	}

	if c.Context.MaxTokens < 1 {
		return fmt.Errorf("context max tokens must be at least 1")
	}
	if c.Context.CharsPerToken < 1 {
		return fmt.Errorf("chars per token must be at least 1")
	}

	if c.EventLogCap < 1 {
		return fmt.Errorf("event log cap must be at least 1")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// GetHTTPAddr returns the HTTP server address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
