// Package config loads runtime configuration with layered precedence:
// runtime overrides, then TASKMILL_* environment variables, then an
// optional config file, then built-in defaults.
package config

import (
	"time"
)

// Config is the full runtime configuration tree.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Execute ExecuteConfig `mapstructure:"execute"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// RateLimit is requests per second admitted per server; RateBurst
	// is the token bucket depth. Zero disables rate limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// LoggingConfig configures structured log output.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Verbose bool   `mapstructure:"verbose"`
}

// QueueConfig configures the durable job queue.
type QueueConfig struct {
	// Dir is the root of the file-backed store.
	Dir string `mapstructure:"dir"`

	// Backend selects persistence: "file", "sqlite", or "none".
	Backend string `mapstructure:"backend"`

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `mapstructure:"sqlite_path"`

	DefaultMaxRetries int           `mapstructure:"default_max_retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`

	Workers      int           `mapstructure:"workers"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// ExecuteConfig configures the direct execution strategies.
type ExecuteConfig struct {
	Mode           string        `mapstructure:"mode"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	BatchSize      int           `mapstructure:"batch_size"`
	Workers        int           `mapstructure:"workers"`
	Timeout        time.Duration `mapstructure:"timeout"`
}
