package config

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const envPrefix = "TASKMILL"

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// Load builds the configuration with precedence runtime overrides >
// environment > config file > defaults, stores it for GetConfig, and
// returns it. Overrides use the same nested key structure as the file.
//
// A config file is read only when path is non-empty; a missing file at
// an explicit path is an error.
func Load(ctx context.Context, path string, overrides ...map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	for _, ov := range overrides {
		if err := v.MergeConfigMap(ov); err != nil {
			return nil, fmt.Errorf("failed to apply runtime overrides: %w", err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil if
// Load has not been called.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.rate_limit", 0.0)
	v.SetDefault("server.rate_burst", 20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.verbose", false)

	v.SetDefault("queue.dir", ".taskmill/queue")
	v.SetDefault("queue.backend", "file")
	v.SetDefault("queue.sqlite_path", ".taskmill/queue.db")
	v.SetDefault("queue.default_max_retries", 3)
	v.SetDefault("queue.retry_backoff", "0s")
	v.SetDefault("queue.workers", 3)
	v.SetDefault("queue.poll_interval", "1s")

	v.SetDefault("execute.mode", "sync")
	v.SetDefault("execute.max_concurrency", 3)
	v.SetDefault("execute.batch_size", 0)
	v.SetDefault("execute.workers", 0)
	v.SetDefault("execute.timeout", "0s")
}

func validate(cfg *Config) error {
	switch cfg.Queue.Backend {
	case "file", "sqlite", "none":
	default:
		return fmt.Errorf("invalid queue backend %q (expected file, sqlite, or none)", cfg.Queue.Backend)
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Queue.Workers < 0 {
		return fmt.Errorf("invalid queue worker count %d", cfg.Queue.Workers)
	}
	return nil
}
