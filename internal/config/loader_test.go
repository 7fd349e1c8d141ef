package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		cfg, err := Load(ctx, "")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.False(t, cfg.Logging.Verbose)

		assert.Equal(t, "file", cfg.Queue.Backend)
		assert.Equal(t, 3, cfg.Queue.DefaultMaxRetries)
		assert.Equal(t, 3, cfg.Queue.Workers)
		assert.Equal(t, time.Second, cfg.Queue.PollInterval)

		assert.Equal(t, "sync", cfg.Execute.Mode)
		assert.Equal(t, 3, cfg.Execute.MaxConcurrency)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(ctx, "", overrides)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)

		// Non-overridden values keep their defaults.
		assert.Equal(t, "file", cfg.Queue.Backend)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("TASKMILL_SERVER_PORT", "3000")
		t.Setenv("TASKMILL_LOGGING_LEVEL", "warn")
		t.Setenv("TASKMILL_QUEUE_BACKEND", "sqlite")

		cfg, err := Load(ctx, "")
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, "sqlite", cfg.Queue.Backend)
	})

	t.Run("RuntimeBeatsEnv", func(t *testing.T) {
		t.Setenv("TASKMILL_SERVER_PORT", "4000")

		overrides := map[string]any{
			"server": map[string]any{"port": 5000},
		}
		cfg, err := Load(ctx, "", overrides)
		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Server.Port)
	})

	t.Run("DurationFromEnv", func(t *testing.T) {
		t.Setenv("TASKMILL_SERVER_READ_TIMEOUT", "45s")
		t.Setenv("TASKMILL_QUEUE_RETRY_BACKOFF", "5m")

		cfg, err := Load(ctx, "")
		require.NoError(t, err)

		assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 5*time.Minute, cfg.Queue.RetryBackoff)
	})
}

func TestLoadConfigFile(t *testing.T) {
	ctx := context.Background()

	t.Run("YAMLFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "taskmill.yaml")
		content := `
server:
  port: 7777
queue:
  backend: sqlite
  workers: 9
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		cfg, err := Load(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, 7777, cfg.Server.Port)
		assert.Equal(t, "sqlite", cfg.Queue.Backend)
		assert.Equal(t, 9, cfg.Queue.Workers)
	})

	t.Run("MissingExplicitFileFails", func(t *testing.T) {
		_, err := Load(ctx, filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})
}

func TestLoadValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("InvalidBackend", func(t *testing.T) {
		_, err := Load(ctx, "", map[string]any{
			"queue": map[string]any{"backend": "redis"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "backend")
	})

	t.Run("InvalidPort", func(t *testing.T) {
		_, err := Load(ctx, "", map[string]any{
			"server": map[string]any{"port": 99999},
		})
		require.Error(t, err)
	})

	t.Run("NegativeWorkers", func(t *testing.T) {
		_, err := Load(ctx, "", map[string]any{
			"queue": map[string]any{"workers": -2},
		})
		require.Error(t, err)
	})
}

func TestGetConfig(t *testing.T) {
	ctx := context.Background()

	cfg, err := Load(ctx, "")
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
}
