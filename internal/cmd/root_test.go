package cmd

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
)

func TestSetVersionInfo(t *testing.T) {
	origVersion := versionInfo.Version
	origCommit := versionInfo.Commit
	origBuildDate := versionInfo.BuildDate
	defer func() {
		versionInfo.Version = origVersion
		versionInfo.Commit = origCommit
		versionInfo.BuildDate = origBuildDate
	}()

	tests := []struct {
		name      string
		version   string
		commit    string
		buildDate string
	}{
		{
			name:      "set all values",
			version:   "1.0.0",
			commit:    "abc123",
			buildDate: "2024-01-15",
		},
		{
			name:      "set dev version",
			version:   "dev",
			commit:    "HEAD",
			buildDate: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetVersionInfo(tt.version, tt.commit, tt.buildDate)

			assert.Equal(t, tt.version, versionInfo.Version)
			assert.Equal(t, tt.commit, versionInfo.Commit)
			assert.Equal(t, tt.buildDate, versionInfo.BuildDate)
		})
	}
}

func TestCommandWiring(t *testing.T) {
	want := []string{"submit", "status", "jobs", "workers", "exec", "serve", "version"}

	registered := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, registered[name], "command %q not registered", name)
	}
}

func TestTaskprocHidden(t *testing.T) {
	for _, c := range rootCmd.Commands() {
		if c.Name() == "_taskproc" {
			assert.True(t, c.Hidden)
			return
		}
	}
	t.Fatal("_taskproc command not registered")
}

func TestExitCodeFor(t *testing.T) {
	t.Run("coded error", func(t *testing.T) {
		err := exitError(foundry.ExitInvalidArgument, "bad flag", nil)
		assert.Equal(t, int(foundry.ExitInvalidArgument), exitCodeFor(err))
	})

	t.Run("wrapped coded error", func(t *testing.T) {
		inner := exitError(foundry.ExitFileNotFound, "no such job", errors.New("missing"))
		err := fmt.Errorf("jobs cancel: %w", inner)
		assert.Equal(t, int(foundry.ExitFileNotFound), exitCodeFor(err))
	})

	t.Run("plain error", func(t *testing.T) {
		assert.Equal(t, 1, exitCodeFor(errors.New("boom")))
	})
}

func TestExitErrorMessage(t *testing.T) {
	err := exitError(foundry.ExitInvalidArgument, "Failed to load items", errors.New("file empty"))
	assert.Equal(t, "Failed to load items: file empty", err.Error())
	assert.Contains(t, errors.Unwrap(err).Error(), "file empty")

	bare := exitError(foundry.ExitInvalidArgument, "No task given", nil)
	assert.Equal(t, "No task given", bare.Error())
}
