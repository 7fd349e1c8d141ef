// Package tasks registers the built-in processors. Importing the
// package for side effects makes them available by name in both the
// parent process and spawned task workers.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/taskmill/taskmill/pkg/job"
)

func init() {
	job.Register("noop", job.ProcessorFunc(runNoop))
	job.Register("sleep", job.ProcessorFunc(runSleep))
	job.Register("shell", job.ProcessorFunc(runShell))
}

// runNoop echoes its input back. Useful for queue plumbing checks.
func runNoop(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	if len(input) == 0 {
		return json.RawMessage(`{}`), nil
	}
	return input, nil
}

type sleepInput struct {
	Duration string `json:"duration"`
}

type sleepOutput struct {
	Slept string `json:"slept"`
}

// runSleep blocks for the requested duration or until the context is
// cancelled.
func runSleep(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in sleepInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid sleep input: %w", err)
	}
	d, err := time.ParseDuration(in.Duration)
	if err != nil {
		return nil, fmt.Errorf("invalid sleep duration %q: %w", in.Duration, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(d):
	}
	return json.Marshal(sleepOutput{Slept: d.String()})
}

type shellInput struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

type shellOutput struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// runShell runs a command and captures its output. A non-zero exit is
// an error so the queue's retry accounting applies.
func runShell(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in shellInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid shell input: %w", err)
	}
	if in.Command == "" {
		return nil, fmt.Errorf("shell input requires a command")
	}

	cmd := exec.CommandContext(ctx, in.Command, in.Args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	out := shellOutput{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			return nil, fmt.Errorf("command exited with code %d: %s", exitErr.ExitCode(), strings.TrimSpace(out.Stderr))
		}
		return nil, fmt.Errorf("command failed: %w", runErr)
	}
	return json.Marshal(out)
}
