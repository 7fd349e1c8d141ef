// Package execute drives a static list of work items to completion
// without queue persistence.
//
// Four interchangeable strategies share one per-item contract: success
// yields an output value and failure yields a captured error. A driver
// never aborts the run for an item failure, and the result slice always
// matches the input order and length.
package execute

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/taskmill/taskmill/pkg/job"
)

// Mode selects an execution strategy.
type Mode string

const (
	// ModeSync processes items one at a time in input order.
	ModeSync Mode = "sync"
	// ModeAsync runs one goroutine per item behind an admission gate.
	ModeAsync Mode = "async"
	// ModeProcess dispatches items to a pool of child OS processes.
	ModeProcess Mode = "process"
	// ModeHybrid batches items and tunes the batch size adaptively.
	ModeHybrid Mode = "hybrid"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSync, ModeAsync, ModeProcess, ModeHybrid:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown execution mode %q", s)
}

// Item is one unit of work: an identifier and an opaque JSON input.
type Item struct {
	ID    string          `json:"id"`
	Input json.RawMessage `json:"input"`
}

// Result is the uniform per-item outcome shape reported by every
// strategy.
type Result struct {
	ItemID   string          `json:"item_id"`
	Success  bool            `json:"success"`
	Output   json.RawMessage `json:"output,omitempty"`
	Error    string          `json:"error,omitempty"`
	Duration time.Duration   `json:"duration"`
}

// Config carries the shared strategy knobs.
type Config struct {
	Mode Mode

	// MaxConcurrency bounds simultaneous in-flight items (async) or
	// batches (hybrid). Default 3.
	MaxConcurrency int

	// BatchSize is the initial hybrid batch size. Zero selects
	// automatic sizing: max(1, MaxConcurrency*2).
	BatchSize int

	// Workers is the child-process count for process mode.
	// Default max(1, NumCPU-1).
	Workers int

	// Timeout, when positive, bounds each item via a context deadline.
	// Zero disables per-item timeouts.
	Timeout time.Duration

	Logger *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 3
	}
	if c.BatchSize <= 0 {
		c.BatchSize = autoBatchSize(c.MaxConcurrency)
	}
	if c.Workers <= 0 {
		c.Workers = defaultProcWorkers()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

func autoBatchSize(maxConcurrency int) int {
	return max(1, maxConcurrency*2)
}

// defaultProcWorkers leaves one CPU for the coordinating parent.
func defaultProcWorkers() int {
	return max(1, runtime.NumCPU()-1)
}

// Run executes items with the strategy named by cfg.Mode. The task must
// be a registered processor name; process mode resolves it again inside
// each child, the other modes resolve it here.
func Run(ctx context.Context, cfg Config, task string, items []Item) ([]Result, error) {
	cfg = cfg.withDefaults()

	if cfg.Mode == ModeProcess {
		pool := &ProcPool{
			Task:    task,
			Workers: cfg.Workers,
			Timeout: cfg.Timeout,
			Logger:  cfg.Logger,
		}
		return pool.Run(ctx, items), nil
	}

	proc, err := job.Lookup(task)
	if err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case ModeSync:
		d := &Sequential{Proc: proc, Timeout: cfg.Timeout, Logger: cfg.Logger}
		return d.Run(ctx, items), nil
	case ModeAsync:
		d := &Bounded{Proc: proc, MaxConcurrency: cfg.MaxConcurrency, Timeout: cfg.Timeout, Logger: cfg.Logger}
		return d.Run(ctx, items), nil
	case ModeHybrid:
		d := &Hybrid{
			Proc:           proc,
			MaxConcurrency: cfg.MaxConcurrency,
			Controller:     NewBatchController(cfg.BatchSize),
			Timeout:        cfg.Timeout,
			Logger:         cfg.Logger,
		}
		return d.Run(ctx, items), nil
	default:
		return nil, fmt.Errorf("unknown execution mode %q", cfg.Mode)
	}
}

// runItem executes one item with timeout and panic containment and
// shapes the outcome into a Result.
func runItem(ctx context.Context, proc job.Processor, timeout time.Duration, item Item) Result {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	output, err := safeProcess(ctx, proc, item.Input)
	res := Result{
		ItemID:   item.ID,
		Duration: time.Since(start),
	}
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.Output = output
	return res
}

// safeProcess converts processor panics into errors so a bad callback
// can never take down the driver.
func safeProcess(ctx context.Context, p job.Processor, input json.RawMessage) (output json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			output = nil
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return p.Process(ctx, input)
}
