package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taskmill/taskmill/internal/observability"
	"github.com/taskmill/taskmill/pkg/execute"
	"github.com/taskmill/taskmill/pkg/job"
)

var execCmd = &cobra.Command{
	Use:   "exec <task>",
	Short: "Run a task over an item list without the queue",
	Long: `Execute the named task once per item in an items file, using a
selectable execution strategy.

Modes:
  sync     one item at a time, in order
  async    concurrent goroutines behind an admission gate
  process  a pool of child OS processes
  hybrid   adaptive batching tuned from observed throughput

Examples:
  taskmill exec noop --items items.yaml
  taskmill exec shell --items cmds.json --mode async --max-concurrency 8
  taskmill exec sleep --items items.yaml --mode hybrid --batch-size 4
  taskmill exec shell --items cmds.json --mode process --workers 4`,
	Args: cobra.ExactArgs(1),
	RunE: runExec,
}

var (
	execItemsFile      string
	execMode           string
	execMaxConcurrency int
	execBatchSize      int
	execWorkers        int
	execTimeout        time.Duration
	execJSON           bool
)

func init() {
	rootCmd.AddCommand(execCmd)

	execCmd.Flags().StringVar(&execItemsFile, "items", "", "Items file (YAML or JSON)")
	execCmd.Flags().StringVar(&execMode, "mode", "", "Execution mode (sync, async, process, hybrid)")
	execCmd.Flags().IntVar(&execMaxConcurrency, "max-concurrency", 0, "Concurrent items (async) or batches (hybrid)")
	execCmd.Flags().IntVar(&execBatchSize, "batch-size", 0, "Initial hybrid batch size (0 for automatic)")
	execCmd.Flags().IntVar(&execWorkers, "workers", 0, "Child process count for process mode")
	execCmd.Flags().DurationVar(&execTimeout, "timeout", 0, "Per-item timeout (0 disables)")
	execCmd.Flags().BoolVar(&execJSON, "json", false, "Output results as JSONL")

	_ = execCmd.MarkFlagRequired("items")
}

func runExec(cmd *cobra.Command, args []string) error {
	task := args[0]

	if _, err := job.Lookup(task); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Unknown task",
			fmt.Errorf("%w (known tasks: %s)", err, strings.Join(job.Names(), ", ")))
	}

	modeStr := execMode
	if modeStr == "" {
		modeStr = appConfig.Execute.Mode
	}
	mode, err := execute.ParseMode(modeStr)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid --mode value", err)
	}

	items, err := execute.LoadItems(execItemsFile)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to load items", err)
	}
	if len(items) == 0 {
		return exitError(foundry.ExitInvalidArgument, "Items file contains no items", nil)
	}

	cfg := execute.Config{
		Mode:           mode,
		MaxConcurrency: firstPositive(execMaxConcurrency, appConfig.Execute.MaxConcurrency),
		BatchSize:      firstPositive(execBatchSize, appConfig.Execute.BatchSize),
		Workers:        firstPositive(execWorkers, appConfig.Execute.Workers),
		Timeout:        execTimeout,
		Logger:         observability.CLILogger,
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = appConfig.Execute.Timeout
	}

	observability.CLILogger.Info("Starting run",
		zap.String("task", task),
		zap.String("mode", string(mode)),
		zap.Int("items", len(items)))

	start := time.Now()
	results, err := execute.Run(cmd.Context(), cfg, task, items)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Run failed", err)
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	observability.CLILogger.Info("Run finished",
		zap.Int("completed", len(results)-failed),
		zap.Int("failed", failed),
		zap.Duration("elapsed", time.Since(start)))

	if execJSON {
		enc := json.NewEncoder(os.Stdout)
		for _, r := range results {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
		}
	} else {
		for _, r := range results {
			if r.Success {
				fmt.Printf("ok   %s (%s)\n", r.ItemID, r.Duration.Round(time.Millisecond))
			} else {
				fmt.Printf("FAIL %s: %s\n", r.ItemID, r.Error)
			}
		}
	}

	if failed > 0 {
		return exitError(foundry.ExitExternalServiceUnavailable, "Run completed with failures",
			fmt.Errorf("%d of %d items failed", failed, len(results)))
	}
	return nil
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
