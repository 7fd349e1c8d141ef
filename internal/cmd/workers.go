package cmd

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taskmill/taskmill/internal/observability"
	"github.com/taskmill/taskmill/pkg/queue"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "Run queue workers",
}

var workersRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a worker pool against the queue",
	Long: `Run a pool of workers that claim and execute queued jobs until
interrupted. Each job's processor is resolved by its task name.

Examples:
  taskmill workers run
  taskmill workers run --workers 8 --poll-interval 250ms
  taskmill workers run --drain`,
	Args: cobra.NoArgs,
	RunE: runWorkers,
}

var (
	workersCount int
	workersPoll  time.Duration
	workersDrain bool
)

func init() {
	rootCmd.AddCommand(workersCmd)
	workersCmd.AddCommand(workersRunCmd)

	workersRunCmd.Flags().IntVarP(&workersCount, "workers", "w", 0, "Worker count (0 uses the configured default)")
	workersRunCmd.Flags().DurationVar(&workersPoll, "poll-interval", 0, "Idle poll interval (0 uses the configured default)")
	workersRunCmd.Flags().BoolVar(&workersDrain, "drain", false, "Exit once the queue has no pending or running jobs")
}

func runWorkers(cmd *cobra.Command, args []string) error {
	q, closeQueue, err := openQueue(cmd.Context())
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to open queue", err)
	}
	defer closeQueue()

	size := workersCount
	if size <= 0 {
		size = appConfig.Queue.Workers
	}
	poll := workersPoll
	if poll <= 0 {
		poll = appConfig.Queue.PollInterval
	}

	pool := queue.NewPool(q, nil, size, poll, observability.CLILogger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool.Start()

	if workersDrain {
	drain:
		for {
			counts := q.Status()
			if counts.Pending == 0 && counts.Running == 0 {
				break
			}
			select {
			case <-ctx.Done():
				break drain
			case <-time.After(poll):
			}
		}
	} else {
		<-ctx.Done()
	}

	observability.CLILogger.Info("Shutting down workers")
	pool.Stop()

	counts := q.Status()
	observability.CLILogger.Info("Worker pool exited",
		zap.Int("pending", counts.Pending),
		zap.Int("completed", counts.Completed),
		zap.Int("failed", counts.Failed))
	return nil
}
