package cmd

import (
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/taskmill/taskmill/pkg/execute"
	"github.com/taskmill/taskmill/pkg/job"
)

// taskprocCmd is the child-process side of the process execution mode.
// The parent spawns this hidden command and exchanges JSON lines over
// the child's stdin/stdout.
var taskprocCmd = &cobra.Command{
	Use:    execute.ProcTaskCommand,
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   runTaskproc,
}

var (
	taskprocTask    string
	taskprocTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(taskprocCmd)

	taskprocCmd.Flags().StringVar(&taskprocTask, "task", "", "Registered task name to serve")
	taskprocCmd.Flags().DurationVar(&taskprocTimeout, "timeout", 0, "Per-item timeout (0 disables)")

	_ = taskprocCmd.MarkFlagRequired("task")
}

func runTaskproc(cmd *cobra.Command, args []string) error {
	proc, err := job.Lookup(taskprocTask)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Unknown task", err)
	}

	if err := execute.ServeWorker(cmd.Context(), proc, taskprocTimeout, os.Stdin, os.Stdout); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Task worker failed", err)
	}
	return nil
}
