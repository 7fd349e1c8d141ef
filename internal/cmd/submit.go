package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taskmill/taskmill/internal/observability"
	"github.com/taskmill/taskmill/pkg/job"
)

var submitCmd = &cobra.Command{
	Use:   "submit <task>",
	Short: "Submit a job to the queue",
	Long: `Submit a job for the named task. Input is inline JSON or a file.

Examples:
  taskmill submit noop --input '{}'
  taskmill submit sleep --input '{"duration": "2s"}' --priority 5
  taskmill submit shell --input-file cmd.json --max-retries 1`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

var (
	submitInput      string
	submitInputFile  string
	submitPriority   int
	submitMaxRetries int
)

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVarP(&submitInput, "input", "i", "", "Inline JSON input")
	submitCmd.Flags().StringVar(&submitInputFile, "input-file", "", "Read JSON input from file")
	submitCmd.Flags().IntVarP(&submitPriority, "priority", "p", 0, "Job priority (higher runs first)")
	submitCmd.Flags().IntVar(&submitMaxRetries, "max-retries", -1, "Retry budget (-1 uses the configured default)")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	task := args[0]

	if _, err := job.Lookup(task); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Unknown task",
			fmt.Errorf("%w (known tasks: %s)", err, strings.Join(job.Names(), ", ")))
	}

	input, err := readSubmitInput()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid input", err)
	}

	q, closeQueue, err := openQueue(cmd.Context())
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to open queue", err)
	}
	defer closeQueue()

	id, err := q.SubmitNamed(task, input, submitPriority, submitMaxRetries)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to submit job", err)
	}

	observability.CLILogger.Info("Job submitted",
		zap.String("id", id),
		zap.String("task", task),
		zap.Int("priority", submitPriority))
	fmt.Println(id)
	return nil
}

func readSubmitInput() (json.RawMessage, error) {
	if submitInput != "" && submitInputFile != "" {
		return nil, fmt.Errorf("--input and --input-file are mutually exclusive")
	}

	raw := []byte(submitInput)
	if submitInputFile != "" {
		data, err := os.ReadFile(submitInputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read input file: %w", err)
		}
		raw = data
	}
	if len(raw) == 0 {
		raw = []byte(`{}`)
	}

	if !json.Valid(raw) {
		return nil, fmt.Errorf("input is not valid JSON")
	}
	return json.RawMessage(raw), nil
}
