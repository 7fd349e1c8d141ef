package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taskmill/taskmill/internal/observability"
	"github.com/taskmill/taskmill/pkg/job"
	"github.com/taskmill/taskmill/pkg/queue"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage queued jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	Long: `List jobs, optionally filtered by status or task name pattern.

The --match flag accepts glob patterns including ** and {a,b} groups.

Examples:
  taskmill jobs list
  taskmill jobs list --status failed
  taskmill jobs list --match 'etl-*' --json`,
	Args: cobra.NoArgs,
	RunE: runJobsList,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one job in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsShow,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a pending job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsCancel,
}

var jobsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove finished jobs from the queue",
	Long: `Remove jobs from a terminal bucket.

Examples:
  taskmill jobs clear                  # completed only
  taskmill jobs clear --bucket failed
  taskmill jobs clear --bucket all`,
	Args: cobra.NoArgs,
	RunE: runJobsClear,
}

var (
	jobsListStatus string
	jobsListMatch  string
	jobsListJSON   bool
	jobsClearWhich string
)

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd, jobsShowCmd, jobsCancelCmd, jobsClearCmd)

	jobsListCmd.Flags().StringVarP(&jobsListStatus, "status", "s", "", "Filter by status (pending, running, completed, failed, cancelled)")
	jobsListCmd.Flags().StringVarP(&jobsListMatch, "match", "m", "", "Filter by task name glob pattern")
	jobsListCmd.Flags().BoolVar(&jobsListJSON, "json", false, "Output as JSONL")

	jobsClearCmd.Flags().StringVar(&jobsClearWhich, "bucket", "completed", "Bucket to clear (completed, failed, all)")
}

func runJobsList(cmd *cobra.Command, args []string) error {
	if jobsListMatch != "" {
		if !doublestar.ValidatePattern(jobsListMatch) {
			return exitError(foundry.ExitInvalidArgument, "Invalid --match pattern",
				fmt.Errorf("bad glob pattern %q", jobsListMatch))
		}
	}

	var statuses []job.Status
	if jobsListStatus == "" {
		statuses = job.Statuses()
	} else {
		st := job.Status(jobsListStatus)
		if !st.Valid() {
			return exitError(foundry.ExitInvalidArgument, "Invalid --status value",
				fmt.Errorf("unknown status %q", jobsListStatus))
		}
		statuses = []job.Status{st}
	}

	q, closeQueue, err := openQueue(cmd.Context())
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to open queue", err)
	}
	defer closeQueue()

	var jobs []*job.Job
	for _, st := range statuses {
		for _, j := range q.List(st) {
			if jobsListMatch != "" {
				ok, _ := doublestar.Match(jobsListMatch, j.Name)
				if !ok {
					continue
				}
			}
			jobs = append(jobs, j)
		}
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].Seq < jobs[b].Seq })

	if jobsListJSON {
		enc := json.NewEncoder(os.Stdout)
		for _, j := range jobs {
			if err := enc.Encode(j); err != nil {
				return fmt.Errorf("failed to encode job: %w", err)
			}
		}
		return nil
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTASK\tSTATUS\tPRIORITY\tRETRIES\tCREATED")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d/%d\t%s\n",
			j.ID, j.Name, j.Status, j.Priority, j.Retries, j.MaxRetries,
			j.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nFound %d job(s)\n", len(jobs))
	return nil
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	q, closeQueue, err := openQueue(cmd.Context())
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to open queue", err)
	}
	defer closeQueue()

	j, err := q.Get(args[0])
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Job not found", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(j)
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	q, closeQueue, err := openQueue(cmd.Context())
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to open queue", err)
	}
	defer closeQueue()

	id := args[0]
	if err := q.Cancel(id); err != nil {
		switch {
		case errors.Is(err, queue.ErrNotFound):
			return exitError(foundry.ExitFileNotFound, "Job not found", err)
		case errors.Is(err, queue.ErrJobRunning):
			return exitError(foundry.ExitInvalidArgument, "Running jobs cannot be cancelled", err)
		default:
			return exitError(foundry.ExitFileWriteError, "Failed to cancel job", err)
		}
	}

	observability.CLILogger.Info("Job cancelled", zap.String("id", id))
	return nil
}

func runJobsClear(cmd *cobra.Command, args []string) error {
	q, closeQueue, err := openQueue(cmd.Context())
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to open queue", err)
	}
	defer closeQueue()

	var removed int
	switch jobsClearWhich {
	case "completed":
		removed = q.ClearCompleted()
	case "failed":
		removed = q.ClearFailed()
	case "all":
		removed = q.ClearAll()
	default:
		return exitError(foundry.ExitInvalidArgument, "Invalid --bucket value",
			fmt.Errorf("expected completed, failed, or all"))
	}

	fmt.Printf("Removed %d job(s)\n", removed)
	return nil
}
