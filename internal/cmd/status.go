package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue status counts",
	Long: `Show how many jobs sit in each queue bucket.

Examples:
  taskmill status
  taskmill status --json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var statusJSON bool

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	q, closeQueue, err := openQueue(cmd.Context())
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to open queue", err)
	}
	defer closeQueue()

	counts := q.Status()
	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(counts)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BUCKET\tJOBS")
	fmt.Fprintf(w, "pending\t%d\n", counts.Pending)
	fmt.Fprintf(w, "running\t%d\n", counts.Running)
	fmt.Fprintf(w, "completed\t%d\n", counts.Completed)
	fmt.Fprintf(w, "failed\t%d\n", counts.Failed)
	fmt.Fprintf(w, "cancelled\t%d\n", counts.Cancelled)
	fmt.Fprintf(w, "total\t%d\n", counts.Total)
	return w.Flush()
}
