// Package cmd implements the taskmill CLI.
package cmd

import (
	"context"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/taskmill/taskmill/internal/config"
	"github.com/taskmill/taskmill/internal/observability"
	_ "github.com/taskmill/taskmill/internal/tasks"
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected via ldflags.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	flagVerbose    bool
	flagConfigFile string

	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "taskmill",
	Short: "Durable local job queue and batch task runner",
	Long: `Taskmill runs tasks from a durable local job queue or directly
against an item list with selectable execution strategies.

Jobs survive restarts: queue state is persisted per job, and jobs that
were running when the process died are requeued on startup.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		observability.InitCLILogger("taskmill", flagVerbose)

		cfg, err := config.Load(cmd.Context(), flagConfigFile)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Failed to load configuration", err)
		}
		appConfig = cfg
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "Config file path (YAML or JSON)")
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	defer observability.Sync()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return exitCodeFor(err)
	}
	return 0
}

// Main is the conventional entry point wrapper.
func Main() {
	os.Exit(Execute(context.Background()))
}
