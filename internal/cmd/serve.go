package cmd

import (
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taskmill/taskmill/internal/observability"
	"github.com/taskmill/taskmill/internal/server"
	"github.com/taskmill/taskmill/pkg/queue"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the queue over HTTP with an embedded worker pool",
	Long: `Run the HTTP API and a worker pool in one process. Jobs submitted
through the API are executed by the embedded workers.

Examples:
  taskmill serve
  taskmill serve --port 9000 --workers 8
  taskmill serve --no-workers`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveHost      string
	servePort      int
	serveWorkers   int
	serveNoWorkers bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Bind host (defaults to configured value)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Bind port (defaults to configured value)")
	serveCmd.Flags().IntVar(&serveWorkers, "workers", 0, "Embedded worker count")
	serveCmd.Flags().BoolVar(&serveNoWorkers, "no-workers", false, "Serve the API without executing jobs")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := observability.NewServeLogger("taskmill", appConfig.Logging.Level)
	defer func() { _ = logger.Sync() }()

	q, closeQueue, err := openQueue(cmd.Context())
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to open queue", err)
	}
	defer closeQueue()

	host := serveHost
	if host == "" {
		host = appConfig.Server.Host
	}
	port := servePort
	if port == 0 {
		port = appConfig.Server.Port
	}

	srv := server.New(host, port, q, server.Options{
		ReadTimeout:     appConfig.Server.ReadTimeout,
		WriteTimeout:    appConfig.Server.WriteTimeout,
		IdleTimeout:     appConfig.Server.IdleTimeout,
		ShutdownTimeout: appConfig.Server.ShutdownTimeout,
		RateLimit:       appConfig.Server.RateLimit,
		RateBurst:       appConfig.Server.RateBurst,
		Logger:          logger,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !serveNoWorkers {
		size := serveWorkers
		if size <= 0 {
			size = appConfig.Queue.Workers
		}
		pool := queue.NewPool(q, nil, size, appConfig.Queue.PollInterval, logger)
		pool.Start()
		defer pool.Stop()
	}

	logger.Info("starting server",
		zap.String("host", host),
		zap.Int("port", port),
		zap.Bool("workers", !serveNoWorkers))

	if err := srv.Start(ctx); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
	}
	return nil
}
