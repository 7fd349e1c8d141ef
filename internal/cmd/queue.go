package cmd

import (
	"context"
	"fmt"

	"github.com/taskmill/taskmill/internal/observability"
	"github.com/taskmill/taskmill/pkg/queue"
	"github.com/taskmill/taskmill/pkg/store"
)

// openQueue builds the queue over the configured persistence backend.
// The returned close function flushes and releases the store.
func openQueue(ctx context.Context) (*queue.Queue, func(), error) {
	logger := observability.CLILogger

	var st store.Store
	switch appConfig.Queue.Backend {
	case "file":
		fs, err := store.NewFileStore(appConfig.Queue.Dir, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open queue directory: %w", err)
		}
		st = fs
	case "sqlite":
		db, err := store.OpenSQLite(ctx, appConfig.Queue.SQLitePath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open queue database: %w", err)
		}
		st = db
	case "none":
		st = store.Nop{}
	default:
		return nil, nil, fmt.Errorf("unknown queue backend %q", appConfig.Queue.Backend)
	}

	q, err := queue.New(st, queue.Options{
		DefaultMaxRetries: appConfig.Queue.DefaultMaxRetries,
		RetryBackoff:      appConfig.Queue.RetryBackoff,
		Logger:            logger,
	})
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("failed to restore queue state: %w", err)
	}

	closeFn := func() { _ = st.Close() }
	return q, closeFn, nil
}
