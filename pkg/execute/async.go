package execute

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taskmill/taskmill/pkg/job"
)

// Bounded launches one goroutine per item but admits at most
// MaxConcurrency simultaneously in flight through a counting semaphore.
// Failures are isolated per item.
type Bounded struct {
	Proc           job.Processor
	MaxConcurrency int
	Timeout        time.Duration
	Logger         *zap.Logger
}

// Run schedules every item and blocks until all have finished.
func (d *Bounded) Run(ctx context.Context, items []Item) []Result {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := d.MaxConcurrency
	if limit <= 0 {
		limit = 3
	}

	tracker := NewTracker(len(items), logger)
	results := make([]Result, len(items))
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for i, item := range items {
		// Acquire the admission gate or bail on cancellation. The slot
		// is released by the goroutine that acquired it.
		select {
		case <-ctx.Done():
			results[i] = Result{ItemID: item.ID, Error: "not executed: " + ctx.Err().Error()}
			tracker.ItemDone(item.ID, false, 0)
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, item Item) {
			defer wg.Done()
			defer func() { <-sem }()

			results[i] = runItem(ctx, d.Proc, d.Timeout, item)
			tracker.ItemDone(item.ID, results[i].Success, results[i].Duration)
		}(i, item)
	}
	wg.Wait()

	tracker.logSummary(ModeAsync)
	return results
}
