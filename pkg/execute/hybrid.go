package execute

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taskmill/taskmill/pkg/job"
)

// Hybrid partitions items into fixed-size batches and processes up to
// MaxConcurrency batches at a time; items within a batch all run
// concurrently. Every completed batch feeds the adaptive controller,
// whose adjustments take effect on the next Run.
type Hybrid struct {
	Proc           job.Processor
	MaxConcurrency int
	Controller     *BatchController
	Timeout        time.Duration
	Logger         *zap.Logger
}

// Run executes every item and returns results in input order.
func (d *Hybrid) Run(ctx context.Context, items []Item) []Result {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := d.MaxConcurrency
	if limit <= 0 {
		limit = 3
	}
	ctrl := d.Controller
	if ctrl == nil {
		ctrl = NewBatchController(autoBatchSize(limit))
	}

	// Batches are cut up front at the controller's current size; the
	// controller keeps learning during the run for subsequent runs.
	size := ctrl.Size()
	type batch struct {
		offset int
		items  []Item
	}
	var batches []batch
	for off := 0; off < len(items); off += size {
		end := min(off+size, len(items))
		batches = append(batches, batch{offset: off, items: items[off:end]})
	}
	logger.Debug("partitioned items",
		zap.Int("items", len(items)),
		zap.Int("batches", len(batches)),
		zap.Int("batch_size", size))

	tracker := NewTracker(len(items), logger)
	results := make([]Result, len(items))
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for _, b := range batches {
		select {
		case <-ctx.Done():
			for i, item := range b.items {
				results[b.offset+i] = Result{ItemID: item.ID, Error: "not executed: " + ctx.Err().Error()}
				tracker.ItemDone(item.ID, false, 0)
			}
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(b batch) {
			defer wg.Done()
			defer func() { <-sem }()
			d.runBatch(ctx, b.items, results[b.offset:b.offset+len(b.items)], tracker, ctrl)
		}(b)
	}
	wg.Wait()

	tracker.logSummary(ModeHybrid)
	return results
}

// runBatch processes one batch's items concurrently and reports the
// batch and item timings to the controller.
func (d *Hybrid) runBatch(ctx context.Context, items []Item, out []Result, tracker *Tracker, ctrl *BatchController) {
	start := time.Now()

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item Item) {
			defer wg.Done()
			out[i] = runItem(ctx, d.Proc, d.Timeout, item)
			tracker.ItemDone(item.ID, out[i].Success, out[i].Duration)
		}(i, item)
	}
	wg.Wait()

	itemDurations := make([]time.Duration, len(out))
	for i, r := range out {
		itemDurations[i] = r.Duration
	}
	ctrl.Observe(time.Since(start), itemDurations)
}
