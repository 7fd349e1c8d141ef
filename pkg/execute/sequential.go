package execute

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/taskmill/taskmill/pkg/job"
)

// Sequential processes items one at a time in input order. A failing
// item is recorded and processing continues with the next item.
type Sequential struct {
	Proc    job.Processor
	Timeout time.Duration
	Logger  *zap.Logger
}

// Run executes every item. Context cancellation stops dispatch; items
// not reached are reported as failed results, never dropped.
func (d *Sequential) Run(ctx context.Context, items []Item) []Result {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tracker := NewTracker(len(items), logger)
	results := make([]Result, len(items))

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			results[i] = Result{ItemID: item.ID, Error: "not executed: " + err.Error()}
			tracker.ItemDone(item.ID, false, 0)
			continue
		}
		results[i] = runItem(ctx, d.Proc, d.Timeout, item)
		tracker.ItemDone(item.ID, results[i].Success, results[i].Duration)
	}

	tracker.logSummary(ModeSync)
	return results
}
