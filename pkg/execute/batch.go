package execute

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Batch sizing bounds and thresholds. The controller is a simple
// throughput-proportional rule, not a formal control loop: it keeps
// per-batch wall time roughly proportional to per-item cost without
// manual retuning.
const (
	minBatchSize = 1
	maxBatchSize = 20

	batchWarmup = 3  // batches observed before any adjustment
	batchWindow = 3  // batch durations averaged
	itemWindow  = 10 // item durations averaged

	growThreshold   = 0.8
	growStep        = 2
	shrinkThreshold = 0.5
	shrinkStep      = 1
)

// BatchController tunes the hybrid strategy's batch size from observed
// throughput. Safe for concurrent Observe calls.
type BatchController struct {
	mu             sync.Mutex
	size           int
	batchDurations []time.Duration
	itemDurations  []time.Duration
	logger         *zap.Logger
}

// NewBatchController starts at the given size, clamped to [1, 20].
func NewBatchController(size int) *BatchController {
	if size < minBatchSize {
		size = minBatchSize
	}
	if size > maxBatchSize {
		size = maxBatchSize
	}
	return &BatchController{size: size, logger: zap.NewNop()}
}

// WithLogger attaches a logger for adjustment events.
func (c *BatchController) WithLogger(logger *zap.Logger) *BatchController {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// Size returns the current batch size.
func (c *BatchController) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Observe records one completed batch and evaluates the sizing rule.
//
// After a 3-batch warm-up: efficiency = avgItem * size / avgBatch,
// where avgBatch is the mean of the last 3 batch durations and avgItem
// the mean of the last 10 item durations. Above 0.8 the batch grows by
// 2 (cap 20); below 0.5 it shrinks by 1 (floor 1); otherwise it holds.
func (c *BatchController) Observe(batchDuration time.Duration, itemDurations []time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.batchDurations = append(c.batchDurations, batchDuration)
	c.itemDurations = append(c.itemDurations, itemDurations...)

	if len(c.batchDurations) < batchWarmup || len(c.itemDurations) == 0 {
		return
	}

	avgBatch := mean(tail(c.batchDurations, batchWindow))
	avgItem := mean(tail(c.itemDurations, itemWindow))
	if avgBatch <= 0 {
		return
	}
	efficiency := float64(avgItem) * float64(c.size) / float64(avgBatch)

	next := c.size
	switch {
	case efficiency > growThreshold:
		next = min(c.size+growStep, maxBatchSize)
	case efficiency < shrinkThreshold:
		next = max(c.size-shrinkStep, minBatchSize)
	}
	if next != c.size {
		c.logger.Info("adjusting batch size",
			zap.Int("from", c.size),
			zap.Int("to", next),
			zap.Float64("efficiency", efficiency))
		c.size = next
	}
}

func tail(ds []time.Duration, n int) []time.Duration {
	if len(ds) <= n {
		return ds
	}
	return ds[len(ds)-n:]
}

func mean(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	return sum / time.Duration(len(ds))
}
