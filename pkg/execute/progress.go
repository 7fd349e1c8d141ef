package execute

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Tracker accumulates per-item outcomes during a strategy run and
// periodically logs progress with an ETA estimate.
type Tracker struct {
	total  int
	start  time.Time
	logger *zap.Logger

	mu        sync.Mutex
	completed int
	failed    int
	durations []time.Duration
}

// Summary aggregates a finished (or in-flight) run.
type Summary struct {
	Total     int           `json:"total"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
	AvgItem   time.Duration `json:"avg_item,omitempty"`
	MinItem   time.Duration `json:"min_item,omitempty"`
	MaxItem   time.Duration `json:"max_item,omitempty"`
}

// NewTracker starts tracking a run of total items.
func NewTracker(total int, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{total: total, start: time.Now(), logger: logger}
}

// ItemDone records one finished item.
func (t *Tracker) ItemDone(itemID string, success bool, duration time.Duration) {
	t.mu.Lock()
	if success {
		t.completed++
	} else {
		t.failed++
	}
	t.durations = append(t.durations, duration)
	processed := t.completed + t.failed
	var eta time.Duration
	if processed < t.total && len(t.durations) > 0 {
		var sum time.Duration
		for _, d := range t.durations {
			sum += d
		}
		avg := sum / time.Duration(len(t.durations))
		eta = avg * time.Duration(t.total-processed)
	}
	t.mu.Unlock()

	t.logger.Debug("item processed",
		zap.String("item_id", itemID),
		zap.Bool("success", success),
		zap.Duration("duration", duration),
		zap.Int("processed", processed),
		zap.Int("total", t.total),
		zap.Duration("eta", eta))
}

// Summary snapshots the run statistics.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Summary{
		Total:     t.total,
		Completed: t.completed,
		Failed:    t.failed,
		Elapsed:   time.Since(t.start),
	}
	if len(t.durations) > 0 {
		minD, maxD := t.durations[0], t.durations[0]
		var sum time.Duration
		for _, d := range t.durations {
			sum += d
			if d < minD {
				minD = d
			}
			if d > maxD {
				maxD = d
			}
		}
		s.AvgItem = sum / time.Duration(len(t.durations))
		s.MinItem = minD
		s.MaxItem = maxD
	}
	return s
}

// logSummary emits the standard end-of-run line shared by all drivers.
func (t *Tracker) logSummary(mode Mode) {
	s := t.Summary()
	t.logger.Info("run complete",
		zap.String("mode", string(mode)),
		zap.Int("completed", s.Completed),
		zap.Int("failed", s.Failed),
		zap.Int("total", s.Total),
		zap.Duration("elapsed", s.Elapsed))
}
