package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/taskmill/taskmill/pkg/job"
)

// DefaultPollInterval is how long an idle worker sleeps between polls.
const DefaultPollInterval = time.Second

// Worker is one cooperative poll-claim-execute loop against a single
// queue. Processor errors and panics become job failures; nothing a
// processor does can terminate the loop.
type Worker struct {
	id           string
	queue        *Queue
	proc         job.Processor
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewWorker binds a worker to a queue and a processor. A nil processor
// makes the worker resolve each job's processor from the registry by
// the job's task name.
func NewWorker(id string, q *Queue, proc job.Processor, pollInterval time.Duration, logger *zap.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:           id,
		queue:        q,
		proc:         proc,
		pollInterval: pollInterval,
		logger:       logger.With(zap.String("worker_id", id)),
	}
}

// ID returns the worker's identifier.
func (w *Worker) ID() string {
	return w.id
}

// Run polls until ctx is cancelled. The stop signal is checked once per
// iteration: a job claimed before cancellation runs to completion.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Debug("worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("worker stopping")
			return ctx.Err()
		default:
		}

		next := w.queue.Next()
		if next == nil {
			select {
			case <-ctx.Done():
				w.logger.Debug("worker stopping")
				return ctx.Err()
			case <-time.After(w.pollInterval):
			}
			continue
		}

		claimed, err := w.queue.Claim(next.ID, w.id)
		if err != nil {
			// Lost the race to another worker, or the job was cancelled
			// between selection and claim. Both are routine.
			if !errors.Is(err, ErrNotPending) && !errors.Is(err, ErrNotFound) {
				w.logger.Warn("claim failed", zap.String("job_id", next.ID), zap.Error(err))
			}
			continue
		}

		w.execute(claimed)
	}
}

// execute runs the processor and records the outcome. The job context
// is detached from the worker's stop signal so in-flight work finishes
// during shutdown.
func (w *Worker) execute(j *job.Job) {
	proc := w.proc
	if proc == nil {
		var err error
		proc, err = job.Lookup(j.Name)
		if err != nil {
			if failErr := w.queue.Fail(j.ID, err.Error()); failErr != nil {
				w.logger.Error("failed to record job failure",
					zap.String("job_id", j.ID),
					zap.Error(failErr))
			}
			return
		}
	}

	start := time.Now()
	output, err := invoke(context.Background(), proc, j.Input)
	if err != nil {
		if failErr := w.queue.Fail(j.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to record job failure",
				zap.String("job_id", j.ID),
				zap.Error(failErr))
		}
		return
	}
	if err := w.queue.Complete(j.ID, output); err != nil {
		w.logger.Error("failed to record job completion",
			zap.String("job_id", j.ID),
			zap.Error(err))
		return
	}
	w.logger.Debug("job processed",
		zap.String("job_id", j.ID),
		zap.Duration("duration", time.Since(start)))
}

// invoke calls the processor with panic containment.
func invoke(ctx context.Context, p job.Processor, input json.RawMessage) (output json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			output = nil
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return p.Process(ctx, input)
}
