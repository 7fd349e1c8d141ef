package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taskmill/taskmill/pkg/job"
)

// Pool runs N worker loops concurrently against one queue.
type Pool struct {
	queue        *Queue
	proc         job.Processor
	size         int
	pollInterval time.Duration
	logger       *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewPool builds a pool of size workers. Size defaults to 3 when not
// positive, matching the queue's historical default.
func NewPool(q *Queue, proc job.Processor, size int, pollInterval time.Duration, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		queue:        q,
		proc:         proc,
		size:         size,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Size returns the configured worker count.
func (p *Pool) Size() int {
	return p.size
}

// Start spawns the worker goroutines. Calling Start on a running pool
// is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true

	for i := 0; i < p.size; i++ {
		w := NewWorker(fmt.Sprintf("worker-%d", i), p.queue, p.proc, p.pollInterval, p.logger)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error("worker exited with error",
					zap.String("worker_id", w.ID()),
					zap.Error(err))
			}
		}()
	}
	p.logger.Info("worker pool started", zap.Int("workers", p.size))
}

// Stop signals every worker and waits for the loops to exit. Jobs
// already claimed run to completion; nothing is interrupted mid-job.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// Wait blocks until every submitted job in ids reaches a terminal
// state or ctx expires. The queue has no event stream, so Wait polls.
func (p *Pool) Wait(ctx context.Context, ids []string, poll time.Duration) error {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	for {
		done := true
		for _, id := range ids {
			j, err := p.queue.Get(id)
			if err != nil {
				continue
			}
			if !j.Status.Terminal() {
				done = false
				break
			}
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}
