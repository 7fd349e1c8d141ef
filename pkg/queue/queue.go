// Package queue implements the authoritative in-memory job index, its
// state machine, and the worker pool that drains it.
//
// The queue owns every record exclusively; workers and callers receive
// defensive copies and mutate state only through transition methods.
// Persistence is best-effort: a failed store write is logged, and the
// in-memory state remains correct for the life of the process.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taskmill/taskmill/pkg/job"
	"github.com/taskmill/taskmill/pkg/store"
)

var (
	// ErrNotFound is returned for operations on unknown job ids.
	ErrNotFound = errors.New("job not found")

	// ErrNotPending is returned when a claim races another worker or
	// targets a job that already left the pending bucket.
	ErrNotPending = errors.New("job is not pending")

	// ErrNotRunning is returned when complete/fail target a job that is
	// not currently running.
	ErrNotRunning = errors.New("job is not running")

	// ErrJobRunning is returned by Cancel for running jobs: preemption
	// of in-flight work is unsupported.
	ErrJobRunning = errors.New("cannot cancel a running job")
)

// maxRetryBackoff caps the exponential retry delay.
const maxRetryBackoff = 5 * time.Minute

// Counts summarizes bucket occupancy.
type Counts struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}

// Options configures a Queue.
type Options struct {
	// DefaultMaxRetries applies when Submit is called with a negative
	// max retries value. Default 3.
	DefaultMaxRetries int

	// RetryBackoff is the base delay before a failed job becomes
	// eligible again: base * 2^(retries-1), capped at 5 minutes.
	// Zero requeues immediately.
	RetryBackoff time.Duration

	Logger *zap.Logger
}

// Queue is the in-memory job index. All mutation happens through its
// methods under one mutex; claim is therefore the sole serialized
// pending -> running mutator, so no two workers ever hold the same job.
type Queue struct {
	mu      sync.Mutex
	buckets map[job.Status]map[string]*job.Job
	nextSeq uint64

	store             store.Store
	defaultMaxRetries int
	retryBackoff      time.Duration
	logger            *zap.Logger
}

// New builds a queue over the given store and replays persisted records.
// Records recovered from the running bucket arrive already demoted to
// pending (see store.Store).
func New(st store.Store, opts Options) (*Queue, error) {
	if st == nil {
		st = store.Nop{}
	}
	if opts.DefaultMaxRetries <= 0 {
		opts.DefaultMaxRetries = 3
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	q := &Queue{
		buckets:           make(map[job.Status]map[string]*job.Job, 5),
		store:             st,
		defaultMaxRetries: opts.DefaultMaxRetries,
		retryBackoff:      opts.RetryBackoff,
		logger:            opts.Logger,
	}
	for _, s := range job.Statuses() {
		q.buckets[s] = make(map[string]*job.Job)
	}

	jobs, err := st.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load persisted jobs: %w", err)
	}
	for _, j := range jobs {
		if !j.Status.Valid() {
			q.logger.Warn("dropping job with unknown status",
				zap.String("job_id", j.ID),
				zap.String("status", string(j.Status)))
			continue
		}
		q.buckets[j.Status][j.ID] = j
		if j.Seq >= q.nextSeq {
			q.nextSeq = j.Seq + 1
		}
	}
	if len(jobs) > 0 {
		c := q.Status()
		q.logger.Info("recovered persisted jobs",
			zap.Int("pending", c.Pending),
			zap.Int("completed", c.Completed),
			zap.Int("failed", c.Failed),
			zap.Int("total", c.Total))
	}
	return q, nil
}

// Submit creates a pending job and returns its id. A negative
// maxRetries selects the queue default.
func (q *Queue) Submit(input json.RawMessage, priority, maxRetries int) (string, error) {
	return q.SubmitNamed("", input, priority, maxRetries)
}

// SubmitNamed is Submit with an operator-facing label attached.
func (q *Queue) SubmitNamed(name string, input json.RawMessage, priority, maxRetries int) (string, error) {
	if maxRetries < 0 {
		maxRetries = q.defaultMaxRetries
	}
	j := job.New(input, priority, maxRetries)
	j.Name = name

	q.mu.Lock()
	j.Seq = q.nextSeq
	q.nextSeq++
	q.buckets[job.StatusPending][j.ID] = j
	q.persistLocked(j)
	q.mu.Unlock()

	q.logger.Info("job submitted",
		zap.String("job_id", j.ID),
		zap.Int("priority", priority))
	return j.ID, nil
}

// Next returns a copy of the highest-priority, oldest eligible pending
// job without claiming it, or nil when nothing is dispatchable.
// Ordering: priority descending, then submission sequence ascending.
func (q *Queue) Next() *job.Job {
	now := time.Now().UTC()

	q.mu.Lock()
	defer q.mu.Unlock()

	var best *job.Job
	for _, j := range q.buckets[job.StatusPending] {
		if !j.Eligible(now) {
			continue
		}
		if best == nil || j.Priority > best.Priority ||
			(j.Priority == best.Priority && j.Seq < best.Seq) {
			best = j
		}
	}
	if best == nil {
		return nil
	}
	return best.Clone()
}

// Claim transitions pending -> running on behalf of workerID. It fails
// with ErrNotPending if the job already left the pending bucket, which
// makes concurrent claims on one job resolve to a single winner.
func (q *Queue) Claim(id, workerID string) (*job.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.buckets[job.StatusPending][id]
	if !ok {
		if q.findLocked(id) == nil {
			return nil, ErrNotFound
		}
		return nil, ErrNotPending
	}

	delete(q.buckets[job.StatusPending], id)
	j.MarkRunning(workerID)
	q.buckets[job.StatusRunning][id] = j
	q.persistLocked(j)

	q.logger.Debug("job claimed",
		zap.String("job_id", id),
		zap.String("worker_id", workerID))
	return j.Clone(), nil
}

// Complete transitions running -> completed and records the output.
func (q *Queue) Complete(id string, output json.RawMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.buckets[job.StatusRunning][id]
	if !ok {
		if q.findLocked(id) == nil {
			return ErrNotFound
		}
		return ErrNotRunning
	}

	delete(q.buckets[job.StatusRunning], id)
	j.MarkCompleted(output)
	q.buckets[job.StatusCompleted][id] = j
	q.persistLocked(j)

	q.logger.Info("job completed", zap.String("job_id", id))
	return nil
}

// Fail records a failed attempt. While retries remain the job is
// requeued as pending with the worker cleared (and an optional backoff
// delay); once retries are exhausted it lands in failed permanently.
func (q *Queue) Fail(id, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.buckets[job.StatusRunning][id]
	if !ok {
		if q.findLocked(id) == nil {
			return ErrNotFound
		}
		return ErrNotRunning
	}

	delete(q.buckets[job.StatusRunning], id)
	j.MarkFailed(errMsg)

	if j.CanRetry() {
		j.Requeue(q.retryEligibleAt(j.Retries))
		q.buckets[job.StatusPending][id] = j
		q.persistLocked(j)
		q.logger.Info("job failed, retrying",
			zap.String("job_id", id),
			zap.Int("retries", j.Retries),
			zap.Int("max_retries", j.MaxRetries),
			zap.String("error", errMsg))
		return nil
	}

	q.buckets[job.StatusFailed][id] = j
	q.persistLocked(j)
	q.logger.Warn("job failed permanently",
		zap.String("job_id", id),
		zap.Int("retries", j.Retries),
		zap.String("error", errMsg))
	return nil
}

func (q *Queue) retryEligibleAt(retries int) time.Time {
	if q.retryBackoff <= 0 {
		return time.Time{}
	}
	delay := q.retryBackoff << (retries - 1)
	if delay > maxRetryBackoff || delay <= 0 {
		delay = maxRetryBackoff
	}
	return time.Now().UTC().Add(delay)
}

// Cancel transitions a pending job to cancelled. Running jobs cannot be
// preempted and return ErrJobRunning; terminal jobs return ErrNotPending.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if j, ok := q.buckets[job.StatusPending][id]; ok {
		delete(q.buckets[job.StatusPending], id)
		j.MarkCancelled()
		q.buckets[job.StatusCancelled][id] = j
		q.persistLocked(j)
		q.logger.Info("job cancelled", zap.String("job_id", id))
		return nil
	}
	if _, ok := q.buckets[job.StatusRunning][id]; ok {
		return ErrJobRunning
	}
	if q.findLocked(id) == nil {
		return ErrNotFound
	}
	return ErrNotPending
}

// Get returns a copy of the job in whatever bucket it occupies.
func (q *Queue) Get(id string) (*job.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j := q.findLocked(id)
	if j == nil {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

// List returns copies of every job in the named bucket, or in all
// buckets when status is empty.
func (q *Queue) List(status job.Status) []*job.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*job.Job
	for _, s := range job.Statuses() {
		if status != "" && s != status {
			continue
		}
		for _, j := range q.buckets[s] {
			out = append(out, j.Clone())
		}
	}
	return out
}

// Status returns per-bucket counts.
func (q *Queue) Status() Counts {
	q.mu.Lock()
	defer q.mu.Unlock()

	c := Counts{
		Pending:   len(q.buckets[job.StatusPending]),
		Running:   len(q.buckets[job.StatusRunning]),
		Completed: len(q.buckets[job.StatusCompleted]),
		Failed:    len(q.buckets[job.StatusFailed]),
		Cancelled: len(q.buckets[job.StatusCancelled]),
	}
	c.Total = c.Pending + c.Running + c.Completed + c.Failed + c.Cancelled
	return c
}

// ClearCompleted evicts the completed bucket.
func (q *Queue) ClearCompleted() int {
	return q.clear(job.StatusCompleted)
}

// ClearFailed evicts the failed bucket.
func (q *Queue) ClearFailed() int {
	return q.clear(job.StatusFailed)
}

// ClearAll evicts every bucket, including in-memory knowledge of
// running jobs; callers are expected to have stopped workers first.
func (q *Queue) ClearAll() int {
	n := 0
	for _, s := range job.Statuses() {
		n += q.clear(s)
	}
	return n
}

func (q *Queue) clear(status job.Status) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	bucket := q.buckets[status]
	n := len(bucket)
	for id := range bucket {
		if err := q.store.Remove(id, status); err != nil {
			q.logger.Error("failed to remove persisted job",
				zap.String("job_id", id),
				zap.String("bucket", string(status)),
				zap.Error(err))
		}
		delete(bucket, id)
	}
	if n > 0 {
		q.logger.Info("cleared bucket",
			zap.String("bucket", string(status)),
			zap.Int("count", n))
	}
	return n
}

// findLocked locates a job across buckets. Caller holds q.mu.
func (q *Queue) findLocked(id string) *job.Job {
	for _, s := range job.Statuses() {
		if j, ok := q.buckets[s][id]; ok {
			return j
		}
	}
	return nil
}

// persistLocked writes through to the store, logging and swallowing
// failures: durability degrades, in-process correctness does not.
// Caller holds q.mu.
func (q *Queue) persistLocked(j *job.Job) {
	if err := q.store.Persist(j.Clone()); err != nil {
		q.logger.Error("failed to persist job",
			zap.String("job_id", j.ID),
			zap.String("status", string(j.Status)),
			zap.Error(err))
	}
}
