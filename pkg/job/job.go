// Package job defines the unit of work tracked by the queue: an opaque
// JSON payload plus its lifecycle state, and the processor contract used
// by workers and execution strategies.
package job

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a job.
//
// NOTE: These values are persisted (bucket directory names and the
// status field of the on-disk envelope) and are part of the stable
// on-disk contract.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every status in bucket order.
func Statuses() []Status {
	return []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled}
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job is a single unit of work and its lifecycle state.
//
// Input is owned exclusively by the record and never mutated after
// submission. Output is set only on completion, Error only on failure.
// All state transitions go through the queue; the transition methods
// here only keep the record's fields consistent.
type Job struct {
	ID       string          `json:"id"`
	Name     string          `json:"name,omitempty"`
	Input    json.RawMessage `json:"input"`
	Status   Status          `json:"status"`
	Priority int             `json:"priority"`

	// Seq is the submission sequence number. It breaks CreatedAt ties so
	// dispatch order stays deterministic on coarse clocks.
	Seq uint64 `json:"seq"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// EligibleAt gates retry dispatch: a pending job is not selectable
	// before this instant. Zero means immediately eligible.
	EligibleAt time.Time `json:"eligible_at,omitempty"`

	WorkerID   string `json:"worker_id,omitempty"`
	Retries    int    `json:"retries"`
	MaxRetries int    `json:"max_retries"`

	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// New creates a pending job with a fresh id.
func New(input json.RawMessage, priority, maxRetries int) *Job {
	return &Job{
		ID:         uuid.New().String(),
		Input:      input,
		Status:     StatusPending,
		Priority:   priority,
		MaxRetries: maxRetries,
		CreatedAt:  time.Now().UTC(),
	}
}

// MarkRunning records the pending -> running transition.
func (j *Job) MarkRunning(workerID string) {
	now := time.Now().UTC()
	j.Status = StatusRunning
	j.StartedAt = &now
	j.WorkerID = workerID
}

// MarkCompleted records the running -> completed transition.
func (j *Job) MarkCompleted(output json.RawMessage) {
	now := time.Now().UTC()
	j.Status = StatusCompleted
	j.CompletedAt = &now
	j.Output = output
}

// MarkFailed records a failed attempt. The caller decides between a
// retry requeue and a permanent failure based on CanRetry.
func (j *Job) MarkFailed(errMsg string) {
	now := time.Now().UTC()
	j.Status = StatusFailed
	j.CompletedAt = &now
	j.Error = errMsg
	j.Retries++
}

// MarkCancelled records the pending -> cancelled transition.
func (j *Job) MarkCancelled() {
	now := time.Now().UTC()
	j.Status = StatusCancelled
	j.CompletedAt = &now
}

// Requeue resets a failed attempt back to pending for another try.
// The retry counter keeps its incremented value; eligibleAt defers
// dispatch when a backoff delay is in effect.
func (j *Job) Requeue(eligibleAt time.Time) {
	j.Status = StatusPending
	j.WorkerID = ""
	j.StartedAt = nil
	j.CompletedAt = nil
	j.EligibleAt = eligibleAt
}

// CanRetry reports whether another attempt is allowed after a failure.
func (j *Job) CanRetry() bool {
	return j.Retries < j.MaxRetries
}

// Eligible reports whether the job may be dispatched at instant now.
func (j *Job) Eligible(now time.Time) bool {
	return j.Status == StatusPending && !j.EligibleAt.After(now)
}

// Duration returns the wall time between start and completion, or zero
// if the job has not finished an attempt.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// Clone returns a deep copy. The queue hands out clones so callers can
// never mutate the authoritative record through a shared pointer.
func (j *Job) Clone() *Job {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.Input != nil {
		c.Input = append(json.RawMessage(nil), j.Input...)
	}
	if j.Output != nil {
		c.Output = append(json.RawMessage(nil), j.Output...)
	}
	return &c
}
