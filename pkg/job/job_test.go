package job

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	j := New(json.RawMessage(`{"k":1}`), 5, 2)

	assert.NotEmpty(t, j.ID)
	assert.Equal(t, StatusPending, j.Status)
	assert.Equal(t, 5, j.Priority)
	assert.Equal(t, 2, j.MaxRetries)
	assert.Equal(t, 0, j.Retries)
	assert.False(t, j.CreatedAt.IsZero())
	assert.Nil(t, j.StartedAt)
	assert.Nil(t, j.CompletedAt)
}

func TestStatusValid(t *testing.T) {
	for _, s := range Statuses() {
		assert.True(t, s.Valid(), "status %s should be valid", s)
	}
	assert.False(t, Status("paused").Valid())
	assert.False(t, Status("").Valid())
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusPending, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.terminal, tt.status.Terminal(), "status %s", tt.status)
	}
}

func TestTransitions(t *testing.T) {
	j := New(json.RawMessage(`{}`), 0, 1)

	j.MarkRunning("worker-0")
	assert.Equal(t, StatusRunning, j.Status)
	assert.Equal(t, "worker-0", j.WorkerID)
	require.NotNil(t, j.StartedAt)

	j.MarkCompleted(json.RawMessage(`{"ok":true}`))
	assert.Equal(t, StatusCompleted, j.Status)
	require.NotNil(t, j.CompletedAt)
	assert.JSONEq(t, `{"ok":true}`, string(j.Output))
	assert.GreaterOrEqual(t, j.Duration(), time.Duration(0))
}

func TestMarkFailedIncrementsRetries(t *testing.T) {
	j := New(json.RawMessage(`{}`), 0, 2)
	j.MarkRunning("w")
	j.MarkFailed("boom")

	assert.Equal(t, StatusFailed, j.Status)
	assert.Equal(t, "boom", j.Error)
	assert.Equal(t, 1, j.Retries)
	assert.True(t, j.CanRetry())

	j.Requeue(time.Time{})
	j.MarkRunning("w")
	j.MarkFailed("boom again")
	assert.Equal(t, 2, j.Retries)
	assert.False(t, j.CanRetry())
}

func TestRequeueClearsAttemptState(t *testing.T) {
	j := New(json.RawMessage(`{}`), 0, 3)
	j.MarkRunning("w")
	j.MarkFailed("x")

	eligible := time.Now().Add(time.Minute)
	j.Requeue(eligible)

	assert.Equal(t, StatusPending, j.Status)
	assert.Empty(t, j.WorkerID)
	assert.Nil(t, j.StartedAt)
	assert.Nil(t, j.CompletedAt)
	assert.Equal(t, eligible, j.EligibleAt)
	assert.Equal(t, 1, j.Retries, "retry count survives requeue")
}

func TestEligible(t *testing.T) {
	now := time.Now().UTC()

	j := New(json.RawMessage(`{}`), 0, 0)
	assert.True(t, j.Eligible(now), "zero EligibleAt means immediately eligible")

	j.EligibleAt = now.Add(time.Minute)
	assert.False(t, j.Eligible(now))
	assert.True(t, j.Eligible(now.Add(2*time.Minute)))

	j.EligibleAt = time.Time{}
	j.MarkRunning("w")
	assert.False(t, j.Eligible(now), "non-pending jobs are never eligible")
}

func TestClone(t *testing.T) {
	j := New(json.RawMessage(`{"a":1}`), 3, 1)
	j.MarkRunning("w")

	c := j.Clone()
	require.Equal(t, j.ID, c.ID)
	require.NotNil(t, c.StartedAt)

	// Mutating the clone must not touch the original.
	c.Status = StatusFailed
	*c.StartedAt = time.Time{}
	c.Input[1] = 'x'

	assert.Equal(t, StatusRunning, j.Status)
	assert.False(t, j.StartedAt.IsZero())
	assert.JSONEq(t, `{"a":1}`, string(j.Input))
}
