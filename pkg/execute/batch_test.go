package execute

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// observe feeds one synthetic batch where every item took itemDur and
// the whole batch took batchDur.
func observe(c *BatchController, batchDur, itemDur time.Duration) {
	items := make([]time.Duration, c.Size())
	for i := range items {
		items[i] = itemDur
	}
	c.Observe(batchDur, items)
}

func TestNewBatchControllerClamps(t *testing.T) {
	assert.Equal(t, 1, NewBatchController(0).Size())
	assert.Equal(t, 1, NewBatchController(-5).Size())
	assert.Equal(t, 20, NewBatchController(100).Size())
	assert.Equal(t, 4, NewBatchController(4).Size())
}

func TestControllerHoldsDuringWarmup(t *testing.T) {
	c := NewBatchController(4)

	// Perfectly parallel batches: would grow, but warm-up holds.
	observe(c, 100*time.Millisecond, 100*time.Millisecond)
	assert.Equal(t, 4, c.Size(), "no adjustment after 1 batch")
	observe(c, 100*time.Millisecond, 100*time.Millisecond)
	assert.Equal(t, 4, c.Size(), "no adjustment after 2 batches")
}

func TestControllerGrowsOnHighEfficiency(t *testing.T) {
	c := NewBatchController(4)

	// efficiency = avgItem * size / avgBatch = 100ms * 4 / 110ms ~ 3.6.
	for i := 0; i < 3; i++ {
		observe(c, 110*time.Millisecond, 100*time.Millisecond)
	}
	assert.Equal(t, 6, c.Size(), "grow step is 2")
}

func TestControllerGrowthIsCapped(t *testing.T) {
	c := NewBatchController(19)

	for i := 0; i < 5; i++ {
		observe(c, 110*time.Millisecond, 100*time.Millisecond)
	}
	assert.Equal(t, 20, c.Size())
}

func TestControllerShrinksOnLowEfficiency(t *testing.T) {
	c := NewBatchController(4)

	// Near-serial batches: efficiency = 100ms * 4 / 1000ms = 0.4.
	for i := 0; i < 3; i++ {
		observe(c, 1000*time.Millisecond, 100*time.Millisecond)
	}
	assert.Equal(t, 3, c.Size(), "shrink step is 1")
}

func TestControllerShrinkFloorsAtOne(t *testing.T) {
	c := NewBatchController(2)

	for i := 0; i < 6; i++ {
		observe(c, 1000*time.Millisecond, 50*time.Millisecond)
	}
	assert.Equal(t, 1, c.Size())
}

func TestControllerHoldsInMiddleBand(t *testing.T) {
	c := NewBatchController(4)

	// efficiency = 100ms * 4 / 600ms ~ 0.67: between the thresholds.
	for i := 0; i < 5; i++ {
		observe(c, 600*time.Millisecond, 100*time.Millisecond)
	}
	assert.Equal(t, 4, c.Size())
}

func TestControllerUsesRecentWindowsOnly(t *testing.T) {
	c := NewBatchController(4)

	// Three slow batches shrink once the warm-up passes.
	for i := 0; i < 3; i++ {
		observe(c, 1000*time.Millisecond, 100*time.Millisecond)
	}
	assert.Equal(t, 3, c.Size())

	// Fast batches displace the slow history within a few observations.
	for i := 0; i < 6; i++ {
		observe(c, 110*time.Millisecond, 100*time.Millisecond)
	}
	assert.Greater(t, c.Size(), 3, "recent fast batches should dominate the window")
}
