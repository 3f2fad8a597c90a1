package testutil

import (
	"sync"
	"time"
)

// FixedClock yields a deterministic sequence of instants for tests.
// Each call to Now advances by the configured step, so ledger periods
// and updated_at stamps are reproducible.
//
// Thread-safety: all methods are safe for concurrent use via internal
// mutex.
type FixedClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewFixedClock creates a clock starting at start, advancing by step
// on every Now call. A zero step freezes the clock.
func NewFixedClock(start time.Time, step time.Duration) *FixedClock {
	return &FixedClock{now: start, step: step}
}

// Now returns the current instant and advances the clock.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}
