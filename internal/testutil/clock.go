package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start of a DeterministicClock: 2024-01-01T00:00:00Z.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a thread-safe stand-in for time.Now.
//
// Each call to Now returns the current instant and then advances it by the
// step, so successive calls are strictly increasing when step > 0. A step of
// zero freezes the clock, which is how tests exercise event-time tie breaking.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	now   time.Time
}

// NewDeterministicClock creates a clock starting at Epoch that advances one
// second per call.
func NewDeterministicClock() *DeterministicClock {
	return NewSteppingClock(Epoch, time.Second)
}

// NewSteppingClock creates a clock starting at start that advances by step
// per call.
func NewSteppingClock(start time.Time, step time.Duration) *DeterministicClock {
	start = start.UTC()
	return &DeterministicClock{start: start, step: step, now: start}
}

// Now returns the current instant and advances the clock.
// Its method value satisfies the func() time.Time clock options.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Peek returns the instant the next call to Now will return.
func (c *DeterministicClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d without consuming a tick.
func (c *DeterministicClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Reset rewinds the clock to its start.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
