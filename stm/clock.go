package stm

import "go.uber.org/atomic"

// Clock is a version authority: a process-wide monotonically
// increasing counter advanced once per successful commit. Every cell
// stamped by the same clock is comparable against it, which is what
// makes "has this changed since I started" a single integer
// comparison.
//
// The zero-adjacent constructor exists so tests can build an isolated
// clock per test instead of resetting the shared one.
type Clock struct {
	counter atomic.Uint64
}

// NewClock returns an independent clock starting at version zero.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the latest committed version.
func (c *Clock) Now() uint64 {
	return c.counter.Load()
}

// Tick advances the clock and returns the new version.
func (c *Clock) Tick() uint64 {
	return c.counter.Inc()
}

// globalClock stamps every cell and transaction not constructed with
// an explicit clock. Initialized once at process start, never reset.
var globalClock = NewClock()

// DefaultClock exposes the process-wide clock.
func DefaultClock() *Clock {
	return globalClock
}
