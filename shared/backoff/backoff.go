// Package backoff provides the delay policies the transaction engine
// applies between conflicting commit attempts.
package backoff

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy decides how long to wait before re-running a conflicted
// attempt. Wait returns early with the context's error if it is
// cancelled while waiting.
type Policy interface {
	Wait(ctx context.Context, attempt int) error
}

// Default is full-jitter exponential backoff tuned for in-process
// contention: short enough not to throttle throughput, long enough to
// desynchronize symmetric retriers.
func Default() Policy {
	return Exponential(50*time.Microsecond, 5*time.Millisecond)
}

// None applies no delay between attempts.
func None() Policy { return none{} }

type none struct{}

func (none) Wait(ctx context.Context, _ int) error { return ctx.Err() }

// Fixed waits the same duration between every pair of attempts.
func Fixed(d time.Duration) Policy { return fixed{delay: d} }

type fixed struct{ delay time.Duration }

func (f fixed) Wait(ctx context.Context, _ int) error {
	return sleep(ctx, f.delay)
}

// Exponential doubles base per attempt up to limit, then draws the
// actual delay uniformly from [0, d] so that transactions conflicting
// with each other do not retry in lockstep.
func Exponential(base, limit time.Duration) Policy {
	return exponential{base: base, limit: limit}
}

type exponential struct {
	base  time.Duration
	limit time.Duration
}

func (e exponential) Wait(ctx context.Context, attempt int) error {
	d := e.base
	for i := 1; i < attempt && d < e.limit; i++ {
		d *= 2
	}
	if d > e.limit {
		d = e.limit
	}
	if d <= 0 {
		return ctx.Err()
	}
	return sleep(ctx, time.Duration(rand.Int64N(int64(d)+1)))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
