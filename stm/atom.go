package stm

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
)

// Atom is a single, independent versioned cell. It never participates
// in a transaction; updates run their own lock-free compare-and-set
// loop instead.
type Atom[T any] struct {
	cellCore[T]
	current atomic.Pointer[cellSnapshot[T]]
}

// NewAtom creates an atom holding initial. Panics if a supplied
// validator rejects the initial value.
func NewAtom[T any](initial T, opts ...CellOption[T]) *Atom[T] {
	a := &Atom[T]{cellCore: newCellCore(opts...)}
	if !a.check(initial) {
		panic(fmt.Sprintf("stm: initial value rejected by validator on atom %s", a.id))
	}
	a.current.Store(&cellSnapshot[T]{value: initial})
	return a
}

// Load returns the current value. It never blocks and needs no version
// check by the caller.
func (a *Atom[T]) Load() T {
	return a.current.Load().value
}

// Current returns the current value and its version stamp.
func (a *Atom[T]) Current() (T, uint64) {
	snap := a.current.Load()
	return snap.value, snap.version
}

// Swap applies fn to the current value until the compare-and-set
// succeeds, then returns the new value. fn may execute more than once
// per call, so it must be free of observable side effects.
//
// A validator rejection fails immediately with ErrValidationRejected
// and never retries: rejection is a business-rule failure, not
// contention, and re-running it against the same value cannot succeed.
// Without a swap budget the loop is unbounded; starvation is possible
// under pathological contention.
func (a *Atom[T]) Swap(fn func(T) T) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		snap := a.current.Load()
		candidate := fn(snap.value)
		if !a.check(candidate) {
			return zero, fmt.Errorf("%w: atom %s", ErrValidationRejected, a.id)
		}
		next := &cellSnapshot[T]{value: candidate, version: snap.version + 1}
		if a.current.CompareAndSwap(snap, next) {
			a.subs.publish(Change[T]{Value: candidate, Version: next.version, Span: spanAround(time.Now())})
			return candidate, nil
		}
		if a.swapBudget > 0 && attempt >= a.swapBudget {
			return zero, fmt.Errorf("%w: %d attempts on atom %s", ErrRetryBudgetExceeded, attempt, a.id)
		}
		runtime.Gosched()
	}
}

// Reset sets the atom to value unconditionally, still through the
// validator.
func (a *Atom[T]) Reset(value T) (T, error) {
	return a.Swap(func(T) T { return value })
}

// Subscribe registers cb to receive the atom's new value after every
// successful swap, exactly once per swap.
func (a *Atom[T]) Subscribe(cb func(Change[T])) Subscription {
	return a.subs.add(cb)
}

// CompareAndSwap performs a single conditional update: if the atom
// currently holds old, it is replaced by new. A false return with nil
// error means the value had moved on; the caller decides whether to
// re-read and try again.
func CompareAndSwap[T comparable](a *Atom[T], old, new T) (bool, error) {
	snap := a.current.Load()
	if snap.value != old {
		return false, nil
	}
	if !a.check(new) {
		return false, fmt.Errorf("%w: atom %s", ErrValidationRejected, a.id)
	}
	next := &cellSnapshot[T]{value: new, version: snap.version + 1}
	if !a.current.CompareAndSwap(snap, next) {
		return false, nil
	}
	a.subs.publish(Change[T]{Value: new, Version: next.version, Span: spanAround(time.Now())})
	return true, nil
}
