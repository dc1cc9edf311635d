package stm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Ref is a transactional reference: a versioned cell that participates
// in multi-cell atomic transactions. Its committed state may only be
// replaced by a successful commit; no raw mutable handle is ever
// exposed.
type Ref[T any] struct {
	cellCore[T]
	mu      sync.Mutex
	current atomic.Pointer[cellSnapshot[T]]
}

var _ txnCell = (*Ref[int])(nil)

// NewRef creates a ref holding initial. Panics if a supplied validator
// rejects the initial value: a ref must never be observable in a state
// its validator forbids.
func NewRef[T any](initial T, opts ...CellOption[T]) *Ref[T] {
	r := &Ref[T]{cellCore: newCellCore(opts...)}
	if !r.check(initial) {
		panic(fmt.Sprintf("stm: initial value rejected by validator on ref %s", r.id))
	}
	r.current.Store(&cellSnapshot[T]{value: initial, version: r.clock.Now()})
	return r
}

// Read returns the ref's value. Outside a transaction it is the latest
// committed value, lock-free, with no bookkeeping. Inside a
// transaction it is the pending write if one is staged, otherwise the
// value observed at the transaction's first read of this ref, which is
// recorded in the read-set together with its version.
func (r *Ref[T]) Read(ctx context.Context) T {
	if txn := txnFrom(ctx); txn != nil {
		return txn.read(r).(T)
	}
	return r.current.Load().value
}

// Current returns the latest committed value and its version stamp.
func (r *Ref[T]) Current() (T, uint64) {
	snap := r.current.Load()
	return snap.value, snap.version
}

// Write stages value for this ref in the active transaction, replacing
// any earlier pending value from the same attempt. The validator is
// deliberately not consulted here: a later write in the same attempt
// may still correct this one, so validation happens at commit.
func (r *Ref[T]) Write(ctx context.Context, value T) error {
	txn := txnFrom(ctx)
	if txn == nil {
		return fmt.Errorf("%w: write on ref %s", ErrNoActiveTxn, r.id)
	}
	return txn.stageWrite(r, value)
}

// Commute stages fn to be applied to the ref's value at commit time.
// The ref is not added to the read-set: a commuted update does not
// care what the value was when staged, which is exactly why two
// transactions commuting the same ref never conflict.
//
// fn must be pure, and across concurrently committing transactions the
// order of staged functions must not matter for the final observed
// value. The engine cannot detect a violation of this contract.
func (r *Ref[T]) Commute(ctx context.Context, fn func(T) T) error {
	txn := txnFrom(ctx)
	if txn == nil {
		return fmt.Errorf("%w: commute on ref %s", ErrNoActiveTxn, r.id)
	}
	return txn.stageCommute(r, func(raw any) any { return fn(raw.(T)) })
}

// Ensure records the ref in the read-set without using its value. It
// gives Serializable protection to a ref the body never dereferences.
func (r *Ref[T]) Ensure(ctx context.Context) error {
	txn := txnFrom(ctx)
	if txn == nil {
		return fmt.Errorf("%w: ensure on ref %s", ErrNoActiveTxn, r.id)
	}
	txn.ensure(r)
	return nil
}

// Subscribe registers cb to receive the ref's final committed value
// after every commit that mutates it, exactly once per commit.
func (r *Ref[T]) Subscribe(cb func(Change[T])) Subscription {
	return r.subs.add(cb)
}

func (r *Ref[T]) lockCell()   { r.mu.Lock() }
func (r *Ref[T]) unlockCell() { r.mu.Unlock() }

func (r *Ref[T]) loadCommitted() (any, uint64) {
	snap := r.current.Load()
	return snap.value, snap.version
}

func (r *Ref[T]) storeCommitted(raw any, version uint64) {
	r.current.Store(&cellSnapshot[T]{value: raw.(T), version: version})
}
