package stm

import (
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/rickb777/date/v2/timespan"
)

// cellSnapshot is the immutable (value, version) pair a cell publishes
// to readers. Mutation replaces the whole snapshot, never a field, so
// readers are always consistent without taking a lock.
type cellSnapshot[T any] struct {
	value   T
	version uint64
}

// cellCore carries what Ref and Atom share: a stable identity, the
// clock that stamps their versions, an optional validator, and the
// subscriber set. There is no hierarchy beyond this embedding.
type cellCore[T any] struct {
	id         string
	rank       uint64
	clock      *Clock
	validator  func(T) bool
	swapBudget int
	subs       *subscribers[T]
}

// CellOption configures a Ref or Atom at construction.
type CellOption[T any] func(*cellCore[T])

// WithValidator attaches a predicate every committed value must
// satisfy. Rejection at commit or swap surfaces ErrValidationRejected
// and leaves the cell untouched.
func WithValidator[T any](valid func(T) bool) CellOption[T] {
	return func(c *cellCore[T]) { c.validator = valid }
}

// WithClock stamps the cell's versions from clk instead of the
// process-wide clock. Cells sharing an atomic scope must share a
// clock; tests use this to isolate state per test.
func WithClock[T any](clk *Clock) CellOption[T] {
	return func(c *cellCore[T]) { c.clock = clk }
}

// WithSwapBudget caps the number of compare-and-set attempts a single
// Atom.Swap may make before giving up with ErrRetryBudgetExceeded.
// Zero means unbounded. Refs ignore it: their retry budget belongs to
// the transaction, not the cell.
func WithSwapBudget[T any](attempts int) CellOption[T] {
	return func(c *cellCore[T]) { c.swapBudget = attempts }
}

func newCellCore[T any](opts ...CellOption[T]) cellCore[T] {
	id := uuid.New().String()
	core := cellCore[T]{
		id:    id,
		rank:  xxhash.Sum64String(id),
		clock: globalClock,
		subs:  newSubscribers[T](),
	}
	for _, opt := range opts {
		opt(&core)
	}
	return core
}

// ID returns the cell's unique, stable identity.
func (c *cellCore[T]) ID() string { return c.id }

func (c *cellCore[T]) check(v T) bool {
	return c.validator == nil || c.validator(v)
}

func (c *cellCore[T]) cellID() string   { return c.id }
func (c *cellCore[T]) lockRank() uint64 { return c.rank }

func (c *cellCore[T]) checkAny(raw any) bool {
	return c.check(raw.(T))
}

func (c *cellCore[T]) publishChange(raw any, version uint64, span timespan.TimeSpan) {
	c.subs.publish(Change[T]{Value: raw.(T), Version: version, Span: span})
}

// txnCell is the type-erased face a Ref shows the transaction engine,
// which must hold refs of different value types in one read/write set.
type txnCell interface {
	cellID() string
	lockRank() uint64
	lockCell()
	unlockCell()
	loadCommitted() (any, uint64)
	checkAny(any) bool
	storeCommitted(v any, version uint64)
	publishChange(v any, version uint64, span timespan.TimeSpan)
}
