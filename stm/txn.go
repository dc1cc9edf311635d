package stm

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type txnCtxKey struct{}

func txnFrom(ctx context.Context) *Txn {
	txn, _ := ctx.Value(txnCtxKey{}).(*Txn)
	return txn
}

// InTransaction reports whether ctx carries an active transaction.
func InTransaction(ctx context.Context) bool {
	return txnFrom(ctx) != nil
}

// Attempt returns the 1-based attempt number of the active
// transaction, or zero outside one. Bodies use it for instrumentation;
// it must not change what the body stages.
func Attempt(ctx context.Context) int {
	if txn := txnFrom(ctx); txn != nil {
		return txn.attempt
	}
	return 0
}

type readEntry struct {
	value   any
	version uint64
}

type commuteEntry struct {
	cell txnCell
	fn   func(any) any
}

// Txn is the live, per-attempt record of one transaction: its clock
// snapshot, isolation level, and read/write/commute sets. On conflict
// it is discarded wholesale and rebuilt for the next attempt.
//
// A Txn is confined to the goroutine running the body, so its sets
// need no synchronization. Sharing a transactional context across
// goroutines is undefined behavior.
type Txn struct {
	id        string
	isolation Isolation
	clock     *Clock
	logger    *zap.Logger
	start     uint64
	attempt   int
	reads     map[txnCell]readEntry
	writes    map[txnCell]any
	commutes  []commuteEntry
	commuted  map[txnCell]struct{}
}

func newTxn(cfg txnConfig, attempt int) *Txn {
	return &Txn{
		id:        uuid.New().String(),
		isolation: cfg.isolation,
		clock:     cfg.clock,
		logger:    cfg.logger,
		start:     cfg.clock.Now(),
		attempt:   attempt,
		reads:     make(map[txnCell]readEntry),
		writes:    make(map[txnCell]any),
		commuted:  make(map[txnCell]struct{}),
	}
}

// read returns the pending write if one is staged, else the value
// cached at first read, else the latest committed value, which is then
// cached together with its observed version. Repeated reads within one
// attempt are therefore stable.
func (t *Txn) read(c txnCell) any {
	if v, ok := t.writes[c]; ok {
		return v
	}
	if e, ok := t.reads[c]; ok {
		return e.value
	}
	value, version := c.loadCommitted()
	t.reads[c] = readEntry{value: value, version: version}
	return value
}

// stageWrite records a pending value, last write wins within the
// attempt. A ref already commuted in this attempt cannot also be
// written: the two racing on one ref has no well-defined order.
func (t *Txn) stageWrite(c txnCell, v any) error {
	if _, ok := t.commuted[c]; ok {
		return fmt.Errorf("%w: ref %s", ErrAmbiguousUpdate, c.cellID())
	}
	t.writes[c] = v
	return nil
}

func (t *Txn) stageCommute(c txnCell, fn func(any) any) error {
	if _, ok := t.writes[c]; ok {
		return fmt.Errorf("%w: ref %s", ErrAmbiguousUpdate, c.cellID())
	}
	t.commutes = append(t.commutes, commuteEntry{cell: c, fn: fn})
	t.commuted[c] = struct{}{}
	return nil
}

// ensure records the cell's observed version without surfacing the
// value.
func (t *Txn) ensure(c txnCell) {
	if _, ok := t.reads[c]; ok {
		return
	}
	value, version := c.loadCommitted()
	t.reads[c] = readEntry{value: value, version: version}
}
