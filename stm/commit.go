package stm

import (
	"fmt"
	"sort"
	"time"

	"github.com/rickb777/date/v2/timespan"
	"go.uber.org/zap"
)

// commit runs the validation/apply protocol for one attempt.
//
// Every written or commuted ref is locked in a single deterministic
// order (lock rank, id as tie-break), so concurrently committing
// transactions can never circular-wait. Validation and application
// both happen under those locks; change notifications fire only after
// release.
//
// Outcomes: nil on success, errConflict on a failed version check
// (the driver retries transparently), ErrValidationRejected when a
// validator refuses a candidate value (surfaced, never retried).
// Partial commits are impossible: every staged update is applied under
// the held locks, or none are.
func (t *Txn) commit() error {
	cells := t.lockOrder()
	if len(cells) == 0 {
		// Nothing to apply. A Serializable read-only transaction still
		// proves its footprint stayed stable.
		if t.isolation == Serializable && !t.readsStable() {
			return errConflict
		}
		return nil
	}

	began := time.Now()
	for _, c := range cells {
		c.lockCell()
	}
	unlock := func() {
		for i := len(cells) - 1; i >= 0; i-- {
			cells[i].unlockCell()
		}
	}

	// Version checks. A written ref must be unmodified by any commit
	// since this transaction began. Commute-only refs are exempt: their
	// updates apply to the commit-time value, so an interleaved commit
	// on them is not a conflict.
	for c := range t.writes {
		if _, version := c.loadCommitted(); version > t.start {
			unlock()
			return errConflict
		}
	}
	if t.isolation == Serializable && !t.readsStable() {
		unlock()
		return errConflict
	}

	// Compute every final value first; apply nothing until all of them
	// pass their validators.
	pending := make(map[txnCell]any, len(cells))
	for c, v := range t.writes {
		if !c.checkAny(v) {
			unlock()
			return fmt.Errorf("%w: ref %s", ErrValidationRejected, c.cellID())
		}
		pending[c] = v
	}
	for _, e := range t.commutes {
		base, staged := pending[e.cell]
		if !staged {
			base, _ = e.cell.loadCommitted()
		}
		next := e.fn(base)
		if !e.cell.checkAny(next) {
			unlock()
			return fmt.Errorf("%w: ref %s", ErrValidationRejected, e.cell.cellID())
		}
		pending[e.cell] = next
	}

	version := t.clock.Tick()
	for _, c := range cells {
		c.storeCommitted(pending[c], version)
	}
	unlock()

	span := timespan.BetweenTimes(began, time.Now())
	for _, c := range cells {
		c.publishChange(pending[c], version, span)
	}

	t.logger.Debug("transaction committed",
		zap.String("txn", t.id),
		zap.Int("attempt", t.attempt),
		zap.Uint64("version", version),
		zap.Int("cells", len(cells)),
	)
	return nil
}

// lockOrder returns the union of write-set and commute-set in the
// deterministic acquisition order shared by all transactions.
func (t *Txn) lockOrder() []txnCell {
	if len(t.writes) == 0 && len(t.commuted) == 0 {
		return nil
	}
	cells := make([]txnCell, 0, len(t.writes)+len(t.commuted))
	for c := range t.writes {
		cells = append(cells, c)
	}
	for c := range t.commuted {
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool {
		ri, rj := cells[i].lockRank(), cells[j].lockRank()
		if ri != rj {
			return ri < rj
		}
		return cells[i].cellID() < cells[j].cellID()
	})
	return cells
}

// readsStable reports whether every ref in the read-set still holds
// the version observed at first read.
func (t *Txn) readsStable() bool {
	for c, e := range t.reads {
		if _, version := c.loadCommitted(); version != e.version {
			return false
		}
	}
	return true
}
