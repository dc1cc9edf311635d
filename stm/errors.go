package stm

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActiveTxn is returned by Write and Commute when the context
	// carries no active transaction. The call is fatal, never retried.
	ErrNoActiveTxn = errors.New("stm: no active transaction")

	// ErrValidationRejected is returned when a cell's validator rejects
	// a candidate value at commit or swap time. It is a business-rule
	// failure, never treated as contention: the whole attempt is
	// discarded without partial effect and the error surfaces
	// immediately.
	ErrValidationRejected = errors.New("stm: validator rejected value")

	// ErrRetryBudgetExceeded surfaces when a configured attempt cap is
	// exhausted. The wrapped message carries the number of attempts.
	ErrRetryBudgetExceeded = errors.New("stm: retry budget exceeded")

	// ErrAborted wraps a caller-supplied reason passed to Abort. The
	// transaction is discarded without applying anything and without
	// retry.
	ErrAborted = errors.New("stm: transaction aborted")

	// ErrAmbiguousUpdate is returned when one attempt both writes and
	// commutes the same ref. The two racing on a single ref within one
	// attempt has no well-defined order, so it is rejected before
	// commit.
	ErrAmbiguousUpdate = errors.New("stm: ref both written and commuted in one attempt")
)

// errConflict signals a commit-time version check failure. It never
// escapes the engine: Atomically converts it into a transparent retry.
var errConflict = errors.New("stm: commit conflict")

// Abort wraps reason so that returning it from a transaction body
// reads as an explicit cancellation rather than an incidental error.
// Any non-nil error returned from a body discards the attempt; Abort
// only adds the ErrAborted marker for callers that match on it.
func Abort(reason error) error {
	if reason == nil {
		return ErrAborted
	}
	return fmt.Errorf("%w: %w", ErrAborted, reason)
}
