package stm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/on-the-ground/stm_ive_go/shared/backoff"
)

type txnConfig struct {
	isolation   Isolation
	clock       *Clock
	logger      *zap.Logger
	maxAttempts int
	policy      backoff.Policy
}

// TxnOption configures one outermost Atomically call.
type TxnOption func(*txnConfig)

// WithIsolation selects the commit-time validation strength. The
// default is Snapshot.
func WithIsolation(iso Isolation) TxnOption {
	return func(cfg *txnConfig) { cfg.isolation = iso }
}

// WithMaxAttempts caps conflict retries. Zero, the default, means
// unbounded; an exhausted cap surfaces ErrRetryBudgetExceeded carrying
// the number of attempts made.
func WithMaxAttempts(n int) TxnOption {
	return func(cfg *txnConfig) { cfg.maxAttempts = n }
}

// WithBackoff replaces the delay policy applied between conflicting
// attempts. Backoff is a contention knob, not a correctness one.
func WithBackoff(p backoff.Policy) TxnOption {
	return func(cfg *txnConfig) { cfg.policy = p }
}

// WithTxnClock snapshots and advances clk instead of the process-wide
// clock. Every cell the transaction touches must be stamped by the
// same clock.
func WithTxnClock(clk *Clock) TxnOption {
	return func(cfg *txnConfig) { cfg.clock = clk }
}

// WithLogger emits debug-level engine events (aborts, conflicts,
// commits) to l. The default is a no-op logger.
func WithLogger(l *zap.Logger) TxnOption {
	return func(cfg *txnConfig) { cfg.logger = l }
}

// Atomically runs body under a managed transaction and commits it.
//
// A commit-time conflict discards the attempt and re-executes body
// against a fresh clock snapshot; conflicts are never visible to the
// caller. Because the body can run more than once, it must not perform
// irreversible external actions.
//
// A non-nil error returned by body aborts the transaction: nothing is
// applied, nothing is notified, the error propagates unchanged and is
// never retried. Wrap the reason with Abort to mark it as an explicit
// cancellation.
//
// A nested Atomically call inside an active transaction joins it;
// there is exactly one commit boundary per outermost call, and nested
// options are ignored in favor of the outermost ones.
func Atomically(ctx context.Context, body func(context.Context) error, opts ...TxnOption) error {
	if txnFrom(ctx) != nil {
		return body(ctx)
	}

	cfg := txnConfig{
		isolation: Snapshot,
		clock:     globalClock,
		logger:    zap.NewNop(),
		policy:    backoff.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		txn := newTxn(cfg, attempt)
		if err := body(context.WithValue(ctx, txnCtxKey{}, txn)); err != nil {
			cfg.logger.Debug("transaction aborted by body",
				zap.String("txn", txn.id),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}

		err := txn.commit()
		if err == nil {
			return nil
		}
		if !errors.Is(err, errConflict) {
			return err
		}
		if cfg.maxAttempts > 0 && attempt >= cfg.maxAttempts {
			return fmt.Errorf("%w: %d attempts", ErrRetryBudgetExceeded, attempt)
		}
		cfg.logger.Debug("commit conflict, retrying",
			zap.String("txn", txn.id),
			zap.Int("attempt", attempt),
		)
		if err := cfg.policy.Wait(ctx, attempt); err != nil {
			return err
		}
	}
}

// AtomicallyResult is Atomically for bodies that produce a value. The
// value of the committed attempt is returned; an aborted or exhausted
// transaction returns the zero value with the error.
func AtomicallyResult[R any](
	ctx context.Context,
	body func(context.Context) (R, error),
	opts ...TxnOption,
) (R, error) {
	var res R
	err := Atomically(ctx, func(ctx context.Context) error {
		var bodyErr error
		res, bodyErr = body(ctx)
		return bodyErr
	}, opts...)
	if err != nil {
		var zero R
		return zero, err
	}
	return res, nil
}
