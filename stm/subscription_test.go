package stm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/on-the-ground/stm_ive_go/stm"
)

func TestSubscribe_ExactlyOnceWithFinalValue(t *testing.T) {
	clk := stm.NewClock()
	ref := stm.NewRef(0, stm.WithClock[int](clk))

	var changes []stm.Change[int]
	ref.Subscribe(func(chg stm.Change[int]) { changes = append(changes, chg) })

	// three writes in one body, one notification with the last value
	err := stm.Atomically(context.Background(), func(ctx context.Context) error {
		for _, v := range []int{1, 2, 3} {
			if err := ref.Write(ctx, v); err != nil {
				return err
			}
		}
		return nil
	}, stm.WithTxnClock(clk))
	require.NoError(t, err)

	require.Len(t, changes, 1)
	assert.Equal(t, 3, changes[0].Value)

	_, version := ref.Current()
	assert.Equal(t, version, changes[0].Version)
	assert.False(t, changes[0].Span.Start().IsZero())
}

func TestSubscribe_CallbacksRunInSubscriptionOrder(t *testing.T) {
	clk := stm.NewClock()
	ref := stm.NewRef(0, stm.WithClock[int](clk))

	var order []string
	ref.Subscribe(func(stm.Change[int]) { order = append(order, "first") })
	ref.Subscribe(func(stm.Change[int]) { order = append(order, "second") })

	err := stm.Atomically(context.Background(), func(ctx context.Context) error {
		return ref.Write(ctx, 1)
	}, stm.WithTxnClock(clk))
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestSubscribe_OnlyMutatedRefsNotify(t *testing.T) {
	clk := stm.NewClock()
	written := stm.NewRef(0, stm.WithClock[int](clk))
	onlyRead := stm.NewRef(0, stm.WithClock[int](clk))

	readNotified := false
	onlyRead.Subscribe(func(stm.Change[int]) { readNotified = true })

	err := stm.Atomically(context.Background(), func(ctx context.Context) error {
		return written.Write(ctx, onlyRead.Read(ctx)+1)
	}, stm.WithTxnClock(clk))
	require.NoError(t, err)

	assert.False(t, readNotified)
}

func TestUnsubscribe_StopsDeliveryAndIsIdempotent(t *testing.T) {
	clk := stm.NewClock()
	ref := stm.NewRef(0, stm.WithClock[int](clk))

	calls := 0
	sub := ref.Subscribe(func(stm.Change[int]) { calls++ })

	commit := func(v int) {
		err := stm.Atomically(context.Background(), func(ctx context.Context) error {
			return ref.Write(ctx, v)
		}, stm.WithTxnClock(clk))
		require.NoError(t, err)
	}

	commit(1)
	sub.Unsubscribe()
	sub.Unsubscribe()
	commit(2)

	assert.Equal(t, 1, calls)
}

func TestSubscribe_AtomSwapNotifiesOncePerSwap(t *testing.T) {
	a := stm.NewAtom(0)

	var changes []stm.Change[int]
	a.Subscribe(func(chg stm.Change[int]) { changes = append(changes, chg) })

	_, err := a.Swap(func(v int) int { return v + 1 })
	require.NoError(t, err)
	_, err = a.Swap(func(v int) int { return v + 1 })
	require.NoError(t, err)

	require.Len(t, changes, 2)
	assert.Equal(t, 1, changes[0].Value)
	assert.Equal(t, 2, changes[1].Value)
	assert.EqualValues(t, 1, changes[0].Version)
	assert.EqualValues(t, 2, changes[1].Version)
}

func TestSubscribe_RejectedSwapDoesNotNotify(t *testing.T) {
	a := stm.NewAtom(0, stm.WithValidator(func(v int) bool { return v <= 0 }))

	notified := false
	a.Subscribe(func(stm.Change[int]) { notified = true })

	_, err := a.Swap(func(v int) int { return v + 1 })
	require.ErrorIs(t, err, stm.ErrValidationRejected)
	assert.False(t, notified)
}

func TestSubscribe_CallbackMayStartNewTransaction(t *testing.T) {
	clk := stm.NewClock()
	source := stm.NewRef(0, stm.WithClock[int](clk))
	mirror := stm.NewRef(0, stm.WithClock[int](clk))

	// notifications fire after commit locks are released, so a callback
	// is free to open its own transaction
	source.Subscribe(func(chg stm.Change[int]) {
		err := stm.Atomically(context.Background(), func(ctx context.Context) error {
			return mirror.Write(ctx, chg.Value)
		}, stm.WithTxnClock(clk))
		assert.NoError(t, err)
	})

	err := stm.Atomically(context.Background(), func(ctx context.Context) error {
		return source.Write(ctx, 9)
	}, stm.WithTxnClock(clk))
	require.NoError(t, err)

	assert.Equal(t, 9, mirror.Read(context.Background()))
}
