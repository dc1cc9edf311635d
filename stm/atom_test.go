package stm_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/on-the-ground/stm_ive_go/stm"
)

func TestAtom_SwapAppliesFunction(t *testing.T) {
	a := stm.NewAtom(10)

	v, err := a.Swap(func(v int) int { return v * 2 })
	require.NoError(t, err)
	assert.Equal(t, 20, v)
	assert.Equal(t, 20, a.Load())

	_, version := a.Current()
	assert.EqualValues(t, 1, version)
}

func TestAtom_ConcurrentSwapsAllLand(t *testing.T) {
	const goroutines = 50
	const swapsPer = 20
	a := stm.NewAtom(0)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < swapsPer; j++ {
				if _, err := a.Swap(func(v int) int { return v + 1 }); err != nil {
					t.Errorf("unexpected swap error: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	v, version := a.Current()
	assert.Equal(t, goroutines*swapsPer, v)
	assert.EqualValues(t, goroutines*swapsPer, version)
}

func TestAtom_ValidatorRejectionNeverMutates(t *testing.T) {
	const ceiling = 100
	a := stm.NewAtom(ceiling, stm.WithValidator(func(v int) bool { return v <= ceiling }))

	// Rejection is a business-rule failure, so contention must not turn
	// it into a success.
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Swap(func(v int) int { return v + 1 })
			if err == nil {
				t.Error("swap above the ceiling unexpectedly succeeded")
				return
			}
			assert.ErrorIs(t, err, stm.ErrValidationRejected)
		}()
	}
	wg.Wait()

	v, version := a.Current()
	assert.Equal(t, ceiling, v)
	assert.EqualValues(t, 0, version)
}

func TestNewAtom_InvalidInitialValuePanics(t *testing.T) {
	require.Panics(t, func() {
		stm.NewAtom(101, stm.WithValidator(func(v int) bool { return v <= 100 }))
	})
}

func TestAtom_CompareAndSwap(t *testing.T) {
	a := stm.NewAtom("blue")

	swapped, err := stm.CompareAndSwap(a, "green", "red")
	require.NoError(t, err)
	assert.False(t, swapped)
	assert.Equal(t, "blue", a.Load())

	swapped, err = stm.CompareAndSwap(a, "blue", "red")
	require.NoError(t, err)
	assert.True(t, swapped)
	assert.Equal(t, "red", a.Load())
}

func TestAtom_CompareAndSwapValidatorRejection(t *testing.T) {
	a := stm.NewAtom(1, stm.WithValidator(func(v int) bool { return v > 0 }))

	swapped, err := stm.CompareAndSwap(a, 1, 0)
	require.ErrorIs(t, err, stm.ErrValidationRejected)
	assert.False(t, swapped)
	assert.Equal(t, 1, a.Load())
}

func TestAtom_ResetGoesThroughValidator(t *testing.T) {
	a := stm.NewAtom(1, stm.WithValidator(func(v int) bool { return v > 0 }))

	v, err := a.Reset(7)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = a.Reset(-1)
	require.ErrorIs(t, err, stm.ErrValidationRejected)
	assert.Equal(t, 7, a.Load())
}

func TestAtom_SwapBudgetExceeded(t *testing.T) {
	a := stm.NewAtom(0, stm.WithSwapBudget[int](3))

	// The swap function sabotages its own compare-and-set by landing an
	// interleaved update first, simulating pathological contention.
	calls := 0
	_, err := a.Swap(func(v int) int {
		calls++
		swapped, casErr := stm.CompareAndSwap(a, v, v)
		require.NoError(t, casErr)
		require.True(t, swapped)
		return v + 1
	})
	require.ErrorIs(t, err, stm.ErrRetryBudgetExceeded)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, a.Load())
}
