package common

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeeBpsSplitsExactly(t *testing.T) {
	amounts := []uint64{1, 9, 10, 333, 10_000, 123_456_789, math.MaxUint64 / 10_000}
	rates := []uint64{0, 1, 30, 999, 1000}
	for _, amount := range amounts {
		for _, bps := range rates {
			fee, net, err := FeeBps(amount, bps)
			if err != nil {
				t.Fatalf("amount %d bps %d: %v", amount, bps, err)
			}
			if fee != amount*bps/BasisPoints {
				t.Fatalf("amount %d bps %d: fee %d", amount, bps, fee)
			}
			if fee+net != amount {
				t.Fatalf("amount %d bps %d: fee %d + net %d", amount, bps, fee, net)
			}
		}
	}
}

func TestFeeBpsOverflow(t *testing.T) {
	_, _, err := FeeBps(math.MaxUint64, 1000)
	if !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("expected ErrMathOverflow, got %v", err)
	}
}

func TestMulDiv(t *testing.T) {
	got, err := MulDiv(300, 10, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(30), got)

	got, err = MulDiv(7, 3, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(10), got)

	_, err = MulDiv(1, 1, 0)
	require.ErrorIs(t, err, ErrMathOverflow)

	_, err = MulDiv(math.MaxUint64, 2, 2)
	require.ErrorIs(t, err, ErrMathOverflow)
}

func TestCheckedArithmetic(t *testing.T) {
	sum, err := CheckedAdd(math.MaxUint64-1, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64), sum)

	_, err = CheckedAdd(math.MaxUint64, 1)
	require.ErrorIs(t, err, ErrMathOverflow)

	_, err = CheckedSub(1, 2)
	require.ErrorIs(t, err, ErrMathOverflow)

	product, err := CheckedMul(1<<32, 1<<31)
	require.NoError(t, err)
	require.Equal(t, uint64(1)<<63, product)

	_, err = CheckedMul(1<<32, 1<<32)
	require.ErrorIs(t, err, ErrMathOverflow)
}

func TestGuard(t *testing.T) {
	paused := NewPausedSet("vault", "")
	require.NoError(t, Guard(nil, "vault"))
	require.NoError(t, Guard(paused, "router"))
	require.ErrorIs(t, Guard(paused, "vault"), ErrModulePaused)
}

func TestRatioBps(t *testing.T) {
	got, err := RatioBps(229, 1000)
	require.NoError(t, err)
	require.Equal(t, uint64(2290), got)

	got, err = RatioBps(math.MaxUint64/2, math.MaxUint64)
	require.NoError(t, err)
	require.Equal(t, uint64(4999), got)

	_, err = RatioBps(1, 0)
	require.ErrorIs(t, err, ErrMathOverflow)
}
