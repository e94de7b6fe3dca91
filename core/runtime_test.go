package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"arbvault/core/events"
	"arbvault/core/genesis"
	"arbvault/core/state"
	"arbvault/crypto"
	"arbvault/storage"
)

func addr(b byte) crypto.Address {
	var a crypto.Address
	for i := range a {
		a[i] = b
	}
	return a
}

var (
	alice = addr(0x11)
	bob   = addr(0x12)
)

func testGenesis(extra ...genesis.AllocSpec) *genesis.Spec {
	spec := &genesis.Spec{
		Tokens: []genesis.TokenSpec{
			{Symbol: "USDC", Name: "USD Coin", Decimals: 6},
			{Symbol: "SOL", Name: "Solana", Decimals: 9},
		},
		Alloc: []genesis.AllocSpec{
			{Address: alice.Hex(), Token: "USDC", Amount: 10_000},
			{Address: bob.Hex(), Token: "USDC", Amount: 10_000},
		},
	}
	spec.Alloc = append(spec.Alloc, extra...)
	return spec
}

func balanceOf(t *testing.T, rt *Runtime, who crypto.Address, token string) uint64 {
	t.Helper()
	var out uint64
	require.NoError(t, rt.View(context.Background(), func(tx *state.Tx) error {
		var err error
		out, err = tx.Balance(who, token)
		return err
	}))
	return out
}

func TestRuntimeExecuteCommits(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	recorder := &events.Recorder{}
	rt, err := NewRuntime(db, recorder)
	require.NoError(t, err)
	require.NoError(t, rt.Genesis(testGenesis()))
	before := rt.Head()
	require.Equal(t, uint64(1), before.Height)

	committed, err := rt.Execute(context.Background(), []crypto.Address{alice}, func(tx *state.Tx) error {
		return tx.Transfer(alice, bob, "usdc", 250)
	})
	require.NoError(t, err)

	after := rt.Head()
	require.Equal(t, after, committed)
	require.Equal(t, uint64(2), after.Height)
	require.NotEqual(t, before.Root, after.Root)
	require.Equal(t, uint64(9_750), balanceOf(t, rt, alice, "USDC"))
	require.Equal(t, uint64(10_250), balanceOf(t, rt, bob, "USDC"))
	require.Len(t, recorder.OfType(events.TypeTransfer), 1)
}

func TestRuntimeExecuteDiscardsFailedCall(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	recorder := &events.Recorder{}
	rt, err := NewRuntime(db, recorder)
	require.NoError(t, err)
	require.NoError(t, rt.Genesis(testGenesis()))
	before := rt.Head()

	boom := errors.New("boom")
	committed, err := rt.Execute(context.Background(), []crypto.Address{alice}, func(tx *state.Tx) error {
		if err := tx.Transfer(alice, bob, "USDC", 1_000); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, Head{}, committed)
	require.Equal(t, before, rt.Head())
	require.Equal(t, uint64(10_000), balanceOf(t, rt, alice, "USDC"))
	require.Empty(t, recorder.Events())
}

func TestRuntimeUnsignedTransferFails(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	rt, err := NewRuntime(db, nil)
	require.NoError(t, err)
	require.NoError(t, rt.Genesis(testGenesis()))

	_, err = rt.Execute(context.Background(), []crypto.Address{bob}, func(tx *state.Tx) error {
		return tx.Transfer(alice, bob, "USDC", 1)
	})
	require.ErrorIs(t, err, state.ErrUnauthorizedTransfer)
	require.Equal(t, "unauthorized_transfer", ErrorCode(err))
}

func TestRuntimeViewDiscardsWrites(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	rt, err := NewRuntime(db, nil)
	require.NoError(t, err)
	require.NoError(t, rt.Genesis(testGenesis()))
	before := rt.Head()

	require.NoError(t, rt.View(context.Background(), func(tx *state.Tx) error {
		return tx.Manager().Credit(alice, "USDC", 5)
	}))
	require.Equal(t, before, rt.Head())
	require.Equal(t, uint64(10_000), balanceOf(t, rt, alice, "USDC"))
}

func TestRuntimeRejectsCanceledContext(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	rt, err := NewRuntime(db, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	_, err = rt.Execute(ctx, nil, func(*state.Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}

func TestRuntimeResumesFromPersistedHead(t *testing.T) {
	dir := t.TempDir()

	db, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	rt, err := NewRuntime(db, nil)
	require.NoError(t, err)
	require.NoError(t, rt.Genesis(testGenesis()))
	head, err := rt.Execute(context.Background(), []crypto.Address{alice}, func(tx *state.Tx) error {
		return tx.Transfer(alice, bob, "USDC", 400)
	})
	require.NoError(t, err)
	require.Equal(t, head, rt.Head())
	db.Close()

	reopened, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer reopened.Close()
	rt, err = NewRuntime(reopened, nil)
	require.NoError(t, err)
	require.Equal(t, head, rt.Head())
	require.Equal(t, uint64(9_600), balanceOf(t, rt, alice, "USDC"))
	require.ErrorIs(t, rt.Genesis(testGenesis()), ErrGenesisApplied)
}

func TestRuntimeExecuteReportsOwnHeadUnderConcurrency(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	rt, err := NewRuntime(db, nil)
	require.NoError(t, err)
	require.NoError(t, rt.Genesis(testGenesis()))

	const calls = 16
	heads := make([]Head, calls)
	errs := make([]error, calls)
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			heads[i], errs[i] = rt.Execute(context.Background(), []crypto.Address{alice}, func(tx *state.Tx) error {
				return tx.Transfer(alice, bob, "USDC", 1)
			})
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool, calls)
	for i := 0; i < calls; i++ {
		require.NoError(t, errs[i])
		if seen[heads[i].Height] {
			t.Fatalf("height %d reported twice", heads[i].Height)
		}
		seen[heads[i].Height] = true
	}
	for height := uint64(2); height <= calls+1; height++ {
		require.True(t, seen[height], "missing height %d", height)
	}
	require.Equal(t, uint64(calls+1), rt.Head().Height)
}
