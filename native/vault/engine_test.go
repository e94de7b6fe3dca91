package vault

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"arbvault/core/events"
	"arbvault/core/state"
	"arbvault/crypto"
	"arbvault/native/common"
	"arbvault/native/router"
	"arbvault/storage"
	"arbvault/storage/trie"
)

func addr(b byte) crypto.Address {
	var a crypto.Address
	for i := range a {
		a[i] = b
	}
	return a
}

var (
	routerProgram  = addr(0xA0)
	vaultProgram   = addr(0xD0)
	routerAdmin    = addr(0x02)
	vaultAdmin     = addr(0x03)
	executor       = addr(0x0E)
	alice          = addr(0x11)
	bob            = addr(0x12)
	carol          = addr(0x13)
	pool           = addr(0xC1)
	orcaProgram    = addr(0xB1)
	raydiumProgram = addr(0xB2)
)

type fixture struct {
	trie   *trie.Trie
	height uint64
	router *router.Engine
	vault  *Engine
}

func newRouter(t *testing.T, program crypto.Address) *router.Engine {
	t.Helper()
	table, err := router.NewVenueTable(map[router.VenueTag]crypto.Address{
		router.VenueOrcaWhirlpool: orcaProgram,
		router.VenueRaydiumRouter: raydiumProgram,
		router.VenueRaydiumStable: addr(0xB3),
		router.VenueMeteoraStable: addr(0xB4),
		router.VenueMeteoraDLMM:   addr(0xB5),
	})
	require.NoError(t, err)
	engine, err := router.NewEngine(program, table, router.DefaultParams())
	require.NoError(t, err)
	// A venue pair that turns 1000 USDC into 1300 USDC.
	engine.SetStrategy(router.VenueOrcaWhirlpool, router.ConstantRate{RateBps: 10_000})
	engine.SetStrategy(router.VenueRaydiumRouter, router.ConstantRate{RateBps: 13_000})
	return engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)

	mgr := state.NewManager(tr)
	require.NoError(t, mgr.RegisterToken("USDC", "USD Coin", 6))
	require.NoError(t, mgr.RegisterToken("SOL", "Solana", 9))
	reserve := router.PoolAuthority(routerProgram, pool).Address
	require.NoError(t, mgr.Credit(reserve, "USDC", 100_000))
	require.NoError(t, mgr.Credit(reserve, "SOL", 100_000))
	for _, who := range []crypto.Address{alice, bob, carol} {
		require.NoError(t, mgr.Credit(who, "USDC", 10_000))
	}

	vaultEngine, err := NewEngine(vaultProgram)
	require.NoError(t, err)
	f := &fixture{trie: tr, router: newRouter(t, routerProgram), vault: vaultEngine}
	f.vault.RegisterRouter(f.router)

	require.NoError(t, f.call(t, []crypto.Address{routerAdmin}, func(tx *state.Tx) error {
		_, err := f.router.Initialize(tx, routerAdmin, 0, crypto.Address{})
		return err
	}))
	require.NoError(t, f.call(t, []crypto.Address{vaultAdmin}, func(tx *state.Tx) error {
		_, err := f.vault.InitializeVault(tx, vaultAdmin, routerProgram, "usdc")
		return err
	}))
	return f
}

// call runs fn against a scratch copy of the committed trie and keeps the
// copy only when fn succeeds.
func (f *fixture) call(t *testing.T, signers []crypto.Address, fn func(tx *state.Tx) error) error {
	t.Helper()
	scratch := f.trie.Copy()
	if err := fn(state.NewTx(state.NewManager(scratch), signers...)); err != nil {
		return err
	}
	f.height++
	_, err := scratch.Commit(f.height)
	require.NoError(t, err)
	f.trie = scratch
	return nil
}

func (f *fixture) view() *state.Tx {
	return state.NewTx(state.NewManager(f.trie.Copy()))
}

func (f *fixture) balance(t *testing.T, who crypto.Address, token string) uint64 {
	t.Helper()
	bal, err := f.view().Balance(who, token)
	require.NoError(t, err)
	return bal
}

func (f *fixture) deposit(t *testing.T, owner crypto.Address, amount uint64) (*DepositResult, error) {
	t.Helper()
	var result *DepositResult
	err := f.call(t, []crypto.Address{owner}, func(tx *state.Tx) error {
		var err error
		result, err = f.vault.Deposit(tx, owner, amount)
		return err
	})
	return result, err
}

func (f *fixture) withdraw(t *testing.T, owner crypto.Address, shares uint64) (*WithdrawResult, error) {
	t.Helper()
	var result *WithdrawResult
	err := f.call(t, []crypto.Address{owner}, func(tx *state.Tx) error {
		var err error
		result, err = f.vault.Withdraw(tx, owner, shares)
		return err
	})
	return result, err
}

func (f *fixture) arbitrage(t *testing.T, routerID crypto.Address, minProfit uint64) (*ArbitrageResult, error) {
	t.Helper()
	var result *ArbitrageResult
	err := f.call(t, []crypto.Address{executor}, func(tx *state.Tx) error {
		var err error
		result, err = f.vault.ExecuteArbitrage(tx, executor, routerID, profitableBatch(1000), minProfit)
		return err
	})
	return result, err
}

func profitableBatch(amount uint64) []router.SwapInstruction {
	return []router.SwapInstruction{
		{Venue: router.VenueOrcaWhirlpool, VenueProgram: orcaProgram, Pool: pool, TokenIn: "USDC", TokenOut: "SOL", AmountIn: amount},
		{Venue: router.VenueRaydiumRouter, VenueProgram: raydiumProgram, Pool: pool, TokenIn: "SOL", TokenOut: "USDC", AmountIn: amount},
	}
}

func (f *fixture) assertPositionSum(t *testing.T, owners ...crypto.Address) {
	t.Helper()
	tx := f.view()
	st, err := f.vault.State(tx)
	require.NoError(t, err)
	var sum uint64
	for _, owner := range owners {
		position, err := f.vault.Position(tx, owner)
		require.NoError(t, err)
		sum += position.Shares
	}
	if sum != st.TotalShares {
		t.Fatalf("positions sum to %d, vault records %d", sum, st.TotalShares)
	}
}

func TestInitializeVault(t *testing.T) {
	f := newFixture(t)
	tx := f.view()
	st, err := f.vault.State(tx)
	require.NoError(t, err)
	require.Equal(t, "USDC", st.Asset)
	require.Equal(t, routerProgram, st.AuthorizedRouter)
	require.Zero(t, st.TotalShares)

	err = f.call(t, []crypto.Address{vaultAdmin}, func(tx *state.Tx) error {
		_, err := f.vault.InitializeVault(tx, vaultAdmin, routerProgram, "USDC")
		return err
	})
	require.ErrorIs(t, err, ErrAlreadyInitialized)

	f.vault.SetPauses(common.NewPausedSet(ModuleName))
	err = f.call(t, []crypto.Address{vaultAdmin}, func(tx *state.Tx) error {
		_, err := f.vault.InitializeVault(tx, vaultAdmin, routerProgram, "USDC")
		return err
	})
	require.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestFirstDepositMintsOneToOne(t *testing.T) {
	f := newFixture(t)

	res, err := f.deposit(t, alice, 1000)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), res.Shares)
	require.Equal(t, uint64(1000), res.TotalShares)
	require.Equal(t, uint64(1000), f.balance(t, f.vault.Account(), "USDC"))
	require.Equal(t, uint64(9000), f.balance(t, alice, "USDC"))
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.deposit(t, alice, 0)
	require.ErrorIs(t, err, ErrInvalidAmount)

	err = f.call(t, []crypto.Address{bob}, func(tx *state.Tx) error {
		_, err := f.vault.Deposit(tx, alice, 10)
		return err
	})
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.deposit(t, alice, 20_000)
	require.ErrorIs(t, err, state.ErrInsufficientBalance)
}

func TestDepositAgainstEmptyVaultWithOutstandingShares(t *testing.T) {
	f := newFixture(t)
	_, err := f.deposit(t, alice, 1000)
	require.NoError(t, err)

	// Drain the vault behind the share ledger's back.
	require.NoError(t, f.call(t, nil, func(tx *state.Tx) error {
		return tx.Manager().SetBalance(f.vault.Account(), "USDC", 0)
	}))

	_, err = f.deposit(t, bob, 500)
	require.ErrorIs(t, err, common.ErrMathOverflow)
}

func TestSharesProportionalAfterProfit(t *testing.T) {
	f := newFixture(t)
	_, err := f.deposit(t, alice, 1000)
	require.NoError(t, err)
	_, err = f.arbitrage(t, routerProgram, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(1270), f.balance(t, f.vault.Account(), "USDC"))

	// 127 * 1000 / 1270
	res, err := f.deposit(t, bob, 127)
	require.NoError(t, err)
	require.Equal(t, uint64(100), res.Shares)
	require.Equal(t, uint64(1100), res.TotalShares)

	// A deposit worth less than one share is refused instead of donated.
	_, err = f.deposit(t, carol, 1)
	require.ErrorIs(t, err, ErrInvalidAmount)
	require.Equal(t, uint64(10_000), f.balance(t, carol, "USDC"))

	f.assertPositionSum(t, alice, bob, carol)
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	f := newFixture(t)
	_, err := f.deposit(t, alice, 1000)
	require.NoError(t, err)

	res, err := f.deposit(t, bob, 500)
	require.NoError(t, err)
	require.Equal(t, uint64(500), res.Shares)

	out, err := f.withdraw(t, bob, res.Shares)
	require.NoError(t, err)
	require.Equal(t, uint64(500), out.Amount)
	require.Zero(t, out.Position)
	require.Equal(t, uint64(10_000), f.balance(t, bob, "USDC"))

	// Emptied positions stay readable.
	position, err := f.vault.Position(f.view(), bob)
	require.NoError(t, err)
	require.Zero(t, position.Shares)
}

func TestWithdrawValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.deposit(t, alice, 1000)
	require.NoError(t, err)

	_, err = f.withdraw(t, alice, 1001)
	if !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
	_, err = f.withdraw(t, bob, 1)
	require.ErrorIs(t, err, ErrInsufficientShares)
}

func TestWithdrawZeroSharesIsNoop(t *testing.T) {
	f := newFixture(t)
	_, err := f.deposit(t, alice, 1000)
	require.NoError(t, err)
	before := f.balance(t, alice, "USDC")

	res, err := f.withdraw(t, alice, 0)
	require.NoError(t, err)
	require.Zero(t, res.Amount)
	require.Equal(t, uint64(1000), res.Position)
	require.Equal(t, uint64(1000), res.TotalShares)
	require.Equal(t, before, f.balance(t, alice, "USDC"))

	// A caller without a position gets the same answer.
	res, err = f.withdraw(t, carol, 0)
	require.NoError(t, err)
	require.Zero(t, res.Position)
}

func TestPositionSumInvariant(t *testing.T) {
	f := newFixture(t)
	owners := []crypto.Address{alice, bob, carol}

	steps := []struct {
		owner    crypto.Address
		deposit  uint64
		withdraw uint64
	}{
		{owner: alice, deposit: 1000},
		{owner: bob, deposit: 333},
		{owner: carol, deposit: 2500},
		{owner: bob, withdraw: 111},
		{owner: alice, deposit: 7},
		{owner: carol, withdraw: 2500},
		{owner: alice, withdraw: 1007},
	}
	for i, step := range steps {
		var err error
		if step.deposit > 0 {
			_, err = f.deposit(t, step.owner, step.deposit)
		} else {
			_, err = f.withdraw(t, step.owner, step.withdraw)
		}
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		f.assertPositionSum(t, owners...)
	}

	balance, shares, err := f.vault.Valuation(f.view())
	require.NoError(t, err)
	require.Equal(t, uint64(222), shares)
	require.Equal(t, uint64(222), balance)
}

func TestArbitrageProfitSplit(t *testing.T) {
	f := newFixture(t)
	_, err := f.deposit(t, alice, 1000)
	require.NoError(t, err)

	var emitted []events.Event
	err = f.call(t, []crypto.Address{executor}, func(tx *state.Tx) error {
		res, err := f.vault.ExecuteArbitrage(tx, executor, routerProgram, profitableBatch(1000), 300)
		if err != nil {
			return err
		}
		require.Equal(t, uint64(1000), res.InitialBalance)
		require.Equal(t, uint64(1300), res.FinalBalance)
		require.Equal(t, uint64(300), res.Profit)
		require.Equal(t, uint64(30), res.ExecutorFee)
		require.Equal(t, uint64(270), res.VaultProfit)
		require.Equal(t, uint64(2000), res.Batch.Volume)
		emitted = tx.Events()
		return nil
	})
	require.NoError(t, err)

	require.Equal(t, uint64(30), f.balance(t, executor, "USDC"))
	require.Equal(t, uint64(1270), f.balance(t, f.vault.Account(), "USDC"))
	require.Zero(t, f.balance(t, f.vault.Account(), "SOL"))

	var audit *events.ArbitrageExecuted
	for _, evt := range emitted {
		if record, ok := evt.(events.ArbitrageExecuted); ok {
			audit = &record
		}
	}
	require.NotNil(t, audit)
	require.Equal(t, executor, audit.Executor)
	require.Equal(t, uint64(300), audit.Profit)
	require.Equal(t, uint64(30), audit.ExecutorFee)
	require.Equal(t, uint64(270), audit.VaultProfit)
}

func TestArbitrageBelowMinimumProfitMovesNothing(t *testing.T) {
	f := newFixture(t)
	_, err := f.deposit(t, alice, 1000)
	require.NoError(t, err)
	root := f.trie.Root()

	_, err = f.arbitrage(t, routerProgram, 301)
	require.ErrorIs(t, err, ErrInsufficientProfit)

	require.Equal(t, root, f.trie.Root())
	require.Equal(t, uint64(1000), f.balance(t, f.vault.Account(), "USDC"))
	require.Zero(t, f.balance(t, executor, "USDC"))
	st, err := f.router.State(f.view())
	require.NoError(t, err)
	require.Zero(t, st.TotalVolume)
}

func TestArbitrageLosingBatchFails(t *testing.T) {
	f := newFixture(t)
	f.router.SetStrategy(router.VenueRaydiumRouter, router.ConstantRate{RateBps: 9000})
	_, err := f.deposit(t, alice, 1000)
	require.NoError(t, err)

	_, err = f.arbitrage(t, routerProgram, 0)
	require.ErrorIs(t, err, ErrInsufficientProfit)
	require.Equal(t, uint64(1000), f.balance(t, f.vault.Account(), "USDC"))
}

func TestArbitrageRejectsUnauthorisedRouter(t *testing.T) {
	f := newFixture(t)
	_, err := f.deposit(t, alice, 1000)
	require.NoError(t, err)

	rogue := newRouter(t, addr(0xA1))
	f.vault.RegisterRouter(rogue)
	require.NoError(t, f.call(t, []crypto.Address{routerAdmin}, func(tx *state.Tx) error {
		_, err := rogue.Initialize(tx, routerAdmin, 0, crypto.Address{})
		return err
	}))

	_, err = f.arbitrage(t, addr(0xA1), 0)
	require.ErrorIs(t, err, ErrInvalidSwapRouter)
	_, err = f.arbitrage(t, crypto.Address{}, 0)
	require.ErrorIs(t, err, ErrInvalidSwapRouter)

	require.Equal(t, uint64(1000), f.balance(t, f.vault.Account(), "USDC"))
	require.Zero(t, f.balance(t, executor, "USDC"))
}

func TestArbitrageRequiresReachableRouter(t *testing.T) {
	f := newFixture(t)
	unregistered, err := NewEngine(vaultProgram)
	require.NoError(t, err)
	f.vault = unregistered
	_, err = f.deposit(t, alice, 1000)
	require.NoError(t, err)

	_, err = f.arbitrage(t, routerProgram, 0)
	require.ErrorIs(t, err, ErrInvalidSwapRouter)
}

func TestArbitrageRequiresExecutorSignature(t *testing.T) {
	f := newFixture(t)
	err := f.call(t, []crypto.Address{alice}, func(tx *state.Tx) error {
		_, err := f.vault.ExecuteArbitrage(tx, executor, routerProgram, profitableBatch(1000), 0)
		return err
	})
	require.ErrorIs(t, err, ErrUnauthorized)
}
