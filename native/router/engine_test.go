package router

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"arbvault/core/state"
	"arbvault/crypto"
	"arbvault/native/common"
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
	routerProgram = addr(0xA0)
	authority     = addr(0x02)
	user          = addr(0x01)
	pool          = addr(0xC1)
)

func testVenues(t *testing.T) *VenueTable {
	t.Helper()
	table, err := NewVenueTable(map[VenueTag]crypto.Address{
		VenueOrcaWhirlpool: addr(0xB1),
		VenueRaydiumRouter: addr(0xB2),
		VenueRaydiumStable: addr(0xB3),
		VenueMeteoraStable: addr(0xB4),
		VenueMeteoraDLMM:   addr(0xB5),
	})
	require.NoError(t, err)
	return table
}

type fixture struct {
	trie    *trie.Trie
	manager *state.Manager
	engine  *Engine
}

func newFixture(t *testing.T, feeRate uint16) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	mgr := state.NewManager(tr)

	require.NoError(t, mgr.RegisterToken("USDC", "USD Coin", 6))
	require.NoError(t, mgr.RegisterToken("SOL", "Solana", 9))
	reserve := PoolAuthority(routerProgram, pool).Address
	require.NoError(t, mgr.Credit(reserve, "SOL", 1_000_000))
	require.NoError(t, mgr.Credit(reserve, "USDC", 1_000_000))
	require.NoError(t, mgr.Credit(user, "USDC", 10_000))

	engine, err := NewEngine(routerProgram, testVenues(t), DefaultParams())
	require.NoError(t, err)
	_, err = engine.Initialize(state.NewTx(mgr, authority), authority, feeRate, crypto.Address{})
	require.NoError(t, err)

	_, err = tr.Commit(1)
	require.NoError(t, err)
	return &fixture{trie: tr, manager: mgr, engine: engine}
}

func (f *fixture) balance(t *testing.T, who crypto.Address, token string) uint64 {
	t.Helper()
	bal, err := f.manager.Balance(who, token)
	require.NoError(t, err)
	return bal
}

func swap(venue VenueTag, program crypto.Address, amountIn, minOut uint64) SwapInstruction {
	return SwapInstruction{
		Venue:            venue,
		VenueProgram:     program,
		Pool:             pool,
		TokenIn:          "USDC",
		TokenOut:         "SOL",
		AmountIn:         amountIn,
		MinimumAmountOut: minOut,
	}
}

func TestInitializeValidation(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	mgr := state.NewManager(tr)
	engine, err := NewEngine(routerProgram, testVenues(t), DefaultParams())
	require.NoError(t, err)

	tx := state.NewTx(mgr, authority)
	_, err = engine.Initialize(tx, authority, 1001, crypto.Address{})
	require.ErrorIs(t, err, ErrInvalidFeeRate)

	_, err = engine.Initialize(tx, addr(0x09), 30, crypto.Address{})
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = engine.State(tx)
	require.ErrorIs(t, err, ErrNotInitialized)

	st, err := engine.Initialize(tx, authority, 1000, crypto.Address{})
	require.NoError(t, err)
	require.Zero(t, st.TotalVolume)

	_, err = engine.Initialize(tx, authority, 30, crypto.Address{})
	require.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestExecuteBatchFeeAndVolume(t *testing.T) {
	f := newFixture(t, 30)
	tx := state.NewTx(f.manager, user)

	result, err := f.engine.ExecuteBatch(tx, user, []SwapInstruction{swap(VenueRaydiumRouter, addr(0xB2), 10_000, 0)})
	require.NoError(t, err)
	require.Len(t, result.Swaps, 1)
	require.Equal(t, uint64(30), result.Swaps[0].Fee)
	require.Equal(t, uint64(9970), result.Swaps[0].NetAmount)
	require.Equal(t, uint64(9770), result.Swaps[0].AmountOut)
	require.Equal(t, uint64(9970), result.Volume)
	require.Equal(t, uint64(9970), result.TotalVolume)

	// Without a collector the fee never leaves the source.
	require.Equal(t, uint64(30), f.balance(t, user, "USDC"))
	require.Equal(t, uint64(9770), f.balance(t, user, "SOL"))

	st, err := f.engine.State(tx)
	require.NoError(t, err)
	require.Equal(t, uint64(9970), st.TotalVolume)
}

func TestExecuteBatchEmpty(t *testing.T) {
	f := newFixture(t, 30)
	result, err := f.engine.ExecuteBatch(state.NewTx(f.manager, user), user, nil)
	require.NoError(t, err)
	require.Empty(t, result.Swaps)
	require.Zero(t, result.Volume)
}

func TestSlippageBoundary(t *testing.T) {
	f := newFixture(t, 30)

	_, err := f.engine.ExecuteBatch(state.NewTx(f.manager, user), user, []SwapInstruction{swap(VenueOrcaWhirlpool, addr(0xB1), 1000, 978)})
	require.ErrorIs(t, err, ErrSlippageExceeded)

	_, err = f.engine.ExecuteBatch(state.NewTx(f.manager, user), user, []SwapInstruction{swap(VenueOrcaWhirlpool, addr(0xB1), 1000, 977)})
	require.NoError(t, err)
}

func TestExecuteBatchRejectsSubstitutedVenue(t *testing.T) {
	f := newFixture(t, 30)
	tx := state.NewTx(f.manager, user)

	_, err := f.engine.ExecuteBatch(tx, user, []SwapInstruction{swap(VenueMeteoraDLMM, addr(0xB4), 100, 0)})
	if !errors.Is(err, ErrInvalidDexProgram) {
		t.Fatalf("expected ErrInvalidDexProgram, got %v", err)
	}
	_, err = f.engine.ExecuteBatch(tx, user, []SwapInstruction{swap("uniswap", addr(0xB4), 100, 0)})
	require.ErrorIs(t, err, ErrInvalidDexProgram)
	require.Equal(t, uint64(10_000), f.balance(t, user, "USDC"))
}

func TestExecuteBatchRejectsBadInputs(t *testing.T) {
	f := newFixture(t, 30)
	tx := state.NewTx(f.manager, user)

	_, err := f.engine.ExecuteBatch(tx, user, []SwapInstruction{swap(VenueRaydiumStable, addr(0xB3), 0, 0)})
	require.ErrorIs(t, err, ErrInvalidSwapAmount)

	same := swap(VenueRaydiumStable, addr(0xB3), 100, 0)
	same.TokenOut = "usdc"
	_, err = f.engine.ExecuteBatch(tx, user, []SwapInstruction{same})
	require.ErrorIs(t, err, ErrInvalidTokenPair)

	dry := swap(VenueRaydiumStable, addr(0xB3), 100, 0)
	dry.Pool = addr(0xC2)
	_, err = f.engine.ExecuteBatch(tx, user, []SwapInstruction{dry})
	require.ErrorIs(t, err, ErrInsufficientLiquidity)

	_, err = f.engine.ExecuteBatch(tx, addr(0x05), []SwapInstruction{swap(VenueRaydiumStable, addr(0xB3), 100, 0)})
	require.ErrorIs(t, err, state.ErrUnauthorizedTransfer)
}

func TestExecuteBatchFeeOverflow(t *testing.T) {
	f := newFixture(t, 1000)
	_, err := f.engine.ExecuteBatch(state.NewTx(f.manager, user), user, []SwapInstruction{swap(VenueRaydiumRouter, addr(0xB2), math.MaxUint64, 0)})
	require.ErrorIs(t, err, common.ErrMathOverflow)
}

func TestExecuteBatchThirdSwapFailureLeavesCommittedStateUntouched(t *testing.T) {
	f := newFixture(t, 30)
	root := f.trie.Root()

	scratch := state.NewManager(f.trie.Copy())
	_, err := f.engine.ExecuteBatch(state.NewTx(scratch, user), user, []SwapInstruction{
		swap(VenueOrcaWhirlpool, addr(0xB1), 1000, 0),
		swap(VenueRaydiumRouter, addr(0xB2), 1000, 0),
		swap(VenueMeteoraStable, addr(0xB4), 1000, 1000),
	})
	require.ErrorIs(t, err, ErrSlippageExceeded)

	// The scratch copy saw every settlement up to the failure; the committed
	// state saw none of them.
	left, err := scratch.Balance(user, "USDC")
	require.NoError(t, err)
	require.Equal(t, uint64(10_000-3*997), left)

	require.Equal(t, root, f.trie.Hash())
	require.Equal(t, uint64(10_000), f.balance(t, user, "USDC"))
	require.Zero(t, f.balance(t, user, "SOL"))
	st, err := f.engine.State(state.NewTx(f.manager))
	require.NoError(t, err)
	require.Zero(t, st.TotalVolume)
}

func TestSetFeeRateAndCollector(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	mgr := state.NewManager(tr)
	require.NoError(t, mgr.RegisterToken("USDC", "USD Coin", 6))
	require.NoError(t, mgr.RegisterToken("SOL", "Solana", 9))
	require.NoError(t, mgr.Credit(PoolAuthority(routerProgram, pool).Address, "SOL", 10_000))
	require.NoError(t, mgr.Credit(user, "USDC", 1000))

	engine, err := NewEngine(routerProgram, testVenues(t), DefaultParams())
	require.NoError(t, err)
	collector := addr(0xFE)
	_, err = engine.Initialize(state.NewTx(mgr, authority), authority, 30, collector)
	require.NoError(t, err)

	_, err = engine.SetFeeRate(state.NewTx(mgr, user), user, 100)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = engine.SetFeeRate(state.NewTx(mgr, authority), authority, 1001)
	require.ErrorIs(t, err, ErrInvalidFeeRate)
	st, err := engine.SetFeeRate(state.NewTx(mgr, authority), authority, 100)
	require.NoError(t, err)
	require.Equal(t, uint16(100), st.FeeRateBps)

	_, err = engine.ExecuteBatch(state.NewTx(mgr, user), user, []SwapInstruction{swap(VenueRaydiumRouter, addr(0xB2), 1000, 0)})
	require.NoError(t, err)
	fee, err := mgr.Balance(collector, "USDC")
	require.NoError(t, err)
	require.Equal(t, uint64(10), fee)
}

func TestPausedRouterRejectsMutations(t *testing.T) {
	f := newFixture(t, 30)
	f.engine.SetPauses(common.NewPausedSet(ModuleName))
	_, err := f.engine.ExecuteBatch(state.NewTx(f.manager, user), user, nil)
	require.ErrorIs(t, err, common.ErrModulePaused)
}

func TestPausedRouterReportsExistingState(t *testing.T) {
	f := newFixture(t, 30)
	f.engine.SetPauses(common.NewPausedSet(ModuleName))
	_, err := f.engine.Initialize(state.NewTx(f.manager, authority), authority, 30, crypto.Address{})
	require.ErrorIs(t, err, ErrAlreadyInitialized)

	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	fresh, err := NewEngine(routerProgram, testVenues(t), DefaultParams())
	require.NoError(t, err)
	fresh.SetPauses(common.NewPausedSet(ModuleName))
	_, err = fresh.Initialize(state.NewTx(state.NewManager(tr), authority), authority, 30, crypto.Address{})
	require.ErrorIs(t, err, common.ErrModulePaused)
}

func TestEstimateRoute(t *testing.T) {
	f := newFixture(t, 30)
	tx := state.NewTx(f.manager)

	route, err := f.engine.EstimateRoute(tx, "USDC", "SOL", 10_000)
	require.NoError(t, err)
	require.Equal(t, DefaultVenue, route.RecommendedVenue)
	require.Equal(t, uint64(9770), route.EstimatedOutput)
	require.Equal(t, uint64(230), route.PriceImpactBps)
	require.Len(t, route.Steps, 1)
	require.Equal(t, addr(0xB2), route.Steps[0].Program)

	f.engine.SetStrategy(VenueMeteoraDLMM, ConstantRate{RateBps: 9900})
	route, err = f.engine.EstimateRoute(nil, "USDC", "SOL", 10_000)
	require.NoError(t, err)
	require.Equal(t, VenueMeteoraDLMM, route.RecommendedVenue)
	require.Equal(t, uint64(9870), route.EstimatedOutput)

	_, err = f.engine.EstimateRoute(tx, "SOL", "sol", 10)
	require.ErrorIs(t, err, ErrInvalidTokenPair)
	_, err = f.engine.EstimateRoute(tx, "USDC", "SOL", 0)
	require.ErrorIs(t, err, ErrInvalidSwapAmount)
}
