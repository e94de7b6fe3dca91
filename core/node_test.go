package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"arbvault/core/events"
	"arbvault/core/genesis"
	"arbvault/crypto"
	"arbvault/native/common"
	"arbvault/native/router"
	"arbvault/native/vault"
	"arbvault/storage"
)

var (
	routerProgram  = addr(0xA0)
	vaultProgram   = addr(0xD0)
	admin          = addr(0x02)
	executor       = addr(0x0E)
	pool           = addr(0xC1)
	orcaProgram    = addr(0xB1)
	raydiumProgram = addr(0xB2)
)

func testVenues(t *testing.T) *router.VenueTable {
	t.Helper()
	table, err := router.NewVenueTable(map[router.VenueTag]crypto.Address{
		router.VenueOrcaWhirlpool: orcaProgram,
		router.VenueRaydiumRouter: raydiumProgram,
		router.VenueRaydiumStable: addr(0xB3),
		router.VenueMeteoraStable: addr(0xB4),
		router.VenueMeteoraDLMM:   addr(0xB5),
	})
	require.NoError(t, err)
	return table
}

func newTestNode(t *testing.T, paused ...string) (*Node, *events.Recorder) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	recorder := &events.Recorder{}
	rt, err := NewRuntime(db, recorder)
	require.NoError(t, err)

	reserve := router.PoolAuthority(routerProgram, pool).Address
	require.NoError(t, rt.Genesis(testGenesis(
		genesis.AllocSpec{Address: reserve.Hex(), Token: "USDC", Amount: 100_000},
		genesis.AllocSpec{Address: reserve.Hex(), Token: "SOL", Amount: 100_000},
	)))

	node, err := NewNode(rt, NodeConfig{
		RouterProgram: routerProgram,
		VaultProgram:  vaultProgram,
		Venues:        testVenues(t),
		Params:        router.DefaultParams(),
		Strategies: map[router.VenueTag]router.Strategy{
			router.VenueOrcaWhirlpool: router.ConstantRate{RateBps: 10_000},
			router.VenueRaydiumRouter: router.ConstantRate{RateBps: 13_000},
		},
		PausedModules: paused,
	}, nil)
	require.NoError(t, err)
	return node, recorder
}

func arbitrageBatch(amount uint64) []router.SwapInstruction {
	return []router.SwapInstruction{
		{Venue: router.VenueOrcaWhirlpool, VenueProgram: orcaProgram, Pool: pool, TokenIn: "USDC", TokenOut: "SOL", AmountIn: amount},
		{Venue: router.VenueRaydiumRouter, VenueProgram: raydiumProgram, Pool: pool, TokenIn: "SOL", TokenOut: "USDC", AmountIn: amount},
	}
}

func TestNodeRejectsSharedProgramIdentity(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	rt, err := NewRuntime(db, nil)
	require.NoError(t, err)
	_, err = NewNode(rt, NodeConfig{
		RouterProgram: routerProgram,
		VaultProgram:  routerProgram,
		Venues:        testVenues(t),
		Params:        router.DefaultParams(),
	}, nil)
	require.Error(t, err)
}

func TestNodeSwapsAndEstimate(t *testing.T) {
	ctx := context.Background()
	node, recorder := newTestNode(t)

	_, err := node.InitializeRouter(ctx, admin, 30, crypto.Address{})
	require.NoError(t, err)

	res, err := node.ExecuteSwaps(ctx, alice, []router.SwapInstruction{{
		Venue: router.VenueRaydiumStable, VenueProgram: addr(0xB3), Pool: pool,
		TokenIn: "USDC", TokenOut: "SOL", AmountIn: 10_000, MinimumAmountOut: 9_770,
	}})
	require.NoError(t, err)
	require.Equal(t, uint64(9_970), res.Volume)
	require.Equal(t, uint64(9_770), res.Swaps[0].AmountOut)

	sol, err := node.Balance(ctx, alice, "SOL")
	require.NoError(t, err)
	require.Equal(t, uint64(9_770), sol)

	st, err := node.RouterState(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(9_970), st.TotalVolume)
	require.Len(t, recorder.OfType(events.TypeRouterBatch), 1)

	info, err := node.EstimateRoute(ctx, "USDC", "SOL", 10_000)
	require.NoError(t, err)
	require.Equal(t, router.VenueRaydiumRouter, info.RecommendedVenue)
	require.Equal(t, uint64(12_961), info.EstimatedOutput)
	require.Len(t, info.Steps, 1)

	_, err = node.EstimateRoute(ctx, "USDC", "USDC", 10_000)
	require.ErrorIs(t, err, router.ErrInvalidTokenPair)
}

func TestNodeBatchFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	node, _ := newTestNode(t)
	_, err := node.InitializeRouter(ctx, admin, 30, crypto.Address{})
	require.NoError(t, err)
	head := node.Runtime().Head()

	swaps := []router.SwapInstruction{
		{Venue: router.VenueRaydiumStable, VenueProgram: addr(0xB3), Pool: pool, TokenIn: "USDC", TokenOut: "SOL", AmountIn: 1_000},
		{Venue: router.VenueMeteoraDLMM, VenueProgram: addr(0xEE), Pool: pool, TokenIn: "USDC", TokenOut: "SOL", AmountIn: 1_000},
	}
	_, err = node.ExecuteSwaps(ctx, alice, swaps)
	require.ErrorIs(t, err, router.ErrInvalidDexProgram)
	require.Equal(t, "invalid_dex_program", ErrorCode(err))
	require.Equal(t, head, node.Runtime().Head())

	usdc, err := node.Balance(ctx, alice, "USDC")
	require.NoError(t, err)
	require.Equal(t, uint64(10_000), usdc)
}

func TestNodeVaultLifecycle(t *testing.T) {
	ctx := context.Background()
	node, recorder := newTestNode(t)

	_, err := node.InitializeRouter(ctx, admin, 0, crypto.Address{})
	require.NoError(t, err)
	st, err := node.InitializeVault(ctx, admin, crypto.Address{}, "USDC")
	require.NoError(t, err)
	require.Equal(t, routerProgram, st.AuthorizedRouter)

	dep, err := node.Deposit(ctx, alice, 1_000)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), dep.Shares)

	arb, err := node.ExecuteArbitrage(ctx, executor, routerProgram, arbitrageBatch(1_000), 300)
	require.NoError(t, err)
	require.Equal(t, uint64(300), arb.Profit)
	require.Equal(t, uint64(30), arb.ExecutorFee)
	require.Equal(t, uint64(270), arb.VaultProfit)
	require.Len(t, recorder.OfType(events.TypeArbitrageExecuted), 1)

	fee, err := node.Balance(ctx, executor, "USDC")
	require.NoError(t, err)
	require.Equal(t, uint64(30), fee)

	balance, total, err := node.VaultValuation(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1_270), balance)
	require.Equal(t, uint64(1_000), total)

	wd, err := node.Withdraw(ctx, alice, 1_000)
	require.NoError(t, err)
	require.Equal(t, uint64(1_270), wd.Amount)

	pos, err := node.Position(ctx, alice)
	require.NoError(t, err)
	require.Zero(t, pos.Shares)
}

func TestNodeArbitrageBelowMinimumProfitIsDiscarded(t *testing.T) {
	ctx := context.Background()
	node, recorder := newTestNode(t)
	_, err := node.InitializeRouter(ctx, admin, 0, crypto.Address{})
	require.NoError(t, err)
	_, err = node.InitializeVault(ctx, admin, routerProgram, "USDC")
	require.NoError(t, err)
	_, err = node.Deposit(ctx, alice, 1_000)
	require.NoError(t, err)
	head := node.Runtime().Head()

	_, err = node.ExecuteArbitrage(ctx, executor, routerProgram, arbitrageBatch(1_000), 301)
	require.ErrorIs(t, err, vault.ErrInsufficientProfit)
	require.Equal(t, "insufficient_profit", ErrorCode(err))
	require.Equal(t, head, node.Runtime().Head())
	require.Empty(t, recorder.OfType(events.TypeArbitrageExecuted))

	_, err = node.ExecuteArbitrage(ctx, executor, addr(0xA1), arbitrageBatch(1_000), 0)
	require.ErrorIs(t, err, vault.ErrInvalidSwapRouter)
}

func TestNodePausedModuleRejectsMutations(t *testing.T) {
	ctx := context.Background()
	node, _ := newTestNode(t, vault.ModuleName)

	_, err := node.InitializeRouter(ctx, admin, 30, crypto.Address{})
	require.NoError(t, err)
	_, err = node.InitializeVault(ctx, admin, routerProgram, "USDC")
	require.ErrorIs(t, err, common.ErrModulePaused)
	require.Equal(t, "module_paused", ErrorCode(err))
}
