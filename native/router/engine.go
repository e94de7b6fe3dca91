package router

import (
	"errors"
	"fmt"

	"arbvault/core/events"
	"arbvault/crypto"
	"arbvault/native/common"
)

// Engine implements the router module. It holds configuration only; every
// operation reads and writes through the ledger of the enclosing call.
type Engine struct {
	program    crypto.Address
	venues     *VenueTable
	params     Params
	strategies Strategies
	pauses     common.PauseView
}

// NewEngine constructs a router owned by program dispatching to venues.
func NewEngine(program crypto.Address, venues *VenueTable, params Params) (*Engine, error) {
	if program.IsZero() {
		return nil, fmt.Errorf("router: program identity required")
	}
	if venues == nil {
		return nil, fmt.Errorf("%w: table required", ErrInvalidVenueTable)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		program:    program,
		venues:     venues,
		params:     params,
		strategies: Strategies{},
	}, nil
}

// SetStrategy replaces the settlement strategy for tag.
func (e *Engine) SetStrategy(tag VenueTag, strategy Strategy) {
	if e == nil {
		return
	}
	if e.strategies == nil {
		e.strategies = Strategies{}
	}
	e.strategies[tag] = strategy
}

func (e *Engine) SetPauses(p common.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// Program returns the router's own identity.
func (e *Engine) Program() crypto.Address { return e.program }

func (e *Engine) Params() Params { return e.params }

func (e *Engine) Venues() *VenueTable { return e.venues }

// State loads the persisted router state.
func (e *Engine) State(ledger common.Ledger) (*RouterState, error) {
	state := new(RouterState)
	ok, err := ledger.KVGet(routerStateKey(e.program), state)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return state, nil
}

func (e *Engine) putState(ledger common.Ledger, state *RouterState) error {
	return ledger.KVPut(routerStateKey(e.program), state)
}

// Initialize persists the router state. authority must sign the call.
// An existing router reports ErrAlreadyInitialized even while paused.
func (e *Engine) Initialize(ledger common.Ledger, authority crypto.Address, feeRateBps uint16, feeCollector crypto.Address) (*RouterState, error) {
	if _, err := e.State(ledger); err == nil {
		return nil, ErrAlreadyInitialized
	} else if !errors.Is(err, ErrNotInitialized) {
		return nil, err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if !ledger.IsSigner(authority) {
		return nil, fmt.Errorf("%w: %s did not sign", ErrUnauthorized, authority)
	}
	if feeRateBps > e.params.MaxFeeRateBps {
		return nil, fmt.Errorf("%w: %d > %d", ErrInvalidFeeRate, feeRateBps, e.params.MaxFeeRateBps)
	}
	state := &RouterState{
		Authority:    authority,
		FeeRateBps:   feeRateBps,
		FeeCollector: feeCollector,
	}
	if err := e.putState(ledger, state); err != nil {
		return nil, err
	}
	ledger.Emit(events.RouterInitialized{Authority: authority, FeeRateBps: feeRateBps, FeeCollector: feeCollector})
	return state, nil
}

// SetFeeRate lets the recorded authority change the fee rate.
func (e *Engine) SetFeeRate(ledger common.Ledger, caller crypto.Address, feeRateBps uint16) (*RouterState, error) {
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	state, err := e.State(ledger)
	if err != nil {
		return nil, err
	}
	if caller != state.Authority || !ledger.IsSigner(caller) {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	if feeRateBps > e.params.MaxFeeRateBps {
		return nil, fmt.Errorf("%w: %d > %d", ErrInvalidFeeRate, feeRateBps, e.params.MaxFeeRateBps)
	}
	previous := state.FeeRateBps
	state.FeeRateBps = feeRateBps
	if err := e.putState(ledger, state); err != nil {
		return nil, err
	}
	ledger.Emit(events.RouterFeeUpdated{Authority: caller, Previous: previous, Current: feeRateBps})
	return state, nil
}

// ExecuteBatch settles swaps in order on behalf of source. The first failing
// swap fails the batch; the caller's transactional boundary discards whatever
// the earlier swaps wrote. TotalVolume is only written once every swap has
// settled.
func (e *Engine) ExecuteBatch(ledger common.Ledger, source crypto.Address, swaps []SwapInstruction) (*BatchResult, error) {
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	state, err := e.State(ledger)
	if err != nil {
		return nil, err
	}
	result := &BatchResult{Swaps: make([]SwapResult, 0, len(swaps))}
	var batchTotal uint64
	for i, swap := range swaps {
		settled, err := e.executeSwap(ledger, state, source, swap)
		if err != nil {
			return nil, fmt.Errorf("swap %d: %w", i, err)
		}
		batchTotal, err = common.CheckedAdd(batchTotal, settled.NetAmount)
		if err != nil {
			return nil, fmt.Errorf("swap %d: batch volume: %w", i, err)
		}
		result.Swaps = append(result.Swaps, *settled)
		ledger.Emit(events.RouterSwap{
			Source:    source,
			Index:     i,
			Venue:     swap.Venue.String(),
			Pool:      swap.Pool,
			TokenIn:   swap.TokenIn,
			TokenOut:  swap.TokenOut,
			AmountIn:  settled.AmountIn,
			Fee:       settled.Fee,
			NetAmount: settled.NetAmount,
			AmountOut: settled.AmountOut,
		})
	}
	total, err := common.CheckedAdd(state.TotalVolume, batchTotal)
	if err != nil {
		return nil, fmt.Errorf("total volume: %w", err)
	}
	state.TotalVolume = total
	if err := e.putState(ledger, state); err != nil {
		return nil, err
	}
	result.Volume = batchTotal
	result.TotalVolume = total
	ledger.Emit(events.RouterBatch{Source: source, Swaps: len(swaps), Volume: batchTotal, TotalVolume: total})
	return result, nil
}

func (e *Engine) executeSwap(ledger common.Ledger, state *RouterState, source crypto.Address, swap SwapInstruction) (*SwapResult, error) {
	if err := e.venues.Authorize(swap.Venue, swap.VenueProgram); err != nil {
		return nil, err
	}
	if swap.AmountIn < e.params.MinSwapAmount {
		return nil, fmt.Errorf("%w: %d < %d", ErrInvalidSwapAmount, swap.AmountIn, e.params.MinSwapAmount)
	}
	fee, net, err := common.FeeBps(swap.AmountIn, uint64(state.FeeRateBps))
	if err != nil {
		return nil, err
	}
	if fee > 0 && !state.FeeCollector.IsZero() {
		if err := ledger.Transfer(source, state.FeeCollector, swap.TokenIn, fee); err != nil {
			return nil, fmt.Errorf("collect fee: %w", err)
		}
	}

	poolAuthority := PoolAuthority(e.program, swap.Pool)
	out, err := e.strategies.For(swap.Venue).Settle(SettlementContext{
		Ledger:   ledger,
		Venue:    swap.Venue,
		Program:  swap.VenueProgram,
		Source:   source,
		Pool:     swap.Pool,
		Reserve:  poolAuthority.Address,
		TokenIn:  swap.TokenIn,
		TokenOut: swap.TokenOut,
	}, net)
	if err != nil {
		return nil, err
	}
	if out < swap.MinimumAmountOut {
		return nil, fmt.Errorf("%w: %d < %d", ErrSlippageExceeded, out, swap.MinimumAmountOut)
	}

	reserve, err := ledger.Balance(poolAuthority.Address, swap.TokenOut)
	if err != nil {
		return nil, err
	}
	if reserve < out {
		return nil, fmt.Errorf("%w: pool %s holds %d, owes %d", ErrInsufficientLiquidity, swap.Pool, reserve, out)
	}
	poolLedger, err := ledger.Authorize(poolAuthority, e.program)
	if err != nil {
		return nil, err
	}
	if err := poolLedger.Transfer(poolAuthority.Address, source, swap.TokenOut, out); err != nil {
		return nil, fmt.Errorf("pay out: %w", err)
	}
	return &SwapResult{
		Venue:     swap.Venue,
		AmountIn:  swap.AmountIn,
		Fee:       fee,
		NetAmount: net,
		AmountOut: out,
	}, nil
}

// EstimateRoute quotes every venue for a single hop and recommends the best
// one. The answer is advisory: nothing is reserved and ExecuteBatch applies
// its own checks. The persisted fee rate is used when the router has been
// initialised, the default otherwise.
func (e *Engine) EstimateRoute(ledger common.Ledger, tokenIn, tokenOut string, amountIn uint64) (*RouteInfo, error) {
	if err := checkPair(tokenIn, tokenOut); err != nil {
		return nil, err
	}
	if amountIn < e.params.MinSwapAmount {
		return nil, fmt.Errorf("%w: %d < %d", ErrInvalidSwapAmount, amountIn, e.params.MinSwapAmount)
	}
	feeRate := e.params.DefaultFeeRateBps
	if ledger != nil {
		if state, err := e.State(ledger); err == nil {
			feeRate = state.FeeRateBps
		} else if !errors.Is(err, ErrNotInitialized) {
			return nil, err
		}
	}
	_, net, err := common.FeeBps(amountIn, uint64(feeRate))
	if err != nil {
		return nil, err
	}

	bestVenue := DefaultVenue
	bestOut, err := e.strategies.For(DefaultVenue).Quote(tokenIn, tokenOut, net)
	if err != nil {
		return nil, err
	}
	for _, entry := range e.venues.Entries() {
		out, err := e.strategies.For(entry.Tag).Quote(tokenIn, tokenOut, net)
		if err != nil {
			return nil, fmt.Errorf("quote %s: %w", entry.Tag, err)
		}
		if out > bestOut {
			bestVenue, bestOut = entry.Tag, out
		}
	}

	var impact uint64
	if bestOut < amountIn {
		impact, err = common.RatioBps(amountIn-bestOut, amountIn)
		if err != nil {
			return nil, err
		}
	}
	program, _ := e.venues.Lookup(bestVenue)
	return &RouteInfo{
		EstimatedOutput:  bestOut,
		PriceImpactBps:   impact,
		RecommendedVenue: bestVenue,
		Steps: []SwapStep{{
			Venue:     bestVenue,
			Program:   program,
			TokenIn:   tokenIn,
			TokenOut:  tokenOut,
			AmountIn:  amountIn,
			AmountOut: bestOut,
		}},
	}, nil
}
