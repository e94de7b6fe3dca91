package vault

import (
	"errors"
	"fmt"

	"arbvault/core/events"
	"arbvault/crypto"
	"arbvault/native/common"
	"arbvault/native/router"
)

// SwapRouter is the batch-execution contract the vault delegates to.
type SwapRouter interface {
	Program() crypto.Address
	ExecuteBatch(ledger common.Ledger, source crypto.Address, swaps []router.SwapInstruction) (*router.BatchResult, error)
}

// Engine implements the vault module for a single pool.
type Engine struct {
	program crypto.Address
	routers map[crypto.Address]SwapRouter
	pauses  common.PauseView
}

// NewEngine constructs a vault owned by program.
func NewEngine(program crypto.Address) (*Engine, error) {
	if program.IsZero() {
		return nil, fmt.Errorf("vault: program identity required")
	}
	return &Engine{program: program, routers: make(map[crypto.Address]SwapRouter)}, nil
}

// RegisterRouter makes r reachable under its program identity. Registration
// alone grants nothing: arbitrage only delegates to the router recorded in
// the vault state.
func (e *Engine) RegisterRouter(r SwapRouter) {
	if e == nil || r == nil {
		return
	}
	e.routers[r.Program()] = r
}

func (e *Engine) SetPauses(p common.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

func (e *Engine) Program() crypto.Address { return e.program }

// Authority is the keyless identity that owns the pooled funds.
func (e *Engine) Authority() crypto.DerivedAuthority {
	return crypto.DeriveAuthority(e.program, vaultSeed)
}

// Account is the address holding the pooled funds.
func (e *Engine) Account() crypto.Address {
	return e.Authority().Address
}

// State loads the persisted vault state.
func (e *Engine) State(ledger common.Ledger) (*VaultState, error) {
	state := new(VaultState)
	ok, err := ledger.KVGet(vaultStateKey(e.program), state)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return state, nil
}

// Position returns the shares held by owner; owners that never deposited
// hold an empty position.
func (e *Engine) Position(ledger common.Ledger, owner crypto.Address) (*Position, error) {
	position := new(Position)
	ok, err := ledger.KVGet(positionKey(e.program, owner), position)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Position{Owner: owner}, nil
	}
	return position, nil
}

// Valuation returns the vault balance of its asset and the outstanding
// shares; their ratio is the share price.
func (e *Engine) Valuation(ledger common.Ledger) (balance, totalShares uint64, err error) {
	state, err := e.State(ledger)
	if err != nil {
		return 0, 0, err
	}
	balance, err = ledger.Balance(e.Account(), state.Asset)
	if err != nil {
		return 0, 0, err
	}
	return balance, state.TotalShares, nil
}

// InitializeVault records the pool's authority, asset and the only router
// the vault will ever delegate to. An existing vault reports
// ErrAlreadyInitialized even while paused.
func (e *Engine) InitializeVault(ledger common.Ledger, authority, authorizedRouter crypto.Address, asset string) (*VaultState, error) {
	if _, err := e.State(ledger); err == nil {
		return nil, ErrAlreadyInitialized
	} else if !errors.Is(err, ErrNotInitialized) {
		return nil, err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if !ledger.IsSigner(authority) {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, authority)
	}
	if authorizedRouter.IsZero() {
		return nil, fmt.Errorf("%w: router identity required", ErrInvalidSwapRouter)
	}
	// Resolves the symbol and fails for unregistered assets.
	if _, err := ledger.Balance(e.Account(), asset); err != nil {
		return nil, err
	}
	state := &VaultState{
		Authority:        authority,
		AuthorizedRouter: authorizedRouter,
		Asset:            normalizeAsset(asset),
	}
	if err := ledger.KVPut(vaultStateKey(e.program), state); err != nil {
		return nil, err
	}
	ledger.Emit(events.VaultInitialized{Authority: authority, Router: authorizedRouter, Asset: state.Asset, Account: e.Account()})
	return state, nil
}

// Deposit moves amount from owner into the vault and mints shares priced
// against the balance held before the deposit.
func (e *Engine) Deposit(ledger common.Ledger, owner crypto.Address, amount uint64) (*DepositResult, error) {
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if !ledger.IsSigner(owner) {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, owner)
	}
	state, err := e.State(ledger)
	if err != nil {
		return nil, err
	}
	account := e.Account()
	before, err := ledger.Balance(account, state.Asset)
	if err != nil {
		return nil, err
	}

	var minted uint64
	switch {
	case state.TotalShares == 0:
		minted = amount
	case before == 0:
		return nil, fmt.Errorf("%w: vault holds nothing against %d outstanding shares", common.ErrMathOverflow, state.TotalShares)
	default:
		minted, err = common.MulDiv(amount, state.TotalShares, before)
		if err != nil {
			return nil, err
		}
		if minted == 0 {
			return nil, fmt.Errorf("%w: deposit of %d mints no shares", ErrInvalidAmount, amount)
		}
	}

	if err := ledger.Transfer(owner, account, state.Asset, amount); err != nil {
		return nil, err
	}
	position, err := e.Position(ledger, owner)
	if err != nil {
		return nil, err
	}
	if position.Shares, err = common.CheckedAdd(position.Shares, minted); err != nil {
		return nil, err
	}
	if state.TotalShares, err = common.CheckedAdd(state.TotalShares, minted); err != nil {
		return nil, err
	}
	if err := e.persist(ledger, state, position); err != nil {
		return nil, err
	}
	ledger.Emit(events.VaultDeposited{Owner: owner, Amount: amount, Shares: minted, TotalShares: state.TotalShares})
	return &DepositResult{Shares: minted, Position: position.Shares, TotalShares: state.TotalShares}, nil
}

// Withdraw burns shares and pays out their proportional claim on the vault
// balance. Withdrawing zero shares moves nothing and emits nothing.
func (e *Engine) Withdraw(ledger common.Ledger, owner crypto.Address, shares uint64) (*WithdrawResult, error) {
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if !ledger.IsSigner(owner) {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, owner)
	}
	state, err := e.State(ledger)
	if err != nil {
		return nil, err
	}
	position, err := e.Position(ledger, owner)
	if err != nil {
		return nil, err
	}
	if shares > position.Shares {
		return nil, fmt.Errorf("%w: holds %d, requested %d", ErrInsufficientShares, position.Shares, shares)
	}
	if shares == 0 {
		return &WithdrawResult{Position: position.Shares, TotalShares: state.TotalShares}, nil
	}

	account := e.Account()
	balance, err := ledger.Balance(account, state.Asset)
	if err != nil {
		return nil, err
	}
	// Priced before either counter moves.
	amount, err := common.MulDiv(shares, balance, state.TotalShares)
	if err != nil {
		return nil, err
	}

	delegated, err := ledger.Authorize(e.Authority(), e.program)
	if err != nil {
		return nil, err
	}
	if err := delegated.Transfer(account, owner, state.Asset, amount); err != nil {
		return nil, err
	}
	if position.Shares, err = common.CheckedSub(position.Shares, shares); err != nil {
		return nil, err
	}
	if state.TotalShares, err = common.CheckedSub(state.TotalShares, shares); err != nil {
		return nil, err
	}
	if err := e.persist(ledger, state, position); err != nil {
		return nil, err
	}
	ledger.Emit(events.VaultWithdrawn{Owner: owner, Shares: shares, Amount: amount, TotalShares: state.TotalShares})
	return &WithdrawResult{Amount: amount, Position: position.Shares, TotalShares: state.TotalShares}, nil
}

// ExecuteArbitrage lends the vault's signing authority to the authorised
// router for one batch and keeps the result only if the vault balance grew by
// at least minProfit. Profit is measured from the vault balance alone; the
// router's own report is ignored. The executor receives ExecutorFeePercent of
// the profit.
//
// Any error leaves it to the caller's transactional boundary to discard the
// batch's transfers.
func (e *Engine) ExecuteArbitrage(ledger common.Ledger, executor, routerProgram crypto.Address, swaps []router.SwapInstruction, minProfit uint64) (*ArbitrageResult, error) {
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if !ledger.IsSigner(executor) {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, executor)
	}
	state, err := e.State(ledger)
	if err != nil {
		return nil, err
	}

	// Verifying delegate.
	if routerProgram.IsZero() || routerProgram != state.AuthorizedRouter {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSwapRouter, routerProgram)
	}
	delegate, ok := e.routers[routerProgram]
	if !ok || delegate.Program() != routerProgram {
		return nil, fmt.Errorf("%w: %s is not reachable", ErrInvalidSwapRouter, routerProgram)
	}

	account := e.Account()
	initial, err := ledger.Balance(account, state.Asset)
	if err != nil {
		return nil, err
	}

	// Delegating.
	delegated, err := ledger.Authorize(e.Authority(), e.program)
	if err != nil {
		return nil, err
	}
	batch, err := delegate.ExecuteBatch(delegated, account, swaps)
	if err != nil {
		return nil, fmt.Errorf("delegated batch: %w", err)
	}

	// Observing delta.
	final, err := ledger.Balance(account, state.Asset)
	if err != nil {
		return nil, err
	}
	if final < initial {
		return nil, fmt.Errorf("%w: balance fell from %d to %d", ErrInsufficientProfit, initial, final)
	}
	profit := final - initial
	if profit < minProfit {
		return nil, fmt.Errorf("%w: %d < %d", ErrInsufficientProfit, profit, minProfit)
	}

	// Distributing.
	executorFee, err := common.MulDiv(profit, ExecutorFeePercent, 100)
	if err != nil {
		return nil, err
	}
	vaultProfit, err := common.CheckedSub(profit, executorFee)
	if err != nil {
		return nil, err
	}
	if err := delegated.Transfer(account, executor, state.Asset, executorFee); err != nil {
		return nil, err
	}

	ledger.Emit(events.ArbitrageExecuted{
		Executor:       executor,
		Router:         routerProgram,
		InitialBalance: initial,
		FinalBalance:   final,
		Profit:         profit,
		ExecutorFee:    executorFee,
		VaultProfit:    vaultProfit,
	})
	return &ArbitrageResult{
		InitialBalance: initial,
		FinalBalance:   final,
		Profit:         profit,
		ExecutorFee:    executorFee,
		VaultProfit:    vaultProfit,
		Batch:          batch,
	}, nil
}

func (e *Engine) persist(ledger common.Ledger, state *VaultState, position *Position) error {
	if err := ledger.KVPut(positionKey(e.program, position.Owner), position); err != nil {
		return err
	}
	return ledger.KVPut(vaultStateKey(e.program), state)
}
