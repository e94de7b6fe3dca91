package core

import (
	"context"
	"errors"

	"arbvault/core/state"
	"arbvault/native/common"
	"arbvault/native/router"
	"arbvault/native/vault"
)

// CodeInternal is reported for errors outside the known set.
const CodeInternal = "internal"

type errorCode struct {
	err  error
	code string
}

// Module errors come before the substrate errors they may wrap.
var errorCodes = []errorCode{
	{router.ErrInvalidDexProgram, "invalid_dex_program"},
	{vault.ErrInvalidSwapRouter, "invalid_swap_router"},
	{router.ErrInvalidFeeRate, "invalid_fee_rate"},
	{router.ErrInvalidSwapAmount, "invalid_swap_amount"},
	{router.ErrSlippageExceeded, "slippage_exceeded"},
	{vault.ErrInsufficientProfit, "insufficient_profit"},
	{vault.ErrInsufficientShares, "insufficient_shares"},
	{router.ErrInsufficientLiquidity, "insufficient_liquidity"},
	{router.ErrInvalidTokenPair, "invalid_token_pair"},
	{router.ErrInvalidVenueTable, "invalid_venue_table"},
	{router.ErrUnauthorized, "unauthorized"},
	{vault.ErrUnauthorized, "unauthorized"},
	{vault.ErrInvalidAmount, "invalid_amount"},
	{router.ErrNotInitialized, "not_initialized"},
	{vault.ErrNotInitialized, "not_initialized"},
	{router.ErrAlreadyInitialized, "already_initialized"},
	{vault.ErrAlreadyInitialized, "already_initialized"},
	{common.ErrModulePaused, "module_paused"},
	{common.ErrMathOverflow, "math_overflow"},
	{state.ErrInsufficientBalance, "insufficient_balance"},
	{state.ErrUnauthorizedTransfer, "unauthorized_transfer"},
	{state.ErrInvalidAuthority, "invalid_authority"},
	{state.ErrUnknownToken, "unknown_token"},
	{context.Canceled, "canceled"},
	{context.DeadlineExceeded, "deadline_exceeded"},
}

// ErrorCode returns the stable identifier of err used in metrics labels and
// API responses. A nil error is "committed".
func ErrorCode(err error) string {
	if err == nil {
		return outcomeCommitted
	}
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return CodeInternal
}
