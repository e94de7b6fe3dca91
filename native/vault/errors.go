package vault

import "errors"

var (
	ErrInvalidSwapRouter  = errors.New("vault: router is not the authorised router")
	ErrInsufficientProfit = errors.New("vault: arbitrage profit below minimum")
	ErrInsufficientShares = errors.New("vault: insufficient shares")
	ErrInvalidAmount      = errors.New("vault: amount must be positive")
	ErrUnauthorized       = errors.New("vault: caller did not sign")
	ErrNotInitialized     = errors.New("vault: state not initialised")
	ErrAlreadyInitialized = errors.New("vault: state already initialised")
)
