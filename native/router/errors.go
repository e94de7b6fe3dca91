package router

import "errors"

var (
	ErrInvalidDexProgram     = errors.New("router: venue program does not match the configured identity")
	ErrInvalidFeeRate        = errors.New("router: fee rate exceeds maximum")
	ErrInvalidSwapAmount     = errors.New("router: swap amount below minimum")
	ErrSlippageExceeded      = errors.New("router: output below minimum amount out")
	ErrInsufficientLiquidity = errors.New("router: pool reserve cannot cover output")
	ErrInvalidTokenPair      = errors.New("router: invalid token pair")
	ErrUnauthorized          = errors.New("router: caller is not the router authority")
	ErrNotInitialized        = errors.New("router: state not initialised")
	ErrAlreadyInitialized    = errors.New("router: state already initialised")
	ErrInvalidVenueTable     = errors.New("router: invalid venue table")
)
