package router

import (
	"fmt"
	"strings"

	"arbvault/crypto"
	"arbvault/native/common"
)

// SettlementContext describes the swap a strategy is asked to settle.
type SettlementContext struct {
	Ledger   common.Ledger
	Venue    VenueTag
	Program  crypto.Address
	Source   crypto.Address
	Pool     crypto.Address
	Reserve  crypto.Address
	TokenIn  string
	TokenOut string
}

// Strategy settles swaps against one venue.
//
// Settle must move exactly net of TokenIn from Source to Reserve through the
// supplied ledger and return the output the venue owes. The router performs
// the outbound transfer itself, after checking the caller's floor. Quote must
// not touch state.
type Strategy interface {
	Settle(ctx SettlementContext, net uint64) (uint64, error)
	Quote(tokenIn, tokenOut string, net uint64) (uint64, error)
}

// DefaultRateBps approximates a 2% slippage venue.
const DefaultRateBps uint64 = 9800

// ConstantRate is the reference strategy: every unit in buys RateBps/10000
// units out regardless of pool depth. It is a fixture for dispatch and
// accounting, not a price model.
type ConstantRate struct {
	RateBps uint64
}

func (c ConstantRate) rate() uint64 {
	if c.RateBps == 0 {
		return DefaultRateBps
	}
	return c.RateBps
}

func (c ConstantRate) Quote(tokenIn, tokenOut string, net uint64) (uint64, error) {
	if err := checkPair(tokenIn, tokenOut); err != nil {
		return 0, err
	}
	return common.MulDiv(net, c.rate(), common.BasisPoints)
}

func (c ConstantRate) Settle(ctx SettlementContext, net uint64) (uint64, error) {
	out, err := c.Quote(ctx.TokenIn, ctx.TokenOut, net)
	if err != nil {
		return 0, err
	}
	if err := ctx.Ledger.Transfer(ctx.Source, ctx.Reserve, ctx.TokenIn, net); err != nil {
		return 0, err
	}
	return out, nil
}

func checkPair(tokenIn, tokenOut string) error {
	in := strings.ToUpper(strings.TrimSpace(tokenIn))
	out := strings.ToUpper(strings.TrimSpace(tokenOut))
	if in == "" || out == "" {
		return fmt.Errorf("%w: token must not be empty", ErrInvalidTokenPair)
	}
	if in == out {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTokenPair, in, out)
	}
	return nil
}

// Strategies maps venues to their settlement strategy. Venues without an
// entry settle through the reference ConstantRate.
type Strategies map[VenueTag]Strategy

func (s Strategies) For(tag VenueTag) Strategy {
	if strategy, ok := s[tag]; ok && strategy != nil {
		return strategy
	}
	return ConstantRate{RateBps: DefaultRateBps}
}
