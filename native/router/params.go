package router

import (
	"fmt"

	"arbvault/native/common"
)

const (
	DefaultMaxFeeRateBps     uint16 = 1000
	DefaultDefaultFeeRateBps uint16 = 30
	// DefaultMaxSlippageBps is carried in configuration but not enforced;
	// callers express slippage through MinimumAmountOut.
	DefaultMaxSlippageBps uint16 = 5000
	DefaultMinSwapAmount  uint64 = 1
)

// Params holds the global numeric limits of the router.
type Params struct {
	MaxFeeRateBps     uint16
	DefaultFeeRateBps uint16
	MaxSlippageBps    uint16
	MinSwapAmount     uint64
}

func DefaultParams() Params {
	return Params{
		MaxFeeRateBps:     DefaultMaxFeeRateBps,
		DefaultFeeRateBps: DefaultDefaultFeeRateBps,
		MaxSlippageBps:    DefaultMaxSlippageBps,
		MinSwapAmount:     DefaultMinSwapAmount,
	}
}

// Validate ensures the limits are internally consistent.
func (p Params) Validate() error {
	if uint64(p.MaxFeeRateBps) > common.BasisPoints {
		return fmt.Errorf("router params: max fee rate %d exceeds %d bps", p.MaxFeeRateBps, common.BasisPoints)
	}
	if p.DefaultFeeRateBps > p.MaxFeeRateBps {
		return fmt.Errorf("router params: default fee rate %d exceeds max %d", p.DefaultFeeRateBps, p.MaxFeeRateBps)
	}
	if uint64(p.MaxSlippageBps) > common.BasisPoints {
		return fmt.Errorf("router params: max slippage %d exceeds %d bps", p.MaxSlippageBps, common.BasisPoints)
	}
	if p.MinSwapAmount == 0 {
		return fmt.Errorf("router params: minimum swap amount must be positive")
	}
	return nil
}
