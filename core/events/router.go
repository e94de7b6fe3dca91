package events

import (
	"strconv"
	"strings"

	"arbvault/core/types"
	"arbvault/crypto"
)

const (
	TypeRouterInitialized = "router.initialized"
	TypeRouterFeeUpdated  = "router.feeUpdated"
	TypeRouterSwap        = "router.swap"
	TypeRouterBatch       = "router.batch"
)

type RouterInitialized struct {
	Authority    crypto.Address
	FeeRateBps   uint16
	FeeCollector crypto.Address
}

func (RouterInitialized) EventType() string { return TypeRouterInitialized }

func (e RouterInitialized) Event() *types.Event {
	return &types.Event{
		Type: TypeRouterInitialized,
		Attributes: map[string]string{
			"authority":    formatAddress(e.Authority),
			"feeRateBps":   strconv.FormatUint(uint64(e.FeeRateBps), 10),
			"feeCollector": formatAddress(e.FeeCollector),
		},
	}
}

type RouterFeeUpdated struct {
	Authority crypto.Address
	Previous  uint16
	Current   uint16
}

func (RouterFeeUpdated) EventType() string { return TypeRouterFeeUpdated }

func (e RouterFeeUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeRouterFeeUpdated,
		Attributes: map[string]string{
			"authority": formatAddress(e.Authority),
			"previous":  strconv.FormatUint(uint64(e.Previous), 10),
			"current":   strconv.FormatUint(uint64(e.Current), 10),
		},
	}
}

// RouterSwap describes one settled entry of a batch.
type RouterSwap struct {
	Source    crypto.Address
	Index     int
	Venue     string
	Pool      crypto.Address
	TokenIn   string
	TokenOut  string
	AmountIn  uint64
	Fee       uint64
	NetAmount uint64
	AmountOut uint64
}

func (RouterSwap) EventType() string { return TypeRouterSwap }

func (e RouterSwap) Event() *types.Event {
	return &types.Event{
		Type: TypeRouterSwap,
		Attributes: map[string]string{
			"source":    formatAddress(e.Source),
			"index":     strconv.Itoa(e.Index),
			"venue":     strings.TrimSpace(e.Venue),
			"pool":      formatAddress(e.Pool),
			"tokenIn":   normalizeAsset(e.TokenIn),
			"tokenOut":  normalizeAsset(e.TokenOut),
			"amountIn":  formatAmount(e.AmountIn),
			"fee":       formatAmount(e.Fee),
			"netAmount": formatAmount(e.NetAmount),
			"amountOut": formatAmount(e.AmountOut),
		},
	}
}

type RouterBatch struct {
	Source      crypto.Address
	Swaps       int
	Volume      uint64
	TotalVolume uint64
}

func (RouterBatch) EventType() string { return TypeRouterBatch }

func (e RouterBatch) Event() *types.Event {
	return &types.Event{
		Type: TypeRouterBatch,
		Attributes: map[string]string{
			"source":      formatAddress(e.Source),
			"swaps":       strconv.Itoa(e.Swaps),
			"volume":      formatAmount(e.Volume),
			"totalVolume": formatAmount(e.TotalVolume),
		},
	}
}
