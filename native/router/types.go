package router

import "arbvault/crypto"

// ModuleName identifies the router for pause switches and metrics.
const ModuleName = "router"

// RouterState is the singleton record persisted by Initialize.
type RouterState struct {
	Authority    crypto.Address
	FeeRateBps   uint16
	TotalVolume  uint64
	FeeCollector crypto.Address
}

// SwapInstruction is one entry of a batch. It is consumed once and never
// persisted.
type SwapInstruction struct {
	Venue            VenueTag       `json:"venue"`
	VenueProgram     crypto.Address `json:"venueProgram"`
	Pool             crypto.Address `json:"pool"`
	TokenIn          string         `json:"tokenIn"`
	TokenOut         string         `json:"tokenOut"`
	AmountIn         uint64         `json:"amountIn"`
	MinimumAmountOut uint64         `json:"minimumAmountOut"`
}

// SwapResult reports how one instruction settled.
type SwapResult struct {
	Venue     VenueTag `json:"venue"`
	AmountIn  uint64   `json:"amountIn"`
	Fee       uint64   `json:"fee"`
	NetAmount uint64   `json:"netAmount"`
	AmountOut uint64   `json:"amountOut"`
}

type BatchResult struct {
	Swaps       []SwapResult `json:"swaps"`
	Volume      uint64       `json:"volume"`
	TotalVolume uint64       `json:"totalVolume"`
}

// SwapStep is one hop of an advisory route.
type SwapStep struct {
	Venue     VenueTag       `json:"venue"`
	Program   crypto.Address `json:"program"`
	TokenIn   string         `json:"tokenIn"`
	TokenOut  string         `json:"tokenOut"`
	AmountIn  uint64         `json:"amountIn"`
	AmountOut uint64         `json:"amountOut"`
}

// RouteInfo is advisory output of EstimateRoute. It carries no guarantee.
type RouteInfo struct {
	EstimatedOutput  uint64     `json:"estimatedOutput"`
	PriceImpactBps   uint64     `json:"priceImpactBps"`
	RecommendedVenue VenueTag   `json:"recommendedVenue"`
	Steps            []SwapStep `json:"steps"`
}
