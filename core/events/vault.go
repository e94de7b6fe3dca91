package events

import (
	"arbvault/core/types"
	"arbvault/crypto"
)

const (
	TypeVaultInitialized = "vault.initialized"
	TypeVaultDeposited   = "vault.deposited"
	TypeVaultWithdrawn   = "vault.withdrawn"
	// TypeArbitrageExecuted is the audit record of a profit distribution.
	TypeArbitrageExecuted = "vault.arbitrage"
)

type VaultInitialized struct {
	Authority crypto.Address
	Router    crypto.Address
	Asset     string
	Account   crypto.Address
}

func (VaultInitialized) EventType() string { return TypeVaultInitialized }

func (e VaultInitialized) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultInitialized,
		Attributes: map[string]string{
			"authority": formatAddress(e.Authority),
			"router":    formatAddress(e.Router),
			"asset":     normalizeAsset(e.Asset),
			"account":   formatAddress(e.Account),
		},
	}
}

type VaultDeposited struct {
	Owner       crypto.Address
	Amount      uint64
	Shares      uint64
	TotalShares uint64
}

func (VaultDeposited) EventType() string { return TypeVaultDeposited }

func (e VaultDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultDeposited,
		Attributes: map[string]string{
			"owner":       formatAddress(e.Owner),
			"amount":      formatAmount(e.Amount),
			"shares":      formatAmount(e.Shares),
			"totalShares": formatAmount(e.TotalShares),
		},
	}
}

type VaultWithdrawn struct {
	Owner       crypto.Address
	Shares      uint64
	Amount      uint64
	TotalShares uint64
}

func (VaultWithdrawn) EventType() string { return TypeVaultWithdrawn }

func (e VaultWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultWithdrawn,
		Attributes: map[string]string{
			"owner":       formatAddress(e.Owner),
			"shares":      formatAmount(e.Shares),
			"amount":      formatAmount(e.Amount),
			"totalShares": formatAmount(e.TotalShares),
		},
	}
}

// ArbitrageExecuted is emitted once per committed arbitrage call. Profit is
// the observed balance delta of the vault account, never a value reported by
// the router.
type ArbitrageExecuted struct {
	Executor       crypto.Address
	Router         crypto.Address
	InitialBalance uint64
	FinalBalance   uint64
	Profit         uint64
	ExecutorFee    uint64
	VaultProfit    uint64
}

func (ArbitrageExecuted) EventType() string { return TypeArbitrageExecuted }

func (e ArbitrageExecuted) Event() *types.Event {
	return &types.Event{
		Type: TypeArbitrageExecuted,
		Attributes: map[string]string{
			"executor":       formatAddress(e.Executor),
			"router":         formatAddress(e.Router),
			"initialBalance": formatAmount(e.InitialBalance),
			"finalBalance":   formatAmount(e.FinalBalance),
			"profit":         formatAmount(e.Profit),
			"executorFee":    formatAmount(e.ExecutorFee),
			"vaultProfit":    formatAmount(e.VaultProfit),
		},
	}
}
