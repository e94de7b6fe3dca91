package vault

import (
	"arbvault/crypto"
	"arbvault/native/router"
)

// ModuleName identifies the vault for pause switches and metrics.
const ModuleName = "vault"

// ExecutorFeePercent is the share of realised arbitrage profit paid to the
// executor. The remainder stays in the vault.
const ExecutorFeePercent uint64 = 10

// VaultState is the singleton record of one pool.
type VaultState struct {
	Authority        crypto.Address
	AuthorizedRouter crypto.Address
	Asset            string
	TotalShares      uint64
}

// Position records the shares held by one depositor. Positions are created
// on first deposit and kept, possibly empty, afterwards.
type Position struct {
	Owner  crypto.Address
	Shares uint64
}

type DepositResult struct {
	Shares      uint64 `json:"shares"`
	Position    uint64 `json:"position"`
	TotalShares uint64 `json:"totalShares"`
}

type WithdrawResult struct {
	Amount      uint64 `json:"amount"`
	Position    uint64 `json:"position"`
	TotalShares uint64 `json:"totalShares"`
}

type ArbitrageResult struct {
	InitialBalance uint64              `json:"initialBalance"`
	FinalBalance   uint64              `json:"finalBalance"`
	Profit         uint64              `json:"profit"`
	ExecutorFee    uint64              `json:"executorFee"`
	VaultProfit    uint64              `json:"vaultProfit"`
	Batch          *router.BatchResult `json:"batch,omitempty"`
}
