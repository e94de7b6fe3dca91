package events

import (
	"arbvault/core/types"
	"arbvault/crypto"
)

// TypeTransfer is emitted for every non-zero balance movement.
const TypeTransfer = "transfer"

// Transfer records value moving between two accounts under the authority of
// the sending account.
type Transfer struct {
	From   crypto.Address
	To     crypto.Address
	Token  string
	Amount uint64
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	return &types.Event{
		Type: TypeTransfer,
		Attributes: map[string]string{
			"from":   formatAddress(e.From),
			"to":     formatAddress(e.To),
			"token":  normalizeAsset(e.Token),
			"amount": formatAmount(e.Amount),
		},
	}
}
