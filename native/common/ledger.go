package common

import (
	"arbvault/core/events"
	"arbvault/crypto"
)

// Ledger is the view of state handed to a module for the duration of one
// call. Everything written through it, transfers and events included, is
// discarded unless the enclosing call commits.
type Ledger interface {
	// Balance returns the holdings of addr in token.
	Balance(addr crypto.Address, token string) (uint64, error)
	// Transfer moves amount of token. from must be a signer of the call.
	Transfer(from, to crypto.Address, token string, amount uint64) error
	// Authorize returns a ledger sharing this call's state whose signers also
	// include auth.Address. program must be the identity auth was derived
	// from.
	Authorize(auth crypto.DerivedAuthority, program crypto.Address) (Ledger, error)
	IsSigner(addr crypto.Address) bool

	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error

	Emit(evt events.Event)
}
