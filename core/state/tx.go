package state

import (
	"errors"
	"fmt"

	"arbvault/core/events"
	"arbvault/crypto"
	"arbvault/native/common"
)

var (
	ErrUnauthorizedTransfer = errors.New("state: transfer source is not a signer")
	ErrInvalidAuthority     = errors.New("state: derived authority rejected")
)

// Tx is the ledger of a single call. It operates on a scratch copy of the
// state trie owned by the runtime, so nothing written through it is visible
// until the runtime commits. Events are buffered for the same reason.
type Tx struct {
	manager *Manager
	signers map[crypto.Address]struct{}
	events  *[]events.Event
}

var _ common.Ledger = (*Tx)(nil)

// NewTx opens a ledger over manager whose signer set is signers.
func NewTx(manager *Manager, signers ...crypto.Address) *Tx {
	set := make(map[crypto.Address]struct{}, len(signers))
	for _, signer := range signers {
		if !signer.IsZero() {
			set[signer] = struct{}{}
		}
	}
	buffer := make([]events.Event, 0)
	return &Tx{manager: manager, signers: set, events: &buffer}
}

// Manager exposes the manager the ledger writes through.
func (t *Tx) Manager() *Manager {
	return t.manager
}

func (t *Tx) IsSigner(addr crypto.Address) bool {
	if addr.IsZero() {
		return false
	}
	_, ok := t.signers[addr]
	return ok
}

func (t *Tx) Balance(addr crypto.Address, token string) (uint64, error) {
	return t.manager.Balance(addr, token)
}

// Transfer moves amount of token from one account to another. The source
// must sign the call, either directly or through a derived authority granted
// with Authorize. A zero amount moves nothing and emits nothing.
func (t *Tx) Transfer(from, to crypto.Address, token string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if !t.IsSigner(from) {
		return fmt.Errorf("%w: %s", ErrUnauthorizedTransfer, from)
	}
	if to.IsZero() {
		return fmt.Errorf("state: transfer destination must not be empty")
	}
	if err := t.manager.move(from, to, token, amount); err != nil {
		return err
	}
	t.Emit(events.Transfer{From: from, To: to, Token: NormalizeToken(token), Amount: amount})
	return nil
}

// Authorize returns a child ledger that shares state and the event buffer
// with t and additionally counts auth.Address as a signer. The authority must
// have been derived from program.
func (t *Tx) Authorize(auth crypto.DerivedAuthority, program crypto.Address) (common.Ledger, error) {
	if program.IsZero() || auth.Program != program {
		return nil, fmt.Errorf("%w: %s is not owned by %s", ErrInvalidAuthority, auth.Address, program)
	}
	if err := auth.Verify(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAuthority, err)
	}
	signers := make(map[crypto.Address]struct{}, len(t.signers)+1)
	for signer := range t.signers {
		signers[signer] = struct{}{}
	}
	signers[auth.Address] = struct{}{}
	return &Tx{manager: t.manager, signers: signers, events: t.events}, nil
}

func (t *Tx) KVGet(key []byte, out interface{}) (bool, error) {
	return t.manager.KVGet(key, out)
}

func (t *Tx) KVPut(key []byte, value interface{}) error {
	return t.manager.KVPut(key, value)
}

func (t *Tx) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	*t.events = append(*t.events, evt)
}

// Events returns the events buffered by this ledger and every ledger derived
// from it, in emission order.
func (t *Tx) Events() []events.Event {
	out := make([]events.Event, len(*t.events))
	copy(out, *t.events)
	return out
}
