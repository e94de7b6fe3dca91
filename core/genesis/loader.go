package genesis

import (
	"fmt"
	"sort"
	"strings"

	"arbvault/core/state"
	"arbvault/crypto"
)

// Apply registers the tokens and credits the allocations of spec in a
// deterministic order, so the resulting state root depends only on the
// content of the spec.
func Apply(spec *Spec, manager *state.Manager) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	tokens := append([]TokenSpec(nil), spec.Tokens...)
	sort.Slice(tokens, func(i, j int) bool {
		return strings.ToUpper(tokens[i].Symbol) < strings.ToUpper(tokens[j].Symbol)
	})
	for _, token := range tokens {
		if err := manager.RegisterToken(token.Symbol, token.Name, token.Decimals); err != nil {
			return fmt.Errorf("register token %q: %w", token.Symbol, err)
		}
	}

	type credit struct {
		addr   crypto.Address
		token  string
		amount uint64
	}
	credits := make([]credit, 0, len(spec.Alloc))
	for _, alloc := range spec.Alloc {
		addr, err := crypto.ParseAddress(alloc.Address)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", alloc.Address, err)
		}
		credits = append(credits, credit{addr: addr, token: state.NormalizeToken(alloc.Token), amount: alloc.Amount})
	}
	sort.SliceStable(credits, func(i, j int) bool {
		if credits[i].addr != credits[j].addr {
			return strings.Compare(credits[i].addr.Hex(), credits[j].addr.Hex()) < 0
		}
		return credits[i].token < credits[j].token
	})
	for _, c := range credits {
		if err := manager.Credit(c.addr, c.token, c.amount); err != nil {
			return fmt.Errorf("alloc[%s][%s]: %w", c.addr, c.token, err)
		}
	}
	return manager.SetStateVersion(state.StateVersion)
}
