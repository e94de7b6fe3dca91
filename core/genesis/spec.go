package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"arbvault/crypto"
)

// Spec describes the state a fresh deployment starts from: the tokens the
// ledger knows about and the balances credited to each account.
type Spec struct {
	Tokens []TokenSpec `json:"tokens" toml:"Tokens" yaml:"tokens"`
	Alloc  []AllocSpec `json:"alloc" toml:"Alloc" yaml:"alloc"`
}

type TokenSpec struct {
	Symbol   string `json:"symbol" toml:"Symbol" yaml:"symbol"`
	Name     string `json:"name" toml:"Name" yaml:"name"`
	Decimals uint8  `json:"decimals" toml:"Decimals" yaml:"decimals"`
}

// AllocSpec credits Amount of Token to Address. Address accepts bech32 or
// 0x-prefixed hex.
type AllocSpec struct {
	Address string `json:"address" toml:"Address" yaml:"address"`
	Token   string `json:"token" toml:"Token" yaml:"token"`
	Amount  uint64 `json:"amount" toml:"Amount" yaml:"amount"`
}

// LoadSpec reads a JSON genesis file.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	spec := new(Spec)
	if err := json.Unmarshal(data, spec); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// Validate checks that every allocation names a declared token and a
// parseable address, and that no token is declared twice.
func (s *Spec) Validate() error {
	if s == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	declared := make(map[string]struct{}, len(s.Tokens))
	for i, token := range s.Tokens {
		symbol := strings.ToUpper(strings.TrimSpace(token.Symbol))
		if symbol == "" {
			return fmt.Errorf("genesis tokens[%d]: symbol must not be empty", i)
		}
		if strings.TrimSpace(token.Name) == "" {
			return fmt.Errorf("genesis tokens[%d]: name must not be empty", i)
		}
		if _, dup := declared[symbol]; dup {
			return fmt.Errorf("genesis tokens[%d]: duplicate symbol %s", i, symbol)
		}
		declared[symbol] = struct{}{}
	}
	for i, alloc := range s.Alloc {
		if _, err := crypto.ParseAddress(alloc.Address); err != nil {
			return fmt.Errorf("genesis alloc[%d]: %w", i, err)
		}
		if _, ok := declared[strings.ToUpper(strings.TrimSpace(alloc.Token))]; !ok {
			return fmt.Errorf("genesis alloc[%d]: token %q not declared", i, alloc.Token)
		}
	}
	return nil
}
