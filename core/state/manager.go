package state

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"arbvault/crypto"
	"arbvault/native/common"
	"arbvault/storage/trie"
)

var (
	ErrUnknownToken        = errors.New("state: token not registered")
	ErrInsufficientBalance = errors.New("state: insufficient balance")
)

// Manager reads and writes typed records in the state trie. Keys are hashed
// before they reach the trie and values are RLP encoded.
type Manager struct {
	trie *trie.Trie
}

// NewManager creates a state manager operating on the provided trie.
func NewManager(tr *trie.Trie) *Manager {
	return &Manager{trie: tr}
}

// Trie exposes the underlying trie.
func (m *Manager) Trie() *trie.Trie {
	return m.trie
}

type TokenMetadata struct {
	Symbol   string
	Name     string
	Decimals uint8
}

var (
	tokenPrefix   = []byte("token:")
	tokenListKey  = ethcrypto.Keccak256([]byte("token-list"))
	balancePrefix = []byte("balance:")
)

// NormalizeToken returns the canonical form of a token symbol.
func NormalizeToken(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func tokenMetadataKey(symbol string) []byte {
	buf := make([]byte, len(tokenPrefix)+len(symbol))
	copy(buf, tokenPrefix)
	copy(buf[len(tokenPrefix):], symbol)
	return ethcrypto.Keccak256(buf)
}

func balanceKey(addr crypto.Address, symbol string) []byte {
	buf := make([]byte, len(balancePrefix)+len(symbol)+1+crypto.AddressLength)
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], symbol)
	buf[len(balancePrefix)+len(symbol)] = ':'
	copy(buf[len(balancePrefix)+len(symbol)+1:], addr[:])
	return ethcrypto.Keccak256(buf)
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) loadTokenList() ([]string, error) {
	data, err := m.trie.Get(tokenListKey)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []string{}, nil
	}
	var list []string
	if err := rlp.DecodeBytes(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (m *Manager) loadTokenMetadata(symbol string) (*TokenMetadata, error) {
	data, err := m.trie.Get(tokenMetadataKey(symbol))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	meta := new(TokenMetadata)
	if err := rlp.DecodeBytes(data, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// RegisterToken stores the metadata for a token and records it in the token
// index.
func (m *Manager) RegisterToken(symbol, name string, decimals uint8) error {
	normalized := NormalizeToken(symbol)
	if normalized == "" {
		return fmt.Errorf("token symbol must not be empty")
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("token %s: name must not be empty", normalized)
	}
	if existing, err := m.loadTokenMetadata(normalized); err != nil {
		return err
	} else if existing != nil {
		return fmt.Errorf("token %s already registered", normalized)
	}

	list, err := m.loadTokenList()
	if err != nil {
		return err
	}
	list = append(list, normalized)
	sort.Strings(list)
	encodedList, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	if err := m.trie.Update(tokenListKey, encodedList); err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(&TokenMetadata{Symbol: normalized, Name: strings.TrimSpace(name), Decimals: decimals})
	if err != nil {
		return err
	}
	return m.trie.Update(tokenMetadataKey(normalized), encoded)
}

// Token returns the metadata of a registered token, or nil when unknown.
func (m *Manager) Token(symbol string) (*TokenMetadata, error) {
	return m.loadTokenMetadata(NormalizeToken(symbol))
}

// TokenList returns every registered symbol in sorted order.
func (m *Manager) TokenList() ([]string, error) {
	return m.loadTokenList()
}

func (m *Manager) requireToken(symbol string) (string, error) {
	normalized := NormalizeToken(symbol)
	meta, err := m.loadTokenMetadata(normalized)
	if err != nil {
		return "", err
	}
	if meta == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownToken, symbol)
	}
	return normalized, nil
}

// Balance returns the holdings of addr in symbol. Unknown tokens are an
// error; accounts that never held the token report zero.
func (m *Manager) Balance(addr crypto.Address, symbol string) (uint64, error) {
	normalized, err := m.requireToken(symbol)
	if err != nil {
		return 0, err
	}
	data, err := m.trie.Get(balanceKey(addr, normalized))
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	var amount uint64
	if err := rlp.DecodeBytes(data, &amount); err != nil {
		return 0, err
	}
	return amount, nil
}

// SetBalance overwrites the holdings of addr in symbol.
func (m *Manager) SetBalance(addr crypto.Address, symbol string, amount uint64) error {
	normalized, err := m.requireToken(symbol)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return err
	}
	return m.trie.Update(balanceKey(addr, normalized), encoded)
}

// Credit adds amount to the holdings of addr without any authority check.
// It is reserved for genesis allocation.
func (m *Manager) Credit(addr crypto.Address, symbol string, amount uint64) error {
	current, err := m.Balance(addr, symbol)
	if err != nil {
		return err
	}
	next, err := common.CheckedAdd(current, amount)
	if err != nil {
		return err
	}
	return m.SetBalance(addr, symbol, next)
}

// move debits from and credits to without any authority check.
func (m *Manager) move(from, to crypto.Address, symbol string, amount uint64) error {
	fromBalance, err := m.Balance(from, symbol)
	if err != nil {
		return err
	}
	if fromBalance < amount {
		return fmt.Errorf("%w: %s holds %d %s, needs %d", ErrInsufficientBalance, from, fromBalance, NormalizeToken(symbol), amount)
	}
	if from == to {
		return nil
	}
	toBalance, err := m.Balance(to, symbol)
	if err != nil {
		return err
	}
	credited, err := common.CheckedAdd(toBalance, amount)
	if err != nil {
		return err
	}
	if err := m.SetBalance(from, symbol, fromBalance-amount); err != nil {
		return err
	}
	return m.SetBalance(to, symbol, credited)
}

// KVPut stores the RLP encoding of value under the hashed key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.trie.Update(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.trie.Get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}
