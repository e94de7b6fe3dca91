package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"arbvault/core/events"
	"arbvault/core/genesis"
	"arbvault/core/state"
	"arbvault/crypto"
	"arbvault/observability"
	"arbvault/storage"
	"arbvault/storage/trie"
)

var headKey = []byte("state/head")

// ErrGenesisApplied is returned by Genesis when state already exists.
var ErrGenesisApplied = errors.New("runtime: genesis already applied")

// Head is the last committed state root and the number of commits that led
// to it.
type Head struct {
	Root   gethcommon.Hash
	Height uint64
}

// Runtime is the transactional boundary around the state trie. Calls are
// serialized; each one runs on a copy of the canonical trie that replaces
// it only when the call succeeds.
type Runtime struct {
	mu      sync.Mutex
	db      storage.Database
	trie    *trie.Trie
	height  uint64
	emitter events.Emitter
	metrics *observability.RuntimeMetrics
}

// NewRuntime opens the state recorded as head in db, or an empty state when
// db has none.
func NewRuntime(db storage.Database, emitter events.Emitter) (*Runtime, error) {
	if db == nil {
		return nil, fmt.Errorf("runtime: database required")
	}
	head, ok, err := loadHead(db)
	if err != nil {
		return nil, err
	}
	var root []byte
	if ok {
		root = head.Root.Bytes()
	}
	stateTrie, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("open state trie: %w", err)
	}
	if err := state.EnsureStateVersion(stateTrie); err != nil {
		return nil, err
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	r := &Runtime{
		db:      db,
		trie:    stateTrie,
		height:  head.Height,
		emitter: emitter,
		metrics: observability.Runtime(),
	}
	r.metrics.SetHeight(r.height)
	return r, nil
}

func loadHead(db storage.Database) (Head, bool, error) {
	raw, err := db.Get(headKey)
	if errors.Is(err, storage.ErrNotFound) {
		return Head{}, false, nil
	}
	if err != nil {
		return Head{}, false, fmt.Errorf("load head: %w", err)
	}
	var head Head
	if err := rlp.DecodeBytes(raw, &head); err != nil {
		return Head{}, false, fmt.Errorf("decode head: %w", err)
	}
	return head, true, nil
}

// Head returns the last committed root and height.
func (r *Runtime) Head() Head {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Head{Root: r.trie.Root(), Height: r.height}
}

// Execute runs fn as one atomic call signed by signers and returns the head
// the call committed. Writes and events of fn become visible only if fn
// returns nil and the commit succeeds; otherwise the scratch state is
// dropped and the canonical state is left untouched.
func (r *Runtime) Execute(ctx context.Context, signers []crypto.Address, fn func(*state.Tx) error) (Head, error) {
	if err := ctx.Err(); err != nil {
		return Head{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	scratch := r.trie.Copy()
	tx := state.NewTx(state.NewManager(scratch), signers...)
	if err := fn(tx); err != nil {
		return Head{}, err
	}
	if err := r.commit(scratch); err != nil {
		return Head{}, err
	}
	for _, evt := range tx.Events() {
		r.emitter.Emit(evt)
		r.metrics.RecordEvent(evt.EventType())
	}
	return Head{Root: r.trie.Root(), Height: r.height}, nil
}

// View runs fn against a copy of the committed state. Nothing fn writes is
// kept. Views are serialized with calls since trie copies share nodes.
func (r *Runtime) View(ctx context.Context, fn func(*state.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(state.NewTx(state.NewManager(r.trie.Copy())))
}

// Genesis applies spec to an empty state. It fails with ErrGenesisApplied
// once any call has been committed.
func (r *Runtime) Genesis(spec *genesis.Spec) error {
	if spec == nil {
		return fmt.Errorf("runtime: genesis spec required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.height > 0 {
		return ErrGenesisApplied
	}
	scratch := r.trie.Copy()
	if err := genesis.Apply(spec, state.NewManager(scratch)); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	return r.commit(scratch)
}

// commit persists scratch, records it as head and swaps it in. Caller holds
// r.mu.
func (r *Runtime) commit(scratch *trie.Trie) error {
	height := r.height + 1
	root, err := scratch.Commit(height)
	if err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	encoded, err := rlp.EncodeToBytes(Head{Root: root, Height: height})
	if err != nil {
		return fmt.Errorf("encode head: %w", err)
	}
	if err := r.db.Put(headKey, encoded); err != nil {
		return fmt.Errorf("store head: %w", err)
	}
	r.trie = scratch
	r.height = height
	r.metrics.SetHeight(height)
	return nil
}
