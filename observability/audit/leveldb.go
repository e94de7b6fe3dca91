package audit

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var recordPrefix = []byte("audit/")

// LevelDBStore keeps records under audit/<big-endian sequence> so iteration
// order is sequence order.
type LevelDBStore struct {
	db *leveldb.DB
}

// NewLevelDBStore opens (or creates) a journal database at path.
func NewLevelDBStore(path string) (*LevelDBStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("audit journal path required")
	}
	db, err := leveldb.OpenFile(filepath.Clean(trimmed), nil)
	if err != nil {
		return nil, fmt.Errorf("open audit journal: %w", err)
	}
	return &LevelDBStore{db: db}, nil
}

func recordKey(seq uint64) []byte {
	key := make([]byte, len(recordPrefix)+8)
	copy(key, recordPrefix)
	binary.BigEndian.PutUint64(key[len(recordPrefix):], seq)
	return key
}

func (s *LevelDBStore) Append(rec Record) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("audit journal not open")
	}
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}
	if err := s.db.Put(recordKey(rec.Sequence), encoded, nil); err != nil {
		return fmt.Errorf("store audit record: %w", err)
	}
	return nil
}

func (s *LevelDBStore) List(ctx context.Context, filter Filter) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("audit journal not open")
	}
	iter := s.db.NewIterator(util.BytesPrefix(recordPrefix), nil)
	defer iter.Release()

	out := make([]Record, 0)
	for ok := iter.Seek(recordKey(filter.After + 1)); ok; ok = iter.Next() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decode audit record: %w", err)
		}
		if !filter.matches(rec) {
			continue
		}
		out = append(out, rec)
		if len(out) == filter.limit() {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return out, nil
}

func (s *LevelDBStore) LastSequence() (uint64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("audit journal not open")
	}
	iter := s.db.NewIterator(util.BytesPrefix(recordPrefix), nil)
	defer iter.Release()
	if !iter.Last() {
		return 0, iter.Error()
	}
	key := iter.Key()
	if len(key) != len(recordPrefix)+8 {
		return 0, fmt.Errorf("malformed audit key %x", key)
	}
	return binary.BigEndian.Uint64(key[len(recordPrefix):]), nil
}

// Close releases the underlying LevelDB resources.
func (s *LevelDBStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
