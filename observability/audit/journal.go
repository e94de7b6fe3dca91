package audit

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"arbvault/core/events"
)

// DefaultListLimit caps List when the filter sets no limit.
const DefaultListLimit = 100

// Record is one committed event as kept by the journal.
type Record struct {
	ID         string            `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt time.Time         `json:"recordedAt"`
}

// Filter selects records for List. Records are returned in sequence order
// starting after After.
type Filter struct {
	Type  string
	After uint64
	Limit int
}

func (f Filter) matches(rec Record) bool {
	if rec.Sequence <= f.After {
		return false
	}
	return f.Type == "" || strings.EqualFold(f.Type, rec.Type)
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// Store persists records.
type Store interface {
	Append(rec Record) error
	List(ctx context.Context, filter Filter) ([]Record, error)
	LastSequence() (uint64, error)
	Close() error
}

// Journal is an events.Emitter that numbers and stores every event it is
// handed. The runtime only hands it events of committed calls.
type Journal struct {
	mu     sync.Mutex
	store  Store
	seq    uint64
	now    func() time.Time
	logger *slog.Logger
}

var _ events.Emitter = (*Journal)(nil)

// NewJournal resumes numbering after the last record in store.
func NewJournal(store Store, logger *slog.Logger) (*Journal, error) {
	last, err := store.LastSequence()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{store: store, seq: last, now: time.Now, logger: logger}, nil
}

// Emit implements events.Emitter. Storage failures are logged; they never
// reach the call that produced the event, which has already committed.
func (j *Journal) Emit(evt events.Event) {
	record := events.ToRecord(evt)
	if record == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	rec := Record{
		ID:         uuid.NewString(),
		Sequence:   j.seq + 1,
		Type:       record.Type,
		Attributes: record.Attributes,
		RecordedAt: j.now().UTC(),
	}
	if err := j.store.Append(rec); err != nil {
		j.logger.Error("audit append failed", "type", rec.Type, "error", err)
		return
	}
	j.seq = rec.Sequence
}

func (j *Journal) List(ctx context.Context, filter Filter) ([]Record, error) {
	return j.store.List(ctx, filter)
}

// Sequence returns the number of the last stored record.
func (j *Journal) Sequence() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

func (j *Journal) Close() error {
	return j.store.Close()
}

// MemoryStore keeps records in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, filter Filter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0)
	for _, rec := range m.records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !filter.matches(rec) {
			continue
		}
		out = append(out, rec)
		if len(out) == filter.limit() {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) LastSequence() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.records) == 0 {
		return 0, nil
	}
	return m.records[len(m.records)-1].Sequence, nil
}

func (m *MemoryStore) Close() error { return nil }
