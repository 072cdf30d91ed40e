// Package eventlog implements the append-only per-table event log: gapless,
// strictly-increasing seq per table, replayable from any seq. Grounded on the
// teacher's internal/server/hand_history manager+monitor split, generalized
// from "hand history for display" into the spec's durable event source of
// truth for replay and reconnect.
package eventlog

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Event is one entry in a table's append-only log.
type Event struct {
	TableID    string          `json:"table_id"`
	Seq        int64           `json:"seq"`
	HandNumber int64           `json:"hand_number,omitempty"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Store is the narrow persistence interface the runtime depends on. No SQL
// (or any storage detail) leaks past this interface.
type Store interface {
	GetLastEventSeq(ctx context.Context, tableID string) (int64, error)
	CreateEvent(ctx context.Context, e Event) error
	ListEvents(ctx context.Context, tableID string, fromSeq int64) ([]Event, error)
}

// Memory is an in-memory Store, the default when no durable store is
// configured. It is safe for concurrent use across tables; writes for a
// single table are externally serialized by that table's actor loop, so the
// mutex here only protects the map structure itself.
type Memory struct {
	mu     sync.Mutex
	lastSeq map[string]int64
	events  map[string][]Event
}

// NewMemory constructs an empty in-memory event store.
func NewMemory() *Memory {
	return &Memory{
		lastSeq: make(map[string]int64),
		events:  make(map[string][]Event),
	}
}

func (m *Memory) GetLastEventSeq(_ context.Context, tableID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSeq[tableID], nil
}

func (m *Memory) CreateEvent(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSeq[e.TableID]++
	e.Seq = m.lastSeq[e.TableID]
	m.events[e.TableID] = append(m.events[e.TableID], e)
	return nil
}

func (m *Memory) ListEvents(_ context.Context, tableID string, fromSeq int64) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.events[tableID]
	out := make([]Event, 0, len(all))
	for _, e := range all {
		if e.Seq >= fromSeq {
			out = append(out, e)
		}
	}
	return out, nil
}

// Log is the runtime-facing appender: it owns seq allocation for a table by
// delegating to Store, and resumes from Store's last persisted seq on
// startup, per spec §4.4.
type Log struct {
	store Store
}

// New wraps a Store as a runtime.EventAppender.
func New(store Store) *Log {
	return &Log{store: store}
}

// Append appends a typed event for a table and returns its allocated seq.
func (l *Log) Append(ctx context.Context, tableID string, eventType string, handNumber int64, payload any) (int64, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	e := Event{
		TableID:    tableID,
		HandNumber: handNumber,
		Type:       eventType,
		Payload:    raw,
		CreatedAt:  time.Now(),
	}
	if err := l.store.CreateEvent(ctx, e); err != nil {
		return 0, err
	}
	seq, err := l.store.GetLastEventSeq(ctx, tableID)
	return seq, err
}

// Replay returns events for a table from fromSeq onward (inclusive), for
// reconnect-replay (E6) and after-the-fact hand review.
func (l *Log) Replay(ctx context.Context, tableID string, fromSeq int64) ([]Event, error) {
	return l.store.ListEvents(ctx, tableID, fromSeq)
}
