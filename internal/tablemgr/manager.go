// Package tablemgr owns the collection of live tables and wires the runtime,
// event log, broadcast hub, and timeout scheduler together per table.
// Grounded on the teacher's internal/server.GameManager (registry of named
// game instances), generalized to full lifecycle and the abandonment grace
// timer, the way moonhole-HoldemIJ's internal/lobby.Lobby tracks idle tables.
package tablemgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/lox/moltpoker/internal/broadcast"
	"github.com/lox/moltpoker/internal/eventlog"
	"github.com/lox/moltpoker/internal/runtime"
	"github.com/lox/moltpoker/internal/stats"
	"github.com/lox/moltpoker/internal/store"
	"github.com/lox/moltpoker/internal/timeout"
)

// Options configures table creation defaults.
type Options struct {
	MaxSeats         int
	SmallBlind       int
	BigBlind         int
	InitialStack     int
	ActionTimeoutMs  int
	AbandonmentGrace time.Duration
}

// liveTable bundles a runtime.Table with its own broadcast hub.
type liveTable struct {
	table *runtime.Table
	hub   *broadcast.Hub
}

// Manager owns every live Table. It is the only thing that creates, ends,
// or looks up tables, per spec §4.9.
type Manager struct {
	mu     sync.RWMutex
	tables map[string]*liveTable
	opts   Options
	events *eventlog.Log
	store  store.Store
	clock  *timeout.Scheduler
	stats  *stats.Collector
	logger *log.Logger
}

// New constructs a Manager. stats may be nil to disable stats collection.
func New(opts Options, events *eventlog.Log, st store.Store, clock *timeout.Scheduler, statsCollector *stats.Collector, logger *log.Logger) *Manager {
	return &Manager{
		tables: make(map[string]*liveTable),
		opts:   opts,
		events: events,
		store:  st,
		clock:  clock,
		stats:  statsCollector,
		logger: logger,
	}
}

// Stats exposes the manager's stats collector for the REST surface.
func (m *Manager) Stats() *stats.Collector {
	return m.stats
}

// Create provisions a new table in the waiting state.
func (m *Manager) Create(ctx context.Context, seed string) (*runtime.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	cfg := runtime.Config{
		ID:              id,
		MaxSeats:        m.opts.MaxSeats,
		SmallBlind:      m.opts.SmallBlind,
		BigBlind:        m.opts.BigBlind,
		InitialStack:    m.opts.InitialStack,
		ActionTimeoutMs: m.opts.ActionTimeoutMs,
		Seed:            seed,
	}

	hub := broadcast.New()
	var recorder runtime.StatsRecorder
	if m.stats != nil {
		recorder = m.stats
	}
	t := runtime.NewTable(cfg, hub, m.events, &schedulerAdapter{m.clock}, recorder, m.logger)
	m.tables[id] = &liveTable{table: t, hub: hub}

	if m.store != nil {
		_ = m.store.CreateTable(ctx, store.TableRecord{
			ID: id, MaxSeats: cfg.MaxSeats, SmallBlind: cfg.SmallBlind, BigBlind: cfg.BigBlind,
			InitialStack: cfg.InitialStack, ActionTimeoutMs: cfg.ActionTimeoutMs, Seed: seed,
			Status: "waiting", CreatedAt: time.Now(),
		})
	}

	m.armAbandonmentGrace(id)
	return t, nil
}

// Get looks up a live table by ID.
func (m *Manager) Get(id string) (*runtime.Table, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lt, ok := m.tables[id]
	if !ok {
		return nil, false
	}
	return lt.table, true
}

// Hub returns the broadcast hub for a table.
func (m *Manager) Hub(id string) (*broadcast.Hub, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lt, ok := m.tables[id]
	if !ok {
		return nil, false
	}
	return lt.hub, true
}

// List returns every live table's ID and status.
func (m *Manager) List() map[string]runtime.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]runtime.Status, len(m.tables))
	for id, lt := range m.tables {
		status, _ := lt.table.StatusSnapshot()
		out[id] = status
	}
	return out
}

// SeatAgent seats an agent at a table, cancelling its abandonment grace.
func (m *Manager) SeatAgent(tableID, agentID string) (seatID int, err error) {
	t, ok := m.Get(tableID)
	if !ok {
		return 0, fmt.Errorf("table not found: %s", tableID)
	}
	seatID, err = t.Seat(agentID)
	if err != nil {
		return 0, err
	}
	m.cancelAbandonmentGrace(tableID)
	if m.store != nil {
		_ = m.store.SetSeat(context.Background(), store.SeatRecord{
			TableID: tableID, SeatID: seatID, AgentID: agentID, Stack: m.opts.InitialStack,
		})
		status, _ := t.StatusSnapshot()
		_ = m.store.UpdateTableStatus(context.Background(), tableID, status.String())
	}
	return seatID, nil
}

// UnseatAgent removes an agent from a table, (re)arming the abandonment
// grace timer if the table is now empty.
func (m *Manager) UnseatAgent(tableID string, seatID int) error {
	t, ok := m.Get(tableID)
	if !ok {
		return fmt.Errorf("table not found: %s", tableID)
	}
	if err := t.Unseat(seatID); err != nil {
		return err
	}
	if m.store != nil {
		_ = m.store.ClearSeat(context.Background(), tableID, seatID)
	}
	status, seated := t.StatusSnapshot()
	if m.store != nil {
		_ = m.store.UpdateTableStatus(context.Background(), tableID, status.String())
	}
	if seated == 0 {
		m.armAbandonmentGrace(tableID)
	}
	return nil
}

// End terminates a table immediately (admin action).
func (m *Manager) End(tableID string) error {
	m.mu.Lock()
	lt, ok := m.tables[tableID]
	if ok {
		delete(m.tables, tableID)
	}
	m.mu.Unlock()
	if !ok {
		return nil // ending an already-ended/unknown table is a success no-op
	}
	m.cancelAbandonmentGrace(tableID)
	if m.store != nil {
		_ = m.store.UpdateTableStatus(context.Background(), tableID, runtime.Ended.String())
	}
	return lt.table.End()
}

// armAbandonmentGrace schedules auto-end if the table stays empty, through
// the same quartz-backed timeout.Scheduler used for action timeouts so the
// grace window is mockable in tests rather than a raw time.After.
func (m *Manager) armAbandonmentGrace(tableID string) {
	m.clock.Arm(abandonmentGraceKey(tableID), 0, m.opts.AbandonmentGrace, func() {
		t, ok := m.Get(tableID)
		if !ok {
			return
		}
		if _, seated := t.StatusSnapshot(); seated == 0 {
			_ = m.End(tableID)
		}
	})
}

func (m *Manager) cancelAbandonmentGrace(tableID string) {
	m.clock.Cancel(abandonmentGraceKey(tableID))
}

// abandonmentGraceKey namespaces the grace timer separately from the
// per-table action-timeout key the same Scheduler instance also holds.
func abandonmentGraceKey(tableID string) string {
	return "abandon:" + tableID
}

// schedulerAdapter adapts the process-wide timeout.Scheduler to the
// runtime.TimeoutScheduler interface (seat parameter ignored — scheduler is
// keyed by table).
type schedulerAdapter struct {
	s *timeout.Scheduler
}

func (a *schedulerAdapter) Arm(tableID string, seat int, d time.Duration, onExpire func()) {
	a.s.Arm(tableID, seat, d, onExpire)
}

func (a *schedulerAdapter) Cancel(tableID string) {
	a.s.Cancel(tableID)
}
