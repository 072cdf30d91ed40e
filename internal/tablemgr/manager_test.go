package tablemgr

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"

	"github.com/lox/moltpoker/internal/eventlog"
	"github.com/lox/moltpoker/internal/stats"
	"github.com/lox/moltpoker/internal/store"
	"github.com/lox/moltpoker/internal/timeout"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func newTestManager(t *testing.T, grace time.Duration) (*Manager, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	m := New(Options{
		MaxSeats: 6, SmallBlind: 1, BigBlind: 2, InitialStack: 100,
		ActionTimeoutMs: 20000, AbandonmentGrace: grace,
	}, eventlog.New(eventlog.NewMemory()), st, timeout.New(), stats.New(), testLogger())
	return m, st
}

func newTestManagerWithClock(t *testing.T, clock quartz.Clock, grace time.Duration) *Manager {
	t.Helper()
	return New(Options{
		MaxSeats: 6, SmallBlind: 1, BigBlind: 2, InitialStack: 100,
		ActionTimeoutMs: 20000, AbandonmentGrace: grace,
	}, eventlog.New(eventlog.NewMemory()), store.NewMemory(), timeout.NewWithClock(clock), stats.New(), testLogger())
}

func TestSeatAgentPersistsSeat(t *testing.T) {
	m, st := newTestManager(t, time.Hour)
	ctx := context.Background()

	tbl, err := m.Create(ctx, "s1")
	require.NoError(t, err)

	seatID, err := m.SeatAgent(tbl.Config.ID, "agent-a")
	require.NoError(t, err)

	seats, err := st.GetSeats(ctx, tbl.Config.ID)
	require.NoError(t, err)
	require.Len(t, seats, 1)
	require.Equal(t, seatID, seats[0].SeatID)
	require.Equal(t, "agent-a", seats[0].AgentID)
}

func TestUnseatAgentClearsPersistedSeat(t *testing.T) {
	m, st := newTestManager(t, time.Hour)
	ctx := context.Background()

	tbl, err := m.Create(ctx, "s1")
	require.NoError(t, err)

	seatID, err := m.SeatAgent(tbl.Config.ID, "agent-a")
	require.NoError(t, err)

	require.NoError(t, m.UnseatAgent(tbl.Config.ID, seatID))

	seats, err := st.GetSeats(ctx, tbl.Config.ID)
	require.NoError(t, err)
	require.Empty(t, seats)
}

func TestAbandonmentGraceEndsEmptyTable(t *testing.T) {
	clock := quartz.NewMock(t)
	m := newTestManagerWithClock(t, clock, time.Minute)
	ctx := context.Background()

	tbl, err := m.Create(ctx, "s1")
	require.NoError(t, err)
	tableID := tbl.Config.ID

	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	clock.Advance(time.Minute).MustWait(waitCtx)

	_, ok := m.Get(tableID)
	require.False(t, ok, "table should auto-end after its abandonment grace elapses")
}

func TestEndTableIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t, time.Hour)
	ctx := context.Background()

	tbl, err := m.Create(ctx, "s1")
	require.NoError(t, err)

	require.NoError(t, m.End(tbl.Config.ID))
	require.NoError(t, m.End(tbl.Config.ID), "ending an already-ended table is a success no-op")
}
