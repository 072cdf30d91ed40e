package runtime

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"

	"github.com/lox/moltpoker/internal/eventlog"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

type recordingPublisher struct {
	snapshots []Snapshot
}

func (p *recordingPublisher) Publish(s Snapshot) { p.snapshots = append(p.snapshots, s) }

type clockScheduler struct {
	clock quartz.Clock
	timer *quartz.Timer
}

func (s *clockScheduler) Arm(tableID string, seat int, d time.Duration, onExpire func()) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.clock.AfterFunc(d, onExpire)
}

func (s *clockScheduler) Cancel(tableID string) {
	if s.timer != nil {
		s.timer.Stop()
	}
}

func newTestTable(t *testing.T, clock quartz.Clock) (*Table, *eventlog.Log, *eventlog.Memory) {
	t.Helper()
	pub := &recordingPublisher{}
	mem := eventlog.NewMemory()
	events := eventlog.New(mem)
	tbl := NewTable(Config{
		ID: "t1", MaxSeats: 6, SmallBlind: 1, BigBlind: 2, InitialStack: 100,
		ActionTimeoutMs: 1000, Seed: "s1",
	}, pub, events, &clockScheduler{clock: clock}, nil, testLogger())
	t.Cleanup(tbl.Close)
	return tbl, events, mem
}

func TestTableTimeoutAppliesDefaultAction(t *testing.T) {
	clock := quartz.NewMock(t)
	tbl, _, mem := newTestTable(t, clock)

	_, err := tbl.Seat("agent-a")
	require.NoError(t, err)
	_, err = tbl.Seat("agent-b")
	require.NoError(t, err)
	_, err = tbl.Seat("agent-c")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	clock.Advance(1 * time.Second).MustWait(ctx)

	events, err := mem.ListEvents(context.Background(), "t1", 1)
	require.NoError(t, err)

	var sawTimeout bool
	for _, e := range events {
		if e.Type == "PLAYER_TIMEOUT" {
			sawTimeout = true
		}
	}
	require.True(t, sawTimeout, "expected a PLAYER_TIMEOUT event after the clock advanced past the action timeout")
}

func TestTableHeadsUpFoldAwardsPot(t *testing.T) {
	clock := quartz.NewReal()
	tbl, _, _ := newTestTable(t, clock)

	_, err := tbl.Seat("agent-a")
	require.NoError(t, err)
	_, err = tbl.Seat("agent-b")
	require.NoError(t, err)

	snap := tbl.CurrentSnapshot(-1)
	sbSeat := snap.CurrentSeat

	err = tbl.SubmitAction(Action{SeatID: sbSeat, Kind: Fold, TurnToken: snap.TurnToken})
	require.NoError(t, err)

	status, seated := tbl.StatusSnapshot()
	require.Equal(t, Running, status)
	require.Equal(t, 2, seated)

	// The next hand has already posted blinds; stack plus current bet is each
	// seat's result from the folded hand: SB lost 1, BB won it.
	next := tbl.CurrentSnapshot(-1)
	require.Len(t, next.Players, 2)
	for _, pv := range next.Players {
		if pv.SeatID == sbSeat {
			require.Equal(t, 99, pv.Stack+pv.CurrentBet)
		} else {
			require.Equal(t, 101, pv.Stack+pv.CurrentBet)
		}
	}
}
