package transport

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/lox/moltpoker/internal/broadcast"
	"github.com/lox/moltpoker/internal/eventlog"
	"github.com/lox/moltpoker/internal/runtime"
	"github.com/lox/moltpoker/internal/session"
	"github.com/lox/moltpoker/internal/timeout"
)

type fakeLookup struct {
	table *runtime.Table
	hub   *broadcast.Hub
}

func (f *fakeLookup) Get(tableID string) (*runtime.Table, bool) { return f.table, true }
func (f *fakeLookup) Hub(tableID string) (*broadcast.Hub, bool) { return f.hub, true }

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func newHeadsUpTable(t *testing.T) (*runtime.Table, *broadcast.Hub) {
	t.Helper()
	hub := broadcast.New()
	events := eventlog.New(eventlog.NewMemory())
	clock := timeout.New()
	cfg := runtime.Config{ID: "t1", MaxSeats: 6, SmallBlind: 1, BigBlind: 2, InitialStack: 100, ActionTimeoutMs: 30000, Seed: "s1"}
	tbl := runtime.NewTable(cfg, hub, events, clock, nil, testLogger())
	_, err := tbl.Seat("agent-a")
	require.NoError(t, err)
	_, err = tbl.Seat("agent-b")
	require.NoError(t, err)
	return tbl, hub
}

func TestGatewayObserverReceivesGameState(t *testing.T) {
	tbl, hub := newHeadsUpTable(t)
	defer tbl.Close()

	gw := NewGateway(session.New(time.Hour), &fakeLookup{table: tbl, hub: hub}, testLogger())
	ts := httptest.NewServer(http.HandlerFunc(gw.ServeHTTP))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/?table=t1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(data), "game_state")
}

func TestGatewaySeatedSessionReceivesPong(t *testing.T) {
	tbl, hub := newHeadsUpTable(t)
	defer tbl.Close()

	sessions := session.New(time.Hour)
	sess := sessions.Create("agent-a", "t1", 0)

	gw := NewGateway(sessions, &fakeLookup{table: tbl, hub: hub}, testLogger())
	ts := httptest.NewServer(http.HandlerFunc(gw.ServeHTTP))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/?session=" + sess.Token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)

	err = conn.WriteJSON(map[string]any{"type": "ping"})
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < 5; i++ {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		if strings.Contains(string(data), "pong") {
			return
		}
	}
	t.Fatal("never received pong")
}
