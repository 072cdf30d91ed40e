package transport

import (
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/lox/moltpoker/internal/broadcast"
	"github.com/lox/moltpoker/internal/runtime"
	"github.com/lox/moltpoker/internal/session"
)

// TableLookup is the subset of *tablemgr.Manager the gateway depends on, kept
// as an interface so the gateway can be tested without a live Manager.
type TableLookup interface {
	Get(tableID string) (*runtime.Table, bool)
	Hub(tableID string) (*broadcast.Hub, bool)
}

// Gateway serves the duplex websocket channel at /v1/ws, per spec §6.
type Gateway struct {
	sessions *session.Registry
	tables   TableLookup
	logger   *log.Logger
}

func NewGateway(sessions *session.Registry, tables TableLookup, logger *log.Logger) *Gateway {
	return &Gateway{sessions: sessions, tables: tables, logger: logger}
}

// ServeHTTP upgrades the request and attaches it to the requested session's
// table and seat, or to a read-only observer feed if no session is supplied.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("session")

	if token == "" {
		g.serveObserver(w, r)
		return
	}

	sess, ok := g.sessions.Lookup(token)
	if !ok {
		http.Error(w, "invalid or expired session", http.StatusUnauthorized)
		return
	}

	table, ok := g.tables.Get(sess.TableID)
	if !ok {
		http.Error(w, "table not found", http.StatusNotFound)
		return
	}
	hub, ok := g.tables.Hub(sess.TableID)
	if !ok {
		http.Error(w, "table not found", http.StatusNotFound)
		return
	}

	sub := hub.SubscribeSeat(sess.SeatID)
	conn, err := NewConnection(w, r, sess, table, sub, g.sessions, g.logger)
	if err != nil {
		hub.Unsubscribe(sub)
		return
	}
	g.sessions.Refresh(token)
	defer hub.Unsubscribe(sub)
	conn.Start()
}

func (g *Gateway) serveObserver(w http.ResponseWriter, r *http.Request) {
	tableID := r.URL.Query().Get("table")
	table, ok := g.tables.Get(tableID)
	if !ok {
		http.Error(w, "table not found", http.StatusNotFound)
		return
	}
	hub, ok := g.tables.Hub(tableID)
	if !ok {
		http.Error(w, "table not found", http.StatusNotFound)
		return
	}
	sub := hub.SubscribeObserver()
	conn, err := NewConnection(w, r, nil, table, sub, nil, g.logger)
	if err != nil {
		hub.Unsubscribe(sub)
		return
	}
	defer hub.Unsubscribe(sub)
	conn.Start()
}
