// Package transport implements the duplex websocket channel: upgrade,
// framing, ping/pong keepalive, and the per-connection read/write pumps.
// Grounded on the teacher's internal/server/connection.go (constants,
// panic-recover-on-closed-channel send) and moonhole-HoldemIJ's gateway.go
// (readPump/writePump split).
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/moltpoker/internal/broadcast"
	"github.com/lox/moltpoker/internal/protocol"
	"github.com/lox/moltpoker/internal/runtime"
	"github.com/lox/moltpoker/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 40 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TableHandle is the subset of *runtime.Table the gateway needs to submit
// actions and fetch the initial snapshot, kept as an interface so connection
// tests can fake it.
type TableHandle interface {
	SubmitAction(a runtime.Action) error
	CurrentSnapshot(seatID int) runtime.Snapshot
}

// Connection is one upgraded websocket client: an agent's seat connection or
// an observer's read-only connection.
type Connection struct {
	conn   *websocket.Conn
	send   chan []byte
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once

	sess      *session.Session // nil for observers
	table     TableHandle
	sub       *broadcast.Subscriber
	refresher SessionRefresher
}

// SessionRefresher extends a session's expiry on each accepted action, per
// spec §4.7 ("expiry is refreshed on each accepted action within a
// configurable window").
type SessionRefresher interface {
	Refresh(token string)
}

// NewConnection upgrades an HTTP request to a websocket connection.
func NewConnection(w http.ResponseWriter, r *http.Request, sess *session.Session, table TableHandle, sub *broadcast.Subscriber, refresher SessionRefresher, logger *log.Logger) (*Connection, error) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		conn:      wsConn,
		send:      make(chan []byte, 64),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		sess:      sess,
		table:     table,
		sub:       sub,
		refresher: refresher,
	}, nil
}

// Start sends the initial full snapshot (spec: "first server frame after
// connect is a full game_state snapshot"), then launches the read and write
// pumps and, if sub is set, the snapshot forwarder. It blocks until the
// connection closes.
func (c *Connection) Start() {
	if c.table != nil {
		seatID := -1
		if c.sess != nil {
			seatID = c.sess.SeatID
		}
		c.sendSnapshot(c.table.CurrentSnapshot(seatID))
	}

	go c.writePump()
	if c.sub != nil {
		go c.forwardSnapshots()
	}
	c.readPump() // blocks; on return, the connection is done
}

func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		c.conn.Close()
	})
}

func (c *Connection) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleMessage(data)
	}
}

func (c *Connection) handleMessage(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		c.sendError(protocol.ValidationError, "malformed message")
		return
	}

	switch m := msg.(type) {
	case protocol.ActionMessage:
		c.handleAction(m)
	case protocol.PingMessage:
		c.sendJSON(protocol.PongMessage{Type: protocol.TypePong})
	default:
		c.sendError(protocol.ValidationError, "unknown message type")
	}
}

func (c *Connection) handleAction(m protocol.ActionMessage) {
	if c.sess == nil || c.table == nil {
		c.sendError(protocol.Unauthorized, "observers cannot act")
		return
	}

	kind, ok := parseKind(m.Kind)
	if !ok {
		c.sendError(protocol.InvalidAction, "unknown action kind")
		return
	}

	err := c.table.SubmitAction(runtime.Action{
		SeatID:    c.sess.SeatID,
		Kind:      kind,
		Amount:    m.Amount,
		TurnToken: m.TurnToken,
	})
	if err != nil {
		c.sendError(classifyActionError(err), err.Error())
		return
	}
	if c.refresher != nil {
		c.refresher.Refresh(c.sess.Token)
	}
}

func parseKind(s string) (runtime.ActionKind, bool) {
	switch s {
	case "fold":
		return runtime.Fold, true
	case "check":
		return runtime.Check, true
	case "call":
		return runtime.Call, true
	case "raise_to":
		return runtime.RaiseTo, true
	default:
		return 0, false
	}
}

func classifyActionError(err error) protocol.ErrorCode {
	switch err {
	case runtime.ErrNotYourTurn:
		return protocol.NotYourTurn
	case runtime.ErrStaleTurnToken:
		return protocol.StaleSeq
	case runtime.ErrIllegalAction:
		return protocol.InvalidAction
	case runtime.ErrHandComplete:
		return protocol.InvalidTableState
	default:
		return protocol.InvalidAction
	}
}

func (c *Connection) forwardSnapshots() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case code, ok := <-c.sub.Closed:
			if ok {
				c.sendError(protocol.ErrorCode(code), "subscriber disconnected")
			}
			c.Close()
			return
		case snap, ok := <-c.sub.C:
			if !ok {
				return
			}
			c.sendSnapshot(snap)
		}
	}
}

func (c *Connection) sendSnapshot(snap runtime.Snapshot) {
	players := make([]protocol.PlayerView, 0, len(snap.Players))
	for _, p := range snap.Players {
		players = append(players, protocol.PlayerView{
			Seat: p.SeatID, AgentID: p.AgentID, Stack: p.Stack,
			CurrentBet: p.CurrentBet, Folded: p.Folded, AllIn: p.AllIn, HoleCards: p.HoleCards,
		})
	}

	payload := protocol.GameStatePayload{
		TableID: snap.TableID, HandNumber: snap.HandNumber, Phase: snap.Phase.String(),
		Community: snap.Community, Pot: snap.Pot, CurrentSeat: snap.CurrentSeat, Players: players,
	}

	if snap.HandResult != nil {
		winners := map[string]int{}
		for _, potWinners := range snap.HandResult.Winners {
			for seat, amt := range potWinners {
				winners[jsonSeatKey(seat)] += amt
			}
		}
		pots := make([]protocol.PotPayload, 0, len(snap.HandResult.Pots))
		for _, p := range snap.HandResult.Pots {
			seats := make([]int, 0, len(p.Eligible))
			for s := range p.Eligible {
				seats = append(seats, s)
			}
			pots = append(pots, protocol.PotPayload{Amount: p.Amount, Eligible: seats})
		}
		c.sendJSON(protocol.HandCompleteMessage{
			Type: protocol.TypeHandComplete, StateSeq: snap.StateSeq,
			Payload: protocol.HandCompletePayload{HandNumber: snap.HandNumber, Board: snap.Community, Pots: pots, Winners: winners},
		})
		return
	}

	c.sendJSON(protocol.GameStateMessage{
		Type: protocol.TypeGameState, StateSeq: snap.StateSeq, TurnToken: snap.TurnToken, Payload: payload,
	})
}

func jsonSeatKey(seat int) string {
	return strconv.Itoa(seat)
}

func (c *Connection) sendError(code protocol.ErrorCode, msg string) {
	c.sendJSON(protocol.ErrorMessage{Type: protocol.TypeError, Code: code, Message: msg})
}

func (c *Connection) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("marshal outbound message", "err", err)
		return
	}
	// c.send may already be closed by Close on another goroutine.
	defer func() { _ = recover() }()
	select {
	case c.send <- data:
	default:
		c.logger.Warn("dropping outbound frame: send buffer full")
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}
