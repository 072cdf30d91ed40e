package runtime

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"
)

// Status is the lifecycle status of a Table.
type Status int

const (
	Waiting Status = iota
	Running
	Ended
)

func (s Status) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Running:
		return "running"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// Config is a table's static configuration.
type Config struct {
	ID              string
	MaxSeats        int
	SmallBlind      int
	BigBlind        int
	InitialStack    int
	ActionTimeoutMs int
	Seed            string
}

// Snapshot is a point-in-time, seat-scoped view of the table handed to the
// broadcast hub. Hole cards for seats other than Seat are always nil.
type Snapshot struct {
	TableID     string
	StateSeq    int64
	Seat        int // -1 for the public/observer snapshot
	HandNumber  int64
	Phase       Phase
	Community   []string
	Pot         int
	CurrentSeat int
	TurnToken   string
	Players     []PlayerView
	HandResult  *HandResult
}

// PlayerView is the public-or-own view of a seated player.
type PlayerView struct {
	SeatID     int
	AgentID    string
	Stack      int
	CurrentBet int
	Folded     bool
	AllIn      bool
	HoleCards  []string // populated only for the owning seat's snapshot
}

// Publisher hands a freshly produced snapshot to the broadcast hub. It must
// not block the table's actor loop.
type Publisher interface {
	Publish(Snapshot)
}

// EventAppender appends a typed event for a table and returns its seq. See
// internal/eventlog for the concrete implementation backing this.
type EventAppender interface {
	Append(ctx context.Context, tableID string, eventType string, handNumber int64, payload any) (seq int64, err error)
}

// TimeoutScheduler arms and cancels the single pending per-seat timeout.
type TimeoutScheduler interface {
	Arm(tableID string, seat int, d time.Duration, onExpire func())
	Cancel(tableID string)
}

// StatsRecorder receives aggregate per-agent/per-table counters as hands
// complete and seats time out. It is optional: a nil recorder disables
// stats collection entirely.
type StatsRecorder interface {
	RecordHandOutcome(tableID string, netChips map[string]int)
	RecordTimeout(tableID, agentID string)
}

// Table is a single poker table: its actor loop is the sole writer of all
// table and hand state, which is the spec's "action lock" — a single-writer
// contract, not a recursive mutex.
type Table struct {
	Config Config
	logger *log.Logger

	publisher Publisher
	events    EventAppender
	timeouts  TimeoutScheduler
	stats     StatsRecorder

	status     Status
	seats      map[int]*seat
	dealerSeat int
	handNumber int64
	current    *Hand
	stateSeq   int64

	cmds chan func()
	done chan struct{}
}

type seat struct {
	AgentID string
	Stack   int
}

// NewTable constructs a table and starts its actor loop. stats may be nil to
// disable stats collection.
func NewTable(cfg Config, pub Publisher, events EventAppender, timeouts TimeoutScheduler, stats StatsRecorder, logger *log.Logger) *Table {
	t := &Table{
		Config:     cfg,
		logger:     logger.With("table_id", cfg.ID),
		publisher:  pub,
		events:     events,
		timeouts:   timeouts,
		stats:      stats,
		status:     Waiting,
		seats:      make(map[int]*seat),
		dealerSeat: -1,
		cmds:       make(chan func(), 64),
		done:       make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *Table) run() {
	for {
		select {
		case fn := <-t.cmds:
			fn()
		case <-t.done:
			return
		}
	}
}

// Close stops the table's actor loop.
func (t *Table) Close() {
	close(t.done)
}

// submit runs fn on the actor loop and blocks for its result, providing the
// strict-FIFO single-writer semantics the spec requires for the action lock.
func (t *Table) submit(fn func() error) error {
	reply := make(chan error, 1)
	t.cmds <- func() {
		reply <- fn()
	}
	return <-reply
}

// Seat seats an agent, transitioning the table to running once 2+ are seated.
func (t *Table) Seat(agentID string) (seatID int, err error) {
	err = t.submit(func() error {
		if t.status == Ended {
			return fmt.Errorf("table ended")
		}
		if len(t.seats) >= t.Config.MaxSeats {
			return fmt.Errorf("table full")
		}
		seatID = t.firstFreeSeat()
		t.seats[seatID] = &seat{AgentID: agentID, Stack: t.Config.InitialStack}
		t.appendEvent("PLAYER_JOINED", map[string]any{"seat": seatID, "agent_id": agentID})
		if len(t.seats) >= 2 && t.status == Waiting {
			t.status = Running
			t.appendEvent("TABLE_STARTED", nil)
			t.startNextHandLocked()
		}
		return nil
	})
	return seatID, err
}

func (t *Table) firstFreeSeat() int {
	for s := 0; s < t.Config.MaxSeats; s++ {
		if _, ok := t.seats[s]; !ok {
			return s
		}
	}
	return -1
}

// Unseat removes an agent from a seat.
func (t *Table) Unseat(seatID int) error {
	return t.submit(func() error {
		if _, ok := t.seats[seatID]; !ok {
			return fmt.Errorf("not seated")
		}
		delete(t.seats, seatID)
		t.appendEvent("PLAYER_LEFT", map[string]any{"seat": seatID})
		if len(t.seats) < 2 && t.status == Running {
			t.status = Waiting
		}
		return nil
	})
}

// SubmitAction validates and applies an action to the current hand.
func (t *Table) SubmitAction(a Action) error {
	return t.submit(func() error {
		if t.current == nil {
			return fmt.Errorf("no hand in progress")
		}
		prevPhase := t.current.Phase
		prevBoardLen := len(t.current.Community)
		completed, err := t.current.Apply(a)
		if err != nil {
			return err
		}
		t.appendEvent("PLAYER_ACTION", map[string]any{
			"seat": a.SeatID, "kind": a.Kind.String(), "amount": a.Amount, "is_timeout": a.IsTimeout,
		})
		t.appendStreetEvents(prevPhase, prevBoardLen)
		t.syncSeatStacks()
		if completed {
			t.finishHandLocked()
		} else {
			t.armTimeoutLocked()
			t.publishLocked(-1)
			for seatID := range t.seats {
				t.publishLocked(seatID)
			}
		}
		return nil
	})
}

// appendStreetEvents emits STREET_DEALT/SHOWDOWN events for any phase
// transition the just-applied action caused, per the spec's event taxonomy.
func (t *Table) appendStreetEvents(prevPhase Phase, prevBoardLen int) {
	if t.current.Phase == prevPhase {
		return
	}
	if len(t.current.Community) > prevBoardLen {
		t.appendEvent("STREET_DEALT", map[string]any{
			"phase":     t.current.Phase.String(),
			"community": cardStrings(t.current.Community),
		})
	}
	if t.current.Phase == Showdown || (prevPhase != Complete && t.current.Phase == Complete && t.current.Result != nil && t.current.Result.ShowdownHand != nil) {
		t.appendEvent("SHOWDOWN", map[string]any{"hands": t.current.Result.ShowdownHand})
	}
}

func (t *Table) syncSeatStacks() {
	for _, p := range t.current.Players {
		if s, ok := t.seats[p.SeatID]; ok {
			s.Stack = p.Stack
		}
	}
}

func (t *Table) finishHandLocked() {
	t.timeouts.Cancel(t.Config.ID)
	if t.current.Result != nil {
		t.appendEvent("POT_AWARDED", map[string]any{
			"pots":    t.current.Result.Pots,
			"winners": t.current.Result.Winners,
		})
	}
	if t.stats != nil {
		if net := t.statsNetChipsLocked(); net != nil {
			t.stats.RecordHandOutcome(t.Config.ID, net)
		}
	}
	t.appendEvent("HAND_COMPLETE", t.current.Result)
	t.publishLocked(-1)
	for seatID := range t.seats {
		t.publishLocked(seatID)
	}
	occupied := 0
	for _, s := range t.seats {
		if s.Stack > 0 {
			occupied++
		}
	}
	if occupied < 2 {
		t.status = Waiting
		t.current = nil
		return
	}
	t.startNextHandLocked()
}

// statsNetChipsLocked computes each dealt-in agent's net chip result for the
// just-completed hand: total winnings across every pot minus total
// contribution, keyed by agent ID.
func (t *Table) statsNetChipsLocked() map[string]int {
	if t.current == nil || t.current.Result == nil {
		return nil
	}
	winnings := map[int]int{}
	for _, award := range t.current.Result.Winners {
		for seat, amt := range award {
			winnings[seat] += amt
		}
	}
	net := make(map[string]int, len(t.current.Players))
	for _, p := range t.current.Players {
		s, ok := t.seats[p.SeatID]
		if !ok || s.AgentID == "" {
			continue
		}
		net[s.AgentID] = winnings[p.SeatID] - p.TotalBet
	}
	return net
}

func (t *Table) startNextHandLocked() {
	occupied := make([]int, 0, len(t.seats))
	for id, s := range t.seats {
		if s.Stack > 0 {
			occupied = append(occupied, id)
		}
	}
	sort.Ints(occupied)
	if len(occupied) < 2 {
		t.status = Waiting
		return
	}

	if t.dealerSeat == -1 {
		t.dealerSeat = FirstDealerSeat(occupied, t.Config.Seed)
	} else {
		t.dealerSeat = NextDealerSeat(t.dealerSeat, occupied)
	}

	players := make([]*Player, 0, len(occupied))
	for _, id := range occupied {
		players = append(players, &Player{SeatID: id, Stack: t.seats[id].Stack})
	}

	t.handNumber++
	t.current = NewHand(t.Config.Seed, t.handNumber, players, t.dealerSeat, t.Config.SmallBlind, t.Config.BigBlind)
	t.appendEvent("HAND_START", map[string]any{
		"hand_number": t.handNumber, "dealer_seat": t.dealerSeat,
		"sb_seat": t.current.SBSeat, "bb_seat": t.current.BBSeat,
	})
	t.syncSeatStacks()
	t.armTimeoutLocked()
	t.publishLocked(-1)
	for seatID := range t.seats {
		t.publishLocked(seatID)
	}
}

func (t *Table) armTimeoutLocked() {
	if t.current == nil || t.current.Phase == Complete || t.current.CurrentSeat == -1 {
		return
	}
	seat := t.current.CurrentSeat
	d := time.Duration(t.Config.ActionTimeoutMs) * time.Millisecond
	t.timeouts.Arm(t.Config.ID, seat, d, func() {
		_ = t.applyDefaultTimeoutAction(seat)
	})
}

// applyDefaultTimeoutAction applies check-if-legal-else-fold for the given
// seat, as a timeout, and is itself serialized through the actor loop.
func (t *Table) applyDefaultTimeoutAction(seat int) error {
	return t.submit(func() error {
		if t.current == nil || t.current.CurrentSeat != seat {
			return nil // no-op: the seat already acted before the timer fired
		}
		t.appendEvent("PLAYER_TIMEOUT", map[string]any{"seat": seat})
		if t.stats != nil {
			agentID := ""
			if s, ok := t.seats[seat]; ok {
				agentID = s.AgentID
			}
			t.stats.RecordTimeout(t.Config.ID, agentID)
		}
		legal := t.current.LegalActions()
		kind := Fold
		if containsKind(legal.Kinds, Check) {
			kind = Check
		}
		prevPhase := t.current.Phase
		prevBoardLen := len(t.current.Community)
		completed, err := t.current.Apply(Action{SeatID: seat, Kind: kind, TurnToken: t.current.TurnToken, IsTimeout: true})
		if err != nil {
			return err
		}
		t.appendEvent("PLAYER_ACTION", map[string]any{"seat": seat, "kind": kind.String(), "is_timeout": true})
		t.appendStreetEvents(prevPhase, prevBoardLen)
		t.syncSeatStacks()
		if completed {
			t.finishHandLocked()
		} else {
			t.armTimeoutLocked()
			t.publishLocked(-1)
			for seatID := range t.seats {
				t.publishLocked(seatID)
			}
		}
		return nil
	})
}

func (t *Table) appendEvent(eventType string, payload any) {
	if t.events == nil {
		return
	}
	var handNum int64
	if t.current != nil {
		handNum = t.current.HandNumber
	}
	_, _ = t.events.Append(context.Background(), t.Config.ID, eventType, handNum, payload)
}

// publishLocked builds and hands a snapshot to the publisher. seatID==-1
// produces the public/observer snapshot.
func (t *Table) publishLocked(seatID int) {
	if t.publisher == nil {
		return
	}
	t.stateSeq++
	t.publisher.Publish(t.buildSnapshotLocked(seatID))
}

// buildSnapshotLocked constructs a Snapshot for seatID (-1 for public) at the
// current stateSeq without advancing it.
func (t *Table) buildSnapshotLocked(seatID int) Snapshot {
	snap := Snapshot{TableID: t.Config.ID, StateSeq: t.stateSeq, Seat: seatID}

	if t.current != nil {
		snap.HandNumber = t.current.HandNumber
		snap.Phase = t.current.Phase
		snap.CurrentSeat = t.current.CurrentSeat
		snap.TurnToken = t.current.TurnToken
		snap.Community = cardStrings(t.current.Community)
		snap.HandResult = t.current.Result

		for _, p := range t.current.Players {
			pv := PlayerView{SeatID: p.SeatID, AgentID: t.seats[p.SeatID].AgentID, Stack: p.Stack, CurrentBet: p.CurrentBet, Folded: p.Folded, AllIn: p.AllIn}
			if p.SeatID == seatID {
				pv.HoleCards = cardStrings(p.HoleCards)
			}
			snap.Players = append(snap.Players, pv)
			snap.Pot += p.CurrentBet
		}
	}

	return snap
}

// CurrentSnapshot returns the table's present state for seatID (-1 for the
// public view), for the initial frame a new connection sends on attach and
// for reconnect replay (spec: "first server frame after connect is a full
// game_state snapshot").
func (t *Table) CurrentSnapshot(seatID int) Snapshot {
	var snap Snapshot
	_ = t.submit(func() error {
		snap = t.buildSnapshotLocked(seatID)
		return nil
	})
	return snap
}

func cardStrings[T fmt.Stringer](cards []T) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.String()
	}
	return out
}

// StatusSnapshot returns the table's current lifecycle status and the number
// of seated agents.
func (t *Table) StatusSnapshot() (Status, int) {
	var status Status
	var seated int
	_ = t.submit(func() error {
		status = t.status
		seated = len(t.seats)
		return nil
	})
	return status, seated
}

// End terminates the table.
func (t *Table) End() error {
	return t.submit(func() error {
		t.status = Ended
		t.timeouts.Cancel(t.Config.ID)
		t.appendEvent("TABLE_ENDED", nil)
		t.Close()
		return nil
	})
}
