package runtime

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/lox/moltpoker/internal/deck"
	"github.com/lox/moltpoker/internal/evaluator"
)

// Validation errors returned by Apply without mutating hand state. Callers
// map these onto the wire error taxonomy's State kind.
var (
	ErrNotYourTurn    = errors.New("not your turn")
	ErrStaleTurnToken = errors.New("stale turn token")
	ErrIllegalAction  = errors.New("illegal action")
	ErrHandComplete   = errors.New("hand is already complete")
)

// LegalActionSet describes what the current actor may legally do.
type LegalActionSet struct {
	SeatID   int
	Kinds    []ActionKind
	ToCall   int
	MinRaise int // minimum legal value for raiseTo
	MaxRaise int // maximum legal value for raiseTo (all-in cap)
}

// Hand is one deal from shuffle through pot award. It is pure state: every
// mutation happens through Apply or the dealing helpers, and the caller (the
// table actor loop) is responsible for serializing access to it.
type Hand struct {
	TableSeed  string
	HandNumber int64

	Players    []*Player // seated for this hand, in seat order
	DealerSeat int
	SBSeat     int
	BBSeat     int

	SmallBlind int
	BigBlind   int

	Deck      *deck.Deck
	Community []deck.Card

	Phase             Phase
	CurrentSeat       int // -1 if no seat must act
	HighBet           int
	MinRaiseIncrement int
	LastAggressorSeat int

	TurnToken string

	settledPots []Pot // pots collected from completed betting rounds

	Result *HandResult
}

// NewHand deals a new hand: posts blinds, deals hole cards, and sets the
// first actor to move, per the dealer/blind rules of spec.md §4.3.
func NewHand(tableSeed string, handNumber int64, players []*Player, dealerSeat, smallBlind, bigBlind int) *Hand {
	h := &Hand{
		TableSeed:  tableSeed,
		HandNumber: handNumber,
		Players:    players,
		DealerSeat: dealerSeat,
		SmallBlind: smallBlind,
		BigBlind:   bigBlind,
		Phase:      Preflop,
		Deck:       deck.New(),
	}

	h.Deck.Shuffle(deck.NewRNG(tableSeed, handNumber))

	h.SBSeat, h.BBSeat = blindSeats(dealerSeat, seatIDs(players))
	h.postBlinds()
	h.dealHoleCards()

	h.MinRaiseIncrement = bigBlind
	h.HighBet = h.playerBySeat(h.BBSeat).CurrentBet
	h.LastAggressorSeat = h.BBSeat

	h.CurrentSeat = h.firstToActPreflop()
	h.issueTurnToken()

	return h
}

func seatIDs(players []*Player) []int {
	ids := make([]int, len(players))
	for i, p := range players {
		ids[i] = p.SeatID
	}
	return ids
}

// blindSeats computes sb/bb seats: heads-up dealer posts SB and acts first
// preflop; 3+ players, SB is left of dealer.
func blindSeats(dealerSeat int, seats []int) (sb, bb int) {
	idx := indexOf(seats, dealerSeat)
	if len(seats) == 2 {
		return seats[idx], seats[(idx+1)%len(seats)]
	}
	return seats[(idx+1)%len(seats)], seats[(idx+2)%len(seats)]
}

func indexOf(seats []int, seat int) int {
	for i, s := range seats {
		if s == seat {
			return i
		}
	}
	return 0
}

func (h *Hand) playerBySeat(seat int) *Player {
	for _, p := range h.Players {
		if p.SeatID == seat {
			return p
		}
	}
	return nil
}

func (h *Hand) postBlinds() {
	sb := h.playerBySeat(h.SBSeat)
	bb := h.playerBySeat(h.BBSeat)

	postAmount := func(p *Player, amt int) {
		paid := min(amt, p.Stack)
		p.CurrentBet = paid
		p.TotalBet = paid
		p.Stack -= paid
		if p.Stack == 0 {
			p.AllIn = true
		}
	}

	if sb != nil {
		postAmount(sb, h.SmallBlind)
	}
	if bb != nil {
		postAmount(bb, h.BigBlind)
	}
}

func (h *Hand) dealHoleCards() {
	for _, p := range h.Players {
		p.HoleCards = h.Deck.DealN(2)
	}
}

// firstToActPreflop: heads-up the dealer (who posted the small blind) acts
// first preflop. 3+ players: first to act is left of the big blind.
func (h *Hand) firstToActPreflop() int {
	seats := seatIDs(h.Players)
	if len(seats) == 2 {
		if p := h.playerBySeat(h.DealerSeat); p != nil && p.canAct() {
			return h.DealerSeat
		}
		return h.nextActiveSeat(h.DealerSeat, seats)
	}
	// 3+: first to act is left of big blind.
	idx := indexOf(seats, h.BBSeat)
	return h.nextActiveSeatFrom(idx, seats)
}

func (h *Hand) nextActiveSeat(from int, seats []int) int {
	idx := indexOf(seats, from)
	return h.nextActiveSeatFrom(idx, seats)
}

// nextActiveSeatFrom returns the next seat strictly after index idx (wrapping)
// that can still act, or -1 if none.
func (h *Hand) nextActiveSeatFrom(idx int, seats []int) int {
	n := len(seats)
	for i := 1; i <= n; i++ {
		s := seats[(idx+i)%n]
		if p := h.playerBySeat(s); p != nil && p.canAct() {
			return s
		}
	}
	return -1
}

func (h *Hand) issueTurnToken() {
	h.TurnToken = uuid.NewString()
}

// LegalActions returns what the seat whose turn it is may do.
func (h *Hand) LegalActions() LegalActionSet {
	p := h.playerBySeat(h.CurrentSeat)
	if p == nil {
		return LegalActionSet{SeatID: -1}
	}

	toCall := h.HighBet - p.CurrentBet
	minRaiseTo := h.HighBet + h.MinRaiseIncrement
	maxRaiseTo := p.CurrentBet + p.Stack

	set := LegalActionSet{SeatID: p.SeatID, ToCall: toCall, MinRaise: minRaiseTo, MaxRaise: maxRaiseTo}

	if toCall == 0 {
		set.Kinds = []ActionKind{Check}
	} else {
		set.Kinds = []ActionKind{Fold, Call}
	}
	// A short all-in that doesn't meet the min-raise does not reopen betting:
	// a player who has already acted since the last full raise may only call
	// or fold against it, not re-raise.
	if p.Stack > 0 && maxRaiseTo > h.HighBet && !p.ActedSince {
		set.Kinds = append(set.Kinds, RaiseTo)
	}
	return set
}

// Apply validates and applies an action. On success it returns whether the
// hand completed. It never mutates state on a validation failure.
func (h *Hand) Apply(a Action) (completed bool, err error) {
	if h.Phase == Complete {
		return false, ErrHandComplete
	}
	if a.SeatID != h.CurrentSeat {
		return false, ErrNotYourTurn
	}
	if a.TurnToken != h.TurnToken {
		return false, ErrStaleTurnToken
	}

	p := h.playerBySeat(a.SeatID)
	if p == nil {
		return false, ErrIllegalAction
	}

	legal := h.LegalActions()
	if !containsKind(legal.Kinds, a.Kind) {
		return false, ErrIllegalAction
	}

	switch a.Kind {
	case Fold:
		p.Folded = true
	case Check:
		// no-op beyond marking acted
	case Call:
		toCall := min(h.HighBet-p.CurrentBet, p.Stack)
		p.CurrentBet += toCall
		p.TotalBet += toCall
		p.Stack -= toCall
		if p.Stack == 0 {
			p.AllIn = true
		}
	case RaiseTo:
		if a.Amount < legal.MinRaise && a.Amount != legal.MaxRaise {
			return false, fmt.Errorf("%w: raise below minimum", ErrIllegalAction)
		}
		if a.Amount > legal.MaxRaise {
			return false, fmt.Errorf("%w: raise exceeds stack", ErrIllegalAction)
		}
		delta := a.Amount - p.CurrentBet
		p.Stack -= delta
		p.CurrentBet = a.Amount
		p.TotalBet += delta
		if p.Stack == 0 {
			p.AllIn = true
		}

		isFullRaise := a.Amount >= h.HighBet+h.MinRaiseIncrement
		if isFullRaise {
			h.MinRaiseIncrement = a.Amount - h.HighBet
			h.resetActedFlags(a.SeatID)
		}
		h.HighBet = a.Amount
		h.LastAggressorSeat = a.SeatID
	}

	p.ActedSince = true
	h.markActedOthers(a.SeatID)

	if h.onlyOneLeft() {
		h.settleFoldWin()
		h.Phase = Complete
		return true, nil
	}

	h.advanceTurn()

	if h.CurrentSeat == -1 || h.bettingComplete() {
		h.closeRoundAndAdvance()
	} else {
		h.issueTurnToken()
	}

	return h.Phase == Complete, nil
}

func containsKind(kinds []ActionKind, k ActionKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

// resetActedFlags clears "acted since last full raise" for everyone except
// the raiser, since a full raise re-opens action.
func (h *Hand) resetActedFlags(raiserSeat int) {
	for _, p := range h.Players {
		p.ActedSince = p.SeatID == raiserSeat
	}
}

// markActedOthers is a no-op placeholder kept for readability at call sites;
// only the acting player's own flag changes per action.
func (h *Hand) markActedOthers(seatID int) {}

func (h *Hand) advanceTurn() {
	seats := seatIDs(h.Players)
	h.CurrentSeat = h.nextActiveSeat(h.CurrentSeat, seats)
}

// bettingComplete is the explicit round-closing predicate: every non-folded,
// non-all-in player has matched the high bet AND has acted since the last
// re-opening raise.
func (h *Hand) bettingComplete() bool {
	contenders := 0
	for _, p := range h.Players {
		if !p.inHand() {
			continue
		}
		if p.AllIn {
			continue
		}
		contenders++
		if p.CurrentBet != h.HighBet || !p.ActedSince {
			return false
		}
	}
	return true
}

func (h *Hand) onlyOneLeft() bool {
	remaining := 0
	for _, p := range h.Players {
		if p.inHand() {
			remaining++
		}
	}
	return remaining <= 1
}

// closeRoundAndAdvance collects bets into pots and deals the next street, or
// moves to showdown/settlement if the river is done or everyone is all-in.
func (h *Hand) closeRoundAndAdvance() {
	h.collectBetsIntoPots()

	for _, p := range h.Players {
		p.CurrentBet = 0
		p.ActedSince = false
	}
	h.HighBet = 0
	h.MinRaiseIncrement = h.BigBlind

	switch h.Phase {
	case Preflop:
		h.Phase = Flop
		h.Deck.Deal() // burn
		h.Community = append(h.Community, h.Deck.DealN(3)...)
	case Flop:
		h.Phase = Turn
		h.Deck.Deal()
		h.Community = append(h.Community, h.Deck.DealN(1)...)
	case Turn:
		h.Phase = River
		h.Deck.Deal()
		h.Community = append(h.Community, h.Deck.DealN(1)...)
	case River:
		h.Phase = Showdown
	}

	if h.Phase == Showdown {
		h.settleShowdown()
		h.Phase = Complete
		h.CurrentSeat = -1
		return
	}

	seats := seatIDs(h.Players)
	h.CurrentSeat = h.nextActiveSeat(h.DealerSeat, seats)

	activeCanAct := 0
	for _, p := range h.Players {
		if p.canAct() {
			activeCanAct++
		}
	}
	if activeCanAct <= 1 {
		// Everyone (or all but one) is all-in: keep dealing to showdown
		// with no further betting, mirroring the no-action-left case.
		h.CurrentSeat = -1
		h.closeRoundAndAdvance()
		return
	}

	h.issueTurnToken()
}

// collectBetsIntoPots folds CurrentBet contributions into settledPots,
// building side pots by sorted contribution level as required for all-ins.
func (h *Hand) collectBetsIntoPots() {
	type contribution struct {
		seat   int
		amount int
		folded bool
	}
	contribs := make([]contribution, 0, len(h.Players))
	for _, p := range h.Players {
		if p.CurrentBet > 0 || !p.Folded {
			contribs = append(contribs, contribution{p.SeatID, p.CurrentBet, p.Folded})
		}
	}

	levels := make([]int, 0)
	seen := map[int]bool{}
	for _, c := range contribs {
		if c.amount > 0 && !seen[c.amount] {
			seen[c.amount] = true
			levels = append(levels, c.amount)
		}
	}
	sort.Ints(levels)

	prevLevel := 0
	for _, level := range levels {
		amount := 0
		eligible := map[int]bool{}
		order := make([]int, 0)
		for _, c := range contribs {
			take := min(level, c.amount) - min(prevLevel, c.amount)
			if take > 0 {
				amount += take
			}
			if c.amount >= level && !c.folded {
				eligible[c.seat] = true
				order = append(order, c.seat)
			}
		}
		if amount > 0 {
			h.settledPots = append(h.settledPots, Pot{Amount: amount, Eligible: eligible, seatOrder: order})
		}
		prevLevel = level
	}
}

func (h *Hand) settleFoldWin() {
	var winner *Player
	for _, p := range h.Players {
		if p.inHand() {
			winner = p
		}
	}
	h.collectBetsIntoPots()

	total := 0
	for _, pot := range h.settledPots {
		total += pot.Amount
	}

	winners := map[int]map[int]int{}
	eligible := map[int]bool{}
	if winner != nil {
		eligible[winner.SeatID] = true
		if total > 0 {
			winner.Stack += total
			winners[0] = map[int]int{winner.SeatID: total}
		}
	}

	h.Result = &HandResult{
		HandNumber: h.HandNumber,
		Board:      h.Community,
		Pots:       []Pot{{Amount: total, Eligible: eligible}},
		Winners:    winners,
	}
}

// settleShowdown evaluates each contender's best hand and awards each pot to
// the best hand(s) among its eligible seats, splitting ties and giving any
// odd chip to the earliest position left of the dealer.
func (h *Hand) settleShowdown() {
	scores := map[int]evaluator.HandRank{}
	for _, p := range h.Players {
		if !p.inHand() {
			continue
		}
		all := append(append([]deck.Card{}, p.HoleCards...), h.Community...)
		scores[p.SeatID] = evaluator.Evaluate7(all)
	}

	winners := map[int]map[int]int{}
	seatOrder := seatIDs(h.Players)

	for idx, pot := range h.settledPots {
		var best evaluator.HandRank
		var bestSeats []int
		first := true
		for _, seat := range pot.EligibleSeats() {
			score, ok := scores[seat]
			if !ok {
				continue
			}
			if first || score.Compare(best) > 0 {
				best = score
				bestSeats = []int{seat}
				first = false
			} else if score.Compare(best) == 0 {
				bestSeats = append(bestSeats, seat)
			}
		}
		if len(bestSeats) == 0 {
			continue
		}

		share := pot.Amount / len(bestSeats)
		remainder := pot.Amount - share*len(bestSeats)

		sort.Slice(bestSeats, func(i, j int) bool {
			return distanceLeftOfDealer(bestSeats[i], h.DealerSeat, seatOrder) <
				distanceLeftOfDealer(bestSeats[j], h.DealerSeat, seatOrder)
		})

		award := map[int]int{}
		for i, seat := range bestSeats {
			amt := share
			if i == 0 {
				amt += remainder
			}
			award[seat] = amt
			h.playerBySeat(seat).Stack += amt
		}
		winners[idx] = award
	}

	h.Result = &HandResult{
		HandNumber:   h.HandNumber,
		Board:        h.Community,
		Pots:         h.settledPots,
		Winners:      winners,
		ShowdownHand: scores,
	}
}

func distanceLeftOfDealer(seat, dealerSeat int, seatOrder []int) int {
	idx := indexOf(seatOrder, seat)
	dealerIdx := indexOf(seatOrder, dealerSeat)
	n := len(seatOrder)
	d := (idx - dealerIdx + n) % n
	if d == 0 {
		d = n // the dealer is the last position left of the dealer
	}
	return d
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// NextDealerSeat advances the button to the next occupied seat.
func NextDealerSeat(current int, occupiedSeats []int) int {
	if len(occupiedSeats) == 0 {
		return current
	}
	idx := indexOf(occupiedSeats, current)
	return occupiedSeats[(idx+1)%len(occupiedSeats)]
}

// FirstDealerSeat picks the dealer for a table's very first hand: the lowest
// occupied seat, unless an admin-provided seed selects a different one.
func FirstDealerSeat(occupiedSeats []int, seed string) int {
	sorted := append([]int{}, occupiedSeats...)
	sort.Ints(sorted)
	if seed == "" {
		return sorted[0]
	}
	idx := int(deck.HandSeed(seed, 0) % int64(len(sorted)))
	if idx < 0 {
		idx += len(sorted)
	}
	return sorted[idx]
}
