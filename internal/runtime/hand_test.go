package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newPlayers(stacks map[int]int) []*Player {
	players := make([]*Player, 0, len(stacks))
	for seat, stack := range stacks {
		players = append(players, &Player{SeatID: seat, Stack: stack})
	}
	return players
}

func TestHeadsUpWalk(t *testing.T) {
	players := []*Player{{SeatID: 0, Stack: 100}, {SeatID: 1, Stack: 100}}
	h := NewHand("s1", 1, players, 0, 1, 2)

	// Dealer (seat 0) is SB and acts first preflop, heads-up.
	require.Equal(t, 0, h.SBSeat)
	require.Equal(t, 1, h.BBSeat)
	require.Equal(t, 0, h.CurrentSeat)

	completed, err := h.Apply(Action{SeatID: 0, Kind: Fold, TurnToken: h.TurnToken})
	require.NoError(t, err)
	require.True(t, completed)

	sb := h.playerBySeat(0)
	bb := h.playerBySeat(1)
	require.Equal(t, 99, sb.Stack)
	require.Equal(t, 101, bb.Stack)
}

func TestStaleTurnTokenRejected(t *testing.T) {
	players := []*Player{{SeatID: 0, Stack: 100}, {SeatID: 1, Stack: 100}}
	h := NewHand("s1", 1, players, 0, 1, 2)

	_, err := h.Apply(Action{SeatID: 0, Kind: Fold, TurnToken: "wrong-token"})
	require.ErrorIs(t, err, ErrStaleTurnToken)
}

func TestShortAllInDoesNotReopen(t *testing.T) {
	players := []*Player{
		{SeatID: 0, Stack: 100},
		{SeatID: 1, Stack: 100},
		{SeatID: 2, Stack: 28},
	}
	h := NewHand("s1", 1, players, 0, 1, 2)

	// 3-handed preflop acts left of BB, i.e. the dealer first; drive via
	// CurrentSeat/TurnToken rather than assuming seat numbers.
	p1Seat := h.CurrentSeat
	tok := h.TurnToken
	_, err := h.Apply(Action{SeatID: p1Seat, Kind: RaiseTo, Amount: 20, TurnToken: tok})
	require.NoError(t, err)

	// Next seat just calls the 20 rather than re-raising, so action reaches
	// the short stack still facing a 20 bet.
	callerSeat := h.CurrentSeat
	tok = h.TurnToken
	_, err = h.Apply(Action{SeatID: callerSeat, Kind: Call, TurnToken: tok})
	require.NoError(t, err)

	// Short stack shoves its entire remaining stack — 28 total, short of the
	// 38 a full min-raise would require, so it's all-in rather than a raise.
	allInSeat := h.CurrentSeat
	allInPlayer := h.playerBySeat(allInSeat)
	tok = h.TurnToken
	_, err = h.Apply(Action{SeatID: allInSeat, Kind: RaiseTo, Amount: allInPlayer.CurrentBet + allInPlayer.Stack, TurnToken: tok})
	require.NoError(t, err)

	require.Equal(t, 18, h.MinRaiseIncrement, "short all-in must not change the min-raise increment")

	// Action returns to p1Seat, who already raised this round: the short
	// all-in must not have reopened betting for them, so raise_to must not
	// be among their legal actions, only call/fold.
	require.Equal(t, p1Seat, h.CurrentSeat)
	legal := h.LegalActions()
	require.False(t, containsKind(legal.Kinds, RaiseTo), "a short all-in must not reopen betting for a player who already acted")
	require.True(t, containsKind(legal.Kinds, Call))
}

func TestThreeWaySidePots(t *testing.T) {
	// E4: stacks 10/50/100, all-in preflop.
	players := []*Player{
		{SeatID: 0, Stack: 10},
		{SeatID: 1, Stack: 50},
		{SeatID: 2, Stack: 100},
	}
	h := NewHand("s1", 1, players, 0, 1, 2)

	for h.Phase != Complete {
		legal := h.LegalActions()
		seat := h.CurrentSeat
		p := h.playerBySeat(seat)
		tok := h.TurnToken
		var err error
		if containsKind(legal.Kinds, RaiseTo) {
			_, err = h.Apply(Action{SeatID: seat, Kind: RaiseTo, Amount: p.CurrentBet + p.Stack, TurnToken: tok})
		} else if containsKind(legal.Kinds, Call) {
			_, err = h.Apply(Action{SeatID: seat, Kind: Call, TurnToken: tok})
		} else {
			_, err = h.Apply(Action{SeatID: seat, Kind: Check, TurnToken: tok})
		}
		require.NoError(t, err)
	}

	require.NotNil(t, h.Result)
	require.Len(t, h.Result.Pots, 3)
	require.Equal(t, 30, h.Result.Pots[0].Amount)
	require.ElementsMatch(t, []int{0, 1, 2}, h.Result.Pots[0].EligibleSeats())
	require.Equal(t, 80, h.Result.Pots[1].Amount)
	require.ElementsMatch(t, []int{1, 2}, h.Result.Pots[1].EligibleSeats())
	// The last side pot is the excess the biggest stack put in beyond what
	// anyone else could match; only seat 2 is eligible for it.
	require.Equal(t, 50, h.Result.Pots[2].Amount)
	require.ElementsMatch(t, []int{2}, h.Result.Pots[2].EligibleSeats())

	totalAwarded := 0
	for _, pot := range h.Result.Winners {
		for _, amt := range pot {
			totalAwarded += amt
		}
	}
	require.Equal(t, 160, totalAwarded, "chip conservation: total awarded must equal total chips contributed (10+50+100)")
}

func TestChipConservationOnFoldWin(t *testing.T) {
	players := []*Player{{SeatID: 0, Stack: 100}, {SeatID: 1, Stack: 100}}
	h := NewHand("s1", 1, players, 0, 1, 2)
	total := 0
	for _, p := range players {
		total += p.Stack
	}
	totalBefore := total + players[0].CurrentBet + players[1].CurrentBet

	_, err := h.Apply(Action{SeatID: h.CurrentSeat, Kind: Fold, TurnToken: h.TurnToken})
	require.NoError(t, err)

	totalAfter := 0
	for _, p := range h.Players {
		totalAfter += p.Stack
	}
	require.Equal(t, totalBefore, totalAfter)
}
