package evaluator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lox/moltpoker/internal/deck"
)

func c(s string) deck.Card {
	ranks := map[byte]deck.Rank{
		'2': deck.Two, '3': deck.Three, '4': deck.Four, '5': deck.Five,
		'6': deck.Six, '7': deck.Seven, '8': deck.Eight, '9': deck.Nine,
		'T': deck.Ten, 'J': deck.Jack, 'Q': deck.Queen, 'K': deck.King, 'A': deck.Ace,
	}
	suits := map[byte]deck.Suit{
		's': deck.Spades, 'h': deck.Hearts, 'd': deck.Diamonds, 'c': deck.Clubs,
	}
	return deck.Card{Rank: ranks[s[0]], Suit: suits[s[1]]}
}

func cards(ss ...string) []deck.Card {
	out := make([]deck.Card, 0, len(ss))
	for _, s := range ss {
		out = append(out, c(s))
	}
	return out
}

func TestHandTypes(t *testing.T) {
	tests := []struct {
		name  string
		cards []string
		want  HandType
	}{
		{"high card", []string{"2s", "5h", "9d", "Jc", "Ks", "3h", "7d"}, HighCard},
		{"pair", []string{"2s", "2h", "9d", "Jc", "Ks", "3h", "7d"}, Pair},
		{"two pair", []string{"2s", "2h", "9d", "9c", "Ks", "3h", "7d"}, TwoPair},
		{"trips", []string{"2s", "2h", "2d", "9c", "Ks", "3h", "7d"}, Trips},
		{"straight", []string{"2s", "3h", "4d", "5c", "6s", "9h", "Kd"}, Straight},
		{"wheel straight", []string{"As", "2h", "3d", "4c", "5s", "9h", "Kd"}, Straight},
		{"flush", []string{"2s", "5s", "9s", "Js", "Ks", "3h", "7d"}, Flush},
		{"full house", []string{"2s", "2h", "2d", "9c", "9s", "3h", "7d"}, FullHouse},
		{"quads", []string{"2s", "2h", "2d", "2c", "Ks", "3h", "7d"}, Quads},
		{"straight flush", []string{"2s", "3s", "4s", "5s", "6s", "9h", "Kd"}, StraightFlush},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rank := Evaluate7(cards(tt.cards...))
			require.Equal(t, tt.want, rank.Type())
		})
	}
}

func TestCompareHigherBeatsLower(t *testing.T) {
	pair := Evaluate7(cards("2s", "2h", "9d", "Jc", "Ks", "3h", "7d"))
	twoPair := Evaluate7(cards("2s", "2h", "9d", "9c", "Ks", "3h", "7d"))
	require.Positive(t, twoPair.Compare(pair))
}

func TestSplitPotIdenticalStraights(t *testing.T) {
	board := []string{"6s", "7h", "8d", "9c", "2s"}
	p1 := Evaluate7(append(cards("5h", "Th"), cards(board...)...))
	p2 := Evaluate7(append(cards("5d", "Td"), cards(board...)...))
	require.Zero(t, p1.Compare(p2))
}

func TestEvaluateIsPure(t *testing.T) {
	hand := cards("2s", "2h", "2d", "9c", "9s", "3h", "7d")
	first := Evaluate7(hand)
	second := Evaluate7(hand)
	require.Equal(t, first, second)
}
