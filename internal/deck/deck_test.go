package deck

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShuffleDeterministic(t *testing.T) {
	d1 := New()
	d1.Shuffle(NewRNG("s1", 1))

	d2 := New()
	d2.Shuffle(NewRNG("s1", 1))

	require.Equal(t, d1.DealN(52), d2.DealN(52))
}

func TestShuffleDiffersByHandNumber(t *testing.T) {
	d1 := New()
	d1.Shuffle(NewRNG("s1", 1))
	hand1 := d1.DealN(5)

	d2 := New()
	d2.Shuffle(NewRNG("s1", 2))
	hand2 := d2.DealN(5)

	require.NotEqual(t, hand1, hand2)
}

func TestNoDuplicateCards(t *testing.T) {
	d := New()
	d.Shuffle(NewRNG("s1", 1))
	cards := d.DealN(52)

	seen := make(map[Card]bool)
	for _, c := range cards {
		require.False(t, seen[c], "duplicate card %s", c)
		seen[c] = true
	}
	require.Len(t, seen, 52)
}
