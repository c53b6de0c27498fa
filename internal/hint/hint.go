// Package hint reveals part of a SET known to exist on a board.
package hint

import (
	"math/rand"

	"github.com/robalobadob/setgame/internal/card"
	"github.com/robalobadob/setgame/internal/deck"
)

// Hint is two board indices of a SET whose third member stays hidden.
type Hint [2]int

// Find locates the first SET on the board and returns two of its three
// indices, chosen uniformly at random. ok is false when the board has no SET.
func Find(board []card.Card, rng *rand.Rand) (h Hint, ok bool) {
	set, ok := deck.FindSet(board)
	if !ok {
		return Hint{}, false
	}
	hidden := rng.Intn(3)
	n := 0
	for i, idx := range set {
		if i == hidden {
			continue
		}
		h[n] = idx
		n++
	}
	return h, true
}
