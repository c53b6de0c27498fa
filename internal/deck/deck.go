// internal/deck/deck.go
//
// Deck/board manager.
// Responsibilities:
//   - Own the undealt pool for one game.
//   - Deal the initial board and draw replacements without replacement.
//   - Search a board for any SET.
//
// The pool is shuffled once per deal, so taking cards off its tail is a
// uniform random draw without replacement.
package deck

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/robalobadob/setgame/internal/card"
)

// DefaultDealSize is the initial board size.
const DefaultDealSize = 12

// ErrInsufficientCards is returned when a deal asks for more cards than exist.
var ErrInsufficientCards = errors.New("insufficient cards")

// Deck holds the pool of cards not yet dealt in the current game.
type Deck struct {
	pool []card.Card
	rng  *rand.Rand
}

// New returns an empty deck drawing randomness from rng.
func New(rng *rand.Rand) *Deck {
	return &Deck{rng: rng}
}

// FromPool returns a deck whose pool is exactly the given cards, in draw order
// from the tail. Used to resume or script a game.
func FromPool(pool []card.Card, rng *rand.Rand) *Deck {
	return &Deck{pool: append([]card.Card(nil), pool...), rng: rng}
}

// Deal resets the pool to a shuffled universe and removes dealSize cards for
// the opening board.
func (d *Deck) Deal(dealSize int) ([]card.Card, error) {
	if dealSize < 0 || dealSize > card.Count {
		return nil, fmt.Errorf("%w: deal of %d from %d", ErrInsufficientCards, dealSize, card.Count)
	}
	d.pool = card.Universe()
	d.rng.Shuffle(len(d.pool), func(i, j int) { d.pool[i], d.pool[j] = d.pool[j], d.pool[i] })
	return d.Draw(dealSize), nil
}

// Draw removes up to n cards from the pool and returns them.
// When fewer than n remain, all remaining cards are returned.
func (d *Deck) Draw(n int) []card.Card {
	if n <= 0 {
		return nil
	}
	if n > len(d.pool) {
		n = len(d.pool)
	}
	cut := len(d.pool) - n
	out := append([]card.Card(nil), d.pool[cut:]...)
	d.pool = d.pool[:cut]
	return out
}

// Remaining is the number of undealt cards.
func (d *Deck) Remaining() int { return len(d.pool) }

// Pool returns a copy of the undealt cards.
func (d *Deck) Pool() []card.Card { return append([]card.Card(nil), d.pool...) }

// FindSet returns the first SET on the board in lexicographic index order.
func FindSet(board []card.Card) ([3]int, bool) {
	n := len(board)
	for i := 0; i < n-2; i++ {
		for j := i + 1; j < n-1; j++ {
			for k := j + 1; k < n; k++ {
				if card.IsSet(board[i], board[j], board[k]) {
					return [3]int{i, j, k}, true
				}
			}
		}
	}
	return [3]int{}, false
}

// HasAnySet reports whether any triple on the board is a SET.
func HasAnySet(board []card.Card) bool {
	_, ok := FindSet(board)
	return ok
}
