// internal/game/engine.go
//
// Core game engine for a single SET session.
// Responsibilities:
//   - Deal the opening board and keep it solvable while the pool lasts.
//   - Run the selection state machine (toggle, auto-judge on the third pick).
//   - Apply hints, which overwrite the selection with two members of a SET.
//   - Track state transitions: playing → over → ended.
//
// Notes:
//   - The engine assumes exclusive access; callers serialize actions per session.
//   - Elapsed times are whole seconds since StartedAt.
package game

import (
	"fmt"
	"math/rand"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/robalobadob/setgame/internal/card"
	"github.com/robalobadob/setgame/internal/deck"
	"github.com/robalobadob/setgame/internal/hint"
)

// groupSize is the number of cards in a SET and in every top-up.
const groupSize = 3

// New starts a game: shuffles the universe, deals the opening board and
// tops it up if it holds no SET.
func New(cfg Config) (*Session, error) {
	s, err := newSession(cfg)
	if err != nil {
		return nil, err
	}
	board, err := s.deck.Deal(s.baseline)
	if err != nil {
		return nil, err
	}
	s.Board = board
	s.settle()
	return s, nil
}

func newSession(cfg Config) (*Session, error) {
	policy, err := ParsePolicy(string(cfg.Policy))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, cfg.Policy)
	}
	if cfg.DealSize == 0 {
		cfg.DealSize = deck.DefaultDealSize
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeClassic
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = cfg.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	return &Session{
		ID:        uuid.NewString(),
		Mode:      cfg.Mode,
		DayKey:    cfg.DayKey,
		Policy:    policy,
		StartedAt: cfg.Now(),
		Selection: []int{},
		Successes: []Outcome{},
		Failures:  []Outcome{},
		baseline:  cfg.DealSize,
		deck:      deck.New(rng),
		rng:       rng,
		now:       cfg.Now,
	}, nil
}

// Toggle flips the selection of a board index. Reaching three selected cards
// triggers judgment immediately; the returned Judgment is nil otherwise.
// Selecting a fourth card is a no-op.
func (s *Session) Toggle(index int) (*Judgment, error) {
	if err := s.playable(); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(s.Board) {
		return nil, fmt.Errorf("%w: %d (board has %d cards)", ErrIndexOutOfRange, index, len(s.Board))
	}
	if i := slices.Index(s.Selection, index); i >= 0 {
		s.Selection = slices.Delete(s.Selection, i, i+1)
		return nil, nil
	}
	if len(s.Selection) >= groupSize {
		return nil, nil
	}
	s.Selection = append(s.Selection, index)
	if len(s.Selection) < groupSize {
		return nil, nil
	}
	return s.judge(), nil
}

// RequestHint overwrites the selection with two members of a SET on the board
// and marks the next judgment as hinted. ok is false when the board holds no
// SET; the session is left untouched in that case.
func (s *Session) RequestHint() (hint.Hint, bool, error) {
	if err := s.playable(); err != nil {
		return hint.Hint{}, false, err
	}
	h, ok := hint.Find(s.Board, s.rng)
	if !ok {
		return hint.Hint{}, false, nil
	}
	s.Selection = []int{h[0], h[1]}
	s.HintPending = true
	return h, true, nil
}

// End finalizes the session. Ending twice returns ErrGameEnded.
func (s *Session) End() error {
	if s.Ended {
		return ErrGameEnded
	}
	s.Ended = true
	s.EndedAt = s.now()
	s.Selection = []int{}
	return nil
}

// Elapsed returns whole seconds since the start, frozen once the game ends.
func (s *Session) Elapsed() int {
	end := s.now()
	if s.Ended {
		end = s.EndedAt
	}
	return int(end.Sub(s.StartedAt) / time.Second)
}

// State reports playing/over/ended.
func (s *Session) State() State {
	switch {
	case s.Ended:
		return StateEnded
	case s.Over:
		return StateOver
	}
	return StatePlaying
}

// Phase reports where the selection state machine stands.
func (s *Session) Phase() Phase {
	if len(s.Selection) == 0 {
		return PhaseIdle
	}
	return PhasePicking
}

// PoolSize is the number of undealt cards.
func (s *Session) PoolSize() int { return s.deck.Remaining() }

// View returns a copy of everything the presentation layer may display.
func (s *Session) View() View {
	return View{
		ID:          s.ID,
		Mode:        s.Mode,
		Policy:      s.Policy,
		State:       s.State(),
		Phase:       s.Phase(),
		Board:       slices.Clone(s.Board),
		Selection:   slices.Clone(s.Selection),
		Successes:   slices.Clone(s.Successes),
		Failures:    slices.Clone(s.Failures),
		HintPending: s.HintPending,
		PoolSize:    s.deck.Remaining(),
		ElapsedSec:  s.Elapsed(),
	}
}

func (s *Session) playable() error {
	if s.Ended {
		return ErrGameEnded
	}
	if s.Over {
		return ErrGameOver
	}
	return nil
}

// judge evaluates the three selected cards, records the outcome and applies
// the board policy on success.
func (s *Session) judge() *Judgment {
	j := &Judgment{}
	copy(j.Indices[:], s.Selection)
	for i, idx := range j.Indices {
		j.Cards[i] = s.Board[idx]
	}
	j.IsSet = card.IsSet(j.Cards[0], j.Cards[1], j.Cards[2])

	elapsed := s.Elapsed()
	if j.IsSet {
		j.Outcome = Outcome{Seq: len(s.Successes) + 1, ElapsedSec: elapsed, UsedHint: s.HintPending}
		s.Successes = append(s.Successes, j.Outcome)
		s.removeMatched(j.Indices)
		s.settle()
	} else {
		j.Outcome = Outcome{Seq: len(s.Failures) + 1, ElapsedSec: elapsed, UsedHint: s.HintPending}
		s.Failures = append(s.Failures, j.Outcome)
	}
	s.HintPending = false
	s.Selection = []int{}
	j.GameOver = s.Over
	return j
}

// removeMatched takes the matched cards off the board according to the policy.
func (s *Session) removeMatched(idx [3]int) {
	if s.Policy == PolicyRefill && len(s.Board) == s.baseline && s.deck.Remaining() >= groupSize {
		sorted := idx
		slices.Sort(sorted[:])
		for i, c := range s.deck.Draw(groupSize) {
			s.Board[sorted[i]] = c
		}
		return
	}
	s.Board = without(s.Board, idx)
	if s.Policy == PolicyAppend {
		s.Board = append(s.Board, s.deck.Draw(groupSize)...)
	}
}

// settle adds groups of three while the board has no SET and the pool can
// supply them, then flags the game over if the board is still dead with an
// empty pool. Any 21 cards contain a SET, so the loop stops by then.
func (s *Session) settle() {
	for !deck.HasAnySet(s.Board) {
		if s.deck.Remaining() == 0 {
			s.Over = true
			s.Selection = []int{}
			return
		}
		s.Board = append(s.Board, s.deck.Draw(groupSize)...)
	}
}

// without returns board minus the given indices, keeping the order of the rest.
func without(board []card.Card, idx [3]int) []card.Card {
	out := make([]card.Card, 0, len(board))
	for i, c := range board {
		if i != idx[0] && i != idx[1] && i != idx[2] {
			out = append(out, c)
		}
	}
	return out
}
