// internal/game/types.go
//
// Core type definitions for the SET game engine.
// Defines:
//   - Outcome: one judged triple (success or failure) with timing.
//   - Policy: how the board is refilled after a successful SET.
//   - Session: state for a single in-progress or finished game.
//   - View / Judgment: read-only results handed to the presentation layer.

package game

import (
	"errors"
	"math/rand"
	"time"

	"github.com/robalobadob/setgame/internal/card"
	"github.com/robalobadob/setgame/internal/deck"
)

var (
	ErrIndexOutOfRange = errors.New("board index out of range")
	ErrGameOver        = errors.New("game over")
	ErrGameEnded       = errors.New("game ended")
	ErrUnknownPolicy   = errors.New("unknown board policy")
)

// Outcome is one entry in the success or failure log.
type Outcome struct {
	Seq        int  `json:"seq"`        // 1-based, per log
	ElapsedSec int  `json:"elapsedSec"` // whole seconds since game start
	UsedHint   bool `json:"usedHint"`
}

// Policy selects how the board changes after a successful SET.
type Policy string

const (
	// PolicyRefill replaces the three cards in place while the board sits at
	// its baseline and the pool can cover it; otherwise the board shrinks.
	PolicyRefill Policy = "refill"
	// PolicyAppend removes the three cards and appends up to three new ones.
	PolicyAppend Policy = "append"
)

// ParsePolicy maps a config/request string to a Policy; empty means PolicyRefill.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyRefill:
		return PolicyRefill, nil
	case PolicyAppend:
		return PolicyAppend, nil
	}
	return "", ErrUnknownPolicy
}

// Mode distinguishes free play from the shared daily deal.
type Mode string

const (
	ModeClassic Mode = "classic"
	ModeDaily   Mode = "daily"
)

// State is a coarse label for the session lifecycle.
type State string

const (
	StatePlaying State = "playing"
	StateOver    State = "over"  // no SET left and the pool is empty
	StateEnded   State = "ended" // finalized by the player or after game over
)

// Phase of the selection state machine.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhasePicking Phase = "picking"
)

// Config controls how a session is created.
type Config struct {
	DealSize int    // defaults to deck.DefaultDealSize
	Policy   Policy // defaults to PolicyRefill
	Mode     Mode   // defaults to ModeClassic
	DayKey   string // set for ModeDaily
	Seed     int64  // 0 seeds from the clock
	Now      func() time.Time
}

// Session holds the state of a single SET game.
type Session struct {
	ID          string
	OwnerID     string // user or anonymous id of the starter; set by the caller, unused by the engine
	Mode        Mode
	DayKey      string
	Policy      Policy
	StartedAt   time.Time
	EndedAt     time.Time
	Board       []card.Card
	Selection   []int
	Successes   []Outcome
	Failures    []Outcome
	HintPending bool
	Over        bool
	Ended       bool

	baseline int
	deck     *deck.Deck
	rng      *rand.Rand
	now      func() time.Time
}

// Judgment is the result of the automatic evaluation on the third selection.
type Judgment struct {
	Indices  [3]int       `json:"indices"`
	Cards    [3]card.Card `json:"cards"`
	IsSet    bool         `json:"isSet"`
	Outcome  Outcome      `json:"outcome"`
	GameOver bool         `json:"gameOver"`
}

// View is a read-only snapshot for the presentation layer.
type View struct {
	ID          string      `json:"gameId"`
	Mode        Mode        `json:"mode"`
	Policy      Policy      `json:"policy"`
	State       State       `json:"state"`
	Phase       Phase       `json:"phase"`
	Board       []card.Card `json:"board"`
	Selection   []int       `json:"selection"`
	Successes   []Outcome   `json:"successes"`
	Failures    []Outcome   `json:"failures"`
	HintPending bool        `json:"hintPending"`
	PoolSize    int         `json:"poolSize"`
	ElapsedSec  int         `json:"elapsedSec"`
}
