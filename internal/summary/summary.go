// Package summary turns a finished game's logs into one immutable record.
package summary

import (
	"time"

	"github.com/robalobadob/setgame/internal/game"
)

// Summary is the per-session statistics row handed to the records store.
// Nil averages mean there was nothing to average.
type Summary struct {
	CreatedAt         time.Time `json:"createdAt"`
	UnhintedSuccesses int       `json:"unhintedSuccesses"`
	AvgUnhintedSec    *float64  `json:"avgUnhintedSec"`
	HintedSuccesses   int       `json:"hintedSuccesses"`
	TotalSuccesses    int       `json:"totalSuccesses"`
	Failures          int       `json:"failures"`
	AvgFailureSec     *float64  `json:"avgFailureSec"`
	Score             int       `json:"score"`
	TotalPlaySec      int       `json:"totalPlaySec"`
}

// Summarize computes the summary. Hinted successes do not score; every
// failure costs one point, so the score may be negative. at is the capture
// time stamped on the record.
func Summarize(successes, failures []game.Outcome, totalPlaySec int, at time.Time) Summary {
	s := Summary{
		CreatedAt:    at,
		Failures:     len(failures),
		TotalPlaySec: totalPlaySec,
	}
	var unhinted []game.Outcome
	for _, o := range successes {
		if o.UsedHint {
			s.HintedSuccesses++
			continue
		}
		unhinted = append(unhinted, o)
	}
	s.UnhintedSuccesses = len(unhinted)
	s.TotalSuccesses = s.UnhintedSuccesses + s.HintedSuccesses
	s.Score = s.UnhintedSuccesses - s.Failures
	s.AvgUnhintedSec = mean(unhinted)
	s.AvgFailureSec = mean(failures)
	return s
}

// FromSession summarizes a session using its own clock reading.
func FromSession(g *game.Session, at time.Time) Summary {
	return Summarize(g.Successes, g.Failures, g.Elapsed(), at)
}

func mean(outcomes []game.Outcome) *float64 {
	if len(outcomes) == 0 {
		return nil
	}
	total := 0
	for _, o := range outcomes {
		total += o.ElapsedSec
	}
	m := float64(total) / float64(len(outcomes))
	return &m
}
