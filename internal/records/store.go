// internal/records/store.go
//
// Durable storage for finished-game summaries.
// Responsibilities:
//   - Append one row per finished session (game_records).
//   - Read an owner's history, best scores, and the daily leaderboard.
//   - Delete an owner's history; move anonymous history to an account.
//
// Queries are written with "?" placeholders and rebound for Postgres.

package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robalobadob/setgame/internal/summary"
)

// ErrDailyPlayed is returned by Append for a second daily record of the same
// owner and day.
var ErrDailyPlayed = errors.New("daily game already recorded")

// Entry is a stored summary plus the bookkeeping needed to find it again.
type Entry struct {
	GameID  string `json:"gameId"`
	OwnerID string `json:"-"`
	Mode    string `json:"mode"`
	DayKey  string `json:"dayKey,omitempty"`
	summary.Summary
}

// Store is a database/sql backed records store.
type Store struct {
	db     *sql.DB
	driver string
}

// NewStore wraps an open database. driver is the database/sql driver name
// ("sqlite3" or "postgres") and only affects placeholder syntax.
func NewStore(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// Rebind rewrites "?" placeholders into "$1, $2, ..." for Postgres.
func Rebind(driver, query string) string {
	if driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) q(query string) string { return Rebind(s.driver, query) }

const columns = `game_id, owner_id, mode, day_key, created_at,
	unhinted_successes, avg_unhinted_sec, hinted_successes, total_successes,
	failures, avg_failure_sec, score, total_play_sec`

// Append stores one finished game. Appending the same game twice is a no-op.
// A daily game is refused with ErrDailyPlayed when the owner already has a
// different daily record for that day.
func (s *Store) Append(ctx context.Context, e Entry) error {
	err := s.insert(ctx, e)
	if err == nil || e.Mode != "daily" {
		return err
	}
	// the unique (owner_id, day_key) daily index fired
	if _, gerr := s.Get(ctx, e.GameID); gerr == nil {
		return nil
	}
	if played, perr := s.DailyPlayed(ctx, e.OwnerID, e.DayKey); perr == nil && played {
		return ErrDailyPlayed
	}
	return err
}

func (s *Store) insert(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, s.q(`
        INSERT INTO game_records (`+columns+`)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
        ON CONFLICT (game_id) DO NOTHING`),
		e.GameID, e.OwnerID, e.Mode, e.DayKey, e.CreatedAt.UTC().Format(time.RFC3339),
		e.UnhintedSuccesses, nullFloat(e.AvgUnhintedSec), e.HintedSuccesses, e.TotalSuccesses,
		e.Failures, nullFloat(e.AvgFailureSec), e.Score, e.TotalPlaySec,
	)
	return err
}

// Get loads one game's record.
func (s *Store) Get(ctx context.Context, gameID string) (*Entry, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+columns+` FROM game_records WHERE game_id=?`), gameID)
	if err != nil {
		return nil, err
	}
	out, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, sql.ErrNoRows
	}
	return &out[0], nil
}

// List returns an owner's history, oldest first.
func (s *Store) List(ctx context.Context, ownerID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
        SELECT `+columns+`
        FROM game_records
        WHERE owner_id=?
        ORDER BY created_at ASC, game_id ASC`), ownerID)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// Top returns an owner's best games by score. Default limit is 5.
func (s *Store) Top(ctx context.Context, ownerID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
        SELECT `+columns+`
        FROM game_records
        WHERE owner_id=?
        ORDER BY score DESC, created_at ASC
        LIMIT ?`), ownerID, limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// Clear deletes an owner's history and reports how many rows went.
func (s *Store) Clear(ctx context.Context, ownerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM game_records WHERE owner_id=?`), ownerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DailyPlayed reports whether the owner already recorded a daily game for day.
func (s *Store) DailyPlayed(ctx context.Context, ownerID, day string) (bool, error) {
	var cnt int
	if err := s.db.QueryRowContext(ctx, s.q(
		`SELECT COUNT(1) FROM game_records WHERE owner_id=? AND mode='daily' AND day_key=?`),
		ownerID, day,
	).Scan(&cnt); err != nil {
		return false, err
	}
	return cnt > 0, nil
}

// DailyLeaderboard ranks the day's daily games by score, then play time.
// Default limit is 20.
func (s *Store) DailyLeaderboard(ctx context.Context, day string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
        SELECT `+columns+`
        FROM game_records
        WHERE mode='daily' AND day_key=?
        ORDER BY score DESC, total_play_sec ASC, created_at ASC
        LIMIT ?`), day, limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// ClaimOwner moves every record of from to to (anonymous play → account).
func (s *Store) ClaimOwner(ctx context.Context, from, to string) error {
	if from == "" || to == "" || from == to {
		return nil
	}
	// a daily the account already recorded keeps the anonymous copy behind
	_, err := s.db.ExecContext(ctx, s.q(`
        UPDATE game_records SET owner_id=?
        WHERE owner_id=? AND NOT (mode='daily' AND day_key IN (
            SELECT day_key FROM game_records WHERE owner_id=? AND mode='daily'))`),
		to, from, to)
	return err
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	out := []Entry{}
	for rows.Next() {
		var (
			e                       Entry
			created                 string
			avgUnhinted, avgFailure sql.NullFloat64
		)
		if err := rows.Scan(&e.GameID, &e.OwnerID, &e.Mode, &e.DayKey, &created,
			&e.UnhintedSuccesses, &avgUnhinted, &e.HintedSuccesses, &e.TotalSuccesses,
			&e.Failures, &avgFailure, &e.Score, &e.TotalPlaySec); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, created)
		if err != nil {
			return nil, fmt.Errorf("game %s: created_at: %w", e.GameID, err)
		}
		e.CreatedAt = t
		e.AvgUnhintedSec = floatPtr(avgUnhinted)
		e.AvgFailureSec = floatPtr(avgFailure)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	f := n.Float64
	return &f
}
