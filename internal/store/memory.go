// internal/store/memory.go
//
// In-memory session store for active SET games.
// Characteristics:
//   - Stores *game.Session objects keyed by ID.
//   - Each session has its own mutex; Update runs one action at a time per
//     session while different sessions proceed in parallel.
//   - State is lost when the process restarts.

package store

import (
	"context"
	"errors"
	"sync"

	"github.com/robalobadob/setgame/internal/game"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface for active sessions.
type Store interface {
	// Save adds or replaces a session.
	Save(ctx context.Context, g *game.Session) error

	// Update runs fn with exclusive access to the session.
	Update(ctx context.Context, id string, fn func(*game.Session) error) error

	// View runs fn with exclusive access for a read.
	View(ctx context.Context, id string, fn func(*game.Session) error) error

	// Find returns the id of a session matching match. match runs without the
	// session lock, so it may only read fields fixed before Save.
	Find(ctx context.Context, match func(*game.Session) bool) (string, bool)

	// Delete drops a session; unknown ids are ignored.
	Delete(ctx context.Context, id string) error

	// Len reports how many sessions are held.
	Len() int
}

type entry struct {
	mu   sync.Mutex
	game *game.Session
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu    sync.RWMutex      // guards games map
	games map[string]*entry // keyed by Session.ID
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return &memory{games: make(map[string]*entry)}
}

func (m *memory) Save(ctx context.Context, g *game.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[g.ID] = &entry{game: g}
	return nil
}

func (m *memory) Update(ctx context.Context, id string, fn func(*game.Session) error) error {
	e, err := m.get(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.game)
}

// View takes the same per-session lock as Update.
func (m *memory) View(ctx context.Context, id string, fn func(*game.Session) error) error {
	return m.Update(ctx, id, fn)
}

func (m *memory) Find(ctx context.Context, match func(*game.Session) bool) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, e := range m.games {
		if match(e.game) {
			return id, true
		}
	}
	return "", false
}

func (m *memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.games, id)
	return nil
}

func (m *memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.games)
}

func (m *memory) get(id string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.games[id]; ok {
		return e, nil
	}
	return nil, ErrNotFound
}
