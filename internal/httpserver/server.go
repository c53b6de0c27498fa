// internal/httpserver/server.go
//
// HTTP server wiring for the SET backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health".
//   - Game endpoints (optional auth): new, view, toggle, hint, end.
//   - Records endpoints (optional auth): mounted under /records.
//   - Auth + profile/stat endpoints (require auth): /auth/*, /stats/me.
//   - JWT + cookie handling, anonymous owner cookie, user CRUD helpers.
//
// Notes:
//   - Every game action runs under the session store's per-session lock.
//   - A game that reaches game over is finalized in the same request:
//     summarized, appended to the records store, and dropped from memory.
//   - Records belong to the logged-in user, or to the anonymous cookie id for
//     guests; logging in claims the guest's records.

package httpserver

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/robalobadob/setgame/internal/card"
	"github.com/robalobadob/setgame/internal/daily"
	"github.com/robalobadob/setgame/internal/deck"
	"github.com/robalobadob/setgame/internal/game"
	"github.com/robalobadob/setgame/internal/records"
	"github.com/robalobadob/setgame/internal/store"
	"github.com/robalobadob/setgame/internal/summary"
)

// Options carries the process configuration the handlers need.
type Options struct {
	Driver         string      // database/sql driver name, for placeholder syntax
	DealSize       int         // opening board size
	Policy         game.Policy // default board policy
	DailySalt      string
	JWTSecret      string
	JWTExpiresDays int
	CookieName     string
	ClientOrigin   string
	Secure         bool // production cookies (Secure, SameSite=None)
	Now            func() time.Time
}

// Server bundles router, session store, records store and DB handle.
type Server struct {
	r       *chi.Mux
	store   store.Store
	records *records.Store
	db      *sql.DB
	opts    Options
}

// New constructs a Server, installs middleware, and registers routes.
func New(st store.Store, rec *records.Store, db *sql.DB, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DealSize == 0 {
		opts.DealSize = deck.DefaultDealSize
	}
	if opts.CookieName == "" {
		opts.CookieName = "set_token"
	}
	if opts.JWTSecret == "" {
		opts.JWTSecret = "dev_secret_change_me"
	}
	if opts.JWTExpiresDays <= 0 {
		opts.JWTExpiresDays = 14
	}
	s := &Server{r: chi.NewRouter(), store: st, records: rec, db: db, opts: opts}

	// --- middleware ---
	s.r.Use(chimw.RequestID)                 // add X-Request-ID
	s.r.Use(chimw.RealIP)                    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer)                 // recover from panics
	s.r.Use(chimw.Timeout(10 * time.Second)) // bound handler time
	s.r.Use(jsonContentType)                 // default JSON responses
	s.r.Use(s.cors)                          // credentials-friendly CORS

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"service":"set-go","endpoints":["/health","POST /game/new","POST /game/toggle","POST /game/hint","POST /game/end","/records","/auth/*"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	// Game endpoints: optional auth (guests can play)
	s.r.Group(func(r chi.Router) {
		r.Use(s.withOptionalAuth())
		r.Post("/game/new", s.handleNewGame)
		r.Get("/game/{id}", s.handleGetGame)
		r.Post("/game/toggle", s.handleToggle)
		r.Post("/game/hint", s.handleHint)
		r.Post("/game/end", s.handleEnd)
	})

	// Records: optional auth (guests keep history under their anon cookie)
	s.mountRecords(s.r.With(s.withOptionalAuth()))

	// Auth + profile/stats (require auth)
	s.mountAuthRoutes()

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found","path":"`+r.URL.Path+`"}`, http.StatusNotFound)
	})

	// Debug: deck shape and active sessions
	s.r.Get("/debug/cards", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]int{"cards": card.Count, "activeGames": s.store.Len()})
	})

	return s
}

// Start begins serving HTTP on addr.
func (s *Server) Start(addr string) error { return http.ListenAndServe(addr, s.r) }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// q rebinds placeholders for the configured driver.
func (s *Server) q(query string) string { return records.Rebind(s.opts.Driver, query) }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for the configured client origin.
func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.opts.ClientOrigin
	if origin == "" {
		origin = "http://localhost:5173"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeErr maps engine/store errors onto HTTP status codes.
func writeErr(w http.ResponseWriter, err error) {
	code, msg := http.StatusInternalServerError, "server_error"
	switch {
	case errors.Is(err, store.ErrNotFound):
		code, msg = http.StatusNotFound, "not_found"
	case errors.Is(err, game.ErrIndexOutOfRange):
		code, msg = http.StatusBadRequest, "index_out_of_range"
	case errors.Is(err, game.ErrUnknownPolicy):
		code, msg = http.StatusBadRequest, "unknown_policy"
	case errors.Is(err, game.ErrGameOver):
		code, msg = http.StatusConflict, "game_over"
	case errors.Is(err, game.ErrGameEnded):
		code, msg = http.StatusConflict, "game_ended"
	case errors.Is(err, records.ErrDailyPlayed):
		code, msg = http.StatusConflict, "daily_already_played"
	default:
		log.Error().Err(err).Msg("request failed")
	}
	http.Error(w, `{"error":"`+msg+`"}`, code)
}

// ------------------------------ GAME ---------------------------------------

// newGameReq/Res payloads for POST /game/new.
type newGameReq struct {
	Mode   string `json:"mode"`   // "classic" | "daily"
	Policy string `json:"policy"` // "refill" | "append"; empty uses the server default
}
type newGameRes struct {
	Played  bool       `json:"played"`            // daily only: already recorded today
	Resumed bool       `json:"resumed,omitempty"` // daily only: the caller's running daily game
	Date    string     `json:"date,omitempty"`    // daily only
	Game    *game.View `json:"game,omitempty"`
}

// handleNewGame starts a game. Daily games share a seed per UTC day and can
// be recorded once per owner and day; asking again while one is running
// returns that game.
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	owner := s.ownerID(w, r)

	policy := s.opts.Policy
	if req.Policy != "" {
		policy = game.Policy(req.Policy)
	}
	cfg := game.Config{DealSize: s.opts.DealSize, Policy: policy, Mode: game.ModeClassic, Now: s.opts.Now}

	var res newGameRes
	if req.Mode == string(game.ModeDaily) {
		now := s.opts.Now()
		day := daily.DateKey(now)
		res.Date = day
		played, err := s.records.DailyPlayed(r.Context(), owner, day)
		if err != nil {
			writeErr(w, err)
			return
		}
		if played {
			res.Played = true
			_ = json.NewEncoder(w).Encode(res)
			return
		}
		if v, ok := s.runningDaily(r, day); ok {
			res.Resumed, res.Game = true, &v
			_ = json.NewEncoder(w).Encode(res)
			return
		}
		cfg.Mode, cfg.DayKey, cfg.Seed = game.ModeDaily, day, daily.Seed(now, s.opts.DailySalt)
	}

	g, err := game.New(cfg)
	if err != nil {
		writeErr(w, err)
		return
	}
	g.OwnerID = owner
	if err := s.store.Save(r.Context(), g); err != nil {
		log.Error().Err(err).Msg("save game")
		http.Error(w, `{"error":"save_failed"}`, http.StatusInternalServerError)
		return
	}
	log.Info().Str("gameId", g.ID).Str("owner", owner).Str("mode", string(g.Mode)).Str("policy", string(g.Policy)).
		Int("board", len(g.Board)).Msg("game started")

	v := g.View()
	res.Game = &v
	_ = json.NewEncoder(w).Encode(res)
}

// runningDaily finds the caller's unfinished daily game for day.
func (s *Server) runningDaily(r *http.Request, day string) (game.View, bool) {
	id, ok := s.store.Find(r.Context(), func(g *game.Session) bool {
		return g.Mode == game.ModeDaily && g.DayKey == day && s.owns(r, g)
	})
	if !ok {
		return game.View{}, false
	}
	var v game.View
	err := s.store.View(r.Context(), id, func(g *game.Session) error {
		if g.Ended {
			return game.ErrGameEnded
		}
		v = g.View()
		return nil
	})
	return v, err == nil
}

// handleGetGame returns the read-only view of an active game.
func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	var v game.View
	err := s.store.View(r.Context(), chi.URLParam(r, "id"), func(g *game.Session) error {
		if !s.owns(r, g) {
			return store.ErrNotFound
		}
		v = g.View()
		return nil
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// toggleReq/Res payloads for POST /game/toggle.
type toggleReq struct {
	GameID string `json:"gameId"`
	Index  *int   `json:"index"`
}
type toggleRes struct {
	Judgment *game.Judgment  `json:"judgment,omitempty"` // set when the third card fired judgment
	Summary  *summary.Summary `json:"summary,omitempty"`  // set when the game just finished
	Game     game.View        `json:"game"`
}

// handleToggle flips one card's selection; the third pick is judged at once.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Index == nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	owner := s.ownerID(w, r)

	var res toggleRes
	finished := false
	err := s.store.Update(r.Context(), req.GameID, func(g *game.Session) error {
		if !s.owns(r, g) {
			return store.ErrNotFound
		}
		j, err := g.Toggle(*req.Index)
		if err != nil {
			return err
		}
		res.Judgment = j
		if g.State() == game.StateOver {
			sum, err := s.finalize(r.Context(), g, owner)
			if err != nil {
				return err
			}
			res.Summary, finished = &sum, true
		}
		res.Game = g.View()
		return nil
	})
	if finished || errors.Is(err, records.ErrDailyPlayed) {
		_ = s.store.Delete(r.Context(), req.GameID)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(res)
}

// hintReq/Res payloads for POST /game/hint.
type hintReq struct {
	GameID string `json:"gameId"`
}
type hintRes struct {
	Available bool      `json:"available"` // false: no SET on the board
	Indices   []int     `json:"indices"`   // two members of a SET
	Game      game.View `json:"game"`
}

// handleHint reveals two cards of a SET and preselects them.
func (s *Server) handleHint(w http.ResponseWriter, r *http.Request) {
	var req hintReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	res := hintRes{Indices: []int{}}
	err := s.store.Update(r.Context(), req.GameID, func(g *game.Session) error {
		if !s.owns(r, g) {
			return store.ErrNotFound
		}
		h, ok, err := g.RequestHint()
		if err != nil {
			return err
		}
		if ok {
			res.Available, res.Indices = true, []int{h[0], h[1]}
		}
		res.Game = g.View()
		return nil
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(res)
}

// endReq/Res payloads for POST /game/end.
type endReq struct {
	GameID string `json:"gameId"`
}
type endRes struct {
	Summary summary.Summary `json:"summary"`
	Game    game.View       `json:"game"`
}

// handleEnd finalizes a game at the player's request.
func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	var req endReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	owner := s.ownerID(w, r)
	var res endRes
	err := s.store.Update(r.Context(), req.GameID, func(g *game.Session) error {
		if !s.owns(r, g) {
			return store.ErrNotFound
		}
		sum, err := s.finalize(r.Context(), g, owner)
		if err != nil {
			return err
		}
		res.Summary, res.Game = sum, g.View()
		return nil
	})
	if err == nil || errors.Is(err, records.ErrDailyPlayed) {
		_ = s.store.Delete(r.Context(), req.GameID)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(res)
}

// finalize ends the session, summarizes it, appends the record and bumps the
// owner's account stats. Finalizing an already recorded game returns the
// stored summary; a second daily game for the same owner and day fails with
// records.ErrDailyPlayed.
func (s *Server) finalize(ctx context.Context, g *game.Session, owner string) (summary.Summary, error) {
	if !g.Ended {
		_ = g.End()
	}
	if e, err := s.records.Get(ctx, g.ID); err == nil {
		return e.Summary, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return summary.Summary{}, err
	}

	sum := summary.FromSession(g, s.opts.Now().UTC())
	entry := records.Entry{GameID: g.ID, OwnerID: owner, Mode: string(g.Mode), DayKey: g.DayKey, Summary: sum}
	if err := s.records.Append(ctx, entry); err != nil {
		return summary.Summary{}, err
	}
	if me, _ := ctx.Value(ctxUserKey{}).(*authUser); me != nil {
		if err := s.bumpStats(ctx, me.ID, sum.Score); err != nil {
			log.Warn().Err(err).Str("user", me.ID).Msg("bump stats")
		}
	}
	log.Info().Str("gameId", g.ID).Int("score", sum.Score).Int("successes", sum.TotalSuccesses).
		Int("failures", sum.Failures).Int("playSec", sum.TotalPlaySec).Msg("game recorded")
	return sum, nil
}

// owns reports whether the caller started g, either as the signed-in user or
// under the anonymous cookie it played with before logging in.
func (s *Server) owns(r *http.Request, g *game.Session) bool {
	if me, _ := r.Context().Value(ctxUserKey{}).(*authUser); me != nil && me.ID == g.OwnerID {
		return true
	}
	c, err := r.Cookie(anonCookieName)
	return err == nil && c.Value != "" && c.Value == g.OwnerID
}

// ownerID is the logged-in user's id, or the anonymous cookie id for guests.
func (s *Server) ownerID(w http.ResponseWriter, r *http.Request) string {
	if me, _ := r.Context().Value(ctxUserKey{}).(*authUser); me != nil {
		return me.ID
	}
	return s.ensureAnonID(w, r)
}

// ------------------------------- AUTH --------------------------------------

// Request payloads for signup/login.
type signupReq struct{ Username, Password string }
type loginReq struct{ Username, Password string }

// authUser is placed into request context by auth middleware.
type authUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// mountAuthRoutes registers authentication + gated routes (/auth/*, /stats/me).
func (s *Server) mountAuthRoutes() {
	s.r.Post("/auth/signup", s.handleSignup)
	s.r.Post("/auth/login", s.handleLogin)
	s.r.Post("/auth/logout", s.handleLogout)

	// Current user (gated)
	s.r.With(s.requireAuth()).Get("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		me, _ := r.Context().Value(ctxUserKey{}).(*authUser)
		_ = json.NewEncoder(w).Encode(me)
	})

	// Stats (gated)
	s.r.With(s.requireAuth()).Get("/stats/me", func(w http.ResponseWriter, r *http.Request) {
		me, _ := r.Context().Value(ctxUserKey{}).(*authUser)
		u, err := s.findUserByID(r.Context(), me.ID)
		if err != nil {
			http.Error(w, `{"error":"not_found"}`, http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          u.ID,
			"gamesPlayed": u.GamesPlayed,
			"bestScore":   u.BestScore,
		})
	})
}

// handleSignup creates a new user, signs a JWT, sets auth cookie, and claims anon records.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body signupReq
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid_json"}`, http.StatusBadRequest)
		return
	}
	u, err := s.createUser(r.Context(), body.Username, body.Password)
	if err != nil {
		var invalid signupError
		switch {
		case errors.Is(err, errUsernameTaken):
			http.Error(w, `{"error":"Username taken"}`, http.StatusConflict)
		case errors.As(err, &invalid):
			http.Error(w, `{"error":"`+invalid.Error()+`"}`, http.StatusBadRequest)
		default:
			log.Error().Err(err).Msg("create user")
			http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
		}
		return
	}
	tok, exp, err := s.signJWT(u.ID, u.Username)
	if err != nil {
		http.Error(w, `{"error":"sign_failed"}`, http.StatusInternalServerError)
		return
	}
	s.setAuthCookie(w, tok, exp)
	s.claimAnonRecords(r.Context(), s.ensureAnonID(w, r), u.ID)
	_ = json.NewEncoder(w).Encode(map[string]any{"id": u.ID, "username": u.Username, "createdAt": u.CreatedAt, "token": tok})
}

// handleLogin authenticates user, sets cookie, and claims anon records.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginReq
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid_json"}`, http.StatusBadRequest)
		return
	}
	u, err := s.findUserByUsername(r.Context(), strings.TrimSpace(body.Username))
	if err != nil || !checkPassword(u.PasswordHash, body.Password) {
		http.Error(w, `{"error":"Invalid username or password"}`, http.StatusUnauthorized)
		return
	}
	tok, exp, err := s.signJWT(u.ID, u.Username)
	if err != nil {
		http.Error(w, `{"error":"sign_failed"}`, http.StatusInternalServerError)
		return
	}
	s.setAuthCookie(w, tok, exp)
	s.claimAnonRecords(r.Context(), s.ensureAnonID(w, r), u.ID)
	_ = json.NewEncoder(w).Encode(map[string]any{"id": u.ID, "username": u.Username, "token": tok})
}

// handleLogout clears the auth cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.clearAuthCookie(w)
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// --------------------------- optional auth ---------------------------------

// withOptionalAuth decorates requests with user context if a valid JWT is present.
// It never 401s; used for routes where guests are allowed.
func (s *Server) withOptionalAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tok := s.bearerOrCookie(r); tok != "" {
				if id, _, ok := s.parseJWT(tok); ok {
					if u, err := s.findUserByID(r.Context(), id); err == nil {
						ctx := context.WithValue(r.Context(), ctxUserKey{}, &authUser{ID: u.ID, Username: u.Username})
						r = r.WithContext(ctx)
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

const anonCookieName = "set_anon"

// ensureAnonID returns an existing anon cookie or sets a new one.
// Used to associate guest records with a stable identifier.
func (s *Server) ensureAnonID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(anonCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	id := genID()
	http.SetCookie(w, &http.Cookie{
		Name:     anonCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.Secure,
		SameSite: s.sameSite(),
		Expires:  time.Now().Add(180 * 24 * time.Hour),
	})
	// later reads in the same request see the new id
	r.AddCookie(&http.Cookie{Name: anonCookieName, Value: id})
	return id
}

// claimAnonRecords transfers any anonymous records to a user account after auth.
func (s *Server) claimAnonRecords(ctx context.Context, anonID, userID string) {
	if err := s.records.ClaimOwner(ctx, anonID, userID); err != nil {
		log.Warn().Err(err).Msg("claim anon records")
	}
}

// ------------------------ auth helpers & users -----------------------------

var errUsernameTaken = errors.New("username taken")

// signupError is a validation failure shown to the user as is.
type signupError string

func (e signupError) Error() string { return string(e) }

// userRow matches the users table shape.
type userRow struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	GamesPlayed  int
	BestScore    int
}

// createUser validates input, checks uniqueness, hashes password, and inserts a new user.
func (s *Server) createUser(ctx context.Context, username, pw string) (*userRow, error) {
	username = normalizeUsername(username)
	if err := validateSignup(username, pw); err != nil {
		return nil, err
	}
	var exists int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT 1 FROM users WHERE lower(username)=lower(?)`), username).Scan(&exists)
	switch {
	case err == nil:
		return nil, errUsernameTaken
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	id := genID()
	if _, err := s.db.ExecContext(ctx, s.q(`INSERT INTO users (id, username, password_hash, created_at) VALUES (?,?,?,?)`),
		id, username, string(h), now); err != nil {
		return nil, err
	}
	return &userRow{ID: id, Username: username, PasswordHash: string(h), CreatedAt: mustParse(now)}, nil
}

// findUserByUsername/ID load a user row or return an error if missing.
func (s *Server) findUserByUsername(ctx context.Context, username string) (*userRow, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT id, username, password_hash, created_at, games_played, best_score
	                      FROM users WHERE lower(username)=lower(?)`), username)
	return scanUser(row)
}
func (s *Server) findUserByID(ctx context.Context, id string) (*userRow, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT id, username, password_hash, created_at, games_played, best_score
	                      FROM users WHERE id=?`), id)
	return scanUser(row)
}

// scanUser converts a *sql.Row into a userRow.
func scanUser(row *sql.Row) (*userRow, error) {
	var u userRow
	var created string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &created, &u.GamesPlayed, &u.BestScore); err != nil {
		return nil, err
	}
	u.CreatedAt = mustParse(created)
	return &u, nil
}

// mustParse parses RFC3339 timestamps; on error returns zero time.
func mustParse(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// checkPassword is a bcrypt verifier.
func checkPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

func normalizeUsername(u string) string {
	return strings.TrimSpace(u)
}

// validateSignup enforces basic username/password rules.
func validateSignup(u, p string) error {
	if len(u) < 3 || len(u) > 24 {
		return signupError("username must be 3-24 chars")
	}
	for _, r := range u {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return signupError("username: letters, numbers, underscore only")
		}
	}
	if len(p) < 8 || len(p) > 100 {
		return signupError("password must be 8-100 chars")
	}
	return nil
}

// genID creates a 22-char URL-safe, crypto-random identifier (no padding).
func genID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// bumpStats counts a finished game and keeps the best score (single tx).
func (s *Server) bumpStats(ctx context.Context, userID string, score int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var played, best int
	row := tx.QueryRowContext(ctx, s.q(`SELECT games_played, best_score FROM users WHERE id=?`), userID)
	if err := row.Scan(&played, &best); err != nil {
		return err
	}
	if played == 0 || score > best {
		best = score
	}
	played++
	if _, err := tx.ExecContext(ctx, s.q(`UPDATE users SET games_played=?, best_score=? WHERE id=?`), played, best, userID); err != nil {
		return err
	}
	return tx.Commit()
}

// ------------------------------ JWT & cookies ------------------------------

// signJWT creates an HS256 JWT with id/username and the configured expiry.
func (s *Server) signJWT(id, username string) (string, time.Time, error) {
	exp := time.Now().Add(time.Duration(s.opts.JWTExpiresDays) * 24 * time.Hour)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":       id,
		"username": username,
		"exp":      exp.Unix(),
		"iat":      time.Now().Unix(),
	})
	ss, err := t.SignedString([]byte(s.opts.JWTSecret))
	return ss, exp, err
}

// parseJWT validates a token and returns its id/username claims.
func (s *Server) parseJWT(tokenStr string) (id, username string, ok bool) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.opts.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", "", false
	}
	id, _ = claims["id"].(string)
	username, _ = claims["username"].(string)
	return id, username, id != "" && username != ""
}

func (s *Server) sameSite() http.SameSite {
	if s.opts.Secure {
		return http.SameSiteNoneMode // required for third-party contexts when Secure
	}
	return http.SameSiteLaxMode
}

// setAuthCookie writes the auth token cookie with appropriate security attributes.
func (s *Server) setAuthCookie(w http.ResponseWriter, token string, exp time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.Secure,
		SameSite: s.sameSite(),
		Expires:  exp,
	})
}

// clearAuthCookie deletes the auth token cookie.
func (s *Server) clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.Secure,
		SameSite: s.sameSite(),
		MaxAge:   -1,
	})
}

// bearerOrCookie extracts a bearer token from Authorization header or auth cookie.
func (s *Server) bearerOrCookie(r *http.Request) string {
	// Authorization: Bearer <token>
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(s.opts.CookieName); err == nil {
		return c.Value
	}
	return ""
}

// ---------------------------- auth middleware ------------------------------

// ctxUserKey is the context key type for storing authUser.
type ctxUserKey struct{}

// requireAuth enforces a valid JWT and injects authUser into request context.
func (s *Server) requireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := s.bearerOrCookie(r)
			if tokenStr == "" {
				http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
				return
			}
			id, username, ok := s.parseJWT(tokenStr)
			if !ok {
				http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
				return
			}
			// Ensure user still exists
			if _, err := s.findUserByID(r.Context(), id); err != nil {
				http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ctxUserKey{}, &authUser{ID: id, Username: username})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
