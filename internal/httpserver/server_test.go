package httpserver

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/robalobadob/setgame/assets"
	"github.com/robalobadob/setgame/internal/card"
	"github.com/robalobadob/setgame/internal/deck"
	"github.com/robalobadob/setgame/internal/game"
	"github.com/robalobadob/setgame/internal/records"
	"github.com/robalobadob/setgame/internal/store"
)

type harness struct {
	t   *testing.T
	srv *Server
	ts  *httptest.Server
	c   *http.Client
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	migs, err := assets.Migrations()
	if err != nil {
		t.Fatalf("migrations: %v", err)
	}
	for _, m := range migs {
		if _, err := db.Exec(m.SQL); err != nil {
			t.Fatalf("apply %s: %v", m.Name, err)
		}
	}

	opts.Driver = "sqlite3"
	srv := New(store.NewMemoryStore(), records.NewStore(db, "sqlite3"), db, opts)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &harness{t: t, srv: srv, ts: ts, c: newClient(t)}
}

func newClient(t *testing.T) *http.Client {
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{Jar: jar}
}

// do sends body as JSON and decodes a JSON reply into out (when non-nil).
func (h *harness) do(c *http.Client, method, path string, body, out any) int {
	h.t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, h.ts.URL+path, rd)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			h.t.Fatalf("%s %s decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (h *harness) newGame(c *http.Client, req newGameReq) newGameRes {
	h.t.Helper()
	var res newGameRes
	if code := h.do(c, "POST", "/game/new", req, &res); code != http.StatusOK {
		h.t.Fatalf("new game status %d", code)
	}
	return res
}

// board reads the live board straight from the session store.
func (h *harness) board(id string) []card.Card {
	h.t.Helper()
	var b []card.Card
	err := h.srv.store.View(context.Background(), id, func(g *game.Session) error {
		b = append(b, g.Board...)
		return nil
	})
	if err != nil {
		h.t.Fatalf("view %s: %v", id, err)
	}
	return b
}

func (h *harness) toggle(c *http.Client, id string, idx int) toggleRes {
	h.t.Helper()
	var res toggleRes
	if code := h.do(c, "POST", "/game/toggle", map[string]any{"gameId": id, "index": idx}, &res); code != http.StatusOK {
		h.t.Fatalf("toggle %d status %d", idx, code)
	}
	return res
}

func TestHealth(t *testing.T) {
	h := newHarness(t, Options{})
	var body map[string]bool
	if code := h.do(h.c, "GET", "/health", nil, &body); code != http.StatusOK || !body["ok"] {
		t.Fatalf("health = %d %v", code, body)
	}
}

func TestHintToggleEndAndRecords(t *testing.T) {
	h := newHarness(t, Options{})
	res := h.newGame(h.c, newGameReq{})
	if res.Game == nil || len(res.Game.Board) < 12 || res.Game.State != game.StatePlaying {
		t.Fatalf("unexpected new game %+v", res.Game)
	}
	id := res.Game.ID

	var hr hintRes
	if code := h.do(h.c, "POST", "/game/hint", hintReq{GameID: id}, &hr); code != http.StatusOK {
		t.Fatalf("hint status %d", code)
	}
	if !hr.Available || len(hr.Indices) != 2 || !hr.Game.HintPending {
		t.Fatalf("unexpected hint %+v", hr)
	}
	if len(hr.Game.Selection) != 2 || hr.Game.Phase != game.PhasePicking {
		t.Fatalf("hint should preselect two cards, got %v", hr.Game.Selection)
	}

	b := h.board(id)
	third := card.Third(b[hr.Indices[0]], b[hr.Indices[1]])
	k := -1
	for i, c := range b {
		if c == third {
			k = i
		}
	}
	if k < 0 {
		t.Fatalf("hinted pair has no third card on the board")
	}
	tr := h.toggle(h.c, id, k)
	if tr.Judgment == nil || !tr.Judgment.IsSet || !tr.Judgment.Outcome.UsedHint {
		t.Fatalf("unexpected judgment %+v", tr.Judgment)
	}
	if len(tr.Game.Successes) != 1 || tr.Game.HintPending || len(tr.Game.Selection) != 0 {
		t.Fatalf("unexpected game after judgment %+v", tr.Game)
	}

	var er endRes
	if code := h.do(h.c, "POST", "/game/end", endReq{GameID: id}, &er); code != http.StatusOK {
		t.Fatalf("end status %d", code)
	}
	if er.Summary.HintedSuccesses != 1 || er.Summary.TotalSuccesses != 1 ||
		er.Summary.Score != 0 || er.Summary.AvgUnhintedSec != nil {
		t.Fatalf("unexpected summary %+v", er.Summary)
	}
	if er.Game.State != game.StateEnded {
		t.Fatalf("state = %s, want ended", er.Game.State)
	}

	// finished sessions leave memory
	if code := h.do(h.c, "GET", "/game/"+id, nil, nil); code != http.StatusNotFound {
		t.Fatalf("ended game still served: %d", code)
	}
	if code := h.do(h.c, "POST", "/game/end", endReq{GameID: id}, nil); code != http.StatusNotFound {
		t.Fatalf("second end status %d", code)
	}

	var list recordsRes
	h.do(h.c, "GET", "/records", nil, &list)
	if len(list.Records) != 1 || list.Records[0].GameID != id || list.Records[0].HintedSuccesses != 1 {
		t.Fatalf("unexpected records %+v", list.Records)
	}
	var top recordsRes
	h.do(h.c, "GET", "/records/top?limit=3", nil, &top)
	if len(top.Records) != 1 {
		t.Fatalf("unexpected top %+v", top.Records)
	}

	resp, err := h.c.Get(h.ts.URL + "/records.csv")
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/csv") {
		t.Fatalf("csv content type %q", resp.Header.Get("Content-Type"))
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 || lines[0] != strings.Join(records.CSVHeader, ",") {
		t.Fatalf("unexpected csv %q", raw)
	}

	// another client has its own history
	var other recordsRes
	h.do(newClient(t), "GET", "/records", nil, &other)
	if len(other.Records) != 0 {
		t.Fatalf("records leaked across owners: %+v", other.Records)
	}

	var del map[string]int64
	h.do(h.c, "DELETE", "/records", nil, &del)
	if del["deleted"] != 1 {
		t.Fatalf("deleted = %v", del)
	}
	h.do(h.c, "GET", "/records", nil, &list)
	if len(list.Records) != 0 {
		t.Fatalf("records not cleared: %+v", list.Records)
	}
}

func TestPlayToGameOverRecordsAutomatically(t *testing.T) {
	for _, policy := range []game.Policy{game.PolicyRefill, game.PolicyAppend} {
		t.Run(string(policy), func(t *testing.T) {
			h := newHarness(t, Options{Policy: policy})
			id := h.newGame(h.c, newGameReq{}).Game.ID

			var last toggleRes
			rounds := 0
			for last.Summary == nil {
				if rounds > 40 {
					t.Fatalf("game did not finish after %d sets", rounds)
				}
				idx, ok := deck.FindSet(h.board(id))
				if !ok {
					t.Fatalf("playing board without a SET")
				}
				h.toggle(h.c, id, idx[0])
				h.toggle(h.c, id, idx[1])
				last = h.toggle(h.c, id, idx[2])
				if last.Judgment == nil || !last.Judgment.IsSet {
					t.Fatalf("FindSet triple judged as failure")
				}
				rounds++
			}
			if !last.Judgment.GameOver || last.Game.State != game.StateEnded {
				t.Fatalf("final toggle should report game over, got %+v", last.Game)
			}
			if last.Summary.TotalSuccesses != rounds || last.Summary.Score != rounds || last.Summary.Failures != 0 {
				t.Fatalf("summary %+v after %d sets", last.Summary, rounds)
			}
			if last.Summary.AvgUnhintedSec == nil || last.Summary.AvgFailureSec != nil {
				t.Fatalf("unexpected averages %+v", last.Summary)
			}
			if h.srv.store.Len() != 0 {
				t.Fatalf("finished game still in memory")
			}
			var list recordsRes
			h.do(h.c, "GET", "/records", nil, &list)
			if len(list.Records) != 1 || list.Records[0].TotalSuccesses != rounds {
				t.Fatalf("unexpected records %+v", list.Records)
			}
		})
	}
}

func TestFailedTripleKeepsBoard(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.newGame(h.c, newGameReq{}).Game.ID
	b := h.board(id)

	// find a triple that is not a SET
	var miss [3]int
	found := false
	for i := 0; i < len(b) && !found; i++ {
		for j := i + 1; j < len(b) && !found; j++ {
			for k := j + 1; k < len(b) && !found; k++ {
				if !card.IsSet(b[i], b[j], b[k]) {
					miss, found = [3]int{i, j, k}, true
				}
			}
		}
	}
	if !found {
		t.Fatalf("board is all SETs")
	}
	h.toggle(h.c, id, miss[0])
	h.toggle(h.c, id, miss[1])
	tr := h.toggle(h.c, id, miss[2])
	if tr.Judgment == nil || tr.Judgment.IsSet || len(tr.Game.Failures) != 1 {
		t.Fatalf("unexpected failure judgment %+v", tr)
	}
	if len(tr.Game.Board) != len(b) {
		t.Fatalf("board changed on failure")
	}
	for i := range b {
		if tr.Game.Board[i] != b[i] {
			t.Fatalf("board changed on failure at %d", i)
		}
	}
}

func TestGameErrors(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.newGame(h.c, newGameReq{}).Game.ID
	n := len(h.board(id))

	cases := []struct {
		name string
		path string
		body any
		want int
	}{
		{"index past board", "/game/toggle", map[string]any{"gameId": id, "index": n}, http.StatusBadRequest},
		{"negative index", "/game/toggle", map[string]any{"gameId": id, "index": -1}, http.StatusBadRequest},
		{"missing index", "/game/toggle", map[string]any{"gameId": id}, http.StatusBadRequest},
		{"unknown game", "/game/toggle", map[string]any{"gameId": "nope", "index": 0}, http.StatusNotFound},
		{"unknown game hint", "/game/hint", hintReq{GameID: "nope"}, http.StatusNotFound},
		{"unknown policy", "/game/new", newGameReq{Policy: "shuffle"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if code := h.do(h.c, "POST", tc.path, tc.body, nil); code != tc.want {
			t.Errorf("%s: status %d, want %d", tc.name, code, tc.want)
		}
	}
	if code := h.do(h.c, "GET", "/game/nope", nil, nil); code != http.StatusNotFound {
		t.Errorf("GET unknown game: %d", code)
	}

	// a rejected toggle leaves the session untouched
	var v game.View
	h.do(h.c, "GET", "/game/"+id, nil, &v)
	if len(v.Selection) != 0 || len(v.Board) != n {
		t.Fatalf("session changed by rejected toggles: %+v", v)
	}
}

func TestDailyOncePerDay(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, Options{DailySalt: "test", Now: func() time.Time { return now }})

	a := h.newGame(h.c, newGameReq{Mode: "daily"})
	b := h.newGame(newClient(t), newGameReq{Mode: "daily"})
	if a.Played || a.Date != "2025-06-01" || a.Game == nil || a.Game.Mode != game.ModeDaily {
		t.Fatalf("unexpected daily start %+v", a)
	}
	if len(a.Game.Board) != len(b.Game.Board) {
		t.Fatalf("daily boards differ in size")
	}
	for i := range a.Game.Board {
		if a.Game.Board[i] != b.Game.Board[i] {
			t.Fatalf("daily boards differ at %d", i)
		}
	}

	// asking again while the daily runs hands back the same game
	resumed := h.newGame(h.c, newGameReq{Mode: "daily"})
	if !resumed.Resumed || resumed.Game == nil || resumed.Game.ID != a.Game.ID {
		t.Fatalf("expected the running daily back, got %+v", resumed)
	}

	// two dailies started side by side (before either was visible) record once
	var owner string
	_ = h.srv.store.View(context.Background(), a.Game.ID, func(g *game.Session) error {
		owner = g.OwnerID
		return nil
	})
	twin, err := game.New(game.Config{Mode: game.ModeDaily, DayKey: "2025-06-01", Seed: 7})
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	twin.OwnerID = owner
	_ = h.srv.store.Save(context.Background(), twin)

	if code := h.do(h.c, "POST", "/game/end", endReq{GameID: a.Game.ID}, nil); code != http.StatusOK {
		t.Fatalf("end status %d", code)
	}
	if code := h.do(h.c, "POST", "/game/end", endReq{GameID: twin.ID}, nil); code != http.StatusConflict {
		t.Fatalf("second daily end status %d, want 409", code)
	}
	if code := h.do(h.c, "GET", "/game/"+twin.ID, nil, nil); code != http.StatusNotFound {
		t.Fatalf("refused daily still in memory: %d", code)
	}
	again := h.newGame(h.c, newGameReq{Mode: "daily"})
	if !again.Played || again.Game != nil {
		t.Fatalf("daily should be locked after a recorded game: %+v", again)
	}
	// classic games stay open
	if res := h.newGame(h.c, newGameReq{}); res.Played || res.Game == nil {
		t.Fatalf("classic game blocked: %+v", res)
	}

	var lb leaderboardRes
	h.do(h.c, "GET", "/records/daily", nil, &lb)
	if lb.Date != "2025-06-01" || len(lb.Records) != 1 || lb.Records[0].GameID != a.Game.ID {
		t.Fatalf("unexpected leaderboard %+v", lb)
	}
	if code := h.do(h.c, "GET", "/records/daily?date=June", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("bad date status %d", code)
	}
}

func TestAuthClaimsGuestRecordsAndStats(t *testing.T) {
	h := newHarness(t, Options{JWTSecret: "test-secret"})

	// play one game as a guest
	guest := h.newGame(h.c, newGameReq{}).Game.ID
	h.do(h.c, "POST", "/game/end", endReq{GameID: guest}, nil)

	if code := h.do(h.c, "GET", "/auth/me", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("guest /auth/me status %d", code)
	}
	creds := map[string]string{"username": "ada_l", "password": "correct horse"}
	if code := h.do(h.c, "POST", "/auth/signup", creds, nil); code != http.StatusOK {
		t.Fatalf("signup status %d", code)
	}
	if code := h.do(newClient(t), "POST", "/auth/signup", creds, nil); code != http.StatusConflict {
		t.Fatalf("duplicate signup status %d", code)
	}
	bad := map[string]string{"username": "ada_l", "password": "wrong password"}
	if code := h.do(newClient(t), "POST", "/auth/login", bad, nil); code != http.StatusUnauthorized {
		t.Fatalf("bad login status %d", code)
	}

	var me authUser
	if code := h.do(h.c, "GET", "/auth/me", nil, &me); code != http.StatusOK || me.Username != "ada_l" {
		t.Fatalf("/auth/me = %d %+v", code, me)
	}

	var list recordsRes
	h.do(h.c, "GET", "/records", nil, &list)
	if len(list.Records) != 1 || list.Records[0].GameID != guest {
		t.Fatalf("guest record not claimed: %+v", list.Records)
	}

	// a signed-in game bumps account stats
	id := h.newGame(h.c, newGameReq{}).Game.ID
	h.do(h.c, "POST", "/game/end", endReq{GameID: id}, nil)
	var stats map[string]any
	h.do(h.c, "GET", "/stats/me", nil, &stats)
	if stats["gamesPlayed"] != float64(1) || stats["bestScore"] != float64(0) {
		t.Fatalf("unexpected stats %v", stats)
	}

	// the same account from a fresh client sees both records
	other := newClient(t)
	if code := h.do(other, "POST", "/auth/login", creds, nil); code != http.StatusOK {
		t.Fatalf("login status %d", code)
	}
	h.do(other, "GET", "/records", nil, &list)
	if len(list.Records) != 2 {
		t.Fatalf("expected 2 records after login, got %d", len(list.Records))
	}

	h.do(h.c, "POST", "/auth/logout", nil, nil)
	if code := h.do(h.c, "GET", "/auth/me", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("/auth/me after logout status %d", code)
	}
}

func TestGameBoundToStarter(t *testing.T) {
	h := newHarness(t, Options{})
	id := h.newGame(h.c, newGameReq{}).Game.ID
	intruder := newClient(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"view", "GET", "/game/" + id, nil},
		{"toggle", "POST", "/game/toggle", map[string]any{"gameId": id, "index": 0}},
		{"hint", "POST", "/game/hint", hintReq{GameID: id}},
		{"end", "POST", "/game/end", endReq{GameID: id}},
	}
	for _, tc := range cases {
		if code := h.do(intruder, tc.method, tc.path, tc.body, nil); code != http.StatusNotFound {
			t.Errorf("%s by another client: status %d, want 404", tc.name, code)
		}
	}

	var v game.View
	h.do(h.c, "GET", "/game/"+id, nil, &v)
	if len(v.Selection) != 0 || v.HintPending || v.State != game.StatePlaying {
		t.Fatalf("another client changed the game: %+v", v)
	}
	if code := h.do(h.c, "POST", "/game/end", endReq{GameID: id}, nil); code != http.StatusOK {
		t.Fatalf("starter end status %d", code)
	}
	var mine, theirs recordsRes
	h.do(h.c, "GET", "/records", nil, &mine)
	h.do(intruder, "GET", "/records", nil, &theirs)
	if len(mine.Records) != 1 || len(theirs.Records) != 0 {
		t.Fatalf("records: starter=%d other=%d", len(mine.Records), len(theirs.Records))
	}
}

func TestGuestGameFinishesAfterSignup(t *testing.T) {
	h := newHarness(t, Options{JWTSecret: "test-secret"})
	id := h.newGame(h.c, newGameReq{}).Game.ID

	creds := map[string]string{"username": "grace_h", "password": "correct horse"}
	if code := h.do(h.c, "POST", "/auth/signup", creds, nil); code != http.StatusOK {
		t.Fatalf("signup status %d", code)
	}
	if code := h.do(h.c, "POST", "/game/end", endReq{GameID: id}, nil); code != http.StatusOK {
		t.Fatalf("end after signup status %d", code)
	}

	other := newClient(t)
	h.do(other, "POST", "/auth/login", creds, nil)
	var list recordsRes
	h.do(other, "GET", "/records", nil, &list)
	if len(list.Records) != 1 || list.Records[0].GameID != id {
		t.Fatalf("game not recorded to the account: %+v", list.Records)
	}
}

func TestNewGameRejectsMalformedBody(t *testing.T) {
	h := newHarness(t, Options{})
	post := func(body string) int {
		resp, err := h.c.Post(h.ts.URL+"/game/new", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	if code := post(`{"mode":`); code != http.StatusBadRequest {
		t.Fatalf("malformed body status %d, want 400", code)
	}
	if code := post(""); code != http.StatusOK {
		t.Fatalf("empty body status %d, want 200", code)
	}
	if h.srv.store.Len() != 1 {
		t.Fatalf("active games = %d, want 1", h.srv.store.Len())
	}
}

func TestSignupSurfacesDatabaseErrors(t *testing.T) {
	h := newHarness(t, Options{})
	if _, err := h.srv.db.Exec(`DROP TABLE users`); err != nil {
		t.Fatalf("drop: %v", err)
	}
	creds := map[string]string{"username": "ada_l", "password": "correct horse"}
	if code := h.do(h.c, "POST", "/auth/signup", creds, nil); code != http.StatusInternalServerError {
		t.Fatalf("signup status %d, want 500", code)
	}
	short := map[string]string{"username": "ab", "password": "correct horse"}
	if code := h.do(h.c, "POST", "/auth/signup", short, nil); code != http.StatusBadRequest {
		t.Fatalf("invalid signup status %d, want 400", code)
	}
}
