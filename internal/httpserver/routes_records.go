// internal/httpserver/routes_records.go
//
// Finished-game history endpoints.
// Endpoints:
//   - GET    /records              -> caller's history, oldest first
//   - GET    /records/top?limit=N  -> caller's best games (default 5)
//   - GET    /records.csv          -> caller's history as CSV
//   - DELETE /records              -> clear caller's history
//   - GET    /records/daily?date=  -> daily leaderboard (default today, UTC)
//
// Ownership: logged-in user id, or the anonymous cookie id for guests.

package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/setgame/internal/daily"
	"github.com/robalobadob/setgame/internal/records"
)

// mountRecords registers the history routes on r.
func (s *Server) mountRecords(r chi.Router) {
	r.Get("/records", s.handleListRecords)
	r.Get("/records/top", s.handleTopRecords)
	r.Get("/records.csv", s.handleExportRecords)
	r.Delete("/records", s.handleClearRecords)
	r.Get("/records/daily", s.handleDailyLeaderboard)
}

type recordsRes struct {
	Records []records.Entry `json:"records"`
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	list, err := s.records.List(r.Context(), s.ownerID(w, r))
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(recordsRes{Records: nonNil(list)})
}

func (s *Server) handleTopRecords(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	top, err := s.records.Top(r.Context(), s.ownerID(w, r), limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(recordsRes{Records: nonNil(top)})
}

// handleExportRecords streams the caller's history with the CSV header row,
// even when the history is empty.
func (s *Server) handleExportRecords(w http.ResponseWriter, r *http.Request) {
	list, err := s.records.List(r.Context(), s.ownerID(w, r))
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="set-records.csv"`)
	if err := records.WriteCSV(w, list); err != nil {
		log.Error().Err(err).Msg("write csv")
	}
}

func (s *Server) handleClearRecords(w http.ResponseWriter, r *http.Request) {
	owner := s.ownerID(w, r)
	n, err := s.records.Clear(r.Context(), owner)
	if err != nil {
		writeErr(w, err)
		return
	}
	log.Info().Str("owner", owner).Int64("deleted", n).Msg("records cleared")
	_ = json.NewEncoder(w).Encode(map[string]int64{"deleted": n})
}

type leaderboardRes struct {
	Date    string          `json:"date"`
	Records []records.Entry `json:"records"`
}

func (s *Server) handleDailyLeaderboard(w http.ResponseWriter, r *http.Request) {
	day := r.URL.Query().Get("date")
	if day == "" {
		day = daily.DateKey(s.opts.Now())
	} else if _, err := time.Parse("2006-01-02", day); err != nil {
		http.Error(w, `{"error":"bad_date"}`, http.StatusBadRequest)
		return
	}
	lb, err := s.records.DailyLeaderboard(r.Context(), day, 0)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(leaderboardRes{Date: day, Records: nonNil(lb)})
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil(list []records.Entry) []records.Entry {
	if list == nil {
		return []records.Entry{}
	}
	return list
}
