// Package apitest provides an in-process fake of the round/auth backend.
package apitest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/verte-zerg/tapgoose/internal/model"
)

// Route names used by Hits, FailNext and LastHeader.
const (
	RouteLogin  = "POST /auth/login"
	RouteLogout = "POST /auth/logout"
	RouteRounds = "GET /rounds"
	RouteRound  = "GET /rounds/{id}"
	RouteCreate = "POST /rounds"
	RouteTap    = "POST /rounds/{id}/tap"
	RouteStats  = "GET /rounds/{id}/stats"
)

type user struct {
	password string
	admin    bool
}

type failure struct {
	status int
	body   string
}

// Server is a fake backend with users, rounds and per-user tap counters.
type Server struct {
	*httptest.Server

	// PageSize limits rounds per page.
	PageSize int
	// ScorePerTap is the score added by each tap.
	ScorePerTap int
	// Envelope makes GET /rounds/{id} answer with {round, topStats, myStats}.
	Envelope bool
	// Cooldown and Duration shape rounds created through the API.
	Cooldown time.Duration
	Duration time.Duration
	// Now is the server clock.
	Now func() time.Time

	mu      sync.Mutex
	users   map[string]user
	tokens  map[string]string
	rounds  []model.Round
	taps    map[string]map[string]model.TapResult
	hits    map[string]int
	headers map[string]http.Header
	fail    map[string][]failure
}

// NewServer starts a fake backend that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		PageSize:    10,
		ScorePerTap: 10,
		Cooldown:    30 * time.Second,
		Duration:    60 * time.Second,
		Now:         time.Now,
		users:       map[string]user{},
		tokens:      map[string]string{},
		taps:        map[string]map[string]model.TapResult{},
		hits:        map[string]int{},
		headers:     map[string]http.Header{},
		fail:        map[string][]failure{},
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.track(RouteLogin, s.handleLogin))
		r.Post("/auth/logout", s.track(RouteLogout, s.handleLogout))
		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)
			r.Get("/rounds", s.track(RouteRounds, s.handleListRounds))
			r.Post("/rounds", s.track(RouteCreate, s.handleCreateRound))
			r.Get("/rounds/{id}", s.track(RouteRound, s.handleGetRound))
			r.Post("/rounds/{id}/tap", s.track(RouteTap, s.handleTap))
			r.Get("/rounds/{id}/stats", s.track(RouteStats, s.handleStats))
		})
	})
	return r
}

// AddUser registers credentials.
func (s *Server) AddUser(username, password string, admin bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = user{password: password, admin: admin}
}

// IssueToken returns a valid bearer token for username.
func (s *Server) IssueToken(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := uuid.NewString()
	s.tokens[token] = username
	return token
}

// AddRound appends a round to the listing.
func (s *Server) AddRound(round model.Round) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds = append(s.rounds, round)
}

// SetTaps overrides a user's counters in a round.
func (s *Server) SetTaps(roundID, username string, result model.TapResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taps[roundID] == nil {
		s.taps[roundID] = map[string]model.TapResult{}
	}
	s.taps[roundID][username] = result
}

// FailNext makes the next call of route answer with status and body.
func (s *Server) FailNext(route string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[route] = append(s.fail[route], failure{status: status, body: body})
}

// Hits returns how many requests reached route.
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// LastHeader returns a header of the latest request to route.
func (s *Server) LastHeader(route, name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.headers[route]
	if !ok {
		return ""
	}
	return h.Get(name)
}

func (s *Server) track(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[route]++
		s.headers[route] = r.Header.Clone()
		var injected *failure
		if queue := s.fail[route]; len(queue) > 0 {
			injected = &queue[0]
			s.fail[route] = queue[1:]
		}
		s.mu.Unlock()
		if injected != nil {
			w.WriteHeader(injected.status)
			_, _ = w.Write([]byte(injected.body))
			return
		}
		next(w, r)
	}
}

type ctxKey struct{}

func withUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, ctxKey{}, username)
}

func usernameFrom(ctx context.Context) string {
	username, _ := ctx.Value(ctxKey{}).(string)
	return username
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		username, known := s.tokens[token]
		s.mu.Unlock()
		if !ok || !known {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(withUsername(r.Context(), username)))
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	u, ok := s.users[req.Username]
	s.mu.Unlock()
	if !ok || u.password != req.Password {
		http.Error(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}
	role := "SURVIVOR"
	if u.admin {
		role = model.RoleAdmin
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":    s.IssueToken(req.Username),
		"username": req.Username,
		"role":     role,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleListRounds(w http.ResponseWriter, r *http.Request) {
	offset := 0
	if cursor := r.URL.Query().Get("cursor"); cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad cursor"})
			return
		}
		offset = n
	}
	s.mu.Lock()
	rounds := append([]model.Round(nil), s.rounds...)
	s.mu.Unlock()

	if offset > len(rounds) {
		offset = len(rounds)
	}
	end := offset + s.PageSize
	if end > len(rounds) {
		end = len(rounds)
	}
	pagination := model.Pagination{Limit: s.PageSize, HasMore: end < len(rounds)}
	if pagination.HasMore {
		pagination.NextCursor = strconv.Itoa(end)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":       rounds[offset:end],
		"pagination": pagination,
	})
}

func (s *Server) handleCreateRound(w http.ResponseWriter, r *http.Request) {
	username := usernameFrom(r.Context())
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.users[username].admin {
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "admin only"})
		return
	}
	now := s.Now().UTC()
	start := now.Add(s.Cooldown)
	round := model.Round{
		ID:        uuid.NewString(),
		StartTime: start,
		EndTime:   start.Add(s.Duration),
		CreatedAt: &now,
	}
	s.rounds = append([]model.Round{round}, s.rounds...)
	writeJSON(w, http.StatusCreated, round)
}

func (s *Server) handleGetRound(w http.ResponseWriter, r *http.Request) {
	round, ok := s.findRound(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "round not found"})
		return
	}
	round.Status = strings.ToLower(string(s.phase(round)))
	round.TotalScore = s.totalScore(round.ID)
	if !s.Envelope {
		writeJSON(w, http.StatusOK, round)
		return
	}
	username := usernameFrom(r.Context())
	my := s.counters(round.ID, username)
	top := []map[string]any{}
	for _, entry := range s.leaderboard(round.ID) {
		top = append(top, map[string]any{
			"taps":  entry.Taps,
			"score": entry.Score,
			"user":  map[string]string{"username": entry.Username},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"round":    round,
		"topStats": top,
		"myStats":  my,
	})
}

func (s *Server) handleTap(w http.ResponseWriter, r *http.Request) {
	round, ok := s.findRound(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "round not found"})
		return
	}
	if s.phase(round) != model.PhaseActive {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "round is not active"})
		return
	}
	username := usernameFrom(r.Context())
	s.mu.Lock()
	if s.taps[round.ID] == nil {
		s.taps[round.ID] = map[string]model.TapResult{}
	}
	result := s.taps[round.ID][username]
	result.Taps++
	result.Score += s.ScorePerTap
	s.taps[round.ID][username] = result
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	round, ok := s.findRound(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "round not found"})
		return
	}
	username := usernameFrom(r.Context())
	stats := map[string]any{
		"totalTaps":     s.totalTaps(round.ID),
		"winner":        nil,
		"personalScore": s.counters(round.ID, username).Score,
	}
	if board := s.leaderboard(round.ID); len(board) > 0 {
		stats["winner"] = map[string]any{
			"username": board[0].Username,
			"taps":     board[0].Taps,
			"score":    board[0].Score,
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) findRound(id string) (model.Round, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, round := range s.rounds {
		if round.ID == id {
			return round, true
		}
	}
	return model.Round{}, false
}

func (s *Server) phase(round model.Round) model.RoundPhase {
	now := s.Now()
	switch {
	case now.Before(round.StartTime):
		return model.PhaseCooldown
	case now.Before(round.EndTime):
		return model.PhaseActive
	default:
		return model.PhaseFinished
	}
}

func (s *Server) counters(roundID, username string) model.TapResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taps[roundID][username]
}

func (s *Server) leaderboard(roundID string) []model.TopStat {
	s.mu.Lock()
	defer s.mu.Unlock()
	board := make([]model.TopStat, 0, len(s.taps[roundID]))
	for username, result := range s.taps[roundID] {
		board = append(board, model.TopStat{Username: username, Taps: result.Taps, Score: result.Score})
	}
	sort.Slice(board, func(i, j int) bool {
		if board[i].Score == board[j].Score {
			return board[i].Username < board[j].Username
		}
		return board[i].Score > board[j].Score
	})
	return board
}

func (s *Server) totalScore(roundID string) int {
	total := 0
	for _, entry := range s.leaderboard(roundID) {
		total += entry.Score
	}
	return total
}

func (s *Server) totalTaps(roundID string) int {
	total := 0
	for _, entry := range s.leaderboard(roundID) {
		total += entry.Taps
	}
	return total
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
