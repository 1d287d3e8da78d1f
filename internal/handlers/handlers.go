// Package handlers exposes the game manager over HTTP and streams game
// events to WebSocket watchers.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jason-s-yu/ohhell/engine"
	"github.com/jason-s-yu/ohhell/internal/auth"
	"github.com/jason-s-yu/ohhell/internal/game"
	"github.com/sirupsen/logrus"
)

// Server handles HTTP requests.
type Server struct {
	games  *game.Manager
	gate   *auth.Gate
	issuer *auth.Issuer
	hub    *Hub
	log    *logrus.Entry
}

// NewServer creates a server and routes the manager's events through its hub.
func NewServer(games *game.Manager, gate *auth.Gate, issuer *auth.Issuer, log *logrus.Logger) *Server {
	s := &Server{
		games:  games,
		gate:   gate,
		issuer: issuer,
		hub:    NewHub(log),
		log:    log.WithField("component", "http"),
	}
	games.BroadcastFn = s.hub.Broadcast
	return s
}

// Hub returns the watcher hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Routes sets up the HTTP routes.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(s.authenticate)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/login", s.handleLogin)

	r.Get("/leaderboard", s.handleLeaderboard)
	r.Get("/export", s.handleExport)
	r.Post("/import", s.handleImport)
	r.Post("/ratings/recalculate", s.handleRecalculate)

	r.Route("/players", func(r chi.Router) {
		r.Get("/", s.handleListPlayers)
		r.Post("/", s.handleAddPlayer)
		r.Get("/{playerID}", s.handleGetPlayer)
		r.Patch("/{playerID}", s.handleRenamePlayer)
		r.Delete("/{playerID}", s.handleDeletePlayer)
		r.Get("/{playerID}/stats", s.handlePlayerStats)
	})

	r.Route("/games", func(r chi.Router) {
		r.Get("/", s.handleListGames)
		r.Post("/", s.handleCreateGame)
		r.Route("/{gameID}", func(r chi.Router) {
			r.Get("/", s.handleGetGame)
			r.Delete("/", s.handleDeleteGame)
			r.Post("/bids", s.handleSubmitBid)
			r.Post("/bids/revise", s.handleReviseBid)
			r.Post("/tricks", s.handleSubmitTricks)
			r.Post("/advance", s.handleAdvance)
			r.Post("/complete", s.handleComplete)
			r.Get("/actions", s.handleActions)
			r.Get("/watch", s.handleWatch)
		})
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start),
			"request":  middleware.GetReqID(r.Context()),
		}).Debug("Request served.")
	})
}

type roleKey struct{}

// authenticate resolves the bearer token, or the "token" query parameter used
// by WebSocket clients, into a role. Requests without a token read only.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		role := auth.RoleNone
		if token != "" {
			var err error
			if role, err = s.issuer.Parse(token); err != nil {
				writeError(w, http.StatusUnauthorized, ErrTypeUnauthorized, err.Error())
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roleKey{}, role)))
	})
}

func roleFrom(r *http.Request) auth.Role {
	role, _ := r.Context().Value(roleKey{}).(auth.Role)
	return role
}

var errBadBody = errors.New("malformed request body")

func decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, ErrTypeBadRequest, err.Error())
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse carries the role token.
type LoginResponse struct {
	Token     string    `json:"token"`
	Role      auth.Role `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	role, err := s.gate.Login(req.Password)
	if err != nil {
		s.log.WithField("ip", r.RemoteAddr).Info("Failed login.")
		s.fail(w, r, err)
		return
	}
	token, exp, err := s.issuer.Issue(role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, Role: role, ExpiresAt: exp})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.games.Leaderboard())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.games.Export()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="ohhell-export.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 32<<20))
	if err != nil {
		s.badRequest(w, err)
		return
	}
	if err := s.games.Import(roleFrom(r), raw); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	if _, err := s.games.RecalculateRatings(roleFrom(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.games.Leaderboard())
}

// PlayerRequest is the body of player create and rename requests.
type PlayerRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleListPlayers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.games.ListPlayers())
}

func (s *Server) handleAddPlayer(w http.ResponseWriter, r *http.Request) {
	var req PlayerRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	p, err := s.games.AddPlayer(roleFrom(r), req.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	p, err := s.games.GetPlayer(chi.URLParam(r, "playerID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleRenamePlayer(w http.ResponseWriter, r *http.Request) {
	var req PlayerRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	p, err := s.games.RenamePlayer(roleFrom(r), chi.URLParam(r, "playerID"), req.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePlayer(w http.ResponseWriter, r *http.Request) {
	if err := s.games.DeletePlayer(roleFrom(r), chi.URLParam(r, "playerID")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePlayerStats(w http.ResponseWriter, r *http.Request) {
	d, err := s.games.PlayerStats(chi.URLParam(r, "playerID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// CreateGameRequest is the body of POST /games.
type CreateGameRequest struct {
	PlayerIDs          []string `json:"playerIds"`
	MaxCards           int      `json:"maxCards"`
	InitialDealerIndex int      `json:"initialDealerIndex"`
}

func (s *Server) handleListGames(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.games.ListGames())
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req CreateGameRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	g, err := s.games.CreateGame(roleFrom(r), req.PlayerIDs, req.MaxCards, req.InitialDealerIndex)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, game.NewSnapshot(g))
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	snap, err := s.games.Snapshot(chi.URLParam(r, "gameID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
	if err := s.games.DeleteGame(roleFrom(r), chi.URLParam(r, "gameID")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BidRequest is the body of bid submissions and revisions. Bid is ignored on revision.
type BidRequest struct {
	PlayerID string `json:"playerId"`
	Bid      int    `json:"bid"`
}

// TricksRequest is the body of POST /games/{id}/tricks.
type TricksRequest struct {
	Tricks map[string]int `json:"tricks"`
}

// CompletionResponse is the body of POST /games/{id}/complete.
type CompletionResponse struct {
	game.Snapshot
	Winners []string `json:"winners"`
}

// respond writes the snapshot of the game an update returned, or the error.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, update func(role auth.Role, gameID string) (engine.Game, error)) {
	g, err := update(roleFrom(r), chi.URLParam(r, "gameID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, game.NewSnapshot(g))
}

func (s *Server) handleSubmitBid(w http.ResponseWriter, r *http.Request) {
	var req BidRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	s.respond(w, r, func(role auth.Role, gameID string) (engine.Game, error) {
		return s.games.SubmitBid(role, gameID, req.PlayerID, req.Bid)
	})
}

func (s *Server) handleReviseBid(w http.ResponseWriter, r *http.Request) {
	var req BidRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	s.respond(w, r, func(role auth.Role, gameID string) (engine.Game, error) {
		return s.games.ReviseBid(role, gameID, req.PlayerID)
	})
}

func (s *Server) handleSubmitTricks(w http.ResponseWriter, r *http.Request) {
	var req TricksRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	s.respond(w, r, func(role auth.Role, gameID string) (engine.Game, error) {
		return s.games.SubmitTricks(role, gameID, req.Tricks)
	})
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, func(role auth.Role, gameID string) (engine.Game, error) {
		return s.games.AdvanceRound(role, gameID)
	})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	done, err := s.games.CompleteGame(roleFrom(r), chi.URLParam(r, "gameID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := CompletionResponse{Snapshot: game.NewSnapshot(done.Game), Winners: done.Winners}
	resp.Placements = done.Placements
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	records, err := s.games.Actions(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleWatch upgrades to a WebSocket that receives the current snapshot and
// then every event of the game.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	// Register before reading the snapshot so a deletion in between still
	// reaches this watcher.
	watcher := s.hub.add(gameID)
	snap, err := s.games.Snapshot(gameID)
	if err != nil {
		s.hub.remove(gameID, watcher)
		s.fail(w, r, err)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		s.hub.remove(gameID, watcher)
		s.log.WithError(err).WithField("game", gameID).Warn("WebSocket upgrade failed.")
		return
	}

	initial, err := json.Marshal(game.GameEvent{Type: game.EventSyncState, GameID: gameID, State: &snap})
	if err != nil {
		s.hub.remove(gameID, watcher)
		conn.Close(websocket.StatusInternalError, "encoding failed")
		return
	}
	if err := writeTimeout(r.Context(), conn, initial); err != nil {
		s.hub.remove(gameID, watcher)
		return
	}
	s.log.WithField("game", gameID).Debug("Watcher connected.")
	s.hub.serve(r.Context(), conn, gameID, watcher)
}
