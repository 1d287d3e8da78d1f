package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/ohhell/engine"
	"github.com/jason-s-yu/ohhell/internal/auth"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ExportData is the backup document of the whole registry.
type ExportData struct {
	Players    []engine.Player `json:"players"`
	Games      []engine.Game   `json:"games"`
	ExportDate time.Time       `json:"exportDate"`
}

// Export returns the registry as an indented JSON document.
func (m *Manager) Export() ([]byte, error) {
	data := ExportData{
		Players:    m.ListPlayers(),
		Games:      m.ListGames(),
		ExportDate: m.now(),
	}
	return json.MarshalIndent(data, "", "  ")
}

// Import replaces the registry with an exported document. Records missing from
// the document are deleted from the stores; every imported record is rewritten.
func (m *Manager) Import(role auth.Role, raw []byte) error {
	if err := requireAdmin(role); err != nil {
		return err
	}
	var doc struct {
		Players *[]engine.Player `json:"players"`
		Games   *[]engine.Game   `json:"games"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: import document: %v", engine.ErrInvalidConfiguration, err)
	}
	if doc.Players == nil || doc.Games == nil {
		return fmt.Errorf("%w: import document needs both players and games", engine.ErrInvalidConfiguration)
	}
	for _, p := range *doc.Players {
		if p.ID == "" {
			return fmt.Errorf("%w: imported player without id", engine.ErrInvalidConfiguration)
		}
	}
	for _, g := range *doc.Games {
		if g.ID == "" {
			return fmt.Errorf("%w: imported game without id", engine.ErrInvalidConfiguration)
		}
	}

	m.settle(m.replaceRegistry(*doc.Players, *doc.Games, true))
	m.log.WithFields(logrus.Fields{"players": len(*doc.Players), "games": len(*doc.Games)}).Info("Registry imported.")
	return nil
}

// replaceRegistry swaps in new players and games. Existing sessions are kept
// for surviving games. With publish set it queues deletes for every record
// that is gone and upserts for every new one, and reports whether the outbox
// filled.
func (m *Manager) replaceRegistry(players []engine.Player, games []engine.Game, publish bool) bool {
	unlock := m.lockAllSessions()
	defer unlock()
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []Effect
	nextPlayers := make(map[string]engine.Player, len(players))
	for _, p := range players {
		nextPlayers[p.ID] = p.Clone()
	}
	for id := range m.players {
		if _, ok := nextPlayers[id]; !ok {
			removed = append(removed, Effect{Kind: EffectDeletePlayer, ID: id})
		}
	}

	nextGames := make(map[string]engine.Game, len(games))
	nextSessions := make(map[string]*session, len(games))
	for _, g := range games {
		nextGames[g.ID] = g.Clone()
		if s, ok := m.sessions[g.ID]; ok {
			nextSessions[g.ID] = s
		} else {
			nextSessions[g.ID] = &session{}
		}
	}
	for id := range m.games {
		if _, ok := nextGames[id]; !ok {
			removed = append(removed, Effect{Kind: EffectDeleteGame, ID: id})
		}
	}

	m.players = nextPlayers
	m.games = nextGames
	m.sessions = nextSessions
	if !publish {
		return false
	}
	effects := removed
	for _, p := range players {
		effects = append(effects, upsertPlayer(p))
	}
	for _, g := range games {
		effects = append(effects, upsertGame(g))
	}
	return m.push(effects...)
}

// RecalculateRatings replays every completed game from default ratings and
// returns the updated players.
func (m *Manager) RecalculateRatings(role auth.Role) ([]engine.Player, error) {
	if err := requireAdmin(role); err != nil {
		return nil, err
	}
	unlock := m.lockAllSessions()
	defer unlock()
	m.mu.Lock()

	players := make([]engine.Player, 0, len(m.players))
	for _, p := range m.players {
		players = append(players, p)
	}
	games := make([]engine.Game, 0, len(m.games))
	for _, g := range m.games {
		games = append(games, g)
	}
	players, games, err := engine.ReplayRatings(players, games, m.rules)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	effects := make([]Effect, 0, len(players)+len(games))
	for _, p := range players {
		m.players[p.ID] = p
		effects = append(effects, upsertPlayer(p))
	}
	for _, g := range games {
		m.games[g.ID] = g
		if g.Status == engine.GameCompleted {
			effects = append(effects, upsertGame(g))
		}
	}
	full := m.push(effects...)
	m.mu.Unlock()

	m.settle(full)
	m.log.WithFields(logrus.Fields{"players": len(players), "games": len(games)}).Info("Ratings recalculated.")
	return m.ListPlayers(), nil
}

const effectLoad EffectKind = "load"

func loadAll(ctx context.Context, l Loader) ([]engine.Player, []engine.Game, error) {
	var players []engine.Player
	var games []engine.Game
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		players, err = l.LoadPlayers(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		games, err = l.LoadGames(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return players, games, nil
}

// Load fills the registry from the remote store, falling back to the local
// store when the remote one is missing or fails. Records loaded from the
// remote store are mirrored to the other sinks. It returns the name of the
// store that served the data, or "" when no store is configured.
func (m *Manager) Load(ctx context.Context) (string, error) {
	sources := []struct {
		name   string
		loader Loader
	}{
		{SinkRemote, m.remote},
		{SinkLocal, m.local},
	}

	var errs []error
	for _, src := range sources {
		if src.loader == nil {
			continue
		}
		players, games, err := loadAll(ctx, src.loader)
		if err != nil {
			m.warn(Warning{Sink: src.name, Kind: effectLoad, Err: err})
			errs = append(errs, fmt.Errorf("%s: %w", src.name, err))
			continue
		}

		m.replaceRegistry(players, games, false)
		for _, p := range players {
			m.mirror(ctx, upsertPlayer(p), src.name)
		}
		for _, g := range games {
			m.mirror(ctx, upsertGame(g), src.name)
		}
		m.log.WithFields(logrus.Fields{"source": src.name, "players": len(players), "games": len(games)}).Info("Registry loaded.")
		return src.name, nil
	}
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return "", nil
}

// mirror copies a loaded record to every sink other than its source and the remote store.
func (m *Manager) mirror(ctx context.Context, e Effect, source string) {
	for _, s := range m.sinks {
		if s.Name == source || s.Name == SinkRemote {
			continue
		}
		if err := applyEffect(ctx, s.Store, e); err != nil {
			m.warn(Warning{Sink: s.Name, Kind: e.Kind, ID: e.ID, Err: err})
		}
	}
}

// Leaderboard is a ranked index of player ratings.
type Leaderboard interface {
	SetRating(ctx context.Context, playerID string, rating int) error
	RemovePlayer(ctx context.Context, playerID string) error
}

type leaderboardStore struct {
	lb Leaderboard
}

func (s leaderboardStore) UpsertPlayer(ctx context.Context, p engine.Player) error {
	return s.lb.SetRating(ctx, p.ID, p.Rating)
}

func (s leaderboardStore) DeletePlayer(ctx context.Context, id string) error {
	return s.lb.RemovePlayer(ctx, id)
}

func (leaderboardStore) UpsertGame(context.Context, engine.Game) error { return nil }

func (leaderboardStore) DeleteGame(context.Context, string) error { return nil }

// LeaderboardSink keeps a Leaderboard in step with player ratings.
func LeaderboardSink(lb Leaderboard) Sink {
	return Sink{Name: SinkLeaderboard, Store: leaderboardStore{lb: lb}}
}
