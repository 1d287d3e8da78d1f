// Package game orchestrates scorekeeping sessions. The Manager owns the
// in-memory registry of players and games, serializes transitions per game,
// and hands persistence side effects to an outbox drained in the background.
package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/ohhell/engine"
	"github.com/jason-s-yu/ohhell/internal/auth"
	"github.com/jason-s-yu/ohhell/internal/cache"
	"github.com/sirupsen/logrus"
)

// ErrForbidden is returned when the caller's role lacks the capability for an operation.
var ErrForbidden = errors.New("forbidden")

// GameEventType represents the type of a game event broadcast to watchers.
type GameEventType string

const (
	EventGameCreated     GameEventType = "game_created"
	EventBidSubmitted    GameEventType = "bid_submitted"
	EventBidRevised      GameEventType = "bid_revised"
	EventTricksSubmitted GameEventType = "tricks_submitted"
	EventRoundAdvanced   GameEventType = "round_advanced"
	EventGameCompleted   GameEventType = "game_completed"
	EventGameDeleted     GameEventType = "game_deleted"
	EventSyncState       GameEventType = "sync_state" // full state sent to a new watcher
)

// GameEvent is broadcast after every successful transition of a game.
type GameEvent struct {
	Type     GameEventType          `json:"type"`
	GameID   string                 `json:"gameId"`
	PlayerID string                 `json:"playerId,omitempty"` // seat that acted, if any
	Round    int                    `json:"round,omitempty"`    // 1-based round the event concerns
	Payload  map[string]interface{} `json:"payload,omitempty"`
	State    *Snapshot              `json:"state,omitempty"` // absent for deletions
}

// ActionLog records game actions for later replay or audit.
type ActionLog interface {
	PublishGameAction(ctx context.Context, rec cache.GameActionRecord) error
	GameActions(ctx context.Context, gameID string) ([]cache.GameActionRecord, error)
	LastActionIndex(ctx context.Context, gameID string) (int, error)
	DeleteGameActions(ctx context.Context, gameID string) error
}

// session serializes transitions of one game. Sessions of games loaded or
// imported start unseeded and continue the action log where it ends.
type session struct {
	mu          sync.Mutex
	actionIndex int
	seeded      bool
}

// Options configures a Manager. Zero values select defaults.
type Options struct {
	Rules engine.Rules
	// Now supplies timestamps for new games and rating history.
	Now func() time.Time
	// NewID supplies ids for new records given a short kind prefix.
	NewID func(prefix string) string
	// Remote is the durable source of truth; Local is the fallback copy.
	// Either may be nil. Both receive every persistence effect.
	Remote Loader
	Local  Loader
	// Sinks receive every persistence effect after Remote and Local.
	Sinks []Sink
	// Actions receives the action log. Nil disables it.
	Actions ActionLog
	// OutboxSize is the queue length at which effects are applied inline.
	OutboxSize int
	Logger     *logrus.Logger
}

// Manager is the collaborator-facing surface over the engine.
type Manager struct {
	mu       sync.RWMutex
	players  map[string]engine.Player
	games    map[string]engine.Game
	sessions map[string]*session

	rules   engine.Rules
	now     func() time.Time
	newID   func(prefix string) string
	remote  Loader
	local   Loader
	sinks   []Sink
	actions ActionLog

	queueMu  sync.Mutex
	queue    []Effect
	queueCap int
	ready    chan struct{}
	drainMu  sync.Mutex
	warnings chan Warning
	pending  sync.WaitGroup // in-flight action log writes

	// BroadcastFn sends an event to everyone watching a game. Set it before use.
	BroadcastFn func(ev GameEvent)

	log *logrus.Entry
}

func defaultID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// New creates an empty Manager.
func New(opts Options) *Manager {
	if opts.Rules == (engine.Rules{}) {
		opts.Rules = engine.DefaultRules()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = defaultID
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = 1024
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	var sinks []Sink
	if opts.Remote != nil {
		sinks = append(sinks, Sink{Name: SinkRemote, Store: opts.Remote})
	}
	if opts.Local != nil {
		sinks = append(sinks, Sink{Name: SinkLocal, Store: opts.Local})
	}
	sinks = append(sinks, opts.Sinks...)

	return &Manager{
		players:  make(map[string]engine.Player),
		games:    make(map[string]engine.Game),
		sessions: make(map[string]*session),
		rules:    opts.Rules,
		now:      opts.Now,
		newID:    opts.NewID,
		remote:   opts.Remote,
		local:    opts.Local,
		sinks:    sinks,
		actions:  opts.Actions,
		queueCap: opts.OutboxSize,
		ready:    make(chan struct{}, 1),
		warnings: make(chan Warning, 64),
		log:      opts.Logger.WithField("component", "game"),
	}
}

// Rules returns the rating rules in effect.
func (m *Manager) Rules() engine.Rules {
	return m.rules
}

func requireWrite(role auth.Role) error {
	if !role.CanWrite() {
		return fmt.Errorf("%w: role %q cannot record games", ErrForbidden, role)
	}
	return nil
}

func requireAdmin(role auth.Role) error {
	if !role.CanAdminister() {
		return fmt.Errorf("%w: role %q cannot administer", ErrForbidden, role)
	}
	return nil
}

// lockSession locks the session of gameID. ok is false when the game is unknown.
func (m *Manager) lockSession(gameID string) (*session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[gameID]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	return s, true
}

// lockAllSessions locks every session in id order. The returned func unlocks them.
func (m *Manager) lockAllSessions() func() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	locked := make([]*session, 0, len(ids))
	sort.Strings(ids)
	for _, id := range ids {
		locked = append(locked, m.sessions[id])
	}
	m.mu.RUnlock()

	for _, s := range locked {
		s.mu.Lock()
	}
	return func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].mu.Unlock()
		}
	}
}

// transition applies fn to the stored game under its session lock, stores the
// result, and emits the resulting effect and event.
func (m *Manager) transition(gameID, actorID string, evType GameEventType, payload map[string]interface{},
	fn func(engine.Game) (engine.Game, error)) (engine.Game, error) {

	s, ok := m.lockSession(gameID)
	if !ok {
		return engine.Game{}, fmt.Errorf("%w: game %s", engine.ErrNotFound, gameID)
	}
	defer s.mu.Unlock()

	m.mu.RLock()
	current, ok := m.games[gameID]
	m.mu.RUnlock()
	if !ok {
		return engine.Game{}, fmt.Errorf("%w: game %s", engine.ErrNotFound, gameID)
	}

	next, err := fn(current)
	if err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{"game": gameID, "action": string(evType)}).Debug("Transition rejected.")
		return engine.Game{}, err
	}

	m.mu.Lock()
	m.games[gameID] = next
	m.mu.Unlock()

	m.enqueue(upsertGame(next))
	m.emit(s, next, actorID, evType, payload)
	m.log.WithFields(logrus.Fields{"game": gameID, "action": string(evType), "round": next.CurrentRoundIndex + 1}).Info("Game updated.")
	return next.Clone(), nil
}

// emit broadcasts the event and appends it to the action log. Callers hold the session lock.
func (m *Manager) emit(s *session, g engine.Game, actorID string, evType GameEventType, payload map[string]interface{}) {
	snap := NewSnapshot(g)
	ev := GameEvent{
		Type:     evType,
		GameID:   g.ID,
		PlayerID: actorID,
		Round:    g.CurrentRoundIndex + 1,
		Payload:  payload,
		State:    &snap,
	}
	m.fireEvent(ev)
	m.logAction(s, g.ID, actorID, string(evType), payload)
}

func (m *Manager) fireEvent(ev GameEvent) {
	if m.BroadcastFn != nil {
		m.BroadcastFn(ev)
	}
}

// logAction publishes the action to the action log asynchronously.
// Callers hold the session lock.
func (m *Manager) logAction(s *session, gameID, actorID, actionType string, payload map[string]interface{}) {
	if m.actions == nil {
		s.actionIndex++
		return
	}
	if !s.seeded {
		m.seedActionIndex(s, gameID)
	}
	s.actionIndex++
	if payload == nil {
		payload = make(map[string]interface{})
	}
	record := cache.GameActionRecord{
		GameID:        gameID,
		ActionIndex:   s.actionIndex,
		ActorID:       actorID,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     m.now().UnixMilli(),
	}

	m.pending.Add(1)
	go func(rec cache.GameActionRecord) {
		defer m.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := m.actions.PublishGameAction(ctx, rec); err != nil {
			m.log.WithError(err).WithFields(logrus.Fields{"game": rec.GameID, "index": rec.ActionIndex}).Warn("Failed publishing action.")
		}
	}(record)
}

// seedActionIndex continues the session's numbering after the newest logged
// action. Callers hold the session lock.
func (m *Manager) seedActionIndex(s *session, gameID string) {
	s.seeded = true
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	last, err := m.actions.LastActionIndex(ctx, gameID)
	if err != nil {
		m.log.WithError(err).WithField("game", gameID).Warn("Failed reading action log position.")
		return
	}
	if last > s.actionIndex {
		s.actionIndex = last
	}
}

// dropActions deletes a game's action log asynchronously.
func (m *Manager) dropActions(gameID string) {
	if m.actions == nil {
		return
	}
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := m.actions.DeleteGameActions(ctx, gameID); err != nil {
			m.log.WithError(err).WithField("game", gameID).Warn("Failed deleting action log.")
		}
	}()
}

// Actions returns the recorded action log of a game, oldest first. It is
// empty when no action log is configured.
func (m *Manager) Actions(ctx context.Context, gameID string) ([]cache.GameActionRecord, error) {
	if m.actions == nil {
		return []cache.GameActionRecord{}, nil
	}
	return m.actions.GameActions(ctx, gameID)
}

// Wait blocks until in-flight action log writes finish.
func (m *Manager) Wait() {
	m.pending.Wait()
}

// CreateGame seats playerIDs in order and opens round 1 for bidding.
func (m *Manager) CreateGame(role auth.Role, playerIDs []string, maxCards, initialDealerIndex int) (engine.Game, error) {
	if err := requireWrite(role); err != nil {
		return engine.Game{}, err
	}

	m.mu.Lock()
	for _, id := range playerIDs {
		if _, ok := m.players[id]; !ok {
			m.mu.Unlock()
			return engine.Game{}, fmt.Errorf("%w: player %s", engine.ErrNotFound, id)
		}
	}
	g, err := engine.NewGame(m.newID("g"), m.now(), playerIDs, maxCards, initialDealerIndex)
	if err != nil {
		m.mu.Unlock()
		return engine.Game{}, err
	}
	s := &session{seeded: true}
	s.mu.Lock()
	m.games[g.ID] = g
	m.sessions[g.ID] = s
	m.mu.Unlock()
	defer s.mu.Unlock()

	m.enqueue(upsertGame(g))
	m.emit(s, g, "", EventGameCreated, map[string]interface{}{
		"playerIds": g.PlayerIDs,
		"maxCards":  g.MaxCards,
	})
	m.log.WithFields(logrus.Fields{"game": g.ID, "players": len(g.PlayerIDs), "maxCards": maxCards}).Info("Game created.")
	return g.Clone(), nil
}

// SubmitBid records playerID's bid in the current round.
func (m *Manager) SubmitBid(role auth.Role, gameID, playerID string, bid int) (engine.Game, error) {
	if err := requireWrite(role); err != nil {
		return engine.Game{}, err
	}
	return m.transition(gameID, playerID, EventBidSubmitted, map[string]interface{}{"bid": bid},
		func(g engine.Game) (engine.Game, error) { return g.SubmitBid(playerID, bid) })
}

// ReviseBid reopens bidding from playerID onwards in the current round.
func (m *Manager) ReviseBid(role auth.Role, gameID, playerID string) (engine.Game, error) {
	if err := requireWrite(role); err != nil {
		return engine.Game{}, err
	}
	return m.transition(gameID, playerID, EventBidRevised, nil,
		func(g engine.Game) (engine.Game, error) { return g.ReviseBid(playerID) })
}

// SubmitTricks scores the current round.
func (m *Manager) SubmitTricks(role auth.Role, gameID string, tricks map[string]int) (engine.Game, error) {
	if err := requireWrite(role); err != nil {
		return engine.Game{}, err
	}
	payload := map[string]interface{}{"tricks": tricks}
	return m.transition(gameID, "", EventTricksSubmitted, payload,
		func(g engine.Game) (engine.Game, error) { return g.SubmitTricks(tricks) })
}

// AdvanceRound opens the next round.
func (m *Manager) AdvanceRound(role auth.Role, gameID string) (engine.Game, error) {
	if err := requireWrite(role); err != nil {
		return engine.Game{}, err
	}
	return m.transition(gameID, "", EventRoundAdvanced, nil,
		func(g engine.Game) (engine.Game, error) { return g.AdvanceRound() })
}

// CompleteGame freezes the final scores and commits rating and stats changes
// to every participant.
func (m *Manager) CompleteGame(role auth.Role, gameID string) (engine.Completion, error) {
	if err := requireWrite(role); err != nil {
		return engine.Completion{}, err
	}
	s, ok := m.lockSession(gameID)
	if !ok {
		return engine.Completion{}, fmt.Errorf("%w: game %s", engine.ErrNotFound, gameID)
	}
	defer s.mu.Unlock()

	// Player records are shared across games, so the read-compute-write of
	// ratings happens under the registry lock.
	m.mu.Lock()
	g, ok := m.games[gameID]
	if !ok {
		m.mu.Unlock()
		return engine.Completion{}, fmt.Errorf("%w: game %s", engine.ErrNotFound, gameID)
	}
	participants := make([]engine.Player, 0, len(g.PlayerIDs))
	for _, id := range g.PlayerIDs {
		if p, ok := m.players[id]; ok {
			participants = append(participants, p)
		}
	}
	done, err := g.Complete(m.now(), participants, m.rules)
	if err != nil {
		m.mu.Unlock()
		m.log.WithError(err).WithField("game", gameID).Debug("Completion rejected.")
		return engine.Completion{}, err
	}
	m.games[gameID] = done.Game
	effects := []Effect{upsertGame(done.Game)}
	for _, p := range done.Players {
		m.players[p.ID] = p
		effects = append(effects, upsertPlayer(p))
	}
	full := m.push(effects...)
	m.mu.Unlock()

	m.settle(full)
	m.emit(s, done.Game, "", EventGameCompleted, map[string]interface{}{
		"finalScores":   done.Game.FinalScores,
		"ratingChanges": done.Game.RatingChanges,
		"winners":       done.Winners,
	})
	m.log.WithFields(logrus.Fields{"game": gameID, "winners": done.Winners}).Info("Game completed.")
	return done, nil
}

// DeleteGame removes a game. Ratings already committed by the game are kept
// until the next recalculation.
func (m *Manager) DeleteGame(role auth.Role, gameID string) error {
	if err := requireAdmin(role); err != nil {
		return err
	}
	s, ok := m.lockSession(gameID)
	if !ok {
		return fmt.Errorf("%w: game %s", engine.ErrNotFound, gameID)
	}
	defer s.mu.Unlock()

	m.mu.Lock()
	delete(m.games, gameID)
	delete(m.sessions, gameID)
	m.mu.Unlock()

	m.enqueue(Effect{Kind: EffectDeleteGame, ID: gameID})
	m.fireEvent(GameEvent{Type: EventGameDeleted, GameID: gameID})
	m.dropActions(gameID)
	m.log.WithField("game", gameID).Info("Game deleted.")
	return nil
}

// GetGame returns a copy of a game.
func (m *Manager) GetGame(gameID string) (engine.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[gameID]
	if !ok {
		return engine.Game{}, fmt.Errorf("%w: game %s", engine.ErrNotFound, gameID)
	}
	return g.Clone(), nil
}

// Snapshot returns the scoreboard view of a game.
func (m *Manager) Snapshot(gameID string) (Snapshot, error) {
	g, err := m.GetGame(gameID)
	if err != nil {
		return Snapshot{}, err
	}
	return NewSnapshot(g), nil
}

// ListGames returns every game, newest first.
func (m *Manager) ListGames() []engine.Game {
	m.mu.RLock()
	games := make([]engine.Game, 0, len(m.games))
	for _, g := range m.games {
		games = append(games, g.Clone())
	}
	m.mu.RUnlock()
	sortNewestFirst(games)
	return games
}

func sortNewestFirst(games []engine.Game) {
	sort.Slice(games, func(i, j int) bool {
		if !games[i].Date.Equal(games[j].Date) {
			return games[i].Date.After(games[j].Date)
		}
		return games[i].ID < games[j].ID
	})
}
