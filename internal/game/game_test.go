package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/ohhell/engine"
	"github.com/jason-s-yu/ohhell/internal/auth"
	"github.com/jason-s-yu/ohhell/internal/cache"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBroadcaster captures game events for testing assertions.
type mockBroadcaster struct {
	mu        sync.Mutex
	allEvents []GameEvent
}

func (mb *mockBroadcaster) broadcastFn(ev GameEvent) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.allEvents = append(mb.allEvents, ev)
}

func (mb *mockBroadcaster) getLastEvent() *GameEvent {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if len(mb.allEvents) == 0 {
		return nil
	}
	return &mb.allEvents[len(mb.allEvents)-1]
}

func (mb *mockBroadcaster) countByType(eventType GameEventType) int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	n := 0
	for _, ev := range mb.allEvents {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

// memStore is an in-memory Loader that can be told to fail.
type memStore struct {
	mu      sync.Mutex
	players map[string]engine.Player
	games   map[string]engine.Game
	fail    error
}

func newMemStore() *memStore {
	return &memStore{players: map[string]engine.Player{}, games: map[string]engine.Game{}}
}

func (s *memStore) UpsertPlayer(_ context.Context, p engine.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.players[p.ID] = p
	return nil
}

func (s *memStore) UpsertGame(_ context.Context, g engine.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.games[g.ID] = g
	return nil
}

func (s *memStore) DeletePlayer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	delete(s.players, id)
	return nil
}

func (s *memStore) DeleteGame(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	delete(s.games, id)
	return nil
}

func (s *memStore) LoadPlayers(context.Context) ([]engine.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	out := make([]engine.Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	return out, nil
}

func (s *memStore) LoadGames(context.Context) ([]engine.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	out := make([]engine.Game, 0, len(s.games))
	for _, g := range s.games {
		out = append(out, g)
	}
	return out, nil
}

func (s *memStore) game(id string) (engine.Game, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	return g, ok
}

func (s *memStore) player(id string) (engine.Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	return p, ok
}

// recordingActions captures published action records.
type recordingActions struct {
	mu      sync.Mutex
	records []cache.GameActionRecord
	deleted []string
}

func (r *recordingActions) GameActions(_ context.Context, gameID string) ([]cache.GameActionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []cache.GameActionRecord
	for _, rec := range r.records {
		if rec.GameID == gameID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *recordingActions) LastActionIndex(_ context.Context, gameID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	last := 0
	for _, rec := range r.records {
		if rec.GameID == gameID && rec.ActionIndex > last {
			last = rec.ActionIndex
		}
	}
	return last, nil
}

func (r *recordingActions) DeleteGameActions(_ context.Context, gameID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, gameID)
	return nil
}

func (r *recordingActions) PublishGameAction(_ context.Context, rec cache.GameActionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

var testNow = time.Date(2026, 6, 12, 20, 0, 0, 0, time.UTC)

type testEnv struct {
	m       *Manager
	mb      *mockBroadcaster
	remote  *memStore
	local   *memStore
	actions *recordingActions
	hook    *test.Hook
}

// setupManager builds a Manager with in-memory stores, a fixed clock and
// sequential ids. mods adjust the options before the Manager is built.
func setupManager(t *testing.T, mods ...func(*Options)) *testEnv {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	var mu sync.Mutex
	seq := 0
	env := &testEnv{
		mb:      &mockBroadcaster{},
		remote:  newMemStore(),
		local:   newMemStore(),
		actions: &recordingActions{},
		hook:    hook,
	}
	opts := Options{
		Now: func() time.Time { return testNow },
		NewID: func(prefix string) string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("%s_%d", prefix, seq)
		},
		Remote:  env.remote,
		Local:   env.local,
		Actions: env.actions,
		Logger:  logger,
	}
	for _, mod := range mods {
		mod(&opts)
	}
	env.m = New(opts)
	env.m.BroadcastFn = env.mb.broadcastFn
	return env
}

// addPlayers registers players named A, B, C... and returns their ids in order.
func (env *testEnv) addPlayers(t *testing.T, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		p, err := env.m.AddPlayer(auth.RoleLimited, string(rune('A'+i)))
		require.NoError(t, err)
		ids[i] = p.ID
	}
	return ids
}

// playRound bids and scores the current round: every seat bids 0 except the
// dealer, who takes every trick and bids whatever the hook rule allows.
func (env *testEnv) playRound(t *testing.T, gameID string) engine.Game {
	t.Helper()
	g, err := env.m.GetGame(gameID)
	require.NoError(t, err)
	r, _ := g.CurrentRound()
	for _, id := range r.BidOrder {
		snap, err := env.m.Snapshot(gameID)
		require.NoError(t, err)
		require.Equal(t, id, snap.NextBidder)
		bid := 0
		if r.IsLastBidder(id) {
			bid = snap.LegalBids[len(snap.LegalBids)-1]
		}
		_, err = env.m.SubmitBid(auth.RoleLimited, gameID, id, bid)
		require.NoError(t, err)
	}
	tricks := map[string]int{}
	for _, id := range g.PlayerIDs {
		tricks[id] = 0
	}
	tricks[r.DealerPlayerID] = r.CardsDealt
	g, err = env.m.SubmitTricks(auth.RoleLimited, gameID, tricks)
	require.NoError(t, err)
	return g
}

func (env *testEnv) playGame(t *testing.T, gameID string) engine.Completion {
	t.Helper()
	for {
		g := env.playRound(t, gameID)
		if g.IsLastRound() {
			break
		}
		_, err := env.m.AdvanceRound(auth.RoleLimited, gameID)
		require.NoError(t, err)
	}
	done, err := env.m.CompleteGame(auth.RoleLimited, gameID)
	require.NoError(t, err)
	return done
}

func TestCreateGameOpensFirstRound(t *testing.T) {
	env := setupManager(t)
	ids := env.addPlayers(t, 4)

	g, err := env.m.CreateGame(auth.RoleLimited, ids, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, "g_5", g.ID)
	assert.Equal(t, testNow, g.Date)
	assert.Equal(t, []int{1, 2, 3, 2, 1}, g.RoundSequence)
	require.Len(t, g.Rounds, 1)
	assert.Equal(t, ids[0], g.Rounds[0].DealerPlayerID)
	assert.Equal(t, []string{ids[1], ids[2], ids[3], ids[0]}, g.Rounds[0].BidOrder)

	ev := env.mb.getLastEvent()
	require.NotNil(t, ev)
	assert.Equal(t, EventGameCreated, ev.Type)
	require.NotNil(t, ev.State)
	assert.Equal(t, ids[1], ev.State.NextBidder)

	// four players and the game
	assert.Equal(t, 5, env.m.Flush(context.Background()))
}

func TestCreateGameValidation(t *testing.T) {
	env := setupManager(t)
	ids := env.addPlayers(t, 2)

	_, err := env.m.CreateGame(auth.RoleLimited, []string{ids[0], "p_unknown"}, 3, 0)
	assert.ErrorIs(t, err, engine.ErrNotFound)

	_, err = env.m.CreateGame(auth.RoleLimited, []string{ids[0], ids[0]}, 3, 0)
	assert.ErrorIs(t, err, engine.ErrInvalidConfiguration)

	_, err = env.m.CreateGame(auth.RoleLimited, ids, 3, 2)
	assert.ErrorIs(t, err, engine.ErrInvalidConfiguration)

	_, err = env.m.CreateGame(auth.RoleLimited, ids, 0, 0)
	assert.ErrorIs(t, err, engine.ErrInvalidConfiguration)

	_, err = env.m.CreateGame(auth.RoleNone, ids, 3, 0)
	assert.ErrorIs(t, err, ErrForbidden)

	assert.Empty(t, env.m.ListGames())
}

func TestFirstRoundScenario(t *testing.T) {
	env := setupManager(t)
	ids := env.addPlayers(t, 4)
	g, err := env.m.CreateGame(auth.RoleLimited, ids, 3, 0)
	require.NoError(t, err)

	for _, b := range []struct {
		seat, bid int
	}{{1, 0}, {2, 1}, {3, 0}} {
		_, err := env.m.SubmitBid(auth.RoleLimited, g.ID, ids[b.seat], b.bid)
		require.NoError(t, err)
	}

	snap, err := env.m.Snapshot(g.ID)
	require.NoError(t, err)
	require.NotNil(t, snap.RestrictedBid)
	assert.Equal(t, 0, *snap.RestrictedBid)
	assert.Equal(t, []int{1}, snap.LegalBids)

	_, err = env.m.SubmitBid(auth.RoleLimited, g.ID, ids[0], 0)
	assert.ErrorIs(t, err, engine.ErrInvalidBid)
	_, err = env.m.SubmitBid(auth.RoleLimited, g.ID, ids[0], 1)
	require.NoError(t, err)

	_, err = env.m.SubmitTricks(auth.RoleLimited, g.ID, map[string]int{ids[0]: 1, ids[1]: 0, ids[2]: 1, ids[3]: 0})
	assert.ErrorIs(t, err, engine.ErrTrickCountMismatch)

	g, err = env.m.SubmitTricks(auth.RoleLimited, g.ID, map[string]int{ids[0]: 1, ids[1]: 0, ids[2]: 0, ids[3]: 0})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{ids[0]: 11, ids[1]: 10, ids[2]: 0, ids[3]: 10}, g.Rounds[0].Scores)

	snap, err = env.m.Snapshot(g.ID)
	require.NoError(t, err)
	assert.True(t, snap.CanAdvance)
	assert.False(t, snap.CanComplete)
	assert.Equal(t, map[string]int{ids[0]: 1, ids[1]: 2, ids[2]: 4, ids[3]: 2}, snap.Placements)

	_, err = env.m.CompleteGame(auth.RoleLimited, g.ID)
	assert.ErrorIs(t, err, engine.ErrIllegalTransition)
}

func TestReviseBidReopensBidding(t *testing.T) {
	env := setupManager(t)
	ids := env.addPlayers(t, 4)
	g, err := env.m.CreateGame(auth.RoleLimited, ids, 3, 0)
	require.NoError(t, err)
	_, err = env.m.AdvanceRound(auth.RoleLimited, g.ID)
	assert.ErrorIs(t, err, engine.ErrIllegalTransition)

	for _, seat := range []int{1, 2, 3} {
		_, err := env.m.SubmitBid(auth.RoleLimited, g.ID, ids[seat], 0)
		require.NoError(t, err)
	}
	g, err = env.m.SubmitBid(auth.RoleLimited, g.ID, ids[0], 0)
	require.NoError(t, err)
	require.Equal(t, engine.RoundPlaying, g.Rounds[0].Status)

	g, err = env.m.ReviseBid(auth.RoleLimited, g.ID, ids[2])
	require.NoError(t, err)
	assert.Equal(t, engine.RoundBidding, g.Rounds[0].Status)
	assert.Equal(t, map[string]int{ids[1]: 0}, g.Rounds[0].Bids)
	assert.Equal(t, 1, env.mb.countByType(EventBidRevised))

	_, err = env.m.ReviseBid(auth.RoleLimited, g.ID, "p_stranger")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestRejectedTransitionLeavesGameUnchanged(t *testing.T) {
	env := setupManager(t)
	ids := env.addPlayers(t, 3)
	g, err := env.m.CreateGame(auth.RoleLimited, ids, 2, 1)
	require.NoError(t, err)
	env.m.Flush(context.Background())

	_, err = env.m.SubmitBid(auth.RoleLimited, g.ID, ids[0], 0)
	assert.ErrorIs(t, err, engine.ErrOutOfTurn)
	_, err = env.m.SubmitBid(auth.RoleLimited, g.ID, ids[2], 5)
	assert.ErrorIs(t, err, engine.ErrInvalidBid)

	after, err := env.m.GetGame(g.ID)
	require.NoError(t, err)
	assert.Equal(t, g, after)
	assert.Zero(t, env.m.Flush(context.Background()))
	assert.Equal(t, 1, env.mb.countByType(EventGameCreated))
	assert.Len(t, env.mb.allEvents, 1)
}

func TestCompleteGameCommitsRatingsOnce(t *testing.T) {
	env := setupManager(t)
	ids := env.addPlayers(t, 3)
	g, err := env.m.CreateGame(auth.RoleLimited, ids, 2, 0)
	require.NoError(t, err)

	done := env.playGame(t, g.ID)
	assert.Equal(t, engine.GameCompleted, done.Game.Status)
	require.NotNil(t, done.Game.FinalScores)

	sum := 0
	for _, id := range ids {
		p, err := env.m.GetPlayer(id)
		require.NoError(t, err)
		assert.Equal(t, 1000+done.Game.RatingChanges[id], p.Rating)
		require.Len(t, p.RatingHistory, 1)
		assert.Equal(t, testNow, p.RatingHistory[0].Timestamp)
		assert.Equal(t, 1, p.Stats.GamesPlayed)
		sum += done.Game.RatingChanges[id]
	}
	assert.LessOrEqual(t, sum, len(ids))
	assert.GreaterOrEqual(t, sum, -len(ids))

	_, err = env.m.CompleteGame(auth.RoleLimited, g.ID)
	assert.ErrorIs(t, err, engine.ErrAlreadyCompleted)
	assert.ErrorIs(t, err, engine.ErrIllegalTransition)
	_, err = env.m.SubmitBid(auth.RoleLimited, g.ID, ids[1], 0)
	assert.ErrorIs(t, err, engine.ErrIllegalTransition)

	p, err := env.m.GetPlayer(ids[0])
	require.NoError(t, err)
	assert.Len(t, p.RatingHistory, 1)

	env.m.Flush(context.Background())
	stored, ok := env.remote.game(g.ID)
	require.True(t, ok)
	assert.Equal(t, engine.GameCompleted, stored.Status)
	storedPlayer, ok := env.local.player(ids[0])
	require.True(t, ok)
	assert.Equal(t, p.Rating, storedPlayer.Rating)

	ev := env.mb.getLastEvent()
	require.NotNil(t, ev)
	assert.Equal(t, EventGameCompleted, ev.Type)
	assert.Equal(t, 1, env.mb.countByType(EventGameCompleted))
}

func TestRolesGateOperations(t *testing.T) {
	env := setupManager(t)
	ids := env.addPlayers(t, 2)
	g, err := env.m.CreateGame(auth.RoleLimited, ids, 1, 0)
	require.NoError(t, err)

	_, err = env.m.SubmitBid(auth.RoleNone, g.ID, ids[1], 0)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.m.AddPlayer(auth.RoleNone, "Zed")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, env.m.DeleteGame(auth.RoleLimited, g.ID), ErrForbidden)
	assert.ErrorIs(t, env.m.DeletePlayer(auth.RoleLimited, ids[0]), ErrForbidden)
	_, err = env.m.RecalculateRatings(auth.RoleLimited)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, env.m.Import(auth.RoleLimited, []byte(`{"players":[],"games":[]}`)), ErrForbidden)

	require.NoError(t, env.m.DeleteGame(auth.RoleAdmin, g.ID))
	_, err = env.m.GetGame(g.ID)
	assert.ErrorIs(t, err, engine.ErrNotFound)
	assert.ErrorIs(t, env.m.DeleteGame(auth.RoleAdmin, g.ID), engine.ErrNotFound)
	assert.Equal(t, 1, env.mb.countByType(EventGameDeleted))
}

func TestConcurrentBidsAreSerialized(t *testing.T) {
	env := setupManager(t)
	ids := env.addPlayers(t, 4)
	g, err := env.m.CreateGame(auth.RoleLimited, ids, 3, 3)
	require.NoError(t, err)
	first := g.Rounds[0].BidOrder[0]

	var wg sync.WaitGroup
	var mu sync.Mutex
	okCount, outOfTurn := 0, 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.m.SubmitBid(auth.RoleLimited, g.ID, first, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				okCount++
			case errors.Is(err, engine.ErrOutOfTurn):
				outOfTurn++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, okCount)
	assert.Equal(t, 15, outOfTurn)
	after, err := env.m.GetGame(g.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{first: 1}, after.Rounds[0].Bids)
}

func TestActionLogIsPublished(t *testing.T) {
	env := setupManager(t)
	ids := env.addPlayers(t, 2)
	g, err := env.m.CreateGame(auth.RoleLimited, ids, 1, 0)
	require.NoError(t, err)
	_, err = env.m.SubmitBid(auth.RoleLimited, g.ID, ids[1], 1)
	require.NoError(t, err)
	env.m.Wait()

	records, err := env.m.Actions(context.Background(), g.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	byIndex := map[int]cache.GameActionRecord{}
	for _, rec := range records {
		byIndex[rec.ActionIndex] = rec
	}
	assert.Equal(t, string(EventGameCreated), byIndex[1].ActionType)
	assert.Equal(t, string(EventBidSubmitted), byIndex[2].ActionType)
	assert.Equal(t, ids[1], byIndex[2].ActorID)
	assert.Equal(t, 1, byIndex[2].ActionPayload["bid"])
	assert.Equal(t, testNow.UnixMilli(), byIndex[2].Timestamp)

	require.NoError(t, env.m.DeleteGame(auth.RoleAdmin, g.ID))
	env.m.Wait()
	env.actions.mu.Lock()
	defer env.actions.mu.Unlock()
	assert.Equal(t, []string{g.ID}, env.actions.deleted)
}

func TestActionIndexContinuesAfterImport(t *testing.T) {
	env := setupManager(t)
	ids := env.addPlayers(t, 2)
	g, err := env.m.CreateGame(auth.RoleLimited, ids, 1, 0)
	require.NoError(t, err)
	_, err = env.m.SubmitBid(auth.RoleLimited, g.ID, ids[1], 1)
	require.NoError(t, err)
	env.m.Wait()
	doc, err := env.m.Export()
	require.NoError(t, err)

	// a fresh Manager sharing the same action log
	other := setupManager(t, func(o *Options) { o.Actions = env.actions })
	require.NoError(t, other.m.Import(auth.RoleAdmin, doc))
	_, err = other.m.ReviseBid(auth.RoleLimited, g.ID, ids[1])
	require.NoError(t, err)
	other.m.Wait()

	records, err := other.m.Actions(context.Background(), g.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	seen := map[int]bool{}
	for _, rec := range records {
		assert.False(t, seen[rec.ActionIndex], "duplicate index %d", rec.ActionIndex)
		seen[rec.ActionIndex] = true
	}
	assert.True(t, seen[3])
}
