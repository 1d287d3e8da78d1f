package game

import (
	"context"
	"fmt"

	"github.com/jason-s-yu/ohhell/engine"
	"github.com/sirupsen/logrus"
)

// EffectKind names a persistence side effect of a transition.
type EffectKind string

const (
	EffectUpsertGame   EffectKind = "upsert_game"
	EffectUpsertPlayer EffectKind = "upsert_player"
	EffectDeleteGame   EffectKind = "delete_game"
	EffectDeletePlayer EffectKind = "delete_player"
)

// Effect is one whole-record write owed to the durable stores. Game or Player
// is set for upserts; ID alone is set for deletes.
type Effect struct {
	Kind   EffectKind
	ID     string
	Game   engine.Game
	Player engine.Player
}

func upsertGame(g engine.Game) Effect {
	return Effect{Kind: EffectUpsertGame, ID: g.ID, Game: g}
}

func upsertPlayer(p engine.Player) Effect {
	return Effect{Kind: EffectUpsertPlayer, ID: p.ID, Player: p}
}

// Store is a durable copy of the registry supporting whole-record writes.
type Store interface {
	UpsertPlayer(ctx context.Context, p engine.Player) error
	UpsertGame(ctx context.Context, g engine.Game) error
	DeletePlayer(ctx context.Context, id string) error
	DeleteGame(ctx context.Context, id string) error
}

// Loader is a Store that can also be read back in full.
type Loader interface {
	Store
	LoadPlayers(ctx context.Context) ([]engine.Player, error)
	LoadGames(ctx context.Context) ([]engine.Game, error)
}

// Names of the built-in sinks.
const (
	SinkRemote      = "remote"
	SinkLocal       = "local"
	SinkLeaderboard = "leaderboard"
)

// Sink is a named Store that receives every effect.
type Sink struct {
	Name  string
	Store Store
}

// Warning reports an effect that a sink failed to apply. The in-memory state
// already holds the change.
type Warning struct {
	Sink string
	Kind EffectKind
	ID   string
	Err  error
}

func (w Warning) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", w.Sink, w.Kind, w.ID, w.Err)
}

func (w Warning) Unwrap() error { return w.Err }

func applyEffect(ctx context.Context, s Store, e Effect) error {
	switch e.Kind {
	case EffectUpsertGame:
		return s.UpsertGame(ctx, e.Game)
	case EffectUpsertPlayer:
		return s.UpsertPlayer(ctx, e.Player)
	case EffectDeleteGame:
		return s.DeleteGame(ctx, e.ID)
	case EffectDeletePlayer:
		return s.DeletePlayer(ctx, e.ID)
	default:
		return fmt.Errorf("unknown effect kind %q", e.Kind)
	}
}

// push appends effects to the outbox in order and wakes the worker. It
// reports whether the queue has reached its capacity. Callers push while
// holding the lock that ordered the change, so the queue order matches the
// order of the in-memory writes.
func (m *Manager) push(effects ...Effect) bool {
	m.queueMu.Lock()
	m.queue = append(m.queue, effects...)
	full := len(m.queue) >= m.queueCap
	m.queueMu.Unlock()
	select {
	case m.ready <- struct{}{}:
	default:
	}
	return full
}

// settle drains the outbox inline when a push filled it.
func (m *Manager) settle(full bool) {
	if full {
		m.Flush(context.Background())
	}
}

// enqueue pushes effects and drains the outbox inline once it is full.
func (m *Manager) enqueue(effects ...Effect) {
	m.settle(m.push(effects...))
}

// drain applies queued effects oldest first until the queue is empty. Taking
// and applying a batch happen under drainMu so batches never interleave.
func (m *Manager) drain(ctx context.Context) int {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()
	n := 0
	for {
		m.queueMu.Lock()
		batch := m.queue
		m.queue = nil
		m.queueMu.Unlock()
		if len(batch) == 0 {
			return n
		}
		for _, e := range batch {
			m.apply(ctx, e, "")
		}
		n += len(batch)
	}
}

// apply writes e to every sink except skip, reporting failures as warnings.
func (m *Manager) apply(ctx context.Context, e Effect, skip string) {
	for _, s := range m.sinks {
		if s.Name == skip {
			continue
		}
		if err := applyEffect(ctx, s.Store, e); err != nil {
			m.warn(Warning{Sink: s.Name, Kind: e.Kind, ID: e.ID, Err: err})
		}
	}
}

func (m *Manager) warn(w Warning) {
	m.log.WithError(w.Err).WithFields(logrus.Fields{
		"sink": w.Sink, "effect": string(w.Kind), "id": w.ID,
	}).Warn("Persistence failed; in-memory state kept.")
	select {
	case m.warnings <- w:
	default:
	}
}

// Warnings delivers persistence failures. Warnings are dropped when nobody
// reads them fast enough; they are always logged.
func (m *Manager) Warnings() <-chan Warning {
	return m.warnings
}

// Run drains the outbox until ctx is cancelled, then applies whatever is
// still queued and returns.
func (m *Manager) Run(ctx context.Context) error {
	m.log.Info("Outbox worker started.")
	for {
		select {
		case <-m.ready:
			m.drain(context.WithoutCancel(ctx))
		case <-ctx.Done():
			m.Flush(context.Background())
			m.log.Info("Outbox worker stopped.")
			return ctx.Err()
		}
	}
}

// Flush applies every queued effect before returning. It is meant for callers
// that do not run the worker, such as tests and the CLI.
func (m *Manager) Flush(ctx context.Context) int {
	return m.drain(ctx)
}
