// Package database is the PostgreSQL store for players and games. Nested
// fields (rounds, rating history, score maps) live in JSONB columns.
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/ohhell/engine"
	"github.com/sirupsen/logrus"
)

// Store reads and writes whole player and game records.
type Store struct {
	pool *pgxpool.Pool
	log  *logrus.Entry
}

// Connect opens a pool to url and verifies it.
func Connect(ctx context.Context, url string, log *logrus.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool, log: log.WithField("component", "database")}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS players (
		id             TEXT PRIMARY KEY,
		name           TEXT NOT NULL,
		rating         INTEGER NOT NULL,
		rating_history JSONB NOT NULL DEFAULT '[]',
		stats          JSONB NOT NULL DEFAULT '{}',
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS games (
		id                   TEXT PRIMARY KEY,
		status               TEXT NOT NULL,
		date                 TIMESTAMPTZ NOT NULL,
		player_ids           JSONB NOT NULL,
		max_cards            INTEGER NOT NULL,
		round_sequence       JSONB NOT NULL,
		current_round_index  INTEGER NOT NULL,
		initial_dealer_index INTEGER NOT NULL,
		rounds               JSONB NOT NULL,
		final_scores         JSONB,
		rating_changes       JSONB,
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	// TIMESTAMPTZ keeps microseconds; the rest of the date lives here.
	`ALTER TABLE games ADD COLUMN IF NOT EXISTS date_nanos INTEGER NOT NULL DEFAULT 0`,
	`CREATE INDEX IF NOT EXISTS idx_games_date ON games(date DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_players_rating ON players(rating DESC)`,
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// playerRow is the column layout of the players table.
type playerRow struct {
	ID            string
	Name          string
	Rating        int
	RatingHistory []byte
	Stats         []byte
}

func playerToRow(p engine.Player) (playerRow, error) {
	history := p.RatingHistory
	if history == nil {
		history = []engine.RatingHistoryEntry{}
	}
	h, err := json.Marshal(history)
	if err != nil {
		return playerRow{}, err
	}
	st, err := json.Marshal(p.Stats)
	if err != nil {
		return playerRow{}, err
	}
	return playerRow{ID: p.ID, Name: p.Name, Rating: p.Rating, RatingHistory: h, Stats: st}, nil
}

func rowToPlayer(r playerRow) (engine.Player, error) {
	p := engine.Player{ID: r.ID, Name: r.Name, Rating: r.Rating, RatingHistory: []engine.RatingHistoryEntry{}}
	if len(r.RatingHistory) > 0 {
		if err := json.Unmarshal(r.RatingHistory, &p.RatingHistory); err != nil {
			return p, fmt.Errorf("player %s rating_history: %w", r.ID, err)
		}
	}
	if len(r.Stats) > 0 {
		if err := json.Unmarshal(r.Stats, &p.Stats); err != nil {
			return p, fmt.Errorf("player %s stats: %w", r.ID, err)
		}
	}
	return p, nil
}

// gameRow is the column layout of the games table. Nullable JSON columns are nil when absent.
type gameRow struct {
	ID                 string
	Status             string
	Date               time.Time
	DateNanos          int
	PlayerIDs          []byte
	MaxCards           int
	RoundSequence      []byte
	CurrentRoundIndex  int
	InitialDealerIndex int
	Rounds             []byte
	FinalScores        []byte
	RatingChanges      []byte
}

func marshalNullable(m map[string]int) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func gameToRow(g engine.Game) (gameRow, error) {
	row := gameRow{
		ID:                 g.ID,
		Status:             string(g.Status),
		Date:               g.Date.Truncate(time.Microsecond),
		DateNanos:          g.Date.Nanosecond() % int(time.Microsecond),
		MaxCards:           g.MaxCards,
		CurrentRoundIndex:  g.CurrentRoundIndex,
		InitialDealerIndex: g.InitialDealerIndex,
	}
	var err error
	if row.PlayerIDs, err = json.Marshal(g.PlayerIDs); err != nil {
		return row, err
	}
	if row.RoundSequence, err = json.Marshal(g.RoundSequence); err != nil {
		return row, err
	}
	if row.Rounds, err = json.Marshal(g.Rounds); err != nil {
		return row, err
	}
	if row.FinalScores, err = marshalNullable(g.FinalScores); err != nil {
		return row, err
	}
	if row.RatingChanges, err = marshalNullable(g.RatingChanges); err != nil {
		return row, err
	}
	return row, nil
}

func rowToGame(r gameRow) (engine.Game, error) {
	g := engine.Game{
		ID:                 r.ID,
		Status:             engine.GameStatus(r.Status),
		Date:               r.Date.Add(time.Duration(r.DateNanos)),
		MaxCards:           r.MaxCards,
		CurrentRoundIndex:  r.CurrentRoundIndex,
		InitialDealerIndex: r.InitialDealerIndex,
	}
	fields := []struct {
		name string
		raw  []byte
		dst  interface{}
	}{
		{"player_ids", r.PlayerIDs, &g.PlayerIDs},
		{"round_sequence", r.RoundSequence, &g.RoundSequence},
		{"rounds", r.Rounds, &g.Rounds},
		{"final_scores", r.FinalScores, &g.FinalScores},
		{"rating_changes", r.RatingChanges, &g.RatingChanges},
	}
	for _, f := range fields {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return g, fmt.Errorf("game %s %s: %w", r.ID, f.name, err)
		}
	}
	return g, nil
}

func nullableText(b []byte) *string {
	if b == nil {
		return nil
	}
	s := string(b)
	return &s
}

// UpsertPlayer writes the whole player record.
func (s *Store) UpsertPlayer(ctx context.Context, p engine.Player) error {
	row, err := playerToRow(p)
	if err != nil {
		return fmt.Errorf("encode player %s: %w", p.ID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO players (id, name, rating, rating_history, stats, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			rating = EXCLUDED.rating,
			rating_history = EXCLUDED.rating_history,
			stats = EXCLUDED.stats,
			updated_at = now()`,
		row.ID, row.Name, row.Rating, string(row.RatingHistory), string(row.Stats))
	if err != nil {
		return fmt.Errorf("upsert player %s: %w", p.ID, err)
	}
	return nil
}

// UpsertGame writes the whole game record.
func (s *Store) UpsertGame(ctx context.Context, g engine.Game) error {
	row, err := gameToRow(g)
	if err != nil {
		return fmt.Errorf("encode game %s: %w", g.ID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO games (id, status, date, date_nanos, player_ids, max_cards, round_sequence,
			current_round_index, initial_dealer_index, rounds, final_scores, rating_changes, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7::jsonb, $8, $9, $10::jsonb, $11::jsonb, $12::jsonb, now())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			date = EXCLUDED.date,
			date_nanos = EXCLUDED.date_nanos,
			player_ids = EXCLUDED.player_ids,
			max_cards = EXCLUDED.max_cards,
			round_sequence = EXCLUDED.round_sequence,
			current_round_index = EXCLUDED.current_round_index,
			initial_dealer_index = EXCLUDED.initial_dealer_index,
			rounds = EXCLUDED.rounds,
			final_scores = EXCLUDED.final_scores,
			rating_changes = EXCLUDED.rating_changes,
			updated_at = now()`,
		row.ID, row.Status, row.Date, row.DateNanos, string(row.PlayerIDs), row.MaxCards, string(row.RoundSequence),
		row.CurrentRoundIndex, row.InitialDealerIndex, string(row.Rounds),
		nullableText(row.FinalScores), nullableText(row.RatingChanges))
	if err != nil {
		return fmt.Errorf("upsert game %s: %w", g.ID, err)
	}
	return nil
}

// DeletePlayer removes a player record. Deleting a missing id is not an error.
func (s *Store) DeletePlayer(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM players WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete player %s: %w", id, err)
	}
	return nil
}

// DeleteGame removes a game record. Deleting a missing id is not an error.
func (s *Store) DeleteGame(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM games WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete game %s: %w", id, err)
	}
	return nil
}

// LoadPlayers returns every player.
func (s *Store) LoadPlayers(ctx context.Context) ([]engine.Player, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, rating, rating_history, stats FROM players ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query players: %w", err)
	}
	raw, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (playerRow, error) {
		var r playerRow
		err := row.Scan(&r.ID, &r.Name, &r.Rating, &r.RatingHistory, &r.Stats)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan players: %w", err)
	}
	players := make([]engine.Player, 0, len(raw))
	for _, r := range raw {
		p, err := rowToPlayer(r)
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, nil
}

// LoadGames returns every game, newest first.
func (s *Store) LoadGames(ctx context.Context) ([]engine.Game, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, status, date, date_nanos, player_ids, max_cards, round_sequence,
			current_round_index, initial_dealer_index, rounds, final_scores, rating_changes
		FROM games ORDER BY date DESC, date_nanos DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query games: %w", err)
	}
	raw, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (gameRow, error) {
		var r gameRow
		err := row.Scan(&r.ID, &r.Status, &r.Date, &r.DateNanos, &r.PlayerIDs, &r.MaxCards, &r.RoundSequence,
			&r.CurrentRoundIndex, &r.InitialDealerIndex, &r.Rounds, &r.FinalScores, &r.RatingChanges)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan games: %w", err)
	}
	games := make([]engine.Game, 0, len(raw))
	for _, r := range raw {
		g, err := rowToGame(r)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	s.log.WithField("count", len(games)).Debug("Loaded games.")
	return games, nil
}
