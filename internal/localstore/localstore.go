// Package localstore keeps a local SQLite copy of every player and game so
// the service can start and keep recording when the remote database is down.
// Records are stored whole as JSON documents.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jason-s-yu/ohhell/engine"
	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed document store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time, and ":memory:" stays a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS games (
			id TEXT PRIMARY KEY,
			date TEXT NOT NULL,
			data TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_games_date ON games(date)`,
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// UpsertPlayer replaces the stored player document.
func (s *Store) UpsertPlayer(ctx context.Context, p engine.Player) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode player %s: %w", p.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO players (id, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		p.ID, string(data))
	if err != nil {
		return fmt.Errorf("upsert player %s: %w", p.ID, err)
	}
	return nil
}

// UpsertGame replaces the stored game document.
func (s *Store) UpsertGame(ctx context.Context, g engine.Game) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode game %s: %w", g.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO games (id, date, data, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET date = excluded.date, data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		g.ID, g.Date.UTC().Format(time.RFC3339Nano), string(data))
	if err != nil {
		return fmt.Errorf("upsert game %s: %w", g.ID, err)
	}
	return nil
}

// DeletePlayer removes a player document.
func (s *Store) DeletePlayer(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM players WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete player %s: %w", id, err)
	}
	return nil
}

// DeleteGame removes a game document.
func (s *Store) DeleteGame(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM games WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete game %s: %w", id, err)
	}
	return nil
}

// LoadPlayers returns every stored player ordered by id.
func (s *Store) LoadPlayers(ctx context.Context) ([]engine.Player, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM players ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query players: %w", err)
	}
	defer rows.Close()

	var players []engine.Player
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		var p engine.Player
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("decode player %s: %w", id, err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// LoadGames returns every stored game, newest first.
func (s *Store) LoadGames(ctx context.Context) ([]engine.Game, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM games ORDER BY date DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query games: %w", err)
	}
	defer rows.Close()

	var games []engine.Game
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		var g engine.Game
		if err := json.Unmarshal([]byte(data), &g); err != nil {
			return nil, fmt.Errorf("decode game %s: %w", id, err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}
