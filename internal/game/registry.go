package game

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jason-s-yu/ohhell/engine"
	"github.com/jason-s-yu/ohhell/internal/auth"
	"github.com/sirupsen/logrus"
)

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: player name is empty", engine.ErrInvalidConfiguration)
	}
	return name, nil
}

// AddPlayer registers a player at the default rating.
func (m *Manager) AddPlayer(role auth.Role, name string) (engine.Player, error) {
	if err := requireWrite(role); err != nil {
		return engine.Player{}, err
	}
	name, err := cleanName(name)
	if err != nil {
		return engine.Player{}, err
	}
	p := engine.NewPlayer(m.newID("p"), name, m.rules.DefaultRating)

	m.mu.Lock()
	m.players[p.ID] = p
	full := m.push(upsertPlayer(p))
	m.mu.Unlock()

	m.settle(full)
	m.log.WithFields(logrus.Fields{"player": p.ID, "name": p.Name}).Info("Player added.")
	return p.Clone(), nil
}

// RenamePlayer changes a player's display name.
func (m *Manager) RenamePlayer(role auth.Role, playerID, name string) (engine.Player, error) {
	if err := requireWrite(role); err != nil {
		return engine.Player{}, err
	}
	name, err := cleanName(name)
	if err != nil {
		return engine.Player{}, err
	}

	m.mu.Lock()
	p, ok := m.players[playerID]
	if !ok {
		m.mu.Unlock()
		return engine.Player{}, fmt.Errorf("%w: player %s", engine.ErrNotFound, playerID)
	}
	p = p.Clone()
	p.Name = name
	m.players[playerID] = p
	full := m.push(upsertPlayer(p))
	m.mu.Unlock()

	m.settle(full)
	return p.Clone(), nil
}

// DeletePlayer removes a player who is not seated in any game.
func (m *Manager) DeletePlayer(role auth.Role, playerID string) error {
	if err := requireAdmin(role); err != nil {
		return err
	}

	m.mu.Lock()
	if _, ok := m.players[playerID]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: player %s", engine.ErrNotFound, playerID)
	}
	for _, g := range m.games {
		if g.HasPlayer(playerID) {
			m.mu.Unlock()
			return fmt.Errorf("%w: player %s is seated in game %s", engine.ErrIllegalTransition, playerID, g.ID)
		}
	}
	delete(m.players, playerID)
	full := m.push(Effect{Kind: EffectDeletePlayer, ID: playerID})
	m.mu.Unlock()

	m.settle(full)
	m.log.WithField("player", playerID).Info("Player deleted.")
	return nil
}

// GetPlayer returns a copy of a player.
func (m *Manager) GetPlayer(playerID string) (engine.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[playerID]
	if !ok {
		return engine.Player{}, fmt.Errorf("%w: player %s", engine.ErrNotFound, playerID)
	}
	return p.Clone(), nil
}

// ListPlayers returns every player ordered by name.
func (m *Manager) ListPlayers() []engine.Player {
	m.mu.RLock()
	players := make([]engine.Player, 0, len(m.players))
	for _, p := range m.players {
		players = append(players, p.Clone())
	}
	m.mu.RUnlock()
	sort.Slice(players, func(i, j int) bool {
		a, b := strings.ToLower(players[i].Name), strings.ToLower(players[j].Name)
		if a != b {
			return a < b
		}
		return players[i].ID < players[j].ID
	})
	return players
}

// PlayerStats returns the display statistics of one player.
func (m *Manager) PlayerStats(playerID string) (engine.Display, error) {
	p, err := m.GetPlayer(playerID)
	if err != nil {
		return engine.Display{}, err
	}
	return engine.DisplayStats(p), nil
}

// Leaderboard returns every player's display statistics, highest rating first.
func (m *Manager) Leaderboard() []engine.Display {
	return engine.Leaderboard(m.ListPlayers())
}
