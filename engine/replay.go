package engine

import (
	"fmt"
	"sort"
)

// ReplayRatings rebuilds every rating from scratch. Players are reset to the
// default rating with empty history and stats, then every completed game is
// re-completed in chronological order (by date, then id). Active games are
// returned unchanged. Games referencing unknown players fail with ErrNotFound.
func ReplayRatings(players []Player, games []Game, rules Rules) ([]Player, []Game, error) {
	reset := make(map[string]Player, len(players))
	order := make([]string, 0, len(players))
	for _, p := range players {
		np := NewPlayer(p.ID, p.Name, rules.DefaultRating)
		reset[p.ID] = np
		order = append(order, p.ID)
	}

	sorted := make([]int, len(games))
	for i := range games {
		sorted[i] = i
	}
	sort.SliceStable(sorted, func(a, b int) bool {
		ga, gb := games[sorted[a]], games[sorted[b]]
		if !ga.Date.Equal(gb.Date) {
			return ga.Date.Before(gb.Date)
		}
		return ga.ID < gb.ID
	})

	out := make([]Game, len(games))
	copy(out, games)
	for _, idx := range sorted {
		g := games[idx]
		if g.Status != GameCompleted {
			continue
		}
		reopened := g.Clone()
		reopened.Status = GameActive
		reopened.FinalScores = nil
		reopened.RatingChanges = nil

		participants := make([]Player, 0, len(g.PlayerIDs))
		for _, id := range g.PlayerIDs {
			p, ok := reset[id]
			if !ok {
				return nil, nil, fmt.Errorf("%w: player %s of game %s", ErrNotFound, id, g.ID)
			}
			participants = append(participants, p)
		}

		// The original completion time is not kept on the game, so history
		// entries take the game date.
		done, err := reopened.Complete(g.Date, participants, rules)
		if err != nil {
			return nil, nil, fmt.Errorf("replay game %s: %w", g.ID, err)
		}
		for _, p := range done.Players {
			reset[p.ID] = p
		}
		out[idx] = done.Game
	}

	result := make([]Player, 0, len(order))
	for _, id := range order {
		result = append(result, reset[id])
	}
	return result, out, nil
}
