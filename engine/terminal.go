package engine

import (
	"fmt"
	"time"
)

// Completion is the result of finishing a game: the frozen game record and the
// updated copy of every participant, in seating order.
type Completion struct {
	Game       Game
	Players    []Player
	Placements map[string]int
	Winners    []string
}

// CanComplete reports whether the game is on its last round and that round is complete.
func (g Game) CanComplete() bool {
	if g.Status != GameActive || !g.IsLastRound() {
		return false
	}
	r, ok := g.CurrentRound()
	return ok && r.Status == RoundComplete
}

// Complete freezes the final scores and rating changes and applies them to the
// participants. players must include every seated player; other entries are
// ignored. Completing an already completed game fails with ErrAlreadyCompleted
// so rating and stats changes are never applied twice.
func (g Game) Complete(now time.Time, players []Player, rules Rules) (Completion, error) {
	if g.Status == GameCompleted {
		return Completion{}, fmt.Errorf("game %s: %w", g.ID, ErrAlreadyCompleted)
	}
	if err := g.requireActive(); err != nil {
		return Completion{}, err
	}
	if !g.CanComplete() {
		current := g.Rounds[g.CurrentRoundIndex]
		return Completion{}, fmt.Errorf("%w: round %d of %d is %s", ErrIllegalTransition, current.RoundNumber, len(g.RoundSequence), current.Status)
	}

	byID := make(map[string]Player, len(players))
	for _, p := range players {
		byID[p.ID] = p
	}
	rated := make([]RatedPlayer, 0, len(g.PlayerIDs))
	for _, id := range g.PlayerIDs {
		p, ok := byID[id]
		if !ok {
			return Completion{}, fmt.Errorf("%w: player %s of game %s", ErrNotFound, id, g.ID)
		}
		rated = append(rated, RatedPlayer{ID: id, Rating: p.Rating})
	}

	finalScores := g.Scores()
	placements := Placements(finalScores)
	winners := Winners(g.PlayerIDs, placements)
	performance := PerformanceScores(g.PlayerIDs, g.CompletedRounds(), placements, rules.Weights)
	changes := RatingChanges(rated, performance, rules.KFactor)
	for _, id := range g.PlayerIDs {
		if _, ok := changes[id]; !ok {
			changes[id] = 0
		}
	}

	out := g.Clone()
	out.Status = GameCompleted
	out.FinalScores = finalScores
	out.RatingChanges = changes

	isWinner := make(map[string]bool, len(winners))
	for _, id := range winners {
		isWinner[id] = true
	}
	updated := make([]Player, 0, len(g.PlayerIDs))
	for _, id := range g.PlayerIDs {
		p := ApplyGameStats(byID[id], out, placements[id], isWinner[id])
		before := p.Rating
		p.Rating = before + changes[id]
		p.RatingHistory = append(p.RatingHistory, RatingHistoryEntry{
			GameID:       g.ID,
			Timestamp:    now,
			RatingBefore: before,
			RatingAfter:  p.Rating,
		})
		updated = append(updated, p)
	}

	return Completion{
		Game:       out,
		Players:    updated,
		Placements: placements,
		Winners:    winners,
	}, nil
}
