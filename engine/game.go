// Package engine implements the scoring rules of Oh Hell style trick-prediction
// games: the up-and-down round sequence, bid and trick legality, round scoring,
// and the post-game rating exchange.
//
// Every operation is a pure function over value snapshots. Transitions return
// a fresh copy and leave their receiver untouched, so a rejected call can be
// retried with corrected input and callers may keep old snapshots around.
package engine

import (
	"fmt"
	"time"
)

// MinPlayers is the smallest table that can be scored.
const MinPlayers = 2

// NewGame creates an active game with round 1 open for bidding.
func NewGame(id string, date time.Time, playerIDs []string, maxCards, initialDealerIndex int) (Game, error) {
	if len(playerIDs) < MinPlayers {
		return Game{}, fmt.Errorf("%w: need at least %d players, got %d", ErrInvalidConfiguration, MinPlayers, len(playerIDs))
	}
	seen := make(map[string]bool, len(playerIDs))
	for _, pid := range playerIDs {
		if pid == "" {
			return Game{}, fmt.Errorf("%w: empty player id", ErrInvalidConfiguration)
		}
		if seen[pid] {
			return Game{}, fmt.Errorf("%w: player %s seated twice", ErrInvalidConfiguration, pid)
		}
		seen[pid] = true
	}
	if initialDealerIndex < 0 || initialDealerIndex >= len(playerIDs) {
		return Game{}, fmt.Errorf("%w: initial dealer %d outside [0, %d)", ErrInvalidConfiguration, initialDealerIndex, len(playerIDs))
	}
	seq, err := RoundSequence(maxCards)
	if err != nil {
		return Game{}, err
	}

	seats := append([]string(nil), playerIDs...)
	return Game{
		ID:                 id,
		Status:             GameActive,
		Date:               date,
		PlayerIDs:          seats,
		MaxCards:           maxCards,
		RoundSequence:      seq,
		CurrentRoundIndex:  0,
		InitialDealerIndex: initialDealerIndex,
		Rounds:             []Round{newRound(seats, seq, 0, initialDealerIndex)},
	}, nil
}

// requireActive rejects any action on a completed game.
func (g Game) requireActive() error {
	if g.Status == GameCompleted {
		return fmt.Errorf("%w: game %s is completed", ErrIllegalTransition, g.ID)
	}
	if _, ok := g.CurrentRound(); !ok {
		return fmt.Errorf("%w: game %s has no round %d", ErrIllegalTransition, g.ID, g.CurrentRoundIndex+1)
	}
	return nil
}

// updateCurrent applies fn to the current round and returns a game holding the result.
func (g Game) updateCurrent(fn func(Round) (Round, error)) (Game, error) {
	if err := g.requireActive(); err != nil {
		return g, err
	}
	round, err := fn(g.Rounds[g.CurrentRoundIndex])
	if err != nil {
		return g, err
	}
	out := g.Clone()
	out.Rounds[g.CurrentRoundIndex] = round
	return out, nil
}

// SubmitBid records a bid in the current round.
func (g Game) SubmitBid(playerID string, bid int) (Game, error) {
	if !g.HasPlayer(playerID) {
		return g, fmt.Errorf("%w: player %s is not seated in game %s", ErrNotFound, playerID, g.ID)
	}
	return g.updateCurrent(func(r Round) (Round, error) { return r.SubmitBid(playerID, bid) })
}

// ReviseBid reopens bidding in the current round from playerID onwards.
func (g Game) ReviseBid(playerID string) (Game, error) {
	if !g.HasPlayer(playerID) {
		return g, fmt.Errorf("%w: player %s is not seated in game %s", ErrNotFound, playerID, g.ID)
	}
	return g.updateCurrent(func(r Round) (Round, error) { return r.ReviseBid(playerID) })
}

// SubmitTricks scores the current round.
func (g Game) SubmitTricks(tricks map[string]int) (Game, error) {
	return g.updateCurrent(func(r Round) (Round, error) { return r.SubmitTricks(tricks) })
}

// AdvanceRound opens the next round of the sequence. The current round must be
// complete and must not be the last; the last round ends through Complete.
func (g Game) AdvanceRound() (Game, error) {
	if err := g.requireActive(); err != nil {
		return g, err
	}
	current := g.Rounds[g.CurrentRoundIndex]
	if current.Status != RoundComplete {
		return g, fmt.Errorf("%w: round %d is %s", ErrIllegalTransition, current.RoundNumber, current.Status)
	}
	if g.IsLastRound() {
		return g, fmt.Errorf("%w: round %d is the last round, complete the game instead", ErrIllegalTransition, current.RoundNumber)
	}

	next := g.CurrentRoundIndex + 1
	out := g.Clone()
	out.Rounds = append(out.Rounds, newRound(out.PlayerIDs, out.RoundSequence, next, out.InitialDealerIndex))
	out.CurrentRoundIndex = next
	return out, nil
}

// Scores returns the cumulative scores over the completed rounds so far.
func (g Game) Scores() map[string]int {
	return CumulativeScores(g.Rounds, g.PlayerIDs)
}
