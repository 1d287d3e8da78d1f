package engine

import "time"

// GameStatus is the lifecycle state of a Game. The transition active -> completed is one-way.
type GameStatus string

const (
	GameActive    GameStatus = "active"
	GameCompleted GameStatus = "completed"
)

// RoundStatus is the lifecycle state of a single Round.
type RoundStatus string

const (
	RoundBidding  RoundStatus = "bidding"
	RoundPlaying  RoundStatus = "playing"
	RoundComplete RoundStatus = "complete"
)

// Round holds the bids, tricks and scores of one deal.
//
// Bids is keyed by player id; its keys are always a prefix of BidOrder, so the
// insertion order of the original entry is recoverable from BidOrder.
// TricksTaken and Scores are either empty or cover every seat.
type Round struct {
	RoundNumber    int            `json:"roundNumber"` // 1-based
	CardsDealt     int            `json:"cardsDealt"`
	DealerPlayerID string         `json:"dealerPlayerId"`
	FirstBidderID  string         `json:"firstBidderId"`
	BidOrder       []string       `json:"bidOrder"`
	Bids           map[string]int `json:"bids"`
	TricksTaken    map[string]int `json:"tricksTaken"`
	Scores         map[string]int `json:"scores"`
	Status         RoundStatus    `json:"status"`
}

// Game is the persisted record of one scored game.
type Game struct {
	ID                 string         `json:"id"`
	Status             GameStatus     `json:"status"`
	Date               time.Time      `json:"date"`
	PlayerIDs          []string       `json:"playerIds"` // seating order
	MaxCards           int            `json:"maxCards"`
	RoundSequence      []int          `json:"roundSequence"`
	CurrentRoundIndex  int            `json:"currentRoundIndex"` // 0-based
	InitialDealerIndex int            `json:"initialDealerIndex"`
	Rounds             []Round        `json:"rounds"`
	FinalScores        map[string]int `json:"finalScores"`   // nil until completed
	RatingChanges      map[string]int `json:"ratingChanges"` // nil until completed
}

// RatingHistoryEntry records the rating movement caused by one completed game.
type RatingHistoryEntry struct {
	GameID       string    `json:"gameId"`
	Timestamp    time.Time `json:"timestamp"`
	RatingBefore int       `json:"ratingBefore"`
	RatingAfter  int       `json:"ratingAfter"`
}

// PlayerStats are lifetime counters, updated once per completed game.
type PlayerStats struct {
	GamesPlayed       int `json:"gamesPlayed"`
	GamesWon          int `json:"gamesWon"`
	TotalRoundsPlayed int `json:"totalRoundsPlayed"`
	TotalBidsCorrect  int `json:"totalBidsCorrect"`
	TotalBidsSum      int `json:"totalBidsSum"`
	TotalPlacementSum int `json:"totalPlacementSum"`
}

// Player is the persisted record of one rated player.
type Player struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Rating        int                  `json:"rating"`
	RatingHistory []RatingHistoryEntry `json:"ratingHistory"`
	Stats         PlayerStats          `json:"stats"`
}

// NewPlayer returns a player with the given rating, empty history and zeroed stats.
func NewPlayer(id, name string, rating int) Player {
	return Player{
		ID:            id,
		Name:          name,
		Rating:        rating,
		RatingHistory: []RatingHistoryEntry{},
	}
}

func copyIntMap(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Clone returns a deep copy of the round.
func (r Round) Clone() Round {
	c := r
	c.BidOrder = append([]string(nil), r.BidOrder...)
	c.Bids = copyIntMap(r.Bids)
	c.TricksTaken = copyIntMap(r.TricksTaken)
	c.Scores = copyIntMap(r.Scores)
	if c.Bids == nil {
		c.Bids = map[string]int{}
	}
	if c.TricksTaken == nil {
		c.TricksTaken = map[string]int{}
	}
	if c.Scores == nil {
		c.Scores = map[string]int{}
	}
	return c
}

// Clone returns a deep copy of the game.
func (g Game) Clone() Game {
	c := g
	c.PlayerIDs = append([]string(nil), g.PlayerIDs...)
	c.RoundSequence = append([]int(nil), g.RoundSequence...)
	c.Rounds = make([]Round, len(g.Rounds))
	for i, r := range g.Rounds {
		c.Rounds[i] = r.Clone()
	}
	c.FinalScores = copyIntMap(g.FinalScores)
	c.RatingChanges = copyIntMap(g.RatingChanges)
	return c
}

// Clone returns a deep copy of the player.
func (p Player) Clone() Player {
	c := p
	c.RatingHistory = append([]RatingHistoryEntry{}, p.RatingHistory...)
	return c
}

// HasPlayer reports whether id is seated in the game.
func (g Game) HasPlayer(id string) bool {
	return indexOf(g.PlayerIDs, id) >= 0
}

// CurrentRound returns the round at CurrentRoundIndex.
func (g Game) CurrentRound() (Round, bool) {
	if g.CurrentRoundIndex < 0 || g.CurrentRoundIndex >= len(g.Rounds) {
		return Round{}, false
	}
	return g.Rounds[g.CurrentRoundIndex], true
}

// IsLastRound reports whether the current round is the final entry of the round sequence.
func (g Game) IsLastRound() bool {
	return g.CurrentRoundIndex == len(g.RoundSequence)-1
}

// CompletedRounds returns the contiguous prefix of rounds whose status is complete.
func (g Game) CompletedRounds() []Round {
	return completedPrefix(g.Rounds)
}

func completedPrefix(rounds []Round) []Round {
	n := 0
	for n < len(rounds) && rounds[n].Status == RoundComplete {
		n++
	}
	return rounds[:n]
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
