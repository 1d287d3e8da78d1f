package engine

import (
	"sort"
	"strings"
)

// ApplyGameStats returns a copy of p with its lifetime counters advanced by
// one completed game. Only the leading complete rounds in which p bid count.
func ApplyGameStats(p Player, g Game, placement int, winner bool) Player {
	out := p.Clone()
	roundsPlayed, bidsCorrect, bidsSum := 0, 0, 0
	for _, r := range g.CompletedRounds() {
		bid, ok := r.Bids[p.ID]
		if !ok {
			continue
		}
		roundsPlayed++
		bidsSum += bid
		if tricks, ok := r.TricksTaken[p.ID]; ok && tricks == bid {
			bidsCorrect++
		}
	}

	out.Stats.GamesPlayed++
	if winner {
		out.Stats.GamesWon++
	}
	out.Stats.TotalRoundsPlayed += roundsPlayed
	out.Stats.TotalBidsCorrect += bidsCorrect
	out.Stats.TotalBidsSum += bidsSum
	out.Stats.TotalPlacementSum += placement
	return out
}

// Ratio is a derived statistic that is only meaningful when its denominator is non-zero.
type Ratio struct {
	Value float64 `json:"value"`
	OK    bool    `json:"ok"`
}

func ratio(num, den int) Ratio {
	if den == 0 {
		return Ratio{}
	}
	return Ratio{Value: float64(num) / float64(den), OK: true}
}

// Display holds the derived per-player statistics shown on leaderboards.
type Display struct {
	PlayerID         string `json:"playerId"`
	Name             string `json:"name"`
	Rating           int    `json:"rating"`
	GamesPlayed      int    `json:"gamesPlayed"`
	GamesWon         int    `json:"gamesWon"`
	RoundsPlayed     int    `json:"roundsPlayed"`
	WinRate          Ratio  `json:"winRate"`
	BidAccuracy      Ratio  `json:"bidAccuracy"`
	AverageBid       Ratio  `json:"averageBid"`
	AveragePlacement Ratio  `json:"averagePlacement"`
}

// DisplayStats derives the leaderboard statistics of p.
func DisplayStats(p Player) Display {
	s := p.Stats
	return Display{
		PlayerID:         p.ID,
		Name:             p.Name,
		Rating:           p.Rating,
		GamesPlayed:      s.GamesPlayed,
		GamesWon:         s.GamesWon,
		RoundsPlayed:     s.TotalRoundsPlayed,
		WinRate:          ratio(s.GamesWon, s.GamesPlayed),
		BidAccuracy:      ratio(s.TotalBidsCorrect, s.TotalRoundsPlayed),
		AverageBid:       ratio(s.TotalBidsSum, s.TotalRoundsPlayed),
		AveragePlacement: ratio(s.TotalPlacementSum, s.GamesPlayed),
	}
}

// Leaderboard returns the display statistics of players ordered by rating,
// highest first, with ties broken by name.
func Leaderboard(players []Player) []Display {
	rows := make([]Display, 0, len(players))
	for _, p := range players {
		rows = append(rows, DisplayStats(p))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Rating != rows[j].Rating {
			return rows[i].Rating > rows[j].Rating
		}
		return strings.ToLower(rows[i].Name) < strings.ToLower(rows[j].Name)
	})
	return rows
}
