package engine

import (
	"math"
	"sort"
)

// Placements ranks players by descending score using standard competition
// ranking: equal scores share a rank and the next distinct score takes
// 1 + the number of players strictly ahead ([50,50,40] -> [1,1,3]).
func Placements(scores map[string]int) map[string]int {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})

	placements := make(map[string]int, len(ids))
	rank := 1
	for i, id := range ids {
		if i > 0 && scores[id] < scores[ids[i-1]] {
			rank = i + 1
		}
		placements[id] = rank
	}
	return placements
}

// Winners returns, in seating order, every player holding the best placement.
func Winners(playerIDs []string, placements map[string]int) []string {
	best := 0
	for _, id := range playerIDs {
		if p, ok := placements[id]; ok && (best == 0 || p < best) {
			best = p
		}
	}
	var winners []string
	for _, id := range playerIDs {
		if p, ok := placements[id]; ok && p == best {
			winners = append(winners, id)
		}
	}
	return winners
}

// PerformanceScores computes each player's composite performance in [0, 1]
// from the completed rounds of a game:
//
//   - placement: (n - placement) / (n - 1), or 1 when n == 1
//   - bid accuracy: hit rounds weighted by sqrt(cardsDealt), over the total weight
//   - ambition: sum of bid/cardsDealt over hit rounds divided by the number of
//     rounds, normalized by the best value in the game
//
// The components are blended with w.
func PerformanceScores(playerIDs []string, rounds []Round, placements map[string]int, w PerformanceWeights) map[string]float64 {
	n := len(playerIDs)
	totalRounds := len(rounds)

	totalWeight := 0.0
	for _, r := range rounds {
		totalWeight += math.Sqrt(float64(r.CardsDealt))
	}

	placement := make(map[string]float64, n)
	accuracy := make(map[string]float64, n)
	rawAmbition := make(map[string]float64, n)
	maxAmbition := 0.0

	for _, id := range playerIDs {
		if n > 1 {
			placement[id] = float64(n-placements[id]) / float64(n-1)
		} else {
			placement[id] = 1
		}

		hitWeight, ambition := 0.0, 0.0
		for _, r := range rounds {
			bid, hasBid := r.Bids[id]
			tricks, hasTricks := r.TricksTaken[id]
			if !hasBid || !hasTricks || bid != tricks {
				continue
			}
			hitWeight += math.Sqrt(float64(r.CardsDealt))
			if r.CardsDealt > 0 {
				ambition += float64(bid) / float64(r.CardsDealt)
			}
		}
		if totalWeight > 0 {
			accuracy[id] = hitWeight / totalWeight
		}
		if totalRounds > 0 {
			rawAmbition[id] = ambition / float64(totalRounds)
		}
		maxAmbition = math.Max(maxAmbition, rawAmbition[id])
	}

	perf := make(map[string]float64, n)
	for _, id := range playerIDs {
		amb := 0.0
		if maxAmbition > 0 {
			amb = rawAmbition[id] / maxAmbition
		}
		perf[id] = w.Placement*placement[id] + w.BidAccuracy*accuracy[id] + w.Ambition*amb
	}
	return perf
}

// RatedPlayer is the rating input for one participant.
type RatedPlayer struct {
	ID     string
	Rating int
}

// ExpectedScore is the logistic expectation that a player rated mine
// outperforms one rated theirs.
func ExpectedScore(mine, theirs int) float64 {
	return 1 / (1 + math.Pow(10, float64(theirs-mine)/400))
}

// RawRatingChanges runs the pairwise exchange without rounding. For every pair
// the actual outcome is each side's share of the pair's combined performance
// (a draw when both are zero), and each side moves by K/(n-1) times actual
// minus expected. The result sums to zero. It is empty for fewer than two players.
func RawRatingChanges(players []RatedPlayer, performance map[string]float64, k float64) map[string]float64 {
	n := len(players)
	changes := make(map[string]float64, n)
	if n < 2 {
		return changes
	}
	for _, p := range players {
		changes[p.ID] = 0
	}

	scaledK := k / float64(n-1)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			a, b := players[i], players[j]
			psA, psB := performance[a.ID], performance[b.ID]

			actualA, actualB := 0.5, 0.5
			if sum := psA + psB; sum != 0 {
				actualA = psA / sum
				actualB = psB / sum
			}
			expectedA := ExpectedScore(a.Rating, b.Rating)
			expectedB := 1 - expectedA

			changes[a.ID] += scaledK * (actualA - expectedA)
			changes[b.ID] += scaledK * (actualB - expectedB)
		}
	}
	return changes
}

// RatingChanges rounds RawRatingChanges to whole rating points, halves toward
// positive infinity. Rounding may leave a small non-zero residual across the
// game; it is not redistributed.
func RatingChanges(players []RatedPlayer, performance map[string]float64, k float64) map[string]int {
	raw := RawRatingChanges(players, performance, k)
	out := make(map[string]int, len(raw))
	for id, v := range raw {
		out[id] = int(math.Floor(v + 0.5))
	}
	return out
}
