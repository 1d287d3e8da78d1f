package engine

// ExactBidBonus is awarded on top of the tricks taken when a bid is hit exactly.
const ExactBidBonus = 10

// Score returns one player's score for a round. Hitting the bid exactly earns
// ExactBidBonus plus the tricks taken; a missed bid still earns the tricks taken.
func Score(bid, tricks int) int {
	if bid == tricks {
		return ExactBidBonus + tricks
	}
	return tricks
}

// CumulativeScores sums each player's round scores over the leading run of
// complete rounds. Accumulation stops at the first round that is not complete,
// even if later rounds carry scores.
func CumulativeScores(rounds []Round, playerIDs []string) map[string]int {
	totals := make(map[string]int, len(playerIDs))
	for _, id := range playerIDs {
		totals[id] = 0
	}
	for _, r := range completedPrefix(rounds) {
		for _, id := range playerIDs {
			totals[id] += r.Scores[id]
		}
	}
	return totals
}
