package engine

import "fmt"

// RoundSequence returns the cards dealt per round for an up-and-down game:
// 1, 2, ..., maxCards, ..., 2, 1. Its length is 2*maxCards-1.
func RoundSequence(maxCards int) ([]int, error) {
	if maxCards < 1 {
		return nil, fmt.Errorf("%w: maxCards must be at least 1, got %d", ErrInvalidConfiguration, maxCards)
	}
	seq := make([]int, 0, 2*maxCards-1)
	for c := 1; c <= maxCards; c++ {
		seq = append(seq, c)
	}
	for c := maxCards - 1; c >= 1; c-- {
		seq = append(seq, c)
	}
	return seq, nil
}

// DealerIndex returns the seat that deals round roundIndex (0-based).
// The deal passes one seat clockwise every round.
func DealerIndex(roundIndex, initialDealerIndex, playerCount int) int {
	if playerCount <= 0 {
		return 0
	}
	return (initialDealerIndex + roundIndex) % playerCount
}

// BidOrder rotates the seating so that the seat after the dealer bids first
// and the dealer bids last.
func BidOrder(playerIDs []string, dealerIndex int) []string {
	n := len(playerIDs)
	order := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		order = append(order, playerIDs[(dealerIndex+i)%n])
	}
	return order
}

// newRound builds round roundIndex of a game in the bidding state.
func newRound(playerIDs []string, roundSequence []int, roundIndex, initialDealerIndex int) Round {
	dealer := DealerIndex(roundIndex, initialDealerIndex, len(playerIDs))
	order := BidOrder(playerIDs, dealer)
	return Round{
		RoundNumber:    roundIndex + 1,
		CardsDealt:     roundSequence[roundIndex],
		DealerPlayerID: playerIDs[dealer],
		FirstBidderID:  order[0],
		BidOrder:       order,
		Bids:           map[string]int{},
		TricksTaken:    map[string]int{},
		Scores:         map[string]int{},
		Status:         RoundBidding,
	}
}
