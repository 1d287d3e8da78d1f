package engine

// NextBidder returns the first seat in BidOrder that has not bid yet.
// ok is false once every seat has bid.
func (r Round) NextBidder() (playerID string, ok bool) {
	for _, id := range r.BidOrder {
		if _, bid := r.Bids[id]; !bid {
			return id, true
		}
	}
	return "", false
}

// IsLastBidder reports whether playerID bids last (the dealer).
func (r Round) IsLastBidder(playerID string) bool {
	return len(r.BidOrder) > 0 && r.BidOrder[len(r.BidOrder)-1] == playerID
}

// RestrictedBid returns the value the last bidder may not bid (the hook rule):
// cardsDealt minus the sum of every other bid. ok is false while any earlier
// seat has yet to bid, or when the other bids already exceed cardsDealt.
func (r Round) RestrictedBid() (value int, ok bool) {
	if len(r.BidOrder) == 0 {
		return 0, false
	}
	sum := 0
	for _, id := range r.BidOrder[:len(r.BidOrder)-1] {
		bid, placed := r.Bids[id]
		if !placed {
			return 0, false
		}
		sum += bid
	}
	restricted := r.CardsDealt - sum
	if restricted < 0 || restricted > r.CardsDealt {
		return 0, false
	}
	return restricted, true
}

// LegalBids lists the bids playerID may submit right now, in ascending order.
// It is empty when playerID is not the next bidder or the round is not bidding.
func (r Round) LegalBids(playerID string) []int {
	if r.Status != RoundBidding {
		return nil
	}
	next, ok := r.NextBidder()
	if !ok || next != playerID {
		return nil
	}
	restricted, hooked := -1, false
	if r.IsLastBidder(playerID) {
		restricted, hooked = r.RestrictedBid()
	}
	bids := make([]int, 0, r.CardsDealt+1)
	for b := 0; b <= r.CardsDealt; b++ {
		if hooked && b == restricted {
			continue
		}
		bids = append(bids, b)
	}
	return bids
}

// TotalBids sums the bids placed so far.
func (r Round) TotalBids() int {
	total := 0
	for _, b := range r.Bids {
		total += b
	}
	return total
}
