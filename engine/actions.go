package engine

import "fmt"

// SubmitBid records bid for playerID and returns the updated round. The round
// moves to playing once every seat has bid. r is not modified.
func (r Round) SubmitBid(playerID string, bid int) (Round, error) {
	if r.Status != RoundBidding {
		return r, fmt.Errorf("%w: round %d is %s, not accepting bids", ErrIllegalTransition, r.RoundNumber, r.Status)
	}
	next, ok := r.NextBidder()
	if !ok || next != playerID {
		return r, fmt.Errorf("%w: %s cannot bid now, waiting on %s", ErrOutOfTurn, playerID, next)
	}
	if bid < 0 || bid > r.CardsDealt {
		return r, fmt.Errorf("%w: bid %d outside [0, %d]", ErrInvalidBid, bid, r.CardsDealt)
	}
	if r.IsLastBidder(playerID) {
		if restricted, ok := r.RestrictedBid(); ok && bid == restricted {
			return r, fmt.Errorf("%w: dealer cannot bid %d, total bids would equal %d cards dealt", ErrInvalidBid, bid, r.CardsDealt)
		}
	}

	out := r.Clone()
	out.Bids[playerID] = bid
	if len(out.Bids) == len(out.BidOrder) {
		out.Status = RoundPlaying
	}
	return out, nil
}

// ReviseBid withdraws playerID's bid together with every bid placed after it,
// returning the round to bidding so the bids can be entered again. Only a seat
// that has already bid may revise, and never once the round is complete.
func (r Round) ReviseBid(playerID string) (Round, error) {
	if r.Status == RoundComplete {
		return r, fmt.Errorf("%w: round %d is complete", ErrIllegalTransition, r.RoundNumber)
	}
	idx := indexOf(r.BidOrder, playerID)
	if idx < 0 {
		return r, fmt.Errorf("%w: %s is not seated in round %d", ErrOutOfTurn, playerID, r.RoundNumber)
	}
	if _, placed := r.Bids[playerID]; !placed {
		return r, fmt.Errorf("%w: %s has no bid to revise", ErrOutOfTurn, playerID)
	}

	out := r.Clone()
	out.Bids = make(map[string]int, idx)
	for _, id := range r.BidOrder[:idx] {
		if b, ok := r.Bids[id]; ok {
			out.Bids[id] = b
		}
	}
	out.Status = RoundBidding
	return out, nil
}

// SubmitTricks records the tricks each seat took, scores the round and marks it
// complete. tricks must name every seat exactly once with a non-negative count
// and sum to CardsDealt.
func (r Round) SubmitTricks(tricks map[string]int) (Round, error) {
	if r.Status != RoundPlaying {
		return r, fmt.Errorf("%w: round %d is %s, not accepting tricks", ErrIllegalTransition, r.RoundNumber, r.Status)
	}
	if len(tricks) != len(r.BidOrder) {
		return r, fmt.Errorf("%w: got tricks for %d players, want %d", ErrTrickCountMismatch, len(tricks), len(r.BidOrder))
	}
	sum := 0
	for _, id := range r.BidOrder {
		t, ok := tricks[id]
		if !ok {
			return r, fmt.Errorf("%w: missing tricks for %s", ErrTrickCountMismatch, id)
		}
		if t < 0 {
			return r, fmt.Errorf("%w: negative tricks %d for %s", ErrTrickCountMismatch, t, id)
		}
		sum += t
	}
	if sum != r.CardsDealt {
		return r, fmt.Errorf("%w: tricks sum to %d, want %d", ErrTrickCountMismatch, sum, r.CardsDealt)
	}

	out := r.Clone()
	out.TricksTaken = make(map[string]int, len(tricks))
	out.Scores = make(map[string]int, len(tricks))
	for _, id := range r.BidOrder {
		out.TricksTaken[id] = tricks[id]
		out.Scores[id] = Score(r.Bids[id], tricks[id])
	}
	out.Status = RoundComplete
	return out, nil
}
