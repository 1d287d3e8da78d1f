package engine

import (
	"errors"
	"testing"
)

func mustBid(t *testing.T, r Round, id string, bid int) Round {
	t.Helper()
	out, err := r.SubmitBid(id, bid)
	if err != nil {
		t.Fatalf("SubmitBid(%s, %d): %v", id, bid, err)
	}
	return out
}

func TestSubmitBidMovesToPlaying(t *testing.T) {
	r := biddingRound(2, []string{"b", "c", "a"}, nil)
	r = mustBid(t, r, "b", 1)
	r = mustBid(t, r, "c", 0)
	if r.Status != RoundBidding {
		t.Fatalf("status = %s before dealer bids", r.Status)
	}
	r = mustBid(t, r, "a", 0)
	if r.Status != RoundPlaying {
		t.Errorf("status = %s, want playing", r.Status)
	}
}

func TestSubmitBidDoesNotMutateInput(t *testing.T) {
	r := biddingRound(2, []string{"b", "c", "a"}, nil)
	if _, err := r.SubmitBid("b", 1); err != nil {
		t.Fatal(err)
	}
	if len(r.Bids) != 0 {
		t.Errorf("input round was modified: %v", r.Bids)
	}
}

func TestSubmitBidErrors(t *testing.T) {
	r := biddingRound(1, []string{"p1", "p2", "p3", "p0"}, map[string]int{"p1": 0, "p2": 1, "p3": 0})

	cases := []struct {
		name string
		id   string
		bid  int
		want error
	}{
		{"hook value", "p0", 0, ErrInvalidBid},
		{"above hand", "p0", 2, ErrInvalidBid},
		{"negative", "p0", -1, ErrInvalidBid},
		{"already bid", "p1", 1, ErrOutOfTurn},
		{"unknown seat", "zz", 0, ErrOutOfTurn},
	}
	for _, tc := range cases {
		out, err := r.SubmitBid(tc.id, tc.bid)
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
		if len(out.Bids) != 3 || out.Status != RoundBidding {
			t.Errorf("%s: rejected bid changed the round", tc.name)
		}
	}

	r = mustBid(t, r, "p0", 1)
	if _, err := r.SubmitBid("p0", 1); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("bid while playing: err = %v, want ErrIllegalTransition", err)
	}
}

// TestDealerNeverMakesTotalEqualCards walks every bid combination for a small table.
func TestDealerNeverMakesTotalEqualCards(t *testing.T) {
	order := []string{"b", "c", "a"}
	for cards := 1; cards <= 4; cards++ {
		for b1 := 0; b1 <= cards; b1++ {
			for b2 := 0; b2 <= cards; b2++ {
				r := biddingRound(cards, order, map[string]int{"b": b1, "c": b2})
				for d := 0; d <= cards; d++ {
					out, err := r.SubmitBid("a", d)
					if err != nil {
						if !errors.Is(err, ErrInvalidBid) || b1+b2+d != cards {
							t.Errorf("cards=%d bids=%d,%d dealer=%d: unexpected err %v", cards, b1, b2, d, err)
						}
						continue
					}
					if out.TotalBids() == cards {
						t.Errorf("cards=%d bids=%d,%d dealer=%d: total equals cards dealt", cards, b1, b2, d)
					}
				}
			}
		}
	}
}

// TestReviseBidTruncatesLaterBids revises the 2nd of 4 bidders after everyone has bid.
func TestReviseBidTruncatesLaterBids(t *testing.T) {
	r := biddingRound(3, []string{"b", "c", "d", "a"}, nil)
	r = mustBid(t, r, "b", 1)
	r = mustBid(t, r, "c", 1)
	r = mustBid(t, r, "d", 0)
	r = mustBid(t, r, "a", 0)
	if r.Status != RoundPlaying {
		t.Fatalf("status = %s, want playing", r.Status)
	}

	out, err := r.ReviseBid("c")
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != RoundBidding {
		t.Errorf("status = %s, want bidding", out.Status)
	}
	if len(out.Bids) != 1 || out.Bids["b"] != 1 {
		t.Errorf("bids = %v, want only b=1", out.Bids)
	}
	if next, _ := out.NextBidder(); next != "c" {
		t.Errorf("next bidder = %s, want c", next)
	}
	if len(r.Bids) != 4 {
		t.Error("input round was modified")
	}
}

func TestReviseBidErrors(t *testing.T) {
	r := biddingRound(2, []string{"b", "c", "a"}, map[string]int{"b": 1})
	if _, err := r.ReviseBid("c"); !errors.Is(err, ErrOutOfTurn) {
		t.Errorf("revise without bid: err = %v, want ErrOutOfTurn", err)
	}
	if _, err := r.ReviseBid("zz"); !errors.Is(err, ErrOutOfTurn) {
		t.Errorf("revise unknown seat: err = %v, want ErrOutOfTurn", err)
	}
	r.Status = RoundComplete
	if _, err := r.ReviseBid("b"); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("revise complete round: err = %v, want ErrIllegalTransition", err)
	}
}

func playingRound(t *testing.T) Round {
	t.Helper()
	r := biddingRound(1, []string{"p1", "p2", "p3", "p0"}, nil)
	r = mustBid(t, r, "p1", 0)
	r = mustBid(t, r, "p2", 1)
	r = mustBid(t, r, "p3", 0)
	return mustBid(t, r, "p0", 1)
}

func TestSubmitTricksScoresRound(t *testing.T) {
	r := playingRound(t)
	out, err := r.SubmitTricks(map[string]int{"p0": 1, "p1": 0, "p2": 0, "p3": 0})
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != RoundComplete {
		t.Errorf("status = %s, want complete", out.Status)
	}
	want := map[string]int{"p0": 11, "p1": 10, "p2": 0, "p3": 10}
	for id, s := range want {
		if out.Scores[id] != s {
			t.Errorf("score[%s] = %d, want %d", id, out.Scores[id], s)
		}
	}
}

func TestSubmitTricksRejectsBadCounts(t *testing.T) {
	r := playingRound(t)
	bad := []map[string]int{
		{"p0": 1, "p1": 0, "p2": 1, "p3": 0},
		{"p0": 1, "p1": 0, "p2": 0},
		{"p0": 2, "p1": -1, "p2": 0, "p3": 0},
		{"p0": 1, "p1": 0, "p2": 0, "zz": 0},
	}
	for i, tricks := range bad {
		out, err := r.SubmitTricks(tricks)
		if !errors.Is(err, ErrTrickCountMismatch) {
			t.Errorf("case %d: err = %v, want ErrTrickCountMismatch", i, err)
		}
		if out.Status != RoundPlaying || len(out.TricksTaken) != 0 {
			t.Errorf("case %d: rejected tricks changed the round", i)
		}
	}
}

func TestSubmitTricksRequiresPlaying(t *testing.T) {
	r := biddingRound(1, []string{"b", "a"}, nil)
	if _, err := r.SubmitTricks(map[string]int{"a": 1, "b": 0}); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("err = %v, want ErrIllegalTransition", err)
	}
}
