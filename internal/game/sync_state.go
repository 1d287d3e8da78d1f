package game

import "github.com/jason-s-yu/ohhell/engine"

// Snapshot is the scoreboard view of a game sent to watchers and returned by
// read operations.
type Snapshot struct {
	Game       engine.Game    `json:"game"`
	Scores     map[string]int `json:"scores"`
	Placements map[string]int `json:"placements"`

	CurrentRound *engine.Round `json:"currentRound,omitempty"`
	// NextBidder is empty once every seat has bid.
	NextBidder string `json:"nextBidder,omitempty"`
	// LegalBids lists the values NextBidder may choose.
	LegalBids []int `json:"legalBids,omitempty"`
	// RestrictedBid is the value the dealer may not bid, once it is known.
	RestrictedBid *int `json:"restrictedBid,omitempty"`

	CanAdvance  bool `json:"canAdvance"`
	CanComplete bool `json:"canComplete"`
}

// NewSnapshot derives the scoreboard view of g.
func NewSnapshot(g engine.Game) Snapshot {
	scores := g.Scores()
	s := Snapshot{
		Game:        g.Clone(),
		Scores:      scores,
		Placements:  engine.Placements(scores),
		CanComplete: g.CanComplete(),
	}
	if g.FinalScores != nil {
		s.Placements = engine.Placements(g.FinalScores)
	}

	r, ok := g.CurrentRound()
	if !ok {
		return s
	}
	current := r.Clone()
	s.CurrentRound = &current
	if g.Status == engine.GameActive && r.Status == engine.RoundComplete && !g.IsLastRound() {
		s.CanAdvance = true
	}
	if next, ok := r.NextBidder(); ok && g.Status == engine.GameActive {
		s.NextBidder = next
		s.LegalBids = r.LegalBids(next)
	}
	if v, ok := r.RestrictedBid(); ok {
		s.RestrictedBid = &v
	}
	return s
}
