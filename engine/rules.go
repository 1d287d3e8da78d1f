package engine

import (
	"fmt"
	"math"
)

// PerformanceWeights blend the three components of a player's performance
// score. They must be non-negative and sum to 1.
type PerformanceWeights struct {
	Placement   float64 `json:"placement"`
	BidAccuracy float64 `json:"bidAccuracy"`
	Ambition    float64 `json:"ambition"`
}

// Rules holds the tunable rating constants.
type Rules struct {
	KFactor       float64            // total rating at stake per player per game
	DefaultRating int                // rating of a newly registered player
	Weights       PerformanceWeights // performance score blend
}

// DefaultRules returns the standard rating constants.
func DefaultRules() Rules {
	return Rules{
		KFactor:       32,
		DefaultRating: 1000,
		Weights: PerformanceWeights{
			Placement:   0.5,
			BidAccuracy: 0.3,
			Ambition:    0.2,
		},
	}
}

// Validate checks that the rules are usable.
func (r Rules) Validate() error {
	if r.KFactor <= 0 {
		return fmt.Errorf("%w: K factor must be positive, got %v", ErrInvalidConfiguration, r.KFactor)
	}
	w := r.Weights
	if w.Placement < 0 || w.BidAccuracy < 0 || w.Ambition < 0 {
		return fmt.Errorf("%w: performance weights must be non-negative", ErrInvalidConfiguration)
	}
	if sum := w.Placement + w.BidAccuracy + w.Ambition; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("%w: performance weights sum to %v, want 1", ErrInvalidConfiguration, sum)
	}
	return nil
}
