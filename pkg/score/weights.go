package score

import (
	"fmt"
	"math"
)

// WeightTolerance is how far a weight vector's sum may drift from 1.
const WeightTolerance = 1e-9

// Weights assigns each dimension its share of the final score.
type Weights struct {
	Constraint      float64 `yaml:"constraint" json:"constraint"`
	Clarity         float64 `yaml:"clarity" json:"clarity"`
	Balance         float64 `yaml:"balance" json:"balance"`
	Appropriateness float64 `yaml:"appropriateness" json:"appropriateness"`
	Revision        float64 `yaml:"revision" json:"revision"`
}

// DefaultWeights returns the standard weighting.
func DefaultWeights() Weights {
	return Weights{
		Constraint:      0.30,
		Clarity:         0.25,
		Balance:         0.20,
		Appropriateness: 0.15,
		Revision:        0.10,
	}
}

// Of returns the weight for d.
func (w Weights) Of(d Dimension) float64 {
	switch d {
	case Constraint:
		return w.Constraint
	case Clarity:
		return w.Clarity
	case Balance:
		return w.Balance
	case Appropriateness:
		return w.Appropriateness
	case Revision:
		return w.Revision
	}
	return 0
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Constraint + w.Clarity + w.Balance + w.Appropriateness + w.Revision
}

// Validate checks every weight is non-negative and the vector sums to one.
func (w Weights) Validate() error {
	for _, d := range Dimensions {
		if v := w.Of(d); v < 0 || math.IsNaN(v) {
			return fmt.Errorf("weight %s = %v must be non-negative", d, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > WeightTolerance {
		return fmt.Errorf("weights sum to %v, want 1", sum)
	}
	return nil
}

// ForCategory returns the weights to apply to a task. Non-revision tasks
// drop the revision weight and scale the other four up proportionally.
func (w Weights) ForCategory(revision bool) Weights {
	if revision || w.Revision == 0 {
		return w
	}
	rest := 1 - w.Revision
	if rest <= 0 {
		violate("weight-sum", "revision weight %v leaves nothing to redistribute", w.Revision)
	}
	scale := 1 / rest
	return Weights{
		Constraint:      w.Constraint * scale,
		Clarity:         w.Clarity * scale,
		Balance:         w.Balance * scale,
		Appropriateness: w.Appropriateness * scale,
	}
}
