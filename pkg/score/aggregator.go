package score

import (
	"math"
)

// PenaltyBase is the multiplier applied once per distinct critical failure.
const PenaltyBase = 0.5

// Breakdown shows how a final score was derived.
type Breakdown struct {
	Weights       Weights               `json:"weights"`
	Contributions map[Dimension]float64 `json:"contributions"`
	Weighted      float64               `json:"weighted"`
	Failures      FailureSet            `json:"failures,omitempty"`
	Multiplier    float64               `json:"multiplier"`
	Final         float64               `json:"final"`
}

// Aggregator combines dimension scores into a final score.
type Aggregator struct {
	weights Weights
}

// NewAggregator validates w and returns an aggregator using it. An invalid
// weight vector is an invariant violation.
func NewAggregator(w Weights) *Aggregator {
	if err := w.Validate(); err != nil {
		violate("weight-sum", "%v", err)
	}
	return &Aggregator{weights: w}
}

// Weights returns the configured base weights.
func (a *Aggregator) Weights() Weights { return a.weights }

// Aggregate folds scores and failures into a Breakdown. Missing dimensions
// score zero. revision selects whether the revision weight applies.
func (a *Aggregator) Aggregate(scores []DimensionScore, failures FailureSet, revision bool) Breakdown {
	w := a.weights.ForCategory(revision)
	if err := w.Validate(); err != nil {
		violate("weight-sum", "%v", err)
	}

	byDim := make(map[Dimension]float64, len(scores))
	for _, s := range scores {
		MustInRange(string(s.Dimension), s.Score)
		byDim[s.Dimension] = s.Score
	}

	b := Breakdown{
		Weights:       w,
		Contributions: make(map[Dimension]float64, len(Dimensions)),
		Failures:      failures,
	}
	for _, d := range Dimensions {
		c := w.Of(d) * byDim[d]
		b.Contributions[d] = c
		b.Weighted += c
	}
	b.Weighted = Clamp(b.Weighted)
	b.Multiplier = Multiplier(failures.Len())
	b.Final = Round2(Clamp(b.Weighted * b.Multiplier))
	MustInRange("final", b.Final)
	return b
}

// Multiplier returns the penalty factor for n critical failures.
func Multiplier(n int) float64 {
	if n <= 0 {
		return 1
	}
	return math.Pow(PenaltyBase, float64(n))
}

// Penalize applies the critical-failure multiplier to a weighted score and
// rounds the result.
func Penalize(weighted float64, n int) float64 {
	return Round2(Clamp(weighted * Multiplier(n)))
}
