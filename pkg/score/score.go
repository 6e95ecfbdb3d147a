// Package score defines dimension scores, the weighting scheme and the
// aggregator that folds five dimension scores and a critical-failure set into
// one bounded final score.
package score

import (
	"fmt"
	"math"
	"sort"
)

// Dimension names one of the five scored aspects of an output.
type Dimension string

const (
	Constraint      Dimension = "constraint"
	Clarity         Dimension = "clarity"
	Balance         Dimension = "balance"
	Appropriateness Dimension = "appropriateness"
	Revision        Dimension = "revision"
)

// Dimensions lists every dimension in report order.
var Dimensions = []Dimension{Constraint, Clarity, Balance, Appropriateness, Revision}

const (
	Min = 0.0
	Max = 100.0
)

// DimensionScore is the score of one dimension for one output.
type DimensionScore struct {
	Dimension  Dimension          `json:"dimension"`
	Score      float64            `json:"score"`
	Rationale  string             `json:"rationale,omitempty"`
	Applicable bool               `json:"applicable"`
	Details    map[string]float64 `json:"details,omitempty"`
}

// NotApplicable returns the full-marks score recorded for a dimension that
// does not apply to a task.
func NotApplicable(d Dimension, rationale string) DimensionScore {
	return DimensionScore{Dimension: d, Score: Max, Rationale: rationale, Applicable: false}
}

// Clamp bounds v to [0,100]. NaN maps to 0.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return Min
	case v < Min:
		return Min
	case v > Max:
		return Max
	}
	return v
}

// InRange reports whether v is a valid score.
func InRange(v float64) bool {
	return !math.IsNaN(v) && v >= Min && v <= Max
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// FailureSet is the sorted, de-duplicated set of critical-failure names
// triggered by one output. The zero value means no failures.
type FailureSet []string

// NewFailureSet builds a FailureSet from names in any order.
func NewFailureSet(names ...string) FailureSet {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(names))
	out := make(FailureSet, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// Len returns the number of distinct failures.
func (f FailureSet) Len() int { return len(f) }

// Has reports whether name is in the set.
func (f FailureSet) Has(name string) bool {
	i := sort.SearchStrings(f, name)
	return i < len(f) && f[i] == name
}

// InvariantViolation signals a broken scoring invariant: an out-of-range
// score or a weight vector that does not sum to one. It is raised with panic
// and is never recovered by the runner.
type InvariantViolation struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("scoring invariant %s violated: %s", e.Invariant, e.Detail)
}

func violate(invariant, format string, args ...any) {
	panic(&InvariantViolation{Invariant: invariant, Detail: fmt.Sprintf(format, args...)})
}

// MustInRange panics with an InvariantViolation when v is outside [0,100].
func MustInRange(what string, v float64) {
	if !InRange(v) {
		violate("score-bounds", "%s = %v outside [0,100]", what, v)
	}
}
