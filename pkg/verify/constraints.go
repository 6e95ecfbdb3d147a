// Package verify holds the deterministic checks run against model outputs:
// hard constraints and critical-failure predicates.
package verify

import (
	"fmt"

	"github.com/cgast/prowrite/pkg/score"
	"github.com/cgast/prowrite/pkg/task"
	"github.com/cgast/prowrite/pkg/text"
)

// WordCountCheck is the id of the word-count check.
const WordCountCheck = "word_count"

// RequiredCheck returns the id of the check that element is present.
func RequiredCheck(element string) string { return "required:" + element }

// ForbiddenCheck returns the id of the check that element is absent.
func ForbiddenCheck(element string) string { return "forbidden:" + element }

// CheckResult is the outcome of one constraint check.
type CheckResult struct {
	ID        string `json:"id"`
	Satisfied bool   `json:"satisfied"`
	Actual    string `json:"actual,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ConstraintReport lists every check in evaluation order.
type ConstraintReport struct {
	Results   []CheckResult `json:"results"`
	Satisfied []string      `json:"satisfied"`
	Violated  []string      `json:"violated"`
	Score     float64       `json:"score"`
}

// IsSatisfied reports whether the check with id ran and passed.
func (r ConstraintReport) IsSatisfied(id string) bool {
	for _, c := range r.Results {
		if c.ID == id {
			return c.Satisfied
		}
	}
	return false
}

// IsViolated reports whether the check with id ran and failed.
func (r ConstraintReport) IsViolated(id string) bool {
	for _, c := range r.Results {
		if c.ID == id {
			return !c.Satisfied
		}
	}
	return false
}

// DimensionScore converts the report to the constraint dimension score.
func (r ConstraintReport) DimensionScore() score.DimensionScore {
	rationale := fmt.Sprintf("%d of %d constraints satisfied", len(r.Satisfied), len(r.Results))
	if len(r.Violated) > 0 {
		rationale += fmt.Sprintf("; violated: %v", r.Violated)
	}
	return score.DimensionScore{
		Dimension:  score.Constraint,
		Score:      r.Score,
		Rationale:  rationale,
		Applicable: true,
	}
}

// CheckConstraints runs the word-count, required-element and
// forbidden-element checks in that order. Element matching is
// case-insensitive substring matching. With no checks the score is 100.
func CheckConstraints(output string, c task.Constraints) ConstraintReport {
	var results []CheckResult

	if wc := c.WordCount; wc != nil {
		results = append(results, checkWordCount(output, *wc))
	}
	for _, e := range c.RequiredElements {
		ok := text.ContainsFold(output, e)
		r := CheckResult{ID: RequiredCheck(e), Satisfied: ok}
		if !ok {
			r.Message = fmt.Sprintf("output does not mention %q", e)
		}
		results = append(results, r)
	}
	for _, e := range c.ForbiddenElements {
		found := text.ContainsFold(output, e)
		r := CheckResult{ID: ForbiddenCheck(e), Satisfied: !found}
		if found {
			r.Message = fmt.Sprintf("output should not mention %q", e)
		}
		results = append(results, r)
	}

	report := ConstraintReport{
		Results:   results,
		Satisfied: []string{},
		Violated:  []string{},
		Score:     score.Max,
	}
	for _, r := range results {
		if r.Satisfied {
			report.Satisfied = append(report.Satisfied, r.ID)
		} else {
			report.Violated = append(report.Violated, r.ID)
		}
	}
	if len(results) > 0 {
		report.Score = score.Max * float64(len(report.Satisfied)) / float64(len(results))
	}
	return report
}

// checkWordCount passes when min <= words <= max. A max of zero means no
// upper bound.
func checkWordCount(output string, wc task.WordRange) CheckResult {
	n := text.CountWords(output)
	ok := n >= wc.Min && (wc.Max <= 0 || n <= wc.Max)
	r := CheckResult{ID: WordCountCheck, Satisfied: ok, Actual: fmt.Sprintf("%d", n)}
	if !ok {
		if wc.Max > 0 {
			r.Message = fmt.Sprintf("word count %d outside [%d, %d]", n, wc.Min, wc.Max)
		} else {
			r.Message = fmt.Sprintf("word count %d below minimum %d", n, wc.Min)
		}
	}
	return r
}
