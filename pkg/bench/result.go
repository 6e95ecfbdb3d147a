// Package bench runs benchmark tasks against a model and scores the results.
package bench

import (
	"sort"
	"time"

	"github.com/cgast/prowrite/pkg/oracle"
	"github.com/cgast/prowrite/pkg/score"
	"github.com/cgast/prowrite/pkg/scorer"
	"github.com/cgast/prowrite/pkg/task"
	"github.com/cgast/prowrite/pkg/verify"
)

// Status is the outcome class of a task.
type Status string

const (
	StatusScored           Status = "scored"
	StatusEvaluationFailed Status = "evaluation-failed"
	StatusMalformed        Status = "malformed"
)

// DefaultPassThreshold is the final score a task needs to pass.
const DefaultPassThreshold = 70.0

// TaskResult is the record of one task in a run. It is built once and not
// modified afterwards.
type TaskResult struct {
	RunID       string                   `json:"run_id"`
	TaskID      string                   `json:"task_id"`
	Index       int                      `json:"index"`
	Category    task.Category            `json:"category,omitempty"`
	Model       string                   `json:"model"`
	Status      Status                   `json:"status"`
	Scores      []score.DimensionScore   `json:"scores,omitempty"`
	Failures    score.FailureSet         `json:"critical_failures,omitempty"`
	Breakdown   *score.Breakdown         `json:"breakdown,omitempty"`
	Final       *float64                 `json:"final_score,omitempty"`
	Reason      string                   `json:"reason,omitempty"`
	Outputs     []string                 `json:"outputs,omitempty"`
	Constraints *verify.ConstraintReport `json:"constraints,omitempty"`
	Predicates  []verify.PredicateResult `json:"predicates,omitempty"`
	Revision    *scorer.RevisionResult   `json:"revision,omitempty"`
	Seeds       []oracle.SeedRecord      `json:"seeds,omitempty"`
	StartedAt   time.Time                `json:"started_at"`
	Duration    time.Duration            `json:"duration_ns"`
}

// Scored reports whether the task produced a final score.
func (r TaskResult) Scored() bool {
	return r.Status == StatusScored && r.Final != nil
}

// Score returns the score of dimension d.
func (r TaskResult) Score(d score.Dimension) (score.DimensionScore, bool) {
	for _, s := range r.Scores {
		if s.Dimension == d {
			return s, true
		}
	}
	return score.DimensionScore{}, false
}

// Passed reports whether the task scored at least threshold with no
// critical failure.
func (r TaskResult) Passed(threshold float64) bool {
	return r.Scored() && *r.Final >= threshold && r.Failures.Len() == 0
}

// Summary holds suite statistics. Means, median and pass rate are taken
// over scored tasks only.
type Summary struct {
	Total            int                       `json:"total_tasks"`
	Scored           int                       `json:"scored_tasks"`
	EvaluationFailed int                       `json:"evaluation_failed_tasks"`
	Malformed        int                       `json:"malformed_tasks"`
	Passed           int                       `json:"passed_tasks"`
	PassThreshold    float64                   `json:"pass_threshold"`
	Mean             float64                   `json:"average_score"`
	Median           float64                   `json:"median_score"`
	PassRate         float64                   `json:"pass_rate"`
	CategoryMeans    map[task.Category]float64 `json:"category_averages,omitempty"`
}

// Summarize computes the Summary of results.
func Summarize(results []TaskResult, passThreshold float64) Summary {
	s := Summary{Total: len(results), PassThreshold: passThreshold}

	var finals []float64
	byCategory := make(map[task.Category][]float64)
	for _, r := range results {
		switch r.Status {
		case StatusEvaluationFailed:
			s.EvaluationFailed++
		case StatusMalformed:
			s.Malformed++
		}
		if !r.Scored() {
			continue
		}
		s.Scored++
		finals = append(finals, *r.Final)
		if r.Category != "" {
			byCategory[r.Category] = append(byCategory[r.Category], *r.Final)
		}
		if r.Passed(passThreshold) {
			s.Passed++
		}
	}

	if s.Scored == 0 {
		return s
	}
	s.Mean = score.Round2(score.Mean(finals))
	s.Median = score.Round2(score.Median(finals))
	s.PassRate = score.Round2(float64(s.Passed) / float64(s.Scored))
	s.CategoryMeans = make(map[task.Category]float64, len(byCategory))
	for c, xs := range byCategory {
		s.CategoryMeans[c] = score.Round2(score.Mean(xs))
	}
	return s
}

// Categories returns the categories in s.CategoryMeans in sorted order.
func (s Summary) Categories() []task.Category {
	out := make([]task.Category, 0, len(s.CategoryMeans))
	for c := range s.CategoryMeans {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SuiteReport is the outcome of a run. Results are in the order the tasks
// were requested.
type SuiteReport struct {
	RunID      string       `json:"run_id"`
	Model      string       `json:"model"`
	Judges     []string     `json:"judges,omitempty"`
	Seed       uint64       `json:"seed"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Results    []TaskResult `json:"results"`
	Summary    Summary      `json:"summary"`
}

// Result returns the result for task id.
func (r SuiteReport) Result(id string) (TaskResult, bool) {
	for _, tr := range r.Results {
		if tr.TaskID == id {
			return tr, true
		}
	}
	return TaskResult{}, false
}
