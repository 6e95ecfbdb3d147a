package verify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cgast/prowrite/pkg/oracle"
	"github.com/cgast/prowrite/pkg/score"
	"github.com/cgast/prowrite/pkg/task"
	"github.com/cgast/prowrite/pkg/text"
)

// DefaultJudgeThreshold is the judge score at or above which a subjective
// predicate counts as triggered.
const DefaultJudgeThreshold = 50.0

// Option configures the Detector.
type Option func(*Detector)

// WithJudge sets the oracle used for judge predicates. Without one, judge
// predicates are skipped and never trigger.
func WithJudge(j oracle.Judge) Option {
	return func(d *Detector) {
		d.judge = j
	}
}

// WithThreshold sets the trigger threshold for judge predicates.
func WithThreshold(t float64) Option {
	return func(d *Detector) {
		d.threshold = t
	}
}

// WithWordBudget sets how many words of output a judge sees.
func WithWordBudget(n int) Option {
	return func(d *Detector) {
		d.wordBudget = n
	}
}

// WithLogger sets the logger for skipped predicates.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// Detector evaluates critical-failure predicates against an output. It keeps
// no state between calls.
type Detector struct {
	judge      oracle.Judge
	threshold  float64
	wordBudget int
	logger     *slog.Logger
}

// NewDetector creates a detector with the given options.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		threshold:  DefaultJudgeThreshold,
		wordBudget: text.DefaultWordBudget,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// PredicateResult is the outcome of one predicate.
type PredicateResult struct {
	Predicate task.FailurePredicate `json:"predicate"`
	Triggered bool                  `json:"triggered"`
	Skipped   bool                  `json:"skipped,omitempty"`
	Message   string                `json:"message,omitempty"`
}

// Detect returns the names of the predicates that hold for output. preds
// should already be resolved (see task.TaskSpec.FailurePredicates). A judge
// failure is returned as an error.
func (d *Detector) Detect(ctx context.Context, output string, preds []task.FailurePredicate) (score.FailureSet, error) {
	results, err := d.Evaluate(ctx, output, preds)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, r := range results {
		if r.Triggered {
			names = append(names, r.Predicate.Name)
		}
	}
	return score.NewFailureSet(names...), nil
}

// Evaluate runs every predicate and reports each outcome in order.
func (d *Detector) Evaluate(ctx context.Context, output string, preds []task.FailurePredicate) ([]PredicateResult, error) {
	results := make([]PredicateResult, 0, len(preds))
	for _, p := range preds {
		if p.Kind == "" {
			p = p.Resolved(task.Constraints{})
		}
		if p.Kind == task.KindJudge {
			r, err := d.evaluateJudge(ctx, output, p)
			if err != nil {
				return nil, err
			}
			results = append(results, r)
			continue
		}

		checker := GetChecker(p.Kind)
		if checker == nil {
			return nil, fmt.Errorf("predicate %q: unknown kind %q", p.Name, p.Kind)
		}
		hit, err := checker(output, p)
		if err != nil {
			return nil, err
		}
		results = append(results, PredicateResult{Predicate: p, Triggered: hit})
	}
	return results, nil
}

const judgePredicateTemplate = `Read the following text and decide whether it exhibits this problem: %s

**Text**:
%s`

const judgePredicateRubric = "Score 100 if the text clearly exhibits the problem, 0 if it clearly does not."

// evaluateJudge asks the oracle whether the output exhibits the predicate.
// When no judge is configured the predicate is skipped with a pass.
func (d *Detector) evaluateJudge(ctx context.Context, output string, p task.FailurePredicate) (PredicateResult, error) {
	if d.judge == nil {
		d.logger.Warn("judge predicate skipped, no judge configured", "predicate", p.Name)
		return PredicateResult{Predicate: p, Skipped: true, Message: "skipped (no judge configured)"}, nil
	}

	prompt := fmt.Sprintf(judgePredicateTemplate, p.Rubric, text.TruncateWords(output, d.wordBudget))
	v, err := d.judge.Judge(ctx, prompt, judgePredicateRubric)
	if err != nil {
		return PredicateResult{}, fmt.Errorf("judge predicate %q: %w", p.Name, err)
	}
	return PredicateResult{
		Predicate: p,
		Triggered: v.Score >= d.threshold,
		Message:   v.Rationale,
	}, nil
}
