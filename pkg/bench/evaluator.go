package bench

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/cgast/prowrite/pkg/oracle"
	"github.com/cgast/prowrite/pkg/score"
	"github.com/cgast/prowrite/pkg/scorer"
	"github.com/cgast/prowrite/pkg/task"
	"github.com/cgast/prowrite/pkg/verify"
)

// Evaluation is everything the scorers produced for one task's outputs.
type Evaluation struct {
	Scores      []score.DimensionScore
	Failures    score.FailureSet
	Breakdown   score.Breakdown
	Constraints verify.ConstraintReport
	Predicates  []verify.PredicateResult
	Revision    *scorer.RevisionResult
}

// Evaluator scores the outputs of a task. It holds no per-task state and is
// safe for concurrent use.
type Evaluator struct {
	clarity         *scorer.ClaritySimulator
	balance         *scorer.BalanceScorer
	appropriateness *scorer.AppropriatenessJudge
	revision        *scorer.RevisionTracker
	detector        *verify.Detector
	aggregator      *score.Aggregator
}

// NewEvaluator wires the scorers over judge j using cfg.
func NewEvaluator(j oracle.Judge, cfg Config) *Evaluator {
	return &Evaluator{
		clarity:         scorer.NewClaritySimulator(j, cfg.WordBudget),
		balance:         scorer.NewBalanceScorer(j, cfg.WordBudget, cfg.BalanceK),
		appropriateness: scorer.NewAppropriatenessJudge(j, cfg.WordBudget),
		revision:        scorer.NewRevisionTracker(j, cfg.WordBudget, cfg.Seed),
		detector: verify.NewDetector(
			verify.WithJudge(j),
			verify.WithThreshold(cfg.JudgeThreshold),
			verify.WithWordBudget(cfg.WordBudget),
			verify.WithLogger(cfg.Logger),
		),
		aggregator: score.NewAggregator(cfg.Weights),
	}
}

// Evaluate scores the initial output of t and, for revision tasks, the
// responses to each feedback turn. Single-draft dimensions are scored on the
// final draft. Any judge failure fails the whole evaluation.
func (e *Evaluator) Evaluate(ctx context.Context, t task.TaskSpec, initial string, turns []scorer.Turn) (Evaluation, error) {
	final := initial
	if len(turns) > 0 {
		final = turns[len(turns)-1].Response
	}

	ev := Evaluation{Constraints: verify.CheckConstraints(final, t.Constraints)}

	var clarity, balance, appropriateness score.DimensionScore
	var revision scorer.RevisionResult

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ds, err := e.clarity.Score(gCtx, t, final)
		clarity = ds
		return err
	})
	g.Go(func() error {
		ds, err := e.balance.Score(gCtx, t, final)
		balance = ds
		return err
	})
	g.Go(func() error {
		ds, err := e.appropriateness.Score(gCtx, t, final)
		appropriateness = ds
		return err
	})
	g.Go(func() error {
		preds, err := e.detector.Evaluate(gCtx, final, t.FailurePredicates())
		if err != nil {
			return fmt.Errorf("critical failures: %w", err)
		}
		ev.Predicates = preds
		return nil
	})
	if t.IsRevision() {
		g.Go(func() error {
			r, err := e.revision.Track(gCtx, t, initial, turns)
			revision = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Evaluation{}, err
	}

	revisionScore := score.NotApplicable(score.Revision, "single-draft task")
	if t.IsRevision() {
		ev.Revision = &revision
		revisionScore = revision.DimensionScore()
	}

	ev.Scores = []score.DimensionScore{
		ev.Constraints.DimensionScore(),
		clarity,
		balance,
		appropriateness,
		revisionScore,
	}

	var triggered []string
	for _, p := range ev.Predicates {
		if p.Triggered {
			triggered = append(triggered, p.Predicate.Name)
		}
	}
	ev.Failures = score.NewFailureSet(triggered...)
	ev.Breakdown = e.aggregator.Aggregate(ev.Scores, ev.Failures, t.IsRevision())
	return ev, nil
}
