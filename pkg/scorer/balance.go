package scorer

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/cgast/prowrite/pkg/oracle"
	"github.com/cgast/prowrite/pkg/score"
	"github.com/cgast/prowrite/pkg/task"
	"github.com/cgast/prowrite/pkg/text"
)

// DefaultBalanceK is the dispersion penalty used by the balance metric.
const DefaultBalanceK = 0.5

// Balance combines per-stakeholder ratings into one score: the mean minus
// k population standard deviations, clamped to [0,100]. Uneven coverage
// lowers the score even when the mean is high.
func Balance(ratings []float64, k float64) float64 {
	if len(ratings) == 0 {
		return score.Max
	}
	return score.Clamp(score.Mean(ratings) - k*score.StdDev(ratings))
}

// BalanceScorer rates how evenly an output serves a task's stakeholders.
type BalanceScorer struct {
	judge      oracle.Judge
	wordBudget int
	k          float64
}

// NewBalanceScorer creates a scorer using dispersion penalty k.
func NewBalanceScorer(j oracle.Judge, wordBudget int, k float64) *BalanceScorer {
	return &BalanceScorer{judge: j, wordBudget: wordBudget, k: k}
}

// Score rates each stakeholder's needs and combines them with Balance.
// Tasks without stakeholders are not applicable and score 100.
func (b *BalanceScorer) Score(ctx context.Context, t task.TaskSpec, output string) (score.DimensionScore, error) {
	stakeholders := t.Scenario.Stakeholders
	if len(stakeholders) == 0 {
		return score.NotApplicable(score.Balance, "no stakeholders"), nil
	}

	verdicts, err := b.Ratings(ctx, t, output)
	if err != nil {
		return score.DimensionScore{}, err
	}

	ratings := make([]float64, len(verdicts))
	details := make(map[string]float64, len(verdicts)+2)
	var rationale []string
	for i, v := range verdicts {
		ratings[i] = score.Clamp(v.Score)
		details[stakeholders[i].Name] = ratings[i]
		if v.Rationale != "" {
			rationale = append(rationale, stakeholders[i].Name+": "+v.Rationale)
		}
	}
	details["mean"] = score.Mean(ratings)
	details["stddev"] = score.StdDev(ratings)

	return score.DimensionScore{
		Dimension:  score.Balance,
		Score:      Balance(ratings, b.k),
		Rationale:  strings.Join(rationale, "\n"),
		Applicable: true,
		Details:    details,
	}, nil
}

// Ratings asks the judge, for every stakeholder of t concurrently, how fully
// output addresses that stakeholder's needs. Verdicts follow stakeholder
// order.
func (b *BalanceScorer) Ratings(ctx context.Context, t task.TaskSpec, output string) ([]oracle.Verdict, error) {
	stakeholders := t.Scenario.Stakeholders
	body := text.TruncateWords(output, b.wordBudget)
	verdicts := make([]oracle.Verdict, len(stakeholders))

	g, gCtx := errgroup.WithContext(ctx)
	for i, s := range stakeholders {
		g.Go(func() error {
			prompt := fmt.Sprintf(balanceTemplate, taskContext(t), s.Name,
				joinOrNone(s.Needs), joinOrNone(s.Concerns), body)
			v, err := b.judge.Judge(gCtx, prompt, balanceRubric)
			if err != nil {
				return fmt.Errorf("balance for %s: %w", s.Name, err)
			}
			verdicts[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return verdicts, nil
}
