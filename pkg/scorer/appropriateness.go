package scorer

import (
	"context"
	"fmt"

	"github.com/cgast/prowrite/pkg/oracle"
	"github.com/cgast/prowrite/pkg/score"
	"github.com/cgast/prowrite/pkg/task"
	"github.com/cgast/prowrite/pkg/text"
)

// AppropriatenessJudge rates tone and professionalism. When built over an
// oracle.Ensemble the member verdicts are combined by the ensemble method.
type AppropriatenessJudge struct {
	judge      oracle.Judge
	wordBudget int
}

// NewAppropriatenessJudge creates a judge scorer.
func NewAppropriatenessJudge(j oracle.Judge, wordBudget int) *AppropriatenessJudge {
	return &AppropriatenessJudge{judge: j, wordBudget: wordBudget}
}

// Rate scores output against the expected tone and any extra criteria.
func (a *AppropriatenessJudge) Rate(ctx context.Context, background, output, tone string, criteria []string) (score.DimensionScore, error) {
	prompt := fmt.Sprintf(appropriatenessTemplate, background, tone, text.TruncateWords(output, a.wordBudget))
	v, err := a.judge.Judge(ctx, prompt, fmt.Sprintf(appropriatenessRubric, criteriaSuffix(criteria)))
	if err != nil {
		return score.DimensionScore{}, fmt.Errorf("appropriateness: %w", err)
	}
	return score.DimensionScore{
		Dimension:  score.Appropriateness,
		Score:      score.Clamp(v.Score),
		Rationale:  v.Rationale,
		Applicable: true,
	}, nil
}

// Score rates output for t using its tone and judge criteria.
func (a *AppropriatenessJudge) Score(ctx context.Context, t task.TaskSpec, output string) (score.DimensionScore, error) {
	return a.Rate(ctx, taskContext(t), output, t.Constraints.ToneOrDefault(), t.Evaluation.JudgeCriteria)
}

// Compare runs a pairwise comparison of two outputs for t. Both outputs are
// truncated to the word budget before the judge sees them.
func (a *AppropriatenessJudge) Compare(ctx context.Context, t task.TaskSpec, call string, seed uint64, first, second, criterion string) (oracle.Comparison, error) {
	return oracle.Compare(ctx, a.judge, call, seed, taskContext(t),
		text.TruncateWords(first, a.wordBudget),
		text.TruncateWords(second, a.wordBudget),
		criterion)
}
