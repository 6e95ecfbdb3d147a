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

// Audience is a reader persona for the clarity simulation.
type Audience struct {
	Name        string
	Description string
}

// DefaultAudiences are used for tasks that name no stakeholders.
var DefaultAudiences = []Audience{
	{Name: "Executive", Description: "Senior leadership who needs high-level insights and decision points. Prefers concise, strategic information."},
	{Name: "General Professional", Description: "Professional audience with business acumen but may not have deep technical expertise."},
}

// AudiencesFor returns the task's stakeholders as audiences, or the default
// audiences when it has none.
func AudiencesFor(t task.TaskSpec) []Audience {
	if len(t.Scenario.Stakeholders) == 0 {
		return DefaultAudiences
	}
	out := make([]Audience, len(t.Scenario.Stakeholders))
	for i, s := range t.Scenario.Stakeholders {
		desc := "This audience cares about: " + joinOrNone(s.Needs)
		if len(s.Concerns) > 0 {
			desc += ". Concerned about: " + strings.Join(s.Concerns, ", ")
		}
		out[i] = Audience{Name: s.Name, Description: desc}
	}
	return out
}

// ClaritySimulator rates how well each reader persona can understand and
// act on an output.
type ClaritySimulator struct {
	judge      oracle.Judge
	wordBudget int
}

// NewClaritySimulator creates a simulator. wordBudget <= 0 disables
// truncation.
func NewClaritySimulator(j oracle.Judge, wordBudget int) *ClaritySimulator {
	return &ClaritySimulator{judge: j, wordBudget: wordBudget}
}

// Simulate scores output for a single audience.
func (c *ClaritySimulator) Simulate(ctx context.Context, output string, a Audience) (score.DimensionScore, error) {
	prompt := fmt.Sprintf(clarityTemplate, a.Name, a.Description, text.TruncateWords(output, c.wordBudget))
	v, err := c.judge.Judge(ctx, prompt, clarityRubric)
	if err != nil {
		return score.DimensionScore{}, fmt.Errorf("clarity for %s: %w", a.Name, err)
	}
	return score.DimensionScore{
		Dimension:  score.Clarity,
		Score:      score.Clamp(v.Score),
		Rationale:  v.Rationale,
		Applicable: true,
	}, nil
}

// Score is the unweighted mean of Simulate over every audience of t.
func (c *ClaritySimulator) Score(ctx context.Context, t task.TaskSpec, output string) (score.DimensionScore, error) {
	audiences := AudiencesFor(t)
	results := make([]score.DimensionScore, len(audiences))

	g, gCtx := errgroup.WithContext(ctx)
	for i, a := range audiences {
		g.Go(func() error {
			ds, err := c.Simulate(gCtx, output, a)
			if err != nil {
				return err
			}
			results[i] = ds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return score.DimensionScore{}, err
	}

	if len(results) == 1 {
		ds := results[0]
		ds.Details = map[string]float64{audiences[0].Name: ds.Score}
		return ds, nil
	}

	scores := make([]float64, len(results))
	details := make(map[string]float64, len(results))
	var rationale []string
	for i, r := range results {
		scores[i] = r.Score
		details[audiences[i].Name] = r.Score
		if r.Rationale != "" {
			rationale = append(rationale, audiences[i].Name+": "+r.Rationale)
		}
	}
	return score.DimensionScore{
		Dimension:  score.Clarity,
		Score:      score.Clamp(score.Mean(scores)),
		Rationale:  strings.Join(rationale, "\n"),
		Applicable: true,
		Details:    details,
	}, nil
}
