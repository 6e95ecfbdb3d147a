package scorer

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/cgast/prowrite/pkg/oracle"
	"github.com/cgast/prowrite/pkg/score"
	"github.com/cgast/prowrite/pkg/task"
	"github.com/cgast/prowrite/pkg/text"
	"github.com/cgast/prowrite/pkg/verify"
)

// Per-turn penalties. An oscillation costs more than ignoring feedback
// outright, which costs at most IgnorePenalty.
const (
	IgnorePenalty      = 25.0
	RegressionPenalty  = 35.0
	OscillationPenalty = 50.0
	PreferencePenalty  = 10.0
)

// DefaultNeedsThreshold is the needs rating at which a stakeholder counts
// as served when tracking drift between drafts.
const DefaultNeedsThreshold = 50.0

const revisionCriterion = "Which response better satisfies the original request and the latest feedback?"

// Turn is one round of feedback and the response to it.
type Turn struct {
	Feedback string
	Response string
}

// TurnScore explains the score of one revision turn.
type TurnScore struct {
	Turn            int                `json:"turn"`
	Incorporation   float64            `json:"incorporation"`
	Regressions     []string           `json:"regressions,omitempty"`
	Oscillations    []string           `json:"oscillations,omitempty"`
	PrefersPrevious bool               `json:"prefers_previous"`
	Score           float64            `json:"score"`
	Rationale       string             `json:"rationale,omitempty"`
	Seed            *oracle.SeedRecord `json:"seed,omitempty"`
}

// RevisionResult is the coherence score of a whole revision chain.
type RevisionResult struct {
	Turns []TurnScore `json:"turns"`
	Score float64     `json:"score"`
}

// Seeds returns the pairwise seeds recorded across turns.
func (r RevisionResult) Seeds() []oracle.SeedRecord {
	var out []oracle.SeedRecord
	for _, t := range r.Turns {
		if t.Seed != nil {
			out = append(out, *t.Seed)
		}
	}
	return out
}

// DimensionScore converts the result to the revision dimension score.
func (r RevisionResult) DimensionScore() score.DimensionScore {
	if len(r.Turns) == 0 {
		return score.NotApplicable(score.Revision, "no revision turns")
	}
	details := make(map[string]float64, len(r.Turns))
	var rationale []string
	for _, t := range r.Turns {
		details["turn_"+strconv.Itoa(t.Turn)] = t.Score
		line := fmt.Sprintf("turn %d: incorporation %.0f", t.Turn, t.Incorporation)
		if len(t.Regressions) > 0 {
			line += fmt.Sprintf(", regressed %v", t.Regressions)
		}
		if len(t.Oscillations) > 0 {
			line += fmt.Sprintf(", oscillated %v", t.Oscillations)
		}
		if t.PrefersPrevious {
			line += ", previous draft preferred"
		}
		rationale = append(rationale, line)
	}
	return score.DimensionScore{
		Dimension:  score.Revision,
		Score:      r.Score,
		Rationale:  strings.Join(rationale, "\n"),
		Applicable: true,
		Details:    details,
	}
}

// TurnValue computes the score of one turn from its components, clamped
// to [0,100].
func TurnValue(incorporation float64, regressions, oscillations int, prefersPrevious bool) float64 {
	s := score.Max -
		IgnorePenalty*(1-score.Clamp(incorporation)/score.Max) -
		RegressionPenalty*float64(regressions) -
		OscillationPenalty*float64(oscillations)
	if prefersPrevious {
		s -= PreferencePenalty
	}
	return score.Clamp(s)
}

// ConstraintDrift compares the constraint reports of successive drafts,
// oldest first, and returns for the last draft the checks that regressed
// (satisfied in the previous draft, violated now) and the subset of those
// that oscillated (also violated in some earlier draft). Oscillations are
// not repeated in regressions.
func ConstraintDrift(history []verify.ConstraintReport) (regressions, oscillations []string) {
	n := len(history)
	if n < 2 {
		return nil, nil
	}
	cur, prev := history[n-1], history[n-2]
	for _, id := range cur.Violated {
		if !prev.IsSatisfied(id) {
			continue
		}
		oscillated := false
		for _, earlier := range history[:n-2] {
			if earlier.IsViolated(id) {
				oscillated = true
				break
			}
		}
		if oscillated {
			oscillations = append(oscillations, id)
		} else {
			regressions = append(regressions, id)
		}
	}
	return regressions, oscillations
}

// NeedsCheck is the drift check id for one stakeholder's needs.
func NeedsCheck(stakeholder string) string { return "stakeholder:" + stakeholder }

// NeedsDrift is ConstraintDrift for stakeholder needs. history holds the
// needs rating of every stakeholder per draft, oldest first; a stakeholder
// is served by a draft when its rating reaches threshold. Results follow
// stakeholder order.
func NeedsDrift(stakeholders []task.Stakeholder, history []map[string]float64, threshold float64) (regressions, oscillations []string) {
	n := len(history)
	if n < 2 {
		return nil, nil
	}
	cur, prev := history[n-1], history[n-2]
	for _, s := range stakeholders {
		served := func(draft map[string]float64) bool { return draft[s.Name] >= threshold }
		if served(cur) || !served(prev) {
			continue
		}
		if slices.ContainsFunc(history[:n-2], func(d map[string]float64) bool { return !served(d) }) {
			oscillations = append(oscillations, NeedsCheck(s.Name))
		} else {
			regressions = append(regressions, NeedsCheck(s.Name))
		}
	}
	return regressions, oscillations
}

// RevisionTracker scores coherence across a revision chain.
type RevisionTracker struct {
	judge          oracle.Judge
	needs          *BalanceScorer
	wordBudget     int
	seed           uint64
	needsThreshold float64
}

// NewRevisionTracker creates a tracker. seed is the run's base seed for
// pairwise comparisons.
func NewRevisionTracker(j oracle.Judge, wordBudget int, seed uint64) *RevisionTracker {
	return &RevisionTracker{
		judge:          j,
		needs:          NewBalanceScorer(j, wordBudget, DefaultBalanceK),
		wordBudget:     wordBudget,
		seed:           seed,
		needsThreshold: DefaultNeedsThreshold,
	}
}

// rateNeeds rates every stakeholder's needs in each draft. It returns nil
// for tasks without stakeholders.
func (r *RevisionTracker) rateNeeds(ctx context.Context, t task.TaskSpec, drafts []string) ([]map[string]float64, error) {
	if len(t.Scenario.Stakeholders) == 0 {
		return nil, nil
	}
	out := make([]map[string]float64, len(drafts))
	g, gCtx := errgroup.WithContext(ctx)
	for i, d := range drafts {
		g.Go(func() error {
			verdicts, err := r.needs.Ratings(gCtx, t, d)
			if err != nil {
				return fmt.Errorf("revision draft %d needs: %w", i, err)
			}
			ratings := make(map[string]float64, len(verdicts))
			for k, v := range verdicts {
				ratings[t.Scenario.Stakeholders[k].Name] = score.Clamp(v.Score)
			}
			out[i] = ratings
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Track scores every turn after the initial draft and combines the turn
// scores with a mean weighted by turn number. Regressions and oscillations
// cover both constraint checks and stakeholder needs.
func (r *RevisionTracker) Track(ctx context.Context, t task.TaskSpec, initial string, turns []Turn) (RevisionResult, error) {
	if len(turns) == 0 {
		return RevisionResult{Score: score.Max}, nil
	}

	drafts := make([]string, 0, len(turns)+1)
	drafts = append(drafts, initial)
	for _, turn := range turns {
		drafts = append(drafts, turn.Response)
	}
	needs, err := r.rateNeeds(ctx, t, drafts)
	if err != nil {
		return RevisionResult{}, err
	}
	history := []verify.ConstraintReport{verify.CheckConstraints(initial, t.Constraints)}

	result := RevisionResult{Turns: make([]TurnScore, len(turns))}
	values := make([]float64, len(turns))
	weights := make([]float64, len(turns))

	for i, turn := range turns {
		prev := drafts[i]
		history = append(history, verify.CheckConstraints(turn.Response, t.Constraints))
		regressions, oscillations := ConstraintDrift(history)
		if needs != nil {
			nr, no := NeedsDrift(t.Scenario.Stakeholders, needs[:i+2], r.needsThreshold)
			regressions = append(regressions, nr...)
			oscillations = append(oscillations, no...)
		}

		ts, err := r.judgeTurn(ctx, t, i+1, prev, turn)
		if err != nil {
			return RevisionResult{}, err
		}
		ts.Regressions = regressions
		ts.Oscillations = oscillations
		ts.Score = TurnValue(ts.Incorporation, len(regressions), len(oscillations), ts.PrefersPrevious)

		result.Turns[i] = ts
		values[i] = ts.Score
		weights[i] = float64(i + 1)
	}

	result.Score = score.Clamp(score.WeightedMean(values, weights))
	return result, nil
}

// judgeTurn runs the incorporation rating and the pairwise comparison for
// one turn concurrently.
func (r *RevisionTracker) judgeTurn(ctx context.Context, t task.TaskSpec, n int, prev string, turn Turn) (TurnScore, error) {
	ts := TurnScore{Turn: n}
	prevBody := text.TruncateWords(prev, r.wordBudget)
	curBody := text.TruncateWords(turn.Response, r.wordBudget)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		prompt := fmt.Sprintf(incorporationTemplate, prevBody, turn.Feedback, curBody)
		v, err := r.judge.Judge(gCtx, prompt, incorporationRubric)
		if err != nil {
			return fmt.Errorf("revision turn %d incorporation: %w", n, err)
		}
		ts.Incorporation = score.Clamp(v.Score)
		ts.Rationale = v.Rationale
		return nil
	})

	var cmp oracle.Comparison
	call := fmt.Sprintf("%s/revision/%d", t.ID, n)
	seed := oracle.SeedFor(r.seed, t.ID, "revision", strconv.Itoa(n))
	g.Go(func() error {
		background := taskContext(t) + "\n\n**Latest feedback**: " + turn.Feedback
		c, err := oracle.Compare(gCtx, r.judge, call, seed, background, prevBody, curBody, revisionCriterion)
		if err != nil {
			return fmt.Errorf("revision turn %d comparison: %w", n, err)
		}
		cmp = c
		return nil
	})

	if err := g.Wait(); err != nil {
		return TurnScore{}, err
	}
	ts.PrefersPrevious = cmp.Winner == oracle.PreferA
	ts.Seed = &cmp.Seed
	return ts, nil
}
