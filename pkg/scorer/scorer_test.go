package scorer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgast/prowrite/pkg/oracle"
	"github.com/cgast/prowrite/pkg/score"
	"github.com/cgast/prowrite/pkg/task"
	"github.com/cgast/prowrite/pkg/verify"
)

// scripted returns the score of the first key found in the prompt, or def.
type scripted struct {
	mu      sync.Mutex
	rules   []rule
	def     float64
	prompts []string
}

type rule struct {
	contains string
	score    float64
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Judge(_ context.Context, prompt, _ string) (oracle.Verdict, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	for _, r := range s.rules {
		if strings.Contains(prompt, r.contains) {
			return oracle.Verdict{Score: r.score, Rationale: "matched " + r.contains}, nil
		}
	}
	return oracle.Verdict{Score: s.def}, nil
}

func stakeholderTask() task.TaskSpec {
	return task.TaskSpec{
		ID:       "ms-001",
		Category: task.CategoryMultiStakeholder,
		Scenario: task.Scenario{
			Context: "Office relocation.",
			Request: "Announce the move.",
			Stakeholders: []task.Stakeholder{
				{Name: "Engineering", Needs: []string{"desk setup"}},
				{Name: "Finance", Needs: []string{"cost impact"}, Concerns: []string{"overruns"}},
			},
		},
	}
}

func TestBalance(t *testing.T) {
	assert.Equal(t, 60.0, Balance([]float64{90, 50}, 0.5))
	assert.Equal(t, 80.0, Balance([]float64{80, 80, 80}, 0.5))
	assert.Equal(t, 100.0, Balance(nil, 0.5))
	assert.Equal(t, 0.0, Balance([]float64{0, 100}, 3))
	// Even coverage beats uneven coverage with the same mean.
	assert.Greater(t, Balance([]float64{70, 70}, 0.5), Balance([]float64{90, 50}, 0.5))
}

func TestBalanceScorer(t *testing.T) {
	j := &scripted{rules: []rule{{"Stakeholder: Engineering", 90}, {"Stakeholder: Finance", 50}}}
	ds, err := NewBalanceScorer(j, 500, DefaultBalanceK).Score(context.Background(), stakeholderTask(), "text")
	require.NoError(t, err)
	assert.Equal(t, score.Balance, ds.Dimension)
	assert.True(t, ds.Applicable)
	assert.Equal(t, 60.0, ds.Score)
	assert.Equal(t, 90.0, ds.Details["Engineering"])
	assert.Equal(t, 20.0, ds.Details["stddev"])
	assert.Len(t, j.prompts, 2)
}

func TestBalanceScorerNoStakeholders(t *testing.T) {
	j := &scripted{def: 10}
	ts := stakeholderTask()
	ts.Scenario.Stakeholders = nil
	ds, err := NewBalanceScorer(j, 500, DefaultBalanceK).Score(context.Background(), ts, "text")
	require.NoError(t, err)
	assert.False(t, ds.Applicable)
	assert.Equal(t, 100.0, ds.Score)
	assert.Empty(t, j.prompts)
}

func TestClaritySimulator(t *testing.T) {
	j := &scripted{rules: []rule{{"**Audience**: Engineering", 70}, {"**Audience**: Finance", 90}}}
	c := NewClaritySimulator(j, 500)
	ds, err := c.Score(context.Background(), stakeholderTask(), "text")
	require.NoError(t, err)
	assert.Equal(t, 80.0, ds.Score)
	assert.Equal(t, 70.0, ds.Details["Engineering"])

	single := stakeholderTask()
	single.Scenario.Stakeholders = single.Scenario.Stakeholders[1:]
	ds, err = c.Score(context.Background(), single, "text")
	require.NoError(t, err)
	assert.Equal(t, 90.0, ds.Score)
}

func TestClarityDefaultAudiences(t *testing.T) {
	j := &scripted{rules: []rule{{"**Audience**: Executive", 60}, {"**Audience**: General Professional", 100}}}
	ts := stakeholderTask()
	ts.Scenario.Stakeholders = nil
	ds, err := NewClaritySimulator(j, 500).Score(context.Background(), ts, "text")
	require.NoError(t, err)
	assert.Equal(t, 80.0, ds.Score)
	assert.Len(t, j.prompts, 2)
}

func TestClarityTruncatesOutput(t *testing.T) {
	j := &scripted{def: 50}
	long := strings.Repeat("word ", 40) + "TAILMARKER"
	_, err := NewClaritySimulator(j, 10).Simulate(context.Background(), long, DefaultAudiences[0])
	require.NoError(t, err)
	require.Len(t, j.prompts, 1)
	assert.NotContains(t, j.prompts[0], "TAILMARKER")
}

func TestClarityPropagatesJudgeError(t *testing.T) {
	boom := oracle.JudgeFunc{ID: "boom", Fn: func(context.Context, string, string) (oracle.Verdict, error) {
		return oracle.Verdict{}, errors.New("judge down")
	}}
	_, err := NewClaritySimulator(boom, 500).Score(context.Background(), stakeholderTask(), "text")
	assert.Error(t, err)
}

func TestAppropriatenessJudge(t *testing.T) {
	j := &scripted{def: 72}
	ts := stakeholderTask()
	ts.Constraints.Tone = "empathetic"
	ts.Evaluation.JudgeCriteria = []string{"acknowledges disruption"}
	a := NewAppropriatenessJudge(j, 500)
	ds, err := a.Score(context.Background(), ts, "text")
	require.NoError(t, err)
	assert.Equal(t, 72.0, ds.Score)
	assert.Equal(t, score.Appropriateness, ds.Dimension)
	assert.Contains(t, j.prompts[0], "**Required Tone**: empathetic")

	even := NewAppropriatenessJudge(&scripted{def: 50}, 500)
	cmp, err := even.Compare(context.Background(), ts, "k", 3, "one", "two", "Which is better?")
	require.NoError(t, err)
	assert.Equal(t, oracle.Tie, cmp.Winner)
	assert.Equal(t, uint64(3), cmp.Seed.Seed)
	assert.Equal(t, "k", cmp.Seed.Call)
}

func TestTurnValue(t *testing.T) {
	assert.Equal(t, 100.0, TurnValue(100, 0, 0, false))
	assert.Equal(t, 75.0, TurnValue(0, 0, 0, false))
	assert.Equal(t, 65.0, TurnValue(100, 1, 0, false))
	assert.Equal(t, 50.0, TurnValue(100, 0, 1, false))
	assert.Equal(t, 90.0, TurnValue(100, 0, 0, true))
	assert.Equal(t, 0.0, TurnValue(0, 2, 1, true))
	// Oscillating is worse than ignoring feedback completely.
	assert.Less(t, TurnValue(100, 0, 1, false), TurnValue(0, 0, 0, false))
}

func TestConstraintDrift(t *testing.T) {
	c := task.Constraints{RequiredElements: []string{"timeline", "budget"}}
	reports := func(drafts ...string) []verify.ConstraintReport {
		out := make([]verify.ConstraintReport, len(drafts))
		for i, d := range drafts {
			out[i] = verify.CheckConstraints(d, c)
		}
		return out
	}

	reg, osc := ConstraintDrift(reports("timeline budget", "timeline"))
	assert.Equal(t, []string{verify.RequiredCheck("budget")}, reg)
	assert.Empty(t, osc)

	reg, osc = ConstraintDrift(reports("budget", "timeline budget", "budget"))
	assert.Empty(t, reg)
	assert.Equal(t, []string{verify.RequiredCheck("timeline")}, osc)

	reg, osc = ConstraintDrift(reports("budget"))
	assert.Empty(t, reg)
	assert.Empty(t, osc)
}

func revisionTask() task.TaskSpec {
	return task.TaskSpec{
		ID:          "cr-001",
		Category:    task.CategoryConstrainedRevision,
		Scenario:    task.Scenario{Request: "Write the memo."},
		Constraints: task.Constraints{RequiredElements: []string{"timeline"}},
		RevisionChain: []task.FeedbackTurn{
			{Round: 1, Feedback: "Add the timeline."},
			{Round: 2, Feedback: "Make it friendlier."},
			{Round: 3, Feedback: "Shorter, please."},
		},
	}
}

func newRevisionJudge() *scripted {
	return &scripted{rules: []rule{{"Compare the two responses", 50}}, def: 80}
}

func TestRevisionOscillationScoresLower(t *testing.T) {
	ts := revisionTask()
	initial := "memo without dates"

	steady := []Turn{
		{Feedback: "Add the timeline.", Response: "memo with timeline"},
		{Feedback: "Make it friendlier.", Response: "friendly memo with timeline"},
		{Feedback: "Shorter, please.", Response: "short memo, timeline"},
	}
	flipping := []Turn{
		{Feedback: "Add the timeline.", Response: "memo with timeline"},
		{Feedback: "Make it friendlier.", Response: "friendly memo without dates"},
		{Feedback: "Shorter, please.", Response: "short memo, timeline"},
	}

	steadyRes, err := NewRevisionTracker(newRevisionJudge(), 500, 1).Track(context.Background(), ts, initial, steady)
	require.NoError(t, err)
	flipRes, err := NewRevisionTracker(newRevisionJudge(), 500, 1).Track(context.Background(), ts, initial, flipping)
	require.NoError(t, err)

	assert.Less(t, flipRes.Score, steadyRes.Score)
	assert.Equal(t, []string{verify.RequiredCheck("timeline")}, flipRes.Turns[1].Oscillations)
	assert.Empty(t, flipRes.Turns[1].Regressions)

	// 100 - 25*0.2 = 95 for a clean turn.
	assert.InDelta(t, 95, steadyRes.Score, 1e-9)
	assert.InDelta(t, 45, flipRes.Turns[1].Score, 1e-9)
	assert.InDelta(t, (95*1+45*2+95*3)/6.0, flipRes.Score, 1e-9)

	assert.Len(t, steadyRes.Seeds(), 3)
	ds := flipRes.DimensionScore()
	assert.Equal(t, score.Revision, ds.Dimension)
	assert.Contains(t, ds.Rationale, "oscillated")
}

func TestNeedsDrift(t *testing.T) {
	people := []task.Stakeholder{{Name: "Engineering"}, {Name: "Finance"}}
	draft := func(eng, fin float64) map[string]float64 {
		return map[string]float64{"Engineering": eng, "Finance": fin}
	}

	reg, osc := NeedsDrift(people, []map[string]float64{draft(90, 80), draft(90, 20)}, DefaultNeedsThreshold)
	assert.Equal(t, []string{NeedsCheck("Finance")}, reg)
	assert.Empty(t, osc)

	reg, osc = NeedsDrift(people, []map[string]float64{draft(10, 20), draft(90, 80), draft(10, 20)}, DefaultNeedsThreshold)
	assert.Empty(t, reg)
	assert.Equal(t, []string{NeedsCheck("Engineering"), NeedsCheck("Finance")}, osc)

	reg, osc = NeedsDrift(people, []map[string]float64{draft(90, 80), draft(95, 50)}, DefaultNeedsThreshold)
	assert.Empty(t, reg)
	assert.Empty(t, osc)

	reg, osc = NeedsDrift(people, []map[string]float64{draft(90, 80)}, DefaultNeedsThreshold)
	assert.Empty(t, reg)
	assert.Empty(t, osc)
}

// needsJudge serves Finance only in drafts mentioning "spend"; every other
// rating is 80 and pairwise comparisons tie.
func needsJudge() oracle.Judge {
	return oracle.JudgeFunc{ID: "needs", Fn: func(_ context.Context, prompt, _ string) (oracle.Verdict, error) {
		switch {
		case strings.Contains(prompt, "Compare the two responses"):
			return oracle.Verdict{Score: 50}, nil
		case strings.Contains(prompt, "Stakeholder: Finance"):
			_, body, _ := strings.Cut(prompt, "**Writing to Evaluate**:")
			if strings.Contains(body, "spend") {
				return oracle.Verdict{Score: 90}, nil
			}
			return oracle.Verdict{Score: 10}, nil
		}
		return oracle.Verdict{Score: 80}, nil
	}}
}

func TestRevisionStakeholderNeedsOscillation(t *testing.T) {
	ts := stakeholderTask()
	ts.Category = task.CategoryConstrainedRevision

	res, err := NewRevisionTracker(needsJudge(), 500, 1).Track(context.Background(), ts, "move memo",
		[]Turn{
			{Feedback: "Cover the budget.", Response: "move memo with spend"},
			{Feedback: "Friendlier.", Response: "friendly move memo"},
			{Feedback: "Budget again.", Response: "friendly move memo with spend"},
		})
	require.NoError(t, err)
	require.Len(t, res.Turns, 3)

	assert.Empty(t, res.Turns[0].Oscillations)
	assert.Equal(t, []string{NeedsCheck("Finance")}, res.Turns[1].Oscillations)
	assert.Empty(t, res.Turns[1].Regressions)
	assert.Empty(t, res.Turns[2].Oscillations)

	// 100 - 25*0.2 = 95 for a clean turn, minus 50 for the oscillation.
	assert.InDelta(t, 95, res.Turns[0].Score, 1e-9)
	assert.InDelta(t, 45, res.Turns[1].Score, 1e-9)
	assert.InDelta(t, 95, res.Turns[2].Score, 1e-9)
	assert.Contains(t, res.DimensionScore().Rationale, "stakeholder:Finance")
}

func TestRevisionStakeholderNeedsRegression(t *testing.T) {
	ts := stakeholderTask()
	ts.Category = task.CategoryConstrainedRevision

	res, err := NewRevisionTracker(needsJudge(), 500, 1).Track(context.Background(), ts, "memo with spend",
		[]Turn{{Feedback: "Shorter.", Response: "short memo"}})
	require.NoError(t, err)
	require.Len(t, res.Turns, 1)
	assert.Equal(t, []string{NeedsCheck("Finance")}, res.Turns[0].Regressions)
	assert.InDelta(t, 60, res.Turns[0].Score, 1e-9)
}

func TestRevisionNeedsJudgeError(t *testing.T) {
	boom := oracle.JudgeFunc{ID: "boom", Fn: func(_ context.Context, prompt, _ string) (oracle.Verdict, error) {
		if strings.Contains(prompt, "Stakeholder:") {
			return oracle.Verdict{}, errors.New("judge down")
		}
		return oracle.Verdict{Score: 80}, nil
	}}
	_, err := NewRevisionTracker(boom, 500, 1).Track(context.Background(), stakeholderTask(), "a",
		[]Turn{{Feedback: "b", Response: "c"}})
	assert.ErrorContains(t, err, "judge down")
}

func TestRevisionPrefersPreviousPenalty(t *testing.T) {
	ts := revisionTask()
	// The judge always favours the draft that mentions "original".
	j := oracle.JudgeFunc{ID: "j", Fn: func(_ context.Context, prompt, _ string) (oracle.Verdict, error) {
		if !strings.Contains(prompt, "Compare the two responses") {
			return oracle.Verdict{Score: 100}, nil
		}
		i1 := strings.Index(prompt, "**Response 1**")
		i2 := strings.Index(prompt, "**Response 2**")
		o := strings.LastIndex(prompt, "original timeline")
		if o > i1 && o < i2 {
			return oracle.Verdict{Score: 0}, nil
		}
		return oracle.Verdict{Score: 100}, nil
	}}
	res, err := NewRevisionTracker(j, 500, 9).Track(context.Background(), ts, "original timeline",
		[]Turn{{Feedback: "Add the timeline.", Response: "new timeline"}})
	require.NoError(t, err)
	require.Len(t, res.Turns, 1)
	assert.True(t, res.Turns[0].PrefersPrevious)
	assert.Equal(t, 90.0, res.Score)
}

func TestRevisionNoTurns(t *testing.T) {
	res, err := NewRevisionTracker(newRevisionJudge(), 500, 1).Track(context.Background(), revisionTask(), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Score)
	assert.False(t, res.DimensionScore().Applicable)
}

func TestRevisionSeedsReproducible(t *testing.T) {
	turns := []Turn{{Feedback: "a", Response: "b timeline"}, {Feedback: "c", Response: "d timeline"}}
	a, err := NewRevisionTracker(newRevisionJudge(), 500, 42).Track(context.Background(), revisionTask(), "x", turns)
	require.NoError(t, err)
	b, err := NewRevisionTracker(newRevisionJudge(), 500, 42).Track(context.Background(), revisionTask(), "x", turns)
	require.NoError(t, err)
	assert.Equal(t, a.Seeds(), b.Seeds())
	assert.Equal(t, "cr-001/revision/1", a.Seeds()[0].Call)
}
