package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgast/prowrite/pkg/bench"
	"github.com/cgast/prowrite/pkg/score"
	"github.com/cgast/prowrite/pkg/task"
)

func sampleReport() bench.SuiteReport {
	final := 86.5
	penalized := 43.25
	agg := score.NewAggregator(score.DefaultWeights())
	scores := []score.DimensionScore{
		{Dimension: score.Constraint, Score: 100, Applicable: true},
		{Dimension: score.Clarity, Score: 80, Applicable: true},
		{Dimension: score.Balance, Score: 80, Applicable: true},
		{Dimension: score.Appropriateness, Score: 80, Applicable: true},
		score.NotApplicable(score.Revision, "single-draft task"),
	}
	bd := agg.Aggregate(scores, nil, false)

	results := []bench.TaskResult{
		{
			TaskID: "ms-001", Category: task.CategoryMultiStakeholder, Status: bench.StatusScored,
			Scores: scores, Breakdown: &bd, Final: &final, Outputs: []string{"Dear team, the office moves in May."},
		},
		{
			TaskID: "ir-002", Category: task.CategoryImplicitRequirements, Status: bench.StatusScored,
			Scores: scores, Breakdown: &bd, Final: &penalized, Failures: score.FailureSet{"contains_dollar_figures"},
		},
		{TaskID: "ms-003", Category: task.CategoryMultiStakeholder, Status: bench.StatusEvaluationFailed, Reason: "generate: openai timed out"},
		{TaskID: "broken", Status: bench.StatusMalformed, Reason: "malformed task broken: bad yaml"},
	}
	return bench.SuiteReport{
		RunID:     "run-1",
		Model:     "gpt-4o",
		Judges:    []string{"claude-sonnet-4"},
		Seed:      42,
		StartedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Results:   results,
		Summary:   bench.Summarize(results, bench.DefaultPassThreshold),
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		err  bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"MD", FormatMarkdown, false},
		{"markdown", FormatMarkdown, false},
		{"json", FormatJSON, false},
		{"html", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderText(t *testing.T) {
	out, err := Render(sampleReport(), FormatText)
	require.NoError(t, err)

	assert.Contains(t, out, "ProWriteBench Evaluation Report")
	assert.Contains(t, out, "Model:    gpt-4o")
	assert.Contains(t, out, "Average Score:     64.88/100")
	assert.Contains(t, out, "Task ms-001 (multi-stakeholder) - PASSED")
	assert.Contains(t, out, "Task ir-002 (implicit-requirements) - FAILED")
	assert.Contains(t, out, "Task ms-003 (multi-stakeholder) - EVALUATION-FAILED")
	assert.Contains(t, out, "Reason: generate: openai timed out")
	assert.Contains(t, out, "Task broken - MALFORMED")
	assert.Contains(t, out, "  - contains_dollar_figures")
	assert.Contains(t, out, "✓ constraint: 100.0/100 (weight: 33%)")
	assert.Contains(t, out, "- revision: 100.0/100 (weight: 0%) n/a")
}

func TestRenderMarkdown(t *testing.T) {
	out, err := Render(sampleReport(), FormatMarkdown)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "# ProWriteBench Evaluation Report"))
	assert.Contains(t, out, "| multi-stakeholder | 86.50/100 |")
	assert.Contains(t, out, "| implicit-requirements | 43.25/100 |")
	assert.Contains(t, out, "### Task ms-001 (multi-stakeholder) - PASSED")
	assert.Contains(t, out, "Dear team, the office moves in May.")
	assert.Contains(t, out, "**Reason**: generate: openai timed out")
	assert.Less(t, strings.Index(out, "implicit-requirements |"), strings.Index(out, "multi-stakeholder |"))
}

func TestRenderJSON(t *testing.T) {
	out, err := Render(sampleReport(), FormatJSON)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	results := decoded["results"].([]any)
	failed := results[2].(map[string]any)
	assert.Equal(t, "evaluation-failed", failed["status"])
	_, hasFinal := failed["final_score"]
	assert.False(t, hasFinal)
}

func TestRenderUnknownFormat(t *testing.T) {
	_, err := Render(sampleReport(), Format("pdf"))
	assert.Error(t, err)
}

func TestSaveLoadResults(t *testing.T) {
	in := sampleReport()
	path := DefaultResultsPath(filepath.Join(t.TempDir(), "results"), in)
	assert.True(t, strings.HasSuffix(path, "gpt-4o_20260301_100000.json"))

	require.NoError(t, SaveResults(path, in))
	out, err := LoadResults(path)
	require.NoError(t, err)

	assert.Equal(t, in.RunID, out.RunID)
	require.Len(t, out.Results, 4)
	assert.Equal(t, 86.5, *out.Results[0].Final)
	assert.Nil(t, out.Results[2].Final)
	assert.Equal(t, in.Summary, out.Summary)
}

func TestLoadResultsMissing(t *testing.T) {
	_, err := LoadResults(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "openai_gpt-4o", sanitize("openai:gpt-4o"))
	assert.Equal(t, "model", sanitize(""))
}

func TestParseRepo(t *testing.T) {
	tests := []struct {
		in          string
		owner, name string
		err         bool
	}{
		{"cgast/prowrite", "cgast", "prowrite", false},
		{" golang/go ", "golang", "go", false},
		{"just-a-name", "", "", true},
		{"a/b/c", "", "", true},
		{"/x", "", "", true},
		{"", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			owner, name, err := ParseRepo(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.name, name)
		})
	}
}

func TestPublish(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"number": 7, "html_url": "https://github.com/cgast/bench/issues/7"}`))
	}))
	defer srv.Close()

	p, err := NewPublisher("tok", WithBaseURL(srv.URL), WithLabels("benchmark"))
	require.NoError(t, err)

	issue, err := p.Publish(context.Background(), "cgast/bench", sampleReport())
	require.NoError(t, err)

	assert.Equal(t, 7, issue.Number)
	assert.Equal(t, "https://github.com/cgast/bench/issues/7", issue.URL)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "/repos/cgast/bench/issues", gotPath)
	assert.Equal(t, "ProWriteBench: gpt-4o scored 64.88 (2/4 tasks)", gotBody["title"])
	assert.Contains(t, gotBody["body"], "# ProWriteBench Evaluation Report")
	assert.Equal(t, []any{"benchmark"}, gotBody["labels"])
}

func TestPublishErrors(t *testing.T) {
	_, err := NewPublisher("")
	assert.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "Not Found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	p, err := NewPublisher("tok", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = p.Publish(context.Background(), "bad", sampleReport())
	assert.Error(t, err)
	_, err = p.Publish(context.Background(), "cgast/missing", sampleReport())
	assert.Error(t, err)
}
