package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/cgast/prowrite/pkg/model"
)

const judgeSystem = "You are an expert evaluator of professional writing. " +
	"You answer only with a JSON object."

const verdictFormat = `Respond with a JSON object in exactly this format:
{
  "score": <number from 0 to 100>,
  "rationale": "<one or two sentences>"
}`

// ModelJudge asks a model adapter for a JSON verdict.
type ModelJudge struct {
	adapter     model.Adapter
	constraints model.Constraints
}

// NewModelJudge creates a judge backed by adapter.
func NewModelJudge(adapter model.Adapter) *ModelJudge {
	c := model.JudgeConstraints()
	c.System = judgeSystem
	return &ModelJudge{adapter: adapter, constraints: c}
}

func (j *ModelJudge) Name() string { return j.adapter.Name() }

// Judge implements Judge. Provider failures are returned unchanged so
// callers can tell them apart from unparseable responses.
func (j *ModelJudge) Judge(ctx context.Context, prompt, rubric string) (Verdict, error) {
	text, err := j.adapter.Generate(ctx, BuildJudgePrompt(prompt, rubric), j.constraints)
	if err != nil {
		return Verdict{}, err
	}
	v, err := ParseVerdict(text)
	if err != nil {
		return Verdict{}, fmt.Errorf("judge %s: %w", j.Name(), err)
	}
	v.Judge = j.Name()
	return v, nil
}

// BuildJudgePrompt combines the material to judge with the rubric and the
// required response format.
func BuildJudgePrompt(prompt, rubric string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(prompt))
	if r := strings.TrimSpace(rubric); r != "" {
		b.WriteString("\n\n**Rubric**: ")
		b.WriteString(r)
	}
	b.WriteString("\n\n")
	b.WriteString(verdictFormat)
	return b.String()
}
