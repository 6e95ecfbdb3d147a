// Package scorer holds the judge-backed dimension scorers: audience clarity,
// stakeholder balance, professional appropriateness and revision coherence.
package scorer

import (
	"fmt"
	"strings"

	"github.com/cgast/prowrite/pkg/task"
)

const clarityTemplate = `You are a member of the audience described below, reading a piece of professional writing addressed to you.

**Audience**: %s
%s

**Writing**:
%s

Consider whether the technical level suits you, whether the information is in a format you can use, and whether you could understand and act on it.`

const clarityRubric = "Rate how clearly this audience can understand and act on the writing, from 0 (incomprehensible) to 100 (perfectly clear)."

const balanceTemplate = `You are evaluating whether a piece of professional writing addresses the needs of one stakeholder.

**Task Context**: %s

**Stakeholder: %s**
- Needs: %s
- Concerns: %s

**Writing to Evaluate**:
%s`

const balanceRubric = "Rate how fully the writing addresses this stakeholder's needs and concerns, from 0 (ignored) to 100 (fully addressed)."

const appropriatenessTemplate = `You are assessing a piece of business writing for professional appropriateness.

**Task Context**:
%s

**Required Tone**: %s

**Writing to Evaluate**:
%s`

const appropriatenessRubric = "Consider tone appropriateness, diplomatic handling of sensitive topics, professional formatting and overall completeness%s. Rate overall professional appropriateness from 0 to 100."

const incorporationTemplate = `You are evaluating how well feedback was incorporated in a revision.

**Previous Version**:
%s

**Feedback Given**: %s

**Revised Version**:
%s`

const incorporationRubric = "Rate how well the revised version addresses the feedback without losing strengths of the previous version, from 0 (feedback ignored) to 100 (fully incorporated)."

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none listed"
	}
	return strings.Join(items, ", ")
}

func taskContext(t task.TaskSpec) string {
	ctx := strings.TrimSpace(t.Scenario.Context)
	req := strings.TrimSpace(t.Scenario.Request)
	switch {
	case ctx == "":
		return req
	case req == "":
		return ctx
	}
	return ctx + "\n" + req
}

func criteriaSuffix(criteria []string) string {
	if len(criteria) == 0 {
		return ""
	}
	return fmt.Sprintf(", plus these task criteria: %s", strings.Join(criteria, "; "))
}
