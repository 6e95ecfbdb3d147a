package task

import (
	"fmt"
	"strings"
)

// Prompt renders the initial writing prompt for a task.
func Prompt(t TaskSpec) string {
	var b strings.Builder
	if ctx := strings.TrimSpace(t.Scenario.Context); ctx != "" {
		fmt.Fprintf(&b, "**Context**: %s\n\n", ctx)
	}
	fmt.Fprintf(&b, "**Request**: %s\n", strings.TrimSpace(t.Scenario.Request))

	if len(t.Scenario.Stakeholders) > 0 {
		b.WriteString("\n**Stakeholders to consider**:\n")
		for _, s := range t.Scenario.Stakeholders {
			fmt.Fprintf(&b, "- %s\n", s.Name)
			if len(s.Needs) > 0 {
				fmt.Fprintf(&b, "  - Needs: %s\n", strings.Join(s.Needs, ", "))
			}
			if len(s.Concerns) > 0 {
				fmt.Fprintf(&b, "  - Concerns: %s\n", strings.Join(s.Concerns, ", "))
			}
		}
	}

	b.WriteString("\n**Constraints**:\n")
	writeConstraints(&b, t.Constraints)
	return b.String()
}

func writeConstraints(b *strings.Builder, c Constraints) {
	if wc := c.WordCount; wc != nil {
		if wc.Max > 0 {
			fmt.Fprintf(b, "- Word count: %d-%d words\n", wc.Min, wc.Max)
		} else {
			fmt.Fprintf(b, "- Word count: at least %d words\n", wc.Min)
		}
	}
	if len(c.RequiredElements) > 0 {
		fmt.Fprintf(b, "- Must include: %s\n", strings.Join(c.RequiredElements, ", "))
	}
	if len(c.ForbiddenElements) > 0 {
		fmt.Fprintf(b, "- Must NOT include: %s\n", strings.Join(c.ForbiddenElements, ", "))
	}
	fmt.Fprintf(b, "- Tone: %s\n", c.ToneOrDefault())
}

// RevisionPrompt renders the prompt for feedback turn i (zero-based) of a
// revision task. drafts holds every response so far, oldest first; the most
// recent one is the draft being revised. Earlier feedback is listed so the
// model sees the whole conversation.
func RevisionPrompt(t TaskSpec, drafts []string, i int) (string, error) {
	if i < 0 || i >= len(t.RevisionChain) {
		return "", fmt.Errorf("task %s: revision turn %d out of range (have %d)", t.ID, i, len(t.RevisionChain))
	}
	if len(drafts) == 0 {
		return "", fmt.Errorf("task %s: revision turn %d has no previous draft", t.ID, i)
	}

	var b strings.Builder
	b.WriteString(Prompt(t))

	if i > 0 {
		b.WriteString("\n**Earlier feedback**:\n")
		for j, turn := range t.RevisionChain[:i] {
			fmt.Fprintf(&b, "- Round %d: %s\n", j+1, turn.Feedback)
		}
	}

	fmt.Fprintf(&b, "\nHere is your previous writing:\n\n%s\n\n", drafts[len(drafts)-1])
	fmt.Fprintf(&b, "**Feedback (Round %d)**: %s\n\n", i+1, t.RevisionChain[i].Feedback)
	b.WriteString("Please revise your writing based on this feedback while maintaining the original requirements. ")
	b.WriteString("Respond with the full revised text only.\n")
	return b.String(), nil
}
