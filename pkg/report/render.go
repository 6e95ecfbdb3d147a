// Package report renders suite reports and publishes them.
package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cgast/prowrite/pkg/bench"
	"github.com/cgast/prowrite/pkg/score"
	"github.com/cgast/prowrite/pkg/text"
)

// Format selects a rendering.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat accepts "text", "markdown" (or "md") and "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown report format %q (want text, markdown or json)", s)
}

// excerptChars bounds the output excerpt shown per task in markdown.
const excerptChars = 500

const rule = "======================================================================"

// Render formats r.
func Render(r bench.SuiteReport, f Format) (string, error) {
	switch f {
	case FormatText:
		return renderText(r), nil
	case FormatMarkdown:
		return renderMarkdown(r), nil
	case FormatJSON:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal report: %w", err)
		}
		return string(data) + "\n", nil
	}
	return "", fmt.Errorf("unknown report format %q", f)
}

func judges(r bench.SuiteReport) string {
	if len(r.Judges) == 0 {
		return "none"
	}
	return strings.Join(r.Judges, ", ")
}

func status(tr bench.TaskResult, threshold float64) string {
	switch {
	case !tr.Scored():
		return strings.ToUpper(string(tr.Status))
	case tr.Passed(threshold):
		return "PASSED"
	default:
		return "FAILED"
	}
}

func renderText(r bench.SuiteReport) string {
	var b strings.Builder
	s := r.Summary

	fmt.Fprintf(&b, "%s\n%16sProWriteBench Evaluation Report\n%s\n", rule, "", rule)
	fmt.Fprintf(&b, "\nRun:      %s\n", r.RunID)
	fmt.Fprintf(&b, "Model:    %s\n", r.Model)
	fmt.Fprintf(&b, "Judges:   %s\n", judges(r))
	fmt.Fprintf(&b, "Seed:     %d\n", r.Seed)
	if !r.StartedAt.IsZero() {
		fmt.Fprintf(&b, "Started:  %s\n", r.StartedAt.Format("2006-01-02 15:04:05"))
	}

	fmt.Fprintf(&b, "\n%s\nSUMMARY\n%s\n", rule, rule)
	fmt.Fprintf(&b, "Average Score:     %.2f/100\n", s.Mean)
	fmt.Fprintf(&b, "Median Score:      %.2f/100\n", s.Median)
	fmt.Fprintf(&b, "Pass Rate:         %.1f%% (threshold %.0f)\n", s.PassRate*100, s.PassThreshold)
	fmt.Fprintf(&b, "Total Tasks:       %d\n", s.Total)
	fmt.Fprintf(&b, "Scored:            %d\n", s.Scored)
	fmt.Fprintf(&b, "Passed:            %d\n", s.Passed)
	fmt.Fprintf(&b, "Evaluation Failed: %d\n", s.EvaluationFailed)
	fmt.Fprintf(&b, "Malformed:         %d\n", s.Malformed)

	if len(s.CategoryMeans) > 0 {
		b.WriteString("\nCategory Performance:\n")
		for _, c := range s.Categories() {
			fmt.Fprintf(&b, "  %s: %.2f/100\n", c, s.CategoryMeans[c])
		}
	}

	fmt.Fprintf(&b, "\n%s\nTASK RESULTS\n%s\n", rule, rule)
	for _, tr := range r.Results {
		fmt.Fprintf(&b, "\nTask %s", tr.TaskID)
		if tr.Category != "" {
			fmt.Fprintf(&b, " (%s)", tr.Category)
		}
		fmt.Fprintf(&b, " - %s\n", status(tr, s.PassThreshold))

		if !tr.Scored() {
			fmt.Fprintf(&b, "Reason: %s\n", tr.Reason)
			b.WriteString(strings.Repeat("-", len(rule)) + "\n")
			continue
		}

		fmt.Fprintf(&b, "Overall Score: %.2f/100\n", *tr.Final)
		b.WriteString("\nDimension Scores:\n")
		for _, ds := range tr.Scores {
			fmt.Fprintf(&b, "  %s\n", dimensionLine(ds, tr.Breakdown))
		}
		if len(tr.Failures) > 0 {
			b.WriteString("\nCritical Failures:\n")
			for _, f := range tr.Failures {
				fmt.Fprintf(&b, "  - %s\n", f)
			}
		}
		b.WriteString(strings.Repeat("-", len(rule)) + "\n")
	}
	return b.String()
}

func dimensionLine(ds score.DimensionScore, bd *score.Breakdown) string {
	mark := "✓"
	if ds.Score < bench.DefaultPassThreshold {
		mark = "✗"
	}
	if !ds.Applicable {
		mark = "-"
	}
	line := fmt.Sprintf("%s %s: %.1f/100", mark, ds.Dimension, ds.Score)
	if bd != nil {
		line += fmt.Sprintf(" (weight: %.0f%%)", bd.Weights.Of(ds.Dimension)*100)
	}
	if !ds.Applicable {
		line += " n/a"
	}
	return line
}

func renderMarkdown(r bench.SuiteReport) string {
	var b strings.Builder
	s := r.Summary

	b.WriteString("# ProWriteBench Evaluation Report\n\n")
	fmt.Fprintf(&b, "**Run**: `%s`\n\n", r.RunID)
	fmt.Fprintf(&b, "**Model**: %s\n\n", r.Model)
	fmt.Fprintf(&b, "**Judges**: %s\n\n", judges(r))
	fmt.Fprintf(&b, "**Seed**: %d\n\n", r.Seed)
	b.WriteString("---\n\n## Summary\n\n")
	fmt.Fprintf(&b, "- **Average Score**: %.2f/100\n", s.Mean)
	fmt.Fprintf(&b, "- **Median Score**: %.2f/100\n", s.Median)
	fmt.Fprintf(&b, "- **Pass Rate**: %.1f%%\n", s.PassRate*100)
	fmt.Fprintf(&b, "- **Total Tasks**: %d\n", s.Total)
	fmt.Fprintf(&b, "- **Passed**: %d\n", s.Passed)
	fmt.Fprintf(&b, "- **Evaluation Failed**: %d\n", s.EvaluationFailed)
	fmt.Fprintf(&b, "- **Malformed**: %d\n\n", s.Malformed)

	if len(s.CategoryMeans) > 0 {
		b.WriteString("### Category Performance\n\n")
		b.WriteString("| Category | Average Score |\n|----------|--------------|\n")
		for _, c := range s.Categories() {
			fmt.Fprintf(&b, "| %s | %.2f/100 |\n", c, s.CategoryMeans[c])
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n## Task Results\n\n")
	for _, tr := range r.Results {
		fmt.Fprintf(&b, "### Task %s", tr.TaskID)
		if tr.Category != "" {
			fmt.Fprintf(&b, " (%s)", tr.Category)
		}
		fmt.Fprintf(&b, " - %s\n\n", status(tr, s.PassThreshold))

		if !tr.Scored() {
			fmt.Fprintf(&b, "**Reason**: %s\n\n---\n\n", tr.Reason)
			continue
		}

		fmt.Fprintf(&b, "**Overall Score**: %.2f/100\n\n", *tr.Final)
		b.WriteString("**Dimension Scores**:\n\n")
		for _, ds := range tr.Scores {
			fmt.Fprintf(&b, "- %s\n", dimensionLine(ds, tr.Breakdown))
		}
		b.WriteString("\n")

		if len(tr.Failures) > 0 {
			b.WriteString("**Critical Failures**:\n\n")
			for _, f := range tr.Failures {
				fmt.Fprintf(&b, "- %s\n", f)
			}
			b.WriteString("\n")
		}

		if n := len(tr.Outputs); n > 0 {
			fmt.Fprintf(&b, "**Generated Text** (truncated):\n\n```\n%s\n```\n\n", text.Snippet(tr.Outputs[n-1], excerptChars))
		}
		b.WriteString("---\n\n")
	}
	return b.String()
}
