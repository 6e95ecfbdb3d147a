// Package oracle wraps judge models that rate text against a rubric. Judges
// are noisy: callers must not assume two identical calls agree.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cgast/prowrite/pkg/score"
)

// Verdict is one judge's rating.
type Verdict struct {
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale,omitempty"`
	Judge     string  `json:"judge,omitempty"`
}

// Judge rates prompt against rubric on a 0-100 scale.
type Judge interface {
	Name() string
	Judge(ctx context.Context, prompt, rubric string) (Verdict, error)
}

// JudgeFunc adapts a function to the Judge interface.
type JudgeFunc struct {
	ID string
	Fn func(ctx context.Context, prompt, rubric string) (Verdict, error)
}

func (f JudgeFunc) Name() string { return f.ID }

func (f JudgeFunc) Judge(ctx context.Context, prompt, rubric string) (Verdict, error) {
	return f.Fn(ctx, prompt, rubric)
}

// ErrNoVerdict is returned when a judge response holds no usable score.
var ErrNoVerdict = errors.New("no verdict in judge response")

var (
	fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	bareJSON   = regexp.MustCompile(`(?s)\{.*\}`)
)

// rawVerdict accepts the field spellings judges use in practice.
type rawVerdict struct {
	Score     json.RawMessage `json:"score"`
	Rationale string          `json:"rationale"`
	Reasoning string          `json:"reasoning"`
	Feedback  string          `json:"feedback"`
}

// ParseVerdict extracts a verdict from a judge response. The JSON object may
// be fenced in a markdown code block or embedded in prose. The score is
// clamped to [0,100].
func ParseVerdict(text string) (Verdict, error) {
	var candidate string
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		candidate = m[1]
	} else if m := bareJSON.FindString(text); m != "" {
		candidate = m
	} else {
		return Verdict{}, fmt.Errorf("%w: %s", ErrNoVerdict, snippet(text))
	}

	var raw rawVerdict
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrNoVerdict, err)
	}
	if len(raw.Score) == 0 {
		return Verdict{}, fmt.Errorf("%w: missing score", ErrNoVerdict)
	}
	s, err := parseScore(raw.Score)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrNoVerdict, err)
	}

	v := Verdict{Score: score.Clamp(s), Rationale: raw.Rationale}
	if v.Rationale == "" {
		v.Rationale = raw.Reasoning
	}
	if v.Rationale == "" {
		v.Rationale = raw.Feedback
	}
	return v, nil
}

func parseScore(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("score is not a number: %s", raw)
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
