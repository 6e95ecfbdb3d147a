package task

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category groups tasks by the writing skill they stress.
type Category string

const (
	CategoryMultiStakeholder     Category = "multi-stakeholder"
	CategoryConstrainedRevision  Category = "constrained-revision"
	CategoryImplicitRequirements Category = "implicit-requirements"
)

// Categories lists every known category in canonical order.
var Categories = []Category{
	CategoryMultiStakeholder,
	CategoryConstrainedRevision,
	CategoryImplicitRequirements,
}

// ParseCategory accepts the canonical hyphenated names as well as the
// underscore spelling used by older task files ("multi_stakeholder").
func ParseCategory(s string) (Category, error) {
	norm := Category(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	for _, c := range Categories {
		if c == norm {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// IsRevision reports whether tasks in this category are multi-turn.
func (c Category) IsRevision() bool { return c == CategoryConstrainedRevision }

// UnmarshalYAML normalizes the category spelling. Unknown values are kept
// verbatim so validation can report them with the field name.
func (c *Category) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*c = normalizeCategory(raw)
	return nil
}

// UnmarshalJSON mirrors UnmarshalYAML.
func (c *Category) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = normalizeCategory(raw)
	return nil
}

func normalizeCategory(raw string) Category {
	if c, err := ParseCategory(raw); err == nil {
		return c
	}
	return Category(raw)
}

// TaskSpec is one benchmark task. It is treated as immutable once loaded:
// every component receives it by value and none of them writes to it.
type TaskSpec struct {
	ID            string         `yaml:"task_id" json:"task_id" validate:"required"`
	Category      Category       `yaml:"category" json:"category" validate:"required"`
	Difficulty    string         `yaml:"difficulty" json:"difficulty,omitempty" validate:"omitempty,oneof=easy medium hard"`
	Scenario      Scenario       `yaml:"scenario" json:"scenario"`
	Constraints   Constraints    `yaml:"constraints" json:"constraints"`
	Evaluation    Evaluation     `yaml:"evaluation" json:"evaluation"`
	RevisionChain []FeedbackTurn `yaml:"revision_chain" json:"revision_chain,omitempty" validate:"dive"`
}

// Scenario is the situation the model writes for.
type Scenario struct {
	Context      string        `yaml:"context" json:"context"`
	Request      string        `yaml:"request" json:"request" validate:"required"`
	Stakeholders []Stakeholder `yaml:"stakeholders" json:"stakeholders,omitempty" validate:"dive"`
}

// Stakeholder is one reader whose needs the output must serve.
type Stakeholder struct {
	Name     string   `yaml:"name" json:"name" validate:"required"`
	Needs    []string `yaml:"needs" json:"needs"`
	Concerns []string `yaml:"concerns" json:"concerns,omitempty"`
}

// WordRange bounds the output length, inclusive on both ends.
type WordRange struct {
	Min int `yaml:"min" json:"min" validate:"min=0"`
	Max int `yaml:"max" json:"max" validate:"min=0"`
}

// Constraints are the hard requirements checked without a judge.
type Constraints struct {
	WordCount         *WordRange `yaml:"word_count" json:"word_count,omitempty"`
	RequiredElements  []string   `yaml:"required_elements" json:"required_elements,omitempty"`
	ForbiddenElements []string   `yaml:"forbidden_elements" json:"forbidden_elements,omitempty"`
	Tone              string     `yaml:"tone" json:"tone,omitempty"`
}

// Evaluation carries judge criteria and critical-failure predicates.
type Evaluation struct {
	JudgeCriteria    []string           `yaml:"judge_criteria" json:"judge_criteria,omitempty"`
	CriticalFailures []FailurePredicate `yaml:"critical_failures" json:"critical_failures,omitempty" validate:"dive"`
}

// FeedbackTurn is one round of reviewer feedback on a revision task.
type FeedbackTurn struct {
	Round    int    `yaml:"round_number" json:"round_number"`
	Feedback string `yaml:"feedback" json:"feedback" validate:"required"`
}

// Stakeholder returns the stakeholder with the given name.
func (t TaskSpec) Stakeholder(name string) (Stakeholder, bool) {
	for _, s := range t.Scenario.Stakeholders {
		if s.Name == name {
			return s, true
		}
	}
	return Stakeholder{}, false
}

// IsRevision reports whether the task runs as a multi-turn revision.
func (t TaskSpec) IsRevision() bool {
	return t.Category.IsRevision()
}

// ToneOrDefault returns the tone descriptor, defaulting to "professional".
func (c Constraints) ToneOrDefault() string {
	if strings.TrimSpace(c.Tone) == "" {
		return "professional"
	}
	return c.Tone
}
