package task

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// PredicateKind selects how a critical-failure predicate is evaluated.
type PredicateKind string

const (
	KindDollarFigure     PredicateKind = "dollar_figure"
	KindNamedIndividual  PredicateKind = "named_individual"
	KindContains         PredicateKind = "contains"
	KindRegex            PredicateKind = "regex"
	KindMissingRequired  PredicateKind = "missing_required"
	KindForbiddenContent PredicateKind = "forbidden_content"
	KindJudge            PredicateKind = "judge"
)

var knownKinds = map[PredicateKind]bool{
	KindDollarFigure:     true,
	KindNamedIndividual:  true,
	KindContains:         true,
	KindRegex:            true,
	KindMissingRequired:  true,
	KindForbiddenContent: true,
	KindJudge:            true,
}

// IsKnownKind reports whether k is a predicate kind the detector evaluates.
func IsKnownKind(k PredicateKind) bool { return knownKinds[k] }

// kindAliases maps normalized predicate names found in task files to kinds.
// Names not listed here fall back to KindJudge with the name as rubric.
var kindAliases = map[string]PredicateKind{
	"dollar_figure":              KindDollarFigure,
	"dollar_figures":             KindDollarFigure,
	"contains_dollar_figure":     KindDollarFigure,
	"contains_dollar_figures":    KindDollarFigure,
	"named_individual":           KindNamedIndividual,
	"contains_named_individual":  KindNamedIndividual,
	"contains_named_individuals": KindNamedIndividual,
	"names_individuals":          KindNamedIndividual,
	"missing_required_element":   KindMissingRequired,
	"missing_required_elements":  KindMissingRequired,
	"contains_forbidden_content": KindForbiddenContent,
	"contains_forbidden_element": KindForbiddenContent,
	"forbidden_content":          KindForbiddenContent,
}

// FailurePredicate is a named condition that, when true of an output, counts
// as a critical failure. In task files it is either a bare name or a mapping.
type FailurePredicate struct {
	Name     string        `yaml:"name" json:"name" validate:"required"`
	Kind     PredicateKind `yaml:"kind" json:"kind,omitempty"`
	Pattern  string        `yaml:"pattern" json:"pattern,omitempty"`
	Elements []string      `yaml:"elements" json:"elements,omitempty"`
	Rubric   string        `yaml:"rubric" json:"rubric,omitempty"`
}

// UnmarshalYAML accepts either "contains dollar figure" or a full mapping.
func (p *FailurePredicate) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var name string
		if err := node.Decode(&name); err != nil {
			return err
		}
		*p = FailurePredicate{Name: name}
		return nil
	}
	type plain FailurePredicate
	var v plain
	if err := node.Decode(&v); err != nil {
		return err
	}
	*p = FailurePredicate(v)
	return nil
}

// UnmarshalJSON mirrors UnmarshalYAML.
func (p *FailurePredicate) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*p = FailurePredicate{Name: name}
		return nil
	}
	type plain FailurePredicate
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = FailurePredicate(v)
	return nil
}

// normalizeName lower-cases a predicate name and joins words with underscores.
func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return strings.Join(strings.Fields(name), "_")
}

// Resolved fills in the kind and any inputs the kind takes from the task's
// constraints. The receiver is not modified.
func (p FailurePredicate) Resolved(c Constraints) FailurePredicate {
	out := p
	out.Elements = append([]string(nil), p.Elements...)
	if out.Kind == "" {
		if k, ok := kindAliases[normalizeName(p.Name)]; ok {
			out.Kind = k
		} else {
			out.Kind = KindJudge
		}
	}
	switch out.Kind {
	case KindMissingRequired:
		if len(out.Elements) == 0 {
			out.Elements = append(out.Elements, c.RequiredElements...)
		}
	case KindForbiddenContent:
		if len(out.Elements) == 0 {
			out.Elements = append(out.Elements, c.ForbiddenElements...)
		}
	case KindJudge:
		if out.Rubric == "" {
			out.Rubric = strings.ReplaceAll(p.Name, "_", " ")
		}
	}
	return out
}

// FailurePredicates returns the task's predicates with kinds resolved.
func (t TaskSpec) FailurePredicates() []FailurePredicate {
	out := make([]FailurePredicate, len(t.Evaluation.CriticalFailures))
	for i, p := range t.Evaluation.CriticalFailures {
		out[i] = p.Resolved(t.Constraints)
	}
	return out
}
