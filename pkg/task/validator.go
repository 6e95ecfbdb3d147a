package task

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationResult holds all validation errors for a task.
type ValidationResult struct {
	Errors []ValidationError
}

// Valid returns true if no validation errors were found.
func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Error returns a combined error message from all validation errors.
func (r ValidationResult) Error() string {
	if r.Valid() {
		return ""
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

func (r *ValidationResult) add(field, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

var (
	structValidator     *validator.Validate
	structValidatorOnce sync.Once
)

// tagValidator reports struct-tag failures using the yaml field names that
// appear in task files.
func tagValidator() *validator.Validate {
	structValidatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		structValidator = v
	})
	return structValidator
}

// ValidateTask checks a TaskSpec for required fields and structural
// correctness.
func ValidateTask(t TaskSpec) ValidationResult {
	var result ValidationResult

	if err := tagValidator().Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				result.add(fieldPath(fe.Namespace()), "%s", describeTag(fe))
			}
		} else {
			result.add("task", "%v", err)
		}
	}

	if t.Category != "" {
		if _, err := ParseCategory(string(t.Category)); err != nil {
			result.add("category", "unknown category %q", t.Category)
		}
	}

	if wc := t.Constraints.WordCount; wc != nil && wc.Max > 0 && wc.Min > wc.Max {
		result.add("constraints.word_count", "min %d exceeds max %d", wc.Min, wc.Max)
	}

	if t.Category.IsRevision() && len(t.RevisionChain) == 0 {
		result.add("revision_chain", "required for category %s", t.Category)
	}
	for i, turn := range t.RevisionChain {
		if turn.Round != 0 && turn.Round != i+1 {
			result.add(fmt.Sprintf("revision_chain[%d].round_number", i), "expected %d, got %d", i+1, turn.Round)
		}
	}

	names := make(map[string]bool)
	for i, s := range t.Scenario.Stakeholders {
		if s.Name == "" {
			continue
		}
		if names[s.Name] {
			result.add(fmt.Sprintf("scenario.stakeholders[%d].name", i), "duplicate stakeholder %q", s.Name)
		}
		names[s.Name] = true
	}

	for i, p := range t.Evaluation.CriticalFailures {
		field := fmt.Sprintf("evaluation.critical_failures[%d]", i)
		if p.Kind != "" && !IsKnownKind(p.Kind) {
			result.add(field+".kind", "unknown predicate kind %q", p.Kind)
			continue
		}
		switch p.Resolved(t.Constraints).Kind {
		case KindContains:
			if p.Pattern == "" {
				result.add(field+".pattern", "required for kind contains")
			}
		case KindRegex:
			if p.Pattern == "" {
				result.add(field+".pattern", "required for kind regex")
			} else if _, err := regexp.Compile(p.Pattern); err != nil {
				result.add(field+".pattern", "invalid regex: %v", err)
			}
		}
	}

	return result
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s check", fe.Tag())
	}
}
