package task

import (
	"testing"
)

func validTask() TaskSpec {
	return TaskSpec{
		ID:         "ms-001",
		Category:   CategoryMultiStakeholder,
		Difficulty: "easy",
		Scenario: Scenario{
			Request:      "Write it.",
			Stakeholders: []Stakeholder{{Name: "Board"}, {Name: "Staff"}},
		},
		Constraints: Constraints{WordCount: &WordRange{Min: 100, Max: 200}},
		Evaluation: Evaluation{
			CriticalFailures: []FailurePredicate{{Name: "contains dollar figure"}},
		},
	}
}

func assertHasFieldError(t *testing.T, result ValidationResult, field string) {
	t.Helper()
	for _, e := range result.Errors {
		if e.Field == field {
			return
		}
	}
	t.Errorf("expected error for field %q, got: %v", field, result.Errors)
}

func TestValidateTaskValid(t *testing.T) {
	result := ValidateTask(validTask())
	if !result.Valid() {
		t.Errorf("expected valid, got errors: %s", result.Error())
	}
	if result.Error() != "" {
		t.Errorf("Error() = %q for valid result", result.Error())
	}
}

func TestValidateTaskInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TaskSpec)
		field  string
	}{
		{"missing id", func(ts *TaskSpec) { ts.ID = "" }, "task_id"},
		{"missing category", func(ts *TaskSpec) { ts.Category = "" }, "category"},
		{"unknown category", func(ts *TaskSpec) { ts.Category = "poetry" }, "category"},
		{"bad difficulty", func(ts *TaskSpec) { ts.Difficulty = "extreme" }, "difficulty"},
		{"missing request", func(ts *TaskSpec) { ts.Scenario.Request = "" }, "scenario.request"},
		{"unnamed stakeholder", func(ts *TaskSpec) { ts.Scenario.Stakeholders[0].Name = "" }, "scenario.stakeholders[0].name"},
		{"duplicate stakeholder", func(ts *TaskSpec) { ts.Scenario.Stakeholders[1].Name = "Board" }, "scenario.stakeholders[1].name"},
		{"inverted range", func(ts *TaskSpec) { ts.Constraints.WordCount = &WordRange{Min: 300, Max: 200} }, "constraints.word_count"},
		{"revision without chain", func(ts *TaskSpec) { ts.Category = CategoryConstrainedRevision }, "revision_chain"},
		{"empty feedback", func(ts *TaskSpec) {
			ts.Category = CategoryConstrainedRevision
			ts.RevisionChain = []FeedbackTurn{{Round: 1}}
		}, "revision_chain[0].feedback"},
		{"round out of order", func(ts *TaskSpec) {
			ts.Category = CategoryConstrainedRevision
			ts.RevisionChain = []FeedbackTurn{{Round: 2, Feedback: "f"}}
		}, "revision_chain[0].round_number"},
		{"unknown kind", func(ts *TaskSpec) {
			ts.Evaluation.CriticalFailures = []FailurePredicate{{Name: "x", Kind: "telepathy"}}
		}, "evaluation.critical_failures[0].kind"},
		{"contains without pattern", func(ts *TaskSpec) {
			ts.Evaluation.CriticalFailures = []FailurePredicate{{Name: "x", Kind: KindContains}}
		}, "evaluation.critical_failures[0].pattern"},
		{"bad regex", func(ts *TaskSpec) {
			ts.Evaluation.CriticalFailures = []FailurePredicate{{Name: "x", Kind: KindRegex, Pattern: "(["}}
		}, "evaluation.critical_failures[0].pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := validTask()
			tt.mutate(&ts)
			result := ValidateTask(ts)
			if result.Valid() {
				t.Fatalf("expected validation error for %s", tt.field)
			}
			assertHasFieldError(t, result, tt.field)
		})
	}
}

func TestValidateTaskOpenMaxWordCount(t *testing.T) {
	ts := validTask()
	ts.Constraints.WordCount = &WordRange{Min: 300}
	if result := ValidateTask(ts); !result.Valid() {
		t.Errorf("max 0 means unbounded, got: %s", result.Error())
	}
}
