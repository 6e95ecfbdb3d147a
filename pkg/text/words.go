// Package text holds the word-level helpers shared by the checkers and the
// judge prompts. Words are maximal runs of non-space characters.
package text

import (
	"strings"
	"unicode/utf8"
)

// DefaultWordBudget is the number of words sent to a judge for any output.
const DefaultWordBudget = 500

// CountWords returns the number of whitespace-separated words in s.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// TruncateWords keeps the first max words of s. Text that already fits is
// returned unchanged; truncated text is re-joined with single spaces.
// A non-positive max disables truncation.
func TruncateWords(s string, max int) string {
	if max <= 0 {
		return s
	}
	words := strings.Fields(s)
	if len(words) <= max {
		return s
	}
	return strings.Join(words[:max], " ")
}

// ContainsFold reports whether substr occurs in s, ignoring case. Both sides
// are lower-cased with Unicode rules before the substring search. An empty
// substr is never considered present.
func ContainsFold(s, substr string) bool {
	if substr == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// Snippet shortens s to at most n bytes for log lines and report previews.
func Snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
