package verify

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/cgast/prowrite/pkg/task"
	"github.com/cgast/prowrite/pkg/text"
)

// PredicateChecker reports whether a resolved predicate holds for output.
// Checkers must be pure: same input, same answer.
type PredicateChecker func(output string, p task.FailurePredicate) (bool, error)

var (
	checkersMu sync.RWMutex
	// builtinCheckers maps predicate kinds to their deterministic checkers.
	// KindJudge is handled by the Detector, not here.
	builtinCheckers = map[task.PredicateKind]PredicateChecker{
		task.KindDollarFigure:     checkDollarFigure,
		task.KindNamedIndividual:  checkNamedIndividual,
		task.KindContains:         checkContains,
		task.KindRegex:            checkRegex,
		task.KindMissingRequired:  checkMissingRequired,
		task.KindForbiddenContent: checkForbiddenContent,
	}
)

// RegisterChecker adds or replaces the checker for a predicate kind.
func RegisterChecker(kind task.PredicateKind, checker PredicateChecker) {
	checkersMu.Lock()
	defer checkersMu.Unlock()
	builtinCheckers[kind] = checker
}

// GetChecker returns the checker for a kind, or nil if not found.
func GetChecker(kind task.PredicateKind) PredicateChecker {
	checkersMu.RLock()
	defer checkersMu.RUnlock()
	return builtinCheckers[kind]
}

var (
	// "$50,000", "$ 1.2M", "$3 million"
	dollarSymbol = regexp.MustCompile(`\$\s?\d[\d,]*(?:\.\d+)?`)
	// "50,000 dollars", "USD 2,000", "2000 USD"
	dollarWords = regexp.MustCompile(`(?i)\b\d[\d,]*(?:\.\d+)?\s?(?:k|m|bn|thousand|million|billion)?\s?(?:dollars|usd)\b|\busd\s?\d`)
	// "Mr. Smith", "Dr Jane Doe"
	honorificName = regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Miss|Mx|Dr|Prof)\.?\s+[A-Z][a-z]+`)
)

var (
	regexCacheMu sync.Mutex
	regexCache   = map[string]*regexp.Regexp{}
)

func compileCached(pattern string) (*regexp.Regexp, error) {
	regexCacheMu.Lock()
	defer regexCacheMu.Unlock()
	if re, ok := regexCache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache[pattern] = re
	return re, nil
}

// checkDollarFigure triggers on any explicit dollar amount.
func checkDollarFigure(output string, _ task.FailurePredicate) (bool, error) {
	return dollarSymbol.MatchString(output) || dollarWords.MatchString(output), nil
}

// checkNamedIndividual triggers on any listed name, or on an honorific
// followed by a capitalized name when no names are listed.
func checkNamedIndividual(output string, p task.FailurePredicate) (bool, error) {
	if len(p.Elements) > 0 {
		return containsAny(output, p.Elements), nil
	}
	return honorificName.MatchString(output), nil
}

// checkContains triggers when output contains the pattern, ignoring case.
func checkContains(output string, p task.FailurePredicate) (bool, error) {
	if p.Pattern == "" {
		return false, fmt.Errorf("predicate %q: contains needs a pattern", p.Name)
	}
	return text.ContainsFold(output, p.Pattern), nil
}

// checkRegex triggers when output matches the pattern.
func checkRegex(output string, p task.FailurePredicate) (bool, error) {
	re, err := compileCached(p.Pattern)
	if err != nil {
		return false, fmt.Errorf("predicate %q: invalid pattern: %w", p.Name, err)
	}
	return re.MatchString(output), nil
}

// checkMissingRequired triggers when any required element is absent.
func checkMissingRequired(output string, p task.FailurePredicate) (bool, error) {
	for _, e := range p.Elements {
		if !text.ContainsFold(output, e) {
			return true, nil
		}
	}
	return false, nil
}

// checkForbiddenContent triggers when any forbidden element is present.
func checkForbiddenContent(output string, p task.FailurePredicate) (bool, error) {
	return containsAny(output, p.Elements), nil
}

func containsAny(output string, elements []string) bool {
	for _, e := range elements {
		if text.ContainsFold(output, e) {
			return true
		}
	}
	return false
}
