package classify

import (
	"strings"

	"github.com/mrz1836/rackbrain/internal/domain"
)

// PatternMatches reports whether a single pattern matches text. Matching
// ignores case. Unknown pattern types and invalid regexes never match.
func PatternMatches(p domain.Pattern, text string) bool {
	switch p.Type {
	case domain.PatternContains:
		return containsFold(text, p.Value)
	case domain.PatternNotContains:
		return !containsFold(text, p.Value)
	case domain.PatternRegex:
		return searchInsensitive(p.Value, text)
	default:
		return false
	}
}

// Classify returns the best matching rule for rec, or nil.
//
// Rules without patterns or whose scope fails are skipped. Confidence is
// the fraction of a rule's patterns matching the record's combined text;
// candidates below minConfidence are dropped. A candidate replaces the
// current winner only with a strictly higher priority, or equal priority
// and strictly higher confidence, so the earliest declared rule wins ties.
func Classify(rec *domain.Record, rules []domain.Rule, minConfidence float64) *domain.Match {
	var best *domain.Match

	for i := range rules {
		rule := &rules[i]
		if len(rule.Patterns) == 0 {
			continue
		}
		if !ScopeMatches(rec, rule.Scope) {
			continue
		}

		var matched []domain.Pattern
		for _, p := range rule.Patterns {
			if PatternMatches(p, rec.CombinedText) {
				matched = append(matched, p)
			}
		}
		if len(matched) == 0 {
			continue
		}

		confidence := float64(len(matched)) / float64(len(rule.Patterns))
		if confidence < minConfidence {
			continue
		}

		if best == nil ||
			rule.Priority > best.Rule.Priority ||
			(rule.Priority == best.Rule.Priority && confidence > best.Confidence) {
			best = &domain.Match{Rule: rule, Confidence: confidence, MatchedPatterns: matched}
		}
	}

	return best
}

// FilterRules returns the rules whose ids are not in exclude, keeping order.
func FilterRules(rules []domain.Rule, exclude map[string]struct{}) []domain.Rule {
	if len(exclude) == 0 {
		return rules
	}
	out := make([]domain.Rule, 0, len(rules))
	for _, r := range rules {
		if _, skip := exclude[r.ID]; skip {
			continue
		}
		out = append(out, r)
	}
	return out
}

// SelectRules returns the rules for which keep returns true, keeping order.
func SelectRules(rules []domain.Rule, keep func(*domain.Rule) bool) []domain.Rule {
	out := make([]domain.Rule, 0, len(rules))
	for i := range rules {
		if keep(&rules[i]) {
			out = append(out, rules[i])
		}
	}
	return out
}

// RulesByID indexes rules by id, trimming whitespace.
func RulesByID(rules []domain.Rule) map[string]*domain.Rule {
	m := make(map[string]*domain.Rule, len(rules))
	for i := range rules {
		m[strings.TrimSpace(rules[i].ID)] = &rules[i]
	}
	return m
}
