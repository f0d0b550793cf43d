// Package classify matches enriched records against rules: per-field scope
// constraints, text patterns and the winner selection across rules.
package classify

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"github.com/mrz1836/rackbrain/internal/domain"
)

// Constraint map keys.
const (
	keyContains    = "contains"
	keyNotContains = "not_contains"
	keyRegex       = "regex"
)

//nolint:gochecknoglobals // compiled pattern cache shared by all workers
var regexCache sync.Map

// folders pools case folders; a cases.Caser is stateful and not safe for
// concurrent use.
//
//nolint:gochecknoglobals // shared by all workers
var folders = sync.Pool{New: func() any {
	c := cases.Fold()
	return &c
}}

// fold returns the Unicode case-folded form of s for case-insensitive comparison.
func fold(s string) string {
	c, _ := folders.Get().(*cases.Caser)
	defer folders.Put(c)
	return c.String(s)
}

func normalize(s string) string {
	return fold(strings.TrimSpace(s))
}

// compileInsensitive compiles pattern for case-insensitive search.
// Invalid patterns return nil.
func compileInsensitive(pattern string) *regexp.Regexp {
	if v, ok := regexCache.Load(pattern); ok {
		re, _ := v.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		re = nil
	}
	regexCache.Store(pattern, re)
	return re
}

// searchInsensitive reports whether pattern matches anywhere in text.
func searchInsensitive(pattern, text string) bool {
	re := compileInsensitive(pattern)
	return re != nil && re.MatchString(text)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(fold(haystack), fold(needle))
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// ScopeMatches reports whether src satisfies every constraint in scope.
//
// Constraints on field names the source does not know are ignored. A known
// field with no value fails its constraint. Constraint forms are a scalar
// (equality), a list (one of), or a map with contains, not_contains and
// regex keys. All comparisons ignore case.
func ScopeMatches(src domain.FieldSource, scope map[string]any) bool {
	for name, expected := range scope {
		value, presence := src.Field(name)
		switch presence {
		case domain.FieldAbsent:
			continue
		case domain.FieldNull:
			return false
		case domain.FieldPresent:
		}
		if !constraintMatches(value, expected) {
			return false
		}
	}
	return true
}

func constraintMatches(value domain.Value, expected any) bool {
	switch exp := expected.(type) {
	case map[string]any:
		return mapConstraintMatches(value, exp)
	case []any:
		return oneOfMatches(value, exp)
	case []string:
		items := make([]any, len(exp))
		for i, s := range exp {
			items[i] = s
		}
		return oneOfMatches(value, items)
	default:
		want := normalize(stringify(exp))
		return anyItem(value, func(item string) bool { return normalize(item) == want })
	}
}

// mapConstraintMatches checks the contains, not_contains and regex keys that
// are present. Other keys impose nothing.
func mapConstraintMatches(value domain.Value, exp map[string]any) bool {
	if raw, ok := exp[keyContains]; ok {
		needle := stringify(raw)
		if !anyItem(value, func(item string) bool { return containsFold(item, needle) }) {
			return false
		}
	}

	if raw, ok := exp[keyNotContains]; ok {
		banned := stringify(raw)
		if anyItem(value, func(item string) bool { return containsFold(item, banned) }) {
			return false
		}
	}

	if raw, ok := exp[keyRegex]; ok {
		pattern := stringify(raw)
		if !anyItem(value, func(item string) bool { return searchInsensitive(pattern, item) }) {
			return false
		}
	}

	return true
}

func oneOfMatches(value domain.Value, options []any) bool {
	allowed := make(map[string]struct{}, len(options))
	for _, o := range options {
		allowed[normalize(stringify(o))] = struct{}{}
	}
	return anyItem(value, func(item string) bool {
		_, ok := allowed[normalize(item)]
		return ok
	})
}

// anyItem applies fn to the scalar, or to each element of a list value.
func anyItem(value domain.Value, fn func(string) bool) bool {
	if !value.IsList {
		return fn(value.Scalar)
	}
	for _, item := range value.List {
		if fn(item) {
			return true
		}
	}
	return false
}
