package extract

import (
	"strings"

	"github.com/mrz1836/rackbrain/internal/domain"
)

// DefaultExtractSource is the record field text extracts read when no
// source is given.
const DefaultExtractSource = "failure_message"

// TextSource resolves a dotted source path to text.
type TextSource interface {
	Text(path string) string
}

// Extract is one named text-extract value.
type Extract struct {
	Name  string
	Value string
}

// Extracts is an ordered list of named values. Later specs with the same
// name overwrite the value in place.
type Extracts []Extract

// Get returns the value for name.
func (e Extracts) Get(name string) (string, bool) {
	for _, x := range e {
		if x.Name == name {
			return x.Value, true
		}
	}
	return "", false
}

func (e Extracts) set(name, value string) Extracts {
	for i := range e {
		if e[i].Name == name {
			e[i].Value = value
			return e
		}
	}
	return append(e, Extract{Name: name, Value: value})
}

// ApplyTextExtracts computes every named extract against src.
func ApplyTextExtracts(src TextSource, specs []domain.TextExtract) Extracts {
	var out Extracts
	for _, spec := range specs {
		if spec.Name == "" {
			continue
		}
		source := spec.Source
		if source == "" {
			source = DefaultExtractSource
		}
		value := ExtractValue(src.Text(source), spec)
		if value == "" {
			value = spec.Default
		}
		out = out.set(spec.Name, value)
	}
	return out
}

// ExtractValue applies one extract spec to text. Matching is case-sensitive.
func ExtractValue(text string, spec domain.TextExtract) string {
	if text == "" {
		return ""
	}
	lines := SplitLines(text)

	if spec.BetweenStart != "" && spec.BetweenEnd != "" {
		s, e, ok := smallestSpan(lines, spec.BetweenStart, spec.BetweenEnd, strings.Contains)
		if !ok {
			return ""
		}
		lines = lines[s : e+1]
	}
	if len(lines) == 0 {
		return ""
	}

	if spec.LineContains != "" {
		kept := make([]string, 0, len(lines))
		for _, l := range lines {
			if strings.Contains(l, spec.LineContains) {
				kept = append(kept, l)
			}
		}
		if len(kept) == 0 {
			return ""
		}
		lines = kept
	}

	if (spec.LineBetweenStart != "" && spec.LineBetweenEnd != "") || spec.LineAfterContains != "" {
		fragments := inlineFragments(lines, spec.LineBetweenStart, spec.LineBetweenEnd,
			spec.LineAfterContains, spec.LineAfterChars)
		if len(fragments) == 0 {
			return ""
		}
		switch strings.ToLower(spec.Take) {
		case "last":
			return fragments[len(fragments)-1]
		case "all":
			return strings.Join(fragments, "\n")
		default:
			return fragments[0]
		}
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// FirstNonEmptyLine returns the first non-blank line of s, trimmed, or the
// trimmed s when every line is blank.
func FirstNonEmptyLine(s string) string {
	for _, line := range SplitLines(s) {
		if c := strings.TrimSpace(line); c != "" {
			return c
		}
	}
	return strings.TrimSpace(s)
}

// UniqueLines returns the distinct non-blank trimmed lines of s in order.
func UniqueLines(s string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, line := range SplitLines(s) {
		item := strings.TrimSpace(line)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
