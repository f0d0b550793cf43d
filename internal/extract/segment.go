package extract

import (
	"fmt"
	"strings"

	"github.com/mrz1836/rackbrain/internal/domain"
)

// SelectLogSegment slices a TestView log according to sel. All marker
// comparisons ignore case. The second return value is false when nothing
// was selected.
//
// Modes, in order of precedence:
//   - inline: text between LineBetweenStart and LineBetweenEnd on the same
//     line, and/or LineAfterChars characters after LineAfterContains
//   - span: the smallest block from a BetweenStart line to a BetweenEnd
//     line, each end paired with the nearest start before it
//   - anchor: the first LineContains line with LineBefore/LineAfter context
//
// FilterLineContains keeps only lines containing the filter text; when none
// do, the result is a single explanatory line.
func SelectLogSegment(text string, sel domain.Selection) (string, bool) {
	lines := SplitLines(text)

	if sel.HasInline() {
		fragments := inlineFragmentsFold(lines, sel)
		fragments = applyLineFilter(fragments, sel.FilterLineContains)
		if len(fragments) == 0 {
			return "", false
		}
		return strings.Join(fragments, "\n"), true
	}

	if sel.BetweenStart != "" && sel.BetweenEnd != "" {
		s, e, ok := smallestSpan(lines, sel.BetweenStart, sel.BetweenEnd, ContainsFold)
		if !ok {
			return "", false
		}
		seg := applyLineFilter(lines[s:e+1], sel.FilterLineContains)
		return strings.Join(seg, "\n"), true
	}

	if sel.LineContains != "" {
		for i, line := range lines {
			if !ContainsFold(line, sel.LineContains) {
				continue
			}
			start := max(0, i-max(0, sel.LineBefore))
			end := min(len(lines), i+max(0, sel.LineAfter)+1)
			seg := applyLineFilter(lines[start:end], sel.FilterLineContains)
			return strings.Join(seg, "\n"), true
		}
	}

	return "", false
}

// NoLinesMessage is the placeholder line used when a filter removes every line.
func NoLinesMessage(filter string) string {
	return fmt.Sprintf("[RackBrain] No lines containing '%s' found in selected TestView section.", filter)
}

func applyLineFilter(lines []string, filter string) []string {
	if filter == "" {
		return lines
	}
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if ContainsFold(l, filter) {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		return []string{NoLinesMessage(filter)}
	}
	return out
}

func inlineFragmentsFold(lines []string, sel domain.Selection) []string {
	var fragments []string

	if sel.LineBetweenStart != "" && sel.LineBetweenEnd != "" {
		for _, line := range lines {
			_, startEnd := indexFold(line, sel.LineBetweenStart)
			if startEnd < 0 {
				continue
			}
			rel, _ := indexFold(line[startEnd:], sel.LineBetweenEnd)
			if rel < 0 {
				continue
			}
			if frag := strings.TrimSpace(line[startEnd : startEnd+rel]); frag != "" {
				fragments = append(fragments, frag)
			}
		}
	}

	if sel.LineAfterContains != "" {
		for _, line := range lines {
			_, startEnd := indexFold(line, sel.LineAfterContains)
			if startEnd < 0 {
				continue
			}
			if frag := strings.TrimSpace(takeChars(line[startEnd:], sel.LineAfterChars)); frag != "" {
				fragments = append(fragments, frag)
			}
		}
	}

	return fragments
}

// takeChars returns the first n characters of s, or all of s when n <= 0.
func takeChars(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// smallestSpan pairs each end line with the nearest start line strictly
// before it and returns the shortest such span. Earlier spans win ties.
func smallestSpan(lines []string, startTok, endTok string, contains func(string, string) bool) (start, end int, ok bool) {
	var starts []int
	for i, l := range lines {
		if contains(l, startTok) {
			starts = append(starts, i)
		}
	}
	if len(starts) == 0 {
		return 0, 0, false
	}

	bestLen := -1
	for e, l := range lines {
		if !contains(l, endTok) {
			continue
		}
		s := -1
		for _, cand := range starts {
			if cand >= e {
				break
			}
			s = cand
		}
		if s < 0 {
			continue
		}
		if bestLen < 0 || e-s < bestLen {
			start, end, bestLen = s, e, e-s
		}
	}
	return start, end, bestLen >= 0
}
