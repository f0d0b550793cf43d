package extract

import (
	"sort"
	"strings"

	"github.com/mrz1836/rackbrain/internal/domain"
)

// inlineFragments is the case-sensitive counterpart of inlineFragmentsFold.
func inlineFragments(lines []string, betweenStart, betweenEnd, afterContains string, afterChars int) []string {
	var fragments []string

	if betweenStart != "" && betweenEnd != "" {
		for _, line := range lines {
			i := strings.Index(line, betweenStart)
			if i < 0 {
				continue
			}
			i += len(betweenStart)
			j := strings.Index(line[i:], betweenEnd)
			if j < 0 {
				continue
			}
			if frag := strings.TrimSpace(line[i : i+j]); frag != "" {
				fragments = append(fragments, frag)
			}
		}
	}

	if afterContains != "" {
		for _, line := range lines {
			i := strings.Index(line, afterContains)
			if i < 0 {
				continue
			}
			if frag := strings.TrimSpace(takeChars(line[i+len(afterContains):], afterChars)); frag != "" {
				fragments = append(fragments, frag)
			}
		}
	}

	return fragments
}

// firstSpan returns the lines from the first line containing start through
// the first line at or after it containing end.
func firstSpan(lines []string, start, end string) (from, to int, ok bool) {
	from = -1
	for i, line := range lines {
		if from < 0 && strings.Contains(line, start) {
			from = i
		}
		if from >= 0 && strings.Contains(line, end) {
			return from, i, true
		}
	}
	return 0, 0, false
}

type indexSet map[int]struct{}

func (s indexSet) addRange(from, to int) {
	for j := from; j < to; j++ {
		s[j] = struct{}{}
	}
}

func (s indexSet) lines(lines []string) []string {
	idx := make([]int, 0, len(s))
	for i := range s {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		out = append(out, lines[i])
	}
	return out
}

// SelectStepLines selects lines of command output for a command step.
// Matching is case-sensitive.
//
// Inline fragments, when configured, are returned alone. Otherwise the
// union of a BetweenStart..BetweenEnd span and LineContains matches (with
// context, or matching lines only when LineOnly is set) is returned in
// line order. LineNotContains removes lines from the result; used alone it
// selects every line that does not contain it.
func SelectStepLines(stdout string, sel domain.Selection) string {
	if stdout == "" {
		return ""
	}
	lines := SplitLines(stdout)
	notContains := sel.LineNotContains

	if sel.HasInline() {
		return strings.Join(inlineFragments(lines, sel.LineBetweenStart, sel.LineBetweenEnd,
			sel.LineAfterContains, sel.LineAfterChars), "\n")
	}

	selected := indexSet{}

	if sel.BetweenStart != "" && sel.BetweenEnd != "" {
		if from, to, ok := firstSpan(lines, sel.BetweenStart, sel.BetweenEnd); ok {
			selected.addRange(from, to+1)
		}
	}

	allowed := func(line string) bool {
		return notContains == "" || !strings.Contains(line, notContains)
	}

	if sel.LineContains != "" {
		for i, line := range lines {
			if !strings.Contains(line, sel.LineContains) || !allowed(line) {
				continue
			}
			if sel.LineOnly {
				selected[i] = struct{}{}
				continue
			}
			selected.addRange(max(0, i-sel.LineBefore), min(len(lines), i+sel.LineAfter+1))
		}
	}

	if len(selected) == 0 && notContains != "" && sel.LineContains == "" {
		for i, line := range lines {
			if !strings.Contains(line, notContains) {
				selected[i] = struct{}{}
			}
		}
	}

	if len(selected) == 0 {
		return ""
	}

	out := selected.lines(lines)
	if notContains != "" {
		kept := out[:0]
		for _, line := range out {
			if !strings.Contains(line, notContains) {
				kept = append(kept, line)
			}
		}
		out = kept
	}
	return strings.Join(out, "\n")
}

// SelectFailureLines selects lines of a failure message. It behaves like
// SelectStepLines without the LineOnly and LineNotContains options.
func SelectFailureLines(text string, sel domain.Selection) string {
	if text == "" {
		return ""
	}
	sel.LineOnly = false
	sel.LineNotContains = ""
	return SelectStepLines(text, sel)
}
