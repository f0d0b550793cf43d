package testview

import (
	"regexp"
	"strings"

	"github.com/mrz1836/rackbrain/internal/domain"
	"github.com/mrz1836/rackbrain/internal/extract"
)

// NoCommentTemplate is returned by SelectCaseTemplate when cases are
// configured but none matched. A blank template suppresses the comment.
const NoCommentTemplate = " "

// SelectCaseTemplate evaluates req's ordered cases against the TestView
// log on rec; the first match wins. ok is false when req has no cases.
//
// A case with its own select recomputes the snippet from the full log;
// when that case matches, its snippet replaces rec.TestviewLogSnippet.
func SelectCaseTemplate(rec *domain.Record, req *domain.TestviewRequest) (tmpl string, ok bool) {
	if req == nil || len(req.Cases) == 0 {
		return "", false
	}

	fullText := rec.TestviewLogText
	for i := range req.Cases {
		c := &req.Cases[i]

		snippet := rec.TestviewLogSnippet
		if c.Select != nil {
			snippet = ""
			if fullText != "" {
				snippet, _ = extract.SelectLogSegment(fullText, *c.Select)
			}
		}

		haystack := caseHaystack(c.When.Source, fullText, snippet)
		if haystack == "" {
			continue
		}
		if !whenMatches(c.When, haystack) {
			continue
		}

		if c.Select != nil {
			rec.TestviewLogSnippet = snippet
		}
		return c.CommentTemplate, true
	}
	return NoCommentTemplate, true
}

func caseHaystack(source, fullText, snippet string) string {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "log_text", "text", "full", "full_log":
		return fullText
	case "log_snippet", "snippet":
		return snippet
	default:
		if snippet != "" {
			return snippet
		}
		return fullText
	}
}

func whenMatches(w domain.TestviewWhen, haystack string) bool {
	switch {
	case w.HasContains:
		return containsFold(haystack, w.Contains)
	case w.HasRegex:
		return regexFold(haystack, w.Regex)
	}
	switch strings.ToLower(strings.TrimSpace(w.Type)) {
	case domain.PatternContains:
		return containsFold(haystack, w.Value)
	case domain.PatternRegex:
		return regexFold(haystack, w.Value)
	default:
		return false
	}
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func regexFold(haystack, pattern string) bool {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return false
	}
	return re.MatchString(haystack)
}
