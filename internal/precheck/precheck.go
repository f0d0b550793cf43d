// Package precheck recognizes pre-RLT check tickets and looks for the
// engineer's request to start the RLT in their text.
//
// Import rules:
//   - CAN import: internal/domain, std lib
//   - MUST NOT import: other internal packages
package precheck

import (
	"regexp"
	"strings"

	"github.com/mrz1836/rackbrain/internal/domain"
)

// PassComment is the comment that marks a precheck as already answered.
const PassComment = "Pass"

// Phrase sources.
const (
	SourceDescription = "description"
	SourceComments    = "comments"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// markers are the normalized summary markers of a precheck ticket.
var markers = []string{"pre rlt", "prerlt", "precheck", "pre check"}

// The target line is "please start the RLT without waiting for the TE's
// response", in any order, with nothing but the optional words mixed in.
var (
	required = map[string]struct{}{
		"please": {}, "start": {}, "rlt": {}, "without": {}, "wait": {}, "te": {}, "respond": {},
	}
	optional = map[string]struct{}{"the": {}, "for": {}}
	aliases  = map[string]string{
		"tes":        "te",
		"waiting":    "wait",
		"response":   "respond",
		"responding": "respond",
	}
)

// normalize lowercases s and collapses every run of non-alphanumerics to
// one space.
func normalize(s string) string {
	return strings.TrimSpace(nonAlnum.ReplaceAllString(strings.ToLower(s), " "))
}

// HasMarker reports whether summary names a precheck. Case and
// punctuation are ignored, so "Pre-RLT" and "pre rlt" both count.
func HasMarker(summary string) bool {
	ns := normalize(summary)
	if ns == "" {
		return false
	}
	for _, m := range markers {
		if strings.Contains(ns, m) {
			return true
		}
	}
	return false
}

// IsPass reports whether comment is exactly the Pass comment, ignoring
// case and surrounding space.
func IsPass(comment string) bool {
	return strings.EqualFold(strings.TrimSpace(comment), PassComment)
}

// tokens returns the canonical tokens of text. The possessive "TE's"
// normalizes to "te s"; the stray "s" is folded into the "te" before it.
func tokens(text string) []string {
	raw := strings.Fields(normalize(text))
	out := make([]string, 0, len(raw))
	for i, tok := range raw {
		if tok == "s" && i > 0 && raw[i-1] == "te" {
			continue
		}
		if canon, ok := aliases[tok]; ok {
			tok = canon
		}
		out = append(out, tok)
	}
	return out
}

// HasTargetLine reports whether text holds a contiguous run of words that
// contains every required word and nothing but required and optional
// words. Order inside the run does not matter.
func HasTargetLine(text string) bool {
	seen := make(map[string]struct{}, len(required))
	for _, tok := range tokens(text) {
		_, req := required[tok]
		_, opt := optional[tok]
		if !req && !opt {
			clear(seen)
			continue
		}
		if req {
			seen[tok] = struct{}{}
			if len(seen) == len(required) {
				return true
			}
		}
	}
	return false
}

// Evaluate runs the precheck against rec. The phrase is only searched when
// the summary carries a marker and the latest comment is not Pass; the
// description is searched before the joined comments.
func Evaluate(rec *domain.Record) *domain.Precheck {
	pc := &domain.Precheck{
		MarkerFound:         HasMarker(rec.Ticket.Summary),
		LatestCommentIsPass: IsPass(rec.JiraLatestCommentText),
	}
	if !pc.MarkerFound || pc.LatestCommentIsPass {
		return pc
	}

	switch {
	case HasTargetLine(rec.Ticket.Description):
		pc.PhraseFound, pc.PhraseSource = true, SourceDescription
	case HasTargetLine(rec.JiraCommentsText):
		pc.PhraseFound, pc.PhraseSource = true, SourceComments
	}
	return pc
}
