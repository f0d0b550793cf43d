package processor

import (
	"regexp"
	"strings"
)

var (
	repairReleasePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bplease\s+release\s+the\s+server\b`),
		regexp.MustCompile(`(?i)\brelease\s+from\s+repair\b`),
		regexp.MustCompile(`(?i)\bplease\s+release\s+from\s+repair\b`),
		regexp.MustCompile(`(?i)\brelease\b.*\brepair\b`),
		regexp.MustCompile(`(?i)\brelease\b.*\bretest\b`),
	}

	whitespaceRe  = regexp.MustCompile(`\s+`)
	testerEmailRe = regexp.MustCompile(`(?im)^[\s>*\-]*tester\s*email\s*:\s*(.+?)\s*$`)
	emailRe       = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)
)

// RepairReleaseRequested reports whether text asks for the server to be
// released from repair or for a retest.
func RepairReleaseRequested(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	norm := strings.ToLower(whitespaceRe.ReplaceAllString(text, " "))
	for _, re := range repairReleasePatterns {
		if re.MatchString(norm) {
			return true
		}
	}
	return false
}

// TesterEmail returns the lowercased address from a "Tester Email:" line
// in description, or "".
func TesterEmail(description string) string {
	m := testerEmailRe.FindStringSubmatch(description)
	if m == nil {
		return ""
	}
	email := emailRe.FindString(strings.TrimSpace(m[1]))
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// pickFinalAssignee chooses who gets the ticket after rackbrain is done.
// A repair-release request goes to the repair-release pool. Otherwise the
// tester named in the description gets it back when they are in the
// random pool, and anyone else in the random pool is picked at random,
// avoiding the bot account when possible.
func (p *Processor) pickFinalAssignee(forceText, description string) (assignee, reason string) {
	myself := p.cfg.MyselfAssignee

	if RepairReleaseRequested(forceText) {
		pool := p.cfg.RepairReleaseAssignees
		if len(pool) == 0 {
			return myself, "forced_repair_release_pool_empty_fallback_myself"
		}
		if others := without(pool, myself); len(others) > 0 {
			pool = others
		}
		return pool[p.pick(len(pool))], "forced_repair_release_random_pool"
	}

	if email := TesterEmail(description); email != "" {
		for _, a := range p.cfg.RandomAssignees {
			if normalizeEmail(a) == email {
				return a, "matched_tester_email_in_description"
			}
		}
	}

	pool := p.cfg.RandomAssignees
	if len(pool) == 0 {
		return myself, "fallback_no_random_pool"
	}
	if others := without(pool, myself); len(others) > 0 {
		return others[p.pick(len(others))], "random_pool_excluding_myself"
	}
	return pool[p.pick(len(pool))], "random_pool_including_myself"
}

func without(pool []string, user string) []string {
	want := normalizeEmail(user)
	out := make([]string, 0, len(pool))
	for _, a := range pool {
		if normalizeEmail(a) != want {
			out = append(out, a)
		}
	}
	return out
}
