package extract

import (
	"regexp"
	"strings"
	"time"
)

// JiraTimeLayout is the timestamp layout used in ticket key/value lines.
const JiraTimeLayout = "2006-01-02 15:04:05"

var (
	snRegex       = regexp.MustCompile(`\b([A-Z0-9]{10,20})\b`)
	archRegex     = regexp.MustCompile(`(?i)\b(EVE|HOP|HOPPER|WOODCHUCK)\b`)
	failedTCRegex = regexp.MustCompile(`(?i)Failed Testcase:\s*(.+)`)
	fieldLineRe   = regexp.MustCompile(`^([A-Za-z0-9 _]+):\s*(.*)$`)

	// Matches pexpect-style dumps such as args: ['/usr/bin/telnet', '10.8.33.168', '2012'].
	telnetArgsRe = regexp.MustCompile(`(?i)args:\s*\[\s*` +
		`[^\]]*telnet[^\]]*` +
		`,\s*(?:[rub]*['"])?(\d{1,3}(?:\.\d{1,3}){3})(?:['"])?` +
		`\s*,\s*(?:[rub]*['"])?(\d{2,5})(?:['"])?` +
		`(?:\s*,[^\]]*)?\s*\]`)
	telnetCmdRe = regexp.MustCompile(`(?i)\btelnet\s+(\d{1,3}(?:\.\d{1,3}){3})\s+(\d{2,5})\b`)

	listMarkerRe = regexp.MustCompile(`^[\*\-]\s+`)
	boldRe       = regexp.MustCompile(`\*\*(.*?)\*\*`)
	emphasisRe   = regexp.MustCompile(`\*(.*?)\*`)
	strongTagRe  = regexp.MustCompile(`(?i)</?strong>`)
	bTagRe       = regexp.MustCompile(`(?i)</?b>`)
	anyTagRe     = regexp.MustCompile(`<[^>]+>`)
)

// SN returns the first plausible server serial number in text.
func SN(text string) string {
	m := snRegex.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// Arch returns the architecture family named in a ticket summary.
// "HOP" is reported as "HOPPER".
func Arch(summary string) string {
	m := archRegex.FindStringSubmatch(summary)
	if m == nil {
		return ""
	}
	v := strings.ToUpper(m[1])
	if v == "HOP" {
		return "HOPPER"
	}
	return v
}

// FailedTestcase returns the value of the "Failed Testcase:" line.
func FailedTestcase(text string) string {
	m := failedTCRegex.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ErrorDetails returns the "Failure Message:" block of a ticket
// description. The block ends at a "Retry count" or "Problem class:" line,
// or at a blank line; the terminating line is kept.
func ErrorDetails(text string) string {
	var out []string
	inBlock := false
	for _, line := range SplitLines(text) {
		trimmed := strings.TrimSpace(line)
		if strings.Contains(line, "Failure Message:") {
			out = append(out, trimmed)
			inBlock = true
			continue
		}
		if !inBlock {
			continue
		}
		out = append(out, trimmed)
		if strings.HasPrefix(trimmed, "Retry count") || strings.HasPrefix(trimmed, "Problem class:") || trimmed == "" {
			break
		}
	}
	return strings.Join(out, "\n")
}

func stripJiraFormatting(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}
	line = listMarkerRe.ReplaceAllString(line, "")
	line = boldRe.ReplaceAllString(line, "$1")
	line = emphasisRe.ReplaceAllString(line, "$1")
	line = strongTagRe.ReplaceAllString(line, "")
	line = bTagRe.ReplaceAllString(line, "")
	line = anyTagRe.ReplaceAllString(line, "")
	return strings.TrimSpace(line)
}

// KVFields parses "Key: value" lines from a ticket description after
// removing Jira markup. Later keys overwrite earlier ones.
type KVFields struct {
	keys   []string
	values map[string]string
}

// ParseKVFields parses text into KVFields.
func ParseKVFields(text string) KVFields {
	kv := KVFields{values: map[string]string{}}
	for _, line := range SplitLines(text) {
		m := fieldLineRe.FindStringSubmatch(stripJiraFormatting(line))
		if m == nil {
			continue
		}
		key := strings.TrimSpace(m[1])
		if _, seen := kv.values[key]; !seen {
			kv.keys = append(kv.keys, key)
		}
		kv.values[key] = strings.TrimSpace(m[2])
	}
	return kv
}

// Get returns the value for an exact key.
func (kv KVFields) Get(key string) string {
	return kv.values[key]
}

// Loose returns the value of the first key (in first-seen order) whose
// lowercase form contains needle.
func (kv KVFields) Loose(needle string) string {
	needle = strings.ToLower(needle)
	for _, k := range kv.keys {
		if strings.Contains(strings.ToLower(strings.TrimSpace(k)), needle) {
			return kv.values[k]
		}
	}
	return ""
}

// Len returns the number of distinct keys.
func (kv KVFields) Len() int { return len(kv.keys) }

// ParseJiraTime parses a key/value timestamp. Zero time and false on failure.
func ParseJiraTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(JiraTimeLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// StripQuotes trims s and removes one pair of surrounding double quotes.
func StripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// TelnetCmd extracts a "telnet <ip> <port>" command from text, first from a
// pexpect argument dump, then from a literal telnet command.
func TelnetCmd(text string) string {
	if text == "" {
		return ""
	}
	if m := telnetArgsRe.FindStringSubmatch(text); m != nil {
		return "telnet " + m[1] + " " + m[2]
	}
	if m := telnetCmdRe.FindStringSubmatch(text); m != nil {
		return "telnet " + m[1] + " " + m[2]
	}
	return ""
}
