package audit

import (
	"bufio"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	rberrors "github.com/mrz1836/rackbrain/internal/errors"
)

// TopRulesLimit caps Summary.TopRules.
const TopRulesLimit = 10

// Automation aggregates entry outcomes.
type Automation struct {
	// Rate is the percentage of entries that succeeded outside dry runs.
	Rate       float64 `json:"automation_rate"`
	Total      int     `json:"total_processed"`
	Successful int     `json:"successful"`
	Failed     int     `json:"failed"`
	NoMatch    int     `json:"no_match"`
	DryRun     int     `json:"dry_run"`
}

// RuleStat is the per-rule match count.
type RuleStat struct {
	RuleID        string  `json:"rule_id"`
	RuleName      string  `json:"rule_name"`
	MatchCount    int     `json:"match_count"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// Summary is the report for one day.
type Summary struct {
	Date              string     `json:"date"`
	Automation        Automation `json:"automation"`
	TopRules          []RuleStat `json:"top_rules"`
	TotalRulesMatched int        `json:"total_rules_matched"`
}

// LoadEntries reads every processing log in dir dated on or after since.
// Unreadable files and malformed lines are skipped.
func LoadEntries(dir string, since time.Time) ([]Entry, error) {
	files, err := filepath.Glob(filepath.Join(dir, logPrefix+"*"+logSuffix))
	if err != nil {
		return nil, rberrors.Wrap(err, "failed to list processing logs")
	}
	sort.Strings(files)

	cutoff := time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, time.Local)
	var entries []Entry
	for _, path := range files {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), logPrefix), logSuffix)
		day, err := time.ParseInLocation(DayLayout, name, time.Local)
		if err != nil || day.Before(cutoff) {
			continue
		}
		entries = append(entries, readEntries(path)...)
	}
	return entries, nil
}

func readEntries(path string) []Entry {
	f, err := os.Open(path) //nolint:gosec // path comes from a glob of the audit directory
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	var out []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e Entry
		if json.Unmarshal([]byte(line), &e) != nil {
			continue
		}
		out = append(out, e)
	}
	return out
}

// CalculateAutomation aggregates entries.
func CalculateAutomation(entries []Entry) Automation {
	a := Automation{Total: len(entries)}
	for i := range entries {
		e := &entries[i]
		if e.Success && !e.DryRun {
			a.Successful++
		}
		if !e.Success {
			a.Failed++
		}
		if e.Action() == ActionNoMatch {
			a.NoMatch++
		}
		if e.DryRun {
			a.DryRun++
		}
	}
	if a.Total > 0 {
		a.Rate = round2(float64(a.Successful) / float64(a.Total) * 100)
	}
	return a
}

// CalculateRuleStats counts matches per rule, most matched first. Ties
// keep first-seen order.
func CalculateRuleStats(entries []Entry) []RuleStat {
	type acc struct {
		name  string
		count int
		sum   float64
		n     int
	}
	var order []string
	byRule := map[string]*acc{}
	for i := range entries {
		e := &entries[i]
		if e.RuleID == "" {
			continue
		}
		a, ok := byRule[e.RuleID]
		if !ok {
			a = &acc{}
			byRule[e.RuleID] = a
			order = append(order, e.RuleID)
		}
		a.count++
		a.name = e.RuleName
		if e.Confidence != nil {
			a.sum += *e.Confidence
			a.n++
		}
	}

	stats := make([]RuleStat, 0, len(order))
	for _, id := range order {
		a := byRule[id]
		avg := 0.0
		if a.n > 0 {
			avg = a.sum / float64(a.n)
		}
		stats = append(stats, RuleStat{RuleID: id, RuleName: a.name, MatchCount: a.count, AvgConfidence: round2(avg)})
	}
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].MatchCount > stats[j].MatchCount })
	return stats
}

// DailySummary builds the report for date (YYYY-MM-DD) from the logs of
// the retention window ending at now. An empty date means today.
func DailySummary(dir, date string, now time.Time, retentionDays int) (Summary, error) {
	if date == "" {
		date = now.Format(DayLayout)
	}
	entries, err := LoadEntries(dir, now.AddDate(0, 0, -retentionDays))
	if err != nil {
		return Summary{}, err
	}

	var day []Entry
	for _, e := range entries {
		if strings.HasPrefix(e.Timestamp, date) {
			day = append(day, e)
		}
	}

	rules := CalculateRuleStats(day)
	top := rules
	if len(top) > TopRulesLimit {
		top = top[:TopRulesLimit]
	}
	return Summary{
		Date:              date,
		Automation:        CalculateAutomation(day),
		TopRules:          top,
		TotalRulesMatched: len(rules),
	}, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
