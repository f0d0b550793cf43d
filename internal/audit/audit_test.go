package audit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/rackbrain/internal/clock"
)

func ptr[T any](v T) *T { return &v }

var day1 = time.Date(2025, 12, 20, 10, 0, 0, 0, time.Local)

func TestProcessingLog_Record(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	clk := clock.NewManualClock(day1)
	l, err := OpenProcessingLog(dir, clk, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, l.Record(Entry{
		IssueKey:     "MFGS-1",
		RuleID:       "psu_fault",
		RuleName:     "PSU fault",
		Confidence:   ptr(1.0),
		Success:      true,
		ActionsTaken: map[string]any{"commented": true},
	}))
	require.NoError(t, l.NoMatch("MFGS-2", true))

	clk.Advance(24 * time.Hour)
	require.NoError(t, l.NoMatch("MFGS-3", false))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(filepath.Join(dir, "rackbrain_processed_2025-12-20.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var e Entry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &e))
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "2025-12-20T10:00:00.000000", e.Timestamp)
	assert.Equal(t, "psu_fault", e.RuleID)
	assert.Equal(t, true, e.ActionsTaken["commented"])

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &e))
	assert.Equal(t, ActionNoMatch, e.Action())
	assert.True(t, e.DryRun)

	_, err = os.Stat(filepath.Join(dir, "rackbrain_processed_2025-12-21.log"))
	require.NoError(t, err)
}

func TestDailySummary(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	clk := clock.NewManualClock(day1)
	l, err := OpenProcessingLog(dir, clk, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, l.Record(Entry{IssueKey: "A-1", RuleID: "r1", RuleName: "One", Confidence: ptr(1.0), Success: true}))
	require.NoError(t, l.Record(Entry{IssueKey: "A-2", RuleID: "r2", RuleName: "Two", Confidence: ptr(0.75), Success: true}))
	require.NoError(t, l.Record(Entry{IssueKey: "A-3", RuleID: "r2", RuleName: "Two", Confidence: ptr(1.0), Success: false, Error: "boom"}))
	require.NoError(t, l.NoMatch("A-4", false))
	require.NoError(t, l.Record(Entry{IssueKey: "A-5", RuleID: "r1", Success: true, DryRun: true}))
	require.NoError(t, l.Close())

	// Garbage lines are skipped.
	f, err := os.OpenFile(filepath.Join(dir, LogFileName("2025-12-20")), os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, _ = f.WriteString("not json\n\n")
	require.NoError(t, f.Close())

	s, err := DailySummary(dir, "", day1, 30)
	require.NoError(t, err)
	assert.Equal(t, "2025-12-20", s.Date)
	assert.Equal(t, 5, s.Automation.Total)
	assert.Equal(t, 3, s.Automation.Successful)
	assert.Equal(t, 1, s.Automation.Failed)
	assert.Equal(t, 1, s.Automation.NoMatch)
	assert.Equal(t, 1, s.Automation.DryRun)
	assert.InDelta(t, 60.0, s.Automation.Rate, 0.001)

	require.Len(t, s.TopRules, 2)
	assert.Equal(t, "r1", s.TopRules[0].RuleID, "first seen wins the tie")
	assert.Equal(t, 2, s.TopRules[0].MatchCount)
	assert.Equal(t, "r2", s.TopRules[1].RuleID)
	assert.InDelta(t, 0.88, s.TopRules[1].AvgConfidence, 0.001)

	other, err := DailySummary(dir, "2025-12-19", day1, 30)
	require.NoError(t, err)
	assert.Zero(t, other.Automation.Total)
	assert.Zero(t, other.Automation.Rate)
}

func TestMatchHistory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	clk := clock.NewManualClock(day1)
	h, err := NewMatchHistory(dir, false, clk)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, h.Record(ctx, "psu", "A-1", false))
	require.NoError(t, h.Record(ctx, "fan", "A-2", false))
	clk.Advance(24 * time.Hour)
	require.NoError(t, h.Record(ctx, "psu", "A-3", false))
	require.NoError(t, h.Record(ctx, "psu", "A-1", false))
	require.NoError(t, h.Record(ctx, "psu", "A-9", true))

	data, err := os.ReadFile(h.Path())
	require.NoError(t, err)
	want := strings.Join([]string{
		"# RackBrain rule match history",
		"# Sections are grouped by rule_id; entries are 'YYYY-MM-DD TICKETKEY'.",
		"",
		"=== psu ===",
		"2025-12-20 A-1",
		"2025-12-21 A-3",
		"",
		"=== fan ===",
		"2025-12-20 A-2",
	}, "\n") + "\n"
	assert.Equal(t, want, string(data))

	// Reopening keeps the content.
	_, err = NewMatchHistory(dir, true, clk)
	require.NoError(t, err)
	again, err := os.ReadFile(h.Path())
	require.NoError(t, err)
	assert.Equal(t, want, string(again))
}

func TestMatchHistory_ConcurrentWriters(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	h, err := NewMatchHistory(dir, false, clock.NewManualClock(day1))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "K-" + string(rune('a'+i))
			assert.NoError(t, h.Record(context.Background(), "rule", key, false))
		}(i)
	}
	wg.Wait()

	data, err := os.ReadFile(h.Path())
	require.NoError(t, err)
	assert.Equal(t, 20, strings.Count(string(data), "2025-12-20 K-"))
}

func TestIsEdited(t *testing.T) {
	t.Parallel()

	assert.True(t, IsEdited(map[string]any{"commented": true}))
	assert.False(t, IsEdited(map[string]any{"commented": false}))
	assert.False(t, IsEdited(map[string]any{"commented": "FAILED: x"}))
	assert.True(t, IsEdited(map[string]any{"transitioned_to": "In Progress"}))
	assert.True(t, IsEdited(map[string]any{"reassigned_to": "bob"}))
	assert.False(t, IsEdited(map[string]any{"assigned_to": ""}))
	assert.False(t, IsEdited(nil))
}

func TestEditedSince(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	clk := clock.NewManualClock(day1)
	l, err := OpenProcessingLog(dir, clk, zerolog.Nop())
	require.NoError(t, err)

	edited := map[string]any{"commented": true}
	require.NoError(t, l.Record(Entry{IssueKey: "A-1", Success: true, ActionsTaken: edited}))
	clk.Advance(time.Minute)
	require.NoError(t, l.Record(Entry{IssueKey: "A-2", Success: true, ActionsTaken: edited}))
	clk.Advance(time.Minute)
	require.NoError(t, l.Record(Entry{IssueKey: "A-1", Success: true, ActionsTaken: edited}))
	require.NoError(t, l.Record(Entry{IssueKey: "A-3", Success: true, DryRun: true, ActionsTaken: edited}))
	require.NoError(t, l.Record(Entry{IssueKey: "A-4", Success: false, ActionsTaken: edited}))
	require.NoError(t, l.NoMatch("A-5", false))
	require.NoError(t, l.Close())

	assert.Equal(t, []string{"A-2", "A-1"}, EditedSince(dir, day1, ""))
	assert.Equal(t, []string{"A-1"}, EditedSince(dir, day1, "2025-12-20T10:02:00.000000"))
	assert.Empty(t, EditedSince(dir, day1.AddDate(0, 0, 1), ""))
}

func TestAppendRecent(t *testing.T) {
	t.Parallel()

	keys := []string{"A", "B", "C"}
	assert.Equal(t, []string{"A", "C", "B"}, AppendRecent(keys, "B"))
	assert.Equal(t, []string{"A", "B", "C"}, keys)
	assert.Equal(t, []string{"A", "B", "C", "D"}, AppendRecent(keys, "D"))
	assert.Equal(t, keys, AppendRecent(keys, ""))
}

func TestEditedWindowStart(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := day1

	start, err := EditedWindowStart(dir, now)
	require.NoError(t, err)
	assert.Equal(t, "2025-12-20T00:00:00.000000", start)

	start, err = EditedWindowStart(dir, now.Add(11*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "2025-12-20T00:00:00.000000", start, "window kept while active")

	later := now.Add(11*time.Hour + 13*time.Hour)
	start, err = EditedWindowStart(dir, later)
	require.NoError(t, err)
	assert.Equal(t, later.Format(TimestampLayout), start, "window restarts after inactivity")
}
