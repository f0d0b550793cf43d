package poller

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mrz1836/rackbrain/internal/audit"
	"github.com/mrz1836/rackbrain/internal/clock"
	"github.com/mrz1836/rackbrain/internal/domain"
	rberrors "github.com/mrz1836/rackbrain/internal/errors"
	"github.com/mrz1836/rackbrain/internal/jira"
	"github.com/mrz1836/rackbrain/internal/processor"
)

type fakeSearch struct {
	mu      sync.Mutex
	results map[string][]string
	errs    map[string]error
	queries []string
}

func (f *fakeSearch) Search(_ context.Context, jql string, _ []string, _ int) ([]jira.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, jql)
	if err := f.errs[jql]; err != nil {
		return nil, err
	}
	var out []jira.Issue
	for _, k := range f.results[jql] {
		out = append(out, jira.Issue{Key: k})
	}
	return out, nil
}

type call struct {
	key   string
	rules []string
}

type fakeProcessor struct {
	mu      sync.Mutex
	calls   []call
	edited  map[string]bool
	fail    map[string]bool
	panics  map[string]bool
	delay   time.Duration
	running atomic.Int32
	peak    atomic.Int32
}

func (f *fakeProcessor) Process(_ context.Context, key string, opts processor.Options) (*processor.Outcome, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	ids := make([]string, 0, len(opts.Rules))
	for _, r := range opts.Rules {
		ids = append(ids, r.ID)
	}
	f.mu.Lock()
	f.calls = append(f.calls, call{key: key, rules: ids})
	f.mu.Unlock()

	switch {
	case f.panics[key]:
		panic("boom")
	case f.fail[key]:
		return nil, errors.New("jira down")
	}
	return &processor.Outcome{IssueKey: key, Edited: f.edited[key]}, nil
}

func (f *fakeProcessor) rulesFor(key string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]string
	for _, c := range f.calls {
		if c.key == key {
			out = append(out, c.rules)
		}
	}
	return out
}

var testRules = []domain.Rule{{ID: "a"}, {ID: "b"}, {ID: "c"}}

func TestBuildDefaultJQL(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		`project = MFGS AND (status = "Open" OR status = "In Progress") AND updated >= -24h ORDER BY updated DESC`,
		BuildDefaultJQL("MFGS", nil, 24))
	assert.Equal(t,
		`project = X AND (status = "Waiting") AND updated >= -1h ORDER BY updated DESC`,
		BuildDefaultJQL("X", []string{"Waiting"}, 1))
}

func TestPollAndProcess_Stats(t *testing.T) {
	defer goleak.VerifyNone(t)

	search := &fakeSearch{results: map[string][]string{"q": {"K-1", "K-2", "K-3", "K-4"}}}
	proc := &fakeProcessor{
		edited: map[string]bool{"K-1": true},
		fail:   map[string]bool{"K-2": true},
		panics: map[string]bool{"K-3": true},
	}
	p := New(search, proc, testRules, Config{JQL: "q", MaxWorkers: 2}, zerolog.Nop())

	stats, err := p.PollAndProcess(context.Background(), Query{Name: "primary", JQL: "q"}, testRules, nil, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, 4, stats.TotalFound)
	assert.Equal(t, 4, stats.Processed)
	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, []string{"K-1"}, stats.Edited)
	assert.ElementsMatch(t, []string{"K-1", "K-2", "K-3", "K-4"}, stats.ProcessedKeys)
}

func TestPollAndProcess_BoundedWorkers(t *testing.T) {
	defer goleak.VerifyNone(t)

	keys := []string{"K-1", "K-2", "K-3", "K-4", "K-5", "K-6", "K-7", "K-8"}
	search := &fakeSearch{results: map[string][]string{"q": keys}}
	proc := &fakeProcessor{delay: 20 * time.Millisecond}
	p := New(search, proc, testRules, Config{JQL: "q", MaxWorkers: 3}, zerolog.Nop())

	stats, err := p.PollAndProcess(context.Background(), Query{JQL: "q"}, testRules, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 8, stats.Succeeded)
	assert.LessOrEqual(t, proc.peak.Load(), int32(3))
}

func TestPollAndProcess_SearchError(t *testing.T) {
	defer goleak.VerifyNone(t)

	search := &fakeSearch{errs: map[string]error{"q": rberrors.ErrJiraAPI}}
	p := New(search, &fakeProcessor{}, testRules, Config{JQL: "q"}, zerolog.Nop())

	_, err := p.PollAndProcess(context.Background(), Query{Name: "primary", JQL: "q"}, testRules, nil, zerolog.Nop())
	require.ErrorIs(t, err, rberrors.ErrJiraAPI)
}

func TestRunCycle_ExtraQueries(t *testing.T) {
	defer goleak.VerifyNone(t)

	search := &fakeSearch{results: map[string][]string{
		"primary": {"K-1"},
		"extra":   {"K-1", "K-2"},
		"nojql":   {"K-9"},
	}}
	proc := &fakeProcessor{edited: map[string]bool{"K-2": true}}
	cfg := Config{
		JQL: "primary",
		ExtraQueries: []Query{
			{Name: "stage2", JQL: "extra", OnlyRuleIDs: []string{"b", "zzz"}},
			{Name: "off", JQL: "nojql", OnlyRuleIDs: []string{"a"}, Disabled: true},
			{Name: "no rules", JQL: "nojql"},
			{Name: "unknown only", JQL: "nojql", OnlyRuleIDs: []string{"zzz"}},
		},
	}
	p := New(search, proc, testRules, cfg, zerolog.Nop())

	stats, err := p.RunCycle(context.Background())
	require.NoError(t, err)

	_, perr := ulid.Parse(stats.CycleID)
	require.NoError(t, perr)
	assert.Equal(t, 2, stats.TotalFound)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, []string{"K-2"}, stats.Edited)

	assert.Equal(t, [][]string{{"a", "b", "c"}}, proc.rulesFor("K-1"))
	assert.Equal(t, [][]string{{"b"}}, proc.rulesFor("K-2"))
	assert.Empty(t, proc.rulesFor("K-9"))
	assert.Equal(t, []string{"primary", "extra"}, search.queries)
}

func TestRunCycle_PrimaryFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	search := &fakeSearch{errs: map[string]error{"primary": errors.New("timeout")}}
	p := New(search, &fakeProcessor{}, testRules, Config{JQL: "primary"}, zerolog.Nop())

	require.Error(t, p.Run(context.Background(), true))
}

func TestRun_Once(t *testing.T) {
	defer goleak.VerifyNone(t)

	search := &fakeSearch{results: map[string][]string{"q": {"K-1"}}}
	var reports []Report
	p := New(search, &fakeProcessor{}, testRules, Config{JQL: "q", AuditDir: t.TempDir(), StateDir: t.TempDir()},
		zerolog.Nop(), WithReporter(func(r Report) { reports = append(reports, r) }))

	require.NoError(t, p.Run(context.Background(), true))
	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].Cycle)
	assert.Nil(t, reports[0].EditedToday, "edited-today is not reported in once mode")
}

func TestRun_LoopsUntilCanceled(t *testing.T) {
	defer goleak.VerifyNone(t)

	auditDir := t.TempDir()
	day := time.Date(2025, 12, 20, 10, 0, 0, 0, time.Local)
	clk := clock.NewManualClock(day)

	line := `{"issue_key":"OLD-1","timestamp":"2025-12-20T09:00:00.000000","success":true,"dry_run":false,"actions_taken":{"commented":true}}`
	require.NoError(t, os.WriteFile(filepath.Join(auditDir, audit.LogFileName("2025-12-20")), []byte(line+"\n"), 0o600))

	search := &fakeSearch{results: map[string][]string{"q": {"K-1"}}}
	proc := &fakeProcessor{edited: map[string]bool{"K-1": true}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu      sync.Mutex
		reports []Report
	)
	p := New(search, proc, testRules,
		Config{JQL: "q", Interval: 10 * time.Millisecond, AuditDir: auditDir, StateDir: t.TempDir()},
		zerolog.Nop(),
		WithClock(clk),
		WithReporter(func(r Report) {
			mu.Lock()
			defer mu.Unlock()
			reports = append(reports, r)
			if len(reports) == 2 {
				cancel()
			}
		}))

	require.NoError(t, p.Run(ctx, false))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reports, 2)
	assert.Equal(t, 2, reports[1].Cycle)
	assert.Equal(t, []string{"OLD-1", "K-1"}, reports[0].EditedToday)
	assert.NotEqual(t, reports[0].Stats.CycleID, reports[1].Stats.CycleID)
}
