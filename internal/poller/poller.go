// Package poller searches Jira on an interval and processes every ticket
// found with a bounded pool of workers.
//
// Import rules:
//   - CAN import: internal/audit, internal/classify, internal/clock, internal/constants,
//     internal/ctxutil, internal/domain, internal/errors, internal/jira, internal/processor, std lib
//   - MUST NOT import: internal/cli, internal/config
package poller

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/rackbrain/internal/audit"
	"github.com/mrz1836/rackbrain/internal/classify"
	"github.com/mrz1836/rackbrain/internal/clock"
	"github.com/mrz1836/rackbrain/internal/constants"
	"github.com/mrz1836/rackbrain/internal/ctxutil"
	"github.com/mrz1836/rackbrain/internal/domain"
	rberrors "github.com/mrz1836/rackbrain/internal/errors"
	"github.com/mrz1836/rackbrain/internal/jira"
	"github.com/mrz1836/rackbrain/internal/processor"
)

// searchFields are the only fields a poll needs; each ticket is fetched
// in full by the processor.
var searchFields = []string{"key", "summary", "status"}

// Searcher runs JQL searches.
type Searcher interface {
	Search(ctx context.Context, jql string, fields []string, maxResults int) ([]jira.Issue, error)
}

// TicketProcessor processes one ticket.
type TicketProcessor interface {
	Process(ctx context.Context, key string, opts processor.Options) (*processor.Outcome, error)
}

// Query is an additional search restricted to a subset of rules.
type Query struct {
	Name        string
	JQL         string
	OnlyRuleIDs []string
	MaxResults  int
	Disabled    bool
}

// Config controls polling.
type Config struct {
	JQL          string
	Interval     time.Duration
	MaxWorkers   int
	MaxResults   int
	DryRun       bool
	SkipCommands bool
	ExtraQueries []Query

	// AuditDir and StateDir enable the edited-today report. Either may be
	// empty to disable it.
	AuditDir string
	StateDir string
}

// BuildDefaultJQL returns the search used when no JQL is configured.
func BuildDefaultJQL(projectKey string, statuses []string, lookbackHours int) string {
	if len(statuses) == 0 {
		statuses = []string{constants.StatusOpen, constants.StatusInProgress}
	}
	clauses := make([]string, len(statuses))
	for i, s := range statuses {
		clauses[i] = fmt.Sprintf("status = %q", s)
	}
	return fmt.Sprintf("project = %s AND (%s) AND updated >= -%dh ORDER BY updated DESC",
		projectKey, strings.Join(clauses, " OR "), lookbackHours)
}

// Stats summarizes one query or one whole cycle.
type Stats struct {
	CycleID       string   `json:"cycle_id,omitempty"`
	TotalFound    int      `json:"total_found"`
	Processed     int      `json:"processed"`
	Succeeded     int      `json:"succeeded"`
	Failed        int      `json:"failed"`
	Edited        []string `json:"edited"`
	FoundKeys     []string `json:"found_issue_keys"`
	ProcessedKeys []string `json:"processed_issue_keys"`
}

func (s *Stats) add(o Stats) {
	s.TotalFound += o.TotalFound
	s.Processed += o.Processed
	s.Succeeded += o.Succeeded
	s.Failed += o.Failed
	s.Edited = append(s.Edited, o.Edited...)
	s.FoundKeys = append(s.FoundKeys, o.FoundKeys...)
	s.ProcessedKeys = append(s.ProcessedKeys, o.ProcessedKeys...)
}

// Report is handed to the reporter after each cycle.
type Report struct {
	Cycle int
	Stats Stats

	// EditedToday lists tickets edited live since the edited-today window
	// started, most recent last. It is nil when the report is disabled.
	EditedToday []string
}

// Poller runs poll cycles.
type Poller struct {
	search   Searcher
	proc     TicketProcessor
	rules    []domain.Rule
	cfg      Config
	logger   zerolog.Logger
	clock    clock.Clock
	reporter func(Report)
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock sets the clock for the edited-today window.
func WithClock(c clock.Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// WithReporter sets a function called after every cycle.
func WithReporter(fn func(Report)) Option {
	return func(p *Poller) { p.reporter = fn }
}

// New returns a Poller processing tickets against rules.
func New(search Searcher, proc TicketProcessor, rules []domain.Rule, cfg Config, logger zerolog.Logger, opts ...Option) *Poller {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = constants.DefaultMaxWorkers
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = constants.DefaultMaxResults
	}
	if cfg.Interval <= 0 {
		cfg.Interval = constants.DefaultPollInterval
	}
	p := &Poller{
		search: search,
		proc:   proc,
		rules:  rules,
		cfg:    cfg,
		logger: logger,
		clock:  clock.RealClock{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until ctx is canceled, or once when once is set. A failed
// cycle is logged and retried on the next interval; in once mode its
// error is returned.
func (p *Poller) Run(ctx context.Context, once bool) error {
	p.logger.Info().
		Str("jql", p.cfg.JQL).
		Dur("interval", p.cfg.Interval).
		Int("max_workers", p.cfg.MaxWorkers).
		Int("max_results", p.cfg.MaxResults).
		Bool("dry_run", p.cfg.DryRun).
		Bool("once", once).
		Msg("polling started")

	for cycle := 1; ; cycle++ {
		stats, err := p.RunCycle(ctx)
		if err != nil {
			if once || ctx.Err() != nil {
				return err
			}
			p.logger.Error().Err(err).Int("cycle", cycle).Msg("poll cycle failed")
		} else {
			p.report(cycle, stats, once)
		}

		if once {
			return nil
		}
		p.logger.Info().Dur("sleep", p.cfg.Interval).Msg("waiting for next poll")
		if ctxutil.Sleep(ctx, p.cfg.Interval) != nil {
			p.logger.Info().Msg("polling stopped")
			return nil
		}
	}
}

func (p *Poller) report(cycle int, stats Stats, once bool) {
	p.logger.Info().
		Str("cycle_id", stats.CycleID).
		Int("cycle", cycle).
		Int("found", stats.TotalFound).
		Int("processed", stats.Processed).
		Int("succeeded", stats.Succeeded).
		Int("failed", stats.Failed).
		Int("edited", len(stats.Edited)).
		Msg("poll cycle complete")

	r := Report{Cycle: cycle, Stats: stats}
	if !once && p.cfg.AuditDir != "" && p.cfg.StateDir != "" {
		r.EditedToday = p.editedToday(stats.Edited)
	}
	if p.reporter != nil {
		p.reporter(r)
	}
}

// editedToday merges the processing log's edits since the window start
// with this cycle's edits.
func (p *Poller) editedToday(cycleEdited []string) []string {
	now := p.clock.Now()
	since, err := audit.EditedWindowStart(p.cfg.StateDir, now)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to update edited-today window")
	}
	keys := audit.EditedSince(p.cfg.AuditDir, now, since)
	for _, k := range cycleEdited {
		keys = audit.AppendRecent(keys, k)
	}
	if keys == nil {
		keys = []string{}
	}
	return keys
}

// RunCycle runs the primary query with every rule, then each enabled
// extra query with its rule subset. Tickets processed earlier in the
// cycle are skipped by later queries. Only a failed primary search is an
// error.
func (p *Poller) RunCycle(ctx context.Context) (Stats, error) {
	total := Stats{CycleID: ulid.Make().String()}
	log := p.logger.With().Str("cycle_id", total.CycleID).Logger()

	primary, err := p.PollAndProcess(ctx, Query{Name: "primary", JQL: p.cfg.JQL}, p.rules, nil, log)
	if err != nil {
		return total, err
	}
	total.add(primary)

	done := make(map[string]struct{}, len(primary.ProcessedKeys))
	for _, k := range primary.ProcessedKeys {
		done[k] = struct{}{}
	}

	byID := classify.RulesByID(p.rules)
	for i, q := range p.cfg.ExtraQueries {
		if q.Disabled {
			continue
		}
		if q.Name == "" {
			q.Name = fmt.Sprintf("extra_%d", i+1)
		}
		qlog := log.With().Str("query", q.Name).Logger()
		if strings.TrimSpace(q.JQL) == "" {
			qlog.Warn().Msg("skipping extra query without jql")
			continue
		}
		if len(q.OnlyRuleIDs) == 0 {
			qlog.Warn().Msg("skipping extra query without only_rule_ids")
			continue
		}

		subset := make([]domain.Rule, 0, len(q.OnlyRuleIDs))
		var missing []string
		for _, id := range q.OnlyRuleIDs {
			if r, ok := byID[id]; ok {
				subset = append(subset, *r)
			} else {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			qlog.Warn().Strs("rule_ids", missing).Msg("extra query names unknown rules")
		}
		if len(subset) == 0 {
			continue
		}

		stats, err := p.PollAndProcess(ctx, q, subset, done, qlog)
		if err != nil {
			qlog.Warn().Err(err).Msg("extra query failed")
			continue
		}
		total.add(stats)
		for _, k := range stats.ProcessedKeys {
			done[k] = struct{}{}
		}
	}
	return total, nil
}

// PollAndProcess searches with q and processes every ticket found, except
// those in skip, against rules.
func (p *Poller) PollAndProcess(ctx context.Context, q Query, rules []domain.Rule, skip map[string]struct{}, log zerolog.Logger) (Stats, error) {
	maxResults := q.MaxResults
	if maxResults <= 0 {
		maxResults = p.cfg.MaxResults
	}
	log.Info().Str("jql", q.JQL).Msg("searching for tickets")
	issues, err := p.search.Search(ctx, q.JQL, searchFields, maxResults)
	if err != nil {
		return Stats{}, rberrors.Wrapf(err, "search %s", q.Name)
	}

	var stats Stats
	keys := make([]string, 0, len(issues))
	for i := range issues {
		key := issues[i].Key
		stats.FoundKeys = append(stats.FoundKeys, key)
		if key == "" {
			continue
		}
		if _, ok := skip[key]; ok {
			continue
		}
		keys = append(keys, key)
	}
	stats.TotalFound = len(keys)
	log.Info().Int("found", len(keys)).Int("skipped", len(issues)-len(keys)).Msg("tickets found")

	opts := processor.Options{DryRun: p.cfg.DryRun, SkipCommands: p.cfg.SkipCommands, Rules: rules}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(p.cfg.MaxWorkers)
	for _, key := range keys {
		if ctxutil.Canceled(ctx) != nil {
			break
		}
		g.Go(func() error {
			out, err := p.processSafe(ctx, key, opts)

			mu.Lock()
			defer mu.Unlock()
			stats.Processed++
			stats.ProcessedKeys = append(stats.ProcessedKeys, key)
			if err != nil {
				stats.Failed++
				log.Warn().Err(err).Str("issue_key", key).Msg("ticket failed")
				return nil
			}
			stats.Succeeded++
			if out != nil && out.Edited {
				stats.Edited = append(stats.Edited, key)
			}
			log.Info().Str("issue_key", key).Str("action", out.Action()).Str("rule_id", out.RuleID).Msg("ticket processed")
			return nil
		})
	}
	_ = g.Wait() // per-ticket errors are counted in stats

	return stats, nil
}

// processSafe contains a ticket's panic so it cannot stop the cycle.
func (p *Poller) processSafe(ctx context.Context, key string, opts processor.Options) (out *processor.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Str("issue_key", key).Str("stack", string(debug.Stack())).Msg("panic while processing ticket")
			out, err = nil, fmt.Errorf("%w: panic: %v", rberrors.ErrTicketPanic, r)
		}
	}()
	out, err = p.proc.Process(ctx, key, opts)
	if err == nil && out == nil {
		out = &processor.Outcome{IssueKey: key}
	}
	return out, err
}
