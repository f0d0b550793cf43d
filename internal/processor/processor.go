// Package processor runs the per-ticket workflow: fetch a ticket, enrich
// it, gate it on timers and failure counts, classify it, run the matched
// rule's command steps and apply the result to Jira.
//
// Import rules:
//   - CAN import: internal/audit, internal/cinder, internal/classify, internal/clock, internal/constants,
//     internal/domain, internal/errors, internal/jira, internal/precheck, internal/steps,
//     internal/testview, std lib
//   - MUST NOT import: internal/cli, internal/config, internal/poller
package processor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/rackbrain/internal/audit"
	"github.com/mrz1836/rackbrain/internal/cinder"
	"github.com/mrz1836/rackbrain/internal/classify"
	"github.com/mrz1836/rackbrain/internal/clock"
	"github.com/mrz1836/rackbrain/internal/constants"
	"github.com/mrz1836/rackbrain/internal/domain"
	rberrors "github.com/mrz1836/rackbrain/internal/errors"
	"github.com/mrz1836/rackbrain/internal/jira"
	"github.com/mrz1836/rackbrain/internal/precheck"
	"github.com/mrz1836/rackbrain/internal/steps"
)

// Jira is the issue tracker surface the workflow uses.
type Jira interface {
	GetIssue(ctx context.Context, key string, fields []string) (*jira.Issue, error)
	GetComments(ctx context.Context, key string, startAt, maxResults int) (*jira.CommentPage, error)
	AddComment(ctx context.Context, key, body string) error
	Transitions(ctx context.Context, key string) ([]jira.Transition, error)
	DoTransition(ctx context.Context, key, id, comment string) error
	Assign(ctx context.Context, key, user string) error
	CreateIssueLink(ctx context.Context, linkType, inward, outward string) error
}

// Timers is the timer/suppression store.
type Timers interface {
	Start(ctx context.Context, issueKey, ruleID string, d time.Duration, rearmKey string) (domain.Timer, error)
	ActiveTimer(ctx context.Context, issueKey string) (*domain.Timer, error)
	IsRuleSuppressed(ctx context.Context, issueKey, ruleID, rearmKey string) (bool, error)
	CleanupExpired(ctx context.Context, issueKey, rearmKey string) error
	ListExpiredRuleIDs(ctx context.Context, issueKey, rearmKey string) ([]string, error)
}

// Enricher builds the enriched record for a ticket.
type Enricher interface {
	Build(ctx context.Context, ticket domain.Ticket) *domain.Record
}

// StepRunner executes a rule action's command steps.
type StepRunner interface {
	Execute(ctx context.Context, rec *domain.Record, action *domain.Action, opts steps.Options) (steps.Result, error)
}

// Testview fills TestView log fields and starts SLT runs.
type Testview interface {
	PopulateLog(ctx context.Context, rec *domain.Record, req *domain.TestviewRequest)
	StartSLT(ctx context.Context, rec *domain.Record, operation string, validate, dryRun bool)
}

// Renderer builds comment bodies.
type Renderer interface {
	Render(m *domain.Match, rec *domain.Record, override string) (string, error)
}

// CinderReporter builds the cinder verification report for a server.
type CinderReporter interface {
	Report(ctx context.Context, sn string) (string, error)
}

// Auditor writes the processing log.
type Auditor interface {
	Record(e audit.Entry) error
	NoMatch(issueKey string, dryRun bool) error
}

// MatchRecorder keeps the per-rule match history.
type MatchRecorder interface {
	Record(ctx context.Context, ruleID, issueKey string, dryRun bool) error
}

// Config holds the processing policy.
type Config struct {
	MinConfidence        float64
	MaxSLTAttempts       int
	SameFailureThreshold int

	// RequiredCombinedTextContains, when set, must appear in the ticket
	// summary or description (case-insensitive) for it to be processed.
	RequiredCombinedTextContains string

	AllowedStatuses []string
	TransitionTo    string

	MyselfAssignee         string
	RandomAssignees        []string
	RepairReleaseAssignees []string
}

// DefaultConfig returns the default processing policy.
func DefaultConfig() Config {
	return Config{
		MinConfidence:        constants.DefaultMinConfidence,
		MaxSLTAttempts:       constants.DefaultMaxSLTAttempts,
		SameFailureThreshold: constants.DefaultSameFailureThreshold,
		AllowedStatuses:      []string{constants.StatusOpen, constants.StatusInProgress},
		TransitionTo:         constants.StatusInProgress,
	}
}

// Deps are the collaborators of a Processor. Testview, Cinder, Audit and
// Matches may be nil.
type Deps struct {
	Jira     Jira
	Timers   Timers
	Enricher Enricher
	Steps    StepRunner
	Renderer Renderer
	Testview Testview
	Cinder   CinderReporter
	Audit    Auditor
	Matches  MatchRecorder
}

// Options controls one Process call.
type Options struct {
	DryRun       bool
	SkipCommands bool
	Rules        []domain.Rule
}

// Outcome is the result of processing one ticket.
type Outcome struct {
	IssueKey   string   `json:"issue_key"`
	Matched    bool     `json:"match"`
	RuleID     string   `json:"rule_id,omitempty"`
	RuleName   string   `json:"rule_name,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`

	// Edited is true when the ticket was changed in Jira.
	Edited bool `json:"edited"`
	DryRun bool `json:"dry_run"`

	// Comment is the rendered comment body, set once a rule matched.
	Comment      string         `json:"comment,omitempty"`
	TimerSeconds *int           `json:"timer_seconds,omitempty"`
	ActionsTaken map[string]any `json:"actions_taken"`
}

// Action returns actions_taken["action"].
func (o *Outcome) Action() string {
	s, _ := o.ActionsTaken[audit.ActionKey].(string)
	return s
}

// Processor runs the per-ticket workflow. It is safe for concurrent use
// when its collaborators are.
type Processor struct {
	deps   Deps
	cfg    Config
	logger zerolog.Logger
	clock  clock.Clock
	pick   func(n int) int
}

// Option configures a Processor.
type Option func(*Processor)

// WithClock sets the clock used for timer bookkeeping.
func WithClock(c clock.Clock) Option {
	return func(p *Processor) { p.clock = c }
}

// WithPicker sets the function choosing an index in [0, n) from an
// assignee pool. It must be safe for concurrent use.
func WithPicker(pick func(n int) int) Option {
	return func(p *Processor) { p.pick = pick }
}

// New returns a Processor. Jira, Timers, Enricher, Steps and Renderer are
// required.
func New(deps Deps, cfg Config, logger zerolog.Logger, opts ...Option) (*Processor, error) {
	switch {
	case deps.Jira == nil:
		return nil, fmt.Errorf("%w: jira client", rberrors.ErrEmptyValue)
	case deps.Timers == nil:
		return nil, fmt.Errorf("%w: timer store", rberrors.ErrEmptyValue)
	case deps.Enricher == nil:
		return nil, fmt.Errorf("%w: enricher", rberrors.ErrEmptyValue)
	case deps.Steps == nil:
		return nil, fmt.Errorf("%w: step runner", rberrors.ErrEmptyValue)
	case deps.Renderer == nil:
		return nil, fmt.Errorf("%w: renderer", rberrors.ErrEmptyValue)
	}
	if len(cfg.AllowedStatuses) == 0 {
		cfg.AllowedStatuses = DefaultConfig().AllowedStatuses
	}
	if strings.TrimSpace(cfg.TransitionTo) == "" {
		cfg.TransitionTo = constants.StatusInProgress
	}
	cfg.MyselfAssignee = strings.TrimSpace(cfg.MyselfAssignee)

	p := &Processor{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		clock:  clock.RealClock{},
		pick:   rand.IntN,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Process runs the workflow for the ticket key. Skips and no-matches are
// normal outcomes; the error is non-nil only when the ticket could not be
// processed at all. Every outcome, failures included, is written to the
// audit log.
func (p *Processor) Process(ctx context.Context, key string, opts Options) (*Outcome, error) {
	log := p.logger.With().Str("issue_key", key).Bool("dry_run", opts.DryRun).Logger()

	out, err := p.process(ctx, key, opts, log)
	if err != nil {
		log.Error().Err(err).Msg("ticket processing failed")
		p.audit(log, audit.Entry{IssueKey: key, Success: false, Error: err.Error(), DryRun: opts.DryRun})
		return nil, err
	}
	return out, nil
}

func (p *Processor) process(ctx context.Context, key string, opts Options, log zerolog.Logger) (*Outcome, error) {
	issue, err := p.fetch(ctx, key, log)
	if err != nil {
		return nil, err
	}
	ticket := issue.ToTicket()

	// Precheck and cinder tickets are filed by hand and lack the marker.
	isPrecheck := precheck.HasMarker(ticket.Summary)
	bypassMarker := isPrecheck || cinder.IsTicket(ticket)

	if marker := strings.TrimSpace(p.cfg.RequiredCombinedTextContains); marker != "" && !bypassMarker {
		combined := ticket.Summary + "\n\n" + ticket.Description
		if !strings.Contains(strings.ToLower(combined), strings.ToLower(marker)) {
			log.Info().Str("marker", marker).Msg("required marker text missing, skipping")
			return p.skip(log, key, opts.DryRun, map[string]any{
				audit.ActionKey:                    "skipped_missing_required_combined_text",
				"required_combined_text_contains": marker,
			}), nil
		}
	}

	if !slices.Contains(p.cfg.AllowedStatuses, ticket.Status) {
		log.Info().Str("status", ticket.Status).Msg("status not processable, skipping")
		p.audit(log, audit.Entry{
			IssueKey: key,
			Success:  false,
			Error:    fmt.Sprintf("Status '%s' not in allowed statuses", ticket.Status),
			DryRun:   opts.DryRun,
		})
		return &Outcome{
			IssueKey:     key,
			DryRun:       opts.DryRun,
			ActionsTaken: map[string]any{audit.ActionKey: "skipped_unprocessable_status", "status": ticket.Status},
		}, nil
	}

	rec := p.deps.Enricher.Build(ctx, ticket)

	if isPrecheck && strings.TrimSpace(ticket.Status) == constants.StatusOpen {
		rec.Precheck = precheck.Evaluate(rec)
		if rec.Precheck.LatestCommentIsPass {
			log.Info().Msg("latest comment is already Pass, skipping precheck")
			return p.skip(log, key, opts.DryRun, map[string]any{audit.ActionKey: "skipped_precheck_already_pass"}), nil
		}
		log.Debug().Bool("phrase_found", rec.Precheck.PhraseFound).Str("phrase_source", rec.Precheck.PhraseSource).Msg("precheck evaluated")
	}

	eligible, skipped, err := p.eligibleRules(ctx, rec, opts.Rules, log)
	if err != nil {
		return nil, err
	}
	if skipped != nil {
		return p.skip(log, key, opts.DryRun, skipped), nil
	}

	match := classify.Classify(rec, eligible, p.cfg.MinConfidence)
	if match == nil {
		log.Info().Int("eligible_rules", len(eligible)).Msg("no matching rule")
		if p.deps.Audit != nil {
			if aerr := p.deps.Audit.NoMatch(key, opts.DryRun); aerr != nil {
				log.Warn().Err(aerr).Msg("failed to write processing log")
			}
		}
		return &Outcome{IssueKey: key, DryRun: opts.DryRun, ActionsTaken: map[string]any{}}, nil
	}

	log = log.With().Str("rule_id", match.Rule.ID).Logger()
	log.Info().Str("rule_name", match.Rule.Name).Float64("confidence", match.Confidence).Msg("matched rule")
	if p.deps.Matches != nil {
		if merr := p.deps.Matches.Record(ctx, match.Rule.ID, key, opts.DryRun); merr != nil {
			log.Warn().Err(merr).Msg("failed to record rule match")
		}
	}

	if match.Rule.ID == cinder.RuleID {
		if out := p.cinderReport(ctx, log, match, rec, opts.DryRun); out != nil {
			return out, nil
		}
	}

	w := &workflow{
		p:      p,
		log:    log,
		key:    key,
		issue:  issue,
		ticket: ticket,
		rec:    rec,
		match:  match,
		action: &match.Rule.Action,
		dryRun: opts.DryRun,
	}
	w.prepare(ctx, opts.SkipCommands)
	if opts.DryRun {
		return w.finishDryRun(), nil
	}
	return w.apply(ctx)
}

// fetch loads the issue. Jira may truncate the embedded comments; the
// newest comment is fetched separately and appended when missing.
func (p *Processor) fetch(ctx context.Context, key string, log zerolog.Logger) (*jira.Issue, error) {
	issue, err := p.deps.Jira.GetIssue(ctx, key, jira.IssueFields)
	if err != nil {
		return nil, rberrors.Wrapf(err, "fetch issue %s", key)
	}

	page := issue.Fields.Comment
	if !page.HasMore() {
		return issue, nil
	}
	last, err := p.deps.Jira.GetComments(ctx, key, max(page.Total-1, 0), 1)
	if err != nil {
		log.Warn().Err(err).Msg("failed to fetch latest comment")
		return issue, nil
	}
	if last == nil || len(last.Comments) == 0 {
		return issue, nil
	}
	newest := last.Comments[len(last.Comments)-1]
	if newest.ID == "" || !page.Contains(newest.ID) {
		page.Comments = append(page.Comments, newest)
	}
	return issue, nil
}

// eligibleRules applies the timer gates and the same-failure and
// high-attempt gates. A non-nil skipped map means the ticket is skipped
// with those actions.
func (p *Processor) eligibleRules(ctx context.Context, rec *domain.Record, rules []domain.Rule, log zerolog.Logger) ([]domain.Rule, map[string]any, error) {
	key := rec.Ticket.Key
	rearm := domain.BuildRearmKey(rec.Ticket.Status, rec.Ticket.Assignee)

	if err := p.deps.Timers.CleanupExpired(ctx, key, rearm); err != nil {
		return nil, nil, err
	}
	active, err := p.deps.Timers.ActiveTimer(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	if active != nil {
		remaining := int(active.Remaining(p.clock.Now()) / time.Second)
		log.Info().Str("timer_rule_id", active.RuleID).Int("remaining_seconds", remaining).Msg("timer active, skipping")
		return nil, map[string]any{
			audit.ActionKey:           "skipped_timer_active",
			"timer_rule_id":           active.RuleID,
			"timer_remaining_seconds": remaining,
		}, nil
	}

	expired, err := p.deps.Timers.ListExpiredRuleIDs(ctx, key, rearm)
	if err != nil {
		log.Warn().Err(err).Msg("failed to list expired timers")
		expired = nil
	}
	if expired == nil {
		expired = []string{}
	}
	rec.TimerExpiredFor = expired

	eligible := make([]domain.Rule, 0, len(rules))
	for i := range rules {
		suppressed, err := p.deps.Timers.IsRuleSuppressed(ctx, key, rules[i].ID, rearm)
		if err != nil {
			return nil, nil, err
		}
		if !suppressed {
			eligible = append(eligible, rules[i])
		}
	}

	if same := rec.SameFailureCount(); same >= p.cfg.SameFailureThreshold {
		eligible = classify.SelectRules(eligible, func(r *domain.Rule) bool { return r.AllowOnSameFailure })
		if len(eligible) == 0 {
			log.Info().Int("db_same_failure_count", same).Msg("repeated failure and no override rule, skipping")
			return nil, map[string]any{
				audit.ActionKey:         "skipped_same_failure",
				"db_same_failure_count": same,
			}, nil
		}
		log.Info().Int("db_same_failure_count", same).Int("rules", len(eligible)).Msg("restricting to same-failure override rules")
	}

	if attempts, ok := rec.SLTAttempts(); ok && attempts > p.cfg.MaxSLTAttempts {
		eligible = classify.SelectRules(eligible, func(r *domain.Rule) bool { return r.AllowHighAttemptCount })
		if len(eligible) == 0 {
			log.Info().Int("jira_slt_attempts", attempts).Int("max_slt_attempts", p.cfg.MaxSLTAttempts).
				Msg("too many SLT attempts and no override rule, skipping")
			return nil, map[string]any{
				audit.ActionKey:     "skipped_high_slt_attempts",
				"jira_slt_attempts": attempts,
				"max_slt_attempts":  p.cfg.MaxSLTAttempts,
			}, nil
		}
		log.Info().Int("jira_slt_attempts", attempts).Int("rules", len(eligible)).Msg("restricting to high-attempt override rules")
	}

	return eligible, nil, nil
}

// cinderReport builds the verification report into rec. On failure it
// returns the failed outcome, already audited; the ticket is left as is.
func (p *Processor) cinderReport(ctx context.Context, log zerolog.Logger, match *domain.Match, rec *domain.Record, dryRun bool) *Outcome {
	actions := map[string]any{audit.ActionKey: "cinder_report_failed"}
	var err error
	switch {
	case strings.TrimSpace(rec.SN) == "":
		actions["reason"] = "missing_sn"
		err = fmt.Errorf("%w: missing SN for cinder verification ticket", rberrors.ErrCinderReport)
	case p.deps.Cinder == nil:
		err = fmt.Errorf("%w: cinder verification not configured", rberrors.ErrCinderReport)
	default:
		rec.CinderReport, err = p.deps.Cinder.Report(ctx, rec.SN)
		if err == nil {
			return nil
		}
	}

	log.Warn().Err(err).Msg("cinder report failed")
	conf := match.Confidence
	p.audit(log, audit.Entry{
		IssueKey:     rec.Ticket.Key,
		RuleID:       match.Rule.ID,
		RuleName:     match.Rule.Name,
		Confidence:   &conf,
		Success:      false,
		Error:        err.Error(),
		DryRun:       dryRun,
		ActionsTaken: actions,
	})
	return &Outcome{
		IssueKey:     rec.Ticket.Key,
		Matched:      true,
		RuleID:       match.Rule.ID,
		RuleName:     match.Rule.Name,
		Confidence:   &conf,
		DryRun:       dryRun,
		ActionsTaken: actions,
	}
}

// skip records a successful no-op outcome.
func (p *Processor) skip(log zerolog.Logger, key string, dryRun bool, actions map[string]any) *Outcome {
	p.audit(log, audit.Entry{IssueKey: key, Success: true, DryRun: dryRun, ActionsTaken: actions})
	return &Outcome{IssueKey: key, DryRun: dryRun, ActionsTaken: actions}
}

func (p *Processor) audit(log zerolog.Logger, e audit.Entry) {
	if p.deps.Audit == nil {
		return
	}
	if err := p.deps.Audit.Record(e); err != nil {
		log.Warn().Err(err).Msg("failed to write processing log")
	}
}
