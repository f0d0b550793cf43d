package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/rackbrain/internal/audit"
	"github.com/mrz1836/rackbrain/internal/constants"
	"github.com/mrz1836/rackbrain/internal/domain"
	rberrors "github.com/mrz1836/rackbrain/internal/errors"
	"github.com/mrz1836/rackbrain/internal/jira"
	"github.com/mrz1836/rackbrain/internal/steps"
	"github.com/mrz1836/rackbrain/internal/testview"
)

// Close transition names tried first, in order.
var preferredCloseNames = []string{"Closed", "Close", "Resolve", "Resolved", "Done", "Complete", "Completed"}

// closeHints mark a transition name as close-like.
var closeHints = []string{"close", "resolve", "done", "complete"}

const maxCloseErrors = 5

// workflow is the state of one matched ticket.
type workflow struct {
	p      *Processor
	log    zerolog.Logger
	key    string
	issue  *jira.Issue
	ticket domain.Ticket
	rec    *domain.Record
	match  *domain.Match
	action *domain.Action
	dryRun bool

	comment      string
	timerSeconds *int
	actions      map[string]any

	// Effective ticket state after the Jira updates, for the timer's
	// rearm key.
	status   string
	assignee string
}

// prepare runs the command steps, the SLT start and the TestView lookups,
// then renders the comment.
func (w *workflow) prepare(ctx context.Context, skipCommands bool) {
	res, err := w.p.deps.Steps.Execute(ctx, w.rec, w.action, steps.Options{Skip: skipCommands})
	if err != nil {
		w.log.Warn().Err(err).Msg("command steps aborted")
	}

	w.startSLT(ctx, res.TestviewStart)

	override := ""
	if res.TemplateOverride != nil {
		override = *res.TemplateOverride
	}
	if tv := w.p.deps.Testview; tv != nil && w.action.Testview != nil {
		tv.PopulateLog(ctx, w.rec, w.action.Testview)
	}
	if tmpl, ok := testview.SelectCaseTemplate(w.rec, w.action.Testview); ok {
		override = tmpl
	}

	body, rerr := w.p.deps.Renderer.Render(w.match, w.rec, override)
	if rerr != nil {
		w.log.Warn().Err(rerr).Msg("comment template failed, using fallback")
	}
	w.comment = body

	w.timerSeconds = res.TimerSeconds
	if w.timerSeconds == nil {
		w.timerSeconds = w.action.TimerAfterSeconds
	}
}

// startSLT starts TestView work requested by a step, or else by the rule
// action itself.
func (w *workflow) startSLT(ctx context.Context, req *steps.StartRequest) {
	operation, validate := "", false
	switch {
	case req != nil:
		operation, validate = req.Operation, req.UseValidate
	case w.action.StartSLT:
		operation, validate = w.action.SLTOperation, w.action.SLTUseValidate
	default:
		return
	}
	if operation == "" {
		operation = constants.SLTOperation
	}
	if w.p.deps.Testview == nil {
		w.log.Warn().Str("operation", operation).Msg("testview not configured, cannot start operation")
		return
	}
	w.p.deps.Testview.StartSLT(ctx, w.rec, operation, validate, w.dryRun)
}

func (w *workflow) outcome(edited bool) *Outcome {
	conf := w.match.Confidence
	return &Outcome{
		IssueKey:     w.key,
		Matched:      true,
		RuleID:       w.match.Rule.ID,
		RuleName:     w.match.Rule.Name,
		Confidence:   &conf,
		Edited:       edited,
		DryRun:       w.dryRun,
		Comment:      w.comment,
		TimerSeconds: w.timerSeconds,
		ActionsTaken: w.actions,
	}
}

func (w *workflow) record(success bool) {
	conf := w.match.Confidence
	w.p.audit(w.log, audit.Entry{
		IssueKey:     w.key,
		RuleID:       w.match.Rule.ID,
		RuleName:     w.match.Rule.Name,
		Confidence:   &conf,
		Success:      success,
		DryRun:       w.dryRun,
		ActionsTaken: w.actions,
	})
}

func (w *workflow) finishDryRun() *Outcome {
	ev := w.log.Info().Int("comment_length", len(w.comment))
	if w.timerSeconds != nil {
		ev = ev.Int("timer_after_seconds", *w.timerSeconds)
	}
	ev.Msg("dry run, not updating jira")

	w.actions = map[string]any{audit.ActionKey: "dry_run", "comment_preview": "generated"}
	w.record(true)
	return w.outcome(false)
}

// apply updates Jira: assign, transition, optional link, comment,
// optional close, final reassign and timer start.
func (w *workflow) apply(ctx context.Context) (*Outcome, error) {
	w.actions = map[string]any{}
	w.status = w.ticket.Status
	w.assignee = w.ticket.Assignee

	silent := w.timerSeconds != nil && *w.timerSeconds > 0 && strings.TrimSpace(w.comment) == ""
	if silent {
		w.log.Info().Int("timer_seconds", *w.timerSeconds).Msg("silent wait, no comment and no reassign")
	}
	testerEmail := TesterEmail(w.ticket.Description)

	w.assign(ctx)
	w.transition(ctx)
	linked := w.link(ctx)

	switch {
	case !linked:
		w.actions["commented"] = false
	case silent:
		w.actions["commented"] = false
	case strings.TrimSpace(w.comment) == "":
		w.log.Warn().Msg("empty comment body, not commenting")
		w.actions["commented"] = false
	default:
		if err := w.p.deps.Jira.AddComment(ctx, w.key, w.comment); err != nil {
			w.log.Warn().Err(err).Msg("failed to post comment")
			w.actions["commented"] = false
			w.actions["comment_error"] = err.Error()
		} else {
			w.log.Info().Msg("comment posted")
			w.actions["commented"] = true
		}
	}

	if w.action.Close && w.closeTicket(ctx) {
		if err := w.startTimer(ctx); err != nil {
			return nil, err
		}
		w.record(true)
		return w.outcome(true), nil
	}

	switch {
	case silent:
		w.actions["reassigned_to"] = nil
		w.actions["reassigned_to_reason"] = "skipped_reassign_silent_timer_wait"
	case !linked:
		w.actions["reassigned_to"] = nil
		w.actions["reassigned_to_reason"] = "skipped_reassign_link_failed"
	default:
		w.reassign(ctx, testerEmail)
	}

	if err := w.startTimer(ctx); err != nil {
		return nil, err
	}

	w.record(true)
	return w.outcome(audit.IsEdited(w.actions) || truthy(w.actions["closed"])), nil
}

// assign takes ownership of the ticket: the rule's assign_to when it
// resolves to a user, otherwise the configured bot account.
func (w *workflow) assign(ctx context.Context) {
	target := w.p.cfg.MyselfAssignee
	if w.action.AssignTo != nil {
		if user := strings.TrimSpace(w.resolve(*w.action.AssignTo)); user != "" {
			target = user
		}
	}
	if target == "" {
		return
	}
	if err := w.p.deps.Jira.Assign(ctx, w.key, target); err != nil {
		w.log.Warn().Err(err).Str("assignee", target).Msg("failed to assign")
		w.actions["assigned_to"] = failed(err)
		return
	}
	w.log.Info().Str("assignee", target).Msg("assigned")
	w.actions["assigned_to"] = target
	w.assignee = target
}

// transition moves the ticket to the rule's target or the configured
// default. Any other target goes through In Progress first.
func (w *workflow) transition(ctx context.Context) {
	target := strings.TrimSpace(w.action.TransitionTo)
	if target == "" {
		target = w.p.cfg.TransitionTo
	}

	prereq := ""
	if !strings.EqualFold(target, constants.StatusInProgress) && !strings.EqualFold(w.status, constants.StatusInProgress) {
		name, err := w.tryTransition(ctx, constants.StatusInProgress, "")
		switch {
		case err == nil:
			prereq = name
			w.status = name
		case !errors.Is(err, rberrors.ErrTransitionNotFound):
			w.log.Warn().Err(err).Msg("in progress transition failed")
		}
	}

	name, err := w.tryTransition(ctx, target, "")
	switch {
	case errors.Is(err, rberrors.ErrTransitionNotFound):
		w.log.Warn().Str("transition", target).Msg("transition not available")
		w.actions["transitioned_to"] = "NOT_FOUND: " + target
	case err != nil:
		w.log.Warn().Err(err).Str("transition", target).Msg("transition failed")
		w.actions["transitioned_to"] = failed(err)
	default:
		w.log.Info().Str("transition", name).Msg("transitioned")
		w.status = name
		if prereq != "" {
			w.actions["transitioned_to"] = prereq + " -> " + name
		} else {
			w.actions["transitioned_to"] = name
		}
	}
}

func (w *workflow) tryTransition(ctx context.Context, name, comment string) (string, error) {
	ts, err := w.p.deps.Jira.Transitions(ctx, w.key)
	if err != nil {
		return "", err
	}
	t := jira.FindTransition(ts, name)
	if t == nil {
		return "", fmt.Errorf("%w: %s", rberrors.ErrTransitionNotFound, name)
	}
	if err := w.p.deps.Jira.DoTransition(ctx, w.key, t.ID, comment); err != nil {
		return "", err
	}
	return strings.TrimSpace(t.Name), nil
}

// link creates the rule's issue link. It reports false when a requested
// link could not be created.
func (w *workflow) link(ctx context.Context) bool {
	li := w.action.LinkIssue
	if li == nil {
		return true
	}
	target := strings.TrimSpace(w.resolve(li.Target))
	if target == "" {
		return true
	}

	name, inward, outward, err := jira.ResolveLink(li.Type, w.key, target)
	if err == nil {
		err = w.p.deps.Jira.CreateIssueLink(ctx, name, inward, outward)
	}
	if err != nil {
		w.log.Warn().Err(err).Str("target", target).Msg("failed to link issue")
		w.actions["linked_to"] = failed(err)
		w.actions["link_type"] = li.Type
		return false
	}
	w.log.Info().Str("target", target).Str("link_type", name).Msg("linked issue")
	w.actions["linked_to"] = target
	w.actions["link_type"] = li.Type
	return true
}

// closeTicket closes the ticket. A rule that starts an SLT only closes
// once the start succeeded; otherwise a notice is posted instead.
func (w *workflow) closeTicket(ctx context.Context) bool {
	if w.action.StartSLT && !sltStarted(w.rec.SLTStartStatus) {
		w.log.Warn().Msg("close requested but SLT start failed, posting notice")
		notice := fmt.Sprintf("RackBrain notice:\n"+
			"- SLT was requested by rule but TestView start failed.\n"+
			"- slt_start_status=%s\n"+
			"- slt_start_response=%s\n"+
			"Please re-login/refresh TestView token on this host and retry.\n",
			statusText(w.rec.SLTStartStatus), w.rec.SLTStartResponse)
		if err := w.p.deps.Jira.AddComment(ctx, w.key, notice); err != nil {
			w.actions["commented_slt_start_failed"] = failed(err)
		} else {
			w.actions["commented_slt_start_failed"] = true
		}
		return false
	}

	ok, detail := w.tryClose(ctx)
	w.actions["closed"] = ok
	w.actions["closed_detail"] = detail
	if ok {
		w.log.Info().Str("detail", detail).Msg("ticket closed")
	} else {
		w.log.Warn().Str("detail", detail).Msg("close failed")
	}
	return ok
}

func (w *workflow) tryClose(ctx context.Context) (bool, string) {
	ts, err := w.p.deps.Jira.Transitions(ctx, w.key)
	if err != nil {
		return false, "CLOSE_FAILED; errors=" + err.Error()
	}

	available := make([]string, 0, len(ts))
	for _, t := range ts {
		if n := strings.TrimSpace(t.Name); n != "" {
			available = append(available, n)
		}
	}

	var preferred []string
	for _, want := range preferredCloseNames {
		if containsFold(available, want) {
			preferred = append(preferred, want)
		}
	}
	if len(preferred) == 0 {
		preferred = available
	}
	order := append([]string(nil), preferred...)
	for _, n := range available {
		if !containsFold(preferred, n) && hasCloseHint(n) {
			order = append(order, n)
		}
	}

	var errs []string
	for _, name := range order {
		got, err := w.tryTransition(ctx, name, constants.CloseTransitionComment)
		if err == nil {
			w.status = got
			return true, "closed_via:" + got
		}
		if !errors.Is(err, rberrors.ErrTransitionNotFound) {
			errs = append(errs, name+": "+err.Error())
		}
	}
	if len(errs) > 0 {
		if len(errs) > maxCloseErrors {
			errs = errs[:maxCloseErrors]
		}
		return false, "CLOSE_FAILED; errors=" + strings.Join(errs, " | ")
	}
	return false, "NO_CLOSE_TRANSITION_FOUND_OR_FAILED"
}

// reassign hands the ticket on: to the rule's reassign_to when declared,
// otherwise to an assignee picked from the configured pools.
func (w *workflow) reassign(ctx context.Context, testerEmail string) {
	var target, reason string
	if w.action.ReassignTo != nil {
		target = strings.TrimSpace(w.resolve(*w.action.ReassignTo))
		if target == "" {
			w.actions["reassigned_to"] = ""
			w.actions["reassigned_to_reason"] = "rule_reassign_to_empty_keep_current"
			return
		}
		reason = "rule_reassign_to"
	} else {
		target, reason = w.p.pickFinalAssignee(w.forceText(), w.ticket.Description)
		if testerEmail != "" {
			w.actions["tester_email_in_description"] = testerEmail
		}
	}

	if target == "" {
		w.actions["reassigned_to"] = ""
		w.actions["reassigned_to_reason"] = reason
		return
	}
	if err := w.p.deps.Jira.Assign(ctx, w.key, target); err != nil {
		w.log.Warn().Err(err).Str("assignee", target).Msg("failed to reassign")
		w.actions["reassigned_to"] = failed(err)
		return
	}
	w.log.Info().Str("assignee", target).Str("reason", reason).Msg("reassigned")
	w.actions["reassigned_to"] = target
	w.actions["reassigned_to_reason"] = reason
	w.assignee = target
}

// forceText is the text searched for repair-release requests.
func (w *workflow) forceText() string {
	var bodies []string
	for _, c := range w.ticket.Comments {
		if strings.TrimSpace(c.Body) != "" {
			bodies = append(bodies, c.Body)
		}
	}
	return strings.Join([]string{
		w.ticket.Summary,
		w.ticket.Description,
		strings.Join(bodies, "\n\n"),
		w.rec.JiraLatestCommentText,
		w.comment,
	}, "\n\n")
}

// startTimer arms the rule's timer under the rearm key of the ticket's
// state after the updates.
func (w *workflow) startTimer(ctx context.Context) error {
	if w.timerSeconds == nil || *w.timerSeconds <= 0 {
		return nil
	}
	secs := *w.timerSeconds
	rearm := domain.BuildRearmKey(w.status, w.assignee)
	t, err := w.p.deps.Timers.Start(ctx, w.key, w.match.Rule.ID, time.Duration(secs)*time.Second, rearm)
	if err != nil {
		return err
	}
	w.actions["timer_started_seconds"] = secs
	w.actions["timer_remaining_seconds"] = int(t.Remaining(w.p.clock.Now()) / time.Second)
	w.log.Info().Int("seconds", secs).Str("rearm_key", rearm).Msg("timer started")
	return nil
}

// resolve fills the placeholders allowed in assignee and link targets.
func (w *workflow) resolve(s string) string {
	if !strings.Contains(s, "{") {
		return s
	}
	return strings.NewReplacer(
		"{ticket_key}", w.key,
		"{sn}", w.rec.SN,
		"{jira_latest_comment_author}", w.rec.JiraLatestCommentAuthor,
		"{jira_latest_comment_author_display_name}", w.rec.JiraLatestCommentAuthorDisplayName,
		"{jira_latest_comment_author_email}", w.rec.JiraLatestCommentAuthorEmail,
	).Replace(s)
}

func sltStarted(status *int) bool {
	if status == nil {
		return false
	}
	switch *status {
	case 200, 201, 202:
		return true
	default:
		return false
	}
}

func statusText(status *int) string {
	if status == nil {
		return "None"
	}
	return fmt.Sprint(*status)
}

func failed(err error) string {
	return "FAILED: " + err.Error()
}

func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func hasCloseHint(name string) bool {
	lower := strings.ToLower(name)
	for _, h := range closeHints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}
