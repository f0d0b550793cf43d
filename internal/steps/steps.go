// Package steps executes a rule's ordered remote command steps and decides
// which comment template, timer and TestView start the steps request.
package steps

import (
	"context"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mrz1836/rackbrain/internal/constants"
	"github.com/mrz1836/rackbrain/internal/domain"
	"github.com/mrz1836/rackbrain/internal/extract"
	"github.com/mrz1836/rackbrain/internal/remote"
)

// StartRequest asks the orchestrator to start a TestView operation after
// the steps finish.
type StartRequest struct {
	Operation   string
	UseValidate bool
}

// State is the scratch state of one step run. It is owned by a single
// Execute call and never shared.
type State struct {
	PreviousStdout string

	LastCmdContext       string
	LastCmd              string
	LastCmdStatus        *int
	LastCmdStdout        string
	LastCmdSelectedLines string

	Override      *string
	TimerSeconds  *int
	TestviewStart *StartRequest
	History       []domain.CommandResult
	Aborted       bool
}

// Result is what a step run hands back to the orchestrator.
type Result struct {
	// TemplateOverride replaces the rule's comment template when set.
	TemplateOverride *string

	// TimerSeconds is the largest timer any qualifying step requested.
	TimerSeconds *int

	History       []domain.CommandResult
	Last          *domain.CommandResult
	TestviewStart *StartRequest

	// Aborted is true when the remote layer failed to execute a command.
	// No pass/fail branch was taken for that step.
	Aborted bool
}

// Options controls a step run.
type Options struct {
	// Skip disables command execution entirely (fast dry runs).
	Skip bool
}

// Executor runs command steps through a remote.Runner.
type Executor struct {
	runner remote.Runner
	logger zerolog.Logger
}

// NewExecutor returns an Executor.
func NewExecutor(runner remote.Runner, logger zerolog.Logger) *Executor {
	return &Executor{runner: runner, logger: logger}
}

// Execute runs action's command steps against rec. The command history is
// also stored on rec for the renderer. The error is non-nil only when the
// runner could not be invoked at all; steps recorded up to that point are
// still returned.
func (e *Executor) Execute(ctx context.Context, rec *domain.Record, action *domain.Action, opts Options) (Result, error) {
	if rec.SN == "" || len(action.CommandSteps) == 0 || opts.Skip {
		return Result{}, nil
	}

	st := &State{}
	var extracts extract.Extracts
	if len(action.TextExtracts) > 0 {
		extracts = extract.ApplyTextExtracts(rec, action.TextExtracts)
	}

	runErr := e.run(ctx, rec, action.CommandSteps, extracts, st)
	rec.CommandHistory = append(rec.CommandHistory, st.History...)

	res := Result{
		TemplateOverride: st.Override,
		TimerSeconds:     st.TimerSeconds,
		History:          st.History,
		TestviewStart:    st.TestviewStart,
		Aborted:          st.Aborted,
	}
	if n := len(st.History); n > 0 {
		res.Last = &st.History[n-1]
	}
	return res, runErr
}

func (e *Executor) run(ctx context.Context, rec *domain.Record, steps []domain.CommandStep, extracts extract.Extracts, st *State) error {
	for i := range steps {
		step := &steps[i]
		log := e.logger.With().Str("issue_key", rec.Ticket.Key).Str("step", step.ID).Logger()

		if step.IfPreviousContains != "" && !strings.Contains(st.PreviousStdout, step.IfPreviousContains) {
			log.Info().Str("cmd", step.Cmd).Msg("skipping step, if_previous_contains not met")
			continue
		}

		cmd, ok := resolvePlaceholders(rec, step.Cmd, extracts)
		if !ok {
			log.Info().Msg("skipping telnet step, no telnet_cmd extracted")
			continue
		}

		var stop bool
		var err error
		if step.ForEachExtract != "" {
			stop, err = e.runForEach(ctx, rec, step, cmd, extracts, st)
		} else {
			stop, err = e.runSingle(ctx, rec, step, cmd, st)
		}
		if err != nil {
			return err
		}
		if stop {
			break
		}
	}
	return nil
}

func (e *Executor) runSingle(ctx context.Context, rec *domain.Record, step *domain.CommandStep, cmd string, st *State) (bool, error) {
	result, err := e.runner.Run(ctx, rec.SN, cmd)
	if err != nil {
		st.Aborted = true
		st.record(step, notExecuted(rec.SN, cmd, err.Error()), "", "")
		return true, err
	}
	st.PreviousStdout = result.Stdout

	selected := extract.SelectStepLines(result.Stdout, step.Selection)
	st.record(step, result, selected, "")

	if !result.Executed {
		st.Aborted = true
		e.logger.Warn().
			Str("issue_key", rec.Ticket.Key).
			Str("step", step.ID).
			Str("stderr", result.Stderr).
			Msg("runner did not execute step")
		return true, nil
	}

	allOK := expectationsMet(step, result)
	if step.TimerAfterSeconds != nil && (!step.HasExpectations() || allOK) {
		st.mergeTimer(*step.TimerAfterSeconds)
	}
	st.decide(step, allOK)
	return st.Override != nil && step.StopOnDecision, nil
}

func (e *Executor) runForEach(ctx context.Context, rec *domain.Record, step *domain.CommandStep, cmd string, extracts extract.Extracts, st *State) (bool, error) {
	raw, _ := extracts.Get(step.ForEachExtract)
	items := extract.UniqueLines(raw)

	if len(items) == 0 {
		st.record(step, remote.Result{
			Serial:  rec.SN,
			Context: "unknown",
			Cmd:     cmd,
			Status:  1,
			Stderr:  "for_each_extract '" + step.ForEachExtract + "' produced 0 items",
		}, "", "empty")
		st.decide(step, false)
		return st.Override != nil && step.StopOnDecision, nil
	}

	anyFail := false
	for idx, item := range items {
		itemCmd := strings.ReplaceAll(cmd, "[item]", item)
		suffix := strconv.Itoa(idx + 1)

		result, err := e.runner.Run(ctx, rec.SN, itemCmd)
		if err != nil {
			st.Aborted = true
			st.record(step, notExecuted(rec.SN, itemCmd, err.Error()), "", suffix)
			return true, err
		}
		st.PreviousStdout = result.Stdout

		selected := extract.SelectStepLines(result.Stdout, step.Selection)
		st.record(step, result, selected, suffix)

		if !result.Executed {
			st.Aborted = true
			e.logger.Warn().
				Str("issue_key", rec.Ticket.Key).
				Str("step", step.ID).
				Str("item", item).
				Str("stderr", result.Stderr).
				Msg("runner did not execute step")
			return true, nil
		}
		if !expectationsMet(step, result) {
			anyFail = true
		}
	}

	allOK := !anyFail
	if step.TimerAfterSeconds != nil && (!step.HasExpectations() || allOK) {
		st.mergeTimer(*step.TimerAfterSeconds)
	}
	st.decide(step, allOK)
	return st.Override != nil && step.StopOnDecision, nil
}

func notExecuted(sn, cmd, stderr string) remote.Result {
	name, inner := remote.ParseContext(cmd)
	return remote.Result{Serial: sn, Context: name, Cmd: inner, Status: 1, Stderr: stderr}
}

// resolvePlaceholders substitutes {sn}, {ticket_key}, {telnet_cmd} and text
// extract names. Context markers such as {ilom} are left alone. It returns
// false when {telnet_cmd} is needed but cannot be derived.
func resolvePlaceholders(rec *domain.Record, cmd string, extracts extract.Extracts) (string, bool) {
	cmd = strings.ReplaceAll(cmd, "{sn}", rec.SN)
	if rec.Ticket.Key != "" {
		cmd = strings.ReplaceAll(cmd, "{ticket_key}", rec.Ticket.Key)
	}

	if strings.Contains(cmd, "{telnet_cmd}") {
		if rec.TelnetCmd == "" {
			rec.TelnetCmd = extract.TelnetCmd(rec.FailureMessage)
			if rec.TelnetCmd == "" {
				rec.TelnetCmd = extract.TelnetCmd(rec.CombinedText)
			}
		}
		if rec.TelnetCmd == "" {
			return "", false
		}
		cmd = strings.ReplaceAll(cmd, "{telnet_cmd}", rec.TelnetCmd)
	}

	for _, x := range extracts {
		placeholder := "{" + x.Name + "}"
		if strings.Contains(cmd, placeholder) {
			cmd = strings.ReplaceAll(cmd, placeholder, extract.FirstNonEmptyLine(x.Value))
		}
	}
	return cmd, true
}

func expectationsMet(step *domain.CommandStep, r remote.Result) bool {
	if step.ExpectStatus != nil && r.Status != *step.ExpectStatus {
		return false
	}
	for _, tok := range step.ExpectContains {
		if tok != "" && !strings.Contains(r.Stdout, tok) {
			return false
		}
	}
	for _, tok := range step.ExpectNotContains {
		if tok != "" && strings.Contains(r.Stdout, tok) {
			return false
		}
	}
	return true
}

func (st *State) record(step *domain.CommandStep, r remote.Result, selected, suffix string) {
	id := step.ID
	if id == "" {
		id = "cmd_" + strconv.Itoa(len(st.History)+1)
	}
	if suffix != "" {
		id += "_" + suffix
	}
	stdout := truncate(r.Stdout, constants.MaxStdoutBytes)
	st.History = append(st.History, domain.CommandResult{
		CmdID:         id,
		Context:       r.Context,
		Cmd:           r.Cmd,
		Status:        r.Status,
		Stdout:        stdout,
		Stderr:        r.Stderr,
		SelectedLines: selected,
	})

	status := r.Status
	st.LastCmdContext = r.Context
	st.LastCmd = r.Cmd
	st.LastCmdStatus = &status
	st.LastCmdStdout = stdout
	st.LastCmdSelectedLines = selected
}

func (st *State) mergeTimer(seconds int) {
	if st.TimerSeconds == nil || seconds > *st.TimerSeconds {
		v := seconds
		st.TimerSeconds = &v
	}
}

// decide applies the pass or fail branch of step.
func (st *State) decide(step *domain.CommandStep, passed bool) {
	comment := step.OnFailComment
	if passed {
		comment = step.OnPassComment
	}
	if comment != nil && *comment != "" {
		c := *comment
		st.Override = &c
	}

	if st.TestviewStart != nil {
		return
	}
	switch {
	case passed && step.StartTestviewOnPass:
		st.TestviewStart = &StartRequest{Operation: step.TestviewOperationOnPass, UseValidate: step.TestviewUseValidateOnPass}
	case !passed && step.StartTestviewOnFail:
		st.TestviewStart = &StartRequest{Operation: step.TestviewOperationOnFail, UseValidate: step.TestviewUseValidateOnFail}
	}
}

// truncate keeps at most n characters of s.
func truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
