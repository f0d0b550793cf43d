// Package rules loads classification rules from YAML rule files.
package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/rackbrain/internal/constants"
	"github.com/mrz1836/rackbrain/internal/domain"
	rberrors "github.com/mrz1836/rackbrain/internal/errors"
)

// Loader loads rules from files.
type Loader struct {
	basePath string
}

// NewLoader creates a new rule loader.
// basePath is used to resolve relative rule file paths.
func NewLoader(basePath string) *Loader {
	return &Loader{basePath: basePath}
}

// LoadFiles loads every rule from the given files, preserving declaration
// order within and across files. A missing file or malformed YAML fails
// the whole load.
func (l *Loader) LoadFiles(paths []string) ([]domain.Rule, error) {
	var out []domain.Rule
	for _, p := range paths {
		rules, err := l.LoadFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, rules...)
	}
	return out, nil
}

// LoadFile loads the rules from a single YAML file. The file must contain a
// YAML list of rules; an empty file yields no rules.
func (l *Loader) LoadFile(path string) ([]domain.Rule, error) {
	resolved := l.resolvePath(path)

	data, err := os.ReadFile(resolved) //nolint:gosec // Path is resolved from user config
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", rberrors.ErrRuleFileMissing, resolved)
		}
		return nil, fmt.Errorf("%w: %s: %w", rberrors.ErrRuleParse, resolved, err)
	}

	var fileRules []FileRule
	if parseErr := yaml.Unmarshal(data, &fileRules); parseErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", rberrors.ErrRuleParse, resolved, parseErr)
	}

	rules := make([]domain.Rule, 0, len(fileRules))
	for i := range fileRules {
		rule, convErr := toRule(&fileRules[i])
		if convErr != nil {
			return nil, fmt.Errorf("%s: rule %d: %w", resolved, i+1, convErr)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (l *Loader) resolvePath(path string) string {
	if filepath.IsAbs(path) || l.basePath == "" {
		return path
	}
	return filepath.Join(l.basePath, path)
}

func toRule(f *FileRule) (domain.Rule, error) {
	id := strings.TrimSpace(f.ID)
	if id == "" {
		return domain.Rule{}, fmt.Errorf("%w: missing id", rberrors.ErrRuleInvalid)
	}

	name := f.Name
	if name == "" {
		name = id
	}

	r := domain.Rule{
		ID:                    id,
		Name:                  name,
		Description:           f.Description,
		Priority:              f.Priority,
		Scope:                 f.Scope,
		AllowOnSameFailure:    f.AllowOnSameFailure,
		AllowHighAttemptCount: f.AllowHighSLTAttempts,
	}
	if r.Scope == nil {
		r.Scope = map[string]any{}
	}

	r.Patterns = make([]domain.Pattern, 0, len(f.Patterns))
	for i, p := range f.Patterns {
		if p.Type == "" {
			return domain.Rule{}, fmt.Errorf("%w: rule %s: pattern %d has no type", rberrors.ErrRuleInvalid, id, i+1)
		}
		r.Patterns = append(r.Patterns, domain.Pattern{Type: p.Type, Value: p.Value})
	}

	action, err := toAction(id, &f.Action)
	if err != nil {
		return domain.Rule{}, err
	}
	r.Action = action
	return r, nil
}

//nolint:funlen // one assignment per YAML key
func toAction(ruleID string, f *FileAction) (domain.Action, error) {
	a := domain.Action{
		Type:               f.Type,
		Close:              f.Close,
		CommentTemplate:    f.CommentTemplate,
		IlomFilterContains: f.IlomFilterContains,
		AssignTo:           f.AssignTo,
		ReassignTo:         f.ReassignTo,
		TransitionTo:       strings.TrimSpace(f.TransitionTo),
		TimerAfterSeconds:  f.TimerAfterSeconds,
		StartSLT:           f.StartSLT,
		SLTOperation:       f.SLTOperation,
		SLTUseValidate:     boolOr(f.SLTUseValidate, true),
		FailureMessage: domain.Selection{
			LineContains:      f.FailureMessageLineContains,
			LineBefore:        f.FailureMessageLineBefore,
			LineAfter:         f.FailureMessageLineAfter,
			LineBetweenStart:  f.FailureMessageLineBetweenStart,
			LineBetweenEnd:    f.FailureMessageLineBetweenEnd,
			LineAfterContains: f.FailureMessageLineAfterContains,
			LineAfterChars:    f.FailureMessageLineAfterChars,
			BetweenStart:      f.FailureMessageBetweenStart,
			BetweenEnd:        f.FailureMessageBetweenEnd,
		},
	}
	if a.Type == "" {
		a.Type = "comment_only"
	}
	if a.SLTOperation == "" {
		a.SLTOperation = constants.SLTOperation
	}

	if f.LinkIssue != nil {
		linkType := strings.TrimSpace(f.LinkIssue.Type)
		target := strings.TrimSpace(f.LinkIssue.Target)
		if linkType == "" || target == "" {
			return domain.Action{}, fmt.Errorf("%w: rule %s: action.link_issue requires both 'type' and 'target'",
				rberrors.ErrRuleInvalid, ruleID)
		}
		a.LinkIssue = &domain.LinkIssue{Type: linkType, Target: target}
	}

	for i := range f.CommandSteps {
		step, err := toStep(ruleID, i+1, &f.CommandSteps[i])
		if err != nil {
			return domain.Action{}, err
		}
		a.CommandSteps = append(a.CommandSteps, step)
	}

	for _, te := range f.TextExtracts {
		if strings.TrimSpace(te.Name) == "" {
			continue
		}
		a.TextExtracts = append(a.TextExtracts, domain.TextExtract{
			Name:              te.Name,
			Source:            te.Source,
			BetweenStart:      te.BetweenStart,
			BetweenEnd:        te.BetweenEnd,
			LineContains:      te.LineContains,
			LineBetweenStart:  te.LineBetweenStart,
			LineBetweenEnd:    te.LineBetweenEnd,
			LineAfterContains: te.LineAfterContains,
			LineAfterChars:    te.LineAfterChars,
			Take:              te.Take,
			Default:           stringOr(te.Default, ""),
		})
	}

	a.Testview = toTestview(f)
	return a, nil
}

func toStep(ruleID string, idx int, f *FileStep) (domain.CommandStep, error) {
	if f.Cmd == nil || strings.TrimSpace(*f.Cmd) == "" {
		return domain.CommandStep{}, fmt.Errorf("%w: rule %s: command step %d has no cmd", rberrors.ErrRuleInvalid, ruleID, idx)
	}
	id := strings.TrimSpace(f.ID)
	if id == "" {
		id = fmt.Sprintf("cmd_%d", idx)
	}
	s := domain.CommandStep{
		ID:                        id,
		Cmd:                       *f.Cmd,
		ExpectStatus:              f.ExpectStatus,
		ExpectContains:            f.ExpectContains,
		ExpectNotContains:         f.ExpectNotContains,
		OnPassComment:             nonEmpty(f.OnPassComment),
		OnFailComment:             nonEmpty(f.OnFailComment),
		StopOnDecision:            boolOr(f.StopOnDecision, true),
		TimerAfterSeconds:         f.TimerAfterSeconds,
		ForEachExtract:            strings.TrimSpace(f.ForEachExtract),
		IfPreviousContains:        f.IfPreviousContains,
		Selection:                 toSelection(&f.FileSelection),
		StartTestviewOnPass:       f.StartTestviewOnPass,
		StartTestviewOnFail:       f.StartTestviewOnFail,
		TestviewOperationOnPass:   f.TestviewOperationOnPass,
		TestviewOperationOnFail:   f.TestviewOperationOnFail,
		TestviewUseValidateOnPass: boolOr(f.TestviewUseValidateOnPass, true),
		TestviewUseValidateOnFail: boolOr(f.TestviewUseValidateOnFail, true),
	}
	if s.TestviewOperationOnPass == "" {
		s.TestviewOperationOnPass = constants.SLTOperation
	}
	if s.TestviewOperationOnFail == "" {
		s.TestviewOperationOnFail = constants.SLTOperation
	}
	return s, nil
}

// toTestview resolves the TestView request from the nested testview block,
// falling back to the legacy flat testview_* keys when the block is absent.
func toTestview(f *FileAction) *domain.TestviewRequest {
	if f.Testview != nil {
		tv := f.Testview
		req := &domain.TestviewRequest{
			TestcaseContains: string(tv.Testcase),
			Testset:          strings.TrimSpace(tv.Testset),
			Select:           toSelection(&tv.Select),
		}
		if req.TestcaseContains == "" {
			req.TestcaseContains = strings.TrimSpace(tv.TestcaseContains)
		}
		for i := range tv.Cases {
			c := &tv.Cases[i]
			tc := domain.TestviewCase{
				When: domain.TestviewWhen{
					Type:   c.When.Type,
					Value:  c.When.Value,
					Source: c.When.Source,
				},
				CommentTemplate: c.CommentTemplate,
			}
			if c.When.Contains != nil {
				tc.When.Contains, tc.When.HasContains = *c.When.Contains, true
			}
			if c.When.Regex != nil {
				tc.When.Regex, tc.When.HasRegex = *c.When.Regex, true
			}
			if c.Select != nil {
				sel := toSelection(c.Select)
				tc.Select = &sel
			}
			req.Cases = append(req.Cases, tc)
		}
		return req
	}

	testcase := strings.TrimSpace(f.TestviewTestcaseContains)
	if testcase == "" {
		return nil
	}
	return &domain.TestviewRequest{
		TestcaseContains: testcase,
		Testset:          strings.TrimSpace(f.TestviewTestset),
		Select: domain.Selection{
			LineContains:       f.TestviewLineContains,
			LineBefore:         f.TestviewLineBefore,
			LineAfter:          f.TestviewLineAfter,
			LineBetweenStart:   f.TestviewLineBetweenStart,
			LineBetweenEnd:     f.TestviewLineBetweenEnd,
			LineAfterContains:  f.TestviewLineAfterContains,
			LineAfterChars:     f.TestviewLineAfterChars,
			BetweenStart:       f.TestviewBetweenStart,
			BetweenEnd:         f.TestviewBetweenEnd,
			FilterLineContains: f.TestviewFilterLineContains,
		},
	}
}

func toSelection(f *FileSelection) domain.Selection {
	return domain.Selection{
		LineContains:       f.LineContains,
		LineNotContains:    f.LineNotContains,
		LineBefore:         f.LineBefore,
		LineAfter:          f.LineAfter,
		LineOnly:           f.LineOnly,
		LineBetweenStart:   f.LineBetweenStart,
		LineBetweenEnd:     f.LineBetweenEnd,
		LineAfterContains:  f.LineAfterContains,
		LineAfterChars:     f.LineAfterChars,
		BetweenStart:       f.BetweenStart,
		BetweenEnd:         f.BetweenEnd,
		FilterLineContains: f.FilterLineContains,
	}
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func stringOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
