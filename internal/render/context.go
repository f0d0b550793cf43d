package render

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/mrz1836/rackbrain/internal/domain"
	"github.com/mrz1836/rackbrain/internal/extract"
)

const previewChars = 200

// CodeBlock wraps text in a Jira {code} block. Blank text yields "".
func CodeBlock(text string) string {
	text = strings.TrimRightFunc(text, unicode.IsSpace)
	if text == "" {
		return ""
	}
	return "{code}\n" + text + "\n{code}"
}

// BuildContext returns every placeholder value available to a comment
// template for m and rec.
func BuildContext(m *domain.Match, rec *domain.Record) map[string]string {
	rule := m.Rule
	action := &rule.Action

	sn := orDefault(rec.SN, "UNKNOWN_SN")
	failureSelected := extract.SelectFailureLines(rec.FailureMessage, action.FailureMessage)
	snippet := rec.TestviewLogSnippet
	if snippet == "" {
		snippet = rec.TestviewLogError
	}

	ctx := map[string]string{
		"ticket_key":      rec.Ticket.Key,
		"sn":              sn,
		"rule_id":         ruleID(rule),
		"rule_name":       rule.Name,
		"confidence":      fmt.Sprintf("%.2f", m.Confidence),
		"arch":            orDefault(rec.Arch, "UNKNOWN_ARCH"),
		"testcase":        orDefault(rec.Testcase, "UNKNOWN_TESTCASE"),
		"error_details":   strings.TrimSpace(rec.ErrorDetails),
		"ilom_components": IlomComponents(rec.IlomProblems, action.IlomFilterContains),

		"evbot_version":              rec.EvbotVersion,
		"jira_model":                 rec.JiraModel,
		"jira_customer_ipn":          rec.JiraCustomerIPN,
		"jira_slt_rack_sn":           rec.JiraSLTRackSN,
		"jira_tester_email":          rec.JiraTesterEmail,
		"jira_test_started":          rec.JiraTestStarted,
		"jira_test_finished":         rec.JiraTestFinished,
		"jira_test_duration_minutes": "",
		"jira_slt_attempts":          rec.JiraSLTAttempts,
		"jira_location":              rec.Ticket.Location,
		"jira_customer":              rec.Ticket.Customer,
		"jira_reporter":              rec.Ticket.Reporter,

		"ilom_open_problems_raw":  rec.IlomOpenProblemsRaw,
		"ilom_open_problems_code": CodeBlock(rec.IlomOpenProblemsRaw),

		"failure_message_selected":      failureSelected,
		"failure_message_selected_code": CodeBlock(failureSelected),

		"db_failed_testcase":       rec.DBFailedTestcase,
		"db_failed_testcase_list":  strings.Join(rec.DBFailedTestcaseList, ", "),
		"db_same_failure_count":    nonZeroInt(rec.DBSameFailureCount),
		"db_latest_failed_testset": rec.DBLatestFailedTestset,
		"db_latest_slt_id":         nonZeroInt64(rec.DBLatestSLTID),

		"slt_validate_status":        nonZeroInt(rec.SLTValidateStatus),
		"slt_validate_response":      rec.SLTValidateResponse,
		"slt_validate_response_code": CodeBlock(rec.SLTValidateResponse),
		"slt_start_status":           nonZeroInt(rec.SLTStartStatus),
		"slt_start_response":         rec.SLTStartResponse,
		"slt_start_response_code":    CodeBlock(rec.SLTStartResponse),

		"testview_log_snippet":      snippet,
		"testview_log_snippet_code": CodeBlock(snippet),
		"testview_log_error":        rec.TestviewLogError,
		"testview_log_error_code":   CodeBlock(rec.TestviewLogError),

		"all_commands_code": CommandHistoryBlock(rec.CommandHistory),
		"commands_summary":  CommandsSummary(rec.CommandHistory),
		"command_count":     strconv.Itoa(len(rec.CommandHistory)),

		"telnet_cmd": rec.TelnetCmd,

		"cinder_report":      rec.CinderReport,
		"cinder_report_code": CodeBlock(rec.CinderReport),

		"jira_latest_comment_text":                rec.JiraLatestCommentText,
		"jira_latest_comment_author":              rec.JiraLatestCommentAuthor,
		"jira_latest_comment_author_display_name": rec.JiraLatestCommentAuthorDisplayName,
		"jira_latest_comment_author_email":        rec.JiraLatestCommentAuthorEmail,
	}

	if rec.JiraTestDurationMinutes != nil {
		ctx["jira_test_duration_minutes"] = fmt.Sprintf("%.1f", *rec.JiraTestDurationMinutes)
	}

	addLastCommand(ctx, rec.CommandHistory)

	for _, x := range extract.ApplyTextExtracts(rec, action.TextExtracts) {
		if _, exists := ctx[x.Name]; !exists {
			ctx[x.Name] = x.Value
		}
	}

	for _, c := range rec.CommandHistory {
		prefix := "command_" + c.CmdID
		ctx[prefix+"_stdout"] = c.Stdout
		ctx[prefix+"_stdout_code"] = CodeBlock(c.Stdout)
		ctx[prefix+"_stderr"] = c.Stderr
		ctx[prefix+"_stderr_code"] = CodeBlock(c.Stderr)
		ctx[prefix+"_selected_lines"] = c.SelectedLines
		ctx[prefix+"_selected_lines_code"] = CodeBlock(c.SelectedLines)
		ctx[prefix+"_context"] = c.Context
		ctx[prefix+"_cmd"] = c.Cmd
		ctx[prefix+"_status"] = strconv.Itoa(c.Status)
		ctx[prefix+"_info"] = fmt.Sprintf("%s %s (status=%d)", c.Context, c.Cmd, c.Status)
	}

	return ctx
}

func addLastCommand(ctx map[string]string, history []domain.CommandResult) {
	keys := []string{
		"last_cmd_context", "last_cmd", "last_cmd_status", "last_cmd_stdout",
		"last_cmd_selected_lines", "last_cmd_stdout_code", "last_cmd_selected_lines_code",
	}
	for _, k := range keys {
		ctx[k] = ""
	}
	if len(history) == 0 {
		return
	}
	last := history[len(history)-1]
	ctx["last_cmd_context"] = last.Context
	ctx["last_cmd"] = last.Cmd
	ctx["last_cmd_status"] = strconv.Itoa(last.Status)
	ctx["last_cmd_stdout"] = last.Stdout
	ctx["last_cmd_selected_lines"] = last.SelectedLines
	ctx["last_cmd_stdout_code"] = CodeBlock(last.Stdout)
	ctx["last_cmd_selected_lines_code"] = CodeBlock(last.SelectedLines)
}

// CommandHistoryBlock formats every executed command as one Jira code block.
func CommandHistoryBlock(history []domain.CommandResult) string {
	if len(history) == 0 {
		return ""
	}
	var lines []string
	for i, c := range history {
		lines = append(lines, fmt.Sprintf("--- Command %d: %s %s (status=%d) ---", i+1, c.Context, c.Cmd, c.Status))
		switch {
		case c.SelectedLines != "":
			lines = append(lines, c.SelectedLines)
		case c.Stdout != "":
			preview := c.Stdout
			if r := []rune(preview); len(r) > previewChars {
				preview = string(r[:previewChars]) + "... (truncated)"
			}
			lines = append(lines, preview)
		}
		lines = append(lines, "")
	}
	return CodeBlock(strings.TrimSpace(strings.Join(lines, "\n")))
}

// CommandsSummary formats a table of executed commands.
func CommandsSummary(history []domain.CommandResult) string {
	if len(history) == 0 {
		return "No commands executed."
	}
	lines := []string{
		"ID | Context | Status | Output Length",
		"---|---------|-------|---------------",
	}
	for _, c := range history {
		lines = append(lines, fmt.Sprintf("%s | %s | %d | %d chars", c.CmdID, c.Context, c.Status, len([]rune(c.Stdout))))
	}
	return strings.Join(lines, "\n")
}

// IlomComponents lists the unique components of problems, in order. With
// filters, only problems whose description or component contains a filter
// phrase are listed; matching is case-insensitive with whitespace runs
// collapsed.
func IlomComponents(problems []domain.IlomProblem, filters []string) string {
	if len(problems) == 0 {
		return ""
	}
	var norm []string
	for _, f := range filters {
		if n := normalizeWS(strings.ToLower(f)); n != "" {
			norm = append(norm, n)
		}
	}

	seen := map[string]struct{}{}
	var comps []string
	for _, p := range problems {
		if len(norm) > 0 && !matchesAny(p, norm) {
			continue
		}
		if _, ok := seen[p.Component]; ok {
			continue
		}
		seen[p.Component] = struct{}{}
		comps = append(comps, p.Component)
	}
	return strings.Join(comps, ", ")
}

func matchesAny(p domain.IlomProblem, filters []string) bool {
	desc := normalizeWS(strings.ToLower(p.Description))
	comp := normalizeWS(strings.ToLower(p.Component))
	for _, f := range filters {
		if strings.Contains(desc, f) || strings.Contains(comp, f) {
			return true
		}
	}
	return false
}

func normalizeWS(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func nonZeroInt(v *int) string {
	if v == nil || *v == 0 {
		return ""
	}
	return strconv.Itoa(*v)
}

func nonZeroInt64(v *int64) string {
	if v == nil || *v == 0 {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func ruleID(r *domain.Rule) string {
	if r.ID != "" {
		return r.ID
	}
	return r.Name
}
