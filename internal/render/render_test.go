package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/rackbrain/internal/domain"
	"github.com/mrz1836/rackbrain/internal/errors"
)

func newMatch(id, tmpl string) *domain.Match {
	return &domain.Match{
		Rule: &domain.Rule{
			ID:     id,
			Name:   "Rule " + id,
			Action: domain.Action{Type: "comment", CommentTemplate: tmpl},
		},
		Confidence: 0.875,
	}
}

func newRecord() *domain.Record {
	return &domain.Record{
		Ticket: domain.Ticket{Key: "MFGS-101", Summary: "SLT fail", Reporter: "jdoe"},
		SN:     "2245XLB0A1",
	}
}

func TestFormat(t *testing.T) {
	ctx := map[string]string{"sn": "SN1", "key": "K-1"}

	tests := []struct {
		name    string
		tmpl    string
		want    string
		wantErr error
	}{
		{name: "plain", tmpl: "hello", want: "hello"},
		{name: "substitutes", tmpl: "{key} on {sn}", want: "K-1 on SN1"},
		{name: "escaped braces", tmpl: "{{code}}{sn}{{code}}", want: "{code}SN1{code}"},
		{name: "conversion ignored", tmpl: "{sn!r}", want: "SN1"},
		{name: "spec ignored", tmpl: "[{sn:>10}]", want: "[SN1]"},
		{name: "missing key", tmpl: "{nope}", wantErr: errors.ErrTemplateKeyMissing},
		{name: "lone open", tmpl: "a { b", wantErr: errors.ErrTemplateMalformed},
		{name: "lone close", tmpl: "a } b", wantErr: errors.ErrTemplateMalformed},
		{name: "empty name", tmpl: "{}", wantErr: errors.ErrTemplateMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Format(tt.tmpl, ctx)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCodeBlock(t *testing.T) {
	assert.Empty(t, CodeBlock("  \n"))
	assert.Equal(t, "{code}\nline\n{code}", CodeBlock("line\n\n"))
}

func TestBuildContext_Defaults(t *testing.T) {
	m := newMatch("r1", "")
	rec := &domain.Record{Ticket: domain.Ticket{Key: "MFGS-1"}}

	ctx := BuildContext(m, rec)

	assert.Equal(t, "UNKNOWN_SN", ctx["sn"])
	assert.Equal(t, "UNKNOWN_ARCH", ctx["arch"])
	assert.Equal(t, "UNKNOWN_TESTCASE", ctx["testcase"])
	assert.Equal(t, "0.88", ctx["confidence"])
	assert.Equal(t, "r1", ctx["rule_id"])
	assert.Equal(t, "0", ctx["command_count"])
	assert.Empty(t, ctx["db_same_failure_count"])
	assert.Empty(t, ctx["last_cmd"])
	assert.Empty(t, ctx["jira_test_duration_minutes"])
	assert.Equal(t, "No commands executed.", ctx["commands_summary"])
}

func TestBuildContext_Values(t *testing.T) {
	m := newMatch("r1", "")
	m.Rule.Action.TextExtracts = []domain.TextExtract{
		{Name: "port", Source: "ticket.summary", LineAfterContains: "port=", Default: "p0"},
		{Name: "sn", Source: "ticket.summary", Default: "shadowed"},
	}

	count := 3
	slt := int64(9001)
	dur := 42.26
	rec := newRecord()
	rec.DBSameFailureCount = &count
	rec.DBLatestSLTID = &slt
	rec.JiraTestDurationMinutes = &dur
	rec.TestviewLogError = "TestView run not found"
	rec.CommandHistory = []domain.CommandResult{
		{CmdID: "a", Context: "host", Cmd: "uptime", Status: 0, Stdout: "up 3 days"},
		{CmdID: "b", Context: "ilom", Cmd: "show /SP", Status: 2, Stdout: "oops", SelectedLines: "oops"},
	}

	ctx := BuildContext(m, rec)

	assert.Equal(t, "2245XLB0A1", ctx["sn"])
	assert.Equal(t, "3", ctx["db_same_failure_count"])
	assert.Equal(t, "9001", ctx["db_latest_slt_id"])
	assert.Equal(t, "42.3", ctx["jira_test_duration_minutes"])
	assert.Equal(t, "jdoe", ctx["jira_reporter"])
	assert.Equal(t, "TestView run not found", ctx["testview_log_snippet"])
	assert.Equal(t, "{code}\nTestView run not found\n{code}", ctx["testview_log_snippet_code"])

	assert.Equal(t, "ilom", ctx["last_cmd_context"])
	assert.Equal(t, "show /SP", ctx["last_cmd"])
	assert.Equal(t, "2", ctx["last_cmd_status"])
	assert.Equal(t, "2", ctx["command_count"])

	assert.Equal(t, "up 3 days", ctx["command_a_stdout"])
	assert.Equal(t, "host uptime (status=0)", ctx["command_a_info"])
	assert.Equal(t, "{code}\noops\n{code}", ctx["command_b_selected_lines_code"])

	assert.Equal(t, "p0", ctx["port"])
	assert.Equal(t, "2245XLB0A1", ctx["sn"], "text extracts never override built-in keys")
}

func TestCommandHistoryBlock(t *testing.T) {
	long := strings.Repeat("x", 250)
	hist := []domain.CommandResult{
		{CmdID: "a", Context: "host", Cmd: "dmesg", Status: 0, Stdout: long},
		{CmdID: "b", Context: "ilom", Cmd: "show", Status: 1, Stdout: "full", SelectedLines: "picked"},
	}

	got := CommandHistoryBlock(hist)

	assert.True(t, strings.HasPrefix(got, "{code}\n--- Command 1: host dmesg (status=0) ---\n"))
	assert.Contains(t, got, strings.Repeat("x", 200)+"... (truncated)")
	assert.NotContains(t, got, strings.Repeat("x", 201))
	assert.Contains(t, got, "--- Command 2: ilom show (status=1) ---\npicked")
	assert.NotContains(t, got, "full")
	assert.Empty(t, CommandHistoryBlock(nil))
}

func TestCommandsSummary(t *testing.T) {
	got := CommandsSummary([]domain.CommandResult{{CmdID: "a", Context: "host", Status: 0, Stdout: "héllo"}})
	assert.Equal(t, "ID | Context | Status | Output Length\n---|---------|-------|---------------\na | host | 0 | 5 chars", got)
}

func TestIlomComponents(t *testing.T) {
	problems := []domain.IlomProblem{
		{Component: "/SYS/MB/P0", Description: "Processor   fault detected"},
		{Component: "/SYS/PS1", Description: "Power supply failed"},
		{Component: "/SYS/MB/P0", Description: "Another processor issue"},
	}

	assert.Equal(t, "/SYS/MB/P0, /SYS/PS1", IlomComponents(problems, nil))
	assert.Equal(t, "/SYS/MB/P0", IlomComponents(problems, []string{"PROCESSOR FAULT"}))
	assert.Equal(t, "/SYS/PS1", IlomComponents(problems, []string{"ps1"}))
	assert.Empty(t, IlomComponents(problems, []string{"fan"}))
	assert.Empty(t, IlomComponents(nil, nil))
}

func TestRender_Signature(t *testing.T) {
	r := New(Options{Signature: "-- bot"})
	rec := newRecord()

	body, err := r.Render(newMatch("r1", "Hello {ticket_key}\n\n"), rec, "")
	require.NoError(t, err)
	assert.Equal(t, "Hello MFGS-101\n\n-- bot", body)

	body, err = r.Render(newMatch("r1", "Done\n-- bot"), rec, "")
	require.NoError(t, err)
	assert.Equal(t, "Done\n-- bot", body, "signature is not appended twice")

	body, err = r.Render(newMatch("r1", "  "), rec, "")
	require.NoError(t, err)
	assert.Equal(t, "  ", body, "blank body stays unsigned")
}

func TestRender_Exempt(t *testing.T) {
	r := New(Options{})
	body, err := r.Render(newMatch("approval_request_ack", "Ack {sn}"), newRecord(), "")
	require.NoError(t, err)
	assert.Equal(t, "Ack 2245XLB0A1", body)

	body, err = r.Render(newMatch("other", "Ack"), newRecord(), "")
	require.NoError(t, err)
	assert.Equal(t, "Ack\n\n🤖", body)
}

func TestRender_CinderReport(t *testing.T) {
	rec := newRecord()
	rec.CinderReport = "+----+\n| id |\n+----+\n"

	r := New(Options{})
	body, err := r.Render(newMatch("cinder_verification_close", "Verified {sn}\n{cinder_report_code}"), rec, "")
	require.NoError(t, err)
	assert.Equal(t, "Verified 2245XLB0A1\n{code}\n+----+\n| id |\n+----+\n{code}", body, "cinder comments carry no signature")
}

func TestRender_Override(t *testing.T) {
	r := New(Options{Exempt: []string{"r1"}})
	body, err := r.Render(newMatch("r1", "base"), newRecord(), "override {sn}")
	require.NoError(t, err)
	assert.Equal(t, "override 2245XLB0A1", body)
}

func TestRender_Fallback(t *testing.T) {
	r := New(Options{Exempt: []string{"r1"}})
	body, err := r.Render(newMatch("r1", "Hi {missing_key}"), newRecord(), "")

	require.ErrorIs(t, err, errors.ErrTemplateKeyMissing)
	assert.Equal(t,
		"[rackbrain] Template formatting error ('missing_key').\n\nRule: r1\nTicket: MFGS-101\nSN: 2245XLB0A1\n",
		body)
}
