package cli

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/rackbrain/internal/errors"
)

func executeRoot(t *testing.T, flags *GlobalFlags, info BuildInfo, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(flags, info)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCmd_Help(t *testing.T) {
	t.Parallel()

	out, err := executeRoot(t, &GlobalFlags{}, BuildInfo{Version: "test"}, "--help")
	require.NoError(t, err)

	for _, want := range []string{"rackbrain", "--output", "--verbose", "--quiet", "--config", "process", "poll", "doctor"} {
		assert.Contains(t, out, want)
	}
}

func TestRootCmd_Version(t *testing.T) {
	t.Parallel()

	out, err := executeRoot(t, &GlobalFlags{}, BuildInfo{Version: "1.0.0", Commit: "abc1234", Date: "2026-10-01"}, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "1.0.0 (commit: abc1234, built: 2026-10-01)")
}

func TestRootCmd_GlobalFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		args     []string
		expected GlobalFlags
		wantErr  error
	}{
		{name: "defaults", args: []string{}, expected: GlobalFlags{Output: OutputText}},
		{name: "json output", args: []string{"-o", "json"}, expected: GlobalFlags{Output: OutputJSON}},
		{name: "verbose", args: []string{"-v"}, expected: GlobalFlags{Output: OutputText, Verbose: true}},
		{name: "quiet", args: []string{"--quiet"}, expected: GlobalFlags{Output: OutputText, Quiet: true}},
		{name: "invalid output format", args: []string{"--output", "xml"}, wantErr: errors.ErrInvalidOutputFormat},
		{name: "empty output format", args: []string{"--output", ""}, wantErr: errors.ErrInvalidOutputFormat},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			flags := &GlobalFlags{}
			_, err := executeRoot(t, flags, BuildInfo{}, tc.args...)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, *flags)
		})
	}
}

func TestRootCmd_VerboseQuietMutuallyExclusive(t *testing.T) {
	t.Parallel()

	_, err := executeRoot(t, &GlobalFlags{}, BuildInfo{}, "--verbose", "--quiet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verbose")
	assert.Equal(t, ExitInvalidInput, ExitCodeForError(err))
}

func TestRootCmd_SilencesUsageOnError(t *testing.T) {
	t.Parallel()

	out, err := executeRoot(t, &GlobalFlags{}, BuildInfo{}, "--output", "invalid")
	require.Error(t, err)
	assert.NotContains(t, out, "Usage:")
}

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd(&GlobalFlags{}, BuildInfo{})

	for _, path := range [][]string{
		{"process"},
		{"poll"},
		{"rules", "validate"},
		{"rules", "list"},
		{"timers", "list"},
		{"timers", "clear"},
		{"metrics"},
		{"doctor"},
	} {
		found, _, err := cmd.Find(path)
		require.NoError(t, err, "%v", path)
		assert.Equal(t, path[len(path)-1], found.Name())
	}
}

func TestRootCmd_ProcessRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := executeRoot(t, &GlobalFlags{}, BuildInfo{}, "process")
	require.Error(t, err)
	assert.Equal(t, ExitInvalidInput, ExitCodeForError(err))
}

func TestFormatVersion(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "dev (commit: none, built: unknown)", formatVersion(BuildInfo{}))
	assert.Equal(t, "2.0.0 (commit: none, built: unknown)", formatVersion(BuildInfo{Version: "2.0.0"}))
}

func TestGetLogger(t *testing.T) {
	t.Parallel()

	_, err := executeRoot(t, &GlobalFlags{}, BuildInfo{})
	require.NoError(t, err)
	assert.NotNil(t, GetLogger())
}

func TestPrintErrorHint(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	PrintErrorHint(&buf, nil)
	assert.Empty(t, buf.String())

	PrintErrorHint(&buf, errors.ErrJiraAPI)
	assert.Empty(t, buf.String(), "no hint without an action")

	PrintErrorHint(&buf, fmt.Errorf("failed to load config: %w", errors.ErrMissingCredential))
	assert.Contains(t, buf.String(), "A required credential is missing.")
	assert.Contains(t, buf.String(), "hint: Set RACKBRAIN_JIRA_PAT")
}
