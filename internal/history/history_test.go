package history

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rberrors "github.com/mrz1836/rackbrain/internal/errors"
)

func okPtr(v int64) *int64 { return &v }

func run(id int64, ok int64, testset, testcase string) Run {
	return Run{SN: "SN1", SLTID: id, OK: okPtr(ok), FailedTestset: testset, FailedTestcase: testcase}
}

func TestParseTestcases(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"3_PROGRAM", "5_CHECK_ROT_FRU"}, ParseTestcases(" 3_PROGRAM, ,5_CHECK_ROT_FRU "))
	assert.Empty(t, ParseTestcases(""))
}

func TestSameFailureCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		runs []Run
		want int
	}{
		{name: "empty", want: 0},
		{name: "latest passed", runs: []Run{run(3, 1, "SLT", "A"), run(2, 0, "SLT", "A")}, want: 0},
		{name: "latest missing testcase", runs: []Run{run(3, 0, "SLT", "")}, want: 0},
		{
			name: "streak",
			runs: []Run{run(4, 0, "SLT", "A"), run(3, 0, "SLT", "A"), run(2, 0, "SLT", "B"), run(1, 0, "SLT", "A")},
			want: 2,
		},
		{
			name: "broken by pass",
			runs: []Run{run(3, 0, "SLT", "A"), run(2, 1, "SLT", "A"), run(1, 0, "SLT", "A")},
			want: 1,
		},
		{
			name: "null ok breaks",
			runs: []Run{run(3, 0, "SLT", "A"), {SLTID: 2, FailedTestset: "SLT", FailedTestcase: "A"}},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SameFailureCount(tt.runs))
		})
	}
}

func TestSelectLatestFailed(t *testing.T) {
	t.Parallel()

	runs := []Run{
		run(5, 1, "SLT", ""),
		run(4, 0, "PRETEST", "1_BOOT"),
		run(3, 0, "SLT", "3_PROGRAM,5_CHECK_ROT_FRU"),
		run(2, 0, "SLT", "7_MEMTEST"),
	}

	got := SelectLatestFailed(runs, "", "")
	require.NotNil(t, got)
	assert.Equal(t, int64(4), got.SLTID)
	assert.Equal(t, []string{"1_BOOT"}, got.Testcases)
	assert.Equal(t, 0, got.SameFailureCount, "newest run passed")

	got = SelectLatestFailed(runs, "check_rot", " slt ")
	require.NotNil(t, got)
	assert.Equal(t, int64(3), got.SLTID)
	assert.Equal(t, []string{"3_PROGRAM", "5_CHECK_ROT_FRU"}, got.Testcases)

	assert.Nil(t, SelectLatestFailed(runs, "nope", ""))
	assert.Nil(t, SelectLatestFailed(nil, "", ""))
}

func TestChooseTestcase(t *testing.T) {
	t.Parallel()
	tcs := []string{"3_PROGRAM", "5_CHECK_ROT_FRU"}
	assert.Equal(t, "5_CHECK_ROT_FRU", ChooseTestcase(tcs, "ROT"))
	assert.Equal(t, "3_PROGRAM", ChooseTestcase(tcs, "rot"))
	assert.Empty(t, ChooseTestcase(nil, "x"))
}

func TestConfig(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		[]string{"RACKBRAIN_DB_HOST", "RACKBRAIN_DB_USER", "RACKBRAIN_DB_PASS", "RACKBRAIN_DB_NAME"},
		Config{}.Missing())

	cfg := Config{Host: "db.local", User: "ro", Password: "pw", Name: "hyvetest", Timeout: 5 * time.Second}
	assert.Empty(t, cfg.Missing())

	dc := cfg.DriverConfig()
	assert.Equal(t, "db.local:3306", dc.Addr)
	assert.Equal(t, "hyvetest", dc.DBName)
	assert.True(t, dc.ParseTime)
	assert.Equal(t, 5*time.Second, dc.Timeout)
	assert.Contains(t, dc.FormatDSN(), "ro:pw@tcp(db.local:3306)/hyvetest")
}

func TestClient_Disabled(t *testing.T) {
	t.Parallel()

	c, err := Open(Config{Host: "db.local"}, zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	ctx := context.Background()
	details, err := c.ServerDetails(ctx, "SN1")
	require.NoError(t, err)
	assert.Nil(t, details)

	runs, err := c.Runs(ctx, "SN1", 5)
	require.NoError(t, err)
	assert.Empty(t, runs)

	latest, err := c.LatestFailedRun(ctx, "SN1", "", "")
	require.NoError(t, err)
	assert.Nil(t, latest)

	frus, err := c.OutpostFRU(ctx, "SN1")
	require.NoError(t, err)
	assert.Empty(t, frus)

	require.ErrorIs(t, c.Ping(ctx), rberrors.ErrLookupUnavailable)
	require.NoError(t, c.Close())
}

func TestClient_EnabledWithoutConnecting(t *testing.T) {
	t.Parallel()

	c, err := Open(Config{Host: "127.0.0.1", Port: 1, User: "u", Password: "p", Name: "n"}, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, c.Enabled())
	require.NoError(t, c.Close())
}

func TestOpen_LogsRedactedDSN(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	c, err := Open(Config{Host: "db.local", Port: 3306, User: "reader", Password: "hunter2pw", Name: "hyvetest"}, logger)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	assert.Contains(t, buf.String(), "db lookup enabled")
	assert.Contains(t, buf.String(), "db.local:3306")
	assert.NotContains(t, buf.String(), "hunter2pw")
}
