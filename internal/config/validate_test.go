package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rberrors "github.com/mrz1836/rackbrain/internal/errors"
)

// TestValidate_NilConfig tests that nil config returns error
func TestValidate_NilConfig(t *testing.T) {
	t.Parallel()

	err := Validate(nil)

	require.Error(t, err)
	require.ErrorIs(t, err, rberrors.ErrConfigNil)
}

// TestValidate_DefaultConfig tests that default config is valid
func TestValidate_DefaultConfig(t *testing.T) {
	t.Parallel()

	require.NoError(t, Validate(DefaultConfig()))
}

func TestValidate_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{
			name:   "bad jira url",
			mutate: func(c *Config) { c.Jira.BaseURL = "jira.example.com" },
			want:   rberrors.ErrConfigInvalidJira,
		},
		{
			name:   "jira timeout",
			mutate: func(c *Config) { c.Jira.Timeout = 0 },
			want:   rberrors.ErrConfigInvalidJira,
		},
		{
			name:   "zero confidence",
			mutate: func(c *Config) { c.Processing.MinConfidence = 0 },
			want:   rberrors.ErrConfigInvalidProcessing,
		},
		{
			name:   "confidence above one",
			mutate: func(c *Config) { c.Processing.MinConfidence = 1.5 },
			want:   rberrors.ErrConfigInvalidProcessing,
		},
		{
			name:   "negative attempts",
			mutate: func(c *Config) { c.Processing.MaxSLTAttempts = -1 },
			want:   rberrors.ErrConfigInvalidProcessing,
		},
		{
			name:   "negative same failure",
			mutate: func(c *Config) { c.Processing.SameFailureThreshold = -1 },
			want:   rberrors.ErrConfigInvalidProcessing,
		},
		{
			name:   "no workers",
			mutate: func(c *Config) { c.Polling.MaxWorkers = 0 },
			want:   rberrors.ErrConfigInvalidPolling,
		},
		{
			name:   "no results",
			mutate: func(c *Config) { c.Polling.MaxResults = 0 },
			want:   rberrors.ErrConfigInvalidPolling,
		},
		{
			name:   "interval too short",
			mutate: func(c *Config) { c.Polling.Interval = 500 * time.Millisecond },
			want:   rberrors.ErrConfigInvalidPolling,
		},
		{
			name:   "negative lookback",
			mutate: func(c *Config) { c.Polling.LookbackHours = -2 },
			want:   rberrors.ErrConfigInvalidPolling,
		},
		{
			name:   "remote timeout",
			mutate: func(c *Config) { c.Remote.Timeout = 0 },
			want:   rberrors.ErrConfigInvalidRemote,
		},
		{
			name:   "testview timeout",
			mutate: func(c *Config) { c.Testview.Timeout = -time.Second },
			want:   rberrors.ErrConfigInvalidTestview,
		},
		{
			name:   "bad seizo url",
			mutate: func(c *Config) { c.Cinder.SeizoBaseURL = "seizo.lab" },
			want:   rberrors.ErrConfigInvalidCinder,
		},
		{
			name:   "cinder timeout",
			mutate: func(c *Config) { c.Cinder.Timeout = 0 },
			want:   rberrors.ErrConfigInvalidCinder,
		},
		{
			name:   "cinder report length",
			mutate: func(c *Config) { c.Cinder.MaxReportChars = 0 },
			want:   rberrors.ErrConfigInvalidCinder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(cfg)
			require.ErrorIs(t, Validate(cfg), tt.want)
		})
	}
}

func TestCinderConfig_ResolvedDatabase(t *testing.T) {
	t.Parallel()

	base := DatabaseConfig{Host: "db.main", Port: 3306, User: "rackbrain", Password: "main-pw", Name: "hyvetest", Timeout: 15 * time.Second}

	assert.Equal(t, base, CinderConfig{}.ResolvedDatabase(base))

	c := CinderConfig{Database: DatabaseConfig{Host: "db.qc", User: "qc_read_only"}}
	got := c.ResolvedDatabase(base)
	assert.Equal(t, "db.qc", got.Host)
	assert.Equal(t, "qc_read_only", got.User)
	assert.Equal(t, "main-pw", got.Password, "password falls back to the main database")
	assert.Equal(t, "hyvetest", got.Name)
	assert.Equal(t, 3306, got.Port)
}

func TestValidate_AcceptsHTTPURL(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Jira.BaseURL = "http://jira.lab:8080/"
	assert.NoError(t, Validate(cfg))
}
