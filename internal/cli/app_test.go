package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/rackbrain/internal/config"
	"github.com/mrz1836/rackbrain/internal/errors"
	"github.com/mrz1836/rackbrain/internal/history"
)

func TestNewApp(t *testing.T) {
	cfg := writeRulesConfig(t, map[string]string{"rules.yaml": sampleRules})
	cfg.Jira.BaseURL = "https://jira.example.com"
	cfg.Jira.PAT = "pat-value"
	cfg.Timer.DBPath = filepath.Join(cfg.BaseDir, "state", "timers.sqlite")
	cfg.Audit.LogDir = filepath.Join(cfg.BaseDir, "logs")
	cfg.Paths.StateDir = filepath.Join(cfg.BaseDir, "state")

	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)

	assert.Len(t, a.rules, 2)
	assert.NotNil(t, a.proc)
	assert.False(t, a.history.Enabled())
	assert.FileExists(t, cfg.Timer.DBPath)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

func TestNewCinderReporter(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Database = config.DatabaseConfig{Host: "db", Port: 3306, User: "ro", Password: "pw", Name: "hyvetest"}
	shared, err := history.Open(historyConfig(cfg.Database), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = shared.Close() })

	a := &app{cfg: cfg, logger: zerolog.Nop(), history: shared}
	r, err := a.newCinderReporter()
	require.NoError(t, err)
	assert.NotNil(t, r)
	assert.Empty(t, a.closers, "same settings share the history client")

	cfg.Cinder.Database.Host = "qc-db"
	r, err = a.newCinderReporter()
	require.NoError(t, err)
	assert.NotNil(t, r)
	assert.Len(t, a.closers, 1, "a separate database gets its own client")
	require.NoError(t, a.Close())
}

func TestNewApp_MissingCredential(t *testing.T) {
	t.Setenv("RACKBRAIN_JIRA_PAT", "")

	cfg := writeRulesConfig(t, map[string]string{"rules.yaml": sampleRules})
	cfg.Jira.BaseURL = "https://jira.example.com"

	_, err := newApp(context.Background(), cfg, zerolog.Nop())
	require.ErrorIs(t, err, errors.ErrMissingCredential)
	assert.Equal(t, ExitInvalidInput, ExitCodeForError(err))
}

func TestNewApp_NoRules(t *testing.T) {
	t.Parallel()

	cfg := writeRulesConfig(t, nil)
	_, err := newApp(context.Background(), cfg, zerolog.Nop())
	require.ErrorIs(t, err, errors.ErrConfigInvalidRules)
}

func TestProcessorConfig(t *testing.T) {
	t.Parallel()

	cfg := writeRulesConfig(t, nil)
	cfg.Processing.RandomAssignees = []string{"a", "b"}
	cfg.Processing.MinConfidence = 0.75

	pc := processorConfig(cfg)
	assert.InDelta(t, 0.75, pc.MinConfidence, 1e-9)
	assert.Equal(t, []string{"a", "b"}, pc.RandomAssignees)
	assert.Equal(t, cfg.Processing.TransitionTo, pc.TransitionTo)
}
