package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/rackbrain/internal/constants"
	rberrors "github.com/mrz1836/rackbrain/internal/errors"
)

// isolate points HOME at an empty directory, clears the env vars that pick
// config files, and moves into a fresh working directory.
func isolate(t *testing.T) string {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	t.Setenv(constants.EnvHome, "")
	t.Setenv(constants.EnvConfig, "")
	t.Setenv(constants.EnvTimerDBPath, "")
	for _, env := range legacyEnv {
		t.Setenv(env, "")
	}

	wd := t.TempDir()
	t.Chdir(wd)
	return wd
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad_ReturnsDefaultsWhenNoConfigFile(t *testing.T) {
	wd := isolate(t)

	cfg, err := Load(context.Background())
	require.NoError(t, err, "Load should not fail when no config file exists")
	require.NotNil(t, cfg)

	assert.Empty(t, cfg.Source)
	assert.Equal(t, constants.DefaultMinConfidence, cfg.Processing.MinConfidence)
	assert.Equal(t, constants.DefaultPollInterval, cfg.Polling.Interval)
	assert.Equal(t, []string{"Open", "In Progress"}, cfg.Processing.AllowedStatuses)
	assert.Equal(t, "In Progress", cfg.Processing.TransitionTo)
	assert.Equal(t, DefaultPATEnv, cfg.Jira.PATEnv)
	assert.True(t, cfg.Audit.Enabled)

	resolved, err := filepath.EvalSymlinks(wd)
	require.NoError(t, err)
	assert.Contains(t, []string{wd, resolved}, cfg.BaseDir)
	assert.Equal(t, filepath.Join(cfg.BaseDir, "state", constants.TimerDBFileName), cfg.Timer.DBPath)
	assert.Equal(t, filepath.Join(cfg.BaseDir, "logs"), cfg.Audit.LogDir)
}

func TestLoadFile_ProjectConfigResolvesPaths(t *testing.T) {
	wd := isolate(t)

	writeFile(t, filepath.Join(wd, "config", "config.yaml"), `
jira:
  base_url: https://jira.example.com
rules:
  files:
    - rules/eve.yaml
    - /abs/other.yaml
polling:
  project_key: MFGS
  interval: 90s
  extra_queries:
    - name: stage2
      jql: project = MFGS AND status = Waiting
      only_rule_ids: [a, b]
    - name: off
      jql: x
      enabled: false
`)

	cfg, err := LoadFile(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("config", "config.yaml"), cfg.Source)
	assert.Equal(t, "https://jira.example.com", cfg.Jira.BaseURL)
	assert.Equal(t, 90*time.Second, cfg.Polling.Interval)
	require.Len(t, cfg.Rules.Files, 2)
	assert.Equal(t, filepath.Join(cfg.BaseDir, "rules", "eve.yaml"), cfg.Rules.Files[0])
	assert.Equal(t, "/abs/other.yaml", cfg.Rules.Files[1])

	require.Len(t, cfg.Polling.ExtraQueries, 2)
	assert.Equal(t, []string{"a", "b"}, cfg.Polling.ExtraQueries[0].OnlyRuleIDs)
	assert.True(t, cfg.Polling.ExtraQueries[0].IsEnabled())
	assert.False(t, cfg.Polling.ExtraQueries[1].IsEnabled())
}

func TestLoadFile_ExplicitPath(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "rb.yaml")
	writeFile(t, path, `
processing:
  min_confidence: 0.5
  myself_assignee: bot
timer:
  db_path: timers.sqlite
`)

	cfg, err := LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Source)
	assert.Equal(t, dir, cfg.BaseDir)
	assert.InDelta(t, 0.5, cfg.Processing.MinConfidence, 0.0001)
	assert.Equal(t, "bot", cfg.Processing.MyselfAssignee)
	assert.Equal(t, filepath.Join(dir, "timers.sqlite"), cfg.Timer.DBPath)
}

func TestLoadFile_ExplicitPathMissing(t *testing.T) {
	isolate(t)

	_, err := LoadFile(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, rberrors.ErrConfigNotFound)
}

func TestLoadFile_EnvConfigPath(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "env.yaml")
	writeFile(t, path, "polling:\n  max_workers: 9\n")
	t.Setenv(constants.EnvConfig, path)

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Polling.MaxWorkers)
}

func TestLoadFile_RackbrainHome(t *testing.T) {
	isolate(t)
	home := t.TempDir()
	t.Setenv(constants.EnvHome, home)
	writeFile(t, filepath.Join(home, "config", "config.yaml"), "rules:\n  files: [rules.yaml]\n")

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, home, cfg.BaseDir)
	assert.Equal(t, []string{filepath.Join(home, "rules.yaml")}, cfg.Rules.Files)
	assert.Equal(t, filepath.Join(home, "state", constants.TimerDBFileName), cfg.Timer.DBPath)
}

func TestLoadFromPaths_ProjectConfigOverridesGlobal(t *testing.T) {
	isolate(t)
	ctx := context.Background()

	globalConfig := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, globalConfig, `
processing:
  max_slt_attempts: 30
  random_assignees: [alice, bob]
polling:
  max_workers: 8
`)

	projectConfig := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, projectConfig, `
polling:
  max_workers: 2
`)

	cfg, err := LoadFromPaths(ctx, projectConfig, globalConfig)
	require.NoError(t, err, "LoadFromPaths should succeed")

	assert.Equal(t, 2, cfg.Polling.MaxWorkers, "project config should override global")
	assert.Equal(t, 30, cfg.Processing.MaxSLTAttempts, "global values that aren't overridden should persist")
	assert.Equal(t, []string{"alice", "bob"}, cfg.Processing.RandomAssignees)
}

func TestLoadFromPaths_InvalidValues(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "polling:\n  max_workers: 0\n")

	_, err := LoadFromPaths(context.Background(), path, "")
	require.ErrorIs(t, err, rberrors.ErrConfigInvalidPolling)
}

func TestLoad_EnvVarMapping(t *testing.T) {
	tests := []struct {
		envVar   string
		value    string
		validate func(*testing.T, *Config)
	}{
		{
			envVar: "RACKBRAIN_JIRA_BASE_URL",
			value:  "https://jira.internal",
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, "https://jira.internal", c.Jira.BaseURL)
			},
		},
		{
			envVar: "RACKBRAIN_POLLING_MAX_WORKERS",
			value:  "12",
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, 12, c.Polling.MaxWorkers)
			},
		},
		{
			envVar: "RACKBRAIN_POLLING_INTERVAL",
			value:  "45s",
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, 45*time.Second, c.Polling.Interval)
			},
		},
		{
			envVar: "RACKBRAIN_PROCESSING_RANDOM_ASSIGNEES",
			value:  "alice,bob",
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, []string{"alice", "bob"}, c.Processing.RandomAssignees)
			},
		},
		{
			envVar: "RACKBRAIN_DB_HOST",
			value:  "10.0.0.5",
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, "10.0.0.5", c.Database.Host)
			},
		},
		{
			envVar: "RACKBRAIN_DB_PASS",
			value:  "s3cret",
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, "s3cret", c.Database.Password)
			},
		},
		{
			envVar: "RACKBRAIN_SEIZO_BASE",
			value:  "http://seizo.lab",
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, "http://seizo.lab", c.Cinder.SeizoBaseURL)
			},
		},
		{
			envVar: "RACKBRAIN_CINDER_DB_PASS",
			value:  "qc-pw",
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, "qc-pw", c.Cinder.Database.Password)
			},
		},
		{
			envVar: "RACKBRAIN_TESTVIEW_COOKIE",
			value:  "session=abc",
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, "session=abc", c.Testview.CookieValue())
			},
		},
		{
			envVar: "RACKBRAIN_TIMER_DB_PATH",
			value:  "/var/lib/rackbrain/t.sqlite",
			validate: func(t *testing.T, c *Config) {
				assert.Equal(t, "/var/lib/rackbrain/t.sqlite", c.Timer.DBPath)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.envVar, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.envVar, tt.value)

			cfg, err := Load(context.Background())
			require.NoError(t, err)
			tt.validate(t, cfg)
		})
	}
}

func TestLoad_EnvVarOverridesConfigFile(t *testing.T) {
	wd := isolate(t)
	writeFile(t, filepath.Join(wd, ".rackbrain", "config.yaml"), "polling:\n  project_key: MFGS\n")
	t.Setenv("RACKBRAIN_POLLING_PROJECT_KEY", "OTHER")

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "OTHER", cfg.Polling.ProjectKey, "env var should override config file")
}

func TestLoadWithOverrides(t *testing.T) {
	isolate(t)

	cfg, err := LoadWithOverrides(context.Background(), "", &Config{
		Polling: PollingConfig{JQL: "project = X", Interval: 10 * time.Second},
		Rules:   RulesConfig{Files: []string{"r.yaml"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "project = X", cfg.Polling.JQL)
	assert.Equal(t, 10*time.Second, cfg.Polling.Interval)
	assert.Equal(t, constants.DefaultMaxWorkers, cfg.Polling.MaxWorkers, "zero overrides are ignored")
	assert.Equal(t, []string{filepath.Join(cfg.BaseDir, "r.yaml")}, cfg.Rules.Files)
}

func TestLoadWithOverrides_Revalidates(t *testing.T) {
	isolate(t)

	_, err := LoadWithOverrides(context.Background(), "", &Config{
		Polling: PollingConfig{Interval: time.Millisecond},
	})
	require.ErrorIs(t, err, rberrors.ErrConfigInvalidPolling)
}

func TestJiraConfig_Token(t *testing.T) {
	t.Setenv("MY_PAT", " from-env ")

	assert.Equal(t, "inline", JiraConfig{PAT: "inline", PATEnv: "MY_PAT"}.Token())
	assert.Equal(t, "from-env", JiraConfig{PATEnv: "MY_PAT"}.Token())
	assert.Empty(t, JiraConfig{}.Token())
	assert.Equal(t, "config", JiraConfig{PAT: "x"}.TokenSource())
	assert.Equal(t, "MY_PAT", JiraConfig{PATEnv: "MY_PAT"}.TokenSource())
}
