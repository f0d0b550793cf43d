package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/rackbrain/internal/constants"
)

func TestHomeDir_Default(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(constants.EnvHome, "")

	dir, err := HomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, constants.RackbrainHome), dir)

	path, err := GlobalConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, constants.RackbrainHome, "config.yaml"), path)
}

func TestHomeDir_EnvOverride(t *testing.T) {
	home := t.TempDir()
	t.Setenv(constants.EnvHome, home)

	dir, err := HomeDir()
	require.NoError(t, err)
	assert.Equal(t, home, dir)

	path, err := GlobalConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "config", "config.yaml"), path)
}

func TestProjectConfigPaths(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{
		filepath.Join(".rackbrain", "config.yaml"),
		filepath.Join("config", "config.yaml"),
	}, ProjectConfigPaths())
}

func TestBaseDirFor(t *testing.T) {
	t.Setenv(constants.EnvHome, "")

	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "config dir", path: "/srv/rackbrain/config/config.yaml", want: "/srv/rackbrain"},
		{name: "dot dir", path: "/srv/app/.rackbrain/config.yaml", want: "/srv/app"},
		{name: "plain dir", path: "/etc/rb/rackbrain.yaml", want: "/etc/rb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BaseDirFor(tt.path))
		})
	}
}

func TestBaseDirFor_HomeWins(t *testing.T) {
	t.Setenv(constants.EnvHome, "/opt/rackbrain")
	assert.Equal(t, "/opt/rackbrain", BaseDirFor("/etc/rb/config.yaml"))
}

func TestResolveAgainst(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	assert.Empty(t, resolveAgainst("/base", "  "))
	assert.Equal(t, "/abs/x", resolveAgainst("/base", "/abs/x"))
	assert.Equal(t, "/base/rules/a.yaml", resolveAgainst("/base", "rules/a.yaml"))
	assert.Equal(t, filepath.Join(home, "rules.yaml"), resolveAgainst("/base", "~/rules.yaml"))

	t.Setenv("RB_TEST_DIR", "/from/env")
	assert.Equal(t, "/from/env/r.yaml", resolveAgainst("/base", "$RB_TEST_DIR/r.yaml"))
}

func TestResolvePaths_TimerDefaultsUnderStateDir(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.BaseDir = "/srv/rb"
	cfg.Rules.Files = []string{"rules.yaml"}
	resolvePaths(cfg)

	assert.Equal(t, "/srv/rb/state", cfg.Paths.StateDir)
	assert.Equal(t, "/srv/rb/state/"+constants.TimerDBFileName, cfg.Timer.DBPath)
	assert.Equal(t, "/srv/rb/logs", cfg.Audit.LogDir)
	assert.Equal(t, []string{"/srv/rb/rules.yaml"}, cfg.Rules.Files)
	assert.Empty(t, cfg.Remote.WrapperPath)
}

func TestFileExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	assert.True(t, fileExists(file))
	assert.False(t, fileExists(dir), "directories are not config files")
	assert.False(t, fileExists(filepath.Join(dir, "missing")))
}
