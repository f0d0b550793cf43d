package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mrz1836/rackbrain/internal/constants"
	"github.com/mrz1836/rackbrain/internal/errors"
)

// HomeDir returns the rackbrain home directory: $RACKBRAIN_HOME when set,
// otherwise ~/.rackbrain.
//
// Returns an error if the home directory cannot be determined.
func HomeDir() (string, error) {
	if home := strings.TrimSpace(os.Getenv(constants.EnvHome)); home != "" {
		return expandPath(home), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, constants.RackbrainHome), nil
}

// GlobalConfigPath returns the full path to the global configuration file.
// With RACKBRAIN_HOME set this is $RACKBRAIN_HOME/config/config.yaml,
// otherwise ~/.rackbrain/config.yaml.
func GlobalConfigPath() (string, error) {
	dir, err := HomeDir()
	if err != nil {
		return "", fmt.Errorf("get global config path: %w", err)
	}
	if strings.TrimSpace(os.Getenv(constants.EnvHome)) != "" {
		return filepath.Join(dir, constants.ConfigDir, constants.GlobalConfigName), nil
	}
	return filepath.Join(dir, constants.GlobalConfigName), nil
}

// ProjectConfigPaths returns the project config candidates relative to the
// working directory. The first one that exists is loaded.
func ProjectConfigPaths() []string {
	return []string{
		filepath.Join(constants.ProjectConfigDir, constants.GlobalConfigName),
		filepath.Join(constants.ConfigDir, constants.GlobalConfigName),
	}
}

// BaseDirFor returns the directory relative paths in the config file at
// path resolve against. RACKBRAIN_HOME wins; otherwise a file inside a
// config/ or .rackbrain/ directory resolves against that directory's parent.
func BaseDirFor(path string) string {
	if home := strings.TrimSpace(os.Getenv(constants.EnvHome)); home != "" {
		return expandPath(home)
	}
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "."
		}
		return wd
	}
	path = expandPath(path)
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	dir := filepath.Dir(path)
	switch strings.ToLower(filepath.Base(dir)) {
	case constants.ConfigDir, constants.ProjectConfigDir:
		return filepath.Dir(dir)
	}
	return dir
}

// resolvePaths makes every path setting absolute against cfg.BaseDir and
// fills the timer database location.
func resolvePaths(cfg *Config) {
	base := cfg.BaseDir
	for i, f := range cfg.Rules.Files {
		cfg.Rules.Files[i] = resolveAgainst(base, f)
	}
	cfg.Audit.LogDir = resolveAgainst(base, cfg.Audit.LogDir)
	cfg.Paths.StateDir = resolveAgainst(base, cfg.Paths.StateDir)
	cfg.Remote.WrapperPath = resolveAgainst(base, cfg.Remote.WrapperPath)
	cfg.Remote.RunnerPath = resolveAgainst(base, cfg.Remote.RunnerPath)

	if strings.TrimSpace(cfg.Timer.DBPath) == "" {
		cfg.Timer.DBPath = filepath.Join(cfg.Paths.StateDir, constants.TimerDBFileName)
	}
	cfg.Timer.DBPath = resolveAgainst(base, cfg.Timer.DBPath)
}

func resolveAgainst(base, path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	path = expandPath(path)
	if filepath.IsAbs(path) || base == "" {
		return path
	}
	return filepath.Clean(filepath.Join(base, path))
}

// expandPath expands $VARS and a leading ~.
func expandPath(path string) string {
	path = os.ExpandEnv(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
