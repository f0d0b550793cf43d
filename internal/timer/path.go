package timer

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mrz1836/rackbrain/internal/constants"
)

// ResolvePath picks the timer database location: the configured path, then
// RACKBRAIN_TIMER_DB_PATH, then $RACKBRAIN_HOME/state, then ./state.
// Relative results are made absolute against the working directory.
func ResolvePath(configured string) string {
	path := strings.TrimSpace(configured)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(constants.EnvTimerDBPath))
	}
	if path == "" {
		if home := strings.TrimSpace(os.Getenv(constants.EnvHome)); home != "" {
			path = filepath.Join(home, constants.StateDir, constants.TimerDBFileName)
		}
	}
	if path == "" {
		path = filepath.Join(constants.StateDir, constants.TimerDBFileName)
	}
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	return path
}
