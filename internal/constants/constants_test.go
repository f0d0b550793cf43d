package constants

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProcessingDefaults(t *testing.T) {
	t.Run("classifier threshold is a fraction", func(t *testing.T) {
		assert.InDelta(t, 0.75, DefaultMinConfidence, 0.0001)
		assert.Greater(t, DefaultMinConfidence, 0.0)
		assert.LessOrEqual(t, DefaultMinConfidence, 1.0)
	})

	t.Run("same failure gate trips at two", func(t *testing.T) {
		assert.Equal(t, 2, DefaultSameFailureThreshold)
	})

	t.Run("stdout truncation", func(t *testing.T) {
		assert.Equal(t, 4000, MaxStdoutBytes)
	})
}

func TestTimeoutConstants(t *testing.T) {
	t.Run("remote timeout is minutes scale", func(t *testing.T) {
		assert.Equal(t, 10*time.Minute, DefaultRemoteTimeout)
		assert.GreaterOrEqual(t, DefaultRemoteTimeout, time.Minute)
	})

	t.Run("edited window resets after twelve hours", func(t *testing.T) {
		assert.Equal(t, 12*time.Hour, EditedWindowReset)
	})
}

func TestFileNames(t *testing.T) {
	assert.True(t, strings.HasPrefix(ProcessedLogPrefix, "rackbrain_"))
	assert.Equal(t, ".log", ProcessedLogSuffix)
	assert.Equal(t, "rackbrain_rule_matches.txt", MatchHistoryFileName)
	assert.Contains(t, IlomOpenProblemsCmd, "{ilom}")
}
