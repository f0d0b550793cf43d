// Package audit records what rackbrain did to each ticket: a daily JSONL
// processing log, a per-rule match history, and the summaries built from
// them.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mrz1836/rackbrain/internal/clock"
	"github.com/mrz1836/rackbrain/internal/constants"
	rberrors "github.com/mrz1836/rackbrain/internal/errors"
)

// TimestampLayout is the entry timestamp format. It sorts lexicographically.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// DayLayout names the daily log files.
const DayLayout = "2006-01-02"

const (
	logPrefix = "rackbrain_processed_"
	logSuffix = ".log"

	// ActionKey is the actions_taken key holding the overall action.
	ActionKey = "action"

	// ActionNoMatch marks a ticket no rule matched.
	ActionNoMatch = "no_match"
)

// LogFileName returns the processing log file name for day.
func LogFileName(day string) string {
	return logPrefix + day + logSuffix
}

// Entry is one processed-ticket record.
type Entry struct {
	ID           string         `json:"id"`
	Timestamp    string         `json:"timestamp"`
	IssueKey     string         `json:"issue_key"`
	RuleID       string         `json:"rule_id,omitempty"`
	RuleName     string         `json:"rule_name,omitempty"`
	Confidence   *float64       `json:"confidence,omitempty"`
	Success      bool           `json:"success"`
	Error        string         `json:"error,omitempty"`
	DryRun       bool           `json:"dry_run"`
	ActionsTaken map[string]any `json:"actions_taken"`
}

// Action returns actions_taken["action"] as a string.
func (e *Entry) Action() string {
	s, _ := e.ActionsTaken[ActionKey].(string)
	return s
}

// ProcessingLog appends entries to <dir>/rackbrain_processed_<day>.log.
// It is safe for concurrent use.
type ProcessingLog struct {
	dir    string
	clock  clock.Clock
	logger zerolog.Logger

	mu     sync.Mutex
	day    string
	writer *lumberjack.Logger
}

// OpenProcessingLog creates dir if needed and returns a ProcessingLog.
func OpenProcessingLog(dir string, clk clock.Clock, logger zerolog.Logger) (*ProcessingLog, error) {
	if err := os.MkdirAll(dir, constants.DirPerm); err != nil {
		return nil, rberrors.Wrapf(err, "failed to create audit directory %s", dir)
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &ProcessingLog{dir: dir, clock: clk, logger: logger}, nil
}

// Dir returns the log directory.
func (l *ProcessingLog) Dir() string { return l.dir }

// Record stamps e with an id and timestamp and appends it.
func (l *ProcessingLog) Record(e Entry) error {
	now := l.clock.Now()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Timestamp = now.Format(TimestampLayout)
	if e.ActionsTaken == nil {
		e.ActionsTaken = map[string]any{}
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: %w", rberrors.ErrAuditWrite, err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	day := now.Format(DayLayout)
	if l.writer == nil || l.day != day {
		if l.writer != nil {
			_ = l.writer.Close()
		}
		l.writer = &lumberjack.Logger{
			Filename:   filepath.Join(l.dir, LogFileName(day)),
			MaxSize:    100,
			MaxBackups: 3,
			Compress:   false,
		}
		l.day = day
	}

	if _, err := l.writer.Write(line); err != nil {
		l.logger.Warn().Err(err).Str("issue_key", e.IssueKey).Msg("failed to write processing log")
		return fmt.Errorf("%w: %w", rberrors.ErrAuditWrite, err)
	}
	return nil
}

// NoMatch records a ticket that no rule matched. It is not a failure.
func (l *ProcessingLog) NoMatch(issueKey string, dryRun bool) error {
	return l.Record(Entry{
		IssueKey:     issueKey,
		Success:      true,
		DryRun:       dryRun,
		ActionsTaken: map[string]any{ActionKey: ActionNoMatch},
	})
}

// Close closes the current file.
func (l *ProcessingLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer == nil {
		return nil
	}
	err := l.writer.Close()
	l.writer = nil
	return err
}
