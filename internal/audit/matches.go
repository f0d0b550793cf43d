package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mrz1836/rackbrain/internal/clock"
	"github.com/mrz1836/rackbrain/internal/constants"
	rberrors "github.com/mrz1836/rackbrain/internal/errors"
	"github.com/mrz1836/rackbrain/internal/flock"
)

// MatchHistoryFile is the default match history file name.
const MatchHistoryFile = "rackbrain_rule_matches.txt"

const lockTimeout = 5 * time.Second

var (
	sectionRe = regexp.MustCompile(`^===\s*(.+?)\s*===\s*$`)
	entryRe   = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\s+(\S+)\s*$`)

	matchHistoryHeader = []string{
		"# RackBrain rule match history",
		"# Sections are grouped by rule_id; entries are 'YYYY-MM-DD TICKETKEY'.",
		"",
	}
)

// MatchHistory keeps, per rule, which tickets it matched:
//
//	=== rule_id ===
//	2025-12-20 MFGS-1
//
// A ticket is listed at most once per rule. Writers in other processes are
// excluded with a file lock.
type MatchHistory struct {
	path           string
	includeDryRuns bool
	clock          clock.Clock

	mu sync.Mutex
}

// NewMatchHistory returns a MatchHistory writing <dir>/rackbrain_rule_matches.txt
// and writes the header when the file is new.
func NewMatchHistory(dir string, includeDryRuns bool, clk clock.Clock) (*MatchHistory, error) {
	if err := os.MkdirAll(dir, constants.DirPerm); err != nil {
		return nil, rberrors.Wrapf(err, "failed to create audit directory %s", dir)
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	h := &MatchHistory{
		path:           filepath.Join(dir, MatchHistoryFile),
		includeDryRuns: includeDryRuns,
		clock:          clk,
	}
	err := h.update(context.Background(), func(lines []string) ([]string, bool) {
		return lines, slices.Equal(lines, matchHistoryHeader)
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Path returns the history file path.
func (h *MatchHistory) Path() string { return h.path }

// Record adds issueKey under ruleID's section. Dry runs are ignored unless
// configured otherwise.
func (h *MatchHistory) Record(ctx context.Context, ruleID, issueKey string, dryRun bool) error {
	if ruleID == "" || issueKey == "" || (dryRun && !h.includeDryRuns) {
		return nil
	}
	entry := h.clock.Now().Format(DayLayout) + " " + issueKey
	return h.update(ctx, func(lines []string) ([]string, bool) {
		return insertMatch(lines, "=== "+ruleID+" ===", issueKey, entry)
	})
}

// insertMatch returns lines with entry added to the section header,
// creating the section at the end when missing. changed is false when the
// ticket is already listed.
func insertMatch(lines []string, header, issueKey, entry string) ([]string, bool) {
	start := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == header {
			start = i
			break
		}
	}

	if start < 0 {
		if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) != "" {
			lines = append(lines, "")
		}
		return append(lines, header, entry, ""), true
	}

	end := len(lines)
	for j := start + 1; j < len(lines); j++ {
		if sectionRe.MatchString(strings.TrimSpace(lines[j])) {
			end = j
			break
		}
	}
	for _, line := range lines[start+1 : end] {
		if m := entryRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil && m[2] == issueKey {
			return lines, false
		}
	}

	at := end
	for at > start+1 && strings.TrimSpace(lines[at-1]) == "" {
		at--
	}
	lines = append(lines[:at], append([]string{entry}, lines[at:]...)...)
	if at == end && (end+1 == len(lines) || strings.TrimSpace(lines[end+1]) != "") {
		lines = append(lines[:end+1], append([]string{""}, lines[end+1:]...)...)
	}
	return lines, true
}

// update rewrites the file under both the in-process mutex and the file
// lock. An empty file starts from the header.
func (h *MatchHistory) update(ctx context.Context, edit func([]string) ([]string, bool)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.OpenFile(h.path, os.O_RDWR|os.O_CREATE, constants.FilePerm) //nolint:gosec // path is built from the configured audit dir
	if err != nil {
		return fmt.Errorf("%w: %w", rberrors.ErrAuditWrite, err)
	}
	defer func() { _ = f.Close() }()

	if err := lockFile(ctx, f); err != nil {
		return err
	}
	defer func() { _ = flock.Unlock(f.Fd()) }()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("%w: %w", rberrors.ErrAuditWrite, err)
	}

	lines := splitHistory(string(data))
	if len(lines) == 0 {
		lines = append([]string(nil), matchHistoryHeader...)
	}
	lines, changed := edit(lines)
	if !changed {
		return nil
	}

	out := strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n"
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("%w: %w", rberrors.ErrAuditWrite, err)
	}
	if _, err := f.WriteAt([]byte(out), 0); err != nil {
		return fmt.Errorf("%w: %w", rberrors.ErrAuditWrite, err)
	}
	return nil
}

func splitHistory(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// lockFile takes the cross-process lock on the history file.
func lockFile(ctx context.Context, f *os.File) error {
	if err := flock.Acquire(ctx, f, lockTimeout); err != nil {
		return fmt.Errorf("%w: %w", rberrors.ErrLockHeld, err)
	}
	return nil
}
