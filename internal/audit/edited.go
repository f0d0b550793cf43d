package audit

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mrz1836/rackbrain/internal/constants"
	rberrors "github.com/mrz1836/rackbrain/internal/errors"
)

// EditedStateFile stores the edited-today window in the state directory.
const EditedStateFile = "edited_today_state.json"

// IsEdited reports whether actions changed the ticket: a posted comment,
// or any transition, assignment or reassignment value.
func IsEdited(actions map[string]any) bool {
	if c, ok := actions["commented"].(bool); ok && c {
		return true
	}
	for _, k := range []string{"transitioned_to", "assigned_to", "reassigned_to"} {
		if truthy(actions[k]) {
			return true
		}
	}
	return false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	default:
		return true
	}
}

// EditedSince returns the tickets edited in live mode in the processing
// log for day, with entries before since (a TimestampLayout string)
// ignored. Keys are ordered by their last edit, most recent last.
func EditedSince(dir string, day time.Time, since string) []string {
	entries := readEntries(filepath.Join(dir, LogFileName(day.Format(DayLayout))))

	last := map[string]string{}
	for i := range entries {
		e := &entries[i]
		if e.DryRun || !e.Success || e.IssueKey == "" || !IsEdited(e.ActionsTaken) {
			continue
		}
		if e.Timestamp != "" && since != "" && e.Timestamp < since {
			continue
		}
		if prev, ok := last[e.IssueKey]; !ok || e.Timestamp >= prev {
			last[e.IssueKey] = e.Timestamp
		}
	}

	keys := make([]string, 0, len(last))
	for k := range last {
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		if last[keys[i]] != last[keys[j]] {
			return last[keys[i]] < last[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

// AppendRecent moves key to the end of keys, keeping keys unique.
func AppendRecent(keys []string, key string) []string {
	if key == "" {
		return keys
	}
	out := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	return append(out, key)
}

type editedState struct {
	WindowStart string `json:"window_start_iso"`
	LastSeen    string `json:"last_seen_iso"`
}

// EditedWindowStart returns the start of the current edited-today window
// and records now as the last poll. The window starts at local midnight
// and restarts at now after more than constants.EditedWindowReset without
// a poll.
func EditedWindowStart(stateDir string, now time.Time) (string, error) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Format(TimestampLayout)
	path := filepath.Join(stateDir, EditedStateFile)

	var st editedState
	data, err := os.ReadFile(path) //nolint:gosec // path is built from the configured state dir
	switch {
	case err == nil:
		_ = json.Unmarshal(data, &st)
	case !errors.Is(err, os.ErrNotExist):
		return start, rberrors.Wrap(err, "failed to read edited-today state")
	}

	if st.WindowStart != "" {
		start = st.WindowStart
	}
	if st.LastSeen != "" {
		if last, perr := time.ParseInLocation(TimestampLayout, st.LastSeen, now.Location()); perr == nil &&
			now.Sub(last) > constants.EditedWindowReset {
			start = now.Format(TimestampLayout)
		}
	}

	if err := os.MkdirAll(stateDir, constants.DirPerm); err != nil {
		return start, rberrors.Wrap(err, "failed to create state directory")
	}
	out, _ := json.Marshal(editedState{WindowStart: start, LastSeen: now.Format(TimestampLayout)})
	if err := os.WriteFile(path, out, constants.FilePerm); err != nil {
		return start, rberrors.Wrap(err, "failed to write edited-today state")
	}
	return start, nil
}
