// Package timer persists per-ticket delay timers in a local sqlite database.
//
// An active timer on a ticket blocks all rule matching for that ticket. When
// a timer expires it is kept with state "expired" so the rule that started
// it does not fire again in a loop. Expired rows are cleared once the
// ticket's rearm key (assignee and status) changes.
package timer

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/mrz1836/rackbrain/internal/clock"
	"github.com/mrz1836/rackbrain/internal/constants"
	"github.com/mrz1836/rackbrain/internal/domain"
	"github.com/mrz1836/rackbrain/internal/errors"
)

// Store is the sqlite-backed timer store. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	clock  clock.Clock
	logger zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the store logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open opens (creating if needed) the timer database at path and applies
// pending migrations.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), constants.DirPerm); err != nil {
		return nil, errors.Wrapf(errors.ErrTimerStore, "create db dir: %v", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrTimerStore, "open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(errors.ErrTimerStore, "ping sqlite: %v", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(errors.ErrTimerStore, "migrate: %v", err)
	}

	s := &Store{db: db, clock: clock.RealClock{}, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) now() time.Time {
	return s.clock.Now()
}

// Start inserts or replaces the timer for (issueKey, ruleID, rearmKey) with
// state active, starting now.
func (s *Store) Start(ctx context.Context, issueKey, ruleID string, d time.Duration, rearmKey string) (domain.Timer, error) {
	t := domain.Timer{
		IssueKey:  issueKey,
		RuleID:    ruleID,
		RearmKey:  rearmKey,
		StartedAt: s.now().Truncate(time.Microsecond),
		Duration:  d.Truncate(time.Second),
		State:     domain.TimerActive,
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO timers(issue_key, rule_id, rearm_key, started_at, duration_seconds, state)
VALUES (?, ?, ?, ?, ?, 'active')
ON CONFLICT(issue_key, rule_id, rearm_key) DO UPDATE SET
	started_at=excluded.started_at,
	duration_seconds=excluded.duration_seconds,
	state='active'
`, issueKey, ruleID, rearmKey, toUnix(t.StartedAt), int64(t.Duration/time.Second))
	if err != nil {
		return domain.Timer{}, errors.Wrapf(errors.ErrTimerStore, "start timer %s/%s: %v", issueKey, ruleID, err)
	}
	s.logger.Debug().
		Str("issue_key", issueKey).
		Str("rule_id", ruleID).
		Dur("duration", t.Duration).
		Msg("timer started")
	return t, nil
}

// ActiveTimer returns the unexpired active timer on issueKey that expires
// soonest, or nil. Active rows found past their expiry are flipped to
// expired.
func (s *Store) ActiveTimer(ctx context.Context, issueKey string) (*domain.Timer, error) {
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrTimerStore, "begin: %v", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	timers, err := queryTimers(ctx, tx, `
SELECT issue_key, rule_id, rearm_key, started_at, duration_seconds, state
FROM timers
WHERE issue_key = ? AND state = 'active'`, issueKey)
	if err != nil {
		return nil, err
	}

	var best *domain.Timer
	for i := range timers {
		t := &timers[i]
		if t.Expired(now) {
			if err := markExpired(ctx, tx, t); err != nil {
				return nil, err
			}
			continue
		}
		if best == nil || t.ExpiresAt().Before(best.ExpiresAt()) {
			best = t
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrapf(errors.ErrTimerStore, "commit: %v", err)
	}
	return best, nil
}

// IsRuleSuppressed reports whether a timer row exists for the exact
// (issueKey, ruleID, rearmKey). Both active and expired rows suppress; an
// overdue active row is flipped to expired on the way.
func (s *Store) IsRuleSuppressed(ctx context.Context, issueKey, ruleID, rearmKey string) (bool, error) {
	timers, err := queryTimers(ctx, s.db, `
SELECT issue_key, rule_id, rearm_key, started_at, duration_seconds, state
FROM timers
WHERE issue_key = ? AND rule_id = ? AND rearm_key = ?`, issueKey, ruleID, rearmKey)
	if err != nil {
		return false, err
	}
	if len(timers) == 0 {
		return false, nil
	}
	t := timers[0]
	if t.State == domain.TimerActive && t.Expired(s.now()) {
		if err := markExpired(ctx, s.db, &t); err != nil {
			return true, err
		}
	}
	return true, nil
}

// CleanupExpired deletes expired rows on issueKey whose rearm key differs
// from the current one.
func (s *Store) CleanupExpired(ctx context.Context, issueKey, rearmKey string) error {
	_, err := s.db.ExecContext(ctx, `
DELETE FROM timers
WHERE issue_key = ? AND state = 'expired' AND rearm_key <> ?`, issueKey, rearmKey)
	if err != nil {
		return errors.Wrapf(errors.ErrTimerStore, "cleanup %s: %v", issueKey, err)
	}
	return nil
}

// ListExpiredRuleIDs returns the sorted distinct rule ids with expired
// timers on issueKey under rearmKey.
func (s *Store) ListExpiredRuleIDs(ctx context.Context, issueKey, rearmKey string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT DISTINCT rule_id
FROM timers
WHERE issue_key = ? AND rearm_key = ? AND state = 'expired'`, issueKey, rearmKey)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrTimerStore, "list expired %s: %v", issueKey, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrapf(errors.ErrTimerStore, "scan rule id: %v", err)
		}
		if id != "" {
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(errors.ErrTimerStore, "iterate rule ids: %v", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// List returns every timer row for issueKey, or all rows when issueKey is
// empty, ordered by issue key and start time.
func (s *Store) List(ctx context.Context, issueKey string) ([]domain.Timer, error) {
	const cols = `SELECT issue_key, rule_id, rearm_key, started_at, duration_seconds, state FROM timers`
	if issueKey == "" {
		return queryTimers(ctx, s.db, cols+` ORDER BY issue_key, started_at`)
	}
	return queryTimers(ctx, s.db, cols+` WHERE issue_key = ? ORDER BY started_at`, issueKey)
}

// Clear deletes every timer row for issueKey and returns the number removed.
func (s *Store) Clear(ctx context.Context, issueKey string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM timers WHERE issue_key = ?`, issueKey)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrTimerStore, "clear %s: %v", issueKey, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrapf(errors.ErrTimerStore, "clear %s: %v", issueKey, err)
	}
	return n, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func queryTimers(ctx context.Context, q querier, query string, args ...any) ([]domain.Timer, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrTimerStore, "query timers: %v", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Timer
	for rows.Next() {
		var (
			t       domain.Timer
			started float64
			secs    int64
			state   string
		)
		if err := rows.Scan(&t.IssueKey, &t.RuleID, &t.RearmKey, &started, &secs, &state); err != nil {
			return nil, errors.Wrapf(errors.ErrTimerStore, "scan timer: %v", err)
		}
		t.StartedAt = fromUnix(started)
		t.Duration = time.Duration(secs) * time.Second
		t.State = domain.TimerState(state)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(errors.ErrTimerStore, "iterate timers: %v", err)
	}
	return out, nil
}

func markExpired(ctx context.Context, q querier, t *domain.Timer) error {
	_, err := q.ExecContext(ctx, `
UPDATE timers SET state = 'expired'
WHERE issue_key = ? AND rule_id = ? AND rearm_key = ?`, t.IssueKey, t.RuleID, t.RearmKey)
	if err != nil {
		return errors.Wrapf(errors.ErrTimerStore, "expire %s/%s: %v", t.IssueKey, t.RuleID, err)
	}
	t.State = domain.TimerExpired
	return nil
}

// started_at is stored as fractional unix seconds. Start truncates to whole
// microseconds, which a float64 holds exactly enough for fromUnix to recover
// the same instant, so a re-read timer never expires later than the one
// Start returned.
func toUnix(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnix(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond))
}
