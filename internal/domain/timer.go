package domain

import (
	"strings"
	"time"
)

// TimerState is the lifecycle state of a timer row.
type TimerState string

const (
	// TimerActive means the timer has not yet reached its expiry.
	TimerActive TimerState = "active"

	// TimerExpired means the timer reached its expiry.
	TimerExpired TimerState = "expired"
)

// Timer is a per-(ticket, rule, rearm key) delay record.
type Timer struct {
	IssueKey  string        `json:"issue_key"`
	RuleID    string        `json:"rule_id"`
	RearmKey  string        `json:"rearm_key"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	State     TimerState    `json:"state"`
}

// ExpiresAt returns the instant the timer expires.
func (t *Timer) ExpiresAt() time.Time {
	return t.StartedAt.Add(t.Duration)
}

// Remaining returns the time left before expiry, never negative.
func (t *Timer) Remaining(now time.Time) time.Duration {
	d := t.ExpiresAt().Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Expired reports whether the timer is expired at now.
func (t *Timer) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt())
}

// BuildRearmKey derives the rearm key from a ticket's status and assignee.
// Any change to either value re-arms the ticket's timers.
func BuildRearmKey(status, assignee string) string {
	return "assignee=" + strings.TrimSpace(assignee) + "|status=" + strings.TrimSpace(status)
}
