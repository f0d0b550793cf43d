// Package ctxutil provides context utility functions.
package ctxutil

import (
	"context"
	"time"
)

// Canceled checks if the context has been canceled or exceeded its deadline.
// Returns the context error if done (Canceled or DeadlineExceeded), nil otherwise.
// Jira calls and the poll worker loop check it before starting new work.
func Canceled(ctx context.Context) error {
	return ctx.Err()
}

// Sleep waits for d or until ctx is done, whichever comes first.
// It returns ctx.Err() when the context ended the wait.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
