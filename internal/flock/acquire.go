package flock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// RetryInterval is how often Acquire retries a held lock.
const RetryInterval = 25 * time.Millisecond

// ErrTimeout is returned when a lock stays held for the whole wait.
var ErrTimeout = errors.New("timed out waiting for file lock")

// Acquire takes an exclusive lock on f, retrying until it succeeds, ctx
// ends or wait elapses. A non-positive wait tries exactly once.
func Acquire(ctx context.Context, f *os.File, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		err := Exclusive(f.Fd())
		if err == nil {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: %s: %w", ErrTimeout, f.Name(), err)
		}
		t := time.NewTimer(RetryInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(ErrTimeout, ctx.Err())
		case <-t.C:
		}
	}
}
