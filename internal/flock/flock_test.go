//go:build unix

package flock_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/rackbrain/internal/flock"
)

func openLockFile(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600) // #nosec G304 -- test temp dir
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestExclusive(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "matches.txt")
	f1 := openLockFile(t, path)
	f2 := openLockFile(t, path)

	require.NoError(t, flock.Exclusive(f1.Fd()))
	require.Error(t, flock.Exclusive(f2.Fd()), "second descriptor must not get the lock")

	require.NoError(t, flock.Unlock(f1.Fd()))
	require.NoError(t, flock.Exclusive(f2.Fd()))
	require.NoError(t, flock.Unlock(f2.Fd()))
}

func TestAcquire_WaitsForRelease(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "matches.txt")
	holder := openLockFile(t, path)
	waiter := openLockFile(t, path)
	require.NoError(t, flock.Exclusive(holder.Fd()))

	go func() {
		time.Sleep(3 * flock.RetryInterval)
		_ = flock.Unlock(holder.Fd())
	}()

	require.NoError(t, flock.Acquire(context.Background(), waiter, 2*time.Second))
	require.NoError(t, flock.Unlock(waiter.Fd()))
}

func TestAcquire_TimesOut(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "matches.txt")
	holder := openLockFile(t, path)
	waiter := openLockFile(t, path)
	require.NoError(t, flock.Exclusive(holder.Fd()))
	defer func() { _ = flock.Unlock(holder.Fd()) }()

	err := flock.Acquire(context.Background(), waiter, 2*flock.RetryInterval)
	require.ErrorIs(t, err, flock.ErrTimeout)
	assert.Contains(t, err.Error(), "matches.txt")
}

func TestAcquire_ContextCanceled(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "matches.txt")
	holder := openLockFile(t, path)
	waiter := openLockFile(t, path)
	require.NoError(t, flock.Exclusive(holder.Fd()))
	defer func() { _ = flock.Unlock(holder.Fd()) }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := flock.Acquire(ctx, waiter, time.Minute)
	require.ErrorIs(t, err, flock.ErrTimeout)
	require.ErrorIs(t, err, context.Canceled)
}
