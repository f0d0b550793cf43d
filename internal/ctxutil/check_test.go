package ctxutil_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/rackbrain/internal/ctxutil"
)

func TestCanceled(t *testing.T) {
	t.Parallel()

	t.Run("returns nil for active context", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, ctxutil.Canceled(context.Background()))
	})

	t.Run("returns error for canceled context", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.ErrorIs(t, ctxutil.Canceled(ctx), context.Canceled)
	})

	t.Run("returns error for deadline exceeded", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithTimeout(context.Background(), 0)
		defer cancel()
		<-ctx.Done()
		require.ErrorIs(t, ctxutil.Canceled(ctx), context.DeadlineExceeded)
	})
}

func TestSleep(t *testing.T) {
	t.Parallel()

	t.Run("completes after duration", func(t *testing.T) {
		t.Parallel()
		start := time.Now()
		require.NoError(t, ctxutil.Sleep(context.Background(), 10*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	})

	t.Run("returns early on cancel", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		start := time.Now()
		require.ErrorIs(t, ctxutil.Sleep(ctx, time.Hour), context.Canceled)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("non-positive duration returns immediately", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, ctxutil.Sleep(context.Background(), 0))
	})
}
