// Package signal cancels a command context on SIGINT or SIGTERM so the
// poller stops after its current cycle. A second signal forces an exit.
//
// Import rules:
//   - CAN import: std lib only
//   - MUST NOT import: internal packages
package signal

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// ForcedExitCode is the exit status used when a second signal arrives
// while shutdown is already in progress.
const ForcedExitCode = 130

// Handler owns a cancellable context tied to process signals.
type Handler struct {
	ctx         context.Context //nolint:containedctx // handler owns the context lifecycle
	cancel      context.CancelFunc
	interrupted chan struct{}
	done        chan struct{}
	sigChan     chan os.Signal

	onSignal func(os.Signal)
	exit     func(code int)

	mu       sync.Mutex
	received int
	stopOnce sync.Once
}

// Option configures a Handler.
type Option func(*Handler)

// WithNotify registers fn to be called with every received signal.
func WithNotify(fn func(os.Signal)) Option {
	return func(h *Handler) { h.onSignal = fn }
}

// WithExit replaces os.Exit for the forced exit on a second signal.
func WithExit(fn func(code int)) Option {
	return func(h *Handler) { h.exit = fn }
}

// NewHandler starts listening for SIGINT and SIGTERM. Call Stop when done.
func NewHandler(parent context.Context, opts ...Option) *Handler {
	ctx, cancel := context.WithCancel(parent)
	h := &Handler{
		ctx:         ctx,
		cancel:      cancel,
		interrupted: make(chan struct{}),
		done:        make(chan struct{}),
		sigChan:     make(chan os.Signal, 1),
		exit:        os.Exit,
	}
	for _, opt := range opts {
		opt(h)
	}

	signal.Notify(h.sigChan, syscall.SIGINT, syscall.SIGTERM)
	go h.listen()

	return h
}

// Context returns the context canceled by the first signal.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// Interrupted is closed when the first signal arrives.
func (h *Handler) Interrupted() <-chan struct{} {
	return h.interrupted
}

// Stop stops signal delivery and cancels the context. It is idempotent.
func (h *Handler) Stop() {
	h.stopOnce.Do(func() {
		signal.Stop(h.sigChan)
		close(h.done)
		h.cancel()
	})
}

func (h *Handler) handleSignal(sig os.Signal) {
	h.mu.Lock()
	h.received++
	n := h.received
	h.mu.Unlock()

	if h.onSignal != nil {
		h.onSignal(sig)
	}
	if n == 1 {
		h.cancel()
		close(h.interrupted)
		return
	}
	h.exit(ForcedExitCode)
}

// listen runs until Stop. It keeps draining after the first signal so a
// second one can force the exit while the current cycle finishes.
func (h *Handler) listen() {
	for {
		select {
		case <-h.done:
			return
		case sig := <-h.sigChan:
			h.handleSignal(sig)
		}
	}
}
