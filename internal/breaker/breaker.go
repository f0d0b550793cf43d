// Package breaker wraps HTTP adapters in a circuit breaker so a failing
// upstream is skipped quickly instead of stalling every worker.
package breaker

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Defaults used when Settings leaves a field zero.
const (
	DefaultFailureThreshold = 5
	DefaultOpenTimeout      = time.Minute
)

// Settings configures a breaker.
type Settings struct {
	Name string

	// FailureThreshold is the number of consecutive failures that open the
	// breaker.
	FailureThreshold uint32

	// OpenTimeout is how long the breaker stays open before a trial request.
	OpenTimeout time.Duration

	// IsPermanent reports errors that say nothing about upstream health
	// (bad request, not found). They are returned but do not count as
	// failures.
	IsPermanent func(error) bool

	Logger zerolog.Logger
}

// Breaker is a named circuit breaker.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New returns a Breaker.
func New(s Settings) *Breaker {
	threshold := s.FailureThreshold
	if threshold == 0 {
		threshold = DefaultFailureThreshold
	}
	timeout := s.OpenTimeout
	if timeout <= 0 {
		timeout = DefaultOpenTimeout
	}
	logger := s.Logger
	isPermanent := s.IsPermanent

	return &Breaker{cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || (isPermanent != nil && isPermanent(err))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})}
}

// State returns the current breaker state name.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Execute runs fn through the breaker. When the breaker is open fn is not
// called and gobreaker.ErrOpenState is returned.
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	v, _ := out.(T)
	return v, err
}
