package llm

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejects
// requests to a failing provider.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig holds the trip thresholds of a CircuitBreaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32
	// OpenFor is how long the circuit stays open before probing again.
	OpenFor time.Duration
	// Probes is the number of requests let through while half-open.
	Probes uint32
}

// DefaultBreakerConfig trips after 3 failures, stays open 30s and probes twice.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{MaxFailures: 3, OpenFor: 30 * time.Second, Probes: 2}
}

// BreakerStats are lifetime counters of a CircuitBreaker.
type BreakerStats struct {
	State    string `json:"state"`
	Requests uint64 `json:"requests"`
	Failures uint64 `json:"failures"`
	Rejected uint64 `json:"rejected"`
}

// CircuitBreaker stops calling a provider that keeps failing. Caller
// cancellation is not counted against the provider.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker

	requests atomic.Uint64
	failures atomic.Uint64
	rejected atomic.Uint64
}

// NewCircuitBreaker creates a breaker for the named provider.
func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.Probes,
		Timeout:     cfg.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("llm circuit breaker state change",
				"provider", name, "from", from.String(), "to", to.String())
		},
	})}
}

// Execute runs fn unless ctx is already done or the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cb.requests.Add(1)

	_, err := cb.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		cb.rejected.Add(1)
		return ErrCircuitOpen
	default:
		cb.failures.Add(1)
		return err
	}
}

// State returns "closed", "open" or "half-open".
func (cb *CircuitBreaker) State() string {
	return cb.breaker.State().String()
}

// Stats returns the lifetime counters.
func (cb *CircuitBreaker) Stats() BreakerStats {
	return BreakerStats{
		State:    cb.State(),
		Requests: cb.requests.Load(),
		Failures: cb.failures.Load(),
		Rejected: cb.rejected.Load(),
	}
}
