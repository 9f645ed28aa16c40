package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig bounds retries around a TextGenerator.
type RetryConfig struct {
	MaxAttempts int           // total attempts including the first; default 3
	BaseDelay   time.Duration // delay before the first retry; default 500ms
	MaxDelay    time.Duration // cap on a single delay; default 8s
	Logger      *slog.Logger
}

type retryGenerator struct {
	next TextGenerator
	cfg  RetryConfig
}

// WithRetry retries failed generations with exponential backoff. Context
// cancellation, an open circuit and non-retryable provider responses
// (4xx other than 429) end the loop immediately.
func WithRetry(next TextGenerator, cfg RetryConfig) TextGenerator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 8 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &retryGenerator{next: next, cfg: cfg}
}

func (r *retryGenerator) Generate(ctx context.Context, req Request) (string, error) {
	var lastErr error
	delay := r.cfg.BaseDelay

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		out, err := r.next.Generate(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !retryable(err) || attempt == r.cfg.MaxAttempts {
			break
		}

		r.cfg.Logger.Warn("llm generation failed, retrying",
			"model", r.next.GetModel(), "attempt", attempt, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > r.cfg.MaxDelay {
			delay = r.cfg.MaxDelay
		}
	}
	return "", fmt.Errorf("generation failed after retries: %w", lastErr)
}

func (r *retryGenerator) GetModel() string {
	return r.next.GetModel()
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}
