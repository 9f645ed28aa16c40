package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StatusError is a non-200 provider response.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Temporary reports whether the status is worth retrying (rate limited or
// server side).
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// endpoint is one provider's HTTP API behind a circuit breaker. Every call
// gets its own timeout.
type endpoint struct {
	provider string
	baseURL  string
	timeout  time.Duration
	client   *http.Client
	breaker  *CircuitBreaker
	header   func(http.Header)
}

func newEndpoint(provider, baseURL string, timeout time.Duration, header func(http.Header)) *endpoint {
	return &endpoint{
		provider: provider,
		baseURL:  baseURL,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
		breaker:  NewCircuitBreaker(provider, DefaultBreakerConfig()),
		header:   header,
	}
}

// post sends body as JSON to path and decodes the reply into out.
func (e *endpoint) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: failed to marshal request: %w", e.provider, err)
	}
	return e.call(ctx, http.MethodPost, path, payload, out)
}

// get fetches path and decodes the reply into out.
func (e *endpoint) get(ctx context.Context, path string, out any) error {
	return e.call(ctx, http.MethodGet, path, nil, out)
}

func (e *endpoint) call(ctx context.Context, method, path string, payload []byte, out any) error {
	err := e.breaker.Execute(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		return e.roundTrip(ctx, method, path, payload, out)
	})
	if errors.Is(err, ErrCircuitOpen) {
		return fmt.Errorf("%s: %w", e.provider, err)
	}
	return err
}

func (e *endpoint) roundTrip(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", e.provider, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.header != nil {
		e.header(req.Header)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: failed to send request: %w", e.provider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &StatusError{Provider: e.provider, StatusCode: resp.StatusCode, Body: string(data)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", e.provider, err)
	}
	return nil
}

func orDefault[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}
