// Package rag implements the two retrieval-augmented generation engines being
// compared: a plain engine that prompts the model with the nearest documents,
// and a graph engine that also expands the query with knowledge graph context
// (identified entities, their neighbourhoods and recommended mitigations).
package rag

import (
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/scrypster/cyberrag/internal/llm"
)

// FailurePolicy decides what Generate does when the language model fails.
type FailurePolicy string

const (
	// PolicyDegrade turns a generation error into a placeholder answer and
	// returns no error.
	PolicyDegrade FailurePolicy = "degrade"

	// PolicyPropagate returns the partial response together with an error
	// wrapping ErrGeneration.
	PolicyPropagate FailurePolicy = "propagate"
)

var (
	// ErrGeneration wraps language model failures under PolicyPropagate.
	ErrGeneration = errors.New("response generation failed")

	// ErrNoGenerator is returned when Generate is called without a model.
	ErrNoGenerator = errors.New("no text generator configured")
)

// Config holds per-engine generation settings.
type Config struct {
	TopK          int           `yaml:"top_k" json:"top_k"`
	Model         string        `yaml:"model" json:"model"`
	Temperature   float64       `yaml:"temperature" json:"temperature"`
	MaxTokens     int           `yaml:"max_tokens" json:"max_tokens"`
	FailurePolicy FailurePolicy `yaml:"failure_policy" json:"failure_policy"`
}

// DefaultConfig returns top-5 retrieval, gpt-3.5-turbo, temperature 0.7,
// 500 output tokens and the degrade policy.
func DefaultConfig() Config {
	return Config{
		TopK:          5,
		Model:         llm.DefaultModel,
		Temperature:   0.7,
		MaxTokens:     500,
		FailurePolicy: PolicyDegrade,
	}
}

// Validate reports settings that cannot produce a response.
func (c Config) Validate() error {
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0, 2], got %v", c.Temperature)
	}
	switch c.FailurePolicy {
	case PolicyDegrade, PolicyPropagate:
	default:
		return fmt.Errorf("unknown failure policy %q", c.FailurePolicy)
	}
	return nil
}

// Option customises an engine.
type Option func(*options)

type options struct {
	logger *slog.Logger
	tracer trace.Tracer
}

// WithLogger sets the engine logger. Engines log nothing by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracer sets the tracer used for engine spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.tracer == nil {
		o.tracer = noop.NewTracerProvider().Tracer("cyberrag/rag")
	}
	return o
}
