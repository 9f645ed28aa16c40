package rag

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/scrypster/cyberrag/internal/embedding"
	"github.com/scrypster/cyberrag/internal/llm"
	"github.com/scrypster/cyberrag/internal/vectorindex"
	"github.com/scrypster/cyberrag/pkg/types"
)

// Method names reported in responses.
const (
	MethodPlain = "Traditional RAG"
	MethodGraph = "Agentic Graph RAG"
)

// Engine is a retrieval-augmented question answering pipeline.
type Engine interface {
	// Name returns the method name reported in responses.
	Name() string

	// AddDocuments indexes texts. Must not run concurrently with Retrieve on
	// the same engine; the index lock enforces this.
	AddDocuments(ctx context.Context, texts []string) error

	// Retrieve returns the topK nearest documents (Config.TopK when topK <= 0).
	Retrieve(ctx context.Context, query string, topK int) ([]types.RetrievalResult, error)

	// Generate retrieves, prompts gen and packages the answer.
	Generate(ctx context.Context, gen llm.TextGenerator, query string, topK int) (*Response, error)

	Statistics() Statistics
}

// Response is a packaged answer with everything that went into it.
type Response struct {
	Query         string                  `json:"query"`
	Answer        string                  `json:"answer"`
	Retrieved     []types.RetrievalResult `json:"retrieved_documents"`
	KGContext     *types.ContextBundle    `json:"kg_context,omitempty"`
	NumRetrieved  int                     `json:"num_retrieved"`
	NumKGEntities int                     `json:"num_kg_entities"`
	Method        string                  `json:"method"`
	Model         string                  `json:"model,omitempty"`
}

// Statistics describes an engine's index and, for the graph engine, its graph.
type Statistics struct {
	NumDocuments       int                    `json:"num_documents"`
	EmbeddingDimension int                    `json:"embedding_dimension"`
	IndexSize          int                    `json:"index_size"`
	EmbeddingModel     string                 `json:"embedding_model"`
	KG                 *types.GraphStatistics `json:"kg_statistics,omitempty"`
}

// base holds the parts both engines share: the index, config and telemetry.
type base struct {
	cfg    Config
	index  *vectorindex.Index
	logger *slog.Logger
	tracer trace.Tracer
}

func newBase(enc embedding.Encoder, cfg Config, opts []Option) (base, error) {
	if err := cfg.Validate(); err != nil {
		return base{}, fmt.Errorf("invalid rag config: %w", err)
	}
	o := buildOptions(opts)
	return base{
		cfg:    cfg,
		index:  vectorindex.New(enc),
		logger: o.logger,
		tracer: o.tracer,
	}, nil
}

func (b *base) addDocuments(ctx context.Context, method string, texts []string) error {
	ctx, span := b.tracer.Start(ctx, "rag.AddDocuments", trace.WithAttributes(
		attribute.String("rag.method", method),
		attribute.Int("rag.documents", len(texts)),
	))
	defer span.End()

	docs, err := b.index.Add(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	b.logger.Debug("documents indexed", "method", method, "added", len(docs), "total", b.index.Len())
	return nil
}

func (b *base) retrieve(ctx context.Context, method, query string, topK int) ([]types.RetrievalResult, error) {
	if topK <= 0 {
		topK = b.cfg.TopK
	}
	ctx, span := b.tracer.Start(ctx, "rag.Retrieve", trace.WithAttributes(
		attribute.String("rag.method", method),
		attribute.Int("rag.top_k", topK),
	))
	defer span.End()

	results, err := b.index.Search(ctx, query, topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("rag.retrieved", len(results)))
	return results, nil
}

// complete calls gen and applies the failure policy to resp.
func (b *base) complete(ctx context.Context, gen llm.TextGenerator, system, prompt string, resp *Response) (*Response, error) {
	if gen == nil {
		return nil, ErrNoGenerator
	}

	ctx, span := b.tracer.Start(ctx, "rag.Generate", trace.WithAttributes(
		attribute.String("rag.method", resp.Method),
		attribute.String("llm.model", b.cfg.Model),
	))
	defer span.End()

	req := llm.NewRequest(system, prompt, b.cfg.Temperature, b.cfg.MaxTokens)
	req.Model = b.cfg.Model
	resp.Model = b.cfg.Model

	answer, err := gen.Generate(ctx, req)
	if err == nil {
		resp.Answer = answer
		return resp, nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	resp.Answer = fmt.Sprintf("Error generating response: %v", err)
	b.logger.Warn("generation failed", "method", resp.Method, "model", b.cfg.Model, "error", err)

	if b.cfg.FailurePolicy == PolicyPropagate {
		return resp, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	return resp, nil
}

func (b *base) statistics() Statistics {
	s := b.index.Stats()
	return Statistics{
		NumDocuments:       s.NumDocuments,
		EmbeddingDimension: s.Dimension,
		IndexSize:          s.NumDocuments,
		EmbeddingModel:     s.Model,
	}
}
