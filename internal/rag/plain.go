package rag

import (
	"context"

	"github.com/scrypster/cyberrag/internal/embedding"
	"github.com/scrypster/cyberrag/internal/llm"
	"github.com/scrypster/cyberrag/pkg/types"
)

// PlainEngine answers from the nearest documents only.
type PlainEngine struct {
	base
}

// NewPlainEngine creates a plain engine embedding with enc.
func NewPlainEngine(enc embedding.Encoder, cfg Config, opts ...Option) (*PlainEngine, error) {
	b, err := newBase(enc, cfg, opts)
	if err != nil {
		return nil, err
	}
	return &PlainEngine{base: b}, nil
}

func (e *PlainEngine) Name() string { return MethodPlain }

func (e *PlainEngine) AddDocuments(ctx context.Context, texts []string) error {
	return e.addDocuments(ctx, MethodPlain, texts)
}

func (e *PlainEngine) Retrieve(ctx context.Context, query string, topK int) ([]types.RetrievalResult, error) {
	return e.retrieve(ctx, MethodPlain, query, topK)
}

func (e *PlainEngine) Generate(ctx context.Context, gen llm.TextGenerator, query string, topK int) (*Response, error) {
	docs, err := e.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Query:        query,
		Retrieved:    docs,
		NumRetrieved: len(docs),
		Method:       MethodPlain,
	}
	return e.complete(ctx, gen, PlainSystemMessage, PlainPrompt(query, docs), resp)
}

func (e *PlainEngine) Statistics() Statistics {
	return e.statistics()
}

var _ Engine = (*PlainEngine)(nil)
