package rag

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/scrypster/cyberrag/internal/embedding"
	"github.com/scrypster/cyberrag/internal/graph"
	"github.com/scrypster/cyberrag/internal/llm"
	"github.com/scrypster/cyberrag/pkg/types"
)

// GraphEngine augments retrieved documents with knowledge graph context.
// Each engine owns its graph.
type GraphEngine struct {
	base
	kg       *graph.KnowledgeGraph
	expander *Expander
}

// NewGraphEngine creates a graph engine over a private copy of kg (the seed
// catalogue when nil). Later changes to kg do not reach the engine.
func NewGraphEngine(enc embedding.Encoder, kg *graph.KnowledgeGraph, cfg Config, opts ...Option) (*GraphEngine, error) {
	b, err := newBase(enc, cfg, opts)
	if err != nil {
		return nil, err
	}
	if kg == nil {
		kg = graph.New()
	} else {
		kg = kg.Clone()
	}
	return &GraphEngine{base: b, kg: kg, expander: NewExpander(kg)}, nil
}

func (e *GraphEngine) Name() string { return MethodGraph }

// Graph returns the engine's knowledge graph.
func (e *GraphEngine) Graph() *graph.KnowledgeGraph { return e.kg }

// Extract returns the graph entities named in text.
func (e *GraphEngine) Extract(text string) []string {
	return e.expander.Extractor().Extract(text)
}

func (e *GraphEngine) AddDocuments(ctx context.Context, texts []string) error {
	return e.addDocuments(ctx, MethodGraph, texts)
}

func (e *GraphEngine) Retrieve(ctx context.Context, query string, topK int) ([]types.RetrievalResult, error) {
	return e.retrieve(ctx, MethodGraph, query, topK)
}

// Expand builds the knowledge graph context bundle for query and docs.
func (e *GraphEngine) Expand(ctx context.Context, query string, docs []types.RetrievalResult) *types.ContextBundle {
	_, span := e.tracer.Start(ctx, "rag.Expand")
	defer span.End()

	bundle := e.expander.Expand(query, docs)
	span.SetAttributes(
		attribute.Int("rag.entities", len(bundle.IdentifiedEntities)),
		attribute.Int("rag.mitigations", len(bundle.Mitigations)),
	)
	e.logger.Debug("query expanded",
		"entities", bundle.IdentifiedEntities,
		"mitigations", len(bundle.Mitigations),
		"vulnerabilities", len(bundle.Vulnerabilities))
	return bundle
}

func (e *GraphEngine) Generate(ctx context.Context, gen llm.TextGenerator, query string, topK int) (*Response, error) {
	docs, err := e.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	bundle := e.Expand(ctx, query, docs)

	resp := &Response{
		Query:         query,
		Retrieved:     docs,
		KGContext:     bundle,
		NumRetrieved:  len(docs),
		NumKGEntities: len(bundle.IdentifiedEntities),
		Method:        MethodGraph,
	}
	return e.complete(ctx, gen, GraphSystemMessage, GraphPrompt(query, docs, bundle), resp)
}

func (e *GraphEngine) Statistics() Statistics {
	s := e.statistics()
	kg := e.kg.Statistics()
	s.KG = &kg
	return s
}

var _ Engine = (*GraphEngine)(nil)
