// Package experiment runs both retrieval methods over a dataset, scores the
// answers and compares the methods.
package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/scrypster/cyberrag/internal/embedding"
	"github.com/scrypster/cyberrag/internal/evaluation"
	"github.com/scrypster/cyberrag/internal/graph"
	"github.com/scrypster/cyberrag/internal/llm"
	"github.com/scrypster/cyberrag/internal/rag"
	"github.com/scrypster/cyberrag/pkg/types"
)

// Report keys for the two methods.
const (
	KeyPlain = "traditional_rag"
	KeyGraph = "agentic_graph_rag"
)

// DefaultTopK is the number of documents retrieved per query.
const DefaultTopK = 3

// Demo answer prefixes used when no generator is configured.
const (
	demoPlainAnswer = "[Demo Response] Based on retrieved documents: "
	demoGraphAnswer = "[Demo Response] Based on documents and KG: "
)

// Config controls a run.
type Config struct {
	Provider string
	Model    string
	// TopK documents per query (DefaultTopK when <= 0).
	TopK int
	// Workers bounds concurrent queries per method; <= 1 is sequential.
	Workers int
	// RAG configures both engines. Model is overridden by Config.Model when set.
	RAG rag.Config
}

// Event reports progress after each answered query.
type Event struct {
	RunID         string        `json:"run_id"`
	Method        string        `json:"method"`
	Index         int           `json:"index"` // 1-based
	Total         int           `json:"total"`
	Query         string        `json:"query"`
	Elapsed       time.Duration `json:"elapsed"`
	NumRetrieved  int           `json:"num_retrieved"`
	NumKGEntities int           `json:"num_kg_entities"`
}

// MethodResult holds one method's answers and their evaluation.
type MethodResult struct {
	Method     string                    `json:"method"`
	Evaluation *evaluation.BatchResult   `json:"evaluation"`
	AvgTime    float64                   `json:"avg_time"`
	Responses  []string                  `json:"responses"`
	Retrieved  [][]types.RetrievalResult `json:"retrieved_docs"`
	Times      []float64                 `json:"times"`

	// Graph method only.
	KGEntities    []int    `json:"kg_entities,omitempty"`
	AvgKGEntities *float64 `json:"avg_kg_entities,omitempty"`
}

// Report is the outcome of a run.
type Report struct {
	RunID      string                   `json:"run_id"`
	Timestamp  time.Time                `json:"timestamp"`
	Provider   string                   `json:"llm_provider"`
	Model      string                   `json:"model"`
	Demo       bool                     `json:"demo"`
	Dataset    string                   `json:"dataset"`
	Queries    []string                 `json:"queries"`
	Methods    map[string]*MethodResult `json:"methods"`
	Comparison evaluation.Comparison    `json:"comparison"`
	KGStats    *types.GraphStatistics   `json:"kg_statistics,omitempty"`

	// QueryEmbeddings are the query vectors in query order. Not serialized.
	QueryEmbeddings [][]float32 `json:"-"`
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithTracer sets the tracer for the runner and its engines.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

// WithProgress registers a callback invoked after each query. Calls are
// serialized.
func WithProgress(fn func(Event)) Option {
	return func(r *Runner) { r.progress = fn }
}

// WithGraph makes the graph engine use kg instead of the seed catalogue.
func WithGraph(kg *graph.KnowledgeGraph) Option {
	return func(r *Runner) { r.kg = kg }
}

// Runner executes experiments. A nil generator runs in demo mode: documents
// are retrieved and expanded but answers are canned.
type Runner struct {
	dataset  *Dataset
	gen      llm.TextGenerator
	enc      embedding.Encoder
	cfg      Config
	kg       *graph.KnowledgeGraph
	logger   *slog.Logger
	tracer   trace.Tracer
	progress func(Event)

	progressMu sync.Mutex
}

// NewRunner creates a runner. enc embeds documents, queries and answers; the
// hashing encoder is used when nil.
func NewRunner(ds *Dataset, gen llm.TextGenerator, enc embedding.Encoder, cfg Config, opts ...Option) (*Runner, error) {
	if ds == nil {
		ds = DefaultDataset()
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	if enc == nil {
		enc = embedding.NewHashingEncoder(0)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.RAG == (rag.Config{}) {
		cfg.RAG = rag.DefaultConfig()
	}
	if cfg.Model != "" {
		cfg.RAG.Model = cfg.Model
	}
	cfg.RAG.TopK = cfg.TopK
	if err := cfg.RAG.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{dataset: ds, gen: gen, enc: enc, cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	if r.tracer == nil {
		r.tracer = noop.NewTracerProvider().Tracer("cyberrag/experiment")
	}
	return r, nil
}

// Demo reports whether the runner has no generator.
func (r *Runner) Demo() bool { return r.gen == nil }

// Run answers every query with both methods and compares them.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	rep := &Report{
		RunID:     uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Provider:  r.cfg.Provider,
		Model:     r.cfg.RAG.Model,
		Demo:      r.Demo(),
		Dataset:   r.dataset.Name,
		Queries:   r.dataset.QueryTexts(),
		Methods:   make(map[string]*MethodResult, 2),
	}

	ctx, span := r.tracer.Start(ctx, "experiment.Run", trace.WithAttributes(
		attribute.String("experiment.run_id", rep.RunID),
		attribute.String("llm.provider", rep.Provider),
		attribute.String("llm.model", rep.Model),
		attribute.Bool("experiment.demo", rep.Demo),
		attribute.Int("experiment.queries", len(rep.Queries)),
	))
	defer span.End()

	r.logger.Info("experiment started",
		"run_id", rep.RunID,
		"provider", rep.Provider,
		"model", rep.Model,
		"demo", rep.Demo,
		"documents", len(r.dataset.Documents),
		"queries", len(rep.Queries))

	engOpts := []rag.Option{rag.WithLogger(r.logger), rag.WithTracer(r.tracer)}
	plain, err := rag.NewPlainEngine(r.enc, r.cfg.RAG, engOpts...)
	if err != nil {
		return nil, err
	}
	kg := r.kg
	if kg == nil {
		kg = graph.New()
	}
	augmented, err := rag.NewGraphEngine(r.enc, kg, r.cfg.RAG, engOpts...)
	if err != nil {
		return nil, err
	}

	ev := evaluation.New(r.enc)
	batches := make(map[string]*evaluation.BatchResult, 2)
	for _, m := range []struct {
		key string
		eng rag.Engine
	}{{KeyPlain, plain}, {KeyGraph, augmented}} {
		res, err := r.runMethod(ctx, rep.RunID, ev, m.eng)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("%s: %w", m.eng.Name(), err)
		}
		rep.Methods[m.key] = res
		batches[m.key] = res.Evaluation
	}
	rep.Comparison = evaluation.CompareMethods(batches)
	rep.KGStats = augmented.Statistics().KG

	if vecs, err := r.enc.Encode(ctx, rep.Queries); err == nil {
		rep.QueryEmbeddings = vecs
	} else {
		r.logger.Warn("query embeddings unavailable", "error", err)
	}

	r.logger.Info("experiment finished",
		"run_id", rep.RunID,
		"winner_similarity", rep.Comparison.Winners[evaluation.MetricSemanticSimilarity],
		"winner_time", rep.Comparison.Winners[evaluation.MetricResponseTime])
	return rep, nil
}

// answered is the outcome of one query.
type answered struct {
	answer     string
	docs       []types.RetrievalResult
	kgEntities int
	elapsed    time.Duration
}

// expander is implemented by engines that add graph context.
type expander interface {
	Expand(ctx context.Context, query string, docs []types.RetrievalResult) *types.ContextBundle
}

func (r *Runner) runMethod(ctx context.Context, runID string, ev *evaluation.Evaluator, eng rag.Engine) (*MethodResult, error) {
	ctx, span := r.tracer.Start(ctx, "experiment.Method", trace.WithAttributes(
		attribute.String("rag.method", eng.Name()),
	))
	defer span.End()

	if err := eng.AddDocuments(ctx, r.dataset.Documents); err != nil {
		return nil, fmt.Errorf("index documents: %w", err)
	}
	r.logger.Info("method initialized", "method", eng.Name(), "stats", eng.Statistics())

	queries := r.dataset.Queries
	out := make([]answered, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, q := range queries {
		g.Go(func() error {
			a, err := r.answer(gctx, eng, q.Query)
			if err != nil {
				return fmt.Errorf("query %d: %w", i+1, err)
			}
			out[i] = a
			r.emit(Event{
				RunID:         runID,
				Method:        eng.Name(),
				Index:         i + 1,
				Total:         len(queries),
				Query:         q.Query,
				Elapsed:       a.elapsed,
				NumRetrieved:  len(a.docs),
				NumKGEntities: a.kgEntities,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &MethodResult{
		Method:    eng.Name(),
		Responses: make([]string, len(out)),
		Retrieved: make([][]types.RetrievalResult, len(out)),
		Times:     make([]float64, len(out)),
	}
	_, isGraph := eng.(expander)
	if isGraph {
		res.KGEntities = make([]int, len(out))
	}

	samples := make([]evaluation.Sample, len(out))
	var total float64
	var entities int
	for i, a := range out {
		res.Responses[i] = a.answer
		res.Retrieved[i] = a.docs
		res.Times[i] = a.elapsed.Seconds()
		total += a.elapsed.Seconds()
		if isGraph {
			res.KGEntities[i] = a.kgEntities
			entities += a.kgEntities
		}
		samples[i] = evaluation.Sample{
			Query:       queries[i].Query,
			Response:    a.answer,
			GroundTruth: queries[i].GroundTruth,
			Retrieved:   a.docs,
			Elapsed:     a.elapsed,
		}
	}
	if n := len(out); n > 0 {
		res.AvgTime = total / float64(n)
		if isGraph {
			avg := float64(entities) / float64(n)
			res.AvgKGEntities = &avg
		}
	}

	batch, err := ev.EvaluateBatch(ctx, samples)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	res.Evaluation = batch
	return res, nil
}

func (r *Runner) answer(ctx context.Context, eng rag.Engine, query string) (answered, error) {
	start := time.Now()

	if r.gen != nil {
		resp, err := eng.Generate(ctx, r.gen, query, r.cfg.TopK)
		if err != nil {
			return answered{}, err
		}
		return answered{
			answer:     resp.Answer,
			docs:       resp.Retrieved,
			kgEntities: resp.NumKGEntities,
			elapsed:    time.Since(start),
		}, nil
	}

	docs, err := eng.Retrieve(ctx, query, r.cfg.TopK)
	if err != nil {
		return answered{}, err
	}
	a := answered{answer: demoPlainAnswer + query, docs: docs}
	if x, ok := eng.(expander); ok {
		a.kgEntities = len(x.Expand(ctx, query, docs).IdentifiedEntities)
		a.answer = demoGraphAnswer + query
	}
	a.elapsed = time.Since(start)
	return a, nil
}

func (r *Runner) emit(e Event) {
	r.logger.Debug("query answered",
		"method", e.Method,
		"index", e.Index,
		"total", e.Total,
		"elapsed", e.Elapsed,
		"retrieved", e.NumRetrieved,
		"kg_entities", e.NumKGEntities)
	if r.progress == nil {
		return
	}
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	r.progress(e)
}
