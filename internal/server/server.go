// Package server exposes the knowledge graph, both retrieval engines and the
// run history over HTTP, and streams experiment progress over a websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/scrypster/cyberrag/internal/config"
	"github.com/scrypster/cyberrag/internal/embedding"
	"github.com/scrypster/cyberrag/internal/experiment"
	"github.com/scrypster/cyberrag/internal/graph"
	"github.com/scrypster/cyberrag/internal/llm"
	"github.com/scrypster/cyberrag/internal/rag"
	"github.com/scrypster/cyberrag/internal/storage"
)

// Deps are the collaborators the server is built from. Only Dataset is
// required to be meaningful; zero values fall back to the built-in corpus,
// the hashing encoder, canned demo answers and no run history.
type Deps struct {
	Dataset   *experiment.Dataset
	Encoder   embedding.Encoder
	Generator llm.TextGenerator
	Graph     *graph.KnowledgeGraph
	Store     storage.RunStore
	Run       experiment.Config
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithTracer sets the tracer passed to engines and runs.
func WithTracer(t trace.Tracer) Option {
	return func(s *Server) { s.tracer = t }
}

// corpus is an indexed dataset. It is replaced as a whole on reload.
type corpus struct {
	dataset *experiment.Dataset
	plain   *rag.PlainEngine
	graph   *rag.GraphEngine
}

// Server serves the HTTP API.
type Server struct {
	cfg    config.ServerConfig
	deps   Deps
	demo   bool
	ragCfg rag.Config
	corpus atomic.Pointer[corpus]
	hub    *Hub
	logger *slog.Logger
	tracer trace.Tracer

	runs    sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
}

// New builds both engines, indexes the dataset documents and starts the
// websocket hub. Call Close to stop background work.
func New(ctx context.Context, cfg config.ServerConfig, deps Deps, opts ...Option) (*Server, error) {
	s := &Server{cfg: cfg, deps: deps}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer("cyberrag/server")
	}
	if s.deps.Dataset == nil {
		s.deps.Dataset = experiment.DefaultDataset()
	}
	if s.deps.Encoder == nil {
		s.deps.Encoder = embedding.NewHashingEncoder(0)
	}
	if s.deps.Graph == nil {
		s.deps.Graph = graph.New()
	}
	if s.deps.Generator == nil {
		s.demo = true
		s.deps.Generator = llm.NewDemoGenerator(s.deps.Run.Model)
	}

	ragCfg := s.deps.Run.RAG
	if ragCfg == (rag.Config{}) {
		ragCfg = rag.DefaultConfig()
	}
	if s.deps.Run.TopK > 0 {
		ragCfg.TopK = s.deps.Run.TopK
	}
	if s.deps.Run.Model != "" {
		ragCfg.Model = s.deps.Run.Model
	}

	s.ragCfg = ragCfg
	if err := s.Reload(ctx, s.deps.Dataset); err != nil {
		return nil, err
	}

	port := strconv.Itoa(cfg.Port)
	s.hub = NewHub(s.logger, "localhost:"+port, "127.0.0.1:"+port, net.JoinHostPort(cfg.Host, port))
	go s.hub.Run()

	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	s.stopped = make(chan struct{})
	return s, nil
}

// Reload indexes ds with fresh engines and swaps it in. Requests in flight
// finish against the previous corpus.
func (s *Server) Reload(ctx context.Context, ds *experiment.Dataset) error {
	engOpts := []rag.Option{rag.WithLogger(s.logger), rag.WithTracer(s.tracer)}
	plain, err := rag.NewPlainEngine(s.deps.Encoder, s.ragCfg, engOpts...)
	if err != nil {
		return err
	}
	graphEng, err := rag.NewGraphEngine(s.deps.Encoder, s.deps.Graph, s.ragCfg, engOpts...)
	if err != nil {
		return err
	}
	if err := plain.AddDocuments(ctx, ds.Documents); err != nil {
		return fmt.Errorf("index documents: %w", err)
	}
	if err := graphEng.AddDocuments(ctx, ds.Documents); err != nil {
		return fmt.Errorf("index documents: %w", err)
	}
	s.corpus.Store(&corpus{dataset: ds, plain: plain, graph: graphEng})
	s.logger.Info("corpus indexed", "documents", len(ds.Documents), "queries", len(ds.Queries))
	return nil
}

func (s *Server) current() *corpus { return s.corpus.Load() }

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/graph/stats", s.handleGraphStats)
	api.HandleFunc("GET /api/graph/export", s.handleGraphExport)
	api.HandleFunc("GET /api/graph/entities", s.handleListEntities)
	api.HandleFunc("GET /api/graph/entities/{name}", s.handleGetEntity)
	api.HandleFunc("GET /api/graph/entities/{name}/mitigations", s.handleMitigations)
	api.HandleFunc("POST /api/extract", s.handleExtract)
	api.HandleFunc("POST /api/retrieve", s.handleRetrieve)
	api.HandleFunc("POST /api/query", s.handleQuery)
	api.HandleFunc("GET /api/runs", s.handleListRuns)
	api.HandleFunc("POST /api/runs", s.handleStartRun)
	api.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	api.HandleFunc("GET /api/runs/{id}/queries", s.handleRunQueries)

	mux := http.NewServeMux()
	// Health endpoint: no auth required, used by monitoring.
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"demo":      s.demo,
			"documents": len(s.current().dataset.Documents),
		})
	})
	mux.Handle("/api/", RequireAuth(api, s.cfg.APIToken))
	// Origin validation guards the websocket instead of the token.
	mux.Handle("GET /ws", s.hub)

	handler := RateLimitMiddleware(mux, NewRateLimiter(s.cfg.RateLimit, s.cfg.RateBurst))
	handler = loggingMiddleware(handler, s.logger)
	return securityHeadersMiddleware(handler)
}

// Start listens on the configured address and serves until ctx is done.
// Returns the actual address being listened on (useful with port 0).
func (s *Server) Start(ctx context.Context) (string, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown error", "error", err)
		}
		s.Close()
		close(s.stopped)
	}()

	actual := listener.Addr().String()
	s.logger.Info("server listening", "addr", actual, "demo", s.demo)
	return actual, nil
}

// Done is closed once a server started with Start has shut down.
func (s *Server) Done() <-chan struct{} { return s.stopped }

// Close cancels background runs, waits for them and stops the hub.
func (s *Server) Close() {
	s.cancel()
	s.runs.Wait()
	s.hub.Stop()
}
