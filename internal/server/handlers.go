package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/scrypster/cyberrag/internal/experiment"
	"github.com/scrypster/cyberrag/internal/rag"
	"github.com/scrypster/cyberrag/internal/report"
	"github.com/scrypster/cyberrag/internal/storage"
	"github.com/scrypster/cyberrag/pkg/types"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// QueryRequest is the body of POST /api/retrieve and POST /api/query.
type QueryRequest struct {
	Query  string `json:"query"`
	TopK   int    `json:"top_k,omitempty"`
	Method string `json:"method,omitempty"` // plain or graph (default graph)
}

// RetrieveResponse is returned by POST /api/retrieve.
type RetrieveResponse struct {
	Method    string                  `json:"method"`
	Query     string                  `json:"query"`
	Documents []types.RetrievalResult `json:"documents"`
	KGContext *types.ContextBundle    `json:"kg_context,omitempty"`
}

// ExtractRequest is the body of POST /api/extract.
type ExtractRequest struct {
	Text string `json:"text"`
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Headers are already sent; an encode failure can only be dropped.
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	resp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}
	if err != nil {
		resp.Details = map[string]any{"error": err.Error()}
	}
	respondJSON(w, statusCode, resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

func (s *Server) handleGraphStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.current().graph.Graph().Statistics())
}

func (s *Server) handleGraphExport(w http.ResponseWriter, r *http.Request) {
	kg := s.current().graph.Graph()
	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", "json":
		respondJSON(w, http.StatusOK, kg.Export())
	case "yaml", "yml":
		w.Header().Set("Content-Type", "application/yaml")
		if err := kg.ExportYAML(w); err != nil {
			s.logger.Error("graph yaml export failed", "error", err)
		}
	default:
		respondError(w, http.StatusBadRequest, "unsupported export format: "+format, nil)
	}
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	kg := s.current().graph.Graph()
	entityType := r.URL.Query().Get("type")
	if entityType == "" {
		respondJSON(w, http.StatusOK, map[string]any{"entities": kg.Names()})
		return
	}
	t := types.EntityType(strings.ToLower(entityType))
	if !types.IsValidEntityType(t) {
		respondError(w, http.StatusBadRequest, "unknown entity type: "+entityType, nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"type": t, "entities": kg.EntitiesOfType(t)})
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	ctx, ok := s.current().graph.Graph().EntityContext(name)
	if !ok {
		respondError(w, http.StatusNotFound, "entity not found: "+name, nil)
		return
	}
	respondJSON(w, http.StatusOK, ctx)
}

func (s *Server) handleMitigations(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	kg := s.current().graph.Graph()
	if _, ok := kg.Entity(name); !ok {
		respondError(w, http.StatusNotFound, "entity not found: "+name, nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"entity":      name,
		"mitigations": kg.MitigationPath(name),
	})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"entities": s.current().graph.Extract(req.Text)})
}

// engineFor maps a method name to an engine. Both report keys and the short
// names are accepted.
func (s *Server) engineFor(method string) (rag.Engine, bool) {
	switch strings.ToLower(method) {
	case "", "graph", experiment.KeyGraph:
		return s.current().graph, true
	case "plain", experiment.KeyPlain:
		return s.current().plain, true
	default:
		return nil, false
	}
}

func (s *Server) parseQuery(w http.ResponseWriter, r *http.Request) (QueryRequest, rag.Engine, bool) {
	var req QueryRequest
	if !decodeJSON(w, r, &req) {
		return req, nil, false
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, "query is required", nil)
		return req, nil, false
	}
	if req.TopK < 0 {
		respondError(w, http.StatusBadRequest, "top_k must not be negative", nil)
		return req, nil, false
	}
	eng, ok := s.engineFor(req.Method)
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown method: "+req.Method, nil)
		return req, nil, false
	}
	return req, eng, true
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	req, eng, ok := s.parseQuery(w, r)
	if !ok {
		return
	}
	docs, err := eng.Retrieve(r.Context(), req.Query, req.TopK)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "retrieval failed", err)
		return
	}
	resp := RetrieveResponse{Method: eng.Name(), Query: req.Query, Documents: docs}
	if g, ok := eng.(*rag.GraphEngine); ok {
		resp.KGContext = g.Expand(r.Context(), req.Query, docs)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, eng, ok := s.parseQuery(w, r)
	if !ok {
		return
	}
	resp, err := eng.Generate(r.Context(), s.deps.Generator, req.Query, req.TopK)
	if err != nil {
		if errors.Is(err, rag.ErrGeneration) {
			respondError(w, http.StatusBadGateway, "response generation failed", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "query failed", err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.deps.Store == nil {
		respondError(w, http.StatusServiceUnavailable, "run history is disabled", nil)
		return false
	}
	return true
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid limit", err)
			return
		}
		limit = n
	}
	runs, err := s.deps.Store.ListRuns(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list runs", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	exp, err := report.ExporterFor(r.URL.Query().Get("format"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unsupported report format", err)
		return
	}
	rep, err := s.deps.Store.GetRun(r.Context(), r.PathValue("id"))
	if !s.storeOK(w, err) {
		return
	}
	body, err := exp.Export(rep)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to render report", err)
		return
	}
	w.Header().Set("Content-Type", exp.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleRunQueries(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	rows, err := s.deps.Store.ListQueries(r.Context(), r.PathValue("id"))
	if !s.storeOK(w, err) {
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"queries": rows})
}

func (s *Server) storeOK(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, "run not found", nil)
	case errors.Is(err, storage.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "invalid run id", err)
	default:
		respondError(w, http.StatusInternalServerError, "storage error", err)
	}
	return false
}

// handleStartRun starts an experiment in the background. Progress is pushed
// to websocket clients and the report is saved when a store is configured.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	if err := s.baseCtx.Err(); err != nil {
		respondError(w, http.StatusServiceUnavailable, "server is shutting down", nil)
		return
	}

	gen := s.deps.Generator
	if s.demo {
		gen = nil
	}
	ds := s.current().dataset
	runner, err := experiment.NewRunner(ds, gen, s.deps.Encoder, s.deps.Run,
		experiment.WithLogger(s.logger),
		experiment.WithTracer(s.tracer),
		experiment.WithGraph(s.current().graph.Graph()),
		experiment.WithProgress(func(e experiment.Event) { s.hub.Broadcast(MessageProgress, e) }),
	)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create runner", err)
		return
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		s.execute(s.baseCtx, runner)
	}()

	respondJSON(w, http.StatusAccepted, map[string]any{
		"status":  "started",
		"demo":    runner.Demo(),
		"queries": len(ds.Queries),
	})
}

func (s *Server) execute(ctx context.Context, runner *experiment.Runner) {
	s.hub.Broadcast(MessageRunStarted, map[string]any{"demo": runner.Demo()})

	rep, err := runner.Run(ctx)
	if err != nil {
		s.logger.Error("background run failed", "error", err)
		s.hub.Broadcast(MessageRunFailed, map[string]any{"error": err.Error()})
		return
	}
	if s.deps.Store != nil {
		if err := s.deps.Store.SaveRun(ctx, rep); err != nil {
			s.logger.Error("failed to save run", "run_id", rep.RunID, "error", err)
		}
	}
	s.hub.Broadcast(MessageRunFinished, map[string]any{
		"run_id":  rep.RunID,
		"winners": rep.Comparison.Winners,
		"similarity": map[string]float64{
			experiment.KeyPlain: rep.Methods[experiment.KeyPlain].Evaluation.Aggregated.AvgSemanticSimilarity,
			experiment.KeyGraph: rep.Methods[experiment.KeyGraph].Evaluation.Aggregated.AvgSemanticSimilarity,
		},
	})
}
