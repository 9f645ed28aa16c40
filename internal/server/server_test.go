package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/scrypster/cyberrag/internal/config"
	"github.com/scrypster/cyberrag/internal/experiment"
	"github.com/scrypster/cyberrag/internal/graph"
	"github.com/scrypster/cyberrag/internal/llm"
	"github.com/scrypster/cyberrag/internal/rag"
	"github.com/scrypster/cyberrag/internal/storage"
	"github.com/scrypster/cyberrag/internal/storage/sqlite"
	"github.com/scrypster/cyberrag/pkg/types"
)

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{Host: "127.0.0.1", Port: 8080}
}

func newTestServer(t *testing.T, cfg config.ServerConfig, deps Deps) (*Server, http.Handler) {
	t.Helper()
	if deps.Run.TopK == 0 {
		deps.Run.TopK = 3
	}
	srv, err := New(context.Background(), cfg, deps)
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return srv, srv.Handler()
}

func newStore(t *testing.T) storage.RunStore {
	t.Helper()
	store, err := sqlite.NewRunStore(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, llm.Request) (string, error) {
	return "", errors.New("upstream unavailable")
}

func (failingGenerator) GetModel() string { return "failing" }

func TestHealthz(t *testing.T) {
	_, h := newTestServer(t, testServerConfig(), Deps{})
	w := do(t, h, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["demo"])
	assert.Equal(t, float64(15), body["documents"])
}

func TestReload_SwapsCorpus(t *testing.T) {
	srv, h := newTestServer(t, testServerConfig(), Deps{})

	ds := &experiment.Dataset{
		Name:      "small",
		Documents: []string{"Ransomware encrypts files and demands payment.", "Backups restore encrypted data."},
		Queries:   []experiment.QueryCase{{Query: "What is ransomware?"}},
	}
	require.NoError(t, srv.Reload(context.Background(), ds))

	body := decode[map[string]any](t, do(t, h, http.MethodGet, "/healthz", nil))
	assert.Equal(t, float64(2), body["documents"])

	w := do(t, h, http.MethodPost, "/api/retrieve", QueryRequest{Query: "ransomware backups", TopK: 5, Method: "plain"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[RetrieveResponse](t, w).Documents, 2)
}

func TestReload_EachCorpusOwnsItsGraph(t *testing.T) {
	injected := graph.New()
	srv, _ := newTestServer(t, testServerConfig(), Deps{Graph: injected})

	first := srv.current().graph.Graph()
	require.NoError(t, srv.Reload(context.Background(), experiment.DefaultDataset()))
	second := srv.current().graph.Graph()

	assert.NotSame(t, first, second)
	assert.NotSame(t, injected, first)
	assert.NotSame(t, injected, second)
	assert.Equal(t, injected.Statistics(), second.Statistics())
}

func TestSecurityHeaders(t *testing.T) {
	_, h := newTestServer(t, testServerConfig(), Deps{})
	w := do(t, h, http.MethodGet, "/healthz", nil)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
}

func TestGraphStats(t *testing.T) {
	_, h := newTestServer(t, testServerConfig(), Deps{})
	w := do(t, h, http.MethodGet, "/api/graph/stats", nil)

	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[types.GraphStatistics](t, w)
	assert.Equal(t, 24, stats.NumNodes)
	assert.Equal(t, 24, stats.NumEdges)
	assert.Equal(t, 8, stats.NodeTypes[types.EntityTypeThreat])
}

func TestGraphExport(t *testing.T) {
	_, h := newTestServer(t, testServerConfig(), Deps{})

	w := do(t, h, http.MethodGet, "/api/graph/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	export := decode[types.GraphExport](t, w)
	assert.Len(t, export.Nodes, 24)
	assert.Len(t, export.Edges, 24)

	w = do(t, h, http.MethodGet, "/api/graph/export?format=yaml", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "nodes:")

	w = do(t, h, http.MethodGet, "/api/graph/export?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListEntities(t *testing.T) {
	_, h := newTestServer(t, testServerConfig(), Deps{})

	w := do(t, h, http.MethodGet, "/api/graph/entities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[map[string][]string](t, w)
	assert.Len(t, all["entities"], 24)

	w = do(t, h, http.MethodGet, "/api/graph/entities?type=mitigation", nil)
	require.Equal(t, http.StatusOK, w.Code)
	mitigations := decode[map[string]any](t, w)
	assert.Len(t, mitigations["entities"], 7)

	w = do(t, h, http.MethodGet, "/api/graph/entities?type=actor", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetEntity(t *testing.T) {
	_, h := newTestServer(t, testServerConfig(), Deps{})

	w := do(t, h, http.MethodGet, "/api/graph/entities/SQL%20Injection", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ctx := decode[types.EntityContext](t, w)
	assert.Equal(t, "SQL Injection", ctx.Entity)
	assert.Equal(t, "critical", ctx.Attributes["severity"])

	w = do(t, h, http.MethodGet, "/api/graph/entities/Botnet", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "entity not found")
}

func TestMitigations(t *testing.T) {
	_, h := newTestServer(t, testServerConfig(), Deps{})

	w := do(t, h, http.MethodGet, "/api/graph/entities/Phishing/mitigations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Entity      string                 `json:"entity"`
		Mitigations []types.MitigationPath `json:"mitigations"`
	}](t, w)
	assert.Equal(t, "Phishing", body.Entity)
	assert.NotEmpty(t, body.Mitigations)

	w = do(t, h, http.MethodGet, "/api/graph/entities/Botnet/mitigations", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExtract(t *testing.T) {
	_, h := newTestServer(t, testServerConfig(), Deps{})

	w := do(t, h, http.MethodPost, "/api/extract", ExtractRequest{Text: "phishing and ransomware attacks"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string][]string](t, w)
	assert.Equal(t, []string{"Phishing", "Ransomware"}, body["entities"])

	w = do(t, h, http.MethodGet, "/api/extract", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRetrieve(t *testing.T) {
	_, h := newTestServer(t, testServerConfig(), Deps{})

	w := do(t, h, http.MethodPost, "/api/retrieve", QueryRequest{Query: "How do I prevent phishing?"})
	require.Equal(t, http.StatusOK, w.Code)
	graphResp := decode[RetrieveResponse](t, w)
	assert.Equal(t, rag.MethodGraph, graphResp.Method)
	assert.Len(t, graphResp.Documents, 3)
	require.NotNil(t, graphResp.KGContext)
	assert.Contains(t, graphResp.KGContext.IdentifiedEntities, "Phishing")

	w = do(t, h, http.MethodPost, "/api/retrieve", QueryRequest{Query: "How do I prevent phishing?", TopK: 2, Method: "plain"})
	require.Equal(t, http.StatusOK, w.Code)
	plainResp := decode[RetrieveResponse](t, w)
	assert.Equal(t, rag.MethodPlain, plainResp.Method)
	assert.Len(t, plainResp.Documents, 2)
	assert.Nil(t, plainResp.KGContext)
}

func TestQuery_Demo(t *testing.T) {
	_, h := newTestServer(t, testServerConfig(), Deps{})

	w := do(t, h, http.MethodPost, "/api/query", QueryRequest{Query: "What is phishing?", Method: experiment.KeyGraph})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[rag.Response](t, w)
	assert.Equal(t, "[Demo Response] What is phishing?", resp.Answer)
	assert.Equal(t, rag.MethodGraph, resp.Method)
	assert.Equal(t, 3, resp.NumRetrieved)
	assert.GreaterOrEqual(t, resp.NumKGEntities, 1)
}

func TestQuery_BadRequests(t *testing.T) {
	_, h := newTestServer(t, testServerConfig(), Deps{})

	tests := []struct {
		name string
		body any
	}{
		{"empty query", QueryRequest{Query: "  "}},
		{"negative top k", QueryRequest{Query: "q", TopK: -1}},
		{"unknown method", QueryRequest{Query: "q", Method: "hybrid"}},
		{"unknown field", map[string]any{"query": "q", "k": 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/query", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		})
	}
}

func TestQuery_GenerationFailure(t *testing.T) {
	ragCfg := rag.DefaultConfig()

	// Degrade: placeholder answer, 200.
	_, h := newTestServer(t, testServerConfig(), Deps{
		Generator: failingGenerator{},
		Run:       experiment.Config{RAG: ragCfg},
	})
	w := do(t, h, http.MethodPost, "/api/query", QueryRequest{Query: "What is malware?", Method: "plain"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[rag.Response](t, w).Answer, "Error generating response")

	// Propagate: 502.
	ragCfg.FailurePolicy = rag.PolicyPropagate
	_, h = newTestServer(t, testServerConfig(), Deps{
		Generator: failingGenerator{},
		Run:       experiment.Config{RAG: ragCfg},
	})
	w = do(t, h, http.MethodPost, "/api/query", QueryRequest{Query: "What is malware?"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "upstream unavailable")
}

func TestRequireAuth(t *testing.T) {
	cfg := testServerConfig()
	cfg.APIToken = "secret"
	_, h := newTestServer(t, cfg, Deps{})

	w := do(t, h, http.MethodGet, "/api/graph/stats", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/graph/stats", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/graph/stats", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Health checks skip auth.
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", nil).Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testServerConfig()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1
	_, h := newTestServer(t, cfg, Deps{})

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", nil).Code)
	w := do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
}

func TestRateLimit_DisabledWhenZero(t *testing.T) {
	_, h := newTestServer(t, testServerConfig(), Deps{})
	for i := 0; i < 50; i++ {
		require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", nil).Code)
	}
}

func TestRuns_NoStore(t *testing.T) {
	_, h := newTestServer(t, testServerConfig(), Deps{})
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/runs", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/runs/x", nil).Code)
}

func TestRuns_StartListAndGet(t *testing.T) {
	store := newStore(t)
	srv, h := newTestServer(t, testServerConfig(), Deps{Store: store, Run: experiment.Config{Provider: "demo", Workers: 2}})

	received := make(chan []byte, 64)
	srv.Hub().add(&fakeClient{send: received})

	w := do(t, h, http.MethodPost, "/api/runs", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, true, decode[map[string]any](t, w)["demo"])

	var runs []storage.RunSummary
	require.Eventually(t, func() bool {
		w := do(t, h, http.MethodGet, "/api/runs", nil)
		if w.Code != http.StatusOK {
			return false
		}
		var body map[string][]storage.RunSummary
		if json.Unmarshal(w.Body.Bytes(), &body) != nil {
			return false
		}
		runs = body["runs"]
		return len(runs) == 1
	}, 10*time.Second, 20*time.Millisecond)

	id := runs[0].ID
	assert.True(t, runs[0].Demo)
	assert.Equal(t, 10, runs[0].NumQueries)

	w = do(t, h, http.MethodGet, "/api/runs/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	rep := decode[experiment.Report](t, w)
	assert.Equal(t, id, rep.RunID)
	assert.Len(t, rep.Methods[experiment.KeyGraph].Responses, 10)

	w = do(t, h, http.MethodGet, "/api/runs/"+id+"?format=markdown", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/markdown"))

	w = do(t, h, http.MethodGet, "/api/runs/"+id+"?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/api/runs/"+id+"/queries", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]storage.QueryRow](t, w)["queries"], 20)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/runs/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/runs/missing/queries", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/runs?limit=ten", nil).Code)

	// Progress reached the hub: started, 20 progress events, finished.
	seen := map[string]int{}
	require.Eventually(t, func() bool {
		for {
			select {
			case msg := <-received:
				var m Message
				if json.Unmarshal(msg, &m) == nil {
					seen[m.Type]++
				}
			default:
				return seen[MessageRunFinished] == 1
			}
		}
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, seen[MessageRunStarted])
	assert.Equal(t, 20, seen[MessageProgress])
}

type fakeClient struct {
	send chan []byte
}

func (f *fakeClient) sendChannel() chan []byte { return f.send }
func (f *fakeClient) close()                   {}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	received := make(chan []byte, 1)
	hub.add(&fakeClient{send: received})
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(MessageProgress, map[string]string{"query": "hello"})

	select {
	case msg := <-received:
		assert.JSONEq(t, `{"type":"progress","data":{"query":"hello"}}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	hub.add(&fakeClient{send: make(chan []byte)}) // unbuffered, never read
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(MessageProgress, nil)
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	hub := NewHub(nil, "localhost:8080")
	defer hub.Stop()

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://evil.com")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")

	w := httptest.NewRecorder()
	hub.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Forbidden")
}

func TestWebSocket_ReceivesBroadcast(t *testing.T) {
	srv, h := newTestServer(t, testServerConfig(), Deps{})
	ts := httptest.NewServer(h)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck,errcheck // TODO: migrate to github.com/coder/websocket

	require.Eventually(t, func() bool { return srv.Hub().ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	srv.Hub().Broadcast(MessageRunStarted, map[string]bool{"demo": true})

	_, data, err := conn.Read(ctx) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"run_started","data":{"demo":true}}`, string(data))
}

func TestStart_ServesUntilCancelled(t *testing.T) {
	cfg := testServerConfig()
	cfg.Port = 0
	srv, err := New(context.Background(), cfg, Deps{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	addr, err := srv.Start(ctx)
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	assert.Eventually(t, func() bool {
		_, err := http.Get("http://" + addr + "/healthz")
		return err != nil
	}, 5*time.Second, 20*time.Millisecond)
}
