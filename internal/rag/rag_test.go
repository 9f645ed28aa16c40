package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/scrypster/cyberrag/internal/embedding"
	"github.com/scrypster/cyberrag/internal/graph"
	"github.com/scrypster/cyberrag/internal/llm"
	"github.com/scrypster/cyberrag/pkg/types"
)

var threeDocs = []string{
	"Phishing is a social engineering attack where attackers trick users into revealing credentials. Multi-factor authentication reduces the impact.",
	"SQL injection attacks target databases by inserting malicious SQL code. Input validation prevents them.",
	"DDoS attacks overwhelm systems with traffic. Firewalls and traffic filtering help.",
}

// recordingGenerator captures the last request and returns a fixed answer.
type recordingGenerator struct {
	mu     sync.Mutex
	last   llm.Request
	answer string
	err    error
}

func (r *recordingGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = req
	return r.answer, r.err
}

func (r *recordingGenerator) GetModel() string { return "recording" }

func newEngines(t *testing.T, cfg Config, opts ...Option) (*PlainEngine, *GraphEngine) {
	t.Helper()
	enc := embedding.NewHashingEncoder(0)

	plain, err := NewPlainEngine(enc, cfg, opts...)
	require.NoError(t, err)
	graphEngine, err := NewGraphEngine(enc, nil, cfg, opts...)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, plain.AddDocuments(ctx, threeDocs))
	require.NoError(t, graphEngine.AddDocuments(ctx, threeDocs))
	return plain, graphEngine
}

func TestExtractor_Scenario(t *testing.T) {
	ex := NewExtractor(graph.New())
	found := ex.Extract("Phishing attacks require multi-factor authentication")
	assert.Contains(t, found, "Phishing")
	assert.Contains(t, found, "Multi-Factor Authentication")
}

func TestExtractor_NaiveSubstring(t *testing.T) {
	ex := NewExtractor(graph.New())

	// The mitigation name is contained in the vulnerability name.
	assert.Equal(t, []string{"Insufficient Encryption", "Encryption"},
		ex.Extract("insufficient encryption exposes traffic"))

	assert.Equal(t, []string{"DDoS"}, ex.Extract("massive ddos"))
	assert.Empty(t, ex.Extract("nothing relevant here"))
}

func TestExtractor_SeesEntitiesAddedLater(t *testing.T) {
	kg := graph.New()
	ex := NewExtractor(kg)
	assert.Empty(t, ex.Extract("a cryptojacking campaign"))

	require.NoError(t, kg.AddEntity(types.NewThreat("Cryptojacking", "medium", "")))
	assert.Equal(t, []string{"Cryptojacking"}, ex.Extract("a cryptojacking campaign"))
}

func TestGraphEngine_OwnsItsGraph(t *testing.T) {
	enc := embedding.NewHashingEncoder(0)
	shared := graph.New()

	first, err := NewGraphEngine(enc, shared, DefaultConfig())
	require.NoError(t, err)
	second, err := NewGraphEngine(enc, shared, DefaultConfig())
	require.NoError(t, err)

	assert.NotSame(t, shared, first.Graph())
	assert.NotSame(t, first.Graph(), second.Graph())

	require.NoError(t, first.Graph().AddEntity(types.NewThreat("Cryptojacking", "medium", "")))
	assert.Equal(t, []string{"Cryptojacking"}, first.Extract("cryptojacking"))
	assert.Empty(t, second.Extract("cryptojacking"))
	_, ok := shared.Entity("Cryptojacking")
	assert.False(t, ok)
}

func TestExpand_Scenario(t *testing.T) {
	_, g := newEngines(t, DefaultConfig())
	ctx := context.Background()

	docs, err := g.Retrieve(ctx, "What is phishing?", 2)
	require.NoError(t, err)
	bundle := g.Expand(ctx, "What is phishing?", docs)

	assert.NotEmpty(t, bundle.IdentifiedEntities)
	assert.Contains(t, bundle.IdentifiedEntities, "Phishing")
	assert.NotEmpty(t, bundle.Mitigations)
	assert.Contains(t, bundle.RelatedThreats, "Phishing")
}

func TestExpand_Bundle(t *testing.T) {
	x := NewExpander(graph.New())
	docs := []types.RetrievalResult{
		{Rank: 1, Document: "Ransomware spreads through unpatched software."},
		{Rank: 2, Document: "Malware and ransomware both rely on unpatched software."},
	}
	bundle := x.Expand("How does malware work?", docs)

	// Catalogue order, no duplicates.
	assert.Equal(t, []string{"Malware", "Ransomware", "Unpatched Software"}, bundle.IdentifiedEntities)
	assert.Equal(t, []string{"Malware", "Ransomware"}, bundle.RelatedThreats)
	assert.Equal(t, []string{"Unpatched Software"}, bundle.Vulnerabilities)
	assert.Len(t, bundle.EntityContexts, 3)

	// Patch Management mitigates both threats and is listed once per threat.
	var names []string
	for _, m := range bundle.Mitigations {
		names = append(names, m.Mitigation)
	}
	assert.Equal(t, []string{"Patch Management", "IDS/IPS", "Patch Management"}, names)
}

func TestExpand_NoEntities(t *testing.T) {
	bundle := NewExpander(graph.New()).Expand("hello", nil)
	assert.Empty(t, bundle.IdentifiedEntities)
	assert.NotNil(t, bundle.Mitigations)
	assert.NotNil(t, bundle.EntityContexts)
}

func TestPlainPrompt(t *testing.T) {
	docs := []types.RetrievalResult{
		{Rank: 1, Document: "Doc one."},
		{Rank: 2, Document: "Doc two."},
	}
	want := "Based on the following context, answer the question.\n\n" +
		"Context:\n[Document 1]: Doc one.\n\n[Document 2]: Doc two.\n\n" +
		"Question: What is XSS?\n\nAnswer:"
	assert.Equal(t, want, PlainPrompt("What is XSS?", docs))

	assert.Contains(t, PlainPrompt("q", nil), "Context:\nNo relevant information found.\n\n")
}

func TestGraphPrompt(t *testing.T) {
	kg := graph.New()
	docs := []types.RetrievalResult{{Rank: 1, Document: "Phishing steals credentials."}}
	bundle := NewExpander(kg).Expand("What is phishing?", docs)

	want := strings.Join([]string{
		"Based on the following information, answer the question:\n",
		"Retrieved Context:",
		"[Document 1]: Phishing steals credentials.",
		"",
		"Knowledge Graph Context:",
		"- Phishing (threat): Social engineering attack to steal sensitive information",
		"  Related: exploits Weak Authentication, uses Credential Stuffing",
		"",
		"Recommended Mitigations:",
		"- Multi-Factor Authentication (effectiveness: high)",
		"- Security Training (effectiveness: medium)",
		"",
		"Question: What is phishing?\n",
		"Answer (provide a comprehensive response using both retrieved documents and knowledge graph information):",
	}, "\n")
	assert.Equal(t, want, GraphPrompt("What is phishing?", docs, bundle))
}

func TestGraphPrompt_Truncation(t *testing.T) {
	kg := graph.New()
	// Patch Management has four direct relations; three threats bring four mitigations.
	bundle := NewExpander(kg).Expand("patch management for malware, ransomware and zero-day", nil)
	prompt := GraphPrompt("q", nil, bundle)

	assert.Contains(t, prompt, "  Related: mitigates Malware, mitigates Ransomware, mitigates Zero-Day\n")
	assert.NotContains(t, prompt, "addresses Unpatched Software")
	assert.Equal(t, 3, strings.Count(prompt, "(effectiveness: "))
	assert.NotContains(t, prompt, "Retrieved Context:")

	kgIdx := strings.Index(prompt, "Knowledge Graph Context:")
	mitIdx := strings.Index(prompt, "Recommended Mitigations:")
	qIdx := strings.Index(prompt, "Question: q")
	assert.True(t, kgIdx < mitIdx && mitIdx < qIdx)
}

func TestGraphPrompt_NoEntities(t *testing.T) {
	prompt := GraphPrompt("q", nil, types.NewContextBundle())
	assert.Equal(t, "Based on the following information, answer the question:\n\n"+
		"Question: q\n\n"+
		"Answer (provide a comprehensive response using both retrieved documents and knowledge graph information):", prompt)
}

func TestPlainEngine_RetrieveScenario(t *testing.T) {
	plain, _ := newEngines(t, DefaultConfig())
	ctx := context.Background()

	all, err := plain.Retrieve(ctx, "What is phishing?", 3)
	require.NoError(t, err)
	top, err := plain.Retrieve(ctx, "What is phishing?", 2)
	require.NoError(t, err)

	require.Len(t, top, 2)
	for _, r := range all {
		assert.LessOrEqual(t, top[0].Distance, r.Distance)
	}

	// topK <= 0 uses the configured default, capped at the document count.
	def, err := plain.Retrieve(ctx, "What is phishing?", 0)
	require.NoError(t, err)
	assert.Len(t, def, 3)
}

func TestRetrieve_EmptyEngine(t *testing.T) {
	e, err := NewPlainEngine(embedding.NewHashingEncoder(0), DefaultConfig())
	require.NoError(t, err)
	results, err := e.Retrieve(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestPlainEngine_Generate(t *testing.T) {
	plain, _ := newEngines(t, DefaultConfig())
	gen := &recordingGenerator{answer: "Phishing tricks users."}

	resp, err := plain.Generate(context.Background(), gen, "What is phishing?", 2)
	require.NoError(t, err)

	assert.Equal(t, "Phishing tricks users.", resp.Answer)
	assert.Equal(t, MethodPlain, resp.Method)
	assert.Equal(t, 2, resp.NumRetrieved)
	assert.Nil(t, resp.KGContext)

	require.Len(t, gen.last.Messages, 2)
	assert.Equal(t, PlainSystemMessage, gen.last.Messages[0].Content)
	assert.Equal(t, PlainPrompt("What is phishing?", resp.Retrieved), gen.last.Messages[1].Content)
	assert.Equal(t, "gpt-3.5-turbo", gen.last.Model)
	assert.Equal(t, 0.7, gen.last.Temperature)
	assert.Equal(t, 500, gen.last.MaxTokens)
}

func TestGraphEngine_Generate(t *testing.T) {
	_, g := newEngines(t, DefaultConfig())
	gen := &recordingGenerator{answer: "Use MFA."}

	resp, err := g.Generate(context.Background(), gen, "What is phishing?", 2)
	require.NoError(t, err)

	assert.Equal(t, MethodGraph, resp.Method)
	require.NotNil(t, resp.KGContext)
	assert.Equal(t, len(resp.KGContext.IdentifiedEntities), resp.NumKGEntities)
	assert.Equal(t, GraphSystemMessage, gen.last.Messages[0].Content)
	assert.Equal(t, GraphPrompt("What is phishing?", resp.Retrieved, resp.KGContext), gen.last.Messages[1].Content)
}

func TestGenerate_DegradePolicy(t *testing.T) {
	plain, g := newEngines(t, DefaultConfig())
	gen := &recordingGenerator{err: errors.New("rate limited")}

	for _, e := range []Engine{plain, g} {
		resp, err := e.Generate(context.Background(), gen, "What is phishing?", 2)
		require.NoError(t, err, e.Name())
		assert.Equal(t, "Error generating response: rate limited", resp.Answer)
		assert.Len(t, resp.Retrieved, 2)
	}
}

func TestGenerate_PropagatePolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailurePolicy = PolicyPropagate
	_, g := newEngines(t, cfg)
	boom := errors.New("provider down")

	resp, err := g.Generate(context.Background(), &recordingGenerator{err: boom}, "What is phishing?", 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, boom)

	require.NotNil(t, resp)
	assert.Contains(t, resp.Answer, "provider down")
	assert.Len(t, resp.Retrieved, 2)
	assert.Contains(t, resp.KGContext.IdentifiedEntities, "Phishing")
}

func TestGenerate_NoGenerator(t *testing.T) {
	plain, _ := newEngines(t, DefaultConfig())
	_, err := plain.Generate(context.Background(), nil, "q", 1)
	assert.ErrorIs(t, err, ErrNoGenerator)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.TopK = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.FailurePolicy = "ignore"
	assert.Error(t, bad.Validate())

	_, err := NewPlainEngine(embedding.NewHashingEncoder(0), bad)
	assert.Error(t, err)
}

func TestStatistics(t *testing.T) {
	plain, g := newEngines(t, DefaultConfig())

	ps := plain.Statistics()
	assert.Equal(t, 3, ps.NumDocuments)
	assert.Equal(t, 384, ps.EmbeddingDimension)
	assert.Nil(t, ps.KG)

	gs := g.Statistics()
	require.NotNil(t, gs.KG)
	assert.Equal(t, 24, gs.KG.NumNodes)
}

func TestGenerate_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	_, g := newEngines(t, DefaultConfig(), WithTracer(tp.Tracer("test")))

	_, err := g.Generate(context.Background(), &recordingGenerator{answer: "ok"}, "What is phishing?", 2)
	require.NoError(t, err)

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "rag.AddDocuments")
	assert.Contains(t, names, "rag.Retrieve")
	assert.Contains(t, names, "rag.Expand")
	assert.Contains(t, names, "rag.Generate")
}
