package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/cyberrag/internal/evaluation"
	"github.com/scrypster/cyberrag/internal/experiment"
	"github.com/scrypster/cyberrag/pkg/types"
)

func sampleReport() *experiment.Report {
	avg := 2.5
	plain := &evaluation.BatchResult{Aggregated: evaluation.Aggregate{
		NumQueries: 2, AvgSemanticSimilarity: 0.5, AvgResponseTime: 1.0,
		AvgRetrievalScore: 0.2, AvgResponseLength: 40, TotalTime: 2,
	}}
	augmented := &evaluation.BatchResult{Aggregated: evaluation.Aggregate{
		NumQueries: 2, AvgSemanticSimilarity: 0.6, AvgResponseTime: 1.5,
		AvgRetrievalScore: 0.2, AvgResponseLength: 60, TotalTime: 3,
	}}
	rep := &experiment.Report{
		RunID:     "2b1c7f0e-8a51-4c55-9d1e-0d1f6c1b7a10",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Provider:  "openai",
		Model:     "gpt-4",
		Dataset:   "cybersecurity",
		Queries:   []string{"What is phishing?", "Is <script> dangerous?"},
		Methods: map[string]*experiment.MethodResult{
			experiment.KeyPlain: {Method: "Traditional RAG", Evaluation: plain, AvgTime: 1.0},
			experiment.KeyGraph: {Method: "Agentic Graph RAG", Evaluation: augmented, AvgTime: 1.5,
				KGEntities: []int{2, 3}, AvgKGEntities: &avg},
		},
		KGStats: &types.GraphStatistics{
			NumNodes: 24, NumEdges: 24, AvgDegree: 2,
			NodeTypes: map[types.EntityType]int{types.EntityTypeThreat: 7, types.EntityTypeMitigation: 8},
		},
	}
	rep.Comparison = evaluation.CompareMethods(map[string]*evaluation.BatchResult{
		experiment.KeyPlain: plain,
		experiment.KeyGraph: augmented,
	})
	return rep
}

func TestSummarize(t *testing.T) {
	s := summarize(sampleReport())
	assert.Equal(t, "Agentic Graph RAG", s.Winners[evaluation.MetricSemanticSimilarity])
	assert.Equal(t, "Traditional RAG", s.Winners[evaluation.MetricResponseTime])
	// Tied retrieval scores go to the first method key by name.
	assert.Equal(t, "Agentic Graph RAG", s.Winners[evaluation.MetricRetrievalScore])
	require.NotNil(t, s.SimilarityChange)
	assert.InDelta(t, 20.0, *s.SimilarityChange, 1e-9)
	require.NotNil(t, s.RetrievalChange)
	assert.InDelta(t, 0.0, *s.RetrievalChange, 1e-9)
	assert.InDelta(t, 0.5, s.TimeOverhead, 1e-12)
	assert.Equal(t, 5, s.TotalKGEntities)
	assert.Equal(t, 2.5, s.AvgKGEntities)
}

func TestSummarize_EmptyReport(t *testing.T) {
	s := summarize(&experiment.Report{})
	assert.Equal(t, "Traditional RAG", s.PlainName)
	assert.Equal(t, "-", s.Winners[evaluation.MetricSemanticSimilarity])
	assert.Nil(t, s.SimilarityChange)
}

func TestMarkdown(t *testing.T) {
	md := string(Markdown(sampleReport()))
	assert.True(t, strings.HasPrefix(md, "# Agentic Graph RAG Experiment Report\n"))
	assert.Contains(t, md, "| **Semantic Similarity** | 0.5000 | 0.6000 | Agentic Graph RAG |")
	assert.Contains(t, md, "| **Response Time (s)** | 1.0000 | 1.5000 | Traditional RAG |")
	assert.Contains(t, md, "| **KG Entities Used** | N/A | 2.5 | - |")
	assert.Contains(t, md, "- **Semantic similarity**: +20.0%")
	assert.Contains(t, md, "- **Time overhead**: +0.50s per query")
	assert.Contains(t, md, "- **Node types**: mitigation: 8, threat: 7")
	assert.Contains(t, md, "improved semantic similarity by +20.0%")
	assert.NotContains(t, md, "Demo mode")
}

func TestMarkdown_Demo(t *testing.T) {
	rep := sampleReport()
	rep.Demo = true
	assert.Contains(t, string(Markdown(rep)), "Demo mode")
}

func TestHTML_EscapesText(t *testing.T) {
	out, err := HTML(sampleReport())
	require.NoError(t, err)
	page := string(out)
	assert.Contains(t, page, "<title>Agentic Graph RAG Experiment Report</title>")
	assert.Contains(t, page, "&lt;script&gt;")
	assert.NotContains(t, page, "<script>")
	assert.Contains(t, page, `class="winner">Agentic Graph RAG</td>`)
	assert.Contains(t, page, "24 nodes, 24 edges, average degree 2.00.")
	assert.Contains(t, page, "20.0%") // html/template escapes the sign
}

func TestTable(t *testing.T) {
	out := Table(sampleReport())
	for _, want := range []string{"Metric", "Traditional RAG", "Agentic Graph RAG", "Semantic Similarity", "0.6000", "2.5"} {
		assert.Contains(t, out, want)
	}
}

func TestSummaryTable(t *testing.T) {
	out := SummaryTable([]experiment.SummaryRow{
		{Provider: "openai", Model: "gpt-4", Method: "Traditional RAG", AvgSemanticSimilarity: 0.71234, AvgResponseTime: 1.5},
	})
	assert.Contains(t, out, "openai/gpt-4")
	assert.Contains(t, out, "0.7123")
}

func TestExporterFor(t *testing.T) {
	for format, want := range map[string]string{"": "json", "JSON": "json", "md": "markdown", "markdown": "markdown", "html": "html"} {
		exp, err := ExporterFor(format)
		require.NoError(t, err, format)
		assert.Equal(t, want, exp.Format())
		assert.NotEmpty(t, exp.ContentType())
	}
	_, err := ExporterFor("pdf")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "results.json")
	require.NoError(t, WriteJSON(path, sampleReport()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "gpt-4", decoded["model"])
	assert.Equal(t, "openai", decoded["llm_provider"])
	methods := decoded["methods"].(map[string]any)
	assert.Contains(t, methods, experiment.KeyPlain)
	assert.Contains(t, methods, experiment.KeyGraph)
	assert.NotContains(t, decoded, "QueryEmbeddings")
}

func TestWriteAll_FromDemoRun(t *testing.T) {
	r, err := experiment.NewRunner(nil, nil, nil, experiment.Config{Provider: "demo"})
	require.NoError(t, err)
	rep, err := r.Run(context.Background())
	require.NoError(t, err)

	dir := t.TempDir()
	paths, err := WriteAll(dir, rep)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, ResultsFile),
		filepath.Join(dir, MarkdownFile),
		filepath.Join(dir, HTMLFile),
	}, paths)
	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}
