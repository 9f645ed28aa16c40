package evaluation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/cyberrag/internal/embedding"
	"github.com/scrypster/cyberrag/pkg/types"
)

func docs(sims ...float64) []types.RetrievalResult {
	out := make([]types.RetrievalResult, len(sims))
	for i, s := range sims {
		out[i] = types.RetrievalResult{Rank: i + 1, Similarity: s}
	}
	return out
}

func TestEvaluateResponse(t *testing.T) {
	ev := New(embedding.NewHashingEncoder(0))
	ctx := context.Background()

	m, err := ev.EvaluateResponse(ctx, "q", "phishing steals credentials", "phishing steals credentials", docs(0.5, 0.25))
	require.NoError(t, err)
	require.NotNil(t, m.SemanticSimilarity)
	assert.InDelta(t, 1.0, *m.SemanticSimilarity, 1e-6)
	assert.Equal(t, 2, m.NumRetrieved)
	assert.InDelta(t, 0.375, m.AvgRetrievalScore, 1e-12)
	assert.Equal(t, 0.5, m.TopRetrievalScore)
	assert.Equal(t, 3, m.ResponseLength)
}

func TestEvaluateResponse_NoGroundTruthNoDocs(t *testing.T) {
	m, err := New(embedding.NewHashingEncoder(0)).EvaluateResponse(context.Background(), "q", "  one   two ", "", nil)
	require.NoError(t, err)
	assert.Nil(t, m.SemanticSimilarity)
	assert.Equal(t, 0, m.NumRetrieved)
	assert.Equal(t, 0.0, m.AvgRetrievalScore)
	assert.Equal(t, 2, m.ResponseLength)
}

func TestEvaluateResponse_SimilarityOrdering(t *testing.T) {
	ev := New(embedding.NewHashingEncoder(0))
	ctx := context.Background()
	truth := "Multi-factor authentication and security training mitigate phishing."

	near, err := ev.EvaluateResponse(ctx, "q", "Security training and multi-factor authentication mitigate phishing attacks.", truth, nil)
	require.NoError(t, err)
	far, err := ev.EvaluateResponse(ctx, "q", "Firewalls filter network traffic.", truth, nil)
	require.NoError(t, err)

	assert.Greater(t, *near.SemanticSimilarity, *far.SemanticSimilarity)
}

type failingEncoder struct{}

func (failingEncoder) Encode(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("encoder down")
}
func (failingEncoder) Model() string { return "failing" }

func TestEvaluateResponse_EncoderError(t *testing.T) {
	_, err := New(failingEncoder{}).EvaluateResponse(context.Background(), "q", "a", "b", nil)
	assert.ErrorContains(t, err, "encoder down")
}

func TestEvaluateBatch(t *testing.T) {
	ev := New(embedding.NewHashingEncoder(0))
	samples := []Sample{
		{Query: "q1", Response: "same words here", GroundTruth: "same words here", Retrieved: docs(0.5), Elapsed: time.Second},
		{Query: "q2", Response: "no truth", GroundTruth: "", Retrieved: docs(0.25, 0.25, 0.25), Elapsed: 3 * time.Second},
	}

	res, err := ev.EvaluateBatch(context.Background(), samples)
	require.NoError(t, err)
	require.Len(t, res.Individual, 2)

	agg := res.Aggregated
	assert.Equal(t, 2, agg.NumQueries)
	assert.InDelta(t, 0.5, agg.AvgSemanticSimilarity, 1e-6) // (1 + 0) / 2
	assert.InDelta(t, 2.0, agg.AvgResponseTime, 1e-12)
	assert.InDelta(t, 4.0, agg.TotalTime, 1e-12)
	assert.InDelta(t, 2.0, agg.AvgNumRetrieved, 1e-12)
	assert.InDelta(t, 0.375, agg.AvgRetrievalScore, 1e-12)
	assert.InDelta(t, 2.5, agg.AvgResponseLength, 1e-12)
}

func TestEvaluateBatch_Empty(t *testing.T) {
	res, err := New(embedding.NewHashingEncoder(0)).EvaluateBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Aggregate{}, res.Aggregated)
	assert.Empty(t, res.Individual)
}

func TestCompareMethods(t *testing.T) {
	results := map[string]*BatchResult{
		"traditional_rag":   {Aggregated: Aggregate{AvgSemanticSimilarity: 0.6, AvgResponseTime: 1.2, AvgRetrievalScore: 0.4, AvgResponseLength: 80}},
		"agentic_graph_rag": {Aggregated: Aggregate{AvgSemanticSimilarity: 0.7, AvgResponseTime: 1.5, AvgRetrievalScore: 0.4, AvgResponseLength: 120}},
	}
	cmp := CompareMethods(results)

	assert.Equal(t, []string{"agentic_graph_rag", "traditional_rag"}, cmp.Methods)
	assert.Equal(t, 120.0, cmp.Metrics["agentic_graph_rag"].ResponseLength)
	assert.Equal(t, "agentic_graph_rag", cmp.Winners[MetricSemanticSimilarity])
	assert.Equal(t, "traditional_rag", cmp.Winners[MetricResponseTime])
	// Tie goes to the first method by name.
	assert.Equal(t, "agentic_graph_rag", cmp.Winners[MetricRetrievalScore])
}

func TestCompareMethods_NoPositiveScores(t *testing.T) {
	cmp := CompareMethods(map[string]*BatchResult{
		"a": {Aggregated: Aggregate{AvgResponseTime: 2}},
		"b": {Aggregated: Aggregate{AvgResponseTime: 1}},
	})
	assert.Equal(t, "", cmp.Winners[MetricSemanticSimilarity])
	assert.Equal(t, "", cmp.Winners[MetricRetrievalScore])
	assert.Equal(t, "b", cmp.Winners[MetricResponseTime])
}

func TestCompareMethods_Empty(t *testing.T) {
	cmp := CompareMethods(nil)
	assert.Empty(t, cmp.Methods)
	assert.Empty(t, cmp.Winners)
}
