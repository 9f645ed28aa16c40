// Package evaluation scores generated answers against ground truth and
// compares retrieval methods on the aggregated scores.
package evaluation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/scrypster/cyberrag/internal/embedding"
	"github.com/scrypster/cyberrag/pkg/types"
)

// Metrics are the scores of one answer.
type Metrics struct {
	// SemanticSimilarity is the cosine similarity between the answer and the
	// ground truth embeddings; nil when there is no ground truth.
	SemanticSimilarity *float64 `json:"semantic_similarity,omitempty"`
	NumRetrieved       int      `json:"num_retrieved"`
	AvgRetrievalScore  float64  `json:"avg_retrieval_score"`
	TopRetrievalScore  float64  `json:"top_retrieval_score"`
	ResponseLength     int      `json:"response_length"`
}

// Aggregate summarises a batch. Missing similarities count as 0.
type Aggregate struct {
	NumQueries            int     `json:"num_queries"`
	AvgSemanticSimilarity float64 `json:"avg_semantic_similarity"`
	AvgResponseTime       float64 `json:"avg_response_time"` // seconds
	AvgNumRetrieved       float64 `json:"avg_num_retrieved"`
	AvgRetrievalScore     float64 `json:"avg_retrieval_score"`
	AvgResponseLength     float64 `json:"avg_response_length"`
	TotalTime             float64 `json:"total_time"` // seconds
}

// BatchResult holds per-query metrics and their aggregate.
type BatchResult struct {
	Aggregated Aggregate `json:"aggregated"`
	Individual []Metrics `json:"individual"`
}

// Sample is one answered query.
type Sample struct {
	Query       string
	Response    string
	GroundTruth string
	Retrieved   []types.RetrievalResult
	Elapsed     time.Duration
}

// Evaluator computes metrics with an embedding model.
type Evaluator struct {
	enc embedding.Encoder
}

// New creates an evaluator that embeds answers with enc.
func New(enc embedding.Encoder) *Evaluator {
	return &Evaluator{enc: enc}
}

// EvaluateResponse scores one answer.
func (e *Evaluator) EvaluateResponse(ctx context.Context, query, response, groundTruth string, docs []types.RetrievalResult) (Metrics, error) {
	m := Metrics{
		NumRetrieved:   len(docs),
		ResponseLength: len(strings.Fields(response)),
	}

	if groundTruth != "" {
		vecs, err := e.enc.Encode(ctx, []string{response, groundTruth})
		if err != nil {
			return Metrics{}, fmt.Errorf("embed answer for %q: %w", query, err)
		}
		if len(vecs) != 2 {
			return Metrics{}, fmt.Errorf("encoder returned %d vectors for 2 texts", len(vecs))
		}
		sim := embedding.Cosine(vecs[0], vecs[1])
		m.SemanticSimilarity = &sim
	}

	if len(docs) > 0 {
		var sum float64
		for _, d := range docs {
			sum += d.Similarity
		}
		m.AvgRetrievalScore = sum / float64(len(docs))
		m.TopRetrievalScore = docs[0].Similarity
	}
	return m, nil
}

// EvaluateBatch scores every sample and aggregates the results.
func (e *Evaluator) EvaluateBatch(ctx context.Context, samples []Sample) (*BatchResult, error) {
	result := &BatchResult{Individual: make([]Metrics, 0, len(samples))}
	for _, s := range samples {
		m, err := e.EvaluateResponse(ctx, s.Query, s.Response, s.GroundTruth, s.Retrieved)
		if err != nil {
			return nil, err
		}
		result.Individual = append(result.Individual, m)
	}

	agg := Aggregate{NumQueries: len(samples)}
	for i, m := range result.Individual {
		if m.SemanticSimilarity != nil {
			agg.AvgSemanticSimilarity += *m.SemanticSimilarity
		}
		agg.AvgNumRetrieved += float64(m.NumRetrieved)
		agg.AvgRetrievalScore += m.AvgRetrievalScore
		agg.AvgResponseLength += float64(m.ResponseLength)
		agg.TotalTime += samples[i].Elapsed.Seconds()
	}
	if n := float64(len(samples)); n > 0 {
		agg.AvgSemanticSimilarity /= n
		agg.AvgNumRetrieved /= n
		agg.AvgRetrievalScore /= n
		agg.AvgResponseLength /= n
		agg.AvgResponseTime = agg.TotalTime / n
	}
	result.Aggregated = agg
	return result, nil
}

// Winner keys in Comparison.Winners.
const (
	MetricSemanticSimilarity = "semantic_similarity"
	MetricResponseTime       = "response_time"
	MetricRetrievalScore     = "retrieval_score"
)

// MethodMetrics is the per-method row of a comparison.
type MethodMetrics struct {
	SemanticSimilarity float64 `json:"semantic_similarity"`
	ResponseTime       float64 `json:"response_time"`
	RetrievalScore     float64 `json:"retrieval_score"`
	ResponseLength     float64 `json:"response_length"`
}

// Comparison ranks methods on their aggregates.
type Comparison struct {
	Methods []string                 `json:"methods"`
	Metrics map[string]MethodMetrics `json:"metrics"`
	// Winners maps a metric to the best method, or "" when no method
	// scored (similarity and retrieval score must be positive).
	Winners map[string]string `json:"winners"`
}

// CompareMethods compares batch results by method name. Methods are visited
// in name order, so ties go to the alphabetically first method.
func CompareMethods(results map[string]*BatchResult) Comparison {
	cmp := Comparison{
		Methods: make([]string, 0, len(results)),
		Metrics: make(map[string]MethodMetrics, len(results)),
		Winners: map[string]string{},
	}
	for name := range results {
		cmp.Methods = append(cmp.Methods, name)
	}
	sort.Strings(cmp.Methods)

	for _, name := range cmp.Methods {
		var agg Aggregate
		if r := results[name]; r != nil {
			agg = r.Aggregated
		}
		cmp.Metrics[name] = MethodMetrics{
			SemanticSimilarity: agg.AvgSemanticSimilarity,
			ResponseTime:       agg.AvgResponseTime,
			RetrievalScore:     agg.AvgRetrievalScore,
			ResponseLength:     agg.AvgResponseLength,
		}
	}
	if len(cmp.Methods) == 0 {
		return cmp
	}

	cmp.Winners[MetricSemanticSimilarity] = best(cmp, func(m MethodMetrics) float64 { return m.SemanticSimilarity }, true)
	cmp.Winners[MetricResponseTime] = best(cmp, func(m MethodMetrics) float64 { return m.ResponseTime }, false)
	cmp.Winners[MetricRetrievalScore] = best(cmp, func(m MethodMetrics) float64 { return m.RetrievalScore }, true)
	return cmp
}

// best returns the method with the highest (or lowest) metric. For
// higher-is-better metrics a best value that is not positive has no winner.
func best(cmp Comparison, metric func(MethodMetrics) float64, higher bool) string {
	winner := ""
	bestVal := math.Inf(1)
	if higher {
		bestVal = math.Inf(-1)
	}
	for _, name := range cmp.Methods {
		v := metric(cmp.Metrics[name])
		if math.IsNaN(v) {
			continue
		}
		if (higher && v > bestVal) || (!higher && v < bestVal) {
			bestVal, winner = v, name
		}
	}
	if higher && bestVal <= 0 {
		return ""
	}
	return winner
}
