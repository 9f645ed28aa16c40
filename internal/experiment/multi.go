package experiment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/scrypster/cyberrag/internal/embedding"
	"github.com/scrypster/cyberrag/internal/llm"
)

// ErrNoRuns is returned by RunMulti when no pairs are given.
var ErrNoRuns = errors.New("no provider/model pairs")

// Pair names a provider and model.
type Pair struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func (p Pair) String() string { return p.Provider + "/" + p.Model }

// ParsePair parses "provider:model" or "provider/model". The provider ends at
// the first separator so model names may contain either character.
func ParsePair(s string) (Pair, error) {
	i := strings.IndexAny(s, ":/")
	if i <= 0 || i == len(s)-1 {
		return Pair{}, fmt.Errorf("invalid pair %q, expected provider:model", s)
	}
	return Pair{Provider: strings.ToLower(s[:i]), Model: s[i+1:]}, nil
}

// DefaultPairs are compared when none are given.
func DefaultPairs() []Pair {
	return []Pair{
		{Provider: llm.ProviderOpenAI, Model: "gpt-3.5-turbo"},
		{Provider: llm.ProviderOpenAI, Model: "gpt-4"},
	}
}

// GeneratorFactory builds the generator for a pair.
type GeneratorFactory func(p Pair) (llm.TextGenerator, error)

// MultiResult is the outcome of one pair. Exactly one of Report and Err is set.
type MultiResult struct {
	Pair   Pair
	Report *Report
	Err    error
}

// SummaryRow is one method's aggregate for one pair.
type SummaryRow struct {
	Provider              string  `json:"provider"`
	Model                 string  `json:"model"`
	Method                string  `json:"method"`
	AvgSemanticSimilarity float64 `json:"avg_semantic_similarity"`
	AvgResponseTime       float64 `json:"avg_response_time"`
}

// RunMulti runs one experiment per pair. A pair whose generator cannot be
// built or whose run fails is recorded and skipped; only context
// cancellation stops the loop.
func RunMulti(ctx context.Context, ds *Dataset, pairs []Pair, newGen GeneratorFactory, enc embedding.Encoder, cfg Config, opts ...Option) ([]MultiResult, error) {
	if len(pairs) == 0 {
		return nil, ErrNoRuns
	}
	if enc == nil {
		enc = embedding.NewHashingEncoder(0)
	}

	results := make([]MultiResult, 0, len(pairs))
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := MultiResult{Pair: p}
		res.Report, res.Err = runPair(ctx, ds, p, newGen, enc, cfg, opts)
		results = append(results, res)
	}
	return results, nil
}

func runPair(ctx context.Context, ds *Dataset, p Pair, newGen GeneratorFactory, enc embedding.Encoder, cfg Config, opts []Option) (*Report, error) {
	gen, err := newGen(p)
	if err != nil {
		return nil, fmt.Errorf("create %s generator: %w", p, err)
	}
	cfg.Provider, cfg.Model = p.Provider, p.Model
	r, err := NewRunner(ds, gen, enc, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}

// Summarize flattens successful results into one row per pair and method.
func Summarize(results []MultiResult) []SummaryRow {
	var rows []SummaryRow
	for _, res := range results {
		if res.Report == nil {
			continue
		}
		for _, key := range []string{KeyPlain, KeyGraph} {
			m := res.Report.Methods[key]
			if m == nil || m.Evaluation == nil {
				continue
			}
			rows = append(rows, SummaryRow{
				Provider:              res.Pair.Provider,
				Model:                 res.Pair.Model,
				Method:                m.Method,
				AvgSemanticSimilarity: m.Evaluation.Aggregated.AvgSemanticSimilarity,
				AvgResponseTime:       m.Evaluation.Aggregated.AvgResponseTime,
			})
		}
	}
	return rows
}

// BestPair returns the pair with the highest average semantic similarity for
// the method key. The first pair wins ties.
func BestPair(results []MultiResult, key string) (Pair, float64, bool) {
	var (
		best  Pair
		score float64
		found bool
	)
	for _, res := range results {
		if res.Report == nil {
			continue
		}
		m := res.Report.Methods[key]
		if m == nil || m.Evaluation == nil {
			continue
		}
		s := m.Evaluation.Aggregated.AvgSemanticSimilarity
		if !found || s > score {
			best, score, found = res.Pair, s, true
		}
	}
	return best, score, found
}
