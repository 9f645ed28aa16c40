package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/cyberrag/internal/evaluation"
	"github.com/scrypster/cyberrag/internal/experiment"
)

var (
	// ErrNotFound indicates that the requested run was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// List limits.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// RunSummary is the listing view of a stored run.
type RunSummary struct {
	ID               string    `json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	Dataset          string    `json:"dataset"`
	Demo             bool      `json:"demo"`
	NumQueries       int       `json:"num_queries"`
	PlainSimilarity  float64   `json:"traditional_similarity"`
	GraphSimilarity  float64   `json:"agentic_similarity"`
	SimilarityWinner string    `json:"similarity_winner,omitempty"`
}

// QueryRow is one query's outcome for one method, as stored per row.
type QueryRow struct {
	Index              int       `json:"index"`
	Method             string    `json:"method"`
	Query              string    `json:"query"`
	Response           string    `json:"response"`
	Seconds            float64   `json:"seconds"`
	SemanticSimilarity *float64  `json:"semantic_similarity,omitempty"`
	NumKGEntities      int       `json:"num_kg_entities"`
	Embedding          []float32 `json:"-"` // query embedding; nil when unavailable
}

// ValidateReport checks that rep can be stored.
func ValidateReport(rep *experiment.Report) error {
	if rep == nil {
		return fmt.Errorf("%w: report is required", ErrInvalidInput)
	}
	if rep.RunID == "" {
		return fmt.Errorf("%w: run ID is required", ErrInvalidInput)
	}
	return nil
}

// ClampLimit applies the list limit defaults.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// Summarize builds the listing view of rep.
func Summarize(rep *experiment.Report) RunSummary {
	s := RunSummary{
		ID:               rep.RunID,
		CreatedAt:        rep.Timestamp,
		Provider:         rep.Provider,
		Model:            rep.Model,
		Dataset:          rep.Dataset,
		Demo:             rep.Demo,
		NumQueries:       len(rep.Queries),
		SimilarityWinner: rep.Comparison.Winners[evaluation.MetricSemanticSimilarity],
	}
	if m := rep.Methods[experiment.KeyPlain]; m != nil && m.Evaluation != nil {
		s.PlainSimilarity = m.Evaluation.Aggregated.AvgSemanticSimilarity
	}
	if m := rep.Methods[experiment.KeyGraph]; m != nil && m.Evaluation != nil {
		s.GraphSimilarity = m.Evaluation.Aggregated.AvgSemanticSimilarity
	}
	return s
}

// QueryRows flattens rep into one row per method and query.
func QueryRows(rep *experiment.Report) []QueryRow {
	var rows []QueryRow
	for _, key := range []string{experiment.KeyPlain, experiment.KeyGraph} {
		m := rep.Methods[key]
		if m == nil {
			continue
		}
		for i, q := range rep.Queries {
			row := QueryRow{Index: i, Method: key, Query: q}
			if i < len(m.Responses) {
				row.Response = m.Responses[i]
			}
			if i < len(m.Times) {
				row.Seconds = m.Times[i]
			}
			if i < len(m.KGEntities) {
				row.NumKGEntities = m.KGEntities[i]
			}
			if m.Evaluation != nil && i < len(m.Evaluation.Individual) {
				row.SemanticSimilarity = m.Evaluation.Individual[i].SemanticSimilarity
			}
			if i < len(rep.QueryEmbeddings) {
				row.Embedding = rep.QueryEmbeddings[i]
			}
			rows = append(rows, row)
		}
	}
	return rows
}
