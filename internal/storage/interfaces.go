// Package storage persists experiment reports.
//
// Backends store whole reports plus a per-query breakdown; the knowledge
// graph and vector index are always rebuilt in memory and never persisted.
package storage

import (
	"context"

	"github.com/scrypster/cyberrag/internal/experiment"
)

// RunStore saves and loads experiment reports.
// Implementations must be safe for concurrent use.
type RunStore interface {
	// SaveRun stores a report. Saving an existing run ID replaces it.
	// Returns ErrInvalidInput for a nil report or one without a run ID.
	SaveRun(ctx context.Context, rep *experiment.Report) error

	// GetRun loads a report by run ID.
	// Returns ErrNotFound if the run doesn't exist.
	GetRun(ctx context.Context, id string) (*experiment.Report, error)

	// ListRuns returns run summaries, newest first. A limit <= 0 uses
	// DefaultListLimit; limits above MaxListLimit are clamped.
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)

	// ListQueries returns a run's per-query rows ordered by method key and
	// query index. Returns ErrNotFound if the run doesn't exist.
	ListQueries(ctx context.Context, id string) ([]QueryRow, error)

	Close() error
}
