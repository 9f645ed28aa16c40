// Package sqlite stores experiment reports in SQLite (modernc.org/sqlite,
// no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	moderncsqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/scrypster/cyberrag/internal/experiment"
	"github.com/scrypster/cyberrag/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

// RunStore implements storage.RunStore using SQLite.
type RunStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunStore opens (or creates) the database at dsn and migrates it.
// If the open fails because of stale WAL files left by a crashed process,
// and no other process holds them, the files are removed and the open is
// retried once.
func NewRunStore(ctx context.Context, dsn string, logger *slog.Logger) (*RunStore, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	store, err := openRunStore(ctx, dsn, logger)
	if err == nil {
		return store, nil
	}
	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || !walRecoverable(err) {
		return nil, err
	}
	stale := staleWAL(dbPath)
	if len(stale) == 0 {
		return nil, err
	}
	for _, f := range stale {
		if rmErr := os.Remove(f); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			logger.Warn("sqlite: failed to remove stale WAL file", "path", f, "error", rmErr)
		}
	}

	store, retryErr := openRunStore(ctx, dsn, logger)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}
	logger.Warn("sqlite: recovered from stale WAL files", "path", dbPath)
	return store, nil
}

func openRunStore(ctx context.Context, dsn string, logger *slog.Logger) (*RunStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serialises writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	mgr, err := storage.NewMigrationManager(ctx, db, migrations, "migrations", storage.PlaceholderQuestion)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	if err := mgr.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	return &RunStore{db: db, logger: logger}, nil
}

// SaveRun stores rep and its per-query rows, replacing any previous run with
// the same ID.
func (s *RunStore) SaveRun(ctx context.Context, rep *experiment.Report) error {
	if err := storage.ValidateReport(rep); err != nil {
		return err
	}
	body, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	sum := storage.Summarize(rep)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, provider, model, dataset, demo, num_queries,
			plain_similarity, graph_similarity, similarity_winner, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at = excluded.created_at,
			provider = excluded.provider,
			model = excluded.model,
			dataset = excluded.dataset,
			demo = excluded.demo,
			num_queries = excluded.num_queries,
			plain_similarity = excluded.plain_similarity,
			graph_similarity = excluded.graph_similarity,
			similarity_winner = excluded.similarity_winner,
			report = excluded.report
	`, sum.ID, sum.CreatedAt.UnixNano(), sum.Provider, sum.Model, sum.Dataset, sum.Demo,
		sum.NumQueries, sum.PlainSimilarity, sum.GraphSimilarity, sum.SimilarityWinner, string(body))
	if err != nil {
		return fmt.Errorf("failed to store run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_queries WHERE run_id = ?`, sum.ID); err != nil {
		return fmt.Errorf("failed to clear query rows: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_queries (run_id, method, query_index, query, response, seconds, semantic_similarity, kg_entities)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare query insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range storage.QueryRows(rep) {
		var sim sql.NullFloat64
		if row.SemanticSimilarity != nil {
			sim = sql.NullFloat64{Float64: *row.SemanticSimilarity, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, sum.ID, row.Method, row.Index, row.Query, row.Response,
			row.Seconds, sim, row.NumKGEntities); err != nil {
			return fmt.Errorf("failed to store query row %d: %w", row.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	s.logger.Debug("run saved", "run_id", sum.ID, "queries", sum.NumQueries)
	return nil
}

// GetRun loads a report by ID.
func (s *RunStore) GetRun(ctx context.Context, id string) (*experiment.Report, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: run ID is required", storage.ErrInvalidInput)
	}

	var body string
	err := s.db.QueryRowContext(ctx, `SELECT report FROM runs WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var rep experiment.Report
	if err := json.Unmarshal([]byte(body), &rep); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return &rep, nil
}

// ListRuns returns run summaries, newest first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]storage.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, provider, model, dataset, demo, num_queries,
			plain_similarity, graph_similarity, similarity_winner
		FROM runs
		ORDER BY created_at DESC, id
		LIMIT ?
	`, storage.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	out := []storage.RunSummary{}
	for rows.Next() {
		var (
			sum     storage.RunSummary
			created int64
		)
		if err := rows.Scan(&sum.ID, &created, &sum.Provider, &sum.Model, &sum.Dataset, &sum.Demo,
			&sum.NumQueries, &sum.PlainSimilarity, &sum.GraphSimilarity, &sum.SimilarityWinner); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		sum.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

// ListQueries returns the per-query rows of a run.
func (s *RunStore) ListQueries(ctx context.Context, id string) ([]storage.QueryRow, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT method, query_index, query, response, seconds, semantic_similarity, kg_entities
		FROM run_queries
		WHERE run_id = ?
		ORDER BY method, query_index
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list query rows: %w", err)
	}
	defer rows.Close()

	out := []storage.QueryRow{}
	for rows.Next() {
		var (
			row storage.QueryRow
			sim sql.NullFloat64
		)
		if err := rows.Scan(&row.Method, &row.Index, &row.Query, &row.Response, &row.Seconds, &sim, &row.NumKGEntities); err != nil {
			return nil, fmt.Errorf("failed to scan query row: %w", err)
		}
		if sim.Valid {
			v := sim.Float64
			row.SemanticSimilarity = &v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *RunStore) Close() error {
	return s.db.Close()
}

var _ storage.RunStore = (*RunStore)(nil)

// dbPathFromDSN returns the database file of a plain path or file: URI
// DSN; "" for in-memory databases.
func dbPathFromDSN(dsn string) string {
	path, isURI := strings.CutPrefix(dsn, "file:")
	if isURI {
		path, _, _ = strings.Cut(path, "?")
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	return path
}

// walRecoverable reports whether err is the I/O or busy failure SQLite
// raises when a crashed process left its WAL files behind.
func walRecoverable(err error) bool {
	var serr *moderncsqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() & 0xff {
	case sqlitelib.SQLITE_IOERR, sqlitelib.SQLITE_BUSY:
		return true
	}
	return false
}

// staleWAL returns the -wal and -shm files of dbPath when they exist and
// lsof shows no process holding the database. Without lsof nothing is
// considered stale.
func staleWAL(dbPath string) []string {
	var files []string
	for _, suffix := range []string{"-wal", "-shm"} {
		if _, err := os.Stat(dbPath + suffix); err == nil {
			files = append(files, dbPath+suffix)
		}
	}
	if len(files) == 0 {
		return nil
	}

	lsof, err := exec.LookPath("lsof")
	if err != nil {
		return nil
	}
	// lsof exits non-zero when nothing has the files open.
	out, err := exec.Command(lsof, append([]string{"-t", dbPath}, files...)...).Output()
	if err == nil && strings.TrimSpace(string(out)) != "" {
		return nil
	}
	return files
}
