package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/cyberrag/internal/evaluation"
	"github.com/scrypster/cyberrag/internal/experiment"
	"github.com/scrypster/cyberrag/internal/storage"
)

// newTestStore creates an in-memory store; the single connection keeps the
// database alive for the test.
func newTestStore(t *testing.T) *RunStore {
	t.Helper()
	store, err := NewRunStore(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testReport(id string, at time.Time) *experiment.Report {
	sim := 0.75
	plain := &evaluation.BatchResult{
		Aggregated: evaluation.Aggregate{NumQueries: 2, AvgSemanticSimilarity: 0.4},
		Individual: []evaluation.Metrics{{SemanticSimilarity: &sim}, {}},
	}
	augmented := &evaluation.BatchResult{
		Aggregated: evaluation.Aggregate{NumQueries: 2, AvgSemanticSimilarity: 0.6},
		Individual: []evaluation.Metrics{{}, {}},
	}
	rep := &experiment.Report{
		RunID:     id,
		Timestamp: at,
		Provider:  "demo",
		Model:     "demo-model",
		Demo:      true,
		Dataset:   "cybersecurity",
		Queries:   []string{"What is phishing?", "What is malware?"},
		Methods: map[string]*experiment.MethodResult{
			experiment.KeyPlain: {
				Method: "Traditional RAG", Evaluation: plain,
				Responses: []string{"a1", "a2"}, Times: []float64{0.1, 0.2},
			},
			experiment.KeyGraph: {
				Method: "Agentic Graph RAG", Evaluation: augmented,
				Responses: []string{"b1", "b2"}, Times: []float64{0.3, 0.4}, KGEntities: []int{4, 2},
			},
		},
	}
	rep.Comparison = evaluation.CompareMethods(map[string]*evaluation.BatchResult{
		experiment.KeyPlain: plain,
		experiment.KeyGraph: augmented,
	})
	return rep
}

func TestSaveAndGetRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveRun(ctx, testReport("run-1", at)))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.True(t, got.Timestamp.Equal(at))
	assert.Equal(t, "demo-model", got.Model)
	assert.Equal(t, []string{"b1", "b2"}, got.Methods[experiment.KeyGraph].Responses)
	assert.Equal(t, experiment.KeyGraph, got.Comparison.Winners[evaluation.MetricSemanticSimilarity])
}

func TestGetRun_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetRun(context.Background(), "")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSaveRun_InvalidInput(t *testing.T) {
	store := newTestStore(t)
	assert.ErrorIs(t, store.SaveRun(context.Background(), nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.SaveRun(context.Background(), &experiment.Report{}), storage.ErrInvalidInput)
}

func TestSaveRun_Replaces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rep := testReport("run-1", time.Now().UTC())
	require.NoError(t, store.SaveRun(ctx, rep))

	rep.Model = "other"
	rep.Queries = rep.Queries[:1]
	require.NoError(t, store.SaveRun(ctx, rep))

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "other", runs[0].Model)

	rows, err := store.ListQueries(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, rows, 2) // one query, two methods
}

func TestListRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.SaveRun(ctx, testReport(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour))))
	}

	runs, err := store.ListRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-4", runs[0].ID)
	assert.Equal(t, "run-2", runs[2].ID)

	first := runs[0]
	assert.Equal(t, "demo", first.Provider)
	assert.True(t, first.Demo)
	assert.Equal(t, 2, first.NumQueries)
	assert.Equal(t, 0.4, first.PlainSimilarity)
	assert.Equal(t, 0.6, first.GraphSimilarity)
	assert.Equal(t, experiment.KeyGraph, first.SimilarityWinner)
	assert.True(t, first.CreatedAt.Equal(base.Add(4*time.Hour)))
}

func TestListRuns_Empty(t *testing.T) {
	runs, err := newTestStore(t).ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NotNil(t, runs)
}

func TestListQueries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveRun(ctx, testReport("run-1", time.Now())))

	rows, err := store.ListQueries(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, rows, 4)

	// agentic_graph_rag sorts before traditional_rag.
	assert.Equal(t, experiment.KeyGraph, rows[0].Method)
	assert.Equal(t, 4, rows[0].NumKGEntities)
	assert.Equal(t, "b1", rows[0].Response)
	assert.Nil(t, rows[0].SemanticSimilarity)

	assert.Equal(t, experiment.KeyPlain, rows[2].Method)
	assert.Equal(t, 0, rows[2].Index)
	assert.Equal(t, "What is phishing?", rows[2].Query)
	require.NotNil(t, rows[2].SemanticSimilarity)
	assert.Equal(t, 0.75, *rows[2].SemanticSimilarity)
	assert.Equal(t, 0.1, rows[2].Seconds)

	_, err = store.ListQueries(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunStore_FileBackedReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	store, err := NewRunStore(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, store.SaveRun(ctx, testReport("persisted", time.Now())))
	require.NoError(t, store.Close())

	// Reopening applies no migrations twice and keeps the data.
	store, err = NewRunStore(ctx, path, nil)
	require.NoError(t, err)
	defer store.Close()
	got, err := store.GetRun(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.RunID)
}

func TestRunStore_ConcurrentSaves(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.SaveRun(ctx, testReport(fmt.Sprintf("c-%d", i), time.Now())))
		}(i)
	}
	wg.Wait()

	runs, err := store.ListRuns(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, runs, 8)
}

func TestDBPathFromDSN(t *testing.T) {
	assert.Equal(t, "", dbPathFromDSN(":memory:"))
	assert.Equal(t, "", dbPathFromDSN("file::memory:?cache=shared"))
	assert.Equal(t, "/tmp/x.db", dbPathFromDSN("file:/tmp/x.db?_pragma=busy_timeout(5000)"))
	assert.Equal(t, "runs.db", dbPathFromDSN("runs.db"))
}

func TestWALRecoverable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "busy.db")

	holder, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer holder.Close()
	conn, err := holder.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.ExecContext(ctx, "BEGIN EXCLUSIVE")
	require.NoError(t, err)
	defer conn.ExecContext(ctx, "ROLLBACK") //nolint:errcheck

	other, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer other.Close()
	other.SetMaxOpenConns(1)
	_, err = other.ExecContext(ctx, "PRAGMA busy_timeout = 0")
	require.NoError(t, err)
	_, err = other.ExecContext(ctx, "CREATE TABLE t (x INTEGER)")
	require.Error(t, err)
	assert.True(t, walRecoverable(fmt.Errorf("apply pragma: %w", err)))

	_, err = other.ExecContext(ctx, "SELEC nonsense")
	require.Error(t, err)
	assert.False(t, walRecoverable(err))
	assert.False(t, walRecoverable(fmt.Errorf("database is locked")))
	assert.False(t, walRecoverable(nil))
}

func TestStaleWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	assert.Empty(t, staleWAL(path))

	if _, err := exec.LookPath("lsof"); err != nil {
		t.Skip("lsof not installed")
	}
	require.NoError(t, os.WriteFile(path+"-wal", []byte("x"), 0o600))
	assert.Equal(t, []string{path + "-wal"}, staleWAL(path))
}
