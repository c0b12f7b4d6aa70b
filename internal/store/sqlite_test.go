package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

var populationTable = Table{
	Name: "district_population",
	Columns: []Column{
		{Name: "district_id", Type: Text},
		{Name: "district", Type: Text},
		{Name: "total_population", Type: Integer},
		{Name: "share", Type: Real},
	},
	Rows: [][]any{
		{"01", "Mitte", int64(390000), 0.1},
		{"03", "Pankow", int64(410000), 0.11},
	},
}

// --- Tables ---

func TestSQLite_WriteTable_AndQuery(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.WriteTable(ctx, populationTable)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rows, err := st.Query(ctx, `SELECT district_id, district, total_population, share FROM district_population ORDER BY district_id`)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "01", rows[0].String("district_id"))
	assert.Equal(t, "Pankow", rows[1].String("district"))
	pop, ok := rows[1].Float("total_population")
	require.True(t, ok)
	assert.Equal(t, 410000.0, pop)
	share, ok := rows[0].Float("share")
	require.True(t, ok)
	assert.InDelta(t, 0.1, share, 1e-12)
}

func TestSQLite_WriteTable_ReplacesPreviousContents(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.WriteTable(ctx, populationTable)
	require.NoError(t, err)

	replacement := Table{
		Name:    "district_population",
		Columns: []Column{{Name: "district_id", Type: Text}},
		Rows:    [][]any{{"12"}},
	}
	_, err = st.WriteTable(ctx, replacement)
	require.NoError(t, err)

	rows, err := st.Query(ctx, `SELECT * FROM district_population`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "12", rows[0].String("district_id"))
	_, hasDistrict := rows[0]["district"]
	assert.False(t, hasDistrict)
}

func TestSQLite_WriteTable_FailureKeepsPreviousTable(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.WriteTable(ctx, populationTable)
	require.NoError(t, err)

	bad := Table{
		Name:    "district_population",
		Columns: []Column{{Name: "district_id", Type: "geometry"}},
		Rows:    [][]any{{"01"}},
	}
	_, err = st.WriteTable(ctx, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")

	rows, err := st.Query(ctx, `SELECT COUNT(*) AS n FROM district_population`)
	require.NoError(t, err)
	n, ok := rows[0].Float("n")
	require.True(t, ok)
	assert.Equal(t, 2.0, n)
}

func TestSQLite_WriteTables_AllOrNothing(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	metrics := Table{
		Name:    "district_population_metrics",
		Columns: []Column{{Name: "district_id", Type: Text}, {Name: "residents", Type: Integer}},
		Rows:    [][]any{{"01", int64(390000)}},
	}
	counts, err := st.WriteTables(ctx, populationTable, metrics)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, counts)

	fresh := Table{
		Name:    "district_population",
		Columns: populationTable.Columns,
		Rows:    [][]any{{"05", "Spandau", int64(250000), 0.07}},
	}
	bad := Table{
		Name:    "district_population_metrics",
		Columns: []Column{{Name: "district_id", Type: "geometry"}},
		Rows:    [][]any{{"05"}},
	}
	_, err = st.WriteTables(ctx, fresh, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")

	rows, err := st.Query(ctx, `SELECT district_id FROM district_population ORDER BY district_id`)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "01", rows[0].String("district_id"))

	rows, err = st.Query(ctx, `SELECT residents FROM district_population_metrics`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestSQLite_WriteTable_EmptyRows(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	empty := populationTable
	empty.Rows = nil
	n, err := st.WriteTable(ctx, empty)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	rows, err := st.Query(ctx, `SELECT * FROM district_population`)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSQLite_WriteTable_BlobRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.WriteTable(ctx, Table{
		Name:    "district_boundaries",
		Columns: []Column{{Name: "district_id", Type: Text}, {Name: "geometry", Type: Blob}},
		Rows:    [][]any{{"01", []byte{0x01, 0x06, 0x00}}},
	})
	require.NoError(t, err)

	rows, err := st.Query(ctx, `SELECT geometry FROM district_boundaries`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []byte{0x01, 0x06, 0x00}, rows[0]["geometry"])
}

func TestSQLite_Query_Error(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.Query(context.Background(), `SELECT * FROM no_such_table`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite: query")
}

// --- Run log ---

func TestSQLite_RunLog_Lifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	okID, err := st.StartRun(ctx, "population")
	require.NoError(t, err)
	assert.Len(t, okID, 36)

	require.NoError(t, st.CompleteRun(ctx, okID, &RunResult{
		Rows:     12,
		Metadata: map[string]any{"unresolved": 0},
	}))

	failID, err := st.StartRun(ctx, "crime")
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, failID, "missing source"))

	runs, err := st.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	byID := map[string]RunEntry{}
	for _, r := range runs {
		byID[r.ID] = r
	}

	done := byID[okID]
	assert.Equal(t, "population", done.Dataset)
	assert.Equal(t, RunComplete, done.Status)
	assert.Equal(t, int64(12), done.Rows)
	require.NotNil(t, done.CompletedAt)
	assert.False(t, done.CompletedAt.Before(done.StartedAt))
	assert.Equal(t, float64(0), done.Metadata["unresolved"])

	failed := byID[failID]
	assert.Equal(t, RunFailed, failed.Status)
	assert.Equal(t, "missing source", failed.Error)
	assert.Nil(t, failed.Metadata)
}

func TestSQLite_ListRuns_Limit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, ds := range []string{"crime", "population", "schools"} {
		_, err := st.StartRun(ctx, ds)
		require.NoError(t, err)
	}

	runs, err := st.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, RunRunning, r.Status)
		assert.Nil(t, r.CompletedAt)
	}
}

func TestSQLite_CompleteRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.CompleteRun(context.Background(), "nonexistent", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestSQLite_FailRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.FailRun(context.Background(), "nonexistent", "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}
