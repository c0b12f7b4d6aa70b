package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/district-intel/internal/fetcher"
	"github.com/sells-group/district-intel/internal/store"
)

// mockDataset implements Dataset for testing.
type mockDataset struct {
	name    string
	loadErr error
	rows    int64
	loaded  bool
}

func (m *mockDataset) Name() string     { return m.name }
func (m *mockDataset) Tables() []string { return []string{m.name} }
func (m *mockDataset) Load(ctx context.Context, env *Env) (*Summary, error) {
	m.loaded = true
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	sum := newSummary(m.name)
	sum.Stats.Total, sum.Stats.Resolved = int(m.rows), int(m.rows)
	sum.Tables[m.name] = m.rows
	return sum, nil
}

func TestRegistry_Order(t *testing.T) {
	r := NewRegistry()

	var names []string
	for _, d := range r.All() {
		names = append(names, d.Name())
	}
	assert.Equal(t, []string{"boundaries", "population", "crime", "land_prices", "schools", "transport"}, names)
}

func TestRegistry_SelectKeepsRegistryOrder(t *testing.T) {
	r := NewRegistry()

	ds, err := r.Select([]string{"transport", "population"})
	require.NoError(t, err)
	require.Len(t, ds, 2)
	assert.Equal(t, "population", ds[0].Name())
	assert.Equal(t, "transport", ds[1].Name())
}

func TestRegistry_SelectUnknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Select([]string{"weather"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown dataset "weather"`)
}

func TestRegistry_Tables(t *testing.T) {
	r := NewRegistry()

	d, err := r.Get("crime")
	require.NoError(t, err)
	assert.Equal(t, []string{"crime_statistics", "district_crime_metrics"}, d.Tables())
}

func TestEngine_RecordsRuns(t *testing.T) {
	env := newTestEnv(t, nil)
	ok := &mockDataset{name: "a", rows: 12}
	bad := &mockDataset{name: "b", loadErr: eris.Wrap(fetcher.ErrMissingSource, "b.csv")}
	after := &mockDataset{name: "c", rows: 3}

	reg := &Registry{datasets: make(map[string]Dataset)}
	reg.Register(ok)
	reg.Register(bad)
	reg.Register(after)

	sums, err := NewEngine(env, reg).Run(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, fetcher.ErrMissingSource))
	assert.Contains(t, err.Error(), "1 of 3 datasets failed")
	assert.True(t, after.loaded, "a failure does not stop later datasets")
	require.Len(t, sums, 2)
	assert.Equal(t, "a", sums[0].Dataset)

	runs, err := env.Store.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	byDataset := map[string]store.RunEntry{}
	for _, r := range runs {
		byDataset[r.Dataset] = r
	}
	assert.Equal(t, store.RunComplete, byDataset["a"].Status)
	assert.Equal(t, int64(12), byDataset["a"].Rows)
	assert.Equal(t, float64(12), byDataset["a"].Metadata["resolved"])
	assert.Equal(t, store.RunFailed, byDataset["b"].Status)
	assert.Contains(t, byDataset["b"].Error, "source file not found")
	assert.Equal(t, store.RunComplete, byDataset["c"].Status)
}

func TestEngine_SelectedOnly(t *testing.T) {
	env := newTestEnv(t, nil)
	a := &mockDataset{name: "a"}
	b := &mockDataset{name: "b"}

	reg := &Registry{datasets: make(map[string]Dataset)}
	reg.Register(a)
	reg.Register(b)

	_, err := NewEngine(env, reg).Run(context.Background(), []string{"b"})
	require.NoError(t, err)
	assert.False(t, a.loaded)
	assert.True(t, b.loaded)
}

func TestEngine_Cancelled(t *testing.T) {
	env := newTestEnv(t, nil)
	a := &mockDataset{name: "a"}

	reg := &Registry{datasets: make(map[string]Dataset)}
	reg.Register(a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(env, reg).Run(ctx, nil)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, a.loaded)
}

func TestEngine_FullLoad(t *testing.T) {
	env := newTestEnv(t, map[string]string{
		"districts.geojson": testBoundaries,
		"population.csv":    populationCSV,
		"crime.csv": `district_id,district,year,crime_type_german,total_number_cases
01,Mitte,2023,Raub,100
03,Pankow,2023,Raub,50
`,
		"land_prices.csv": `district_name,standard_land_value,typical_land_use_type
Mitte,3000,W
Pankow,800,W
`,
		"neighborhoods.csv": neighborhoodsCSV,
		"schools.csv": `bsn,school_name,quarter,students_total,teachers_total
01G01,Schule A,Tiergarten,500,40
`,
		"stops.csv": stopsCSV,
	})

	sums, err := NewEngine(env, NewRegistry()).Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, sums, 6)

	for _, table := range []string{
		"district_boundaries", "district_population", "crime_statistics", "district_crime_metrics",
		"land_prices", "district_land_price_metrics", "schools", "district_school_metrics",
		"public_transport_stops", "district_transport_metrics",
	} {
		rows := queryRows(t, env, `SELECT COUNT(*) AS n FROM `+table)
		assert.Positive(t, num(t, rows[0], "n"), table)
	}
}

func TestSummary_RowsAndMetadata(t *testing.T) {
	sum := newSummary("crime")
	sum.Stats.Total, sum.Stats.Resolved, sum.Stats.Unresolved = 10, 9, 1
	sum.Defaults["total_number_cases"] = 2
	sum.Tables["crime_statistics"] = 9
	sum.Tables["district_crime_metrics"] = 3

	assert.Equal(t, int64(12), sum.Rows())
	meta := sum.Metadata()
	assert.Equal(t, 1, meta["unresolved"])
	assert.Equal(t, map[string]int{"total_number_cases": 2}, meta["defaults"])
}

func TestCheckUnresolved(t *testing.T) {
	sum := newSummary("x")
	sum.Stats.Total, sum.Stats.Resolved, sum.Stats.Unresolved = 4, 2, 2

	assert.NoError(t, checkUnresolved(sum, 0.5), "exactly at the limit is accepted")
	err := checkUnresolved(sum, 0.25)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrTooManyUnresolved))
	assert.Contains(t, err.Error(), "2 of 4 records unresolved")
}
