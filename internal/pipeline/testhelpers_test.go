package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/district-intel/internal/config"
	"github.com/sells-group/district-intel/internal/registry"
	"github.com/sells-group/district-intel/internal/store"
)

// Mitte spans lon 13.3-13.5 and Pankow lon 13.5-13.7, both lat 52.4-52.6.
const testBoundaries = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"Gemeinde_name": "Pankow"},
     "geometry": {"type": "Polygon", "coordinates": [[[13.5,52.4],[13.7,52.4],[13.7,52.6],[13.5,52.6],[13.5,52.4]]]}},
    {"type": "Feature", "properties": {"Gemeinde_name": "Mitte"},
     "geometry": {"type": "Polygon", "coordinates": [[[13.3,52.4],[13.5,52.4],[13.5,52.6],[13.3,52.6],[13.3,52.4]]]}}
  ]
}`

func testConfig(dataDir, dbPath string) *config.Config {
	return &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: dbPath},
		Sources: config.SourcesConfig{
			DataDir:        dataDir,
			Crime:          "crime.csv",
			Population:     "population.csv",
			LandPrices:     "land_prices.csv",
			Schools:        "schools.csv",
			Neighborhoods:  "neighborhoods.csv",
			TransportStops: "stops.csv",
			Boundaries:     "districts.geojson",
		},
		Boundary: config.BoundaryConfig{NameProperty: "Gemeinde_name", CRS: "EPSG:4326"},
		Points:   config.PointsConfig{CRS: "EPSG:4326"},
		Load:     config.LoadConfig{MaxUnresolvedRatio: 0.5, Delimiter: ","},
		Analysis: config.AnalysisConfig{
			ResidentialUsePrefix: "W",
			MinPairedDistricts:   12,
			PerCapitaBase:        100000,
			Risk: config.ThresholdConfig{
				Low: 400000, High: 600000, Labels: []string{"safe", "medium", "risk"},
			},
		},
	}
}

// newTestEnv writes files into a fresh data directory and returns an
// environment backed by a migrated SQLite store.
func newTestEnv(t *testing.T, files map[string]string) *Env {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dataDir, name), []byte(content), 0o644))
	}

	cfg := testConfig(dataDir, filepath.Join(dir, "test.db"))
	st, err := store.NewSQLite(cfg.Store.DatabaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	return NewEnv(cfg, st, registry.Berlin())
}

// queryRows runs a query against the env's store.
func queryRows(t *testing.T, env *Env, sql string) []store.Row {
	t.Helper()
	rows, err := env.Store.Query(context.Background(), sql)
	require.NoError(t, err)
	return rows
}

func num(t *testing.T, r store.Row, col string) float64 {
	t.Helper()
	v, ok := r.Float(col)
	require.True(t, ok, "column %s is not numeric: %v", col, r[col])
	return v
}

// ring returns a closed GeoJSON rectangle ring.
func ring(x0, y0, x1, y1 float64) string {
	return fmt.Sprintf("[[%[1]f,%[2]f],[%[3]f,%[2]f],[%[3]f,%[4]f],[%[1]f,%[4]f],[%[1]f,%[2]f]]", x0, y0, x1, y1)
}
