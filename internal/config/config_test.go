package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "database/berlin_intelligence.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "data", cfg.Sources.DataDir)
	assert.Equal(t, "Gemeinde_name", cfg.Boundary.NameProperty)
	assert.Equal(t, "EPSG:4326", cfg.Boundary.CRS)
	assert.Equal(t, "EPSG:4326", cfg.Points.CRS)
	assert.InDelta(t, 0.5, cfg.Load.MaxUnresolvedRatio, 0.001)
	assert.Equal(t, ',', cfg.Load.DelimiterRune())
	assert.Equal(t, "W", cfg.Analysis.ResidentialUsePrefix)
	assert.Equal(t, 12, cfg.Analysis.MinPairedDistricts)
	assert.InDelta(t, 100000.0, cfg.Analysis.PerCapitaBase, 0.001)
	assert.InDelta(t, 400000.0, cfg.Analysis.Risk.Low, 0.001)
	assert.InDelta(t, 600000.0, cfg.Analysis.Risk.High, 0.001)
	assert.Equal(t, []string{"safe", "medium", "risk"}, cfg.Analysis.Risk.Labels)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/berlin
log:
  level: debug
boundary:
  name_property: name
  crs: EPSG:25833
analysis:
  min_paired_districts: 10
  risk:
    low: 1000
    high: 2000
    labels: [green, yellow, red]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/berlin", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "name", cfg.Boundary.NameProperty)
	assert.Equal(t, "EPSG:25833", cfg.Boundary.CRS)
	assert.Equal(t, 10, cfg.Analysis.MinPairedDistricts)
	assert.Equal(t, []string{"green", "yellow", "red"}, cfg.Analysis.Risk.Labels)
	// Defaults still apply for unset values
	assert.Equal(t, "W", cfg.Analysis.ResidentialUsePrefix)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("DISTRICT_STORE_DRIVER", "postgres")
	t.Setenv("DISTRICT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestSourcesPath(t *testing.T) {
	s := SourcesConfig{DataDir: "data"}
	assert.Equal(t, filepath.Join("data", "schools", "x.csv"), s.Path("schools/x.csv"))
	assert.Equal(t, "/abs/x.csv", s.Path("/abs/x.csv"))
	assert.Equal(t, "", s.Path(""))

	assert.Equal(t, "x.csv", SourcesConfig{}.Path("x.csv"))
}

func validConfig() *Config {
	return &Config{
		Store:    StoreConfig{Driver: "sqlite", DatabaseURL: "test.db"},
		Boundary: BoundaryConfig{NameProperty: "Gemeinde_name"},
		Load:     LoadConfig{MaxUnresolvedRatio: 0.5, Delimiter: ","},
		Analysis: AnalysisConfig{
			PerCapitaBase: 100000,
			Risk:          ThresholdConfig{Low: 1, High: 2, Labels: []string{"a", "b", "c"}},
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(_ *Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "mysql" }, wantErr: "unknown store.driver"},
		{name: "missing database url", mutate: func(c *Config) { c.Store.DatabaseURL = "" }, wantErr: "database_url is required"},
		{name: "missing name property", mutate: func(c *Config) { c.Boundary.NameProperty = "" }, wantErr: "name_property is required"},
		{name: "ratio out of range", mutate: func(c *Config) { c.Load.MaxUnresolvedRatio = 1.5 }, wantErr: "max_unresolved_ratio"},
		{name: "multi-char delimiter", mutate: func(c *Config) { c.Load.Delimiter = ";;" }, wantErr: "single character"},
		{name: "zero per capita base", mutate: func(c *Config) { c.Analysis.PerCapitaBase = 0 }, wantErr: "per_capita_base"},
		{name: "two labels", mutate: func(c *Config) { c.Analysis.Risk.Labels = []string{"a", "b"} }, wantErr: "needs 3 labels"},
		{name: "inverted thresholds", mutate: func(c *Config) { c.Analysis.Risk.Low = 5 }, wantErr: "exceeds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
