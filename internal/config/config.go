package config

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Sources  SourcesConfig  `yaml:"sources" mapstructure:"sources"`
	Boundary BoundaryConfig `yaml:"boundary" mapstructure:"boundary"`
	Points   PointsConfig   `yaml:"points" mapstructure:"points"`
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`
	Load     LoadConfig     `yaml:"load" mapstructure:"load"`
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SourcesConfig lists the input files for each dataset. Relative paths are
// resolved against DataDir.
type SourcesConfig struct {
	DataDir        string `yaml:"data_dir" mapstructure:"data_dir"`
	Crime          string `yaml:"crime" mapstructure:"crime"`
	Population     string `yaml:"population" mapstructure:"population"`
	LandPrices     string `yaml:"land_prices" mapstructure:"land_prices"`
	Schools        string `yaml:"schools" mapstructure:"schools"`
	Neighborhoods  string `yaml:"neighborhoods" mapstructure:"neighborhoods"`
	TransportStops string `yaml:"transport_stops" mapstructure:"transport_stops"`
	Boundaries     string `yaml:"boundaries" mapstructure:"boundaries"`
}

// Path resolves a configured source path against DataDir.
func (s SourcesConfig) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || s.DataDir == "" {
		return p
	}
	return filepath.Join(s.DataDir, p)
}

// BoundaryConfig configures the district boundary file.
type BoundaryConfig struct {
	// NameProperty is the feature property holding the district name.
	NameProperty string `yaml:"name_property" mapstructure:"name_property"`
	// CRS is used when the boundary file does not declare one.
	CRS string `yaml:"crs" mapstructure:"crs"`
}

// PointsConfig configures coordinate columns in point datasets.
type PointsConfig struct {
	CRS string `yaml:"crs" mapstructure:"crs"`
}

// RegistryConfig points at an optional YAML district registry. When Path is
// empty the built-in registry is used.
type RegistryConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LoadConfig configures dataset loads.
type LoadConfig struct {
	MaxUnresolvedRatio float64 `yaml:"max_unresolved_ratio" mapstructure:"max_unresolved_ratio"`
	Delimiter          string  `yaml:"delimiter" mapstructure:"delimiter"`
}

// AnalysisConfig configures the cross-dataset reports.
type AnalysisConfig struct {
	ResidentialUsePrefix string          `yaml:"residential_use_prefix" mapstructure:"residential_use_prefix"`
	MinPairedDistricts   int             `yaml:"min_paired_districts" mapstructure:"min_paired_districts"`
	PerCapitaBase        float64         `yaml:"per_capita_base" mapstructure:"per_capita_base"`
	Risk                 ThresholdConfig `yaml:"risk" mapstructure:"risk"`
}

// ThresholdConfig defines a three-level labelling of a metric. Values below
// Low get Labels[0], values below High get Labels[1], the rest Labels[2].
type ThresholdConfig struct {
	Low    float64  `yaml:"low" mapstructure:"low"`
	High   float64  `yaml:"high" mapstructure:"high"`
	Labels []string `yaml:"labels" mapstructure:"labels"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DISTRICT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "database/berlin_intelligence.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("sources.data_dir", "data")
	v.SetDefault("sources.crime", "crime_statistics/berlin_crime_statistics_final.csv")
	v.SetDefault("sources.population", "population_statistics/berlin_district_population.csv")
	v.SetDefault("sources.land_prices", "real_estate/land_prices.csv")
	v.SetDefault("sources.schools", "schools/berlin_schools.csv")
	v.SetDefault("sources.neighborhoods", "districts_neighborhoods/neighborhoods_enhanced.csv")
	v.SetDefault("sources.transport_stops", "public_transport/cleaned_stops.csv")
	v.SetDefault("sources.boundaries", "districts_neighborhoods/bezirksgrenzen_berlin.geojson")
	v.SetDefault("boundary.name_property", "Gemeinde_name")
	v.SetDefault("boundary.crs", "EPSG:4326")
	v.SetDefault("points.crs", "EPSG:4326")
	v.SetDefault("load.max_unresolved_ratio", 0.5)
	v.SetDefault("load.delimiter", ",")
	v.SetDefault("analysis.residential_use_prefix", "W")
	v.SetDefault("analysis.min_paired_districts", 12)
	v.SetDefault("analysis.per_capita_base", 100000.0)
	v.SetDefault("analysis.risk.low", 400000.0)
	v.SetDefault("analysis.risk.high", 600000.0)
	v.SetDefault("analysis.risk.labels", []string{"safe", "medium", "risk"})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields that must be set explicitly for unattended runs.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store.driver %q (valid: sqlite, postgres)", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required")
	}
	if c.Boundary.NameProperty == "" {
		return eris.New("config: boundary.name_property is required")
	}
	if c.Load.MaxUnresolvedRatio < 0 || c.Load.MaxUnresolvedRatio > 1 {
		return eris.Errorf("config: load.max_unresolved_ratio must be within [0,1], got %v", c.Load.MaxUnresolvedRatio)
	}
	if len([]rune(c.Load.Delimiter)) != 1 {
		return eris.Errorf("config: load.delimiter must be a single character, got %q", c.Load.Delimiter)
	}
	if c.Analysis.PerCapitaBase <= 0 {
		return eris.New("config: analysis.per_capita_base must be positive")
	}
	risk := c.Analysis.Risk
	if len(risk.Labels) != 3 {
		return eris.Errorf("config: analysis.risk.labels needs 3 labels, got %d", len(risk.Labels))
	}
	if risk.Low > risk.High {
		return eris.Errorf("config: analysis.risk.low (%v) exceeds analysis.risk.high (%v)", risk.Low, risk.High)
	}
	return nil
}

// DelimiterRune returns the configured CSV delimiter.
func (c LoadConfig) DelimiterRune() rune {
	r := []rune(c.Delimiter)
	if len(r) != 1 {
		return ','
	}
	return r[0]
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
