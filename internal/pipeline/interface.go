// Package pipeline loads the district datasets: each dataset reads its
// source file, resolves records onto canonical districts, aggregates
// district metrics and replaces its tables in the store.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/district-intel/internal/coerce"
	"github.com/sells-group/district-intel/internal/config"
	"github.com/sells-group/district-intel/internal/fetcher"
	"github.com/sells-group/district-intel/internal/geo"
	"github.com/sells-group/district-intel/internal/normalize"
	"github.com/sells-group/district-intel/internal/registry"
	"github.com/sells-group/district-intel/internal/store"
)

// ErrTooManyUnresolved aborts a load whose unresolved share exceeds
// load.max_unresolved_ratio. Nothing is written in that case.
var ErrTooManyUnresolved = eris.New("pipeline: too many unresolved records")

// Dataset defines the interface each district dataset implements.
type Dataset interface {
	// Name returns the unique identifier for this dataset (e.g., "crime").
	Name() string

	// Tables returns the tables the dataset replaces, primary table first.
	Tables() []string

	// Load reads, resolves, aggregates and writes the dataset.
	Load(ctx context.Context, env *Env) (*Summary, error)
}

// Summary is the outcome of one dataset load.
type Summary struct {
	Dataset string
	Stats   normalize.Stats
	// Defaults counts count-like fields that were missing or unparsable
	// and stored as zero, per column.
	Defaults  coerce.Tally
	Unmatched map[string]int
	// Tables maps each written table to its row count.
	Tables map[string]int64
	// Extra holds dataset-specific facts added to the run metadata.
	Extra map[string]any
}

func newSummary(name string) *Summary {
	return &Summary{
		Dataset:   name,
		Defaults:  coerce.Tally{},
		Unmatched: map[string]int{},
		Tables:    map[string]int64{},
		Extra:     map[string]any{},
	}
}

// Rows returns the total number of rows written.
func (s *Summary) Rows() int64 {
	var n int64
	for _, v := range s.Tables {
		n += v
	}
	return n
}

// Metadata returns the summary in the shape stored in the run log.
func (s *Summary) Metadata() map[string]any {
	m := map[string]any{
		"total":      s.Stats.Total,
		"resolved":   s.Stats.Resolved,
		"unresolved": s.Stats.Unresolved,
		"defaults":   map[string]int(s.Defaults),
		"unmatched":  s.Unmatched,
		"tables":     s.Tables,
	}
	for k, v := range s.Extra {
		if _, taken := m[k]; !taken {
			m[k] = v
		}
	}
	return m
}

// Env is the shared environment handed to every dataset. Reference data
// (neighborhood mapping, boundaries) is read on first use and reused.
type Env struct {
	Config   *config.Config
	Store    store.Gateway
	Registry *registry.Registry

	neighborhoods *registry.NeighborhoodMap
	boundaries    *geo.Boundaries
	resolver      *geo.Resolver
}

// NewEnv creates an environment for one engine run.
func NewEnv(cfg *config.Config, gw store.Gateway, reg *registry.Registry) *Env {
	return &Env{Config: cfg, Store: gw, Registry: reg}
}

// Source resolves a configured source path.
func (e *Env) Source(p string) string {
	return e.Config.Sources.Path(p)
}

// ReadOptions returns the tabular read options from config.
func (e *Env) ReadOptions() fetcher.Options {
	return fetcher.Options{Delimiter: e.Config.Load.DelimiterRune()}
}

// Neighborhoods returns the neighborhood -> district mapping.
func (e *Env) Neighborhoods() (*registry.NeighborhoodMap, error) {
	if e.neighborhoods != nil {
		return e.neighborhoods, nil
	}
	pairs, err := fetcher.ReadAll[registry.NeighborhoodPair](
		e.Source(e.Config.Sources.Neighborhoods),
		[]string{"neighborhood", "district"},
		e.ReadOptions(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: read neighborhood mapping")
	}
	nm, err := registry.NewNeighborhoodMap(e.Registry, pairs)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("pipeline: neighborhood mapping loaded",
		zap.Int("neighborhoods", nm.Len()),
		zap.Int("districts", nm.Districts()),
	)
	e.neighborhoods = nm
	return nm, nil
}

// Boundaries returns the district polygons.
func (e *Env) Boundaries() (*geo.Boundaries, error) {
	if e.boundaries != nil {
		return e.boundaries, nil
	}
	var defaultCRS geo.CRS
	if e.Config.Boundary.CRS != "" {
		c, err := geo.ParseCRS(e.Config.Boundary.CRS)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: boundary.crs")
		}
		defaultCRS = c
	}
	b, err := geo.LoadBoundaries(e.Source(e.Config.Sources.Boundaries), e.Registry, geo.BoundaryOptions{
		NameProperty: e.Config.Boundary.NameProperty,
		DefaultCRS:   defaultCRS,
	})
	if err != nil {
		return nil, err
	}
	e.boundaries = b
	return b, nil
}

// Resolver returns a spatial resolver over the district polygons.
func (e *Env) Resolver() (*geo.Resolver, error) {
	if e.resolver != nil {
		return e.resolver, nil
	}
	b, err := e.Boundaries()
	if err != nil {
		return nil, err
	}
	r, err := geo.NewResolver(b.Polygons)
	if err != nil {
		return nil, err
	}
	e.resolver = r
	return r, nil
}

// PointCRS returns the reference system of source coordinates.
func (e *Env) PointCRS() (geo.CRS, error) {
	if e.Config.Points.CRS == "" {
		return geo.WGS84, nil
	}
	c, err := geo.ParseCRS(e.Config.Points.CRS)
	if err != nil {
		return geo.CRS{}, eris.Wrap(err, "pipeline: points.crs")
	}
	return c, nil
}
