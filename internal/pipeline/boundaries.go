package pipeline

import (
	"context"

	"github.com/sells-group/district-intel/internal/geo"
	"github.com/sells-group/district-intel/internal/store"
)

// Boundaries stores the district polygons as EWKB multipolygons so the
// spatial assignment can be inspected alongside the loaded data.
type Boundaries struct{}

func (d *Boundaries) Name() string     { return "boundaries" }
func (d *Boundaries) Tables() []string { return []string{"district_boundaries"} }

func (d *Boundaries) Load(ctx context.Context, env *Env) (*Summary, error) {
	sum := newSummary(d.Name())

	b, err := env.Boundaries()
	if err != nil {
		return nil, err
	}
	sum.Stats.Total = b.Features
	sum.Stats.Unresolved = len(b.Dropped)
	sum.Stats.Resolved = b.Features - len(b.Dropped)
	for _, name := range b.Dropped {
		sum.Unmatched[name]++
	}
	if err := checkUnresolved(sum, env.Config.Load.MaxUnresolvedRatio); err != nil {
		return nil, err
	}

	t := store.Table{
		Name: "district_boundaries",
		Columns: []store.Column{
			{Name: "district_id", Type: store.Text},
			{Name: "district", Type: store.Text},
			{Name: "crs", Type: store.Text},
			{Name: "parts", Type: store.Integer},
			{Name: "min_x", Type: store.Real},
			{Name: "min_y", Type: store.Real},
			{Name: "max_x", Type: store.Real},
			{Name: "max_y", Type: store.Real},
			{Name: "geometry", Type: store.Blob},
		},
		Rows: make([][]any, 0, len(b.Polygons)),
	}
	for _, p := range b.Polygons {
		wkb, err := geo.EncodeEWKB(p)
		if err != nil {
			return nil, err
		}
		bounds := p.Boundary.Bounds()
		t.Rows = append(t.Rows, []any{
			p.District.ID,
			p.District.Name,
			p.CRS.String(),
			int64(len(p.Parts())),
			bounds.Min(0), bounds.Min(1),
			bounds.Max(0), bounds.Max(1),
			wkb,
		})
	}

	if err := write(ctx, env, sum, t); err != nil {
		return nil, err
	}
	return sum, nil
}
