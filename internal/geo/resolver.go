package geo

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/district-intel/internal/model"
)

// Match is the outcome of resolving one point.
type Match struct {
	District model.District
	Resolved bool
}

// Resolver assigns points to the district polygon containing them. Polygons
// are tested in the order given, which must be the registry's canonical
// order: the first containing polygon wins.
type Resolver struct {
	crs      CRS
	polygons []DistrictPolygon
	parts    [][]*geom.Polygon
	bounds   []*geom.Bounds
}

// NewResolver builds a resolver over polygons that share one CRS.
func NewResolver(polygons []DistrictPolygon) (*Resolver, error) {
	if len(polygons) == 0 {
		return nil, eris.New("geo: resolver needs at least one polygon")
	}

	r := &Resolver{
		crs:      polygons[0].CRS,
		polygons: polygons,
		parts:    make([][]*geom.Polygon, len(polygons)),
		bounds:   make([]*geom.Bounds, len(polygons)),
	}
	for i, p := range polygons {
		if p.CRS != r.crs {
			return nil, eris.Errorf("geo: polygon %s is in %s, expected %s", p.District.Name, p.CRS, r.crs)
		}
		if p.Boundary == nil {
			return nil, eris.Errorf("geo: polygon %s has no boundary", p.District.Name)
		}
		r.parts[i] = p.Parts()
		r.bounds[i] = p.Boundary.Bounds()
	}
	return r, nil
}

// CRS returns the polygons' reference system.
func (r *Resolver) CRS() CRS { return r.crs }

// Polygons returns the polygons in resolution order.
func (r *Resolver) Polygons() []DistrictPolygon { return r.polygons }

// Resolve returns the district containing c, where c is already in the
// resolver's CRS.
func (r *Resolver) Resolve(c geom.Coord) (model.District, bool) {
	if len(c) < 2 || math.IsNaN(c[0]) || math.IsNaN(c[1]) {
		return model.District{}, false
	}
	for i, b := range r.bounds {
		if !b.OverlapsPoint(geom.XY, c) {
			continue
		}
		for _, part := range r.parts[i] {
			if within(part, c) {
				return r.polygons[i].District, true
			}
		}
	}
	return model.District{}, false
}

// ResolveAll reprojects points from crs into the resolver's CRS in one pass
// and then resolves each of them. The result is index-aligned with points.
func (r *Resolver) ResolveAll(points []model.Point, crs CRS) ([]Match, error) {
	t, err := NewTransformer(crs, r.crs)
	if err != nil {
		return nil, eris.Wrap(err, "geo: reproject points")
	}

	coords := make([]geom.Coord, len(points))
	for i, p := range points {
		x, y := t.Transform(p.Lon, p.Lat)
		coords[i] = geom.Coord{x, y}
	}

	matches := make([]Match, len(points))
	for i, c := range coords {
		d, ok := r.Resolve(c)
		matches[i] = Match{District: d, Resolved: ok}
	}
	return matches, nil
}
