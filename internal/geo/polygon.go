// Package geo loads district boundaries and resolves points onto districts
// by polygon containment.
package geo

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/district-intel/internal/model"
)

// DistrictPolygon is the boundary of one district. Boundary is a
// *geom.Polygon or *geom.MultiPolygon in CRS.
type DistrictPolygon struct {
	District model.District
	Boundary geom.T
	CRS      CRS
}

// Parts returns the polygons making up the boundary.
func (p DistrictPolygon) Parts() []*geom.Polygon {
	switch g := p.Boundary.(type) {
	case *geom.Polygon:
		return []*geom.Polygon{g}
	case *geom.MultiPolygon:
		out := make([]*geom.Polygon, 0, g.NumPolygons())
		for i := 0; i < g.NumPolygons(); i++ {
			out = append(out, g.Polygon(i))
		}
		return out
	default:
		return nil
	}
}

// Contains reports whether c (in the polygon's CRS) lies strictly inside the
// boundary. Points on an edge are not contained.
func (p DistrictPolygon) Contains(c geom.Coord) bool {
	for _, part := range p.Parts() {
		if within(part, c) {
			return true
		}
	}
	return false
}

// Reproject returns a copy of p with its boundary converted to crs.
func (p DistrictPolygon) Reproject(crs CRS) (DistrictPolygon, error) {
	if p.CRS == crs {
		return p, nil
	}
	t, err := NewTransformer(p.CRS, crs)
	if err != nil {
		return DistrictPolygon{}, err
	}

	out := DistrictPolygon{District: p.District, CRS: crs}
	switch g := p.Boundary.(type) {
	case *geom.Polygon:
		flat := append([]float64(nil), g.FlatCoords()...)
		t.TransformFlat(g.Layout(), flat)
		out.Boundary = geom.NewPolygonFlat(g.Layout(), flat, g.Ends())
	case *geom.MultiPolygon:
		flat := append([]float64(nil), g.FlatCoords()...)
		t.TransformFlat(g.Layout(), flat)
		out.Boundary = geom.NewMultiPolygonFlat(g.Layout(), flat, g.Endss())
	default:
		return DistrictPolygon{}, eris.Errorf("geo: %s boundary has unsupported geometry %T", p.District.Name, p.Boundary)
	}
	return out, nil
}

// within tests c against the interior of poly: inside the shell and off its
// edges, and outside every hole including the hole's edges.
func within(poly *geom.Polygon, c geom.Coord) bool {
	if poly.NumLinearRings() == 0 {
		return false
	}
	layout := poly.Layout()
	shell := poly.LinearRing(0).FlatCoords()
	if !xy.IsPointInRing(layout, c, shell) || xy.IsOnLine(layout, c, shell) {
		return false
	}
	for i := 1; i < poly.NumLinearRings(); i++ {
		if xy.IsPointInRing(layout, c, poly.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}
