package geo

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/district-intel/internal/fetcher"
)

// readShapefile reads polygon features and their nameField attribute.
func readShapefile(shpPath, nameField string) ([]feature, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	nameIdx := -1
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		if strings.EqualFold(name, nameField) {
			nameIdx = i
			break
		}
	}
	if nameIdx < 0 {
		return nil, eris.Wrapf(fetcher.ErrSchemaMismatch, "%s: no %q attribute", shpPath, nameField)
	}

	var features []feature
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		name := strings.TrimSpace(strings.TrimRight(reader.Attribute(nameIdx), "\x00"))

		poly, ok := shape.(*shp.Polygon)
		if !ok || name == "" {
			skipped++
			continue
		}
		mp := polygonToMultiPolygon(poly)
		if mp == nil {
			skipped++
			continue
		}
		features = append(features, feature{name: name, geom: mp})
	}

	if skipped > 0 {
		zap.L().Debug("geo: skipped shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}

	return features, nil
}

// polygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon.
// Shapefile outer rings run clockwise and holes counter-clockwise; each hole
// is attached to the most recent outer ring.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	var current [][]float64

	flush := func() {
		if len(current) == 0 {
			return
		}
		ends := make([]int, 0, len(current))
		var flat []float64
		for _, ring := range current {
			flat = append(flat, ring...)
			ends = append(ends, len(flat))
		}
		if err := mp.Push(geom.NewPolygonFlat(geom.XY, flat, ends)); err != nil {
			zap.L().Debug("geo: skipping malformed polygon part", zap.Error(err))
		}
		current = nil
	}

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		ring := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			ring = append(ring, p.Points[j].X, p.Points[j].Y)
		}
		if len(ring) < 8 {
			continue
		}

		if signedArea(ring) <= 0 || len(current) == 0 {
			flush()
		}
		current = append(current, ring)
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// signedArea is positive for counter-clockwise rings.
func signedArea(ring []float64) float64 {
	var a float64
	for i := 0; i+3 < len(ring); i += 2 {
		a += ring[i]*ring[i+3] - ring[i+2]*ring[i+1]
	}
	return a / 2
}
