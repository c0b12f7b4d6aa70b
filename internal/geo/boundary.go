package geo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/district-intel/internal/fetcher"
	"github.com/sells-group/district-intel/internal/registry"
)

// BoundaryOptions configures boundary loading.
type BoundaryOptions struct {
	// NameProperty is the feature attribute holding the district name.
	NameProperty string
	// DefaultCRS applies when the file does not declare a CRS.
	DefaultCRS CRS
}

// Boundaries is the result of loading a boundary file.
type Boundaries struct {
	Polygons []DistrictPolygon
	// Dropped lists feature names that matched no registry district.
	Dropped []string
	Features int
}

// feature is a named geometry read from a boundary file.
type feature struct {
	name string
	geom geom.T
}

// LoadBoundaries reads district polygons from a GeoJSON (.geojson, .json) or
// ESRI shapefile (.shp) and resolves their names onto reg. The returned
// polygons follow the registry's canonical order; several features naming
// the same district are merged into one multipolygon.
func LoadBoundaries(path string, reg *registry.Registry, opts BoundaryOptions) (*Boundaries, error) {
	if opts.NameProperty == "" {
		return nil, eris.New("geo: boundary name property is required")
	}
	if err := fetcher.CheckExists(path); err != nil {
		return nil, err
	}

	var (
		features []feature
		crs      CRS
		err      error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		features, err = readShapefile(path, opts.NameProperty)
	default:
		features, crs, err = readGeoJSON(path, opts.NameProperty)
	}
	if err != nil {
		return nil, err
	}
	if crs.IsZero() {
		crs = opts.DefaultCRS
	}
	if crs.IsZero() {
		crs = WGS84
	}

	return assemble(features, crs, reg)
}

func assemble(features []feature, crs CRS, reg *registry.Registry) (*Boundaries, error) {
	log := zap.L().With(zap.String("component", "geo.boundary"))

	merged := make(map[string]*geom.MultiPolygon)
	var dropped []string
	for _, f := range features {
		d, ok := reg.ByName(f.name)
		if !ok {
			dropped = append(dropped, f.name)
			log.Warn("boundary feature matches no district", zap.String("name", f.name))
			continue
		}
		mp, ok := merged[d.ID]
		if !ok {
			mp = geom.NewMultiPolygon(geom.XY)
			merged[d.ID] = mp
		}
		if err := pushPolygons(mp, f.geom); err != nil {
			return nil, eris.Wrapf(err, "geo: boundary for %s", f.name)
		}
	}

	out := &Boundaries{Dropped: dropped, Features: len(features)}
	for _, d := range reg.Districts() {
		mp, ok := merged[d.ID]
		if !ok {
			continue
		}
		var boundary geom.T = mp
		if mp.NumPolygons() == 1 {
			boundary = mp.Polygon(0)
		}
		out.Polygons = append(out.Polygons, DistrictPolygon{District: d, Boundary: boundary, CRS: crs})
	}
	if len(out.Polygons) == 0 {
		return nil, eris.Wrap(fetcher.ErrSchemaMismatch, "geo: no boundary feature matched a registry district")
	}
	return out, nil
}

// pushPolygons appends the XY parts of g to mp.
func pushPolygons(mp *geom.MultiPolygon, g geom.T) error {
	switch t := g.(type) {
	case *geom.Polygon:
		return mp.Push(toXY(t))
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if err := mp.Push(toXY(t.Polygon(i))); err != nil {
				return err
			}
		}
		return nil
	default:
		return eris.Errorf("unsupported geometry %T", g)
	}
}

func toXY(p *geom.Polygon) *geom.Polygon {
	if p.Layout() == geom.XY {
		return p
	}
	stride := p.Layout().Stride()
	src := p.FlatCoords()
	flat := make([]float64, 0, len(src)/stride*2)
	for i := 0; i+1 < len(src); i += stride {
		flat = append(flat, src[i], src[i+1])
	}
	ends := make([]int, len(p.Ends()))
	for i, e := range p.Ends() {
		ends[i] = e / stride * 2
	}
	return geom.NewPolygonFlat(geom.XY, flat, ends)
}

// namedCRS is the legacy GeoJSON "crs" member still emitted by most GIS
// exports.
type namedCRS struct {
	CRS *struct {
		Type       string `json:"type"`
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	} `json:"crs"`
}

func readGeoJSON(path, nameProperty string) ([]feature, CRS, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, CRS{}, eris.Wrapf(err, "geo: read %s", path)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, CRS{}, eris.Wrapf(err, "geo: decode geojson %s", path)
	}

	var crs CRS
	var member namedCRS
	if err := json.Unmarshal(data, &member); err == nil && member.CRS != nil && member.CRS.Properties.Name != "" {
		crs, err = ParseCRS(member.CRS.Properties.Name)
		if err != nil {
			return nil, CRS{}, eris.Wrapf(err, "geo: %s", path)
		}
	}

	features := make([]feature, 0, len(fc.Features))
	for i, f := range fc.Features {
		raw, ok := f.Properties[nameProperty]
		if !ok || raw == nil {
			return nil, CRS{}, eris.Wrapf(fetcher.ErrSchemaMismatch,
				"%s: feature %d has no %q property", path, i, nameProperty)
		}
		if f.Geometry == nil {
			continue
		}
		features = append(features, feature{name: strings.TrimSpace(fmt.Sprint(raw)), geom: f.Geometry})
	}
	return features, crs, nil
}
