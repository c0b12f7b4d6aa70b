package geo

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// EncodeEWKB returns the boundary as EWKB bytes tagged with the polygon's
// EPSG code, always as a multipolygon so the stored column has one type.
func EncodeEWKB(p DistrictPolygon) ([]byte, error) {
	mp := geom.NewMultiPolygon(geom.XY)
	if err := pushPolygons(mp, p.Boundary); err != nil {
		return nil, eris.Wrapf(err, "geo: encode %s", p.District.Name)
	}

	data, err := ewkb.Marshal(mp.SetSRID(p.CRS.Code), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode WKB")
	}
	return data, nil
}

// DecodeEWKB parses bytes written by EncodeEWKB.
func DecodeEWKB(data []byte) (*geom.MultiPolygon, CRS, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, CRS{}, eris.Wrap(err, "geo: decode WKB")
	}
	mp, ok := g.(*geom.MultiPolygon)
	if !ok {
		return nil, CRS{}, eris.Errorf("geo: decoded %T, expected multipolygon", g)
	}
	return mp, CRS{Code: mp.SRID()}, nil
}
