package geo

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/wroge/wgs84/v2"
)

// CRS identifies a coordinate reference system by EPSG code. Coordinates are
// always x/y ordered: lon/lat for geographic systems, easting/northing for
// projected ones.
type CRS struct {
	Code int
}

// Supported reference systems.
var (
	WGS84       = CRS{Code: 4326}
	WebMercator = CRS{Code: 3857}
)

// String returns the "EPSG:nnnn" form.
func (c CRS) String() string {
	return "EPSG:" + strconv.Itoa(c.Code)
}

// IsZero reports whether c is unset.
func (c CRS) IsZero() bool { return c.Code == 0 }

// ParseCRS accepts "EPSG:25833", "epsg:4326", "urn:ogc:def:crs:EPSG::25833",
// "urn:ogc:def:crs:OGC:1.3:CRS84" and bare codes.
func ParseCRS(s string) (CRS, error) {
	t := strings.ToUpper(strings.TrimSpace(s))
	if t == "" {
		return CRS{}, eris.New("geo: empty CRS")
	}
	if strings.HasSuffix(t, "CRS84") {
		return WGS84, nil
	}
	if i := strings.LastIndex(t, ":"); i >= 0 {
		t = t[i+1:]
	}
	code, err := strconv.Atoi(t)
	if err != nil {
		return CRS{}, eris.Errorf("geo: unrecognized CRS %q", s)
	}
	c := CRS{Code: code}
	if err := c.check(); err != nil {
		return CRS{}, err
	}
	return c, nil
}

// check limits codes to geographic WGS84, web mercator and the WGS84 and
// ETRS89 UTM zones.
func (c CRS) check() error {
	switch {
	case c.Code == 4326, c.Code == 3857:
	case c.Code >= 32601 && c.Code <= 32660:
	case c.Code >= 32701 && c.Code <= 32760:
	case c.Code >= 25828 && c.Code <= 25838:
	default:
		return eris.Errorf("geo: unsupported CRS %s", c)
	}
	return nil
}

// Transformer converts x/y coordinates from one CRS into another.
type Transformer struct {
	fn       wgs84.Func
	identity bool
}

// NewTransformer builds a transformer from -> to.
func NewTransformer(from, to CRS) (*Transformer, error) {
	if err := from.check(); err != nil {
		return nil, err
	}
	if err := to.check(); err != nil {
		return nil, err
	}
	if from == to {
		return &Transformer{identity: true}, nil
	}
	return &Transformer{fn: wgs84.Transform(wgs84.EPSG(from.Code), wgs84.EPSG(to.Code))}, nil
}

// Transform converts one coordinate.
func (t *Transformer) Transform(x, y float64) (float64, float64) {
	if t.identity {
		return x, y
	}
	x, y, _ = t.fn(x, y, 0)
	return x, y
}

// TransformFlat converts flat x/y coordinates in place.
func (t *Transformer) TransformFlat(layout geom.Layout, flat []float64) {
	if t.identity {
		return
	}
	stride := layout.Stride()
	for i := 0; i+1 < len(flat); i += stride {
		flat[i], flat[i+1] = t.Transform(flat[i], flat[i+1])
	}
}
