package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/district-intel/internal/geo"
	"github.com/sells-group/district-intel/internal/model"
	"github.com/sells-group/district-intel/internal/registry"
)

type row struct {
	Key      string
	Lat, Lon float64
	HasPoint bool
}

func keyOf(r row) string { return r.Key }

func pointOf(r row) (model.Point, bool) {
	return model.Point{Lat: r.Lat, Lon: r.Lon}, r.HasPoint
}

func testContext(t *testing.T) *Context {
	t.Helper()
	reg := registry.Berlin()
	nm, err := registry.NewNeighborhoodMap(reg, []registry.NeighborhoodPair{
		{Neighborhood: "Moabit", District: "Mitte"},
		{Neighborhood: "Wedding", District: "Mitte"},
		{Neighborhood: "Prenzlauer Berg", District: "Pankow"},
	})
	require.NoError(t, err)

	square := func(minX, minY, maxX, maxY float64) *geom.Polygon {
		return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
			{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
		}})
	}
	mitte, _ := reg.ByID("01")
	pankow, _ := reg.ByID("03")
	res, err := geo.NewResolver([]geo.DistrictPolygon{
		{District: mitte, Boundary: square(13.0, 52.0, 13.5, 52.5), CRS: geo.WGS84},
		{District: pankow, Boundary: square(13.5, 52.0, 14.0, 52.5), CRS: geo.WGS84},
	})
	require.NoError(t, err)

	return &Context{Registry: reg, Neighborhoods: nm, Resolver: res, PointCRS: geo.WGS84}
}

func assertResolvedInRegistry(t *testing.T, reg *registry.Registry, records []Record[row]) {
	t.Helper()
	for _, rec := range records {
		if rec.Resolved {
			assert.True(t, reg.Contains(rec.District), "%+v", rec.District)
		} else {
			assert.True(t, rec.District.IsZero())
		}
	}
}

func TestNormalize_ByID(t *testing.T) {
	rc := testContext(t)
	n := Normalizer[row]{Dataset: "population", Method: model.ResolvedByID, Key: keyOf}

	res, err := n.Normalize([]row{{Key: "01"}, {Key: "3"}, {Key: "13"}, {Key: ""}}, rc)
	require.NoError(t, err)

	assert.Equal(t, Stats{Total: 4, Resolved: 2, Unresolved: 2}, res.Stats)
	assert.Equal(t, "Mitte", res.Records[0].District.Name)
	assert.Equal(t, "Pankow", res.Records[1].District.Name)
	assert.False(t, res.Records[2].Resolved)
	assert.Equal(t, map[string]int{"13": 1, "": 1}, res.Unmatched)
	assertResolvedInRegistry(t, rc.Registry, res.Records)
}

func TestNormalize_ByName(t *testing.T) {
	rc := testContext(t)
	n := Normalizer[row]{Dataset: "land_prices", Method: model.ResolvedByName, Key: keyOf}

	res, err := n.Normalize([]row{{Key: " NEUKÖLLN "}, {Key: "Neukoelln"}, {Key: "Friedrichshain–Kreuzberg"}, {Key: "Potsdam"}}, rc)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Stats.Resolved)
	assert.Equal(t, "08", res.Records[0].District.ID)
	assert.Equal(t, "08", res.Records[1].District.ID)
	assert.Equal(t, "02", res.Records[2].District.ID)
	assert.Equal(t, map[string]int{"Potsdam": 1}, res.Unmatched)
	assertResolvedInRegistry(t, rc.Registry, res.Records)
}

func TestNormalize_ByNeighborhood(t *testing.T) {
	rc := testContext(t)
	n := Normalizer[row]{Dataset: "schools", Method: model.ResolvedByNeighborhood, Key: keyOf}

	res, err := n.Normalize([]row{{Key: "Moabit"}, {Key: "prenzlauer  berg"}, {Key: "Atlantis"}}, rc)
	require.NoError(t, err)

	assert.Equal(t, Stats{Total: 3, Resolved: 2, Unresolved: 1}, res.Stats)
	assert.Equal(t, "01", res.Records[0].District.ID)
	assert.Equal(t, "03", res.Records[1].District.ID)
	assert.InDelta(t, 2.0/3.0, res.Stats.Rate(), 1e-9)
	assertResolvedInRegistry(t, rc.Registry, res.Records)
}

func TestNormalize_ByPoint(t *testing.T) {
	rc := testContext(t)
	n := Normalizer[row]{Dataset: "transport", Method: model.ResolvedByPoint, Point: pointOf}

	raw := []row{
		{Lat: 52.25, Lon: 13.25, HasPoint: true},
		{Lat: 52.25, Lon: 13.75, HasPoint: true},
		{Lat: 48.1, Lon: 11.5, HasPoint: true},
		{HasPoint: false},
	}
	res, err := n.Normalize(raw, rc)
	require.NoError(t, err)

	assert.Equal(t, Stats{Total: 4, Resolved: 2, Unresolved: 2}, res.Stats)
	assert.Equal(t, "Mitte", res.Records[0].District.Name)
	assert.Equal(t, "Pankow", res.Records[1].District.Name)
	assert.Equal(t, map[string]int{"outside": 1, "missing coordinates": 1}, res.Unmatched)
	assert.Len(t, res.ResolvedRecords(), 2)
	assertResolvedInRegistry(t, rc.Registry, res.Records)
}

func TestNormalize_OutsidePointCountsOnce(t *testing.T) {
	rc := testContext(t)
	n := Normalizer[row]{Dataset: "transport", Method: model.ResolvedByPoint, Point: pointOf}

	base, err := n.Normalize([]row{{Lat: 52.25, Lon: 13.25, HasPoint: true}}, rc)
	require.NoError(t, err)
	withOutside, err := n.Normalize([]row{{Lat: 52.25, Lon: 13.25, HasPoint: true}, {Lat: 0, Lon: 0, HasPoint: true}}, rc)
	require.NoError(t, err)

	assert.Equal(t, base.Stats.Unresolved+1, withOutside.Stats.Unresolved)
	assert.Equal(t, base.Stats.Resolved, withOutside.Stats.Resolved)
}

func TestNormalize_ResolverFromOtherRegistryIsRejected(t *testing.T) {
	rc := testContext(t)
	foreign := model.District{ID: "01", Name: "Altstadt"}
	res, err := geo.NewResolver([]geo.DistrictPolygon{{
		District: foreign,
		Boundary: geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}),
		CRS:      geo.WGS84,
	}})
	require.NoError(t, err)
	rc.Resolver = res

	n := Normalizer[row]{Dataset: "transport", Method: model.ResolvedByPoint, Point: pointOf}
	out, err := n.Normalize([]row{{Lat: 0.5, Lon: 0.5, HasPoint: true}}, rc)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Stats.Resolved)
	assert.Equal(t, 1, out.Unmatched["not in registry"])
}

func TestNormalize_MisconfiguredContext(t *testing.T) {
	rc := testContext(t)

	tests := []struct {
		name string
		n    Normalizer[row]
		rc   *Context
		msg  string
	}{
		{"nil context", Normalizer[row]{Method: model.ResolvedByID, Key: keyOf}, nil, "registry is required"},
		{"no key", Normalizer[row]{Method: model.ResolvedByName}, rc, "key accessor"},
		{"no mapping", Normalizer[row]{Method: model.ResolvedByNeighborhood, Key: keyOf}, &Context{Registry: rc.Registry}, "neighborhood mapping"},
		{"no resolver", Normalizer[row]{Method: model.ResolvedByPoint, Point: pointOf}, &Context{Registry: rc.Registry}, "spatial resolver"},
		{"no point", Normalizer[row]{Method: model.ResolvedByPoint}, rc, "point accessor"},
		{"unknown method", Normalizer[row]{Method: "postcode", Key: keyOf}, rc, "unknown method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.n.Normalize([]row{{Key: "01"}}, tt.rc)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestNormalize_Empty(t *testing.T) {
	rc := testContext(t)
	n := Normalizer[row]{Dataset: "population", Method: model.ResolvedByID, Key: keyOf}

	res, err := n.Normalize(nil, rc)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, res.Stats)
	assert.Equal(t, 0.0, res.Stats.Rate())
	assert.Equal(t, 0.0, res.Stats.UnresolvedRatio())
}

func TestStats_Ratios(t *testing.T) {
	s := Stats{Total: 4, Resolved: 1, Unresolved: 3}
	assert.Equal(t, 0.25, s.Rate())
	assert.Equal(t, 0.75, s.UnresolvedRatio())
}
