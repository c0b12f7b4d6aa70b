package pipeline

import (
	"context"

	"github.com/sells-group/district-intel/internal/aggregate"
	"github.com/sells-group/district-intel/internal/coerce"
	"github.com/sells-group/district-intel/internal/fetcher"
	"github.com/sells-group/district-intel/internal/model"
	"github.com/sells-group/district-intel/internal/normalize"
	"github.com/sells-group/district-intel/internal/store"
)

// stopRow is one GTFS-style stop.
type stopRow struct {
	StopID             string `csv:"stop_id"`
	StopName           string `csv:"stop_name"`
	StopLat            string `csv:"stop_lat"`
	StopLon            string `csv:"stop_lon"`
	ZoneID             string `csv:"zone_id"`
	WheelchairBoarding string `csv:"wheelchair_boarding"`
}

var stopRequired = []string{"stop_id", "stop_name", "stop_lat", "stop_lon"}

// wheelchairAccessible is the GTFS wheelchair_boarding value for stops
// with accessible boarding.
const wheelchairAccessible = 1

type stopRecord struct {
	raw           stopRow
	lat, lon      *float64
	wheelchair    int64
	hasWheelchair bool
}

func (r stopRecord) point() (model.Point, bool) {
	if r.lat == nil || r.lon == nil {
		return model.Point{}, false
	}
	return model.Point{Lat: *r.lat, Lon: *r.lon}, true
}

// Transport loads public transport stops, assigned to districts by
// polygon containment of their coordinates.
type Transport struct{}

func (d *Transport) Name() string { return "transport" }
func (d *Transport) Tables() []string {
	return []string{"public_transport_stops", "district_transport_metrics"}
}

func (d *Transport) Load(ctx context.Context, env *Env) (*Summary, error) {
	sum := newSummary(d.Name())

	rows, err := fetcher.ReadAll[stopRow](env.Source(env.Config.Sources.TransportStops), stopRequired, env.ReadOptions())
	if err != nil {
		return nil, err
	}
	resolver, err := env.Resolver()
	if err != nil {
		return nil, err
	}
	crs, err := env.PointCRS()
	if err != nil {
		return nil, err
	}

	parsed := make([]stopRecord, len(rows))
	for i, r := range rows {
		wc, ok := coerce.Count(r.WheelchairBoarding)
		parsed[i] = stopRecord{
			raw:           r,
			lat:           coerce.OptionalFloat(r.StopLat),
			lon:           coerce.OptionalFloat(r.StopLon),
			wheelchair:    wc,
			hasWheelchair: ok,
		}
	}

	n := normalize.Normalizer[stopRecord]{
		Dataset: d.Name(),
		Method:  model.ResolvedByPoint,
		Point:   stopRecord.point,
	}
	rc := &normalize.Context{Registry: env.Registry, Resolver: resolver, PointCRS: crs}
	records, err := resolve(env, sum, n, parsed, rc)
	if err != nil {
		return nil, err
	}

	detail := store.Table{
		Name: "public_transport_stops",
		Columns: []store.Column{
			{Name: "stop_id", Type: store.Text},
			{Name: "stop_name", Type: store.Text},
			{Name: "stop_lat", Type: store.Real},
			{Name: "stop_lon", Type: store.Real},
			{Name: "zone_id", Type: store.Text},
			{Name: "wheelchair_boarding", Type: store.Integer},
			{Name: "district_id", Type: store.Text},
			{Name: "district", Type: store.Text},
		},
		Rows: make([][]any, 0, len(records)),
	}
	for _, rec := range records {
		r := rec.Raw
		detail.Rows = append(detail.Rows, []any{
			coerce.Text(r.raw.StopID),
			coerce.Text(r.raw.StopName),
			*r.lat,
			*r.lon,
			nullText(coerce.Text(r.raw.ZoneID)),
			nullInt(r.wheelchair, r.hasWheelchair),
			rec.District.ID,
			rec.District.Name,
		})
	}

	agg := aggregate.Aggregate(records,
		aggregate.Count[stopRecord]("transport_stops_count"),
		aggregate.CountIf("wheelchair_accessible_stops", func(r stopRecord) bool {
			return r.hasWheelchair && r.wheelchair == wheelchairAccessible
		}),
	)
	metrics := metricsTable("district_transport_metrics", agg, []store.Column{
		{Name: "transport_stops_count", Type: store.Integer},
		{Name: "wheelchair_accessible_stops", Type: store.Integer},
	})

	if err := write(ctx, env, sum, detail, metrics); err != nil {
		return nil, err
	}
	return sum, nil
}
