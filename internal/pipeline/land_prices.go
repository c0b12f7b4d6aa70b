package pipeline

import (
	"context"
	"strings"

	"github.com/sells-group/district-intel/internal/aggregate"
	"github.com/sells-group/district-intel/internal/coerce"
	"github.com/sells-group/district-intel/internal/fetcher"
	"github.com/sells-group/district-intel/internal/model"
	"github.com/sells-group/district-intel/internal/normalize"
	"github.com/sells-group/district-intel/internal/store"
)

// landPriceRow is one zone of the standard land value file.
type landPriceRow struct {
	DistrictName  string `csv:"district_name"`
	Neighborhood  string `csv:"neighborhood"`
	ReferenceDate string `csv:"reference_date"`
	LandValue     string `csv:"standard_land_value"`
	LandUseType   string `csv:"typical_land_use_type"`
}

var landPriceRequired = []string{"district_name", "standard_land_value", "typical_land_use_type"}

type landPriceRecord struct {
	raw   landPriceRow
	value *float64
}

// LandPrices loads standard land values per zone keyed by district name.
type LandPrices struct{}

func (d *LandPrices) Name() string { return "land_prices" }
func (d *LandPrices) Tables() []string {
	return []string{"land_prices", "district_land_price_metrics"}
}

func (d *LandPrices) Load(ctx context.Context, env *Env) (*Summary, error) {
	sum := newSummary(d.Name())

	rows, err := fetcher.ReadAll[landPriceRow](env.Source(env.Config.Sources.LandPrices), landPriceRequired, env.ReadOptions())
	if err != nil {
		return nil, err
	}

	parsed := make([]landPriceRecord, len(rows))
	for i, r := range rows {
		parsed[i] = landPriceRecord{raw: r, value: coerce.OptionalFloat(r.LandValue)}
	}

	n := normalize.Normalizer[landPriceRecord]{
		Dataset: d.Name(),
		Method:  model.ResolvedByName,
		Key:     func(r landPriceRecord) string { return r.raw.DistrictName },
	}
	records, err := resolve(env, sum, n, parsed, &normalize.Context{Registry: env.Registry})
	if err != nil {
		return nil, err
	}

	detail := store.Table{
		Name: "land_prices",
		Columns: []store.Column{
			{Name: "district_id", Type: store.Text},
			{Name: "district_name", Type: store.Text},
			{Name: "neighborhood", Type: store.Text},
			{Name: "reference_date", Type: store.Text},
			{Name: "standard_land_value", Type: store.Real},
			{Name: "typical_land_use_type", Type: store.Text},
		},
		Rows: make([][]any, 0, len(records)),
	}
	prefix := env.Config.Analysis.ResidentialUsePrefix
	var residential []normalize.Record[landPriceRecord]
	for _, rec := range records {
		r := rec.Raw
		use := coerce.Text(r.raw.LandUseType)
		detail.Rows = append(detail.Rows, []any{
			rec.District.ID,
			rec.District.Name,
			nullText(coerce.Text(r.raw.Neighborhood)),
			nullText(coerce.Text(r.raw.ReferenceDate)),
			nullFloat(r.value),
			nullText(use),
		})
		if isResidential(use, prefix) {
			residential = append(residential, rec)
		}
	}

	value := func(r landPriceRecord) (float64, bool) { return present(r.value) }
	agg := aggregate.Aggregate(residential,
		aggregate.Count[landPriceRecord]("num_zones"),
		aggregate.Mean("avg_price", value),
		aggregate.Min("min_price", value),
		aggregate.Max("max_price", value),
	)
	metrics := metricsTable("district_land_price_metrics", agg, []store.Column{
		{Name: "num_zones", Type: store.Integer},
		{Name: "avg_price", Type: store.Real},
		{Name: "min_price", Type: store.Real},
		{Name: "max_price", Type: store.Real},
	})

	if err := write(ctx, env, sum, detail, metrics); err != nil {
		return nil, err
	}
	return sum, nil
}

// isResidential matches land use codes by prefix, ignoring ASCII case.
// An empty prefix matches every zone.
func isResidential(use, prefix string) bool {
	return len(use) >= len(prefix) && strings.EqualFold(use[:len(prefix)], prefix)
}
