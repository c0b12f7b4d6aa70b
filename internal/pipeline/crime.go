package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/district-intel/internal/aggregate"
	"github.com/sells-group/district-intel/internal/coerce"
	"github.com/sells-group/district-intel/internal/fetcher"
	"github.com/sells-group/district-intel/internal/model"
	"github.com/sells-group/district-intel/internal/normalize"
	"github.com/sells-group/district-intel/internal/store"
)

// crimeRow is one row of the crime statistics file.
type crimeRow struct {
	AreaID           string `csv:"area_id"`
	Neighborhood     string `csv:"neighborhood"`
	District         string `csv:"district"`
	DistrictID       string `csv:"district_id"`
	Year             string `csv:"year"`
	CrimeTypeGerman  string `csv:"crime_type_german"`
	CrimeTypeEnglish string `csv:"crime_type_english"`
	Category         string `csv:"category"`
	TotalCases       string `csv:"total_number_cases"`
	Frequency100k    string `csv:"frequency_100k"`
	PopulationBase   string `csv:"population_base"`
	SeverityWeight   string `csv:"severity_weight"`
}

var crimeRequired = []string{"district_id", "district", "year", "crime_type_german", "total_number_cases"}

// crimeRecord is a parsed crime row.
type crimeRecord struct {
	raw            crimeRow
	areaID         *float64
	year           int64
	hasYear        bool
	cases          float64
	frequency100k  *float64
	populationBase *float64
	severityWeight *float64
	defaulted      coerce.Defaulted
}

// Crime loads per-neighborhood crime counts keyed by district ID.
type Crime struct{}

func (d *Crime) Name() string { return "crime" }
func (d *Crime) Tables() []string {
	return []string{"crime_statistics", "district_crime_metrics"}
}

func (d *Crime) Load(ctx context.Context, env *Env) (*Summary, error) {
	sum := newSummary(d.Name())

	rows, err := fetcher.ReadAll[crimeRow](env.Source(env.Config.Sources.Crime), crimeRequired, env.ReadOptions())
	if err != nil {
		return nil, err
	}

	parsed := make([]crimeRecord, len(rows))
	for i, r := range rows {
		year, hasYear := coerce.Count(r.Year)
		p := &parsed[i]
		*p = crimeRecord{
			raw:            r,
			areaID:         coerce.OptionalFloat(r.AreaID),
			year:           year,
			hasYear:        hasYear,
			frequency100k:  coerce.OptionalFloat(r.Frequency100k),
			populationBase: coerce.OptionalFloat(r.PopulationBase),
			severityWeight: coerce.OptionalFloat(r.SeverityWeight),
		}
		p.cases = p.defaulted.Float("total_number_cases", r.TotalCases)
	}

	n := normalize.Normalizer[crimeRecord]{
		Dataset: d.Name(),
		Method:  model.ResolvedByID,
		Key:     func(r crimeRecord) string { return r.raw.DistrictID },
	}
	records, err := resolve(env, sum, n, parsed, &normalize.Context{Registry: env.Registry})
	if err != nil {
		return nil, err
	}
	tallyDefaults(sum, records, func(r crimeRecord) coerce.Defaulted { return r.defaulted })

	detail := store.Table{
		Name: "crime_statistics",
		Columns: []store.Column{
			{Name: "area_id", Type: store.Real},
			{Name: "neighborhood", Type: store.Text},
			{Name: "district", Type: store.Text},
			{Name: "district_id", Type: store.Text},
			{Name: "year", Type: store.Integer},
			{Name: "crime_type_german", Type: store.Text},
			{Name: "crime_type_english", Type: store.Text},
			{Name: "category", Type: store.Text},
			{Name: "total_number_cases", Type: store.Real},
			{Name: "frequency_100k", Type: store.Real},
			{Name: "population_base", Type: store.Real},
			{Name: "severity_weight", Type: store.Real},
		},
		Rows: make([][]any, 0, len(records)),
	}
	for _, rec := range records {
		r := rec.Raw
		detail.Rows = append(detail.Rows, []any{
			nullFloat(r.areaID),
			coerce.Text(r.raw.Neighborhood),
			rec.District.Name,
			rec.District.ID,
			nullInt(r.year, r.hasYear),
			coerce.Text(r.raw.CrimeTypeGerman),
			nullText(coerce.Text(r.raw.CrimeTypeEnglish)),
			nullText(coerce.Text(r.raw.Category)),
			r.cases,
			nullFloat(r.frequency100k),
			nullFloat(r.populationBase),
			nullFloat(r.severityWeight),
		})
	}

	agg := aggregate.Aggregate(records,
		aggregate.Sum("total_crimes", func(r crimeRecord) (float64, bool) { return r.cases, true }),
		aggregate.Count[crimeRecord]("crime_records"),
	)
	metrics := metricsTable("district_crime_metrics", agg, []store.Column{
		{Name: "total_crimes", Type: store.Real},
		{Name: "crime_records", Type: store.Integer},
	})

	if err := write(ctx, env, sum, detail, metrics); err != nil {
		return nil, err
	}

	cov := crimeCoverage(records)
	for k, v := range cov {
		sum.Extra[k] = v
	}
	zap.L().Info("crime coverage",
		zap.String("component", "pipeline"),
		zap.String("dataset", sum.Dataset),
		zap.Any("coverage", cov),
	)
	return sum, nil
}

// crimeCoverage reports the distinct districts and neighborhoods of the
// loaded records and, when any row carries a year, the year range.
func crimeCoverage(records []normalize.Record[crimeRecord]) map[string]any {
	districts := make(map[string]struct{})
	neighborhoods := make(map[string]struct{})
	var (
		minYear, maxYear int64
		seen             bool
	)
	for _, rec := range records {
		districts[rec.District.ID] = struct{}{}
		if nb := coerce.Text(rec.Raw.raw.Neighborhood); nb != "" {
			neighborhoods[nb] = struct{}{}
		}
		if !rec.Raw.hasYear {
			continue
		}
		y := rec.Raw.year
		if !seen || y < minYear {
			minYear = y
		}
		if !seen || y > maxYear {
			maxYear = y
		}
		seen = true
	}

	cov := map[string]any{
		"districts":     len(districts),
		"neighborhoods": len(neighborhoods),
	}
	if seen {
		cov["year_min"] = minYear
		cov["year_max"] = maxYear
	}
	return cov
}
