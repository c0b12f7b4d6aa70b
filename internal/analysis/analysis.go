// Package analysis builds the cross-dataset district reports from tables
// written by the loaders.
package analysis

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/district-intel/internal/config"
	"github.com/sells-group/district-intel/internal/correlate"
	"github.com/sells-group/district-intel/internal/model"
	"github.com/sells-group/district-intel/internal/registry"
	"github.com/sells-group/district-intel/internal/store"
)

// CrimeRateMetric names the per-capita crime series.
const CrimeRateMetric = "crime_per_100k"

// Options configures the reports.
type Options struct {
	// PerCapitaBase scales rates; 100000 gives a per-100k rate.
	PerCapitaBase float64
	// MinPairs is the number of districts expected to pair up.
	MinPairs int
	// Risk labels districts by their per-capita crime rate.
	Risk *correlate.Thresholds
}

// NewOptions builds report options from configuration.
func NewOptions(cfg config.AnalysisConfig) (Options, error) {
	risk, err := correlate.NewThresholds(cfg.Risk.Low, cfg.Risk.High, cfg.Risk.Labels)
	if err != nil {
		return Options{}, eris.Wrap(err, "analysis: risk thresholds")
	}
	base := cfg.PerCapitaBase
	if base <= 0 {
		base = 100000
	}
	return Options{PerCapitaBase: base, MinPairs: cfg.MinPairedDistricts, Risk: risk}, nil
}

// CrimeRate is one district's crime count relative to its population.
type CrimeRate struct {
	Rank        int            `json:"rank"`
	District    model.District `json:"district"`
	TotalCrimes float64        `json:"total_crimes"`
	Population  float64        `json:"total_population"`
	Rate        float64        `json:"crime_per_100k"`
	Label       string         `json:"label,omitempty"`
}

// PerCapitaReport ranks districts by crime per capita, highest first.
type PerCapitaReport struct {
	Rates []CrimeRate `json:"rates"`
	// ZeroPopulation lists districts left out for a zero population.
	ZeroPopulation []model.District `json:"zero_population,omitempty"`
	// Unpaired lists districts present in only one of the two tables.
	Unpaired []string `json:"unpaired,omitempty"`
}

// MostDangerous returns the district with the highest rate.
func (r *PerCapitaReport) MostDangerous() (CrimeRate, bool) {
	if len(r.Rates) == 0 {
		return CrimeRate{}, false
	}
	return r.Rates[0], true
}

// Safest returns the district with the lowest rate.
func (r *PerCapitaReport) Safest() (CrimeRate, bool) {
	if len(r.Rates) == 0 {
		return CrimeRate{}, false
	}
	return r.Rates[len(r.Rates)-1], true
}

// CrimePerCapita joins district_crime_metrics to district_population and
// ranks districts by crime per capita.
func CrimePerCapita(ctx context.Context, gw store.Gateway, opts Options) (*PerCapitaReport, error) {
	log := zap.L().With(zap.String("component", "analysis.per_capita"))

	crimes, err := readMetric(ctx, gw, "district_crime_metrics", "total_crimes")
	if err != nil {
		return nil, err
	}
	pop, err := readMetric(ctx, gw, "district_population", "total_population")
	if err != nil {
		return nil, err
	}

	pc := correlate.PerCapita(crimes, pop, opts.PerCapitaBase, CrimeRateMetric)
	if len(pc.Unpaired) > 0 {
		log.Warn("districts without a crime/population pair", zap.Strings("keys", pc.Unpaired))
	}

	crimeBy := byKey(crimes)
	popBy := byKey(pop)
	rep := &PerCapitaReport{ZeroPopulation: pc.ZeroPopulation, Unpaired: pc.Unpaired}
	for _, m := range pc.Rates {
		k := key(m.District)
		rep.Rates = append(rep.Rates, CrimeRate{
			District:    m.District,
			TotalCrimes: crimeBy[k],
			Population:  popBy[k],
			Rate:        m.Value,
		})
	}
	sort.SliceStable(rep.Rates, func(i, j int) bool {
		if rep.Rates[i].Rate != rep.Rates[j].Rate {
			return rep.Rates[i].Rate > rep.Rates[j].Rate
		}
		return key(rep.Rates[i].District) < key(rep.Rates[j].District)
	})
	for i := range rep.Rates {
		rep.Rates[i].Rank = i + 1
		if opts.Risk != nil {
			rep.Rates[i].Label = opts.Risk.Classify(rep.Rates[i].Rate)
		}
	}

	log.Info("per-capita report built", zap.Int("districts", len(rep.Rates)))
	return rep, nil
}

// LandPrice is one district's residential land price summary.
type LandPrice struct {
	District model.District `json:"district"`
	NumZones int64          `json:"num_zones"`
	Avg      *float64       `json:"avg_price"`
	Min      *float64       `json:"min_price"`
	Max      *float64       `json:"max_price"`
}

// LandPriceAverages reads district_land_price_metrics ordered by average
// price descending. Districts without a priced zone sort last.
func LandPriceAverages(ctx context.Context, gw store.Gateway) ([]LandPrice, error) {
	rows, err := gw.Query(ctx, `SELECT district_id, district, num_zones, avg_price, min_price, max_price
		FROM district_land_price_metrics`)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: read district_land_price_metrics")
	}

	out := make([]LandPrice, 0, len(rows))
	for _, r := range rows {
		lp := LandPrice{
			District: model.District{ID: r.String("district_id"), Name: r.String("district")},
			Avg:      optional(r, "avg_price"),
			Min:      optional(r, "min_price"),
			Max:      optional(r, "max_price"),
		}
		if n, ok := r.Float("num_zones"); ok {
			lp.NumZones = int64(n)
		}
		out = append(out, lp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Avg, out[j].Avg
		switch {
		case a == nil && b == nil:
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a > *b
		}
		return key(out[i].District) < key(out[j].District)
	})
	return out, nil
}

// Insights picks the extremes of a crime/price ranking.
type Insights struct {
	Safest        correlate.Ranked `json:"safest"`
	MostDangerous correlate.Ranked `json:"most_dangerous"`
	// PriceRatio is the safest district's average price over the most
	// dangerous one's. Zero when the latter has no positive price.
	PriceRatio float64 `json:"price_ratio"`
}

// CrimePriceReport correlates per-capita crime with residential land
// prices.
type CrimePriceReport struct {
	*correlate.Result
	Interpretation correlate.Interpretation `json:"interpretation,omitempty"`
	Insights       *Insights                `json:"insights,omitempty"`
}

// CrimeVsPrice correlates per-capita crime (first metric) with average
// residential land price (second metric). Interpretation and insights are
// set only when the coefficient is defined.
func CrimeVsPrice(ctx context.Context, gw store.Gateway, opts Options) (*CrimePriceReport, error) {
	log := zap.L().With(zap.String("component", "analysis.crime_price"))

	pc, err := CrimePerCapita(ctx, gw, opts)
	if err != nil {
		return nil, err
	}
	prices, err := readMetric(ctx, gw, "district_land_price_metrics", "avg_price")
	if err != nil {
		return nil, err
	}

	rates := make([]model.DistrictMetric, len(pc.Rates))
	for i, r := range pc.Rates {
		rates[i] = model.DistrictMetric{District: r.District, Metric: CrimeRateMetric, Value: r.Rate}
	}

	res := correlate.Correlate(rates, prices, correlate.Options{MinPairs: opts.MinPairs, Thresholds: opts.Risk})
	for _, w := range res.Warnings {
		log.Warn(w)
	}

	rep := &CrimePriceReport{Result: res}
	if !res.Defined {
		log.Warn("correlation undefined", zap.String("reason", res.Reason), zap.Int("pairs", len(res.Pairs)))
		return rep, nil
	}

	rep.Interpretation = correlate.Interpret(res.Coefficient)
	rep.Insights = insights(res.Ranking)
	log.Info("correlation computed",
		zap.Float64("coefficient", res.Coefficient),
		zap.Int("pairs", len(res.Pairs)),
		zap.String("join", string(res.JoinedOn)),
	)
	return rep, nil
}

// insights reads the extremes off a ranking ordered by crime descending.
func insights(ranking []correlate.Ranked) *Insights {
	if len(ranking) == 0 {
		return nil
	}
	in := &Insights{
		MostDangerous: ranking[0],
		Safest:        ranking[len(ranking)-1],
	}
	if in.MostDangerous.B > 0 {
		in.PriceRatio = in.Safest.B / in.MostDangerous.B
	}
	return in
}

// readMetric reads one numeric column of a district table as a metric
// series. NULL values are skipped.
func readMetric(ctx context.Context, gw store.Gateway, table, column string) ([]model.DistrictMetric, error) {
	rows, err := gw.Query(ctx, `SELECT district_id, district, `+column+` FROM `+table)
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: read %s", table)
	}
	out := make([]model.DistrictMetric, 0, len(rows))
	for _, r := range rows {
		v, ok := r.Float(column)
		if !ok {
			continue
		}
		out = append(out, model.DistrictMetric{
			District: model.District{ID: r.String("district_id"), Name: r.String("district")},
			Metric:   column,
			Value:    v,
		})
	}
	return out, nil
}

func optional(r store.Row, col string) *float64 {
	v, ok := r.Float(col)
	if !ok {
		return nil
	}
	return &v
}

func key(d model.District) string {
	if d.ID != "" {
		return d.ID
	}
	return registry.NormalizeName(d.Name)
}

func byKey(ms []model.DistrictMetric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		k := key(m.District)
		if _, dup := out[k]; !dup {
			out[k] = m.Value
		}
	}
	return out
}
