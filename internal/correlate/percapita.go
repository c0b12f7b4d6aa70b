package correlate

import (
	"math"
	"sort"

	"github.com/sells-group/district-intel/internal/model"
)

// PerCapitaResult holds per-capita rates and the districts left out.
type PerCapitaResult struct {
	Rates []model.DistrictMetric
	// ZeroPopulation lists districts whose population was zero or negative.
	ZeroPopulation []model.District
	// Unpaired lists join keys present in only one input.
	Unpaired []string
}

// PerCapita divides events by population per district and scales by per
// (100000 gives a per-100k rate), rounded to two decimals. The inputs are
// inner-joined like Correlate. Output is ordered by join key and named
// metric.
func PerCapita(events, population []model.DistrictMetric, per float64, metric string) *PerCapitaResult {
	on := joinKeyFor(events, population)
	ie := index(events, on)
	ip := index(population, on)

	res := &PerCapitaResult{}
	keys := append([]string(nil), ie.keys...)
	sort.Strings(keys)
	for _, k := range keys {
		e := ie.m[k]
		p, ok := ip.m[k]
		if !ok {
			res.Unpaired = append(res.Unpaired, k)
			continue
		}
		if p.Value <= 0 {
			res.ZeroPopulation = append(res.ZeroPopulation, e.District)
			continue
		}
		res.Rates = append(res.Rates, model.DistrictMetric{
			District: e.District,
			Metric:   metric,
			Value:    Round2(e.Value * per / p.Value),
		})
	}
	for _, k := range ip.keys {
		if _, ok := ie.m[k]; !ok {
			res.Unpaired = append(res.Unpaired, k)
		}
	}
	sort.Strings(res.Unpaired)
	return res
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
