// Package correlate joins two per-district metric series and derives the
// Pearson coefficient, a ranking and per-capita rates.
package correlate

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/district-intel/internal/model"
	"github.com/sells-group/district-intel/internal/registry"
)

// DefaultMinPairs is the expected number of paired districts for Berlin.
const DefaultMinPairs = 12

// JoinKey names the field two series were joined on.
type JoinKey string

const (
	JoinOnID   JoinKey = "district_id"
	JoinOnName JoinKey = "district_name"
)

// Reasons reported when the coefficient is undefined.
const (
	ReasonTooFewPairs = "fewer than 2 paired districts"
	ReasonConstantA   = "zero variance in first metric"
	ReasonConstantB   = "zero variance in second metric"
	ReasonNotFinite   = "coefficient is not finite"
)

// Options configures Correlate.
type Options struct {
	// MinPairs raises a warning when fewer districts pair up. Zero disables
	// the check.
	MinPairs int
	// Thresholds labels the ranking by the first metric. Nil leaves labels
	// empty.
	Thresholds *Thresholds
}

// Pair is one district observed in both series.
type Pair struct {
	Key      string         `json:"key"`
	District model.District `json:"district"`
	A        float64        `json:"a"`
	B        float64        `json:"b"`
}

// Ranked is a pair with its rank by the first metric.
type Ranked struct {
	Pair
	Rank  int    `json:"rank"`
	Label string `json:"label,omitempty"`
}

// Result is the outcome of a correlation. When Defined is false,
// Coefficient is 0 and Reason says why; it must not be read as a value.
type Result struct {
	JoinedOn    JoinKey  `json:"joined_on"`
	Pairs       []Pair   `json:"pairs"`
	Coefficient float64  `json:"coefficient"`
	Defined     bool     `json:"defined"`
	Reason      string   `json:"reason,omitempty"`
	Ranking     []Ranked `json:"ranking"`
	// OnlyA and OnlyB list join keys present in one series only.
	OnlyA    []string `json:"only_a,omitempty"`
	OnlyB    []string `json:"only_b,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Correlate inner-joins a and b on district ID when every entry on both
// sides carries one, otherwise on the normalized district name, and
// computes Pearson's r over the paired values. Duplicate keys within one
// series keep their first entry.
func Correlate(a, b []model.DistrictMetric, opts Options) *Result {
	on := joinKeyFor(a, b)
	ia := index(a, on)
	ib := index(b, on)

	res := &Result{JoinedOn: on}
	for _, k := range ia.keys {
		mb, ok := ib.m[k]
		if !ok {
			res.OnlyA = append(res.OnlyA, k)
			continue
		}
		ma := ia.m[k]
		res.Pairs = append(res.Pairs, Pair{Key: k, District: ma.District, A: ma.Value, B: mb.Value})
	}
	for _, k := range ib.keys {
		if _, ok := ia.m[k]; !ok {
			res.OnlyB = append(res.OnlyB, k)
		}
	}
	sort.Slice(res.Pairs, func(i, j int) bool { return res.Pairs[i].Key < res.Pairs[j].Key })
	sort.Strings(res.OnlyA)
	sort.Strings(res.OnlyB)

	res.Coefficient, res.Defined, res.Reason = pearson(res.Pairs)
	res.Ranking = rank(res.Pairs, opts.Thresholds)

	if opts.MinPairs > 0 && len(res.Pairs) < opts.MinPairs {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"only %d of %d expected districts paired; check for name or ID mismatches", len(res.Pairs), opts.MinPairs))
	}
	return res
}

func pearson(pairs []Pair) (float64, bool, string) {
	if len(pairs) < 2 {
		return 0, false, ReasonTooFewPairs
	}
	x := make([]float64, len(pairs))
	y := make([]float64, len(pairs))
	for i, p := range pairs {
		x[i], y[i] = p.A, p.B
	}
	if constant(x) {
		return 0, false, ReasonConstantA
	}
	if constant(y) {
		return 0, false, ReasonConstantB
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, false, ReasonNotFinite
	}
	return r, true, ""
}

func constant(v []float64) bool {
	for _, x := range v[1:] {
		if x != v[0] {
			return false
		}
	}
	return true
}

// rank orders pairs by A descending, ties by key ascending.
func rank(pairs []Pair, th *Thresholds) []Ranked {
	out := make([]Ranked, len(pairs))
	for i, p := range pairs {
		out[i] = Ranked{Pair: p}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A > out[j].A
		}
		return out[i].Key < out[j].Key
	})
	for i := range out {
		out[i].Rank = i + 1
		if th != nil {
			out[i].Label = th.Classify(out[i].A)
		}
	}
	return out
}

func joinKeyFor(a, b []model.DistrictMetric) JoinKey {
	for _, s := range [][]model.DistrictMetric{a, b} {
		for _, m := range s {
			if m.District.ID == "" {
				return JoinOnName
			}
		}
	}
	return JoinOnID
}

func keyOf(m model.DistrictMetric, on JoinKey) string {
	if on == JoinOnID {
		return m.District.ID
	}
	return registry.NormalizeName(m.District.Name)
}

type indexed struct {
	keys []string
	m    map[string]model.DistrictMetric
}

func index(s []model.DistrictMetric, on JoinKey) indexed {
	ix := indexed{m: make(map[string]model.DistrictMetric, len(s))}
	for _, m := range s {
		k := keyOf(m, on)
		if k == "" {
			continue
		}
		if _, dup := ix.m[k]; dup {
			continue
		}
		ix.m[k] = m
		ix.keys = append(ix.keys, k)
	}
	return ix
}

// Interpretation is a coarse reading of a coefficient.
type Interpretation string

const (
	StrongNegative Interpretation = "strong negative"
	Positive       Interpretation = "positive"
	Weak           Interpretation = "weak"
)

// Interpret classifies r: below -0.3 is strong negative, above 0.3 is
// positive, anything else weak.
func Interpret(r float64) Interpretation {
	switch {
	case r < -0.3:
		return StrongNegative
	case r > 0.3:
		return Positive
	default:
		return Weak
	}
}
