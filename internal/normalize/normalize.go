// Package normalize maps raw dataset records onto canonical districts.
package normalize

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/district-intel/internal/geo"
	"github.com/sells-group/district-intel/internal/model"
	"github.com/sells-group/district-intel/internal/registry"
)

// Context carries the read-only reference data shared by normalizers.
// Only the pieces a normalizer's method needs must be set.
type Context struct {
	Registry      *registry.Registry
	Neighborhoods *registry.NeighborhoodMap
	Resolver      *geo.Resolver
	// PointCRS is the reference system of source coordinates.
	PointCRS geo.CRS
}

// Normalizer resolves records of one dataset using exactly one method.
type Normalizer[T any] struct {
	Dataset string
	Method  model.ResolutionMethod
	// Key returns the district ID, district name or neighborhood name,
	// depending on Method.
	Key func(T) string
	// Point returns the record's coordinates; ok is false when they are
	// missing. Used with ResolvedByPoint.
	Point func(T) (model.Point, bool)
}

// Record is a raw record with its resolution outcome.
type Record[T any] struct {
	Raw      T
	District model.District
	Resolved bool
}

// Stats counts resolution outcomes.
type Stats struct {
	Total      int `json:"total"`
	Resolved   int `json:"resolved"`
	Unresolved int `json:"unresolved"`
}

// Rate returns the resolved share, or 0 for an empty input.
func (s Stats) Rate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Resolved) / float64(s.Total)
}

// UnresolvedRatio returns the unresolved share, or 0 for an empty input.
func (s Stats) UnresolvedRatio() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Unresolved) / float64(s.Total)
}

// Result holds every input record, resolved or not, in input order.
type Result[T any] struct {
	Records []Record[T]
	Stats   Stats
	// Unmatched counts unresolved keys. Point records use "outside" for
	// points in no polygon and "missing coordinates" for absent ones.
	Unmatched map[string]int
}

// ResolvedRecords returns the resolved records in input order.
func (r *Result[T]) ResolvedRecords() []Record[T] {
	out := make([]Record[T], 0, r.Stats.Resolved)
	for _, rec := range r.Records {
		if rec.Resolved {
			out = append(out, rec)
		}
	}
	return out
}

const (
	unmatchedOutside = "outside"
	unmatchedNoPoint = "missing coordinates"
)

// Normalize resolves raw. Unresolved records stay in the result with
// Resolved=false. An error means the normalizer or context is misconfigured.
func (n Normalizer[T]) Normalize(raw []T, rc *Context) (*Result[T], error) {
	if rc == nil || rc.Registry == nil {
		return nil, eris.Errorf("normalize: %s: registry is required", n.Dataset)
	}

	res := &Result[T]{
		Records:   make([]Record[T], len(raw)),
		Unmatched: make(map[string]int),
	}
	for i, r := range raw {
		res.Records[i].Raw = r
	}

	var err error
	switch n.Method {
	case model.ResolvedByID, model.ResolvedByName, model.ResolvedByNeighborhood:
		err = n.resolveKeys(res, rc)
	case model.ResolvedByPoint:
		err = n.resolvePoints(res, rc)
	default:
		err = eris.Errorf("normalize: %s: unknown method %q", n.Dataset, n.Method)
	}
	if err != nil {
		return nil, err
	}

	res.Stats.Total = len(raw)
	for i := range res.Records {
		rec := &res.Records[i]
		if rec.Resolved && !rc.Registry.Contains(rec.District) {
			rec.Resolved = false
			rec.District = model.District{}
			res.Unmatched["not in registry"]++
		}
		if rec.Resolved {
			res.Stats.Resolved++
		}
	}
	res.Stats.Unresolved = res.Stats.Total - res.Stats.Resolved
	return res, nil
}

func (n Normalizer[T]) resolveKeys(res *Result[T], rc *Context) error {
	if n.Key == nil {
		return eris.Errorf("normalize: %s: key accessor is required for %s", n.Dataset, n.Method)
	}

	var lookup func(string) (model.District, bool)
	switch n.Method {
	case model.ResolvedByID:
		lookup = rc.Registry.ByID
	case model.ResolvedByName:
		lookup = rc.Registry.ByName
	case model.ResolvedByNeighborhood:
		if rc.Neighborhoods == nil {
			return eris.Errorf("normalize: %s: neighborhood mapping is required", n.Dataset)
		}
		lookup = rc.Neighborhoods.Lookup
	}

	for i := range res.Records {
		rec := &res.Records[i]
		key := n.Key(rec.Raw)
		d, ok := lookup(key)
		if !ok {
			res.Unmatched[key]++
			continue
		}
		rec.District, rec.Resolved = d, true
	}
	return nil
}

func (n Normalizer[T]) resolvePoints(res *Result[T], rc *Context) error {
	if n.Point == nil {
		return eris.Errorf("normalize: %s: point accessor is required", n.Dataset)
	}
	if rc.Resolver == nil {
		return eris.Errorf("normalize: %s: spatial resolver is required", n.Dataset)
	}
	crs := rc.PointCRS
	if crs.IsZero() {
		crs = geo.WGS84
	}

	idx := make([]int, 0, len(res.Records))
	points := make([]model.Point, 0, len(res.Records))
	for i, rec := range res.Records {
		p, ok := n.Point(rec.Raw)
		if !ok || math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
			res.Unmatched[unmatchedNoPoint]++
			continue
		}
		idx = append(idx, i)
		points = append(points, p)
	}

	matches, err := rc.Resolver.ResolveAll(points, crs)
	if err != nil {
		return eris.Wrapf(err, "normalize: %s", n.Dataset)
	}
	for j, m := range matches {
		if !m.Resolved {
			res.Unmatched[unmatchedOutside]++
			continue
		}
		rec := &res.Records[idx[j]]
		rec.District, rec.Resolved = m.District, true
	}
	return nil
}
