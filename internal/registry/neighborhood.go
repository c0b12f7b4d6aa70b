package registry

import (
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/district-intel/internal/model"
)

// ErrConflictingMapping is returned when one neighborhood maps to two
// different districts.
var ErrConflictingMapping = eris.New("registry: neighborhood mapped to more than one district")

// NeighborhoodPair is one row of the neighborhood mapping file.
type NeighborhoodPair struct {
	Neighborhood string `csv:"neighborhood"`
	District     string `csv:"district"`
}

// NeighborhoodMap resolves neighborhood names onto registry districts.
// Neighborhoods are matched after NormalizeName.
type NeighborhoodMap struct {
	m       map[string]model.District
	dropped []string
}

// NewNeighborhoodMap deduplicates pairs and resolves each district name
// against reg. Pairs whose district is not in the registry are dropped and
// reported by Dropped; a neighborhood assigned to two districts is an error.
func NewNeighborhoodMap(reg *Registry, pairs []NeighborhoodPair) (*NeighborhoodMap, error) {
	nm := &NeighborhoodMap{m: make(map[string]model.District, len(pairs))}
	droppedSet := make(map[string]bool)

	for _, p := range pairs {
		key := NormalizeName(p.Neighborhood)
		if key == "" {
			continue
		}
		d, ok := reg.ByName(p.District)
		if !ok {
			if !droppedSet[p.District] {
				droppedSet[p.District] = true
				nm.dropped = append(nm.dropped, p.District)
			}
			continue
		}
		if prev, seen := nm.m[key]; seen && prev.ID != d.ID {
			return nil, eris.Wrapf(ErrConflictingMapping, "%q -> %q and %q", p.Neighborhood, prev.Name, d.Name)
		}
		nm.m[key] = d
	}

	sort.Strings(nm.dropped)
	if len(nm.dropped) > 0 {
		zap.L().Warn("registry: neighborhood mapping references unknown districts",
			zap.Strings("districts", nm.dropped),
		)
	}
	return nm, nil
}

// Lookup returns the district for a neighborhood name.
func (nm *NeighborhoodMap) Lookup(neighborhood string) (model.District, bool) {
	d, ok := nm.m[NormalizeName(neighborhood)]
	return d, ok
}

// Len returns the number of distinct neighborhoods.
func (nm *NeighborhoodMap) Len() int { return len(nm.m) }

// Districts returns how many distinct districts the mapping covers.
func (nm *NeighborhoodMap) Districts() int {
	seen := make(map[string]bool)
	for _, d := range nm.m {
		seen[d.ID] = true
	}
	return len(seen)
}

// Dropped lists the district names that did not resolve against the registry.
func (nm *NeighborhoodMap) Dropped() []string {
	return append([]string(nil), nm.dropped...)
}
