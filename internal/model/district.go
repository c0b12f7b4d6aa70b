// Package model holds the value types shared by the loaders, the aggregator
// and the correlator.
package model

// District is a canonical district identity. ID is the only safe join key
// across datasets; Name is for display.
type District struct {
	ID   string `json:"district_id" yaml:"id"`
	Name string `json:"district" yaml:"name"`
}

// IsZero reports whether the district carries neither an ID nor a name.
func (d District) IsZero() bool {
	return d.ID == "" && d.Name == ""
}

// Point is a WGS84-style coordinate pair as found in source files.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DistrictMetric is one (district, metric) observation produced by the
// aggregator.
type DistrictMetric struct {
	District District `json:"district"`
	Metric   string   `json:"metric"`
	Value    float64  `json:"value"`
}

// ResolutionMethod records how a record was assigned to its district.
type ResolutionMethod string

const (
	ResolvedByID           ResolutionMethod = "district_id"
	ResolvedByName         ResolutionMethod = "district_name"
	ResolvedByNeighborhood ResolutionMethod = "neighborhood"
	ResolvedByPoint        ResolutionMethod = "point"
)
