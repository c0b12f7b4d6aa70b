package pipeline

import (
	"github.com/rotisserie/eris"
)

// Registry maps dataset names to their implementations.
type Registry struct {
	datasets map[string]Dataset
	order    []string // insertion order for deterministic iteration
}

// NewRegistry creates a registry populated with every district dataset.
// Boundaries come first so point datasets reuse the parsed polygons, and
// population precedes crime so per-capita reports see a matching pair.
func NewRegistry() *Registry {
	r := &Registry{
		datasets: make(map[string]Dataset),
	}

	r.Register(&Boundaries{})
	r.Register(&Population{})
	r.Register(&Crime{})
	r.Register(&LandPrices{})
	r.Register(&Schools{})
	r.Register(&Transport{})

	return r
}

// Register adds a dataset to the registry.
func (r *Registry) Register(d Dataset) {
	name := d.Name()
	if _, dup := r.datasets[name]; !dup {
		r.order = append(r.order, name)
	}
	r.datasets[name] = d
}

// Get returns a dataset by name.
func (r *Registry) Get(name string) (Dataset, error) {
	d, ok := r.datasets[name]
	if !ok {
		return nil, eris.Errorf("pipeline: unknown dataset %q (valid: %v)", name, r.order)
	}
	return d, nil
}

// Select returns the named datasets in registration order, or all of them
// when names is empty. Unknown names are an error.
func (r *Registry) Select(names []string) ([]Dataset, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	want := make(map[string]bool, len(names))
	for _, name := range names {
		if _, err := r.Get(name); err != nil {
			return nil, err
		}
		want[name] = true
	}
	var result []Dataset
	for _, name := range r.order {
		if want[name] {
			result = append(result, r.datasets[name])
		}
	}
	return result, nil
}

// All returns all datasets in registration order.
func (r *Registry) All() []Dataset {
	result := make([]Dataset, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.datasets[name])
	}
	return result
}
