// Package registry holds the canonical district identities every dataset is
// resolved onto, plus the name folding used for name-based matching.
package registry

import (
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/district-intel/internal/model"
)

// Entry is one district in a registry file.
type Entry struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// File is the YAML layout of a registry file.
type File struct {
	Districts []Entry `yaml:"districts"`
}

// Registry is an immutable, ordered set of districts. The order given at
// construction is the canonical order.
type Registry struct {
	districts []model.District
	byID      map[string]int
	byName    map[string]int
	idWidth   int
}

// New builds a registry from entries. IDs must be unique and non-empty, and
// no two districts may share a normalized name or alias.
func New(entries []Entry) (*Registry, error) {
	if len(entries) == 0 {
		return nil, eris.New("registry: no districts")
	}

	r := &Registry{
		districts: make([]model.District, 0, len(entries)),
		byID:      make(map[string]int, len(entries)),
		byName:    make(map[string]int, len(entries)*2),
	}

	for i, e := range entries {
		id := strings.TrimSpace(e.ID)
		name := strings.TrimSpace(e.Name)
		if id == "" || name == "" {
			return nil, eris.Errorf("registry: district %d needs both id and name", i)
		}
		if _, dup := r.byID[id]; dup {
			return nil, eris.Errorf("registry: duplicate district id %q", id)
		}
		r.byID[id] = i
		if len(id) > r.idWidth {
			r.idWidth = len(id)
		}

		for _, n := range append([]string{name}, e.Aliases...) {
			key := NormalizeName(n)
			if key == "" {
				continue
			}
			if prev, dup := r.byName[key]; dup && prev != i {
				return nil, eris.Errorf("registry: name %q used by districts %q and %q",
					n, r.districts[prev].ID, id)
			}
			r.byName[key] = i
		}
		r.districts = append(r.districts, model.District{ID: id, Name: name})
	}

	return r, nil
}

// LoadFile reads a YAML registry file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read %s", path)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "registry: parse %s", path)
	}
	r, err := New(f.Districts)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: build from %s", path)
	}
	return r, nil
}

// Load returns the registry at path, or the built-in Berlin registry when
// path is empty.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Berlin(), nil
	}
	return LoadFile(path)
}

// Len returns the number of districts.
func (r *Registry) Len() int { return len(r.districts) }

// Districts returns the districts in canonical order.
func (r *Registry) Districts() []model.District {
	out := make([]model.District, len(r.districts))
	copy(out, r.districts)
	return out
}

// ByID looks up a district by ID. Purely numeric IDs are zero-padded to the
// registry's ID width, so "1" finds "01".
func (r *Registry) ByID(id string) (model.District, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.District{}, false
	}
	if i, ok := r.byID[id]; ok {
		return r.districts[i], true
	}
	if n, err := strconv.Atoi(id); err == nil && n >= 0 {
		padded := strconv.Itoa(n)
		if len(padded) < r.idWidth {
			padded = strings.Repeat("0", r.idWidth-len(padded)) + padded
		}
		if i, ok := r.byID[padded]; ok {
			return r.districts[i], true
		}
	}
	return model.District{}, false
}

// ByName looks up a district by name or alias after normalization.
func (r *Registry) ByName(name string) (model.District, bool) {
	i, ok := r.byName[NormalizeName(name)]
	if !ok {
		return model.District{}, false
	}
	return r.districts[i], true
}

// Index returns the canonical position of the district with the given ID,
// or -1.
func (r *Registry) Index(id string) int {
	if i, ok := r.byID[id]; ok {
		return i
	}
	return -1
}

// Contains reports whether d is exactly a registry member.
func (r *Registry) Contains(d model.District) bool {
	i, ok := r.byID[d.ID]
	return ok && r.districts[i] == d
}

var dashReplacer = strings.NewReplacer(
	"‐", "-", "‑", "-", "‒", "-", "–", "-", "—", "-", "−", "-",
	"_", " ",
)

// NormalizeName folds a place name for matching: Unicode NFC, dash variants
// unified, case folded, whitespace collapsed and trimmed, no spaces around
// hyphens. "  Tempelhof – SCHÖNEBERG " becomes "tempelhof-schöneberg".
func NormalizeName(s string) string {
	s = norm.NFC.String(s)
	s = dashReplacer.Replace(s)
	s = cases.Fold().String(s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, " -", "-")
	s = strings.ReplaceAll(s, "- ", "-")
	return s
}
