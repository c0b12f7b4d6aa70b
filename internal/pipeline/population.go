package pipeline

import (
	"context"

	"github.com/sells-group/district-intel/internal/coerce"
	"github.com/sells-group/district-intel/internal/fetcher"
	"github.com/sells-group/district-intel/internal/model"
	"github.com/sells-group/district-intel/internal/normalize"
	"github.com/sells-group/district-intel/internal/store"
)

// populationRow is one row of the district population file.
type populationRow struct {
	DistrictID string `csv:"district_id"`
	District   string `csv:"district"`
	Male       string `csv:"male"`
	Female     string `csv:"female"`
	Germans    string `csv:"germans"`
	Foreigners string `csv:"foreigners"`
}

var populationRequired = []string{"district_id", "male", "female"}

type populationRecord struct {
	districtID string
	male       int64
	female     int64
	germans    int64
	foreigners int64
	defaulted  coerce.Defaulted
}

// total is male + female; the germans/foreigners split is not summed.
func (r populationRecord) total() int64 { return r.male + r.female }

// Population loads resident counts per district.
type Population struct{}

func (d *Population) Name() string     { return "population" }
func (d *Population) Tables() []string { return []string{"district_population"} }

func (d *Population) Load(ctx context.Context, env *Env) (*Summary, error) {
	sum := newSummary(d.Name())

	rows, err := fetcher.ReadAll[populationRow](env.Source(env.Config.Sources.Population), populationRequired, env.ReadOptions())
	if err != nil {
		return nil, err
	}

	parsed := make([]populationRecord, len(rows))
	for i, r := range rows {
		p := &parsed[i]
		p.districtID = r.DistrictID
		p.male = p.defaulted.Count("male", r.Male)
		p.female = p.defaulted.Count("female", r.Female)
		p.germans = p.defaulted.Count("germans", r.Germans)
		p.foreigners = p.defaulted.Count("foreigners", r.Foreigners)
	}

	n := normalize.Normalizer[populationRecord]{
		Dataset: d.Name(),
		Method:  model.ResolvedByID,
		Key:     func(r populationRecord) string { return r.districtID },
	}
	records, err := resolve(env, sum, n, parsed, &normalize.Context{Registry: env.Registry})
	if err != nil {
		return nil, err
	}
	tallyDefaults(sum, records, func(r populationRecord) coerce.Defaulted { return r.defaulted })

	t := store.Table{
		Name: "district_population",
		Columns: []store.Column{
			{Name: "district_id", Type: store.Text},
			{Name: "district", Type: store.Text},
			{Name: "male", Type: store.Integer},
			{Name: "female", Type: store.Integer},
			{Name: "germans", Type: store.Integer},
			{Name: "foreigners", Type: store.Integer},
			{Name: "total_population", Type: store.Integer},
		},
	}
	for _, rec := range records {
		r := rec.Raw
		t.Rows = append(t.Rows, []any{
			rec.District.ID, rec.District.Name,
			r.male, r.female, r.germans, r.foreigners, r.total(),
		})
	}

	if err := write(ctx, env, sum, t); err != nil {
		return nil, err
	}
	return sum, nil
}
