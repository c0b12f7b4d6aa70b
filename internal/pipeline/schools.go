package pipeline

import (
	"context"

	"github.com/sells-group/district-intel/internal/aggregate"
	"github.com/sells-group/district-intel/internal/coerce"
	"github.com/sells-group/district-intel/internal/fetcher"
	"github.com/sells-group/district-intel/internal/model"
	"github.com/sells-group/district-intel/internal/normalize"
	"github.com/sells-group/district-intel/internal/store"
)

// schoolRow is one row of the school directory. Quarter names the
// neighborhood the school lies in.
type schoolRow struct {
	BSN           string `csv:"bsn"`
	SchoolName    string `csv:"school_name"`
	SchoolTypeDE  string `csv:"school_type_de"`
	OwnershipEN   string `csv:"ownership_en"`
	Quarter       string `csv:"quarter"`
	Longitude     string `csv:"longitude"`
	Latitude      string `csv:"latitude"`
	StudentsTotal string `csv:"students_total"`
	TeachersTotal string `csv:"teachers_total"`
}

var schoolRequired = []string{"bsn", "school_name", "quarter", "students_total", "teachers_total"}

type schoolRecord struct {
	raw       schoolRow
	lon, lat  *float64
	students  int64
	teachers  int64
	defaulted coerce.Defaulted
}

// Schools loads the school directory keyed by neighborhood.
type Schools struct{}

func (d *Schools) Name() string { return "schools" }
func (d *Schools) Tables() []string {
	return []string{"schools", "district_school_metrics"}
}

func (d *Schools) Load(ctx context.Context, env *Env) (*Summary, error) {
	sum := newSummary(d.Name())

	rows, err := fetcher.ReadAll[schoolRow](env.Source(env.Config.Sources.Schools), schoolRequired, env.ReadOptions())
	if err != nil {
		return nil, err
	}
	nm, err := env.Neighborhoods()
	if err != nil {
		return nil, err
	}

	parsed := make([]schoolRecord, len(rows))
	for i, r := range rows {
		p := &parsed[i]
		p.raw = r
		p.lon = coerce.OptionalFloat(r.Longitude)
		p.lat = coerce.OptionalFloat(r.Latitude)
		p.students = p.defaulted.Count("students_total", r.StudentsTotal)
		p.teachers = p.defaulted.Count("teachers_total", r.TeachersTotal)
	}

	n := normalize.Normalizer[schoolRecord]{
		Dataset: d.Name(),
		Method:  model.ResolvedByNeighborhood,
		Key:     func(r schoolRecord) string { return r.raw.Quarter },
	}
	records, err := resolve(env, sum, n, parsed, &normalize.Context{Registry: env.Registry, Neighborhoods: nm})
	if err != nil {
		return nil, err
	}
	tallyDefaults(sum, records, func(r schoolRecord) coerce.Defaulted { return r.defaulted })

	detail := store.Table{
		Name: "schools",
		Columns: []store.Column{
			{Name: "bsn", Type: store.Text},
			{Name: "school_name", Type: store.Text},
			{Name: "school_type_de", Type: store.Text},
			{Name: "ownership_en", Type: store.Text},
			{Name: "district_id", Type: store.Text},
			{Name: "district", Type: store.Text},
			{Name: "neighborhood", Type: store.Text},
			{Name: "longitude", Type: store.Real},
			{Name: "latitude", Type: store.Real},
			{Name: "students_total", Type: store.Integer},
			{Name: "teachers_total", Type: store.Integer},
		},
		Rows: make([][]any, 0, len(records)),
	}
	for _, rec := range records {
		r := rec.Raw
		detail.Rows = append(detail.Rows, []any{
			coerce.Text(r.raw.BSN),
			coerce.Text(r.raw.SchoolName),
			nullText(coerce.Text(r.raw.SchoolTypeDE)),
			nullText(coerce.Text(r.raw.OwnershipEN)),
			rec.District.ID,
			rec.District.Name,
			coerce.Text(r.raw.Quarter),
			nullFloat(r.lon),
			nullFloat(r.lat),
			r.students,
			r.teachers,
		})
	}

	agg := aggregate.Aggregate(records,
		aggregate.Count[schoolRecord]("schools_count"),
		aggregate.Sum("total_students", func(r schoolRecord) (float64, bool) { return float64(r.students), true }),
		aggregate.Sum("total_teachers", func(r schoolRecord) (float64, bool) { return float64(r.teachers), true }),
	)
	metrics := metricsTable("district_school_metrics", agg, []store.Column{
		{Name: "schools_count", Type: store.Integer},
		{Name: "total_students", Type: store.Integer},
		{Name: "total_teachers", Type: store.Integer},
	})

	if err := write(ctx, env, sum, detail, metrics); err != nil {
		return nil, err
	}
	return sum, nil
}
