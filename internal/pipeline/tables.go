package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/district-intel/internal/aggregate"
	"github.com/sells-group/district-intel/internal/coerce"
	"github.com/sells-group/district-intel/internal/normalize"
	"github.com/sells-group/district-intel/internal/store"
)

// resolve normalizes raw, records the outcome in sum and enforces the
// unresolved limit.
func resolve[T any](env *Env, sum *Summary, n normalize.Normalizer[T], raw []T, rc *normalize.Context) ([]normalize.Record[T], error) {
	res, err := n.Normalize(raw, rc)
	if err != nil {
		return nil, err
	}
	sum.Stats = res.Stats
	sum.Unmatched = res.Unmatched

	log := zap.L().With(zap.String("component", "pipeline"), zap.String("dataset", sum.Dataset))
	log.Info("records resolved",
		zap.String("method", string(n.Method)),
		zap.Int("total", res.Stats.Total),
		zap.Int("resolved", res.Stats.Resolved),
		zap.Int("unresolved", res.Stats.Unresolved),
	)
	if len(res.Unmatched) > 0 {
		log.Warn("unresolved keys", zap.Any("unmatched", res.Unmatched))
	}

	if err := checkUnresolved(sum, env.Config.Load.MaxUnresolvedRatio); err != nil {
		return nil, err
	}
	return res.ResolvedRecords(), nil
}

// tallyDefaults adds the defaulted fields of resolved records to sum.
// Rows dropped as unresolved are not counted.
func tallyDefaults[T any](sum *Summary, records []normalize.Record[T], defaulted func(T) coerce.Defaulted) {
	for _, rec := range records {
		sum.Defaults.Add(defaulted(rec.Raw)...)
	}
}

// checkUnresolved fails when the unresolved share of sum exceeds limit.
func checkUnresolved(sum *Summary, limit float64) error {
	ratio := sum.Stats.UnresolvedRatio()
	if ratio > limit {
		return eris.Wrapf(ErrTooManyUnresolved, "%s: %d of %d records unresolved (%.1f%% > %.1f%%)",
			sum.Dataset, sum.Stats.Unresolved, sum.Stats.Total, ratio*100, limit*100)
	}
	return nil
}

// write replaces all of the dataset's tables in one transaction and records
// the row counts.
func write(ctx context.Context, env *Env, sum *Summary, tables ...store.Table) error {
	counts, err := env.Store.WriteTables(ctx, tables...)
	if err != nil {
		return eris.Wrapf(err, "pipeline: %s: write", sum.Dataset)
	}
	for i, t := range tables {
		sum.Tables[t.Name] = counts[i]
	}
	if sum.Defaults.Total() > 0 {
		zap.L().Info("count fields defaulted to zero",
			zap.String("component", "pipeline"),
			zap.String("dataset", sum.Dataset),
			zap.Any("defaults", map[string]int(sum.Defaults)),
		)
	}
	return nil
}

// districtColumns lead every per-district metrics table.
var districtColumns = []store.Column{
	{Name: "district_id", Type: store.Text},
	{Name: "district", Type: store.Text},
}

// metricsTable lays out an aggregate table as a store table. Integer
// columns are stored as int64; metrics absent for a district are NULL.
func metricsTable(name string, t *aggregate.Table, metrics []store.Column) store.Table {
	out := store.Table{
		Name:    name,
		Columns: append(append([]store.Column(nil), districtColumns...), metrics...),
		Rows:    make([][]any, 0, len(t.Rows)),
	}
	for _, r := range t.Rows {
		row := make([]any, 0, len(out.Columns))
		row = append(row, r.District.ID, r.District.Name)
		for _, c := range metrics {
			v, ok := r.Value(c.Name)
			switch {
			case !ok:
				row = append(row, nil)
			case c.Type == store.Integer:
				row = append(row, int64(v))
			default:
				row = append(row, v)
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// nullFloat stores a missing measurement as NULL.
func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

// nullInt stores a missing integer as NULL.
func nullInt(v int64, ok bool) any {
	if !ok {
		return nil
	}
	return v
}

// nullText stores an empty string as NULL.
func nullText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// present adapts an optional measurement for the aggregate reducers.
func present(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}
