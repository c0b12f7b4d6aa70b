package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// ColumnDef is a column name with its Postgres type.
type ColumnDef struct {
	Name string
	Type string
}

// CopyFrom bulk-inserts rows into a table using PostgreSQL COPY protocol.
// Schema-qualified names ("schema.table") are split into identifiers.
func CopyFrom(ctx context.Context, q Querier, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := q.CopyFrom(ctx, Identifier(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}

	return n, nil
}

// TableSpec is a table to be replaced: its columns and its full contents.
type TableSpec struct {
	Name    string
	Columns []ColumnDef
	Rows    [][]any
}

// ReplaceTables drops, recreates and fills every table inside one
// transaction and returns the row count of each, in order. On any error all
// previous tables are left untouched.
func ReplaceTables(ctx context.Context, pool Pool, tables ...TableSpec) ([]int64, error) {
	for _, t := range tables {
		if len(t.Columns) == 0 {
			return nil, eris.Errorf("db: replace %s: no columns specified", t.Name)
		}
	}
	if len(tables) == 0 {
		return nil, nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "db: replace: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	counts := make([]int64, len(tables))
	for i, t := range tables {
		n, err := replaceIn(ctx, tx, t)
		if err != nil {
			return nil, err
		}
		counts[i] = n
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "db: replace: commit tx")
	}
	return counts, nil
}

func replaceIn(ctx context.Context, q Querier, t TableSpec) (int64, error) {
	ident := Identifier(t.Name).Sanitize()
	if _, err := q.Exec(ctx, "DROP TABLE IF EXISTS "+ident); err != nil {
		return 0, eris.Wrapf(err, "db: replace %s: drop", t.Name)
	}
	if _, err := q.Exec(ctx, createTableSQL(ident, t.Columns)); err != nil {
		return 0, eris.Wrapf(err, "db: replace %s: create", t.Name)
	}

	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return CopyFrom(ctx, q, t.Name, names, t.Rows)
}

// Identifier handles schema-qualified table names like "analytics.land_prices".
func Identifier(table string) pgx.Identifier {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}
	}
	return pgx.Identifier{table}
}

func createTableSQL(ident string, columns []ColumnDef) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = fmt.Sprintf("%s %s", pgx.Identifier{c.Name}.Sanitize(), c.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", ident, strings.Join(defs, ", "))
}
