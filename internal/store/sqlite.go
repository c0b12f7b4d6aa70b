package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Gateway using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// The parent directory is created when missing.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dsn); dsn != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "sqlite: create %s", dir)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS load_runs (
	id           TEXT PRIMARY KEY,
	dataset      TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   TEXT NOT NULL,
	completed_at TEXT,
	rows_loaded  INTEGER NOT NULL DEFAULT 0,
	error        TEXT,
	metadata     TEXT
);

CREATE INDEX IF NOT EXISTS idx_load_runs_dataset ON load_runs(dataset);
CREATE INDEX IF NOT EXISTS idx_load_runs_started_at ON load_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var sqliteTypes = map[ColumnType]string{
	Text:    "TEXT",
	Integer: "INTEGER",
	Real:    "REAL",
	Blob:    "BLOB",
}

func (s *SQLiteStore) WriteTable(ctx context.Context, t Table) (int64, error) {
	counts, err := s.WriteTables(ctx, t)
	if err != nil {
		return 0, err
	}
	return counts[0], nil
}

func (s *SQLiteStore) WriteTables(ctx context.Context, tables ...Table) ([]int64, error) {
	for _, t := range tables {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}
	if len(tables) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: write: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	counts := make([]int64, len(tables))
	for i, t := range tables {
		n, err := replaceTable(ctx, tx, t)
		if err != nil {
			return nil, err
		}
		counts[i] = n
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: write: commit")
	}
	return counts, nil
}

// replaceTable drops, recreates and fills t inside tx.
func replaceTable(ctx context.Context, tx *sql.Tx, t Table) (int64, error) {
	name := quoteIdent(t.Name)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return 0, eris.Wrapf(err, "sqlite: write %s: drop", t.Name)
	}

	defs := make([]string, len(t.Columns))
	cols := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		typ, ok := sqliteTypes[c.Type]
		if !ok {
			return 0, eris.Errorf("sqlite: write %s: column %s has unknown type %q", t.Name, c.Name, c.Type)
		}
		cols[i] = quoteIdent(c.Name)
		defs[i] = cols[i] + " " + typ
		marks[i] = "?"
	}
	if _, err := tx.ExecContext(ctx, "CREATE TABLE "+name+" ("+strings.Join(defs, ", ")+")"); err != nil {
		return 0, eris.Wrapf(err, "sqlite: write %s: create", t.Name)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO "+name+" ("+strings.Join(cols, ", ")+") VALUES ("+strings.Join(marks, ", ")+")")
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: write %s: prepare insert", t.Name)
	}
	defer func() { _ = stmt.Close() }()

	var n int64
	for i, row := range t.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: write %s: insert row %d", t.Name, i)
		}
		n++
	}
	return n, nil
}

func (s *SQLiteStore) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query")
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query columns")
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrap(err, "sqlite: query scan")
		}
		r := make(Row, len(cols))
		for i, c := range cols {
			r[c] = vals[i]
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: query iterate")
}

// Run log

func (s *SQLiteStore) StartRun(ctx context.Context, dataset string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO load_runs (id, dataset, status, started_at) VALUES (?, ?, ?, ?)`,
		id, dataset, string(RunRunning), formatTime(time.Now()),
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: start run for %s", dataset)
	}
	return id, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, result *RunResult) error {
	var rowsLoaded int64
	var meta sql.NullString
	if result != nil {
		rowsLoaded = result.Rows
		if result.Metadata != nil {
			data, err := json.Marshal(result.Metadata)
			if err != nil {
				return eris.Wrap(err, "sqlite: marshal run metadata")
			}
			meta = sql.NullString{String: string(data), Valid: true}
		}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE load_runs SET status = ?, completed_at = ?, rows_loaded = ?, metadata = ? WHERE id = ?`,
		string(RunComplete), formatTime(time.Now()), rowsLoaded, meta, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE load_runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(RunFailed), formatTime(time.Now()), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunEntry, error) {
	query := `SELECT id, dataset, status, started_at, completed_at, rows_loaded, error, metadata
		FROM load_runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer func() { _ = rows.Close() }()

	var entries []RunEntry
	for rows.Next() {
		var (
			e                       RunEntry
			status, startedAt       string
			completedAt, errS, meta sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Dataset, &status, &startedAt, &completedAt, &e.Rows, &errS, &meta); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		e.Status = RunStatus(status)
		if e.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			t, err := parseTime(completedAt.String)
			if err != nil {
				return nil, err
			}
			e.CompletedAt = &t
		}
		e.Error = errS.String
		if meta.Valid {
			if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
				return nil, eris.Wrapf(err, "sqlite: unmarshal metadata for run %s", e.ID)
			}
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

// quoteIdent double-quotes an SQL identifier.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse time %q", s)
	}
	return t, nil
}
