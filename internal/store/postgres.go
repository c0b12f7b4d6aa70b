package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/district-intel/internal/db"
)

// PostgresStore implements Gateway using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS load_runs (
	id           TEXT PRIMARY KEY,
	dataset      TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	rows_loaded  BIGINT NOT NULL DEFAULT 0,
	error        TEXT,
	metadata     JSONB
);

CREATE INDEX IF NOT EXISTS idx_load_runs_dataset ON load_runs(dataset);
CREATE INDEX IF NOT EXISTS idx_load_runs_started_at ON load_runs(started_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var postgresTypes = map[ColumnType]string{
	Text:    "TEXT",
	Integer: "BIGINT",
	Real:    "DOUBLE PRECISION",
	Blob:    "BYTEA",
}

func (s *PostgresStore) WriteTable(ctx context.Context, t Table) (int64, error) {
	counts, err := s.WriteTables(ctx, t)
	if err != nil {
		return 0, err
	}
	return counts[0], nil
}

func (s *PostgresStore) WriteTables(ctx context.Context, tables ...Table) ([]int64, error) {
	specs := make([]db.TableSpec, len(tables))
	for i, t := range tables {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		defs := make([]db.ColumnDef, len(t.Columns))
		for j, c := range t.Columns {
			typ, ok := postgresTypes[c.Type]
			if !ok {
				return nil, eris.Errorf("postgres: write %s: column %s has unknown type %q", t.Name, c.Name, c.Type)
			}
			defs[j] = db.ColumnDef{Name: c.Name, Type: typ}
		}
		specs[i] = db.TableSpec{Name: t.Name, Columns: defs, Rows: t.Rows}
	}
	counts, err := db.ReplaceTables(ctx, s.pool, specs...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: write")
	}
	return counts, nil
}

func (s *PostgresStore) Query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query")
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, eris.Wrap(err, "postgres: query values")
		}
		r := make(Row, len(fields))
		for i, f := range fields {
			r[f.Name] = vals[i]
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: query iterate")
}

// Run log

func (s *PostgresStore) StartRun(ctx context.Context, dataset string) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO load_runs (id, dataset, status, started_at) VALUES ($1, $2, $3, $4)`,
		id, dataset, string(RunRunning), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: start run for %s", dataset)
	}
	return id, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result *RunResult) error {
	var rowsLoaded int64
	var metaJSON []byte
	if result != nil {
		rowsLoaded = result.Rows
		if result.Metadata != nil {
			var err error
			metaJSON, err = json.Marshal(result.Metadata)
			if err != nil {
				return eris.Wrap(err, "postgres: marshal run metadata")
			}
		}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE load_runs SET status = $1, completed_at = $2, rows_loaded = $3, metadata = $4 WHERE id = $5`,
		string(RunComplete), time.Now().UTC(), rowsLoaded, metaJSON, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE load_runs SET status = $1, completed_at = $2, error = $3 WHERE id = $4`,
		string(RunFailed), time.Now().UTC(), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]RunEntry, error) {
	query := `SELECT id, dataset, status, started_at, completed_at, rows_loaded, error, metadata
		FROM load_runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var entries []RunEntry
	for rows.Next() {
		var e RunEntry
		var status string
		var errStr *string
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.Dataset, &status, &e.StartedAt, &e.CompletedAt, &e.Rows, &errStr, &metaJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		e.Status = RunStatus(status)
		if errStr != nil {
			e.Error = *errStr
		}
		if metaJSON != nil {
			if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal metadata for run %s", e.ID)
			}
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}
