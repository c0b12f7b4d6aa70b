// Package store persists loaded datasets and the load run log.
package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/district-intel/internal/config"
)

// ColumnType is the backend-neutral type of a stored column.
type ColumnType string

// Column types.
const (
	Text    ColumnType = "text"
	Integer ColumnType = "integer"
	Real    ColumnType = "real"
	Blob    ColumnType = "blob"
)

// Column is a named, typed table column.
type Column struct {
	Name string
	Type ColumnType
}

// Table is a complete table to be written in replace mode.
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]any
}

// ColumnNames returns the table's column names in order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Validate checks that the table has a name, columns and rectangular rows.
func (t Table) Validate() error {
	if t.Name == "" {
		return eris.New("store: table name is required")
	}
	if len(t.Columns) == 0 {
		return eris.Errorf("store: table %s has no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" {
			return eris.Errorf("store: table %s has an unnamed column", t.Name)
		}
		if seen[c.Name] {
			return eris.Errorf("store: table %s has duplicate column %s", t.Name, c.Name)
		}
		seen[c.Name] = true
	}
	for i, r := range t.Rows {
		if len(r) != len(t.Columns) {
			return eris.Errorf("store: table %s row %d has %d values, want %d", t.Name, i, len(r), len(t.Columns))
		}
	}
	return nil
}

// Row is one result row keyed by column name.
type Row map[string]any

// String returns column col as text.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// Float returns column col as a number. ok is false for NULL or
// non-numeric values.
func (r Row) Float(col string) (float64, bool) {
	switch v := r[col].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// RunStatus is the state of a load run.
type RunStatus string

// Run states.
const (
	RunRunning  RunStatus = "running"
	RunComplete RunStatus = "complete"
	RunFailed   RunStatus = "failed"
)

// RunEntry is one row of the load run log.
type RunEntry struct {
	ID          string         `json:"id"`
	Dataset     string         `json:"dataset"`
	Status      RunStatus      `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Rows        int64          `json:"rows"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// RunResult is the outcome of a load, passed to CompleteRun.
type RunResult struct {
	Rows     int64          `json:"rows"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Gateway is the persistence surface used by loaders and reports.
type Gateway interface {
	Migrate(ctx context.Context) error

	// WriteTable replaces t atomically and returns the number of rows
	// written. On error the previous contents of the table are kept.
	WriteTable(ctx context.Context, t Table) (int64, error)
	// WriteTables replaces every table in one transaction and returns the
	// row count of each, in order. On error none of them change.
	WriteTables(ctx context.Context, tables ...Table) ([]int64, error)
	Query(ctx context.Context, sql string, args ...any) ([]Row, error)

	// Run log
	StartRun(ctx context.Context, dataset string) (string, error)
	CompleteRun(ctx context.Context, runID string, result *RunResult) error
	FailRun(ctx context.Context, runID string, errMsg string) error
	ListRuns(ctx context.Context, limit int) ([]RunEntry, error)

	Close() error
}

// Open connects to the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Gateway, error) {
	switch cfg.Driver {
	case "", "sqlite":
		s, err := NewSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgres(ctx, cfg.DatabaseURL, nil)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
