// Package fetcher reads local tabular source files (CSV and XLSX) into typed
// records and enforces each dataset's column contract.
package fetcher

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
)

var (
	// ErrMissingSource is returned when a source file does not exist.
	ErrMissingSource = eris.New("fetcher: source file not found")
	// ErrSchemaMismatch is returned when a required column is absent.
	ErrSchemaMismatch = eris.New("fetcher: schema mismatch")
)

// Options configures how a source file is parsed.
type Options struct {
	Delimiter  rune   // CSV only; default ','
	Comment    rune   // CSV only; 0 = none
	SheetName  string // XLSX only; overrides SheetIndex
	SheetIndex int    // XLSX only
}

// rowReader is satisfied by *csv.Reader and by the XLSX row adapter.
type rowReader interface {
	Read() ([]string, error)
}

// CheckExists returns ErrMissingSource when path does not exist.
func CheckExists(path string) error {
	if path == "" {
		return eris.Wrap(ErrMissingSource, "no path configured")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return eris.Wrapf(ErrMissingSource, "%s", path)
		}
		return eris.Wrapf(err, "fetcher: stat %s", path)
	}
	return nil
}

// ReadAll decodes every row of the file at path into T using `csv` struct
// tags. All required columns must appear in the header, otherwise the error
// wraps ErrSchemaMismatch. Columns T does not declare are ignored, and
// declared columns that are absent and not required are left empty.
func ReadAll[T any](path string, required []string, opts Options) ([]T, error) {
	if err := CheckExists(path); err != nil {
		return nil, err
	}

	r, closer, err := open(path, opts)
	if err != nil {
		return nil, err
	}
	defer closer.Close() //nolint:errcheck

	dec, err := csvutil.NewDecoder(&headerCleaner{r: r})
	if err != nil {
		if err == io.EOF {
			return nil, eris.Wrapf(ErrSchemaMismatch, "%s: file has no header", path)
		}
		return nil, eris.Wrapf(err, "fetcher: read header of %s", path)
	}

	if missing := MissingColumns(dec.Header(), required); len(missing) > 0 {
		return nil, eris.Wrapf(ErrSchemaMismatch, "%s: missing columns %s", path, strings.Join(missing, ", "))
	}

	var out []T
	for {
		var v T
		if err := dec.Decode(&v); err != nil {
			if err == io.EOF {
				break
			}
			return nil, eris.Wrapf(err, "fetcher: decode %s line %d", path, len(out)+2)
		}
		out = append(out, v)
	}
	return out, nil
}

// MissingColumns returns the required columns absent from header, in the
// order they were required.
func MissingColumns(header, required []string) []string {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[h] = true
	}
	var missing []string
	for _, c := range required {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

func open(path string, opts Options) (rowReader, io.Closer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err := ReadXLSX(path, XLSXOptions{SheetName: opts.SheetName, SheetIndex: opts.SheetIndex})
		if err != nil {
			return nil, nil, err
		}
		return newSliceReader(rows), io.NopCloser(nil), nil
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "fetcher: open %s", path)
		}
		return NewCSVReader(f, CSVOptions{Delimiter: opts.Delimiter, Comment: opts.Comment}), f, nil
	}
}

// headerCleaner strips a UTF-8 byte order mark and surrounding whitespace
// from the header row.
type headerCleaner struct {
	r    rowReader
	done bool
}

func (h *headerCleaner) Read() ([]string, error) {
	rec, err := h.r.Read()
	if err != nil || h.done {
		return rec, err
	}
	h.done = true
	for i, c := range rec {
		if i == 0 {
			c = strings.TrimPrefix(c, "\ufeff")
		}
		rec[i] = strings.TrimSpace(c)
	}
	return rec, nil
}
