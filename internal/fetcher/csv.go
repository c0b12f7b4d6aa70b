package fetcher

import (
	"encoding/csv"
	"io"
	"strings"
)

// CSVOptions configures the CSV parser.
type CSVOptions struct {
	Delimiter rune // default ','
	Comment   rune // comment character (0 = none)
	TrimSpace bool
}

// CSVReader wraps encoding/csv with the options the source files need.
type CSVReader struct {
	r    *csv.Reader
	trim bool
}

// NewCSVReader returns a reader over r. Quotes are parsed lazily since
// several open-data exports contain stray quotes inside fields.
func NewCSVReader(r io.Reader, opts CSVOptions) *CSVReader {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = true
	return &CSVReader{r: reader, trim: opts.TrimSpace}
}

// Read returns the next record, or io.EOF.
func (c *CSVReader) Read() ([]string, error) {
	record, err := c.r.Read()
	if err != nil {
		return nil, err
	}
	if c.trim {
		for i, field := range record {
			record[i] = strings.TrimSpace(field)
		}
	}
	return record, nil
}

// ReadCSV reads all records from r, header included.
func ReadCSV(r io.Reader, opts CSVOptions) ([][]string, error) {
	cr := NewCSVReader(r, opts)
	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
}
