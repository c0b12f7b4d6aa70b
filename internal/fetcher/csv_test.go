package fetcher

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type landRow struct {
	District string `csv:"district_name"`
	Value    string `csv:"standard_land_value"`
	Use      string `csv:"typical_land_use_type"`
}

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, writeTestFile(path, content))
	return path
}

func TestReadCSV_Basic(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader("a,b,c\n1,2,3\n4,5,6\n"), CSVOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"a", "b", "c"}, rows[0])
	assert.Equal(t, []string{"4", "5", "6"}, rows[2])
}

func TestReadCSV_SemicolonAndTrim(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader("a; b\n 1 ;2\n"), CSVOptions{Delimiter: ';', TrimSpace: true})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, rows)
}

func TestReadCSV_Comment(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader("# generated\na,b\n1,2\n"), CSVOptions{Comment: '#'})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestReadCSV_LazyQuotes(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader("name\nSchule \"Am Park\" Mitte\n"), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, `Schule "Am Park" Mitte`, rows[1][0])
}

func TestReadAll_CSV(t *testing.T) {
	path := writeCSV(t, "land.csv",
		"district_name,standard_land_value,typical_land_use_type,extra\n"+
			"Mitte,5200,W,x\n"+
			"Spandau,,G,y\n")

	rows, err := ReadAll[landRow](path, []string{"district_name", "standard_land_value"}, Options{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, landRow{District: "Mitte", Value: "5200", Use: "W"}, rows[0])
	assert.Equal(t, landRow{District: "Spandau", Value: "", Use: "G"}, rows[1])
}

func TestReadAll_BOMAndPaddedHeader(t *testing.T) {
	path := writeCSV(t, "land.csv", "\ufeffdistrict_name , standard_land_value\nMitte,5200\n")

	rows, err := ReadAll[landRow](path, []string{"district_name", "standard_land_value"}, Options{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Mitte", rows[0].District)
}

func TestReadAll_Delimiter(t *testing.T) {
	path := writeCSV(t, "land.csv", "district_name;standard_land_value\nMitte;5200\n")

	rows, err := ReadAll[landRow](path, []string{"district_name"}, Options{Delimiter: ';'})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "5200", rows[0].Value)
}

func TestReadAll_MissingColumn(t *testing.T) {
	path := writeCSV(t, "land.csv", "district,standard_land_value\nMitte,5200\n")

	_, err := ReadAll[landRow](path, []string{"district_name", "standard_land_value"}, Options{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrSchemaMismatch))
	assert.Contains(t, err.Error(), "district_name")
}

func TestReadAll_EmptyFile(t *testing.T) {
	path := writeCSV(t, "empty.csv", "")

	_, err := ReadAll[landRow](path, nil, Options{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrSchemaMismatch))
}

func TestReadAll_MissingFile(t *testing.T) {
	_, err := ReadAll[landRow](filepath.Join(t.TempDir(), "nope.csv"), nil, Options{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrMissingSource))
}

func TestReadAll_RaggedRow(t *testing.T) {
	path := writeCSV(t, "land.csv", "district_name,standard_land_value\nMitte,5200,extra\n")

	_, err := ReadAll[landRow](path, nil, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestCheckExists(t *testing.T) {
	err := CheckExists("")
	assert.True(t, eris.Is(err, ErrMissingSource))

	path := writeCSV(t, "x.csv", "a\n")
	assert.NoError(t, CheckExists(path))
}

func TestMissingColumns(t *testing.T) {
	assert.Empty(t, MissingColumns([]string{"a", "b"}, []string{"b"}))
	assert.Equal(t, []string{"c", "d"}, MissingColumns([]string{"a"}, []string{"c", "a", "d"}))
}
