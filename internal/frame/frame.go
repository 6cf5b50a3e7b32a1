// Package frame provides a minimal column-addressed table over CSV data.
// It covers what the workshop pipeline needs: header-driven parsing,
// column selection, and a group-by count aggregation.
package frame

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	apperrors "github.com/Chrswb4/startup-ds-workshop/internal/errors"
)

// utf8BOM is written in front of CSV output so Excel detects the encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Frame is an immutable in-memory table: a header row plus data rows.
type Frame struct {
	headers []string
	index   map[string]int
	rows    [][]string
}

// GroupResult is one bucket of a GroupCount aggregation.
type GroupResult struct {
	Key   string
	Count int
}

// New builds a Frame from a header and rows. Every row must have
// exactly len(headers) fields.
func New(headers []string, rows [][]string) (*Frame, error) {
	if len(headers) == 0 {
		return nil, apperrors.NewParsingError("frame requires at least one column", nil)
	}

	index := make(map[string]int, len(headers))
	for i, h := range headers {
		if _, dup := index[h]; dup {
			return nil, apperrors.NewParsingError(fmt.Sprintf("duplicate column %q", h), nil)
		}
		index[h] = i
	}

	for i, row := range rows {
		if len(row) != len(headers) {
			return nil, apperrors.NewParsingError(
				fmt.Sprintf("row %d has %d fields, expected %d", i+1, len(row), len(headers)), nil)
		}
	}

	return &Frame{headers: headers, index: index, rows: rows}, nil
}

// ReadCSV parses CSV data from r. The first record is the header.
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // length checked in New for a better message

	records, err := reader.ReadAll()
	if err != nil {
		return nil, apperrors.NewParsingError("failed to parse CSV", err)
	}
	if len(records) == 0 {
		return nil, apperrors.NewParsingError("CSV input is empty", nil)
	}

	return New(records[0], records[1:])
}

// ReadCSVFile parses the CSV file at path.
func ReadCSVFile(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to open %s", path), err)
	}
	defer file.Close()

	frame, err := ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return frame, nil
}

// Headers returns the column names in order.
func (f *Frame) Headers() []string {
	out := make([]string, len(f.headers))
	copy(out, f.headers)
	return out
}

// NumRows returns the number of data rows.
func (f *Frame) NumRows() int {
	return len(f.rows)
}

// HasColumn reports whether the frame has a column with the given name.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Column returns all values of the named column in row order.
func (f *Frame) Column(name string) ([]string, error) {
	i, ok := f.index[name]
	if !ok {
		return nil, apperrors.NewAppValidationError(fmt.Sprintf("column %q does not exist", name))
	}

	values := make([]string, len(f.rows))
	for r, row := range f.rows {
		values[r] = row[i]
	}
	return values, nil
}

// Row returns a copy of the data row at position i.
func (f *Frame) Row(i int) ([]string, error) {
	if i < 0 || i >= len(f.rows) {
		return nil, apperrors.NewAppValidationError(fmt.Sprintf("row %d out of range", i))
	}
	out := make([]string, len(f.rows[i]))
	copy(out, f.rows[i])
	return out, nil
}

// Select returns a new Frame containing only the named columns.
func (f *Frame) Select(names ...string) (*Frame, error) {
	indices := make([]int, len(names))
	for n, name := range names {
		i, ok := f.index[name]
		if !ok {
			return nil, apperrors.NewAppValidationError(fmt.Sprintf("column %q does not exist", name))
		}
		indices[n] = i
	}

	rows := make([][]string, len(f.rows))
	for r, row := range f.rows {
		selected := make([]string, len(indices))
		for n, i := range indices {
			selected[n] = row[i]
		}
		rows[r] = selected
	}

	return New(names, rows)
}

// GroupCount counts rows per distinct value of the named column.
// Results are sorted by key so output is deterministic. Empty values
// are counted under the empty string key.
func (f *Frame) GroupCount(column string) ([]GroupResult, error) {
	values, err := f.Column(column)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, v := range values {
		counts[v]++
	}

	results := make([]GroupResult, 0, len(counts))
	for key, count := range counts {
		results = append(results, GroupResult{Key: key, Count: count})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })

	return results, nil
}

// WriteCSVFile writes the frame to path atomically: the data goes to a
// temp file in the same directory which is then renamed into place, so
// a reader never observes a partially written file.
func (f *Frame) WriteCSVFile(path string, withBOM bool) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to create directory %s", dir), err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return apperrors.NewStorageError("failed to create temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if withBOM {
		if _, err := tmp.Write(utf8BOM); err != nil {
			tmp.Close()
			return apperrors.NewStorageError("failed to write BOM", err)
		}
	}

	writer := csv.NewWriter(tmp)
	if err := writer.Write(f.headers); err != nil {
		tmp.Close()
		return apperrors.NewStorageError("failed to write header", err)
	}
	if err := writer.WriteAll(f.rows); err != nil {
		tmp.Close()
		return apperrors.NewStorageError("failed to write rows", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		tmp.Close()
		return apperrors.NewStorageError("failed to flush CSV", err)
	}

	if err := tmp.Close(); err != nil {
		return apperrors.NewStorageError("failed to close temp file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to move %s into place", path), err)
	}

	return nil
}
