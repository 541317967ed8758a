// Package dataset loads uploaded touchpoint CSV files into an in-memory table.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrColumnNotFound is returned when a named column is absent from the header.
var ErrColumnNotFound = errors.New("column not found")

// ErrEmpty is returned for input without a header row.
var ErrEmpty = errors.New("empty csv")

// Dataset is a parsed CSV: one header row and any number of records.
type Dataset struct {
	Header []string
	Rows   [][]string
}

// Parse reads a CSV with a header row. Header names are trimmed and stripped of
// stray quotes; short records are padded with empty cells.
func Parse(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	for i, h := range header {
		// Excel exports lead with a byte order mark.
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		h = strings.TrimSpace(h)
		header[i] = strings.ReplaceAll(h, `"`, "")
	}

	ds := &Dataset{Header: header}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}
		if len(record) > len(header) {
			return nil, fmt.Errorf("line %d has %d fields, header has %d", line, len(record), len(header))
		}
		for len(record) < len(header) {
			record = append(record, "")
		}
		ds.Rows = append(ds.Rows, record)
	}

	return ds, nil
}

// Index returns the position of the named column.
func (d *Dataset) Index(name string) (int, error) {
	for i, h := range d.Header {
		if h == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
}

// Column returns every value of the named column in row order.
func (d *Dataset) Column(name string) ([]string, error) {
	idx, err := d.Index(name)
	if err != nil {
		return nil, err
	}
	values := make([]string, len(d.Rows))
	for i, row := range d.Rows {
		values[i] = row[idx]
	}
	return values, nil
}

// Require checks that every non-empty name is a column of the dataset.
func (d *Dataset) Require(names ...string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, err := d.Index(name); err != nil {
			return err
		}
	}
	return nil
}

// Head returns at most n rows from the top of the dataset.
func (d *Dataset) Head(n int) [][]string {
	if n > len(d.Rows) {
		n = len(d.Rows)
	}
	return d.Rows[:n]
}

func (d *Dataset) Len() int {
	return len(d.Rows)
}
