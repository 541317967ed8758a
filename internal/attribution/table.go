package attribution

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// Row is one labelled line of a result table.
type Row struct {
	Label  string
	Values []float64
}

// Table is a model result: one row per channel (or per Markov state) and one
// or more value columns. IndexName heads the label column in CSV output.
type Table struct {
	IndexName string
	Columns   []string
	Rows      []Row
}

func (t *Table) Len() int {
	return len(t.Rows)
}

// Labels returns the row labels in order.
func (t *Table) Labels() []string {
	labels := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		labels[i] = r.Label
	}
	return labels
}

// Series returns the values of column col in row order.
func (t *Table) Series(col int) []float64 {
	values := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		values[i] = r.Values[col]
	}
	return values
}

// Total sums column col.
func (t *Table) Total(col int) float64 {
	total := 0.0
	for _, r := range t.Rows {
		total += r.Values[col]
	}
	return total
}

// Lookup finds the row with the given label.
func (t *Table) Lookup(label string) (Row, bool) {
	for _, r := range t.Rows {
		if r.Label == label {
			return r, true
		}
	}
	return Row{}, false
}

// WriteCSV writes the table with a header row and no synthetic index column.
// Numbers use the shortest representation that parses back to the same float.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := append([]string{t.IndexName}, t.Columns...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("%w: failed to write header: %v", ErrExport, err)
	}

	record := make([]string, len(header))
	for _, r := range t.Rows {
		if len(r.Values) != len(t.Columns) {
			return fmt.Errorf("%w: row %q has %d values for %d columns", ErrExport, r.Label, len(r.Values), len(t.Columns))
		}
		record[0] = r.Label
		for i, v := range r.Values {
			record[i+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("%w: failed to write row: %v", ErrExport, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrExport, err)
	}
	return nil
}

// EncodeCSV renders the table as CSV bytes.
func (t *Table) EncodeCSV() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.WriteCSV(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadCSV parses a table written by WriteCSV.
func ReadCSV(r io.Reader) (*Table, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("failed to read table: no header")
	}

	header := records[0]
	t := &Table{
		IndexName: header[0],
		Columns:   append([]string(nil), header[1:]...),
	}
	for line, rec := range records[1:] {
		row := Row{Label: rec[0], Values: make([]float64, len(rec)-1)}
		for i, cell := range rec[1:] {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line+2, err)
			}
			row.Values[i] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
