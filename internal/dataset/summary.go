package dataset

import (
	"strconv"
	"strings"

	"github.com/attrib-app/attrib/internal/stats"
)

// ColumnSummary describes one column of a dataset.
type ColumnSummary struct {
	Name    string
	Count   int // non-empty cells
	Unique  int
	Numeric bool
	Stats   stats.Description
}

// Summarize describes every column. A column is numeric when all of its
// non-empty cells parse as floats.
func (d *Dataset) Summarize() []ColumnSummary {
	summaries := make([]ColumnSummary, len(d.Header))
	for i, name := range d.Header {
		seen := make(map[string]struct{})
		var numbers []float64
		numeric := true
		count := 0

		for _, row := range d.Rows {
			cell := strings.TrimSpace(row[i])
			if cell == "" {
				continue
			}
			count++
			seen[cell] = struct{}{}
			if !numeric {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				numeric = false
				numbers = nil
				continue
			}
			numbers = append(numbers, v)
		}

		s := ColumnSummary{
			Name:    name,
			Count:   count,
			Unique:  len(seen),
			Numeric: numeric && count > 0,
		}
		if s.Numeric {
			s.Stats = stats.Describe(numbers)
		}
		summaries[i] = s
	}
	return summaries
}
