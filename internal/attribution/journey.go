package attribution

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/attrib-app/attrib/internal/dataset"
)

// Columns names the dataset columns a model reads. Value and Journey are
// optional.
type Columns struct {
	Channel    string
	Conversion string
	Value      string
	Journey    string
}

// Journey is an ordered run of touchpoints that ends either in a conversion or
// at the end of the data.
type Journey struct {
	Touches   []string
	Converted bool
	Value     float64
}

// Journeys is the folded form of a dataset.
type Journeys struct {
	List []Journey

	// Channels holds every channel seen, in order of first appearance.
	Channels []string
}

// TotalValue sums the value of converting journeys.
func (j *Journeys) TotalValue() float64 {
	total := 0.0
	for _, journey := range j.List {
		if journey.Converted {
			total += journey.Value
		}
	}
	return total
}

// BuildJourneys folds dataset rows into journeys. Rows are read in file order
// and, when a journey column is given, grouped by its value. Each stream is
// cut after every converting row, so the converting touchpoint closes the
// journey it belongs to. A conversion is worth the value cell of its row, or 1
// without a value column.
func BuildJourneys(ds *dataset.Dataset, cols Columns) (*Journeys, error) {
	channelIdx, err := ds.Index(cols.Channel)
	if err != nil {
		return nil, err
	}
	conversionIdx, err := ds.Index(cols.Conversion)
	if err != nil {
		return nil, err
	}
	valueIdx := -1
	if cols.Value != "" {
		if valueIdx, err = ds.Index(cols.Value); err != nil {
			return nil, err
		}
	}
	journeyIdx := -1
	if cols.Journey != "" {
		if journeyIdx, err = ds.Index(cols.Journey); err != nil {
			return nil, err
		}
	}

	result := &Journeys{}
	seen := make(map[string]bool)

	// open journeys by stream key, in order of first appearance
	open := make(map[string]*Journey)
	var order []string

	for i, row := range ds.Rows {
		line := i + 2 // header is line 1

		channel := strings.TrimSpace(row[channelIdx])
		if channel == "" {
			return nil, fmt.Errorf("line %d: empty %s: %w", line, cols.Channel, ErrInvalidValue)
		}
		converted, err := parseFlag(row[conversionIdx])
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", line, cols.Conversion, err)
		}

		if !seen[channel] {
			seen[channel] = true
			result.Channels = append(result.Channels, channel)
		}

		key := ""
		if journeyIdx >= 0 {
			key = row[journeyIdx]
		}
		j, ok := open[key]
		if !ok {
			j = &Journey{}
			open[key] = j
			order = append(order, key)
		}
		j.Touches = append(j.Touches, channel)

		if !converted {
			continue
		}

		j.Converted = true
		j.Value = 1
		if valueIdx >= 0 {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[valueIdx]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s %q: %w", line, cols.Value, row[valueIdx], ErrInvalidValue)
			}
			j.Value = v
		}
		result.List = append(result.List, *j)
		delete(open, key)
	}

	// flush non-converting tails
	for _, key := range order {
		if j, ok := open[key]; ok {
			result.List = append(result.List, *j)
			delete(open, key)
		}
	}

	return result, nil
}

// parseFlag reads a conversion indicator.
func parseFlag(cell string) (bool, error) {
	s := strings.ToLower(strings.TrimSpace(cell))
	switch s {
	case "1", "true", "t", "yes", "y":
		return true, nil
	case "0", "false", "f", "no", "n", "":
		return false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return false, fmt.Errorf("%q is not a conversion flag: %w", cell, ErrInvalidValue)
	}
	return v > 0, nil
}
