package attribution

import (
	"context"
	"fmt"
	"math"

	"github.com/attrib-app/attrib/internal/dataset"
)

// timeDecayHalfLife is the number of touchpoints over which time-decay credit
// halves, counted back from the converting touch.
const timeDecayHalfLife = 1.0

// Heuristic distributes each conversion's value over its journey's
// touchpoints according to rule. Every channel in the dataset gets a row,
// including channels that never appear in a converting journey.
func (l *Library) Heuristic(ctx context.Context, data *dataset.Dataset, channelCol, conversionCol, valueCol string, rule Rule) (*Table, error) {
	weigh, err := heuristicWeights(rule)
	if err != nil {
		return nil, err
	}

	journeys, err := BuildJourneys(data, l.columns(channelCol, conversionCol, valueCol))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	credit := make(map[string]float64, len(journeys.Channels))
	for _, j := range journeys.List {
		if !j.Converted {
			continue
		}
		weights := weigh(len(j.Touches))
		for i, channel := range j.Touches {
			credit[channel] += j.Value * weights[i]
		}
	}

	return channelTable(journeys.Channels, string(rule), credit), nil
}

// heuristicWeights returns a function giving per-position weights that sum
// to one for a journey of n touchpoints.
func heuristicWeights(rule Rule) (func(n int) []float64, error) {
	switch rule {
	case LastTouch:
		return func(n int) []float64 {
			w := make([]float64, n)
			w[n-1] = 1
			return w
		}, nil
	case FirstTouch:
		return func(n int) []float64 {
			w := make([]float64, n)
			w[0] = 1
			return w
		}, nil
	case Linear:
		return func(n int) []float64 {
			w := make([]float64, n)
			for i := range w {
				w[i] = 1 / float64(n)
			}
			return w
		}, nil
	case TimeDecay:
		return func(n int) []float64 {
			w := make([]float64, n)
			sum := 0.0
			for i := range w {
				w[i] = math.Pow(0.5, float64(n-1-i)/timeDecayHalfLife)
				sum += w[i]
			}
			for i := range w {
				w[i] /= sum
			}
			return w
		}, nil
	}
	return nil, fmt.Errorf("%w: heuristic %q", ErrUnknownRule, rule)
}

// channelTable builds a single-column table in channel order.
func channelTable(channels []string, column string, credit map[string]float64) *Table {
	t := &Table{
		IndexName: "channel",
		Columns:   []string{column},
		Rows:      make([]Row, len(channels)),
	}
	for i, channel := range channels {
		t.Rows[i] = Row{Label: channel, Values: []float64{credit[channel]}}
	}
	return t
}
