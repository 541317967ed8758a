// Package attribution implements the three channel-attribution models the app
// dispatches to: rule-based heuristics, a Markov-chain removal-effect model and
// Monte Carlo Shapley values.
//
// Each model reads a dataset of touchpoints, folds it into journeys (see
// BuildJourneys) and returns a Table keyed by channel.
package attribution

import (
	"errors"
	"runtime"
)

var (
	// ErrUnknownRule is returned for a heuristic rule or Markov output type
	// outside the supported set.
	ErrUnknownRule = errors.New("unknown rule")

	// ErrInvalidValue is returned when a conversion flag or value cell cannot
	// be parsed.
	ErrInvalidValue = errors.New("invalid value")

	// ErrTooManyChannels is returned by Shapley when the dataset has more
	// channels than a coalition bitmask can hold.
	ErrTooManyChannels = errors.New("too many channels")

	// ErrSingularChain is returned when the Markov absorption system has no
	// unique solution.
	ErrSingularChain = errors.New("markov chain has no absorbing solution")

	// ErrExport wraps failures while serialising a Table.
	ErrExport = errors.New("export failed")
)

// Rule selects a heuristic attribution rule.
type Rule string

const (
	LastTouch  Rule = "last_touch"
	FirstTouch Rule = "first_touch"
	Linear     Rule = "linear"
	TimeDecay  Rule = "time_decay"
)

// Rules lists the heuristic rules in display order.
var Rules = []Rule{LastTouch, FirstTouch, Linear, TimeDecay}

// MarkovOutput selects what the Markov model returns.
type MarkovOutput string

const (
	TransitionMatrix  MarkovOutput = "transition_matrix"
	MarkovAttribution MarkovOutput = "attribution"
)

// MarkovOutputs lists the Markov output types in display order.
var MarkovOutputs = []MarkovOutput{TransitionMatrix, MarkovAttribution}

// Library runs attribution models over uploaded datasets. The zero value is
// usable: no journey column, seed 0 and one Shapley worker per CPU.
type Library struct {
	// JourneyCol, when set, groups touchpoints into per-user streams before
	// splitting them at conversions.
	JourneyCol string

	// Seed makes Shapley sampling reproducible.
	Seed uint64

	// Workers bounds Shapley sampling parallelism.
	Workers int
}

func (l *Library) workers() int {
	if l.Workers > 0 {
		return l.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (l *Library) columns(channelCol, conversionCol, valueCol string) Columns {
	return Columns{
		Channel:    channelCol,
		Conversion: conversionCol,
		Value:      valueCol,
		Journey:    l.JourneyCol,
	}
}
