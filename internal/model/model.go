// Package model collects per-run inputs into an explicit request and
// dispatches it to the matching attribution model.
package model

import (
	"fmt"

	"github.com/attrib-app/attrib/internal/attribution"
)

// Kind names an attribution model family.
type Kind string

const (
	Heuristic Kind = "Heuristic"
	Markov    Kind = "Markov"
	Shapley   Kind = "Shapley"
)

// Kinds lists the selectable models in display order.
var Kinds = []Kind{Heuristic, Markov, Shapley}

var descriptions = map[Kind]string{
	Heuristic: "Assigns conversion value based on simple rules. E.g., Last Touch gives all credit to the last channel.",
	Markov:    "Considers the entire customer journey and calculates the importance of each channel.",
	Shapley:   "Based on cooperative game theory, it distributes the conversion value among all channels.",
}

// ParseKind accepts a model name as shown in the selector.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown model %q", ErrInvalidInput, s)
}

// Description is the one-line explanation shown beside the selector.
func (k Kind) Description() string {
	return descriptions[k]
}

// Title heads the result chart.
func (k Kind) Title() string {
	return string(k) + " Model Results"
}

// Params is the model-specific parameter group. Exactly one of
// HeuristicParams, MarkovParams or ShapleyParams.
type Params interface {
	Kind() Kind
}

type HeuristicParams struct {
	Rule attribution.Rule
}

type MarkovParams struct {
	Order  int
	Output attribution.MarkovOutput
}

type ShapleyParams struct {
	Simulations int
}

func (HeuristicParams) Kind() Kind { return Heuristic }
func (MarkovParams) Kind() Kind    { return Markov }
func (ShapleyParams) Kind() Kind   { return Shapley }

// Parameter defaults, matching the initial widget state.
const (
	DefaultOrder       = attribution.MinMarkovOrder
	DefaultSimulations = 10000
)

// DefaultParams returns the declared defaults for a model.
func DefaultParams(k Kind) Params {
	switch k {
	case Markov:
		return MarkovParams{Order: DefaultOrder, Output: attribution.TransitionMatrix}
	case Shapley:
		return ShapleyParams{Simulations: DefaultSimulations}
	default:
		return HeuristicParams{Rule: attribution.LastTouch}
	}
}

// Request is everything one run needs, built fresh from widget state.
type Request struct {
	ChannelCol    string
	ConversionCol string
	ValueCol      string
	JourneyCol    string
	Params        Params
}

func (r Request) Kind() Kind {
	if r.Params == nil {
		return ""
	}
	return r.Params.Kind()
}
