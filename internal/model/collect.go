package model

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/attrib-app/attrib/internal/attribution"
)

// ErrInvalidInput is returned when widget state is out of range.
var ErrInvalidInput = errors.New("invalid input")

// Signals is the raw widget state posted by the page on every interaction.
type Signals struct {
	Model     string `json:"model"`
	LastModel string `json:"lastModel"`

	ChannelCol    string `json:"channelCol"`
	ConversionCol string `json:"conversionCol"`
	ValueCol      string `json:"valueCol"`
	JourneyCol    string `json:"journeyCol"`

	Rule        string `json:"rule"`
	Order       int    `json:"order"`
	Output      string `json:"output"`
	Simulations int    `json:"simulations"`

	ShowPreview bool `json:"showPreview"`
	ShowSummary bool `json:"showSummary"`
}

// DefaultSignals is the widget state of a fresh page.
func DefaultSignals() Signals {
	s := Signals{
		Model:         string(Heuristic),
		LastModel:     string(Heuristic),
		ChannelCol:    "channel",
		ConversionCol: "conversion",
	}
	return s.withDefaults(Heuristic).withDefaults(Markov).withDefaults(Shapley)
}

func (s Signals) withDefaults(k Kind) Signals {
	switch p := DefaultParams(k).(type) {
	case HeuristicParams:
		s.Rule = string(p.Rule)
	case MarkovParams:
		s.Order = p.Order
		s.Output = string(p.Output)
	case ShapleyParams:
		s.Simulations = p.Simulations
	}
	return s
}

// Normalize handles a model switch: when the selected model differs from the
// one rendered last, its parameter group starts again from defaults so no
// state leaks from an earlier visit.
func (s Signals) Normalize() Signals {
	if s.Model == s.LastModel {
		return s
	}
	if k, err := ParseKind(s.Model); err == nil {
		s = s.withDefaults(k)
	}
	s.LastModel = s.Model
	return s
}

// Collect validates widget state into a Request. Parameters outside their
// declared ranges are rejected here, before any model runs.
func Collect(s Signals) (Request, error) {
	kind, err := ParseKind(s.Model)
	if err != nil {
		return Request{}, err
	}

	req := Request{
		ChannelCol:    strings.TrimSpace(s.ChannelCol),
		ConversionCol: strings.TrimSpace(s.ConversionCol),
		ValueCol:      strings.TrimSpace(s.ValueCol),
		JourneyCol:    strings.TrimSpace(s.JourneyCol),
	}
	if req.ChannelCol == "" {
		return Request{}, fmt.Errorf("%w: channel column name is required", ErrInvalidInput)
	}
	if req.ConversionCol == "" {
		return Request{}, fmt.Errorf("%w: conversion column name is required", ErrInvalidInput)
	}

	switch kind {
	case Heuristic:
		rule := attribution.Rule(s.Rule)
		if !slices.Contains(attribution.Rules, rule) {
			return Request{}, fmt.Errorf("%w: heuristic model %q", ErrInvalidInput, s.Rule)
		}
		req.Params = HeuristicParams{Rule: rule}

	case Markov:
		if s.Order < attribution.MinMarkovOrder || s.Order > attribution.MaxMarkovOrder {
			return Request{}, fmt.Errorf("%w: order %d outside [%d, %d]", ErrInvalidInput,
				s.Order, attribution.MinMarkovOrder, attribution.MaxMarkovOrder)
		}
		output := attribution.MarkovOutput(s.Output)
		if !slices.Contains(attribution.MarkovOutputs, output) {
			return Request{}, fmt.Errorf("%w: output type %q", ErrInvalidInput, s.Output)
		}
		req.Params = MarkovParams{Order: s.Order, Output: output}

	case Shapley:
		if s.Simulations < attribution.MinSimulations || s.Simulations > attribution.MaxSimulations {
			return Request{}, fmt.Errorf("%w: simulations %d outside [%d, %d]", ErrInvalidInput,
				s.Simulations, attribution.MinSimulations, attribution.MaxSimulations)
		}
		req.Params = ShapleyParams{Simulations: s.Simulations}
	}

	return req, nil
}
