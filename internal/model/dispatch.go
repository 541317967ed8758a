package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/attrib-app/attrib/internal/attribution"
	"github.com/attrib-app/attrib/internal/dataset"
)

var (
	// ErrInputMissing is returned when a run is requested without data.
	ErrInputMissing = errors.New("no dataset uploaded")
	// ErrComputation wraps any failure raised inside a model.
	ErrComputation = errors.New("attribution failed")
)

// Collaborator computes attribution tables. *attribution.Library is the
// production implementation.
type Collaborator interface {
	Heuristic(ctx context.Context, data *dataset.Dataset, channelCol, conversionCol, valueCol string, rule attribution.Rule) (*attribution.Table, error)
	Markov(ctx context.Context, data *dataset.Dataset, channelCol, conversionCol, valueCol string, order int, output attribution.MarkovOutput) (*attribution.Table, error)
	Shapley(ctx context.Context, data *dataset.Dataset, channelCol, conversionCol, valueCol string, nSimulations int) (*attribution.Table, error)
}

var _ Collaborator = (*attribution.Library)(nil)

// Dispatch runs the model selected by req and returns its table. A request
// with no parameter group yields (nil, nil). Missing columns surface as
// dataset.ErrColumnNotFound; every other model failure is wrapped in
// ErrComputation.
func Dispatch(ctx context.Context, c Collaborator, data *dataset.Dataset, req Request) (*attribution.Table, error) {
	if data == nil {
		return nil, ErrInputMissing
	}
	if req.Params == nil {
		return nil, nil
	}
	if err := data.Require(req.ChannelCol, req.ConversionCol, req.ValueCol, req.JourneyCol); err != nil {
		return nil, err
	}

	var (
		table *attribution.Table
		err   error
	)
	switch p := req.Params.(type) {
	case HeuristicParams:
		table, err = c.Heuristic(ctx, data, req.ChannelCol, req.ConversionCol, req.ValueCol, p.Rule)
	case MarkovParams:
		table, err = c.Markov(ctx, data, req.ChannelCol, req.ConversionCol, req.ValueCol, p.Order, p.Output)
	case ShapleyParams:
		table, err = c.Shapley(ctx, data, req.ChannelCol, req.ConversionCol, req.ValueCol, p.Simulations)
	default:
		return nil, nil
	}

	if err != nil {
		if errors.Is(err, dataset.ErrColumnNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s model: %w", ErrComputation, req.Kind(), err)
	}
	if table == nil || table.Len() == 0 {
		return nil, fmt.Errorf("%w: %s model returned no channels", ErrComputation, req.Kind())
	}
	return table, nil
}
