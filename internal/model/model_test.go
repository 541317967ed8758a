package model_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attrib-app/attrib/internal/attribution"
	"github.com/attrib-app/attrib/internal/dataset"
	"github.com/attrib-app/attrib/internal/model"
)

// fakeLibrary records the last call and returns canned results.
type fakeLibrary struct {
	calls  []string
	table  *attribution.Table
	err    error
	order  int
	output attribution.MarkovOutput
	sims   int
	rule   attribution.Rule
}

func (f *fakeLibrary) Heuristic(_ context.Context, _ *dataset.Dataset, _, _, _ string, rule attribution.Rule) (*attribution.Table, error) {
	f.calls = append(f.calls, "heuristic")
	f.rule = rule
	return f.table, f.err
}

func (f *fakeLibrary) Markov(_ context.Context, _ *dataset.Dataset, _, _, _ string, order int, output attribution.MarkovOutput) (*attribution.Table, error) {
	f.calls = append(f.calls, "markov")
	f.order, f.output = order, output
	return f.table, f.err
}

func (f *fakeLibrary) Shapley(_ context.Context, _ *dataset.Dataset, _, _, _ string, n int) (*attribution.Table, error) {
	f.calls = append(f.calls, "shapley")
	f.sims = n
	return f.table, f.err
}

func oneRow() *attribution.Table {
	return &attribution.Table{
		IndexName: "channel",
		Columns:   []string{"value"},
		Rows:      []attribution.Row{{Label: "A", Values: []float64{1}}},
	}
}

func sample(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.Parse(strings.NewReader("channel,conversion\nA,0\nB,1\nB,1\n"))
	require.NoError(t, err)
	return ds
}

func TestParseKind(t *testing.T) {
	for _, k := range model.Kinds {
		got, err := model.ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
		assert.NotEmpty(t, k.Description())
	}

	_, err := model.ParseKind("Linear Regression")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	assert.Equal(t, "Shapley Model Results", model.Shapley.Title())
}

func TestDefaultSignals(t *testing.T) {
	s := model.DefaultSignals()

	req, err := model.Collect(s)
	require.NoError(t, err)
	assert.Equal(t, model.Heuristic, req.Kind())
	assert.Equal(t, model.HeuristicParams{Rule: attribution.LastTouch}, req.Params)
	assert.Equal(t, "channel", req.ChannelCol)
	assert.Equal(t, "conversion", req.ConversionCol)
	assert.Empty(t, req.ValueCol)
	assert.Equal(t, 1, s.Order)
	assert.Equal(t, 10000, s.Simulations)
	assert.Equal(t, "transition_matrix", s.Output)
}

func TestCollect(t *testing.T) {
	tests := []struct {
		name    string
		edit    func(*model.Signals)
		want    model.Params
		wantErr error
	}{
		{
			name: "markov",
			edit: func(s *model.Signals) { s.Model, s.Order, s.Output = "Markov", 3, "attribution" },
			want: model.MarkovParams{Order: 3, Output: attribution.MarkovAttribution},
		},
		{
			name: "shapley",
			edit: func(s *model.Signals) { s.Model, s.Simulations = "Shapley", 1000 },
			want: model.ShapleyParams{Simulations: 1000},
		},
		{
			name: "time decay",
			edit: func(s *model.Signals) { s.Rule = "time_decay" },
			want: model.HeuristicParams{Rule: attribution.TimeDecay},
		},
		{
			name:    "order too high",
			edit:    func(s *model.Signals) { s.Model, s.Order = "Markov", 6 },
			wantErr: model.ErrInvalidInput,
		},
		{
			name:    "order zero",
			edit:    func(s *model.Signals) { s.Model, s.Order = "Markov", 0 },
			wantErr: model.ErrInvalidInput,
		},
		{
			name:    "bad output",
			edit:    func(s *model.Signals) { s.Model, s.Output = "Markov", "heatmap" },
			wantErr: model.ErrInvalidInput,
		},
		{
			name:    "too few simulations",
			edit:    func(s *model.Signals) { s.Model, s.Simulations = "Shapley", 999 },
			wantErr: model.ErrInvalidInput,
		},
		{
			name:    "too many simulations",
			edit:    func(s *model.Signals) { s.Model, s.Simulations = "Shapley", 20001 },
			wantErr: model.ErrInvalidInput,
		},
		{
			name:    "bad rule",
			edit:    func(s *model.Signals) { s.Rule = "u_shaped" },
			wantErr: model.ErrInvalidInput,
		},
		{
			name:    "blank channel column",
			edit:    func(s *model.Signals) { s.ChannelCol = "  " },
			wantErr: model.ErrInvalidInput,
		},
		{
			name:    "unknown model",
			edit:    func(s *model.Signals) { s.Model = "Bayes" },
			wantErr: model.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := model.DefaultSignals()
			tt.edit(&s)

			req, err := model.Collect(s)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Params)
		})
	}
}

func TestNormalize_ResetsOnModelSwitch(t *testing.T) {
	s := model.DefaultSignals()
	s.Model, s.LastModel = "Markov", "Markov"
	s.Order, s.Output = 4, "attribution"

	// staying on Markov keeps the edits
	kept := s.Normalize()
	assert.Equal(t, 4, kept.Order)

	// Markov -> Heuristic -> Markov starts from defaults again
	s.Model = "Heuristic"
	s = s.Normalize()
	assert.Equal(t, "Heuristic", s.LastModel)
	s.Model = "Markov"
	s = s.Normalize()
	assert.Equal(t, "Markov", s.LastModel)
	assert.Equal(t, 1, s.Order)
	assert.Equal(t, "transition_matrix", s.Output)
}

func TestDispatch_RoutesByParams(t *testing.T) {
	ds := sample(t)
	tests := []struct {
		params model.Params
		call   string
	}{
		{model.HeuristicParams{Rule: attribution.Linear}, "heuristic"},
		{model.MarkovParams{Order: 2, Output: attribution.MarkovAttribution}, "markov"},
		{model.ShapleyParams{Simulations: 5000}, "shapley"},
	}

	for _, tt := range tests {
		t.Run(tt.call, func(t *testing.T) {
			lib := &fakeLibrary{table: oneRow()}
			req := model.Request{ChannelCol: "channel", ConversionCol: "conversion", Params: tt.params}

			table, err := model.Dispatch(context.Background(), lib, ds, req)
			require.NoError(t, err)
			assert.Equal(t, oneRow(), table)
			assert.Equal(t, []string{tt.call}, lib.calls)
		})
	}
}

func TestDispatch_PassesParams(t *testing.T) {
	lib := &fakeLibrary{table: oneRow()}
	req := model.Request{
		ChannelCol:    "channel",
		ConversionCol: "conversion",
		Params:        model.MarkovParams{Order: 3, Output: attribution.TransitionMatrix},
	}

	_, err := model.Dispatch(context.Background(), lib, sample(t), req)
	require.NoError(t, err)
	assert.Equal(t, 3, lib.order)
	assert.Equal(t, attribution.TransitionMatrix, lib.output)
}

func TestDispatch_Errors(t *testing.T) {
	ds := sample(t)
	base := model.Request{ChannelCol: "channel", ConversionCol: "conversion", Params: model.HeuristicParams{Rule: attribution.LastTouch}}

	t.Run("no data", func(t *testing.T) {
		lib := &fakeLibrary{table: oneRow()}
		_, err := model.Dispatch(context.Background(), lib, nil, base)
		assert.ErrorIs(t, err, model.ErrInputMissing)
		assert.Empty(t, lib.calls)
	})

	t.Run("missing column", func(t *testing.T) {
		lib := &fakeLibrary{table: oneRow()}
		req := base
		req.ChannelCol = "source"
		_, err := model.Dispatch(context.Background(), lib, ds, req)
		assert.ErrorIs(t, err, dataset.ErrColumnNotFound)
		assert.NotErrorIs(t, err, model.ErrComputation)
		assert.Contains(t, err.Error(), "source")
		assert.Empty(t, lib.calls)
	})

	t.Run("model failure", func(t *testing.T) {
		boom := errors.New("singular matrix")
		lib := &fakeLibrary{err: boom}
		_, err := model.Dispatch(context.Background(), lib, ds, base)
		assert.ErrorIs(t, err, model.ErrComputation)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("column error from model", func(t *testing.T) {
		lib := &fakeLibrary{err: dataset.ErrColumnNotFound}
		_, err := model.Dispatch(context.Background(), lib, ds, base)
		assert.ErrorIs(t, err, dataset.ErrColumnNotFound)
		assert.NotErrorIs(t, err, model.ErrComputation)
	})

	t.Run("empty table", func(t *testing.T) {
		lib := &fakeLibrary{table: &attribution.Table{IndexName: "channel"}}
		_, err := model.Dispatch(context.Background(), lib, ds, base)
		assert.ErrorIs(t, err, model.ErrComputation)
	})

	t.Run("no params", func(t *testing.T) {
		lib := &fakeLibrary{table: oneRow()}
		req := base
		req.Params = nil
		table, err := model.Dispatch(context.Background(), lib, ds, req)
		assert.NoError(t, err)
		assert.Nil(t, table)
		assert.Empty(t, lib.calls)
	})
}

func TestDispatch_Library(t *testing.T) {
	// scenario: Markov attribution on journeys [A B] and [B]
	s := model.DefaultSignals()
	s.Model, s.LastModel, s.Output = "Markov", "Markov", "attribution"
	req, err := model.Collect(s)
	require.NoError(t, err)

	table, err := model.Dispatch(context.Background(), &attribution.Library{}, sample(t), req)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, table.Total(0), 1e-9)
}
