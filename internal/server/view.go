package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/attrib-app/attrib/internal/attribution"
	"github.com/attrib-app/attrib/internal/chart"
	"github.com/attrib-app/attrib/internal/dataset"
	"github.com/attrib-app/attrib/internal/feedback"
	"github.com/attrib-app/attrib/internal/model"
	"github.com/attrib-app/attrib/internal/store"
)

const previewRows = 5

var printer = message.NewPrinter(language.English)

// Page template data structures
type pageData struct {
	Signals  string
	Kinds    []kindOption
	Feedback feedbackView
	App      appView
}

type kindOption struct {
	Name        string
	Description string
}

type appView struct {
	Model          string
	Rules          []attribution.Rule
	Outputs        []attribution.MarkovOutput
	MinOrder       int
	MaxOrder       int
	MinSimulations int
	MaxSimulations int

	Flash   string
	Notice  string
	Error   string
	Upload  *uploadView
	Preview *previewView
	Summary []summaryRow
	Result  *resultView
	Reach   []reachRow

	Download downloadView
}

type uploadView struct {
	Filename string
	Size     string
	Rows     string
}

type previewView struct {
	Header []string
	Rows   [][]string
}

type summaryRow struct {
	Name    string
	Count   int
	Unique  int
	Numeric bool
	Mean    string
	Std     string
	Min     string
	Median  string
	Max     string
}

type resultView struct {
	Title     string
	Chart     string
	IndexName string
	Columns   []string
	Rows      []resultRow
}

type resultRow struct {
	Label  string
	Values []string
}

type reachRow struct {
	Channel     string
	Touches     int
	Journeys    int
	Conversions int
	Rate        string
	Lower       string
	Upper       string
}

type downloadView struct {
	Href  template.URL
	Error string
}

type feedbackView struct {
	ShowText bool
	Prompt   string
	Message  string
	Error    string
}

// errInputExpired marks an upload id whose cache entry is gone.
var errInputExpired = fmt.Errorf("%w: upload expired, please upload the file again", model.ErrInputMissing)

// loadDataset parses the cached upload behind id.
func (s *Server) loadDataset(ctx context.Context, id string) (*dataset.Dataset, *store.Upload, error) {
	if id == "" {
		return nil, nil, model.ErrInputMissing
	}

	upload, err := s.store.GetUpload(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, errInputExpired
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load upload: %w", err)
	}
	if s.uploadTTL > 0 && time.Since(upload.CreatedAt) > s.uploadTTL {
		return nil, nil, errInputExpired
	}

	ds, err := dataset.Parse(bytes.NewReader(upload.Data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse upload: %w", err)
	}
	return ds, upload, nil
}

// attribute collects the request from widget state and runs it. A nil
// table with a nil error means the dispatcher had nothing to run.
func (s *Server) attribute(ctx context.Context, ds *dataset.Dataset, sig model.Signals) (*attribution.Table, model.Request, error) {
	req, err := model.Collect(sig)
	if err != nil {
		return nil, req, err
	}

	start := time.Now()
	table, err := model.Dispatch(ctx, s.library(req), ds, req)
	if err != nil {
		return nil, req, err
	}
	s.logger.Info("attribution run",
		"model", req.Kind(),
		"rows", ds.Len(),
		"channels", tableLen(table),
		"duration", time.Since(start),
	)
	return table, req, nil
}

// buildView re-executes the whole flow for one interaction: load the
// upload, collect inputs, dispatch, present.
func (s *Server) buildView(ctx context.Context, id string, sig model.Signals) appView {
	v := appView{
		Model:          sig.Model,
		Rules:          attribution.Rules,
		Outputs:        attribution.MarkovOutputs,
		MinOrder:       attribution.MinMarkovOrder,
		MaxOrder:       attribution.MaxMarkovOrder,
		MinSimulations: attribution.MinSimulations,
		MaxSimulations: attribution.MaxSimulations,
	}

	ds, upload, err := s.loadDataset(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrInputMissing) {
			v.Notice = userMessage(err)
		} else {
			v.Error = s.reportError(err)
		}
		return v
	}

	v.Upload = &uploadView{
		Filename: upload.Filename,
		Size:     humanize.Bytes(uint64(upload.Size)),
		Rows:     printer.Sprintf("%d", ds.Len()),
	}
	if sig.ShowPreview {
		v.Preview = &previewView{Header: ds.Header, Rows: ds.Head(previewRows)}
	}
	if sig.ShowSummary {
		v.Summary = summaryRows(ds.Summarize())
	}

	table, req, err := s.attribute(ctx, ds, sig)
	if err != nil {
		v.Error = s.reportError(err)
		return v
	}
	if table == nil {
		return v
	}

	v.Result, err = newResultView(req.Kind(), table)
	if err != nil {
		v.Error = s.reportError(err)
		return v
	}

	reach, err := s.library(req).Reach(ds, req.ChannelCol, req.ConversionCol, req.ValueCol)
	if err != nil {
		s.logger.Debug("skipping channel reach", "error", err)
	} else {
		v.Reach = reachRows(reach)
	}
	return v
}

func newResultView(kind model.Kind, table *attribution.Table) (*resultView, error) {
	html, err := chart.HTML(kind.Title(), table)
	if err != nil {
		return nil, fmt.Errorf("%w: chart: %w", model.ErrComputation, err)
	}

	rv := &resultView{
		Title:     kind.Title(),
		Chart:     html,
		IndexName: table.IndexName,
		Columns:   table.Columns,
		Rows:      make([]resultRow, len(table.Rows)),
	}
	for i, row := range table.Rows {
		values := make([]string, len(row.Values))
		for j, v := range row.Values {
			values[j] = formatNumber(v)
		}
		rv.Rows[i] = resultRow{Label: row.Label, Values: values}
	}
	return rv, nil
}

func summaryRows(cols []dataset.ColumnSummary) []summaryRow {
	rows := make([]summaryRow, len(cols))
	for i, c := range cols {
		rows[i] = summaryRow{
			Name:    c.Name,
			Count:   c.Count,
			Unique:  c.Unique,
			Numeric: c.Numeric,
		}
		if c.Numeric {
			rows[i].Mean = formatNumber(c.Stats.Mean)
			rows[i].Std = formatNumber(c.Stats.Std)
			rows[i].Min = formatNumber(c.Stats.Min)
			rows[i].Median = formatNumber(c.Stats.Median)
			rows[i].Max = formatNumber(c.Stats.Max)
		}
	}
	return rows
}

func reachRows(reach []attribution.ChannelReach) []reachRow {
	rows := make([]reachRow, len(reach))
	for i, r := range reach {
		rows[i] = reachRow{
			Channel:     r.Channel,
			Touches:     r.Touches,
			Journeys:    r.Journeys,
			Conversions: r.Conversions,
			Rate:        formatPercentage(r.Rate.Value * 100),
			Lower:       formatPercentage(r.Rate.Lower * 100),
			Upper:       formatPercentage(r.Rate.Upper * 100),
		}
	}
	return rows
}

func (s *Server) feedbackView(m feedback.Machine, err error) feedbackView {
	v := feedbackView{
		ShowText: m.ShowText(),
		Prompt:   feedback.Prompt,
		Message:  m.Message(),
	}
	if err != nil {
		v.Error = "That action is not available right now."
	}
	return v
}

func (s *Server) pageData(sig model.Signals, fb feedback.Machine, app appView) (pageData, error) {
	signals, err := json.Marshal(sig)
	if err != nil {
		return pageData{}, fmt.Errorf("failed to encode signals: %w", err)
	}

	kinds := make([]kindOption, len(model.Kinds))
	for i, k := range model.Kinds {
		kinds[i] = kindOption{Name: string(k), Description: k.Description()}
	}

	return pageData{
		Signals:  string(signals),
		Kinds:    kinds,
		Feedback: s.feedbackView(fb, nil),
		App:      app,
	}, nil
}

func tableLen(t *attribution.Table) int {
	if t == nil {
		return 0
	}
	return t.Len()
}

func formatNumber(v float64) string {
	return printer.Sprintf("%.4f", v)
}

func formatPercentage(p float64) string {
	if p < 0.01 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", p)
}
