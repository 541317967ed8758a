package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/attrib-app/attrib/internal/attribution"
	"github.com/attrib-app/attrib/internal/store"
)

// withStore opens the upload cache, executes the function, and handles cleanup.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(cfg.CacheDSN)
	if err != nil {
		return fmt.Errorf("failed to open upload cache: %w", err)
	}
	defer s.Close()

	return fn(s)
}

func renderResult(w io.Writer, t *attribution.Table, format string) error {
	switch format {
	case "csv":
		return t.WriteCSV(w)
	case "json":
		return renderJSON(w, t)
	case "table", "":
		renderTable(w, t)
		return nil
	}
	return fmt.Errorf("unknown format %q (want table, csv or json)", format)
}

func renderTable(w io.Writer, t *attribution.Table) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)

	header := table.Row{t.IndexName}
	for _, col := range t.Columns {
		header = append(header, col)
	}
	tw.AppendHeader(header)

	for _, r := range t.Rows {
		row := table.Row{r.Label}
		for _, v := range r.Values {
			row = append(row, fmt.Sprintf("%.4f", v))
		}
		tw.AppendRow(row)
	}

	// totals only mean something for single-column attribution output
	if len(t.Columns) == 1 {
		tw.AppendFooter(table.Row{"total", fmt.Sprintf("%.4f", t.Total(0))})
	}
	tw.Render()
}

type jsonRow struct {
	Label  string    `json:"label"`
	Values []float64 `json:"values"`
}

type jsonTable struct {
	Index   string    `json:"index"`
	Columns []string  `json:"columns"`
	Rows    []jsonRow `json:"rows"`
}

func renderJSON(w io.Writer, t *attribution.Table) error {
	out := jsonTable{Index: t.IndexName, Columns: t.Columns, Rows: make([]jsonRow, len(t.Rows))}
	for i, r := range t.Rows {
		out.Rows[i] = jsonRow{Label: r.Label, Values: r.Values}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func renderReach(w io.Writer, reach []attribution.ChannelReach) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"channel", "touches", "journeys", "conversions", "rate", "95% CI"})

	for _, r := range reach {
		ci := "N/A"
		if r.Rate.Trials > 0 {
			ci = fmt.Sprintf("[%.1f%%, %.1f%%]", r.Rate.Lower*100, r.Rate.Upper*100)
		}
		tw.AppendRow(table.Row{r.Channel, r.Touches, r.Journeys, r.Conversions, formatPercent(r.Rate.Value), ci})
	}
	tw.Render()
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}
