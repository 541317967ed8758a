// Package chart renders result tables as interactive bar charts.
package chart

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/attrib-app/attrib/internal/attribution"
)

const (
	width  = "100%"
	height = "420px"
)

// Bar builds a bar chart with one bar per table row. Tables with several
// value columns (Markov transition matrices) stack one series per column.
func Bar(title string, t *attribution.Table) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: title,
			Width:     width,
			Height:    height,
		}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: true, Trigger: "axis"}),
	)

	bar.SetXAxis(t.Labels())
	stacked := len(t.Columns) > 1
	for col, name := range t.Columns {
		data := make([]opts.BarData, t.Len())
		for i, v := range t.Series(col) {
			data[i] = opts.BarData{Value: v}
		}
		if stacked {
			bar.AddSeries(name, data, charts.WithBarChartOpts(opts.BarChart{Stack: "total"}))
		} else {
			bar.AddSeries(name, data)
		}
	}
	return bar
}

// Render writes a standalone HTML page holding the chart.
func Render(w io.Writer, title string, t *attribution.Table) error {
	if err := Bar(title, t).Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

// HTML returns the standalone chart page as a string, ready for an iframe
// srcdoc attribute.
func HTML(title string, t *attribution.Table) (string, error) {
	var buf bytes.Buffer
	if err := Render(&buf, title, t); err != nil {
		return "", err
	}
	return buf.String(), nil
}
