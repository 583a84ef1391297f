package main

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/guptarohit/asciigraph"
	"github.com/itohio/thermocycler/pkg/report"
	"github.com/itohio/thermocycler/pkg/sample"
	"github.com/spf13/cobra"
)

var errNothingToPlot = errors.New("nothing to plot")

func plotLog(cmd *cobra.Command, args []string) error {
	l, err := report.ReadLog(args[0])
	if err != nil {
		return err
	}
	graph, err := renderPlot(l, plotCols, plotWidth, plotHeight, filepath.Base(args[0]))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), graph)
	fmt.Fprintln(cmd.OutOrStdout(), summary(l))
	return nil
}

// renderPlot draws the named columns decimated to width points. Columns
// that are missing or hold no values are skipped.
func renderPlot(l *report.Log, columns []string, width, height int, title string) (string, error) {
	var (
		series [][]float64
		names  []string
	)
	for _, name := range columns {
		values := l.Column(name)
		if !hasValue(values) {
			continue
		}
		series = append(series, sample.Downsample(nil, values, width))
		names = append(names, name)
	}
	if len(series) == 0 {
		return "", fmt.Errorf("%w: no values in %s", errNothingToPlot, strings.Join(columns, ", "))
	}

	caption := fmt.Sprintf("%s: %s", title, strings.Join(names, ", "))
	opts := []asciigraph.Option{
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	}
	if len(series) == 1 {
		return asciigraph.Plot(series[0], opts...), nil
	}
	colors := []asciigraph.AnsiColor{asciigraph.Red, asciigraph.Blue, asciigraph.Green, asciigraph.Yellow}
	opts = append(opts, asciigraph.SeriesColors(colors[:min(len(series), len(colors))]...))
	return asciigraph.PlotMany(series, opts...), nil
}

func hasValue(values []float64) bool {
	for _, v := range values {
		if !math.IsNaN(v) {
			return true
		}
	}
	return false
}

// summary describes the duration and temperature range of a run.
func summary(l *report.Log) string {
	times := l.Column(report.ColumnTime)
	temps := l.Column(report.ColumnTemp)
	if len(times) == 0 || len(temps) == 0 {
		return "empty log"
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, t := range temps {
		if math.IsNaN(t) {
			continue
		}
		lo = math.Min(lo, t)
		hi = math.Max(hi, t)
	}
	return fmt.Sprintf("%d rows over %.1f s, temperature %.1f to %.1f deg C",
		len(temps), times[len(times)-1], lo, hi)
}
