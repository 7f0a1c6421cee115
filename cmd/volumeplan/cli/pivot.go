package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/language"

	"github.com/volumeplan/volumeplan/internal/forecast"
	"github.com/volumeplan/volumeplan/internal/forecast/catalog"
	"github.com/volumeplan/volumeplan/internal/forecast/export"
)

// PivotOptions defines available flags for the pivot command.
type PivotOptions struct {
	Input          string
	Row            string
	Column         string
	Measure        string
	Filters        []string
	ControlMarkets []string
	CSV            bool
	Formatted      bool
	Stdin          io.Reader
	Stdout         io.Writer
	Stderr         io.Writer
}

// PivotCommand aggregates a record file and prints the matrix.
func PivotCommand(opts PivotOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	filters, err := parseFilters(opts.Filters)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "pivot: %v\n", err)
		return 2
	}
	records, err := readRecords(opts.Input, opts.Stdin)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "pivot: %v\n", err)
		return 1
	}

	reg := forecast.DefaultRegistry()
	q := forecast.PivotQuery{Filters: filters, Row: opts.Row, Column: opts.Column, Measure: opts.Measure}
	result, dropped, err := forecast.NewAggregator(opts.ControlMarkets...).Pivot(reg, records, q)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "pivot: %v\n", err)
		return 2
	}
	for _, d := range dropped {
		_, _ = fmt.Fprintf(opts.Stderr, "pivot: ignoring unknown dimension %q\n", d)
	}

	if opts.CSV {
		var f *export.Formatter
		if opts.Formatted {
			f = export.NewFormatter(language.AmericanEnglish)
		}
		label := ""
		if d, ok := reg.Lookup(opts.Row); ok {
			label = d.Label
		}
		if err := export.WritePivotCSV(opts.Stdout, result, label, f); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "pivot: write csv: %v\n", err)
			return 1
		}
		return 0
	}
	enc := json.NewEncoder(opts.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "pivot: encode json: %v\n", err)
		return 1
	}
	return 0
}

// RollupOptions defines available flags for the rollup command.
type RollupOptions struct {
	Input          string
	Level          string
	Guidance       []string
	Filters        []string
	CatalogPath    string
	IncludeMonthly bool
	CSV            bool
	Formatted      bool
	Stdin          io.Reader
	Stdout         io.Writer
	Stderr         io.Writer
}

// RollupCommand builds the hierarchy for a record file and evaluates guidance.
func RollupCommand(opts RollupOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	level := forecast.Level(opts.Level)
	switch level {
	case "":
		level = forecast.LevelVariant
	case forecast.LevelVariant, forecast.LevelChain:
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "rollup: unknown level %q\n", opts.Level)
		return 2
	}
	filters, err := parseFilters(opts.Filters)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "rollup: %v\n", err)
		return 2
	}
	guidance, err := catalog.Load(opts.CatalogPath)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "rollup: load catalog: %v\n", err)
		return 1
	}
	defs, err := guidance.Select(opts.Guidance)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "rollup: %v\n", err)
		return 2
	}
	records, err := readRecords(opts.Input, opts.Stdin)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "rollup: %v\n", err)
		return 1
	}

	rollup := forecast.BuildRollupBy(forecast.ApplyFilters(records, filters), level.ItemKey())
	report := forecast.BuildReport(rollup, level, defs, opts.IncludeMonthly)

	if opts.CSV {
		var f *export.Formatter
		if opts.Formatted {
			f = export.NewFormatter(language.AmericanEnglish)
		}
		if err := export.WriteRollupCSV(opts.Stdout, report, f); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "rollup: write csv: %v\n", err)
			return 1
		}
		return 0
	}
	enc := json.NewEncoder(opts.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "rollup: encode json: %v\n", err)
		return 1
	}
	return 0
}
