package export

import (
	"encoding/csv"
	"io"

	"github.com/volumeplan/volumeplan/internal/forecast"
)

// WritePivotCSV writes the pivot matrix with a header row of column labels.
// Empty cells stay empty. A nil formatter writes raw numbers.
func WritePivotCSV(w io.Writer, result forecast.PivotResult, rowLabel string, f *Formatter) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	columns := result.Columns
	if len(columns) == 0 {
		columns = []string{"Total"}
	}
	header := append([]string{rowLabel}, columns...)
	if err := writer.Write(header); err != nil {
		return err
	}

	rows := result.Rows
	if len(rows) == 0 {
		rows = []string{"Total"}
	}
	for i, line := range result.Data {
		if i >= len(rows) {
			break
		}
		record := make([]string, 0, len(line)+1)
		record = append(record, rows[i])
		for _, cell := range line {
			if cell == nil {
				record = append(record, "")
				continue
			}
			record = append(record, f.Format(*cell, result.ValueFormat))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteRollupCSV writes one line per item, then brand and market subtotals and
// the grand total, followed by the requested guidance columns.
func WriteRollupCSV(w io.Writer, report forecast.RollupReport, f *Formatter) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	chain := report.Level == forecast.LevelChain
	header := []string{"Level", "Brand", "Variant", "Variant ID", "Market"}
	if chain {
		header = append(header, "Customer")
	}
	header = append(header, "Volume", "PY Volume", "Gross Sales", "PY Gross Sales")
	for _, g := range report.Guidance {
		header = append(header, g.Label)
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	line := func(level string, row forecast.RollupRow) []string {
		record := []string{level, row.Brand, row.Variant, row.VariantID, row.Market}
		if chain {
			record = append(record, row.Customer)
		}
		record = append(record,
			f.Format(row.Volume, forecast.FormatNumber),
			f.Format(row.PYVolume, forecast.FormatNumber),
			f.Format(row.GrossSales, forecast.FormatCurrency),
			f.Format(row.PYGrossSales, forecast.FormatCurrency),
		)
		for _, g := range report.Guidance {
			record = append(record, f.Format(row.Values[g.ID].Total, forecast.FormatNumber))
		}
		return record
	}

	for _, item := range report.Items {
		if err := writer.Write(line("item", item)); err != nil {
			return err
		}
	}
	for _, brand := range report.Brands {
		if err := writer.Write(line("brand", brand)); err != nil {
			return err
		}
	}
	for _, market := range report.Markets {
		if err := writer.Write(line("market", market)); err != nil {
			return err
		}
	}
	total := report.Total
	total.Brand = "Total"
	if err := writer.Write(line("total", total)); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}
