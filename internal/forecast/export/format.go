package export

import (
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/volumeplan/volumeplan/internal/forecast"
)

// Formatter renders values for human-facing exports.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter returns a formatter for the locale.
func NewFormatter(tag language.Tag) *Formatter {
	return &Formatter{printer: message.NewPrinter(tag)}
}

// Format renders v with grouping. Currency values get two decimals and a
// dollar sign; other values keep up to three decimals.
func (f *Formatter) Format(v float64, format forecast.Format) string {
	if f == nil {
		return formatFloat(v)
	}
	if format == forecast.FormatCurrency {
		if v < 0 {
			return "-$" + f.printer.Sprintf("%.2f", -v)
		}
		return "$" + f.printer.Sprintf("%.2f", v)
	}
	return f.printer.Sprint(number.Decimal(v, number.MaxFractionDigits(forecast.GuidancePrecision)))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
