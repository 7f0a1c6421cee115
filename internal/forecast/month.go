package forecast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MonthsPerYear is the number of slots carried by a MonthlySeries.
const MonthsPerYear = 12

var monthLabels = [MonthsPerYear]string{"JAN", "FEB", "MAR", "APR", "MAY", "JUN", "JUL", "AUG", "SEP", "OCT", "NOV", "DEC"}

// MonthLabels returns the fixed JAN..DEC header sequence.
func MonthLabels() []string {
	labels := make([]string, MonthsPerYear)
	copy(labels, monthLabels[:])
	return labels
}

// MonthLabel returns the label of a 1-based month, or "" when out of range.
func MonthLabel(month int) string {
	if month < 1 || month > MonthsPerYear {
		return ""
	}
	return monthLabels[month-1]
}

// MonthFromLabel resolves a month label such as "feb" to its 1-based number.
func MonthFromLabel(label string) (int, bool) {
	label = strings.ToUpper(strings.TrimSpace(label))
	for i, candidate := range monthLabels {
		if candidate == label {
			return i + 1, true
		}
	}
	return 0, false
}

// MonthlySeries holds one value per calendar month; index 0 is January.
type MonthlySeries [MonthsPerYear]float64

// Spread distributes a yearly total evenly over the twelve months.
func Spread(total float64) MonthlySeries {
	var series MonthlySeries
	share := total / MonthsPerYear
	for i := range series {
		series[i] = share
	}
	return series
}

// At returns the value of a 1-based month. Out-of-range months read as 0.
func (s MonthlySeries) At(month int) float64 {
	if month < 1 || month > MonthsPerYear {
		return 0
	}
	return s[month-1]
}

// Sum adds the months in calendar order.
func (s MonthlySeries) Sum() float64 {
	var total float64
	for _, v := range s {
		total += v
	}
	return total
}

// Add returns the element-wise sum of both series.
func (s MonthlySeries) Add(other MonthlySeries) MonthlySeries {
	for i := range s {
		s[i] += other[i]
	}
	return s
}

// MarshalJSON encodes the series as an object keyed by month label.
func (s MonthlySeries) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, v := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(monthLabels[i]))
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts label-keyed objects, "1".."12"-keyed objects and
// arrays of at most twelve values. Values are coerced like scalar record
// fields: numeric strings parse, anything non-numeric reads as 0.
func (s *MonthlySeries) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = MonthlySeries{}
		return nil
	}
	var series MonthlySeries
	if trimmed[0] == '[' {
		var values []any
		if err := json.Unmarshal(trimmed, &values); err != nil {
			return fmt.Errorf("forecast: monthly series: %w", err)
		}
		if len(values) > MonthsPerYear {
			return fmt.Errorf("forecast: monthly series has %d values", len(values))
		}
		for i, value := range values {
			series[i], _ = toFloat64(value)
		}
		*s = series
		return nil
	}
	var keyed map[string]any
	if err := json.Unmarshal(trimmed, &keyed); err != nil {
		return fmt.Errorf("forecast: monthly series: %w", err)
	}
	for key, value := range keyed {
		month, ok := MonthFromLabel(key)
		if !ok {
			n, err := strconv.Atoi(strings.TrimSpace(key))
			if err != nil || n < 1 || n > MonthsPerYear {
				return fmt.Errorf("forecast: monthly series: unknown month %q", key)
			}
			month = n
		}
		series[month-1], _ = toFloat64(value)
	}
	*s = series
	return nil
}
