package forecast

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

const (
	// TotalKey is the accumulation key used when an axis is absent.
	TotalKey = "total"
	// BlankValue groups records that carry no value for the grouping field.
	BlankValue = "(blank)"
)

// ErrInvalidMeasure is returned when the pivot measure is missing or is not a
// measure dimension.
var ErrInvalidMeasure = errors.New("forecast: invalid measure")

// Filter restricts records to those whose field value is one of Values.
// An empty Values set is ignored.
type Filter struct {
	Dimension string   `json:"dimension"`
	Values    []string `json:"values"`
}

// PivotResult is a rectangular aggregation. Data has one row per Rows entry
// (one row when there is no row dimension) and one cell per Columns entry
// (one cell when there is no column dimension). Nil cells mean no record
// contributed.
type PivotResult struct {
	Rows        []string     `json:"rows"`
	Columns     []string     `json:"columns"`
	Data        [][]*float64 `json:"data"`
	ValueFormat Format       `json:"valueFormat"`
}

// Aggregator builds pivots. The zero value has no control markets.
type Aggregator struct {
	controlMarkets map[string]struct{}
}

// NewAggregator returns an aggregator that never applies projected volume to
// the given markets.
func NewAggregator(controlMarkets ...string) *Aggregator {
	a := &Aggregator{controlMarkets: make(map[string]struct{}, len(controlMarkets))}
	for _, m := range controlMarkets {
		m = normalizeMarket(m)
		if m != "" {
			a.controlMarkets[m] = struct{}{}
		}
	}
	return a
}

// IsControlMarket reports whether projected volume is suppressed for market.
func (a *Aggregator) IsControlMarket(market string) bool {
	if a == nil {
		return false
	}
	_, ok := a.controlMarkets[normalizeMarket(market)]
	return ok
}

// Aggregate filters records and sums the measure into a row x column matrix.
// row and col may be nil. Records are not modified.
func (a *Aggregator) Aggregate(records []Record, filters []Filter, row, col, measure *Dimension) (PivotResult, error) {
	if measure == nil || !measure.IsMeasure() {
		return PivotResult{}, ErrInvalidMeasure
	}
	lastActual := LastActualMonthIndex(records)
	filtered := ApplyFilters(records, filters)

	result := PivotResult{
		Rows:        headerValues(filtered, row),
		Columns:     headerValues(filtered, col),
		ValueFormat: measure.Format,
	}

	sums := make(map[string]map[string]float64)
	for _, rec := range filtered {
		rk := axisKey(rec, row)
		ck := axisKey(rec, col)
		cells, ok := sums[rk]
		if !ok {
			cells = make(map[string]float64)
			sums[rk] = cells
		}
		cells[ck] += a.contribution(rec, measure.ID, lastActual)
	}

	rowKeys := headerKeys(row, result.Rows)
	colKeys := headerKeys(col, result.Columns)
	result.Data = make([][]*float64, len(rowKeys))
	for i, rk := range rowKeys {
		line := make([]*float64, len(colKeys))
		for j, ck := range colKeys {
			if v, ok := sums[rk][ck]; ok {
				value := v
				line[j] = &value
			}
		}
		result.Data[i] = line
	}
	return result, nil
}

// LastActualMonthIndex returns the highest 0-based month index among actual
// records, or -1 when no record is an actual.
func LastActualMonthIndex(records []Record) int {
	last := -1
	for _, rec := range records {
		if !rec.IsActual() {
			continue
		}
		if idx := rec.Month() - 1; idx > last {
			last = idx
		}
	}
	return last
}

// ApplyFilters keeps the records matching every non-empty filter.
func ApplyFilters(records []Record, filters []Filter) []Record {
	type allowed struct {
		field  string
		values map[string]struct{}
	}
	active := make([]allowed, 0, len(filters))
	for _, f := range filters {
		if len(f.Values) == 0 {
			continue
		}
		set := make(map[string]struct{}, len(f.Values))
		for _, v := range f.Values {
			set[filterValue(f.Dimension, v)] = struct{}{}
		}
		active = append(active, allowed{field: f.Dimension, values: set})
	}
	if len(active) == 0 {
		out := make([]Record, len(records))
		copy(out, records)
		return out
	}

	out := make([]Record, 0, len(records))
	for _, rec := range records {
		keep := true
		for _, f := range active {
			if _, ok := f.values[recordFilterValue(rec, f.field)]; !ok {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, rec)
		}
	}
	return out
}

func (a *Aggregator) contribution(rec Record, measure string, lastActual int) float64 {
	if measure == FieldVolume && rec.Month()-1 == lastActual+1 {
		if projected, ok := rec.lookupNumber(FieldProjectedVolume); ok &&
			!rec.Bool(FieldManualInput) &&
			!a.IsControlMarket(rec.String(FieldMarket)) {
			return projected
		}
	}
	return rec.Number(measure)
}

// month filters accept labels and numbers alike.
func filterValue(field, value string) string {
	if field == FieldMonth {
		if month, ok := MonthFromLabel(value); ok {
			return strconv.Itoa(month)
		}
	}
	return value
}

func recordFilterValue(rec Record, field string) string {
	if field == FieldMonth {
		if month := rec.Month(); month > 0 {
			return strconv.Itoa(month)
		}
	}
	return rec.String(field)
}

func axisKey(rec Record, dim *Dimension) string {
	if dim == nil {
		return TotalKey
	}
	if dim.ID == FieldMonth {
		return strconv.Itoa(rec.Month())
	}
	return groupValue(rec, dim.ID)
}

func groupValue(rec Record, field string) string {
	if v := rec.String(field); v != "" {
		return v
	}
	return BlankValue
}

func headerValues(records []Record, dim *Dimension) []string {
	if dim == nil {
		return []string{}
	}
	if dim.ID == FieldMonth {
		return MonthLabels()
	}
	seen := make(map[string]struct{})
	values := make([]string, 0)
	for _, rec := range records {
		v := groupValue(rec, dim.ID)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	if dim.ID == FieldYear {
		sortNumeric(values)
	} else {
		sort.Strings(values)
	}
	return values
}

// headerKeys maps header labels back to accumulation keys.
func headerKeys(dim *Dimension, headers []string) []string {
	if dim == nil {
		return []string{TotalKey}
	}
	if dim.ID != FieldMonth {
		return headers
	}
	keys := make([]string, len(headers))
	for i, label := range headers {
		month, _ := MonthFromLabel(label)
		keys[i] = strconv.Itoa(month)
	}
	return keys
}

// sortNumeric orders numeric values ascending, followed by non-numeric values
// in alphabetical order.
func sortNumeric(values []string) {
	sort.SliceStable(values, func(i, j int) bool {
		a, errA := strconv.ParseFloat(values[i], 64)
		b, errB := strconv.ParseFloat(values[j], 64)
		switch {
		case errA == nil && errB == nil:
			if a != b {
				return a < b
			}
			return values[i] < values[j]
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return values[i] < values[j]
		}
	})
}

func normalizeMarket(m string) string {
	return strings.ToLower(strings.TrimSpace(m))
}
