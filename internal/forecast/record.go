package forecast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Well-known record fields.
const (
	FieldMarket          = "market"
	FieldCustomer        = "customer"
	FieldBrand           = "brand"
	FieldVariant         = "variant"
	FieldVariantID       = "variant_id"
	FieldSizePack        = "variant_size_pack_desc"
	FieldMonth           = "month"
	FieldYear            = "year"
	FieldDataType        = "data_type"
	FieldVolume          = "case_equivalent_volume"
	FieldPYVolume        = "py_case_equivalent_volume"
	FieldGSV             = "gross_sales_value"
	FieldPYGSV           = "py_gross_sales_value"
	FieldProjectedVolume = "projected_case_equivalent_volume"
	FieldManualInput     = "is_manual_input"

	// Derived fields resolved by the guidance accessors.
	FieldGSVRate   = "gsv_rate"
	FieldPYGSVRate = "py_gsv_rate"
)

// Record is one row of forecast or actual data. Scalar values live in Fields,
// per-field monthly breakdowns in Monthly. Records are treated as read-only.
type Record struct {
	Fields  map[string]any
	Monthly map[string]MonthlySeries
}

// NewRecord wraps a field map.
func NewRecord(fields map[string]any) Record {
	return Record{Fields: fields}
}

// Value returns the raw field value. Nil values count as absent.
func (r Record) Value(field string) (any, bool) {
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// String returns the stringified field value, "" when absent.
func (r Record) String(field string) string {
	v, ok := r.Value(field)
	if !ok {
		return ""
	}
	return stringify(v)
}

// Number returns the numeric field value. Absent or non-numeric values are 0.
func (r Record) Number(field string) float64 {
	n, _ := r.lookupNumber(field)
	return n
}

func (r Record) lookupNumber(field string) (float64, bool) {
	v, ok := r.Value(field)
	if !ok {
		return 0, false
	}
	return toFloat64(v)
}

// Bool interprets the field as a flag.
func (r Record) Bool(field string) bool {
	v, ok := r.Value(field)
	if !ok {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "t", "yes", "y", "1":
			return true
		}
		return false
	default:
		n, ok := toFloat64(v)
		return ok && n != 0
	}
}

// Month returns the 1-based month of the record, or 0 when it cannot be read.
// Month labels such as "MAR" are accepted as well as numbers.
func (r Record) Month() int {
	v, ok := r.Value(FieldMonth)
	if !ok {
		return 0
	}
	if s, isString := v.(string); isString {
		if month, found := MonthFromLabel(s); found {
			return month
		}
	}
	n, ok := toFloat64(v)
	if !ok || n != math.Trunc(n) {
		return 0
	}
	return int(n)
}

// IsActual reports whether the data-type tag marks the record as actuals.
func (r Record) IsActual() bool {
	return strings.Contains(strings.ToLower(r.String(FieldDataType)), "actual")
}

// MonthlyValues returns the per-month breakdown carried for field.
func (r Record) MonthlyValues(field string) (MonthlySeries, bool) {
	series, ok := r.Monthly[field]
	return series, ok
}

// MarshalJSON flattens fields and monthly breakdowns into one object.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+len(r.Monthly))
	for k, v := range r.Fields {
		out[k] = v
	}
	for k, v := range r.Monthly {
		out[k] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits a flat object into scalar fields and monthly
// breakdowns; object or array members are read as MonthlySeries.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("forecast: record: %w", err)
	}
	rec := Record{Fields: make(map[string]any, len(raw))}
	for key, msg := range raw {
		trimmed := bytes.TrimSpace(msg)
		if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
			var series MonthlySeries
			if err := series.UnmarshalJSON(trimmed); err != nil {
				return fmt.Errorf("forecast: record field %s: %w", key, err)
			}
			if rec.Monthly == nil {
				rec.Monthly = make(map[string]MonthlySeries)
			}
			rec.Monthly[key] = series
			continue
		}
		var value any
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return fmt.Errorf("forecast: record field %s: %w", key, err)
		}
		rec.Fields[key] = value
	}
	*r = rec
	return nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func toFloat64(v any) (float64, bool) {
	var n float64
	switch val := v.(type) {
	case float64:
		n = val
	case float32:
		n = float64(val)
	case int:
		n = float64(val)
	case int32:
		n = float64(val)
	case int64:
		n = float64(val)
	case uint:
		n = float64(val)
	case uint32:
		n = float64(val)
	case uint64:
		n = float64(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
