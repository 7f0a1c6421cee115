package forecast

// CalculatedValue is an aggregate guidance result rounded to
// GuidancePrecision decimals.
type CalculatedValue struct {
	Total   float64        `json:"total"`
	Monthly *MonthlySeries `json:"monthly,omitempty"`
}

// Evaluate computes a guidance value for one record. Results are not rounded.
func Evaluate(rec Record, def Definition) float64 {
	if direct, ok := def.Expr.(Direct); ok {
		return rec.Number(direct.Field)
	}
	return evaluateWith(def.Expr, func(field string) float64 {
		return recordField(rec, field)
	})
}

// EvaluateMonthly computes a guidance value per month for one record. Months
// without a breakdown are pro-rated from the yearly total. ok is false when
// the definition has no recognised expression.
func EvaluateMonthly(rec Record, def Definition) (MonthlySeries, bool) {
	switch expr := def.Expr.(type) {
	case Direct:
		if series, ok := rec.MonthlyValues(expr.Field); ok {
			return series, true
		}
		return Spread(rec.Number(expr.Field)), true
	case Difference, Percentage:
		var out MonthlySeries
		for month := 1; month <= MonthsPerYear; month++ {
			out[month-1] = evaluateWith(expr, func(field string) float64 {
				return recordMonthField(rec, field, month)
			})
		}
		return out, true
	default:
		return MonthlySeries{}, false
	}
}

// EvaluateAggregate computes a guidance value against rollup totals. Fields
// other than the four aggregate measures and their rates read as 0.
func EvaluateAggregate(agg Aggregate, def Definition, includeMonthly bool) CalculatedValue {
	value := CalculatedValue{Total: Round3(evaluateWith(def.Expr, agg.Field))}
	if includeMonthly {
		var months MonthlySeries
		for month := 1; month <= MonthsPerYear; month++ {
			months[month-1] = Round3(evaluateWith(def.Expr, func(field string) float64 {
				return agg.MonthField(field, month)
			}))
		}
		value.Monthly = &months
	}
	return value
}

func evaluateWith(expr Expression, field func(string) float64) float64 {
	switch e := expr.(type) {
	case Direct:
		return field(e.Field)
	case Difference:
		return field(e.Minuend) - field(e.Subtrahend)
	case Percentage:
		numerator := field(e.Minuend)
		if e.Subtrahend != "" {
			numerator -= field(e.Subtrahend)
		}
		return ratio(numerator, field(e.Denominator))
	default:
		return 0
	}
}

func recordField(rec Record, field string) float64 {
	switch field {
	case FieldVolume:
		return recordVolume(rec)
	case FieldGSVRate:
		return ratio(rec.Number(FieldGSV), recordVolume(rec))
	case FieldPYGSVRate:
		return ratio(rec.Number(FieldPYGSV), rec.Number(FieldPYVolume))
	default:
		return rec.Number(field)
	}
}

// recordVolume falls back to the monthly breakdown when the total is absent.
func recordVolume(rec Record) float64 {
	if v, ok := rec.lookupNumber(FieldVolume); ok {
		return v
	}
	if series, ok := rec.MonthlyValues(FieldVolume); ok {
		return series.Sum()
	}
	return 0
}

func recordMonthField(rec Record, field string, month int) float64 {
	switch field {
	case FieldGSVRate:
		return ratio(recordMonthValue(rec, FieldGSV, month), recordMonthValue(rec, FieldVolume, month))
	case FieldPYGSVRate:
		return ratio(recordMonthValue(rec, FieldPYGSV, month), recordMonthValue(rec, FieldPYVolume, month))
	default:
		return recordMonthValue(rec, field, month)
	}
}

func recordMonthValue(rec Record, field string, month int) float64 {
	if series, ok := rec.MonthlyValues(field); ok {
		return series.At(month)
	}
	return recordField(rec, field) / MonthsPerYear
}
