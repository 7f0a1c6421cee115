package forecast

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustExpr(t *testing.T, calc Calculation, value, denominator string) Expression {
	t.Helper()
	expr, err := NewExpression(calc, value, denominator)
	require.NoError(t, err)
	return expr
}

func TestNewExpression(t *testing.T) {
	tests := []struct {
		name    string
		calc    Calculation
		value   string
		denom   string
		want    Expression
		wantErr error
	}{
		{name: "direct", calc: CalculationDirect, value: " gross_sales_value ", want: Direct{Field: FieldGSV}},
		{name: "difference", calc: CalculationDifference, value: "gross_sales_value - py_gross_sales_value", want: Difference{Minuend: FieldGSV, Subtrahend: FieldPYGSV}},
		{name: "percentage", calc: CalculationPercentage, value: "case_equivalent_volume-py_case_equivalent_volume", denom: "py_case_equivalent_volume", want: Percentage{Minuend: FieldVolume, Subtrahend: FieldPYVolume, Denominator: FieldPYVolume}},
		{name: "percentage single field", calc: CalculationPercentage, value: "gross_sales_value", denom: "py_gross_sales_value", want: Percentage{Minuend: FieldGSV, Denominator: FieldPYGSV}},
		{name: "difference without operator", calc: CalculationDifference, value: "gross_sales_value", wantErr: ErrInvalidExpression},
		{name: "difference with empty operand", calc: CalculationDifference, value: "gross_sales_value - ", wantErr: ErrInvalidExpression},
		{name: "percentage without denominator", calc: CalculationPercentage, value: "a - b", wantErr: ErrInvalidExpression},
		{name: "unknown kind", calc: "ratio", value: "a", wantErr: ErrUnknownCalculation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewExpression(tt.calc, tt.value, tt.denom)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateSingleRecord(t *testing.T) {
	r := rec(map[string]any{
		FieldVolume:   "200",
		FieldPYVolume: 100.0,
		FieldGSV:      1000.0,
		FieldPYGSV:    400.0,
	})

	assert.Equal(t, 1000.0, Evaluate(r, Definition{Expr: Direct{Field: FieldGSV}}))
	assert.Equal(t, 0.0, Evaluate(r, Definition{Expr: Direct{Field: "missing"}}))
	assert.Equal(t, 600.0, Evaluate(r, Definition{Expr: Difference{Minuend: FieldGSV, Subtrahend: FieldPYGSV}}))
	assert.Equal(t, 1.0, Evaluate(r, Definition{Expr: Difference{Minuend: FieldGSVRate, Subtrahend: FieldPYGSVRate}}))
	assert.Equal(t, 1.0, Evaluate(r, Definition{Expr: Percentage{Minuend: FieldVolume, Subtrahend: FieldPYVolume, Denominator: FieldPYVolume}}))
	assert.Equal(t, 0.0, Evaluate(r, Definition{}))
}

func TestDirectRateReadsRawFieldOnRecordButDerivesOnAggregate(t *testing.T) {
	def := Definition{ID: "gsv_rate", Expr: Direct{Field: FieldGSVRate}}
	r := rec(map[string]any{"brand": "Acme", "variant": "X", "month": 1, FieldVolume: 4.0, FieldGSV: 10.0})

	assert.Equal(t, 0.0, Evaluate(r, def))
	assert.Equal(t, 12.0, Evaluate(rec(map[string]any{FieldGSVRate: 12.0}), def))

	rollup := BuildRollup([]Record{r})
	assert.Equal(t, 2.5, EvaluateAggregate(rollup.Total, def, false).Total)
}

func TestEvaluateVolumeFallsBackToMonthlyBreakdown(t *testing.T) {
	r := Record{
		Fields:  map[string]any{FieldGSV: 300.0},
		Monthly: map[string]MonthlySeries{FieldVolume: {10, 20}},
	}

	assert.Equal(t, 30.0, Evaluate(r, Definition{Expr: Difference{Minuend: FieldVolume, Subtrahend: FieldPYVolume}}))
	assert.Equal(t, 10.0, Evaluate(r, Definition{Expr: Difference{Minuend: FieldGSVRate, Subtrahend: FieldPYGSVRate}}))
	assert.Equal(t, 0.0, Evaluate(r, Definition{Expr: Direct{Field: FieldVolume}}), "direct reads the raw field")
}

func TestEvaluateMonthly(t *testing.T) {
	r := Record{
		Fields: map[string]any{FieldGSV: 1200.0, FieldPYGSV: 600.0},
		Monthly: map[string]MonthlySeries{
			FieldVolume: {100, 150},
		},
	}

	series, ok := EvaluateMonthly(r, Definition{Expr: Direct{Field: FieldVolume}})
	require.True(t, ok)
	assert.Equal(t, MonthlySeries{100, 150}, series)

	series, ok = EvaluateMonthly(r, Definition{Expr: Direct{Field: FieldGSV}})
	require.True(t, ok)
	assert.Equal(t, Spread(1200), series)

	series, ok = EvaluateMonthly(r, Definition{Expr: Difference{Minuend: FieldGSV, Subtrahend: FieldPYGSV}})
	require.True(t, ok)
	for _, v := range series {
		assert.InDelta(t, 50.0, v, 1e-9)
	}

	_, ok = EvaluateMonthly(r, Definition{})
	assert.False(t, ok)
}

func TestPercentageWithZeroDenominatorIsZero(t *testing.T) {
	def := Definition{ID: "growth", Expr: Percentage{Minuend: FieldVolume, Subtrahend: FieldPYVolume, Denominator: FieldPYVolume}}

	r := Record{
		Fields:  map[string]any{FieldVolume: 50.0, FieldPYVolume: 0.0},
		Monthly: map[string]MonthlySeries{FieldPYVolume: {0, 5}},
	}
	assert.Equal(t, 0.0, Evaluate(r, def))

	series, ok := EvaluateMonthly(r, def)
	require.True(t, ok)
	for i, v := range series {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "month %d", i+1)
		if i != 1 {
			assert.Equal(t, 0.0, v, "month %d", i+1)
		}
	}

	agg := BuildRollup([]Record{rec(map[string]any{"brand": "Acme", "month": 1, FieldVolume: 10.0})}).Total
	value := EvaluateAggregate(agg, def, true)
	assert.Equal(t, 0.0, value.Total)
	require.NotNil(t, value.Monthly)
	assert.Equal(t, MonthlySeries{}, *value.Monthly)
}

func TestEvaluateAggregateRoundsToThreeDecimals(t *testing.T) {
	agg := BuildRollup([]Record{
		rec(map[string]any{"brand": "Acme", "month": 1, FieldVolume: 3.0, FieldGSV: 10.0}),
	}).Total

	value := EvaluateAggregate(agg, Definition{Expr: Difference{Minuend: FieldGSVRate, Subtrahend: FieldPYGSVRate}}, false)
	assert.Equal(t, 3.333, value.Total)
	assert.Nil(t, value.Monthly)

	value = EvaluateAggregate(agg, Definition{Expr: Direct{Field: FieldCustomer}}, false)
	assert.Equal(t, 0.0, value.Total, "unknown aggregate field")
}

func TestRound3(t *testing.T) {
	assert.Equal(t, 1.235, Round3(1.2345))
	assert.Equal(t, -1.235, Round3(-1.2345))
	assert.Equal(t, 2.0, Round3(2))
	assert.Equal(t, 0.0, Round3(math.NaN()))
	assert.Equal(t, 0.0, Round3(math.Inf(1)))
}

func TestGuidanceCatalogSelect(t *testing.T) {
	catalog, err := NewGuidanceCatalog(
		Definition{ID: "volume", Label: "Volume", Expr: mustExpr(t, CalculationDirect, FieldVolume, "")},
		Definition{ID: "gsv_delta", Label: "GSV vs PY", Expr: mustExpr(t, CalculationDifference, "gross_sales_value - py_gross_sales_value", "")},
	)
	require.NoError(t, err)

	all, err := catalog.Select(nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, CalculationDirect, all[0].Calculation())

	picked, err := catalog.Select([]string{"gsv_delta"})
	require.NoError(t, err)
	require.Len(t, picked, 1)
	assert.Equal(t, "gross_sales_value - py_gross_sales_value", picked[0].Expr.String())

	_, err = catalog.Select([]string{"nope"})
	require.ErrorIs(t, err, ErrUnknownGuidance)

	_, err = NewGuidanceCatalog(
		Definition{ID: "dup", Expr: Direct{Field: FieldVolume}},
		Definition{ID: "dup", Expr: Direct{Field: FieldGSV}},
	)
	require.Error(t, err)
}

func TestScenarioMarketDifference(t *testing.T) {
	records := []Record{
		rec(map[string]any{"market": "NY", "year": 2025, "brand": "Acme", "month": 1, FieldGSV: 300.0, FieldPYGSV: 250.0}),
		rec(map[string]any{"market": "NY", "year": 2025, "brand": "Acme", "month": 2, FieldGSV: 200.0, FieldPYGSV: 150.0}),
		rec(map[string]any{"market": "CA", "year": 2025, "brand": "Acme", "month": 1, FieldGSV: 10.0, FieldPYGSV: 20.0}),
	}
	def := Definition{ID: "gsv_delta", Expr: mustExpr(t, CalculationDifference, "gross_sales_value - py_gross_sales_value", "")}

	pivot, err := NewAggregator().Aggregate(records, nil, dim(t, FieldMarket), dim(t, FieldYear), dim(t, FieldGSV))
	require.NoError(t, err)
	require.Equal(t, []string{"CA", "NY"}, pivot.Rows)
	require.Equal(t, []string{"2025"}, pivot.Columns)
	assert.Equal(t, 500.0, *cell(t, pivot, 1, 0))

	rollup := BuildRollup(records)
	ny := rollup.Markets["NY"]
	require.Equal(t, 500.0, ny.GrossSales)
	require.Equal(t, 400.0, ny.PYGrossSales)
	assert.Equal(t, 100.0, EvaluateAggregate(ny, def, false).Total)
	assert.Equal(t, -10.0, EvaluateAggregate(rollup.Markets["CA"], def, false).Total)
}
