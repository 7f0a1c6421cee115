package forecast

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordUnmarshalSplitsMonthlyBreakdowns(t *testing.T) {
	payload := []byte(`{
		"market": "NY",
		"month": 3,
		"is_manual_input": "yes",
		"projected_case_equivalent_volume": null,
		"case_equivalent_volume": {"JAN": 1, "feb": 2, "12": 3},
		"gross_sales_value": [10, 20]
	}`)

	var r Record
	require.NoError(t, json.Unmarshal(payload, &r))

	assert.Equal(t, "NY", r.String(FieldMarket))
	assert.Equal(t, 3, r.Month())
	assert.True(t, r.Bool(FieldManualInput))
	_, present := r.Value(FieldProjectedVolume)
	assert.False(t, present)

	volume, ok := r.MonthlyValues(FieldVolume)
	require.True(t, ok)
	assert.Equal(t, MonthlySeries{1, 2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 3}, volume)
	gsv, ok := r.MonthlyValues(FieldGSV)
	require.True(t, ok)
	assert.Equal(t, 30.0, gsv.Sum())
}

func TestRecordUnmarshalRejectsBadMonths(t *testing.T) {
	var r Record
	require.Error(t, json.Unmarshal([]byte(`{"case_equivalent_volume": {"13": 1}}`), &r))
	require.Error(t, json.Unmarshal([]byte(`{"case_equivalent_volume": [1,2,3,4,5,6,7,8,9,10,11,12,13]}`), &r))
}

func TestRecordUnmarshalCoercesBreakdownValues(t *testing.T) {
	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{
		"brand": "Acme",
		"py_case_equivalent_volume": {"JAN": "10", "FEB": " 2.5 ", "MAR": "n/a", "APR": null, "MAY": true},
		"gross_sales_value": ["100", 200, "x"]
	}`), &r))

	py, ok := r.MonthlyValues(FieldPYVolume)
	require.True(t, ok)
	assert.Equal(t, MonthlySeries{10, 2.5}, py)

	gsv, ok := r.MonthlyValues(FieldGSV)
	require.True(t, ok)
	assert.Equal(t, MonthlySeries{100, 200}, gsv)
	assert.Equal(t, "Acme", r.String(FieldBrand))
}

func TestRecordMarshalRoundTripsBreakdowns(t *testing.T) {
	r := Record{
		Fields:  map[string]any{"brand": "Acme", "year": 2025.0},
		Monthly: map[string]MonthlySeries{FieldVolume: {5}},
	}

	raw, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"case_equivalent_volume":{"JAN":5,"FEB":0`)

	var decoded Record
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, r, decoded)
}

func TestRecordAccessorsCoerce(t *testing.T) {
	r := rec(map[string]any{
		"year":   2025.0,
		"volume": " 12.5 ",
		"label":  "abc",
		"month":  "Mar",
		"flag":   1,
		"whole":  int64(7),
	})

	assert.Equal(t, "2025", r.String("year"))
	assert.Equal(t, 12.5, r.Number("volume"))
	assert.Equal(t, 0.0, r.Number("label"))
	assert.Equal(t, 0.0, r.Number("missing"))
	assert.Equal(t, "", r.String("missing"))
	assert.Equal(t, 3, r.Month())
	assert.True(t, r.Bool("flag"))
	assert.False(t, r.Bool("label"))
	assert.Equal(t, "7", r.String("whole"))
	assert.False(t, r.IsActual())
}

func TestMonthLabels(t *testing.T) {
	assert.Equal(t, "JAN", MonthLabel(1))
	assert.Equal(t, "DEC", MonthLabel(12))
	assert.Equal(t, "", MonthLabel(0))
	month, ok := MonthFromLabel(" sep ")
	require.True(t, ok)
	assert.Equal(t, 9, month)
	_, ok = MonthFromLabel("September")
	assert.False(t, ok)
}
