package forecasthttp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/volumeplan/volumeplan/internal/forecast"
)

type stubService struct {
	pivot      forecast.PivotResult
	pivotErr   error
	lastScope  forecast.Scope
	lastQuery  forecast.PivotQuery
	tiles      []forecast.DashboardTile
	rollup     forecast.RollupReport
	replaced   []forecast.Record
	replaceErr error
}

func (s *stubService) Dimensions() []forecast.Dimension {
	return forecast.DefaultRegistry().All()
}

func (s *stubService) Guidance() []forecast.GuidanceInfo {
	return []forecast.GuidanceInfo{{ID: "volume", Label: "Volume", Calculation: forecast.CalculationDirect}}
}

func (s *stubService) Pivot(ctx context.Context, scope forecast.Scope, q forecast.PivotQuery) (forecast.PivotResult, error) {
	s.lastScope = scope
	s.lastQuery = q
	return s.pivot, s.pivotErr
}

func (s *stubService) Dashboard(ctx context.Context, scope forecast.Scope, tiles []forecast.DashboardTile) ([]forecast.DashboardTileResult, error) {
	s.tiles = tiles
	out := make([]forecast.DashboardTileResult, 0, len(tiles))
	for _, tile := range tiles {
		out = append(out, forecast.DashboardTileResult{ID: tile.ID, Result: s.pivot})
	}
	return out, nil
}

func (s *stubService) Rollup(ctx context.Context, scope forecast.Scope, q forecast.RollupQuery) (forecast.RollupReport, error) {
	return s.rollup, nil
}

func (s *stubService) EvaluateRecord(rec forecast.Record, guidanceID string, includeMonthly bool) (forecast.RecordEvaluation, error) {
	if guidanceID != "volume" {
		return forecast.RecordEvaluation{}, fmt.Errorf("%w: %s", forecast.ErrUnknownGuidance, guidanceID)
	}
	return forecast.RecordEvaluation{GuidanceID: guidanceID, Total: rec.Number(forecast.FieldVolume)}, nil
}

func (s *stubService) ReplaceRecords(ctx context.Context, scope forecast.Scope, records []forecast.Record) error {
	s.replaced = records
	return s.replaceErr
}

func newTestRouter(svc *stubService) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(&strings.Builder{}, nil)), svc)
	h.WithNow(func() time.Time { return time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC) })
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func float(v float64) *float64 { return &v }

func TestPivotReturnsResult(t *testing.T) {
	svc := &stubService{pivot: forecast.PivotResult{
		Rows:        []string{"CA", "NY"},
		Columns:     []string{},
		Data:        [][]*float64{{float(1)}, {nil}},
		ValueFormat: forecast.FormatNumber,
	}}
	router := newTestRouter(svc)

	rr := do(t, router, http.MethodPost, "/forecast/pivot",
		`{"scope":{"year":2025,"markets":["NY"]},"row":"market","measure":"case_equivalent_volume"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	if svc.lastScope.Year != 2025 || svc.lastQuery.Row != forecast.FieldMarket {
		t.Fatalf("unexpected forwarded request: %+v %+v", svc.lastScope, svc.lastQuery)
	}
	var got forecast.PivotResult
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Data[1][0] != nil || *got.Data[0][0] != 1 {
		t.Fatalf("null cells must survive encoding: %s", rr.Body.String())
	}
}

func TestPivotValidation(t *testing.T) {
	router := newTestRouter(&stubService{})

	cases := map[string]string{
		"missing measure": `{"scope":{"year":2025}}`,
		"bad year":        `{"scope":{"year":12},"measure":"case_equivalent_volume"}`,
		"blank market":    `{"scope":{"year":2025,"markets":[""]},"measure":"case_equivalent_volume"}`,
		"unknown field":   `{"scope":{"year":2025},"measure":"x","colour":"red"}`,
		"malformed":       `{"scope":`,
	}
	for name, body := range cases {
		rr := do(t, router, http.MethodPost, "/forecast/pivot", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", name, rr.Code)
		}
	}
}

func TestPivotInvalidMeasureIsBadRequest(t *testing.T) {
	router := newTestRouter(&stubService{pivotErr: fmt.Errorf("%w: market", forecast.ErrInvalidMeasure)})
	rr := do(t, router, http.MethodPost, "/forecast/pivot", `{"scope":{"year":2025},"measure":"market"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestPivotServiceFailureIsInternal(t *testing.T) {
	router := newTestRouter(&stubService{pivotErr: fmt.Errorf("db down")})
	rr := do(t, router, http.MethodPost, "/forecast/pivot", `{"scope":{"year":2025},"measure":"case_equivalent_volume"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "db down") {
		t.Fatalf("internal error leaked: %s", rr.Body.String())
	}
}

func TestPivotCSVExport(t *testing.T) {
	svc := &stubService{pivot: forecast.PivotResult{
		Rows:        []string{"CA"},
		Columns:     []string{"JAN", "FEB"},
		Data:        [][]*float64{{float(1234.5), nil}},
		ValueFormat: forecast.FormatNumber,
	}}
	router := newTestRouter(svc)

	rr := do(t, router, http.MethodPost, "/forecast/pivot/export.csv",
		`{"scope":{"year":2025},"row":"market","column":"month","measure":"case_equivalent_volume","formatted":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %s", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "pivot-2025-20250304.csv") {
		t.Fatalf("unexpected disposition %s", cd)
	}
	body := rr.Body.String()
	if !strings.HasPrefix(body, "Market,JAN,FEB\n") {
		t.Fatalf("unexpected header: %q", body)
	}
	if !strings.Contains(body, `CA,"1,234.5",`) {
		t.Fatalf("expected formatted row: %q", body)
	}
}

func TestDashboardRequiresTiles(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc)

	rr := do(t, router, http.MethodPost, "/forecast/dashboard", `{"scope":{"year":2025},"tiles":[]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
	rr = do(t, router, http.MethodPost, "/forecast/dashboard", `{"scope":{"year":2025},"tiles":[{"query":{"measure":"case_equivalent_volume"}}]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("tile without id: expected 400 got %d", rr.Code)
	}
	rr = do(t, router, http.MethodPost, "/forecast/dashboard", `{"scope":{"year":2025},"tiles":[{"id":"a","query":{"measure":"case_equivalent_volume"}}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	if len(svc.tiles) != 1 || svc.tiles[0].Query.Measure != forecast.FieldVolume {
		t.Fatalf("unexpected tiles %+v", svc.tiles)
	}
}

func TestRollupCSVExport(t *testing.T) {
	records := []forecast.Record{
		forecast.NewRecord(map[string]any{"market": "CA", "brand": "Acme", "variant": "X", "month": 1, forecast.FieldVolume: 100.0}),
	}
	def := forecast.Definition{ID: "volume", Label: "Volume", Expr: forecast.Direct{Field: forecast.FieldVolume}}
	report := forecast.BuildReport(forecast.BuildRollup(records), forecast.LevelVariant, []forecast.Definition{def}, false)
	router := newTestRouter(&stubService{rollup: report})

	rr := do(t, router, http.MethodPost, "/forecast/rollup/export.csv", `{"scope":{"year":2025},"level":"variant"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected header, item, brand, market and total rows: %q", lines)
	}
	if !strings.HasPrefix(lines[3], "market,,,,CA,") {
		t.Fatalf("market row missing: %s", lines[3])
	}
	if !strings.HasSuffix(lines[0], ",Volume") {
		t.Fatalf("guidance column missing: %s", lines[0])
	}

	rr = do(t, router, http.MethodPost, "/forecast/rollup", `{"scope":{"year":2025},"level":"brand"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown level: expected 400 got %d", rr.Code)
	}
}

func TestEvaluateUnknownGuidance(t *testing.T) {
	router := newTestRouter(&stubService{})

	rr := do(t, router, http.MethodPost, "/forecast/guidance/evaluate", `{"record":{"case_equivalent_volume":5},"guidance":"volume"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	var got forecast.RecordEvaluation
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil || got.Total != 5 {
		t.Fatalf("unexpected evaluation %+v %v", got, err)
	}

	rr = do(t, router, http.MethodPost, "/forecast/guidance/evaluate", `{"record":{},"guidance":"nope"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestReplaceRecords(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc)

	rr := do(t, router, http.MethodPut, "/forecast/records",
		`{"scope":{"year":2025,"markets":["NY"]},"records":[{"market":"NY","case_equivalent_volume":[1,2]}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	if len(svc.replaced) != 1 {
		t.Fatalf("records not forwarded")
	}

	svc.replaceErr = fmt.Errorf("%w: record 0", forecast.ErrRecordOutOfScope)
	rr = do(t, router, http.MethodPut, "/forecast/records", `{"scope":{"year":2025,"markets":["NY"]},"records":[{"market":"CA"}]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestListings(t *testing.T) {
	router := newTestRouter(&stubService{})

	rr := do(t, router, http.MethodGet, "/forecast/dimensions", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"case_equivalent_volume"`) {
		t.Fatalf("unexpected dimensions response %d %s", rr.Code, rr.Body.String())
	}
	rr = do(t, router, http.MethodGet, "/forecast/guidance", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"volume"`) {
		t.Fatalf("unexpected guidance response %d %s", rr.Code, rr.Body.String())
	}
}

func TestExportRateLimit(t *testing.T) {
	router := newTestRouter(&stubService{pivot: forecast.PivotResult{Rows: []string{}, Columns: []string{}, Data: [][]*float64{{nil}}}})
	body := `{"scope":{"year":2025},"measure":"case_equivalent_volume"}`

	var last int
	for i := 0; i <= exportsPerMinute; i++ {
		req := httptest.NewRequest(http.MethodPost, "/forecast/pivot/export.csv", strings.NewReader(body))
		req.Header.Set("X-Client-ID", "tester")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after %d exports, got %d", exportsPerMinute, last)
	}
}
