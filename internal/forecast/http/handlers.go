package forecasthttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"

	"github.com/volumeplan/volumeplan/internal/forecast"
	forecastdb "github.com/volumeplan/volumeplan/internal/forecast/db"
	"github.com/volumeplan/volumeplan/internal/forecast/export"
	"github.com/volumeplan/volumeplan/internal/platform/httpx"
)

const (
	requestTimeout = 10 * time.Second
	maxBodyBytes   = 32 << 20
)

// ForecastService defines the contract used by the handler.
type ForecastService interface {
	Dimensions() []forecast.Dimension
	Guidance() []forecast.GuidanceInfo
	Pivot(ctx context.Context, scope forecast.Scope, q forecast.PivotQuery) (forecast.PivotResult, error)
	Dashboard(ctx context.Context, scope forecast.Scope, tiles []forecast.DashboardTile) ([]forecast.DashboardTileResult, error)
	Rollup(ctx context.Context, scope forecast.Scope, q forecast.RollupQuery) (forecast.RollupReport, error)
	EvaluateRecord(rec forecast.Record, guidanceID string, includeMonthly bool) (forecast.RecordEvaluation, error)
	ReplaceRecords(ctx context.Context, scope forecast.Scope, records []forecast.Record) error
}

// Handler serves the forecast JSON and CSV endpoints.
type Handler struct {
	logger    *slog.Logger
	service   ForecastService
	validator *validator.Validate
	formatter *export.Formatter
	csvPool   sync.Pool
	now       func() time.Time
}

// NewHandler constructs the forecast HTTP handler.
func NewHandler(logger *slog.Logger, service ForecastService) *Handler {
	h := &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
		formatter: export.NewFormatter(language.AmericanEnglish),
		now:       time.Now,
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

func (h *Handler) handleDimensions(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"dimensions": h.service.Dimensions()})
}

func (h *Handler) handleGuidance(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"guidance": h.service.Guidance()})
}

func (h *Handler) handlePivot(w http.ResponseWriter, r *http.Request) {
	var req PivotRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	result, err := h.service.Pivot(ctx, req.Scope, req.query())
	if err != nil {
		h.respondError(w, "pivot", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handlePivotCSV(w http.ResponseWriter, r *http.Request) {
	var req PivotRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	result, err := h.service.Pivot(ctx, req.Scope, req.query())
	if err != nil {
		h.respondError(w, "pivot", err)
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()

	if err := export.WritePivotCSV(buf, result, h.axisLabel(req.Row), h.formatterFor(req.Formatted)); err != nil {
		h.handleServerError(w, "write pivot csv", err)
		return
	}
	h.streamCSV(w, fmt.Sprintf("pivot-%d-%s.csv", req.Scope.Year, h.now().UTC().Format("20060102")), buf)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	var req DashboardRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	tiles, err := h.service.Dashboard(ctx, req.Scope, req.Tiles)
	if err != nil {
		h.respondError(w, "dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tiles": tiles})
}

func (h *Handler) handleRollup(w http.ResponseWriter, r *http.Request) {
	var req RollupRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	report, err := h.service.Rollup(ctx, req.Scope, req.RollupQuery)
	if err != nil {
		h.respondError(w, "rollup", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleRollupCSV(w http.ResponseWriter, r *http.Request) {
	var req RollupRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	report, err := h.service.Rollup(ctx, req.Scope, req.RollupQuery)
	if err != nil {
		h.respondError(w, "rollup", err)
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()

	if err := export.WriteRollupCSV(buf, report, h.formatterFor(req.Formatted)); err != nil {
		h.handleServerError(w, "write rollup csv", err)
		return
	}
	h.streamCSV(w, fmt.Sprintf("rollup-%s-%d-%s.csv", report.Level, req.Scope.Year, h.now().UTC().Format("20060102")), buf)
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.service.EvaluateRecord(req.Record, req.Guidance, req.IncludeMonthly)
	if err != nil {
		h.respondError(w, "evaluate guidance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleReplaceRecords(w http.ResponseWriter, r *http.Request) {
	var req ReplaceRecordsRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := h.service.ReplaceRecords(ctx, req.Scope, req.Records); err != nil {
		h.respondError(w, "replace records", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"year":    req.Scope.Year,
		"markets": req.Scope.Normalize().Markets,
		"records": len(req.Records),
	})
}

// decode reads and validates the JSON body, answering 400 itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			fields := make([]string, 0, len(vErrs))
			for _, fe := range vErrs {
				fields = append(fields, fe.Namespace()+" ("+fe.Tag()+")")
			}
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+strings.Join(fields, ", "))
			return false
		}
		h.handleServerError(w, "validate request", err)
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, forecast.ErrInvalidMeasure),
		errors.Is(err, forecast.ErrUnknownGuidance),
		errors.Is(err, forecast.ErrRecordOutOfScope),
		errors.Is(err, forecastdb.ErrInvalidRecord):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	default:
		h.handleServerError(w, op, err)
	}
}

func (h *Handler) axisLabel(id string) string {
	for _, d := range h.service.Dimensions() {
		if d.ID == id {
			return d.Label
		}
	}
	return ""
}

func (h *Handler) formatterFor(formatted bool) *export.Formatter {
	if formatted {
		return h.formatter
	}
	return nil
}

func (h *Handler) streamCSV(w http.ResponseWriter, filename string, buf *bytes.Buffer) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logError("stream csv", err)
	}
}

func (h *Handler) handleServerError(w http.ResponseWriter, op string, err error) {
	h.logError(op, err)
	httpx.RespondError(w, err)
}

func (h *Handler) logError(op string, err error) {
	if h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
}
