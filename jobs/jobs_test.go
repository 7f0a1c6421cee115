package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volumeplan/volumeplan/internal/forecast"
	jobmetrics "github.com/volumeplan/volumeplan/internal/jobs"
)

type stubForecast struct {
	mu      sync.Mutex
	scopes  []forecast.Scope
	failOn  string
	loaded  []string
	version int64
}

func (s *stubForecast) ActiveScopes(context.Context) ([]forecast.Scope, error) {
	return s.scopes, nil
}

func (s *stubForecast) Records(_ context.Context, scope forecast.Scope) ([]forecast.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := scope.Token()
	if s.failOn != "" && scope.Contains(s.failOn) && len(scope.Markets) == 1 {
		return nil, errors.New("redis down")
	}
	s.loaded = append(s.loaded, token)
	return nil, nil
}

func (s *stubForecast) InvalidateCache(context.Context) (int64, error) {
	s.version++
	return s.version, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWarmupExpandsYearAndMarketScopes(t *testing.T) {
	svc := &stubForecast{scopes: []forecast.Scope{
		{Year: 2025, Markets: []string{"NY", "CA"}},
		{Year: 2024, Markets: []string{"TX"}},
	}}
	job := NewWarmupJob(svc, discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	warmed, err := job.Run(context.Background(), WarmupPayload{})
	require.NoError(t, err)
	assert.Equal(t, 5, warmed)
	assert.Len(t, svc.loaded, 5)

	svc.loaded = nil
	warmed, err = job.Run(context.Background(), WarmupPayload{Year: 2025, SkipMarkets: true})
	require.NoError(t, err)
	assert.Equal(t, 1, warmed)
	assert.Equal(t, []string{"2025:all"}, svc.loaded)
}

func TestWarmupContinuesPastFailingScope(t *testing.T) {
	svc := &stubForecast{
		scopes: []forecast.Scope{{Year: 2025, Markets: []string{"CA", "NY"}}},
		failOn: "CA",
	}
	job := NewWarmupJob(svc, discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	warmed, err := job.Run(context.Background(), WarmupPayload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
	assert.Equal(t, 2, warmed)
}

func TestWarmupHandleRejectsBadPayload(t *testing.T) {
	job := NewWarmupJob(&stubForecast{}, discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	err := job.Handle(context.Background(), asynq.NewTask(TaskForecastWarmup, []byte(`{"year":`)))
	require.ErrorIs(t, err, asynq.SkipRetry)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskForecastWarmup, nil)))
}

func TestInvalidateJobBumpsVersion(t *testing.T) {
	svc := &stubForecast{}
	job := NewInvalidateJob(svc, discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewInvalidateTask("ingest")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, int64(1), svc.version)
}

func TestNewWarmupTaskValidatesYear(t *testing.T) {
	_, err := NewWarmupTask(WarmupPayload{Year: -1})
	require.Error(t, err)

	task, err := NewWarmupTask(WarmupPayload{Year: 2025})
	require.NoError(t, err)
	assert.Equal(t, TaskForecastWarmup, task.Type())
	assert.JSONEq(t, `{"year":2025}`, string(task.Payload()))
}

type stubEnqueuer struct {
	warmups []WarmupPayload
	err     error
}

func (s *stubEnqueuer) EnqueueWarmup(_ context.Context, payload WarmupPayload) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.warmups = append(s.warmups, payload)
	return &asynq.TaskInfo{ID: "t1", Type: TaskForecastWarmup, Queue: QueueDefault}, nil
}

func (s *stubEnqueuer) EnqueueInvalidate(context.Context, string) (*asynq.TaskInfo, error) {
	return &asynq.TaskInfo{ID: "t2", Type: TaskForecastInvalidate, Queue: QueueDefault}, s.err
}

func jobsRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	return r
}

func TestHandlerEnqueuesWarmup(t *testing.T) {
	enq := &stubEnqueuer{}
	router := jobsRouter(NewHandler(nil, enq, discardLogger()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/forecast/warmup", strings.NewReader(`{"year":2025}`)))
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	require.Len(t, enq.warmups, 1)
	assert.Equal(t, 2025, enq.warmups[0].Year)

	enq.err = asynq.ErrDuplicateTask
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/forecast/warmup", nil))
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandlerWithoutEnqueuer(t *testing.T) {
	router := jobsRouter(NewHandler(nil, nil, discardLogger()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/forecast/invalidate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0}`, rr.Body.String())
}

type failingInspector struct{}

func (failingInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return nil, errors.New("redis down")
}

func TestHandlerWithoutLoggerReportsFailures(t *testing.T) {
	router := jobsRouter(NewHandler(failingInspector{}, &stubEnqueuer{err: errors.New("enqueue failed")}, nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/forecast/invalidate", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
