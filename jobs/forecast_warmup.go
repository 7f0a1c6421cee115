package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/volumeplan/volumeplan/internal/forecast"
	jobmetrics "github.com/volumeplan/volumeplan/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ForecastService is the part of the forecast service the jobs drive.
type ForecastService interface {
	ActiveScopes(ctx context.Context) ([]forecast.Scope, error)
	Records(ctx context.Context, scope forecast.Scope) ([]forecast.Record, error)
	InvalidateCache(ctx context.Context) (int64, error)
}

// WarmupJob pre-populates the record cache for every stored scope. Each plan
// year is warmed year-wide and once per market, matching how dashboards query.
type WarmupJob struct {
	Service      ForecastService
	Logger       *slog.Logger
	Metrics      *jobmetrics.Metrics
	ScopeTimeout time.Duration
	clock        func() time.Time
}

// NewWarmupJob wires dependencies for the warmup handler.
func NewWarmupJob(service ForecastService, logger *slog.Logger, metrics *jobmetrics.Metrics) *WarmupJob {
	return &WarmupJob{
		Service:      service,
		Logger:       logger,
		Metrics:      metrics,
		ScopeTimeout: 20 * time.Second,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes warmup tasks.
func (j *WarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("forecast warmup: handler not configured")
	}
	var payload WarmupPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}
	_, err := j.Run(ctx, payload)
	return err
}

// Run warms the cache and returns the number of scopes loaded. Scope failures
// are logged and do not stop the run; they are returned joined at the end.
func (j *WarmupJob) Run(ctx context.Context, payload WarmupPayload) (warmed int, resultErr error) {
	tracker := j.metrics().Track(TaskForecastWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	if payload.Year > 0 {
		logger = logger.With(slog.Int("year", payload.Year))
	}
	logger.Info("starting forecast warmup")

	stored, err := j.Service.ActiveScopes(ctx)
	if err != nil {
		logger.Error("load warmup scopes", slog.Any("error", err))
		return 0, fmt.Errorf("forecast warmup: list scopes: %w", err)
	}
	scopes := expandScopes(stored, payload)
	if len(scopes) == 0 {
		logger.Info("no scopes discovered for warmup")
		return 0, nil
	}

	start := j.now()
	var errs []error
	for _, scope := range scopes {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := j.warmScope(ctx, scope); err != nil {
			logger.Error("warm scope", slog.Int("year", scope.Year), slog.Any("markets", scope.Markets), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("scope %s: %w", scope.Token(), err))
			continue
		}
		warmed++
	}
	j.metrics().AddProcessed(TaskForecastWarmup, warmed)

	logger.Info("completed forecast warmup",
		slog.Int("scopes", warmed),
		slog.Int("failed", len(errs)),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return warmed, errors.Join(errs...)
}

func (j *WarmupJob) warmScope(ctx context.Context, scope forecast.Scope) error {
	timeout := j.ScopeTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	scopeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := j.Service.Records(scopeCtx, scope)
	return err
}

// expandScopes turns stored (year, markets) pairs into the scopes to warm.
func expandScopes(stored []forecast.Scope, payload WarmupPayload) []forecast.Scope {
	out := make([]forecast.Scope, 0, len(stored))
	for _, s := range stored {
		if payload.Year > 0 && s.Year != payload.Year {
			continue
		}
		out = append(out, forecast.Scope{Year: s.Year})
		if payload.SkipMarkets {
			continue
		}
		for _, market := range s.Normalize().Markets {
			out = append(out, forecast.Scope{Year: s.Year, Markets: []string{market}})
		}
	}
	return out
}

func (j *WarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskForecastWarmup))
	}
	return slog.Default().With(slog.String("job", TaskForecastWarmup))
}

func (j *WarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *WarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
