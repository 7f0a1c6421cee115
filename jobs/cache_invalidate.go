package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/volumeplan/volumeplan/internal/jobs"
)

// InvalidateJob bumps the record cache version so every replica reloads.
type InvalidateJob struct {
	Service ForecastService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewInvalidateJob constructs the invalidation handler.
func NewInvalidateJob(service ForecastService, logger *slog.Logger, metrics *jobmetrics.Metrics) *InvalidateJob {
	return &InvalidateJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle processes invalidation tasks.
func (j *InvalidateJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Service == nil {
		return errors.New("forecast invalidate: handler not configured")
	}
	var payload InvalidatePayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskForecastInvalidate)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ver, err := j.Service.InvalidateCache(ctx)
	if err != nil {
		logger.Error("invalidate forecast cache", slog.String("job", TaskForecastInvalidate), slog.Any("error", err))
		return err
	}
	logger.Info("forecast cache invalidated",
		slog.String("job", TaskForecastInvalidate),
		slog.String("reason", payload.Reason),
		slog.Int64("version", ver),
	)
	return nil
}
