package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/volumeplan/volumeplan/internal/app"
	"github.com/volumeplan/volumeplan/internal/forecast"
	"github.com/volumeplan/volumeplan/internal/forecast/catalog"
	jobmetrics "github.com/volumeplan/volumeplan/internal/jobs"
	"github.com/volumeplan/volumeplan/internal/observability"
	"github.com/volumeplan/volumeplan/internal/platform/cache"
	"github.com/volumeplan/volumeplan/internal/platform/db"
	"github.com/volumeplan/volumeplan/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	guidance, err := catalog.Load(cfg.GuidanceCatalogPath)
	if err != nil {
		logger.Error("load guidance catalog", slog.Any("error", err))
		os.Exit(1)
	}

	registry := observability.NewMetrics()
	forecastService := forecast.NewService(
		forecast.NewPGRepository(pool),
		forecast.NewCache(redisClient, cfg.RecordsCacheTTL),
		guidance,
		forecast.NewAggregator(cfg.ControlMarkets...),
		forecast.WithMetrics(registry),
		forecast.WithLogger(logger),
	)

	metrics := jobmetrics.NewMetrics(registry.Registerer())
	warmupJob := jobs.NewWarmupJob(forecastService, logger, metrics)
	invalidateJob := jobs.NewInvalidateJob(forecastService, logger, metrics)

	metricsServer := &http.Server{
		Addr: cfg.WorkerMetricsAddr,
		Handler: app.NewRouter(app.RouterParams{
			Logger:  logger,
			Config:  cfg,
			Metrics: registry,
			Readiness: map[string]app.ReadinessCheck{
				"postgres": pool.Ping,
				"redis":    cache.Ping(redisClient),
			},
		}),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}
	go func() {
		logger.Info("starting worker metrics server", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("worker metrics shutdown", slog.Any("error", err))
		}
	}()

	warmupTask, err := jobs.NewWarmupTask(jobs.WarmupPayload{})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.Redis().Asynq(),
		Logger:      logger,
		Concurrency: cfg.WorkerThreads,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskForecastWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskForecastInvalidate, Handler: invalidateJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.WarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3), asynq.Timeout(10 * time.Minute)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("queue", jobs.QueueDefault), slog.String("warmup_cron", cfg.WarmupCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
