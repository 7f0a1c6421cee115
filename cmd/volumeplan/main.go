package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/volumeplan/volumeplan/cmd/volumeplan/cli"
	"github.com/volumeplan/volumeplan/internal/app"
	"github.com/volumeplan/volumeplan/internal/forecast"
	"github.com/volumeplan/volumeplan/internal/forecast/catalog"
	forecasthttp "github.com/volumeplan/volumeplan/internal/forecast/http"
	"github.com/volumeplan/volumeplan/internal/observability"
	"github.com/volumeplan/volumeplan/internal/platform/cache"
	"github.com/volumeplan/volumeplan/internal/platform/db"
	"github.com/volumeplan/volumeplan/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := cfg.Redis().Asynq()
	if len(os.Args) > 1 && cli.IsCommand(os.Args[1]) {
		code := cli.Run(ctx, os.Args[1:], cli.Env{
			RedisOpts:      redisOpts,
			CatalogPath:    cfg.GuidanceCatalogPath,
			ControlMarkets: cfg.ControlMarkets,
		})
		stop()
		os.Exit(code)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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
		logger.Error("load guidance catalog", slog.String("path", cfg.GuidanceCatalogPath), slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	recordCache := forecast.NewCache(redisClient, cfg.RecordsCacheTTL)
	if err := recordCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}
	forecastService := forecast.NewService(
		forecast.NewPGRepository(dbpool),
		recordCache,
		guidance,
		forecast.NewAggregator(cfg.ControlMarkets...),
		forecast.WithMetrics(metrics),
		forecast.WithLogger(logger),
	)
	forecastHandler := forecasthttp.NewHandler(logger, forecastService)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		ForecastHandler: forecastHandler,
		JobHandler:      jobHandler,
		Metrics:         metrics,
		Readiness: map[string]app.ReadinessCheck{
			"postgres": dbpool.Ping,
			"redis":    cache.Ping(redisClient),
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
