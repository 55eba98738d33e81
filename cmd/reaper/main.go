package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aistudio-app/backend/internal/cron"
	"github.com/aistudio-app/backend/internal/generations"
	"github.com/aistudio-app/backend/internal/ledger"
	"github.com/aistudio-app/backend/internal/reconcile"
	"github.com/aistudio-app/backend/pkg/config"
	"github.com/aistudio-app/backend/pkg/db"
	"github.com/aistudio-app/backend/pkg/logger"
	"github.com/aistudio-app/backend/pkg/metrics"
	"github.com/aistudio-app/backend/pkg/migrate"
	"github.com/aistudio-app/backend/pkg/redis"
	"github.com/aistudio-app/backend/pkg/storage/gcs"
)

const lockKeyFormat = "ais:reaper:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "reaper"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "reaper"

	logg = logger.New(logger.Options{
		ServiceName: "reaper",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gcsClient, err := gcs.NewClient(context.Background(), cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap cloud storage", err)
		os.Exit(1)
	}
	defer func() {
		if err := gcsClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing cloud storage", err)
		}
	}()

	ledgerRepo := ledger.NewRepository(dbClient.DB())
	generationsRepo := generations.NewRepository(dbClient.DB())

	// The reaper shares the callback's reconcile path but not its redis
	// guard; the status CAS alone decides whether a timeout applies.
	reconciler, err := reconcile.NewService(reconcile.ServiceParams{
		Repo:         generationsRepo,
		LedgerRepo:   ledgerRepo,
		Tx:           dbClient,
		Results:      gcsClient,
		Logger:       logg,
		ImagesBucket: gcsClient.ImagesBucket(),
		VideosBucket: gcsClient.VideosBucket(),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile service", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewJobMetrics(prometheus.DefaultRegisterer)

	reaperJob, err := cron.NewGenerationReaperJob(cron.GenerationReaperJobParams{
		Logger:     logg,
		Reader:     generationsRepo,
		Reconciler: reconciler,
		Metrics:    metricsCollector,
		PendingTTL: cfg.Reaper.PendingTTL,
		BatchSize:  cfg.Reaper.BatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reaper job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create reaper lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(reaperJob),
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Reaper.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting reaper worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "reaper worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "reaper worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
