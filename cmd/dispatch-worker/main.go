package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trackbeam/trackbeam-backend/internal/adapters"
	"github.com/trackbeam/trackbeam-backend/internal/credentials"
	"github.com/trackbeam/trackbeam-backend/internal/dispatch"
	"github.com/trackbeam/trackbeam-backend/pkg/config"
	"github.com/trackbeam/trackbeam-backend/pkg/db"
	"github.com/trackbeam/trackbeam-backend/pkg/instance"
	"github.com/trackbeam/trackbeam-backend/pkg/logger"
	"github.com/trackbeam/trackbeam-backend/pkg/metrics"
	"github.com/trackbeam/trackbeam-backend/pkg/migrate"
	"github.com/trackbeam/trackbeam-backend/pkg/redis"
	"github.com/trackbeam/trackbeam-backend/pkg/security"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "dispatch-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "dispatch-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags, logg)
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

	keys, err := security.NewKeyService(cfg.Security)
	if err != nil {
		logg.Error(context.Background(), "failed to derive credential key", err)
		os.Exit(1)
	}
	cipher, err := security.NewCipher(keys)
	if err != nil {
		logg.Error(context.Background(), "failed to build credential cipher", err)
		os.Exit(1)
	}
	provider, err := credentials.NewProvider(dbClient.DB(), cipher)
	if err != nil {
		logg.Error(context.Background(), "failed to create credential provider", err)
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: cfg.Dispatch.AdapterTimeout + 5*time.Second}

	worker, err := dispatch.NewWorker(dispatch.WorkerParams{
		Config:      cfg.Dispatch,
		Logger:      logg,
		Repository:  dispatch.NewRepository(dbClient.DB()),
		Claims:      redisClient,
		Credentials: provider,
		Adapters:    adapters.NewRegistry(httpClient),
		Metrics:     metrics.NewDispatchMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatch worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "instance": instance.GetID()})
	logg.Info(ctx, "starting dispatch worker")

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "dispatch worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "dispatch worker shutting down gracefully")
}
