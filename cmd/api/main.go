package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/trackbeam/trackbeam-backend/api/routes"
	"github.com/trackbeam/trackbeam-backend/internal/dispatch"
	"github.com/trackbeam/trackbeam-backend/internal/events"
	"github.com/trackbeam/trackbeam-backend/pkg/config"
	"github.com/trackbeam/trackbeam-backend/pkg/db"
	"github.com/trackbeam/trackbeam-backend/pkg/logger"
	"github.com/trackbeam/trackbeam-backend/pkg/migrate"
	"github.com/trackbeam/trackbeam-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	eventsRepo := events.NewRepository(dbClient.DB())
	dispatchRepo := dispatch.NewRepository(dbClient.DB())

	eventsService, err := events.NewService(events.ServiceParams{
		Repo:     eventsRepo,
		Tx:       dbClient,
		Jobs:     dispatchRepo,
		Strategy: cfg.Consent.ParsedStrategy(),
		Ingest:   cfg.Ingest,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create events service", err)
		os.Exit(1)
	}

	tokenVerifier, err := events.NewTokenVerifier(events.NewPixelTokenRepository(dbClient.DB()), cfg.Ingest)
	if err != nil {
		logg.Error(context.Background(), "failed to create token verifier", err)
		os.Exit(1)
	}

	dispatchService, err := dispatch.NewService(dispatchRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatch service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			Events:        eventsService,
			TokenVerifier: tokenVerifier,
			Dispatch:      dispatchService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
