// Package main provides the entry point for the marketplace API server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/factorhub/marketplace/internal/api"
	"github.com/factorhub/marketplace/internal/api/middleware"
	"github.com/factorhub/marketplace/internal/auth"
	"github.com/factorhub/marketplace/internal/bootstrap"
	"github.com/factorhub/marketplace/internal/cache/redis"
	"github.com/factorhub/marketplace/internal/marketplace"
	"github.com/factorhub/marketplace/pkg/config"
	"github.com/factorhub/marketplace/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Default().Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logger.FromConfig(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, err := bootstrap.Open(ctx, cfg, log.Logger)
	if err != nil {
		log.Error("failed to open backends", "error", err)
		os.Exit(1)
	}
	defer backends.Close()

	svc := marketplace.NewService(backends.Store, backends.Queue, marketplace.Config{
		PaymentWindow: cfg.PaymentWindow,
		TokenTTL:      cfg.TokenTTL,
		LinkSecret:    cfg.LinkSecret(),
	}, log.Logger)

	authService := auth.NewService(&auth.Config{
		JWTSecret:   []byte(cfg.JWTSecret),
		TokenExpiry: cfg.JWTExpiry,
	}, backends.Store.Users(), log.Logger)

	var limiter middleware.Limiter
	if backends.Redis != nil {
		limiter = redis.NewRateLimiter(backends.Redis)
	}

	server := api.NewServer(cfg, backends.Store, svc, authService, limiter, log.Logger)
	if backends.Redis != nil {
		server.AddHealthCheck("redis", backends.Redis)
	}

	// The memory store and queue are only visible to this process, so it
	// also does the worker's job.
	if backends.InProcess {
		workerLog := log.WithComponent("worker").Logger
		dispatcher := bootstrap.NewDispatcher(cfg, backends, workerLog)
		sweeper, err := bootstrap.NewCleanup(cfg, backends, workerLog)
		if err != nil {
			log.Error("invalid cleanup settings", "error", err)
			os.Exit(1)
		}
		dispatcher.Start(ctx)
		sweeper.Start(ctx)
		defer dispatcher.Stop()
		defer sweeper.Stop()
	}

	log.Info("starting API server",
		"host", cfg.APIHost,
		"port", cfg.APIPort,
		"store", cfg.StoreDriver,
		"redis", backends.Redis != nil,
	)

	if err := server.Start(ctx); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
