// Package main provides the entry point for the notification worker.
package main

import (
	"context"
	"os"

	"github.com/factorhub/marketplace/internal/bootstrap"
	"github.com/factorhub/marketplace/internal/shutdown"
	"github.com/factorhub/marketplace/pkg/config"
	"github.com/factorhub/marketplace/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Default().Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logger.FromConfig(cfg.LogLevel, cfg.LogFormat).WithComponent("worker")

	// An in-memory queue cannot be shared with the API process, which
	// dispatches its own events in that mode.
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Error("the worker requires STORE_DRIVER=postgres")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backends, err := bootstrap.Open(ctx, cfg, log.Logger)
	if err != nil {
		log.Error("failed to open backends", "error", err)
		os.Exit(1)
	}

	if backends.Redis == nil {
		log.Warn("REDIS_ADDR not set, delivery locks are local to this worker")
	}

	dispatcher := bootstrap.NewDispatcher(cfg, backends, log.Logger)
	sweeper, err := bootstrap.NewCleanup(cfg, backends, log.Logger)
	if err != nil {
		log.Error("invalid cleanup settings", "error", err)
		os.Exit(1)
	}

	coordinator := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log.Logger),
	)
	coordinator.Register(shutdown.NewFuncComponent("backends", func(context.Context) error {
		backends.Close()
		return nil
	}))
	coordinator.Register(shutdown.NewWorkerComponent("cleanup", sweeper))
	coordinator.Register(shutdown.NewWorkerComponent("dispatcher", dispatcher))

	log.Info("starting notification worker",
		"concurrency", cfg.Dispatch.Concurrency,
		"poll_interval", cfg.Dispatch.PollInterval,
	)
	dispatcher.Start(ctx)
	sweeper.Start(ctx)

	coordinator.WaitForSignal(ctx)
	cancel()

	log.Info("notification worker shutdown complete")
	os.Exit(coordinator.ExitCode())
}
