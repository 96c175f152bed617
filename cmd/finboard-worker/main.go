package main

import (
	"context"
	"errors"
	"os"
	"time"

	"finboard/internal/cli"
	applog "finboard/internal/log"
	"finboard/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting finboard-worker")
	cfg := cli.LoadAndValidateConfig(logger)

	app, err := cli.NewApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize backends", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := app.Close(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	snapshots := worker.NewSnapshotWorker(app.Dashboards, app.Registry, app.Snapshots, logger)

	// Events are optional; the interval refresh covers lost or absent ones.
	if broker := app.Backend.Broker; broker != nil {
		go func() {
			err := broker.ConsumeConnectionChanged(ctx, snapshots.HandleConnectionChanged)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", applog.FieldError, err)
			}
		}()
	} else {
		logger.Info("AMQP not configured, relying on periodic refresh only")
	}

	go app.Janitor.Run(ctx, time.Minute)
	go snapshots.Run(ctx, cfg.SnapshotInterval)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
