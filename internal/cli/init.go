// Package cli provides initialization shared by cmd/finboard and
// cmd/finboard-worker.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finboard/internal/backend"
	"finboard/internal/cache"
	"finboard/internal/config"
	"finboard/internal/connections"
	"finboard/internal/core"
	applog "finboard/internal/log"
	"finboard/internal/services"

	"github.com/joho/godotenv"
)

// SetupLogger initializes the root text logger at level and sets it as the
// default logger.
func SetupLogger(level string) *slog.Logger {
	logger := applog.New(applog.Config{Level: applog.ParseLevel(level)})
	applog.SetDefault(logger)
	return logger.Logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *slog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// App bundles the services both binaries run on.
type App struct {
	Backend     *backend.Result
	Registry    *connections.Registry
	Snapshots   *connections.SnapshotStore
	Dashboards  *services.DashboardService
	Connections *services.ConnectionService
	Insights    *services.InsightService
	Janitor     *cache.Janitor
}

// NewApp creates the backends and wires the services.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	res, err := backend.NewFactory(logger).Create(ctx, cfg)
	if err != nil {
		return nil, err
	}

	registry := connections.NewRegistry(res.KV)
	values := cache.NewLRU[[][]any](cfg.CacheSize, cfg.CacheTTL)
	retry := services.DefaultSourceRetryConfig
	retry.MaxRetries = cfg.SourceFetchRetries

	dashboards := services.NewDashboardService(
		registry,
		res.Reader,
		core.NewNormalizer(core.NewKeywordClassifier(cfg.IncomeKeywords...), cfg.FallbackYear),
		values,
		services.DashboardOptions{
			FetchTimeout: cfg.SourceFetchTimeout,
			Retry:        retry,
			Concurrency:  cfg.FetchConcurrency,
		},
		logger,
	)

	var publisher services.Publisher
	if res.Broker != nil {
		publisher = res.Broker
	}

	return &App{
		Backend:     res,
		Registry:    registry,
		Snapshots:   connections.NewSnapshotStore(res.KV),
		Dashboards:  dashboards,
		Connections: services.NewConnectionService(registry, res.Reader, dashboards, publisher, logger),
		Insights:    services.NewInsightService(dashboards, res.Generator, logger),
		Janitor:     cache.NewJanitor(logger, values),
	}, nil
}

// Close releases the backends.
func (a *App) Close() error {
	if a.Backend.Cleanup == nil {
		return nil
	}
	return a.Backend.Cleanup()
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *slog.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
