// Package backend builds the infrastructure selected by configuration:
// where sheet values come from, where connections and snapshots live, and
// the optional message broker and LLM.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"finboard/internal/amqp"
	"finboard/internal/config"
	"finboard/internal/connections"
	"finboard/internal/llm/gemini"
	applog "finboard/internal/log"
	"finboard/internal/services"
	"finboard/internal/sheets"
	gsheet "finboard/internal/sheets/google"
	"finboard/internal/sheets/memory"
	"finboard/internal/storage"

	"cloud.google.com/go/firestore"
)

// CleanupFunc releases backend resources.
type CleanupFunc func() error

// Result holds everything the factory built. Broker and Generator are nil
// when not configured.
type Result struct {
	Reader    sheets.Reader
	KV        connections.KV
	Broker    *amqp.Client
	Generator services.Generator
	Cleanup   CleanupFunc
}

// Factory creates backends from configuration.
type Factory struct {
	logger *applog.Logger
	base   *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: applog.Wrap(logger, applog.ComponentBackend), base: logger}
}

// Create builds every backend. On error, whatever was already opened is
// closed before returning.
func (f *Factory) Create(ctx context.Context, cfg *config.Config) (*Result, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	var closers []func() error
	cleanup := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (*Result, error) {
		_ = cleanup()
		return nil, err
	}

	reader, err := f.createReader(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	kv, closeKV, err := f.createKV(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	if closeKV != nil {
		closers = append(closers, closeKV)
	}

	res := &Result{Reader: reader, KV: kv}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without events", applog.FieldError, err)
		} else {
			res.Broker = client
			closers = append(closers, client.Close)
			f.logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	if cfg.InsightsEnabled() {
		gen, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, f.base)
		if err != nil {
			return fail(fmt.Errorf("initialize gemini: %w", err))
		}
		res.Generator = gen
		f.logger.Info("AI analysis enabled", applog.FieldModel, cfg.GeminiModel)
	}

	res.Cleanup = cleanup
	return res, nil
}

func (f *Factory) createReader(ctx context.Context, cfg *config.Config) (sheets.Reader, error) {
	switch cfg.SourceBackend {
	case config.SourceBackendSheets:
		client, err := gsheet.New(ctx, gsheet.Credentials{
			JSON: cfg.GoogleServiceAccountJSON,
			File: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize google sheets client: %w", err)
		}
		f.logger.Info("Initialized Google Sheets source backend")
		return client, nil
	case config.SourceBackendMemory:
		f.logger.Info("Initialized memory source backend", "data_dir", cfg.DataDir)
		return memory.NewFromDir(cfg.DataDir), nil
	default:
		return nil, fmt.Errorf("unsupported source backend: %s", cfg.SourceBackend)
	}
}

func (f *Factory) createKV(ctx context.Context, cfg *config.Config) (connections.KV, CleanupFunc, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendSQLite:
		kv, err := storage.NewSQLiteKV(cfg.SQLiteDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize sqlite store: %w", err)
		}
		f.logger.Info("Initialized SQLite store", "db_path", cfg.SQLiteDBPath)
		return kv, kv.Close, nil
	case config.StoreBackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.FirestoreProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize firestore client: %w", err)
		}
		f.logger.Info("Initialized Firestore store",
			"project_id", cfg.FirestoreProjectID,
			"collection", cfg.FirestoreCollection)
		return connections.NewFirestoreKV(client, cfg.FirestoreCollection), client.Close, nil
	case config.StoreBackendMemory:
		f.logger.Info("Initialized memory store")
		return connections.NewMemoryKV(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store backend: %s", cfg.StoreBackend)
	}
}
