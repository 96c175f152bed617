package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finboard/internal/amqp"
	"finboard/internal/core"
	applog "finboard/internal/log"
	"finboard/internal/services"
)

// DashboardBuilder computes a dashboard for one view.
type DashboardBuilder interface {
	Build(ctx context.Context, view core.View, opts services.BuildOptions) (core.Dashboard, error)
}

type SourceLister interface {
	List(ctx context.Context) ([]core.Source, error)
}

// SnapshotSaver persists the latest dashboard per view.
type SnapshotSaver interface {
	Save(ctx context.Context, d core.Dashboard) error
	DeleteSource(ctx context.Context, sourceID string) (int, error)
}

// SnapshotWorker precomputes dashboards so the API can serve them without
// reading every sheet on each request.
type SnapshotWorker struct {
	builder   DashboardBuilder
	sources   SourceLister
	snapshots SnapshotSaver
	logger    *applog.Logger
}

func NewSnapshotWorker(builder DashboardBuilder, sources SourceLister, snapshots SnapshotSaver, logger *slog.Logger) *SnapshotWorker {
	return &SnapshotWorker{
		builder:   builder,
		sources:   sources,
		snapshots: snapshots,
		logger:    applog.Wrap(logger, applog.ComponentWorker),
	}
}

// HandleConnectionChanged refreshes the snapshots affected by one connection
// change. The merged view is always recomputed.
func (w *SnapshotWorker) HandleConnectionChanged(ctx context.Context, msg *amqp.ConnectionChangedMessage) error {
	w.logger.InfoContext(ctx, "Processing connection change",
		applog.FieldSourceID, msg.SourceID,
		applog.FieldAction, string(msg.Action))

	switch msg.Action {
	case amqp.ActionAdded:
		err := w.snapshot(ctx, core.View{SourceID: msg.SourceID}, true)
		if err != nil && !errors.Is(err, services.ErrSourceNotFound) {
			return err
		}
	case amqp.ActionRemoved:
		n, err := w.snapshots.DeleteSource(ctx, msg.SourceID)
		if err != nil {
			return fmt.Errorf("delete snapshots of %s: %w", msg.SourceID, err)
		}
		w.logger.DebugContext(ctx, "Snapshots deleted", applog.FieldSourceID, msg.SourceID, "count", n)
	}
	return w.snapshot(ctx, core.View{}, true)
}

// RefreshAll recomputes the merged snapshot and one per source. Failures are
// collected so one bad source does not stop the rest.
func (w *SnapshotWorker) RefreshAll(ctx context.Context) error {
	start := time.Now()
	if err := w.snapshot(ctx, core.View{}, true); err != nil {
		return err
	}
	srcs, err := w.sources.List(ctx)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}
	var errs []error
	for _, src := range srcs {
		// Values were just refreshed by the merged build.
		if err := w.snapshot(ctx, core.View{SourceID: src.ID}, false); err != nil && !errors.Is(err, services.ErrSourceNotFound) {
			errs = append(errs, err)
		}
	}
	w.logger.InfoContext(ctx, "Snapshots refreshed",
		"sources", len(srcs),
		applog.FieldFailures, len(errs),
		applog.FieldDuration, time.Since(start).Milliseconds())
	return errors.Join(errs...)
}

func (w *SnapshotWorker) snapshot(ctx context.Context, view core.View, refresh bool) error {
	d, err := w.builder.Build(ctx, view, services.BuildOptions{Refresh: refresh})
	if err != nil {
		return fmt.Errorf("build %s: %w", view.Key(), err)
	}
	if err := w.snapshots.Save(ctx, d); err != nil {
		return fmt.Errorf("save snapshot %s: %w", view.Key(), err)
	}
	return nil
}

// Run refreshes once, then on every tick until ctx ends.
func (w *SnapshotWorker) Run(ctx context.Context, interval time.Duration) {
	if err := w.RefreshAll(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Startup snapshot refresh failed", applog.FieldError, err)
	}
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.RefreshAll(ctx); err != nil {
				w.logger.ErrorContext(ctx, "Periodic snapshot refresh failed", applog.FieldError, err)
			}
		}
	}
}
