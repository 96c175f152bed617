package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"finboard/internal/amqp"
	"finboard/internal/connections"
	"finboard/internal/core"
	applog "finboard/internal/log"
	"finboard/internal/sheets"
)

// Publisher announces connection changes to the snapshot worker.
type Publisher interface {
	PublishConnectionChanged(ctx context.Context, sourceID string, action amqp.Action) error
}

// Invalidator drops cached values of one source.
type Invalidator interface {
	InvalidateSource(sourceID string) int
}

// ConnectionService manages the set of connected sources.
type ConnectionService struct {
	registry    *connections.Registry
	lister      sheets.SheetLister
	invalidator Invalidator
	publisher   Publisher
	logger      *applog.Logger
}

// NewConnectionService wires the service. lister, invalidator and publisher
// are optional.
func NewConnectionService(registry *connections.Registry, lister sheets.SheetLister, invalidator Invalidator, publisher Publisher, logger *slog.Logger) *ConnectionService {
	return &ConnectionService{
		registry:    registry,
		lister:      lister,
		invalidator: invalidator,
		publisher:   publisher,
		logger:      applog.Wrap(logger, applog.ComponentConnections),
	}
}

// Add validates and stores a new source. When a sheet lister is configured
// the sheet must exist in the spreadsheet.
func (s *ConnectionService) Add(ctx context.Context, src core.Source) (core.Source, error) {
	src.ID = ""
	if err := src.Validate(); err != nil {
		return core.Source{}, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	if s.lister != nil {
		titles, err := s.lister.SheetTitles(ctx, src.SpreadsheetID)
		switch {
		case errors.Is(err, sheets.ErrSheetNotFound):
			return core.Source{}, fmt.Errorf("%w: spreadsheet %s not accessible", ErrInvalidSource, src.SpreadsheetID)
		case err != nil:
			return core.Source{}, &SourceFetchError{SourceID: src.SpreadsheetID, Err: err}
		case !slices.Contains(titles, src.SheetName):
			return core.Source{}, fmt.Errorf("%w: sheet %q not found", ErrInvalidSource, src.SheetName)
		}
	}

	stored, err := s.registry.Add(ctx, src)
	if err != nil {
		return core.Source{}, err
	}
	s.logger.InfoContext(ctx, "Source connected",
		applog.NewFields().WithSource(stored.ID, stored.DisplayName(), stored.SpreadsheetID).ToSlice()...)
	s.announce(ctx, stored.ID, amqp.ActionAdded)
	return stored, nil
}

// Remove disconnects a source and drops its cached values.
func (s *ConnectionService) Remove(ctx context.Context, id string) error {
	if err := s.registry.Remove(ctx, id); err != nil {
		if errors.Is(err, connections.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrSourceNotFound, id)
		}
		return err
	}
	if s.invalidator != nil {
		s.invalidator.InvalidateSource(id)
	}
	s.logger.InfoContext(ctx, "Source disconnected", applog.FieldSourceID, id)
	s.announce(ctx, id, amqp.ActionRemoved)
	return nil
}

func (s *ConnectionService) List(ctx context.Context) ([]core.Source, error) {
	return s.registry.List(ctx)
}

// announce is best effort; the worker also refreshes on a timer.
func (s *ConnectionService) announce(ctx context.Context, id string, action amqp.Action) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishConnectionChanged(ctx, id, action); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish connection change",
			applog.FieldSourceID, id,
			applog.FieldAction, string(action),
			applog.FieldError, err)
	}
}
