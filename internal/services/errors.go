package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSources means nothing is connected yet. Dashboards report it as a
	// condition rather than failing.
	ErrNoSources        = errors.New("no sources connected")
	ErrSourceNotFound   = errors.New("source not found")
	ErrInvalidSource    = errors.New("invalid source")
	ErrInvalidView      = errors.New("invalid view")
	ErrInsightsDisabled = errors.New("AI analysis is not configured")
	// ErrNothingToAnalyze means the view has no sources or no records.
	ErrNothingToAnalyze = errors.New("nothing to analyze")
)

// SourceFetchError wraps a network or auth failure reading one source.
type SourceFetchError struct {
	SourceID string
	Err      error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("fetch source %s: %v", e.SourceID, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }
