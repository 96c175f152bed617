package services

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"finboard/internal/core"
	"finboard/internal/sheets"
)

// RetryConfig configures retry behavior with exponential backoff.
type RetryConfig struct {
	MaxRetries     int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	BackoffFactor  float64
	JitterFraction float64 // share of the delay randomized either way
}

// DefaultSourceRetryConfig suits Sheets API quota blips.
var DefaultSourceRetryConfig = RetryConfig{
	MaxRetries:     2,
	InitialDelay:   250 * time.Millisecond,
	MaxDelay:       4 * time.Second,
	BackoffFactor:  2.0,
	JitterFraction: 0.2,
}

// DefaultLLMRetryConfig is tuned for Gemini API transient errors.
var DefaultLLMRetryConfig = RetryConfig{
	MaxRetries:     2,
	InitialDelay:   time.Second,
	MaxDelay:       10 * time.Second,
	BackoffFactor:  2.0,
	JitterFraction: 0.2,
}

// Retryable reports whether another attempt could succeed. Malformed payloads
// and missing sheets will not change by asking again.
func Retryable(err error) bool {
	var malformed *core.MalformedInputError
	switch {
	case err == nil:
		return false
	case errors.As(err, &malformed),
		errors.Is(err, sheets.ErrSheetNotFound),
		errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}

// WithRetry runs fn until it succeeds, returns a non-retryable error, ctx
// ends or the attempts are exhausted.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !Retryable(err) || attempt >= cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(cfg.delay(attempt)):
		}
	}
	return zero, lastErr
}

func (cfg RetryConfig) delay(attempt int) time.Duration {
	factor := cfg.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	d := float64(cfg.InitialDelay) * math.Pow(factor, float64(attempt))
	if cfg.MaxDelay > 0 && d > float64(cfg.MaxDelay) {
		d = float64(cfg.MaxDelay)
	}
	if cfg.JitterFraction > 0 {
		d += d * cfg.JitterFraction * (rand.Float64()*2 - 1)
		if d < 0 {
			d = float64(cfg.InitialDelay)
		}
	}
	return time.Duration(d)
}
