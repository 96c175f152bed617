// Package gemini generates dashboard analyses with the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	applog "finboard/internal/log"
	"finboard/internal/services"

	"google.golang.org/genai"
)

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("empty response from model")

// models is the part of genai.Models the generator uses.
type models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Generator struct {
	models models
	model  string
	retry  services.RetryConfig
	logger *applog.Logger
}

var _ services.Generator = (*Generator)(nil)

// New creates a generator for the Gemini API using apiKey.
func New(ctx context.Context, apiKey, model string, logger *slog.Logger) (*Generator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGenerator(client.Models, model, services.DefaultLLMRetryConfig, logger), nil
}

func newGenerator(m models, model string, retry services.RetryConfig, logger *slog.Logger) *Generator {
	return &Generator{
		models: m,
		model:  model,
		retry:  retry,
		logger: applog.Wrap(logger, applog.ComponentLLM),
	}
}

func (g *Generator) Model() string { return g.model }

// Generate sends prompt as a single user turn and returns the answer text.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	attempt := 0
	text, err := services.WithRetry(ctx, g.retry, func(ctx context.Context) (string, error) {
		attempt++
		resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
		if err != nil {
			g.logger.WarnContext(ctx, "Gemini request failed",
				applog.FieldModel, g.model,
				applog.FieldAttempt, attempt,
				applog.FieldError, err)
			return "", err
		}
		text := strings.TrimSpace(resp.Text())
		if text == "" {
			return "", ErrEmptyResponse
		}
		return text, nil
	})
	if err != nil {
		return "", fmt.Errorf("gemini %s: %w", g.model, err)
	}
	g.logger.DebugContext(ctx, "Gemini response received",
		applog.FieldModel, g.model,
		applog.FieldAttempt, attempt,
		applog.FieldDuration, time.Since(start).Milliseconds())
	return text, nil
}
