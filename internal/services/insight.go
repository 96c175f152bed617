package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"finboard/internal/core"
	applog "finboard/internal/log"
)

// Generator turns a prompt into free text. The result is not interpreted.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Insight is the AI analysis of one dashboard view.
type Insight struct {
	Text        string    `json:"text"`
	View        core.View `json:"view"`
	GeneratedAt time.Time `json:"generated_at"`
}

type InsightService struct {
	dashboards *DashboardService
	generator  Generator
	logger     *applog.Logger
	now        func() time.Time
}

// NewInsightService wires the service. A nil generator disables analysis.
func NewInsightService(dashboards *DashboardService, generator Generator, logger *slog.Logger) *InsightService {
	return &InsightService{
		dashboards: dashboards,
		generator:  generator,
		logger:     applog.Wrap(logger, applog.ComponentInsight),
		now:        time.Now,
	}
}

func (s *InsightService) Enabled() bool { return s != nil && s.generator != nil }

// Analyze builds the dashboard for view and asks the generator about it.
// Views without sources or records fail with ErrNothingToAnalyze.
func (s *InsightService) Analyze(ctx context.Context, view core.View, question string) (Insight, error) {
	if s.generator == nil {
		return Insight{}, ErrInsightsDisabled
	}
	view.Mode = core.MergedSources
	d, err := s.dashboards.Build(ctx, view, BuildOptions{})
	if err != nil {
		return Insight{}, err
	}
	if d.Condition == core.ConditionNoSources || d.Condition == core.ConditionNoData {
		return Insight{}, fmt.Errorf("%w: %s", ErrNothingToAnalyze, d.Message)
	}

	start := time.Now()
	text, err := s.generator.Generate(ctx, BuildPrompt(d, question))
	if err != nil {
		s.logger.ErrorContext(ctx, "Analysis generation failed",
			applog.FieldView, view.Key(),
			applog.FieldError, err)
		return Insight{}, fmt.Errorf("generate analysis: %w", err)
	}
	s.logger.InfoContext(ctx, "Analysis generated",
		applog.FieldView, view.Key(),
		applog.FieldDuration, time.Since(start).Milliseconds())
	return Insight{Text: text, View: view, GeneratedAt: s.now().UTC()}, nil
}

const promptTopN = 5

// BuildPrompt renders the analysis of d into a fixed prompt template.
func BuildPrompt(d core.Dashboard, question string) string {
	t := d.Analysis.Totals
	var b strings.Builder
	b.WriteString("You are a personal finance assistant. Analyze the following summary and give concise, practical advice.\n\n")
	if first, last, ok := periodRange(d.Series); ok {
		fmt.Fprintf(&b, "Period: %s to %s\n", first, last)
	}
	fmt.Fprintf(&b, "Total income: %.2f\n", t.Income)
	fmt.Fprintf(&b, "Total expense: %.2f\n", t.Expense)
	fmt.Fprintf(&b, "Net: %.2f\n", t.Net)
	fmt.Fprintf(&b, "Margin: %.1f%%\n", t.MarginPct)
	fmt.Fprintf(&b, "Top spending category: %s\n", d.Analysis.TopCategory.Category)

	b.WriteString("\nTop expense categories:\n")
	top := d.Analysis.TopN(promptTopN)
	if len(top) == 0 {
		b.WriteString("(no expenses recorded)\n")
	}
	for _, e := range top {
		fmt.Fprintf(&b, "%d. %s: %.2f (%.1f%%, %d entries)\n",
			e.Rank, e.Category, e.ExpenseValue, e.ExpenseSharePct, e.TransactionCount)
	}
	if q := strings.TrimSpace(question); q != "" {
		fmt.Fprintf(&b, "\nQuestion: %s\n", q)
	}
	return b.String()
}

func periodRange(series []core.PeriodTotal) (string, string, bool) {
	if len(series) == 0 {
		return "", "", false
	}
	return series[0].Period, series[len(series)-1].Period, true
}
