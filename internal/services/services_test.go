package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"finboard/internal/amqp"
	"finboard/internal/cache"
	"finboard/internal/connections"
	"finboard/internal/core"
	"finboard/internal/sheets/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRetry = RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingReader wraps a reader, counting calls and failing chosen
// spreadsheets a fixed number of times.
type countingReader struct {
	inner interface {
		ReadValues(ctx context.Context, spreadsheetID, a1Range string) ([][]any, error)
	}

	mu       sync.Mutex
	calls    map[string]int
	failures map[string]int
	err      error
}

func (r *countingReader) ReadValues(ctx context.Context, spreadsheetID, a1Range string) ([][]any, error) {
	r.mu.Lock()
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	r.calls[spreadsheetID]++
	fail := r.failures[spreadsheetID] > 0
	if fail {
		r.failures[spreadsheetID]--
	}
	r.mu.Unlock()
	if fail {
		return nil, r.err
	}
	return r.inner.ReadValues(ctx, spreadsheetID, a1Range)
}

func (r *countingReader) Calls(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id]
}

type fixture struct {
	registry *connections.Registry
	store    *memory.Store
	reader   *countingReader
	cache    *cache.LRU[[][]any]
	svc      *DashboardService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		registry: connections.NewRegistry(connections.NewMemoryKV()),
		store:    memory.New(),
		cache:    cache.NewLRU[[][]any](16, time.Minute),
	}
	f.reader = &countingReader{inner: f.store, failures: map[string]int{}, err: errors.New("connection reset")}
	f.svc = NewDashboardService(f.registry, f.reader, core.NewNormalizer(nil, 2024), f.cache,
		DashboardOptions{FetchTimeout: time.Second, Retry: testRetry, Concurrency: 2}, discardLogger())
	return f
}

func (f *fixture) connect(t *testing.T, spreadsheetID string, values [][]any) core.Source {
	t.Helper()
	f.store.Put(spreadsheetID, "Data", values)
	src, err := f.registry.Add(context.Background(), core.Source{Name: spreadsheetID, SpreadsheetID: spreadsheetID, SheetName: "Data"})
	require.NoError(t, err)
	return src
}

var (
	header  = []any{"Date", "Category", "Description", "Amount"}
	sheetA  = [][]any{header, {"2024-01-05", "Receita", "salary", "1000"}, {"2024-01-10", "Food", "market", "200"}, {"2024-02-03", "Rent", "", "300"}}
	sheetB  = [][]any{header, {"15/01/2024", "Food", "dinner", "100"}, {"20/02/2024", "Receita Extra", "bonus", "500"}}
	noRows  = [][]any{header}
	ctxTest = context.Background()
)

func TestBuildNoSources(t *testing.T) {
	f := newFixture(t)
	d, err := f.svc.Build(ctxTest, core.View{}, BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, core.ConditionNoSources, d.Condition)
	assert.NotNil(t, d.Aggregated)
	assert.Empty(t, d.Aggregated)
	assert.Equal(t, core.NoCategoryLabel, d.Analysis.TopCategory.Category)
}

func TestBuildMergesSources(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "a", sheetA)
	f.connect(t, "b", sheetB)

	d, err := f.svc.Build(ctxTest, core.View{Mode: core.MergedSources}, BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, core.ConditionOK, d.Condition)
	assert.Equal(t, 5, d.Records)
	assert.Empty(t, d.Failures)

	assert.Equal(t, 1500.0, d.Analysis.Totals.Income)
	assert.Equal(t, 600.0, d.Analysis.Totals.Expense)
	assert.Equal(t, "Food", d.Analysis.TopCategory.Category)
	assert.Equal(t, 300.0, d.Analysis.TopCategory.ExpenseValue)

	require.Len(t, d.Series, 2)
	assert.Equal(t, "2024-01", d.Series[0].Period)
	assert.Equal(t, "2024-02", d.Series[1].Period)
}

func TestBuildPerSourceAndFilter(t *testing.T) {
	f := newFixture(t)
	a := f.connect(t, "a", sheetA)
	f.connect(t, "b", sheetB)

	d, err := f.svc.Build(ctxTest, core.View{Mode: core.PerSource, From: "2024-01", To: "2024-01"}, BuildOptions{})
	require.NoError(t, err)
	for _, r := range d.Aggregated {
		assert.Equal(t, "2024-01", r.Period)
		assert.NotEmpty(t, r.SourceID)
	}
	// Food appears once per source.
	food := 0
	for _, r := range d.Aggregated {
		if r.Category == "Food" {
			food++
		}
	}
	assert.Equal(t, 2, food)

	d, err = f.svc.Build(ctxTest, core.View{SourceID: a.ID}, BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, d.Records)
}

func TestBuildUnknownSource(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "a", sheetA)
	_, err := f.svc.Build(ctxTest, core.View{SourceID: "missing"}, BuildOptions{})
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestBuildInvalidView(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Build(ctxTest, core.View{From: "bad"}, BuildOptions{})
	assert.ErrorIs(t, err, ErrInvalidView)
}

func TestBuildPartialOnFailure(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "a", sheetA)
	f.connect(t, "b", sheetB)
	f.reader.failures["b"] = 10

	d, err := f.svc.Build(ctxTest, core.View{}, BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, core.ConditionPartial, d.Condition)
	assert.Equal(t, 3, d.Records)
	require.Len(t, d.Failures, 1)
	assert.Equal(t, core.FailureFetch, d.Failures[0].Kind)
	assert.Equal(t, "b", d.Failures[0].SourceName)
	assert.Equal(t, testRetry.MaxRetries+1, f.reader.Calls("b"))
}

// stallingReader blocks reads of one spreadsheet until the caller gives up.
type stallingReader struct {
	inner interface {
		ReadValues(ctx context.Context, spreadsheetID, a1Range string) ([][]any, error)
	}
	stall string
}

func (r stallingReader) ReadValues(ctx context.Context, spreadsheetID, a1Range string) ([][]any, error) {
	if spreadsheetID == r.stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return r.inner.ReadValues(ctx, spreadsheetID, a1Range)
}

func TestBuildFetchTimeout(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "a", sheetA)
	f.connect(t, "slow", sheetB)
	svc := NewDashboardService(f.registry, stallingReader{inner: f.store, stall: "slow"}, core.NewNormalizer(nil, 2024), f.cache,
		DashboardOptions{FetchTimeout: 50 * time.Millisecond, Retry: testRetry, Concurrency: 2}, discardLogger())

	start := time.Now()
	d, err := svc.Build(ctxTest, core.View{}, BuildOptions{})
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.Less(t, elapsed, 2*time.Second)
	assert.Equal(t, core.ConditionPartial, d.Condition)
	assert.Equal(t, 3, d.Records)
	require.Len(t, d.Failures, 1)
	assert.Equal(t, core.FailureFetch, d.Failures[0].Kind)
	assert.Equal(t, "slow", d.Failures[0].SourceName)
	assert.Contains(t, d.Failures[0].Message, context.DeadlineExceeded.Error())
}

func TestBuildRetriesTransientFailure(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "a", sheetA)
	f.reader.failures["a"] = 1

	d, err := f.svc.Build(ctxTest, core.View{}, BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, core.ConditionOK, d.Condition)
	assert.Equal(t, 2, f.reader.Calls("a"))
}

func TestBuildMalformedSource(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "a", sheetA)
	f.connect(t, "empty", noRows)

	d, err := f.svc.Build(ctxTest, core.View{}, BuildOptions{})
	require.NoError(t, err)
	require.Len(t, d.Failures, 1)
	assert.Equal(t, core.FailureMalformed, d.Failures[0].Kind)
	assert.Equal(t, core.ErrNoData.Error(), d.Failures[0].Message)
	assert.Equal(t, core.ConditionPartial, d.Condition)
}

func TestBuildAllFailed(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "empty", noRows)

	d, err := f.svc.Build(ctxTest, core.View{}, BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, core.ConditionNoData, d.Condition)
	assert.Equal(t, core.ErrNoData.Error(), d.Message)
}

func TestBuildUsesCache(t *testing.T) {
	f := newFixture(t)
	src := f.connect(t, "a", sheetA)

	for range 3 {
		_, err := f.svc.Build(ctxTest, core.View{}, BuildOptions{})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.reader.Calls("a"))

	_, err := f.svc.Build(ctxTest, core.View{}, BuildOptions{Refresh: true})
	require.NoError(t, err)
	assert.Equal(t, 2, f.reader.Calls("a"))

	assert.Equal(t, 1, f.svc.InvalidateSource(src.ID))
	_, err = f.svc.Build(ctxTest, core.View{}, BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, f.reader.Calls("a"))
}

func TestPreview(t *testing.T) {
	f := newFixture(t)
	d, err := f.svc.Preview(sheetA, core.View{})
	require.NoError(t, err)
	assert.Equal(t, 3, d.Records)
	assert.Equal(t, "Food", d.Analysis.TopCategory.Category)

	d, err = f.svc.Preview(noRows, core.View{})
	require.NoError(t, err)
	assert.Equal(t, core.ConditionNoData, d.Condition)
	require.Len(t, d.Failures, 1)
	assert.Equal(t, core.FailureMalformed, d.Failures[0].Kind)
}

func TestWithRetry(t *testing.T) {
	t.Run("stops on malformed input", func(t *testing.T) {
		calls := 0
		_, err := WithRetry(ctxTest, testRetry, func(context.Context) (int, error) {
			calls++
			return 0, &core.MalformedInputError{Err: core.ErrNoData}
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		_, err := WithRetry(ctxTest, testRetry, func(context.Context) (int, error) {
			calls++
			return 0, errors.New("boom")
		})
		assert.EqualError(t, err, "boom")
		assert.Equal(t, testRetry.MaxRetries+1, calls)
	})

	t.Run("returns on cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(ctxTest)
		cancel()
		cfg := testRetry
		cfg.InitialDelay = time.Hour
		_, err := WithRetry(ctx, cfg, func(context.Context) (int, error) {
			return 0, errors.New("boom")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *recordingPublisher) PublishConnectionChanged(_ context.Context, sourceID string, action amqp.Action) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, string(action)+":"+sourceID)
	return p.err
}

func TestConnectionService(t *testing.T) {
	f := newFixture(t)
	f.store.Put("book", "Data", sheetA)
	pub := &recordingPublisher{}
	svc := NewConnectionService(f.registry, f.store, f.svc, pub, discardLogger())

	src, err := svc.Add(ctxTest, core.Source{Name: "Home", SpreadsheetID: "book", SheetName: "Data"})
	require.NoError(t, err)
	assert.NotEmpty(t, src.ID)

	_, err = svc.Add(ctxTest, core.Source{SpreadsheetID: "book", SheetName: "Other"})
	assert.ErrorIs(t, err, ErrInvalidSource)
	_, err = svc.Add(ctxTest, core.Source{SpreadsheetID: "nope", SheetName: "Data"})
	assert.ErrorIs(t, err, ErrInvalidSource)
	_, err = svc.Add(ctxTest, core.Source{SheetName: "Data"})
	assert.ErrorIs(t, err, ErrInvalidSource)

	list, err := svc.List(ctxTest)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, svc.Remove(ctxTest, src.ID))
	assert.ErrorIs(t, svc.Remove(ctxTest, src.ID), ErrSourceNotFound)
	assert.Equal(t, []string{"added:" + src.ID, "removed:" + src.ID}, pub.events)
}

func TestConnectionServicePublishFailureIsIgnored(t *testing.T) {
	f := newFixture(t)
	pub := &recordingPublisher{err: amqp.ErrCircuitOpen}
	svc := NewConnectionService(f.registry, nil, nil, pub, discardLogger())

	_, err := svc.Add(ctxTest, core.Source{SpreadsheetID: "x", SheetName: "Data"})
	require.NoError(t, err)
}

type stubGenerator struct {
	prompt string
	text   string
	err    error
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.text, g.err
}

func TestInsightService(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "a", sheetA)

	disabled := NewInsightService(f.svc, nil, discardLogger())
	_, err := disabled.Analyze(ctxTest, core.View{}, "")
	assert.ErrorIs(t, err, ErrInsightsDisabled)

	gen := &stubGenerator{text: "Spend less on rent."}
	svc := NewInsightService(f.svc, gen, discardLogger())
	got, err := svc.Analyze(ctxTest, core.View{}, "How am I doing?")
	require.NoError(t, err)
	assert.Equal(t, "Spend less on rent.", got.Text)
	assert.Contains(t, gen.prompt, "Total income: 1000.00")
	assert.Contains(t, gen.prompt, "Question: How am I doing?")

	gen.err = errors.New("quota")
	_, err = svc.Analyze(ctxTest, core.View{}, "")
	assert.ErrorContains(t, err, "quota")
}

func TestInsightServiceSkipsEmptyViews(t *testing.T) {
	f := newFixture(t)
	gen := &stubGenerator{text: "unused"}
	svc := NewInsightService(f.svc, gen, discardLogger())

	_, err := svc.Analyze(ctxTest, core.View{}, "")
	assert.ErrorIs(t, err, ErrNothingToAnalyze)
	assert.ErrorContains(t, err, ErrNoSources.Error())

	f.connect(t, "empty", noRows)
	_, err = svc.Analyze(ctxTest, core.View{}, "")
	assert.ErrorIs(t, err, ErrNothingToAnalyze)

	f.connect(t, "a", sheetA)
	_, err = svc.Analyze(ctxTest, core.View{From: "2030-01"}, "")
	assert.ErrorIs(t, err, ErrNothingToAnalyze)
	assert.Empty(t, gen.prompt)
}

func TestBuildPrompt(t *testing.T) {
	var agg []core.AggregatedRecord
	for i, c := range []string{"A", "B", "C", "D", "E", "F"} {
		agg = append(agg, core.AggregatedRecord{Period: "2024-03", Category: c, Expense: float64(100 * (i + 1))})
	}
	agg = append(agg, core.AggregatedRecord{Period: "2024-01", Category: "Receita", Income: 5000})
	d := core.Dashboard{Analysis: core.Analyze(agg), Series: core.MonthlySeries(core.Aggregate([][]core.FinancialRecord{{
		{Period: "2024-01", Category: "Receita", Income: 5000},
		{Period: "2024-03", Category: "A", Expense: 100},
	}}, core.MergedSources))}

	p := BuildPrompt(d, "")
	assert.Contains(t, p, "Period: 2024-01 to 2024-03")
	assert.Contains(t, p, "Total expense: 2100.00")
	assert.Contains(t, p, "Margin: 58.0%")
	assert.Contains(t, p, "1. F: 600.00")
	assert.Contains(t, p, "5. B: 200.00")
	assert.NotContains(t, p, "6. A")
	assert.NotContains(t, p, "Question:")

	empty := BuildPrompt(core.Dashboard{Analysis: core.Analyze(nil)}, "  ")
	assert.Contains(t, empty, "(no expenses recorded)")
	assert.Contains(t, empty, core.NoCategoryLabel)
	assert.False(t, strings.Contains(empty, "Period:"))
}
