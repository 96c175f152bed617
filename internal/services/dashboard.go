package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finboard/internal/cache"
	"finboard/internal/core"
	applog "finboard/internal/log"
	"finboard/internal/sheets"

	"golang.org/x/sync/errgroup"
)

// SourceLister is the read side of the connection registry.
type SourceLister interface {
	List(ctx context.Context) ([]core.Source, error)
}

type DashboardOptions struct {
	FetchTimeout time.Duration
	Retry        RetryConfig
	Concurrency  int
}

// BuildOptions tune a single dashboard build.
type BuildOptions struct {
	// Refresh skips cached sheet values and stores the new ones.
	Refresh bool
}

// DashboardService fetches every connected source, normalizes the rows and
// derives the dashboard for a view.
type DashboardService struct {
	sources    SourceLister
	reader     sheets.ValuesReader
	normalizer *core.Normalizer
	cache      cache.Cache[[][]any]
	opts       DashboardOptions
	logger     *applog.Logger
	now        func() time.Time
}

// NewDashboardService wires the service. valueCache may be nil.
func NewDashboardService(sources SourceLister, reader sheets.ValuesReader, normalizer *core.Normalizer, valueCache cache.Cache[[][]any], opts DashboardOptions, logger *slog.Logger) *DashboardService {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if normalizer == nil {
		normalizer = core.NewNormalizer(nil, 0)
	}
	return &DashboardService{
		sources:    sources,
		reader:     reader,
		normalizer: normalizer,
		cache:      valueCache,
		opts:       opts,
		logger:     applog.Wrap(logger, applog.ComponentDashboard),
		now:        time.Now,
	}
}

type sourceBatch struct {
	records []core.FinancialRecord
	failure *core.SourceFailure
}

// Build produces the dashboard for view. Source failures never fail the
// build; they are reported in Dashboard.Failures.
func (s *DashboardService) Build(ctx context.Context, view core.View, opts BuildOptions) (core.Dashboard, error) {
	if err := view.Validate(); err != nil {
		return core.Dashboard{}, fmt.Errorf("%w: %v", ErrInvalidView, err)
	}

	all, err := s.sources.List(ctx)
	if err != nil {
		return core.Dashboard{}, fmt.Errorf("list sources: %w", err)
	}
	if len(all) == 0 && view.SourceID == "" {
		d := s.assemble(view, nil, nil)
		d.Condition = core.ConditionNoSources
		d.Message = ErrNoSources.Error()
		return d, nil
	}

	selected := all
	if view.SourceID != "" {
		selected = nil
		for _, src := range all {
			if src.ID == view.SourceID {
				selected = []core.Source{src}
				break
			}
		}
		if selected == nil {
			return core.Dashboard{}, fmt.Errorf("%w: %s", ErrSourceNotFound, view.SourceID)
		}
	}

	batches := s.fetchAll(ctx, selected, opts.Refresh)

	var records [][]core.FinancialRecord
	var failures []core.SourceFailure
	for _, b := range batches {
		if b.failure != nil {
			failures = append(failures, *b.failure)
			continue
		}
		records = append(records, b.records)
	}

	d := s.assemble(view, records, failures)
	s.logger.InfoContext(ctx, "Dashboard built",
		applog.FieldView, view.Key(),
		applog.FieldRecords, d.Records,
		applog.FieldFailures, len(failures),
		applog.FieldCondition, string(d.Condition))
	return d, nil
}

// Preview builds a dashboard from values supplied by the caller, as if they
// came from one source.
func (s *DashboardService) Preview(values [][]any, view core.View) (core.Dashboard, error) {
	if err := view.Validate(); err != nil {
		return core.Dashboard{}, fmt.Errorf("%w: %v", ErrInvalidView, err)
	}
	const previewID = "preview"
	view.SourceID = ""
	recs, err := s.normalizer.NormalizeValues(previewID, values)
	if err != nil {
		var malformed *core.MalformedInputError
		if !errors.As(err, &malformed) {
			return core.Dashboard{}, err
		}
		return s.assemble(view, nil, []core.SourceFailure{{
			SourceID:   previewID,
			SourceName: previewID,
			Kind:       core.FailureMalformed,
			Message:    malformed.Err.Error(),
		}}), nil
	}
	return s.assemble(view, [][]core.FinancialRecord{recs}, nil), nil
}

func (s *DashboardService) assemble(view core.View, batches [][]core.FinancialRecord, failures []core.SourceFailure) core.Dashboard {
	count := 0
	for i, b := range batches {
		batches[i] = core.FilterRecords(b, core.View{From: view.From, To: view.To})
		count += len(batches[i])
	}
	aggregated := core.Aggregate(batches, view.Mode)

	d := core.Dashboard{
		View:        view,
		Records:     count,
		Aggregated:  aggregated,
		Series:      core.MonthlySeries(aggregated),
		Analysis:    core.Analyze(aggregated),
		Failures:    failures,
		GeneratedAt: s.now().UTC(),
	}
	switch {
	case count == 0 && len(failures) > 0:
		d.Condition = core.ConditionNoData
		d.Message = failures[0].Message
	case count == 0:
		d.Condition = core.ConditionNoData
		d.Message = core.ErrNoData.Error()
	case len(failures) > 0:
		d.Condition = core.ConditionPartial
		d.Message = fmt.Sprintf("%d source(s) could not be read", len(failures))
	}
	return d
}

// fetchAll reads every source concurrently. Each goroutine owns one slot of
// the result, so no locking is needed and a failure never cancels siblings.
func (s *DashboardService) fetchAll(ctx context.Context, srcs []core.Source, refresh bool) []sourceBatch {
	out := make([]sourceBatch, len(srcs))
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, src := range srcs {
		g.Go(func() error {
			out[i] = s.fetchOne(ctx, src, refresh)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *DashboardService) fetchOne(ctx context.Context, src core.Source, refresh bool) sourceBatch {
	start := time.Now()
	fields := applog.NewFields().WithSource(src.ID, src.DisplayName(), src.SpreadsheetID)

	values, hit, err := s.values(ctx, src, refresh)
	if err != nil {
		fields.WithError(err).WithDuration(time.Since(start))
		s.logger.WarnContext(ctx, "Source fetch failed", fields.ToSlice()...)
		return sourceBatch{failure: &core.SourceFailure{
			SourceID:   src.ID,
			SourceName: src.DisplayName(),
			Kind:       core.FailureFetch,
			Message:    err.Error(),
		}}
	}

	recs, err := s.normalizer.NormalizeValues(src.ID, values)
	if err != nil {
		msg := err.Error()
		var malformed *core.MalformedInputError
		if errors.As(err, &malformed) {
			msg = malformed.Err.Error()
		}
		fields.WithError(err)
		s.logger.WarnContext(ctx, "Source payload rejected", fields.ToSlice()...)
		return sourceBatch{failure: &core.SourceFailure{
			SourceID:   src.ID,
			SourceName: src.DisplayName(),
			Kind:       core.FailureMalformed,
			Message:    msg,
		}}
	}

	fields.WithDuration(time.Since(start)).
		With(applog.FieldRows, len(values)).
		With(applog.FieldRecords, len(recs)).
		With(applog.FieldCacheHit, hit)
	s.logger.DebugContext(ctx, "Source fetched", fields.ToSlice()...)
	return sourceBatch{records: recs}
}

func (s *DashboardService) values(ctx context.Context, src core.Source, refresh bool) ([][]any, bool, error) {
	key := CacheKey(src)
	if s.cache != nil && !refresh {
		if v, ok := s.cache.Get(key); ok {
			return v, true, nil
		}
	}
	values, err := WithRetry(ctx, s.opts.Retry, func(ctx context.Context) ([][]any, error) {
		ctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
		defer cancel()
		return s.reader.ReadValues(ctx, src.SpreadsheetID, src.A1Range())
	})
	if err != nil {
		return nil, false, &SourceFetchError{SourceID: src.ID, Err: err}
	}
	if s.cache != nil {
		s.cache.Set(key, values)
	}
	return values, false, nil
}

// CacheKey identifies the cached values of a source; keys start with the
// source ID so one source can be invalidated by prefix.
func CacheKey(src core.Source) string {
	return src.ID + "|" + src.SpreadsheetID + "|" + src.A1Range()
}

// InvalidateSource drops every cached payload of one source.
func (s *DashboardService) InvalidateSource(sourceID string) int {
	if s.cache == nil {
		return 0
	}
	return s.cache.DeletePrefix(sourceID + "|")
}
