// Package http serves the dashboard JSON API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"finboard/internal/core"
	applog "finboard/internal/log"
	"finboard/internal/middleware/ratelimit"
	"finboard/internal/middleware/security"
	"finboard/internal/middleware/trace"
	"finboard/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// SnapshotReader returns the latest precomputed dashboard for a view.
type SnapshotReader interface {
	Latest(ctx context.Context, v core.View) (core.Dashboard, error)
}

type Deps struct {
	Dashboards  *services.DashboardService
	Connections *services.ConnectionService
	Insights    *services.InsightService
	Snapshots   SnapshotReader
}

type Options struct {
	CORSAllowedOrigins []string
	RateLimitPerMinute int
	TrustedProxies     []string
	Logger             *slog.Logger
}

type Server struct {
	http.Server
	deps    Deps
	limiter *ratelimit.Limiter
	trace   *trace.Middleware
	logger  *applog.Logger

	stopSweep    context.CancelFunc
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ips, err := security.NewIPExtractor(opts.TrustedProxies...)
	if err != nil {
		return nil, err
	}
	logger := applog.Wrap(opts.Logger, applog.ComponentHTTP)

	s := &Server{
		deps:    deps,
		limiter: ratelimit.New(opts.RateLimitPerMinute),
		trace:   trace.New(ips.ClientIP),
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(applog.Middleware(logger))
	r.Use(s.trace.Handler)
	r.Use(applog.RequestIDMiddleware(trace.FromRequest))
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: opts.CORSAllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Content-Type", trace.HeaderRequestID},
		ExposedHeaders: []string{trace.HeaderRequestID, "Retry-After"},
		MaxAge:         300,
	}).Handler)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("no such endpoint").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, CodeInvalidRequest, "method not allowed").Write(w)
	})

	limited := s.limiter.Middleware(ips.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, ips.ClientIP(r),
			applog.FieldPath, r.URL.Path)
		ErrorResponse(http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded, try again later").Write(w)
	})

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Route("/api", func(r chi.Router) {
		r.Get("/sources", s.handleListSources)
		r.With(limited).Post("/sources", s.handleAddSource)
		r.Delete("/sources/{id}", s.handleRemoveSource)

		r.Get("/dashboard", s.handleDashboard)
		r.Get("/dashboard/snapshot", s.handleSnapshot)
		r.With(limited).Post("/preview", s.handlePreview)
		r.With(limited).Post("/analysis", s.handleAnalysis)
	})

	sweepCtx, stop := context.WithCancel(context.Background())
	s.stopSweep = stop
	go s.limiter.Run(sweepCtx, 5*time.Minute)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Shutdown stops background routines and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.stopSweep()
		s.logger.InfoContext(ctx, "HTTP server shutting down",
			"total_requests", s.trace.TotalRequests())
		err = s.Server.Shutdown(ctx)
	})
	return err
}
