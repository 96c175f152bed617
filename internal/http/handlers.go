package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"finboard/internal/core"
	"finboard/internal/services"

	"github.com/go-chi/chi/v5"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady checks that the connection store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := s.deps.Connections.List(ctx); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	srcs, err := s.deps.Connections.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(map[string]any{"sources": srcs}).Write(w)
}

func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	src, err := s.deps.Connections.Add(r.Context(), req.Source())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/sources/"+src.ID).
		Body(src).
		Write(w)
}

func (s *Server) handleRemoveSource(w http.ResponseWriter, r *http.Request) {
	id := sanitizeInput(chi.URLParam(r, "id"))
	if err := s.deps.Connections.Remove(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	view, refresh, err := ParseView(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.deps.Dashboards.Build(r.Context(), view, services.BuildOptions{Refresh: refresh})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(d).Write(w)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.deps.Snapshots == nil {
		NotFoundError("snapshots are not enabled").Write(w)
		return
	}
	view, _, err := ParseView(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := view.Validate(); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	d, err := s.deps.Snapshots.Latest(r.Context(), view)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(d).Write(w)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	values, err := core.RowsFromPayload(jsonNumbers(req.Values))
	if err != nil {
		writeError(w, r, err)
		return
	}
	view := core.View{
		Mode: core.ParseAggregationMode(req.Mode),
		From: sanitizeInput(req.From),
		To:   sanitizeInput(req.To),
	}
	d, err := s.deps.Dashboards.Preview(values, view)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(d).Write(w)
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Insights.Enabled() {
		writeError(w, r, services.ErrInsightsDisabled)
		return
	}
	var req analysisRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	question := strings.TrimSpace(sanitizeInput(req.Question))
	if len(question) > maxQuestionLength {
		BadRequestError("question is too long").Write(w)
		return
	}
	insight, err := s.deps.Insights.Analyze(r.Context(), req.View(), question)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(insight).Write(w)
}
