package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Component: ComponentDashboard, Output: &buf})
	l.With(FieldSourceID, "src-1").Info("fetched")
	l.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "component=dashboard") || !strings.Contains(out, "source_id=src-1") {
		t.Errorf("missing fields in %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug line should be filtered")
	}
	if l.Component() != ComponentDashboard {
		t.Errorf("unexpected component %q", l.Component())
	}
}

func TestFields(t *testing.T) {
	f := NewFields().
		WithComponent(ComponentSheets).
		WithOperation(OpFetch).
		WithSource("src-1", "", "book").
		WithDuration(1500 * time.Millisecond).
		WithError(errors.New("boom")).
		WithError(nil)

	if f[FieldDuration] != int64(1500) || f[FieldError] != "boom" || f[FieldSpreadsheetID] != "book" {
		t.Errorf("unexpected fields %v", f)
	}
	if _, ok := f[FieldSourceName]; ok {
		t.Error("empty source name should be omitted")
	}
	if len(f.ToSlice()) != 2*len(f) {
		t.Error("ToSlice should emit key/value pairs")
	}
}

func TestContextMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Component: ComponentHTTP, Output: &buf})

	var got *Logger
	h := Middleware(base)(RequestIDMiddleware(func(*http.Request) string { return "req_1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = FromContext(r.Context())
			got.Info("inside")
		})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got == nil || !strings.Contains(buf.String(), "request_id=req_1") {
		t.Errorf("request logger not propagated: %q", buf.String())
	}
	if FromContext(context.Background()).Component() != ComponentApp {
		t.Error("fallback logger should use the app component")
	}
}

func TestRootLoggerHasNoComponent(t *testing.T) {
	var buf bytes.Buffer
	root := New(Config{Output: &buf})
	Wrap(root.Logger, ComponentWorker).Info("tick")

	if root.Component() != "" {
		t.Errorf("root component = %q", root.Component())
	}
	if n := strings.Count(buf.String(), "component="); n != 1 {
		t.Errorf("component logged %d times: %q", n, buf.String())
	}
}
