package google

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	ports "finboard/internal/sheets"

	goption "google.golang.org/api/option"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewWithOptions(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()),
		goption.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return c
}

func TestReadValues(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"range":"Caixa!A1:D3","values":[["Data","Categoria","Descricao","Valor"],["01/01/2024","Receita","Venda","1000,00"],["01/01/2024","Despesa"]]}`))
	})

	values, err := c.ReadValues(context.Background(), "sheet-1", "Caixa!A:D")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(gotPath, "/v4/spreadsheets/sheet-1/values/") {
		t.Errorf("unexpected path %q", gotPath)
	}
	if len(values) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(values))
	}
	if len(values[2]) != 2 {
		t.Errorf("short rows must stay short, got %v", values[2])
	}
	if values[1][3] != "1000,00" {
		t.Errorf("unexpected cell %v", values[1][3])
	}
}

func TestReadValuesNotFound(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"missing spreadsheet", http.StatusNotFound, `{"error":{"code":404,"message":"Requested entity was not found."}}`},
		{"not shared", http.StatusForbidden, `{"error":{"code":403,"message":"The caller does not have permission"}}`},
		{"bad sheet name", http.StatusBadRequest, `{"error":{"code":400,"message":"Unable to parse range: Nope!A:D"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.ReadValues(context.Background(), "x", "Nope!A:D")
			if !errors.Is(err, ports.ErrSheetNotFound) {
				t.Fatalf("expected ErrSheetNotFound, got %v", err)
			}
		})
	}
}

func TestReadValuesServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":500,"message":"backend"}}`))
	})
	_, err := c.ReadValues(context.Background(), "x", "A!A:D")
	if err == nil || errors.Is(err, ports.ErrSheetNotFound) {
		t.Fatalf("expected a plain error, got %v", err)
	}
}

func TestSheetTitles(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sheets":[{"properties":{"title":"Caixa"}},{"properties":{"title":"Resumo"}}]}`))
	})
	titles, err := c.SheetTitles(context.Background(), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(titles) != 2 || titles[0] != "Caixa" || titles[1] != "Resumo" {
		t.Fatalf("unexpected titles %v", titles)
	}
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	if _, err := loadCredentials(context.Background(), Credentials{}); err == nil {
		t.Fatal("expected error without credentials")
	}

	got, err := loadCredentials(context.Background(), Credentials{JSON: ` {"type":"service_account"} `, File: "/nope"})
	if err != nil || string(got) != `{"type":"service_account"}` {
		t.Fatalf("inline JSON should win: %q %v", got, err)
	}

	path := filepath.Join(t.TempDir(), "sa.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", path)
	got, err = loadCredentials(context.Background(), Credentials{})
	if err != nil || string(got) != `{}` {
		t.Fatalf("expected file credentials, got %q %v", got, err)
	}

	if _, err := loadCredentials(context.Background(), Credentials{File: filepath.Join(t.TempDir(), "missing.json")}); err == nil {
		t.Fatal("expected read error")
	}
}
