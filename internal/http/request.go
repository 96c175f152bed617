package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"finboard/internal/core"

	"github.com/shopspring/decimal"
)

const (
	maxBodyBytes      = 1 << 20
	maxQuestionLength = 1000
)

// ParseView reads the view selection from query parameters:
// source, mode, from, to and refresh.
func ParseView(query url.Values) (core.View, bool, error) {
	v := core.View{
		SourceID: sanitizeInput(query.Get("source")),
		Mode:     core.ParseAggregationMode(query.Get("mode")),
		From:     sanitizeInput(query.Get("from")),
		To:       sanitizeInput(query.Get("to")),
	}
	refresh := false
	if raw := strings.TrimSpace(query.Get("refresh")); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return core.View{}, false, fmt.Errorf("%w: refresh must be a boolean", errBadRequest)
		}
		refresh = b
	}
	return v, refresh, nil
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("%w: body exceeds %d bytes", errBadRequest, maxErr.Limit)
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: empty body", errBadRequest)
		default:
			return fmt.Errorf("%w: %v", errBadRequest, err)
		}
	}
	return nil
}

type sourceRequest struct {
	Name          string `json:"name"`
	SpreadsheetID string `json:"spreadsheet_id"`
	SheetName     string `json:"sheet_name"`
	Range         string `json:"range"`
}

func (req sourceRequest) Source() core.Source {
	return core.Source{
		Name:          sanitizeInput(req.Name),
		SpreadsheetID: sanitizeInput(req.SpreadsheetID),
		SheetName:     sanitizeInput(req.SheetName),
		Range:         sanitizeInput(req.Range),
	}
}

type previewRequest struct {
	Values any    `json:"values"`
	Mode   string `json:"mode"`
	From   string `json:"from"`
	To     string `json:"to"`
}

type analysisRequest struct {
	Source   string `json:"source"`
	From     string `json:"from"`
	To       string `json:"to"`
	Question string `json:"question"`
}

func (req analysisRequest) View() core.View {
	return core.View{
		SourceID: sanitizeInput(req.Source),
		From:     sanitizeInput(req.From),
		To:       sanitizeInput(req.To),
	}
}

// jsonNumbers rewrites json.Number leaves as plain decimal strings, keeping
// large values out of exponent notation before they reach the normalizer.
func jsonNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		// Plain decimal text; exponent literals such as 1e6 are expanded.
		if d, err := decimal.NewFromString(t.String()); err == nil {
			return d.String()
		}
		return t.String()
	case []any:
		for i := range t {
			t[i] = jsonNumbers(t[i])
		}
		return t
	default:
		return v
	}
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
