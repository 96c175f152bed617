package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

const (
	// DefaultCategory labels rows whose category cell is empty.
	DefaultCategory = "Uncategorized"
	// NoCategoryLabel is the category of the sentinel top entry when nothing was spent.
	NoCategoryLabel = "<none found>"
)

const (
	MergedSources AggregationMode = iota
	PerSource
)

const (
	FailureFetch     FailureKind = "fetch"
	FailureMalformed FailureKind = "malformed"
)

const (
	ConditionOK        Condition = ""
	ConditionNoSources Condition = "no_sources"
	ConditionNoData    Condition = "no_data"
	ConditionPartial   Condition = "partial"
)

type (
	// AggregationMode selects how records from different sources are merged.
	AggregationMode int

	FailureKind string

	Condition string

	// RawRow is one spreadsheet row as returned by the sheet API:
	// date, category, description, amount. Cells may be missing.
	RawRow []any

	FinancialRecord struct {
		Period   string  `json:"period"`
		Income   float64 `json:"income"`
		Expense  float64 `json:"expense"`
		Category string  `json:"category"`
		SourceID string  `json:"source_id,omitempty"`
	}

	AggregatedRecord struct {
		Period   string  `json:"period"`
		Category string  `json:"category"`
		SourceID string  `json:"source_id,omitempty"`
		Income   float64 `json:"income"`
		Expense  float64 `json:"expense"`
	}

	// Source describes one connected spreadsheet.
	Source struct {
		ID            string    `json:"id"`
		Name          string    `json:"name"`
		SpreadsheetID string    `json:"spreadsheet_id"`
		SheetName     string    `json:"sheet_name"`
		Range         string    `json:"range"`
		CreatedAt     time.Time `json:"created_at"`
	}

	// View selects which slice of the connected data a dashboard covers.
	View struct {
		SourceID string          `json:"source_id,omitempty"`
		Mode     AggregationMode `json:"mode"`
		From     string          `json:"from,omitempty"`
		To       string          `json:"to,omitempty"`
	}

	SourceFailure struct {
		SourceID   string      `json:"source_id"`
		SourceName string      `json:"source_name"`
		Kind       FailureKind `json:"kind"`
		Message    string      `json:"message"`
	}

	// Dashboard is everything the presentation layer needs for one view.
	Dashboard struct {
		View        View               `json:"view"`
		Records     int                `json:"records"`
		Aggregated  []AggregatedRecord `json:"aggregated"`
		Series      []PeriodTotal      `json:"series"`
		Analysis    Analysis           `json:"analysis"`
		Failures    []SourceFailure    `json:"failures,omitempty"`
		Condition   Condition          `json:"condition,omitempty"`
		Message     string             `json:"message,omitempty"`
		GeneratedAt time.Time          `json:"generated_at"`
	}
)

var (
	// ErrNoData is reported when a source has a header row but no data rows.
	ErrNoData = errors.New("no data found in source")

	ErrEmptySpreadsheetID = errors.New("empty spreadsheet id")
	ErrEmptySheetName     = errors.New("empty sheet name")
	ErrInvalidPeriod      = errors.New("invalid period, expected YYYY-MM")
)

// MalformedInputError reports a source payload with the wrong shape.
type MalformedInputError struct {
	SourceID string
	Err      error
}

func (e *MalformedInputError) Error() string {
	if e.SourceID == "" {
		return fmt.Sprintf("malformed input: %v", e.Err)
	}
	return fmt.Sprintf("malformed input from source %s: %v", e.SourceID, e.Err)
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

func (m AggregationMode) String() string {
	if m == PerSource {
		return "per-source"
	}
	return "merged"
}

func (m AggregationMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *AggregationMode) UnmarshalText(b []byte) error {
	*m = ParseAggregationMode(string(b))
	return nil
}

// ParseAggregationMode accepts "merged" and "per-source"; anything else is merged.
func ParseAggregationMode(s string) AggregationMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "per-source", "per_source", "source":
		return PerSource
	default:
		return MergedSources
	}
}

// Key identifies the view for caching and snapshot storage.
func (v View) Key() string {
	src := v.SourceID
	if src == "" {
		src = "all"
	}
	return strings.Join([]string{src, v.Mode.String(), v.From, v.To}, "|")
}

// Validate checks the optional period bounds.
func (v View) Validate() error {
	for _, p := range []string{v.From, v.To} {
		if p != "" && !IsPeriod(p) {
			return fmt.Errorf("%w: %q", ErrInvalidPeriod, p)
		}
	}
	if v.From != "" && v.To != "" && v.From > v.To {
		return fmt.Errorf("invalid view: from %s is after to %s", v.From, v.To)
	}
	return nil
}

func (s Source) Validate() error {
	if strings.TrimSpace(s.SpreadsheetID) == "" {
		return ErrEmptySpreadsheetID
	}
	if strings.TrimSpace(s.SheetName) == "" {
		return ErrEmptySheetName
	}
	return nil
}

// A1Range returns the sheet range to read, defaulting to the four data columns.
func (s Source) A1Range() string {
	rng := strings.TrimSpace(s.Range)
	if rng == "" {
		rng = "A:D"
	}
	return fmt.Sprintf("%s!%s", QuoteSheetName(s.SheetName), rng)
}

// QuoteSheetName quotes sheet names that A1 notation cannot take bare.
func QuoteSheetName(name string) string {
	bare := name != ""
	for _, r := range name {
		if !(r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)) {
			bare = false
			break
		}
	}
	if bare {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// SplitA1 separates "Sheet!A:D" into its unquoted sheet name and cell range.
func SplitA1(a1 string) (sheet, cells string) {
	i := strings.LastIndex(a1, "!")
	if i < 0 {
		return unquoteSheetName(a1), ""
	}
	return unquoteSheetName(a1[:i]), a1[i+1:]
}

func unquoteSheetName(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}

// DisplayName falls back to the sheet name when no name was given.
func (s Source) DisplayName() string {
	if n := strings.TrimSpace(s.Name); n != "" {
		return n
	}
	return s.SheetName
}
