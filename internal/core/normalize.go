package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Column positions inside a RawRow.
const (
	ColDate = iota
	ColCategory
	ColDescription
	ColAmount
)

// Normalizer converts raw rows into FinancialRecords.
type Normalizer struct {
	classifier   Classifier
	fallbackYear int
}

// NewNormalizer returns a normalizer using c for income detection. A nil
// classifier uses the default keywords. fallbackYear fills periods of rows
// with no date or no year; zero means the current year.
func NewNormalizer(c Classifier, fallbackYear int) *Normalizer {
	if c == nil {
		c = NewKeywordClassifier()
	}
	if fallbackYear == 0 {
		fallbackYear = time.Now().Year()
	}
	return &Normalizer{classifier: c, fallbackYear: fallbackYear}
}

// Cell returns the trimmed text of cell i, or "" when the row is shorter.
func (r RawRow) Cell(i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return CellText(r[i])
}

// CellText renders a sheet cell value as text.
func CellText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Normalize converts one row. The second result is false when the row carries
// no amount and must be dropped.
func (n *Normalizer) Normalize(row RawRow, rowIndex int) (FinancialRecord, bool) {
	categoryText := row.Cell(ColCategory)
	amount := ParseAmount(row.Cell(ColAmount))

	rec := FinancialRecord{
		Period:   NormalizePeriod(row.Cell(ColDate), rowIndex, n.fallbackYear),
		Category: categoryText,
	}
	if rec.Category == "" {
		rec.Category = DefaultCategory
	}
	if n.classifier.IsIncome(categoryText) {
		rec.Income = amount
	} else {
		rec.Expense = amount
	}
	if rec.Income == 0 && rec.Expense == 0 {
		return FinancialRecord{}, false
	}
	return rec, true
}

// NormalizeValues normalizes a sheet payload whose first row is a header.
// Records are tagged with sourceID. A payload without data rows yields a
// MalformedInputError wrapping ErrNoData.
func (n *Normalizer) NormalizeValues(sourceID string, values [][]any) ([]FinancialRecord, error) {
	if len(values) < 2 {
		return nil, &MalformedInputError{SourceID: sourceID, Err: ErrNoData}
	}
	out := make([]FinancialRecord, 0, len(values)-1)
	for i, row := range values[1:] {
		rec, ok := n.Normalize(RawRow(row), i)
		if !ok {
			continue
		}
		rec.SourceID = sourceID
		out = append(out, rec)
	}
	return out, nil
}

var errNotRows = errors.New("payload is not an array of rows")

// RowsFromPayload validates a decoded JSON payload (as produced by
// encoding/json into an any) and returns it as sheet values.
func RowsFromPayload(payload any) ([][]any, error) {
	list, ok := payload.([]any)
	if !ok {
		if rows, ok := payload.([][]any); ok {
			return rows, nil
		}
		return nil, &MalformedInputError{Err: errNotRows}
	}
	rows := make([][]any, 0, len(list))
	for i, item := range list {
		row, ok := item.([]any)
		if !ok {
			return nil, &MalformedInputError{Err: fmt.Errorf("%w: row %d is %T", errNotRows, i, item)}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
