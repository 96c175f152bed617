// Package memory is an in-process sheet backend for development and tests.
// Seeds are read from <dir>/<spreadsheetID>/<sheet>.csv or .json files.
package memory

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"finboard/internal/core"
	ports "finboard/internal/sheets"
)

type Store struct {
	mu     sync.RWMutex
	sheets map[string]map[string][][]any // spreadsheetID -> sheet -> values
	order  map[string][]string
}

var _ ports.Reader = (*Store)(nil)

func New() *Store {
	return &Store{
		sheets: map[string]map[string][][]any{},
		order:  map[string][]string{},
	}
}

// NewFromDir loads every seed file under base. Unreadable files are logged and
// skipped; a missing directory yields an empty store.
func NewFromDir(base string) *Store {
	s := New()
	dirs, err := os.ReadDir(base)
	if err != nil {
		return s
	}
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(base, d.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			path := filepath.Join(base, d.Name(), f.Name())
			sheet := strings.TrimSuffix(f.Name(), filepath.Ext(f.Name()))
			values, err := readSeed(path)
			if err != nil {
				slog.Warn("Skipping sheet seed", "path", path, "error", err)
				continue
			}
			if values == nil {
				continue
			}
			s.Put(d.Name(), sheet, values)
		}
	}
	return s
}

func readSeed(path string) ([][]any, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r := csv.NewReader(f)
		r.FieldsPerRecord = -1
		records, err := r.ReadAll()
		if err != nil {
			return nil, err
		}
		values := make([][]any, len(records))
		for i, rec := range records {
			row := make([]any, len(rec))
			for j, cell := range rec {
				row[j] = cell
			}
			values[i] = row
		}
		return values, nil
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var payload any
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return core.RowsFromPayload(payload)
	default:
		return nil, nil
	}
}

// Put replaces the values of one sheet.
func (s *Store) Put(spreadsheetID, sheet string, values [][]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.sheets[spreadsheetID]
	if !ok {
		book = map[string][][]any{}
		s.sheets[spreadsheetID] = book
	}
	if _, exists := book[sheet]; !exists {
		s.order[spreadsheetID] = append(s.order[spreadsheetID], sheet)
	}
	book[sheet] = values
}

// ReadValues returns a copy of the sheet named in a1Range. Column bounds are
// not applied; seeds hold the data columns only.
func (s *Store) ReadValues(ctx context.Context, spreadsheetID, a1Range string) ([][]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sheet, _ := core.SplitA1(a1Range)
	s.mu.RLock()
	defer s.mu.RUnlock()
	values, ok := s.sheets[spreadsheetID][sheet]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ports.ErrSheetNotFound, sheet, spreadsheetID)
	}
	out := make([][]any, len(values))
	for i, row := range values {
		out[i] = append([]any(nil), row...)
	}
	return out, nil
}

func (s *Store) SheetTitles(ctx context.Context, spreadsheetID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	titles, ok := s.order[spreadsheetID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrSheetNotFound, spreadsheetID)
	}
	return append([]string(nil), titles...), nil
}
