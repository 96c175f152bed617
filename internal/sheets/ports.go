package sheets

import (
	"context"
	"errors"
)

// ErrSheetNotFound is returned when the spreadsheet or the named sheet does
// not exist or is not shared with the service account.
var ErrSheetNotFound = errors.New("sheet not found")

// Ports for outbound adapters.
type (
	// ValuesReader returns the raw cell matrix of an A1 range. Cells keep the
	// types the backend produced (strings, numbers, nil).
	ValuesReader interface {
		ReadValues(ctx context.Context, spreadsheetID, a1Range string) ([][]any, error)
	}

	// SheetLister lists the sheet titles of a spreadsheet, used to validate a
	// connection before it is saved.
	SheetLister interface {
		SheetTitles(ctx context.Context, spreadsheetID string) ([]string, error)
	}

	Reader interface {
		ValuesReader
		SheetLister
	}
)
