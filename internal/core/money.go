// Package core turns raw spreadsheet rows into typed income/expense records,
// merges them into a monthly time series and derives dashboard statistics.
//
// Everything in this package is a pure function of its arguments. Cell parse
// failures degrade to defaults and never surface as errors; only structurally
// invalid payloads do.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var errEmptyAmount = errors.New("empty amount")

// ParseWithDefault runs parser on raw and returns def when it fails.
func ParseWithDefault[T any](raw string, parser func(string) (T, error), def T) T {
	v, err := parser(raw)
	if err != nil {
		return def
	}
	return v
}

// ParseAmount reads a loosely formatted money cell and returns its absolute
// value, or 0 when nothing numeric can be read.
//
// Examples:
//
//	ParseAmount("R$ 1.500,00") -> 1500
//	ParseAmount("-250,50")     -> 250.5
//	ParseAmount("1,234.56")    -> 1234.56
//	ParseAmount("abc")         -> 0
func ParseAmount(raw string) float64 {
	return ParseWithDefault(raw, parseDecimalAmount, 0)
}

func parseDecimalAmount(raw string) (float64, error) {
	s := normalizeNumber(raw)
	if s == "" {
		return 0, errEmptyAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.Abs().InexactFloat64(), nil
}

// normalizeNumber strips currency symbols and spaces and rewrites the number
// with a single '.' decimal separator.
func normalizeNumber(raw string) string {
	s := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' || r == '-' {
			return r
		}
		return -1
	}, raw)

	commas := strings.Count(s, ",")
	dots := strings.Count(s, ".")
	switch {
	case commas > 0 && dots > 0:
		// Whichever separator comes last is the decimal one.
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case commas == 1:
		s = strings.Replace(s, ",", ".", 1)
	case commas > 1:
		s = strings.ReplaceAll(s, ",", "")
	case dots > 1:
		s = strings.ReplaceAll(s, ".", "")
	}
	return s
}
