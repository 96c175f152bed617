package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errEmptyDate = errors.New("empty date")

// NormalizePeriod maps a date cell to a YYYY-MM period. Slash dates are read
// as D/M/Y, hyphen dates as Y-M[-...]; any other non-empty text is kept as is.
// Empty text yields a synthetic period that cycles months by rowIndex.
func NormalizePeriod(text string, rowIndex, fallbackYear int) string {
	parse := func(s string) (string, error) { return parsePeriod(s, fallbackYear) }
	return ParseWithDefault(text, parse, FallbackPeriod(rowIndex, fallbackYear))
}

// FallbackPeriod is the period assigned to rows without a date.
func FallbackPeriod(rowIndex, year int) string {
	if rowIndex < 0 {
		rowIndex = -rowIndex
	}
	return fmt.Sprintf("%04d-%02d", year, rowIndex%12+1)
}

func parsePeriod(text string, fallbackYear int) (string, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return "", errEmptyDate
	}
	switch {
	case strings.Contains(s, "/"):
		parts := strings.Split(s, "/")
		month := ""
		if len(parts) > 1 {
			month = strings.TrimSpace(parts[1])
		}
		year := strconv.Itoa(fallbackYear)
		if len(parts) > 2 {
			if y := strings.TrimSpace(parts[2]); y != "" {
				year = expandYear(y)
			}
		}
		return year + "-" + zeroPad(month), nil
	case strings.Contains(s, "-"):
		parts := strings.Split(s, "-")
		if len(parts) >= 2 {
			return strings.TrimSpace(parts[0]) + "-" + zeroPad(strings.TrimSpace(parts[1])), nil
		}
		return s, nil
	default:
		return s, nil
	}
}

// expandYear reads two-digit years as 20YY; a trailing time part is dropped.
func expandYear(y string) string {
	if i := strings.IndexAny(y, " T"); i > 0 {
		y = y[:i]
	}
	if len(y) == 2 {
		if _, err := strconv.Atoi(y); err == nil {
			return "20" + y
		}
	}
	return y
}

func zeroPad(s string) string {
	for len(s) < 2 {
		s = "0" + s
	}
	return s
}

// IsPeriod reports whether s has the canonical YYYY-MM shape.
func IsPeriod(s string) bool {
	if len(s) != 7 || s[4] != '-' {
		return false
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil || y < 1 {
		return false
	}
	m, err := strconv.Atoi(s[5:])
	return err == nil && m >= 1 && m <= 12
}
