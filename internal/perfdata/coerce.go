package perfdata

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/xuri/excelize/v2"
)

// ParseVolume coerces a possibly dirty volume cell into a non-negative
// float. Empty cells yield (0, true). Cells that cannot be read as a finite
// non-negative number yield (0, false).
//
// Both "1.234.567,89" (pt-BR) and "1,234,567.89" are understood: when both
// separators appear the last one is the decimal mark; a lone comma is a
// decimal mark; repeated dots or commas are thousands separators.
func ParseVolume(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, true
	}
	switch strings.ToLower(s) {
	case "-", "nan", "null", "none", "n/a", "#n/a":
		return 0, true
	}

	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '$':
			return -1
		}
		return r
	}, s)
	s = strings.TrimPrefix(s, "R")

	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case commas == 1:
		s = strings.ReplaceAll(s, ",", ".")
	case commas > 1:
		s = strings.ReplaceAll(s, ",", "")
	case dots > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	v, err := cast.ToFloat64E(s)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

var periodLayouts = []string{
	"2006-01-02",
	"2006-01",
	"2006/01",
	"01/2006",
	"02/01/2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParsePeriod reads a year-month cell into yyyymm. It accepts 202401,
// 20240115, Excel date serials and a few textual date layouts. Anything
// else yields 0.
func ParsePeriod(raw string) int {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		if v == math.Trunc(v) {
			n := int(v)
			switch {
			case n >= 190001 && n <= 299912:
				return validYearMonth(n/100, n%100)
			case n >= 19000101 && n <= 29991231:
				return validYearMonth(n/10000, (n/100)%100)
			}
		}
		if v < 190001 {
			// Excel date serial
			t, err := excelize.ExcelDateToTime(v, false)
			if err != nil {
				return 0
			}
			return t.Year()*100 + int(t.Month())
		}
		return 0
	}

	for _, layout := range periodLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Year()*100 + int(t.Month())
		}
	}
	return 0
}

func validYearMonth(year, month int) int {
	if month < 1 || month > 12 {
		return 0
	}
	return year*100 + month
}
