// Package core provides money parsing and handling utilities.
//
// Amounts are decimal values. Text read back from a spreadsheet may carry
// currency symbols, thousands separators or a decimal comma, so parsing is
// lenient; formatting always uses two fixed decimals.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// AmountTolerance is the absolute tolerance used when matching amounts.
var AmountTolerance = decimal.New(1, -2)

// ParseAmount converts amount text to a decimal.
//
// Examples:
//
//	ParseAmount("12.34")     -> 12.34
//	ParseAmount("12,34")     -> 12.34
//	ParseAmount("$1,234.50") -> 1234.50
//	ParseAmount("1.234,56")  -> 1234.56
//	ParseAmount("-20")       -> -20
func ParseAmount(s string) (decimal.Decimal, error) {
	raw := s
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		// accounting format
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsDigit(r), r == '.', r == ',', r == '-', r == '+':
			return r
		case unicode.IsSpace(r), unicode.Is(unicode.Sc, r), r == '\'':
			return -1
		}
		return r
	}, s)
	s = normalizeSeparators(s)
	if s == "" {
		return decimal.Zero, invalid("amount", raw, ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, invalid("amount", raw, ErrInvalidAmount)
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

// normalizeSeparators resolves "," and "." into a plain decimal string.
// With both present the last one is the decimal separator and the other
// groups thousands; a decimal separator seen twice makes the value invalid.
// A lone comma followed by one or two digits is a decimal comma; any other
// commas group thousands.
func normalizeSeparators(s string) string {
	lastComma, lastDot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case lastComma < 0:
		return s
	case lastDot >= 0:
		dec, group := ".", ","
		if lastComma > lastDot {
			dec, group = ",", "."
		}
		s = strings.ReplaceAll(s, group, "")
		if strings.Count(s, dec) > 1 {
			return ""
		}
		return strings.Replace(s, dec, ".", 1)
	case strings.Count(s, ",") == 1:
		if frac := len(s) - lastComma - 1; frac >= 1 && frac <= 2 {
			return s[:lastComma] + "." + s[lastComma+1:]
		}
	}
	return strings.ReplaceAll(s, ",", "")
}

// FormatAmount renders an amount the way it is written to the ledger.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// AmountsMatch reports whether a and b differ by at most AmountTolerance.
func AmountsMatch(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(AmountTolerance)
}
