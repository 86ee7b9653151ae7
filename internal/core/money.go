// Package core provides money parsing and handling utilities.
//
// Amounts are stored as plain JSON numbers but all arithmetic runs on
// decimal values to keep the statutory-rate multiplications exact.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a user-entered monetary amount. It accepts both
// dot (12.34) and comma (12,34) decimal separators.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParsePositiveAmount parses an amount that must be strictly positive,
// e.g. the monthly base amount configured at registration.
func ParsePositiveAmount(s string) (decimal.Decimal, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.Sign() <= 0 {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Float converts a decimal to the float64 representation used on the
// wire and in stored JSON.
func Float(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
