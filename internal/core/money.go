// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from user input
// and the rounding used for amortized installment amounts.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user-entered amount to a positive decimal.
//
// Both thousands separators and a decimal comma are accepted. A comma is
// read as a thousands separator when a dot is also present or when every
// comma-separated group after the first has exactly three digits.
//
// Examples:
//
//	ParseAmount("100,000")  -> 100000
//	ParseAmount("1,234.5")  -> 1234.5
//	ParseAmount("12,34")    -> 12.34
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") || isThousandsGrouped(s) {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ",", ".")
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

func isThousandsGrouped(s string) bool {
	groups := strings.Split(s, ",")
	if len(groups[0]) == 0 || len(groups[0]) > 3 {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

// RoundUnits rounds to whole currency units, half away from zero.
func RoundUnits(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}
