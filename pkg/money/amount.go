package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MinorUnitExponent is the number of decimal places between major and minor
// units for every currency this tool handles (GBP, EUR, USD).
const MinorUnitExponent = 2

// ToMinorUnits converts a major-unit amount to integer minor units.
// Rounding is half away from zero: 12.345 → 1235, -12.345 → -1235.
// This is the only place fractional currency gets truncated.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(MinorUnitExponent).Round(0).IntPart()
}

// FromMinorUnits converts integer minor units back to a major-unit decimal.
// E.g., 4200 → 42.00
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -MinorUnitExponent)
}

// ParseMajor parses a human-readable major-unit string ("10.50", "-3") into a decimal.
func ParseMajor(amountStr string) (decimal.Decimal, error) {
	if amountStr == "" {
		return decimal.Zero, fmt.Errorf("amount is required")
	}
	d, err := decimal.NewFromString(amountStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount format: %w", err)
	}
	return d, nil
}

// AbsMinor returns the absolute value of a minor-unit amount.
func AbsMinor(minor int64) int64 {
	if minor < 0 {
		return -minor
	}
	return minor
}
