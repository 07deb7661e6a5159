package money

import (
	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a provider does not report one.
const DefaultCurrency = "GBP"

// Format renders minor units with the currency's symbol and separators,
// e.g. 123456 GBP → "£1,234.56".
func Format(minor int64, currency string) string {
	if currency == "" {
		currency = DefaultCurrency
	}
	return gomoney.New(minor, currency).Display()
}

// FormatMajor renders a major-unit decimal the same way as Format.
func FormatMajor(amount decimal.Decimal, currency string) string {
	return Format(ToMinorUnits(amount), currency)
}
