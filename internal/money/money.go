// Package money formats and parses integer minor-unit amounts.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const DefaultCurrency = "USD"

// Currencies whose minor unit is the major unit. Everything else uses two
// decimal places.
var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "ISK": {}, "JPY": {}, "KMF": {}, "KRW": {},
	"PYG": {}, "RWF": {}, "UGX": {}, "VND": {}, "VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

// NormalizeCurrency upper-cases a currency code, falling back to the default.
func NormalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency
	}
	return code
}

func Decimals(currency string) int32 {
	if _, ok := zeroDecimalCurrencies[NormalizeCurrency(currency)]; ok {
		return 0
	}
	return 2
}

// Format renders minor units as a fixed-point major-unit string, e.g. 350 USD -> "3.50".
func Format(cents int64, currency string) string {
	places := Decimals(currency)
	return decimal.New(cents, -places).StringFixed(places)
}

// FormatWithCode is Format followed by the currency code.
func FormatWithCode(cents int64, currency string) string {
	return Format(cents, currency) + " " + NormalizeCurrency(currency)
}

// Parse converts a major-unit string into minor units. More fractional
// digits than the currency allows is an error rather than a rounding.
func Parse(raw, currency string) (int64, error) {
	value := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if value == "" {
		return 0, fmt.Errorf("amount is empty")
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	minor := amount.Shift(Decimals(currency))
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has too many decimal places for %s", raw, NormalizeCurrency(currency))
	}
	return minor.IntPart(), nil
}

// Input ceilings. A line of MaxQuantity units at MaxCents each still fits in an int64.
const (
	MaxCents    int64 = 1_000_000_000_000
	MaxQuantity       = 100_000
)

// LineTotal is quantity times unit price. Callers keep both within the ceilings above.
func LineTotal(quantity int, unitCents int64) int64 {
	return int64(quantity) * unitCents
}
