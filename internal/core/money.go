// Package core provides money parsing and formatting utilities.
//
// Amounts are kept as decimals and only turned into currency minor units
// when they are rendered for display.
package core

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrencyCode is used when no currency preference has been stored.
const DefaultCurrencyCode = money.USD

// Currency is the display currency preference.
type Currency struct {
	Code string `json:"code"`
}

// NewCurrency normalises code and falls back to DefaultCurrencyCode for
// codes go-money does not know.
func NewCurrency(code string) Currency {
	code = strings.ToUpper(strings.TrimSpace(code))
	if money.GetCurrency(code) == nil {
		code = DefaultCurrencyCode
	}
	return Currency{Code: code}
}

// IsKnown reports whether the code is a currency go-money can format.
func (c Currency) IsKnown() bool {
	return money.GetCurrency(c.Code) != nil
}

// Symbol returns the currency grapheme, e.g. "$" or "€".
func (c Currency) Symbol() string {
	if cur := money.GetCurrency(c.Code); cur != nil {
		return cur.Grapheme
	}
	return c.Code
}

// FormatAmount renders amount in the given currency, e.g. "$1,234.56".
// Amounts are rounded half-up to the currency's minor unit.
func FormatAmount(amount decimal.Decimal, currency Currency) string {
	cur := money.GetCurrency(currency.Code)
	if cur == nil {
		cur = money.GetCurrency(DefaultCurrencyCode)
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}

// ParseAmount converts a decimal string to an amount with two decimals.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. The result is always positive.
// Returns ErrInvalidAmount for invalid formats, negative values, or zero amounts.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("12.345") -> 12.35, nil (rounds up)
//	ParseAmount("12.344") -> 12.34, nil
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	if !isASCIIDigits(intPart) || !isASCIIDigits(fracPart) {
		return decimal.Zero, ErrInvalidAmount
	}
	// Keep the amount representable in int64 cents
	if len(strings.TrimLeft(intPart, "0")) > 16 {
		return decimal.Zero, ErrInvalidAmount
	}
	if len(fracPart) > 3 {
		fracPart = fracPart[:3]
	}
	d, err := decimal.NewFromString(intPart + "." + fracPart + "0")
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

func isASCIIDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
