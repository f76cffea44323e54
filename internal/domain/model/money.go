package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// minorExponent lists currencies whose minor unit is not 1/100.
var minorExponent = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"BHD": 3,
	"KWD": 3,
}

func exponentFor(currency string) int32 {
	if e, ok := minorExponent[strings.ToUpper(currency)]; ok {
		return e
	}
	return 2
}

// FormatMinor renders an integer minor-unit amount, e.g. 50000 INR -> "500.00".
func FormatMinor(amount int64, currency string) string {
	exp := exponentFor(currency)
	return decimal.New(amount, -exp).StringFixed(exp)
}

// FormatPrice renders amount with its currency code, e.g. "INR 500.00".
func FormatPrice(amount int64, currency string) string {
	return strings.ToUpper(currency) + " " + FormatMinor(amount, currency)
}
