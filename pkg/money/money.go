package money

import (
	"fmt"
	"strings"
)

// zeroDecimal lists ISO 4217 currencies without a minor unit.
var zeroDecimal = map[string]struct{}{
	"JPY": {},
	"KRW": {},
	"VND": {},
	"IDR": {},
}

// Format renders minor units as a display amount, e.g. 29900 EGP -> "299.00 EGP".
//
// This function is PURE.
func Format(minor int64, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if _, ok := zeroDecimal[currency]; ok {
		return strings.TrimSpace(fmt.Sprintf("%d %s", minor, currency))
	}

	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return strings.TrimSpace(fmt.Sprintf("%s%d.%02d %s", sign, minor/100, minor%100, currency))
}
