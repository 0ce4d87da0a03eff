package ingest

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	symbolPriceRe = regexp.MustCompile(`([$€£])\s?(\d+(?:[.,]\d{1,2})?)|(\d+(?:[.,]\d{1,2})?)\s?([$€£])`)
	codePriceRe   = regexp.MustCompile(`(?i)\b(usd|eur|gbp)\s?(\d+(?:[.,]\d{1,2})?)|\b(\d+(?:[.,]\d{1,2})?)\s?(usd|eur|gbp)\b`)
)

var currencySymbols = map[string]string{"$": "USD", "€": "EUR", "£": "GBP"}

// ParsePrice extracts the first price mentioned in text. A comma is read as
// the decimal separator ("12,99 €").
func ParsePrice(text string) (decimal.Decimal, string, bool) {
	if m := symbolPriceRe.FindStringSubmatch(text); m != nil {
		symbol, amount := m[1], m[2]
		if symbol == "" {
			symbol, amount = m[4], m[3]
		}
		if d, ok := parseAmount(amount); ok {
			return d, currencySymbols[symbol], true
		}
	}
	if m := codePriceRe.FindStringSubmatch(text); m != nil {
		code, amount := m[1], m[2]
		if code == "" {
			code, amount = m[4], m[3]
		}
		if d, ok := parseAmount(amount); ok {
			return d, strings.ToUpper(code), true
		}
	}
	return decimal.Decimal{}, "", false
}

// parseAmount reads "19.90" or "19,90" as a positive decimal.
func parseAmount(s string) (decimal.Decimal, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Decimal{}, false
	}
	return d, true
}
