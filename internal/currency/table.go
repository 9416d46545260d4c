// Package currency converts base-currency amounts for display using a
// periodically refreshed exchange-rate table.
package currency

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Table is a snapshot of exchange rates relative to Base
type Table struct {
	Base      string             `json:"base"`
	Rates     map[string]float64 `json:"rates"`
	FetchedAt time.Time          `json:"fetched_at,omitempty"`
}

// DefaultTable is used until the first successful fetch
func DefaultTable() Table {
	return Table{
		Base: "THB",
		Rates: map[string]float64{
			"THB": 1,
			"USD": 0.03,
			"EUR": 0.025,
		},
	}
}

// Rate returns the multiplier for code, or 1 when the table has no entry
func (t Table) Rate(code string) float64 {
	if r, ok := t.Rates[strings.ToUpper(code)]; ok && r > 0 {
		return r
	}
	return 1
}

// Has reports whether the table carries a rate for code
func (t Table) Has(code string) bool {
	_, ok := t.Rates[strings.ToUpper(code)]
	return ok
}

// Convert returns amount expressed in code. Unknown codes are treated as the
// base currency.
func Convert(amount float64, code string, t Table) float64 {
	return amount * t.Rate(code)
}

// Round rounds amount to two decimal places
func Round(amount float64) decimal.Decimal {
	return decimal.NewFromFloat(amount).Round(2)
}

// Currency describes how a currency is presented
type Currency struct {
	Code   string `json:"code"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Currencies lists the display currencies offered by the dashboard
var Currencies = []Currency{
	{Code: "THB", Symbol: "฿", Name: "Thai Baht"},
	{Code: "USD", Symbol: "$", Name: "US Dollar"},
	{Code: "EUR", Symbol: "€", Name: "Euro"},
}

// Lookup returns display metadata for code, falling back to the code itself
func Lookup(code string) Currency {
	code = strings.ToUpper(code)
	for _, c := range Currencies {
		if c.Code == code {
			return c
		}
	}
	return Currency{Code: code, Symbol: code, Name: code}
}

// Format renders amount with the currency symbol and two decimals
func Format(amount float64, code string) string {
	return Lookup(code).Symbol + Round(amount).StringFixed(2)
}
