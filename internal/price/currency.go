// Package price converts listing prices into the canonical coin.
package price

import (
	"fmt"
	"strings"
)

// Currency is an ISO-4217 style currency or coin code.
type Currency string

const (
	USD Currency = "USD"
	AUD Currency = "AUD"
	CAD Currency = "CAD"
	CHF Currency = "CHF"
	CNY Currency = "CNY"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
	MXN Currency = "MXN"
	NZD Currency = "NZD"
	SEK Currency = "SEK"
	XAG Currency = "XAG" // silver, troy ounce
	XAU Currency = "XAU" // gold, troy ounce

	BTC Currency = "BTC"
	ETH Currency = "ETH"
	XMR Currency = "XMR"
)

// CurrencyInfo describes a supported currency.
type CurrencyInfo struct {
	Code     Currency
	Name     string
	Sign     string
	Decimals int32
	Crypto   bool
}

var currencies = map[Currency]CurrencyInfo{
	USD: {USD, "United States Dollar", "$", 2, false},
	AUD: {AUD, "Australian Dollar", "$", 2, false},
	CAD: {CAD, "Canadian Dollar", "$", 2, false},
	CHF: {CHF, "Swiss Franc", "CHF", 2, false},
	CNY: {CNY, "Chinese Yuan", "¥", 2, false},
	EUR: {EUR, "Euro", "€", 2, false},
	GBP: {GBP, "British Pound", "£", 2, false},
	JPY: {JPY, "Japanese Yen", "¥", 0, false},
	MXN: {MXN, "Mexican Peso", "$", 2, false},
	NZD: {NZD, "New Zealand Dollar", "$", 2, false},
	SEK: {SEK, "Swedish Krona", "kr", 2, false},
	XAG: {XAG, "Silver", "XAG", 4, false},
	XAU: {XAU, "Gold", "XAU", 4, false},
	BTC: {BTC, "Bitcoin", "₿", 8, true},
	ETH: {ETH, "Ethereum", "Ξ", 18, true},
	XMR: {XMR, "Monero", "ɱ", 12, true},
}

// FiatCurrencies and CryptoCurrencies list the supported codes in a stable order.
var (
	FiatCurrencies   = []Currency{USD, AUD, CAD, CHF, CNY, EUR, GBP, JPY, MXN, NZD, SEK, XAG, XAU}
	CryptoCurrencies = []Currency{BTC, ETH, XMR}
)

// ParseCurrency normalizes s and checks it is supported.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := currencies[c]; !ok {
		return "", fmt.Errorf("unsupported currency %q", s)
	}
	return c, nil
}

// Info returns the description of c.
func (c Currency) Info() (CurrencyInfo, bool) {
	info, ok := currencies[c]
	return info, ok
}

// Supported reports whether c is a known currency.
func (c Currency) Supported() bool {
	_, ok := currencies[c]
	return ok
}

// IsCrypto reports whether c is a cryptocurrency.
func (c Currency) IsCrypto() bool {
	return currencies[c].Crypto
}

// IsFiat reports whether c is a supported fiat currency or metal.
func (c Currency) IsFiat() bool {
	info, ok := currencies[c]
	return ok && !info.Crypto
}

// Sign returns the display symbol of c.
func (c Currency) Sign() string {
	return currencies[c].Sign
}

func (c Currency) String() string {
	return string(c)
}
