package domain

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency currency the remote API quotes prices in.
const DefaultCurrency = "$"

// PriceStatus tells a concrete price apart from a sentinel.
type PriceStatus string

const (
	// PriceAvailable concrete numeric price.
	PriceAvailable PriceStatus = "available"
	// PriceUnavailable price could not be obtained.
	PriceUnavailable PriceStatus = "unavailable"
	// PricePending price has not been fetched yet.
	PricePending PriceStatus = "pending"
)

// knownSymbols ordered longest first so that "¥JPY" wins over "¥".
var knownSymbols = []string{"¥JPY", "¥CNY", "₽", "€", "$"}

// Price single priced value or a sentinel.
type Price struct {
	// Amount numeric value, zero for sentinels.
	Amount decimal.Decimal `json:"amount"`
	// Currency currency symbol, e.g. "$" or "₽".
	Currency string `json:"currency"`
	// Status available or sentinel.
	Status PriceStatus `json:"status"`
}

// NewPrice builds an available price.
func NewPrice(amount decimal.Decimal, currency string) Price {
	if currency == "" {
		currency = DefaultCurrency
	}
	return Price{Amount: amount, Currency: currency, Status: PriceAvailable}
}

// Unavailable returns the sentinel for a price that could not be obtained.
func Unavailable() Price {
	return Price{Status: PriceUnavailable}
}

// Pending returns the sentinel for a price that was not fetched yet.
func Pending() Price {
	return Price{Status: PricePending}
}

// IsAvailable reports whether the price carries a concrete value.
func (p Price) IsAvailable() bool {
	return p.Status == PriceAvailable
}

// String renders the price for logs.
func (p Price) String() string {
	switch p.Status {
	case PriceUnavailable:
		return "N/A"
	case PricePending:
		return "pending"
	}
	return p.Amount.StringFixed(2) + p.Currency
}

// ParsePrice converts a remote price representation into a Price.
// Strings like "$1.23", "1,234.50₽" or "12.30 €" are accepted; empty values and "N/A" yield Unavailable.
// When no currency symbol is present fallbackCurrency is used.
// A comma is a thousands separator for dollar amounts or when a dot is present ("$1,234", "1,234.50₽"),
// otherwise it is the decimal separator ("1,23₽").
func ParsePrice(raw string, fallbackCurrency string) Price {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "N/A") || strings.EqualFold(raw, "null") {
		return Unavailable()
	}

	currency := fallbackCurrency
	for _, sym := range knownSymbols {
		if strings.Contains(raw, sym) {
			currency = sym
			raw = strings.ReplaceAll(raw, sym, "")
			break
		}
	}

	commaIsDecimal := currency != "$" && !strings.Contains(raw, ".")

	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == ',' && commaIsDecimal:
			b.WriteRune('.')
		}
	}

	amount, err := decimal.NewFromString(b.String())
	if err != nil {
		return Unavailable()
	}

	return NewPrice(amount, currency)
}

// RemotePrice decodes a JSON price field that may be a string, a number or null.
type RemotePrice struct {
	Price
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *RemotePrice) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		r.Price = Unavailable()
		return nil
	}

	// cached form written by MarshalJSON of the embedded Price
	if len(data) > 0 && data[0] == '{' {
		return json.Unmarshal(data, &r.Price)
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.Price = ParsePrice(s, DefaultCurrency)
		return nil
	}

	var d decimal.Decimal
	if err := json.Unmarshal(data, &d); err != nil {
		r.Price = Unavailable()
		return nil
	}
	r.Price = NewPrice(d, DefaultCurrency)
	return nil
}

// PriceQuote prices of one item on the tracked marketplaces.
type PriceQuote struct {
	// Steam primary marketplace price.
	Steam Price `json:"steam_price"`
	// Market secondary marketplace price (market.csgo.com / market.dota2.net).
	Market Price `json:"market_price"`
	// LisSkins aggregator price.
	LisSkins Price `json:"lis_skins_price"`
}

// UnavailableQuote returns a quote with every field set to the Unavailable sentinel.
func UnavailableQuote() PriceQuote {
	return PriceQuote{Steam: Unavailable(), Market: Unavailable(), LisSkins: Unavailable()}
}

// IsUnavailable reports whether no field carries a concrete price.
func (q PriceQuote) IsUnavailable() bool {
	return !q.Steam.IsAvailable() && !q.Market.IsAvailable() && !q.LisSkins.IsAvailable()
}

// Lowest returns the wire name of the cheapest available field.
// Fields are compared in Steam, Market, LisSkins order so ties resolve to the earlier one.
func (q PriceQuote) Lowest() (string, bool) {
	order := []struct {
		name  string
		price Price
	}{
		{"steam_price", q.Steam},
		{"market_price", q.Market},
		{"lis_skins_price", q.LisSkins},
	}

	name, found := "", false
	var best decimal.Decimal
	for _, f := range order {
		if !f.price.IsAvailable() {
			continue
		}
		if !found || f.price.Amount.LessThan(best) {
			name, best, found = f.name, f.price.Amount, true
		}
	}
	return name, found
}
