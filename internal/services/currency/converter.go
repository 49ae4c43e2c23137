// Package currency converts prices between the display currencies using a fixed rate table.
package currency

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/skinsync/internal/domain"
)

// ErrUnknownCurrency currency symbol is not in the rate table.
var ErrUnknownCurrency = errors.New("unknown currency")

// rates units of each currency per one US dollar. Rates are static.
var rates = map[string]decimal.Decimal{
	"$":    decimal.NewFromInt(1),
	"₽":    decimal.NewFromInt(95),
	"€":    decimal.RequireFromString("0.92"),
	"¥JPY": decimal.NewFromInt(150),
	"¥CNY": decimal.RequireFromString("7.10"),
}

// Supported returns the known currency symbols sorted.
func Supported() []string {
	out := make([]string, 0, len(rates))
	for sym := range rates {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// IsSupported reports whether sym is in the rate table.
func IsSupported(sym string) bool {
	_, ok := rates[sym]
	return ok
}

// Convert returns price expressed in currency to. Sentinels pass through unchanged.
func Convert(price domain.Price, to string) (domain.Price, error) {
	if !price.IsAvailable() {
		return price, nil
	}

	from := price.Currency
	if from == "" {
		from = domain.DefaultCurrency
	}
	fromRate, ok := rates[from]
	if !ok {
		return domain.Price{}, errors.Wrapf(ErrUnknownCurrency, "from %q", from)
	}
	toRate, ok := rates[to]
	if !ok {
		return domain.Price{}, errors.Wrapf(ErrUnknownCurrency, "to %q", to)
	}

	if from == to {
		return domain.NewPrice(price.Amount, to), nil
	}

	usd := price.Amount.Div(fromRate)
	return domain.NewPrice(usd.Mul(toRate), to), nil
}

// ConvertAmount converts a bare amount between currencies.
func ConvertAmount(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	p, err := Convert(domain.NewPrice(amount, from), to)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return p.Amount, nil
}

// ConvertQuote converts every field of a quote.
func ConvertQuote(q domain.PriceQuote, to string) (domain.PriceQuote, error) {
	var err error
	if q.Steam, err = Convert(q.Steam, to); err != nil {
		return domain.PriceQuote{}, err
	}
	if q.Market, err = Convert(q.Market, to); err != nil {
		return domain.PriceQuote{}, err
	}
	if q.LisSkins, err = Convert(q.LisSkins, to); err != nil {
		return domain.PriceQuote{}, err
	}
	return q, nil
}

// ConvertHistory converts a dollar-denominated history into currency to.
func ConvertHistory(h domain.History, to string) (domain.History, error) {
	out := make(domain.History, len(h))
	for i, p := range h {
		amount, err := ConvertAmount(p.Price, domain.DefaultCurrency, to)
		if err != nil {
			return nil, err
		}
		out[i] = domain.HistoryPoint{Date: p.Date, Price: amount}
	}
	return out, nil
}

// Format renders a price rounded to two decimals with the currency symbol as suffix.
// Sentinels render as "N/A" and "pending".
func Format(price domain.Price) string {
	return price.String()
}

// ConvertPrediction converts the anchor and every predicted price. Percent changes do not depend
// on the currency and are kept.
func ConvertPrediction(p domain.Prediction, to string) (domain.Prediction, error) {
	anchor, err := Convert(p.AnchorPrice, to)
	if err != nil {
		return domain.Prediction{}, err
	}
	from := p.AnchorPrice.Currency
	if from == "" {
		from = domain.DefaultCurrency
	}

	points := make([]domain.PredictionPoint, len(p.Points))
	for i, pt := range p.Points {
		amount, err := ConvertAmount(pt.PredictedPrice, from, to)
		if err != nil {
			return domain.Prediction{}, err
		}
		pt.PredictedPrice = amount
		points[i] = pt
	}

	p.AnchorPrice = anchor
	p.Points = points
	return p, nil
}

// ConvertRecords converts current and predicted prices of recommendation records.
func ConvertRecords(records []domain.RecommendationRecord, to string) ([]domain.RecommendationRecord, error) {
	out := make([]domain.RecommendationRecord, len(records))
	for i, r := range records {
		var err error
		if r.CurrentPrice, err = Convert(r.CurrentPrice, to); err != nil {
			return nil, err
		}
		if r.PredictedPrice, err = Convert(r.PredictedPrice, to); err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}
