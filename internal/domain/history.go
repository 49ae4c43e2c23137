package domain

import (
	"encoding/json"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// HistoryPoint single observed price.
type HistoryPoint struct {
	// Date observation date as reported by the market, e.g. "Mar 01 2024 01: +0".
	Date string `json:"date"`
	// Price observed price in DefaultCurrency.
	Price decimal.Decimal `json:"price"`
}

// History observed prices in ascending date order. Cached entries never change.
type History []HistoryPoint

// Last returns the most recent point.
func (h History) Last() (HistoryPoint, bool) {
	if len(h) == 0 {
		return HistoryPoint{}, false
	}
	return h[len(h)-1], true
}

// UnmarshalJSON accepts both the remote [[date, price], ...] pairs and the cached object form.
func (p *HistoryPoint) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) < 2 {
			return errors.Errorf("history point: expected [date, price], got %d elements", len(pair))
		}
		if err := json.Unmarshal(pair[0], &p.Date); err != nil {
			return errors.Wrap(err, "history point date")
		}
		var price RemotePrice
		if err := json.Unmarshal(pair[1], &price); err != nil {
			return errors.Wrap(err, "history point price")
		}
		p.Price = price.Amount
		return nil
	}

	type plain HistoryPoint
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = HistoryPoint(v)
	return nil
}
