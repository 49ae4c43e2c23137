package domain

import "github.com/shopspring/decimal"

const (
	// MinHorizon shortest prediction horizon in days.
	MinHorizon = 1
	// MaxHorizon longest prediction horizon in days.
	MaxHorizon = 14
	// DefaultHorizon horizon used by recommendation runs.
	DefaultHorizon = 7
)

// RawPredictionPoint one remote model output.
type RawPredictionPoint struct {
	Date           string      `json:"date"`
	PredictedPrice RemotePrice `json:"predicted_price"`
}

// RawPrediction remote model output computed from a server-side price snapshot.
type RawPrediction struct {
	// LastKnownDate date of the server-side snapshot.
	LastKnownDate string `json:"last_known_date"`
	// LastKnownPrice price the model was anchored at, possibly stale.
	LastKnownPrice RemotePrice `json:"last_known_price"`
	// Predictions one point per day ahead.
	Predictions []RawPredictionPoint `json:"predictions"`
}

// PredictionPoint prediction for one day ahead after rescaling.
type PredictionPoint struct {
	Date               string          `json:"date"`
	PredictedPrice     decimal.Decimal `json:"predicted_price"`
	PredictedPctChange decimal.Decimal `json:"predicted_pct_change"`
}

// Prediction rescaled prediction anchored at a fresh price.
type Prediction struct {
	// AnchorDate date of the remote snapshot the model used.
	AnchorDate string `json:"anchor_date"`
	// AnchorPrice freshest observed price.
	AnchorPrice Price `json:"anchor_price"`
	// AnchorSource where the anchor price came from.
	AnchorSource Source `json:"anchor_source,omitempty"`
	// Horizon number of days covered.
	Horizon int `json:"horizon"`
	// Points predictions for 1..Horizon days ahead.
	Points []PredictionPoint `json:"predictions"`
}

// Final returns the furthest prediction.
func (p Prediction) Final() (PredictionPoint, bool) {
	if len(p.Points) == 0 {
		return PredictionPoint{}, false
	}
	return p.Points[len(p.Points)-1], true
}

// ValidHorizon reports whether days is an accepted prediction horizon.
func ValidHorizon(days int) bool {
	return days >= MinHorizon && days <= MaxHorizon
}
