package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DigestSize maximum number of records per digest side.
const DigestSize = 5

// Advice qualitative recommendation derived from the predicted change.
type Advice string

const (
	AdviceBuy    Advice = "buy"
	AdviceAvoid  Advice = "avoid"
	AdviceStable Advice = "stable"
)

// RecommendationRecord evaluation of one item.
type RecommendationRecord struct {
	Item Item `json:"item"`
	// CurrentPrice anchor price at evaluation time.
	CurrentPrice Price `json:"current_price"`
	// PredictedPrice adjusted price at the end of the horizon.
	PredictedPrice Price `json:"predicted_price"`
	// OverallChange percent change between CurrentPrice and PredictedPrice.
	OverallChange decimal.Decimal `json:"overall_change"`
}

// Advice maps the change sign to a recommendation.
func (r RecommendationRecord) Advice() Advice {
	switch r.OverallChange.Sign() {
	case 1:
		return AdviceBuy
	case -1:
		return AdviceAvoid
	default:
		return AdviceStable
	}
}

// Digest short list shown by default.
type Digest struct {
	TopGainers []RecommendationRecord `json:"top_gainers"`
	TopLosers  []RecommendationRecord `json:"top_losers"`
}

// Records returns gainers followed by losers.
func (d Digest) Records() []RecommendationRecord {
	out := make([]RecommendationRecord, 0, len(d.TopGainers)+len(d.TopLosers))
	out = append(out, d.TopGainers...)
	return append(out, d.TopLosers...)
}

// RecommendationSnapshot result of one recommendation run.
type RecommendationSnapshot struct {
	ID        string                 `json:"id,omitempty"`
	Horizon   int                    `json:"horizon,omitempty"`
	Digest    Digest                 `json:"digest"`
	All       []RecommendationRecord `json:"all"`
	Timestamp time.Time              `json:"timestamp"`
}
