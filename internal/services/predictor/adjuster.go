package predictor

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/skinsync/internal/clients"
	"github.com/vadiminshakov/skinsync/internal/domain"
	"github.com/vadiminshakov/skinsync/internal/storage/cachestore"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// PriceFetcher supplies fresh anchor prices.
type PriceFetcher interface {
	FetchPrice(ctx context.Context, item domain.Item, useCache, forceRefresh bool) (domain.Result[domain.PriceQuote], error)
}

// HistoryFetcher warms the history cache the remote model reads.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, item domain.Item) (domain.Result[domain.History], error)
}

// PredictionClient provides raw model output.
type PredictionClient interface {
	PredictPrice(ctx context.Context, item domain.Item, horizon int) (domain.RawPrediction, error)
}

// Adjuster rescales remote predictions to the freshest observed price.
type Adjuster struct {
	prices  PriceFetcher
	history HistoryFetcher
	client  PredictionClient
	cache   cachestore.Store
	ttl     time.Duration
	now     func() time.Time
	l       *zap.Logger
}

// Option configures an Adjuster.
type Option func(*Adjuster)

// WithTTL overrides the age after which a cached raw prediction is refetched.
func WithTTL(ttl time.Duration) Option {
	return func(a *Adjuster) { a.ttl = ttl }
}

// WithClock overrides the clock used for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(a *Adjuster) { a.now = now }
}

// NewAdjuster creates a prediction adjuster.
func NewAdjuster(l *zap.Logger, prices PriceFetcher, history HistoryFetcher, client PredictionClient, cache cachestore.Store, opts ...Option) *Adjuster {
	a := &Adjuster{
		prices:  prices,
		history: history,
		client:  client,
		cache:   cache,
		ttl:     domain.PredictionTTL,
		now:     time.Now,
		l:       l,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Predict returns the prediction for horizon days ahead anchored at a fresh price.
// Source reports whether the raw prediction came from the cache; the anchor is always fetched.
func (a *Adjuster) Predict(ctx context.Context, item domain.Item, horizon int) (domain.Result[domain.Prediction], error) {
	if !domain.ValidHorizon(horizon) {
		return domain.Result[domain.Prediction]{}, errors.Wrapf(domain.ErrInvalidHorizon, "horizon %d not in %d..%d",
			horizon, domain.MinHorizon, domain.MaxHorizon)
	}

	if _, err := a.history.FetchHistory(ctx, item); err != nil {
		return domain.Result[domain.Prediction]{}, err
	}

	anchor, err := a.prices.FetchPrice(ctx, item, false, true)
	if err != nil {
		return domain.Result[domain.Prediction]{}, err
	}
	if !anchor.Value.Steam.IsAvailable() {
		return domain.Result[domain.Prediction]{}, errors.Wrapf(domain.ErrPredictionUnavailable,
			"no current price for %s", item.Key())
	}

	raw, source, err := a.raw(ctx, item, horizon)
	if err != nil {
		return domain.Result[domain.Prediction]{}, err
	}

	prediction := Rescale(raw, anchor.Value.Steam, horizon)
	prediction.AnchorSource = anchor.Source

	return domain.Result[domain.Prediction]{Value: prediction, Source: source}, nil
}

func (a *Adjuster) raw(ctx context.Context, item domain.Item, horizon int) (domain.RawPrediction, domain.Source, error) {
	key := domain.PredictionKey(item, horizon)

	if entry, ok := cachestore.FreshEntry[domain.RawPrediction](a.cache, domain.CacheKindPrediction, key, a.ttl, a.now()); ok {
		return entry.Value, domain.SourceCache, nil
	}

	raw, err := a.client.PredictPrice(ctx, item, horizon)
	if err != nil {
		if errors.Is(err, clients.ErrNotAuthenticated) {
			return domain.RawPrediction{}, "", err
		}
		return domain.RawPrediction{}, "", errors.Wrapf(domain.ErrPredictionUnavailable, "%s: %v", item.Key(), err)
	}
	if len(raw.Predictions) == 0 {
		return domain.RawPrediction{}, "", errors.Wrapf(domain.ErrPredictionUnavailable, "%s: empty model output", item.Key())
	}

	if err := cachestore.PutEntry(a.cache, domain.CacheKindPrediction, key, raw); err != nil {
		a.l.Error("failed to cache prediction", zap.String("item", key), zap.Error(err))
	}
	return raw, domain.SourceNetwork, nil
}

// Rescale anchors raw model output at price.
// Every predicted value is multiplied by price/lastKnown, the factor is 1 when lastKnown is zero.
func Rescale(raw domain.RawPrediction, anchor domain.Price, horizon int) domain.Prediction {
	factor := decimal.NewFromInt(1)
	if lastKnown := raw.LastKnownPrice.Amount; raw.LastKnownPrice.IsAvailable() && !lastKnown.IsZero() {
		factor = anchor.Amount.Div(lastKnown)
	}

	points := make([]domain.PredictionPoint, 0, len(raw.Predictions))
	for _, p := range raw.Predictions {
		adjusted := p.PredictedPrice.Amount.Mul(factor)
		pct := decimal.Zero
		if !anchor.Amount.IsZero() {
			pct = adjusted.Sub(anchor.Amount).Div(anchor.Amount).Mul(hundred)
		}
		points = append(points, domain.PredictionPoint{
			Date:               p.Date,
			PredictedPrice:     adjusted,
			PredictedPctChange: pct,
		})
	}

	return domain.Prediction{
		AnchorDate:  raw.LastKnownDate,
		AnchorPrice: anchor,
		Horizon:     horizon,
		Points:      points,
	}
}
