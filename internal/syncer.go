package internal

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/skinsync/config"
	"github.com/vadiminshakov/skinsync/internal/clients"
	"github.com/vadiminshakov/skinsync/internal/domain"
	"github.com/vadiminshakov/skinsync/internal/services/history"
	"github.com/vadiminshakov/skinsync/internal/services/predictor"
	"github.com/vadiminshakov/skinsync/internal/services/pricer"
	"github.com/vadiminshakov/skinsync/internal/services/recommender"
	"github.com/vadiminshakov/skinsync/internal/services/scheduler"
	"github.com/vadiminshakov/skinsync/internal/storage/cachestore"
	"go.uber.org/zap"
)

// ItemQuote price of one item from a batch sync.
type ItemQuote struct {
	Item   domain.Item       `json:"item"`
	Quote  domain.PriceQuote `json:"quote"`
	Source domain.Source     `json:"source"`
}

// ItemHistory history of one item from a batch sync.
type ItemHistory struct {
	Item    domain.Item    `json:"item"`
	History domain.History `json:"history"`
	Source  domain.Source  `json:"source"`
}

// Syncer wires the cache, the remote client and the synchronizers together.
type Syncer struct {
	cfg    config.Config
	client *clients.MarketClient
	cache  *cachestore.WALStore

	prices    *pricer.Synchronizer
	history   *history.Synchronizer
	predictor *predictor.Adjuster
	scheduler *scheduler.Scheduler
	engine    *recommender.Engine

	l *zap.Logger
}

// NewSyncer opens the cache and builds every component from cfg.
func NewSyncer(cfg config.Config, l *zap.Logger) (*Syncer, error) {
	client, err := clients.NewMarketClient(clients.MarketConfig{
		BaseURL:       cfg.APIURL,
		Token:         cfg.Token,
		Timeout:       cfg.RequestTimeout,
		MaxRetries:    cfg.RetryMax,
		RetryInterval: cfg.RetryInitialInterval,
	}, l.Named("client"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create market client")
	}

	cache, err := cachestore.NewWALStore(cfg.CacheDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open cache")
	}

	var delay scheduler.DelayPolicy = scheduler.FixedDelay(cfg.InterItemDelay)
	if cfg.DelayPolicy == config.DelayPolicyBackoff {
		delay = scheduler.NewBackoffDelay(cfg.InterItemDelay, cfg.MaxDelay)
	}

	prices := pricer.NewSynchronizer(l.Named("prices"), client, cache)
	hist := history.NewSynchronizer(l.Named("history"), client, cache)
	adjuster := predictor.NewAdjuster(l.Named("predictor"), prices, hist, client, cache)
	sched := scheduler.New(l.Named("scheduler"), scheduler.WithDelayPolicy(delay))

	return &Syncer{
		cfg:       cfg,
		client:    client,
		cache:     cache,
		prices:    prices,
		history:   hist,
		predictor: adjuster,
		scheduler: sched,
		engine:    recommender.NewEngine(l.Named("recommender"), adjuster, client, sched),
		l:         l,
	}, nil
}

// Close flushes and closes the cache.
func (s *Syncer) Close() error {
	return s.cache.Close()
}

// Config returns the configuration the syncer was built from.
func (s *Syncer) Config() config.Config {
	return s.cfg
}

// Engine returns the recommendation engine.
func (s *Syncer) Engine() *recommender.Engine {
	return s.engine
}

// Items returns the configured items, followed by the user's favorites when enabled.
// Duplicates are dropped, first occurrence wins.
func (s *Syncer) Items(ctx context.Context) ([]domain.Item, error) {
	items := append([]domain.Item{}, s.cfg.Items...)

	if s.cfg.UseFavorites {
		favorites, err := s.client.Favorites(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load favorites")
		}
		items = append(items, favorites...)
	}

	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		if _, ok := seen[item.Key()]; ok {
			continue
		}
		seen[item.Key()] = struct{}{}
		out = append(out, item)
	}
	return out, nil
}

// Price returns the quote of one item.
func (s *Syncer) Price(ctx context.Context, item domain.Item, useCache, forceRefresh bool) (domain.Result[domain.PriceQuote], error) {
	return s.prices.FetchPrice(ctx, item, useCache, forceRefresh)
}

// History returns the price history of one item.
func (s *Syncer) History(ctx context.Context, item domain.Item) (domain.Result[domain.History], error) {
	return s.history.FetchHistory(ctx, item)
}

// Predict returns the adjusted prediction of one item.
func (s *Syncer) Predict(ctx context.Context, item domain.Item, horizon int) (domain.Result[domain.Prediction], error) {
	return s.predictor.Predict(ctx, item, horizon)
}

// Recommend runs the recommendation engine over items.
func (s *Syncer) Recommend(ctx context.Context, items []domain.Item, horizon int) (*domain.RecommendationSnapshot, error) {
	if horizon == 0 {
		horizon = s.cfg.Horizon
	}
	return s.engine.Run(ctx, items, horizon)
}

// StartRecommend claims the engine and runs it over items in the background.
// It returns recommender.ErrRunInProgress while another run is active.
func (s *Syncer) StartRecommend(ctx context.Context, items []domain.Item, horizon int) error {
	if horizon == 0 {
		horizon = s.cfg.Horizon
	}
	return s.engine.Start(ctx, items, horizon)
}

// SyncPrices walks items through the scheduler and returns their quotes in input order.
// Cached quotes are served without delay unless forceRefresh is set.
func (s *Syncer) SyncPrices(ctx context.Context, items []domain.Item, forceRefresh bool, onProgress func(scheduler.Progress)) ([]ItemQuote, error) {
	out := make([]ItemQuote, 0, len(items))

	batch := scheduler.Batch[domain.Item]{
		Items: items,
		Key:   domain.Item.Key,
		NeedsFetch: func(item domain.Item) bool {
			return forceRefresh || !s.cache.Has(domain.CacheKindPrice, domain.PriceKey(item))
		},
		Work: func(ctx context.Context, item domain.Item) (scheduler.Outcome, error) {
			res, err := s.prices.FetchPrice(ctx, item, true, forceRefresh)
			if err != nil {
				return scheduler.Outcome{Fetched: true}, err
			}
			out = append(out, ItemQuote{Item: item, Quote: res.Value, Source: res.Source})
			return scheduler.Outcome{
				Fetched:   res.Source.Fetched(),
				Throttled: res.Source == domain.SourceFallback,
			}, nil
		},
	}

	if _, err := scheduler.RunAll(ctx, s.scheduler, batch, onProgress); err != nil {
		return out, errors.Wrap(err, "price sync aborted")
	}
	return out, nil
}

// SyncHistory warms the history cache for items.
func (s *Syncer) SyncHistory(ctx context.Context, items []domain.Item, onProgress func(scheduler.Progress)) ([]ItemHistory, error) {
	out := make([]ItemHistory, 0, len(items))

	batch := scheduler.Batch[domain.Item]{
		Items: items,
		Key:   domain.Item.Key,
		NeedsFetch: func(item domain.Item) bool {
			return !s.cache.Has(domain.CacheKindHistory, domain.HistoryKey(item))
		},
		Work: func(ctx context.Context, item domain.Item) (scheduler.Outcome, error) {
			res, err := s.history.FetchHistory(ctx, item)
			if err != nil {
				return scheduler.Outcome{Fetched: true}, err
			}
			out = append(out, ItemHistory{Item: item, History: res.Value, Source: res.Source})
			return scheduler.Outcome{
				Fetched:   res.Source.Fetched(),
				Throttled: res.Source == domain.SourceFallback,
			}, nil
		},
	}

	if _, err := scheduler.RunAll(ctx, s.scheduler, batch, onProgress); err != nil {
		return out, errors.Wrap(err, "history sync aborted")
	}
	return out, nil
}

// ResetCache clears the server-side cache and the local price and history namespaces.
// Predictions are kept: they expire on their own.
func (s *Syncer) ResetCache(ctx context.Context) error {
	if err := s.client.ResetCache(ctx); err != nil {
		return err
	}
	for _, kind := range []domain.CacheKind{domain.CacheKindPrice, domain.CacheKindHistory} {
		if err := s.cache.InvalidatePrefix(kind, ""); err != nil {
			return errors.Wrapf(err, "failed to clear %s cache", kind)
		}
	}
	s.l.Info("cache reset")
	return nil
}
