package pricer

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/skinsync/internal/clients"
	"github.com/vadiminshakov/skinsync/internal/domain"
	"github.com/vadiminshakov/skinsync/internal/storage/cachestore"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// PriceClient provides current quotes from the remote API.
type PriceClient interface {
	Price(ctx context.Context, item domain.Item, forceRefresh bool) (domain.PriceQuote, error)
}

// Synchronizer keeps the price namespace of the cache in sync with the remote API.
type Synchronizer struct {
	client PriceClient
	cache  cachestore.Store
	group  singleflight.Group
	l      *zap.Logger
}

// NewSynchronizer creates a price synchronizer.
func NewSynchronizer(l *zap.Logger, client PriceClient, cache cachestore.Store) *Synchronizer {
	return &Synchronizer{client: client, cache: cache, l: l}
}

// FetchPrice returns the quote of an item.
//
// With useCache set and no forced refresh a cached quote is served without a network call.
// On 429 any cached quote is served as a fallback. Any other failure stores and returns
// the Unavailable quote. Only ErrNotAuthenticated is returned as an error.
func (s *Synchronizer) FetchPrice(ctx context.Context, item domain.Item, useCache, forceRefresh bool) (domain.Result[domain.PriceQuote], error) {
	key := domain.PriceKey(item)

	if useCache && !forceRefresh {
		if entry, err := cachestore.GetEntry[domain.PriceQuote](s.cache, domain.CacheKindPrice, key); err == nil {
			return domain.Result[domain.PriceQuote]{Value: entry.Value, Source: domain.SourceCache}, nil
		}
	}

	flightKey := key
	if forceRefresh {
		flightKey += ":force"
	}

	v, err, _ := s.group.Do(flightKey, func() (any, error) {
		return s.fetch(ctx, item, key, forceRefresh)
	})
	if err != nil {
		return domain.Result[domain.PriceQuote]{}, err
	}
	return v.(domain.Result[domain.PriceQuote]), nil
}

func (s *Synchronizer) fetch(ctx context.Context, item domain.Item, key string, forceRefresh bool) (domain.Result[domain.PriceQuote], error) {
	l := s.l.With(zap.String("item", key))

	quote, err := s.client.Price(ctx, item, forceRefresh)
	if err == nil {
		if perr := cachestore.PutEntry(s.cache, domain.CacheKindPrice, key, quote); perr != nil {
			l.Error("failed to cache price", zap.Error(perr))
		}
		return domain.Result[domain.PriceQuote]{Value: quote, Source: domain.SourceNetwork}, nil
	}

	switch {
	case errors.Is(err, clients.ErrNotAuthenticated):
		return domain.Result[domain.PriceQuote]{}, err
	case errors.Is(err, clients.ErrRateLimited):
		if entry, cerr := cachestore.GetEntry[domain.PriceQuote](s.cache, domain.CacheKindPrice, key); cerr == nil {
			l.Warn("price request rate limited, serving cached quote", zap.Time("stored_at", entry.StoredAt))
			return domain.Result[domain.PriceQuote]{Value: entry.Value, Source: domain.SourceFallback}, nil
		}
	}

	l.Warn("price unavailable", zap.Error(err))
	unavailable := domain.UnavailableQuote()
	if perr := cachestore.PutEntry(s.cache, domain.CacheKindPrice, key, unavailable); perr != nil {
		l.Error("failed to cache unavailable price", zap.Error(perr))
	}
	return domain.Result[domain.PriceQuote]{Value: unavailable, Source: domain.SourceSentinel}, nil
}
