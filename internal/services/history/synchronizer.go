package history

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/skinsync/internal/clients"
	"github.com/vadiminshakov/skinsync/internal/domain"
	"github.com/vadiminshakov/skinsync/internal/storage/cachestore"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// HistoryClient provides price histories from the remote API.
type HistoryClient interface {
	History(ctx context.Context, item domain.Item) (domain.History, error)
}

// Synchronizer serves price histories cache-first. Cached histories never expire.
type Synchronizer struct {
	client HistoryClient
	cache  cachestore.Store
	group  singleflight.Group
	l      *zap.Logger
}

// NewSynchronizer creates a history synchronizer.
func NewSynchronizer(l *zap.Logger, client HistoryClient, cache cachestore.Store) *Synchronizer {
	return &Synchronizer{client: client, cache: cache, l: l}
}

// FetchHistory returns the price history of an item.
// Failed fetches yield an empty history that is not cached, so the next call retries.
func (s *Synchronizer) FetchHistory(ctx context.Context, item domain.Item) (domain.Result[domain.History], error) {
	key := domain.HistoryKey(item)

	if entry, err := cachestore.GetEntry[domain.History](s.cache, domain.CacheKindHistory, key); err == nil {
		return domain.Result[domain.History]{Value: entry.Value, Source: domain.SourceCache}, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.fetch(ctx, item, key)
	})
	if err != nil {
		return domain.Result[domain.History]{}, err
	}
	return v.(domain.Result[domain.History]), nil
}

func (s *Synchronizer) fetch(ctx context.Context, item domain.Item, key string) (domain.Result[domain.History], error) {
	l := s.l.With(zap.String("item", key))

	h, err := s.client.History(ctx, item)
	if err == nil {
		if perr := cachestore.PutEntry(s.cache, domain.CacheKindHistory, key, h); perr != nil {
			l.Error("failed to cache history", zap.Error(perr))
		}
		return domain.Result[domain.History]{Value: h, Source: domain.SourceNetwork}, nil
	}

	if errors.Is(err, clients.ErrNotAuthenticated) {
		return domain.Result[domain.History]{}, err
	}

	// another caller may have filled the cache while this request was rate limited
	if errors.Is(err, clients.ErrRateLimited) {
		if entry, cerr := cachestore.GetEntry[domain.History](s.cache, domain.CacheKindHistory, key); cerr == nil {
			return domain.Result[domain.History]{Value: entry.Value, Source: domain.SourceFallback}, nil
		}
	}

	l.Warn("history unavailable", zap.Error(err))
	return domain.Result[domain.History]{Value: domain.History{}, Source: domain.SourceSentinel}, nil
}
