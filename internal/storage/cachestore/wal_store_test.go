package cachestore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/skinsync/internal/domain"
)

var testItem = domain.Item{AppID: "730", MarketHashName: "AK-47 | Redline (Field-Tested)"}

func newTestStore(t *testing.T, dir string, opts ...Option) *WALStore {
	t.Helper()
	s, err := NewWALStore(dir, opts...)
	require.NoError(t, err, "failed to open cache store")
	return s
}

func TestWALStore_PutGet(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	defer func() {
		assert.NoError(t, s.Close())
	}()

	quote := domain.PriceQuote{
		Steam:    domain.NewPrice(decimal.RequireFromString("12.5"), "$"),
		Market:   domain.Unavailable(),
		LisSkins: domain.NewPrice(decimal.RequireFromString("11"), "$"),
	}
	require.NoError(t, PutEntry(s, domain.CacheKindPrice, domain.PriceKey(testItem), quote))

	entry, err := GetEntry[domain.PriceQuote](s, domain.CacheKindPrice, domain.PriceKey(testItem))
	require.NoError(t, err)
	assert.True(t, entry.Value.Steam.Amount.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, domain.PriceUnavailable, entry.Value.Market.Status)
	assert.False(t, entry.StoredAt.IsZero())
}

func TestWALStore_LastWriteWins(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	defer s.Close()

	key := domain.PriceKey(testItem)
	require.NoError(t, s.Put(domain.CacheKindPrice, key, domain.UnavailableQuote()))
	require.NoError(t, s.Put(domain.CacheKindPrice, key, domain.PriceQuote{
		Steam: domain.NewPrice(decimal.NewFromInt(3), "$"),
	}))

	entry, err := GetEntry[domain.PriceQuote](s, domain.CacheKindPrice, key)
	require.NoError(t, err)
	assert.True(t, entry.Value.Steam.IsAvailable())
}

func TestWALStore_NamespacesAreSeparate(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	defer s.Close()

	require.NoError(t, s.Put(domain.CacheKindPrice, testItem.Key(), domain.UnavailableQuote()))

	assert.True(t, s.Has(domain.CacheKindPrice, testItem.Key()))
	assert.False(t, s.Has(domain.CacheKindHistory, testItem.Key()))

	_, _, err := s.Get(domain.CacheKindHistory, testItem.Key())
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, s.Put(domain.CacheKind("bogus"), "k", 1))
}

func TestWALStore_Invalidate(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	defer s.Close()

	other := domain.Item{AppID: "570", MarketHashName: "Inscribed Bracers"}
	require.NoError(t, s.Put(domain.CacheKindHistory, testItem.Key(), domain.History{}))
	require.NoError(t, s.Put(domain.CacheKindHistory, other.Key(), domain.History{}))
	require.NoError(t, s.Put(domain.CacheKindPrice, testItem.Key(), domain.UnavailableQuote()))

	require.NoError(t, s.Invalidate(domain.CacheKindHistory, testItem.Key()))
	assert.False(t, s.Has(domain.CacheKindHistory, testItem.Key()))
	assert.True(t, s.Has(domain.CacheKindHistory, other.Key()))

	require.NoError(t, s.InvalidatePrefix(domain.CacheKindHistory, ""))
	assert.Empty(t, s.Keys(domain.CacheKindHistory))
	assert.True(t, s.Has(domain.CacheKindPrice, testItem.Key()), "price namespace must survive history reset")

	// invalidating a missing key is a no-op
	assert.NoError(t, s.Invalidate(domain.CacheKindPrediction, "missing"))
}

func TestWALStore_InvalidatePrefixByApp(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	defer s.Close()

	dota := domain.Item{AppID: "570", MarketHashName: "Inscribed Bracers"}
	require.NoError(t, s.Put(domain.CacheKindPrediction, domain.PredictionKey(testItem, 1), 1))
	require.NoError(t, s.Put(domain.CacheKindPrediction, domain.PredictionKey(testItem, 7), 7))
	require.NoError(t, s.Put(domain.CacheKindPrediction, domain.PredictionKey(dota, 7), 7))

	require.NoError(t, s.InvalidatePrefix(domain.CacheKindPrediction, testItem.Key()+":"))
	assert.Equal(t, []string{domain.PredictionKey(dota, 7)}, s.Keys(domain.CacheKindPrediction))
}

func TestWALStore_SurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")

	s := newTestStore(t, dir)
	history := domain.History{
		{Date: "Mar 01 2024 01: +0", Price: decimal.RequireFromString("1.1")},
		{Date: "Mar 02 2024 01: +0", Price: decimal.RequireFromString("1.2")},
	}
	require.NoError(t, s.Put(domain.CacheKindHistory, testItem.Key(), history))
	require.NoError(t, s.Put(domain.CacheKindPrice, testItem.Key(), domain.UnavailableQuote()))
	require.NoError(t, s.Put(domain.CacheKindPrice, "730:other", domain.UnavailableQuote()))
	require.NoError(t, s.Invalidate(domain.CacheKindPrice, "730:other"))
	require.NoError(t, s.Close())

	s = newTestStore(t, dir)
	defer s.Close()

	entry, err := GetEntry[domain.History](s, domain.CacheKindHistory, testItem.Key())
	require.NoError(t, err)
	require.Len(t, entry.Value, 2)
	assert.True(t, entry.Value[1].Price.Equal(decimal.RequireFromString("1.2")))
	assert.True(t, s.Has(domain.CacheKindPrice, testItem.Key()))
	assert.False(t, s.Has(domain.CacheKindPrice, "730:other"), "tombstone must be replayed")

	// writes after reopen keep going
	require.NoError(t, s.Put(domain.CacheKindPrice, "730:third", domain.UnavailableQuote()))
	assert.True(t, s.Has(domain.CacheKindPrice, "730:third"))
}

func TestFreshEntry(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := newTestStore(t, t.TempDir(), WithClock(clock))
	defer s.Close()

	key := domain.PredictionKey(testItem, 7)
	require.NoError(t, s.Put(domain.CacheKindPrediction, key, domain.RawPrediction{LastKnownDate: "Mar 01 2024"}))

	entry, ok := FreshEntry[domain.RawPrediction](s, domain.CacheKindPrediction, key, domain.PredictionTTL, now.Add(23*time.Hour))
	require.True(t, ok)
	assert.Equal(t, "Mar 01 2024", entry.Value.LastKnownDate)

	_, ok = FreshEntry[domain.RawPrediction](s, domain.CacheKindPrediction, key, domain.PredictionTTL, now.Add(24*time.Hour))
	assert.False(t, ok, "entry exactly 24h old is stale")

	_, ok = FreshEntry[domain.RawPrediction](s, domain.CacheKindPrediction, "missing", domain.PredictionTTL, now)
	assert.False(t, ok)
}
