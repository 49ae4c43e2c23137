package domain

import (
	"fmt"
	"time"
)

// CacheKind namespace of cached data.
type CacheKind string

const (
	CacheKindPrice      CacheKind = "price"
	CacheKindHistory    CacheKind = "history"
	CacheKindPrediction CacheKind = "prediction"
)

// PredictionTTL age after which a cached prediction is treated as a miss.
const PredictionTTL = 24 * time.Hour

// IsValid checks if the kind is a known namespace.
func (k CacheKind) IsValid() bool {
	return k == CacheKindPrice || k == CacheKindHistory || k == CacheKindPrediction
}

// CacheEntry cached value with its insertion time.
type CacheEntry[T any] struct {
	Value    T         `json:"value"`
	StoredAt time.Time `json:"stored_at"`
}

// Age returns how old the entry is at now.
func (e CacheEntry[T]) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// PriceKey price:{appid}:{market_hash_name} key without the kind prefix.
func PriceKey(item Item) string {
	return item.Key()
}

// HistoryKey history:{appid}:{market_hash_name} key without the kind prefix.
func HistoryKey(item Item) string {
	return item.Key()
}

// PredictionKey prediction:{appid}:{market_hash_name}:{horizon} key without the kind prefix.
func PredictionKey(item Item, horizon int) string {
	return fmt.Sprintf("%s:%d", item.Key(), horizon)
}

// Source where a synchronizer result came from.
type Source string

const (
	// SourceCache served from the cache without a network call.
	SourceCache Source = "cache"
	// SourceNetwork fetched from the remote API.
	SourceNetwork Source = "network"
	// SourceFallback remote API rate limited the call, cached value served instead.
	SourceFallback Source = "fallback"
	// SourceSentinel fetch failed and a placeholder was produced.
	SourceSentinel Source = "sentinel"
)

// Fetched reports whether producing the result involved a network call.
func (s Source) Fetched() bool {
	return s != SourceCache
}

// Result value produced by a synchronizer together with its source.
type Result[T any] struct {
	Value  T
	Source Source
}
