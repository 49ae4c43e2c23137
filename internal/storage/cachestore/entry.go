package cachestore

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/skinsync/internal/domain"
)

// Store is the cache contract the synchronizers depend on.
type Store interface {
	Get(kind domain.CacheKind, key string) ([]byte, time.Time, error)
	Put(kind domain.CacheKind, key string, value any) error
	Invalidate(kind domain.CacheKind, key string) error
	InvalidatePrefix(kind domain.CacheKind, prefix string) error
	Has(kind domain.CacheKind, key string) bool
}

// GetEntry decodes the cached value for key into a typed entry.
func GetEntry[T any](s Store, kind domain.CacheKind, key string) (domain.CacheEntry[T], error) {
	var entry domain.CacheEntry[T]

	payload, storedAt, err := s.Get(kind, key)
	if err != nil {
		return entry, err
	}
	if err := json.Unmarshal(payload, &entry.Value); err != nil {
		return entry, errors.Wrapf(err, "decode %s cache entry %s", kind, key)
	}
	entry.StoredAt = storedAt
	return entry, nil
}

// PutEntry stores value under key.
func PutEntry[T any](s Store, kind domain.CacheKind, key string, value T) error {
	return s.Put(kind, key, value)
}

// FreshEntry returns the entry only when it is younger than ttl at now.
func FreshEntry[T any](s Store, kind domain.CacheKind, key string, ttl time.Duration, now time.Time) (domain.CacheEntry[T], bool) {
	entry, err := GetEntry[T](s, kind, key)
	if err != nil {
		return entry, false
	}
	if entry.Age(now) >= ttl {
		return entry, false
	}
	return entry, true
}
