// Package cachestore provides the durable local key-value cache shared by the synchronizers.
package cachestore

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/skinsync/internal/domain"
)

const (
	DefaultDir   = "./wal/cache"
	segmentLimit = 1000
	// maxSegments is large on purpose: gowal drops the oldest segments past this limit
	// and cached history must survive for the life of the cache.
	maxSegments = 1 << 20

	putKeyPrefix        = "put:"
	deleteKeyPrefix     = "del:"
	deletePrefixKeyHead = "delprefix:"
)

// ErrNotFound no entry for the key.
var ErrNotFound = errors.New("cache entry not found")

type record struct {
	payload  []byte
	storedAt time.Time
}

type envelope struct {
	StoredAt time.Time       `json:"stored_at"`
	Value    json.RawMessage `json:"value,omitempty"`
}

// WALStore is a cache namespaced by domain.CacheKind. Every write is appended to a WAL in
// sync disk mode before it becomes visible; the WAL is replayed into memory on open.
type WALStore struct {
	wal   *gowal.Wal
	mu    sync.RWMutex
	index map[string]record
	now   func() time.Time
}

// Option configures a WALStore.
type Option func(*WALStore)

// WithClock overrides the clock used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(s *WALStore) {
		s.now = now
	}
}

// NewWALStore opens (or creates) a cache under dir and replays its log.
func NewWALStore(dir string, opts ...Option) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "cache_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init cache WAL")
	}

	s := &WALStore{
		wal:   wal,
		index: make(map[string]record),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.replay(); err != nil {
		_ = wal.Close()
		return nil, err
	}

	return s, nil
}

func (s *WALStore) replay() error {
	for msg := range s.wal.Iterator() {
		switch {
		case strings.HasPrefix(msg.Key, putKeyPrefix):
			var env envelope
			if err := json.Unmarshal(msg.Value, &env); err != nil {
				return errors.Wrapf(err, "decode cache record %s", msg.Key)
			}
			s.index[strings.TrimPrefix(msg.Key, putKeyPrefix)] = record{payload: env.Value, storedAt: env.StoredAt}
		case strings.HasPrefix(msg.Key, deleteKeyPrefix):
			delete(s.index, strings.TrimPrefix(msg.Key, deleteKeyPrefix))
		case strings.HasPrefix(msg.Key, deletePrefixKeyHead):
			s.dropPrefix(strings.TrimPrefix(msg.Key, deletePrefixKeyHead))
		}
	}
	return nil
}

// StorageKey renders the namespaced key, e.g. price:730:AK-47 | Redline (Field-Tested).
func StorageKey(kind domain.CacheKind, key string) string {
	return string(kind) + ":" + key
}

// Get returns the raw JSON payload and its insertion time.
func (s *WALStore) Get(kind domain.CacheKind, key string) ([]byte, time.Time, error) {
	if s == nil || s.wal == nil {
		return nil, time.Time{}, errors.New("cache store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.index[StorageKey(kind, key)]
	if !ok {
		return nil, time.Time{}, ErrNotFound
	}
	return rec.payload, rec.storedAt, nil
}

// Has reports whether an entry exists for the key.
func (s *WALStore) Has(kind domain.CacheKind, key string) bool {
	_, _, err := s.Get(kind, key)
	return err == nil
}

// Put stores the JSON encoding of value. The write is durable when Put returns.
func (s *WALStore) Put(kind domain.CacheKind, key string, value any) error {
	if s == nil || s.wal == nil {
		return errors.New("cache store is not initialized")
	}
	if !kind.IsValid() {
		return errors.Errorf("unknown cache kind %q", kind)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "marshal %s cache value", kind)
	}

	storageKey := StorageKey(kind, key)

	s.mu.Lock()
	defer s.mu.Unlock()

	storedAt := s.now()
	payload, err := json.Marshal(envelope{StoredAt: storedAt, Value: raw})
	if err != nil {
		return errors.Wrap(err, "marshal cache envelope")
	}

	if err := s.append(putKeyPrefix+storageKey, payload); err != nil {
		return err
	}
	s.index[storageKey] = record{payload: raw, storedAt: storedAt}
	return nil
}

// Invalidate removes a single key.
func (s *WALStore) Invalidate(kind domain.CacheKind, key string) error {
	if s == nil || s.wal == nil {
		return errors.New("cache store is not initialized")
	}

	storageKey := StorageKey(kind, key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[storageKey]; !ok {
		return nil
	}
	if err := s.append(deleteKeyPrefix+storageKey, s.tombstone()); err != nil {
		return err
	}
	delete(s.index, storageKey)
	return nil
}

// InvalidatePrefix removes every key of kind starting with prefix. An empty prefix clears the namespace.
func (s *WALStore) InvalidatePrefix(kind domain.CacheKind, prefix string) error {
	if s == nil || s.wal == nil {
		return errors.New("cache store is not initialized")
	}

	storagePrefix := StorageKey(kind, prefix)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.append(deletePrefixKeyHead+storagePrefix, s.tombstone()); err != nil {
		return err
	}
	s.dropPrefix(storagePrefix)
	return nil
}

// Keys returns the keys of kind without the kind prefix.
func (s *WALStore) Keys(kind domain.CacheKind) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	head := string(kind) + ":"
	keys := make([]string, 0)
	for k := range s.index {
		if strings.HasPrefix(k, head) {
			keys = append(keys, strings.TrimPrefix(k, head))
		}
	}
	return keys
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("cache store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}

// tombstone payload of a delete record; the key carries the meaning.
func (s *WALStore) tombstone() []byte {
	payload, _ := json.Marshal(envelope{StoredAt: s.now()})
	return payload
}

// append must be called with mu held.
func (s *WALStore) append(key string, payload []byte) error {
	nextIndex := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(nextIndex, key, payload); err != nil {
		return errors.Wrapf(err, "write cache record %s", key)
	}
	return nil
}

func (s *WALStore) dropPrefix(prefix string) {
	for k := range s.index {
		if strings.HasPrefix(k, prefix) {
			delete(s.index, k)
		}
	}
}
