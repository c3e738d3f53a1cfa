package kv

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore is an in-process Store backed by a TTL cache.
//
// Suitable for tests and single-node deployments only: entries are not
// visible to other processes, so multi-instance deployments must use
// PGStore instead.
type MemoryStore struct {
	cache *ttlcache.Cache[string, []byte]
}

// NewMemoryStore creates an in-process TTL store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		// Touch-on-hit is disabled: session TTLs are absolute, reading a
		// session must not extend its lifetime.
		cache: ttlcache.New(
			ttlcache.WithDisableTouchOnHit[string, []byte](),
		),
	}
}

// Put stores value under key with the given TTL.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.cache.Set(key, value, ttl)
	return nil
}

// Get returns the value for key, or ErrNotFound if missing or expired.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	item := s.cache.Get(key)
	if item == nil || item.IsExpired() {
		return nil, ErrNotFound
	}
	return item.Value(), nil
}

// Delete removes key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

// Sweep removes expired entries and reports how many were reclaimed.
func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	// Len() already excludes expired items, so a before/after diff is
	// always zero. Count evictions instead; unsubscribing waits for the
	// callbacks to finish, so the count is settled before returning.
	var removed atomic.Int64
	unsubscribe := s.cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, _ *ttlcache.Item[string, []byte]) {
		if reason == ttlcache.EvictionReasonExpired {
			removed.Add(1)
		}
	})
	s.cache.DeleteExpired()
	unsubscribe()
	return int(removed.Load()), nil
}
