package respcache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore is the in-process backend, built on ttlcache. Expired
// entries are evicted lazily on access; the janitor started by Start
// additionally sweeps them out proactively so keys that are never
// re-requested cannot pile up.
type MemoryStore struct {
	counters
	cache      *ttlcache.Cache[string, []byte]
	defaultTTL time.Duration
}

// NewMemoryStore constructs a MemoryStore. defaultTTL <= 0 falls back to
// DefaultTTL.
func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, []byte](defaultTTL),
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	return &MemoryStore{cache: cache, defaultTTL: defaultTTL}
}

// Start runs the expiry janitor until ctx is cancelled.
func (s *MemoryStore) Start(ctx context.Context) {
	go s.cache.Start()
	go func() {
		<-ctx.Done()
		s.cache.Stop()
	}()
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool) {
	item := s.cache.Get(key)
	if item == nil {
		s.misses.Add(1)
		return nil, false
	}
	s.hits.Add(1)
	return item.Value(), true
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = ttlcache.DefaultTTL
	}
	s.cache.Set(key, value, ttl)
	s.sets.Add(1)
}

func (s *MemoryStore) Delete(ctx context.Context, key string) int {
	if !s.cache.Has(key) {
		return 0
	}
	s.cache.Delete(key)
	s.deletes.Add(1)
	return 1
}

func (s *MemoryStore) DeletePattern(ctx context.Context, pattern string) int {
	removed := 0
	for _, key := range s.cache.Keys() {
		if MatchPattern(pattern, key) {
			s.cache.Delete(key)
			removed++
		}
	}
	s.deletes.Add(uint64(removed))
	return removed
}

func (s *MemoryStore) Clear(ctx context.Context) {
	s.cache.DeleteAll()
}
