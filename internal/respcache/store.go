package respcache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// DefaultTTL bounds how long a cached read may be served.
const DefaultTTL = 5 * time.Minute

// Store is the cache contract shared by the memory and redis backends.
// Implementations swallow their own faults: any backend error behaves as
// a miss (or a no-op for writes) and must never reach the caller.
type Store interface {
	// Get returns the cached value, treating expired entries as absent.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores value for ttl, overwriting any existing entry.
	// A non-positive ttl falls back to the store default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	// Delete removes one key, reporting how many entries were removed.
	Delete(ctx context.Context, key string) int
	// DeletePattern removes every key matching the glob pattern and
	// reports the count.
	DeletePattern(ctx context.Context, pattern string) int
	// Clear drops everything.
	Clear(ctx context.Context)
	// Stats returns running counters since process start.
	Stats() Stats
}

// Stats carries the running cache counters.
type Stats struct {
	Hits    uint64
	Misses  uint64
	Sets    uint64
	Deletes uint64
}

// HitRate reports the hit percentage formatted to two decimals, e.g.
// "75.00%".
func (s Stats) HitRate() string {
	total := s.Hits + s.Misses
	if total == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(s.Hits)/float64(total)*100)
}

// counters is embedded by both backends.
type counters struct {
	hits    atomic.Uint64
	misses  atomic.Uint64
	sets    atomic.Uint64
	deletes atomic.Uint64
}

func (c *counters) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Sets:    c.sets.Load(),
		Deletes: c.deletes.Load(),
	}
}
