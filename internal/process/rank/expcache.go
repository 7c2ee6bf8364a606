package rank

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tickwatch/tickwatch/internal/oracle"
	"github.com/tickwatch/tickwatch/internal/platform/observability"
)

const sweepInterval = 10 * time.Minute

type cacheEntry struct {
	result    oracle.ExplanationResult
	expiresAt time.Time
}

// ExplanationCache memoizes generated explanations by (event id, sorted
// holdings) with a fixed TTL. Entries expire on read; a periodic sweep
// evicts what nobody reads. When full, the oldest entry is evicted.
type ExplanationCache struct {
	mu       sync.RWMutex
	entries  map[string]cacheEntry
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

func NewExplanationCache(ttl time.Duration, capacity int) *ExplanationCache {
	return &ExplanationCache{
		entries:  make(map[string]cacheEntry),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

// Key builds the cache key from the event id and the holdings set.
// Holdings are sorted so the key is insensitive to input order.
func Key(eventID string, holdings []string) string {
	sorted := make([]string, len(holdings))
	copy(sorted, holdings)
	sort.Strings(sorted)

	return eventID + "|" + strings.Join(sorted, ",")
}

func (c *ExplanationCache) Get(key string) (oracle.ExplanationResult, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		observability.ExplanationCacheMisses.Inc()
		return oracle.ExplanationResult{}, false
	}

	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()

		observability.ExplanationCacheMisses.Inc()

		return oracle.ExplanationResult{}, false
	}

	observability.ExplanationCacheHits.Inc()

	return entry.result, true
}

// Set stores a result. Writes are idempotent overwrites of their own
// key.
func (c *ExplanationCache) Set(key string, result oracle.ExplanationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.capacity {
		if _, exists := c.entries[key]; !exists {
			c.evictOldestLocked()
		}
	}

	c.entries[key] = cacheEntry{result: result, expiresAt: c.now().Add(c.ttl)}
}

func (c *ExplanationCache) evictOldestLocked() {
	var (
		oldestKey string
		oldest    time.Time
	)

	for k, e := range c.entries {
		if oldestKey == "" || e.expiresAt.Before(oldest) {
			oldestKey = k
			oldest = e.expiresAt
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// StartSweeping evicts expired entries in the background until the
// context is cancelled.
func (c *ExplanationCache) StartSweeping(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()
}

func (c *ExplanationCache) sweep() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

func (c *ExplanationCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
