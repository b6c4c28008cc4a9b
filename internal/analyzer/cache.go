package analyzer

import (
	"sync"

	"github.com/sablesearch/sable-search/internal/pkg/hash"
)

// analysisCache caches analyses keyed by (normalized text, context
// fingerprint) with oldest-key eviction.
type analysisCache struct {
	mu      sync.RWMutex
	entries map[string]*Analysis
	order   []string
	maxSize int
}

func newAnalysisCache(maxSize int) *analysisCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &analysisCache{
		entries: make(map[string]*Analysis),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
	}
}

func cacheKeyFor(normalized, fingerprint string) string {
	return hash.CacheKey(normalized, fingerprint)
}

func (c *analysisCache) get(key string) (*Analysis, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.entries[key]
	return a, ok
}

func (c *analysisCache) set(key string, a *Analysis) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.entries[key] = a
		return
	}

	for len(c.entries) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = a
	c.order = append(c.order, key)
}

func (c *analysisCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
