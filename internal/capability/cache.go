package capability

import (
	"sync"

	"github.com/hszk-dev/gocompress/internal/domain/model"
)

// ResultCache stores capability verdicts keyed by target.
type ResultCache interface {
	Get(key string) (model.CapabilityResult, bool)
	Set(key string, result model.CapabilityResult)
	Clear()
}

type memoryCache struct {
	mu      sync.RWMutex
	results map[string]model.CapabilityResult
}

// Compile-time verification that memoryCache implements ResultCache.
var _ ResultCache = (*memoryCache)(nil)

// NewMemoryCache returns a process-local ResultCache.
func NewMemoryCache() ResultCache {
	return &memoryCache{results: make(map[string]model.CapabilityResult)}
}

func (c *memoryCache) Get(key string) (model.CapabilityResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result, ok := c.results[key]
	return result, ok
}

func (c *memoryCache) Set(key string, result model.CapabilityResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[key] = result
}

func (c *memoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.results)
}
