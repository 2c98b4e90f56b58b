package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryOption configures the in-memory cache.
type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	maxEntries      int
	cleanupInterval time.Duration
}

// WithMemoryMaxSize caps the entry count; the least recently used entry
// is evicted when full.
func WithMemoryMaxSize(n int) MemoryOption {
	return func(c *memoryConfig) { c.maxEntries = n }
}

// WithMemoryCleanup sets how often expired entries are swept.
func WithMemoryCleanup(d time.Duration) MemoryOption {
	return func(c *memoryConfig) { c.cleanupInterval = d }
}

type memoryEntry struct {
	data     []byte
	expireAt time.Time
	lastUsed time.Time
}

func (e *memoryEntry) expired(now time.Time) bool { return now.After(e.expireAt) }

// MemoryCache implements Service in process memory. Values are stored in
// their encoded form so Get behaves identically to the Redis cache.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	maxEntries int
	janitor    *time.Ticker
}

const memoryDefaultTTL = 7 * 24 * time.Hour

// NewMemoryCache builds the cache and starts its sweep goroutine.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := memoryConfig{
		maxEntries:      1000,
		cleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	mc := &MemoryCache{
		entries:    make(map[string]*memoryEntry),
		maxEntries: cfg.maxEntries,
		janitor:    time.NewTicker(cfg.cleanupInterval),
	}
	go mc.sweep()
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	b, err := encodeCacheValue(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = memoryDefaultTTL
	}

	now := time.Now()
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if _, exists := mc.entries[key]; !exists && len(mc.entries) >= mc.maxEntries {
		mc.evictOldest()
	}
	mc.entries[key] = &memoryEntry{data: b, expireAt: now.Add(ttl), lastUsed: now}
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	now := time.Now()

	mc.mu.Lock()
	e, ok := mc.entries[key]
	if !ok || e.expired(now) {
		if ok {
			delete(mc.entries, key)
		}
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	e.lastUsed = now
	b := e.data
	mc.mu.Unlock()

	return decodeCacheValue(b, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		delete(mc.entries, k)
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	now := time.Now()
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		if e, ok := mc.entries[k]; ok && !e.expired(now) {
			return true, nil
		}
	}
	return false, nil
}

// Close stops the sweep goroutine's ticker.
func (mc *MemoryCache) Close() error {
	mc.janitor.Stop()
	return nil
}

// evictOldest removes the least recently used entry. Caller holds mu.
func (mc *MemoryCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for k, e := range mc.entries {
		if oldestKey == "" || e.lastUsed.Before(oldest) {
			oldestKey = k
			oldest = e.lastUsed
		}
	}
	if oldestKey != "" {
		delete(mc.entries, oldestKey)
	}
}

func (mc *MemoryCache) sweep() {
	for range mc.janitor.C {
		now := time.Now()
		mc.mu.Lock()
		for k, e := range mc.entries {
			if e.expired(now) {
				delete(mc.entries, k)
			}
		}
		mc.mu.Unlock()
	}
}
