package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Config holds cache configuration.
type Config struct {
	// MemorySize is the number of entries kept in the memory layer.
	MemorySize int

	// TTL is how long metadata stays valid.
	TTL time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		MemorySize: 256,
		TTL:        10 * time.Minute,
	}
}

// Manager handles caching operations with a memory layer and an optional
// Redis backend.
type Manager struct {
	memory *lru.Cache
	redis  *redis.Client
	ttl    time.Duration
}

// NewManager creates a new cache manager. redisClient may be nil.
func NewManager(redisClient *redis.Client, cfg Config) (*Manager, error) {
	defaults := DefaultConfig()
	if cfg.MemorySize <= 0 {
		cfg.MemorySize = defaults.MemorySize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}

	memory, err := lru.New(cfg.MemorySize)
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}

	return &Manager{
		memory: memory,
		redis:  redisClient,
		ttl:    cfg.TTL,
	}, nil
}

// TTL returns the lifetime of new entries.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	cacheKey := key.String()

	if v, ok := m.memory.Get(cacheKey); ok {
		entry := v.(*Entry)
		if !entry.IsExpired() {
			CacheHits.WithLabelValues("memory").Inc()
			return entry, nil
		}
		m.memory.Remove(cacheKey)
		CacheEntries.WithLabelValues("memory").Set(float64(m.memory.Len()))
	}

	if m.redis == nil {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	data, err := m.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	m.storeMemory(cacheKey, &entry)
	return &entry, nil
}

// Set stores a cache entry in every layer.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	cacheKey := key.String()
	m.storeMemory(cacheKey, entry)

	if m.redis == nil {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, cacheKey, data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a cache entry from every layer.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	cacheKey := key.String()
	m.memory.Remove(cacheKey)
	CacheEntries.WithLabelValues("memory").Set(float64(m.memory.Len()))

	if m.redis == nil {
		return nil
	}

	if err := m.redis.Del(ctx, cacheKey).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// Purge empties the memory layer. Redis entries expire by TTL.
func (m *Manager) Purge() {
	m.memory.Purge()
	CacheEntries.WithLabelValues("memory").Set(0)
}

// Remember decodes the cached value for key into out. On a miss it calls
// load, caches the result and decodes it into out. Cache failures fall
// through to load; load errors are returned unchanged and nothing is stored.
func (m *Manager) Remember(ctx context.Context, key Key, out any, load func(ctx context.Context) (any, error)) error {
	if entry, err := m.Get(ctx, key); err == nil {
		if err := json.Unmarshal(entry.Data, out); err == nil {
			return nil
		}
		CacheErrors.WithLabelValues("decode").Inc()
		_ = m.Delete(ctx, key)
	}

	value, err := load(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cached value: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode cached value: %w", err)
	}

	// A failed store is not fatal; the value is already in out.
	_ = m.Set(ctx, key, NewEntry(data, m.ttl))
	return nil
}

func (m *Manager) storeMemory(cacheKey string, entry *Entry) {
	m.memory.Add(cacheKey, entry)
	CacheEntries.WithLabelValues("memory").Set(float64(m.memory.Len()))
}
