// Package cache provides the cache service abstraction shared by the SI and
// APP roles plus the coordinator that layers role-namespaced bookkeeping on
// top of it. The cache is a performance layer, never a source of truth.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"einvoice-analytics/internal/config"
	apperrors "einvoice-analytics/internal/errors"
)

// Service is the cache collaborator contract. Get returns (nil, false, nil)
// on a miss; an error only means the backend itself failed.
type Service interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	HealthCheck(ctx context.Context) error
}

// memoryEntry is one TTL-bound in-memory value
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is a TTL map used in tests and as the fallback backend
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

// Get returns the value for key if present and unexpired
func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores a value; ttl <= 0 means no expiry
func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

// Delete removes a key
func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// HealthCheck always succeeds for the in-memory backend
func (m *MemoryCache) HealthCheck(_ context.Context) error {
	return nil
}

// Sweep drops expired entries; called by the cleanup loop
func (m *MemoryCache) Sweep() int {
	now := time.Now()
	removed := 0
	m.mu.Lock()
	for key, entry := range m.entries {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(m.entries, key)
			removed++
		}
	}
	m.mu.Unlock()
	return removed
}

// RedisCache is the Redis-backed cache service
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(cfg config.CacheConfig) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisCache{client: rdb}, nil
}

// Get returns the value for key, distinguishing miss from backend failure
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.NewDependencyUnavailable("cache", "redis", err)
	}
	return value, true, nil
}

// Set stores a value with TTL
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return apperrors.NewDependencyUnavailable("cache", "redis", err)
	}
	return nil
}

// Delete removes a key
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return apperrors.NewDependencyUnavailable("cache", "redis", err)
	}
	return nil
}

// HealthCheck pings the backend
func (r *RedisCache) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return apperrors.NewDependencyUnavailable("cache", "redis", err)
	}
	return nil
}

// Close releases the Redis connection pool
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// NewService builds the configured cache backend
func NewService(cfg config.CacheConfig) (Service, error) {
	if cfg.Backend == "redis" {
		return NewRedisCache(cfg)
	}
	return NewMemoryCache(), nil
}

// GetJSON fetches and unmarshals a cached JSON value
func GetJSON(ctx context.Context, svc Service, key string, out any) (bool, error) {
	data, ok, err := svc.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	return true, nil
}

// SetJSON marshals and stores a JSON value
func SetJSON(ctx context.Context, svc Service, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache entry %s: %w", key, err)
	}
	return svc.Set(ctx, key, data, ttl)
}
