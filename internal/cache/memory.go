package cache

import (
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryCache is an in-memory LRU cache whose entries expire after a TTL
type MemoryCache[V any] struct {
	lru *expirable.LRU[string, V]
}

// NewMemoryCache creates a cache holding at most size entries.
// A zero ttl keeps entries until they are evicted by size.
func NewMemoryCache[V any](size int, ttl time.Duration) (*MemoryCache[V], error) {
	if size <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	return &MemoryCache[V]{lru: expirable.NewLRU[string, V](size, nil, ttl)}, nil
}

// Get returns the value stored under key unless it expired
func (mc *MemoryCache[V]) Get(key string) (V, bool) {
	return mc.lru.Get(key)
}

// Set stores value under key, restarting its TTL
func (mc *MemoryCache[V]) Set(key string, value V) {
	mc.lru.Add(key, value)
}

// Remove deletes a key from the cache
func (mc *MemoryCache[V]) Remove(key string) {
	mc.lru.Remove(key)
}

// Len returns the number of live entries
func (mc *MemoryCache[V]) Len() int {
	return mc.lru.Len()
}

// Close drops every entry
func (mc *MemoryCache[V]) Close() {
	mc.lru.Purge()
}

// NoopCache stores nothing; it stands in when caching is disabled
type NoopCache[V any] struct{}

// NewNoopCache creates a new no-op cache
func NewNoopCache[V any]() *NoopCache[V] {
	return &NoopCache[V]{}
}

// Get always misses
func (NoopCache[V]) Get(string) (V, bool) {
	var zero V
	return zero, false
}

// Set does nothing
func (NoopCache[V]) Set(string, V) {}

// Close does nothing
func (NoopCache[V]) Close() {}
