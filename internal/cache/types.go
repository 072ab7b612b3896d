// Package cache holds the TTL caches used for RPC results, registry data and
// NFT metadata, and the policy deciding which RPC calls are cacheable.
package cache

// Cache is a keyed value cache. MemoryCache and NoopCache implement it.
type Cache[V any] interface {
	// Get returns the value and true if found and not expired
	Get(key string) (V, bool)
	Set(key string, value V)
	// Close releases any resources held by the cache
	Close()
}
