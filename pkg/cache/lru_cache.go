package cache

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 500

// LRUCache is a thread-safe, strictly least-recently-used cache keyed by string.
// A hit promotes the entry; inserting into a full cache evicts the least
// recently accessed entry first.
type LRUCache[V any] struct {
	capacity int
	items    *lru.Cache[string, V]
}

// NewLRUCache creates a new LRU cache holding at most capacity entries.
func NewLRUCache[V any](capacity int) *LRUCache[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	items, err := lru.New[string, V](capacity)
	if err != nil {
		// lru.New only fails on a non-positive size, which is ruled out above.
		panic(err)
	}
	return &LRUCache[V]{capacity: capacity, items: items}
}

// Get retrieves a value and marks it most recently used.
func (c *LRUCache[V]) Get(key string) (V, bool) {
	return c.items.Get(key)
}

// Peek retrieves a value without touching its recency.
func (c *LRUCache[V]) Peek(key string) (V, bool) {
	return c.items.Peek(key)
}

// Set adds or updates a value, evicting the oldest entry when full.
// It reports whether an eviction happened.
func (c *LRUCache[V]) Set(key string, value V) bool {
	return c.items.Add(key, value)
}

// Clear removes all entries from the cache.
func (c *LRUCache[V]) Clear() {
	c.items.Purge()
}

// Len returns the number of items in the cache.
func (c *LRUCache[V]) Len() int {
	return c.items.Len()
}

// Capacity returns the maximum number of entries.
func (c *LRUCache[V]) Capacity() int {
	return c.capacity
}

// Keys returns the keys from least to most recently used.
func (c *LRUCache[V]) Keys() []string {
	return c.items.Keys()
}

// HashKey creates a fixed-size cache key from arbitrary text.
func HashKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
