// Package cache implements the hybrid two-tier cache core: a bounded
// in-memory MemoryStore (L1), the HybridCoordinator that orchestrates
// L1, a distributed L2, and an invalidation bus, the L1-less
// WriteAwareClient variant, and the ScopedView key-prefix wrapper.
//
// Everything in this package is framework-free: no HTTP, no concrete
// store, bus, or serializer. Those live under adapter/out/cache/*.
package cache

import (
	"context"
	"time"
)

// Cache is the contract shared by MemoryStore, HybridCoordinator,
// WriteAwareClient, and ScopedView. A single shape lets ScopedView wrap
// any of the other three uniformly.
type Cache interface {
	Get(ctx context.Context, key string) (Value, error)
	GetMany(ctx context.Context, keys []string) (map[string]Value, error)

	Set(ctx context.Context, key string, value []byte, isNull bool, ttl time.Duration, hasTTL bool) (bool, error)
	Add(ctx context.Context, key string, value []byte, isNull bool, ttl time.Duration, hasTTL bool) (bool, error)
	Replace(ctx context.Context, key string, value []byte, isNull bool, ttl time.Duration, hasTTL bool) (bool, error)
	ReplaceIfEqual(ctx context.Context, key string, expected, value []byte, ttl time.Duration, hasTTL bool) (bool, error)

	Remove(ctx context.Context, key string) (bool, error)
	RemoveIfEqual(ctx context.Context, key string, expected []byte) (bool, error)
	RemoveMany(ctx context.Context, keys []string) (int, error)
	RemoveByPrefix(ctx context.Context, prefix string) (int, error)
	RemoveAll(ctx context.Context) (int, error)

	Increment(ctx context.Context, key string, delta int64, ttl time.Duration, hasTTL bool) (int64, error)
	IncrementFloat(ctx context.Context, key string, delta float64, ttl time.Duration, hasTTL bool) (float64, error)
	SetIfHigher(ctx context.Context, key string, value float64, ttl time.Duration, hasTTL bool) (float64, error)
	SetIfLower(ctx context.Context, key string, value float64, ttl time.Duration, hasTTL bool) (float64, error)

	ListAdd(ctx context.Context, key string, items [][]byte, ttl time.Duration, hasTTL bool) (int, error)
	ListRemove(ctx context.Context, key string, items [][]byte) (int, error)

	GetExpiration(ctx context.Context, key string) (time.Duration, bool, error)
	SetExpiration(ctx context.Context, key string, ttl time.Duration) error
}
