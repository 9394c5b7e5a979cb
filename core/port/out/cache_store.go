// Package out declares the outbound capability interfaces the cache core
// depends on. Concrete collaborators live under adapter/out/cache/*.
package out

import (
	"context"
	"time"
)

// ChangeResult reports whether an L2 modifying operation actually changed
// state, and the TTL the coordinator should mirror into L1.
type ChangeResult struct {
	Changed   bool
	ExpiresAt *time.Time // nil means no expiration
	Count     int        // used by list/remove-many operations to report affected count
}

// DistributedStore is the L2 tier: the source of truth for the hybrid
// cache. Out of scope for this repository per spec §1 — this interface is
// the contract concrete adapters (Redis, Postgres, Mongo) implement.
type DistributedStore interface {
	Get(ctx context.Context, key string) (value []byte, found bool, isNull bool, err error)
	GetMany(ctx context.Context, keys []string) (map[string]StoredValue, error)

	Set(ctx context.Context, key string, value []byte, isNull bool, ttl time.Duration, onlyIfAbsent, onlyIfPresent bool) (ChangeResult, error)
	ReplaceIfEqual(ctx context.Context, key string, expected []byte, value []byte, ttl time.Duration) (ChangeResult, error)

	Remove(ctx context.Context, key string) (ChangeResult, error)
	RemoveIfEqual(ctx context.Context, key string, expected []byte) (ChangeResult, error)
	RemoveMany(ctx context.Context, keys []string) (ChangeResult, error)
	RemoveByPrefix(ctx context.Context, prefix string) (ChangeResult, error)
	RemoveAll(ctx context.Context) (ChangeResult, error)

	Increment(ctx context.Context, key string, delta int64, ttl time.Duration, hasTTL bool) (newValue int64, result ChangeResult, err error)
	IncrementFloat(ctx context.Context, key string, delta float64, ttl time.Duration, hasTTL bool) (newValue float64, result ChangeResult, err error)

	SetIfHigher(ctx context.Context, key string, value float64, ttl time.Duration) (difference float64, result ChangeResult, err error)
	SetIfLower(ctx context.Context, key string, value float64, ttl time.Duration) (difference float64, result ChangeResult, err error)

	ListAdd(ctx context.Context, key string, items [][]byte, ttl time.Duration) (added int, result ChangeResult, err error)
	ListRemove(ctx context.Context, key string, items [][]byte) (removed int, result ChangeResult, err error)

	GetExpiration(ctx context.Context, key string) (ttl time.Duration, hasTTL bool, err error)
	SetExpiration(ctx context.Context, key string, ttl time.Duration) error

	Exists(ctx context.Context, key string) (bool, error)
}

// StoredValue is the per-key result of a GetMany call.
type StoredValue struct {
	Value     []byte
	IsNull    bool
	ExpiresAt *time.Time
}

// InvalidationBus is the pub/sub transport the coordinator uses to tell
// peer instances their L1 entries are stale. Out of scope per spec §1.
type InvalidationBus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, handler func(payload []byte)) (cancel func(), err error)
}

// Serializer is the binary codec Typed[T] uses for values and, optionally,
// Sizer's fallback byte-size estimate. The coordinator encodes
// invalidation messages with goccy/go-json directly, not through it.
// Out of scope per spec §1.
type Serializer interface {
	Serialize(value any) ([]byte, error)
	Deserialize(data []byte, out any) error
}

// TimeSource is an injectable monotonic clock, out of scope per spec §1.
type TimeSource interface {
	Now() time.Time
}

// LockProvider is named by spec §9's DI wiring note but is out of scope:
// no cache operation in this repo calls it. It is declared so an
// embedding application can coordinate distributed mutations alongside
// the cache without the cache needing to know about locks.
type LockProvider interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}
