package cache

import (
	"context"
	"time"

	"hybridcache/core/port/out"
)

// CacheValue is the typed face of Value for callers that would rather
// work with Go values than raw bytes.
type CacheValue[T any] struct {
	State State
	Value T
}

// Found reports whether the key resolved to anything, null or not.
func (c CacheValue[T]) Found() bool {
	return c.State != StateNoValue
}

// Typed adapts a byte-oriented Cache to a specific Go type using an
// injected Serializer. It never maintains its own state; it is a thin
// marshal/unmarshal boundary in front of whichever Cache it wraps
// (MemoryStore, HybridCoordinator, WriteAwareClient, or a ScopedView of
// any of those).
type Typed[T any] struct {
	cache Cache
	ser   out.Serializer
}

// NewTyped builds a typed view over cache using ser for marshaling.
func NewTyped[T any](c Cache, ser out.Serializer) Typed[T] {
	return Typed[T]{cache: c, ser: ser}
}

func (t Typed[T]) Get(ctx context.Context, key string) (CacheValue[T], error) {
	v, err := t.cache.Get(ctx, key)
	if err != nil {
		return CacheValue[T]{}, err
	}
	return t.decode(v)
}

func (t Typed[T]) Set(ctx context.Context, key string, value T, ttl time.Duration, hasTTL bool) (bool, error) {
	data, err := t.ser.Serialize(value)
	if err != nil {
		return false, err
	}
	return t.cache.Set(ctx, key, data, false, ttl, hasTTL)
}

func (t Typed[T]) SetNull(ctx context.Context, key string, ttl time.Duration, hasTTL bool) (bool, error) {
	return t.cache.Set(ctx, key, nil, true, ttl, hasTTL)
}

func (t Typed[T]) decode(v Value) (CacheValue[T], error) {
	switch v.State {
	case StateNoValue:
		return CacheValue[T]{State: StateNoValue}, nil
	case StateNull:
		return CacheValue[T]{State: StateNull}, nil
	default:
		var out T
		if err := t.ser.Deserialize(v.Data, &out); err != nil {
			return CacheValue[T]{}, err
		}
		return CacheValue[T]{State: StateHasValue, Value: out}, nil
	}
}
