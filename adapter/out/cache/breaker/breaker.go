// Package breaker wraps a DistributedStore with github.com/sony/gobreaker
// so a degraded L2 fails fast instead of letting every public cache
// operation block on a dialing timeout, per SPEC_FULL.md §4.3a.
package breaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"hybridcache/core/port/out"
	"hybridcache/pkg/cacheerr"
)

// Store decorates an out.DistributedStore with a circuit breaker: three
// consecutive failures opens the breaker for a cooldown window, after
// which a single half-open probe is allowed through.
type Store struct {
	inner out.DistributedStore
	cb    *gobreaker.CircuitBreaker
}

// New builds a breaker-wrapped store named name (used in the breaker's
// state-change log line).
func New(inner out.DistributedStore, name string) *Store {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &Store{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

func run[T any](s *Store, op string, fn func() (T, error)) (T, error) {
	result, err := s.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return zero, cacheerr.L2Unavailable(op, err)
		}
		return zero, err
	}
	return result.(T), nil
}

type getResult struct {
	value  []byte
	found  bool
	isNull bool
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, bool, error) {
	r, err := run(s, "get", func() (getResult, error) {
		value, found, isNull, err := s.inner.Get(ctx, key)
		return getResult{value, found, isNull}, err
	})
	return r.value, r.found, r.isNull, err
}

func (s *Store) GetMany(ctx context.Context, keys []string) (map[string]out.StoredValue, error) {
	return run(s, "getMany", func() (map[string]out.StoredValue, error) { return s.inner.GetMany(ctx, keys) })
}

func (s *Store) Set(ctx context.Context, key string, value []byte, isNull bool, ttl time.Duration, onlyIfAbsent, onlyIfPresent bool) (out.ChangeResult, error) {
	return run(s, "set", func() (out.ChangeResult, error) {
		return s.inner.Set(ctx, key, value, isNull, ttl, onlyIfAbsent, onlyIfPresent)
	})
}

func (s *Store) ReplaceIfEqual(ctx context.Context, key string, expected, value []byte, ttl time.Duration) (out.ChangeResult, error) {
	return run(s, "replaceIfEqual", func() (out.ChangeResult, error) {
		return s.inner.ReplaceIfEqual(ctx, key, expected, value, ttl)
	})
}

func (s *Store) Remove(ctx context.Context, key string) (out.ChangeResult, error) {
	return run(s, "remove", func() (out.ChangeResult, error) { return s.inner.Remove(ctx, key) })
}

func (s *Store) RemoveIfEqual(ctx context.Context, key string, expected []byte) (out.ChangeResult, error) {
	return run(s, "removeIfEqual", func() (out.ChangeResult, error) { return s.inner.RemoveIfEqual(ctx, key, expected) })
}

func (s *Store) RemoveMany(ctx context.Context, keys []string) (out.ChangeResult, error) {
	return run(s, "removeMany", func() (out.ChangeResult, error) { return s.inner.RemoveMany(ctx, keys) })
}

func (s *Store) RemoveByPrefix(ctx context.Context, prefix string) (out.ChangeResult, error) {
	return run(s, "removeByPrefix", func() (out.ChangeResult, error) { return s.inner.RemoveByPrefix(ctx, prefix) })
}

func (s *Store) RemoveAll(ctx context.Context) (out.ChangeResult, error) {
	return run(s, "removeAll", func() (out.ChangeResult, error) { return s.inner.RemoveAll(ctx) })
}

type incResult struct {
	value  int64
	result out.ChangeResult
}

func (s *Store) Increment(ctx context.Context, key string, delta int64, ttl time.Duration, hasTTL bool) (int64, out.ChangeResult, error) {
	r, err := run(s, "increment", func() (incResult, error) {
		v, res, err := s.inner.Increment(ctx, key, delta, ttl, hasTTL)
		return incResult{v, res}, err
	})
	return r.value, r.result, err
}

type incFloatResult struct {
	value  float64
	result out.ChangeResult
}

func (s *Store) IncrementFloat(ctx context.Context, key string, delta float64, ttl time.Duration, hasTTL bool) (float64, out.ChangeResult, error) {
	r, err := run(s, "incrementFloat", func() (incFloatResult, error) {
		v, res, err := s.inner.IncrementFloat(ctx, key, delta, ttl, hasTTL)
		return incFloatResult{v, res}, err
	})
	return r.value, r.result, err
}

type floatCompareResult struct {
	diff   float64
	result out.ChangeResult
}

func (s *Store) SetIfHigher(ctx context.Context, key string, value float64, ttl time.Duration) (float64, out.ChangeResult, error) {
	r, err := run(s, "setIfHigher", func() (floatCompareResult, error) {
		diff, res, err := s.inner.SetIfHigher(ctx, key, value, ttl)
		return floatCompareResult{diff, res}, err
	})
	return r.diff, r.result, err
}

func (s *Store) SetIfLower(ctx context.Context, key string, value float64, ttl time.Duration) (float64, out.ChangeResult, error) {
	r, err := run(s, "setIfLower", func() (floatCompareResult, error) {
		diff, res, err := s.inner.SetIfLower(ctx, key, value, ttl)
		return floatCompareResult{diff, res}, err
	})
	return r.diff, r.result, err
}

type listResult struct {
	count  int
	result out.ChangeResult
}

func (s *Store) ListAdd(ctx context.Context, key string, items [][]byte, ttl time.Duration) (int, out.ChangeResult, error) {
	r, err := run(s, "listAdd", func() (listResult, error) {
		n, res, err := s.inner.ListAdd(ctx, key, items, ttl)
		return listResult{n, res}, err
	})
	return r.count, r.result, err
}

func (s *Store) ListRemove(ctx context.Context, key string, items [][]byte) (int, out.ChangeResult, error) {
	r, err := run(s, "listRemove", func() (listResult, error) {
		n, res, err := s.inner.ListRemove(ctx, key, items)
		return listResult{n, res}, err
	})
	return r.count, r.result, err
}

type expirationResult struct {
	ttl time.Duration
	has bool
}

func (s *Store) GetExpiration(ctx context.Context, key string) (time.Duration, bool, error) {
	r, err := run(s, "getExpiration", func() (expirationResult, error) {
		ttl, has, err := s.inner.GetExpiration(ctx, key)
		return expirationResult{ttl, has}, err
	})
	return r.ttl, r.has, err
}

func (s *Store) SetExpiration(ctx context.Context, key string, ttl time.Duration) error {
	_, err := run(s, "setExpiration", func() (struct{}, error) {
		return struct{}{}, s.inner.SetExpiration(ctx, key, ttl)
	})
	return err
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	return run(s, "exists", func() (bool, error) { return s.inner.Exists(ctx, key) })
}
