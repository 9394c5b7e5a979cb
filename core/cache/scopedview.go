package cache

import (
	"context"
	"time"
)

// ScopedView wraps any Cache with a key prefix, so unrelated callers can
// share one coordinator/store without colliding on key names. Scopes
// compose: ScopedView(ScopedView(c, "a"), "b") behaves identically to
// ScopedView(c, "a:b").
type ScopedView struct {
	inner  Cache
	prefix string
}

// NewScopedView builds a view of inner where every key is namespaced
// under prefix+":". An empty prefix is a no-op wrapper.
func NewScopedView(inner Cache, prefix string) *ScopedView {
	if sv, ok := inner.(*ScopedView); ok {
		return &ScopedView{inner: sv.inner, prefix: sv.qualify(prefix)}
	}
	return &ScopedView{inner: inner, prefix: prefix}
}

func (s *ScopedView) qualify(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *ScopedView) qualifyAll(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = s.qualify(k)
	}
	return out
}

func (s *ScopedView) Get(ctx context.Context, key string) (Value, error) {
	return s.inner.Get(ctx, s.qualify(key))
}

func (s *ScopedView) GetMany(ctx context.Context, keys []string) (map[string]Value, error) {
	qualified := s.qualifyAll(keys)
	result, err := s.inner.GetMany(ctx, qualified)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Value, len(result))
	for i, q := range qualified {
		if v, ok := result[q]; ok {
			out[keys[i]] = v
		}
	}
	return out, nil
}

func (s *ScopedView) Set(ctx context.Context, key string, value []byte, isNull bool, ttl time.Duration, hasTTL bool) (bool, error) {
	return s.inner.Set(ctx, s.qualify(key), value, isNull, ttl, hasTTL)
}

func (s *ScopedView) Add(ctx context.Context, key string, value []byte, isNull bool, ttl time.Duration, hasTTL bool) (bool, error) {
	return s.inner.Add(ctx, s.qualify(key), value, isNull, ttl, hasTTL)
}

func (s *ScopedView) Replace(ctx context.Context, key string, value []byte, isNull bool, ttl time.Duration, hasTTL bool) (bool, error) {
	return s.inner.Replace(ctx, s.qualify(key), value, isNull, ttl, hasTTL)
}

func (s *ScopedView) ReplaceIfEqual(ctx context.Context, key string, expected, value []byte, ttl time.Duration, hasTTL bool) (bool, error) {
	return s.inner.ReplaceIfEqual(ctx, s.qualify(key), expected, value, ttl, hasTTL)
}

func (s *ScopedView) Remove(ctx context.Context, key string) (bool, error) {
	return s.inner.Remove(ctx, s.qualify(key))
}

func (s *ScopedView) RemoveIfEqual(ctx context.Context, key string, expected []byte) (bool, error) {
	return s.inner.RemoveIfEqual(ctx, s.qualify(key), expected)
}

func (s *ScopedView) RemoveMany(ctx context.Context, keys []string) (int, error) {
	return s.inner.RemoveMany(ctx, s.qualifyAll(keys))
}

// RemoveByPrefix scopes the prefix under this view's own prefix, so a
// caller can never reach outside its scope even with an empty prefix.
func (s *ScopedView) RemoveByPrefix(ctx context.Context, prefix string) (int, error) {
	return s.inner.RemoveByPrefix(ctx, s.qualify(prefix))
}

// RemoveAll clears only this scope, by removing everything under its
// prefix rather than flushing the whole underlying cache.
func (s *ScopedView) RemoveAll(ctx context.Context) (int, error) {
	if s.prefix == "" {
		return s.inner.RemoveAll(ctx)
	}
	return s.inner.RemoveByPrefix(ctx, s.prefix+":")
}

func (s *ScopedView) Increment(ctx context.Context, key string, delta int64, ttl time.Duration, hasTTL bool) (int64, error) {
	return s.inner.Increment(ctx, s.qualify(key), delta, ttl, hasTTL)
}

func (s *ScopedView) IncrementFloat(ctx context.Context, key string, delta float64, ttl time.Duration, hasTTL bool) (float64, error) {
	return s.inner.IncrementFloat(ctx, s.qualify(key), delta, ttl, hasTTL)
}

func (s *ScopedView) SetIfHigher(ctx context.Context, key string, value float64, ttl time.Duration, hasTTL bool) (float64, error) {
	return s.inner.SetIfHigher(ctx, s.qualify(key), value, ttl, hasTTL)
}

func (s *ScopedView) SetIfLower(ctx context.Context, key string, value float64, ttl time.Duration, hasTTL bool) (float64, error) {
	return s.inner.SetIfLower(ctx, s.qualify(key), value, ttl, hasTTL)
}

func (s *ScopedView) ListAdd(ctx context.Context, key string, items [][]byte, ttl time.Duration, hasTTL bool) (int, error) {
	return s.inner.ListAdd(ctx, s.qualify(key), items, ttl, hasTTL)
}

func (s *ScopedView) ListRemove(ctx context.Context, key string, items [][]byte) (int, error) {
	return s.inner.ListRemove(ctx, s.qualify(key), items)
}

func (s *ScopedView) GetExpiration(ctx context.Context, key string) (time.Duration, bool, error) {
	return s.inner.GetExpiration(ctx, s.qualify(key))
}

func (s *ScopedView) SetExpiration(ctx context.Context, key string, ttl time.Duration) error {
	return s.inner.SetExpiration(ctx, s.qualify(key), ttl)
}
