// Package redisstore adapts github.com/redis/go-redis/v9 to the cache
// core's DistributedStore and InvalidationBus ports, grounded on
// pkg/cache/worker_redis_cache.go's RedisCache (Get/Set/Delete/GetMulti/
// SetMulti/Increment/Expire/TTL) from the teacher repo.
package redisstore

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"hybridcache/core/port/out"
)

// Store is a DistributedStore backed by a single Redis logical database.
// Every key is namespaced to keep a shared Redis instance safe for
// multiple cache deployments, mirroring the teacher's RedisCache key
// prefixing convention.
type Store struct {
	client    *redis.Client
	namespace string
}

// New builds a Store. namespace may be empty.
func New(client *redis.Client, namespace string) *Store {
	return &Store{client: client, namespace: namespace}
}

// Ping verifies connectivity, used by the admin surface's /ready probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) key(k string) string {
	if s.namespace == "" {
		return k
	}
	return s.namespace + ":" + k
}

// envelope prefixes every stored payload with a one-byte null marker so
// Get can distinguish a cached explicit null from an absent key, per
// the data model's CacheValue<T> three-state result.
func encodeEnvelope(value []byte, isNull bool) []byte {
	if isNull {
		return []byte{1}
	}
	out := make([]byte, 0, len(value)+1)
	out = append(out, 0)
	out = append(out, value...)
	return out
}

func decodeEnvelope(raw []byte) (value []byte, isNull bool) {
	if len(raw) == 0 {
		return nil, false
	}
	if raw[0] == 1 {
		return nil, true
	}
	return raw[1:], false
}

func expirationFromTTL(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := time.Now().Add(ttl)
	return &t
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, bool, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, false, nil
	}
	if err != nil {
		return nil, false, false, err
	}
	value, isNull := decodeEnvelope(raw)
	return value, true, isNull, nil
}

func (s *Store) GetMany(ctx context.Context, keys []string) (map[string]out.StoredValue, error) {
	if len(keys) == 0 {
		return map[string]out.StoredValue{}, nil
	}
	namespaced := make([]string, len(keys))
	for i, k := range keys {
		namespaced[i] = s.key(k)
	}
	raws, err := s.client.MGet(ctx, namespaced...).Result()
	if err != nil {
		return nil, err
	}
	result := make(map[string]out.StoredValue, len(keys))
	for i, raw := range raws {
		if raw == nil {
			continue
		}
		str, ok := raw.(string)
		if !ok {
			continue
		}
		value, isNull := decodeEnvelope([]byte(str))
		var expiresAt *time.Time
		if ttl, err := s.client.TTL(ctx, namespaced[i]).Result(); err == nil && ttl > 0 {
			t := time.Now().Add(ttl)
			expiresAt = &t
		}
		result[keys[i]] = out.StoredValue{Value: value, IsNull: isNull, ExpiresAt: expiresAt}
	}
	return result, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, isNull bool, ttl time.Duration, onlyIfAbsent, onlyIfPresent bool) (out.ChangeResult, error) {
	payload := encodeEnvelope(value, isNull)
	k := s.key(key)

	var changed bool
	var err error
	switch {
	case onlyIfAbsent:
		changed, err = s.client.SetNX(ctx, k, payload, ttl).Result()
	case onlyIfPresent:
		changed, err = s.client.SetXX(ctx, k, payload, ttl).Result()
	default:
		_, err = s.client.Set(ctx, k, payload, ttl).Result()
		changed = err == nil
	}
	if err != nil {
		return out.ChangeResult{}, err
	}
	return out.ChangeResult{Changed: changed, ExpiresAt: expirationFromTTL(ttl)}, nil
}

// ReplaceIfEqual implements a compare-and-swap via WATCH/MULTI, the
// idiomatic go-redis optimistic-locking recipe.
func (s *Store) ReplaceIfEqual(ctx context.Context, key string, expected, value []byte, ttl time.Duration) (out.ChangeResult, error) {
	k := s.key(key)
	expectedPayload := encodeEnvelope(expected, false)
	newPayload := encodeEnvelope(value, false)

	var changed bool
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Bytes()
		if err != nil && err != redis.Nil {
			return err
		}
		if string(current) != string(expectedPayload) {
			changed = false
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, newPayload, ttl)
			return nil
		})
		changed = err == nil
		return err
	}, k)
	if err != nil {
		return out.ChangeResult{}, err
	}
	return out.ChangeResult{Changed: changed, ExpiresAt: expirationFromTTL(ttl)}, nil
}

func (s *Store) Remove(ctx context.Context, key string) (out.ChangeResult, error) {
	n, err := s.client.Del(ctx, s.key(key)).Result()
	if err != nil {
		return out.ChangeResult{}, err
	}
	return out.ChangeResult{Changed: n > 0, Count: int(n)}, nil
}

func (s *Store) RemoveIfEqual(ctx context.Context, key string, expected []byte) (out.ChangeResult, error) {
	k := s.key(key)
	expectedPayload := encodeEnvelope(expected, false)

	var changed bool
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Bytes()
		if err == redis.Nil {
			changed = false
			return nil
		}
		if err != nil {
			return err
		}
		if string(current) != string(expectedPayload) {
			changed = false
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, k)
			return nil
		})
		changed = err == nil
		return err
	}, k)
	if err != nil {
		return out.ChangeResult{}, err
	}
	return out.ChangeResult{Changed: changed}, nil
}

func (s *Store) RemoveMany(ctx context.Context, keys []string) (out.ChangeResult, error) {
	if len(keys) == 0 {
		return out.ChangeResult{}, nil
	}
	namespaced := make([]string, len(keys))
	for i, k := range keys {
		namespaced[i] = s.key(k)
	}
	n, err := s.client.Del(ctx, namespaced...).Result()
	if err != nil {
		return out.ChangeResult{}, err
	}
	return out.ChangeResult{Changed: n > 0, Count: int(n)}, nil
}

// globEscaper escapes SCAN's own glob metacharacters (and the `\` escape
// character itself) so RemoveByPrefix matches an exact byte prefix per
// §3, not a caller-controlled glob.
var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// RemoveByPrefix scans for matching keys with SCAN (not KEYS, to avoid
// blocking Redis on a large keyspace) and deletes them in batches.
func (s *Store) RemoveByPrefix(ctx context.Context, prefix string) (out.ChangeResult, error) {
	pattern := globEscaper.Replace(s.key(prefix)) + "*"
	var removed int
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			return out.ChangeResult{}, err
		}
		if len(keys) > 0 {
			n, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				return out.ChangeResult{}, err
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out.ChangeResult{Changed: removed > 0, Count: removed}, nil
}

// RemoveAll clears the keys under this store's namespace, so with a
// namespace set a shared instance stays safe for other tenants. With an
// empty namespace the scan matches every key in the Redis logical database.
func (s *Store) RemoveAll(ctx context.Context) (out.ChangeResult, error) {
	return s.RemoveByPrefix(ctx, "")
}

func (s *Store) currentTTL(ctx context.Context, k string) time.Duration {
	ttl, err := s.client.TTL(ctx, k).Result()
	if err != nil || ttl <= 0 {
		return 0
	}
	return ttl
}

func (s *Store) Increment(ctx context.Context, key string, delta int64, ttl time.Duration, hasTTL bool) (int64, out.ChangeResult, error) {
	k := s.key(key)
	var newValue int64
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, k).Bytes()
		var current int64
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			if v, isNull := decodeEnvelope(raw); !isNull {
				current, _ = strconv.ParseInt(string(v), 10, 64)
			}
		}
		newValue = current + delta

		effTTL := ttl
		if !hasTTL {
			effTTL = s.currentTTL(ctx, k)
		} else if ttl <= 0 {
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, k)
				return nil
			})
			return err
		}

		payload := encodeEnvelope([]byte(strconv.FormatInt(newValue, 10)), false)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, payload, effTTL)
			return nil
		})
		return err
	}, k)
	if err != nil {
		return 0, out.ChangeResult{}, err
	}
	return newValue, out.ChangeResult{Changed: true, ExpiresAt: expirationFromTTL(ttl)}, nil
}

func (s *Store) IncrementFloat(ctx context.Context, key string, delta float64, ttl time.Duration, hasTTL bool) (float64, out.ChangeResult, error) {
	k := s.key(key)
	var newValue float64
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, k).Bytes()
		var current float64
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			if v, isNull := decodeEnvelope(raw); !isNull {
				current, _ = strconv.ParseFloat(string(v), 64)
			}
		}
		newValue = current + delta

		effTTL := ttl
		if !hasTTL {
			effTTL = s.currentTTL(ctx, k)
		}

		payload := encodeEnvelope([]byte(strconv.FormatFloat(newValue, 'g', -1, 64)), false)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, payload, effTTL)
			return nil
		})
		return err
	}, k)
	if err != nil {
		return 0, out.ChangeResult{}, err
	}
	return newValue, out.ChangeResult{Changed: true, ExpiresAt: expirationFromTTL(ttl)}, nil
}

func (s *Store) setIfCompare(ctx context.Context, key string, value float64, ttl time.Duration, better func(current, candidate float64) bool) (float64, out.ChangeResult, error) {
	k := s.key(key)
	var diff float64
	var changed bool
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, k).Bytes()
		var current float64
		hadCurrent := false
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			if v, isNull := decodeEnvelope(raw); !isNull {
				current, _ = strconv.ParseFloat(string(v), 64)
				hadCurrent = true
			}
		}
		if hadCurrent && !better(current, value) {
			changed = false
			diff = 0
			return nil
		}
		if hadCurrent {
			diff = value - current
		} else {
			diff = value
		}
		payload := encodeEnvelope([]byte(strconv.FormatFloat(value, 'g', -1, 64)), false)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, payload, ttl)
			return nil
		})
		changed = err == nil
		return err
	}, k)
	if err != nil {
		return 0, out.ChangeResult{}, err
	}
	return diff, out.ChangeResult{Changed: changed, ExpiresAt: expirationFromTTL(ttl)}, nil
}

func (s *Store) SetIfHigher(ctx context.Context, key string, value float64, ttl time.Duration) (float64, out.ChangeResult, error) {
	return s.setIfCompare(ctx, key, value, ttl, func(current, candidate float64) bool { return candidate > current })
}

func (s *Store) SetIfLower(ctx context.Context, key string, value float64, ttl time.Duration) (float64, out.ChangeResult, error) {
	return s.setIfCompare(ctx, key, value, ttl, func(current, candidate float64) bool { return candidate < current })
}

// ListAdd and ListRemove use a native Redis Set rather than the envelope
// format: list keys in this adapter are a distinct "kind" of entry, not
// meant to round-trip through Get, mirroring how MemoryStore also
// reserves a distinct internal encoding for its list entries.
func (s *Store) ListAdd(ctx context.Context, key string, items [][]byte, ttl time.Duration) (int, out.ChangeResult, error) {
	k := s.key(key)
	members := make([]interface{}, len(items))
	for i, item := range items {
		members[i] = item
	}
	added, err := s.client.SAdd(ctx, k, members...).Result()
	if err != nil {
		return 0, out.ChangeResult{}, err
	}
	if ttl > 0 {
		s.client.Expire(ctx, k, ttl)
	}
	return int(added), out.ChangeResult{Changed: added > 0, ExpiresAt: expirationFromTTL(ttl)}, nil
}

func (s *Store) ListRemove(ctx context.Context, key string, items [][]byte) (int, out.ChangeResult, error) {
	k := s.key(key)
	members := make([]interface{}, len(items))
	for i, item := range items {
		members[i] = item
	}
	removed, err := s.client.SRem(ctx, k, members...).Result()
	if err != nil {
		return 0, out.ChangeResult{}, err
	}
	return int(removed), out.ChangeResult{Changed: removed > 0}, nil
}

func (s *Store) GetExpiration(ctx context.Context, key string) (time.Duration, bool, error) {
	ttl, err := s.client.TTL(ctx, s.key(key)).Result()
	if err != nil {
		return 0, false, err
	}
	if ttl <= 0 {
		return 0, false, nil
	}
	return ttl, true, nil
}

func (s *Store) SetExpiration(ctx context.Context, key string, ttl time.Duration) error {
	k := s.key(key)
	if ttl <= 0 {
		return s.client.Persist(ctx, k).Err()
	}
	return s.client.Expire(ctx, k, ttl).Err()
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
