package cache

import (
	"context"
	"time"

	"hybridcache/core/port/out"
	"hybridcache/pkg/cacheerr"
)

// WriteAwareClient implements Cache against L2 alone: no local L1, but
// it still publishes invalidations identically to HybridCoordinator
// (§4.4) so that every peer HybridCoordinator refreshes its L1. It
// exists for callers that write far more than they read, e.g. a batch
// job, and so have no use for a local cache of their own but must still
// keep everyone else's L1 honest.
type WriteAwareClient struct {
	l2  out.DistributedStore
	bus out.InvalidationBus

	publisherID []byte
	topic       string

	stats Stats
}

// NewWriteAwareClient builds a client backed directly by l2, publishing
// invalidations to bus per cfg exactly as NewHybridCoordinator does.
func NewWriteAwareClient(l2 out.DistributedStore, bus out.InvalidationBus, cfg CoordinatorConfig) *WriteAwareClient {
	guardedBus, publisherID, _, _ := setupPublisher(bus, cfg)
	return &WriteAwareClient{
		l2:          l2,
		bus:         guardedBus,
		publisherID: publisherID,
		topic:       cfg.Topic,
	}
}

// PublisherID returns this client's immutable identity fingerprint.
func (w *WriteAwareClient) PublisherID() []byte { return w.publisherID }

func (w *WriteAwareClient) publish(ctx context.Context, keys []string, prefixes []string, flushAll bool, expiresAt *time.Time) {
	publishInvalidation(detach(ctx), w.bus, w.topic, w.publisherID, &w.stats, keys, prefixes, flushAll, expiresAt)
}

// Snapshot returns this client's publish-side counters. It has no L1,
// so the read-side counters (hits/misses/evictions/itemCount/...) are
// always zero.
func (w *WriteAwareClient) Snapshot() Snapshot {
	return w.stats.snapshot()
}

func (w *WriteAwareClient) Get(ctx context.Context, key string) (Value, error) {
	value, found, isNull, err := w.l2.Get(ctx, key)
	if err != nil {
		return Value{}, cacheerr.L2Unavailable("get", err)
	}
	if !found {
		return noValue(), nil
	}
	if isNull {
		return nullValue(), nil
	}
	return hasValue(value), nil
}

func (w *WriteAwareClient) GetMany(ctx context.Context, keys []string) (map[string]Value, error) {
	stored, err := w.l2.GetMany(ctx, keys)
	if err != nil {
		return nil, cacheerr.L2Unavailable("getMany", err)
	}
	out := make(map[string]Value, len(stored))
	for k, sv := range stored {
		if sv.IsNull {
			out[k] = nullValue()
		} else {
			out[k] = hasValue(sv.Value)
		}
	}
	return out, nil
}

func (w *WriteAwareClient) Set(ctx context.Context, key string, value []byte, isNull bool, ttl time.Duration, hasTTL bool) (bool, error) {
	res, err := w.l2.Set(ctx, key, value, isNull, effectiveTTL(ttl, hasTTL), false, false)
	if err != nil {
		return false, cacheerr.L2Unavailable("set", err)
	}
	if res.Changed {
		w.publish(ctx, []string{key}, nil, false, res.ExpiresAt)
	}
	return res.Changed, nil
}

func (w *WriteAwareClient) Add(ctx context.Context, key string, value []byte, isNull bool, ttl time.Duration, hasTTL bool) (bool, error) {
	res, err := w.l2.Set(ctx, key, value, isNull, effectiveTTL(ttl, hasTTL), true, false)
	if err != nil {
		return false, cacheerr.L2Unavailable("add", err)
	}
	if res.Changed {
		w.publish(ctx, []string{key}, nil, false, res.ExpiresAt)
	}
	return res.Changed, nil
}

func (w *WriteAwareClient) Replace(ctx context.Context, key string, value []byte, isNull bool, ttl time.Duration, hasTTL bool) (bool, error) {
	res, err := w.l2.Set(ctx, key, value, isNull, effectiveTTL(ttl, hasTTL), false, true)
	if err != nil {
		return false, cacheerr.L2Unavailable("replace", err)
	}
	if res.Changed {
		w.publish(ctx, []string{key}, nil, false, res.ExpiresAt)
	}
	return res.Changed, nil
}

func (w *WriteAwareClient) ReplaceIfEqual(ctx context.Context, key string, expected, value []byte, ttl time.Duration, hasTTL bool) (bool, error) {
	res, err := w.l2.ReplaceIfEqual(ctx, key, expected, value, effectiveTTL(ttl, hasTTL))
	if err != nil {
		return false, cacheerr.L2Unavailable("replaceIfEqual", err)
	}
	if res.Changed {
		w.publish(ctx, []string{key}, nil, false, res.ExpiresAt)
	}
	return res.Changed, nil
}

func (w *WriteAwareClient) Remove(ctx context.Context, key string) (bool, error) {
	res, err := w.l2.Remove(ctx, key)
	if err != nil {
		return false, cacheerr.L2Unavailable("remove", err)
	}
	if res.Changed {
		w.publish(ctx, []string{key}, nil, false, nil)
	}
	return res.Changed, nil
}

func (w *WriteAwareClient) RemoveIfEqual(ctx context.Context, key string, expected []byte) (bool, error) {
	res, err := w.l2.RemoveIfEqual(ctx, key, expected)
	if err != nil {
		return false, cacheerr.L2Unavailable("removeIfEqual", err)
	}
	if res.Changed {
		w.publish(ctx, []string{key}, nil, false, nil)
	}
	return res.Changed, nil
}

func (w *WriteAwareClient) RemoveMany(ctx context.Context, keys []string) (int, error) {
	res, err := w.l2.RemoveMany(ctx, keys)
	if err != nil {
		return 0, cacheerr.L2Unavailable("removeMany", err)
	}
	if res.Changed {
		w.publish(ctx, keys, nil, false, nil)
	}
	return res.Count, nil
}

func (w *WriteAwareClient) RemoveByPrefix(ctx context.Context, prefix string) (int, error) {
	res, err := w.l2.RemoveByPrefix(ctx, prefix)
	if err != nil {
		return 0, cacheerr.L2Unavailable("removeByPrefix", err)
	}
	if res.Changed {
		w.publish(ctx, nil, []string{prefix}, false, nil)
	}
	return res.Count, nil
}

func (w *WriteAwareClient) RemoveAll(ctx context.Context) (int, error) {
	res, err := w.l2.RemoveAll(ctx)
	if err != nil {
		return 0, cacheerr.L2Unavailable("removeAll", err)
	}
	if res.Changed {
		w.publish(ctx, nil, nil, true, nil)
	}
	return res.Count, nil
}

func (w *WriteAwareClient) Increment(ctx context.Context, key string, delta int64, ttl time.Duration, hasTTL bool) (int64, error) {
	newValue, res, err := w.l2.Increment(ctx, key, delta, ttl, hasTTL)
	if err != nil {
		return 0, cacheerr.L2Unavailable("increment", err)
	}
	if res.Changed {
		w.publish(ctx, []string{key}, nil, false, res.ExpiresAt)
	}
	return newValue, nil
}

func (w *WriteAwareClient) IncrementFloat(ctx context.Context, key string, delta float64, ttl time.Duration, hasTTL bool) (float64, error) {
	newValue, res, err := w.l2.IncrementFloat(ctx, key, delta, ttl, hasTTL)
	if err != nil {
		return 0, cacheerr.L2Unavailable("incrementFloat", err)
	}
	if res.Changed {
		w.publish(ctx, []string{key}, nil, false, res.ExpiresAt)
	}
	return newValue, nil
}

func (w *WriteAwareClient) SetIfHigher(ctx context.Context, key string, value float64, ttl time.Duration, hasTTL bool) (float64, error) {
	diff, res, err := w.l2.SetIfHigher(ctx, key, value, effectiveTTL(ttl, hasTTL))
	if err != nil {
		return 0, cacheerr.L2Unavailable("setIfHigher", err)
	}
	if res.Changed {
		w.publish(ctx, []string{key}, nil, false, res.ExpiresAt)
	}
	return diff, nil
}

func (w *WriteAwareClient) SetIfLower(ctx context.Context, key string, value float64, ttl time.Duration, hasTTL bool) (float64, error) {
	diff, res, err := w.l2.SetIfLower(ctx, key, value, effectiveTTL(ttl, hasTTL))
	if err != nil {
		return 0, cacheerr.L2Unavailable("setIfLower", err)
	}
	if res.Changed {
		w.publish(ctx, []string{key}, nil, false, res.ExpiresAt)
	}
	return diff, nil
}

func (w *WriteAwareClient) ListAdd(ctx context.Context, key string, items [][]byte, ttl time.Duration, hasTTL bool) (int, error) {
	added, res, err := w.l2.ListAdd(ctx, key, items, effectiveTTL(ttl, hasTTL))
	if err != nil {
		return 0, cacheerr.L2Unavailable("listAdd", err)
	}
	if res.Changed {
		w.publish(ctx, []string{key}, nil, false, res.ExpiresAt)
	}
	return added, nil
}

func (w *WriteAwareClient) ListRemove(ctx context.Context, key string, items [][]byte) (int, error) {
	removed, res, err := w.l2.ListRemove(ctx, key, items)
	if err != nil {
		return 0, cacheerr.L2Unavailable("listRemove", err)
	}
	if res.Changed {
		w.publish(ctx, []string{key}, nil, false, res.ExpiresAt)
	}
	return removed, nil
}

func (w *WriteAwareClient) GetExpiration(ctx context.Context, key string) (time.Duration, bool, error) {
	ttl, has, err := w.l2.GetExpiration(ctx, key)
	if err != nil {
		return 0, false, cacheerr.L2Unavailable("getExpiration", err)
	}
	return ttl, has, nil
}

// SetExpiration updates L2's TTL and always publishes, matching
// HybridCoordinator's SetExpiration (a TTL change is itself an L2 state
// change, regardless of a "changed" boolean the store doesn't report).
func (w *WriteAwareClient) SetExpiration(ctx context.Context, key string, ttl time.Duration) error {
	if err := w.l2.SetExpiration(ctx, key, ttl); err != nil {
		return cacheerr.L2Unavailable("setExpiration", err)
	}
	expiresAt := time.Now().Add(ttl)
	w.publish(ctx, []string{key}, nil, false, &expiresAt)
	return nil
}
