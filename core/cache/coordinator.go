package cache

import (
	"bytes"
	"context"
	"log"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"hybridcache/core/port/out"
	"hybridcache/pkg/cacheerr"
	"hybridcache/pkg/resilience"
)

// effectiveTTL translates the Cache interface's (ttl, hasTTL) pair into
// the out.DistributedStore boundary's convention: a zero Duration means
// no expiration.
func effectiveTTL(ttl time.Duration, hasTTL bool) time.Duration {
	if !hasTTL {
		return 0
	}
	return ttl
}

func encodeInvalidation(msg InvalidationMessage) ([]byte, error) {
	return gojson.Marshal(msg)
}

func decodeInvalidation(payload []byte) (InvalidationMessage, error) {
	var msg InvalidationMessage
	err := gojson.Unmarshal(payload, &msg)
	return msg, err
}

// HybridCoordinator is the heart of the design (§4.3): it implements
// Cache by orchestrating an L1 MemoryStore, an L2 DistributedStore (the
// source of truth), and an InvalidationBus, classifying every modifying
// operation into one of four L1 policies and publishing invalidations
// only when L2 observably changed.
type HybridCoordinator struct {
	l1  *MemoryStore
	l2  out.DistributedStore
	bus out.InvalidationBus

	publisherID []byte
	topic       string
	cloneValues bool

	publishRetries int
	publishBackoff time.Duration

	fetchGroup singleflight.Group

	stats Stats // invalidationsReceived/Applied, selfDrops, publishedInvalidations
}

// NewHybridCoordinator builds a coordinator. A nil/empty PublisherID in
// cfg is replaced by a fresh random id, stable for the coordinator's
// lifetime per §3's invariant on publisherId.
func NewHybridCoordinator(l2 out.DistributedStore, bus out.InvalidationBus, cfg CoordinatorConfig) *HybridCoordinator {
	guardedBus, publisherID, retries, backoff := setupPublisher(bus, cfg)
	return &HybridCoordinator{
		l1:             NewMemoryStore(cfg.L1, nil),
		l2:             l2,
		bus:            guardedBus,
		publisherID:    publisherID,
		topic:          cfg.Topic,
		cloneValues:    cfg.CloneValues,
		publishRetries: retries,
		publishBackoff: backoff,
	}
}

// setupPublisher applies CoordinatorConfig's publisher defaults and
// wraps bus in a resilience.BusGuard, shared by HybridCoordinator and
// WriteAwareClient so both publish with identical backpressure behavior.
func setupPublisher(bus out.InvalidationBus, cfg CoordinatorConfig) (out.InvalidationBus, []byte, int, time.Duration) {
	publisherID := cfg.PublisherID
	if len(publisherID) == 0 {
		id := uuid.New()
		publisherID = id[:]
	}
	retries := cfg.PublishRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := cfg.PublishBackoff
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	guardedBus := bus
	if bus != nil {
		guardedBus = resilience.NewBusGuard(bus, cfg.Topic, retries, backoff)
	}
	return guardedBus, publisherID, retries, backoff
}

// PublisherID returns this coordinator's immutable identity fingerprint.
func (c *HybridCoordinator) PublisherID() []byte { return c.publisherID }

func (c *HybridCoordinator) clone(value []byte) []byte {
	if !c.cloneValues || value == nil {
		return value
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out
}

// ---------------------------------------------------------------------
// Read path (§4.3 "Read path")
// ---------------------------------------------------------------------

// Get implements Cache's read path: consult L1; on miss, query L2 and
// populate L1 with L2's TTL before returning.
func (c *HybridCoordinator) Get(ctx context.Context, key string) (Value, error) {
	if v, err := c.l1.Get(ctx, key); err == nil && v.Found() {
		return Value{State: v.State, Data: c.clone(v.Data)}, nil
	}

	res, err, _ := c.fetchGroup.Do(key, func() (any, error) {
		return c.fetchFromL2(ctx, key)
	})
	if err != nil {
		return Value{}, err
	}
	return res.(Value), nil
}

func (c *HybridCoordinator) fetchFromL2(ctx context.Context, key string) (Value, error) {
	value, found, isNull, err := c.l2.Get(ctx, key)
	if err != nil {
		return Value{}, cacheerr.L2Unavailable("get", err)
	}
	if !found {
		return noValue(), nil
	}

	var hasTTL bool
	var ttl time.Duration
	if d, has, err := c.l2.GetExpiration(ctx, key); err == nil && has {
		ttl, hasTTL = d, true
	}
	c.l1.Set(ctx, key, value, isNull, ttl, hasTTL)

	if isNull {
		return nullValue(), nil
	}
	return hasValue(c.clone(value)), nil
}

// GetMany implements Cache: L1 lookups first, then a single batched L2
// fetch for whatever missed. Not a snapshot, per §5.
func (c *HybridCoordinator) GetMany(ctx context.Context, keys []string) (map[string]Value, error) {
	out := make(map[string]Value, len(keys))
	var misses []string
	for _, k := range keys {
		if v, _ := c.l1.Get(ctx, k); v.Found() {
			out[k] = Value{State: v.State, Data: c.clone(v.Data)}
		} else {
			misses = append(misses, k)
		}
	}
	if len(misses) == 0 {
		return out, nil
	}

	stored, err := c.l2.GetMany(ctx, misses)
	if err != nil {
		return nil, cacheerr.L2Unavailable("getMany", err)
	}
	for _, k := range misses {
		sv, found := stored[k]
		if !found {
			continue
		}
		var ttl time.Duration
		var hasTTL bool
		if sv.ExpiresAt != nil {
			ttl, hasTTL = time.Until(*sv.ExpiresAt), true
		}
		c.l1.Set(ctx, k, sv.Value, sv.IsNull, ttl, hasTTL)
		if sv.IsNull {
			out[k] = nullValue()
		} else {
			out[k] = hasValue(c.clone(sv.Value))
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------
// Write path tail: apply L1 policy, then publish iff L2 changed.
// ---------------------------------------------------------------------

// afterWrite is the shared tail of every modifying operation, per the
// abstract algorithm in §4.3: apply the L1 policy for class, then
// publish only when L2 observably changed. On cancellation before L2
// returned, callers must not reach this function at all; once called,
// it always best-effort completes (it never observes ctx again).
func (c *HybridCoordinator) afterWrite(ctx context.Context, class opClass, changed bool, key string, keys []string, prefixes []string, flushAll bool, expiresAt *time.Time, l1Apply func()) {
	bg := detach(ctx)

	if !changed {
		if class == classRemoveOnFailure {
			c.l1.Remove(bg, key)
		}
		return
	}

	switch class {
	case classSetOnSuccess, classSetOnFullSuccess:
		if l1Apply != nil {
			l1Apply()
		}
	case classRemoveToInvalidate:
		c.evictAffected(bg, keys, prefixes, flushAll)
	}

	c.publish(bg, keys, prefixes, flushAll, expiresAt)
}

func (c *HybridCoordinator) evictAffected(ctx context.Context, keys []string, prefixes []string, flushAll bool) {
	if flushAll {
		c.l1.RemoveAll(ctx)
		return
	}
	for _, p := range prefixes {
		c.l1.RemoveByPrefix(ctx, p)
	}
	if len(keys) > 0 {
		c.l1.RemoveMany(ctx, keys)
	}
}

func (c *HybridCoordinator) publish(ctx context.Context, keys []string, prefixes []string, flushAll bool, expiresAt *time.Time) {
	publishInvalidation(ctx, c.bus, c.topic, c.publisherID, &c.stats, keys, prefixes, flushAll, expiresAt)
}

// publishInvalidation builds and sends an InvalidationMessage for a
// changed L2 write, per the smart-invalidation rule in §4.2/§4.4. Shared
// by HybridCoordinator and WriteAwareClient so both publish identically.
func publishInvalidation(ctx context.Context, bus out.InvalidationBus, topic string, publisherID []byte, stats *Stats, keys []string, prefixes []string, flushAll bool, expiresAt *time.Time) {
	if bus == nil {
		return
	}
	var msg InvalidationMessage
	switch {
	case flushAll:
		msg = flushMessage(publisherID)
	case len(prefixes) > 0:
		msg = prefixMessage(publisherID, prefixes, keys, expiresAt)
	default:
		msg = keyedMessage(publisherID, keys, expiresAt)
	}

	payload, err := encodeInvalidation(msg)
	if err != nil {
		return
	}

	// bus is wrapped in a resilience.BusGuard (bounded retry with
	// backoff, failing fast via a circuit breaker once the bus itself
	// is down) by the caller's constructor, so a single call here
	// already carries the backpressure behavior described in §5.
	if err := bus.Publish(ctx, topic, payload); err != nil {
		// BusUnavailable is logged here, never surfaced: §7 treats
		// publish failure as repaired by the next access.
		log.Printf("hybridcache: %v", cacheerr.BusUnavailable(err))
		return
	}
	if stats != nil {
		stats.addPublishedInvalidation()
	}
}

// detach returns a context that inherits ctx's values but not its
// cancellation, so the L1 update and publish in afterWrite complete
// even if the caller's context was cancelled between the L2 round-trip
// returning and this tail running, per §5's cancellation rule.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------

// Set implements Cache: classSetOnSuccess.
func (c *HybridCoordinator) Set(ctx context.Context, key string, value []byte, isNull bool, ttl time.Duration, hasTTL bool) (bool, error) {
	if cancelled(ctx) {
		return false, cacheerr.Cancelled("set")
	}
	res, err := c.l2.Set(ctx, key, value, isNull, effectiveTTL(ttl, hasTTL), false, false)
	if err != nil {
		return false, cacheerr.L2Unavailable("set", err)
	}
	c.afterWrite(ctx, classSetOnSuccess, res.Changed, key, []string{key}, nil, false, res.ExpiresAt, func() {
		c.l1.Set(context.Background(), key, value, isNull, ttl, hasTTL)
	})
	return res.Changed, nil
}

// Add implements Cache: only-if-absent set, classSetOnSuccess.
func (c *HybridCoordinator) Add(ctx context.Context, key string, value []byte, isNull bool, ttl time.Duration, hasTTL bool) (bool, error) {
	if cancelled(ctx) {
		return false, cacheerr.Cancelled("add")
	}
	res, err := c.l2.Set(ctx, key, value, isNull, effectiveTTL(ttl, hasTTL), true, false)
	if err != nil {
		return false, cacheerr.L2Unavailable("add", err)
	}
	c.afterWrite(ctx, classSetOnSuccess, res.Changed, key, []string{key}, nil, false, res.ExpiresAt, func() {
		c.l1.Set(context.Background(), key, value, isNull, ttl, hasTTL)
	})
	return res.Changed, nil
}

// Replace implements Cache: only-if-present set. classSetOnSuccess when
// it changes L2; classRemoveOnFailure (evict L1, no publish) when the
// key was absent at L2.
func (c *HybridCoordinator) Replace(ctx context.Context, key string, value []byte, isNull bool, ttl time.Duration, hasTTL bool) (bool, error) {
	if cancelled(ctx) {
		return false, cacheerr.Cancelled("replace")
	}
	res, err := c.l2.Set(ctx, key, value, isNull, effectiveTTL(ttl, hasTTL), false, true)
	if err != nil {
		return false, cacheerr.L2Unavailable("replace", err)
	}
	class := classSetOnSuccess
	if !res.Changed {
		class = classRemoveOnFailure
	}
	c.afterWrite(ctx, class, res.Changed, key, []string{key}, nil, false, res.ExpiresAt, func() {
		c.l1.Set(context.Background(), key, value, isNull, ttl, hasTTL)
	})
	return res.Changed, nil
}

// ReplaceIfEqual implements Cache: a CAS. Same classification as Replace.
func (c *HybridCoordinator) ReplaceIfEqual(ctx context.Context, key string, expected, value []byte, ttl time.Duration, hasTTL bool) (bool, error) {
	if cancelled(ctx) {
		return false, cacheerr.Cancelled("replaceIfEqual")
	}
	res, err := c.l2.ReplaceIfEqual(ctx, key, expected, value, effectiveTTL(ttl, hasTTL))
	if err != nil {
		return false, cacheerr.L2Unavailable("replaceIfEqual", err)
	}
	class := classSetOnSuccess
	if !res.Changed {
		class = classRemoveOnFailure
	}
	c.afterWrite(ctx, class, res.Changed, key, []string{key}, nil, false, res.ExpiresAt, func() {
		c.l1.Set(context.Background(), key, value, false, ttl, hasTTL)
	})
	return res.Changed, nil
}

// Remove implements Cache: classRemoveToInvalidate. Per the smart
// invalidation rule, publishes iff a key was actually removed.
func (c *HybridCoordinator) Remove(ctx context.Context, key string) (bool, error) {
	if cancelled(ctx) {
		return false, cacheerr.Cancelled("remove")
	}
	res, err := c.l2.Remove(ctx, key)
	if err != nil {
		return false, cacheerr.L2Unavailable("remove", err)
	}
	c.afterWrite(ctx, classRemoveToInvalidate, res.Changed, key, []string{key}, nil, false, nil, nil)
	return res.Changed, nil
}

// RemoveIfEqual implements Cache: publishes iff the conditional matched
// and removed.
func (c *HybridCoordinator) RemoveIfEqual(ctx context.Context, key string, expected []byte) (bool, error) {
	if cancelled(ctx) {
		return false, cacheerr.Cancelled("removeIfEqual")
	}
	res, err := c.l2.RemoveIfEqual(ctx, key, expected)
	if err != nil {
		return false, cacheerr.L2Unavailable("removeIfEqual", err)
	}
	c.afterWrite(ctx, classRemoveToInvalidate, res.Changed, key, []string{key}, nil, false, nil, nil)
	return res.Changed, nil
}

// RemoveMany implements Cache: publishes iff >=1 key removed.
func (c *HybridCoordinator) RemoveMany(ctx context.Context, keys []string) (int, error) {
	if cancelled(ctx) {
		return 0, cacheerr.Cancelled("removeMany")
	}
	res, err := c.l2.RemoveMany(ctx, keys)
	if err != nil {
		return 0, cacheerr.L2Unavailable("removeMany", err)
	}
	c.afterWrite(ctx, classRemoveToInvalidate, res.Changed, "", keys, nil, false, nil, nil)
	return res.Count, nil
}

// RemoveByPrefix implements Cache: publishes iff >=1 key matched and was
// removed. An empty prefix matches all keys, per §8.
func (c *HybridCoordinator) RemoveByPrefix(ctx context.Context, prefix string) (int, error) {
	if cancelled(ctx) {
		return 0, cacheerr.Cancelled("removeByPrefix")
	}
	res, err := c.l2.RemoveByPrefix(ctx, prefix)
	if err != nil {
		return 0, cacheerr.L2Unavailable("removeByPrefix", err)
	}
	c.afterWrite(ctx, classRemoveToInvalidate, res.Changed, "", nil, []string{prefix}, false, nil, nil)
	return res.Count, nil
}

// RemoveAll implements Cache: removeAll() with no keys publishes a
// flushAll message, per §4.3's flush semantics.
func (c *HybridCoordinator) RemoveAll(ctx context.Context) (int, error) {
	if cancelled(ctx) {
		return 0, cacheerr.Cancelled("removeAll")
	}
	res, err := c.l2.RemoveAll(ctx)
	if err != nil {
		return 0, cacheerr.L2Unavailable("removeAll", err)
	}
	c.afterWrite(ctx, classRemoveToInvalidate, res.Changed, "", nil, nil, true, nil, nil)
	return res.Count, nil
}

// Increment implements Cache: known new value, classSetOnSuccess.
func (c *HybridCoordinator) Increment(ctx context.Context, key string, delta int64, ttl time.Duration, hasTTL bool) (int64, error) {
	if cancelled(ctx) {
		return 0, cacheerr.Cancelled("increment")
	}
	newValue, res, err := c.l2.Increment(ctx, key, delta, ttl, hasTTL)
	if err != nil {
		return 0, cacheerr.L2Unavailable("increment", err)
	}
	c.afterWrite(ctx, classSetOnSuccess, res.Changed, key, []string{key}, nil, false, res.ExpiresAt, func() {
		var l1TTL time.Duration
		var l1HasTTL bool
		if res.ExpiresAt != nil {
			l1TTL, l1HasTTL = time.Until(*res.ExpiresAt), true
		}
		c.l1.Set(context.Background(), key, encodeInt(newValue), false, l1TTL, l1HasTTL)
	})
	return newValue, nil
}

// IncrementFloat implements Cache, kept as a distinct entry point from
// Increment per §9.
func (c *HybridCoordinator) IncrementFloat(ctx context.Context, key string, delta float64, ttl time.Duration, hasTTL bool) (float64, error) {
	if cancelled(ctx) {
		return 0, cacheerr.Cancelled("incrementFloat")
	}
	newValue, res, err := c.l2.IncrementFloat(ctx, key, delta, ttl, hasTTL)
	if err != nil {
		return 0, cacheerr.L2Unavailable("incrementFloat", err)
	}
	c.afterWrite(ctx, classSetOnSuccess, res.Changed, key, []string{key}, nil, false, res.ExpiresAt, func() {
		var l1TTL time.Duration
		var l1HasTTL bool
		if res.ExpiresAt != nil {
			l1TTL, l1HasTTL = time.Until(*res.ExpiresAt), true
		}
		c.l1.Set(context.Background(), key, encodeFloat(newValue), false, l1TTL, l1HasTTL)
	})
	return newValue, nil
}

// SetIfHigher implements Cache: result value semantics aren't locally
// reproducible without racing L2, so this is classRemoveToInvalidate.
func (c *HybridCoordinator) SetIfHigher(ctx context.Context, key string, value float64, ttl time.Duration, hasTTL bool) (float64, error) {
	if cancelled(ctx) {
		return 0, cacheerr.Cancelled("setIfHigher")
	}
	diff, res, err := c.l2.SetIfHigher(ctx, key, value, effectiveTTL(ttl, hasTTL))
	if err != nil {
		return 0, cacheerr.L2Unavailable("setIfHigher", err)
	}
	c.afterWrite(ctx, classRemoveToInvalidate, res.Changed, key, []string{key}, nil, false, res.ExpiresAt, nil)
	return diff, nil
}

// SetIfLower implements Cache, symmetric to SetIfHigher.
func (c *HybridCoordinator) SetIfLower(ctx context.Context, key string, value float64, ttl time.Duration, hasTTL bool) (float64, error) {
	if cancelled(ctx) {
		return 0, cacheerr.Cancelled("setIfLower")
	}
	diff, res, err := c.l2.SetIfLower(ctx, key, value, effectiveTTL(ttl, hasTTL))
	if err != nil {
		return 0, cacheerr.L2Unavailable("setIfLower", err)
	}
	c.afterWrite(ctx, classRemoveToInvalidate, res.Changed, key, []string{key}, nil, false, res.ExpiresAt, nil)
	return diff, nil
}

// ListAdd implements Cache: classSetOnFullSuccess when every item was
// added at L2, classRemoveToInvalidate on partial success, per §4.3's
// table.
func (c *HybridCoordinator) ListAdd(ctx context.Context, key string, items [][]byte, ttl time.Duration, hasTTL bool) (int, error) {
	if cancelled(ctx) {
		return 0, cacheerr.Cancelled("listAdd")
	}
	added, res, err := c.l2.ListAdd(ctx, key, items, effectiveTTL(ttl, hasTTL))
	if err != nil {
		return 0, cacheerr.L2Unavailable("listAdd", err)
	}
	if added == len(items) {
		c.afterWrite(ctx, classSetOnFullSuccess, res.Changed, key, []string{key}, nil, false, res.ExpiresAt, func() {
			c.l1.ListAdd(context.Background(), key, items, ttl, hasTTL)
		})
	} else {
		c.afterWrite(ctx, classRemoveToInvalidate, res.Changed, key, []string{key}, nil, false, res.ExpiresAt, nil)
	}
	return added, nil
}

// ListRemove implements Cache: publishes iff >=1 item removed.
func (c *HybridCoordinator) ListRemove(ctx context.Context, key string, items [][]byte) (int, error) {
	if cancelled(ctx) {
		return 0, cacheerr.Cancelled("listRemove")
	}
	removed, res, err := c.l2.ListRemove(ctx, key, items)
	if err != nil {
		return 0, cacheerr.L2Unavailable("listRemove", err)
	}
	if removed == len(items) {
		c.afterWrite(ctx, classSetOnFullSuccess, res.Changed, key, []string{key}, nil, false, res.ExpiresAt, func() {
			c.l1.ListRemove(context.Background(), key, items)
		})
	} else {
		c.afterWrite(ctx, classRemoveToInvalidate, res.Changed, key, []string{key}, nil, false, res.ExpiresAt, nil)
	}
	return removed, nil
}

// GetExpiration implements Cache by reading through to L2: TTL is
// L2-owned source of truth.
func (c *HybridCoordinator) GetExpiration(ctx context.Context, key string) (time.Duration, bool, error) {
	ttl, has, err := c.l2.GetExpiration(ctx, key)
	if err != nil {
		return 0, false, cacheerr.L2Unavailable("getExpiration", err)
	}
	return ttl, has, nil
}

// SetExpiration implements Cache: updates L2's TTL then mirrors it to
// L1 if present, and publishes (TTL changes are a form of L2 state
// change affecting the key).
func (c *HybridCoordinator) SetExpiration(ctx context.Context, key string, ttl time.Duration) error {
	if cancelled(ctx) {
		return cacheerr.Cancelled("setExpiration")
	}
	if err := c.l2.SetExpiration(ctx, key, ttl); err != nil {
		return cacheerr.L2Unavailable("setExpiration", err)
	}
	bg := detach(ctx)
	c.l1.SetExpiration(bg, key, ttl)
	expiresAt := time.Now().Add(ttl)
	c.publish(bg, []string{key}, nil, false, &expiresAt)
	return nil
}

// Snapshot returns the coordinator's observable counters (§6): L1's
// hits/misses/evictions pass through unchanged (localCacheHits aliases
// L1 hits — the distinction in the spec is naming, not a second
// counter), plus this coordinator's own invalidation
// counters.
func (c *HybridCoordinator) Snapshot() Snapshot {
	snap := c.l1.Snapshot()
	own := c.stats.snapshot()
	snap.LocalCacheHits = snap.Hits
	snap.InvalidationsReceived = own.InvalidationsReceived
	snap.InvalidationsApplied = own.InvalidationsApplied
	snap.SelfDrops = own.SelfDrops
	snap.PublishedInvalidations = own.PublishedInvalidations
	return snap
}

// isSelf reports whether publisherID belongs to this coordinator, used
// by the subscriber loop's self-filtering (§4.2).
func (c *HybridCoordinator) isSelf(publisherID []byte) bool {
	return bytes.Equal(publisherID, c.publisherID)
}
