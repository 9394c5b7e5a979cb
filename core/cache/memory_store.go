package cache

import (
	"context"
	"time"

	"github.com/cespare/xxhash/v2"

	"hybridcache/pkg/cacheerr"
)

// MemoryStore is the L1 tier: a bounded, sharded, concurrent mapping
// from string keys to entries, with TTL, LRU, and optional
// memory-accounted eviction, per §4.1. It satisfies Cache on its own —
// HybridCoordinator and WriteAwareClient compose it with a
// DistributedStore rather than subclass it.
type MemoryStore struct {
	shards []*shard
	mask   uint64

	sizer           Sizer
	maxEntrySize    int
	strictEntrySize bool

	now func() time.Time

	stats Stats
}

// NewMemoryStore builds an L1 store. sizer may be nil, in which case a
// FixedSizer is used for SizingFixed and otherwise a DynamicSizer with no
// fallback serializer (fine, since MemoryStore only ever sizes
// already-encoded bytes).
func NewMemoryStore(cfg MemoryStoreConfig, sizer Sizer) *MemoryStore {
	n := nextPow2(cfg.ShardCount)
	if cfg.ShardCount <= 0 {
		n = 32
	}
	// A positive cap below n would leave some shards a 0 (unbounded) share.
	for n > 1 && ((cfg.MaxItems > 0 && cfg.MaxItems < n) || (cfg.MaxMemorySize > 0 && cfg.MaxMemorySize < n)) {
		n /= 2
	}
	perShardItems := distribute(cfg.MaxItems, n)
	perShardBytes := distribute(cfg.MaxMemorySize, n)

	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = newShard(perShardItems[i], perShardBytes[i])
	}

	if sizer == nil {
		switch cfg.SizingMode {
		case SizingFixed:
			sizer = NewFixedSizer(cfg.FixedAverageSize)
		default:
			sizer = NewDynamicSizer(nil)
		}
	}

	return &MemoryStore{
		shards:          shards,
		mask:            uint64(n - 1),
		sizer:           sizer,
		maxEntrySize:    cfg.MaxEntrySize,
		strictEntrySize: cfg.StrictEntrySize,
		now:             time.Now,
	}
}

// distribute splits total into n non-negative shares that sum exactly
// to total (or all zero, if total is 0/unbounded), so a per-shard cap
// enforces the global cap named by invariants 3 and 4 exactly.
// NewMemoryStore keeps n at or below any positive total, so no share of a
// bounded cap is 0.
func distribute(total, n int) []int {
	out := make([]int, n)
	if total <= 0 {
		return out
	}
	base := total / n
	rem := total % n
	for i := range out {
		out[i] = base
		if i < rem {
			out[i]++
		}
	}
	return out
}

func (m *MemoryStore) shardFor(key string) *shard {
	h := xxhash.Sum64String(key)
	return m.shards[h&m.mask]
}

func (m *MemoryStore) expiresAt(ttl time.Duration, hasTTL bool) (time.Time, bool) {
	if !hasTTL {
		return time.Time{}, false
	}
	return m.now().Add(ttl), true
}

func (m *MemoryStore) isExpired(e *entry) bool {
	return e.hasExpiry && !m.now().Before(e.expiresAt)
}

// Get implements Cache.
func (m *MemoryStore) Get(_ context.Context, key string) (Value, error) {
	s := m.shardFor(key)
	s.mu.Lock()
	e, ok := s.data[key]
	if !ok {
		s.mu.Unlock()
		m.stats.addMiss()
		return noValue(), nil
	}
	if m.isExpired(e) {
		s.deleteLocked(key)
		s.mu.Unlock()
		m.stats.addMiss()
		return noValue(), nil
	}
	s.touch(e.node)
	data := e.value
	isNull := e.isNull
	s.mu.Unlock()

	m.stats.addHit()
	if isNull {
		return nullValue(), nil
	}
	return hasValue(data), nil
}

// GetMany implements Cache. Each key is read independently; this is not
// a snapshot, per §5.
func (m *MemoryStore) GetMany(ctx context.Context, keys []string) (map[string]Value, error) {
	out := make(map[string]Value, len(keys))
	for _, k := range keys {
		v, _ := m.Get(ctx, k)
		if v.Found() {
			out[k] = v
		}
	}
	return out, nil
}

func (m *MemoryStore) checkEntrySize(key string, size int) error {
	if m.maxEntrySize > 0 && size > m.maxEntrySize {
		if m.strictEntrySize {
			return cacheerr.EntryTooLarge(key, size, m.maxEntrySize)
		}
		return errEntryDropped
	}
	return nil
}

// errEntryDropped is an internal sentinel: non-strict oversized entries
// are silently dropped (Set returns false, no error), per §4.1.
var errEntryDropped = &droppedErr{}

type droppedErr struct{}

func (*droppedErr) Error() string { return "entry dropped: exceeds max entry size" }

func (m *MemoryStore) store(key string, value []byte, isNull bool, ttl time.Duration, hasTTL bool) (bool, error) {
	if hasTTL && ttl <= 0 {
		m.removeLocked(key)
		return true, nil
	}

	size := m.sizer.Size(value, isNull)
	if err := m.checkEntrySize(key, size); err != nil {
		if err == errEntryDropped {
			return false, nil
		}
		return false, err
	}

	expiresAt, has := m.expiresAt(ttl, hasTTL)
	e := &entry{
		value:     value,
		isNull:    isNull,
		hasExpiry: has,
		expiresAt: expiresAt,
		created:   m.now(),
		size:      size,
	}

	s := m.shardFor(key)
	s.mu.Lock()
	before := s.itemCount
	s.insertLocked(key, e)
	evicted := before + 1 - s.itemCount
	s.mu.Unlock()
	if evicted > 0 {
		m.stats.addEviction(int64(evicted))
	}
	return true, nil
}

func (m *MemoryStore) removeLocked(key string) {
	s := m.shardFor(key)
	s.mu.Lock()
	s.deleteLocked(key)
	s.mu.Unlock()
}

// Set implements Cache. A zero/negative ttl (with hasTTL true) removes
// the key rather than setting, per §4.1's expiration policy.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, isNull bool, ttl time.Duration, hasTTL bool) (bool, error) {
	return m.store(key, value, isNull, ttl, hasTTL)
}

// Add implements Cache: only stores if the key is absent or expired.
func (m *MemoryStore) Add(ctx context.Context, key string, value []byte, isNull bool, ttl time.Duration, hasTTL bool) (bool, error) {
	existing, _ := m.Get(ctx, key)
	if existing.Found() {
		return false, nil
	}
	return m.store(key, value, isNull, ttl, hasTTL)
}

// Replace implements Cache: only stores if the key is present.
func (m *MemoryStore) Replace(ctx context.Context, key string, value []byte, isNull bool, ttl time.Duration, hasTTL bool) (bool, error) {
	existing, _ := m.Get(ctx, key)
	if !existing.Found() {
		return false, nil
	}
	return m.store(key, value, isNull, ttl, hasTTL)
}

// ReplaceIfEqual implements Cache: a compare-and-swap against the
// currently stored bytes.
func (m *MemoryStore) ReplaceIfEqual(ctx context.Context, key string, expected, value []byte, ttl time.Duration, hasTTL bool) (bool, error) {
	s := m.shardFor(key)
	s.mu.Lock()
	e, ok := s.data[key]
	if !ok || m.isExpired(e) || string(e.value) != string(expected) || e.isNull {
		s.mu.Unlock()
		return false, nil
	}
	s.mu.Unlock()
	return m.store(key, value, false, ttl, hasTTL)
}

// Remove implements Cache.
func (m *MemoryStore) Remove(_ context.Context, key string) (bool, error) {
	s := m.shardFor(key)
	s.mu.Lock()
	_, ok := s.data[key]
	if ok {
		s.deleteLocked(key)
	}
	s.mu.Unlock()
	return ok, nil
}

// RemoveIfEqual implements Cache.
func (m *MemoryStore) RemoveIfEqual(_ context.Context, key string, expected []byte) (bool, error) {
	s := m.shardFor(key)
	s.mu.Lock()
	e, ok := s.data[key]
	if !ok || string(e.value) != string(expected) {
		s.mu.Unlock()
		return false, nil
	}
	s.deleteLocked(key)
	s.mu.Unlock()
	return true, nil
}

// RemoveMany implements Cache. Not atomic as a group; per-key atomicity
// is sufficient per §4.1.
func (m *MemoryStore) RemoveMany(_ context.Context, keys []string) (int, error) {
	removed := 0
	for _, k := range keys {
		s := m.shardFor(k)
		s.mu.Lock()
		if _, ok := s.data[k]; ok {
			s.deleteLocked(k)
			removed++
		}
		s.mu.Unlock()
	}
	return removed, nil
}

// RemoveByPrefix implements Cache. An empty prefix matches all keys,
// per §8's boundary behavior.
func (m *MemoryStore) RemoveByPrefix(_ context.Context, prefix string) (int, error) {
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for k := range s.data {
			if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
				s.deleteLocked(k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed, nil
}

// RemoveAll implements Cache: clears every shard.
func (m *MemoryStore) RemoveAll(_ context.Context) (int, error) {
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		removed += s.itemCount
		s.data = make(map[string]*entry)
		s.head.next = s.tail
		s.tail.prev = s.head
		s.itemCount = 0
		s.byteSize = 0
		s.mu.Unlock()
	}
	return removed, nil
}

// Increment implements Cache's integer increment. A missing ttl (per
// §4.1) retains the existing expiration.
func (m *MemoryStore) Increment(_ context.Context, key string, delta int64, ttl time.Duration, hasTTL bool) (int64, error) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	var current int64
	var expiresAt time.Time
	var hasExpiry bool
	if ok && !m.isExpired(e) {
		current, _ = decodeInt(e.value)
		expiresAt, hasExpiry = e.expiresAt, e.hasExpiry
	}
	newValue := current + delta

	if hasTTL {
		if ttl <= 0 {
			s.deleteLocked(key)
			return newValue, nil
		}
		expiresAt, hasExpiry = m.now().Add(ttl), true
	}

	data := encodeInt(newValue)
	ne := &entry{value: data, hasExpiry: hasExpiry, expiresAt: expiresAt, created: m.now(), size: m.sizer.Size(data, false)}
	s.insertLocked(key, ne)
	return newValue, nil
}

// IncrementFloat implements Cache's floating increment (IEEE-754
// double), kept as a separate entry point from Increment per §9's
// resolved open question.
func (m *MemoryStore) IncrementFloat(_ context.Context, key string, delta float64, ttl time.Duration, hasTTL bool) (float64, error) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	var current float64
	var expiresAt time.Time
	var hasExpiry bool
	if ok && !m.isExpired(e) {
		current, _ = decodeFloat(e.value)
		expiresAt, hasExpiry = e.expiresAt, e.hasExpiry
	}
	newValue := current + delta

	if hasTTL {
		if ttl <= 0 {
			s.deleteLocked(key)
			return newValue, nil
		}
		expiresAt, hasExpiry = m.now().Add(ttl), true
	}

	data := encodeFloat(newValue)
	ne := &entry{value: data, hasExpiry: hasExpiry, expiresAt: expiresAt, created: m.now(), size: m.sizer.Size(data, false)}
	s.insertLocked(key, ne)
	return newValue, nil
}

// SetIfHigher implements Cache: stores value if greater than the
// current stored value (or if absent), returning the difference applied.
func (m *MemoryStore) SetIfHigher(_ context.Context, key string, value float64, ttl time.Duration, hasTTL bool) (float64, error) {
	return m.setIfCompare(key, value, ttl, hasTTL, func(current, candidate float64) bool { return candidate > current })
}

// SetIfLower implements Cache, symmetric to SetIfHigher.
func (m *MemoryStore) SetIfLower(_ context.Context, key string, value float64, ttl time.Duration, hasTTL bool) (float64, error) {
	return m.setIfCompare(key, value, ttl, hasTTL, func(current, candidate float64) bool { return candidate < current })
}

func (m *MemoryStore) setIfCompare(key string, value float64, ttl time.Duration, hasTTL bool, better func(current, candidate float64) bool) (float64, error) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	var current float64
	hadCurrent := false
	if ok && !m.isExpired(e) {
		current, hadCurrent = decodeFloat(e.value)
	}

	if hadCurrent && !better(current, value) {
		return 0, nil
	}

	expiresAt, has := m.expiresAt(ttl, hasTTL)
	if ok && !hasTTL {
		expiresAt, has = e.expiresAt, e.hasExpiry
	}
	data := encodeFloat(value)
	ne := &entry{value: data, hasExpiry: has, expiresAt: expiresAt, created: m.now(), size: m.sizer.Size(data, false)}
	s.insertLocked(key, ne)

	if hadCurrent {
		return value - current, nil
	}
	return value, nil
}

// ListAdd implements Cache: appends items not already present, per
// set-on-full-success/remove-to-invalidate classification upstream.
func (m *MemoryStore) ListAdd(_ context.Context, key string, items [][]byte, ttl time.Duration, hasTTL bool) (int, error) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	var existing [][]byte
	var expiresAt time.Time
	var hasExpiry bool
	if ok && !m.isExpired(e) {
		existing = decodeList(e.value)
		expiresAt, hasExpiry = e.expiresAt, e.hasExpiry
	}

	added := 0
	for _, item := range items {
		if !listContains(existing, item) {
			existing = append(existing, item)
			added++
		}
	}

	if hasTTL {
		if ttl <= 0 {
			s.deleteLocked(key)
			return added, nil
		}
		expiresAt, hasExpiry = m.now().Add(ttl), true
	}

	data := encodeList(existing)
	ne := &entry{value: data, hasExpiry: hasExpiry, expiresAt: expiresAt, created: m.now(), size: m.sizer.Size(data, false)}
	s.insertLocked(key, ne)
	return added, nil
}

// ListRemove implements Cache: removes matching items from the list.
func (m *MemoryStore) ListRemove(_ context.Context, key string, items [][]byte) (int, error) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok || m.isExpired(e) {
		return 0, nil
	}
	existing := decodeList(e.value)
	removed := 0
	kept := existing[:0]
	for _, item := range existing {
		if listContains(items, item) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	if removed == 0 {
		return 0, nil
	}

	data := encodeList(kept)
	ne := &entry{value: data, hasExpiry: e.hasExpiry, expiresAt: e.expiresAt, created: e.created, size: m.sizer.Size(data, false)}
	s.insertLocked(key, ne)
	return removed, nil
}

// GetExpiration implements Cache.
func (m *MemoryStore) GetExpiration(_ context.Context, key string) (time.Duration, bool, error) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok || m.isExpired(e) || !e.hasExpiry {
		return 0, false, nil
	}
	return e.expiresAt.Sub(m.now()), true, nil
}

// SetExpiration implements Cache. A zero/negative ttl removes the key.
func (m *MemoryStore) SetExpiration(_ context.Context, key string, ttl time.Duration) error {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok || m.isExpired(e) {
		return nil
	}
	if ttl <= 0 {
		s.deleteLocked(key)
		return nil
	}
	e.expiresAt = m.now().Add(ttl)
	e.hasExpiry = true
	return nil
}

// Snapshot returns a point-in-time copy of this store's counters,
// including itemCount and currentMemorySize summed across shards.
func (m *MemoryStore) Snapshot() Snapshot {
	snap := m.stats.snapshot()
	for _, s := range m.shards {
		s.mu.Lock()
		snap.ItemCount += s.itemCount
		snap.CurrentMemorySize += s.byteSize
		s.mu.Unlock()
	}
	return snap
}
