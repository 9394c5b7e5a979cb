package cache

import "sync/atomic"

// Stats holds the observable counters named in §6: hits, misses,
// evictions, localCacheHits, invalidationsReceived, currentMemorySize,
// itemCount — plus the subscriber loop's own counters from §4.3.
type Stats struct {
	hits                   int64
	misses                 int64
	evictions              int64
	localCacheHits         int64
	invalidationsReceived  int64
	invalidationsApplied   int64
	selfDrops              int64
	publishedInvalidations int64
}

func (s *Stats) addHit()                   { atomic.AddInt64(&s.hits, 1) }
func (s *Stats) addMiss()                  { atomic.AddInt64(&s.misses, 1) }
func (s *Stats) addEviction(n int64)       { atomic.AddInt64(&s.evictions, n) }
func (s *Stats) addLocalHit()              { atomic.AddInt64(&s.localCacheHits, 1) }
func (s *Stats) addInvalidationReceived()  { atomic.AddInt64(&s.invalidationsReceived, 1) }
func (s *Stats) addInvalidationApplied()   { atomic.AddInt64(&s.invalidationsApplied, 1) }
func (s *Stats) addSelfDrop()              { atomic.AddInt64(&s.selfDrops, 1) }
func (s *Stats) addPublishedInvalidation() { atomic.AddInt64(&s.publishedInvalidations, 1) }

// Snapshot is a point-in-time, allocation-free copy of Stats' counters.
type Snapshot struct {
	Hits                   int64
	Misses                 int64
	Evictions              int64
	LocalCacheHits         int64
	InvalidationsReceived  int64
	InvalidationsApplied   int64
	SelfDrops              int64
	PublishedInvalidations int64
	ItemCount              int
	CurrentMemorySize      int
}

func (s *Stats) snapshot() Snapshot {
	return Snapshot{
		Hits:                   atomic.LoadInt64(&s.hits),
		Misses:                 atomic.LoadInt64(&s.misses),
		Evictions:              atomic.LoadInt64(&s.evictions),
		LocalCacheHits:         atomic.LoadInt64(&s.localCacheHits),
		InvalidationsReceived:  atomic.LoadInt64(&s.invalidationsReceived),
		InvalidationsApplied:   atomic.LoadInt64(&s.invalidationsApplied),
		SelfDrops:              atomic.LoadInt64(&s.selfDrops),
		PublishedInvalidations: atomic.LoadInt64(&s.publishedInvalidations),
	}
}
