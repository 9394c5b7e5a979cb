package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreSetGet(t *testing.T) {
	m := NewMemoryStore(DefaultMemoryStoreConfig(), nil)
	ctx := context.Background()

	ok, err := m.Set(ctx, "k1", []byte("v1"), false, 0, false)
	if err != nil || !ok {
		t.Fatalf("Set() = %v, %v", ok, err)
	}

	v, err := m.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !v.Found() || v.State != StateHasValue || string(v.Data) != "v1" {
		t.Errorf("Get() = %+v, want has-value v1", v)
	}

	v, _ = m.Get(ctx, "missing")
	if v.Found() {
		t.Errorf("Get(missing) = %+v, want not found", v)
	}
}

func TestMemoryStoreSetNull(t *testing.T) {
	m := NewMemoryStore(DefaultMemoryStoreConfig(), nil)
	ctx := context.Background()

	if _, err := m.Set(ctx, "k1", nil, true, 0, false); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	v, _ := m.Get(ctx, "k1")
	if !v.Found() || v.State != StateNull {
		t.Errorf("Get() = %+v, want explicit-null", v)
	}
}

func TestMemoryStoreTTLExpires(t *testing.T) {
	m := NewMemoryStore(DefaultMemoryStoreConfig(), nil)
	fixed := time.Now()
	m.now = func() time.Time { return fixed }
	ctx := context.Background()

	if _, err := m.Set(ctx, "k1", []byte("v1"), false, time.Second, true); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	v, _ := m.Get(ctx, "k1")
	if !v.Found() {
		t.Fatalf("Get() before expiry = not found")
	}

	m.now = func() time.Time { return fixed.Add(2 * time.Second) }
	v, _ = m.Get(ctx, "k1")
	if v.Found() {
		t.Errorf("Get() after expiry = %+v, want not found", v)
	}
}

func TestMemoryStoreSetZeroTTLRemoves(t *testing.T) {
	m := NewMemoryStore(DefaultMemoryStoreConfig(), nil)
	ctx := context.Background()

	if _, err := m.Set(ctx, "k1", []byte("v1"), false, 0, false); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, err := m.Set(ctx, "k1", []byte("v2"), false, 0, true); err != nil {
		t.Fatalf("Set() with zero ttl error = %v", err)
	}

	v, _ := m.Get(ctx, "k1")
	if v.Found() {
		t.Errorf("Get() after zero-ttl Set = %+v, want removed", v)
	}
}

func TestMemoryStoreAddReplace(t *testing.T) {
	m := NewMemoryStore(DefaultMemoryStoreConfig(), nil)
	ctx := context.Background()

	ok, _ := m.Add(ctx, "k1", []byte("v1"), false, 0, false)
	if !ok {
		t.Fatalf("Add() on absent key = false, want true")
	}
	ok, _ = m.Add(ctx, "k1", []byte("v2"), false, 0, false)
	if ok {
		t.Errorf("Add() on present key = true, want false")
	}

	ok, _ = m.Replace(ctx, "missing", []byte("v"), false, 0, false)
	if ok {
		t.Errorf("Replace() on absent key = true, want false")
	}
	ok, _ = m.Replace(ctx, "k1", []byte("v3"), false, 0, false)
	if !ok {
		t.Errorf("Replace() on present key = false, want true")
	}
	v, _ := m.Get(ctx, "k1")
	if string(v.Data) != "v3" {
		t.Errorf("Get() after Replace = %q, want v3", v.Data)
	}
}

func TestMemoryStoreReplaceIfEqual(t *testing.T) {
	m := NewMemoryStore(DefaultMemoryStoreConfig(), nil)
	ctx := context.Background()

	m.Set(ctx, "k1", []byte("v1"), false, 0, false)

	ok, _ := m.ReplaceIfEqual(ctx, "k1", []byte("wrong"), []byte("v2"), 0, false)
	if ok {
		t.Errorf("ReplaceIfEqual() with mismatched expected = true, want false")
	}
	ok, _ = m.ReplaceIfEqual(ctx, "k1", []byte("v1"), []byte("v2"), 0, false)
	if !ok {
		t.Errorf("ReplaceIfEqual() with matching expected = false, want true")
	}
	v, _ := m.Get(ctx, "k1")
	if string(v.Data) != "v2" {
		t.Errorf("Get() after ReplaceIfEqual = %q, want v2", v.Data)
	}
}

func TestMemoryStoreRemove(t *testing.T) {
	m := NewMemoryStore(DefaultMemoryStoreConfig(), nil)
	ctx := context.Background()

	m.Set(ctx, "k1", []byte("v1"), false, 0, false)

	ok, _ := m.Remove(ctx, "k1")
	if !ok {
		t.Errorf("Remove() = false, want true")
	}
	ok, _ = m.Remove(ctx, "k1")
	if ok {
		t.Errorf("Remove() on already-removed key = true, want false")
	}
}

func TestMemoryStoreRemoveByPrefix(t *testing.T) {
	m := NewMemoryStore(DefaultMemoryStoreConfig(), nil)
	ctx := context.Background()

	m.Set(ctx, "user:1", []byte("a"), false, 0, false)
	m.Set(ctx, "user:2", []byte("b"), false, 0, false)
	m.Set(ctx, "order:1", []byte("c"), false, 0, false)

	n, err := m.RemoveByPrefix(ctx, "user:")
	if err != nil || n != 2 {
		t.Fatalf("RemoveByPrefix() = %d, %v, want 2, nil", n, err)
	}

	v, _ := m.Get(ctx, "order:1")
	if !v.Found() {
		t.Errorf("unrelated key was removed by prefix match")
	}
}

func TestMemoryStoreRemoveAll(t *testing.T) {
	m := NewMemoryStore(DefaultMemoryStoreConfig(), nil)
	ctx := context.Background()

	m.Set(ctx, "a", []byte("1"), false, 0, false)
	m.Set(ctx, "b", []byte("2"), false, 0, false)

	n, _ := m.RemoveAll(ctx)
	if n != 2 {
		t.Errorf("RemoveAll() = %d, want 2", n)
	}
	snap := m.Snapshot()
	if snap.ItemCount != 0 {
		t.Errorf("ItemCount after RemoveAll = %d, want 0", snap.ItemCount)
	}
}

func TestMemoryStoreIncrement(t *testing.T) {
	m := NewMemoryStore(DefaultMemoryStoreConfig(), nil)
	ctx := context.Background()

	v, err := m.Increment(ctx, "counter", 5, 0, false)
	if err != nil || v != 5 {
		t.Fatalf("Increment() = %d, %v, want 5, nil", v, err)
	}
	v, _ = m.Increment(ctx, "counter", 3, 0, false)
	if v != 8 {
		t.Errorf("Increment() = %d, want 8", v)
	}
	v, _ = m.Increment(ctx, "counter", -10, 0, false)
	if v != -2 {
		t.Errorf("Increment() with negative delta = %d, want -2", v)
	}
}

func TestMemoryStoreSetIfHigherLower(t *testing.T) {
	m := NewMemoryStore(DefaultMemoryStoreConfig(), nil)
	ctx := context.Background()

	diff, err := m.SetIfHigher(ctx, "score", 10, 0, false)
	if err != nil || diff != 10 {
		t.Fatalf("SetIfHigher() first write = %v, %v, want 10, nil", diff, err)
	}

	diff, _ = m.SetIfHigher(ctx, "score", 5, 0, false)
	if diff != 0 {
		t.Errorf("SetIfHigher() with lower value = %v, want 0 (no-op)", diff)
	}
	diff, _ = m.SetIfHigher(ctx, "score", 20, 0, false)
	if diff != 10 {
		t.Errorf("SetIfHigher() with higher value = %v, want 10", diff)
	}

	diff, _ = m.SetIfLower(ctx, "score", 30, 0, false)
	if diff != 0 {
		t.Errorf("SetIfLower() with higher value = %v, want 0 (no-op)", diff)
	}
	diff, _ = m.SetIfLower(ctx, "score", 5, 0, false)
	if diff != -15 {
		t.Errorf("SetIfLower() with lower value = %v, want -15", diff)
	}
}

func TestMemoryStoreListAddRemove(t *testing.T) {
	m := NewMemoryStore(DefaultMemoryStoreConfig(), nil)
	ctx := context.Background()

	added, err := m.ListAdd(ctx, "tags", [][]byte{[]byte("a"), []byte("b")}, 0, false)
	if err != nil || added != 2 {
		t.Fatalf("ListAdd() = %d, %v, want 2, nil", added, err)
	}

	added, _ = m.ListAdd(ctx, "tags", [][]byte{[]byte("b"), []byte("c")}, 0, false)
	if added != 1 {
		t.Errorf("ListAdd() with one duplicate = %d, want 1", added)
	}

	removed, _ := m.ListRemove(ctx, "tags", [][]byte{[]byte("a")})
	if removed != 1 {
		t.Errorf("ListRemove() = %d, want 1", removed)
	}
}

func TestMemoryStoreGetSetExpiration(t *testing.T) {
	m := NewMemoryStore(DefaultMemoryStoreConfig(), nil)
	ctx := context.Background()

	m.Set(ctx, "k1", []byte("v1"), false, 0, false)

	_, has, _ := m.GetExpiration(ctx, "k1")
	if has {
		t.Errorf("GetExpiration() on no-ttl key reports an expiry")
	}

	if err := m.SetExpiration(ctx, "k1", time.Minute); err != nil {
		t.Fatalf("SetExpiration() error = %v", err)
	}
	ttl, has, _ := m.GetExpiration(ctx, "k1")
	if !has || ttl <= 0 || ttl > time.Minute {
		t.Errorf("GetExpiration() after SetExpiration = %v, %v", ttl, has)
	}
}

func TestMemoryStoreMaxEntrySize(t *testing.T) {
	cfg := DefaultMemoryStoreConfig()
	cfg.MaxEntrySize = 4
	cfg.StrictEntrySize = false
	m := NewMemoryStore(cfg, nil)
	ctx := context.Background()

	ok, err := m.Set(ctx, "k1", []byte("toolong"), false, 0, false)
	if err != nil || ok {
		t.Fatalf("Set() oversized non-strict = %v, %v, want false, nil", ok, err)
	}

	cfg.StrictEntrySize = true
	m = NewMemoryStore(cfg, nil)
	_, err = m.Set(ctx, "k1", []byte("toolong"), false, 0, false)
	if err == nil {
		t.Errorf("Set() oversized strict = nil error, want cacheerr.EntryTooLarge")
	}
}

func TestMemoryStoreMaxItemsEvicts(t *testing.T) {
	cfg := DefaultMemoryStoreConfig()
	cfg.ShardCount = 1
	cfg.MaxItems = 2
	m := NewMemoryStore(cfg, nil)
	ctx := context.Background()

	m.Set(ctx, "a", []byte("1"), false, 0, false)
	m.Set(ctx, "b", []byte("2"), false, 0, false)
	m.Set(ctx, "c", []byte("3"), false, 0, false)

	snap := m.Snapshot()
	if snap.ItemCount != 2 {
		t.Fatalf("ItemCount = %d, want 2 (bounded by MaxItems)", snap.ItemCount)
	}
	if snap.Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", snap.Evictions)
	}

	v, _ := m.Get(ctx, "a")
	if v.Found() {
		t.Errorf("oldest key 'a' survived eviction, want evicted")
	}
}
