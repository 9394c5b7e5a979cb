package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestStore requires a live Redis reachable at REDIS_TEST_URL (falling
// back to localhost:6379) and is skipped in short mode or when no server
// answers the initial ping, the way this pack gates its backend-dependent
// adapter tests.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis-backed test in short mode")
	}

	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		url = "redis://localhost:6379/15"
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("ParseURL(%q) error = %v", url, err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("no redis reachable at %s: %v", url, err)
	}

	store := New(client, "hybridcache-test")
	t.Cleanup(func() {
		store.RemoveAll(context.Background())
		client.Close()
	})
	return store
}

func TestStoreSetGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.Set(ctx, "k1", []byte("v1"), false, 0, false, false)
	if err != nil || !res.Changed {
		t.Fatalf("Set() = %+v, %v, want Changed=true, nil", res, err)
	}

	value, found, isNull, err := s.Get(ctx, "k1")
	if err != nil || !found || isNull || string(value) != "v1" {
		t.Fatalf("Get() = %q, %v, %v, %v, want v1, true, false, nil", value, found, isNull, err)
	}
}

func TestStoreSetOnlyIfAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, _ := s.Set(ctx, "k2", []byte("first"), false, 0, true, false)
	if !res.Changed {
		t.Fatalf("Set(onlyIfAbsent) on absent key = %+v, want Changed=true", res)
	}
	res, _ = s.Set(ctx, "k2", []byte("second"), false, 0, true, false)
	if res.Changed {
		t.Errorf("Set(onlyIfAbsent) on present key = %+v, want Changed=false", res)
	}
}

func TestStoreReplaceIfEqual(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Set(ctx, "k3", []byte("v1"), false, 0, false, false)

	res, err := s.ReplaceIfEqual(ctx, "k3", []byte("wrong"), []byte("v2"), 0)
	if err != nil || res.Changed {
		t.Fatalf("ReplaceIfEqual() with mismatched expected = %+v, %v, want Changed=false", res, err)
	}

	res, err = s.ReplaceIfEqual(ctx, "k3", []byte("v1"), []byte("v2"), 0)
	if err != nil || !res.Changed {
		t.Fatalf("ReplaceIfEqual() with matching expected = %+v, %v, want Changed=true", res, err)
	}

	value, _, _, _ := s.Get(ctx, "k3")
	if string(value) != "v2" {
		t.Errorf("Get() after ReplaceIfEqual = %q, want v2", value)
	}
}

func TestStoreRemoveByPrefixAndAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Set(ctx, "user:1", []byte("a"), false, 0, false, false)
	s.Set(ctx, "user:2", []byte("b"), false, 0, false, false)
	s.Set(ctx, "order:1", []byte("c"), false, 0, false, false)

	res, err := s.RemoveByPrefix(ctx, "user:")
	if err != nil || res.Count != 2 {
		t.Fatalf("RemoveByPrefix() = %+v, %v, want Count=2", res, err)
	}

	_, found, _, _ := s.Get(ctx, "order:1")
	if !found {
		t.Errorf("unrelated key was removed by prefix match")
	}

	res, err = s.RemoveAll(ctx)
	if err != nil || res.Count != 1 {
		t.Fatalf("RemoveAll() = %+v, %v, want Count=1 (remaining order:1)", res, err)
	}
}

func TestStoreRemoveByPrefixEscapesGlobMetacharacters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Set(ctx, "a*", []byte("1"), false, 0, false, false)
	s.Set(ctx, "ab", []byte("2"), false, 0, false, false)

	res, err := s.RemoveByPrefix(ctx, "a*")
	if err != nil || res.Count != 1 {
		t.Fatalf("RemoveByPrefix(%q) = %+v, %v, want Count=1 (exact-prefix match only)", "a*", res, err)
	}

	_, found, _, _ := s.Get(ctx, "ab")
	if !found {
		t.Errorf("RemoveByPrefix(%q) over-matched an unrelated key via an unescaped glob", "a*")
	}
}

func TestStoreIncrement(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, _, err := s.Increment(ctx, "counter", 5, 0, false)
	if err != nil || v != 5 {
		t.Fatalf("Increment() = %d, %v, want 5, nil", v, err)
	}
	v, _, err = s.Increment(ctx, "counter", 3, 0, false)
	if err != nil || v != 8 {
		t.Fatalf("Increment() = %d, %v, want 8, nil", v, err)
	}
}

func TestStoreListAddRemove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	added, _, err := s.ListAdd(ctx, "tags", [][]byte{[]byte("a"), []byte("b")}, 0)
	if err != nil || added != 2 {
		t.Fatalf("ListAdd() = %d, %v, want 2, nil", added, err)
	}

	removed, _, err := s.ListRemove(ctx, "tags", [][]byte{[]byte("a")})
	if err != nil || removed != 1 {
		t.Fatalf("ListRemove() = %d, %v, want 1, nil", removed, err)
	}
}

func TestStoreExpirationRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Set(ctx, "k4", []byte("v1"), false, 0, false, false)

	if err := s.SetExpiration(ctx, "k4", time.Minute); err != nil {
		t.Fatalf("SetExpiration() error = %v", err)
	}
	ttl, has, err := s.GetExpiration(ctx, "k4")
	if err != nil || !has || ttl <= 0 || ttl > time.Minute {
		t.Fatalf("GetExpiration() = %v, %v, %v, want (0,1m], true, nil", ttl, has, err)
	}
}
