package mongostore

import (
	"context"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// newTestStore requires a live MongoDB reachable at MONGO_TEST_URL and is
// skipped in short mode or when no server answers, matching the gating
// used for the other backend adapters in the sibling packages.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping mongo-backed test in short mode")
	}

	url := os.Getenv("MONGO_TEST_URL")
	if url == "" {
		url = "mongodb://localhost:27017"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url))
	if err != nil {
		t.Skipf("cannot dial mongo at %s: %v", url, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		t.Skipf("no mongo reachable at %s: %v", url, err)
	}

	collection := client.Database("hybridcache_test").Collection("cache_entries_test")
	store := New(collection)
	if err := store.EnsureIndexes(context.Background()); err != nil {
		t.Fatalf("EnsureIndexes() error = %v", err)
	}
	t.Cleanup(func() {
		store.RemoveAll(context.Background())
		client.Disconnect(context.Background())
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

func TestStoreReplaceIfEqual(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Set(ctx, "k2", []byte("v1"), false, 0, false, false)

	res, err := s.ReplaceIfEqual(ctx, "k2", []byte("wrong"), []byte("v2"), 0)
	if err != nil || res.Changed {
		t.Fatalf("ReplaceIfEqual() with mismatched expected = %+v, %v, want Changed=false", res, err)
	}

	res, err = s.ReplaceIfEqual(ctx, "k2", []byte("v1"), []byte("v2"), 0)
	if err != nil || !res.Changed {
		t.Fatalf("ReplaceIfEqual() with matching expected = %+v, %v, want Changed=true", res, err)
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

func TestStoreRemoveByPrefix(t *testing.T) {
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
}
