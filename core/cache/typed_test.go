package cache

import (
	"context"
	"testing"

	"hybridcache/adapter/out/cache/jsonserializer"
)

type typedTestUser struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func TestTypedSetGetRoundTrip(t *testing.T) {
	m := NewMemoryStore(DefaultMemoryStoreConfig(), nil)
	typed := NewTyped[typedTestUser](m, jsonserializer.New())
	ctx := context.Background()

	ok, err := typed.Set(ctx, "u1", typedTestUser{Name: "ada", Age: 30}, 0, false)
	if err != nil || !ok {
		t.Fatalf("Set() = %v, %v, want true, nil", ok, err)
	}

	v, err := typed.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !v.Found() || v.Value.Name != "ada" || v.Value.Age != 30 {
		t.Errorf("Get() = %+v, want {ada 30}", v)
	}
}

func TestTypedGetMissing(t *testing.T) {
	m := NewMemoryStore(DefaultMemoryStoreConfig(), nil)
	typed := NewTyped[typedTestUser](m, jsonserializer.New())
	ctx := context.Background()

	v, err := typed.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if v.Found() {
		t.Errorf("Get(missing) = %+v, want not found", v)
	}
}

func TestTypedSetNull(t *testing.T) {
	m := NewMemoryStore(DefaultMemoryStoreConfig(), nil)
	typed := NewTyped[typedTestUser](m, jsonserializer.New())
	ctx := context.Background()

	if _, err := typed.SetNull(ctx, "u1", 0, false); err != nil {
		t.Fatalf("SetNull() error = %v", err)
	}

	v, err := typed.Get(ctx, "u1")
	if err != nil || !v.Found() || v.State != StateNull {
		t.Fatalf("Get() after SetNull = %+v, %v, want explicit-null", v, err)
	}
}
