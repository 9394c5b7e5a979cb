package cache

import (
	"context"
	"testing"
)

func TestScopedViewQualifiesKeys(t *testing.T) {
	m := NewMemoryStore(DefaultMemoryStoreConfig(), nil)
	view := NewScopedView(m, "tenant-a")
	ctx := context.Background()

	if _, err := view.Set(ctx, "k1", []byte("v1"), false, 0, false); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// the underlying store sees the qualified key, not the raw one.
	raw, _ := m.Get(ctx, "tenant-a:k1")
	if !raw.Found() {
		t.Errorf("underlying store missing qualified key tenant-a:k1")
	}

	v, err := view.Get(ctx, "k1")
	if err != nil || !v.Found() || string(v.Data) != "v1" {
		t.Fatalf("view.Get() = %+v, %v, want has-value v1", v, err)
	}
}

func TestScopedViewComposesPrefixes(t *testing.T) {
	m := NewMemoryStore(DefaultMemoryStoreConfig(), nil)
	outer := NewScopedView(m, "a")
	inner := NewScopedView(outer, "b")
	ctx := context.Background()

	inner.Set(ctx, "k1", []byte("v1"), false, 0, false)

	direct := NewScopedView(m, "a:b")
	v, _ := direct.Get(ctx, "k1")
	if !v.Found() || string(v.Data) != "v1" {
		t.Errorf("ScopedView(ScopedView(m,a),b) != ScopedView(m,a:b): got %+v", v)
	}
}

func TestScopedViewIsolatesKeySpaces(t *testing.T) {
	m := NewMemoryStore(DefaultMemoryStoreConfig(), nil)
	a := NewScopedView(m, "tenant-a")
	b := NewScopedView(m, "tenant-b")
	ctx := context.Background()

	a.Set(ctx, "shared-key", []byte("a-value"), false, 0, false)
	b.Set(ctx, "shared-key", []byte("b-value"), false, 0, false)

	va, _ := a.Get(ctx, "shared-key")
	vb, _ := b.Get(ctx, "shared-key")
	if string(va.Data) != "a-value" || string(vb.Data) != "b-value" {
		t.Errorf("scopes collided: a=%q b=%q", va.Data, vb.Data)
	}
}

func TestScopedViewRemoveAllOnlyClearsOwnScope(t *testing.T) {
	m := NewMemoryStore(DefaultMemoryStoreConfig(), nil)
	a := NewScopedView(m, "tenant-a")
	b := NewScopedView(m, "tenant-b")
	ctx := context.Background()

	a.Set(ctx, "k1", []byte("v1"), false, 0, false)
	b.Set(ctx, "k1", []byte("v1"), false, 0, false)

	n, err := a.RemoveAll(ctx)
	if err != nil || n != 1 {
		t.Fatalf("RemoveAll() = %d, %v, want 1, nil", n, err)
	}

	va, _ := a.Get(ctx, "k1")
	vb, _ := b.Get(ctx, "k1")
	if va.Found() {
		t.Errorf("tenant-a key survived its own scope's RemoveAll")
	}
	if !vb.Found() {
		t.Errorf("tenant-b key was cleared by tenant-a's RemoveAll")
	}
}
