package http

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"hybridcache/core/cache"
	"hybridcache/core/port/out"
)

// memStore is a minimal in-process out.DistributedStore, enough to drive
// the admin handler's stats/flush/remove-by-prefix routes without a live
// backend.
type memStore struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newMemStore() *memStore { return &memStore{values: make(map[string][]byte)} }

func (m *memStore) Get(ctx context.Context, key string) ([]byte, bool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, false, nil
}
func (m *memStore) GetMany(ctx context.Context, keys []string) (map[string]out.StoredValue, error) {
	return map[string]out.StoredValue{}, nil
}
func (m *memStore) Set(ctx context.Context, key string, value []byte, isNull bool, ttl time.Duration, onlyIfAbsent, onlyIfPresent bool) (out.ChangeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return out.ChangeResult{Changed: true}, nil
}
func (m *memStore) ReplaceIfEqual(ctx context.Context, key string, expected, value []byte, ttl time.Duration) (out.ChangeResult, error) {
	return out.ChangeResult{}, nil
}
func (m *memStore) Remove(ctx context.Context, key string) (out.ChangeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; !ok {
		return out.ChangeResult{}, nil
	}
	delete(m.values, key)
	return out.ChangeResult{Changed: true}, nil
}
func (m *memStore) RemoveIfEqual(ctx context.Context, key string, expected []byte) (out.ChangeResult, error) {
	return out.ChangeResult{}, nil
}
func (m *memStore) RemoveMany(ctx context.Context, keys []string) (out.ChangeResult, error) {
	return out.ChangeResult{}, nil
}
func (m *memStore) RemoveByPrefix(ctx context.Context, prefix string) (out.ChangeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for k := range m.values {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(m.values, k)
			count++
		}
	}
	return out.ChangeResult{Changed: count > 0, Count: count}, nil
}
func (m *memStore) RemoveAll(ctx context.Context) (out.ChangeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := len(m.values)
	m.values = make(map[string][]byte)
	return out.ChangeResult{Changed: count > 0, Count: count}, nil
}
func (m *memStore) Increment(ctx context.Context, key string, delta int64, ttl time.Duration, hasTTL bool) (int64, out.ChangeResult, error) {
	return 0, out.ChangeResult{}, nil
}
func (m *memStore) IncrementFloat(ctx context.Context, key string, delta float64, ttl time.Duration, hasTTL bool) (float64, out.ChangeResult, error) {
	return 0, out.ChangeResult{}, nil
}
func (m *memStore) SetIfHigher(ctx context.Context, key string, value float64, ttl time.Duration) (float64, out.ChangeResult, error) {
	return 0, out.ChangeResult{}, nil
}
func (m *memStore) SetIfLower(ctx context.Context, key string, value float64, ttl time.Duration) (float64, out.ChangeResult, error) {
	return 0, out.ChangeResult{}, nil
}
func (m *memStore) ListAdd(ctx context.Context, key string, items [][]byte, ttl time.Duration) (int, out.ChangeResult, error) {
	return 0, out.ChangeResult{}, nil
}
func (m *memStore) ListRemove(ctx context.Context, key string, items [][]byte) (int, out.ChangeResult, error) {
	return 0, out.ChangeResult{}, nil
}
func (m *memStore) GetExpiration(ctx context.Context, key string) (time.Duration, bool, error) {
	return 0, false, nil
}
func (m *memStore) SetExpiration(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}
func (m *memStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.values[key]
	return ok, nil
}

type noopBus struct{}

func (noopBus) Publish(ctx context.Context, topic string, payload []byte) error { return nil }
func (noopBus) Subscribe(ctx context.Context, topic string, handler func(payload []byte)) (func(), error) {
	return func() {}, nil
}

func newTestAdminApp(t *testing.T) *fiber.App {
	t.Helper()
	l2 := newMemStore()
	coordinator := cache.NewHybridCoordinator(l2, noopBus{}, cache.DefaultCoordinatorConfig())

	app := fiber.New()
	NewCacheAdminHandler(coordinator).Register(app.Group("/admin/cache"))

	ctx := context.Background()
	coordinator.Set(ctx, "user:1", []byte("a"), false, 0, false)
	coordinator.Set(ctx, "user:2", []byte("b"), false, 0, false)
	coordinator.Set(ctx, "order:1", []byte("c"), false, 0, false)
	return app
}

func TestCacheAdminStats(t *testing.T) {
	app := newTestAdminApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/admin/cache/stats", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("GET /admin/cache/stats status = %d, want 200", resp.StatusCode)
	}
}

func TestCacheAdminRemoveByPrefix(t *testing.T) {
	app := newTestAdminApp(t)

	resp, err := app.Test(httptest.NewRequest("DELETE", "/admin/cache/keys/user:", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("DELETE /admin/cache/keys/user: status = %d, want 200", resp.StatusCode)
	}
}

func TestCacheAdminFlush(t *testing.T) {
	app := newTestAdminApp(t)

	resp, err := app.Test(httptest.NewRequest("POST", "/admin/cache/flush", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("POST /admin/cache/flush status = %d, want 200", resp.StatusCode)
	}
}
