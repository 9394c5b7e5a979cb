package config

import (
	"testing"
	"time"
)

func clearCacheEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"ENV", "ADMIN_PORT", "CACHE_BACKEND", "REDIS_URL", "POSTGRES_DSN",
		"POSTGRES_CACHE_TABLE", "MONGODB_URL", "MONGODB_DATABASE",
		"MONGODB_CACHE_COLLECTION", "INVALIDATION_TOPIC", "PUBLISHER_ID",
		"L1_MAX_ITEMS", "L1_MAX_MEMORY_BYTES", "L1_MAX_ENTRY_BYTES",
		"L1_SHARD_COUNT", "PUBLISH_RETRIES", "PUBLISH_BACKOFF_MS",
		"ADMIN_JWT_SECRET", "ALLOWED_ORIGINS",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearCacheEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Backend != BackendRedis {
		t.Errorf("Backend = %q, want %q", cfg.Backend, BackendRedis)
	}
	if cfg.AdminPort != "8080" {
		t.Errorf("AdminPort = %q, want 8080", cfg.AdminPort)
	}
	if cfg.L1MaxItems != 100_000 {
		t.Errorf("L1MaxItems = %d, want 100000", cfg.L1MaxItems)
	}
	if cfg.PublishBackoff != 50*time.Millisecond {
		t.Errorf("PublishBackoff = %v, want 50ms", cfg.PublishBackoff)
	}
	if !cfg.IsDevelopment() || cfg.IsProduction() {
		t.Errorf("default Environment = %q, want development", cfg.Environment)
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	clearCacheEnv(t)

	t.Setenv("CACHE_BACKEND", "postgres")
	t.Setenv("ENV", "production")
	t.Setenv("L1_MAX_ITEMS", "5000")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Backend != BackendPostgres {
		t.Errorf("Backend = %q, want postgres", cfg.Backend)
	}
	if !cfg.IsProduction() {
		t.Errorf("IsProduction() = false, want true")
	}
	if cfg.L1MaxItems != 5000 {
		t.Errorf("L1MaxItems = %d, want 5000", cfg.L1MaxItems)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://a.example.com" {
		t.Errorf("AllowedOrigins = %v, want 2 parsed origins", cfg.AllowedOrigins)
	}
}

func TestGenerateInstanceIDIsStable(t *testing.T) {
	a := generateInstanceID()
	b := generateInstanceID()
	if a != b {
		t.Errorf("generateInstanceID() not stable within one process: %q != %q", a, b)
	}
	if a == "" {
		t.Errorf("generateInstanceID() = empty string")
	}
}
