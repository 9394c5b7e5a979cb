package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// generateInstanceID creates a unique per-process identity using
// hostname and PID, used as a fallback PublisherID seed when
// PUBLISHER_ID isn't set explicitly.
func generateInstanceID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "hybridcache"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

// Backend selects which out.DistributedStore/InvalidationBus adapter
// pair main.go wires up.
type Backend string

const (
	BackendRedis    Backend = "redis"
	BackendPostgres Backend = "postgres"
	BackendMongo    Backend = "mongo"
)

type Config struct {
	Environment string
	AdminPort   string

	// L2 backend selection
	Backend Backend

	// Redis (L2 store, invalidation bus, or both depending on Backend)
	RedisURL string

	// Postgres (L2 store only; bus still needs Redis or falls back to
	// a no-op single-instance bus)
	PostgresDSN   string
	PostgresTable string

	// Mongo (L2 store only)
	MongoURL        string
	MongoDB         string
	MongoCollection string

	// Invalidation topic and publisher identity
	InvalidationTopic string
	PublisherID       string

	// L1 sizing (§2's MaxItems/MaxMemorySize/MaxEntrySize/ShardCount)
	L1MaxItems       int
	L1MaxMemoryBytes int
	L1MaxEntryBytes  int
	L1ShardCount     int

	// Coordinator backpressure (§5)
	PublishRetries int
	PublishBackoff time.Duration

	// Admin surface auth
	JWTSecret string

	// CORS
	AllowedOrigins []string
}

// Load reads configuration from the environment, loading a .env file
// first if present (ignored if missing, matching the teacher's
// bootstrap convention of optional local overrides).
func Load() (*Config, error) {
	_ = godotenv.Load()

	// Only the Redis backend falls back to a local Redis; Postgres and
	// Mongo deployments get an invalidation bus only when REDIS_URL is set.
	backend := Backend(getEnv("CACHE_BACKEND", string(BackendRedis)))
	redisDefault := ""
	if backend == BackendRedis {
		redisDefault = "redis://localhost:6379/0"
	}

	return &Config{
		Environment: getEnv("ENV", "development"),
		AdminPort:   getEnv("ADMIN_PORT", "8080"),

		Backend: backend,

		RedisURL: getEnv("REDIS_URL", redisDefault),

		PostgresDSN:   getEnv("POSTGRES_DSN", ""),
		PostgresTable: getEnv("POSTGRES_CACHE_TABLE", "cache_entries"),

		MongoURL:        getEnv("MONGODB_URL", ""),
		MongoDB:         getEnv("MONGODB_DATABASE", "hybridcache"),
		MongoCollection: getEnv("MONGODB_CACHE_COLLECTION", "cache_entries"),

		InvalidationTopic: getEnv("INVALIDATION_TOPIC", "hybridcache:invalidations"),
		PublisherID:       getEnv("PUBLISHER_ID", generateInstanceID()),

		L1MaxItems:       getEnvInt("L1_MAX_ITEMS", 100_000),
		L1MaxMemoryBytes: getEnvInt("L1_MAX_MEMORY_BYTES", 256<<20),
		L1MaxEntryBytes:  getEnvInt("L1_MAX_ENTRY_BYTES", 0),
		L1ShardCount:     getEnvInt("L1_SHARD_COUNT", 32),

		PublishRetries: getEnvInt("PUBLISH_RETRIES", 3),
		PublishBackoff: time.Duration(getEnvInt("PUBLISH_BACKOFF_MS", 50)) * time.Millisecond,

		JWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
