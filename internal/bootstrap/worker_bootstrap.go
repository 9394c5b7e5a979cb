// Package bootstrap wires config, the chosen L2/bus backend, the
// HybridCoordinator and the admin HTTP surface together, mirroring the
// teacher's NewAPI(cfg) (*fiber.App, func(), error) shape.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"

	adminhttp "hybridcache/adapter/in/http"
	"hybridcache/adapter/out/cache/breaker"
	"hybridcache/adapter/out/cache/mongostore"
	"hybridcache/adapter/out/cache/pgstore"
	"hybridcache/adapter/out/cache/redisstore"
	"hybridcache/config"
	"hybridcache/core/cache"
	"hybridcache/core/port/out"
	"hybridcache/infra/database"
	"hybridcache/infra/middleware"
	"hybridcache/pkg/logger"
)

// App bundles the running admin server with its backing collaborators,
// so main.go can shut everything down in order (NewAdminServer has
// already started Subscribe when there is a bus).
type App struct {
	Fiber       *fiber.App
	Coordinator *cache.HybridCoordinator

	unsubscribe func()
	closers     []func() error
}

// Shutdown releases the subscriber loop and every backing connection,
// in reverse wiring order.
func (a *App) Shutdown() error {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewAdminServer builds the coordinator for cfg.Backend, wraps L2 in a
// circuit breaker, and assembles the admin fiber app exposing §10's
// stats/health/flush/remove-by-prefix surface.
func NewAdminServer(cfg *config.Config) (*App, error) {
	logLevel := logger.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{Level: logLevel, Service: "hybridcache-admin"})

	app := &App{}

	l2, bus, backendName, pinger, err := wireBackend(cfg, app)
	if err != nil {
		return nil, err
	}
	guarded := breaker.New(l2, string(cfg.Backend))

	coordinator := cache.NewHybridCoordinator(guarded, bus, cache.CoordinatorConfig{
		L1: cache.MemoryStoreConfig{
			MaxItems:      cfg.L1MaxItems,
			MaxMemorySize: cfg.L1MaxMemoryBytes,
			MaxEntrySize:  cfg.L1MaxEntryBytes,
			SizingMode:    cache.SizingDynamic,
			ShardCount:    cfg.L1ShardCount,
		},
		Topic:          cfg.InvalidationTopic,
		PublisherID:    []byte(cfg.PublisherID),
		PublishRetries: cfg.PublishRetries,
		PublishBackoff: cfg.PublishBackoff,
	})
	app.Coordinator = coordinator

	if bus != nil {
		cancel, err := coordinator.Subscribe(context.Background())
		if err != nil {
			logger.WithError(err).Warn("failed to subscribe to invalidation bus, running without cross-instance invalidation")
		} else {
			app.unsubscribe = cancel
		}
	}

	fiberApp := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             1 << 20,
	})

	fiberApp.Use(middleware.Recover())
	fiberApp.Use(middleware.RequestID())
	fiberApp.Use(middleware.SecurityHeaders())
	fiberApp.Use(middleware.RequestLogger())
	fiberApp.Use(middleware.AuditMiddleware())
	fiberApp.Use(cors.New(cors.Config{AllowOrigins: joinOrigins(cfg.AllowedOrigins)}))
	fiberApp.Use(compress.New())

	adminhttp.NewHealthHandler(backendName, pinger).Register(fiberApp)

	admin := fiberApp.Group("/admin", middleware.JWTAuth(cfg.JWTSecret), middleware.SensitiveEndpointLimiter(30, time.Minute))
	adminhttp.NewCacheAdminHandler(coordinator).Register(admin)

	app.Fiber = fiberApp
	return app, nil
}

func joinOrigins(origins []string) string {
	out := ""
	for i, o := range origins {
		if i > 0 {
			out += ","
		}
		out += o
	}
	return out
}

// wireBackend builds the DistributedStore/InvalidationBus pair for
// cfg.Backend, registering every opened connection as a closer on app.
func wireBackend(cfg *config.Config, app *App) (out.DistributedStore, out.InvalidationBus, string, adminhttp.Pinger, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		client, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			return nil, nil, "", nil, fmt.Errorf("connect redis: %w", err)
		}
		app.closers = append(app.closers, client.Close)
		store := redisstore.New(client, "hybridcache")
		return store, redisstore.NewBus(client), "redis", store, nil

	case config.BackendPostgres:
		pool, err := database.NewPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, "", nil, fmt.Errorf("connect postgres: %w", err)
		}
		app.closers = append(app.closers, func() error { pool.Close(); return nil })
		store := pgstore.New(pool, cfg.PostgresTable)
		if err := store.EnsureSchema(context.Background()); err != nil {
			return nil, nil, "", nil, fmt.Errorf("ensure postgres schema: %w", err)
		}
		bus, err := redisBusOrNil(cfg, app)
		if err != nil {
			return nil, nil, "", nil, err
		}
		return store, bus, "postgres", pgPinger(pool), nil

	case config.BackendMongo:
		client, err := database.NewMongo(cfg.MongoURL)
		if err != nil {
			return nil, nil, "", nil, fmt.Errorf("connect mongo: %w", err)
		}
		app.closers = append(app.closers, func() error { return client.Disconnect(context.Background()) })
		collection := client.Database(cfg.MongoDB).Collection(cfg.MongoCollection)
		store := mongostore.New(collection)
		if err := store.EnsureIndexes(context.Background()); err != nil {
			return nil, nil, "", nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		bus, err := redisBusOrNil(cfg, app)
		if err != nil {
			return nil, nil, "", nil, err
		}
		return store, bus, "mongo", mongoPinger(client), nil

	default:
		return nil, nil, "", nil, fmt.Errorf("unknown CACHE_BACKEND %q", cfg.Backend)
	}
}

// redisBusOrNil gives Postgres/Mongo-backed deployments cross-instance
// invalidation too, reusing Redis pub/sub as the bus even when Redis
// isn't the store of record. A single-instance deployment without
// REDIS_URL simply runs with no bus: L1 entries expire on their own TTL.
func redisBusOrNil(cfg *config.Config, app *App) (out.InvalidationBus, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	client, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect redis invalidation bus: %w", err)
	}
	app.closers = append(app.closers, client.Close)
	return redisstore.NewBus(client), nil
}

type pgPingerFunc func(ctx context.Context) error

func (f pgPingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func pgPinger(pool *pgxpool.Pool) adminhttp.Pinger {
	return pgPingerFunc(pool.Ping)
}

type mongoPingerFunc func(ctx context.Context) error

func (f mongoPingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func mongoPinger(client *mongo.Client) adminhttp.Pinger {
	return mongoPingerFunc(func(ctx context.Context) error { return client.Ping(ctx, nil) })
}
