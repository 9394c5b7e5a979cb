package pgstore

import (
	"context"

	"github.com/jmoiron/sqlx"

	_ "github.com/lib/pq" // registers the "postgres" database/sql driver sqlx dials through
)

// HealthChecker pings Postgres over a plain database/sql connection,
// the way the teacher's bootstrap wiring keeps a sqlx handle alongside
// pgx for tooling (migrations, readiness probes) that expects
// database/sql rather than pgx's own pool type.
type HealthChecker struct {
	db *sqlx.DB
}

// NewHealthChecker opens a sqlx connection to dsn using the lib/pq
// driver. Callers should Close it on shutdown.
func NewHealthChecker(dsn string) (*HealthChecker, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &HealthChecker{db: db}, nil
}

// Ping verifies connectivity, used by the admin surface's /ready probe.
func (h *HealthChecker) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (h *HealthChecker) Close() error {
	return h.db.Close()
}
