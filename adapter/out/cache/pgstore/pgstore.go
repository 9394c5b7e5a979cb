// Package pgstore adapts PostgreSQL (via pgx/v5's pool) to the cache
// core's DistributedStore port. Grounded on the teacher's jackc/pgx
// usage throughout core/service/common and adapter/out/persistence.
// Healthcheck.go wires the sqlx/lib/pq pairing the teacher also keeps
// alongside pgx, for tooling that expects a database/sql connection.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hybridcache/core/port/out"
)

// Store is a DistributedStore backed by a single table with a key
// primary key, a bytea value column, an is_null flag (since a bytea
// column can't itself represent "stored null" without overloading SQL
// NULL, which would collide with "row absent"), and a nullable
// expires_at timestamp.
type Store struct {
	pool  *pgxpool.Pool
	table string
}

// New builds a Store over pool, using table (default "cache_entries")
// as the backing table. The caller is responsible for migrating the
// schema; see the doc comment on EnsureSchema.
func New(pool *pgxpool.Pool, table string) *Store {
	if table == "" {
		table = "cache_entries"
	}
	return &Store{pool: pool, table: table}
}

// EnsureSchema creates the backing table if absent. Safe to call at
// startup; not called automatically since migrations are typically
// owned by deployment tooling, not the library.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			value BYTEA NOT NULL,
			is_null BOOLEAN NOT NULL DEFAULT FALSE,
			expires_at TIMESTAMPTZ
		)`, s.table))
	return err
}

func (s *Store) selectRow(ctx context.Context, tx pgx.Tx, key string, forUpdate bool) ([]byte, bool, bool, *time.Time, error) {
	query := fmt.Sprintf(`SELECT value, is_null, expires_at FROM %s WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`, s.table)
	if forUpdate {
		query += " FOR UPDATE"
	}
	var value []byte
	var isNull bool
	var expiresAt *time.Time
	var row pgx.Row
	if tx != nil {
		row = tx.QueryRow(ctx, query, key)
	} else {
		row = s.pool.QueryRow(ctx, query, key)
	}
	if err := row.Scan(&value, &isNull, &expiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, false, nil, nil
		}
		return nil, false, false, nil, err
	}
	return value, true, isNull, expiresAt, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, bool, error) {
	value, found, isNull, _, err := s.selectRow(ctx, nil, key, false)
	return value, found, isNull, err
}

func (s *Store) GetMany(ctx context.Context, keys []string) (map[string]out.StoredValue, error) {
	if len(keys) == 0 {
		return map[string]out.StoredValue{}, nil
	}
	query := fmt.Sprintf(`SELECT key, value, is_null, expires_at FROM %s WHERE key = ANY($1) AND (expires_at IS NULL OR expires_at > now())`, s.table)
	rows, err := s.pool.Query(ctx, query, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]out.StoredValue, len(keys))
	for rows.Next() {
		var k string
		var value []byte
		var isNull bool
		var expiresAt *time.Time
		if err := rows.Scan(&k, &value, &isNull, &expiresAt); err != nil {
			return nil, err
		}
		result[k] = out.StoredValue{Value: value, IsNull: isNull, ExpiresAt: expiresAt}
	}
	return result, rows.Err()
}

func expiresAtFromTTL(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := time.Now().Add(ttl)
	return &t
}

func (s *Store) Set(ctx context.Context, key string, value []byte, isNull bool, ttl time.Duration, onlyIfAbsent, onlyIfPresent bool) (out.ChangeResult, error) {
	expiresAt := expiresAtFromTTL(ttl)

	var query string
	switch {
	case onlyIfAbsent:
		query = fmt.Sprintf(`
			INSERT INTO %s (key, value, is_null, expires_at) VALUES ($1, $2, $3, $4)
			ON CONFLICT (key) DO NOTHING`, s.table)
	case onlyIfPresent:
		query = fmt.Sprintf(`UPDATE %s SET value = $2, is_null = $3, expires_at = $4 WHERE key = $1`, s.table)
	default:
		query = fmt.Sprintf(`
			INSERT INTO %s (key, value, is_null, expires_at) VALUES ($1, $2, $3, $4)
			ON CONFLICT (key) DO UPDATE SET value = $2, is_null = $3, expires_at = $4`, s.table)
	}

	tag, err := s.pool.Exec(ctx, query, key, value, isNull, expiresAt)
	if err != nil {
		return out.ChangeResult{}, err
	}
	return out.ChangeResult{Changed: tag.RowsAffected() > 0, ExpiresAt: expiresAt}, nil
}

func (s *Store) ReplaceIfEqual(ctx context.Context, key string, expected, value []byte, ttl time.Duration) (out.ChangeResult, error) {
	expiresAt := expiresAtFromTTL(ttl)
	query := fmt.Sprintf(`
		UPDATE %s SET value = $2, expires_at = $4
		WHERE key = $1 AND is_null = FALSE AND value = $3 AND (expires_at IS NULL OR expires_at > now())`, s.table)
	tag, err := s.pool.Exec(ctx, query, key, value, expected, expiresAt)
	if err != nil {
		return out.ChangeResult{}, err
	}
	return out.ChangeResult{Changed: tag.RowsAffected() > 0, ExpiresAt: expiresAt}, nil
}

func (s *Store) Remove(ctx context.Context, key string) (out.ChangeResult, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, s.table), key)
	if err != nil {
		return out.ChangeResult{}, err
	}
	return out.ChangeResult{Changed: tag.RowsAffected() > 0, Count: int(tag.RowsAffected())}, nil
}

func (s *Store) RemoveIfEqual(ctx context.Context, key string, expected []byte) (out.ChangeResult, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = $1 AND is_null = FALSE AND value = $2`, s.table)
	tag, err := s.pool.Exec(ctx, query, key, expected)
	if err != nil {
		return out.ChangeResult{}, err
	}
	return out.ChangeResult{Changed: tag.RowsAffected() > 0}, nil
}

func (s *Store) RemoveMany(ctx context.Context, keys []string) (out.ChangeResult, error) {
	if len(keys) == 0 {
		return out.ChangeResult{}, nil
	}
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = ANY($1)`, s.table), keys)
	if err != nil {
		return out.ChangeResult{}, err
	}
	return out.ChangeResult{Changed: tag.RowsAffected() > 0, Count: int(tag.RowsAffected())}, nil
}

// likeEscaper escapes LIKE's own wildcard characters (and the escape
// character itself) so RemoveByPrefix matches an exact byte prefix per
// §3, not a caller-controlled glob.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *Store) RemoveByPrefix(ctx context.Context, prefix string) (out.ChangeResult, error) {
	pattern := likeEscaper.Replace(prefix) + "%"
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key LIKE $1 ESCAPE '\'`, s.table), pattern)
	if err != nil {
		return out.ChangeResult{}, err
	}
	return out.ChangeResult{Changed: tag.RowsAffected() > 0, Count: int(tag.RowsAffected())}, nil
}

func (s *Store) RemoveAll(ctx context.Context) (out.ChangeResult, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table))
	if err != nil {
		return out.ChangeResult{}, err
	}
	return out.ChangeResult{Changed: tag.RowsAffected() > 0, Count: int(tag.RowsAffected())}, nil
}

// withLockedRow runs fn inside a transaction holding a transaction-scoped
// advisory lock on key (plus a row lock when the row exists), letting
// Increment/IncrementFloat/SetIfHigher/SetIfLower read-modify-write
// without a lost update, even when the row is absent.
func (s *Store) withLockedRow(ctx context.Context, key string, fn func(tx pgx.Tx, value []byte, found, isNull bool, expiresAt *time.Time) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", s.table+":"+key); err != nil {
		return err
	}

	value, found, isNull, expiresAt, err := s.selectRow(ctx, tx, key, true)
	if err != nil {
		return err
	}
	if err := fn(tx, value, found, isNull, expiresAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) upsertLocked(ctx context.Context, tx pgx.Tx, key string, value []byte, expiresAt *time.Time) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (key, value, is_null, expires_at) VALUES ($1, $2, FALSE, $3)
		ON CONFLICT (key) DO UPDATE SET value = $2, is_null = FALSE, expires_at = $3`, s.table)
	_, err := tx.Exec(ctx, query, key, value, expiresAt)
	return err
}

func (s *Store) Increment(ctx context.Context, key string, delta int64, ttl time.Duration, hasTTL bool) (int64, out.ChangeResult, error) {
	var newValue int64
	var resultExpiresAt *time.Time
	err := s.withLockedRow(ctx, key, func(tx pgx.Tx, value []byte, found, isNull bool, expiresAt *time.Time) error {
		var current int64
		if found && !isNull {
			current, _ = strconv.ParseInt(string(value), 10, 64)
		}
		newValue = current + delta

		effExpiresAt := expiresAt
		if hasTTL {
			if ttl <= 0 {
				_, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, s.table), key)
				return err
			}
			effExpiresAt = expiresAtFromTTL(ttl)
		}
		resultExpiresAt = effExpiresAt
		return s.upsertLocked(ctx, tx, key, []byte(strconv.FormatInt(newValue, 10)), effExpiresAt)
	})
	if err != nil {
		return 0, out.ChangeResult{}, err
	}
	return newValue, out.ChangeResult{Changed: true, ExpiresAt: resultExpiresAt}, nil
}

func (s *Store) IncrementFloat(ctx context.Context, key string, delta float64, ttl time.Duration, hasTTL bool) (float64, out.ChangeResult, error) {
	var newValue float64
	var resultExpiresAt *time.Time
	err := s.withLockedRow(ctx, key, func(tx pgx.Tx, value []byte, found, isNull bool, expiresAt *time.Time) error {
		var current float64
		if found && !isNull {
			current, _ = strconv.ParseFloat(string(value), 64)
		}
		newValue = current + delta

		effExpiresAt := expiresAt
		if hasTTL {
			if ttl <= 0 {
				_, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, s.table), key)
				return err
			}
			effExpiresAt = expiresAtFromTTL(ttl)
		}
		resultExpiresAt = effExpiresAt
		return s.upsertLocked(ctx, tx, key, []byte(strconv.FormatFloat(newValue, 'g', -1, 64)), effExpiresAt)
	})
	if err != nil {
		return 0, out.ChangeResult{}, err
	}
	return newValue, out.ChangeResult{Changed: true, ExpiresAt: resultExpiresAt}, nil
}

func (s *Store) setIfCompare(ctx context.Context, key string, value float64, ttl time.Duration, better func(current, candidate float64) bool) (float64, out.ChangeResult, error) {
	var diff float64
	var changed bool
	var resultExpiresAt *time.Time
	err := s.withLockedRow(ctx, key, func(tx pgx.Tx, current []byte, found, isNull bool, expiresAt *time.Time) error {
		var currentValue float64
		hadCurrent := found && !isNull
		if hadCurrent {
			currentValue, _ = strconv.ParseFloat(string(current), 64)
		}
		if hadCurrent && !better(currentValue, value) {
			changed = false
			return nil
		}
		if hadCurrent {
			diff = value - currentValue
		} else {
			diff = value
		}
		resultExpiresAt = expiresAtFromTTL(ttl)
		changed = true
		return s.upsertLocked(ctx, tx, key, []byte(strconv.FormatFloat(value, 'g', -1, 64)), resultExpiresAt)
	})
	if err != nil {
		return 0, out.ChangeResult{}, err
	}
	return diff, out.ChangeResult{Changed: changed, ExpiresAt: resultExpiresAt}, nil
}

func (s *Store) SetIfHigher(ctx context.Context, key string, value float64, ttl time.Duration) (float64, out.ChangeResult, error) {
	return s.setIfCompare(ctx, key, value, ttl, func(current, candidate float64) bool { return candidate > current })
}

func (s *Store) SetIfLower(ctx context.Context, key string, value float64, ttl time.Duration) (float64, out.ChangeResult, error) {
	return s.setIfCompare(ctx, key, value, ttl, func(current, candidate float64) bool { return candidate < current })
}

// ListAdd and ListRemove store the list as a length-prefixed blob in the
// same value column, decoded/encoded here rather than shared with
// core/cache's internal encoding (an adapter has no access to that
// unexported format, nor should it: the wire representation is this
// adapter's own concern).
func decodeListBlob(data []byte) [][]byte {
	var items [][]byte
	for len(data) >= 4 {
		n := int(data[0])<<24 | int(data[1])<<16 | int(data[2])<<8 | int(data[3])
		data = data[4:]
		if len(data) < n {
			break
		}
		items = append(items, data[:n])
		data = data[n:]
	}
	return items
}

func encodeListBlob(items [][]byte) []byte {
	var out []byte
	for _, item := range items {
		n := len(item)
		out = append(out, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
		out = append(out, item...)
	}
	return out
}

func containsItem(items [][]byte, target []byte) bool {
	for _, item := range items {
		if string(item) == string(target) {
			return true
		}
	}
	return false
}

func (s *Store) ListAdd(ctx context.Context, key string, items [][]byte, ttl time.Duration) (int, out.ChangeResult, error) {
	added := 0
	var resultExpiresAt *time.Time
	err := s.withLockedRow(ctx, key, func(tx pgx.Tx, value []byte, found, isNull bool, expiresAt *time.Time) error {
		var existing [][]byte
		if found && !isNull {
			existing = decodeListBlob(value)
		}
		for _, item := range items {
			if !containsItem(existing, item) {
				existing = append(existing, item)
				added++
			}
		}
		effExpiresAt := expiresAt
		if ttl > 0 {
			effExpiresAt = expiresAtFromTTL(ttl)
		}
		resultExpiresAt = effExpiresAt
		return s.upsertLocked(ctx, tx, key, encodeListBlob(existing), effExpiresAt)
	})
	if err != nil {
		return 0, out.ChangeResult{}, err
	}
	return added, out.ChangeResult{Changed: added > 0, ExpiresAt: resultExpiresAt}, nil
}

func (s *Store) ListRemove(ctx context.Context, key string, items [][]byte) (int, out.ChangeResult, error) {
	removed := 0
	err := s.withLockedRow(ctx, key, func(tx pgx.Tx, value []byte, found, isNull bool, expiresAt *time.Time) error {
		if !found || isNull {
			return nil
		}
		existing := decodeListBlob(value)
		kept := existing[:0]
		for _, item := range existing {
			if containsItem(items, item) {
				removed++
				continue
			}
			kept = append(kept, item)
		}
		if removed == 0 {
			return nil
		}
		return s.upsertLocked(ctx, tx, key, encodeListBlob(kept), expiresAt)
	})
	if err != nil {
		return 0, out.ChangeResult{}, err
	}
	return removed, out.ChangeResult{Changed: removed > 0}, nil
}

func (s *Store) GetExpiration(ctx context.Context, key string) (time.Duration, bool, error) {
	query := fmt.Sprintf(`SELECT expires_at FROM %s WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`, s.table)
	var expiresAt *time.Time
	err := s.pool.QueryRow(ctx, query, key).Scan(&expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if expiresAt == nil {
		return 0, false, nil
	}
	return time.Until(*expiresAt), true, nil
}

func (s *Store) SetExpiration(ctx context.Context, key string, ttl time.Duration) error {
	expiresAt := expiresAtFromTTL(ttl)
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`UPDATE %s SET expires_at = $2 WHERE key = $1`, s.table), key, expiresAt)
	return err
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`, s.table)
	var one int
	err := s.pool.QueryRow(ctx, query, key).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}
