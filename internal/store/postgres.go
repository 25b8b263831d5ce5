// Package store persists harvested records. Every record lands as a JSONB
// payload keyed by its natural key, so re-harvesting the same entity
// overwrites instead of duplicating.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/medatlas/harvester/internal/harvest"
)

var validTableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PgxPool is the subset of pgxpool.Pool the store needs; pgxmock satisfies
// it in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// Postgres implements harvest.Store on a Postgres connection pool.
type Postgres struct {
	pool   PgxPool
	logger *zap.Logger
}

// NewPostgres connects a pool and verifies the connection.
func NewPostgres(ctx context.Context, dsn string, maxConns int32, logger *zap.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool, logger: logger}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests.
func NewPostgresFromPool(pool PgxPool, logger *zap.Logger) *Postgres {
	return &Postgres{pool: pool, logger: logger}
}

// EnsureSchema creates the per-kind tables when missing.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	for _, kind := range []harvest.Kind{harvest.KindInstitutions, harvest.KindProfessionals, harvest.KindOfferings} {
		table, err := tableFor(kind)
		if err != nil {
			return err
		}
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			natural_key TEXT PRIMARY KEY,
			payload JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, table)
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
	}
	return nil
}

// Upsert writes the record under its natural key, overwriting any previous
// payload for that key.
func (s *Postgres) Upsert(ctx context.Context, kind harvest.Kind, key string, record any) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("upsert into %s: empty natural key", table)
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	sql := fmt.Sprintf(`INSERT INTO %s (natural_key, payload, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (natural_key)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`, table)
	if _, err := s.pool.Exec(ctx, sql, key, payload, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert into %s: %w", table, err)
	}
	return nil
}

// Count returns the number of records whose payload contains every filter
// field.
func (s *Postgres) Count(ctx context.Context, kind harvest.Kind, filter harvest.Filter) (int, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}

	var count int
	if len(filter) == 0 {
		sql := fmt.Sprintf("SELECT count(*) FROM %s", table)
		if err := s.pool.QueryRow(ctx, sql).Scan(&count); err != nil {
			return 0, fmt.Errorf("count %s: %w", table, err)
		}
		return count, nil
	}

	match, err := json.Marshal(filter)
	if err != nil {
		return 0, fmt.Errorf("marshal filter: %w", err)
	}
	sql := fmt.Sprintf("SELECT count(*) FROM %s WHERE payload @> $1", table)
	if err := s.pool.QueryRow(ctx, sql, match).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return count, nil
}

// Find returns the payloads matching the filter, newest first.
func (s *Postgres) Find(ctx context.Context, kind harvest.Kind, filter harvest.Filter) ([]json.RawMessage, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	var rows pgx.Rows
	if len(filter) == 0 {
		sql := fmt.Sprintf("SELECT payload FROM %s ORDER BY updated_at DESC", table)
		rows, err = s.pool.Query(ctx, sql)
	} else {
		var match []byte
		match, err = json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("marshal filter: %w", err)
		}
		sql := fmt.Sprintf("SELECT payload FROM %s WHERE payload @> $1 ORDER BY updated_at DESC", table)
		rows, err = s.pool.Query(ctx, sql, match)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var payloads []json.RawMessage
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		payloads = append(payloads, json.RawMessage(payload))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return payloads, nil
}

// Close releases the pool.
func (s *Postgres) Close() {
	s.pool.Close()
}

func tableFor(kind harvest.Kind) (string, error) {
	name := string(kind)
	if !validTableName.MatchString(name) {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	return name, nil
}
