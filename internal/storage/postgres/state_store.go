// Package postgres persists the seen-set state as rows in a Postgres table.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/vin-monitor/internal/seen"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "seen_urls"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for seen-set rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// StateStore keeps one row per (identifier, url) pair. Rows are only ever
// inserted, which matches the grow-only nature of the seen-set.
// Top-level document fields other than the seen-set are not persisted.
type StateStore struct {
	pool  pool
	table string
	now   func() time.Time
}

// Open connects to Postgres, ensures the table exists and returns the store.
func Open(ctx context.Context, cfg Config) (*StateStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("state.postgres_dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &StateStore{pool: p, table: table, now: time.Now}
	if err := s.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewStateStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStateStoreWithPool(p pool, table string) (*StateStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &StateStore{pool: p, table: name, now: time.Now}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// EnsureSchema creates the seen-set table if it does not exist.
func (s *StateStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	identifier TEXT NOT NULL,
	url TEXT NOT NULL,
	first_seen TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (identifier, url)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Describe implements storage.Store.
func (s *StateStore) Describe() string {
	return "postgres://" + s.table
}

// Load implements storage.Store.
func (s *StateStore) Load(ctx context.Context) (*seen.State, error) {
	query := fmt.Sprintf(`SELECT identifier, url FROM %s ORDER BY identifier, url`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return seen.New(), fmt.Errorf("query seen rows: %w", err)
	}
	defer rows.Close()

	sets := make(map[string]seen.Set)
	for rows.Next() {
		var identifier, url string
		if err := rows.Scan(&identifier, &url); err != nil {
			return seen.New(), fmt.Errorf("scan seen row: %w", err)
		}
		set, ok := sets[identifier]
		if !ok {
			set = seen.NewSet()
			sets[identifier] = set
		}
		set.Add(url)
	}
	if err := rows.Err(); err != nil {
		return seen.New(), fmt.Errorf("iterate seen rows: %w", err)
	}

	st := seen.New()
	for identifier, set := range sets {
		st.Commit(identifier, set)
	}
	return st, nil
}

// Save implements storage.Store. All identifiers are written in one
// transaction so a failed save leaves the table as it was.
func (s *StateStore) Save(ctx context.Context, state *seen.State) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (identifier, url, first_seen)
SELECT $1, u, $3 FROM unnest($2::text[]) AS u
ON CONFLICT (identifier, url) DO NOTHING`, s.table)

	at := s.now().UTC()
	for _, identifier := range state.Identifiers() {
		urls := state.Seen(identifier).Sorted()
		if len(urls) == 0 {
			continue
		}
		if _, err := tx.Exec(ctx, query, identifier, urls, at); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("insert seen rows for %s: %w", identifier, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close implements storage.Store.
func (s *StateStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
