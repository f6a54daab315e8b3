// Package postgres provides a Postgres-backed analysis history store.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/molaison/research-agent/internal/agent"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// StoreConfig controls the Postgres connection pool used for history rows.
type StoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// Store writes analysis history rows into Postgres.
type Store struct {
	pool  querier
	table string
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("history.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "analyses"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool querier, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "analyses"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Record inserts an analysis history row.
func (s *Store) Record(ctx context.Context, rec agent.HistoryRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("history store is not configured")
	}
	if rec.ID == "" {
		return fmt.Errorf("record id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	url,
	final_url,
	status_code,
	title,
	content_hash,
	language,
	used_headless,
	duration_ms,
	analyzed_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)`, s.table)

	args := []any{
		rec.ID,
		rec.URL,
		rec.FinalURL,
		rec.StatusCode,
		rec.Title,
		rec.ContentHash,
		rec.Language,
		rec.Headless,
		rec.DurationMs,
		rec.AnalyzedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

// Recent returns the most recent analyses, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]agent.HistoryRecord, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("history store is not configured")
	}
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`
SELECT id, url, final_url, status_code, title, content_hash, language,
	used_headless, duration_ms, analyzed_at
FROM %s
ORDER BY analyzed_at DESC
LIMIT $1`, s.table)

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()

	var records []agent.HistoryRecord
	for rows.Next() {
		var rec agent.HistoryRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.URL,
			&rec.FinalURL,
			&rec.StatusCode,
			&rec.Title,
			&rec.ContentHash,
			&rec.Language,
			&rec.Headless,
			&rec.DurationMs,
			&rec.AnalyzedAt,
		); err != nil {
			return nil, fmt.Errorf("scan analysis row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analysis rows: %w", err)
	}
	return records, nil
}
