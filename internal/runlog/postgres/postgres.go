// Package postgres registers the "postgres" run log backend on a pgx v5
// connection pool.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"csvfilter/internal/runlog"
)

// Repository is a Postgres-backed runlog.Repository.
type Repository struct {
	pool    *pgxpool.Pool
	table   string
	insertQ string
	recentQ string
}

func createTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	file_name   TEXT NOT NULL,
	selected    TEXT NOT NULL,
	rows_read   BIGINT NOT NULL,
	rows_kept   BIGINT NOT NULL,
	bytes_out   BIGINT NOT NULL,
	digest      CHAR(16) NOT NULL,
	status      TEXT NOT NULL,
	error_kind  TEXT NOT NULL,
	error_msg   TEXT NOT NULL,
	started_ms  BIGINT NOT NULL,
	duration_ms BIGINT NOT NULL
)`, pgFQN(table))
}

func insertSQL(table string) string {
	marks := make([]string, len(runlog.Columns))
	for i := range marks {
		marks[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pgFQN(table), strings.Join(runlog.Columns, ", "), strings.Join(marks, ", "))
}

func recentSQL(table string) string {
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY started_ms DESC, id DESC LIMIT $1",
		strings.Join(runlog.Columns, ", "), pgFQN(table))
}

// pgFQN quotes each part of a possibly schema-qualified name.
func pgFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

// Open creates the pool, pings it and ensures the table exists.
// Options: max_conns (int).
func Open(ctx context.Context, cfg runlog.Config) (*Repository, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	if n := cfg.Options.Int("max_conns", 0); n > 0 {
		pcfg.MaxConns = int32(n)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL(cfg.Table)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: create table %s: %w", cfg.Table, err)
	}
	return &Repository{
		pool:    pool,
		table:   cfg.Table,
		insertQ: insertSQL(cfg.Table),
		recentQ: recentSQL(cfg.Table),
	}, nil
}

// Insert implements runlog.Repository.
func (r *Repository) Insert(ctx context.Context, rec runlog.Record) error {
	if _, err := r.pool.Exec(ctx, r.insertQ, runlog.Values(rec)...); err != nil {
		return fmt.Errorf("postgres: insert run %s: %w", rec.ID, err)
	}
	return nil
}

// Recent implements runlog.Repository.
func (r *Repository) Recent(ctx context.Context, limit int) ([]runlog.Record, error) {
	if limit <= 0 {
		return []runlog.Record{}, nil
	}
	rows, err := r.pool.Query(ctx, r.recentQ, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: query runs: %w", err)
	}
	defer rows.Close()

	out := make([]runlog.Record, 0, limit)
	for rows.Next() {
		var row runlog.Row
		if err := rows.Scan(row.Dest()...); err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		out = append(out, row.Record())
	}
	return out, rows.Err()
}

// Close closes the pool.
func (r *Repository) Close() { r.pool.Close() }

func init() {
	runlog.Register("postgres", func(ctx context.Context, cfg runlog.Config) (runlog.Repository, error) {
		return Open(ctx, cfg)
	})
}
