// Package sqlrepo is the database/sql implementation of runlog.Repository
// shared by the sqlite, mysql and mssql backends. Each backend supplies a
// Dialect with its driver name, DDL and placeholder style.
package sqlrepo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"csvfilter/internal/runlog"
)

// Dialect describes the SQL differences between backends.
type Dialect struct {
	// Name is used in error messages ("sqlite", "mysql", ...).
	Name string
	// Driver is the database/sql driver name.
	Driver string
	// CreateTable returns an idempotent CREATE TABLE statement.
	CreateTable func(table string) string
	// Placeholder returns the bind marker for the 1-based argument i.
	Placeholder func(i int) string
	// Recent returns a SELECT of runlog.Columns ordered newest first whose
	// single argument is the row limit.
	Recent func(table, cols string) string
}

// QuestionMark is the "?" placeholder style.
func QuestionMark(int) string { return "?" }

// Repository stores run records through database/sql.
type Repository struct {
	db      *sql.DB
	d       Dialect
	table   string
	insertQ string
	recentQ string
}

// Open connects, pings with a timeout and makes sure the table exists.
// Options: max_conns (int).
func Open(ctx context.Context, d Dialect, cfg runlog.Config) (*Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("%s: DSN must not be empty", d.Name)
	}
	db, err := sql.Open(d.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", d.Name, err)
	}
	if n := cfg.Options.Int("max_conns", 0); n > 0 {
		db.SetMaxOpenConns(n)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", d.Name, err)
	}

	r := newRepository(db, d, cfg.Table)
	if err := r.EnsureTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func newRepository(db *sql.DB, d Dialect, table string) *Repository {
	cols := strings.Join(runlog.Columns, ", ")
	marks := make([]string, len(runlog.Columns))
	for i := range marks {
		marks[i] = d.Placeholder(i + 1)
	}
	return &Repository{
		db:      db,
		d:       d,
		table:   table,
		insertQ: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, cols, strings.Join(marks, ", ")),
		recentQ: d.Recent(table, cols),
	}
}

// EnsureTable creates the run table if it does not exist.
func (r *Repository) EnsureTable(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, r.d.CreateTable(r.table)); err != nil {
		return fmt.Errorf("%s: create table %s: %w", r.d.Name, r.table, err)
	}
	return nil
}

// Insert implements runlog.Repository.
func (r *Repository) Insert(ctx context.Context, rec runlog.Record) error {
	if _, err := r.db.ExecContext(ctx, r.insertQ, runlog.Values(rec)...); err != nil {
		return fmt.Errorf("%s: insert run %s: %w", r.d.Name, rec.ID, err)
	}
	return nil
}

// Recent implements runlog.Repository.
func (r *Repository) Recent(ctx context.Context, limit int) ([]runlog.Record, error) {
	if limit <= 0 {
		return []runlog.Record{}, nil
	}
	rows, err := r.db.QueryContext(ctx, r.recentQ, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: query runs: %w", r.d.Name, err)
	}
	defer rows.Close()

	out := make([]runlog.Record, 0, limit)
	for rows.Next() {
		var row runlog.Row
		if err := rows.Scan(row.Dest()...); err != nil {
			return nil, fmt.Errorf("%s: scan run: %w", r.d.Name, err)
		}
		out = append(out, row.Record())
	}
	return out, rows.Err()
}

// Close closes the connection pool.
func (r *Repository) Close() { _ = r.db.Close() }

// InsertSQL and RecentSQL expose the generated statements for tests.
func (r *Repository) InsertSQL() string { return r.insertQ }
func (r *Repository) RecentSQL() string { return r.recentQ }
