// Package sqlite registers the "sqlite" run log backend (modernc.org/sqlite,
// no cgo). The DSN is a file path or URI, e.g. "file:runs.db?_pragma=busy_timeout(5000)".
package sqlite

import (
	"context"
	"fmt"

	_ "modernc.org/sqlite"

	"csvfilter/internal/runlog"
	"csvfilter/internal/runlog/sqlrepo"
)

// Dialect is the SQLite flavor of the run table.
var Dialect = sqlrepo.Dialect{
	Name:   "sqlite",
	Driver: "sqlite",
	CreateTable: func(table string) string {
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	file_name   TEXT NOT NULL,
	selected    TEXT NOT NULL,
	rows_read   INTEGER NOT NULL,
	rows_kept   INTEGER NOT NULL,
	bytes_out   INTEGER NOT NULL,
	digest      TEXT NOT NULL,
	status      TEXT NOT NULL,
	error_kind  TEXT NOT NULL,
	error_msg   TEXT NOT NULL,
	started_ms  INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL
)`, table)
	},
	Placeholder: sqlrepo.QuestionMark,
	Recent: func(table, cols string) string {
		return fmt.Sprintf("SELECT %s FROM %s ORDER BY started_ms DESC, id DESC LIMIT ?", cols, table)
	},
}

// Open opens a SQLite run log. A single connection avoids SQLITE_BUSY under
// concurrent requests.
func Open(ctx context.Context, cfg runlog.Config) (*sqlrepo.Repository, error) {
	if cfg.Options == nil || !cfg.Options.Has("max_conns") {
		cfg.Options = map[string]any{"max_conns": 1}
	}
	return sqlrepo.Open(ctx, Dialect, cfg)
}

func init() {
	runlog.Register("sqlite", func(ctx context.Context, cfg runlog.Config) (runlog.Repository, error) {
		return Open(ctx, cfg)
	})
}
