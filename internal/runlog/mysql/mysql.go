// Package mysql registers the "mysql" run log backend
// (github.com/go-sql-driver/mysql).
package mysql

import (
	"context"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"csvfilter/internal/runlog"
	"csvfilter/internal/runlog/sqlrepo"
)

// Dialect is the MySQL flavor of the run table.
var Dialect = sqlrepo.Dialect{
	Name:   "mysql",
	Driver: "mysql",
	CreateTable: func(table string) string {
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          VARCHAR(36) NOT NULL PRIMARY KEY,
	kind        VARCHAR(16) NOT NULL,
	file_name   VARCHAR(512) NOT NULL,
	selected    TEXT NOT NULL,
	rows_read   BIGINT NOT NULL,
	rows_kept   BIGINT NOT NULL,
	bytes_out   BIGINT NOT NULL,
	digest      CHAR(16) NOT NULL,
	status      VARCHAR(16) NOT NULL,
	error_kind  VARCHAR(32) NOT NULL,
	error_msg   TEXT NOT NULL,
	started_ms  BIGINT NOT NULL,
	duration_ms BIGINT NOT NULL,
	KEY idx_started (started_ms)
)`, table)
	},
	Placeholder: sqlrepo.QuestionMark,
	Recent: func(table, cols string) string {
		return fmt.Sprintf("SELECT %s FROM %s ORDER BY started_ms DESC, id DESC LIMIT ?", cols, table)
	},
}

// normalizeDSN validates dsn and bounds the dial timeout.
func normalizeDSN(dsn string) (string, error) {
	c, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql dsn: %w", err)
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	return c.FormatDSN(), nil
}

// Open opens a MySQL run log.
func Open(ctx context.Context, cfg runlog.Config) (*sqlrepo.Repository, error) {
	dsn, err := normalizeDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	cfg.DSN = dsn
	return sqlrepo.Open(ctx, Dialect, cfg)
}

func init() {
	runlog.Register("mysql", func(ctx context.Context, cfg runlog.Config) (runlog.Repository, error) {
		return Open(ctx, cfg)
	})
}
