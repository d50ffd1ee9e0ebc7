// Package mssql registers the "mssql" run log backend
// (github.com/microsoft/go-mssqldb).
package mssql

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"csvfilter/internal/runlog"
	"csvfilter/internal/runlog/sqlrepo"
)

// Dialect is the SQL Server flavor of the run table.
var Dialect = sqlrepo.Dialect{
	Name:   "mssql",
	Driver: "sqlserver",
	CreateTable: func(table string) string {
		return fmt.Sprintf(`IF OBJECT_ID(N'%s', N'U') IS NULL
CREATE TABLE %s (
	id          NVARCHAR(36) NOT NULL PRIMARY KEY,
	kind        NVARCHAR(16) NOT NULL,
	file_name   NVARCHAR(512) NOT NULL,
	selected    NVARCHAR(MAX) NOT NULL,
	rows_read   BIGINT NOT NULL,
	rows_kept   BIGINT NOT NULL,
	bytes_out   BIGINT NOT NULL,
	digest      CHAR(16) NOT NULL,
	status      NVARCHAR(16) NOT NULL,
	error_kind  NVARCHAR(32) NOT NULL,
	error_msg   NVARCHAR(MAX) NOT NULL,
	started_ms  BIGINT NOT NULL,
	duration_ms BIGINT NOT NULL
)`, strings.ReplaceAll(table, "'", "''"), table)
	},
	Placeholder: func(i int) string { return fmt.Sprintf("@p%d", i) },
	Recent: func(table, cols string) string {
		return fmt.Sprintf("SELECT TOP (@p1) %s FROM %s ORDER BY started_ms DESC, id DESC", cols, table)
	},
}

// Open validates the DSN and opens a SQL Server run log.
func Open(ctx context.Context, cfg runlog.Config) (*sqlrepo.Repository, error) {
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	return sqlrepo.Open(ctx, Dialect, cfg)
}

func init() {
	runlog.Register("mssql", func(ctx context.Context, cfg runlog.Config) (runlog.Repository, error) {
		return Open(ctx, cfg)
	})
}
