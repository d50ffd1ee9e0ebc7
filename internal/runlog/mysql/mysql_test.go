package mysql

import (
	"context"
	"strings"
	"testing"

	"csvfilter/internal/runlog"
)

func TestNormalizeDSN(t *testing.T) {
	t.Parallel()

	got, err := normalizeDSN("user:pw@tcp(db:3306)/audit")
	if err != nil {
		t.Fatalf("normalizeDSN: %v", err)
	}
	if !strings.Contains(got, "timeout=5s") || !strings.Contains(got, "tcp(db:3306)/audit") {
		t.Fatalf("normalizeDSN = %q", got)
	}

	if _, err := normalizeDSN("user:pw@tcp(db:3306)/audit?timeout=1s"); err != nil {
		t.Fatalf("normalizeDSN with timeout: %v", err)
	}
	if _, err := normalizeDSN("no slash here"); err == nil {
		t.Fatal("invalid DSN: want error")
	}
}

func TestOpen_BadDSN(t *testing.T) {
	t.Parallel()

	_, err := runlog.New(context.Background(), runlog.Config{Kind: "mysql", DSN: "no slash here"})
	if err == nil || !strings.Contains(err.Error(), "mysql dsn") {
		t.Fatalf("err = %v, want mysql dsn error", err)
	}
}

func TestDialect(t *testing.T) {
	t.Parallel()

	ddl := Dialect.CreateTable("runs")
	if !strings.HasPrefix(ddl, "CREATE TABLE IF NOT EXISTS runs (") || !strings.Contains(ddl, "KEY idx_started") {
		t.Fatalf("CreateTable = %q", ddl)
	}
	if q := Dialect.Recent("runs", "id"); q != "SELECT id FROM runs ORDER BY started_ms DESC, id DESC LIMIT ?" {
		t.Fatalf("Recent = %q", q)
	}
	if Dialect.Placeholder(3) != "?" {
		t.Fatal("placeholder")
	}
}
