// Package runlog records an audit entry for every header discovery and filter
// run: who ran what, how many rows went in and out, and how it ended. Upload
// contents are never stored.
//
// Backends register themselves by kind from their init functions; import
// csvfilter/internal/runlog/all to enable every built-in backend.
package runlog

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"csvfilter/internal/config"
)

// Status values stored in Record.Status.
const (
	StatusSuccess  = "success"
	StatusFailure  = "failure"
	StatusCanceled = "canceled"
)

// Record is one run.
type Record struct {
	ID        string        `json:"id"`
	Kind      string        `json:"kind"` // "headers" or "filter"
	FileName  string        `json:"file_name"`
	Columns   []string      `json:"columns"`
	RowsRead  int64         `json:"rows_read"`
	RowsKept  int64         `json:"rows_kept"`
	Bytes     int64         `json:"bytes"`
	Digest    uint64        `json:"digest"`
	Status    string        `json:"status"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// Repository persists run records.
type Repository interface {
	Insert(ctx context.Context, rec Record) error
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close()
}

// Config selects and configures a backend.
type Config struct {
	Kind    string
	DSN     string
	Table   string
	Options config.Options
}

// FromConfig converts the runlog config section.
func FromConfig(c config.RunLog) Config {
	return Config{Kind: c.Kind, DSN: c.DSN, Table: c.Table, Options: c.Options}
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. Registering a kind again
// replaces the previous factory.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// ListKinds returns the registered kinds, sorted.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New opens the backend named by cfg.Kind. An empty kind means "none".
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		cfg.Kind = "none"
	}
	if cfg.Table == "" {
		cfg.Table = config.DefaultRunLogTable
	}
	if !validTable.MatchString(cfg.Table) {
		return nil, fmt.Errorf("runlog: invalid table name %q", cfg.Table)
	}
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported runlog.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

var validTable = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidTable reports whether name is a plain or schema-qualified identifier.
func ValidTable(name string) bool { return validTable.MatchString(name) }

type nopRepo struct{}

func (nopRepo) Insert(context.Context, Record) error          { return nil }
func (nopRepo) Recent(context.Context, int) ([]Record, error) { return []Record{}, nil }
func (nopRepo) Close()                                        {}

// Nop returns a Repository that discards records.
func Nop() Repository { return nopRepo{} }

func init() {
	Register("none", func(context.Context, Config) (Repository, error) { return nopRepo{}, nil })
}
