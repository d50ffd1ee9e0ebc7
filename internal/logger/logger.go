// Package logger provides structured logging for csvfilter on top of log/slog.
//
// A process-wide logger is installed with Init and used through the package
// level helpers (Info, Debug, Warn, Error) or a derived *slog.Logger from With
// and WithRun. Field names are snake_case.
//
// Two output formats are supported:
//   - json: machine-readable, one object per line
//   - text: human-readable key=value lines
//
// Format "auto" picks text when the output is a terminal and json otherwise.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// Options configures Init.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Format is json, text or auto. Empty means auto.
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
}

var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

// Init installs a new process-wide logger. It returns an error for an unknown
// level or format and leaves the previous logger in place.
func Init(opt Options) error {
	lvl, err := ParseLevel(opt.Level)
	if err != nil {
		return err
	}
	out := opt.Output
	if out == nil {
		out = os.Stderr
	}

	hopts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(opt.Format)) {
	case "json":
		h = slog.NewJSONHandler(out, hopts)
	case "text":
		h = slog.NewTextHandler(out, hopts)
	case "", "auto":
		if isTerminal(out) {
			h = slog.NewTextHandler(out, hopts)
		} else {
			h = slog.NewJSONHandler(out, hopts)
		}
	default:
		return fmt.Errorf("logger: unknown format %q", opt.Format)
	}

	current.Store(slog.New(h))
	return nil
}

// ParseLevel maps a level name onto slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("logger: unknown level %q", s)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// L returns the current process-wide logger.
func L() *slog.Logger { return current.Load() }

// SetLogger replaces the process-wide logger; nil is ignored.
func SetLogger(l *slog.Logger) {
	if l != nil {
		current.Store(l)
	}
}

func Info(msg string, args ...any)  { L().Info(msg, args...) }
func Debug(msg string, args ...any) { L().Debug(msg, args...) }
func Warn(msg string, args ...any)  { L().Warn(msg, args...) }
func Error(msg string, args ...any) { L().Error(msg, args...) }

// With returns the current logger with the given attributes attached.
func With(args ...any) *slog.Logger { return L().With(args...) }

// WithRun returns a logger tagged with a run (request) id and operation kind.
func WithRun(runID, kind string) *slog.Logger {
	return L().With(slog.String("run_id", runID), slog.String("kind", kind))
}

// Bytes renders n as a human-readable size ("12 MB") for log lines and user
// facing messages.
func Bytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// RunSummary logs the end-of-run line shared by the CLI and the HTTP handlers.
func RunSummary(l *slog.Logger, status string, read, kept, bytes int64, d time.Duration) {
	if l == nil {
		l = L()
	}
	rate := 0.0
	if s := d.Seconds(); s > 0 {
		rate = float64(read) / s
	}
	l.Info("run finished",
		slog.String("status", status),
		slog.Int64("rows_read", read),
		slog.Int64("rows_kept", kept),
		slog.Int64("rows_dropped", read-kept),
		slog.String("output_size", Bytes(bytes)),
		slog.Duration("duration", d.Truncate(time.Millisecond)),
		slog.Float64("rows_per_sec", rate),
	)
}
