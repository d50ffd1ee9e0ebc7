package config

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"csvfilter/internal/filter"
	"csvfilter/internal/logger"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks startup.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is reported but does not block startup.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is a dotted path into the
// config (e.g. "server.max_upload_bytes", "parser.options.comma").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// RunLogKinds lists the run log backends the binary is built with.
var RunLogKinds = []string{"none", "sqlite", "postgres", "mysql", "mssql"}

// ValidateConfig lints c without mutating it. Run it after Load so defaults
// are in place.
func ValidateConfig(c Config) []Issue {
	var issues []Issue
	issues = append(issues, validateServer(c.Server)...)
	issues = append(issues, validateParser(c.Parser, c.Server.MaxUploadBytes)...)
	issues = append(issues, validateFilter(c.Filter)...)
	issues = append(issues, validateStaging(c.Staging)...)
	issues = append(issues, validateAuth(c.Auth)...)
	issues = append(issues, validateMetrics(c.Metrics)...)
	issues = append(issues, validateRunLog(c.RunLog)...)
	issues = append(issues, validateLog(c.Log)...)
	return issues
}

func errorf(path, format string, args ...any) Issue {
	return Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, args...)}
}

func warnf(path, format string, args ...any) Issue {
	return Issue{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, args...)}
}

func validateServer(s Server) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.Addr) == "" {
		issues = append(issues, errorf("server.addr", "must not be empty"))
	}
	if s.MaxUploadBytes <= 0 {
		issues = append(issues, errorf("server.max_upload_bytes", "must be positive, got %d", s.MaxUploadBytes))
	}
	if s.ShutdownSec < 0 {
		issues = append(issues, errorf("server.shutdown_timeout_sec", "must not be negative"))
	}
	if s.Production {
		if s.AllowedOrigin == "" {
			issues = append(issues, warnf("server.allowed_origin",
				"production mode without an allowed origin; browsers will reject cross-origin calls"))
		} else if u, err := url.Parse(s.AllowedOrigin); err != nil || u.Scheme == "" || u.Host == "" {
			issues = append(issues, errorf("server.allowed_origin", "%q is not an absolute origin URL", s.AllowedOrigin))
		}
	}
	return issues
}

func validateParser(p Parser, maxUpload int64) []Issue {
	var issues []Issue
	if p.Kind != "csv" {
		issues = append(issues, errorf("parser.kind", "unsupported parser kind %q (want csv)", p.Kind))
		return issues
	}
	if p.Options.Has("comma") {
		s := p.Options.String("comma", "")
		r, size := utf8.DecodeRuneInString(s)
		switch {
		case size == 0 || size != len(s):
			issues = append(issues, errorf("parser.options.comma", "must be a single character, got %q", s))
		case r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError:
			issues = append(issues, errorf("parser.options.comma", "%q cannot be used as a delimiter", s))
		}
	}
	opt := p.CSV()
	if opt.MaxRecordSize < 0 {
		issues = append(issues, errorf("parser.options.max_record_size", "must not be negative"))
	}
	if opt.MaxRecordSize == 0 {
		issues = append(issues, warnf("parser.options.max_record_size", "0 disables the per-record limit"))
	}
	if maxUpload > 0 && int64(opt.MaxRecordSize) > maxUpload {
		issues = append(issues, warnf("parser.options.max_record_size",
			"larger than server.max_upload_bytes (%s)", logger.Bytes(maxUpload)))
	}
	return issues
}

func validateFilter(f Filter) []Issue {
	var issues []Issue
	if _, err := filter.ParseMissingPolicy(f.Missing); err != nil {
		issues = append(issues, errorf("filter.missing", "%v", err))
	}
	if f.Buffer < 0 {
		issues = append(issues, errorf("filter.buffer", "must not be negative"))
	}
	return issues
}

func validateStaging(s Staging) []Issue {
	if s.MinFreeBytes < 0 {
		return []Issue{errorf("staging.min_free_bytes", "must not be negative")}
	}
	return nil
}

func validateAuth(a Auth) []Issue {
	var issues []Issue
	if !a.Enabled() {
		if a.Password != "" || a.PasswordHash != "" {
			issues = append(issues, warnf("auth.username", "password set without a username; auth stays disabled"))
		}
		return issues
	}
	if a.Password == "" && a.PasswordHash == "" {
		issues = append(issues, errorf("auth.password_hash", "username %q has no password or password_hash", a.Username))
	}
	if a.Password != "" && a.PasswordHash != "" {
		issues = append(issues, warnf("auth.password", "both password and password_hash set; password_hash wins"))
	}
	if a.PasswordHash != "" && !strings.HasPrefix(a.PasswordHash, "$2") {
		issues = append(issues, errorf("auth.password_hash", "not a bcrypt hash"))
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch m.Backend {
	case "none":
	case "prometheus":
		if m.PushgatewayURL != "" {
			if _, err := url.ParseRequestURI(m.PushgatewayURL); err != nil {
				issues = append(issues, errorf("metrics.pushgateway_url", "invalid URL: %v", err))
			}
		}
	case "datadog":
		if m.DatadogAddr == "" {
			issues = append(issues, errorf("metrics.datadog_addr", "required for the datadog backend"))
		}
	default:
		issues = append(issues, errorf("metrics.backend", "unknown backend %q (want none, prometheus or datadog)", m.Backend))
	}
	if m.FlushSec < 0 {
		issues = append(issues, errorf("metrics.flush_interval_sec", "must not be negative"))
	}
	return issues
}

func validateRunLog(r RunLog) []Issue {
	var issues []Issue
	known := false
	for _, k := range RunLogKinds {
		if r.Kind == k {
			known = true
			break
		}
	}
	if !known {
		return append(issues, errorf("runlog.kind", "unknown kind %q (want one of %s)", r.Kind, strings.Join(RunLogKinds, ", ")))
	}
	if r.Kind != "none" && strings.TrimSpace(r.DSN) == "" {
		issues = append(issues, errorf("runlog.dsn", "required for runlog kind %q", r.Kind))
	}
	if strings.ContainsAny(r.Table, " ;'\"") {
		issues = append(issues, errorf("runlog.table", "invalid table name %q", r.Table))
	}
	return issues
}

func validateLog(l Log) []Issue {
	var issues []Issue
	if _, err := logger.ParseLevel(l.Level); err != nil {
		issues = append(issues, errorf("log.level", "%v", err))
	}
	switch strings.ToLower(l.Format) {
	case "", "auto", "json", "text":
	default:
		issues = append(issues, errorf("log.format", "unknown format %q (want auto, json or text)", l.Format))
	}
	return issues
}
