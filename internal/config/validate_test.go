package config

import (
	"strings"
	"testing"
)

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(c *Config)
		wantPath string
		wantSev  IssueSeverity
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = " " }, "server.addr", SeverityError},
		{"zero upload", func(c *Config) { c.Server.MaxUploadBytes = -1 }, "server.max_upload_bytes", SeverityError},
		{"production without origin", func(c *Config) { c.Server.Production = true }, "server.allowed_origin", SeverityWarning},
		{"relative origin", func(c *Config) {
			c.Server.Production = true
			c.Server.AllowedOrigin = "csv.example.com"
		}, "server.allowed_origin", SeverityError},
		{"xml parser", func(c *Config) { c.Parser.Kind = "xml" }, "parser.kind", SeverityError},
		{"two char comma", func(c *Config) { c.Parser.Options["comma"] = ";;" }, "parser.options.comma", SeverityError},
		{"quote comma", func(c *Config) { c.Parser.Options["comma"] = `"` }, "parser.options.comma", SeverityError},
		{"negative record size", func(c *Config) { c.Parser.Options["max_record_size"] = -1 }, "parser.options.max_record_size", SeverityError},
		{"record larger than upload", func(c *Config) { c.Server.MaxUploadBytes = 10 }, "parser.options.max_record_size", SeverityWarning},
		{"missing policy", func(c *Config) { c.Filter.Missing = "skip" }, "filter.missing", SeverityError},
		{"negative buffer", func(c *Config) { c.Filter.Buffer = -2 }, "filter.buffer", SeverityError},
		{"negative min free", func(c *Config) { c.Staging.MinFreeBytes = -1 }, "staging.min_free_bytes", SeverityError},
		{"user without password", func(c *Config) { c.Auth.Username = "ops" }, "auth.password_hash", SeverityError},
		{"plain hash", func(c *Config) {
			c.Auth.Username = "ops"
			c.Auth.PasswordHash = "hunter2"
		}, "auth.password_hash", SeverityError},
		{"password without user", func(c *Config) { c.Auth.Password = "x" }, "auth.username", SeverityWarning},
		{"unknown metrics", func(c *Config) { c.Metrics.Backend = "graphite" }, "metrics.backend", SeverityError},
		{"datadog without addr", func(c *Config) { c.Metrics.Backend = "datadog" }, "metrics.datadog_addr", SeverityError},
		{"bad pushgateway", func(c *Config) {
			c.Metrics.Backend = "prometheus"
			c.Metrics.PushgatewayURL = "not a url"
		}, "metrics.pushgateway_url", SeverityError},
		{"unknown runlog", func(c *Config) { c.RunLog.Kind = "oracle" }, "runlog.kind", SeverityError},
		{"runlog without dsn", func(c *Config) { c.RunLog.Kind = "postgres" }, "runlog.dsn", SeverityError},
		{"runlog table injection", func(c *Config) { c.RunLog.Table = "runs; drop table x" }, "runlog.table", SeverityError},
		{"log level", func(c *Config) { c.Log.Level = "chatty" }, "log.level", SeverityError},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format", SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := Default()
			tt.mutate(&c)
			issues := ValidateConfig(c)

			for _, iss := range issues {
				if iss.Path == tt.wantPath && iss.Severity == tt.wantSev {
					if !strings.Contains(iss.Error(), tt.wantPath) {
						t.Fatalf("Error() = %q does not mention path", iss.Error())
					}
					return
				}
			}
			t.Fatalf("no %s issue at %s; got %v", tt.wantSev, tt.wantPath, issues)
		})
	}
}

func TestHasErrors(t *testing.T) {
	t.Parallel()

	if HasErrors(nil) {
		t.Fatal("HasErrors(nil) = true")
	}
	if HasErrors([]Issue{{Severity: SeverityWarning}}) {
		t.Fatal("warnings only: HasErrors = true")
	}
	if !HasErrors([]Issue{{Severity: SeverityWarning}, {Severity: SeverityError}}) {
		t.Fatal("HasErrors = false with an error present")
	}
}
