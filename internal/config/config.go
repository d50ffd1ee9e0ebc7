// Package config defines the configuration model for csvfilter. A Config is
// decoded from a JSON or YAML file, then adjusted by environment variables,
// then completed with defaults.
//
// Example (YAML, trimmed):
//
//	server:
//	  addr: ":3001"
//	  max_upload_bytes: 524288000
//	  allowed_origin: "https://csv.example.com"
//	  production: true
//	parser:
//	  kind: csv
//	  options: { trim: true, skip_empty_lines: true, max_record_size: 1048576 }
//	filter:
//	  missing: drop
//	runlog:
//	  kind: sqlite
//	  dsn: "file:runs.db"
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"csvfilter/internal/filter"
	csvparser "csvfilter/internal/parser/csv"
)

// Defaults.
const (
	DefaultAddr           = ":3001"
	DefaultMaxUploadBytes = 500 << 20
	DevOrigin             = "http://localhost:3000"
	DefaultRunLogTable    = "csvfilter_runs"
	DefaultShutdownSec    = 10
)

// Config is the top-level configuration object.
type Config struct {
	Server  Server  `json:"server" yaml:"server"`
	Parser  Parser  `json:"parser" yaml:"parser"`
	Filter  Filter  `json:"filter" yaml:"filter"`
	Staging Staging `json:"staging" yaml:"staging"`
	Auth    Auth    `json:"auth" yaml:"auth"`
	Metrics Metrics `json:"metrics" yaml:"metrics"`
	RunLog  RunLog  `json:"runlog" yaml:"runlog"`
	Log     Log     `json:"log" yaml:"log"`
}

// Server configures the HTTP front end.
type Server struct {
	Addr           string `json:"addr" yaml:"addr"`
	MaxUploadBytes int64  `json:"max_upload_bytes" yaml:"max_upload_bytes"`
	// AllowedOrigin is the CORS origin used in production.
	AllowedOrigin string `json:"allowed_origin" yaml:"allowed_origin"`
	Production    bool   `json:"production" yaml:"production"`
	// StreamOutput writes filtered rows straight to the response instead of
	// staging them in a temporary file first.
	StreamOutput bool `json:"stream_output" yaml:"stream_output"`
	ShutdownSec  int  `json:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec"`
}

// Origin returns the CORS origin: AllowedOrigin in production, the local
// development frontend otherwise.
func (s Server) Origin() string {
	if s.Production {
		return s.AllowedOrigin
	}
	return DevOrigin
}

// Parser selects how uploads are tokenized.
type Parser struct {
	// Kind selects the parser implementation. Current value: "csv".
	Kind string `json:"kind" yaml:"kind"`

	// Options is interpreted by the parser. For csv the keys are:
	//   skip_empty_lines, trim, relax_column_count, lazy_quotes (bool),
	//   max_record_size (int), comma (string)
	Options Options `json:"options" yaml:"options"`
}

// CSV maps the options bag onto csvparser.Options; unset keys keep the
// upload defaults.
func (p Parser) CSV() csvparser.Options {
	d := csvparser.DefaultOptions()
	return csvparser.Options{
		SkipEmptyLines:   p.Options.Bool("skip_empty_lines", d.SkipEmptyLines),
		TrimFields:       p.Options.Bool("trim", d.TrimFields),
		RelaxColumnCount: p.Options.Bool("relax_column_count", d.RelaxColumnCount),
		LazyQuotes:       p.Options.Bool("lazy_quotes", d.LazyQuotes),
		MaxRecordSize:    p.Options.Int("max_record_size", d.MaxRecordSize),
		Comma:            p.Options.Rune("comma", d.Comma),
	}
}

// Filter configures the row filter.
type Filter struct {
	// Missing is "drop" (default) or "error".
	Missing string `json:"missing" yaml:"missing"`
	Buffer  int    `json:"buffer" yaml:"buffer"`
}

// Staging configures temporary files for uploads and results.
type Staging struct {
	// Dir defaults to os.TempDir().
	Dir          string `json:"dir" yaml:"dir"`
	MinFreeBytes int64  `json:"min_free_bytes" yaml:"min_free_bytes"`
}

// Auth enables HTTP basic auth when Username is set. PasswordHash is a
// bcrypt hash; Password is accepted for local setups and hashed at startup.
type Auth struct {
	Username     string `json:"username" yaml:"username"`
	Password     string `json:"password" yaml:"password"`
	PasswordHash string `json:"password_hash" yaml:"password_hash"`
}

// Enabled reports whether basic auth is configured.
func (a Auth) Enabled() bool { return a.Username != "" }

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend is "none", "prometheus" or "datadog".
	Backend        string   `json:"backend" yaml:"backend"`
	Job            string   `json:"job" yaml:"job"`
	PushgatewayURL string   `json:"pushgateway_url" yaml:"pushgateway_url"`
	DatadogAddr    string   `json:"datadog_addr" yaml:"datadog_addr"`
	Namespace      string   `json:"namespace" yaml:"namespace"`
	Tags           []string `json:"tags" yaml:"tags"`
	FlushSec       int      `json:"flush_interval_sec" yaml:"flush_interval_sec"`
}

// RunLog selects where run audit records go.
type RunLog struct {
	// Kind is "none", "sqlite", "postgres", "mysql" or "mssql".
	Kind  string `json:"kind" yaml:"kind"`
	DSN   string `json:"dsn" yaml:"dsn"`
	Table string `json:"table" yaml:"table"`
	// Options is passed to the backend (e.g. max_conns).
	Options Options `json:"options" yaml:"options"`
}

// Log configures the process logger.
type Log struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns a Config with every default applied.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Server.ShutdownSec == 0 {
		c.Server.ShutdownSec = DefaultShutdownSec
	}
	if c.Parser.Kind == "" {
		c.Parser.Kind = "csv"
	}
	if c.Parser.Options == nil {
		c.Parser.Options = Options{}
	}
	if c.Filter.Missing == "" {
		c.Filter.Missing = filter.MissingDrop.String()
	}
	c.Filter.Buffer = pickInt(c.Filter.Buffer, filter.DefaultBuffer)
	if c.Metrics.Backend == "" {
		c.Metrics.Backend = "none"
	}
	if c.RunLog.Kind == "" {
		c.RunLog.Kind = "none"
	}
	if c.RunLog.Table == "" {
		c.RunLog.Table = DefaultRunLogTable
	}
	if c.RunLog.Options == nil {
		c.RunLog.Options = Options{}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "auto"
	}
}

// FilterOptions assembles filter.Options from the parser and filter sections.
func (c Config) FilterOptions() (filter.Options, error) {
	mp, err := filter.ParseMissingPolicy(c.Filter.Missing)
	if err != nil {
		return filter.Options{}, err
	}
	return filter.Options{Parser: c.Parser.CSV(), Missing: mp, Buffer: c.Filter.Buffer}, nil
}

// Load reads path (JSON, or YAML for .yaml/.yml), applies environment
// overrides and fills defaults. An empty path yields defaults plus env.
func Load(path string) (Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := Decode(b, formatOf(path), &c); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := ApplyEnv(&c, os.Getenv); err != nil {
		return Config{}, err
	}
	c.applyDefaults()
	return c, nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	}
	return "json"
}

// Decode unmarshals b in the given format ("json" or "yaml") into c. Unknown
// keys are rejected so typos surface instead of silently using defaults.
func Decode(b []byte, format string, c *Config) error {
	switch format {
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode yaml: %w", err)
		}
		return nil
	case "json":
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(c); err != nil {
			return fmt.Errorf("decode json: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unknown config format %q", format)
}
