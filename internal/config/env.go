package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// ApplyEnv overrides c from environment variables read through getenv.
// Unset variables leave c untouched.
//
//	CSVFILTER_ADDR, PORT            server.addr (PORT becomes ":PORT")
//	CSVFILTER_MAX_UPLOAD            server.max_upload_bytes ("500MB", "1GiB", bytes)
//	CSVFILTER_ENV=production        server.production
//	FRONTEND_URL                    server.allowed_origin
//	CSVFILTER_STREAM_OUTPUT         server.stream_output
//	CSVFILTER_MISSING               filter.missing
//	CSVFILTER_BUFFER                filter.buffer
//	CSVFILTER_STAGING_DIR           staging.dir
//	CSVFILTER_AUTH_USER, _PASSWORD  auth.username, auth.password
//	CSVFILTER_METRICS               metrics.backend
//	CSVFILTER_PUSHGATEWAY           metrics.pushgateway_url
//	CSVFILTER_DATADOG_ADDR          metrics.datadog_addr
//	CSVFILTER_RUNLOG_KIND, _DSN     runlog.kind, runlog.dsn
//	CSVFILTER_LOG_LEVEL, _FORMAT    log.level, log.format
func ApplyEnv(c *Config, getenv func(string) string) error {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	if p := strings.TrimSpace(getenv("PORT")); p != "" {
		c.Server.Addr = ":" + p
	}
	setString(&c.Server.Addr, "CSVFILTER_ADDR")

	if v := strings.TrimSpace(getenv("CSVFILTER_MAX_UPLOAD")); v != "" {
		n, err := humanize.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("config: CSVFILTER_MAX_UPLOAD: %w", err)
		}
		c.Server.MaxUploadBytes = int64(n)
	}
	if v := strings.TrimSpace(getenv("CSVFILTER_ENV")); v != "" {
		c.Server.Production = strings.EqualFold(v, "production")
	}
	setString(&c.Server.AllowedOrigin, "FRONTEND_URL")
	if v := strings.TrimSpace(getenv("CSVFILTER_STREAM_OUTPUT")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: CSVFILTER_STREAM_OUTPUT: %w", err)
		}
		c.Server.StreamOutput = b
	}

	setString(&c.Filter.Missing, "CSVFILTER_MISSING")
	c.Filter.Buffer = pickInt(getenvInt(getenv, "CSVFILTER_BUFFER", 0), c.Filter.Buffer)

	setString(&c.Staging.Dir, "CSVFILTER_STAGING_DIR")

	setString(&c.Auth.Username, "CSVFILTER_AUTH_USER")
	setString(&c.Auth.Password, "CSVFILTER_AUTH_PASSWORD")

	setString(&c.Metrics.Backend, "CSVFILTER_METRICS")
	setString(&c.Metrics.PushgatewayURL, "CSVFILTER_PUSHGATEWAY")
	setString(&c.Metrics.DatadogAddr, "CSVFILTER_DATADOG_ADDR")

	setString(&c.RunLog.Kind, "CSVFILTER_RUNLOG_KIND")
	setString(&c.RunLog.DSN, "CSVFILTER_RUNLOG_DSN")

	setString(&c.Log.Level, "CSVFILTER_LOG_LEVEL")
	setString(&c.Log.Format, "CSVFILTER_LOG_FORMAT")
	return nil
}

// getenvInt reads an int from the environment, returning def when unset or
// invalid.
func getenvInt(getenv func(string) string, k string, def int) int {
	if s := getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

// pickInt chooses a when it is positive, otherwise b.
func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}
