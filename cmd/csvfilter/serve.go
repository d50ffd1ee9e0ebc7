package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"csvfilter/internal/config"
	"csvfilter/internal/logger"
	"csvfilter/internal/metrics"
	"csvfilter/internal/metrics/datadog"
	"csvfilter/internal/metrics/prompush"
	"csvfilter/internal/runlog"
	"csvfilter/internal/staging"
	"csvfilter/internal/webui"
)

// staleStageAge is how old a leftover stage directory must be before serve
// removes it at startup.
const staleStageAge = time.Hour

func (a *app) serveCmd() *cobra.Command {
	var (
		addr   string
		stream bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the upload service",
		Long: `Serve the upload page and the JSON API:

  POST /api/get-headers   multipart "file"            -> {"headers": [...]}
  POST /api/process-csv   multipart "file" + "columnsToFilter" -> filtered.csv

The service stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := cmd.Flags()
			if f.Changed("addr") {
				a.cfg.Server.Addr = addr
			}
			if f.Changed("stream-output") {
				a.cfg.Server.StreamOutput = stream
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", config.DefaultAddr, "listen address (overrides config)")
	cmd.Flags().BoolVar(&stream, "stream-output", false, "stream filtered rows instead of staging them (overrides config)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	if err := a.checkConfig(); err != nil {
		return err
	}
	cfg := a.cfg
	fopt, err := cfg.FilterOptions()
	if err != nil {
		return &exitError{code: ExitValidationError, err: err}
	}

	area, err := staging.NewArea(cfg.Staging.Dir, cfg.Staging.MinFreeBytes)
	if err != nil {
		return err
	}
	if n, err := area.Sweep(staleStageAge); err != nil {
		logger.Warn("staging: sweep failed", "dir", area.Dir(), "err", err)
	} else if n > 0 {
		logger.Info("staging: removed stale stages", "dir", area.Dir(), "count", n)
	}

	runs, err := runlog.New(ctx, runlog.FromConfig(cfg.RunLog))
	if err != nil {
		return err
	}
	defer runs.Close()

	metricsHandler, stopMetrics, err := startMetrics(ctx, cfg.Metrics)
	if err != nil {
		return err
	}
	defer stopMetrics()

	srv, err := webui.NewServer(webui.Config{
		Addr:            cfg.Server.Addr,
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
		Origin:          cfg.Server.Origin(),
		StreamOutput:    cfg.Server.StreamOutput,
		Filter:          fopt,
		Username:        cfg.Auth.Username,
		Password:        cfg.Auth.Password,
		PasswordHash:    cfg.Auth.PasswordHash,
		ShutdownTimeout: time.Duration(cfg.Server.ShutdownSec) * time.Second,
		Version:         version,
	}, webui.Deps{Area: area, Runs: runs, Metrics: metricsHandler})
	if err != nil {
		return &exitError{code: ExitValidationError, err: err}
	}

	logger.Info("csvfilter: starting",
		"version", version,
		"runlog", cfg.RunLog.Kind,
		"metrics", cfg.Metrics.Backend,
		"staging", area.Dir())
	return srv.Run(ctx)
}

// flusher is a metrics backend that needs periodic flushing.
type flusher interface {
	Flush() error
}

// startMetrics installs the configured backend. The returned handler is
// non-nil only for the Prometheus scrape endpoint. stop flushes once more and
// releases the backend.
func startMetrics(ctx context.Context, m config.Metrics) (http.Handler, func(), error) {
	var (
		handler http.Handler
		f       flusher
		closeFn = func() {}
	)

	switch m.Backend {
	case "", "none":
		logger.Debug("metrics: disabled")
		return nil, func() {}, nil

	case "prometheus":
		job := m.Job
		if job == "" {
			job = prompush.DefaultJob
		}
		b, err := prompush.NewBackend(job, m.PushgatewayURL)
		if err != nil {
			return nil, nil, fmt.Errorf("metrics: %w", err)
		}
		metrics.SetBackend(b)
		handler = b.Handler()
		if m.PushgatewayURL != "" {
			f = b
		}
		logger.Info("metrics: prometheus", "job", job, "pushgateway", m.PushgatewayURL)

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{Addr: m.DatadogAddr, Namespace: m.Namespace, GlobalTags: m.Tags})
		if err != nil {
			return nil, nil, fmt.Errorf("metrics: %w", err)
		}
		metrics.SetBackend(b)
		f = b
		closeFn = func() {
			if err := b.Close(); err != nil {
				logger.Warn("metrics: close datadog client", "err", err)
			}
		}
		logger.Info("metrics: datadog", "addr", m.DatadogAddr)

	default:
		return nil, nil, fmt.Errorf("metrics: unknown backend %q", m.Backend)
	}

	if f == nil {
		return handler, closeFn, nil
	}

	interval := time.Duration(m.FlushSec) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if err := f.Flush(); err != nil {
					logger.Warn("metrics: flush", "err", err)
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	stop := func() {
		close(done)
		<-stopped
		if err := f.Flush(); err != nil {
			logger.Warn("metrics: final flush", "err", err)
		}
		closeFn()
	}
	return handler, stop, nil
}
