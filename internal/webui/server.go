// Package webui exposes the row filter over HTTP together with a small
// embedded page for picking a file and the columns that must be non-empty.
//
// Routes:
//
//	GET  /                 → upload page
//	POST /api/get-headers  → {"headers": [...]} for the uploaded file
//	POST /api/process-csv  → filtered.csv download
//	GET  /api/runs         → recent run log entries
//	GET  /api/health       → liveness
//	GET  /metrics          → Prometheus exposition (when enabled)
package webui

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"csvfilter/internal/filter"
	"csvfilter/internal/logger"
	"csvfilter/internal/runlog"
	"csvfilter/internal/staging"
)

// Config controls the server.
type Config struct {
	Addr           string
	MaxUploadBytes int64
	// Origin is the CORS origin allowed to call the API with credentials.
	Origin string
	// StreamOutput writes filtered rows directly to the response. Otherwise
	// output is staged first so failures become JSON errors.
	StreamOutput bool
	Filter       filter.Options

	// Basic auth is enabled when Username is set. PasswordHash (bcrypt) wins
	// over Password.
	Username     string
	Password     string
	PasswordHash string

	ShutdownTimeout time.Duration
	Version         string
}

// Deps are the collaborators the handlers use. Runs and Metrics are
// optional.
type Deps struct {
	Area    *staging.Area
	Runs    runlog.Repository
	Metrics http.Handler
}

// Server wires routes and middleware around the filter pipeline.
type Server struct {
	cfg     Config
	deps    Deps
	mux     *http.ServeMux
	tmpl    *template.Template
	hash    []byte
	started time.Time
}

//go:embed index.tmpl.html
var indexHTML string

// NewServer validates cfg, prepares auth and registers routes.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Area == nil {
		return nil, errors.New("webui: staging area is required")
	}
	if deps.Runs == nil {
		deps.Runs = runlog.Nop()
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("webui: max upload must be positive, got %d", cfg.MaxUploadBytes)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		mux:     http.NewServeMux(),
		tmpl:    template.Must(template.New("index").Parse(indexHTML)),
		started: time.Now(),
	}

	if cfg.Username != "" {
		switch {
		case cfg.PasswordHash != "":
			s.hash = []byte(cfg.PasswordHash)
			if _, err := bcrypt.Cost(s.hash); err != nil {
				return nil, fmt.Errorf("webui: password hash: %w", err)
			}
		case cfg.Password != "":
			h, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, fmt.Errorf("webui: hash password: %w", err)
			}
			s.hash = h
		default:
			return nil, fmt.Errorf("webui: user %q has no password", cfg.Username)
		}
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /api/get-headers", s.handleHeaders)
	s.mux.HandleFunc("POST /api/process-csv", s.handleProcess)
	s.mux.HandleFunc("GET /api/runs", s.handleRuns)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	if s.deps.Metrics != nil {
		s.mux.Handle("GET /metrics", s.deps.Metrics)
	}
}

// Handler returns the routes wrapped in middleware.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.basicAuth(h)
	h = s.cors(h)
	h = accessLog(h)
	h = requestID(h)
	return h
}

// Run serves on cfg.Addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("webui: listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	logger.Info("webui: listening",
		"addr", ln.Addr().String(),
		"max_upload", logger.Bytes(s.cfg.MaxUploadBytes),
		"stream_output", s.cfg.StreamOutput,
		"auth", s.hash != nil)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	logger.Info("webui: shutting down", "timeout", s.cfg.ShutdownTimeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("webui: shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
