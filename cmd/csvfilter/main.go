// Command csvfilter keeps the rows of a CSV file whose selected columns are
// all non-empty. It runs as an HTTP service (serve) or one-shot against local
// files (headers, filter).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"csvfilter/internal/config"
	"csvfilter/internal/filter"
	"csvfilter/internal/logger"

	// register every run log backend; config picks one.
	_ "csvfilter/internal/runlog/all"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitValidationError = 1
	ExitInputError      = 2
	ExitRuntimeError    = 3
)

// version is set via ldflags during build.
var version = "dev"

// exitError carries an explicit exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

// app holds global flags and the loaded configuration.
type app struct {
	cfgPath   string
	logLevel  string
	logFormat string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	cfg config.Config
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes one command. SIGINT and SIGTERM cancel ctx so every command
// can clean up before exiting.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "csvfilter: %v\n", err)
		return exitCode(err)
	}
	return ExitSuccess
}

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	switch filter.Classify(err) {
	case filter.KindNoInput, filter.KindParse, filter.KindColumn:
		return ExitInputError
	}
	return ExitRuntimeError
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "csvfilter",
		Short: "Drop CSV rows that have empty values in selected columns",
		Long: `csvfilter streams a CSV file and keeps the header plus every row whose
selected columns are all non-empty.

Examples:
  # List the columns of a file
  csvfilter headers people.csv

  # Keep rows with an age and a city
  csvfilter filter people.csv -c age -c city -o filtered.csv

  # Run the upload service
  csvfilter serve --config csvfilter.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "config file (JSON, or YAML for .yaml/.yml)")
	pf.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	pf.StringVar(&a.logFormat, "log-format", "", "json, text or auto (overrides config)")

	root.AddCommand(
		a.serveCmd(),
		a.headersCmd(),
		a.filterCmd(),
		a.validateCmd(),
		a.versionCmd(),
	)
	return root
}

// setup loads the configuration and installs the process logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return &exitError{code: ExitInputError, err: err}
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	a.cfg = cfg

	// validate reports a bad log section as an issue instead.
	err = logger.Init(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: a.stderr})
	if err != nil && cmd.Name() != "validate" {
		return &exitError{code: ExitValidationError, err: err}
	}
	logger.Debug("config loaded", "path", a.cfgPath, "command", cmd.Name())
	return nil
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(a.stdout, "csvfilter %s\n", version)
			return err
		},
	}
}
