package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"csvfilter/internal/filter"
	"csvfilter/internal/logger"
	"csvfilter/internal/runlog"
	"csvfilter/internal/source"
)

func (a *app) headersCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "headers <file|-|url>",
		Short: "Print the header row of a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, _, err := a.openInput(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			header, err := filter.DiscoverHeaders(cmd.Context(), in, a.cfg.Parser.CSV())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string][]string{"headers": header})
			}
			bw := bufio.NewWriter(a.stdout)
			for _, h := range header {
				fmt.Fprintln(bw, h)
			}
			return bw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, `print {"headers": [...]} instead of one name per line`)
	return cmd
}

func (a *app) filterCmd() *cobra.Command {
	var (
		columns []string
		outPath string
		missing string
	)
	cmd := &cobra.Command{
		Use:   "filter <file|-|url> -c COLUMN [-c COLUMN...]",
		Short: "Keep rows whose selected columns are all non-empty",
		Long: `Stream a CSV file and keep the header plus every row in which all
selected columns have a value. Whitespace-only values count as empty.

Without -o the result goes to stdout. With -o it is written to a temporary
file next to the target and renamed into place only on success.

Exit codes:
  0 - Success
  2 - Input error (missing file, malformed CSV, unknown column with --missing=error)
  3 - Runtime error`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opt, err := a.cfg.FilterOptions()
			if err != nil {
				return &exitError{code: ExitValidationError, err: err}
			}
			if missing != "" {
				if opt.Missing, err = filter.ParseMissingPolicy(missing); err != nil {
					return &exitError{code: ExitValidationError, err: err}
				}
			}
			return a.runFilter(cmd, args[0], outPath, columns, opt)
		},
	}
	f := cmd.Flags()
	f.StringSliceVarP(&columns, "columns", "c", nil, "column that must be non-empty (repeat or comma separate)")
	f.StringVarP(&outPath, "output", "o", "", "output file (default stdout)")
	f.StringVar(&missing, "missing", "", "policy for unknown columns: drop or error (overrides config)")
	return cmd
}

// recordTimeout bounds the run record insert, which still happens after the
// command was interrupted.
const recordTimeout = 5 * time.Second

func (a *app) runFilter(cmd *cobra.Command, inPath, outPath string, columns []string, opt filter.Options) (err error) {
	ctx := cmd.Context()
	start := time.Now()
	id := uuid.NewString()
	l := logger.WithRun(id, "filter")

	rec := runlog.Record{ID: id, Kind: "filter", Columns: columns, StartedAt: start.UTC()}
	runs, rerr := runlog.New(ctx, runlog.FromConfig(a.cfg.RunLog))
	if rerr != nil {
		return rerr
	}
	defer runs.Close()

	var res filter.Result
	defer func() {
		rec.RowsRead, rec.RowsKept, rec.Bytes, rec.Digest = res.RowsRead, res.RowsKept, res.Bytes, res.Digest
		rec.Duration = time.Since(start)
		rec.Status = runlog.StatusSuccess
		if err != nil {
			kind := filter.Classify(err)
			rec.Status = runlog.StatusFailure
			if kind == filter.KindCanceled {
				rec.Status = runlog.StatusCanceled
			}
			rec.ErrorKind, rec.Error = string(kind), err.Error()
		}
		logger.RunSummary(l, rec.Status, res.RowsRead, res.RowsKept, res.Bytes, rec.Duration)
		ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		defer cancel()
		if ierr := runs.Insert(ictx, rec); ierr != nil {
			l.Warn("store run record", "err", ierr)
		}
	}()

	in, name, err := a.openInput(ctx, inPath)
	rec.FileName = name
	if err != nil {
		return err
	}
	defer in.Close()

	sel := filter.NewSelection(columns...)
	if outPath == "" || outPath == "-" {
		res, err = filter.FilterRows(ctx, in, sel, a.stdout, opt)
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(outPath), "."+filepath.Base(outPath)+".*.tmp")
	if err != nil {
		return &filter.IOError{Op: "write", Err: err}
	}
	defer os.Remove(tmp.Name())

	res, err = filter.FilterRows(ctx, in, sel, tmp, opt)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = &filter.IOError{Op: "write", Err: cerr}
	}
	if err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), outPath); err != nil {
		return &filter.IOError{Op: "write", Err: err}
	}
	if len(res.Missing) > 0 {
		l.Warn("columns not found in header", "missing", res.Missing)
	}
	return nil
}

// openInput opens a local path, stdin ("-") or an http(s) URL. Reads from the
// returned stream fail once ctx is done, even when blocked on a pipe.
func (a *app) openInput(ctx context.Context, arg string) (io.ReadCloser, string, error) {
	src := source.For(arg, a.stdin, nil)
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, src.Name(), &exitError{code: ExitInputError, err: err}
	}
	return source.WithContext(ctx, rc), src.Name(), nil
}
