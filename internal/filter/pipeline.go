// Package filter implements the row-filter pipeline: header capture, column
// resolution, per-row predicate evaluation and streaming output.
//
// Concurrency model:
//
//	Reader (csvparser.StreamRows, 1 goroutine)
//	     → bounded channel (Options.Buffer rows)
//	     → Filter + Writer (1 goroutine)
//
// Back-pressure comes from the bounded channel: a slow destination blocks the
// writer, which stops draining the channel, which blocks the reader. Peak
// memory is O(header width + Buffer rows) regardless of input size. The first
// error from either side cancels the other through the errgroup context.
package filter

import (
	"context"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"csvfilter/internal/logger"
	"csvfilter/internal/metrics"
	csvparser "csvfilter/internal/parser/csv"
	"csvfilter/internal/record"
	csvwriter "csvfilter/internal/writer/csv"
)

// DefaultBuffer is the reader→writer channel capacity.
const DefaultBuffer = 64

// progressEvery is the heartbeat interval, in data rows, of the debug log.
const progressEvery = 100_000

// Options configures FilterRows.
type Options struct {
	// Parser configures the CSV reader; the writer reuses its delimiter.
	Parser csvparser.Options
	// Missing selects the policy for selected columns absent from the header.
	Missing MissingPolicy
	// Buffer is the reader→writer channel capacity; <= 0 means DefaultBuffer.
	Buffer int
}

// DefaultOptions returns upload defaults with the drop policy.
func DefaultOptions() Options {
	return Options{Parser: csvparser.DefaultOptions(), Missing: MissingDrop, Buffer: DefaultBuffer}
}

// Result summarizes a FilterRows run. Counts exclude the header row.
type Result struct {
	Header   []string
	RowsRead int64
	RowsKept int64
	// Missing lists selected names absent from the header (MissingDrop only).
	Missing []string
	// Bytes and Digest describe what reached the destination.
	Bytes  int64
	Digest uint64
}

// RowsDropped is RowsRead - RowsKept.
func (r Result) RowsDropped() int64 { return r.RowsRead - r.RowsKept }

// DiscoverHeaders reads only the first record of r and returns it. An empty
// stream yields an empty header and no error. No data row is parsed.
func DiscoverHeaders(ctx context.Context, r io.Reader, opt csvparser.Options) (header []string, err error) {
	start := time.Now()
	defer func() { metrics.RecordStep("headers", err, time.Since(start)) }()

	if r == nil {
		return nil, ErrNoInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h, err := csvparser.NewReader(r, opt).Read()
	if err == io.EOF {
		return []string{}, nil
	}
	if err != nil {
		return nil, wrapRead(err)
	}
	return h, nil
}

// FilterRows streams r to w keeping the header and every data row for which
// all selected columns are non-empty. Relative row order is preserved. Short
// rows are padded to the header width on output.
//
// An empty input writes nothing and returns a zero Result. On error the
// returned Result holds the counts reached so far; the bytes already written
// to w must not be treated as a complete output.
func FilterRows(ctx context.Context, r io.Reader, sel Selection, w io.Writer, opt Options) (res Result, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordStep("filter", err, time.Since(start))
		metrics.RecordRows("read", res.RowsRead)
		metrics.RecordRows("kept", res.RowsKept)
		metrics.RecordRows("dropped", res.RowsDropped())
		metrics.RecordBytes("out", res.Bytes)
	}()

	if r == nil {
		return Result{}, ErrNoInput
	}
	if w == nil {
		return Result{}, &IOError{Op: "write", Err: io.ErrClosedPipe}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	rd := csvparser.NewReader(r, opt.Parser)
	header, err := rd.Read()
	if err == io.EOF {
		return Result{Header: []string{}}, nil
	}
	if err != nil {
		return Result{}, wrapRead(err)
	}
	res.Header = header

	// Resolve before the first byte goes out so a bad selection can still be
	// reported as a clean error.
	pred := sel.Resolve(header)
	if !pred.Resolved() {
		if opt.Missing == MissingError {
			return res, &ColumnNotFoundError{Missing: pred.Missing(), Header: header}
		}
		res.Missing = pred.Missing()
		logger.Warn("filter: selected columns missing from header; no data rows will be kept",
			"missing", res.Missing)
	}

	cw := csvwriter.NewWriterComma(w, opt.Parser.Comma)
	defer func() {
		res.Bytes = cw.Bytes()
		res.Digest = cw.Digest()
	}()
	if err := cw.Write(header); err != nil {
		return res, &IOError{Op: "write", Err: err}
	}

	buffer := opt.Buffer
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	rows := make(chan *record.Row, buffer)
	width := len(header)

	g, gctx := errgroup.WithContext(ctx)

	// readErr is written before close(rows), so the consumer may read it once
	// the channel is drained.
	var readErr error
	g.Go(func() error {
		readErr = wrapRead(csvparser.StreamRows(gctx, rd, rows))
		close(rows)
		return readErr
	})

	g.Go(func() error {
		// Rows already handed over are counted even when the reader failed;
		// only the caller's cancellation stops the drain early.
		for row := range rows {
			if err := ctx.Err(); err != nil {
				row.Free()
				return err
			}
			res.RowsRead++
			if res.RowsRead%progressEvery == 0 {
				logger.Debug("filter: progress",
					"rows_read", res.RowsRead,
					"rows_kept", res.RowsKept,
					"elapsed", time.Since(start).Truncate(time.Millisecond))
			}
			if pred.Keep(row.Fields) {
				if err := cw.WritePadded(row.Fields, width); err != nil {
					row.Free()
					return &IOError{Op: "write", Err: err}
				}
				res.RowsKept++
			}
			row.Free()
		}
		if readErr != nil {
			// Incomplete input: do not flush a partial result.
			return nil
		}
		if err := cw.Flush(); err != nil {
			return &IOError{Op: "flush", Err: err}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return res, err
	}

	logger.Debug("filter: done",
		"rows_read", res.RowsRead,
		"rows_kept", res.RowsKept,
		"duration", time.Since(start).Truncate(time.Millisecond))
	return res, nil
}
