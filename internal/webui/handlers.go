package webui

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"csvfilter/internal/filter"
	"csvfilter/internal/logger"
	"csvfilter/internal/metrics"
	"csvfilter/internal/runlog"
	"csvfilter/internal/staging"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
	recordTimeout    = 5 * time.Second
)

type indexData struct {
	MaxUpload string
	Version   string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := indexData{MaxUpload: sizeLabel(s.cfg.MaxUploadBytes), Version: s.cfg.Version}
	if err := s.tmpl.Execute(w, data); err != nil {
		logger.Error("webui: render index", "err", err)
	}
}

type headersBody struct {
	Headers []string `json:"headers"`
}

// handleHeaders parses only the first record of the uploaded file. The file
// is never written to disk; the rest of the body is discarded.
func (s *Server) handleHeaders(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := RequestID(r.Context())
	l := logger.WithRun(id, "headers")
	s.limitBody(w, r)

	rec := runlog.Record{ID: id, Kind: "headers", StartedAt: start.UTC()}
	header, err := s.discover(r, &rec)
	rec.Duration = time.Since(start)
	s.finish(r, l, &rec, err)
	if err != nil {
		s.writeError(w, r, err, "Error processing file headers")
		return
	}
	writeJSON(w, http.StatusOK, headersBody{Headers: header})
}

func (s *Server) discover(r *http.Request, rec *runlog.Record) ([]string, error) {
	mr, err := multipartReader(r)
	if err != nil {
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, filter.ErrNoInput
		}
		if err != nil {
			return nil, uploadErr(err)
		}
		if part.FormName() != fieldFile {
			part.Close()
			continue
		}
		rec.FileName = part.FileName()

		cr := &countingReader{r: io.LimitReader(part, s.cfg.MaxUploadBytes+1)}
		header, err := filter.DiscoverHeaders(r.Context(), cr, s.cfg.Filter.Parser)
		if err != nil {
			part.Close()
			return nil, err
		}
		// Drain so an oversized upload is still rejected and the connection
		// can be reused.
		_, err = io.Copy(io.Discard, cr)
		part.Close()
		metrics.RecordBytes("in", cr.n)
		if err != nil {
			return nil, uploadErr(err)
		}
		if cr.n > s.cfg.MaxUploadBytes {
			return nil, errTooLarge
		}
		return header, nil
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// handleProcess spools the upload, filters it and returns filtered.csv.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := RequestID(r.Context())
	l := logger.WithRun(id, "filter")
	s.limitBody(w, r)

	rec := runlog.Record{ID: id, Kind: "filter", StartedAt: start.UTC()}

	stage, err := s.deps.Area.Stage(id)
	if err != nil {
		s.finish(r, l, &rec, err)
		s.writeError(w, r, err, "Error processing file")
		return
	}
	defer func() {
		if err := stage.Release(); err != nil {
			l.Warn("webui: release stage", "dir", stage.Dir(), "err", err)
		}
	}()

	up, err := s.spool(r, stage)
	rec.FileName, rec.Columns = up.FileName, up.Columns
	metrics.RecordBytes("in", up.Size)
	if err != nil {
		rec.Duration = time.Since(start)
		s.finish(r, l, &rec, err)
		s.writeError(w, r, err, "Error processing file")
		return
	}
	l.Debug("webui: upload spooled", "file", up.FileName, "size", logger.Bytes(up.Size), "columns", up.Columns)

	if s.cfg.StreamOutput {
		s.processStreaming(w, r, l, stage, up, &rec, start)
		return
	}
	s.processStaged(w, r, l, stage, up, &rec, start)
}

func (s *Server) processStaged(w http.ResponseWriter, r *http.Request, l *slog.Logger, stage *staging.Stage, up upload, rec *runlog.Record, start time.Time) {
	res, err := s.filterToStage(r.Context(), stage, up)
	fillRecord(rec, res)
	rec.Duration = time.Since(start)
	s.finish(r, l, rec, err)
	if err != nil {
		s.writeError(w, r, err, "Error processing file")
		return
	}

	f, err := stage.Open(outputName)
	if err != nil {
		s.writeError(w, r, &filter.IOError{Op: "read", Err: err}, "Error processing file")
		return
	}
	defer f.Close()

	h := w.Header()
	setDownloadHeaders(h)
	h.Set(headerRowsRead, strconv.FormatInt(res.RowsRead, 10))
	h.Set(headerRowsKept, strconv.FormatInt(res.RowsKept, 10))
	h.Set(headerDigest, runlog.FormatDigest(res.Digest))
	http.ServeContent(w, r, outputName, time.Time{}, f)
}

func (s *Server) filterToStage(ctx context.Context, stage *staging.Stage, up upload) (filter.Result, error) {
	in, err := stage.Open(inputName)
	if err != nil {
		return filter.Result{}, &filter.IOError{Op: "read", Err: err}
	}
	defer in.Close()

	out, err := stage.Create(outputName)
	if err != nil {
		return filter.Result{}, &filter.IOError{Op: "write", Err: err}
	}
	res, err := filter.FilterRows(ctx, in, filter.NewSelection(up.Columns...), out, s.cfg.Filter)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = &filter.IOError{Op: "write", Err: cerr}
	}
	return res, err
}

// processStreaming writes rows straight to the client. Counts and digest go
// out as trailers. Once the first byte is sent a failure can only abort the
// connection.
func (s *Server) processStreaming(w http.ResponseWriter, r *http.Request, l *slog.Logger, stage *staging.Stage, up upload, rec *runlog.Record, start time.Time) {
	in, err := stage.Open(inputName)
	if err != nil {
		err = &filter.IOError{Op: "read", Err: err}
		s.finish(r, l, rec, err)
		s.writeError(w, r, err, "Error processing file")
		return
	}
	defer in.Close()

	lw := &lazyWriter{w: w}
	res, err := filter.FilterRows(r.Context(), in, filter.NewSelection(up.Columns...), lw, s.cfg.Filter)
	fillRecord(rec, res)
	rec.Duration = time.Since(start)
	s.finish(r, l, rec, err)

	if err != nil {
		if !lw.started {
			s.writeError(w, r, err, "Error processing file")
			return
		}
		l.Warn("webui: aborting streamed response", "err", err)
		panic(http.ErrAbortHandler)
	}

	lw.commit()
	h := w.Header()
	h.Set(headerRowsRead, strconv.FormatInt(res.RowsRead, 10))
	h.Set(headerRowsKept, strconv.FormatInt(res.RowsKept, 10))
	h.Set(headerDigest, runlog.FormatDigest(res.Digest))
}

// lazyWriter sends the download headers on the first write, so an error
// raised before any output can still become a JSON response.
type lazyWriter struct {
	w       http.ResponseWriter
	started bool
}

func (lw *lazyWriter) commit() {
	if lw.started {
		return
	}
	lw.started = true
	h := lw.w.Header()
	setDownloadHeaders(h)
	h.Set("Trailer", headerRowsRead+", "+headerRowsKept+", "+headerDigest)
	lw.w.WriteHeader(http.StatusOK)
}

func (lw *lazyWriter) Write(p []byte) (int, error) {
	lw.commit()
	return lw.w.Write(p)
}

func setDownloadHeaders(h http.Header) {
	h.Set("Content-Type", "text/csv; charset=utf-8")
	h.Set("Content-Disposition", `attachment; filename="`+outputName+`"`)
}

func fillRecord(rec *runlog.Record, res filter.Result) {
	rec.RowsRead = res.RowsRead
	rec.RowsKept = res.RowsKept
	rec.Bytes = res.Bytes
	rec.Digest = res.Digest
}

// finish logs the run summary and stores the run record. The record is
// written even when the client has gone away.
func (s *Server) finish(r *http.Request, l *slog.Logger, rec *runlog.Record, err error) {
	rec.Status = runlog.StatusSuccess
	if err != nil {
		_, msg, kind := s.classify(err, err.Error())
		rec.Status = runlog.StatusFailure
		if kind == string(filter.KindCanceled) {
			rec.Status = runlog.StatusCanceled
		}
		rec.ErrorKind, rec.Error = kind, msg
	}
	logger.RunSummary(l, rec.Status, rec.RowsRead, rec.RowsKept, rec.Bytes, rec.Duration)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), recordTimeout)
	defer cancel()
	if err := s.deps.Runs.Insert(ctx, *rec); err != nil {
		l.Warn("webui: store run record", "err", err)
	}
}

type runsBody struct {
	Runs []runlog.Record `json:"runs"`
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := s.deps.Runs.Recent(r.Context(), limit)
	if err != nil {
		logger.Error("webui: list runs", "request_id", RequestID(r.Context()), "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Error listing runs"})
		return
	}
	if runs == nil {
		runs = []runlog.Record{}
	}
	writeJSON(w, http.StatusOK, runsBody{Runs: runs})
}

type healthBody struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Uptime  string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthBody{
		Status:  "ok",
		Version: s.cfg.Version,
		Uptime:  time.Since(s.started).Truncate(time.Second).String(),
	})
}
