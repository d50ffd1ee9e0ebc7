package csv

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"csvfilter/internal/record"
)

// Reader turns a byte stream into a forward-only sequence of records.
//
// The first record returned fixes the reference width used by strict column
// counting. A Reader is not safe for concurrent use.
type Reader struct {
	opt   Options
	guard *recordGuard
	cr    *csv.Reader

	width int // arity of the first record, -1 until seen
	last  int // start line of the last record returned
	err   error
}

// NewReader wraps r. Decoding (BOM removal, UTF-16 transcoding) happens
// before any byte reaches encoding/csv.
func NewReader(r io.Reader, opt Options) *Reader {
	g := newRecordGuard(newDecodingReader(r), opt.MaxRecordSize)

	cr := csv.NewReader(g)
	cr.Comma = opt.comma()
	cr.LazyQuotes = opt.LazyQuotes
	cr.ReuseRecord = true
	// Width is checked here, against the first record, so ragged rows can be
	// tolerated or rejected per Options.
	cr.FieldsPerRecord = -1

	return &Reader{opt: opt, guard: g, cr: cr, width: -1}
}

// Read returns the next record as a freshly allocated slice. It returns io.EOF
// after the last record and a *ParseError for malformed input. Once an error
// has been returned every later call returns the same error.
func (r *Reader) Read() ([]string, error) {
	rec, _, err := r.next()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(rec))
	copy(out, rec)
	return out, nil
}

// ReadRow is like Read but fills a pooled *record.Row that the caller must
// Free.
func (r *Reader) ReadRow() (*record.Row, error) {
	rec, line, err := r.next()
	if err != nil {
		return nil, err
	}
	row := record.GetRow(len(rec))
	copy(row.Fields, rec)
	row.Line = line
	return row, nil
}

// Line returns the start line of the most recently returned record.
func (r *Reader) Line() int { return r.last }

// Offset returns the number of decoded input bytes consumed so far.
func (r *Reader) Offset() int64 { return r.cr.InputOffset() }

// next returns the csv.Reader's reused record slice after applying the
// configured policies.
func (r *Reader) next() ([]string, int, error) {
	if r.err != nil {
		return nil, 0, r.err
	}
	for {
		rec, err := r.cr.Read()
		if err != nil {
			r.err = r.wrap(err)
			return nil, 0, r.err
		}
		line, _ := r.cr.FieldPos(0)
		r.guard.commit(r.cr.InputOffset())

		if r.opt.SkipEmptyLines && len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}

		size := 0
		for i := range rec {
			if r.opt.TrimFields {
				rec[i] = strings.TrimSpace(rec[i])
			}
			size += len(rec[i])
		}
		if r.opt.MaxRecordSize > 0 && size > r.opt.MaxRecordSize {
			r.err = &ParseError{Line: line, Offset: r.cr.InputOffset(), Err: ErrRecordTooLarge}
			return nil, 0, r.err
		}

		if r.width < 0 {
			r.width = len(rec)
		} else if !r.opt.RelaxColumnCount && len(rec) != r.width {
			r.err = &ParseError{Line: line, Offset: r.cr.InputOffset(), Err: ErrFieldCount}
			return nil, 0, r.err
		}

		r.last = line
		return rec, line, nil
	}
}

// wrap converts encoding/csv and guard errors into *ParseError. io.EOF and
// plain I/O errors from the source are returned unchanged.
func (r *Reader) wrap(err error) error {
	if err == io.EOF {
		return io.EOF
	}
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &ParseError{Line: pe.Line, Column: pe.Column, Offset: r.cr.InputOffset(), Err: pe.Err}
	}
	if errors.Is(err, ErrRecordTooLarge) {
		// FieldPos is undefined after a failed Read; the oversized record
		// starts after the last good one.
		return &ParseError{Line: r.last + 1, Offset: r.guard.read, Err: ErrRecordTooLarge}
	}
	return err
}
