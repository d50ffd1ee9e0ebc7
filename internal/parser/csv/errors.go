package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
)

// Sentinel causes carried by ParseError.Err.
var (
	// ErrQuote reports an unterminated quoted field, or an extraneous quote
	// inside one.
	ErrQuote = csv.ErrQuote
	// ErrBareQuote reports a quote inside an unquoted field.
	ErrBareQuote = csv.ErrBareQuote
	// ErrFieldCount reports an arity mismatch when RelaxColumnCount is off.
	ErrFieldCount = csv.ErrFieldCount
	// ErrRecordTooLarge reports a record larger than Options.MaxRecordSize.
	ErrRecordTooLarge = errors.New("record exceeds maximum size")
)

// ParseError describes malformed CSV input. Rows emitted before the error are
// valid; nothing after it is.
type ParseError struct {
	// Line is the 1-based line where the error was detected.
	Line int
	// Column is the 1-based byte column, 0 when unknown.
	Column int
	// Offset is the byte offset into the decoded input at detection time.
	Offset int64
	// Err is the cause (ErrQuote, ErrBareQuote, ErrFieldCount, ErrRecordTooLarge).
	Err error
}

func (e *ParseError) Error() string {
	if e.Column > 0 {
		return fmt.Sprintf("csv: line %d, column %d (offset %d): %v", e.Line, e.Column, e.Offset, e.Err)
	}
	return fmt.Sprintf("csv: line %d (offset %d): %v", e.Line, e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsParseError reports whether err is (or wraps) a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
