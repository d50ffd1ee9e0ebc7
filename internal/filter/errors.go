package filter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	csvparser "csvfilter/internal/parser/csv"
)

// ErrNoInput is returned when there is nothing to read: no upload was
// supplied or the reader is nil.
var ErrNoInput = errors.New("no input provided")

// ColumnNotFoundError is returned under MissingError when selected columns do
// not exist in the header. It is raised before any output is written.
type ColumnNotFoundError struct {
	Missing []string
	Header  []string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("columns not found in header: %s", strings.Join(e.Missing, ", "))
}

// IOError wraps a failure of the input or output stream.
type IOError struct {
	// Op is "read", "write" or "flush".
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *IOError) Unwrap() error { return e.Err }

// Kind classifies pipeline errors for the transport layer.
type Kind string

const (
	KindNone     Kind = ""
	KindNoInput  Kind = "no_input"
	KindParse    Kind = "parse"
	KindColumn   Kind = "column_not_found"
	KindIO       Kind = "io"
	KindCanceled Kind = "canceled"
	KindInternal Kind = "internal"
)

// Classify maps err onto a Kind. Parse errors win over I/O wrapping so a
// malformed upload is never reported as a server fault.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var (
		cnf *ColumnNotFoundError
		ioe *IOError
	)
	switch {
	case errors.Is(err, ErrNoInput):
		return KindNoInput
	case csvparser.IsParseError(err):
		return KindParse
	case errors.As(err, &cnf):
		return KindColumn
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.As(err, &ioe):
		return KindIO
	}
	return KindInternal
}

// wrapRead tags a raw source failure as an IOError. Parse errors, context
// errors and already-typed errors pass through.
func wrapRead(err error) error {
	if err == nil || csvparser.IsParseError(err) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var ioe *IOError
	if errors.As(err, &ioe) {
		return err
	}
	return &IOError{Op: "read", Err: err}
}
