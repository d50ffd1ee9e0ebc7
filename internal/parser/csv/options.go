// Package csv implements the streaming CSV reader used by csvfilter. It wraps
// encoding/csv with the policies the upload pipeline needs: BOM-aware input
// decoding, optional field trimming and blank-line skipping, tolerant column
// counts, and a hard per-record size limit that is enforced while reading so
// a pathological field can never make the process buffer the whole file.
package csv

// Options configures the Reader. The zero value is usable; DefaultOptions
// returns the settings the HTTP service runs with.
type Options struct {
	// SkipEmptyLines drops records that consist of a single blank field
	// (whitespace-only lines). Zero-length lines are never records.
	SkipEmptyLines bool

	// TrimFields trims leading/trailing whitespace from every field, header
	// included.
	TrimFields bool

	// RelaxColumnCount emits records whose arity differs from the first
	// record's. When false such a record is a ParseError.
	RelaxColumnCount bool

	// LazyQuotes tolerates quotes in unquoted fields and non-doubled quotes in
	// quoted fields.
	LazyQuotes bool

	// MaxRecordSize caps the decoded size of a single record in bytes. Zero or
	// negative disables the limit.
	MaxRecordSize int

	// Comma is the field delimiter. Zero means ','.
	Comma rune
}

// DefaultMaxRecordSize is 1 MiB per record.
const DefaultMaxRecordSize = 1 << 20

// DefaultOptions returns the reader settings used for uploads: skip blank
// lines, trim fields, tolerate ragged rows, 1 MiB records.
func DefaultOptions() Options {
	return Options{
		SkipEmptyLines:   true,
		TrimFields:       true,
		RelaxColumnCount: true,
		MaxRecordSize:    DefaultMaxRecordSize,
		Comma:            ',',
	}
}

func (o Options) comma() rune {
	if o.Comma == 0 {
		return ','
	}
	return o.Comma
}
