// Package record defines the pooled Row type that flows from the CSV reader
// through the filter stage to the CSV writer. Pooling keeps heap churn flat
// when multi-GB uploads stream through the pipeline.
package record

import "sync"

// Row is one parsed CSV record.
//
// Contract:
//   - The producing stage fills Fields and Line, then hands the Row to exactly
//     one consumer over a channel.
//   - The consumer calls Free once it no longer needs the Row (written or
//     dropped). Do not retain r or r.Fields after Free.
type Row struct {
	// Fields holds the record's values in column order.
	Fields []string
	// Line is the 1-based source line on which the record starts.
	Line int
}

var rowPool sync.Pool

// GetRow returns a pooled Row whose Fields has length n. All fields are reset
// to the empty string.
func GetRow(n int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.Fields) < n {
			r.Fields = make([]string, n)
		}
		r.Fields = r.Fields[:n]
		for i := range r.Fields {
			r.Fields[i] = ""
		}
		r.Line = 0
		return r
	}
	return &Row{Fields: make([]string, n)}
}

// Free returns the Row to the pool. The caller must not use r afterwards.
func (r *Row) Free() {
	if r == nil {
		return
	}
	// Very wide rows are not worth keeping around.
	if cap(r.Fields) > 4096 {
		return
	}
	rowPool.Put(r)
}

// Field returns the value at index i, or "" when the row is shorter than i+1
// (a short row's implicit empty trailing field).
func (r *Row) Field(i int) string {
	if i < 0 || i >= len(r.Fields) {
		return ""
	}
	return r.Fields[i]
}

// Len returns the number of fields actually present in the row.
func (r *Row) Len() int { return len(r.Fields) }
