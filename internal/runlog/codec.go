package runlog

import (
	"encoding/json"
	"strconv"
	"time"
)

// Columns is the stored column order shared by every SQL backend.
var Columns = []string{
	"id", "kind", "file_name", "selected", "rows_read", "rows_kept", "bytes_out",
	"digest", "status", "error_kind", "error_msg", "started_ms", "duration_ms",
}

// Values flattens rec in Columns order. Selected columns are stored as a JSON
// array, the digest as 16 hex digits (it does not fit a signed BIGINT) and
// times as Unix milliseconds.
func Values(rec Record) []any {
	sel, _ := json.Marshal(nonNil(rec.Columns))
	return []any{
		rec.ID,
		rec.Kind,
		rec.FileName,
		string(sel),
		rec.RowsRead,
		rec.RowsKept,
		rec.Bytes,
		FormatDigest(rec.Digest),
		rec.Status,
		rec.ErrorKind,
		rec.Error,
		rec.StartedAt.UnixMilli(),
		rec.Duration.Milliseconds(),
	}
}

// Row holds scan targets for one stored record in Columns order.
type Row struct {
	ID, Kind, FileName, Selected string
	RowsRead, RowsKept, BytesOut int64
	Digest, Status, ErrKind, Err string
	StartedMS, DurationMS        int64
}

// Dest returns pointers for rows.Scan.
func (r *Row) Dest() []any {
	return []any{
		&r.ID, &r.Kind, &r.FileName, &r.Selected, &r.RowsRead, &r.RowsKept, &r.BytesOut,
		&r.Digest, &r.Status, &r.ErrKind, &r.Err, &r.StartedMS, &r.DurationMS,
	}
}

// Record converts the scanned row back.
func (r *Row) Record() Record {
	var cols []string
	_ = json.Unmarshal([]byte(r.Selected), &cols)
	d, _ := ParseDigest(r.Digest)
	return Record{
		ID:        r.ID,
		Kind:      r.Kind,
		FileName:  r.FileName,
		Columns:   nonNil(cols),
		RowsRead:  r.RowsRead,
		RowsKept:  r.RowsKept,
		Bytes:     r.BytesOut,
		Digest:    d,
		Status:    r.Status,
		ErrorKind: r.ErrKind,
		Error:     r.Err,
		StartedAt: time.UnixMilli(r.StartedMS).UTC(),
		Duration:  time.Duration(r.DurationMS) * time.Millisecond,
	}
}

// FormatDigest renders d as 16 lowercase hex digits.
func FormatDigest(d uint64) string {
	s := strconv.FormatUint(d, 16)
	for len(s) < 16 {
		s = "0" + s
	}
	return s
}

// ParseDigest is the inverse of FormatDigest. An empty string is zero.
func ParseDigest(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 16, 64)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
