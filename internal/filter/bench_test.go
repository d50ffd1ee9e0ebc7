package filter

import (
	"context"
	"io"
	"strconv"
	"strings"
	"testing"
)

// benchInput builds n data rows where every third row has an empty "age".
func benchInput(n int) string {
	var sb strings.Builder
	sb.WriteString("id,name,age,city,note\n")
	for i := 0; i < n; i++ {
		age := "42"
		if i%3 == 0 {
			age = ""
		}
		sb.WriteString(strconv.Itoa(i))
		sb.WriteString(",Ada Lovelace,")
		sb.WriteString(age)
		sb.WriteString(",\"London, UK\",plain text\n")
	}
	return sb.String()
}

// BenchmarkFilterRows measures the reader → channel → writer hot path
// without disk I/O.
// Run with:
//
//	go test -run=^$ -bench ^BenchmarkFilterRows$ -benchmem ./internal/filter
func BenchmarkFilterRows(b *testing.B) {
	const rows = 10000
	in := benchInput(rows)
	sel := NewSelection("age", "city")
	opt := DefaultOptions()

	b.SetBytes(int64(len(in)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := FilterRows(context.Background(), strings.NewReader(in), sel, io.Discard, opt)
		if err != nil {
			b.Fatal(err)
		}
		if res.RowsRead != rows {
			b.Fatalf("RowsRead = %d", res.RowsRead)
		}
	}
}

func BenchmarkPredicateKeep(b *testing.B) {
	header := []string{"id", "name", "age", "city", "note"}
	pred := NewSelection("age", "city").Resolve(header)
	fields := []string{"1", "Ada", "42", "London", "x"}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if !pred.Keep(fields) {
			b.Fatal("row dropped")
		}
	}
}
