package filter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"

	csvparser "csvfilter/internal/parser/csv"
)

func runFilter(t *testing.T, in string, sel Selection, opt Options) (string, Result, error) {
	t.Helper()
	var out bytes.Buffer
	res, err := FilterRows(context.Background(), strings.NewReader(in), sel, &out, opt)
	return out.String(), res, err
}

func TestFilterRows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       string
		sel      Selection
		want     string
		wantRead int64
		wantKept int64
	}{
		{
			name:     "drops rows with an empty selected column",
			in:       "name,age,city\nAlice,30,\nBob,,NYC\nCarol,25,LA",
			sel:      NewSelection("age", "city"),
			want:     "name,age,city\nCarol,25,LA\n",
			wantRead: 3,
			wantKept: 1,
		},
		{
			name:     "quoted comma survives",
			in:       "id,note\n1,\"hello, world\"\n",
			sel:      NewSelection("note"),
			want:     "id,note\n1,\"hello, world\"\n",
			wantRead: 1,
			wantKept: 1,
		},
		{
			name: "header only",
			in:   "name,age,city\n",
			sel:  NewSelection("age"),
			want: "name,age,city\n",
		},
		{
			name:     "empty selection keeps all",
			in:       "a,b\n1,\n,2\n",
			sel:      NewSelection(),
			want:     "a,b\n1,\n,2\n",
			wantRead: 2,
			wantKept: 2,
		},
		{
			name:     "whitespace values are empty",
			in:       "a,b\n  ,x\ny,z\n",
			sel:      NewSelection("a"),
			want:     "a,b\ny,z\n",
			wantRead: 2,
			wantKept: 1,
		},
		{
			name:     "short rows are padded",
			in:       "a,b,c\n1,2\n3\n",
			sel:      NewSelection("b"),
			want:     "a,b,c\n1,2,\n",
			wantRead: 2,
			wantKept: 1,
		},
		{
			name:     "blank lines skipped",
			in:       "a\n\n1\n\n\n2\n",
			sel:      NewSelection("a"),
			want:     "a\n1\n2\n",
			wantRead: 2,
			wantKept: 2,
		},
		{
			name:     "crlf input",
			in:       "a,b\r\n1,\r\n2,3\r\n",
			sel:      NewSelection("b"),
			want:     "a,b\n2,3\n",
			wantRead: 2,
			wantKept: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, res, err := runFilter(t, tt.in, tt.sel, DefaultOptions())
			if err != nil {
				t.Fatalf("FilterRows: %v", err)
			}
			if got != tt.want {
				t.Fatalf("output = %q, want %q", got, tt.want)
			}
			if res.RowsRead != tt.wantRead || res.RowsKept != tt.wantKept {
				t.Fatalf("read/kept = %d/%d, want %d/%d", res.RowsRead, res.RowsKept, tt.wantRead, tt.wantKept)
			}
			if res.RowsDropped() != tt.wantRead-tt.wantKept {
				t.Fatalf("RowsDropped() = %d", res.RowsDropped())
			}
			if res.Bytes != int64(len(got)) {
				t.Fatalf("Bytes = %d, want %d", res.Bytes, len(got))
			}
		})
	}
}

func TestFilterRows_EmptyInput(t *testing.T) {
	t.Parallel()

	got, res, err := runFilter(t, "", NewSelection("a"), DefaultOptions())
	if err != nil {
		t.Fatalf("FilterRows: %v", err)
	}
	if got != "" || res.RowsRead != 0 || len(res.Header) != 0 {
		t.Fatalf("output=%q result=%+v, want nothing", got, res)
	}
}

func TestFilterRows_NilInput(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	_, err := FilterRows(context.Background(), nil, NewSelection(), &out, DefaultOptions())
	if !errors.Is(err, ErrNoInput) {
		t.Fatalf("err = %v, want ErrNoInput", err)
	}
	if Classify(err) != KindNoInput {
		t.Fatalf("Classify = %q", Classify(err))
	}
}

func TestFilterRows_MissingDrop(t *testing.T) {
	t.Parallel()

	got, res, err := runFilter(t, "a,b\n1,2\n3,4\n", NewSelection("a", "zip"), DefaultOptions())
	if err != nil {
		t.Fatalf("FilterRows: %v", err)
	}
	if got != "a,b\n" {
		t.Fatalf("output = %q, want header only", got)
	}
	if res.RowsRead != 2 || res.RowsKept != 0 {
		t.Fatalf("read/kept = %d/%d", res.RowsRead, res.RowsKept)
	}
	if !reflect.DeepEqual(res.Missing, []string{"zip"}) {
		t.Fatalf("Missing = %q", res.Missing)
	}
}

func TestFilterRows_MissingError(t *testing.T) {
	t.Parallel()

	opt := DefaultOptions()
	opt.Missing = MissingError
	got, res, err := runFilter(t, "a,b\n1,2\n", NewSelection("zip", "a"), opt)

	var cnf *ColumnNotFoundError
	if !errors.As(err, &cnf) {
		t.Fatalf("err = %v, want *ColumnNotFoundError", err)
	}
	if !reflect.DeepEqual(cnf.Missing, []string{"zip"}) || !reflect.DeepEqual(cnf.Header, []string{"a", "b"}) {
		t.Fatalf("ColumnNotFoundError = %+v", cnf)
	}
	if !strings.Contains(err.Error(), "zip") {
		t.Fatalf("Error() = %q", err.Error())
	}
	if got != "" {
		t.Fatalf("output = %q, want nothing written", got)
	}
	if !reflect.DeepEqual(res.Header, []string{"a", "b"}) {
		t.Fatalf("Header = %q", res.Header)
	}
	if Classify(err) != KindColumn {
		t.Fatalf("Classify = %q", Classify(err))
	}
}

func TestFilterRows_Idempotent(t *testing.T) {
	t.Parallel()

	in := "name,age,city\nAlice,30,\nBob,,NYC\nCarol,25,LA\n\"Dan, Jr\",41,\"New\nYork\"\n"
	sel := NewSelection("age", "city")

	once, r1, err := runFilter(t, in, sel, DefaultOptions())
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	twice, r2, err := runFilter(t, once, sel, DefaultOptions())
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if once != twice {
		t.Fatalf("filter(filter(x)) != filter(x):\n%q\n%q", once, twice)
	}
	if r1.Digest != r2.Digest || r1.Digest == 0 {
		t.Fatalf("digests %x / %x", r1.Digest, r2.Digest)
	}
	if r2.RowsRead != r2.RowsKept {
		t.Fatalf("second pass dropped rows: %+v", r2)
	}
}

// TestFilterRows_IdempotentKeepingEmptyLines covers a lone empty field, which
// must survive a second pass when empty lines are not skipped.
func TestFilterRows_IdempotentKeepingEmptyLines(t *testing.T) {
	t.Parallel()

	opt := DefaultOptions()
	opt.Parser.SkipEmptyLines = false
	in := "a\n\"\"\nx\n"

	once, r1, err := runFilter(t, in, NewSelection(), opt)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if want := "a\n\"\"\nx\n"; once != want {
		t.Fatalf("first pass = %q, want %q", once, want)
	}
	twice, r2, err := runFilter(t, once, NewSelection(), opt)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if once != twice || r1.RowsKept != 2 || r2.RowsKept != 2 {
		t.Fatalf("passes differ: %q (kept %d) / %q (kept %d)", once, r1.RowsKept, twice, r2.RowsKept)
	}
}

func TestFilterRows_PreservesOrderAndValues(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	sb.WriteString("n,v\n")
	var want [][]string
	want = append(want, []string{"n", "v"})
	for i := 0; i < 5000; i++ {
		v := ""
		if i%3 != 0 {
			v = fmt.Sprintf("val \"%d\", ok", i)
		}
		fmt.Fprintf(&sb, "%d,%q\n", i, v)
		if v != "" {
			want = append(want, []string{fmt.Sprint(i), v})
		}
	}

	opt := DefaultOptions()
	opt.Buffer = 1
	// %q escapes quotes Go-style; read those back literally.
	in := strings.ReplaceAll(sb.String(), `\"`, `""`)

	got, res, err := runFilter(t, in, NewSelection("v"), opt)
	if err != nil {
		t.Fatalf("FilterRows: %v", err)
	}
	if res.RowsRead != 5000 || res.RowsKept != int64(len(want)-1) {
		t.Fatalf("read/kept = %d/%d", res.RowsRead, res.RowsKept)
	}

	rd := csvparser.NewReader(strings.NewReader(got), csvparser.Options{})
	var rows [][]string
	for {
		rec, err := rd.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("re-parse: %v", err)
		}
		rows = append(rows, rec)
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("re-parsed output differs (got %d rows, want %d)", len(rows), len(want))
	}
}

func TestFilterRows_ParseError(t *testing.T) {
	t.Parallel()

	got, res, err := runFilter(t, "a\n1\n2\n\"never closed\n", NewSelection("a"), Options{})
	if !csvparser.IsParseError(err) {
		t.Fatalf("err = %v, want ParseError", err)
	}
	if Classify(err) != KindParse {
		t.Fatalf("Classify = %q", Classify(err))
	}
	if got != "" {
		t.Fatalf("partial output flushed: %q", got)
	}
	if res.RowsRead != 2 {
		t.Fatalf("RowsRead = %d, want 2", res.RowsRead)
	}
}

func TestFilterRows_HeaderParseError(t *testing.T) {
	t.Parallel()

	_, _, err := runFilter(t, "\"a,b\n", NewSelection(), Options{})
	if Classify(err) != KindParse {
		t.Fatalf("err = %v, Classify = %q", err, Classify(err))
	}
}

type failingWriter struct{ err error }

func (f failingWriter) Write(p []byte) (int, error) { return 0, f.err }

func TestFilterRows_WriteError(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	_, err := FilterRows(context.Background(), strings.NewReader("a\n1\n"), NewSelection(), failingWriter{boom}, DefaultOptions())

	var ioe *IOError
	if !errors.As(err, &ioe) {
		t.Fatalf("err = %v, want *IOError", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v does not wrap %v", err, boom)
	}
	if Classify(err) != KindIO {
		t.Fatalf("Classify = %q", Classify(err))
	}
}

type failingReader struct{ err error }

func (f failingReader) Read(p []byte) (int, error) { return 0, f.err }

func TestFilterRows_ReadError(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	var out bytes.Buffer
	_, err := FilterRows(context.Background(), failingReader{boom}, NewSelection(), &out, DefaultOptions())

	var ioe *IOError
	if !errors.As(err, &ioe) || ioe.Op != "read" {
		t.Fatalf("err = %v, want read IOError", err)
	}
}

func TestFilterRows_CanceledBeforeStart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	_, err := FilterRows(ctx, strings.NewReader("a\n1\n"), NewSelection(), &out, DefaultOptions())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if out.Len() != 0 {
		t.Fatalf("wrote %d bytes after cancel", out.Len())
	}
}

// cancelingReader serves src and cancels once limit bytes have been read.
type cancelingReader struct {
	src    io.Reader
	limit  int
	read   int
	once   sync.Once
	cancel context.CancelFunc
}

func (c *cancelingReader) Read(p []byte) (int, error) {
	n, err := c.src.Read(p)
	c.read += n
	if c.read >= c.limit {
		c.once.Do(c.cancel)
	}
	return n, err
}

func TestFilterRows_CanceledMidStream(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	sb.WriteString("a,b\n")
	for i := 0; i < 200_000; i++ {
		sb.WriteString("x,y\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &cancelingReader{src: strings.NewReader(sb.String()), limit: 16 * 1024, cancel: cancel}

	var out bytes.Buffer
	res, err := FilterRows(ctx, src, NewSelection("b"), &out, DefaultOptions())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if Classify(err) != KindCanceled {
		t.Fatalf("Classify = %q", Classify(err))
	}
	if res.RowsRead >= 200_000 {
		t.Fatalf("read all %d rows despite cancel", res.RowsRead)
	}
}

func TestDiscoverHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"simple", "name,age,city\nAlice,30,\n", []string{"name", "age", "city"}},
		{"trimmed", " id , note \n1,x\n", []string{"id", "note"}},
		{"bom", "\uFEFFid,v\n", []string{"id", "v"}},
		{"header only no newline", "a,b", []string{"a", "b"}},
		{"empty", "", []string{}},
		{"broken data rows are not parsed", "a,b\n\"oops\n", []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := DiscoverHeaders(context.Background(), strings.NewReader(tt.in), csvparser.DefaultOptions())
			if err != nil {
				t.Fatalf("DiscoverHeaders: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDiscoverHeaders_Errors(t *testing.T) {
	t.Parallel()

	if _, err := DiscoverHeaders(context.Background(), nil, csvparser.DefaultOptions()); !errors.Is(err, ErrNoInput) {
		t.Fatalf("nil reader err = %v, want ErrNoInput", err)
	}
	if _, err := DiscoverHeaders(context.Background(), strings.NewReader("\"a,b"), csvparser.DefaultOptions()); Classify(err) != KindParse {
		t.Fatalf("unterminated header err = %v, want parse", err)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	parseErr := &csvparser.ParseError{Line: 2, Err: csvparser.ErrQuote}

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"no input", ErrNoInput, KindNoInput},
		{"wrapped no input", fmt.Errorf("upload: %w", ErrNoInput), KindNoInput},
		{"parse", parseErr, KindParse},
		{"parse inside io", &IOError{Op: "read", Err: parseErr}, KindParse},
		{"column", &ColumnNotFoundError{Missing: []string{"x"}}, KindColumn},
		{"canceled", context.Canceled, KindCanceled},
		{"deadline", fmt.Errorf("run: %w", context.DeadlineExceeded), KindCanceled},
		{"io", &IOError{Op: "write", Err: io.ErrShortWrite}, KindIO},
		{"other", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("%s: Classify = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestWrapRead(t *testing.T) {
	t.Parallel()

	if wrapRead(nil) != nil {
		t.Fatal("wrapRead(nil) != nil")
	}
	if err := wrapRead(context.Canceled); err != context.Canceled {
		t.Fatalf("context error wrapped: %v", err)
	}
	var ioe *IOError
	if err := wrapRead(io.ErrUnexpectedEOF); !errors.As(err, &ioe) || ioe.Op != "read" {
		t.Fatalf("wrapRead(raw) = %v, want read IOError", err)
	}
}
