package staging

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestStage_CreateOpenRelease(t *testing.T) {
	t.Parallel()

	a, err := NewArea(filepath.Join(t.TempDir(), "nested", "area"), 0)
	if err != nil {
		t.Fatalf("NewArea: %v", err)
	}
	s, err := a.Stage("req-123")
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(s.Dir()), "csvfilter-req-123-") {
		t.Fatalf("stage dir = %q", s.Dir())
	}

	f, err := s.Create("input.csv")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.WriteString("a,b\n1,2\n"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create("input.csv"); err == nil {
		t.Fatal("Create of existing name: want error")
	}

	r, err := s.Open("input.csv")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := r.Read(buf); err != nil || string(buf) != "a,b\n" {
		t.Fatalf("Read = %q, %v", buf, err)
	}

	if err := s.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(s.Dir()); !os.IsNotExist(err) {
		t.Fatalf("stage dir still exists: %v", err)
	}
	if err := s.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if _, err := s.Create("x"); !errors.Is(err, ErrReleased) {
		t.Fatalf("Create after Release = %v, want ErrReleased", err)
	}
	if _, err := s.Open("x"); !errors.Is(err, ErrReleased) {
		t.Fatalf("Open after Release = %v, want ErrReleased", err)
	}
}

func TestStage_NamesStayInside(t *testing.T) {
	t.Parallel()

	a, err := NewArea(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	s, err := a.Stage("../../etc")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Release()

	if filepath.Dir(s.Dir()) != a.Dir() {
		t.Fatalf("stage %q escaped area %q", s.Dir(), a.Dir())
	}
	f, err := s.Create("../escape.csv")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(f.Name()) != s.Dir() {
		t.Fatalf("file %q escaped stage %q", f.Name(), s.Dir())
	}
}

func TestArea_MinFree(t *testing.T) {
	t.Parallel()

	if runtime.GOOS != "linux" {
		t.Skip("free space probing is linux only")
	}
	a, err := NewArea(t.TempDir(), 1<<62)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Stage("big"); !errors.Is(err, ErrInsufficientSpace) {
		t.Fatalf("Stage = %v, want ErrInsufficientSpace", err)
	}

	free, err := FreeBytes(a.Dir())
	if err != nil || free <= 0 {
		t.Fatalf("FreeBytes = %d, %v", free, err)
	}
}

func TestArea_Sweep(t *testing.T) {
	t.Parallel()

	a, err := NewArea(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	old, err := a.Stage("old")
	if err != nil {
		t.Fatal(err)
	}
	fresh, err := a.Stage("fresh")
	if err != nil {
		t.Fatal(err)
	}
	defer fresh.Release()
	other := filepath.Join(a.Dir(), "unrelated")
	if err := os.Mkdir(other, 0o700); err != nil {
		t.Fatal(err)
	}

	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(old.Dir(), past, past); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(other, past, past); err != nil {
		t.Fatal(err)
	}

	n, err := a.Sweep(time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("Sweep removed %d, want 1", n)
	}
	if _, err := os.Stat(old.Dir()); !os.IsNotExist(err) {
		t.Fatal("old stage not removed")
	}
	for _, keep := range []string{fresh.Dir(), other} {
		if _, err := os.Stat(keep); err != nil {
			t.Fatalf("%s removed: %v", keep, err)
		}
	}
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	if got := sanitize("a/b\\c d-1_2"); got != "abcd-1_2" {
		t.Fatalf("sanitize = %q", got)
	}
	if got := sanitize(strings.Repeat("x", 100)); len(got) != 36 {
		t.Fatalf("sanitize length = %d", len(got))
	}
}
