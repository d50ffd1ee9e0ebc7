// Package staging owns the temporary files a request creates: the spooled
// upload and, unless output is streamed, the filtered result. Every file of a
// request lives in one Stage directory, and Release removes it on all exit
// paths.
package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"csvfilter/internal/logger"
)

const stagePrefix = "csvfilter-"

// ErrInsufficientSpace is returned by Stage when the staging filesystem has
// less free space than the configured minimum.
var ErrInsufficientSpace = errors.New("staging: insufficient free disk space")

// ErrReleased is returned when a released Stage is used again.
var ErrReleased = errors.New("staging: stage already released")

// Area is a directory under which per-request stages are created.
type Area struct {
	dir     string
	minFree int64
}

// NewArea prepares dir (os.TempDir() when empty). minFree > 0 makes Stage
// refuse new work when the filesystem has less free space than that.
func NewArea(dir string, minFree int64) (*Area, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("staging: create %s: %w", dir, err)
	}
	return &Area{dir: dir, minFree: minFree}, nil
}

// Dir returns the area root.
func (a *Area) Dir() string { return a.dir }

// Stage creates a fresh stage directory tagged with id.
func (a *Area) Stage(id string) (*Stage, error) {
	if a.minFree > 0 {
		free, err := FreeBytes(a.dir)
		if err == nil && free >= 0 && free < a.minFree {
			return nil, fmt.Errorf("%w: %s free, %s required",
				ErrInsufficientSpace, logger.Bytes(free), logger.Bytes(a.minFree))
		}
	}
	dir, err := os.MkdirTemp(a.dir, stagePrefix+sanitize(id)+"-")
	if err != nil {
		return nil, fmt.Errorf("staging: %w", err)
	}
	return &Stage{dir: dir}, nil
}

// Sweep removes stage directories older than age, left behind by a crashed
// process. It returns how many were removed.
func (a *Area) Sweep(age time.Duration) (int, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return 0, fmt.Errorf("staging: sweep %s: %w", a.dir, err)
	}
	cutoff := time.Now().Add(-age)
	n := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), stagePrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(a.dir, e.Name())); err != nil {
			logger.Warn("staging: sweep failed", "dir", e.Name(), "err", err)
			continue
		}
		n++
	}
	return n, nil
}

// Stage is the set of temporary files belonging to one request. It is safe
// for concurrent use.
type Stage struct {
	mu       sync.Mutex
	dir      string
	files    []*os.File
	released bool
}

// Dir returns the stage directory.
func (s *Stage) Dir() string { return s.dir }

// Create creates name inside the stage. The file is closed by Release if the
// caller has not closed it already.
func (s *Stage) Create(name string) (*os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, ErrReleased
	}
	f, err := os.OpenFile(filepath.Join(s.dir, filepath.Base(name)), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("staging: %w", err)
	}
	s.files = append(s.files, f)
	return f, nil
}

// Open opens a staged file for a sequential read.
func (s *Stage) Open(name string) (*os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, ErrReleased
	}
	f, err := os.Open(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil {
		return nil, fmt.Errorf("staging: %w", err)
	}
	adviseSequential(f)
	s.files = append(s.files, f)
	return f, nil
}

// Release closes every file and removes the stage directory. It is
// idempotent.
func (s *Stage) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	for _, f := range s.files {
		_ = f.Close() // already-closed files report an error we do not care about
	}
	s.files = nil
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("staging: remove %s: %w", s.dir, err)
	}
	return nil
}

func sanitize(id string) string {
	var b strings.Builder
	for _, r := range id {
		if r == '-' || r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() >= 36 {
			break
		}
	}
	return b.String()
}
