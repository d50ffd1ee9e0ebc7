package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local reads a file from disk.
type Local struct{ path string }

func NewLocal(path string) *Local { return &Local{path: path} }

// Open returns the context error without touching the filesystem when ctx
// is already done. Filesystem errors keep os.ErrNotExist and friends
// reachable through errors.Is.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	return f, nil
}

func (l *Local) Name() string { return filepath.Base(l.path) }
