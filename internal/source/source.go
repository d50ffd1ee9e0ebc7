// Package source opens CSV inputs for the command line: a local file, stdin
// ("-") or an http(s) URL fetched with retries.
package source

import (
	"context"
	"io"
	"strings"
)

// Source is something FilterRows can read from.
type Source interface {
	// Open returns a fresh stream. The caller closes it.
	Open(ctx context.Context) (io.ReadCloser, error)
	// Name is a short display name used in logs and run records.
	Name() string
}

// For picks a Source for a command line argument. client may be nil; a
// default Client is built on demand for URLs.
func For(arg string, stdin io.Reader, client *Client) Source {
	switch {
	case arg == "-":
		return Stdin(stdin)
	case strings.HasPrefix(arg, "http://"), strings.HasPrefix(arg, "https://"):
		if client == nil {
			client = NewClient(Config{})
		}
		return NewRemote(arg, client)
	}
	return NewLocal(arg)
}

type stdinSource struct{ r io.Reader }

// Stdin wraps r; closing the returned stream does not close r.
func Stdin(r io.Reader) Source { return stdinSource{r: r} }

func (s stdinSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return io.NopCloser(s.r), nil
}

func (stdinSource) Name() string { return "stdin" }
