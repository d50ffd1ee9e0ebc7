package source

import (
	"context"
	"io"
	"sync"
)

// ctxReader pumps the underlying stream through an io.Pipe so a Read blocked
// on a pipe or terminal returns as soon as ctx is done. The pipe is
// unbuffered, so at most one pending chunk sits between source and reader.
type ctxReader struct {
	pr   *io.PipeReader
	src  io.Closer
	stop func() bool
	once sync.Once
}

// WithContext returns a stream that fails with ctx.Err() once ctx is done,
// even while the underlying Read is still blocked. Closing it closes rc.
func WithContext(ctx context.Context, rc io.ReadCloser) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		_, err := io.Copy(pw, rc)
		pw.CloseWithError(err)
	}()
	stop := context.AfterFunc(ctx, func() {
		pr.CloseWithError(ctx.Err())
	})
	return &ctxReader{pr: pr, src: rc, stop: stop}
}

func (c *ctxReader) Read(p []byte) (int, error) { return c.pr.Read(p) }

func (c *ctxReader) Close() error {
	var err error
	c.once.Do(func() {
		c.stop()
		c.pr.Close()
		err = c.src.Close()
	})
	return err
}
