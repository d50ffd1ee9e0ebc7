package csv

import "io"

// guardSlack covers the read-ahead of encoding/csv's internal bufio.Reader.
const guardSlack = 64 * 1024

// recordGuard is an io.Reader that fails once more than limit+guardSlack bytes
// have been pulled from the source since the last completed record. It keeps
// encoding/csv from growing its line buffer without bound on a runaway quoted
// field.
type recordGuard struct {
	r     io.Reader
	limit int64
	read  int64 // total bytes handed to the csv reader
	mark  int64 // InputOffset after the last completed record
}

func newRecordGuard(r io.Reader, limit int) *recordGuard {
	return &recordGuard{r: r, limit: int64(limit)}
}

func (g *recordGuard) Read(p []byte) (int, error) {
	if g.limit > 0 && g.read-g.mark > g.limit+guardSlack {
		return 0, ErrRecordTooLarge
	}
	n, err := g.r.Read(p)
	g.read += int64(n)
	return n, err
}

// commit records that the csv reader has consumed input up to offset.
func (g *recordGuard) commit(offset int64) { g.mark = offset }
