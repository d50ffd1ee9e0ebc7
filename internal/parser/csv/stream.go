package csv

import (
	"context"
	"io"

	"csvfilter/internal/logger"
	"csvfilter/internal/record"
)

// logEveryN controls the reader progress heartbeat.
const logEveryN = 100_000

// StreamRows drains rd into out as pooled rows until EOF, a read error, or ctx
// cancellation. Sends block while out is full, so a slow consumer throttles
// the reader and memory stays bounded by cap(out).
//
// It returns nil at EOF. The caller owns out and closes it after StreamRows
// returns; the consumer must Free every row it receives.
func StreamRows(ctx context.Context, rd *Reader, out chan<- *record.Row) error {
	emitted := 0
	for {
		// cooperative cancel
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		row, err := rd.ReadRow()
		if err == io.EOF {
			logger.Debug("reader: done", "line", rd.Line(), "emitted", emitted)
			return nil
		}
		if err != nil {
			return err
		}

		line := row.Line // row belongs to the consumer once sent
		select {
		case out <- row:
			emitted++
			if emitted%logEveryN == 0 {
				logger.Debug("reader: progress", "line", line, "emitted", emitted)
			}
		case <-ctx.Done():
			row.Free()
			return ctx.Err()
		}
	}
}
