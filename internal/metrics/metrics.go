// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from csvfilter.
//
// The package is intentionally minimal:
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data (histograms).
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//   - Concrete metric systems live in subpackages (prompush, datadog) so the
//     pipeline never imports a vendor client.
package metrics

import "time"

// Metric names shared by every backend.
const (
	RunsTotal          = "csvfilter_runs_total"
	RunDurationSeconds = "csvfilter_run_duration_seconds"
	RowsTotal          = "csvfilter_rows_total"
	BytesTotal         = "csvfilter_bytes_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
// Call it once at startup, before any run starts.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Current returns the installed backend.
func Current() Backend { return backend }

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep counts one execution of op ("headers", "filter") and records its
// latency, labelled success or failure.
func RecordStep(op string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"op": op, "status": status}

	backend.IncCounter(RunsTotal, 1, lbls)
	backend.ObserveHistogram(RunDurationSeconds, d.Seconds(), lbls)
}

// RecordRows increments the row counter for kind ("read", "kept", "dropped").
func RecordRows(kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(delta), Labels{"kind": kind})
}

// RecordBytes increments the byte counter for direction ("in", "out").
func RecordBytes(direction string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(BytesTotal, float64(delta), Labels{"direction": direction})
}
