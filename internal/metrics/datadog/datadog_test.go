package datadog

import (
	"errors"
	"reflect"
	"testing"

	"csvfilter/internal/metrics"
)

type sample struct {
	kind  string
	name  string
	value float64
	tags  []string
}

type fakeClient struct {
	samples []sample
	flushed int
	closed  int
	err     error
}

func (f *fakeClient) Count(name string, value int64, tags []string, rate float64) error {
	f.samples = append(f.samples, sample{"count", name, float64(value), tags})
	return f.err
}

func (f *fakeClient) Histogram(name string, value float64, tags []string, rate float64) error {
	f.samples = append(f.samples, sample{"histogram", name, value, tags})
	return f.err
}

func (f *fakeClient) Flush() error { f.flushed++; return f.err }
func (f *fakeClient) Close() error { f.closed++; return nil }

func TestLabelsToTags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   metrics.Labels
		want []string
	}{
		{"nil", nil, nil},
		{"empty", metrics.Labels{}, nil},
		{"sorted", metrics.Labels{"status": "success", "op": "filter"}, []string{"op:filter", "status:success"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := labelsToTags(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("labelsToTags(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestBackendForwards(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	b := &Backend{client: fc}

	b.IncCounter(metrics.RowsTotal, 7, metrics.Labels{"kind": "kept"})
	b.ObserveHistogram(metrics.RunDurationSeconds, 0.5, metrics.Labels{"op": "filter", "status": "success"})

	want := []sample{
		{"count", "rows_total", 7, []string{"kind:kept"}},
		{"histogram", "run_duration_seconds", 0.5, []string{"op:filter", "status:success"}},
	}
	if !reflect.DeepEqual(fc.samples, want) {
		t.Fatalf("samples = %+v, want %+v", fc.samples, want)
	}

	if err := b.Flush(); err != nil || fc.flushed != 1 {
		t.Fatalf("Flush() = %v, flushed=%d", err, fc.flushed)
	}
	if err := b.Close(); err != nil || fc.closed != 1 {
		t.Fatalf("Close() = %v, closed=%d", err, fc.closed)
	}
}

func TestBackendFlushError(t *testing.T) {
	t.Parallel()

	boom := errors.New("agent gone")
	b := &Backend{client: &fakeClient{err: boom}}
	if err := b.Flush(); !errors.Is(err, boom) {
		t.Fatalf("Flush() = %v, want %v", err, boom)
	}
}

func TestNilClient(t *testing.T) {
	t.Parallel()

	b := &Backend{}
	b.IncCounter("x", 1, nil)
	b.ObserveHistogram("x", 1, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() = %v", err)
	}
}

func TestNewBackendRequiresAddr(t *testing.T) {
	t.Parallel()

	if _, err := NewBackend(Config{}); err == nil {
		t.Fatal("NewBackend without Addr: want error")
	}
}

func TestNewBackendUDP(t *testing.T) {
	t.Parallel()

	// UDP needs no listener; the client is created lazily.
	b, err := NewBackend(Config{Addr: "127.0.0.1:8125", GlobalTags: []string{"env:test"}})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	defer b.Close()
	b.IncCounter(metrics.RunsTotal, 1, metrics.Labels{"op": "headers", "status": "success"})
}
