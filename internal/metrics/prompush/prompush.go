// Package prompush implements a Prometheus backend for the metrics package.
//
// The backend owns a private registry with the csvfilter collectors. It can
// be scraped through Handler and, when a Pushgateway URL is configured, pushed
// on Flush so short-lived CLI runs are not lost between scrapes.
//
// All Prometheus imports live here; the pipeline only sees metrics.Backend.
package prompush

import (
	"fmt"
	"net/http"

	"csvfilter/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// DefaultJob is the Pushgateway grouping job when none is given.
const DefaultJob = "csvfilter"

// Backend is a Prometheus metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091; empty disables push
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	runCounter  *prometheus.CounterVec // csvfilter_runs_total{op,status}
	runDuration *prometheus.SummaryVec // csvfilter_run_duration_seconds{op,status}

	rowCounter  *prometheus.CounterVec // csvfilter_rows_total{kind}
	byteCounter *prometheus.CounterVec // csvfilter_bytes_total{direction}
}

// NewBackend constructs a Prometheus backend. An empty gatewayURL yields a
// scrape-only backend whose Flush is a no-op.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if jobName == "" {
		jobName = DefaultJob
	}

	reg := prometheus.NewRegistry()

	runCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.RunsTotal,
			Help: "Header discovery and filter runs, partitioned by op and status.",
		},
		[]string{"op", "status"},
	)
	runDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       metrics.RunDurationSeconds,
			Help:       "Run duration in seconds, partitioned by op and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"op", "status"},
	)
	rowCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Data rows per kind (read, kept, dropped).",
		},
		[]string{"kind"},
	)
	byteCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.BytesTotal,
			Help: "Bytes per direction (in = uploaded, out = written).",
		},
		[]string{"direction"},
	)

	for name, c := range map[string]prometheus.Collector{
		"run counter":  runCounter,
		"run summary":  runDuration,
		"row counter":  rowCounter,
		"byte counter": byteCounter,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}

	return &Backend{
		gatewayURL:  gatewayURL,
		jobName:     jobName,
		reg:         reg,
		runCounter:  runCounter,
		runDuration: runDuration,
		rowCounter:  rowCounter,
		byteCounter: byteCounter,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.RunsTotal:
		if b.runCounter == nil {
			return
		}
		b.runCounter.WithLabelValues(labels["op"], labels["status"]).Add(delta)

	case metrics.RowsTotal:
		if b.rowCounter == nil {
			return
		}
		b.rowCounter.WithLabelValues(labels["kind"]).Add(delta)

	case metrics.BytesTotal:
		if b.byteCounter == nil {
			return
		}
		b.byteCounter.WithLabelValues(labels["direction"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.RunDurationSeconds || b.runDuration == nil {
		return
	}
	b.runDuration.WithLabelValues(labels["op"], labels["status"]).Observe(value)
}

// Handler serves the registry in the Prometheus exposition format.
func (b *Backend) Handler() http.Handler {
	return promhttp.HandlerFor(b.reg, promhttp.HandlerOpts{})
}

// Flush pushes the current registry to the Pushgateway, if one is configured.
func (b *Backend) Flush() error {
	if b.gatewayURL == "" {
		return nil
	}
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
