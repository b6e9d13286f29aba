// Package metrics exports engine and monitor statistics in Prometheus form.
//
// Two Registry implementations exist:
//   - ScrapeRegistry registers collectors with a prometheus.Registry served
//     over HTTP by Handler.
//   - PushRegistry buffers values and sends them to a remote write endpoint
//     (Prometheus, VictoriaMetrics, Mimir) on Flush.
//
// The engine and the monitor depend only on Registry.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Gauge holds a value that can go up and down.
type Gauge interface {
	Set(float64)
}

// Counter only goes up. Add panics on negative values.
type Counter interface {
	Inc()
	Add(float64)
}

// GaugeVec partitions a Gauge by labels.
type GaugeVec interface {
	With(prometheus.Labels) Gauge
}

// CounterVec partitions a Counter by labels.
type CounterVec interface {
	With(prometheus.Labels) Counter
}

// Registry creates metrics. Asking for a metric that already exists returns
// the existing one, so engines and monitors can share a Registry.
type Registry interface {
	NewGauge(opts prometheus.GaugeOpts) (Gauge, error)
	NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error)
	NewCounter(opts prometheus.CounterOpts) (Counter, error)
	NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error)
}

// Flusher is implemented by registries that export on demand.
type Flusher interface {
	Flush(ctx context.Context) error
}
