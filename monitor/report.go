package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/nomis52/nodegraph/metrics"
	"github.com/nomis52/nodegraph/node"
)

// DefaultSchedule is the summary schedule used when none is configured.
const DefaultSchedule = "@every 1m"

// ErrInvalidSchedule is returned when the summary schedule cannot be parsed.
var ErrInvalidSchedule = errors.New("invalid summary schedule")

// ParseSchedule parses a standard 5-field cron spec or a descriptor such as
// "@hourly" or "@every 30s".
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidSchedule, err)
	}
	return schedule, nil
}

// Start launches a goroutine that reports according to spec until ctx is
// cancelled. An empty spec uses DefaultSchedule. Returns immediately.
func (m *Monitor) Start(ctx context.Context, spec string) error {
	if spec == "" {
		spec = DefaultSchedule
	}
	schedule, err := ParseSchedule(spec)
	if err != nil {
		return err
	}
	go m.loop(ctx, schedule)
	return nil
}

func (m *Monitor) loop(ctx context.Context, schedule cron.Schedule) {
	for {
		next := schedule.Next(time.Now())
		wait := time.Until(next)
		m.logger.Debug("waiting for next summary", "next_run", next, "wait_duration", wait)

		select {
		case <-ctx.Done():
			m.logger.Debug("monitor reporter shutting down")
			return
		case <-time.After(wait):
			if err := m.Report(ctx); err != nil {
				m.logger.Warn("monitor report failed", "error", err)
			}
		}
	}
}

// Report logs the summary, updates the exported gauges and, for push
// registries, flushes them.
func (m *Monitor) Report(ctx context.Context) error {
	if err := m.Flush(ctx); err != nil {
		return err
	}
	m.Summarize(ctx)

	if m.gauges == nil {
		return nil
	}
	m.gauges.update(m.Snapshot(), m.Dropped())
	if f, ok := m.registry.(metrics.Flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}

// gauges mirror the statistics in a metrics.Registry.
type gauges struct {
	count   metrics.GaugeVec
	total   metrics.GaugeVec
	min     metrics.GaugeVec
	max     metrics.GaugeVec
	avg     metrics.GaugeVec
	dropped metrics.Gauge
}

func newGauges(reg metrics.Registry) (*gauges, error) {
	labels := []string{"graph", "node"}
	vec := func(name, help string) (metrics.GaugeVec, error) {
		return reg.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
	}

	var g gauges
	var errs []error
	var err error
	g.count, err = vec("monitor_node_executions", "Recorded executions per node since start")
	errs = append(errs, err)
	g.total, err = vec("monitor_node_seconds_total", "Total execution time per node since start")
	errs = append(errs, err)
	g.min, err = vec("monitor_node_seconds_min", "Fastest execution per node since start")
	errs = append(errs, err)
	g.max, err = vec("monitor_node_seconds_max", "Slowest execution per node since start")
	errs = append(errs, err)
	g.avg, err = vec("monitor_node_seconds_avg", "Mean execution time per node since start")
	errs = append(errs, err)
	g.dropped, err = reg.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_dropped_samples",
		Help: "Samples dropped because the monitor queue was full",
	})
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &g, nil
}

func (g *gauges) update(snapshot map[string]map[node.ID]Stats, dropped int64) {
	for graph, nodes := range snapshot {
		for id, s := range nodes {
			labels := prometheus.Labels{"graph": graph, "node": id.String()}
			g.count.With(labels).Set(float64(s.Count))
			g.total.With(labels).Set(s.Total.Seconds())
			g.min.With(labels).Set(s.Min.Seconds())
			g.max.With(labels).Set(s.Max.Seconds())
			g.avg.With(labels).Set(s.Avg().Seconds())
		}
	}
	g.dropped.Set(float64(dropped))
}
