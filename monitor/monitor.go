// Package monitor aggregates node execution times across runs.
//
// Recording is fire-and-forget: samples are queued to a single aggregation
// goroutine, so concurrent callers never contend on the statistics. The
// statistics live for the lifetime of the Monitor; the process-wide Default
// monitor is never reset. Its key space is bounded by the graphs and nodes
// compiled into the program.
//
//	m := monitor.New(monitor.WithLogger(logger))
//	m.Record("orders", "charge", 120*time.Millisecond)
//	m.Flush(ctx)
//	m.Summarize(ctx)
package monitor

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nomis52/nodegraph/metrics"
	"github.com/nomis52/nodegraph/node"
)

// DefaultBuffer is the number of samples that can be queued before Record
// starts dropping them.
const DefaultBuffer = 4096

// Stats are the aggregated execution times of one node in one graph.
type Stats struct {
	Count int64
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Avg returns the mean execution time, or zero if nothing was recorded.
func (s Stats) Avg() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

func (s *Stats) add(elapsed time.Duration) {
	if s.Count == 0 || elapsed < s.Min {
		s.Min = elapsed
	}
	if elapsed > s.Max {
		s.Max = elapsed
	}
	s.Count++
	s.Total += elapsed
}

// sample is one queued update. A sample with a non-nil barrier only signals
// that everything queued before it has been applied.
type sample struct {
	graph   string
	node    node.ID
	elapsed time.Duration
	barrier chan struct{}
}

// Monitor aggregates per (graph, node) execution statistics.
type Monitor struct {
	logger   *slog.Logger
	registry metrics.Registry
	samples  chan sample
	dropped  atomic.Int64

	mu    sync.RWMutex
	stats map[string]map[node.ID]*Stats

	gauges *gauges
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets a custom logger for the monitor.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger.With("component", "monitor")
	}
}

// WithBuffer sets the sample queue size.
func WithBuffer(size int) Option {
	return func(m *Monitor) {
		if size > 0 {
			m.samples = make(chan sample, size)
		}
	}
}

// WithMetrics exports the statistics as gauges on every report.
func WithMetrics(reg metrics.Registry) Option {
	return func(m *Monitor) {
		m.registry = reg
	}
}

// New creates a Monitor and starts its aggregation goroutine.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		logger:  slog.Default().With("component", "monitor"),
		samples: make(chan sample, DefaultBuffer),
		stats:   make(map[string]map[node.ID]*Stats),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry != nil {
		g, err := newGauges(m.registry)
		if err != nil {
			m.logger.Error("failed to register monitor metrics", "error", err)
		}
		m.gauges = g
	}
	go m.aggregate()
	return m
}

var defaultMonitor = sync.OnceValue(func() *Monitor {
	return New()
})

// Default returns the process-wide Monitor.
func Default() *Monitor {
	return defaultMonitor()
}

// Record queues one execution time. It never blocks; when the queue is full
// the sample is dropped and counted.
func (m *Monitor) Record(graph string, id node.ID, elapsed time.Duration) {
	select {
	case m.samples <- sample{graph: graph, node: id, elapsed: elapsed}:
	default:
		if m.dropped.Add(1) == 1 {
			m.logger.Warn("monitor queue full, dropping samples")
		}
	}
}

// Dropped returns how many samples Record has dropped.
func (m *Monitor) Dropped() int64 {
	return m.dropped.Load()
}

// Flush waits until every sample recorded before the call has been applied.
func (m *Monitor) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	select {
	case m.samples <- sample{barrier: barrier}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a copy of the current statistics keyed by graph and node.
func (m *Monitor) Snapshot() map[string]map[node.ID]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]map[node.ID]Stats, len(m.stats))
	for graph, nodes := range m.stats {
		copied := make(map[node.ID]Stats, len(nodes))
		for id, s := range nodes {
			copied[id] = *s
		}
		out[graph] = copied
	}
	return out
}

// Summarize logs one line per graph with the statistics of each of its
// nodes.
func (m *Monitor) Summarize(ctx context.Context) {
	snapshot := m.Snapshot()

	graphs := make([]string, 0, len(snapshot))
	for g := range snapshot {
		graphs = append(graphs, g)
	}
	sort.Strings(graphs)

	for _, g := range graphs {
		nodes := snapshot[g]
		ids := make([]node.ID, 0, len(nodes))
		for id := range nodes {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		attrs := make([]slog.Attr, 0, len(ids)+1)
		attrs = append(attrs, slog.String("graph", g))
		for _, id := range ids {
			s := nodes[id]
			attrs = append(attrs, slog.Group(id.ShortString(),
				slog.Int64("count", s.Count),
				slog.Duration("avg", s.Avg()),
				slog.Duration("min", s.Min),
				slog.Duration("max", s.Max),
				slog.Duration("total", s.Total),
			))
		}
		m.logger.LogAttrs(ctx, slog.LevelInfo, "node timing summary", attrs...)
	}
}

// aggregate is the single writer of m.stats.
func (m *Monitor) aggregate() {
	for s := range m.samples {
		if s.barrier != nil {
			close(s.barrier)
			continue
		}
		m.mu.Lock()
		nodes, ok := m.stats[s.graph]
		if !ok {
			nodes = make(map[node.ID]*Stats)
			m.stats[s.graph] = nodes
		}
		st, ok := nodes[s.node]
		if !ok {
			st = &Stats{}
			nodes[s.node] = st
		}
		st.add(s.elapsed)
		m.mu.Unlock()
	}
}
