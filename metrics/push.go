package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 30 * time.Second
)

// PushRegistry implements Registry for push-based metrics collection.
//
// Setting a gauge or incrementing a counter only updates an in-memory value.
// Flush writes the current value of every series to the remote write endpoint
// in a single request, so metric updates never block on the network.
type PushRegistry struct {
	url        string
	httpClient *http.Client
	prefix     string
	job        string
	instance   string
	timeout    time.Duration

	mu     sync.Mutex
	series map[string]*series
}

// PushConfig configures a PushRegistry.
type PushConfig struct {
	// URL is the base URL of the remote write endpoint (e.g., "http://localhost:9090").
	URL string
	// Prefix is the metric name prefix. All metric names will be prefixed with this value
	// followed by an underscore.
	Prefix string
	// Job is the job label for all metrics.
	Job string
	// Instance is the instance label for all metrics.
	Instance string
	// Timeout is the HTTP client timeout. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// series is one labelled metric value.
type series struct {
	name    string
	labels  map[string]string
	value   float64
	dirty   bool
	// version counts updates so a flush only marks clean what it sent.
	version uint64
}

// flushed is a series and the version a flush sent.
type flushed struct {
	s       *series
	version uint64
}

// NewPushRegistry creates a new PushRegistry that pushes metrics to the given URL.
func NewPushRegistry(cfg PushConfig) *PushRegistry {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &PushRegistry{
		url:        strings.TrimSuffix(cfg.URL, "/") + "/api/v1/write",
		httpClient: &http.Client{Timeout: timeout},
		prefix:     cfg.Prefix,
		job:        cfg.Job,
		instance:   cfg.Instance,
		timeout:    timeout,
		series:     make(map[string]*series),
	}
}

// NewGauge creates a new push-based Gauge.
func (r *PushRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	return &pushGauge{s: r.seriesFor(fullName(opts.Namespace, opts.Subsystem, opts.Name), nil)}, nil
}

// NewGaugeVec creates a new push-based GaugeVec.
func (r *PushRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	return &pushGaugeVec{registry: r, name: fullName(opts.Namespace, opts.Subsystem, opts.Name), labels: labels}, nil
}

// NewCounter creates a new push-based Counter.
func (r *PushRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	return &pushCounter{s: r.seriesFor(fullName(opts.Namespace, opts.Subsystem, opts.Name), nil)}, nil
}

// NewCounterVec creates a new push-based CounterVec.
func (r *PushRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	return &pushCounterVec{registry: r, name: fullName(opts.Namespace, opts.Subsystem, opts.Name), labels: labels}, nil
}

// seriesFor returns the series for name and labels, creating it on first use.
func (r *PushRegistry) seriesFor(name string, labels map[string]string) *pushSeries {
	key := seriesKey(name, labels)

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.series[key]
	if !ok {
		s = &series{name: name, labels: labels}
		r.series[key] = s
	}
	return &pushSeries{registry: r, s: s}
}

// Len returns the number of known series.
func (r *PushRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.series)
}

// Flush writes every series updated since the last successful flush. Nothing
// is sent when no series changed. A series updated during the write stays
// pending.
func (r *PushRegistry) Flush(ctx context.Context) error {
	r.mu.Lock()
	now := time.Now().UnixMilli()
	var pending []flushed
	var timeseries []prompb.TimeSeries
	for _, s := range r.series {
		if !s.dirty {
			continue
		}
		pending = append(pending, flushed{s: s, version: s.version})
		timeseries = append(timeseries, r.toTimeSeries(s, now))
	}
	r.mu.Unlock()

	if len(timeseries) == 0 {
		return nil
	}

	if err := r.write(ctx, &prompb.WriteRequest{Timeseries: timeseries}); err != nil {
		return err
	}

	r.mu.Lock()
	for _, f := range pending {
		// Updates made while the request was in flight go out next time.
		if f.s.version == f.version {
			f.s.dirty = false
		}
	}
	r.mu.Unlock()
	return nil
}

// write sends a remote write request.
func (r *PushRegistry) write(ctx context.Context, req *prompb.WriteRequest) error {
	data, err := proto.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling write request: %w", err)
	}

	compressed := snappy.Encode(nil, data)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// toTimeSeries converts a series to Prometheus TimeSeries format. Labels are
// sorted by name as remote write requires.
func (r *PushRegistry) toTimeSeries(s *series, ts int64) prompb.TimeSeries {
	metricName := s.name
	if r.prefix != "" {
		metricName = r.prefix + "_" + s.name
	}

	labels := []prompb.Label{{Name: "__name__", Value: metricName}}
	if r.job != "" {
		labels = append(labels, prompb.Label{Name: "job", Value: r.job})
	}
	if r.instance != "" {
		labels = append(labels, prompb.Label{Name: "instance", Value: r.instance})
	}
	for k, v := range s.labels {
		labels = append(labels, prompb.Label{Name: k, Value: v})
	}
	slices.SortFunc(labels, func(a, b prompb.Label) int {
		return strings.Compare(a.Name, b.Name)
	})

	return prompb.TimeSeries{
		Labels:  labels,
		Samples: []prompb.Sample{{Value: s.value, Timestamp: ts}},
	}
}

// pushSeries mutates a series under the registry lock.
type pushSeries struct {
	registry *PushRegistry
	s        *series
}

func (p *pushSeries) update(f func(v float64) float64) {
	p.registry.mu.Lock()
	defer p.registry.mu.Unlock()
	p.s.value = f(p.s.value)
	p.s.dirty = true
	p.s.version++
}

// pushGauge implements Gauge for push mode.
type pushGauge struct {
	s *pushSeries
}

func (g *pushGauge) Set(v float64) {
	g.s.update(func(float64) float64 { return v })
}

// pushCounter implements Counter for push mode.
type pushCounter struct {
	s *pushSeries
}

func (c *pushCounter) Inc() {
	c.Add(1)
}

func (c *pushCounter) Add(v float64) {
	if v < 0 {
		panic("counter cannot decrease in value")
	}
	c.s.update(func(cur float64) float64 { return cur + v })
}

// pushGaugeVec implements GaugeVec for push mode.
type pushGaugeVec struct {
	registry *PushRegistry
	name     string
	labels   []string
}

func (g *pushGaugeVec) With(labels prometheus.Labels) Gauge {
	return &pushGauge{s: g.registry.seriesFor(g.name, labels)}
}

// pushCounterVec implements CounterVec for push mode.
type pushCounterVec struct {
	registry *PushRegistry
	name     string
	labels   []string
}

func (c *pushCounterVec) With(labels prometheus.Labels) Counter {
	return &pushCounter{s: c.registry.seriesFor(c.name, labels)}
}

// fullName joins namespace, subsystem and name like prometheus.BuildFQName.
func fullName(namespace, subsystem, name string) string {
	return prometheus.BuildFQName(namespace, subsystem, name)
}

// seriesKey creates a stable map key from a name and labels.
func seriesKey(name string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteString(",")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(labels[k])
	}
	return b.String()
}
