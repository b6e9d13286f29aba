package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nomis52/nodegraph/graph"
	"github.com/nomis52/nodegraph/logging"
	"github.com/nomis52/nodegraph/metrics"
	"github.com/nomis52/nodegraph/monitor"
	"github.com/nomis52/nodegraph/node"
)

const tracerName = "github.com/nomis52/nodegraph/engine"

// Recorder receives the wall-clock time of every finished node attempt.
// *monitor.Monitor implements it.
type Recorder interface {
	Record(graph string, id node.ID, elapsed time.Duration)
}

// Engine executes graphs. It holds no per-run state, so one Engine can run
// any number of graphs concurrently.
type Engine struct {
	logger      *slog.Logger
	pool        *Pool
	recorder    Recorder
	propagators []Propagator
	verbosity   Verbosity
	loggerHook  logging.LoggerHook
	tracer      trace.Tracer

	outcomes metrics.CounterVec
	runs     metrics.CounterVec
	rejected metrics.Counter
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger.With("component", "engine")
	}
}

// WithPool sets the worker pool. The default is DefaultPool().
func WithPool(p *Pool) Option {
	return func(e *Engine) {
		e.pool = p
	}
}

// WithRecorder sets where node timings are recorded. The default is
// monitor.Default(). Pass nil to disable recording.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithPropagators adds propagators that run after the built-in logger and
// span propagators.
func WithPropagators(p ...Propagator) Option {
	return func(e *Engine) {
		e.propagators = append(e.propagators, p...)
	}
}

// WithVerbosity sets the per-node logging verbosity.
func WithVerbosity(v Verbosity) Option {
	return func(e *Engine) {
		e.verbosity = v
	}
}

// WithLoggerHook sets the hook used to build per-node loggers.
func WithLoggerHook(h logging.LoggerHook) Option {
	return func(e *Engine) {
		e.loggerHook = h
	}
}

// WithTracerProvider sets the OpenTelemetry provider. The default is the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		e.tracer = tp.Tracer(tracerName)
	}
}

// WithMetrics registers the engine's counters with reg.
func WithMetrics(reg metrics.Registry) Option {
	return func(e *Engine) {
		outcomes, err := reg.NewCounterVec(prometheus.CounterOpts{
			Name: "node_outcomes_total",
			Help: "Node attempt outcomes by graph, node and outcome",
		}, []string{"graph", "node", "outcome"})
		if err != nil {
			e.logger.Error("failed to register node outcome metric", "error", err)
		} else {
			e.outcomes = outcomes
		}

		runs, err := reg.NewCounterVec(prometheus.CounterOpts{
			Name: "runs_total",
			Help: "Graph runs by graph and result",
		}, []string{"graph", "result"})
		if err != nil {
			e.logger.Error("failed to register run metric", "error", err)
		} else {
			e.runs = runs
		}

		rejected, err := reg.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_rejected_total",
			Help: "Node attempts rejected by a saturated worker pool",
		})
		if err != nil {
			e.logger.Error("failed to register dispatch metric", "error", err)
		} else {
			e.rejected = rejected
		}
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:      slog.Default().With("component", "engine"),
		pool:        DefaultPool(),
		recorder:    monitor.Default(),
		propagators: []Propagator{LoggerPropagator, SpanPropagator},
		verbosity:   DefaultVerbosity,
		loggerHook:  logging.TaggingLoggerHook,
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Pool returns the engine's worker pool.
func (e *Engine) Pool() *Pool {
	return e.pool
}

// Execute runs g against rc on the engine's pool. It returns nil when every
// node either succeeded, was skipped or was abandoned, or when a node stopped
// the run through rc.Stop. Otherwise it returns a *node.RunError.
func (e *Engine) Execute(ctx context.Context, g *graph.Graph, rc *node.RunContext) error {
	return e.ExecuteWithPool(ctx, g, rc, e.pool)
}

// ExecuteWithPool is Execute on a caller-supplied pool.
func (e *Engine) ExecuteWithPool(ctx context.Context, g *graph.Graph, rc *node.RunContext, pool *Pool) error {
	ctx, span := e.tracer.Start(ctx, "nodegraph.run", trace.WithAttributes(
		attribute.String("graph.name", g.Name()),
		attribute.String("run.id", rc.RunID()),
		attribute.Int("graph.nodes", g.Len()),
	))
	defer span.End()

	r := &run{
		engine: e,
		graph:  g,
		rc:     rc,
		pool:   pool,
		logger: e.logger.With("graph", g.Name(), "run_id", rc.RunID()),
	}

	start := time.Now()
	err := r.execute(ctx)
	elapsed := time.Since(start)

	result := runResultLabel(err, rc)
	if e.runs != nil {
		e.runs.With(prometheus.Labels{"graph": g.Name(), "result": result}).Inc()
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("run failed", "error", err, "elapsed", elapsed)
		return err
	}
	span.SetStatus(codes.Ok, "")
	if e.verbosity >= VerbosityBasic {
		r.logger.Info("run completed", "result", result, "elapsed", elapsed)
	}
	return nil
}

// Run builds def, executes it with a fresh RunContext carrying payload and
// wraps the outcome in a Result.
func (e *Engine) Run(ctx context.Context, def *graph.Definition, payload any) Result {
	g, err := def.Graph()
	if err != nil {
		e.logger.Error("graph definition is invalid", "graph", def.Name(), "error", err)
		return NewResult(err, nil)
	}
	return NewResult(e.Execute(ctx, g, node.NewRunContext(payload)), payload)
}
