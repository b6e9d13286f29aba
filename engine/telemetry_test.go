package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/nomis52/nodegraph/metrics"
	"github.com/nomis52/nodegraph/node"
)

func TestExecute_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	h := newHarness(t)
	var inner trace.SpanContext
	h.node("a", node.Policy{}, func(ctx context.Context, rc *node.RunContext) error {
		_, span := tp.Tracer("test").Start(ctx, "charge card")
		defer span.End()
		inner = span.SpanContext()
		return nil
	})
	h.node("b", node.Policy{}, failWith("declined"), "a")
	g := h.build("a", "b")

	err := newTestEngine(WithTracerProvider(tp)).Execute(context.Background(), g, node.NewRunContext(nil))
	require.Error(t, err)

	spans := map[string][]sdktrace.ReadOnlySpan{}
	for _, s := range recorder.Ended() {
		spans[s.Name()] = append(spans[s.Name()], s)
	}
	require.Len(t, spans["nodegraph.run"], 1)
	require.Len(t, spans["nodegraph.node"], 2)
	require.Len(t, spans["charge card"], 1)

	run := spans["nodegraph.run"][0]
	assert.Equal(t, codes.Error, run.Status().Code)

	byNode := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range spans["nodegraph.node"] {
		assert.Equal(t, run.SpanContext().SpanID(), s.Parent().SpanID(), "Attempt spans are children of the run span")
		for _, kv := range s.Attributes() {
			if kv.Key == "node.id" {
				byNode[kv.Value.AsString()] = s
			}
		}
	}
	assert.Equal(t, codes.Ok, byNode["a"].Status().Code)
	assert.Equal(t, codes.Error, byNode["b"].Status().Code)
	assert.NotEmpty(t, byNode["b"].Events(), "The error is recorded on the span")

	assert.Equal(t, byNode["a"].SpanContext().SpanID(), spans["charge card"][0].Parent().SpanID(),
		"Spans started by node code are children of the attempt span")
	assert.Equal(t, inner, spans["charge card"][0].SpanContext())
}

func TestExecute_Metrics(t *testing.T) {
	reg, err := metrics.NewScrapeRegistry(metrics.WithNamespace("nodegraph"), metrics.WithoutRuntimeCollectors())
	require.NoError(t, err)

	h := newHarness(t)
	h.node("a", node.Policy{}, nil)
	h.node("b", node.Policy{Disposition: node.Retry, Retries: 2}, failWith("nope"), "a")
	g := h.build("a", "b")

	e := newTestEngine(WithMetrics(reg))
	require.Error(t, e.Execute(context.Background(), g, node.NewRunContext(nil)))

	expected := `
# HELP nodegraph_node_outcomes_total Node attempt outcomes by graph, node and outcome
# TYPE nodegraph_node_outcomes_total counter
nodegraph_node_outcomes_total{graph="test",node="a",outcome="succeeded"} 1
nodegraph_node_outcomes_total{graph="test",node="b",outcome="failed"} 1
nodegraph_node_outcomes_total{graph="test",node="b",outcome="retried"} 1
# HELP nodegraph_runs_total Graph runs by graph and result
# TYPE nodegraph_runs_total counter
nodegraph_runs_total{graph="test",result="unknown"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg.PrometheusRegistry(), strings.NewReader(expected),
		"nodegraph_node_outcomes_total", "nodegraph_runs_total"))

	t.Run("engines share a registry", func(t *testing.T) {
		other := newTestEngine(WithMetrics(reg))
		require.Error(t, other.Execute(context.Background(), g, node.NewRunContext(nil)))

		count, err := testutil.GatherAndCount(reg.PrometheusRegistry(), "nodegraph_runs_total")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestExecute_RejectedMetric(t *testing.T) {
	reg, err := metrics.NewScrapeRegistry(metrics.WithoutRuntimeCollectors())
	require.NoError(t, err)

	h := newHarness(t)
	h.node("left", node.Policy{}, sleep(100*time.Millisecond))
	h.node("right", node.Policy{}, sleep(100*time.Millisecond))
	g := h.build("left", "right")

	e := newTestEngine(WithPool(NewPool(1, 0)), WithMetrics(reg))
	require.ErrorIs(t, e.Execute(context.Background(), g, node.NewRunContext(nil)), ErrPoolSaturated)

	expected := `
# HELP dispatch_rejected_total Node attempts rejected by a saturated worker pool
# TYPE dispatch_rejected_total counter
dispatch_rejected_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg.PrometheusRegistry(), strings.NewReader(expected),
		"dispatch_rejected_total"))
}
