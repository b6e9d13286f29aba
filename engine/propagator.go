package engine

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/nomis52/nodegraph/logging"
)

// Propagator carries ambient state across the worker pool boundary.
//
// Tasks run on a fresh context that only carries cancellation. Everything else
// a node needs from the dispatching context must be moved explicitly:
//   - Capture runs on the scheduler goroutine when a node attempt is dispatched
//   - Restore runs inside the worker task before the node runs
//   - Clear runs inside the worker task after the node returns
type Propagator interface {
	Capture(ctx context.Context) any
	Restore(ctx context.Context, captured any) context.Context
	Clear(captured any)
}

// PropagatorFuncs builds a Propagator from functions. Nil functions are
// skipped.
type PropagatorFuncs struct {
	CaptureFunc func(ctx context.Context) any
	RestoreFunc func(ctx context.Context, captured any) context.Context
	ClearFunc   func(captured any)
}

// Capture implements Propagator.
func (p PropagatorFuncs) Capture(ctx context.Context) any {
	if p.CaptureFunc == nil {
		return nil
	}
	return p.CaptureFunc(ctx)
}

// Restore implements Propagator.
func (p PropagatorFuncs) Restore(ctx context.Context, captured any) context.Context {
	if p.RestoreFunc == nil {
		return ctx
	}
	return p.RestoreFunc(ctx, captured)
}

// Clear implements Propagator.
func (p PropagatorFuncs) Clear(captured any) {
	if p.ClearFunc != nil {
		p.ClearFunc(captured)
	}
}

// LoggerPropagator moves the node logger set with logging.WithLogger.
var LoggerPropagator Propagator = PropagatorFuncs{
	CaptureFunc: func(ctx context.Context) any {
		return logging.FromContext(ctx)
	},
	RestoreFunc: func(ctx context.Context, captured any) context.Context {
		l, _ := captured.(*slog.Logger)
		if l == nil {
			return ctx
		}
		return logging.WithLogger(ctx, l)
	},
}

// SpanPropagator moves the active trace span, so spans started by node code
// are children of the engine's attempt span.
var SpanPropagator Propagator = PropagatorFuncs{
	CaptureFunc: func(ctx context.Context) any {
		return trace.SpanFromContext(ctx)
	},
	RestoreFunc: func(ctx context.Context, captured any) context.Context {
		span, ok := captured.(trace.Span)
		if !ok {
			return ctx
		}
		return trace.ContextWithSpan(ctx, span)
	},
}

// ValuePropagator moves a single context value identified by key.
func ValuePropagator(key any) Propagator {
	return PropagatorFuncs{
		CaptureFunc: func(ctx context.Context) any {
			return ctx.Value(key)
		},
		RestoreFunc: func(ctx context.Context, captured any) context.Context {
			if captured == nil {
				return ctx
			}
			return context.WithValue(ctx, key, captured)
		},
	}
}

// captured holds the values captured by each propagator for one task.
type captured struct {
	propagators []Propagator
	values      []any
}

func capture(ctx context.Context, propagators []Propagator) captured {
	c := captured{propagators: propagators, values: make([]any, len(propagators))}
	for i, p := range propagators {
		c.values[i] = p.Capture(ctx)
	}
	return c
}

func (c captured) restore(ctx context.Context) context.Context {
	for i, p := range c.propagators {
		ctx = p.Restore(ctx, c.values[i])
	}
	return ctx
}

// clear runs in reverse order of restore.
func (c captured) clear() {
	for i := len(c.propagators) - 1; i >= 0; i-- {
		c.propagators[i].Clear(c.values[i])
	}
}
