package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nomis52/nodegraph/graph"
	"github.com/nomis52/nodegraph/logging"
	"github.com/nomis52/nodegraph/node"
)

// run is the state of one graph execution.
type run struct {
	engine *Engine
	graph  *graph.Graph
	rc     *node.RunContext
	pool   *Pool
	logger *slog.Logger

	// halted is set once the run has a terminal error. Supervisors that
	// finish afterwards discard their outcome.
	halted atomic.Bool
}

// attemptResult is what the supervisor learns from one dispatch.
type attemptResult struct {
	skipped  bool
	canceled bool
	err      error
	// finished is closed when the task returns. It is only set for attempts
	// that timed out while the task was still running.
	finished <-chan struct{}
}

// taskResult is sent by the worker task.
type taskResult struct {
	skipped bool
	err     error
}

type outcome struct {
	id  node.ID
	err error
}

func (r *run) execute(ctx context.Context) error {
	completed := make(map[node.ID]bool, r.graph.Len())
	wave := r.graph.FirstWave()

	for index := 0; len(wave) > 0; index++ {
		if err := ctx.Err(); err != nil {
			r.halted.Store(true)
			return r.canceled(err)
		}
		if err := r.runWave(ctx, index, wave); err != nil {
			return err
		}
		for _, id := range wave {
			completed[id] = true
		}
		if !r.rc.Continue() {
			r.logger.Info("run stopped", "after_wave", index)
			return nil
		}
		wave = r.graph.NextWave(wave, completed)
	}
	return nil
}

// runWave dispatches every node of a wave and waits for all of them. The
// first terminal failure is returned immediately; nodes still running are
// left to finish and their outcomes are discarded.
func (r *run) runWave(ctx context.Context, index int, wave []node.ID) error {
	r.logger.Debug("dispatching wave", "wave", index, "nodes", len(wave))

	results := make(chan outcome, len(wave))
	for _, id := range wave {
		go func() {
			results <- outcome{id: id, err: r.supervise(ctx, id)}
		}()
	}

	for range wave {
		select {
		case o := <-results:
			if o.err != nil {
				r.halted.Store(true)
				return o.err
			}
		case <-ctx.Done():
			r.halted.Store(true)
			return r.canceled(ctx.Err())
		}
	}
	return nil
}

// supervise drives one node through its attempts and failure policy. It
// returns nil or a *node.RunError.
func (r *run) supervise(ctx context.Context, id node.ID) error {
	inst, _ := r.graph.Node(id)
	policy := inst.Policy
	failures := failurePolicyFor(policy)
	logger := r.engine.loggerHook.LoggerForNode(r.logger, id)
	detail := r.engine.verbosity.forNode(r.graph.IsBoundary(id))

	r.rc.SetStatus(id, node.Pending)
	if detail.params {
		logger.Info("node starting", "payload", r.rc.Payload, "trace", r.rc.Trace())
	}

	for {
		attempt := r.rc.NextAttempt(id)
		res := r.attempt(ctx, inst, attempt, logger)

		if res.canceled {
			return r.canceled(ctx.Err())
		}
		if r.halted.Load() {
			logger.Debug("discarding outcome of halted run", "attempt", attempt)
			return nil
		}

		switch {
		case res.skipped:
			r.rc.SetStatus(id, node.Skipped)
			r.hook(logger, "AfterAlways", func() { inst.Node.AfterAlways(r.rc) })
			r.finished(logger, detail, id, node.Skipped)
			return nil
		case res.err == nil:
			r.hook(logger, "OnSuccess", func() { inst.Node.OnSuccess(r.rc) })
			r.rc.SetStatus(id, node.Succeeded)
			r.hook(logger, "AfterAlways", func() { inst.Node.AfterAlways(r.rc) })
			r.finished(logger, detail, id, node.Succeeded)
			return nil
		}

		kind := node.Classify(res.err)
		v := failures.onFailure(attempt)
		if v == verdictRetry {
			logger.Warn("node attempt failed, retrying",
				"attempt", attempt, "max_attempts", policy.Retries, "kind", kind.String(), "error", res.err)
			r.count(id, "retried")
			if !r.drain(ctx, res.finished, policy.Timeout, logger) {
				return r.canceled(ctx.Err())
			}
			continue
		}

		r.failureHook(logger, inst, kind, res.err)
		r.hook(logger, "AfterAlways", func() { inst.Node.AfterAlways(r.rc) })

		if v == verdictAbandon {
			r.rc.SetStatus(id, node.Abandoned)
			logger.Warn("node abandoned", "kind", kind.String(), "error", res.err)
			r.count(id, node.Abandoned.String())
			return nil
		}

		r.rc.SetStatus(id, node.Failed)
		r.count(id, node.Failed.String())
		return &node.RunError{
			Graph:    r.graph.Name(),
			Node:     id,
			Kind:     kind,
			Attempts: attempt,
			Err:      res.err,
		}
	}
}

// attempt dispatches one attempt of a node to the pool and waits for it, the
// node timeout or the caller's cancellation, whichever comes first.
func (r *run) attempt(ctx context.Context, inst *node.Instance, attempt int, logger *slog.Logger) attemptResult {
	ctx, span := r.engine.tracer.Start(ctx, "nodegraph.node", trace.WithAttributes(
		attribute.String("node.id", inst.ID.String()),
		attribute.Int("node.attempt", attempt),
		attribute.String("node.disposition", inst.Policy.Disposition.String()),
		attribute.String("node.timeout", inst.Policy.Timeout.String()),
	))
	defer span.End()

	// The task context only carries cancellation; ambient values travel
	// through the propagators.
	taskCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	state := capture(logging.WithLogger(ctx, logger), r.engine.propagators)

	done := make(chan taskResult, 1)
	finished := make(chan struct{})
	start := time.Now()

	err := r.pool.Submit(func() {
		defer close(finished)
		done <- r.runTask(taskCtx, inst, state)
	})
	if err != nil {
		if errors.Is(err, ErrPoolSaturated) && r.engine.rejected != nil {
			r.engine.rejected.Inc()
		}
		err = fmt.Errorf("dispatch node %s: %w", inst.ID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return attemptResult{err: err}
	}

	timer := time.NewTimer(inst.Policy.Timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		r.record(inst.ID, time.Since(start))
		switch {
		case res.err != nil:
			span.RecordError(res.err)
			span.SetStatus(codes.Error, res.err.Error())
		case res.skipped:
			span.SetAttributes(attribute.Bool("node.skipped", true))
			span.SetStatus(codes.Ok, "")
		default:
			span.SetStatus(codes.Ok, "")
		}
		return attemptResult{skipped: res.skipped, err: res.err}

	case <-timer.C:
		cancel()
		r.record(inst.ID, time.Since(start))
		err := &node.TimeoutError{Node: inst.ID, Timeout: inst.Policy.Timeout}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Debug("node attempt timed out", "attempt", attempt, "timeout", inst.Policy.Timeout)
		return attemptResult{err: err, finished: finished}

	case <-ctx.Done():
		cancel()
		span.SetStatus(codes.Error, "canceled")
		return attemptResult{canceled: true}
	}
}

// runTask executes on a pool worker.
func (r *run) runTask(ctx context.Context, inst *node.Instance, state captured) (res taskResult) {
	// Timed out or cancelled while queued.
	if ctx.Err() != nil || r.halted.Load() {
		return taskResult{err: ctx.Err()}
	}

	ctx = state.restore(ctx)
	defer state.clear()

	defer func() {
		if p := recover(); p != nil {
			res = taskResult{err: fmt.Errorf("node %s panicked: %v", inst.ID, p)}
		}
	}()

	r.rc.SetStatus(inst.ID, node.Running)

	skip, err := r.shouldSkip(inst)
	if err != nil {
		return taskResult{err: err}
	}
	if skip {
		return taskResult{skipped: true}
	}
	return taskResult{err: inst.Node.Run(ctx, r.rc)}
}

// shouldSkip reports whether the declared skip expression or the node's own
// ShouldSkip asks for the node to be skipped.
func (r *run) shouldSkip(inst *node.Instance) (bool, error) {
	if r.graph.HasSkipExpression(inst.ID) {
		skip, err := r.graph.EvalSkip(inst.ID, r.rc)
		if err != nil || skip {
			return skip, err
		}
	}
	return inst.Node.ShouldSkip(r.rc), nil
}

// drain waits for a timed-out attempt to return before it is retried, so two
// attempts of one node never run at once. The wait is bounded only by the
// caller's ctx; it reports false if the run is cancelled first.
func (r *run) drain(ctx context.Context, finished <-chan struct{}, timeout time.Duration, logger *slog.Logger) bool {
	if finished == nil {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-finished:
		return true
	case <-timer.C:
		logger.Warn("previous attempt still running, waiting before retry", "waited", timeout)
	case <-ctx.Done():
		return false
	}

	select {
	case <-finished:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *run) failureHook(logger *slog.Logger, inst *node.Instance, kind node.FailureKind, err error) {
	switch kind {
	case node.KindTimeout:
		r.hook(logger, "OnTimeout", func() { inst.Node.OnTimeout(r.rc) })
	case node.KindBusiness:
		be, _ := node.AsBusiness(err)
		r.hook(logger, "OnBusinessFailure", func() { inst.Node.OnBusinessFailure(r.rc, be) })
	default:
		r.hook(logger, "OnUnknownFailure", func() { inst.Node.OnUnknownFailure(r.rc, err) })
	}
}

// hook runs a lifecycle hook. A panicking hook is logged and does not change
// the node's outcome.
func (r *run) hook(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("node hook panicked", "hook", name, "panic", p)
		}
	}()
	fn()
}

func (r *run) finished(logger *slog.Logger, detail nodeDetail, id node.ID, status node.Status) {
	r.count(id, status.String())
	if !detail.enabled {
		return
	}
	attrs := []any{"status", status.String()}
	if detail.timing {
		attrs = append(attrs, "elapsed", r.rc.Timing(id).Duration())
	}
	if detail.params {
		attrs = append(attrs, "payload", r.rc.Payload)
	}
	logger.Info("node finished", attrs...)
}

func (r *run) count(id node.ID, outcome string) {
	if r.engine.outcomes == nil {
		return
	}
	r.engine.outcomes.With(prometheus.Labels{
		"graph":   r.graph.Name(),
		"node":    id.String(),
		"outcome": outcome,
	}).Inc()
}

func (r *run) record(id node.ID, elapsed time.Duration) {
	if r.engine.recorder != nil {
		r.engine.recorder.Record(r.graph.Name(), id, elapsed)
	}
}

func (r *run) canceled(err error) error {
	return &node.RunError{
		Graph: r.graph.Name(),
		Kind:  node.KindCanceled,
		Err:   err,
	}
}

// runResultLabel is the result label of the runs_total metric.
func runResultLabel(err error, rc *node.RunContext) string {
	var re *node.RunError
	switch {
	case errors.As(err, &re):
		return re.Kind.String()
	case err != nil:
		return node.Classify(err).String()
	case !rc.Continue():
		return "stopped"
	default:
		return "ok"
	}
}
