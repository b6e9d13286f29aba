package node

import (
	"context"
)

// Node represents a single unit of work in an execution graph.
//
// IMPLEMENTATION CONTRACT:
//   - Dependencies() declares the IDs that must reach a terminal state first
//   - ShouldSkip() is evaluated inside the worker task before every attempt
//   - Run() performs the effect on the shared RunContext - return nil for success,
//     a *BusinessError (see Fail) for a domain rejection, anything else for an
//     unknown failure
//   - Run() should watch ctx.Done(); the scheduler cancels ctx on timeout but
//     cannot force the code to stop
//   - Hooks are called by the scheduler goroutine, never concurrently for the
//     same node within one run
//
// Embed Base to get no-op implementations of everything except Run.
type Node interface {
	// Dependencies returns the IDs this node depends on. Only used by graphs
	// declared in the explicit dependency style.
	Dependencies() []ID

	// ShouldSkip returns true if the node should not run for this context.
	// A skipped node is terminal and unblocks its dependents.
	ShouldSkip(rc *RunContext) bool

	// Run performs the node's work.
	Run(ctx context.Context, rc *RunContext) error

	// OnSuccess is called after Run returns nil.
	OnSuccess(rc *RunContext)

	// OnTimeout is called when the node's terminal failure is a timeout.
	OnTimeout(rc *RunContext)

	// OnBusinessFailure is called when the node's terminal failure is a
	// business failure.
	OnBusinessFailure(rc *RunContext, err *BusinessError)

	// OnUnknownFailure is called when the node's terminal failure is any
	// other error.
	OnUnknownFailure(rc *RunContext, err error)

	// AfterAlways is called once the node reaches a terminal state, whatever
	// that state is. It is not called between retry attempts.
	AfterAlways(rc *RunContext)
}

// Base provides no-op implementations of the optional parts of Node.
type Base struct{}

// Dependencies returns no dependencies.
func (Base) Dependencies() []ID { return nil }

// ShouldSkip never skips.
func (Base) ShouldSkip(*RunContext) bool { return false }

// OnSuccess does nothing.
func (Base) OnSuccess(*RunContext) {}

// OnTimeout does nothing.
func (Base) OnTimeout(*RunContext) {}

// OnBusinessFailure does nothing.
func (Base) OnBusinessFailure(*RunContext, *BusinessError) {}

// OnUnknownFailure does nothing.
func (Base) OnUnknownFailure(*RunContext, error) {}

// AfterAlways does nothing.
func (Base) AfterAlways(*RunContext) {}

// Instance is a node bound to a fully merged Policy. Instances are created by
// the registry, one per (ID, Policy) pair, and shared by every graph and run
// that asks for that pair.
type Instance struct {
	ID     ID
	Policy Policy
	Node   Node
}

// Func adapts a plain function to a Node with no dependencies and no hooks.
type Func func(ctx context.Context, rc *RunContext) error

// Run calls f.
func (f Func) Run(ctx context.Context, rc *RunContext) error {
	return f(ctx, rc)
}

// FuncNode is a Node built from a function and an optional dependency list.
// It is mostly useful for tests and small graphs.
type FuncNode struct {
	Base
	Deps []ID
	Fn   Func
}

// NewFuncNode creates a FuncNode.
func NewFuncNode(fn Func, deps ...ID) *FuncNode {
	return &FuncNode{Deps: deps, Fn: fn}
}

// Dependencies returns the configured dependency list.
func (n *FuncNode) Dependencies() []ID {
	return n.Deps
}

// Run calls the wrapped function.
func (n *FuncNode) Run(ctx context.Context, rc *RunContext) error {
	if n.Fn == nil {
		return nil
	}
	return n.Fn(ctx, rc)
}

var _ Node = (*FuncNode)(nil)
