package logging

import (
	"log/slog"

	"github.com/nomis52/nodegraph/node"
)

// LoggerHook creates node-specific loggers by wrapping a base logger.
// The engine calls it once per node and run, which keeps the engine generic
// while allowing log capturing through custom implementations.
type LoggerHook interface {
	// LoggerForNode wraps the base logger to create a node-specific logger.
	LoggerForNode(base *slog.Logger, id node.ID) *slog.Logger
}

// LoggerHookFunc adapts a function to a LoggerHook.
type LoggerHookFunc func(base *slog.Logger, id node.ID) *slog.Logger

// LoggerForNode calls f.
func (f LoggerHookFunc) LoggerForNode(base *slog.Logger, id node.ID) *slog.Logger {
	return f(base, id)
}

// TaggingLoggerHook is the default hook. It adds a node_id attribute.
var TaggingLoggerHook LoggerHook = LoggerHookFunc(func(base *slog.Logger, id node.ID) *slog.Logger {
	return base.With("node_id", id.String())
})

// CapturingLoggerHook creates loggers that capture logs via CapturingHandler.
type CapturingLoggerHook struct {
	collector *LogCollector
}

// NewCapturingLoggerHook creates a hook that captures all node logs into
// collector.
func NewCapturingLoggerHook(collector *LogCollector) *CapturingLoggerHook {
	return &CapturingLoggerHook{
		collector: collector,
	}
}

// Collector returns the collector logs are captured into.
func (h *CapturingLoggerHook) Collector() *LogCollector {
	return h.collector
}

// LoggerForNode wraps the base logger with a CapturingHandler tagged with id.
func (h *CapturingLoggerHook) LoggerForNode(base *slog.Logger, id node.ID) *slog.Logger {
	return slog.New(NewCapturingHandler(base.Handler(), h.collector, id)).With("node_id", id.String())
}
