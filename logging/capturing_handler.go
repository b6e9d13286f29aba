package logging

import (
	"context"
	"log/slog"

	"github.com/nomis52/nodegraph/node"
)

// CapturingHandler wraps an slog.Handler to capture log records while passing
// them through.
//
// Every level is captured, including levels the underlying handler drops.
// Attribute keys inside groups are flattened to "group.key".
type CapturingHandler struct {
	underlying slog.Handler
	collector  *LogCollector
	nodeID     node.ID
	attrs      map[string]any
	prefix     string
}

// NewCapturingHandler creates a CapturingHandler that stores records for id
// in collector.
func NewCapturingHandler(underlying slog.Handler, collector *LogCollector, id node.ID) *CapturingHandler {
	return &CapturingHandler{
		underlying: underlying,
		collector:  collector,
		nodeID:     id,
		attrs:      map[string]any{},
	}
}

// Enabled always returns true so that every level is captured.
func (h *CapturingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

// Handle captures the record and forwards it to the underlying handler if
// that handler is enabled for the record's level.
func (h *CapturingHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := LogEntry{
		Time:       r.Time,
		Level:      r.Level.String(),
		Message:    r.Message,
		Attributes: make(map[string]any, len(h.attrs)+r.NumAttrs()),
	}
	for k, v := range h.attrs {
		entry.Attributes[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(entry.Attributes, h.prefix, a)
		return true
	})
	h.collector.AddLog(h.nodeID, entry)

	if !h.underlying.Enabled(ctx, r.Level) {
		return nil
	}
	return h.underlying.Handle(ctx, r)
}

// WithAttrs returns a new CapturingHandler with additional attributes. It must
// return a CapturingHandler so that capturing survives .With() chains.
func (h *CapturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make(map[string]any, len(h.attrs)+len(attrs))
	for k, v := range h.attrs {
		merged[k] = v
	}
	for _, a := range attrs {
		addAttr(merged, h.prefix, a)
	}

	return &CapturingHandler{
		underlying: h.underlying.WithAttrs(attrs),
		collector:  h.collector,
		nodeID:     h.nodeID,
		attrs:      merged,
		prefix:     h.prefix,
	}
}

// WithGroup returns a new CapturingHandler that nests later attributes under
// name.
func (h *CapturingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &CapturingHandler{
		underlying: h.underlying.WithGroup(name),
		collector:  h.collector,
		nodeID:     h.nodeID,
		attrs:      h.attrs,
		prefix:     h.prefix + name + ".",
	}
}

// addAttr stores a into dst, flattening groups into dotted keys.
func addAttr(dst map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range v.Group() {
			addAttr(dst, p, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	dst[prefix+a.Key] = resolveValue(v)
}

// resolveValue converts a slog.Value to a JSON-serializable value. Errors are
// converted to their message.
func resolveValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time()
	default:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	}
}
