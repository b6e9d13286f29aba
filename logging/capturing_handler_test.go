package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/nodegraph/node"
)

func TestCapturingHandler_CapturesAllLevels(t *testing.T) {
	var out bytes.Buffer
	collector := NewLogCollector()
	underlying := slog.NewJSONHandler(&out, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(NewCapturingHandler(underlying, collector, "charge"))

	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	logger.Debug("debug only captured")
	logger.Info("info passes through")

	logs := collector.GetLogs("charge")
	require.Len(t, logs, 2)
	assert.Equal(t, "DEBUG", logs[0].Level)
	assert.Equal(t, "INFO", logs[1].Level)

	assert.NotContains(t, out.String(), "debug only captured", "Underlying level must still filter output")
	assert.Contains(t, out.String(), "info passes through")
}

func TestCapturingHandler_Attributes(t *testing.T) {
	collector := NewLogCollector()
	logger := slog.New(NewCapturingHandler(slog.NewTextHandler(&bytes.Buffer{}, nil), collector, "n"))

	logger.With("graph", "orders").
		WithGroup("attempt").
		With("number", 2).
		Info("failed",
			"error", errors.New("boom"),
			"elapsed", 150*time.Millisecond,
			"ok", false,
			slog.Group("policy", "disposition", "retry"),
		)

	logs := collector.GetLogs("n")
	require.Len(t, logs, 1)
	attrs := logs[0].Attributes

	assert.Equal(t, "orders", attrs["graph"])
	assert.Equal(t, int64(2), attrs["attempt.number"])
	assert.Equal(t, "boom", attrs["attempt.error"], "Errors are stored as strings")
	assert.Equal(t, "150ms", attrs["attempt.elapsed"])
	assert.Equal(t, false, attrs["attempt.ok"])
	assert.Equal(t, "retry", attrs["attempt.policy.disposition"])
}

func TestCapturingHandler_WithDoesNotLeak(t *testing.T) {
	collector := NewLogCollector()
	base := slog.New(NewCapturingHandler(slog.NewTextHandler(&bytes.Buffer{}, nil), collector, "n"))

	withA := base.With("a", 1)
	withB := base.With("b", 2)
	withA.Info("first")
	withB.Info("second")

	logs := collector.GetLogs("n")
	require.Len(t, logs, 2)
	assert.Contains(t, logs[0].Attributes, "a")
	assert.NotContains(t, logs[0].Attributes, "b")
	assert.Contains(t, logs[1].Attributes, "b")
	assert.NotContains(t, logs[1].Attributes, "a")
}

func TestCapturingLoggerHook(t *testing.T) {
	collector := NewLogCollector()
	hook := NewCapturingLoggerHook(collector)
	assert.Same(t, collector, hook.Collector())

	base := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	reserve := hook.LoggerForNode(base, "reserve")
	charge := hook.LoggerForNode(base, "charge")
	assert.NotSame(t, reserve, charge)

	var wg sync.WaitGroup
	for _, l := range []*slog.Logger{reserve, charge} {
		wg.Add(1)
		go func(l *slog.Logger) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				l.Info("concurrent", "i", i)
			}
		}(l)
	}
	wg.Wait()

	assert.Len(t, collector.GetLogs("reserve"), 50)
	assert.Len(t, collector.GetLogs("charge"), 50)
	assert.Equal(t, "charge", collector.GetLogs("charge")[0].Attributes["node_id"])
	assert.Equal(t, []node.ID{"charge", "reserve"}, collector.Nodes())
}

func TestTaggingLoggerHook(t *testing.T) {
	var out bytes.Buffer
	base := slog.New(slog.NewTextHandler(&out, nil))

	TaggingLoggerHook.LoggerForNode(base, "orders.Ship").Info("shipped")
	assert.Contains(t, out.String(), "node_id=orders.Ship")
}

func TestLogCollector(t *testing.T) {
	c := NewLogCollector()
	assert.Nil(t, c.GetLogs("none"))
	assert.Empty(t, c.Nodes())

	c.AddLog("a", LogEntry{Message: "one"})
	c.AddLog("a", LogEntry{Message: "two"})
	c.AddLog("b", LogEntry{Message: "three"})

	logs := c.GetLogs("a")
	require.Len(t, logs, 2)
	assert.Equal(t, "one", logs[0].Message)

	logs[0].Message = "modified"
	assert.Equal(t, "one", c.GetLogs("a")[0].Message, "GetLogs returns a copy")

	all := c.GetAllLogs()
	assert.Len(t, all, 2)
	all["b"][0].Message = "modified"
	assert.Equal(t, "three", c.GetAllLogs()["b"][0].Message, "GetAllLogs returns a deep copy")

	c.Clear()
	assert.Empty(t, c.GetAllLogs())
}
