package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/nodegraph/node"
)

type order struct {
	ID    string
	Total int
	Tags  map[string]string
}

func TestEvalSkip(t *testing.T) {
	reg := newTestRegistry(t, map[node.ID][]node.ID{
		"free":    nil,
		"audit":   nil,
		"dry":     nil,
		"plain":   nil,
		"watcher": {"audit"},
	})

	g, err := NewBuilder("skip", reg).
		Add("free", Config{SkipIf: "payload.Total == 0"}).
		Add("audit", Config{SkipIf: `payload.Tags["audit"] != "on"`}).
		Add("dry", Config{SkipIf: `trace contains "dry-run"`}).
		Add("plain", Config{}).
		Add("watcher", Config{SkipIf: `status["audit"] == "skipped"`}).
		Build()
	require.NoError(t, err)

	assert.True(t, g.HasSkipExpression("free"))
	assert.False(t, g.HasSkipExpression("plain"))

	rc := node.NewRunContextWithID(&order{ID: "o-1", Total: 0, Tags: map[string]string{"audit": "on"}}, "req")

	skip, err := g.EvalSkip("free", rc)
	require.NoError(t, err)
	assert.True(t, skip, "Zero total should skip")

	skip, err = g.EvalSkip("audit", rc)
	require.NoError(t, err)
	assert.False(t, skip)

	skip, err = g.EvalSkip("dry", rc)
	require.NoError(t, err)
	assert.False(t, skip)

	rc.AppendTrace("dry-run")
	skip, err = g.EvalSkip("dry", rc)
	require.NoError(t, err)
	assert.True(t, skip)

	skip, err = g.EvalSkip("plain", rc)
	require.NoError(t, err)
	assert.False(t, skip, "Nodes without an expression are not skipped")

	skip, err = g.EvalSkip("watcher", rc)
	require.NoError(t, err)
	assert.False(t, skip)
	rc.SetStatus("audit", node.Skipped)
	skip, err = g.EvalSkip("watcher", rc)
	require.NoError(t, err)
	assert.True(t, skip, "Expressions can read the status of earlier nodes")
}

func TestEvalSkip_RuntimeError(t *testing.T) {
	reg := newTestRegistry(t, map[node.ID][]node.ID{"a": nil})
	g, err := NewBuilder("skip", reg).
		Add("a", Config{SkipIf: "payload.Missing.Field == 1"}).
		Build()
	require.NoError(t, err)

	_, err = g.EvalSkip("a", node.NewRunContext(&order{}))
	assert.Error(t, err)
}

func TestBuild_InvalidSkipExpression(t *testing.T) {
	reg := newTestRegistry(t, map[node.ID][]node.ID{"a": nil, "b": nil})

	tests := []struct {
		name string
		expr string
	}{
		{"syntax error", "payload.Total =="},
		{"not a bool", `runID + "x"`},
		{"unknown variable", "nonsense > 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuilder("skip", reg).Add("a", Config{SkipIf: tt.expr}).Build()
			assert.ErrorContains(t, err, "invalid skip expression")
		})
	}
}
