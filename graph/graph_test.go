package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/nodegraph/node"
	"github.com/nomis52/nodegraph/registry"
)

// TestBuild_Diamond tests the explicit dependency style on A -> {B, C} -> D
func TestBuild_Diamond(t *testing.T) {
	reg := newTestRegistry(t, map[node.ID][]node.ID{
		"a": nil,
		"b": {"a"},
		"c": {"a"},
		"d": {"b", "c"},
	})

	g, err := NewBuilder("diamond", reg).
		Add("a", Config{}).
		Add("b", Config{}).
		Add("c", Config{}).
		Add("d", Config{}).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "diamond", g.Name())
	assert.Equal(t, 4, g.Len())
	assert.False(t, g.Ordered())
	assert.Equal(t, node.IDs("a", "b", "c", "d"), g.IDs())
	assert.Equal(t, node.IDs("a"), g.Roots())
	assert.Equal(t, node.IDs("b", "c"), g.Parents("d"))
	assert.Equal(t, node.IDs("b", "c"), g.Children("a"))
	assert.Empty(t, g.Children("d"))

	assert.Equal(t, [][]node.ID{node.IDs("a"), node.IDs("b", "c"), node.IDs("d")}, g.Waves())
	assert.Equal(t, 1, g.WaveOf("c"))
	assert.Equal(t, -1, g.WaveOf("missing"))

	t.Run("UnblockedBy", func(t *testing.T) {
		assert.Equal(t, node.IDs("b", "c"), g.UnblockedBy("a", map[node.ID]bool{}))
		assert.Empty(t, g.UnblockedBy("b", map[node.ID]bool{"a": true}), "d still waits for c")
		assert.Equal(t, node.IDs("d"), g.UnblockedBy("b", map[node.ID]bool{"a": true, "c": true}))
		assert.Empty(t, g.UnblockedBy("b", map[node.ID]bool{"a": true, "c": true, "d": true}), "completed nodes are not unblocked again")
	})

	t.Run("FirstWave and NextWave", func(t *testing.T) {
		completed := map[node.ID]bool{}
		wave := g.FirstWave()
		assert.Equal(t, node.IDs("a"), wave)

		var waves [][]node.ID
		for len(wave) > 0 {
			waves = append(waves, wave)
			for _, id := range wave {
				completed[id] = true
			}
			wave = g.NextWave(wave, completed)
		}
		assert.Equal(t, g.Waves(), waves)
	})

	t.Run("IsBoundary", func(t *testing.T) {
		assert.True(t, g.IsBoundary("a"))
		assert.False(t, g.IsBoundary("b"))
		assert.True(t, g.IsBoundary("d"))
		assert.False(t, g.IsBoundary("missing"))
	})

	t.Run("Node", func(t *testing.T) {
		inst, ok := g.Node("b")
		require.True(t, ok)
		assert.Equal(t, node.ID("b"), inst.ID)
		assert.Equal(t, node.DefaultPolicy, inst.Policy)

		_, ok = g.Node("missing")
		assert.False(t, ok)
	})
}

func TestBuild_DependsOnAndPolicy(t *testing.T) {
	reg := newTestRegistry(t, map[node.ID][]node.ID{"a": nil, "b": nil})

	retry := node.Policy{Disposition: node.Retry, Retries: 3, Timeout: time.Second}
	g, err := NewBuilder("extra", reg).
		Add("a", Config{}).
		Add("b", Config{DependsOn: node.IDs("a", "a"), Policy: retry}).
		Build()
	require.NoError(t, err)

	assert.Equal(t, node.IDs("a"), g.Parents("b"), "Duplicate dependencies are collapsed")
	inst, _ := g.Node("b")
	assert.Equal(t, retry, inst.Policy)
}

func TestBuild_OrderedWaves(t *testing.T) {
	reg := newTestRegistry(t, map[node.ID][]node.ID{
		"a": nil,
		"b": {"undeclared"}, // ignored in the wave style
		"c": nil,
		"d": nil,
	})

	g, err := NewBuilder("waves", reg).
		Add("a", Config{Placement: PlaceNewWave}).
		AddGroup(node.IDs("b", "c"), Config{Placement: PlaceNewWave}).
		Add("d", Config{Placement: PlaceNewWave, DependsOn: node.IDs("b")}).
		Build()
	require.NoError(t, err)

	assert.True(t, g.Ordered())
	assert.Equal(t, [][]node.ID{node.IDs("a"), node.IDs("b", "c"), node.IDs("d")}, g.Waves())
	assert.Equal(t, node.IDs("a"), g.FirstWave())
	assert.Equal(t, node.IDs("b", "c"), g.NextWave(node.IDs("a"), nil))
	assert.Equal(t, node.IDs("d"), g.NextWave(node.IDs("b", "c"), nil))
	assert.Empty(t, g.NextWave(node.IDs("d"), nil))
	assert.Equal(t, node.IDs("b"), g.Parents("d"))

	t.Run("SameWave joins previous", func(t *testing.T) {
		g, err := NewBuilder("same", reg).
			Add("a", Config{Placement: PlaceSameWave}).
			Add("b", Config{Placement: PlaceSameWave}).
			Add("c", Config{Placement: PlaceNewWave}).
			Build()
		require.NoError(t, err)
		assert.Equal(t, [][]node.ID{node.IDs("a", "b"), node.IDs("c")}, g.Waves())
	})
}

func TestBuild_Errors(t *testing.T) {
	reg := newTestRegistry(t, map[node.ID][]node.ID{
		"a":     nil,
		"b":     {"a"},
		"x":     {"y"},
		"cyc1":  {"cyc2"},
		"cyc2":  {"cyc1"},
		"self":  {"self"},
		"needs": {"missing"},
	})

	tests := []struct {
		name    string
		declare func(b *Builder)
		want    error
	}{
		{
			name: "missing dependency",
			declare: func(b *Builder) {
				b.Add("needs", Config{})
			},
			want: node.ErrGraphIncomplete,
		},
		{
			name: "dependency registered but not in graph",
			declare: func(b *Builder) {
				b.Add("b", Config{})
			},
			want: node.ErrGraphIncomplete,
		},
		{
			name: "duplicate",
			declare: func(b *Builder) {
				b.Add("a", Config{}).Add("a", Config{})
			},
			want: node.ErrNodeDuplicate,
		},
		{
			name: "duplicate with a different policy",
			declare: func(b *Builder) {
				b.Add("a", Config{}).Add("a", Config{Policy: node.Policy{Disposition: node.Abandon}})
			},
			want: node.ErrNodeDuplicate,
		},
		{
			name: "unregistered",
			declare: func(b *Builder) {
				b.Add("nope", Config{})
			},
			want: node.ErrNodeUnregistered,
		},
		{
			name: "cycle",
			declare: func(b *Builder) {
				b.Add("cyc1", Config{}).Add("cyc2", Config{})
			},
			want: node.ErrGraphCycle,
		},
		{
			name: "self dependency",
			declare: func(b *Builder) {
				b.Add("self", Config{})
			},
			want: node.ErrGraphCycle,
		},
		{
			name: "mixed styles",
			declare: func(b *Builder) {
				b.Add("a", Config{}).Add("b", Config{Placement: PlaceNewWave})
			},
			want: node.ErrMixedStyles,
		},
		{
			name: "wave dependency on same wave",
			declare: func(b *Builder) {
				b.Add("a", Config{Placement: PlaceNewWave}).
					Add("b", Config{Placement: PlaceSameWave, DependsOn: node.IDs("a")})
			},
			want: node.ErrDependencyOrder,
		},
		{
			name: "wave dependency on later wave",
			declare: func(b *Builder) {
				b.Add("a", Config{Placement: PlaceNewWave, DependsOn: node.IDs("b")}).
					Add("b", Config{Placement: PlaceNewWave})
			},
			want: node.ErrDependencyOrder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder("broken", reg)
			tt.declare(b)
			g, err := b.Build()
			require.Error(t, err)
			assert.Nil(t, g)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("errors are accumulated", func(t *testing.T) {
		_, err := NewBuilder("broken", reg).
			Add("needs", Config{}).
			Add("nope", Config{}).
			Build()
		assert.ErrorIs(t, err, node.ErrGraphIncomplete)
		assert.ErrorIs(t, err, node.ErrNodeUnregistered)
	})

	t.Run("invalid placement", func(t *testing.T) {
		_, err := NewBuilder("broken", reg).Add("a", Config{Placement: 7}).Build()
		assert.Error(t, err)
	})

	t.Run("MustBuild panics", func(t *testing.T) {
		assert.Panics(t, func() {
			NewBuilder("broken", reg).Add("needs", Config{}).MustBuild()
		})
	})
}

func TestBuild_Empty(t *testing.T) {
	g, err := NewBuilder("empty", registry.New()).Build()
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())
	assert.Empty(t, g.FirstWave())
	assert.Empty(t, g.Waves())
}

func TestDefinition(t *testing.T) {
	reg := newTestRegistry(t, map[node.ID][]node.ID{"a": nil})
	calls := 0
	def := Define("once", reg, func(b *Builder) {
		calls++
		b.Add("a", Config{})
	})

	assert.Equal(t, "once", def.Name())
	first, err := def.Graph()
	require.NoError(t, err)
	second, err := def.Graph()
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, calls, "Graph is validated once")

	broken := Define("broken", reg, func(b *Builder) {
		b.Add("missing", Config{})
	})
	_, err = broken.Graph()
	assert.ErrorIs(t, err, node.ErrNodeUnregistered)
	_, err2 := broken.Graph()
	assert.Equal(t, err, err2)
}

// Test helpers
// ---------------------------------------------------------------------

func newTestRegistry(t *testing.T, deps map[node.ID][]node.ID) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for id, d := range deps {
		d := d
		require.NoError(t, reg.Register(id, registry.Of(func() node.Node {
			return node.NewFuncNode(nil, d...)
		}), node.Policy{}))
	}
	return reg
}
