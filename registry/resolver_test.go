package registry

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/nodegraph/node"
)

func TestContainer_Provide(t *testing.T) {
	c := NewContainer()

	require.NoError(t, c.Provide("logger", func(id node.ID) any {
		return slog.Default().With("node_id", id.String())
	}))
	require.NoError(t, c.Inject("limit", 10))

	t.Run("duplicate name", func(t *testing.T) {
		assert.Error(t, c.Inject("limit", 20))
	})

	t.Run("nil values", func(t *testing.T) {
		assert.Error(t, c.Inject("nil", nil))
		assert.Error(t, c.Provide("nilfunc", nil))
	})

	t.Run("per node provider", func(t *testing.T) {
		a, ok := c.Resolve("a", "logger")
		require.True(t, ok)
		b, ok := c.Resolve("b", "logger")
		require.True(t, ok)
		assert.NotSame(t, a, b, "Each node should get its own logger")
	})

	t.Run("shared value", func(t *testing.T) {
		v, ok := c.Resolve("a", "limit")
		require.True(t, ok)
		assert.Equal(t, 10, v)
	})

	t.Run("missing", func(t *testing.T) {
		_, ok := c.Resolve("a", "missing")
		assert.False(t, ok)
	})

	t.Run("provider returning nil is not found", func(t *testing.T) {
		require.NoError(t, c.Provide("sometimes", func(id node.ID) any {
			if id == "a" {
				return "yes"
			}
			return nil
		}))
		_, ok := c.Resolve("a", "sometimes")
		assert.True(t, ok)
		_, ok = c.Resolve("b", "sometimes")
		assert.False(t, ok)
	})
}

func TestLookupAndRequire(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Inject("name", "orders"))
	s := Scope{ID: "n", Resolver: c}

	t.Run("Lookup tolerates missing", func(t *testing.T) {
		v, ok := Lookup[string](s, "name")
		assert.True(t, ok)
		assert.Equal(t, "orders", v)

		n, ok := Lookup[int](s, "name")
		assert.False(t, ok, "Wrong type is reported as not found")
		assert.Zero(t, n)

		_, ok = Lookup[string](s, "missing")
		assert.False(t, ok)

		_, ok = Lookup[string](Scope{ID: "n"}, "name")
		assert.False(t, ok, "No resolver")
	})

	t.Run("Require returns errors", func(t *testing.T) {
		v, err := Require[string](s, "name")
		require.NoError(t, err)
		assert.Equal(t, "orders", v)

		_, err = Require[string](s, "missing")
		assert.ErrorContains(t, err, "not found")

		_, err = Require[int](s, "name")
		assert.ErrorContains(t, err, "has type string")

		_, err = Require[string](Scope{ID: "n"}, "name")
		assert.Error(t, err)
	})

	t.Run("ResolverFunc", func(t *testing.T) {
		fs := Scope{ID: "n", Resolver: ResolverFunc(func(id node.ID, name string) (any, bool) {
			return id.String() + "/" + name, true
		})}
		v, err := Require[string](fs, "x")
		require.NoError(t, err)
		assert.Equal(t, "n/x", v)
	})
}
