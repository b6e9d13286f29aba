package graph

import (
	"strings"
	"testing"

	"github.com/awalterschulze/gographviz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/nodegraph/node"
)

func TestGraph_DOT(t *testing.T) {
	reg := newTestRegistry(t, map[node.ID][]node.ID{
		"orders.Validate": nil,
		"orders.Reserve":  {"orders.Validate"},
		"orders.Charge":   {"orders.Validate"},
		"orders.Ship":     {"orders.Reserve", "orders.Charge"},
	})

	g, err := NewBuilder("orders", reg).
		Add("orders.Validate", Config{}).
		Add("orders.Reserve", Config{}).
		Add("orders.Charge", Config{SkipIf: "payload == nil"}).
		Add("orders.Ship", Config{}).
		Build()
	require.NoError(t, err)

	dot, err := g.DOT()
	require.NoError(t, err)

	// Round trip through the parser to inspect the structure.
	ast, err := gographviz.ParseString(dot)
	require.NoError(t, err, dot)
	parsed := gographviz.NewGraph()
	require.NoError(t, gographviz.Analyse(ast, parsed))

	assert.True(t, parsed.Directed)
	assert.Len(t, parsed.Nodes.Nodes, 4)
	assert.Len(t, parsed.Edges.Edges, 4)
	assert.Len(t, parsed.SubGraphs.SubGraphs, 3, "One subgraph per wave")

	edges := map[string]bool{}
	for _, e := range parsed.Edges.Edges {
		edges[unquote(e.Src)+"->"+unquote(e.Dst)] = true
	}
	assert.True(t, edges["orders.Validate->orders.Reserve"])
	assert.True(t, edges["orders.Charge->orders.Ship"])

	var charge *gographviz.Node
	for _, n := range parsed.Nodes.Nodes {
		if unquote(n.Name) == "orders.Charge" {
			charge = n
		}
	}
	require.NotNil(t, charge)
	assert.Equal(t, "dashed", unquote(charge.Attrs[gographviz.Style]))
}

func unquote(s string) string {
	return strings.Trim(s, `"`)
}
