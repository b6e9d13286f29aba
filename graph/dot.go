package graph

import (
	"fmt"
	"strconv"

	"github.com/awalterschulze/gographviz"
)

// DOT renders the graph in Graphviz DOT format. Each wave is a subgraph with
// rank=same and edges point from a dependency to its dependent.
func (g *Graph) DOT() (string, error) {
	out := gographviz.NewGraph()
	name := quote(g.name)
	if err := out.SetName(name); err != nil {
		return "", fmt.Errorf("failed to set graph name: %w", err)
	}
	if err := out.SetDir(true); err != nil {
		return "", fmt.Errorf("failed to set graph direction: %w", err)
	}
	if err := out.AddAttr(name, "rankdir", "LR"); err != nil {
		return "", fmt.Errorf("failed to set rankdir: %w", err)
	}

	for i, wave := range g.waves {
		sub := fmt.Sprintf("wave_%d", i)
		if err := out.AddSubGraph(name, sub, map[string]string{"rank": "same"}); err != nil {
			return "", fmt.Errorf("failed to add wave %d: %w", i, err)
		}
		for _, id := range wave {
			inst := g.entries[id].inst
			attrs := map[string]string{
				"label": quote(fmt.Sprintf("%s (%s)", id.ShortString(), inst.Policy.Disposition)),
				"shape": "box",
			}
			if g.entries[id].skip != nil {
				attrs["style"] = "dashed"
			}
			if err := out.AddNode(sub, quote(id.String()), attrs); err != nil {
				return "", fmt.Errorf("failed to add node %s: %w", id, err)
			}
		}
	}

	for _, id := range g.order {
		for _, child := range g.children[id] {
			if err := out.AddEdge(quote(id.String()), quote(child.String()), true, nil); err != nil {
				return "", fmt.Errorf("failed to add edge %s -> %s: %w", id, child, err)
			}
		}
	}

	return out.String(), nil
}

func quote(s string) string {
	return strconv.Quote(s)
}
