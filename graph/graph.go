// Package graph builds and validates execution graphs.
//
// A Graph is built once by a Builder and is immutable afterwards, so one Graph
// can be executed by many concurrent runs. All per-run state lives in the
// node.RunContext.
//
// Two declaration styles are supported:
//
// Explicit dependencies - each node lists what it depends on and waves are
// derived from the dependency structure:
//
//	g, err := graph.NewBuilder("orders", reg).
//		Add(ValidateOrderID, graph.Config{}).
//		Add(ReserveStockID, graph.Config{}).
//		Add(ChargePaymentID, graph.Config{Policy: node.Policy{Disposition: node.Retry, Retries: 3}}).
//		Build()
//
// Ordered waves - nodes are declared in sequence and grouped into waves that
// run strictly one after another:
//
//	g, err := graph.NewBuilder("orders", reg).
//		Add(ValidateOrderID, graph.Config{Placement: graph.PlaceNewWave}).
//		AddGroup([]node.ID{ReserveStockID, FraudCheckID}, graph.Config{Placement: graph.PlaceNewWave}).
//		Add(ChargePaymentID, graph.Config{Placement: graph.PlaceNewWave}).
//		Build()
package graph

import (
	"fmt"

	"github.com/expr-lang/expr/vm"

	"github.com/nomis52/nodegraph/node"
)

type entry struct {
	inst       *node.Instance
	wave       int
	skipSource string
	skip       *vm.Program
}

// Graph is an immutable, validated execution graph.
type Graph struct {
	name     string
	waved    bool
	order    []node.ID
	entries  map[node.ID]*entry
	parents  map[node.ID][]node.ID
	children map[node.ID][]node.ID
	roots    []node.ID
	waves    [][]node.ID
}

// Name returns the graph name.
func (g *Graph) Name() string {
	return g.name
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// IDs returns every node ID in declaration order.
func (g *Graph) IDs() []node.ID {
	return clone(g.order)
}

// Ordered reports whether the graph was declared in the ordered wave style.
func (g *Graph) Ordered() bool {
	return g.waved
}

// Node returns the instance for id.
func (g *Graph) Node(id node.ID) (*node.Instance, bool) {
	e, ok := g.entries[id]
	if !ok {
		return nil, false
	}
	return e.inst, true
}

// Roots returns the nodes without dependencies, in declaration order.
func (g *Graph) Roots() []node.ID {
	return clone(g.roots)
}

// Parents returns the dependencies of id.
func (g *Graph) Parents(id node.ID) []node.ID {
	return clone(g.parents[id])
}

// Children returns the nodes that depend on id.
func (g *Graph) Children(id node.ID) []node.ID {
	return clone(g.children[id])
}

// UnblockedBy returns the dependents of id that are not yet completed and
// whose every dependency is in completed. id itself is treated as completed.
func (g *Graph) UnblockedBy(id node.ID, completed map[node.ID]bool) []node.ID {
	var out []node.ID
	for _, child := range g.children[id] {
		if completed[child] {
			continue
		}
		ready := true
		for _, p := range g.parents[child] {
			if p != id && !completed[p] {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, child)
		}
	}
	return out
}

// FirstWave returns the nodes that run first.
func (g *Graph) FirstWave() []node.ID {
	if len(g.waves) == 0 {
		return nil
	}
	if g.waved {
		return clone(g.waves[0])
	}
	return g.Roots()
}

// NextWave returns the nodes that become runnable once every node of the
// previous wave has reached a terminal state. completed must contain every
// terminal node so far, including the previous wave. An empty result means
// the run is complete.
func (g *Graph) NextWave(previous []node.ID, completed map[node.ID]bool) []node.ID {
	if len(previous) == 0 {
		return nil
	}

	if g.waved {
		next := g.entries[previous[0]].wave + 1
		if next >= len(g.waves) {
			return nil
		}
		return clone(g.waves[next])
	}

	seen := make(map[node.ID]bool)
	for _, id := range previous {
		for _, child := range g.UnblockedBy(id, completed) {
			seen[child] = true
		}
	}

	// Keep declaration order so runs are reproducible in logs.
	var out []node.ID
	for _, id := range g.order {
		if seen[id] {
			out = append(out, id)
		}
	}
	return out
}

// Waves returns every wave in execution order. For the explicit dependency
// style a node's wave is one more than the deepest of its dependencies.
func (g *Graph) Waves() [][]node.ID {
	out := make([][]node.ID, len(g.waves))
	for i, w := range g.waves {
		out[i] = clone(w)
	}
	return out
}

// WaveOf returns the index of the wave that contains id, or -1.
func (g *Graph) WaveOf(id node.ID) int {
	e, ok := g.entries[id]
	if !ok {
		return -1
	}
	return e.wave
}

// IsBoundary reports whether id is in the first or the last wave. Boundary
// nodes get parameter level logging under the default verbosity.
func (g *Graph) IsBoundary(id node.ID) bool {
	w := g.WaveOf(id)
	return w >= 0 && (w == 0 || w == len(g.waves)-1)
}

// levels assigns each node the wave it runs in using Kahn's algorithm. Nodes
// that can never be processed are part of a cycle.
func (g *Graph) levels() ([][]node.ID, error) {
	inDegree := make(map[node.ID]int, len(g.order))
	for _, id := range g.order {
		inDegree[id] = len(g.parents[id])
	}

	current := clone(g.roots)
	var waves [][]node.ID
	processed := 0

	for len(current) > 0 {
		waves = append(waves, current)
		level := len(waves) - 1
		processed += len(current)

		ready := make(map[node.ID]bool)
		for _, id := range current {
			g.entries[id].wave = level
			for _, child := range g.children[id] {
				inDegree[child]--
				if inDegree[child] == 0 {
					ready[child] = true
				}
			}
		}

		var next []node.ID
		for _, id := range g.order {
			if ready[id] {
				next = append(next, id)
			}
		}
		current = next
	}

	if processed != len(g.order) {
		var stuck []node.ID
		for _, id := range g.order {
			if inDegree[id] > 0 {
				stuck = append(stuck, id)
			}
		}
		return nil, fmt.Errorf("%w in graph %s: only %d of %d nodes could be ordered, involved: %v",
			node.ErrGraphCycle, g.name, processed, len(g.order), stuck)
	}
	return waves, nil
}

func clone(ids []node.ID) []node.ID {
	if ids == nil {
		return nil
	}
	out := make([]node.ID, len(ids))
	copy(out, ids)
	return out
}
