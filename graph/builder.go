package graph

import (
	"errors"
	"fmt"
	"slices"

	"github.com/nomis52/nodegraph/node"
	"github.com/nomis52/nodegraph/registry"
)

// Placement selects how a node is positioned in the graph.
//
// PlaceByDependencies uses the explicit dependency style: the node's waves are
// derived from Dependencies() and Config.DependsOn.
//
// PlaceNewWave and PlaceSameWave use the ordered wave style: nodes are
// declared in sequence and either start a new wave or join the previous
// node's wave. Waves run strictly in declaration order.
//
// The two styles cannot be mixed in one graph.
type Placement int

const (
	PlaceByDependencies Placement = iota
	PlaceNewWave
	PlaceSameWave
)

// String returns a human-readable representation of the Placement.
func (p Placement) String() string {
	switch p {
	case PlaceByDependencies:
		return "by_dependencies"
	case PlaceNewWave:
		return "new_wave"
	case PlaceSameWave:
		return "same_wave"
	default:
		return "unknown"
	}
}

// Config describes how a node is added to a graph. The zero value adds the
// node with its registered default policy, in the explicit dependency style.
type Config struct {
	// Policy overrides fields of the registered default policy.
	Policy node.Policy

	// DependsOn adds dependencies to those declared by the node itself.
	DependsOn []node.ID

	// Placement selects the declaration style.
	Placement Placement

	// SkipIf is an optional boolean expression. When it evaluates to true the
	// node is skipped. The expression can refer to payload, trace, runID and
	// status (a map of node ID to status name).
	SkipIf string
}

type style int

const (
	styleUnknown style = iota
	styleDependencies
	styleWaves
)

func styleOf(p Placement) style {
	if p == PlaceByDependencies {
		return styleDependencies
	}
	return styleWaves
}

type declaration struct {
	inst   *node.Instance
	config Config
	wave   int
}

// Builder accumulates node declarations and produces an immutable Graph.
// Errors are collected and returned together by Build.
type Builder struct {
	name     string
	registry *registry.Registry

	style  style
	decls  []*declaration
	byID   map[node.ID]*declaration
	waves  int
	errors []error
}

// NewBuilder creates a Builder that resolves nodes from reg. A nil reg uses
// registry.Default().
func NewBuilder(name string, reg *registry.Registry) *Builder {
	if reg == nil {
		reg = registry.Default()
	}
	return &Builder{
		name:     name,
		registry: reg,
		byID:     make(map[node.ID]*declaration),
	}
}

// Add declares a node.
func (b *Builder) Add(id node.ID, cfg Config) *Builder {
	s := styleOf(cfg.Placement)
	if cfg.Placement < PlaceByDependencies || cfg.Placement > PlaceSameWave {
		b.errors = append(b.errors, fmt.Errorf("node %s: invalid placement %d", id, cfg.Placement))
		return b
	}
	if b.style != styleUnknown && b.style != s {
		b.errors = append(b.errors, fmt.Errorf("%w: node %s uses %s", node.ErrMixedStyles, id, cfg.Placement))
		return b
	}
	b.style = s

	if _, exists := b.byID[id]; exists {
		b.errors = append(b.errors, fmt.Errorf("%w: node %s added to graph %s twice", node.ErrNodeDuplicate, id, b.name))
		return b
	}

	inst, err := b.registry.Get(id, cfg.Policy)
	if err != nil {
		b.errors = append(b.errors, err)
		return b
	}

	d := &declaration{inst: inst, config: cfg}
	if s == styleWaves {
		if cfg.Placement == PlaceNewWave || b.waves == 0 {
			b.waves++
		}
		d.wave = b.waves - 1
	}

	b.decls = append(b.decls, d)
	b.byID[id] = d
	return b
}

// AddGroup declares several nodes with the same Config. In the ordered wave
// style the group forms one wave of its own.
func (b *Builder) AddGroup(ids []node.ID, cfg Config) *Builder {
	for i, id := range ids {
		c := cfg
		if c.Placement != PlaceByDependencies {
			if i == 0 {
				c.Placement = PlaceNewWave
			} else {
				c.Placement = PlaceSameWave
			}
		}
		b.Add(id, c)
	}
	return b
}

// Build validates the declarations and returns the Graph.
//
// Possible errors, all joined into one:
//   - node.ErrNodeUnregistered / node.ErrNodeDuplicate from Add
//   - node.ErrGraphIncomplete when a dependency is not part of this graph
//   - node.ErrGraphCycle when dependencies form a cycle
//   - node.ErrDependencyOrder when a wave-style dependency is not in an
//     earlier wave
//   - a compile error for an invalid SkipIf expression
func (b *Builder) Build() (*Graph, error) {
	errs := slices.Clone(b.errors)

	g := &Graph{
		name:     b.name,
		entries:  make(map[node.ID]*entry, len(b.decls)),
		parents:  make(map[node.ID][]node.ID, len(b.decls)),
		children: make(map[node.ID][]node.ID, len(b.decls)),
		waved:    b.style == styleWaves,
	}

	for _, d := range b.decls {
		id := d.inst.ID
		g.order = append(g.order, id)
		g.entries[id] = &entry{inst: d.inst, wave: d.wave, skipSource: d.config.SkipIf}
	}

	for _, d := range b.decls {
		id := d.inst.ID
		deps := dependenciesOf(d, g.waved)
		for _, dep := range deps {
			parent, ok := b.byID[dep]
			if !ok {
				errs = append(errs, fmt.Errorf("%w: node %s depends on %s which is not part of graph %s",
					node.ErrGraphIncomplete, id, dep, b.name))
				continue
			}
			if dep == id {
				errs = append(errs, fmt.Errorf("%w: node %s depends on itself", node.ErrGraphCycle, id))
				continue
			}
			if g.waved && parent.wave >= d.wave {
				errs = append(errs, fmt.Errorf("%w: node %s (wave %d) depends on %s (wave %d)",
					node.ErrDependencyOrder, id, d.wave, dep, parent.wave))
				continue
			}
			g.parents[id] = append(g.parents[id], dep)
			g.children[dep] = append(g.children[dep], id)
		}
	}

	for _, id := range g.order {
		if len(g.parents[id]) == 0 {
			g.roots = append(g.roots, id)
		}
	}

	for _, id := range g.order {
		e := g.entries[id]
		if e.skipSource == "" {
			continue
		}
		program, err := compileSkip(e.skipSource)
		if err != nil {
			errs = append(errs, fmt.Errorf("node %s: invalid skip expression: %w", id, err))
			continue
		}
		e.skip = program
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if g.waved {
		g.waves = make([][]node.ID, b.waves)
		for _, id := range g.order {
			w := g.entries[id].wave
			g.waves[w] = append(g.waves[w], id)
		}
	} else {
		waves, err := g.levels()
		if err != nil {
			return nil, err
		}
		g.waves = waves
	}

	return g, nil
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild() *Graph {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}

// dependenciesOf merges the node's declared dependencies with the extra ones
// from its Config, dropping duplicates. Wave-style graphs only honour
// Config.DependsOn.
func dependenciesOf(d *declaration, waved bool) []node.ID {
	var lists [][]node.ID
	if !waved {
		lists = append(lists, d.inst.Node.Dependencies())
	}
	lists = append(lists, d.config.DependsOn)

	var deps []node.ID
	seen := make(map[node.ID]bool)
	for _, list := range lists {
		for _, dep := range list {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			deps = append(deps, dep)
		}
	}
	return deps
}
