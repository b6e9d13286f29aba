package graph

import (
	"sync"

	"github.com/nomis52/nodegraph/registry"
)

// Definition is a named graph that is built and validated on first use.
// Later calls to Graph return the same Graph, or the same build error.
//
//	var Orders = graph.Define("orders", registry.Default(), func(b *graph.Builder) {
//		b.Add(ValidateOrderID, graph.Config{})
//		b.Add(ChargePaymentID, graph.Config{})
//	})
type Definition struct {
	name  string
	build func() (*Graph, error)
}

// Define creates a Definition. declare is called once, by the first call to
// Graph.
func Define(name string, reg *registry.Registry, declare func(b *Builder)) *Definition {
	return &Definition{
		name: name,
		build: sync.OnceValues(func() (*Graph, error) {
			b := NewBuilder(name, reg)
			declare(b)
			return b.Build()
		}),
	}
}

// Name returns the graph name.
func (d *Definition) Name() string {
	return d.name
}

// Graph returns the built graph.
func (d *Definition) Graph() (*Graph, error) {
	return d.build()
}
