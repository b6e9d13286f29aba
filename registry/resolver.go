package registry

import (
	"fmt"
	"sync"

	"github.com/nomis52/nodegraph/node"
)

// Resolver supplies external collaborators to node factories.
//
// Resolve is called with the ID of the node being constructed and the name of
// the collaborator it asks for. A missing collaborator is reported with ok ==
// false; it is up to the factory whether that is fatal (see Require) or not
// (see Lookup).
type Resolver interface {
	Resolve(id node.ID, name string) (any, bool)
}

// ResolverFunc adapts a function to a Resolver.
type ResolverFunc func(id node.ID, name string) (any, bool)

// Resolve calls f.
func (f ResolverFunc) Resolve(id node.ID, name string) (any, bool) {
	return f(id, name)
}

// ProviderFunc builds a collaborator for a specific node. It allows a
// per-node value, such as a logger tagged with the node ID.
type ProviderFunc func(id node.ID) any

// Shared returns a ProviderFunc that hands the same value to every node.
func Shared(v any) ProviderFunc {
	return func(node.ID) any {
		return v
	}
}

// Container is the default Resolver: a name to provider map.
//
// Example:
//
//	c := registry.NewContainer()
//	c.Inject("payments", paymentsClient)
//	c.Provide("logger", func(id node.ID) any {
//		return logger.With("node", id.String())
//	})
type Container struct {
	mu        sync.RWMutex
	providers map[string]ProviderFunc
}

// NewContainer creates an empty Container.
func NewContainer() *Container {
	return &Container{
		providers: make(map[string]ProviderFunc),
	}
}

// Provide registers a provider under name. Returns an error if name is
// already provided.
func (c *Container) Provide(name string, p ProviderFunc) error {
	if p == nil {
		return fmt.Errorf("provider for %q is nil", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.providers[name]; exists {
		return fmt.Errorf("collaborator %q already provided", name)
	}
	c.providers[name] = p
	return nil
}

// Inject registers a single shared value under name.
func (c *Container) Inject(name string, v any) error {
	if v == nil {
		return fmt.Errorf("collaborator %q is nil", name)
	}
	return c.Provide(name, Shared(v))
}

// Resolve implements Resolver.
func (c *Container) Resolve(id node.ID, name string) (any, bool) {
	c.mu.RLock()
	p, ok := c.providers[name]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	v := p(id)
	return v, v != nil
}

// Scope is handed to a Factory. It identifies the instance being built and
// gives access to the Resolver.
type Scope struct {
	ID       node.ID
	Policy   node.Policy
	Resolver Resolver
}

// Lookup resolves a collaborator by name and asserts its type. A missing
// collaborator, or one of the wrong type, returns the zero value and false.
func Lookup[T any](s Scope, name string) (T, bool) {
	var zero T
	if s.Resolver == nil {
		return zero, false
	}
	v, ok := s.Resolver.Resolve(s.ID, name)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// Require is like Lookup but returns an error when the collaborator is
// missing or has the wrong type.
func Require[T any](s Scope, name string) (T, error) {
	var zero T
	if s.Resolver == nil {
		return zero, fmt.Errorf("node %s: no resolver for collaborator %q", s.ID, name)
	}
	v, ok := s.Resolver.Resolve(s.ID, name)
	if !ok {
		return zero, fmt.Errorf("node %s: collaborator %q not found", s.ID, name)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("node %s: collaborator %q has type %T, want %T", s.ID, name, v, zero)
	}
	return t, nil
}
