// Package registry creates and caches node instances.
//
// A node kind is registered once with a Factory and its default Policy. Get
// returns the instance for an (ID, Policy) pair, constructing it on first use.
// Concurrent Get calls for the same pair share one construction.
//
// The cache never shrinks. Its key space is bounded by the number of node
// kinds and policy combinations compiled into the program, so the registry
// lives for the lifetime of the process.
package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/nomis52/nodegraph/node"
)

// Factory constructs a node. It is called at most once per (ID, Policy) pair.
type Factory func(s Scope) (node.Node, error)

// Of returns a Factory for nodes that need no collaborators.
func Of(newNode func() node.Node) Factory {
	return func(Scope) (node.Node, error) {
		return newNode(), nil
	}
}

type kind struct {
	factory  Factory
	defaults node.Policy
}

// Registry holds node kinds and the instances built from them.
type Registry struct {
	logger   *slog.Logger
	resolver Resolver
	defaults node.Policy

	mu        sync.RWMutex
	kinds     map[node.ID]kind
	instances map[string]*node.Instance

	flight singleflight.Group
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger.With("component", "registry")
	}
}

// WithResolver sets the Resolver handed to factories.
func WithResolver(res Resolver) Option {
	return func(r *Registry) {
		r.resolver = res
	}
}

// WithDefaultPolicy replaces node.DefaultPolicy as the fallback for unset
// fields of registered defaults. Unset fields of p keep node.DefaultPolicy.
func WithDefaultPolicy(p node.Policy) Option {
	return func(r *Registry) {
		r.defaults = p.Merge(node.DefaultPolicy)
	}
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		logger:    slog.Default().With("component", "registry"),
		resolver:  NewContainer(),
		defaults:  node.DefaultPolicy,
		kinds:     make(map[node.ID]kind),
		instances: make(map[string]*node.Instance),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRegistry = New()

// Default returns the process-wide Registry.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a node kind. Unset fields of defaults fall back to the
// registry's default policy, node.DefaultPolicy unless WithDefaultPolicy
// was given.
func (r *Registry) Register(id node.ID, factory Factory, defaults node.Policy) error {
	if !id.IsValid() {
		return fmt.Errorf("invalid node id %q", id)
	}
	if factory == nil {
		return fmt.Errorf("node %s: factory is nil", id)
	}
	defaults = defaults.Merge(r.defaults)
	if err := defaults.Validate(); err != nil {
		return fmt.Errorf("node %s: invalid default policy: %w", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.kinds[id]; exists {
		return fmt.Errorf("%w: node kind %s already registered", node.ErrNodeDuplicate, id)
	}
	r.kinds[id] = kind{factory: factory, defaults: defaults}
	r.logger.Debug("node kind registered", "node_id", id.String(), "policy", defaults.String())
	return nil
}

// MustRegister is like Register but panics on error. Intended for package
// init blocks.
func (r *Registry) MustRegister(id node.ID, factory Factory, defaults node.Policy) {
	if err := r.Register(id, factory, defaults); err != nil {
		panic(err)
	}
}

// Has reports whether a node kind is registered.
func (r *Registry) Has(id node.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.kinds[id]
	return ok
}

// Defaults returns the default policy of a registered node kind.
func (r *Registry) Defaults(id node.ID) (node.Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[id]
	return k.defaults, ok
}

// Get returns the instance of id configured with policy. Unset fields of
// policy are taken from the kind's registered defaults.
//
// Returns an error wrapping node.ErrNodeUnregistered if the kind is unknown
// or its factory fails.
func (r *Registry) Get(id node.ID, policy node.Policy) (*node.Instance, error) {
	r.mu.RLock()
	k, ok := r.kinds[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", node.ErrNodeUnregistered, id)
	}

	policy = policy.Merge(k.defaults)
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("node %s: %w", id, err)
	}

	key := id.String() + "@" + policy.Key()

	// Fast path
	r.mu.RLock()
	inst, ok := r.instances[key]
	r.mu.RUnlock()
	if ok {
		return inst, nil
	}

	v, err, _ := r.flight.Do(key, func() (any, error) {
		r.mu.RLock()
		existing, ok := r.instances[key]
		r.mu.RUnlock()
		if ok {
			return existing, nil
		}

		n, err := k.factory(Scope{ID: id, Policy: policy, Resolver: r.resolver})
		if err != nil {
			r.logger.Error("node construction failed", "node_id", id.String(), "error", err)
			return nil, fmt.Errorf("%w: %s: %w", node.ErrNodeUnregistered, id, err)
		}
		if n == nil {
			return nil, fmt.Errorf("%w: %s: factory returned nil", node.ErrNodeUnregistered, id)
		}

		created := &node.Instance{ID: id, Policy: policy, Node: n}
		r.mu.Lock()
		r.instances[key] = created
		r.mu.Unlock()

		r.logger.Debug("node instance created", "node_id", id.String(), "policy", policy.String())
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*node.Instance), nil
}

// Len returns the number of cached instances.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}
