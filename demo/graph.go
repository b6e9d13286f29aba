// Package demo provides an order fulfilment graph used by the nodegraph CLI
// and by end-to-end tests.
//
// The graph validates an order, then reserves stock and charges payment in
// parallel, ships the parcel and finally notifies the customer:
//
//	ValidateOrder -> {ReserveStock, ChargePayment} -> ShipOrder -> NotifyCustomer
//
// It is declared twice, once per declaration style, with identical waves.
package demo

import (
	"github.com/nomis52/nodegraph/graph"
	"github.com/nomis52/nodegraph/node"
	"github.com/nomis52/nodegraph/registry"
)

// Graph names.
const (
	OrdersGraph        = "orders"
	OrdersOrderedGraph = "orders-ordered"
)

// PolicyFunc returns the policy override for a node. It may return the zero
// Policy to keep the registered defaults.
type PolicyFunc func(id node.ID) node.Policy

func (f PolicyFunc) config(id node.ID, cfg graph.Config) graph.Config {
	if f != nil {
		cfg.Policy = f(id)
	}
	return cfg
}

// NewOrders defines the graph in the explicit dependency style. Edges come
// from each node's Dependencies.
func NewOrders(reg *registry.Registry, policies PolicyFunc) *graph.Definition {
	return graph.Define(OrdersGraph, reg, func(b *graph.Builder) {
		b.Add(ValidateOrderID, policies.config(ValidateOrderID, graph.Config{}))
		b.Add(ReserveStockID, policies.config(ReserveStockID, graph.Config{}))
		b.Add(ChargePaymentID, policies.config(ChargePaymentID, graph.Config{}))
		b.Add(ShipOrderID, policies.config(ShipOrderID, graph.Config{}))
		b.Add(NotifyCustomerID, policies.config(NotifyCustomerID, graph.Config{}))
	})
}

// NewOrdersOrdered defines the same graph in the ordered wave style. Test
// orders, whose IDs start with "test-", are never notified.
func NewOrdersOrdered(reg *registry.Registry, policies PolicyFunc) *graph.Definition {
	return graph.Define(OrdersOrderedGraph, reg, func(b *graph.Builder) {
		b.Add(ValidateOrderID, policies.config(ValidateOrderID, graph.Config{Placement: graph.PlaceNewWave}))
		b.Add(ReserveStockID, policies.config(ReserveStockID, graph.Config{Placement: graph.PlaceNewWave}))
		b.Add(ChargePaymentID, policies.config(ChargePaymentID, graph.Config{Placement: graph.PlaceSameWave}))
		b.Add(ShipOrderID, policies.config(ShipOrderID, graph.Config{Placement: graph.PlaceNewWave}))
		b.Add(NotifyCustomerID, policies.config(NotifyCustomerID, graph.Config{
			Placement: graph.PlaceNewWave,
			SkipIf:    `payload.ID startsWith "test-"`,
		}))
	})
}

// Definitions returns both order graphs keyed by name.
func Definitions(reg *registry.Registry, policies PolicyFunc) map[string]*graph.Definition {
	return map[string]*graph.Definition{
		OrdersGraph:        NewOrders(reg, policies),
		OrdersOrderedGraph: NewOrdersOrdered(reg, policies),
	}
}
