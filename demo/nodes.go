package demo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nomis52/nodegraph/node"
	"github.com/nomis52/nodegraph/registry"
)

// Node IDs of the order graph.
const (
	ValidateOrderID  node.ID = "demo.ValidateOrder"
	ReserveStockID   node.ID = "demo.ReserveStock"
	ChargePaymentID  node.ID = "demo.ChargePayment"
	ShipOrderID      node.ID = "demo.ShipOrder"
	NotifyCustomerID node.ID = "demo.NotifyCustomer"
)

// Business failure codes.
const (
	CodeInvalidOrder = "INVALID_ORDER"
	CodeOutOfStock   = "OUT_OF_STOCK"
)

// order extracts the payload. Every node of the graph expects an *Order.
func order(rc *node.RunContext) (*Order, error) {
	o, ok := rc.Payload.(*Order)
	if !ok || o == nil {
		return nil, fmt.Errorf("payload is %T, want *demo.Order", rc.Payload)
	}
	return o, nil
}

// ValidateOrder rejects orders that cannot be fulfilled.
type ValidateOrder struct {
	node.Base
}

func (n *ValidateOrder) Run(ctx context.Context, rc *node.RunContext) error {
	o, err := order(rc)
	if err != nil {
		return err
	}
	if o.ID == "" {
		return node.Fail(CodeInvalidOrder, "order has no id")
	}
	if len(o.Items) == 0 {
		return node.Fail(CodeInvalidOrder, "order %s has no items", o.ID)
	}
	for _, it := range o.Items {
		if it.Quantity <= 0 {
			return node.Fail(CodeInvalidOrder, "order %s: sku %s has quantity %d", o.ID, it.SKU, it.Quantity)
		}
	}
	rc.AppendTrace(o.ID)
	return nil
}

// ReserveStock reserves every order line.
type ReserveStock struct {
	node.Base
	inventory Inventory
}

func (n *ReserveStock) Dependencies() []node.ID {
	return []node.ID{ValidateOrderID}
}

func (n *ReserveStock) Run(ctx context.Context, rc *node.RunContext) error {
	o, err := order(rc)
	if err != nil {
		return err
	}
	id, err := n.inventory.Reserve(ctx, o.ID, o.Items)
	var oos *OutOfStockError
	if errors.As(err, &oos) {
		return node.Fail(CodeOutOfStock, "sku %s is out of stock", oos.SKU).Wrap(err)
	}
	if err != nil {
		return err
	}
	o.Reservation = id
	return nil
}

// ChargePayment charges the order total. The payment gateway is flaky, so the
// node is registered with a retry policy.
type ChargePayment struct {
	node.Base
	payments Payments
}

func (n *ChargePayment) Dependencies() []node.ID {
	return []node.ID{ValidateOrderID}
}

func (n *ChargePayment) Run(ctx context.Context, rc *node.RunContext) error {
	o, err := order(rc)
	if err != nil {
		return err
	}
	chargeID, err := n.payments.Charge(ctx, o.ID, o.Total())
	if err != nil {
		return fmt.Errorf("charging order %s: %w", o.ID, err)
	}
	o.ChargeID = chargeID
	return nil
}

// ShipOrder books the parcel once stock is reserved and payment taken.
type ShipOrder struct {
	node.Base
	shipping Shipping
}

func (n *ShipOrder) Dependencies() []node.ID {
	return []node.ID{ReserveStockID, ChargePaymentID}
}

func (n *ShipOrder) Run(ctx context.Context, rc *node.RunContext) error {
	o, err := order(rc)
	if err != nil {
		return err
	}
	tracking, err := n.shipping.Ship(ctx, o.ID, o.Express)
	if err != nil {
		return err
	}
	o.Tracking = tracking
	rc.AppendTrace(tracking)
	return nil
}

// NotifyCustomer sends the confirmation. Failure to notify does not fail the
// order, so the node is registered with the abandon policy.
type NotifyCustomer struct {
	node.Base
	notifier Notifier
}

func (n *NotifyCustomer) Dependencies() []node.ID {
	return []node.ID{ShipOrderID}
}

// ShouldSkip skips the notification for silent orders.
func (n *NotifyCustomer) ShouldSkip(rc *node.RunContext) bool {
	o, err := order(rc)
	return err == nil && o.Silent
}

func (n *NotifyCustomer) Run(ctx context.Context, rc *node.RunContext) error {
	o, err := order(rc)
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("order %s shipped, tracking %s", o.ID, o.Tracking)
	if err := n.notifier.Notify(ctx, o.ID, msg); err != nil {
		return err
	}
	o.Notified = true
	return nil
}

// Register adds the order node kinds to reg. Collaborators are resolved
// from the registry's resolver when an instance is first built.
func Register(reg *registry.Registry) error {
	kinds := []struct {
		id       node.ID
		factory  registry.Factory
		defaults node.Policy
	}{
		{
			id:      ValidateOrderID,
			factory: registry.Of(func() node.Node { return &ValidateOrder{} }),
		},
		{
			id: ReserveStockID,
			factory: func(s registry.Scope) (node.Node, error) {
				inv, err := registry.Require[Inventory](s, InventoryName)
				if err != nil {
					return nil, err
				}
				return &ReserveStock{inventory: inv}, nil
			},
		},
		{
			id: ChargePaymentID,
			factory: func(s registry.Scope) (node.Node, error) {
				p, err := registry.Require[Payments](s, PaymentsName)
				if err != nil {
					return nil, err
				}
				return &ChargePayment{payments: p}, nil
			},
			defaults: node.Policy{Disposition: node.Retry, Retries: 3, Timeout: 2 * time.Second},
		},
		{
			id: ShipOrderID,
			factory: func(s registry.Scope) (node.Node, error) {
				sh, err := registry.Require[Shipping](s, ShippingName)
				if err != nil {
					return nil, err
				}
				return &ShipOrder{shipping: sh}, nil
			},
			defaults: node.Policy{Timeout: 5 * time.Second},
		},
		{
			id: NotifyCustomerID,
			factory: func(s registry.Scope) (node.Node, error) {
				nt, ok := registry.Lookup[Notifier](s, NotifierName)
				if !ok {
					nt = LogNotifier{}
				}
				return &NotifyCustomer{notifier: nt}, nil
			},
			defaults: node.Policy{Disposition: node.Abandon, Timeout: time.Second},
		},
	}

	var errs []error
	for _, k := range kinds {
		errs = append(errs, reg.Register(k.id, k.factory, k.defaults))
	}
	return errors.Join(errs...)
}
