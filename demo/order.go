package demo

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nomis52/nodegraph/logging"
	"github.com/nomis52/nodegraph/registry"
)

// Item is one order line.
type Item struct {
	SKU      string `json:"sku" yaml:"sku"`
	Quantity int    `json:"quantity" yaml:"quantity"`
	Cents    int64  `json:"cents" yaml:"cents"`
}

// Order is the payload of the order graphs. Nodes record their results on it;
// nodes of one wave write disjoint fields.
type Order struct {
	ID      string `json:"id" yaml:"id"`
	Items   []Item `json:"items" yaml:"items"`
	Express bool   `json:"express" yaml:"express"`
	// Silent disables the customer notification.
	Silent bool `json:"silent" yaml:"silent"`

	Reservation string `json:"reservation,omitempty" yaml:"-"`
	ChargeID    string `json:"charge_id,omitempty" yaml:"-"`
	Tracking    string `json:"tracking,omitempty" yaml:"-"`
	Notified    bool   `json:"notified,omitempty" yaml:"-"`
}

// Total returns the order value in cents.
func (o *Order) Total() int64 {
	var total int64
	for _, it := range o.Items {
		total += int64(it.Quantity) * it.Cents
	}
	return total
}

// Collaborator names resolved by the node factories.
const (
	InventoryName = "inventory"
	PaymentsName  = "payments"
	ShippingName  = "shipping"
	NotifierName  = "notifier"
)

// Inventory reserves stock.
type Inventory interface {
	Reserve(ctx context.Context, orderID string, items []Item) (string, error)
}

// Payments charges customers.
type Payments interface {
	Charge(ctx context.Context, orderID string, cents int64) (string, error)
}

// Shipping dispatches parcels.
type Shipping interface {
	Ship(ctx context.Context, orderID string, express bool) (string, error)
}

// Notifier tells customers about their order.
type Notifier interface {
	Notify(ctx context.Context, orderID, message string) error
}

// Collaborators bundles the services the order nodes need.
type Collaborators struct {
	Inventory Inventory
	Payments  Payments
	Shipping  Shipping
	Notifier  Notifier
}

// Container returns a registry.Container providing the collaborators.
func (c Collaborators) Container() (*registry.Container, error) {
	container := registry.NewContainer()
	for name, v := range map[string]any{
		InventoryName: c.Inventory,
		PaymentsName:  c.Payments,
		ShippingName:  c.Shipping,
		NotifierName:  c.Notifier,
	} {
		if err := container.Inject(name, v); err != nil {
			return nil, err
		}
	}
	return container, nil
}

// Simulated returns in-memory collaborators. failCharges is the number of
// payment attempts that fail before charges start succeeding; latency is
// the simulated per-call delay.
func Simulated(stock map[string]int, failCharges int, latency time.Duration) Collaborators {
	return Collaborators{
		Inventory: NewMemoryInventory(stock),
		Payments:  &FlakyPayments{FailFirst: int32(failCharges), Latency: latency},
		Shipping:  &SimulatedShipping{Latency: latency},
		Notifier:  LogNotifier{},
	}
}

// MemoryInventory is an in-memory stock ledger.
type MemoryInventory struct {
	mu    sync.Mutex
	stock map[string]int
}

// NewMemoryInventory creates a MemoryInventory with the given stock levels.
func NewMemoryInventory(stock map[string]int) *MemoryInventory {
	copied := make(map[string]int, len(stock))
	for sku, n := range stock {
		copied[sku] = n
	}
	return &MemoryInventory{stock: copied}
}

// Reserve implements Inventory. It is all or nothing.
func (m *MemoryInventory) Reserve(ctx context.Context, orderID string, items []Item) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, it := range items {
		if m.stock[it.SKU] < it.Quantity {
			return "", &OutOfStockError{SKU: it.SKU, Wanted: it.Quantity, Available: m.stock[it.SKU]}
		}
	}
	for _, it := range items {
		m.stock[it.SKU] -= it.Quantity
	}
	return "rsv-" + orderID, nil
}

// Available returns the current stock of a SKU.
func (m *MemoryInventory) Available(sku string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[sku]
}

// OutOfStockError is returned by MemoryInventory.Reserve.
type OutOfStockError struct {
	SKU       string
	Wanted    int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("sku %s: wanted %d, %d available", e.SKU, e.Wanted, e.Available)
}

// FlakyPayments fails the first FailFirst charges with a transient error.
type FlakyPayments struct {
	FailFirst int32
	Latency   time.Duration
	calls     atomic.Int32
}

// Charge implements Payments.
func (p *FlakyPayments) Charge(ctx context.Context, orderID string, cents int64) (string, error) {
	if err := wait(ctx, p.Latency); err != nil {
		return "", err
	}
	if n := p.calls.Add(1); n <= p.FailFirst {
		return "", fmt.Errorf("payment gateway unavailable (call %d)", n)
	}
	return "ch_" + uuid.NewString()[:8], nil
}

// Calls returns how many charges were attempted.
func (p *FlakyPayments) Calls() int {
	return int(p.calls.Load())
}

// SimulatedShipping books parcels after a delay. Express parcels take half
// as long.
type SimulatedShipping struct {
	Latency time.Duration
}

// Ship implements Shipping.
func (s *SimulatedShipping) Ship(ctx context.Context, orderID string, express bool) (string, error) {
	d := s.Latency
	if express {
		d /= 2
	}
	if err := wait(ctx, d); err != nil {
		return "", err
	}
	return fmt.Sprintf("TRK%06d", rand.IntN(1_000_000)), nil
}

// LogNotifier writes notifications to the logger carried by ctx.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(ctx context.Context, orderID, message string) error {
	logging.FromContext(ctx).Info("customer notified", "order_id", orderID, "message", message)
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
