package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dshills/evbus/internal/event"
)

// ErrOutOfStock is returned by Inventory when an order cannot be reserved.
var ErrOutOfStock = errors.New("out of stock")

// ErrInvalidOrder is returned by Inventory for malformed orders.
var ErrInvalidOrder = errors.New("invalid order")

// AuditLog records the name of every event it sees.
// It is safe for concurrent use.
type AuditLog struct {
	mu      sync.Mutex
	entries []string
}

// NewAuditLog creates an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// EventHandlers implements event.Listener.
func (a *AuditLog) EventHandlers() []event.Handler {
	lowest := event.WithPriority(event.PriorityLowest)
	return []event.Handler{
		event.On("auditUserCreated", a.userCreated, lowest),
		event.On("auditUserDeleted", a.userDeleted, lowest),
		event.On("auditOrderPlaced", a.orderPlaced, lowest),
	}
}

func (a *AuditLog) userCreated(ev UserCreated) { a.record(ev, ev.UserID) }
func (a *AuditLog) userDeleted(ev UserDeleted) { a.record(ev, ev.UserID) }
func (a *AuditLog) orderPlaced(ev OrderPlaced) { a.record(ev, ev.OrderID) }

func (a *AuditLog) record(ev event.Event, subject string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, ev.EventName()+" "+subject)
}

// Entries returns the recorded entries in arrival order.
func (a *AuditLog) Entries() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	copy(out, a.entries)
	return out
}

// Mailer queues a welcome message for every new user.
type Mailer struct {
	mu     sync.Mutex
	outbox []string
}

// NewMailer creates a mailer with an empty outbox.
func NewMailer() *Mailer {
	return &Mailer{}
}

// EventHandlers implements event.Listener.
func (m *Mailer) EventHandlers() []event.Handler {
	return []event.Handler{
		event.On("welcome", m.welcome, event.WithPriority(event.PriorityHigh)),
	}
}

func (m *Mailer) welcome(ev UserCreated) error {
	if ev.Email == "" {
		return fmt.Errorf("welcome %s: missing email", ev.UserID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outbox = append(m.outbox, ev.Email)
	return nil
}

// Outbox returns the addresses that were sent a welcome message.
func (m *Mailer) Outbox() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.outbox))
	copy(out, m.outbox)
	return out
}

// Inventory reserves stock for placed orders.
type Inventory struct {
	mu       sync.Mutex
	stock    map[string]int
	reserved map[string]int
}

// NewInventory creates an inventory with the given stock levels.
func NewInventory(stock map[string]int) *Inventory {
	s := make(map[string]int, len(stock))
	for k, v := range stock {
		s[k] = v
	}
	return &Inventory{
		stock:    s,
		reserved: make(map[string]int),
	}
}

// EventHandlers implements event.Listener.
func (i *Inventory) EventHandlers() []event.Handler {
	return []event.Handler{event.On("reserve", i.reserve)}
}

func (i *Inventory) reserve(_ context.Context, ev OrderPlaced) error {
	if ev.SKU == "" || ev.Quantity <= 0 {
		return fmt.Errorf("order %s: %w", ev.OrderID, ErrInvalidOrder)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.stock[ev.SKU] < ev.Quantity {
		return fmt.Errorf("order %s: %s: %w", ev.OrderID, ev.SKU, ErrOutOfStock)
	}
	i.stock[ev.SKU] -= ev.Quantity
	i.reserved[ev.OrderID] += ev.Quantity
	return nil
}

// Stock returns the remaining stock for sku.
func (i *Inventory) Stock(sku string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stock[sku]
}

// Reserved returns the quantity reserved for an order.
func (i *Inventory) Reserved(orderID string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.reserved[orderID]
}
