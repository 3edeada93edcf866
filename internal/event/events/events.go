package events

import (
	"time"

	"github.com/dshills/evbus/internal/event"
)

// Event names.
const (
	// NameUserCreated is posted after a user account is created.
	NameUserCreated = "user.created"

	// NameUserDeleted is posted after a user account is deleted.
	NameUserDeleted = "user.deleted"

	// NameOrderPlaced is posted when a customer places an order.
	NameOrderPlaced = "order.placed"
)

// UserCreated is posted after a user account is created.
type UserCreated struct {
	// UserID identifies the new user.
	UserID string `json:"user_id"`

	// Email is the user's contact address.
	Email string `json:"email"`

	// CreatedAt is when the account was created.
	CreatedAt time.Time `json:"created_at"`
}

// EventName implements event.Event.
func (UserCreated) EventName() string { return NameUserCreated }

// UserDeleted is posted after a user account is deleted.
type UserDeleted struct {
	// UserID identifies the removed user.
	UserID string `json:"user_id"`

	// Reason is a free-form deletion reason.
	Reason string `json:"reason,omitempty"`
}

// EventName implements event.Event.
func (UserDeleted) EventName() string { return NameUserDeleted }

// OrderPlaced is posted when a customer places an order.
type OrderPlaced struct {
	// OrderID identifies the order.
	OrderID string `json:"order_id"`

	// UserID identifies the customer.
	UserID string `json:"user_id"`

	// SKU is the ordered item.
	SKU string `json:"sku"`

	// Quantity is the number of items ordered.
	Quantity int `json:"quantity"`
}

// EventName implements event.Event.
func (OrderPlaced) EventName() string { return NameOrderPlaced }

// Catalog returns a catalog containing every event in this package.
func Catalog() *event.Catalog {
	c := event.NewCatalog()
	event.MustDefine[UserCreated](c)
	event.MustDefine[UserDeleted](c)
	event.MustDefine[OrderPlaced](c)
	return c
}
