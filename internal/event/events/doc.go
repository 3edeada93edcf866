// Package events defines the example domain events and listeners used by the
// evbus command.
//
// Each event type carries a name constant used for logging and for script
// lookups through Catalog:
//
//   - User events: user.created, user.deleted
//   - Order events: order.placed
//
// The listeners show the three common shapes of a bus consumer: Mailer reacts
// early to a single event, Inventory validates and can fail, and AuditLog
// observes everything at the lowest priority.
//
// # Usage
//
//	bus := event.NewBus()
//	audit := events.NewAuditLog()
//	bus.Register(audit)
//	bus.Post(events.UserCreated{UserID: "u-1", Email: "a@example.com"})
package events
