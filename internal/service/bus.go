package service

import "github.com/joeblew999/plat-rec/internal/store"

// Event represents a resource mutation.
type Event struct {
	Resource string `json:"resource"` // e.g. "rec-resources"
	Action   string `json:"action"`   // "created", "updated", "deleted"
	ID       string `json:"id"`
}

// Event actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// EventBus is a fan-out pub/sub for resource change events. Slow
// subscribers miss events rather than block publishers.
type EventBus = store.Broadcaster[Event]

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return store.NewBroadcaster[Event]()
}
