package feed

import "time"

// Event types.
const (
	TypeHello          = "feed.hello"
	TypeCatalogChanged = "catalog.changed"
)

// Catalog actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Event is one message on the wire.
type Event struct {
	Type   string    `json:"type"`
	Entity string    `json:"entity,omitempty"`
	ID     string    `json:"id,omitempty"`
	Action string    `json:"action,omitempty"`
	Actor  string    `json:"actor,omitempty"`
	At     time.Time `json:"at"`
}

// Publisher accepts events for fan-out. Publish must not block.
type Publisher interface {
	Publish(ev Event)
}

// Discard is a Publisher that drops everything.
type Discard struct{}

func (Discard) Publish(Event) {}
