package engine

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies engine events.
type EventType string

const (
	// EventEstimate is emitted after every successful estimation call.
	EventEstimate EventType = "estimate"

	// EventUpdate is emitted after every attempted model update,
	// whatever its outcome.
	EventUpdate EventType = "update"

	// EventError is emitted when a model call fails.
	EventError EventType = "error"
)

// Event is a notification about one engine operation.
type Event struct {
	ID    string
	Type  EventType
	Model string

	// TotalCost is set on estimate events.
	TotalCost float64

	// Outcome is set on update events ("applied", "rejected",
	// "unsupported").
	Outcome string

	// Err is set on error events.
	Err error

	At time.Time
}

// Listener receives engine events. Listeners are invoked synchronously
// outside the engine's locks and must be safe for concurrent calls.
type Listener func(Event)

func newEvent(t EventType, model string) Event {
	return Event{
		ID:    uuid.NewString(),
		Type:  t,
		Model: model,
		At:    time.Now(),
	}
}
