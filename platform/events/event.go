// Package events implements the in-process event bus that carries domain
// signals (lead updates, score calculations, workflow outcomes) between
// the service's bounded contexts.
package events

import (
	"context"
	"time"
)

// Event is implemented by every domain event put on the bus.
type Event interface {
	// EventName is the stable identifier handlers subscribe to.
	EventName() string
	// OccurredAt is the moment the event was raised.
	OccurredAt() time.Time
}

// BaseEvent supplies the timestamp every concrete event embeds.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt returns the embedded timestamp.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps a BaseEvent with the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler consumes events of one subscribed type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc lets a plain function subscribe as a Handler.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle invokes the wrapped function.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes domain events to subscribed handlers.
type Bus interface {
	// Publish delivers the event asynchronously; handler failures are
	// logged, not returned.
	Publish(ctx context.Context, event Event)

	// PublishSync delivers the event and waits for every handler,
	// joining their errors.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler for the name an event reports via
	// EventName.
	Subscribe(eventName string, handler Handler)
}
