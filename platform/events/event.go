// Package events is the in-process publish/subscribe layer modules use to
// react to each other's state changes without importing one another.
package events

import (
	"context"
	"time"
)

// Event is anything published on a Bus. EventName doubles as the
// subscription key, so it must be stable across releases.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent carries the timestamp every event needs. Embed it.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps the current UTC time.
func NewBaseEvent() BaseEvent {
	return At(time.Now())
}

// At stamps t, for publishers that run on an injected clock or relay a
// record that already has its own time.
func At(t time.Time) BaseEvent {
	return BaseEvent{Timestamp: t.UTC()}
}

// Handler reacts to one event. Returned errors are logged by the bus.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc lets a plain function subscribe.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus routes events to handlers subscribed under EventName.
type Bus interface {
	// Publish fans event out asynchronously; handlers run after the caller's
	// context is done, so they must not depend on its cancellation.
	Publish(ctx context.Context, event Event)
	// PublishSync runs handlers in subscription order and joins their errors.
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}
