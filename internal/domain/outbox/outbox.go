// Package outbox declares the in-process event contracts the order flow
// publishes on after a commit.
package outbox

import "context"

// Event is any domain event with a name identifier.
type Event interface {
	EventName() string
}

// Identified is implemented by events that carry a stable id. Consumers use it
// to correlate retries and logs; events without it get a generated id.
type Identified interface {
	EventID() string
}

// Handler processes a published event.
type Handler func(ctx context.Context, e Event) error

// Publisher publishes events to interested subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers for event names.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}
