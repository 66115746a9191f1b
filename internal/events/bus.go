// Package events is the in-process event bus for device, stream and log events.
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(FrameDeliveredEvent{...})
func (b *Bus) Publish(ev Event) {
	// kelindar/event dispatches on the static type, so each event needs its own case
	switch e := ev.(type) {
	case FrameQueuedEvent:
		event.Publish(b.dispatcher, e)
	case FrameDeliveredEvent:
		event.Publish(b.dispatcher, e)
	case FrameDequeuedEvent:
		event.Publish(b.dispatcher, e)
	case FrameCancelledEvent:
		event.Publish(b.dispatcher, e)
	case StreamStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case DeviceRegisteredEvent:
		event.Publish(b.dispatcher, e)
	case QueueMetricsEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function
// The handler type determines which events it receives
// Returns an unsubscribe function
// Usage: unsub := bus.Subscribe(func(e StreamStateChangedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(FrameQueuedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameDeliveredEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameDequeuedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FrameCancelledEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StreamStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceRegisteredEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(QueueMetricsEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Return a no-op function if handler type is not recognized
		return func() {}
	}
}
