package events

import "github.com/kelindar/event"

// SubscribeToChannel bridges kelindar/event callback-based subscriptions to channels
// This is needed for SSE integration where Huma expects a channel-based select loop.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
			// Drop event if channel is full (non-blocking)
		}
	})
}

// SubscribeDeviceEvents forwards every device, stream and frame event to ch.
// Frame events are only forwarded when withFrames is set.
func SubscribeDeviceEvents(bus *Bus, ch chan<- any, withFrames bool) func() {
	unsubs := []func(){
		SubscribeToChannel[StreamStateChangedEvent](bus, ch),
		SubscribeToChannel[DeviceRegisteredEvent](bus, ch),
	}
	if withFrames {
		unsubs = append(unsubs,
			SubscribeToChannel[FrameQueuedEvent](bus, ch),
			SubscribeToChannel[FrameDeliveredEvent](bus, ch),
			SubscribeToChannel[FrameDequeuedEvent](bus, ch),
			SubscribeToChannel[FrameCancelledEvent](bus, ch),
		)
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
