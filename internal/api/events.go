package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/fakewebcam/internal/api/models"
	"github.com/smazurov/fakewebcam/internal/events"
)

// registerSSERoutes registers the device event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time device registration, stream state and, on request, per-frame events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"device-registered":    events.DeviceRegisteredEvent{},
		"stream-state-changed": events.StreamStateChangedEvent{},
		"frame-queued":         events.FrameQueuedEvent{},
		"frame-delivered":      events.FrameDeliveredEvent{},
		"frame-dequeued":       events.FrameDequeuedEvent{},
		"frame-cancelled":      events.FrameCancelledEvent{},
	}, func(ctx context.Context, input *models.EventsRequest, send sse.Sender) {
		size := 16
		if input.Frames {
			size = 256
		}
		eventCh := make(chan any, size)
		unsubscribe := events.SubscribeDeviceEvents(s.eventBus, eventCh, input.Frames)
		defer unsubscribe()

		// Current devices first, so clients need not list them separately.
		now := time.Now().Format(time.RFC3339Nano)
		for _, dev := range s.registry.Devices() {
			if err := send.Data(events.DeviceRegisteredEvent{
				Device:    dev.Path(),
				Name:      dev.Name(),
				Action:    "registered",
				Timestamp: now,
			}); err != nil {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
