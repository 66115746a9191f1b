package events

// Event type constants for kelindar/event.
const (
	TypeFrameQueued uint32 = iota + 1
	TypeFrameDelivered
	TypeFrameDequeued
	TypeFrameCancelled
	TypeStreamStateChanged
	TypeDeviceRegistered
	TypeQueueMetrics
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// FrameQueuedEvent is published when a buffer is handed to the engine.
type FrameQueuedEvent struct {
	Device    string `json:"device" example:"/dev/video0" doc:"Video node path"`
	Index     uint32 `json:"index" example:"0" doc:"Buffer index"`
	TargetNs  int64  `json:"target_ns" example:"1500000000" doc:"Target delivery time, monotonic nanoseconds"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FrameQueuedEvent.
func (e FrameQueuedEvent) Type() uint32 { return TypeFrameQueued }

// FrameDeliveredEvent is published when a buffer becomes ready for dequeue.
type FrameDeliveredEvent struct {
	Device     string `json:"device" example:"/dev/video0" doc:"Video node path"`
	Index      uint32 `json:"index" example:"0" doc:"Buffer index"`
	Sequence   uint32 `json:"sequence" example:"42" doc:"Frame sequence number"`
	LatenessNs int64  `json:"lateness_ns" example:"120000" doc:"Delivery time past the target"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FrameDeliveredEvent.
func (e FrameDeliveredEvent) Type() uint32 { return TypeFrameDelivered }

// FrameDequeuedEvent is published when a consumer takes a ready buffer.
type FrameDequeuedEvent struct {
	Device    string `json:"device" example:"/dev/video0" doc:"Video node path"`
	Index     uint32 `json:"index" example:"0" doc:"Buffer index"`
	Sequence  uint32 `json:"sequence" example:"42" doc:"Frame sequence number"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FrameDequeuedEvent.
func (e FrameDequeuedEvent) Type() uint32 { return TypeFrameDequeued }

// FrameCancelledEvent is published when a pending delivery is cancelled by
// stream off.
type FrameCancelledEvent struct {
	Device    string `json:"device" example:"/dev/video0" doc:"Video node path"`
	Index     uint32 `json:"index" example:"0" doc:"Buffer index"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FrameCancelledEvent.
func (e FrameCancelledEvent) Type() uint32 { return TypeFrameCancelled }

// StreamStateChangedEvent represents a streaming state transition.
type StreamStateChangedEvent struct {
	Device    string `json:"device" example:"/dev/video0" doc:"Video node path"`
	From      string `json:"from" example:"allocated" doc:"Previous state"`
	To        string `json:"to" example:"streaming" doc:"New state"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStateChangedEvent.
func (e StreamStateChangedEvent) Type() uint32 { return TypeStreamStateChanged }

// IsStreaming reports whether the new state is streaming.
func (e StreamStateChangedEvent) IsStreaming() bool {
	return e.To == "streaming"
}

// DeviceRegisteredEvent represents a device node appearing or going away.
type DeviceRegisteredEvent struct {
	Device    string `json:"device" example:"/dev/video0" doc:"Video node path"`
	Name      string `json:"name" example:"Fake Webcam" doc:"Device name"`
	Action    string `json:"action" example:"registered" doc:"Action type: registered, unregistered"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceRegisteredEvent.
func (e DeviceRegisteredEvent) Type() uint32 { return TypeDeviceRegistered }

// QueueMetricsEvent carries periodic per-device queue statistics.
type QueueMetricsEvent struct {
	EventType       string `json:"type"`
	Device          string `json:"device"`
	FPS             string `json:"fps"`
	FramesDelivered string `json:"frames_delivered"`
	FramesDequeued  string `json:"frames_dequeued"`
	FramesCancelled string `json:"frames_cancelled"`
	PendingBuffers  string `json:"pending_buffers"`
	Streaming       bool   `json:"streaming"`
}

// Type returns the event type identifier for QueueMetricsEvent.
func (e QueueMetricsEvent) Type() uint32 { return TypeQueueMetrics }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"api" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
