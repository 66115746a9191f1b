package vb2

// State is the ownership state of a single buffer.
type State string

// Buffer states.
const (
	StateFree          State = "free"           // Not handed to the engine
	StateQueuedPending State = "queued-pending" // Queued, delivery not yet due
	StateQueuedReady   State = "queued-ready"   // Delivered, visible to dequeue
	StateDequeued      State = "dequeued"       // Owned by the caller
)

// StreamState is the state of the queue's streaming state machine.
type StreamState string

// Streaming states.
const (
	StreamIdle      StreamState = "idle"      // No buffers allocated
	StreamAllocated StreamState = "allocated" // Buffers allocated, not streaming
	StreamStreaming StreamState = "streaming" // Enqueued buffers are delivered
)
