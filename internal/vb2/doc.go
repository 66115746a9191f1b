// Package vb2 emulates a kernel capture buffer queue in user space.
//
// A Queue owns a fixed pool of NumBuffers single-plane buffers. Callers move
// buffers through Free, QueuedPending, QueuedReady and Dequeued with QBuf and
// DQBuf while the queue is streaming. A Pacer stamps each queued buffer with a
// target time and a single Scheduler goroutine marks it ready once that time
// has passed. Ready buffers are dequeued in delivery order.
//
// All queue methods share one serialization lock supplied by the owner, in the
// same way a driver hands its mutex to the kernel queue. Blocking calls wait on
// a condition variable bound to that lock.
package vb2
