// Package device exposes a vb2 queue as a fixed-format capture device: a context
// object registered with a Host, an ioctl table and per-open file handles.
package device

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/smazurov/fakewebcam/internal/events"
	"github.com/smazurov/fakewebcam/internal/metrics"
	"github.com/smazurov/fakewebcam/internal/pattern"
	"github.com/smazurov/fakewebcam/internal/vb2"
)

// Options configures a device registration.
type Options struct {
	// Name is the node and input name. Defaults to DefaultName.
	Name string

	// Host is the framework the device registers with (required).
	Host Host

	// Clock drives frame pacing. The real clock is used when nil.
	Clock clockwork.Clock

	// Allocator provides buffer memory. Anonymous mmap on Linux when nil.
	Allocator vb2.Allocator

	// Pattern enables the test pattern. Frames are left untouched otherwise.
	Pattern bool

	// Events receives buffer, stream and registration events (optional).
	Events *events.Bus

	// Logger for device operations. If nil, uses slog.Default().
	Logger *slog.Logger

	// QueueLogger for buffer queue operations. Logger is used when nil.
	QueueLogger *slog.Logger
}

// Device is one registered capture device. Every file and ioctl operation is
// serialized by the device lock, which the buffer queue shares.
type Device struct {
	name   string
	host   Host
	events *events.Bus
	logger *slog.Logger

	mu         sync.Mutex
	queue      *vb2.Queue
	node       *Node
	path       string
	owner      *File
	files      int
	registered bool
}

// Register creates a device and registers it with the host: parent first, then
// the buffer queue, then the node. A failing step undoes the completed ones in
// reverse order.
func Register(opts Options) (*Device, error) {
	if opts.Host == nil {
		return nil, vb2.NewError(vb2.ErrCodeInvalidArgument, "host is required", nil)
	}

	d := &Device{
		name:   opts.Name,
		host:   opts.Host,
		events: opts.Events,
		logger: opts.Logger,
	}
	if d.name == "" {
		d.name = DefaultName
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}

	var undo []func()
	fail := func(step string, err error) (*Device, error) {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		d.logger.Error("Device registration failed", "name", d.name, "step", step, "error", err)
		return nil, fmt.Errorf("%s: %w", step, err)
	}

	if err := d.host.RegisterParent(DriverName); err != nil {
		return fail("register parent", err)
	}
	undo = append(undo, func() { d.host.UnregisterParent(DriverName) })

	queueLogger := opts.QueueLogger
	if queueLogger == nil {
		queueLogger = d.logger
	}
	queueOpts := vb2.QueueOptions{
		BufferSize: SizeImage,
		Lock:       &d.mu,
		Clock:      opts.Clock,
		Allocator:  opts.Allocator,
		Hooks:      d.hooks(),
		Logger:     queueLogger.With("queue", d.name),
	}
	if opts.Pattern {
		gen, err := pattern.NewGenerator(Width, Height, d.name)
		if err != nil {
			return fail("init pattern", err)
		}
		queueOpts.Filler = gen.Fill
	}
	queue, err := vb2.NewQueue(queueOpts)
	if err != nil {
		return fail("init queue", err)
	}
	d.queue = queue
	undo = append(undo, func() { _ = queue.Release() })

	node, err := d.host.AllocNode(d.name)
	if err != nil {
		return fail("allocate node", err)
	}
	d.node = node
	undo = append(undo, func() { d.host.ReleaseNode(node) })

	d.mu.Lock()
	d.registered = true
	d.mu.Unlock()
	if err := d.host.RegisterNode(node, d); err != nil {
		d.mu.Lock()
		d.registered = false
		d.mu.Unlock()
		return fail("register node", err)
	}
	d.mu.Lock()
	d.path = node.Path
	path := d.path
	d.mu.Unlock()

	metrics.RecordDeviceRegistered(path)
	d.publish(events.DeviceRegisteredEvent{
		Device:    path,
		Name:      d.name,
		Action:    "registered",
		Timestamp: time.Now().Format(time.RFC3339),
	})
	d.logger.Info("Device registered", "name", d.name, "path", path)
	return d, nil
}

// Unregister removes the node, stops streaming, frees every buffer, stops frame
// delivery and drops the parent registration. Open files fail afterwards.
func (d *Device) Unregister() error {
	d.mu.Lock()
	if !d.registered {
		d.mu.Unlock()
		return nil
	}
	d.registered = false
	d.owner = nil
	path := d.path
	d.mu.Unlock()

	d.host.UnregisterNode(d.node)
	err := d.queue.Release()
	d.host.ReleaseNode(d.node)
	d.host.UnregisterParent(DriverName)

	metrics.RecordDeviceUnregistered(path)
	d.publish(events.DeviceRegisteredEvent{
		Device:    path,
		Name:      d.name,
		Action:    "unregistered",
		Timestamp: time.Now().Format(time.RFC3339),
	})
	d.logger.Info("Device unregistered", "name", d.name, "path", path)
	if err != nil {
		return fmt.Errorf("release queue: %w", err)
	}
	return nil
}

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// Path returns the node path, e.g. /dev/video0. It keeps the last path after
// Unregister.
func (d *Device) Path() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.path
}

// Status is a snapshot of the device and its queue.
type Status struct {
	Name       string
	Path       string
	Registered bool
	State      vb2.StreamState
	FileIO     bool
	OpenFiles  int
	NextTime   int64
	Buffers    []vb2.BufferInfo
}

// Status returns a snapshot of the device.
func (d *Device) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		Name:       d.name,
		Path:       d.path,
		Registered: d.registered,
		State:      d.queue.State(),
		FileIO:     d.queue.FileIOActive(),
		OpenFiles:  d.files,
		NextTime:   d.queue.NextTime(),
		Buffers:    d.queue.Buffers(),
	}
}

// label identifies the device in metrics and events. The caller holds d.mu.
func (d *Device) label() string {
	if d.path != "" {
		return d.path
	}
	return d.name
}

func (d *Device) publish(ev events.Event) {
	if d.events != nil {
		d.events.Publish(ev)
	}
}

// hooks wires queue transitions to metrics and events. They run under the
// device lock.
func (d *Device) hooks() vb2.Hooks {
	now := func() string { return time.Now().Format(time.RFC3339Nano) }
	return vb2.Hooks{
		OnQueued: func(info vb2.BufferInfo) {
			metrics.RecordFrameQueued(d.label())
			d.publish(events.FrameQueuedEvent{
				Device:    d.label(),
				Index:     info.Index,
				TargetNs:  info.Timestamp,
				Timestamp: now(),
			})
		},
		OnDone: func(info vb2.BufferInfo, lateness time.Duration) {
			metrics.RecordFrameDelivered(d.label(), lateness)
			d.publish(events.FrameDeliveredEvent{
				Device:     d.label(),
				Index:      info.Index,
				Sequence:   info.Sequence,
				LatenessNs: lateness.Nanoseconds(),
				Timestamp:  now(),
			})
		},
		OnDequeued: func(info vb2.BufferInfo) {
			metrics.RecordFrameDequeued(d.label())
			d.publish(events.FrameDequeuedEvent{
				Device:    d.label(),
				Index:     info.Index,
				Sequence:  info.Sequence,
				Timestamp: now(),
			})
		},
		OnCancelled: func(info vb2.BufferInfo) {
			metrics.RecordFrameCancelled(d.label())
			d.publish(events.FrameCancelledEvent{
				Device:    d.label(),
				Index:     info.Index,
				Timestamp: now(),
			})
		},
		OnStateChange: func(oldState, newState vb2.StreamState) {
			metrics.SetStreaming(d.label(), newState == vb2.StreamStreaming)
			d.publish(events.StreamStateChangedEvent{
				Device:    d.label(),
				From:      string(oldState),
				To:        string(newState),
				Timestamp: now(),
			})
			d.logger.Debug("Stream state changed", "from", oldState, "to", newState)
		},
	}
}

// checkOwner rejects streaming I/O from a file other than the one that owns it.
func (d *Device) checkOwner(f *File) error {
	if d.owner != nil && d.owner != f {
		return vb2.NewError(vb2.ErrCodeBusy, "streaming I/O owned by another file", nil)
	}
	return nil
}

// releaseQueue returns the queue to Idle on behalf of its owner.
func (d *Device) releaseQueue() error {
	if d.queue.FileIOActive() {
		return d.queue.StopFileIO()
	}
	if d.queue.State() == vb2.StreamStreaming {
		if err := d.queue.StreamOff(); err != nil {
			return err
		}
	}
	_, err := d.queue.ReqBufs(0)
	return err
}
