package device

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/smazurov/fakewebcam/internal/vb2"
)

// File is an open handle on a device.
type File struct {
	dev         *Device
	nonblocking bool
	closed      bool
}

// Open returns a new file handle. O_NONBLOCK in flags makes dequeue and read
// return ErrWouldBlock instead of waiting.
func (d *Device) Open(flags int) (*File, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.registered {
		return nil, vb2.NewError(vb2.ErrCodeNoDevice, "device unregistered", nil)
	}
	d.files++
	return &File{dev: d, nonblocking: flags&unix.O_NONBLOCK != 0}, nil
}

// Device returns the device the file was opened on.
func (f *File) Device() *Device { return f.dev }

// NonBlocking reports whether the file was opened with O_NONBLOCK.
func (f *File) NonBlocking() bool { return f.nonblocking }

// Ioctl dispatches a request on this file.
func (f *File) Ioctl(ctx context.Context, cmd uint32, arg any) error {
	return f.dev.Ioctl(ctx, f, cmd, arg)
}

// Read copies frame data into p, starting the read emulator on first use.
func (f *File) Read(ctx context.Context, p []byte) (int, error) {
	d := f.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := f.check(); err != nil {
		return 0, err
	}
	if err := d.checkOwner(f); err != nil {
		return 0, err
	}
	if err := d.startFileIO(f); err != nil {
		return 0, err
	}
	return d.queue.Read(ctx, p, f.nonblocking)
}

// Poll reports readiness. With wait set it blocks until the mask is non-empty
// or ctx is done.
func (f *File) Poll(ctx context.Context, wait bool) (vb2.PollEvents, error) {
	d := f.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := f.check(); err != nil {
		return vb2.PollErr, err
	}
	if err := d.checkOwner(f); err != nil {
		return vb2.PollErr, err
	}

	// A failed start leaves the queue idle and Poll reports PollErr.
	_ = d.startFileIO(f)
	if wait {
		return d.queue.WaitPoll(ctx)
	}
	return d.queue.Poll(), nil
}

// Mmap returns the memory of the buffer at offset. The slice is valid until the
// buffers are freed.
func (f *File) Mmap(offset uint32) ([]byte, error) {
	d := f.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := f.check(); err != nil {
		return nil, err
	}
	return d.queue.Mmap(offset)
}

// Close releases the handle. Closing the file that owns streaming I/O stops
// streaming and frees the buffers.
func (f *File) Close() error {
	d := f.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	d.files--

	if d.owner != f {
		return nil
	}
	d.owner = nil
	if !d.registered {
		return nil
	}
	return d.releaseQueue()
}

func (f *File) check() error {
	if f.closed {
		return vb2.NewError(vb2.ErrCodeInvalidArgument, "file closed", nil)
	}
	if !f.dev.registered {
		return vb2.NewError(vb2.ErrCodeNoDevice, "device unregistered", nil)
	}
	return nil
}

// startFileIO starts the read emulator on an idle queue and makes f its owner
// before any wait releases the lock.
func (d *Device) startFileIO(f *File) error {
	if !d.queue.FileIOActive() && d.queue.State() == vb2.StreamIdle {
		if err := d.queue.StartFileIO(); err != nil {
			return err
		}
	}
	if d.owner == nil && d.queue.FileIOActive() {
		d.owner = f
	}
	return nil
}
