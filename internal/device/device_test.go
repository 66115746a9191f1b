package device

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sys/unix"

	"github.com/smazurov/fakewebcam/internal/events"
	"github.com/smazurov/fakewebcam/internal/vb2"
	"github.com/smazurov/fakewebcam/pkg/linuxav/v4l2"
)

var errHost = errors.New("host failure")

type heapAllocator struct{}

func (heapAllocator) Alloc(size int) ([]byte, error) { return make([]byte, size), nil }
func (heapAllocator) Free([]byte) error              { return nil }

// fakeHost records every call and fails the one named in failOn.
type fakeHost struct {
	calls  []string
	failOn string
}

func (h *fakeHost) record(call string) error {
	h.calls = append(h.calls, call)
	if call == h.failOn {
		return errHost
	}
	return nil
}

func (h *fakeHost) RegisterParent(string) error { return h.record("RegisterParent") }
func (h *fakeHost) UnregisterParent(string)     { _ = h.record("UnregisterParent") }

func (h *fakeHost) AllocNode(name string) (*Node, error) {
	if err := h.record("AllocNode"); err != nil {
		return nil, err
	}
	return &Node{Name: name, Minor: -1}, nil
}

func (h *fakeHost) ReleaseNode(*Node) { _ = h.record("ReleaseNode") }

func (h *fakeHost) RegisterNode(node *Node, _ *Device) error {
	if err := h.record("RegisterNode"); err != nil {
		return err
	}
	node.Minor = 99
	node.Path = "/dev/video-fake"
	return nil
}

func (h *fakeHost) UnregisterNode(*Node) { _ = h.record("UnregisterNode") }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions(host Host) Options {
	return Options{
		Host:      host,
		Clock:     clockwork.NewFakeClock(),
		Allocator: heapAllocator{},
		Logger:    discardLogger(),
	}
}

func newTestDevice(t *testing.T, host Host, configure func(*Options)) *Device {
	t.Helper()
	opts := testOptions(host)
	if configure != nil {
		configure(&opts)
	}
	d, err := Register(opts)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	t.Cleanup(func() { _ = d.Unregister() })
	return d
}

func openFile(t *testing.T, d *Device, flags int) *File {
	t.Helper()
	f, err := d.Open(flags)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRegisterRequiresHost(t *testing.T) {
	if _, err := Register(Options{Logger: discardLogger()}); !errors.Is(err, vb2.ErrInvalidArgument) {
		t.Errorf("Register() error = %v, want invalid argument", err)
	}
}

func TestRegisterUnwindsInReverseOrder(t *testing.T) {
	tests := []struct {
		name   string
		failOn string
		want   []string
	}{
		{
			name:   "parent",
			failOn: "RegisterParent",
			want:   []string{"RegisterParent"},
		},
		{
			name:   "alloc node",
			failOn: "AllocNode",
			want:   []string{"RegisterParent", "AllocNode", "UnregisterParent"},
		},
		{
			name:   "register node",
			failOn: "RegisterNode",
			want:   []string{"RegisterParent", "AllocNode", "RegisterNode", "ReleaseNode", "UnregisterParent"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := &fakeHost{failOn: tt.failOn}
			d, err := Register(testOptions(host))
			if !errors.Is(err, errHost) {
				t.Fatalf("Register() error = %v, want %v", err, errHost)
			}
			if d != nil {
				t.Error("Register() returned a device on failure")
			}
			if !reflect.DeepEqual(host.calls, tt.want) {
				t.Errorf("calls = %v, want %v", host.calls, tt.want)
			}
		})
	}
}

func TestRegisterAndUnregister(t *testing.T) {
	host := &fakeHost{}
	d, err := Register(testOptions(host))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if d.Name() != DefaultName {
		t.Errorf("Name() = %q, want %q", d.Name(), DefaultName)
	}
	if d.Path() != "/dev/video-fake" {
		t.Errorf("Path() = %q, want /dev/video-fake", d.Path())
	}
	st := d.Status()
	if !st.Registered || st.State != vb2.StreamIdle {
		t.Errorf("Status() = %+v, want registered and idle", st)
	}

	f, err := d.Open(0)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	host.calls = nil
	if err := d.Unregister(); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
	want := []string{"UnregisterNode", "ReleaseNode", "UnregisterParent"}
	if !reflect.DeepEqual(host.calls, want) {
		t.Errorf("calls = %v, want %v", host.calls, want)
	}

	// Second unregister is a no-op.
	host.calls = nil
	if err := d.Unregister(); err != nil {
		t.Errorf("second Unregister() error = %v", err)
	}
	if len(host.calls) != 0 {
		t.Errorf("second Unregister() calls = %v, want none", host.calls)
	}

	if _, err := d.Open(0); !errors.Is(err, vb2.ErrNoDevice) {
		t.Errorf("Open() after unregister error = %v, want no device", err)
	}
	var c v4l2.Capability
	if err := f.Ioctl(context.Background(), v4l2.VIDIOC_QUERYCAP, &c); !errors.Is(err, vb2.ErrNoDevice) {
		t.Errorf("ioctl after unregister error = %v, want no device", err)
	}
	if _, err := f.Read(context.Background(), make([]byte, 16)); !errors.Is(err, vb2.ErrNoDevice) {
		t.Errorf("Read() after unregister error = %v, want no device", err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close() after unregister error = %v", err)
	}
}

func TestUnregisterWhileStreaming(t *testing.T) {
	d, err := Register(testOptions(&fakeHost{}))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	f, err := d.Open(0)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	startStreaming(t, f)

	if err := d.Unregister(); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
	if st := d.Status(); st.State != vb2.StreamIdle || len(st.Buffers) != 0 {
		t.Errorf("Status() = %+v, want idle with no buffers", st)
	}
}

func TestPathStableAcrossUnregister(t *testing.T) {
	reg := NewRegistry(1, discardLogger())
	opts := testOptions(reg)
	d, err := Register(opts)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	stop := make(chan struct{})
	readers := make(chan string, 4)
	for range cap(readers) {
		go func() {
			last := d.Path()
			for {
				select {
				case <-stop:
					readers <- last
					return
				default:
					last = d.Path()
					_ = d.Status()
				}
			}
		}()
	}

	if err := d.Unregister(); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
	close(stop)
	for range cap(readers) {
		if got := <-readers; got != "/dev/video0" {
			t.Errorf("Path() seen by reader = %q, want /dev/video0", got)
		}
	}
	if got := d.Path(); got != "/dev/video0" {
		t.Errorf("Path() after Unregister = %q, want /dev/video0", got)
	}
	if _, ok := reg.Lookup("/dev/video0"); ok {
		t.Error("node still registered after Unregister")
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(2, discardLogger())
	register := func(name string) (*Device, error) {
		opts := testOptions(reg)
		opts.Name = name
		return Register(opts)
	}

	a, err := register("a")
	if err != nil {
		t.Fatalf("Register(a) error = %v", err)
	}
	b, err := register("b")
	if err != nil {
		t.Fatalf("Register(b) error = %v", err)
	}
	if a.Path() != "/dev/video0" || b.Path() != "/dev/video1" {
		t.Errorf("paths = %s, %s, want /dev/video0, /dev/video1", a.Path(), b.Path())
	}

	if _, err := register("c"); !errors.Is(err, vb2.ErrResourceExhausted) {
		t.Fatalf("Register(c) error = %v, want resource exhausted", err)
	}
	if got := reg.parents[DriverName]; got != 2 {
		t.Errorf("parent refs after failed register = %d, want 2", got)
	}

	devs := reg.Devices()
	if len(devs) != 2 || devs[0] != a || devs[1] != b {
		t.Errorf("Devices() = %v, want [a b]", devs)
	}
	if got, ok := reg.Lookup("/dev/video1"); !ok || got != b {
		t.Errorf("Lookup(/dev/video1) = %v, %v", got, ok)
	}

	f, err := reg.Open("/dev/video0", unix.O_NONBLOCK)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !f.NonBlocking() || f.Device() != a {
		t.Errorf("Open() file = %+v, want nonblocking on a", f)
	}
	_ = f.Close()

	if _, err := reg.Open("/dev/video7", 0); err == nil {
		t.Error("Open() of unknown path succeeded")
	}

	if err := a.Unregister(); err != nil {
		t.Fatalf("Unregister(a) error = %v", err)
	}
	if _, ok := reg.Lookup("/dev/video0"); ok {
		t.Error("Lookup() found unregistered node")
	}

	// The freed minor is reused.
	c, err := register("c")
	if err != nil {
		t.Fatalf("Register(c) after unregister error = %v", err)
	}
	if c.Path() != "/dev/video0" {
		t.Errorf("Path() = %s, want /dev/video0", c.Path())
	}

	_ = b.Unregister()
	_ = c.Unregister()
	if len(reg.parents) != 0 {
		t.Errorf("parents = %v, want none", reg.parents)
	}
}

func TestStateChangeEvents(t *testing.T) {
	bus := events.New()
	ch := make(chan events.StreamStateChangedEvent, 8)
	unsub := bus.Subscribe(func(e events.StreamStateChangedEvent) { ch <- e })
	defer unsub()

	d := newTestDevice(t, &fakeHost{}, func(o *Options) { o.Events = bus })
	f := openFile(t, d, 0)

	req := v4l2.RequestBuffers{Count: 4, Type: v4l2.BufTypeVideoCapture, Memory: v4l2.MemoryMMAP}
	if err := f.Ioctl(context.Background(), v4l2.VIDIOC_REQBUFS, &req); err != nil {
		t.Fatalf("REQBUFS error = %v", err)
	}

	select {
	case e := <-ch:
		if e.From != string(vb2.StreamIdle) || e.To != string(vb2.StreamAllocated) {
			t.Errorf("event = %s -> %s, want idle -> allocated", e.From, e.To)
		}
		if e.Device != d.Path() {
			t.Errorf("event device = %s, want %s", e.Device, d.Path())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for state change event")
	}
}
