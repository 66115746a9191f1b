package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/smazurov/fakewebcam/internal/vb2"
	"github.com/smazurov/fakewebcam/pkg/linuxav/v4l2"
)

func TestReadEmulation(t *testing.T) {
	d := newTestDevice(t, &fakeHost{}, func(o *Options) { o.Pattern = true })
	f := openFile(t, d, 0)
	other := openFile(t, d, 0)
	ctx := testContext(t)

	frame := make([]byte, SizeImage)
	n, err := f.Read(ctx, frame)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if n != SizeImage {
		t.Errorf("Read() = %d bytes, want %d", n, SizeImage)
	}

	st := d.Status()
	if !st.FileIO || st.State != vb2.StreamStreaming {
		t.Errorf("Status() = %+v, want streaming with file I/O", st)
	}

	// The reader owns the queue now.
	req := v4l2.RequestBuffers{Count: 4, Type: v4l2.BufTypeVideoCapture, Memory: v4l2.MemoryMMAP}
	if err := other.Ioctl(ctx, v4l2.VIDIOC_REQBUFS, &req); !errors.Is(err, vb2.ErrBusy) {
		t.Errorf("REQBUFS from other file error = %v, want busy", err)
	}
	// And even the reader cannot mix in streaming I/O.
	if err := f.Ioctl(ctx, v4l2.VIDIOC_REQBUFS, &req); !errors.Is(err, vb2.ErrBusy) {
		t.Errorf("REQBUFS from reader error = %v, want busy", err)
	}

	small := make([]byte, 100)
	if n, err := f.Read(ctx, small); err != nil || n != len(small) {
		t.Errorf("short Read() = %d, %v, want %d", n, err, len(small))
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	st = d.Status()
	if st.FileIO || st.State != vb2.StreamIdle {
		t.Errorf("Status() after close = %+v, want idle without file I/O", st)
	}
	if err := other.Ioctl(ctx, v4l2.VIDIOC_REQBUFS, &req); err != nil {
		t.Errorf("REQBUFS after reader closed error = %v", err)
	}
}

func TestReadRejectedDuringStreamingIO(t *testing.T) {
	d := newTestDevice(t, &fakeHost{}, nil)
	f := openFile(t, d, 0)

	req := v4l2.RequestBuffers{Count: 4, Type: v4l2.BufTypeVideoCapture, Memory: v4l2.MemoryMMAP}
	if err := f.Ioctl(context.Background(), v4l2.VIDIOC_REQBUFS, &req); err != nil {
		t.Fatalf("REQBUFS error = %v", err)
	}
	if _, err := f.Read(context.Background(), make([]byte, 16)); !errors.Is(err, vb2.ErrBusy) {
		t.Errorf("Read() error = %v, want busy", err)
	}
}

func TestReaderOwnsQueueWhileWaiting(t *testing.T) {
	d := newTestDevice(t, &fakeHost{}, nil)
	f := openFile(t, d, 0)
	other := openFile(t, d, unix.O_NONBLOCK)
	ctx := testContext(t)

	done := make(chan error, 1)
	go func() {
		frame := make([]byte, SizeImage)
		for range 20 {
			if _, err := f.Read(ctx, frame); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	// Once the emulator runs, no other file may share it, even while the
	// reader is parked waiting for a frame.
	deadline := time.Now().Add(2 * time.Second)
	for !d.Status().FileIO {
		if time.Now().After(deadline) {
			t.Fatal("read emulator never started")
		}
		time.Sleep(time.Millisecond)
	}
	for range 50 {
		if _, err := other.Read(ctx, make([]byte, 16)); !errors.Is(err, vb2.ErrBusy) {
			t.Fatalf("Read() from second file error = %v, want busy", err)
		}
		if _, err := other.Poll(ctx, false); !errors.Is(err, vb2.ErrBusy) {
			t.Fatalf("Poll() from second file error = %v, want busy", err)
		}
	}

	if err := <-done; err != nil {
		t.Fatalf("Read() error = %v", err)
	}
}

func TestPoll(t *testing.T) {
	d := newTestDevice(t, &fakeHost{}, nil)
	f := openFile(t, d, 0)
	ctx := testContext(t)

	// Polling an idle device starts the read emulator.
	events, err := f.Poll(ctx, true)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if events != vb2.PollIn|vb2.PollRdNorm {
		t.Errorf("Poll() = %#x, want readable", events)
	}
	if !d.Status().FileIO {
		t.Error("Poll() did not start file I/O")
	}

	// A queue with buffers but no stream reports an error.
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	g := openFile(t, d, 0)
	req := v4l2.RequestBuffers{Count: 4, Type: v4l2.BufTypeVideoCapture, Memory: v4l2.MemoryMMAP}
	if err := g.Ioctl(ctx, v4l2.VIDIOC_REQBUFS, &req); err != nil {
		t.Fatalf("REQBUFS error = %v", err)
	}
	events, err = g.Poll(ctx, false)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if events != vb2.PollErr {
		t.Errorf("Poll() on allocated queue = %#x, want error", events)
	}
}

func TestMmapWithoutBuffers(t *testing.T) {
	d := newTestDevice(t, &fakeHost{}, nil)
	f := openFile(t, d, 0)
	if _, err := f.Mmap(0); !errors.Is(err, vb2.ErrInvalidArgument) {
		t.Errorf("Mmap() error = %v, want invalid argument", err)
	}
}
