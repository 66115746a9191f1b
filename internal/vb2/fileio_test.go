package vb2

import (
	"bytes"
	"errors"
	"testing"
)

func sequenceFiller(frame []byte, sequence uint32) {
	for i := range frame {
		frame[i] = byte(sequence + 1)
	}
}

func TestReadStartsEmulation(t *testing.T) {
	f := newTestQueue(t, func(o *QueueOptions) { o.Filler = sequenceFiller })
	ctx := testContext(t)
	f.q.Lock()
	defer f.q.Unlock()

	p := make([]byte, testBufferSize)
	n, err := f.q.Read(ctx, p, false)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if n != testBufferSize {
		t.Fatalf("Read() = %d bytes, want %d", n, testBufferSize)
	}
	if !bytes.Equal(p, bytes.Repeat([]byte{1}, testBufferSize)) {
		t.Error("first frame content does not match sequence 0")
	}
	if !f.q.FileIOActive() {
		t.Error("FileIOActive() = false after Read")
	}
	if f.q.State() != StreamStreaming {
		t.Errorf("State() = %s, want streaming", f.q.State())
	}

	// Frames keep flowing because fully read buffers are requeued.
	for frame := 1; frame < 3*NumBuffers; frame++ {
		if _, err := f.q.Read(ctx, p, false); err != nil {
			t.Fatalf("Read() frame %d error = %v", frame, err)
		}
		if p[0] != byte(frame+1) {
			t.Fatalf("frame %d content = %d, want %d", frame, p[0], frame+1)
		}
	}
}

func TestReadShortReadsContinueFrame(t *testing.T) {
	f := newTestQueue(t, func(o *QueueOptions) { o.Filler = sequenceFiller })
	ctx := testContext(t)
	f.q.Lock()
	defer f.q.Unlock()

	half := make([]byte, testBufferSize/2)
	for i, want := range []byte{1, 1, 2} {
		n, err := f.q.Read(ctx, half, false)
		if err != nil {
			t.Fatalf("Read() #%d error = %v", i, err)
		}
		if n != len(half) {
			t.Errorf("Read() #%d = %d bytes, want %d", i, n, len(half))
		}
		if half[0] != want {
			t.Errorf("Read() #%d content = %d, want %d", i, half[0], want)
		}
	}
}

func TestFileIOExcludesStreamingIO(t *testing.T) {
	f := newTestQueue(t, nil)
	ctx := testContext(t)
	f.q.Lock()
	defer f.q.Unlock()

	if _, err := f.q.Read(ctx, make([]byte, 16), false); err != nil {
		t.Fatal(err)
	}

	if _, err := f.q.ReqBufs(4); !errors.Is(err, ErrBusy) {
		t.Errorf("ReqBufs() during read emulation error = %v, want busy", err)
	}
	if _, err := f.q.QBuf(0); !errors.Is(err, ErrBusy) {
		t.Errorf("QBuf() during read emulation error = %v, want busy", err)
	}
	if _, err := f.q.DQBuf(ctx, true); !errors.Is(err, ErrBusy) {
		t.Errorf("DQBuf() during read emulation error = %v, want busy", err)
	}
	if err := f.q.StreamOff(); !errors.Is(err, ErrBusy) {
		t.Errorf("StreamOff() during read emulation error = %v, want busy", err)
	}

	if err := f.q.StopFileIO(); err != nil {
		t.Fatalf("StopFileIO() error = %v", err)
	}
	if f.q.State() != StreamIdle || f.q.FileIOActive() {
		t.Errorf("after StopFileIO state = %s active = %v, want idle and inactive",
			f.q.State(), f.q.FileIOActive())
	}
	if f.alloc.liveCount() != 0 {
		t.Errorf("%d buffers still allocated after StopFileIO", f.alloc.liveCount())
	}
	if _, err := f.q.ReqBufs(4); err != nil {
		t.Errorf("ReqBufs() after StopFileIO error = %v", err)
	}
}

func TestReadRejectedWhileStreamingIOInUse(t *testing.T) {
	f := newTestQueue(t, nil)
	ctx := testContext(t)
	f.q.Lock()
	defer f.q.Unlock()

	if _, err := f.q.ReqBufs(4); err != nil {
		t.Fatal(err)
	}
	if _, err := f.q.Read(ctx, make([]byte, 16), false); !errors.Is(err, ErrBusy) {
		t.Errorf("Read() with allocated buffers error = %v, want busy", err)
	}
}

func TestPoll(t *testing.T) {
	t.Run("idle queue starts emulation", func(t *testing.T) {
		f := newTestQueue(t, nil)
		ctx := testContext(t)
		f.q.Lock()
		defer f.q.Unlock()

		events, err := f.q.WaitPoll(ctx)
		if err != nil {
			t.Fatalf("WaitPoll() error = %v", err)
		}
		if events != PollIn|PollRdNorm {
			t.Errorf("WaitPoll() = %#x, want %#x", events, PollIn|PollRdNorm)
		}
		if !f.q.FileIOActive() {
			t.Error("poll on an idle queue should start read emulation")
		}
	})

	t.Run("allocated but not streaming", func(t *testing.T) {
		f := newTestQueue(t, nil)
		f.q.Lock()
		defer f.q.Unlock()

		if _, err := f.q.ReqBufs(4); err != nil {
			t.Fatal(err)
		}
		if events := f.q.Poll(); events != PollErr {
			t.Errorf("Poll() = %#x, want %#x", events, PollErr)
		}
	})

	t.Run("streaming with nothing ready", func(t *testing.T) {
		f := newTestQueue(t, nil)
		f.q.Lock()
		defer f.q.Unlock()
		f.startStreaming(t)

		if events := f.q.Poll(); events != 0 {
			t.Errorf("Poll() = %#x, want 0", events)
		}
	})
}
