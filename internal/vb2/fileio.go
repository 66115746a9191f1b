package vb2

import "context"

// PollEvents is a poll(2) event mask.
type PollEvents uint32

// Poll events reported by Poll.
const (
	PollIn     PollEvents = 0x0001
	PollErr    PollEvents = 0x0008
	PollRdNorm PollEvents = 0x0040
)

// fileIO is the read() emulator state. It owns the queue's buffers while active.
type fileIO struct {
	cur *Buffer
	pos uint32
}

// FileIOActive reports whether the read emulator owns the queue.
func (q *Queue) FileIOActive() bool { return q.fileio != nil }

// StartFileIO starts the read emulator on an idle queue. It does nothing when
// the emulator is already running.
func (q *Queue) StartFileIO() error {
	if err := q.checkReleased(); err != nil {
		return err
	}
	if q.fileio != nil {
		return nil
	}
	return q.startFileIO()
}

// startFileIO allocates the pool, starts streaming and queues every buffer.
func (q *Queue) startFileIO() error {
	if q.state != StreamIdle || q.draining {
		return NewError(ErrCodeBusy, "streaming I/O in use", map[string]any{"state": q.state})
	}
	if _, err := q.reqbufs(NumBuffers); err != nil {
		return err
	}
	if err := q.streamOn(); err != nil {
		_, _ = q.reqbufs(0)
		return err
	}
	for i := range q.pool.bufs {
		if _, err := q.qbuf(uint32(i)); err != nil {
			_ = q.streamOff()
			_, _ = q.reqbufs(0)
			return err
		}
	}
	q.fileio = &fileIO{}
	q.logger.Debug("Started read emulation")
	return nil
}

// StopFileIO tears the read emulator down, returning the queue to Idle.
func (q *Queue) StopFileIO() error {
	if q.fileio == nil {
		return nil
	}
	q.fileio = nil
	if q.state == StreamStreaming {
		if err := q.streamOff(); err != nil {
			return err
		}
	}
	_, err := q.reqbufs(0)
	q.logger.Debug("Stopped read emulation")
	return err
}

// Read copies frame data into p. The first call on an idle queue starts the
// read emulator. A frame is requeued once it has been read completely, so short
// reads continue the same frame.
func (q *Queue) Read(ctx context.Context, p []byte, nonblocking bool) (int, error) {
	if err := q.checkReleased(); err != nil {
		return 0, err
	}
	if q.fileio == nil {
		if err := q.startFileIO(); err != nil {
			return 0, err
		}
	}

	f := q.fileio
	if f.cur == nil {
		b, err := q.dqbuf(ctx, nonblocking)
		if err != nil {
			return 0, err
		}
		// The emulator may have been stopped while waiting.
		if q.fileio != f {
			return 0, NewError(ErrCodeBusy, "file I/O stopped", nil)
		}
		f.cur = b
		f.pos = 0
	}

	n := copy(p, f.cur.mem[f.pos:f.cur.bytesUsed])
	f.pos += uint32(n)
	if f.pos >= f.cur.bytesUsed {
		b := f.cur
		f.cur = nil
		if _, err := q.qbuf(b.index); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Poll reports the queue's readiness without blocking. On an idle queue it
// starts the read emulator, so a poll before the first read is meaningful.
func (q *Queue) Poll() PollEvents {
	if q.released {
		return PollErr
	}
	if q.state == StreamIdle && q.fileio == nil {
		if err := q.startFileIO(); err != nil {
			return PollErr
		}
	}
	if q.state != StreamStreaming || q.draining {
		return PollErr
	}
	if len(q.pool.done) > 0 || (q.fileio != nil && q.fileio.cur != nil) {
		return PollIn | PollRdNorm
	}
	return 0
}

// WaitPoll blocks until Poll reports a non-empty mask or ctx is done.
func (q *Queue) WaitPoll(ctx context.Context) (PollEvents, error) {
	var events PollEvents
	err := q.waitFor(ctx, false, func() bool {
		events = q.Poll()
		return events != 0
	})
	return events, err
}
