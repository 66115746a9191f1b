package vb2

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// FrameFiller writes frame content into a buffer when it becomes ready.
type FrameFiller func(frame []byte, sequence uint32)

// BufferCallback is called on a buffer lifecycle transition.
type BufferCallback func(info BufferInfo)

// DoneCallback is called when a buffer becomes ready. lateness is how far past
// its target time the buffer was delivered.
type DoneCallback func(info BufferInfo, lateness time.Duration)

// StreamStateCallback is called when the streaming state changes.
type StreamStateCallback func(oldState, newState StreamState)

// Hooks are optional observers of queue transitions. They run with the queue
// lock held and must not call back into the queue.
type Hooks struct {
	OnQueued      BufferCallback
	OnDone        DoneCallback
	OnDequeued    BufferCallback
	OnCancelled   BufferCallback
	OnStateChange StreamStateCallback
}

// QueueOptions configures a new Queue.
type QueueOptions struct {
	// BufferSize is the payload size of every buffer in bytes (required).
	BufferSize uint32

	// Lock serializes every operation on the queue. A private mutex is used when nil.
	Lock sync.Locker

	// Clock drives pacing and delivery. The real clock is used when nil.
	Clock clockwork.Clock

	// Allocator provides payload storage. Anonymous mmap on Linux when nil.
	Allocator Allocator

	// Filler writes frame content on delivery (optional).
	Filler FrameFiller

	Hooks Hooks

	// Logger for queue operations. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Queue is a capture buffer queue: a fixed pool of buffers, the streaming state
// machine, the pacer and the delivery scheduler.
//
// Every method except Release must be called with the queue lock held (see
// Lock). Blocking waits release the lock while suspended and re-acquire it
// before returning.
type Queue struct {
	lock   sync.Locker
	cond   *sync.Cond
	clock  clockwork.Clock
	epoch  time.Time
	logger *slog.Logger
	filler FrameFiller
	hooks  Hooks

	pool     pool
	pacer    Pacer
	sched    *Scheduler
	state    StreamState
	draining bool
	released bool
	sequence uint32
	bufSize  uint32
	fileio   *fileIO
}

// NewQueue creates a queue in the Idle state and starts its delivery loop.
func NewQueue(opts QueueOptions) (*Queue, error) {
	if opts.BufferSize == 0 {
		return nil, invalidArgument("buffer size must be positive", nil)
	}

	lock := opts.Lock
	if lock == nil {
		lock = &sync.Mutex{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	alloc := opts.Allocator
	if alloc == nil {
		alloc = defaultAllocator()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	q := &Queue{
		lock:    lock,
		cond:    sync.NewCond(lock),
		clock:   clock,
		epoch:   clock.Now(),
		logger:  logger,
		filler:  opts.Filler,
		hooks:   opts.Hooks,
		pool:    pool{alloc: alloc, pageSize: pageSize()},
		state:   StreamIdle,
		bufSize: opts.BufferSize,
	}
	q.sched = NewScheduler(clock, q.now, q.complete)
	q.sched.Start()
	return q, nil
}

// Lock acquires the queue's serialization lock.
func (q *Queue) Lock() { q.lock.Lock() }

// Unlock releases the queue's serialization lock.
func (q *Queue) Unlock() { q.lock.Unlock() }

// Now returns the queue's monotonic time in nanoseconds.
func (q *Queue) Now() int64 { return q.now() }

func (q *Queue) now() int64 {
	return int64(q.clock.Since(q.epoch))
}

// State returns the streaming state.
func (q *Queue) State() StreamState { return q.state }

// NextTime returns the most recently assigned target delivery time.
func (q *Queue) NextTime() int64 { return q.pacer.NextTime() }

// NumBuffers returns the number of allocated buffers.
func (q *Queue) NumBuffers() int { return len(q.pool.bufs) }

// BufferSize returns the payload size of each buffer.
func (q *Queue) BufferSize() uint32 { return q.bufSize }

// Buffers returns a snapshot of every allocated buffer.
func (q *Queue) Buffers() []BufferInfo {
	infos := make([]BufferInfo, len(q.pool.bufs))
	for i, b := range q.pool.bufs {
		infos[i] = b.info()
	}
	return infos
}

// ReqBufs allocates the buffer pool, or frees it when count is zero, and returns
// the number of buffers now allocated. Any non-zero request yields NumBuffers.
func (q *Queue) ReqBufs(count uint32) (uint32, error) {
	if err := q.checkIoctlAccess(); err != nil {
		return 0, err
	}
	return q.reqbufs(count)
}

func (q *Queue) reqbufs(count uint32) (uint32, error) {
	if q.state == StreamStreaming || q.draining {
		return 0, invalidArgument("cannot change buffers while streaming", map[string]any{"state": q.state})
	}

	if count == 0 {
		err := q.pool.free()
		q.setState(StreamIdle)
		q.logger.Debug("Freed buffers")
		return 0, err
	}

	n, err := q.pool.allocate(q.bufSize)
	if err != nil {
		q.setState(StreamIdle)
		q.logger.Warn("Buffer allocation failed", "error", err)
		return 0, err
	}
	q.setState(StreamAllocated)
	q.logger.Debug("Allocated buffers", "requested", count, "allocated", n, "size", q.bufSize)
	return uint32(n), nil
}

// QueryBuf describes a buffer.
func (q *Queue) QueryBuf(index uint32) (BufferInfo, error) {
	if err := q.checkReleased(); err != nil {
		return BufferInfo{}, err
	}
	b, err := q.pool.get(index)
	if err != nil {
		return BufferInfo{}, err
	}
	return b.info(), nil
}

// QBuf hands a Free or Dequeued buffer to the engine. It is stamped with a
// target delivery time and scheduled.
func (q *Queue) QBuf(index uint32) (BufferInfo, error) {
	if err := q.checkIoctlAccess(); err != nil {
		return BufferInfo{}, err
	}
	return q.qbuf(index)
}

func (q *Queue) qbuf(index uint32) (BufferInfo, error) {
	if q.state != StreamStreaming || q.draining {
		return BufferInfo{}, invalidArgument("not streaming", map[string]any{"state": q.state})
	}
	b, err := q.pool.get(index)
	if err != nil {
		return BufferInfo{}, err
	}
	if b.state != StateFree && b.state != StateDequeued {
		return BufferInfo{}, invalidArgument("buffer already queued",
			map[string]any{"index": index, "state": b.state})
	}

	b.timestamp = q.pacer.Stamp(q.now())
	b.state = StateQueuedPending
	b.bytesUsed = 0
	info := b.info()
	if q.hooks.OnQueued != nil {
		q.hooks.OnQueued(info)
	}
	q.sched.Schedule(b)
	return info, nil
}

// DQBuf removes the oldest ready buffer from the engine. When nothing is ready it
// returns ErrWouldBlock if nonblocking is set, otherwise it waits with the lock
// released until a buffer is delivered, streaming stops, or ctx is done.
func (q *Queue) DQBuf(ctx context.Context, nonblocking bool) (BufferInfo, error) {
	if err := q.checkIoctlAccess(); err != nil {
		return BufferInfo{}, err
	}
	b, err := q.dqbuf(ctx, nonblocking)
	if err != nil {
		return BufferInfo{}, err
	}
	return b.info(), nil
}

func (q *Queue) dqbuf(ctx context.Context, nonblocking bool) (*Buffer, error) {
	start := q.now()
	err := q.waitFor(ctx, nonblocking, func() bool {
		return len(q.pool.done) > 0 || q.state != StreamStreaming || q.draining || q.released
	})
	if err != nil {
		return nil, err
	}
	if q.state != StreamStreaming || q.draining {
		return nil, invalidArgument("not streaming", map[string]any{"state": q.state})
	}

	b := q.pool.popDone()
	b.state = StateDequeued
	if q.hooks.OnDequeued != nil {
		q.hooks.OnDequeued(b.info())
	}
	q.logger.Debug("Dequeued buffer", "index", b.index, "sequence", b.sequence,
		"waited", time.Duration(q.now()-start))
	return b, nil
}

// StreamOn starts streaming. The queue must be Allocated.
func (q *Queue) StreamOn() error {
	if err := q.checkIoctlAccess(); err != nil {
		return err
	}
	return q.streamOn()
}

func (q *Queue) streamOn() error {
	if q.draining {
		return NewError(ErrCodeBusy, "stream stop in progress", nil)
	}
	if q.state != StreamAllocated {
		return invalidArgument("stream on requires allocated buffers", map[string]any{"state": q.state})
	}
	q.pacer.Reset()
	q.sequence = 0
	q.setState(StreamStreaming)
	q.logger.Info("Streaming started", "buffers", len(q.pool.bufs))
	return nil
}

// StreamOff stops streaming. Pending deliveries are cancelled, deliveries already
// firing are awaited with the lock released, and every buffer returns to Free.
func (q *Queue) StreamOff() error {
	if err := q.checkIoctlAccess(); err != nil {
		return err
	}
	return q.streamOff()
}

func (q *Queue) streamOff() error {
	if q.draining {
		return NewError(ErrCodeBusy, "stream stop in progress", nil)
	}
	if q.state == StreamIdle {
		return invalidArgument("no buffers allocated", nil)
	}

	wasStreaming := q.state == StreamStreaming
	q.draining = true
	q.setState(StreamAllocated)

	for _, b := range q.sched.Cancel() {
		b.state = StateFree
		if q.hooks.OnCancelled != nil {
			q.hooks.OnCancelled(b.info())
		}
	}
	q.cond.Broadcast()

	for q.pool.countState(StateQueuedPending) > 0 {
		q.cond.Wait()
	}

	q.pool.releaseAll()
	q.draining = false
	q.cond.Broadcast()
	if wasStreaming {
		q.logger.Info("Streaming stopped")
	}
	return nil
}

// Mmap returns the payload of the buffer mapped at offset.
func (q *Queue) Mmap(offset uint32) ([]byte, error) {
	if err := q.checkReleased(); err != nil {
		return nil, err
	}
	if q.state == StreamIdle {
		return nil, invalidArgument("no buffers allocated", nil)
	}
	b, err := q.pool.byOffset(offset)
	if err != nil {
		return nil, err
	}
	return b.mem, nil
}

// Release tears the queue down: streaming is stopped, the pool is freed and the
// delivery loop exits. It takes the lock itself and must be called without it.
func (q *Queue) Release() error {
	q.lock.Lock()
	if q.released {
		q.lock.Unlock()
		return nil
	}
	if q.state == StreamStreaming {
		_ = q.streamOff()
	}
	q.fileio = nil
	err := q.pool.free()
	q.setState(StreamIdle)
	q.released = true
	q.cond.Broadcast()
	q.lock.Unlock()

	q.sched.Stop()
	return err
}

// complete is the delivery callback: the buffer's target time has passed.
func (q *Queue) complete(b *Buffer) {
	q.lock.Lock()
	defer q.lock.Unlock()

	if b.state != StateQueuedPending {
		return
	}

	b.state = StateQueuedReady
	b.sequence = q.sequence
	q.sequence++
	b.bytesUsed = uint32(len(b.mem))
	if q.filler != nil {
		q.filler(b.mem, b.sequence)
	}
	q.pool.pushDone(b)

	if q.hooks.OnDone != nil {
		q.hooks.OnDone(b.info(), time.Duration(q.now()-b.timestamp))
	}
	q.cond.Broadcast()
}

// waitFor blocks on the queue condition until ready reports true. The lock is
// released while waiting.
func (q *Queue) waitFor(ctx context.Context, nonblocking bool, ready func() bool) error {
	if ready() {
		return nil
	}
	if nonblocking {
		return NewError(ErrCodeWouldBlock, "no buffer ready", nil)
	}

	stop := context.AfterFunc(ctx, func() {
		q.lock.Lock()
		defer q.lock.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	for !ready() {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.cond.Wait()
	}
	return nil
}

func (q *Queue) setState(s StreamState) {
	if q.state == s {
		return
	}
	old := q.state
	q.state = s
	if q.hooks.OnStateChange != nil {
		q.hooks.OnStateChange(old, s)
	}
}

func (q *Queue) checkReleased() error {
	if q.released {
		return invalidArgument("queue released", nil)
	}
	return nil
}

// checkIoctlAccess rejects streaming I/O calls while the queue is released or
// owned by the read emulator.
func (q *Queue) checkIoctlAccess() error {
	if err := q.checkReleased(); err != nil {
		return err
	}
	if q.fileio != nil {
		return NewError(ErrCodeBusy, "file I/O in progress", nil)
	}
	return nil
}
