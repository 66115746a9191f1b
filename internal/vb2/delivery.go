package vb2

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// deliveryEntry is one pending buffer waiting for its target time.
type deliveryEntry struct {
	buf    *Buffer
	target int64
	seq    uint64 // tie-break: equal targets fire in submission order
}

type deliveryHeap []deliveryEntry

func (h deliveryHeap) Len() int { return len(h) }
func (h deliveryHeap) Less(i, j int) bool {
	if h[i].target != h[j].target {
		return h[i].target < h[j].target
	}
	return h[i].seq < h[j].seq
}
func (h deliveryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *deliveryHeap) Push(x any)   { *h = append(*h, x.(deliveryEntry)) }
func (h *deliveryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = deliveryEntry{}
	*h = old[:n-1]
	return e
}

// Scheduler marks buffers ready once their target time has elapsed.
//
// A single goroutine waits on one clock timer armed for the earliest pending
// target. Due entries are handed to the fire callback outside the scheduler's
// own lock, in target order.
type Scheduler struct {
	clock clockwork.Clock
	now   func() int64
	fire  func(*Buffer)

	mu      sync.Mutex
	started bool
	pending deliveryHeap
	nextSeq uint64
	wake    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a scheduler. now returns monotonic nanoseconds on the
// same scale as buffer target times; fire is called once per due buffer.
func NewScheduler(clock clockwork.Clock, now func() int64, fire func(*Buffer)) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		clock:  clock,
		now:    now,
		fire:   fire,
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start launches the delivery loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	go func() {
		defer close(s.done)
		s.run()
	}()
}

// Schedule adds a buffer with its already assigned target time.
func (s *Scheduler) Schedule(b *Buffer) {
	s.mu.Lock()
	heap.Push(&s.pending, deliveryEntry{buf: b, target: b.timestamp, seq: s.nextSeq})
	s.nextSeq++
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Cancel removes every entry that has not fired yet and returns their buffers.
// An entry already handed to the fire callback is not returned.
func (s *Scheduler) Cancel() []*Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()

	bufs := make([]*Buffer, 0, len(s.pending))
	for _, e := range s.pending {
		bufs = append(bufs, e.buf)
	}
	s.pending = nil
	return bufs
}

// Pending returns the number of entries waiting to fire.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop interrupts the delivery loop without firing anything still pending and
// waits for it to exit. It must not be called while the fire callback could be
// blocked on a lock the caller holds.
func (s *Scheduler) Stop() {
	s.cancel()
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
}

func (s *Scheduler) run() {
	var (
		timer   clockwork.Timer
		timerC  <-chan time.Time
		armedAt int64
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}
	defer stopTimer()

	for {
		// Anything scheduled before this point is seen by collect.
		select {
		case <-s.wake:
		default:
		}

		due, next, ok := s.collect()
		for _, b := range due {
			s.fire(b)
		}
		if len(due) > 0 {
			continue
		}

		switch {
		case !ok:
			stopTimer()
		case timer == nil || next != armedAt:
			stopTimer()
			timer = s.clock.NewTimer(time.Duration(next - s.now()))
			timerC = timer.Chan()
			armedAt = next
		}

		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		case <-timerC:
			timer, timerC = nil, nil
		}
	}
}

// collect pops every due entry and returns the target of the earliest entry
// still pending, if any.
func (s *Scheduler) collect() (due []*Buffer, next int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return nil, 0, false
	}

	now := s.now()
	for len(s.pending) > 0 && s.pending[0].target <= now {
		e := heap.Pop(&s.pending).(deliveryEntry)
		due = append(due, e.buf)
	}
	if len(s.pending) > 0 {
		return due, s.pending[0].target, true
	}
	return due, 0, false
}
