package vb2

// Pacer assigns target delivery times to queued buffers.
//
// The first frame after a stream start is due immediately. Later frames keep the
// previous target unless it has fallen behind the current time, in which case the
// target snaps forward to now. No frame interval is added, so a burst of buffers
// queued while the consumer keeps up shares one target time.
type Pacer struct {
	isFirstFrame bool
	nextTime     int64
}

// Reset makes the next Stamp behave as the first frame of a stream.
func (p *Pacer) Reset() {
	p.isFirstFrame = true
}

// Stamp returns the target time for a buffer queued at now (monotonic nanoseconds).
func (p *Pacer) Stamp(now int64) int64 {
	if p.isFirstFrame {
		p.isFirstFrame = false
		p.nextTime = now
	} else if p.nextTime < now {
		// The frames aren't being consumed fast enough.
		p.nextTime = now
	}
	return p.nextTime
}

// NextTime returns the most recently assigned target time.
func (p *Pacer) NextTime() int64 {
	return p.nextTime
}
