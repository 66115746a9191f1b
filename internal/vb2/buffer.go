package vb2

// Buffer is one frame slot of the pool.
type Buffer struct {
	index     uint32
	state     State
	mem       []byte
	offset    uint32
	timestamp int64 // target delivery time, monotonic nanoseconds
	sequence  uint32
	bytesUsed uint32
}

// BufferInfo is a snapshot of a buffer as reported by QUERYBUF and DQBUF.
type BufferInfo struct {
	Index     uint32
	State     State
	Length    uint32
	BytesUsed uint32
	Offset    uint32
	Timestamp int64
	Sequence  uint32
}

// Index returns the buffer's position in the pool.
func (b *Buffer) Index() uint32 { return b.index }

// State returns the buffer's current ownership state.
func (b *Buffer) State() State { return b.state }

// Timestamp returns the target delivery time assigned at enqueue.
func (b *Buffer) Timestamp() int64 { return b.timestamp }

func (b *Buffer) info() BufferInfo {
	return BufferInfo{
		Index:     b.index,
		State:     b.state,
		Length:    uint32(len(b.mem)),
		BytesUsed: b.bytesUsed,
		Offset:    b.offset,
		Timestamp: b.timestamp,
		Sequence:  b.sequence,
	}
}
