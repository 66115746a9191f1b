package vb2

import (
	"errors"
	"fmt"
)

const (
	// NumBuffers is the number of buffers every allocation produces, whatever the
	// caller asked for.
	NumBuffers = 4
	// NumPlanes is the plane count of every buffer.
	NumPlanes = 1
)

// Allocator provides payload storage for buffers.
type Allocator interface {
	Alloc(size int) ([]byte, error)
	Free(mem []byte) error
}

// pool is the fixed-size set of buffer slots owned by a Queue.
type pool struct {
	alloc    Allocator
	pageSize uint32
	size     uint32
	bufs     []*Buffer
	done     []*Buffer // ready buffers in delivery order
}

// allocate replaces the pool with NumBuffers buffers of size bytes each and
// returns the number allocated.
func (p *pool) allocate(size uint32) (int, error) {
	if err := p.free(); err != nil {
		return 0, err
	}

	bufs := make([]*Buffer, 0, NumBuffers)
	var offset uint32
	for i := range NumBuffers {
		mem, err := p.alloc.Alloc(int(size))
		if err != nil {
			for _, b := range bufs {
				_ = p.alloc.Free(b.mem)
			}
			return 0, NewErrorWithCause(ErrCodeResourceExhausted,
				fmt.Sprintf("failed to allocate buffer %d", i), err,
				map[string]any{"index": i, "size": size})
		}
		bufs = append(bufs, &Buffer{
			index:  uint32(i),
			state:  StateFree,
			mem:    mem,
			offset: offset,
		})
		offset += pageAlign(size, p.pageSize)
	}

	p.bufs = bufs
	p.size = size
	return len(bufs), nil
}

// free releases all payload storage. Buffers must not be referenced by delivery.
func (p *pool) free() error {
	var errs []error
	for _, b := range p.bufs {
		if err := p.alloc.Free(b.mem); err != nil {
			errs = append(errs, fmt.Errorf("buffer %d: %w", b.index, err))
		}
		b.mem = nil
	}
	p.bufs = nil
	p.done = nil
	p.size = 0
	return errors.Join(errs...)
}

func (p *pool) get(index uint32) (*Buffer, error) {
	if int(index) >= len(p.bufs) {
		return nil, invalidArgument("buffer index out of range",
			map[string]any{"index": index, "count": len(p.bufs)})
	}
	return p.bufs[index], nil
}

func (p *pool) byOffset(offset uint32) (*Buffer, error) {
	for _, b := range p.bufs {
		if b.offset == offset {
			return b, nil
		}
	}
	return nil, invalidArgument("no buffer at offset", map[string]any{"offset": offset})
}

// pushDone appends a buffer to the done list.
func (p *pool) pushDone(b *Buffer) {
	p.done = append(p.done, b)
}

// popDone removes and returns the oldest ready buffer, or nil.
func (p *pool) popDone() *Buffer {
	if len(p.done) == 0 {
		return nil
	}
	b := p.done[0]
	p.done[0] = nil
	p.done = p.done[1:]
	return b
}

// releaseAll returns every buffer to Free.
func (p *pool) releaseAll() {
	for _, b := range p.bufs {
		b.state = StateFree
		b.bytesUsed = 0
	}
	p.done = nil
}

func (p *pool) countState(s State) int {
	n := 0
	for _, b := range p.bufs {
		if b.state == s {
			n++
		}
	}
	return n
}

func pageAlign(n, pageSize uint32) uint32 {
	return (n + pageSize - 1) &^ (pageSize - 1)
}
