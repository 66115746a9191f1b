//go:build linux

package vb2

import "golang.org/x/sys/unix"

// mmapAllocator backs buffers with anonymous shared mappings.
type mmapAllocator struct{}

func (mmapAllocator) Alloc(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANONYMOUS)
}

func (mmapAllocator) Free(mem []byte) error {
	if mem == nil {
		return nil
	}
	return unix.Munmap(mem)
}

func defaultAllocator() Allocator { return mmapAllocator{} }

func pageSize() uint32 { return uint32(unix.Getpagesize()) }
