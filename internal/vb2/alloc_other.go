//go:build !linux

package vb2

import "os"

// heapAllocator backs buffers with ordinary Go slices.
type heapAllocator struct{}

func (heapAllocator) Alloc(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func (heapAllocator) Free([]byte) error { return nil }

func defaultAllocator() Allocator { return heapAllocator{} }

func pageSize() uint32 { return uint32(os.Getpagesize()) }
