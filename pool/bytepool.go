// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
//
// Size-classed byte slice pool backing the runtime's reusable buffers
// (selector scratch buffer, TLS plane buffers).

package pool

import "sync"

// sizeClasses are the capacities the pool keeps dedicated free lists for.
// Requests between classes round up; requests above the largest class are
// plain allocations.
var sizeClasses = []int{1 << 10, 1 << 12, 1 << 14, 1 << 16, 1 << 18}

// BytePool hands out byte slices of at least the requested capacity.
type BytePool struct {
	classes []sync.Pool
}

// DefaultBytePool is the shared process-wide pool.
var DefaultBytePool = NewBytePool()

// NewBytePool creates an empty pool.
func NewBytePool() *BytePool {
	p := &BytePool{classes: make([]sync.Pool, len(sizeClasses))}
	for i, size := range sizeClasses {
		size := size
		p.classes[i].New = func() any { return make([]byte, size) }
	}
	return p
}

// Get returns a slice with len >= size. The slice length equals the size
// class, not the requested size; callers track their own limits.
func (p *BytePool) Get(size int) []byte {
	for i, class := range sizeClasses {
		if size <= class {
			return p.classes[i].Get().([]byte)[:class]
		}
	}
	return make([]byte, size)
}

// Put returns a slice to its size class. Oversized slices are dropped for
// the GC to reclaim.
func (p *BytePool) Put(buf []byte) {
	for i, class := range sizeClasses {
		if cap(buf) == class {
			p.classes[i].Put(buf[:class])
			return
		}
	}
}
