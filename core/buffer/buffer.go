// File: core/buffer/buffer.go
// Author: momentics <momentics@gmail.com>
//
// Position-based byte buffer with an alive/released latch.
//
// The runtime reuses a small number of these buffers for every read and
// every TLS wrap/unwrap, so a buffer can be released by one path while
// another still holds a reference. Release does not free under a user;
// Guard tags each use so a post-release access observes "released" instead
// of touching recycled memory.

package buffer

import (
	"sync"

	"github.com/momentics/hioload-net/pool"
)

// Buffer is a fixed-capacity byte region with position/limit cursors.
// Mutating methods are not synchronized: a buffer has exactly one owner at
// a time (the selector goroutine or a TLS adapter holding Guard).
type Buffer struct {
	data []byte
	pos  int
	lim  int

	mu       sync.Mutex
	released bool
	pooled   bool
}

// New allocates a pool-backed buffer with the given capacity.
// Position is 0 and limit is the capacity, ready for writing.
func New(capacity int) *Buffer {
	return &Buffer{
		data:   pool.DefaultBytePool.Get(capacity)[:capacity],
		lim:    capacity,
		pooled: true,
	}
}

// Wrap adapts an existing slice into a read-ready buffer:
// position 0, limit len(p). The slice is not copied.
func Wrap(p []byte) *Buffer {
	return &Buffer{data: p, lim: len(p)}
}

// Capacity returns the total size of the underlying region.
func (b *Buffer) Capacity() int { return len(b.data) }

// Position returns the read/write cursor.
func (b *Buffer) Position() int { return b.pos }

// SetPosition moves the cursor. Panics are avoided by clamping to [0,limit].
func (b *Buffer) SetPosition(p int) {
	if p < 0 {
		p = 0
	}
	if p > b.lim {
		p = b.lim
	}
	b.pos = p
}

// Limit returns the current limit.
func (b *Buffer) Limit() int { return b.lim }

// SetLimit moves the limit, clamped to [position,capacity].
func (b *Buffer) SetLimit(l int) {
	if l < b.pos {
		l = b.pos
	}
	if l > len(b.data) {
		l = len(b.data)
	}
	b.lim = l
}

// Remaining returns limit-position.
func (b *Buffer) Remaining() int { return b.lim - b.pos }

// HasRemaining reports whether any bytes remain between position and limit.
func (b *Buffer) HasRemaining() bool { return b.pos < b.lim }

// Clear resets position to 0 and limit to capacity (write mode).
func (b *Buffer) Clear() {
	b.pos = 0
	b.lim = len(b.data)
}

// Flip makes written bytes readable: limit=position, position=0.
func (b *Buffer) Flip() {
	b.lim = b.pos
	b.pos = 0
}

// Bytes returns the readable view data[position:limit].
func (b *Buffer) Bytes() []byte { return b.data[b.pos:b.lim] }

// WritableBytes returns the writable tail data[position:limit].
func (b *Buffer) WritableBytes() []byte { return b.data[b.pos:b.lim] }

// WrittenBytes returns the filled prefix data[0:position] of a buffer in
// write mode (before Flip).
func (b *Buffer) WrittenBytes() []byte { return b.data[:b.pos] }

// Advance moves the position forward by n consumed/produced bytes.
func (b *Buffer) Advance(n int) {
	b.SetPosition(b.pos + n)
}

// Put copies p into the buffer at the current position, advancing it.
// Returns the number of bytes copied (bounded by remaining space).
func (b *Buffer) Put(p []byte) int {
	n := copy(b.data[b.pos:b.lim], p)
	b.pos += n
	return n
}

// Get copies readable bytes into p, advancing the position.
func (b *Buffer) Get(p []byte) int {
	n := copy(p, b.data[b.pos:b.lim])
	b.pos += n
	return n
}

// Released reports whether Release has been called.
func (b *Buffer) Released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}

// Guard runs fn under the buffer latch if the buffer is still alive.
// Returns false without running fn when the buffer has been released.
// fn must not call Release or Guard on the same buffer.
func (b *Buffer) Guard(fn func()) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return false
	}
	fn()
	return true
}

// Release returns the backing region to the pool. Idempotent; a use racing
// a release observes the released tag under the latch instead of a
// recycled slice.
func (b *Buffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return
	}
	b.released = true
	if b.pooled {
		pool.DefaultBytePool.Put(b.data)
	}
	b.data = nil
	b.pos = 0
	b.lim = 0
}
