// File: core/buffer/bytechannel.go
// Author: momentics <momentics@gmail.com>
//
// ByteChannel is the ordered, bounded byte queue sitting between the
// selector read path and application code. Writers append at the end,
// readers borrow a view of the head and Compact away what they consumed.
//
// MaxSize is a watermark, not a hard wall: the prepare stage waits before
// a write would reach it, and a write that proceeds after a timed-out wait
// is still accepted so that received bytes are never dropped.

package buffer

import (
	"errors"
	"sync"
)

// ErrReleased is returned by writes against a released channel.
var ErrReleased = errors.New("byte channel is released")

// ByteChannel is an in-memory byte queue with a capacity watermark.
type ByteChannel struct {
	mu       sync.Mutex
	data     []byte
	maxSize  int
	released bool
	view     *Buffer
}

// NewByteChannel creates a channel with the given capacity watermark.
func NewByteChannel(maxSize int) *ByteChannel {
	if maxSize <= 0 {
		maxSize = 1 << 16
	}
	return &ByteChannel{maxSize: maxSize}
}

// WriteEnd appends the readable bytes of src, consuming them from src.
// Returns the number of bytes appended.
func (c *ByteChannel) WriteEnd(src *Buffer) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return -1, ErrReleased
	}
	p := src.Bytes()
	c.data = append(c.data, p...)
	src.Advance(len(p))
	return len(p), nil
}

// WriteBytes appends a raw slice.
func (c *ByteChannel) WriteBytes(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return -1, ErrReleased
	}
	c.data = append(c.data, p...)
	return len(p), nil
}

// GetByteBuffer borrows a readable view of the queued bytes. The caller
// must pair it with Compact; the consumed prefix is whatever the view's
// position has advanced past at Compact time. Returns nil on a released
// channel.
func (c *ByteChannel) GetByteBuffer() *Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil
	}
	c.view = Wrap(c.data)
	return c.view
}

// Compact discards the prefix consumed through the borrowed view.
func (c *ByteChannel) Compact() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view == nil {
		return
	}
	n := c.view.Position()
	c.view = nil
	if n <= 0 {
		return
	}
	if n >= len(c.data) {
		c.data = c.data[:0]
		return
	}
	c.data = append(c.data[:0], c.data[n:]...)
}

// Size returns the number of queued bytes.
func (c *ByteChannel) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return 0
	}
	return len(c.data)
}

// MaxSize returns the capacity watermark.
func (c *ByteChannel) MaxSize() int { return c.maxSize }

// IsReleased reports whether Release has been called.
func (c *ByteChannel) IsReleased() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

// Release drops the queue. Idempotent. Borrowed views become inert: a
// Compact after Release is a no-op.
func (c *ByteChannel) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	c.released = true
	c.data = nil
	c.view = nil
}
