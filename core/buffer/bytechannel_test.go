// File: core/buffer/bytechannel_test.go
// Author: momentics <momentics@gmail.com>

package buffer

import (
	"bytes"
	"testing"
)

func TestByteChannelWriteViewCompact(t *testing.T) {
	ch := NewByteChannel(64)

	if n, err := ch.WriteBytes([]byte("hello world")); err != nil || n != 11 {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	if ch.Size() != 11 {
		t.Fatalf("size = %d", ch.Size())
	}

	view := ch.GetByteBuffer()
	if view == nil {
		t.Fatal("nil view on live channel")
	}
	if !bytes.Equal(view.Bytes(), []byte("hello world")) {
		t.Fatalf("view = %q", view.Bytes())
	}
	view.Advance(6)
	ch.Compact()

	if ch.Size() != 5 {
		t.Fatalf("size after compact = %d", ch.Size())
	}
	view = ch.GetByteBuffer()
	if string(view.Bytes()) != "world" {
		t.Fatalf("remainder = %q", view.Bytes())
	}
	ch.Compact()
	if ch.Size() != 5 {
		t.Fatalf("unconsumed compact changed size: %d", ch.Size())
	}
}

func TestByteChannelWriteEndConsumesSource(t *testing.T) {
	ch := NewByteChannel(64)
	src := Wrap([]byte("payload"))
	n, err := ch.WriteEnd(src)
	if err != nil || n != 7 {
		t.Fatalf("writeEnd: n=%d err=%v", n, err)
	}
	if src.HasRemaining() {
		t.Fatal("writeEnd must consume the source view")
	}
	if ch.Size() != 7 {
		t.Fatalf("size = %d", ch.Size())
	}
}

func TestByteChannelRelease(t *testing.T) {
	ch := NewByteChannel(16)
	ch.WriteBytes([]byte("x"))
	ch.Release()
	ch.Release()

	if !ch.IsReleased() {
		t.Fatal("channel should report released")
	}
	if ch.Size() != 0 {
		t.Fatalf("size after release = %d", ch.Size())
	}
	if view := ch.GetByteBuffer(); view != nil {
		t.Fatal("view on released channel should be nil")
	}
	if _, err := ch.WriteBytes([]byte("y")); err != ErrReleased {
		t.Fatalf("write after release: err=%v", err)
	}
	ch.Compact()
}

func TestByteChannelMaxSizeWatermark(t *testing.T) {
	ch := NewByteChannel(8)
	if ch.MaxSize() != 8 {
		t.Fatalf("maxSize = %d", ch.MaxSize())
	}
	// The watermark does not reject writes; backpressure happens upstream.
	if n, err := ch.WriteBytes(make([]byte, 16)); err != nil || n != 16 {
		t.Fatalf("oversized write: n=%d err=%v", n, err)
	}
	if ch.Size() != 16 {
		t.Fatalf("size = %d", ch.Size())
	}
}
