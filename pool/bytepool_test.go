// File: pool/bytepool_test.go
// Author: momentics <momentics@gmail.com>

package pool

import "testing"

func TestBytePoolGetPut(t *testing.T) {
	p := NewBytePool()

	buf := p.Get(1000)
	if len(buf) < 1000 {
		t.Fatalf("len = %d", len(buf))
	}
	p.Put(buf)

	big := p.Get(1 << 20)
	if len(big) != 1<<20 {
		t.Fatalf("oversized len = %d", len(big))
	}
	p.Put(big)
}

func TestBytePoolClassRounding(t *testing.T) {
	p := NewBytePool()
	for _, want := range []int{1, 1024, 1025, 65536} {
		buf := p.Get(want)
		if len(buf) < want {
			t.Fatalf("Get(%d) returned %d bytes", want, len(buf))
		}
	}
}
