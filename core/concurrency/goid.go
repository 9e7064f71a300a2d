// File: core/concurrency/goid.go
// Author: momentics <momentics@gmail.com>

package concurrency

import (
	"runtime"
	"strconv"
	"strings"
)

// CurrentGoroutineID parses the numeric id from the goroutine's stack
// header ("goroutine N [running]:"). The runner-thread identity checks in
// the selector depend on it; the parse costs one small stack dump and is
// taken on registration and submission paths and once per event cycle,
// never per byte.
func CurrentGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := strings.Fields(strings.TrimPrefix(string(buf[:n]), "goroutine "))
	if len(fields) == 0 {
		return 0
	}
	id, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0
	}
	return id
}
