// File: internal/logger/logger.go
// Author: momentics <momentics@gmail.com>
//
// Leveled logging for the runtime, backed by seelog. Package-level
// functions delegate to a swappable seelog.LoggerInterface so embedding
// applications can route runtime logs into their own configuration.

package logger

import (
	"sync"

	"github.com/cihub/seelog"
)

var (
	mu   sync.RWMutex
	base seelog.LoggerInterface
)

func init() {
	base = seelog.Current
	// Stack depth so the emitted location is the runtime call site, not
	// this wrapper.
	base.SetAdditionalStackDepth(1)
}

// ReplaceLogger swaps the underlying seelog logger.
func ReplaceLogger(l seelog.LoggerInterface) {
	if l == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	base = l
	base.SetAdditionalStackDepth(1)
}

func logger() seelog.LoggerInterface {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Debugf logs at debug level.
func Debugf(format string, params ...interface{}) {
	logger().Debugf(format, params...)
}

// Infof logs at info level.
func Infof(format string, params ...interface{}) {
	logger().Infof(format, params...)
}

// Warnf logs at warn level.
func Warnf(format string, params ...interface{}) {
	_ = logger().Warnf(format, params...)
}

// Errorf logs at error level.
func Errorf(format string, params ...interface{}) {
	_ = logger().Errorf(format, params...)
}

// Flush forces buffered output out, typically before process exit.
func Flush() {
	logger().Flush()
}
