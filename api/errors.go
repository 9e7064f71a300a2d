// File: api/errors.go
// Author: momentics <momentics@gmail.com>
//
// Common error values shared across the runtime.

package api

import "fmt"

// Common errors used across the library.
var (
	ErrRunnerClosed        = fmt.Errorf("event runner is closed")
	ErrSelectorClosed      = fmt.Errorf("socket selector is closed")
	ErrRegistrationFailed  = fmt.Errorf("channel registration failed")
	ErrWriteTimeout        = fmt.Errorf("write timeout")
	ErrHandshakeTimeout    = fmt.Errorf("tls handshake timeout")
	ErrHandshakeNotDone    = fmt.Errorf("tls handshake not finished")
	ErrSessionDisconnected = fmt.Errorf("session is disconnected")
	ErrChannelReleased     = fmt.Errorf("byte channel is released")
	ErrBufferReleased      = fmt.Errorf("buffer is released")
	ErrNotSupported        = fmt.Errorf("operation not supported on this platform")
	ErrNotInRunner         = fmt.Errorf("caller is not on the event runner goroutine")
)
