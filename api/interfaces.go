// File: api/interfaces.go
// Author: momentics <momentics@gmail.com>
//
// Contracts between the selector core and its external collaborators:
// event notification, message framing, heartbeat filtering, and session
// bookkeeping. The core only consumes these; implementations live with
// the application (stock ones under protocol/ and transport/).

package api

import "github.com/momentics/hioload-net/core/buffer"

// Session is the application-visible face of a logical connection.
type Session interface {
	// RemoteAddress returns the peer address in host:port form.
	RemoteAddress() string

	// Send writes plaintext to the peer. With TLS configured the bytes are
	// wrapped before hitting the socket. Blocks at most the send timeout.
	Send(p []byte) (int, error)

	// ReadChannel is the bounded application channel carrying received
	// (decrypted, heartbeat-filtered) bytes.
	ReadChannel() *buffer.ByteChannel

	// IsConnected reports whether the session is still live.
	IsConnected() bool

	// Close tears the session down. Idempotent.
	Close() error
}

// EventTrigger receives lifecycle notifications from the selector core.
// All callbacks fire on the event runner goroutine and must not block.
type EventTrigger interface {
	FireAccept(s Session)
	FireReceive(s Session)
	FireException(s Session, err error)
}

// MessageSplitter owns stream framing. The core only consults the
// stream-end predicate; framing callbacks belong to the application.
type MessageSplitter interface {
	// IsStreamEnd inspects the latest read (raw bytes plus the read's
	// return value) and reports whether the stream has ended.
	IsStreamEnd(data []byte, n int) bool
}

// HeartBeat intercepts control frames at the head of the application
// channel before receive notifications fire. It may consume bytes.
type HeartBeat interface {
	InterceptHeartBeat(s Session, appCh *buffer.ByteChannel)
}

// SessionManager observes session lifetimes. Opaque to the core; the UDP
// server uses it to publish implicitly accepted child sessions.
type SessionManager interface {
	Attach(s Session)
	Detach(s Session)
}
