// File: api/tls.go
// Author: momentics <momentics@gmail.com>
//
// Abstract TLS engine contract. The runtime drives handshakes and record
// packing against this interface; it never implements cryptography itself.

package api

import "github.com/momentics/hioload-net/core/buffer"

// HandshakeStatus is the engine-reported handshake progress after an
// operation. HandshakeNone stands in for "no status" (disconnected or
// released mid-operation).
type HandshakeStatus int

const (
	HandshakeNone HandshakeStatus = iota
	HandshakeNotHandshaking
	HandshakeFinished
	HandshakeNeedTask
	HandshakeNeedWrap
	HandshakeNeedUnwrap
)

// String returns the status name for logs.
func (s HandshakeStatus) String() string {
	switch s {
	case HandshakeNotHandshaking:
		return "NOT_HANDSHAKING"
	case HandshakeFinished:
		return "FINISHED"
	case HandshakeNeedTask:
		return "NEED_TASK"
	case HandshakeNeedWrap:
		return "NEED_WRAP"
	case HandshakeNeedUnwrap:
		return "NEED_UNWRAP"
	default:
		return "NONE"
	}
}

// EngineStatus is the result status of a single wrap/unwrap call.
type EngineStatus int

const (
	EngineOK EngineStatus = iota
	EngineBufferUnderflow
	EngineBufferOverflow
	EngineClosed
)

// String returns the status name for logs.
func (s EngineStatus) String() string {
	switch s {
	case EngineOK:
		return "OK"
	case EngineBufferUnderflow:
		return "BUFFER_UNDERFLOW"
	case EngineBufferOverflow:
		return "BUFFER_OVERFLOW"
	case EngineClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// EngineResult reports the outcome of one wrap/unwrap call.
type EngineResult struct {
	Status        EngineStatus
	Handshake     HandshakeStatus
	BytesConsumed int
	BytesProduced int
}

// TlsEngine consumes ciphertext and produces plaintext (Unwrap) and
// vice-versa (Wrap), reporting handshake progress via status codes.
// Implementations advance src/dst positions by the bytes they consume and
// produce.
type TlsEngine interface {
	// BeginHandshake arms the handshake state machine. Idempotent once
	// handshaking is in progress.
	BeginHandshake() error

	// Wrap encrypts readable bytes of src into dst.
	Wrap(src, dst *buffer.Buffer) (*EngineResult, error)

	// Unwrap decrypts readable bytes of src into dst.
	Unwrap(src, dst *buffer.Buffer) (*EngineResult, error)

	// DelegatedTask returns the next pending delegated task, or nil.
	DelegatedTask() func()

	// HandshakeStatus returns the current handshake progress.
	HandshakeStatus() HandshakeStatus

	// PacketSize returns the engine's maximum record size; plane buffers
	// are allocated at this size.
	PacketSize() int

	// CloseOutbound signals that no further outbound records follow.
	CloseOutbound()
}

// TlsEngineFactory builds one engine per accepted or connected session.
type TlsEngineFactory func() TlsEngine
