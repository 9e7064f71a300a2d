// File: fake/tls_engine.go
// Author: momentics <momentics@gmail.com>
//
// Scripted TLS engine for tests. The handshake exchanges fixed tokens
// (client hello, server flight) and the record layer frames payloads as
// a 2-byte big-endian length followed by the payload XORed with a fixed
// key: enough structure to exercise underflow/overflow, multi-record
// pumping, and round-trips without real cryptography.

package fake

import (
	"encoding/binary"
	"sync"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/core/buffer"
)

// Handshake tokens and framing constants.
const (
	HelloToken  = "CLIENT_HELLO"
	FlightToken = "SERVER_DONE"
	xorKey      = 0x5A

	// PacketSize is the advertised engine packet size.
	PacketSize = 4096

	// maxRecordPayload bounds one record so large writes produce several.
	maxRecordPayload = 1024
)

// engine handshake states.
const (
	stExpectHello = iota // server: wait for the client hello
	stTask               // server: delegated task pending
	stWrapFlight         // server: emit the flight
	stWrapHello          // client: emit the hello
	stExpectFlight       // client: wait for the server flight
	stFinished           // report FINISHED once
	stDone               // NOT_HANDSHAKING
)

// Engine is a scripted api.TlsEngine.
type Engine struct {
	mu     sync.Mutex
	state  int
	server bool

	// Unwraps counts handshake+record unwrap calls, for iteration bounds.
	Unwraps int
	// Wraps counts wrap calls.
	Wraps int

	closedOutbound bool
}

var _ api.TlsEngine = (*Engine)(nil)

// NewServerEngine returns an engine expecting a client hello first.
func NewServerEngine() *Engine {
	return &Engine{state: stExpectHello, server: true}
}

// NewClientEngine returns an engine that sends the hello first.
func NewClientEngine() *Engine {
	return &Engine{state: stWrapHello}
}

// BeginHandshake is idempotent.
func (e *Engine) BeginHandshake() error { return nil }

// PacketSize returns the advertised packet size.
func (e *Engine) PacketSize() int { return PacketSize }

// CloseOutbound marks the outbound side closed.
func (e *Engine) CloseOutbound() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closedOutbound = true
}

// HandshakeStatus maps the scripted state to a status. The FINISHED state
// reports once, then settles on NOT_HANDSHAKING.
func (e *Engine) HandshakeStatus() api.HandshakeStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case stExpectHello, stExpectFlight:
		return api.HandshakeNeedUnwrap
	case stTask:
		return api.HandshakeNeedTask
	case stWrapFlight, stWrapHello:
		return api.HandshakeNeedWrap
	case stFinished:
		e.state = stDone
		return api.HandshakeFinished
	default:
		return api.HandshakeNotHandshaking
	}
}

// DelegatedTask hands out the single scripted task while in NEED_TASK.
func (e *Engine) DelegatedTask() func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stTask {
		return nil
	}
	e.state = stWrapFlight
	return func() {}
}

// Wrap emits a handshake token while handshaking, and frames plaintext
// into records afterwards.
func (e *Engine) Wrap(src, dst *buffer.Buffer) (*api.EngineResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Wraps++

	switch e.state {
	case stWrapHello:
		n := dst.Put([]byte(HelloToken))
		e.state = stExpectFlight
		return &api.EngineResult{Status: api.EngineOK, Handshake: api.HandshakeNeedUnwrap, BytesProduced: n}, nil
	case stWrapFlight:
		n := dst.Put([]byte(FlightToken))
		e.state = stFinished
		return &api.EngineResult{Status: api.EngineOK, Handshake: api.HandshakeFinished, BytesProduced: n}, nil
	case stDone:
		payload := src.Bytes()
		if len(payload) > maxRecordPayload {
			payload = payload[:maxRecordPayload]
		}
		if len(payload)+2 > dst.Remaining() {
			return &api.EngineResult{Status: api.EngineBufferOverflow, Handshake: api.HandshakeNotHandshaking}, nil
		}
		record := EncodeRecord(payload)
		n := dst.Put(record)
		src.Advance(len(payload))
		return &api.EngineResult{
			Status:        api.EngineOK,
			Handshake:     api.HandshakeNotHandshaking,
			BytesConsumed: len(payload),
			BytesProduced: n,
		}, nil
	default:
		// Nothing to wrap in a receive state; report progress unchanged.
		return &api.EngineResult{Status: api.EngineOK, Handshake: e.statusLocked()}, nil
	}
}

// Unwrap consumes a handshake token while handshaking, and decodes one
// record afterwards.
func (e *Engine) Unwrap(src, dst *buffer.Buffer) (*api.EngineResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Unwraps++

	switch e.state {
	case stExpectHello:
		return e.consumeToken(src, []byte(HelloToken), stTask, api.HandshakeNeedTask)
	case stExpectFlight:
		return e.consumeToken(src, []byte(FlightToken), stFinished, api.HandshakeFinished)
	case stDone:
		head := src.Bytes()
		if len(head) < 2 {
			return &api.EngineResult{Status: api.EngineBufferUnderflow, Handshake: api.HandshakeNotHandshaking}, nil
		}
		ln := int(binary.BigEndian.Uint16(head))
		if len(head) < 2+ln {
			return &api.EngineResult{Status: api.EngineBufferUnderflow, Handshake: api.HandshakeNotHandshaking}, nil
		}
		if dst.Remaining() < ln {
			return &api.EngineResult{Status: api.EngineBufferOverflow, Handshake: api.HandshakeNotHandshaking}, nil
		}
		plain := make([]byte, ln)
		for i := 0; i < ln; i++ {
			plain[i] = head[2+i] ^ xorKey
		}
		dst.Put(plain)
		src.Advance(2 + ln)
		return &api.EngineResult{
			Status:        api.EngineOK,
			Handshake:     api.HandshakeNotHandshaking,
			BytesConsumed: 2 + ln,
			BytesProduced: ln,
		}, nil
	default:
		return &api.EngineResult{Status: api.EngineOK, Handshake: e.statusLocked()}, nil
	}
}

func (e *Engine) consumeToken(src *buffer.Buffer, token []byte, next int, hs api.HandshakeStatus) (*api.EngineResult, error) {
	if src.Remaining() < len(token) {
		return &api.EngineResult{Status: api.EngineBufferUnderflow, Handshake: e.statusLocked()}, nil
	}
	src.Advance(len(token))
	e.state = next
	return &api.EngineResult{Status: api.EngineOK, Handshake: hs, BytesConsumed: len(token)}, nil
}

// statusLocked mirrors HandshakeStatus without the FINISHED one-shot.
func (e *Engine) statusLocked() api.HandshakeStatus {
	switch e.state {
	case stExpectHello, stExpectFlight:
		return api.HandshakeNeedUnwrap
	case stTask:
		return api.HandshakeNeedTask
	case stWrapFlight, stWrapHello:
		return api.HandshakeNeedWrap
	case stFinished:
		return api.HandshakeFinished
	default:
		return api.HandshakeNotHandshaking
	}
}

// Counters returns the wrap/unwrap call counts under the engine lock.
func (e *Engine) Counters() (wraps, unwraps int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Wraps, e.Unwraps
}

// EncodeRecord frames a plaintext payload the way the engine's record
// layer does: 2-byte big-endian length plus XORed payload.
func EncodeRecord(payload []byte) []byte {
	out := make([]byte, 2+len(payload))
	binary.BigEndian.PutUint16(out, uint16(len(payload)))
	for i, b := range payload {
		out[2+i] = b ^ xorKey
	}
	return out
}

// DecodeRecords decodes every complete record in p, returning the
// concatenated plaintext and the number of bytes consumed.
func DecodeRecords(p []byte) (plain []byte, consumed int) {
	for len(p)-consumed >= 2 {
		ln := int(binary.BigEndian.Uint16(p[consumed:]))
		if len(p)-consumed < 2+ln {
			break
		}
		for i := 0; i < ln; i++ {
			plain = append(plain, p[consumed+2+i]^xorKey)
		}
		consumed += 2 + ln
	}
	return plain, consumed
}
