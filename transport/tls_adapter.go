//go:build linux
// +build linux

// File: transport/tls_adapter.go
// Author: momentics <momentics@gmail.com>
//
// TlsAdapter is the per-session record-layer state machine between raw
// socket bytes and application plaintext. It drives the handshake from
// engine-reported status codes, wraps outbound plaintext into records,
// and pumps inbound ciphertext out of the session's encrypted channel.
//
// All adapter calls run on the selector's event runner; the only state
// that may be touched from another goroutine is Release, which races
// against in-flight wrap/unwrap through the plane-buffer latches.

package transport

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/core/buffer"
	"github.com/momentics/hioload-net/internal/logger"
)

// handshakeMaxIterations bounds one handshake drive loop.
const handshakeMaxIterations = 20

// defaultPacketSize is used when the engine does not advertise one.
const defaultPacketSize = 1 << 15

// Adapter states.
const (
	StateInit int32 = iota
	StateHandshaking
	StateReady
	StateClosed
)

// TlsAdapter wraps a TlsEngine for one session.
type TlsAdapter struct {
	mu      sync.Mutex
	engine  api.TlsEngine
	session *Session

	// appData and netData are the plane buffers, sized to the engine's
	// packet size. Released exactly once.
	appData *buffer.Buffer
	netData *buffer.Buffer

	// encryptedChannel buffers inbound ciphertext: handshake records
	// before completion, leftover undecodable record fragments after.
	encryptedChannel *buffer.ByteChannel

	handshakeDone atomic.Bool
	state         atomic.Int32

	releaseOnce sync.Once
}

// NewTlsAdapter builds an adapter with plane buffers sized to the
// engine's advertised packet size.
func NewTlsAdapter(engine api.TlsEngine, session *Session) *TlsAdapter {
	ps := engine.PacketSize()
	if ps <= 0 {
		ps = defaultPacketSize
	}
	a := &TlsAdapter{
		engine:           engine,
		session:          session,
		appData:          buffer.New(ps),
		netData:          buffer.New(ps),
		encryptedChannel: buffer.NewByteChannel(ps * 4),
	}
	a.state.Store(StateInit)
	return a
}

// Engine returns the wrapped TLS engine.
func (a *TlsAdapter) Engine() api.TlsEngine { return a.engine }

// EncryptedChannel returns the inbound ciphertext channel.
func (a *TlsAdapter) EncryptedChannel() *buffer.ByteChannel { return a.encryptedChannel }

// HandshakeDone reports handshake completion. Transitions false→true at
// most once for the adapter's lifetime.
func (a *TlsAdapter) HandshakeDone() bool { return a.handshakeDone.Load() }

// State returns the adapter lifecycle state.
func (a *TlsAdapter) State() int32 { return a.state.Load() }

// IsHandshakeDone reports whether the session either has no TLS adapter
// or has finished its handshake.
func IsHandshakeDone(s *Session) bool {
	if s == nil || s.tls == nil {
		return true
	}
	return s.tls.HandshakeDone()
}

// WrapData encrypts src's readable bytes record by record, forwarding
// each produced record to the session's raw send path. Loops while the
// engine reports OK and plaintext remains. Returns the last engine
// result, or nil if the session disconnected or the network plane was
// released mid-call.
func (a *TlsAdapter) WrapData(src *buffer.Buffer) (*api.EngineResult, error) {
	if !a.session.IsConnected() {
		return nil, nil
	}
	var res *api.EngineResult
	for {
		var wrapErr, sendErr error
		alive := a.netData.Guard(func() {
			a.netData.Clear()
			res, wrapErr = a.engine.Wrap(src, a.netData)
			if wrapErr != nil || res == nil {
				return
			}
			a.netData.Flip()
			if a.session.IsConnected() && res.BytesProduced > 0 && a.netData.Limit() > 0 {
				_, sendErr = a.session.send0(a.netData)
			}
			a.netData.Clear()
		})
		if !alive {
			return nil, nil
		}
		if wrapErr != nil {
			return res, wrapErr
		}
		if sendErr != nil {
			return res, sendErr
		}
		if res == nil {
			return nil, nil
		}
		if res.Status != api.EngineOK || !src.HasRemaining() {
			return res, nil
		}
	}
}

// UnwrapData performs a single engine unwrap under the destination plane
// latch. Returns nil (never panics) when the destination has been
// released or the session disconnected.
func (a *TlsAdapter) UnwrapData(src, dst *buffer.Buffer) (*api.EngineResult, error) {
	if !a.session.IsConnected() {
		return nil, nil
	}
	var (
		res *api.EngineResult
		err error
	)
	alive := dst.Guard(func() {
		res, err = a.engine.Unwrap(src, dst)
	})
	if !alive {
		return nil, nil
	}
	return res, err
}

// DoHandshake advances the handshake until done, a yield point, or the
// iteration bound. Driven repeatedly by the prepare stage as ciphertext
// arrives; runs on the event runner.
func (a *TlsAdapter) DoHandshake() (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.handshakeDone.Load() {
		return true, nil
	}
	if a.state.Load() == StateInit {
		a.state.Store(StateHandshaking)
	}
	if err := a.engine.BeginHandshake(); err != nil {
		return false, err
	}

	count := 0
	hs := a.engine.HandshakeStatus()
	for !a.handshakeDone.Load() && count < handshakeMaxIterations {
		count++
		var err error
		switch hs {
		case api.HandshakeNeedTask:
			hs = a.runDelegatedTasks()
		case api.HandshakeNeedWrap:
			hs, err = a.doHandshakeWrap()
			if err != nil {
				return false, err
			}
		case api.HandshakeNeedUnwrap:
			if a.encryptedChannel.Size() == 0 {
				// No buffered ciphertext: yield, the next read drives us.
				return false, nil
			}
			var progressed bool
			hs, progressed, err = a.doHandshakeUnwrap()
			if err != nil {
				return false, err
			}
			if hs == api.HandshakeNone {
				return false, fmt.Errorf("handshake: %w", api.ErrSessionDisconnected)
			}
			if !progressed {
				// Partial record buffered: yield until more bytes arrive.
				return false, nil
			}
		case api.HandshakeFinished:
			hs = a.engine.HandshakeStatus()
		case api.HandshakeNotHandshaking:
			a.handshakeDone.Store(true)
			a.state.Store(StateReady)
		case api.HandshakeNone:
			return false, fmt.Errorf("handshake: %w", api.ErrSessionDisconnected)
		}
	}
	if !a.handshakeDone.Load() {
		return false, fmt.Errorf("%w: %d drive iterations exhausted", api.ErrHandshakeTimeout, handshakeMaxIterations)
	}
	return true, nil
}

// doHandshakeWrap wraps empty plaintext to emit the next handshake
// record. Transient engine errors retry with backoff; total wall-clock is
// capped by the read timeout.
func (a *TlsAdapter) doHandshakeWrap() (api.HandshakeStatus, error) {
	var hs api.HandshakeStatus
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Millisecond
	bo.MaxInterval = 8 * time.Millisecond
	bo.MaxElapsedTime = a.session.ctx.cfg.ReadTimeout

	op := func() error {
		if !a.session.IsConnected() {
			hs = api.HandshakeNone
			return nil
		}
		a.appData.Clear()
		a.appData.Flip()
		res, err := a.WrapData(a.appData)
		if err != nil {
			return err
		}
		if res == nil {
			hs = api.HandshakeNone
			return nil
		}
		hs = a.runDelegatedTasks()
		return nil
	}
	if err := backoff.Retry(op, bo); err != nil {
		return api.HandshakeNone, fmt.Errorf("%w: wrap: %v", api.ErrHandshakeTimeout, err)
	}
	return hs, nil
}

// doHandshakeUnwrap feeds buffered ciphertext to the engine. The
// progressed result distinguishes a consumed record from an underflow:
// the caller yields on the latter so a partial record never burns drive
// iterations. Overflow retries briefly within the read timeout; a closed
// engine closes the session.
func (a *TlsAdapter) doHandshakeUnwrap() (api.HandshakeStatus, bool, error) {
	deadline := time.Now().Add(a.session.ctx.cfg.ReadTimeout)
	for {
		if !a.session.IsConnected() {
			return api.HandshakeNone, false, nil
		}
		if a.encryptedChannel.IsReleased() {
			return api.HandshakeNone, false, fmt.Errorf("handshake unwrap: %w", api.ErrSessionDisconnected)
		}
		if a.encryptedChannel.Size() == 0 {
			return a.engine.HandshakeStatus(), false, nil
		}

		a.appData.Clear()
		view := a.encryptedChannel.GetByteBuffer()
		if view == nil {
			return api.HandshakeNone, false, fmt.Errorf("handshake unwrap: %w", api.ErrSessionDisconnected)
		}
		res, err := a.UnwrapData(view, a.appData)
		a.encryptedChannel.Compact()
		if err != nil {
			return api.HandshakeNone, false, err
		}
		if res == nil {
			return api.HandshakeNone, false, nil
		}

		switch res.Status {
		case api.EngineOK:
			return a.engine.HandshakeStatus(), true, nil
		case api.EngineClosed:
			logger.Errorf("tls handshake failed on %s: engine closed", a.session.RemoteAddress())
			a.session.Close()
			return api.HandshakeNone, false, nil
		case api.EngineBufferUnderflow:
			// Partial record: wait for the next read to append more bytes.
			return a.engine.HandshakeStatus(), false, nil
		case api.EngineBufferOverflow:
			if time.Now().After(deadline) {
				return a.engine.HandshakeStatus(), false, nil
			}
			time.Sleep(time.Millisecond)
		}
	}
}

// runDelegatedTasks executes every delegated task the engine offers,
// inline, until none remain.
func (a *TlsAdapter) runDelegatedTasks() api.HandshakeStatus {
	if a.handshakeDone.Load() {
		return api.HandshakeNone
	}
	if a.engine.HandshakeStatus() == api.HandshakeNeedTask {
		for task := a.engine.DelegatedTask(); task != nil; task = a.engine.DelegatedTask() {
			task()
		}
	}
	return a.engine.HandshakeStatus()
}

// UnwrapChannel is the record-decoding pump: repeatedly snapshot netCh,
// unwrap a record into the application plane, compact, and append the
// plaintext to appCh. Exits when the source drains on OK or the engine
// reports OVERFLOW/UNDERFLOW/CLOSED; a source released mid-pump exits
// gracefully unless the session is also disconnected.
func (a *TlsAdapter) UnwrapChannel(session *Session, netCh, appCh *buffer.ByteChannel) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !session.IsConnected() || netCh.Size() == 0 {
		return 0, nil
	}

	produced := 0
	for {
		a.appData.Clear()
		view := netCh.GetByteBuffer()
		if view == nil {
			if !session.IsConnected() {
				return produced, fmt.Errorf("unwrap channel: %w", api.ErrSessionDisconnected)
			}
			return produced, nil
		}
		res, err := a.UnwrapData(view, a.appData)
		netCh.Compact()
		if err != nil {
			return produced, err
		}
		if res == nil {
			if a.appData.Released() && session.IsConnected() {
				return produced, nil
			}
			return produced, fmt.Errorf("unwrap channel: %w", api.ErrSessionDisconnected)
		}

		a.appData.Flip()
		if a.appData.HasRemaining() {
			n, werr := appCh.WriteEnd(a.appData)
			if werr != nil {
				if session.IsConnected() {
					return produced, nil
				}
				return produced, fmt.Errorf("unwrap channel: %w", werr)
			}
			produced += n
		}

		if res.Status == api.EngineOK && view.Remaining() == 0 {
			break
		}
		if res.Status == api.EngineBufferOverflow ||
			res.Status == api.EngineBufferUnderflow ||
			res.Status == api.EngineClosed {
			break
		}
	}
	return produced, nil
}

// Release frees both plane buffers and the encrypted channel. Idempotent;
// an unwrap racing the release observes nil instead of freed memory.
func (a *TlsAdapter) Release() {
	a.releaseOnce.Do(func() {
		a.state.Store(StateClosed)
		a.engine.CloseOutbound()
		a.netData.Release()
		a.appData.Release()
		a.encryptedChannel.Release()
	})
}
