//go:build linux
// +build linux

// File: transport/session.go
// Author: momentics <momentics@gmail.com>
//
// Session is the logical connection handed to application code. Created
// on accept or connect (TCP) or on first sight of a remote address (UDP
// server side); destroyed on stream end or unrecoverable error.

package transport

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/core/buffer"
)

// StopType records why a session ended.
type StopType int32

const (
	StopTypeNone StopType = iota
	StopTypeStreamEnd
	StopTypeException
)

// Session is the per-connection state owned by its SocketContext.
type Session struct {
	ctx *SocketContext

	readChannel *buffer.ByteChannel
	tls         *TlsAdapter
	heartBeat   api.HeartBeat
	splitter    api.MessageSplitter

	// reg is the selection-key back-reference; unregister invalidates the
	// registration it points at but does not clear this field.
	reg *registration

	stopType    atomic.Int32
	releaseOnce sync.Once
}

var _ api.Session = (*Session)(nil)

// newSession builds a session for ctx, wiring the application channel,
// the splitter, and the optional TLS adapter and heartbeat tracker.
func newSession(ctx *SocketContext) *Session {
	s := &Session{
		ctx:         ctx,
		readChannel: buffer.NewByteChannel(ctx.cfg.AppChannelMaxSize),
		splitter:    ctx.cfg.Splitter,
	}
	if s.splitter == nil {
		s.splitter = TransferSplitter{}
	}
	if ctx.cfg.TlsFactory != nil {
		s.tls = NewTlsAdapter(ctx.cfg.TlsFactory(), s)
	}
	if ctx.cfg.HeartBeatFactory != nil {
		s.heartBeat = ctx.cfg.HeartBeatFactory()
	}
	ctx.session = s
	return s
}

// RemoteAddress returns the peer address in host:port form.
func (s *Session) RemoteAddress() string { return s.ctx.remoteAddr }

// Context returns the owning socket context.
func (s *Session) Context() *SocketContext { return s.ctx }

// ReadChannel returns the bounded application byte channel.
func (s *Session) ReadChannel() *buffer.ByteChannel { return s.readChannel }

// TlsAdapter returns the session's TLS adapter, nil for plaintext.
func (s *Session) TlsAdapter() *TlsAdapter { return s.tls }

// HeartBeat returns the session's heartbeat tracker, nil when absent.
func (s *Session) HeartBeat() api.HeartBeat { return s.heartBeat }

// SetHeartBeat attaches a heartbeat tracker.
func (s *Session) SetHeartBeat(h api.HeartBeat) { s.heartBeat = h }

// IsConnected reports whether the session is still live.
func (s *Session) IsConnected() bool { return s.ctx.IsConnected() }

// StopType reports why the session ended, StopTypeNone while live.
func (s *Session) StopType() StopType { return StopType(s.stopType.Load()) }

func (s *Session) setStopType(t StopType) { s.stopType.Store(int32(t)) }

// Send writes plaintext to the peer. With a TLS adapter present the bytes
// are wrapped once the handshake has finished; before that Send fails with
// ErrHandshakeNotDone. The call is serialized onto the selector's event
// runner and blocks at most the send timeout.
func (s *Session) Send(p []byte) (int, error) {
	sel := s.ctx.selector
	if sel == nil {
		return -1, api.ErrSessionDisconnected
	}
	if sel.runner.InRunner() {
		return s.sendNow(p)
	}
	type sendResult struct {
		n   int
		err error
	}
	res := make(chan sendResult, 1)
	err := sel.runner.AddEvent(func() {
		n, err := s.sendNow(p)
		res <- sendResult{n, err}
	})
	if err != nil {
		return -1, err
	}
	sel.poller.Wake()
	r := <-res
	return r.n, r.err
}

// sendNow runs on the event runner.
func (s *Session) sendNow(p []byte) (int, error) {
	if !s.IsConnected() {
		return -1, api.ErrSessionDisconnected
	}
	if s.tls != nil {
		if !s.tls.HandshakeDone() {
			return -1, api.ErrHandshakeNotDone
		}
		src := buffer.Wrap(p)
		res, err := s.tls.WrapData(src)
		if err != nil {
			return -1, err
		}
		if res == nil {
			return -1, api.ErrSessionDisconnected
		}
		return len(p) - src.Remaining(), nil
	}
	return s.send0(buffer.Wrap(p))
}

// send0 pushes raw (already wrapped) bytes to the socket through the
// selector's bounded write loop.
func (s *Session) send0(buf *buffer.Buffer) (int, error) {
	sel := s.ctx.selector
	if sel == nil {
		return -1, api.ErrSessionDisconnected
	}
	n := sel.WriteToChannel(s.ctx, buf)
	if n < 0 {
		return n, api.ErrWriteTimeout
	}
	return n, nil
}

// Close tears the session down. Idempotent.
func (s *Session) Close() error {
	udpChild := s.ctx.sharedFD
	if udpChild {
		// Implicit UDP sessions release their own state only; the server
		// socket and registration stay up for other peers.
		s.release()
		return nil
	}
	return s.ctx.Close()
}

// release frees session-owned resources exactly once.
func (s *Session) release() {
	s.releaseOnce.Do(func() {
		if s.tls != nil {
			s.tls.Release()
		}
		s.readChannel.Release()
		if s.ctx.sharedFD {
			s.ctx.open.Store(false)
			if s.ctx.parent != nil {
				s.ctx.parent.removeChild(s.ctx.remoteAddr)
			}
		}
		if mgr := s.ctx.cfg.Manager; mgr != nil {
			mgr.Detach(s)
		}
	})
}
